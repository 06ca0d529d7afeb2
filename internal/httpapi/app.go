package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"xiapu/imageguard/internal/dom"
	"xiapu/imageguard/internal/domain"
	"xiapu/imageguard/internal/service"
	"xiapu/imageguard/internal/stats"
)

// Pipeline is what the handlers need from the image pipeline.
type Pipeline interface {
	Stats() domain.Stats
	Status() stats.Status
	Tasks() []domain.ImageTask
	Task(id string) (domain.ImageTask, error)
	Retry(id string) error
	RetryAll() int
	Remove(id string) error
	HealthCheck(ctx context.Context) service.HealthReport
}

type Page interface {
	HTML() (string, error)
	Insert(selector, fragment string) ([]*dom.Element, error)
}

type Scroller interface {
	Scroll(top int) int
}

type App struct {
	Pipeline Pipeline
	Document Page
	// Nil when images load eagerly.
	Viewport Scroller
	// Parent of fragments posted without a selector.
	InsertSelector string
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) fail(w http.ResponseWriter, code int, msg string) {
	a.json(w, code, map[string]string{"error": msg})
}
