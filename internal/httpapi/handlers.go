package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"xiapu/imageguard/internal/dom"
	"xiapu/imageguard/internal/service"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *App) Status(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Pipeline.Status())
}

func (a *App) HealthCheck(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Pipeline.HealthCheck(r.Context()))
}

func (a *App) ListImages(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"images": a.Pipeline.Tasks(),
		"stats":  a.Pipeline.Stats(),
	})
}

func (a *App) GetImage(w http.ResponseWriter, r *http.Request) {
	task, err := a.Pipeline.Task(chi.URLParam(r, "id"))
	if err != nil {
		a.taskError(w, err)
		return
	}
	a.json(w, http.StatusOK, task)
}

func (a *App) RemoveImage(w http.ResponseWriter, r *http.Request) {
	if err := a.Pipeline.Remove(chi.URLParam(r, "id")); err != nil {
		a.taskError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) RetryImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := a.Pipeline.Retry(id); err != nil {
		a.taskError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, map[string]string{"id": id, "status": "retrying"})
}

func (a *App) RetryAll(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusAccepted, map[string]int{"scheduled": a.Pipeline.RetryAll()})
}

func (a *App) Page(w http.ResponseWriter, r *http.Request) {
	out, err := a.Document.HTML()
	if err != nil {
		log.Errorf("❌ Failed to render page: %v", err)
		a.fail(w, http.StatusInternalServerError, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

type fragmentRequest struct {
	Selector string `json:"selector"`
	HTML     string `json:"html"`
}

func (a *App) InsertFragment(w http.ResponseWriter, r *http.Request) {
	var req fragmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		a.fail(w, http.StatusBadRequest, "html is required")
		return
	}
	if req.Selector == "" {
		req.Selector = a.InsertSelector
	}

	added, err := a.Document.Insert(req.Selector, req.HTML)
	switch {
	case errors.Is(err, dom.ErrNoMatch):
		a.fail(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		a.fail(w, http.StatusBadRequest, err.Error())
		return
	}

	images := 0
	for _, el := range added {
		images += len(el.Images())
	}
	a.json(w, http.StatusCreated, map[string]int{"elements": len(added), "images": images})
}

type scrollRequest struct {
	Top int `json:"top"`
}

func (a *App) Scroll(w http.ResponseWriter, r *http.Request) {
	if a.Viewport == nil {
		a.fail(w, http.StatusConflict, "lazy loading is disabled")
		return
	}

	var req scrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.fail(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	a.json(w, http.StatusOK, map[string]int{"top": req.Top, "visible": a.Viewport.Scroll(req.Top)})
}

func (a *App) taskError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrTaskNotFound):
		a.fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotInFallback):
		a.fail(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrClosed):
		a.fail(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Errorf("❌ Image request failed: %v", err)
		a.fail(w, http.StatusInternalServerError, "internal error")
	}
}
