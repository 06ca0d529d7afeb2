package stats

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"xiapu/imageguard/internal/domain"
)

const renderTimeout = 2 * time.Second

// Status is what the floating indicator shows.
type Status struct {
	Text         string       `json:"text"`
	Stats        domain.Stats `json:"stats"`
	ShowRetryAll bool         `json:"show_retry_all"`
}

// Overlay renders a status somewhere. Implementations may fail; the
// reporter only logs the error.
type Overlay interface {
	Render(ctx context.Context, status Status) error
}

// Reporter owns the pipeline counters. Every method is safe to call with
// no overlay configured.
type Reporter struct {
	mu    sync.Mutex
	stats domain.Stats

	renderMu sync.Mutex
	overlays []Overlay
}

func NewReporter(overlays ...Overlay) *Reporter {
	r := &Reporter{}
	for _, o := range overlays {
		if o != nil {
			r.overlays = append(r.overlays, o)
		}
	}
	return r
}

func (r *Reporter) RecordObserved() {
	r.update(func(s *domain.Stats) {
		s.Total++
	})
}

func (r *Reporter) RecordLoaded(fromFallback bool) {
	r.update(func(s *domain.Stats) {
		s.Loaded++
		s.Online++
		if fromFallback {
			decrement(&s.Fallback)
		}
	})
}

func (r *Reporter) RecordFailed() {
	r.update(func(s *domain.Stats) {
		s.Failed++
	})
}

func (r *Reporter) RecordFallback() {
	r.update(func(s *domain.Stats) {
		s.Fallback++
	})
}

// RecordRevalidating takes a task out of its settled bucket while it goes
// back to the network.
func (r *Reporter) RecordRevalidating(prev domain.ImageState) {
	r.update(func(s *domain.Stats) {
		leave(s, prev)
	})
}

// RecordRemoved prunes a task whose element left the document.
func (r *Reporter) RecordRemoved(prev domain.ImageState) {
	r.update(func(s *domain.Stats) {
		decrement(&s.Total)
		leave(s, prev)
	})
}

func (r *Reporter) Stats() domain.Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Reporter) Status() Status {
	return Describe(r.Stats())
}

func (r *Reporter) update(fn func(s *domain.Stats)) {
	r.mu.Lock()
	fn(&r.stats)
	r.mu.Unlock()

	r.render()
}

func (r *Reporter) render() {
	if len(r.overlays) == 0 {
		return
	}

	r.renderMu.Lock()
	defer r.renderMu.Unlock()

	// Snapshot under the render lock so the last render wins.
	status := r.Status()

	ctx, cancel := context.WithTimeout(context.Background(), renderTimeout)
	defer cancel()

	for _, o := range r.overlays {
		if err := o.Render(ctx, status); err != nil {
			log.Warnf("⚠️ Failed to render image status: %v", err)
		}
	}
}

// Describe turns counters into indicator text.
func Describe(s domain.Stats) Status {
	status := Status{Stats: s}

	switch {
	case s.Total == 0:
		status.Text = "No images"
	case s.Settled() >= s.Total:
		status.Text = fmt.Sprintf("%d online images", s.Online)
		if s.Fallback > 0 {
			status.Text += fmt.Sprintf(", %d fallback images", s.Fallback)
			status.ShowRetryAll = true
		}
	default:
		status.Text = fmt.Sprintf("Loading %d/%d", s.Settled(), s.Total)
	}

	return status
}

func leave(s *domain.Stats, prev domain.ImageState) {
	switch prev {
	case domain.ImageStateLoaded:
		decrement(&s.Loaded)
		decrement(&s.Online)
	case domain.ImageStateFallback:
		decrement(&s.Fallback)
	case domain.ImageStateFailed:
		decrement(&s.Failed)
	}
}

func decrement(v *int) {
	if *v > 0 {
		*v--
	}
}
