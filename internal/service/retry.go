package service

import (
	"context"
	"errors"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"xiapu/imageguard/internal/domain"
)

// Retry gives a fallback task a fresh budget and re-probes its original
// source once.
func (p *Pipeline) Retry(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	t, ok := p.byID[id]
	if !ok {
		return ErrTaskNotFound
	}
	if t.state != domain.ImageStateFallback {
		return ErrNotInFallback
	}

	log.Infof("🔄 Retrying image %s from %s", t.id, t.originalSource)
	p.backoff.Reset(t.id)
	t.el.HideRetryControl(t.id)
	p.beginRetry(t)
	return nil
}

// RetryAll re-triggers every fallback task, spacing them by the configured
// stagger. It returns how many were scheduled.
func (p *Pipeline) RetryAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}

	var due []*imageTask
	for _, t := range p.byID {
		if t.state == domain.ImageStateFallback {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].seq < due[j].seq })

	for i, t := range due {
		id := t.id
		delay := p.opts.RetryAllStagger * time.Duration(i)
		p.spawn(func(ctx context.Context) {
			if !p.sleep(ctx, delay) {
				return
			}
			if err := p.Retry(id); err != nil && !errors.Is(err, ErrClosed) {
				log.Debugf("Skipped staggered retry of %s: %v", id, err)
			}
		})
	}

	if len(due) > 0 {
		log.Infof("🔄 Retrying %d fallback images...", len(due))
	}
	return len(due)
}
