package service

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"xiapu/imageguard/internal/client"
	"xiapu/imageguard/internal/dom"
	"xiapu/imageguard/internal/domain"
)

// HealthReport summarises one health check pass.
type HealthReport struct {
	Checked    int `json:"checked"`
	Healthy    int `json:"healthy"`
	Broken     int `json:"broken"`
	Recovered  int `json:"recovered"`
	Degraded   int `json:"degraded"`
	Reenrolled int `json:"reenrolled"`
}

type healthCandidate struct {
	task    *imageTask
	attempt uint64
	state   domain.ImageState
	url     string
}

type healthOutcome struct {
	healthCandidate
	res client.Result
	err error
}

// HealthCheck re-validates loaded and fallback images, restarts the ones
// that broke or lost their source and enrolls images nobody saw yet.
func (p *Pipeline) HealthCheck(ctx context.Context) HealthReport {
	var report HealthReport

	for _, el := range p.doc.Images() {
		if p.Enroll(el) {
			report.Reenrolled++
		}
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return report
	}

	var candidates []healthCandidate
	for _, t := range p.byID {
		switch t.state {
		case domain.ImageStateLoaded:
			if !hasSource(t.el) {
				p.restart(t)
				report.Reenrolled++
				continue
			}
			candidates = append(candidates, healthCandidate{t, t.attempt, t.state, t.currentSource})
		case domain.ImageStateFallback:
			candidates = append(candidates, healthCandidate{t, t.attempt, t.state, t.originalSource})
		case domain.ImageStateFailed:
			// Nothing to load at enrollment; pick up a source added since.
			if t.counted == domain.ImageStateFailed {
				if src, ok := t.el.Attr(dom.AttrDeferredSource); ok && strings.TrimSpace(src) != "" {
					t.originalSource = strings.TrimSpace(src)
					p.restart(t)
					report.Reenrolled++
				}
			}
		}
	}
	p.mu.Unlock()

	report.Checked = len(candidates)
	if len(candidates) == 0 {
		return report
	}

	probes := pool.NewWithResults[healthOutcome]().WithMaxGoroutines(p.opts.MaxParallelChecks)
	for _, c := range candidates {
		probes.Go(func() healthOutcome {
			res, err := p.prober.Probe(ctx, c.url)
			return healthOutcome{healthCandidate: c, res: res, err: err}
		})
	}
	outcomes := probes.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range outcomes {
		t := o.task
		if !p.current(t, o.attempt) || t.state != o.state {
			continue
		}

		switch {
		case o.state == domain.ImageStateLoaded && o.err == nil:
			t.width, t.height = o.res.Width, o.res.Height
			report.Healthy++
		case o.state == domain.ImageStateLoaded:
			log.Warnf("⚠️ Loaded image %s is broken: %v", t.id, o.err)
			p.restart(t)
			report.Broken++
		case o.err == nil:
			t.attempt++
			p.markLoaded(t, o.url, o.res)
			report.Recovered++
		default:
			report.Degraded++
		}
	}

	log.Infof("🩺 Health check: %d checked, %d healthy, %d broken, %d recovered, %d still on fallback, %d re-enrolled",
		report.Checked, report.Healthy, report.Broken, report.Recovered, report.Degraded, report.Reenrolled)
	return report
}

// restart takes a settled task back to the network with a fresh budget.
// Callers hold p.mu.
func (p *Pipeline) restart(t *imageTask) {
	if t.counted == domain.ImageStateLoaded || t.counted == domain.ImageStateFailed {
		p.reporter.RecordRevalidating(t.counted)
		t.counted = ""
	}
	t.el.RemoveClass(dom.ClassLoaded)
	p.backoff.Reset(t.id)
	p.beginLoad(t)
}

// RunHealthChecks runs HealthCheck on every tick until ctx is done.
func (p *Pipeline) RunHealthChecks(ctx context.Context) error {
	ticker := p.clock.Ticker(p.opts.HealthCheckInterval)
	defer ticker.Stop()

	log.Infof("🩺 Health checks every %v", p.opts.HealthCheckInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.ctx.Done():
			return nil
		case <-ticker.C:
			p.HealthCheck(ctx)
		}
	}
}

func hasSource(el *dom.Element) bool {
	src, ok := el.Attr("src")
	return ok && strings.TrimSpace(src) != ""
}
