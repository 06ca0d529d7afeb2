package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"xiapu/imageguard/internal/category"
	"xiapu/imageguard/internal/client"
	"xiapu/imageguard/internal/dom"
	"xiapu/imageguard/internal/domain"
	"xiapu/imageguard/internal/retry"
	"xiapu/imageguard/internal/stats"
	"xiapu/imageguard/internal/viewport"
)

var (
	ErrTaskNotFound  = errors.New("image task not found")
	ErrNotInFallback = errors.New("image task is not showing a fallback")
	ErrClosed        = errors.New("pipeline is closed")
)

const (
	fallbackStyle = "filter: sepia(0.2) opacity(0.9)"
	fallbackTitle = "Fallback image - the original failed to load, click to retry"
)

type Options struct {
	RetryAllStagger     time.Duration
	HealthCheckInterval time.Duration
	MaxParallelChecks   int
	Clock               clock.Clock
}

type imageTask struct {
	id             string
	seq            int
	el             *dom.Element
	category       domain.Category
	alt            string
	originalSource string
	currentSource  string
	state          domain.ImageState
	width, height  int
	enrolledAt     time.Time

	// Bucket the task currently occupies in the stats, "" for none.
	counted domain.ImageState

	// Bumped whenever in-flight work for the task must be dropped.
	attempt uint64
	removed bool

	styled     bool
	savedStyle *string
	savedTitle *string
}

// Pipeline decides what every <img> of a document shows.
type Pipeline struct {
	doc      *dom.Document
	resolver *category.Resolver
	prober   client.Prober
	backoff  *retry.Controller
	reporter *stats.Reporter
	observer viewport.Observer
	clock    clock.Clock
	opts     Options

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inflight atomic.Int64

	mu     sync.Mutex
	tasks  map[*html.Node]*imageTask
	byID   map[string]*imageTask
	seq    int
	closed bool
}

// NewPipeline wires the collaborators. A nil observer means every image
// is loaded eagerly.
func NewPipeline(
	doc *dom.Document,
	resolver *category.Resolver,
	prober client.Prober,
	backoff *retry.Controller,
	reporter *stats.Reporter,
	observer viewport.Observer,
	opts Options,
) *Pipeline {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.HealthCheckInterval <= 0 {
		opts.HealthCheckInterval = 30 * time.Second
	}
	if opts.MaxParallelChecks <= 0 {
		opts.MaxParallelChecks = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pipeline{
		doc:      doc,
		resolver: resolver,
		prober:   prober,
		backoff:  backoff,
		reporter: reporter,
		observer: observer,
		clock:    opts.Clock,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		tasks:    make(map[*html.Node]*imageTask),
		byID:     make(map[string]*imageTask),
	}
}

// Start enrolls every image already in the document and returns how many
// were new.
func (p *Pipeline) Start() int {
	enrolled := 0
	for _, el := range p.doc.Images() {
		if p.Enroll(el) {
			enrolled++
		}
	}

	mode := "lazy"
	if p.observer == nil {
		mode = "eager"
	}
	log.Infof("🖼️ Image pipeline started with %d images (%s loading)", enrolled, mode)
	return enrolled
}

// Enroll takes an <img> under management. It returns false when the
// element is not an image or is already managed.
func (p *Pipeline) Enroll(el *dom.Element) bool {
	if !el.IsImage() {
		return false
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	if _, ok := p.tasks[el.Node()]; ok {
		p.mu.Unlock()
		return false
	}

	t := &imageTask{
		id:         uuid.NewString(),
		seq:        p.seq,
		el:         el,
		alt:        el.Alt(),
		state:      domain.ImageStateUnobserved,
		enrolledAt: p.clock.Now(),
	}
	p.seq++

	explicit, _ := el.Attr(dom.AttrImageType)
	t.category = p.resolver.Resolve(explicit, t.alt)

	el.SetAttr(dom.AttrProcessed, "true")
	el.SetAttr(dom.AttrImageID, t.id)
	p.tasks[el.Node()] = t
	p.byID[t.id] = t
	p.reporter.RecordObserved()

	lazy := p.assignSource(t)

	if t.originalSource == "" {
		p.failNoSource(t)
		p.mu.Unlock()
		return true
	}

	if lazy && p.observer != nil {
		t.state = domain.ImageStatePending
		attempt := t.attempt
		p.mu.Unlock()

		p.observer.Observe(el, func() { p.onVisible(t, attempt) })
		return true
	}

	p.beginLoad(t)
	p.mu.Unlock()
	return true
}

// assignSource picks the URL the task will try and reports whether it may
// wait for visibility.
func (p *Pipeline) assignSource(t *imageTask) bool {
	el := t.el

	if orig, ok := el.Attr(dom.AttrOriginalSource); ok && strings.TrimSpace(orig) != "" {
		t.originalSource = strings.TrimSpace(orig)
		t.currentSource, _ = el.Attr("src")
		return false
	}

	if deferred, ok := el.Attr(dom.AttrDeferredSource); ok {
		t.originalSource = strings.TrimSpace(deferred)
		return true
	}

	if src, ok := el.Attr("src"); ok && strings.TrimSpace(src) != "" {
		t.originalSource = strings.TrimSpace(src)
		t.currentSource = t.originalSource
		return false
	}

	if p.resolver.CanAssign() {
		t.originalSource = p.resolver.PickURL(t.category)
		el.SetAttr(dom.AttrDeferredSource, t.originalSource)
	}
	return true
}

func (p *Pipeline) onVisible(t *imageTask, attempt uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || t.removed || t.attempt != attempt || t.state != domain.ImageStatePending {
		return
	}
	p.beginLoad(t)
}

// beginLoad starts the probe and retry loop. Callers hold p.mu.
func (p *Pipeline) beginLoad(t *imageTask) {
	p.startAttempt(t, true)
}

// beginRetry re-probes the original source once. Callers hold p.mu.
func (p *Pipeline) beginRetry(t *imageTask) {
	p.startAttempt(t, false)
}

func (p *Pipeline) startAttempt(t *imageTask, withRetries bool) {
	t.state = domain.ImageStateLoading
	t.attempt++
	attempt := t.attempt
	url := t.originalSource

	p.spawn(func(ctx context.Context) {
		p.run(ctx, t, attempt, url, withRetries)
	})
}

// spawn runs fn on a tracked goroutine. Callers hold p.mu and have checked
// that the pipeline is open.
func (p *Pipeline) spawn(fn func(ctx context.Context)) {
	p.wg.Add(1)
	p.inflight.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inflight.Add(-1)
		fn(p.ctx)
	}()
}

func (p *Pipeline) run(ctx context.Context, t *imageTask, attempt uint64, url string, withRetries bool) {
	for {
		res, err := p.prober.Probe(ctx, url)

		p.mu.Lock()
		if !p.current(t, attempt) {
			p.mu.Unlock()
			return
		}

		if err == nil {
			p.markLoaded(t, url, res)
			p.mu.Unlock()
			return
		}

		if !withRetries || !p.backoff.ShouldRetry(t.id) {
			log.Warnf("❌ Image %s failed: %v", t.id, err)
			p.markFallback(t)
			p.mu.Unlock()
			return
		}

		delay := p.backoff.RecordFailure(t.id)
		t.state = domain.ImageStateFailed
		log.Debugf("🔄 Image %s failed, retry %d/%d in %v: %v",
			t.id, p.backoff.Count(t.id), p.backoff.MaxRetries(), delay, err)
		p.mu.Unlock()

		if !p.sleep(ctx, delay) {
			return
		}

		p.mu.Lock()
		if !p.current(t, attempt) {
			p.mu.Unlock()
			return
		}
		t.state = domain.ImageStateLoading
		p.mu.Unlock()
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := p.clock.Timer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// current reports whether results of the given attempt may still touch the
// task. Callers hold p.mu.
func (p *Pipeline) current(t *imageTask, attempt uint64) bool {
	return !p.closed && !t.removed && t.attempt == attempt && t.el.Attached()
}

// markLoaded shows the remote source. Callers hold p.mu.
func (p *Pipeline) markLoaded(t *imageTask, url string, res client.Result) {
	el := t.el
	el.SetAttr("src", url)
	el.RemoveAttr(dom.AttrDeferredSource)
	el.RemoveAttr(dom.AttrOriginalSource)
	el.AddClass(dom.ClassLoaded)
	p.clearFallbackLook(t)
	el.HideRetryControl(t.id)

	t.currentSource = url
	t.width, t.height = res.Width, res.Height
	t.state = domain.ImageStateLoaded
	p.backoff.Reset(t.id)

	switch t.counted {
	case domain.ImageStateLoaded:
	case domain.ImageStateFallback:
		p.reporter.RecordLoaded(true)
		log.Infof("✅ Image %s recovered from fallback", t.id)
	case domain.ImageStateFailed:
		p.reporter.RecordRevalidating(domain.ImageStateFailed)
		p.reporter.RecordLoaded(false)
	default:
		p.reporter.RecordLoaded(false)
	}
	t.counted = domain.ImageStateLoaded
}

// markFallback shows a local placeholder and the retry control. Callers
// hold p.mu.
func (p *Pipeline) markFallback(t *imageTask) {
	el := t.el
	if _, ok := el.Attr(dom.AttrOriginalSource); !ok {
		el.SetAttr(dom.AttrOriginalSource, t.originalSource)
	}

	if t.counted != domain.ImageStateFallback || t.currentSource == "" {
		t.currentSource = p.resolver.PickFallback(t.category.FallbackType())
	}
	el.SetAttr("src", t.currentSource)
	el.RemoveAttr(dom.AttrDeferredSource)
	el.RemoveClass(dom.ClassLoaded)
	p.applyFallbackLook(t)
	el.ShowRetryControl(t.id)

	t.width, t.height = 0, 0
	t.state = domain.ImageStateFallback

	switch t.counted {
	case domain.ImageStateFallback:
		return
	case domain.ImageStateLoaded, domain.ImageStateFailed:
		p.reporter.RecordRevalidating(t.counted)
	}
	p.reporter.RecordFallback()
	t.counted = domain.ImageStateFallback

	log.Warnf("⚠️ Image %s switched to fallback %s (original %s)", t.id, t.currentSource, t.originalSource)
}

// failNoSource handles an image with nothing to try. A placeholder is still
// shown. Callers hold p.mu.
func (p *Pipeline) failNoSource(t *imageTask) {
	el := t.el
	t.currentSource = p.resolver.PickFallback(t.category.FallbackType())
	el.SetAttr("src", t.currentSource)
	el.RemoveAttr(dom.AttrDeferredSource)
	p.applyFallbackLook(t)

	t.state = domain.ImageStateFailed
	if t.counted != domain.ImageStateFailed {
		p.reporter.RecordFailed()
		t.counted = domain.ImageStateFailed
	}

	log.Warnf("❌ Image %s (%q) has no source to load", t.id, t.alt)
}

func (p *Pipeline) applyFallbackLook(t *imageTask) {
	el := t.el
	if !t.styled {
		if v, ok := el.Attr("style"); ok {
			t.savedStyle = &v
		}
		if v, ok := el.Attr("title"); ok {
			t.savedTitle = &v
		}
		t.styled = true
	}
	el.AddClass(dom.ClassFallback)
	el.SetAttr("style", fallbackStyle)
	el.SetAttr("title", fallbackTitle)
}

func (p *Pipeline) clearFallbackLook(t *imageTask) {
	el := t.el
	el.RemoveClass(dom.ClassFallback)
	if !t.styled {
		return
	}

	restore := func(name string, saved *string) {
		if saved != nil {
			el.SetAttr(name, *saved)
		} else {
			el.RemoveAttr(name)
		}
	}
	restore("style", t.savedStyle)
	restore("title", t.savedTitle)
	t.styled, t.savedStyle, t.savedTitle = false, nil, nil
}

// Forget drops the tasks of a removed element and its image descendants
// and prunes them from the stats.
func (p *Pipeline) Forget(el *dom.Element) int {
	forgotten := 0
	for _, img := range el.Images() {
		p.mu.Lock()
		t, ok := p.tasks[img.Node()]
		if !ok {
			p.mu.Unlock()
			continue
		}

		t.removed = true
		t.attempt++
		delete(p.tasks, img.Node())
		delete(p.byID, t.id)
		p.backoff.Forget(t.id)
		p.reporter.RecordRemoved(t.counted)
		img.RemoveAttr(dom.AttrProcessed)
		p.doc.RemoveRetryControls(t.id)
		p.mu.Unlock()

		if p.observer != nil {
			p.observer.Unobserve(img)
		}
		forgotten++
		log.Debugf("🗑️ Image %s left the document", t.id)
	}
	return forgotten
}

// Remove detaches the element of a task from the document.
func (p *Pipeline) Remove(id string) error {
	p.mu.Lock()
	t, ok := p.byID[id]
	p.mu.Unlock()
	if !ok {
		return ErrTaskNotFound
	}

	p.doc.Remove(t.el)
	// Without a watcher nobody else prunes the task.
	p.Forget(t.el)
	return nil
}

func (p *Pipeline) Stats() domain.Stats {
	return p.reporter.Stats()
}

func (p *Pipeline) Status() stats.Status {
	return p.reporter.Status()
}

func (p *Pipeline) Tasks() []domain.ImageTask {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks := make([]*imageTask, 0, len(p.byID))
	for _, t := range p.byID {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].seq < tasks[j].seq })

	out := make([]domain.ImageTask, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, p.snapshot(t))
	}
	return out
}

func (p *Pipeline) Task(id string) (domain.ImageTask, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, ok := p.byID[id]
	if !ok {
		return domain.ImageTask{}, ErrTaskNotFound
	}
	return p.snapshot(t), nil
}

func (p *Pipeline) snapshot(t *imageTask) domain.ImageTask {
	return domain.ImageTask{
		ID:             t.id,
		Category:       t.category,
		Alt:            t.alt,
		OriginalSource: t.originalSource,
		CurrentSource:  t.currentSource,
		State:          t.state,
		RetryCount:     p.backoff.Count(t.id),
		Width:          t.width,
		Height:         t.height,
		EnrolledAt:     t.enrolledAt,
	}
}

// WaitIdle blocks until no probe, retry delay or staggered retry is in
// flight.
func (p *Pipeline) WaitIdle(ctx context.Context) error {
	ticker := p.clock.Ticker(20 * time.Millisecond)
	defer ticker.Stop()

	for p.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close cancels in-flight work and waits for it to return.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()

	if p.observer != nil {
		p.observer.Disconnect()
	}

	log.Info("🖼️ Image pipeline stopped")
	return nil
}
