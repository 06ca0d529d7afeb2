package watcher

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"xiapu/imageguard/internal/dom"
)

// Enroller takes images under management and lets them go again.
type Enroller interface {
	Enroll(el *dom.Element) bool
	Forget(el *dom.Element) int
}

// Watcher feeds images inserted into a document to the pipeline and prunes
// the ones that leave it.
type Watcher struct {
	doc      *dom.Document
	enroller Enroller

	mu          sync.Mutex
	unsubscribe func()
}

func New(doc *dom.Document, enroller Enroller) *Watcher {
	return &Watcher{
		doc:      doc,
		enroller: enroller,
	}
}

// Start subscribes to the document. Calling it twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.unsubscribe != nil {
		return
	}
	w.unsubscribe = w.doc.Observe(w.handle)
	log.Info("👀 Watching document for new images")
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.unsubscribe == nil {
		return
	}
	w.unsubscribe()
	w.unsubscribe = nil
}

func (w *Watcher) handle(m dom.Mutation) {
	enrolled := 0
	for _, root := range m.Added {
		for _, img := range root.Images() {
			if _, done := img.Attr(dom.AttrProcessed); done {
				continue
			}
			if w.enroller.Enroll(img) {
				enrolled++
			}
		}
	}

	forgotten := 0
	for _, root := range m.Removed {
		forgotten += w.enroller.Forget(root)
	}

	if enrolled > 0 || forgotten > 0 {
		log.Debugf("👀 Mutation: %d images enrolled, %d forgotten", enrolled, forgotten)
	}
}
