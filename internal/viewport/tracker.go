package viewport

import (
	"sort"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"xiapu/imageguard/internal/dom"
)

// Observer reports when an element comes within reach of the viewport.
// onVisible fires at most once per Observe call and may run synchronously
// inside Observe, so callers must not hold locks it needs.
type Observer interface {
	Observe(el *dom.Element, onVisible func())
	Unobserve(el *dom.Element)
	Disconnect()
}

type entry struct {
	offset    int
	onVisible func()
}

// Tracker lays elements out on a vertical axis and fires callbacks as the
// viewport scrolls over them.
type Tracker struct {
	height    int
	margin    int
	rowHeight int

	mu           sync.Mutex
	top          int
	order        int
	entries      map[*html.Node]*entry
	disconnected bool
}

func NewTracker(height, margin, rowHeight int) *Tracker {
	if rowHeight <= 0 {
		rowHeight = 1
	}
	return &Tracker{
		height:    height,
		margin:    margin,
		rowHeight: rowHeight,
		entries:   make(map[*html.Node]*entry),
	}
}

func (t *Tracker) Observe(el *dom.Element, onVisible func()) {
	offset := t.offsetOf(el)

	t.mu.Lock()
	if t.disconnected {
		t.mu.Unlock()
		return
	}
	if t.visible(offset) {
		t.mu.Unlock()
		onVisible()
		return
	}
	t.entries[el.Node()] = &entry{offset: offset, onVisible: onVisible}
	t.mu.Unlock()
}

func (t *Tracker) Unobserve(el *dom.Element) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, el.Node())
}

func (t *Tracker) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = true
	t.entries = make(map[*html.Node]*entry)
}

// Scroll moves the viewport top and fires callbacks for every element now
// in range, nearest first. It returns how many fired.
func (t *Tracker) Scroll(top int) int {
	t.mu.Lock()
	t.top = top

	var due []*entry
	for node, e := range t.entries {
		if t.visible(e.offset) {
			due = append(due, e)
			delete(t.entries, node)
		}
	}
	t.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].offset < due[j].offset })
	for _, e := range due {
		e.onVisible()
	}

	if len(due) > 0 {
		log.Debugf("Viewport at %d revealed %d images", top, len(due))
	}
	return len(due)
}

// Pending is the number of elements still waiting to become visible.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) offsetOf(el *dom.Element) int {
	if raw, ok := el.Attr(dom.AttrOffset); ok {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	offset := t.order * t.rowHeight
	t.order++
	return offset
}

func (t *Tracker) visible(offset int) bool {
	return offset+t.rowHeight >= t.top-t.margin &&
		offset <= t.top+t.height+t.margin
}
