package dom

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"golang.org/x/net/html"
)

// Attribute and class names that make up the element contract.
const (
	AttrDeferredSource = "data-src"
	AttrImageType      = "data-image-type"
	AttrProcessed      = "data-processed"
	AttrOriginalSource = "data-original-src"
	AttrImageID        = "data-image-id"
	AttrOffset         = "data-offset"
	AttrRetryFor       = "data-retry-for"

	ClassFallback  = "fallback-image"
	ClassLoaded    = "loaded"
	ClassRetryIcon = "retry-icon"
)

var ErrNoMatch = errors.New("selector matched nothing")

// Mutation is the record delivered to observers after the tree changes.
// Added and Removed hold the roots of the inserted or detached subtrees.
type Mutation struct {
	Added   []*Element
	Removed []*Element
}

// Document is an HTML page held in memory. All reads and writes of the
// underlying tree go through its lock.
type Document struct {
	mu  sync.Mutex
	doc *goquery.Document

	listenersMu sync.Mutex
	listeners   map[int]func(Mutation)
	nextID      int
}

func Parse(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	return &Document{
		doc:       doc,
		listeners: make(map[int]func(Mutation)),
	}, nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// Observe registers fn for every later mutation. The returned func
// unregisters it.
func (d *Document) Observe(fn func(Mutation)) func() {
	d.listenersMu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = fn
	d.listenersMu.Unlock()

	return func() {
		d.listenersMu.Lock()
		delete(d.listeners, id)
		d.listenersMu.Unlock()
	}
}

func (d *Document) notify(m Mutation) {
	d.listenersMu.Lock()
	fns := make([]func(Mutation), 0, len(d.listeners))
	for _, fn := range d.listeners {
		fns = append(fns, fn)
	}
	d.listenersMu.Unlock()

	for _, fn := range fns {
		fn(m)
	}
}

// Images returns every <img> currently attached, in document order.
func (d *Document) Images() []*Element {
	d.mu.Lock()
	defer d.mu.Unlock()

	var images []*Element
	d.doc.Find("img").Each(func(i int, s *goquery.Selection) {
		images = append(images, d.wrap(s.Get(0)))
	})
	return images
}

// Insert parses fragment and appends it to the first element matching
// selector, then notifies observers.
func (d *Document) Insert(selector, fragment string) ([]*Element, error) {
	d.mu.Lock()

	parent := d.doc.Find(selector).First()
	if parent.Length() == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoMatch, selector)
	}

	parentNode := parent.Get(0)
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parentNode)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	added := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		parentNode.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, d.wrap(n))
		}
	}
	d.mu.Unlock()

	log.Debugf("Inserted %d nodes under %s", len(added), selector)
	d.notify(Mutation{Added: added})
	return added, nil
}

// Remove detaches el from the tree and notifies observers.
func (d *Document) Remove(el *Element) {
	d.mu.Lock()
	if el.node.Parent == nil {
		d.mu.Unlock()
		return
	}
	el.node.Parent.RemoveChild(el.node)
	d.mu.Unlock()

	d.notify(Mutation{Removed: []*Element{el}})
}

// RemoveRetryControls drops every retry control of the task, wherever it
// ended up.
func (d *Document) RemoveRetryControls(taskID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find(retrySelector(taskID)).Remove()
}

// HTML renders the whole document.
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b strings.Builder
	if err := html.Render(&b, d.doc.Get(0)); err != nil {
		return "", fmt.Errorf("failed to render document: %w", err)
	}
	return b.String(), nil
}

func (d *Document) wrap(n *html.Node) *Element {
	return &Element{doc: d, node: n}
}

func (d *Document) root() *html.Node {
	return d.doc.Get(0)
}
