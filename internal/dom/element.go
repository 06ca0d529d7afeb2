package dom

import (
	"fmt"
	"html/template"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Element is a handle to one node of a Document. Handles are cheap and
// several may point at the same node; compare them with Node.
type Element struct {
	doc  *Document
	node *html.Node
}

// Node is the identity of the element within its document.
func (e *Element) Node() *html.Node {
	return e.node
}

func (e *Element) sel() *goquery.Selection {
	return goquery.NewDocumentFromNode(e.node).Selection
}

func (e *Element) Tag() string {
	return e.node.Data
}

func (e *Element) IsImage() bool {
	return e.node.Type == html.ElementNode && e.node.Data == "img"
}

func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.sel().Attr(name)
}

func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel().SetAttr(name, value)
}

func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel().RemoveAttr(name)
}

func (e *Element) HasClass(class string) bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.sel().HasClass(class)
}

func (e *Element) AddClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel().AddClass(class)
}

func (e *Element) RemoveClass(class string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	e.sel().RemoveClass(class)
}

func (e *Element) Alt() string {
	alt, _ := e.Attr("alt")
	return alt
}

// Attached reports whether the element is still part of its document.
func (e *Element) Attached() bool {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	n := e.node
	for n.Parent != nil {
		n = n.Parent
	}
	return n == e.doc.root()
}

// Images returns the element itself when it is an <img>, otherwise its
// <img> descendants.
func (e *Element) Images() []*Element {
	if e.IsImage() {
		return []*Element{e}
	}

	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	var images []*Element
	e.sel().Find("img").Each(func(i int, s *goquery.Selection) {
		images = append(images, e.doc.wrap(s.Get(0)))
	})
	return images
}

// ShowRetryControl appends a retry button for the task to the element's
// parent unless one is already there.
func (e *Element) ShowRetryControl(taskID string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if e.node.Parent == nil {
		return
	}

	parent := goquery.NewDocumentFromNode(e.node.Parent).Selection
	if parent.ChildrenFiltered(retrySelector(taskID)).Length() > 0 {
		return
	}

	id := template.HTMLEscapeString(taskID)
	parent.AppendHtml(fmt.Sprintf(
		`<button type="button" class="%s" %s="%s" title="Retry original image">&#8635;</button>`,
		ClassRetryIcon, AttrRetryFor, id,
	))
}

func (e *Element) HideRetryControl(taskID string) {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	if e.node.Parent == nil {
		return
	}

	goquery.NewDocumentFromNode(e.node.Parent).Selection.
		ChildrenFiltered(retrySelector(taskID)).
		Remove()
}

func retrySelector(taskID string) string {
	return fmt.Sprintf(`.%s[%s=%q]`, ClassRetryIcon, AttrRetryFor, taskID)
}
