package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!DOCTYPE html>
<html><body>
<section id="gallery">
  <div class="card"><img alt="Xiapu sunrise" data-src="https://cdn.example/sunrise.jpg"></div>
  <div class="card"><img alt="Seafood platter" src="https://cdn.example/seafood.jpg"></div>
</section>
</body></html>`

func TestDocumentImages(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	images := doc.Images()
	require.Len(t, images, 2)

	src, ok := images[0].Attr(AttrDeferredSource)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example/sunrise.jpg", src)
	assert.Equal(t, "Seafood platter", images[1].Alt())
	assert.True(t, images[0].IsImage())
	assert.True(t, images[0].Attached())
}

func TestElementAttributesAndClasses(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)
	img := doc.Images()[0]

	img.SetAttr(AttrProcessed, "true")
	img.AddClass(ClassFallback)
	assert.True(t, img.HasClass(ClassFallback))

	img.RemoveClass(ClassFallback)
	img.RemoveAttr(AttrDeferredSource)
	assert.False(t, img.HasClass(ClassFallback))
	_, ok := img.Attr(AttrDeferredSource)
	assert.False(t, ok)

	// A second handle sees the same node.
	again := doc.Images()[0]
	assert.Same(t, img.Node(), again.Node())
	v, _ := again.Attr(AttrProcessed)
	assert.Equal(t, "true", v)
}

func TestDocumentInsertNotifiesObservers(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	var got []Mutation
	stop := doc.Observe(func(m Mutation) { got = append(got, m) })

	added, err := doc.Insert("#gallery", `<div class="card"><img alt="Fisherman"></div><img alt="Kelp farm">`)
	require.NoError(t, err)
	require.Len(t, added, 2)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Added, 2)

	assert.Len(t, added[0].Images(), 1)
	assert.Len(t, added[1].Images(), 1)
	assert.Len(t, doc.Images(), 4)

	stop()
	_, err = doc.Insert("body", `<p>no images</p>`)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestDocumentInsertUnknownSelector(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	_, err = doc.Insert("#missing", `<img>`)
	require.ErrorIs(t, err, ErrNoMatch)
}

func TestDocumentRemove(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	var removed []*Element
	doc.Observe(func(m Mutation) { removed = append(removed, m.Removed...) })

	img := doc.Images()[1]
	doc.Remove(img)

	assert.False(t, img.Attached())
	require.Len(t, removed, 1)
	assert.Same(t, img.Node(), removed[0].Node())
	assert.Len(t, doc.Images(), 1)

	// Removing twice is a no-op.
	doc.Remove(img)
	assert.Len(t, removed, 1)
}

func TestRetryControl(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)
	img := doc.Images()[0]

	img.ShowRetryControl("task-1")
	img.ShowRetryControl("task-1")

	out, err := doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, `data-retry-for="task-1"`))

	img.HideRetryControl("task-1")
	out, err = doc.HTML()
	require.NoError(t, err)
	assert.Equal(t, 0, strings.Count(out, `data-retry-for="task-1"`))
}
