package client

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newImageServer(t *testing.T) *httptest.Server {
	t.Helper()

	photo := pngBytes(t, 64, 48)
	mux := http.NewServeMux()
	mux.HandleFunc("/photo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(photo)
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/page.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not an image</html>"))
	})
	mux.HandleFunc("/logo.svg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/svg+xml")
		_, _ = w.Write([]byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))
	})
	mux.HandleFunc("/slow.png", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestProbe(t *testing.T) {
	srv := newImageServer(t)

	p, err := NewProber(Options{SiteURL: srv.URL, Timeout: 300 * time.Millisecond})
	require.NoError(t, err)

	t.Run("decodes dimensions", func(t *testing.T) {
		res, err := p.Probe(context.Background(), srv.URL+"/photo.png")
		require.NoError(t, err)
		assert.Equal(t, 64, res.Width)
		assert.Equal(t, 48, res.Height)
		assert.Equal(t, "image/png", res.ContentType)
	})

	t.Run("resolves relative urls against the site", func(t *testing.T) {
		res, err := p.Probe(context.Background(), "/photo.png")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/photo.png", res.URL)
	})

	t.Run("http error is a network failure", func(t *testing.T) {
		_, err := p.Probe(context.Background(), srv.URL+"/missing.png")
		require.ErrorIs(t, err, ErrProbeNetwork)
	})

	t.Run("non image body is broken", func(t *testing.T) {
		_, err := p.Probe(context.Background(), srv.URL+"/page.html")
		require.ErrorIs(t, err, ErrBrokenImage)
	})

	t.Run("unknown image format accepted by content type", func(t *testing.T) {
		res, err := p.Probe(context.Background(), srv.URL+"/logo.svg")
		require.NoError(t, err)
		assert.Zero(t, res.Width)
	})

	t.Run("hung request times out", func(t *testing.T) {
		start := time.Now()
		_, err := p.Probe(context.Background(), srv.URL+"/slow.png")
		require.ErrorIs(t, err, ErrProbeTimeout)
		assert.Less(t, time.Since(start), 2*time.Second)
	})

	t.Run("unreachable host", func(t *testing.T) {
		_, err := p.Probe(context.Background(), "http://127.0.0.1:1/nothing.png")
		require.ErrorIs(t, err, ErrProbeNetwork)
	})
}

func TestProbeRelativeWithoutSite(t *testing.T) {
	p, err := NewProber(Options{Timeout: time.Second})
	require.NoError(t, err)

	_, err = p.Probe(context.Background(), "/images/a.png")
	require.ErrorIs(t, err, ErrProbeNetwork)
}

type listSupplier struct {
	proxies []string
	next    int
}

func (s *listSupplier) Get() string {
	p := s.proxies[s.next%len(s.proxies)]
	s.next++
	return p
}

func (s *listSupplier) Len() int { return len(s.proxies) }

func TestProbeSwitchesProxyAfterTransportError(t *testing.T) {
	photo := pngBytes(t, 4, 3)
	var hosts []string
	forward := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hosts = append(hosts, r.URL.Host)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(photo)
	}))
	t.Cleanup(forward.Close)

	proxies := &listSupplier{proxies: []string{"http://127.0.0.1:1", forward.URL}}
	p, err := NewProber(Options{Timeout: time.Second, Proxies: proxies})
	require.NoError(t, err)

	_, err = p.Probe(context.Background(), "http://images.example/a.png")
	require.ErrorIs(t, err, ErrProbeNetwork)

	res, err := p.Probe(context.Background(), "http://images.example/a.png")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Width)
	assert.Equal(t, []string{"images.example"}, hosts)
}
