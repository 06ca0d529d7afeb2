package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

// A forward proxy for plain HTTP only has to answer absolute-form requests.
func fakeProxy(t *testing.T, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSupplierKeepsWorkingProxies(t *testing.T) {
	good := fakeProxy(t, http.StatusOK)
	blocked := fakeProxy(t, http.StatusForbidden)
	other := fakeProxy(t, http.StatusOK)

	s := NewSupplier(context.Background(),
		[]string{good.URL, blocked.URL, "http://127.0.0.1:1", other.URL},
		"http://images.example/probe.png")

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, good.URL, s.Get())
	assert.Equal(t, other.URL, s.Get())
	assert.Equal(t, good.URL, s.Get())
}

func TestSupplierWithoutProxies(t *testing.T) {
	s := NewSupplier(context.Background(), nil, "http://images.example/probe.png")
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.Get())
}
