package proxy

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"resty.dev/v3"
)

const maxParallelTests = 16

// Supplier hands out working proxies in round-robin order
type Supplier interface {
	Get() string
	Len() int
}

type supplier struct {
	mu      sync.Mutex
	proxies []string
	current int
}

// NewSupplier keeps the proxies that can fetch testURL, in their original
// order. An empty list yields a supplier that never returns a proxy.
func NewSupplier(ctx context.Context, proxies []string, testURL string) Supplier {
	if len(proxies) == 0 {
		return &supplier{}
	}

	log.Infof("🔄 Testing %d proxies in parallel...", len(proxies))

	tests := pool.NewWithResults[bool]().WithMaxGoroutines(maxParallelTests)
	for _, proxyURL := range proxies {
		tests.Go(func() bool {
			return isUsable(ctx, proxyURL, testURL)
		})
	}
	usable := tests.Wait()

	valid := make([]string, 0, len(proxies))
	for i, ok := range usable {
		if ok {
			valid = append(valid, proxies[i])
		}
	}

	log.Infof("✅ Proxy supplier initialized with %d working proxies out of %d tested", len(valid), len(proxies))
	return &supplier{proxies: valid}
}

// Get returns the next proxy URL, or "" when none is usable.
func (s *supplier) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.proxies) == 0 {
		return ""
	}

	p := s.proxies[s.current]
	s.current = (s.current + 1) % len(s.proxies)
	return p
}

func (s *supplier) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.proxies)
}

func isUsable(ctx context.Context, proxyURL, testURL string) bool {
	client := resty.New().
		SetTimeout(5*time.Second).
		SetRetryCount(0).
		SetProxy(proxyURL).
		SetTLSClientConfig(&tls.Config{
			InsecureSkipVerify: true,
		})

	resp, err := client.R().
		SetContext(ctx).
		Get(testURL)
	if err != nil {
		log.Infof("❌ Proxy %s is not working: %v", proxyURL, err)
		return false
	}
	if resp.IsError() {
		log.Infof("❌ Proxy %s is not working, status %s", proxyURL, resp.Status())
		return false
	}

	log.Debugf("✅ Proxy %s is working", proxyURL)
	return true
}
