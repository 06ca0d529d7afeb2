package retry

import (
	"sync"
	"time"
)

// Controller keeps a bounded retry budget per task id.
type Controller struct {
	maxRetries int
	baseDelay  time.Duration

	mu     sync.Mutex
	counts map[string]int
}

func NewController(maxRetries int, baseDelay time.Duration) *Controller {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Controller{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		counts:     make(map[string]int),
	}
}

func (c *Controller) MaxRetries() int {
	return c.maxRetries
}

func (c *Controller) ShouldRetry(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id] < c.maxRetries
}

// RecordFailure bumps the counter and returns how long to wait before the
// next attempt. The delay grows linearly with the count.
func (c *Controller) RecordFailure(id string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := c.counts[id]
	if count < c.maxRetries {
		count++
		c.counts[id] = count
	}
	return c.baseDelay * time.Duration(count)
}

func (c *Controller) Count(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[id]
}

// Reset gives the task a fresh budget.
func (c *Controller) Reset(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.counts, id)
}

func (c *Controller) Forget(id string) {
	c.Reset(id)
}
