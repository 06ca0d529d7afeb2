package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestControllerBudget(t *testing.T) {
	c := NewController(2, time.Second)

	assert.True(t, c.ShouldRetry("a"))
	assert.Equal(t, 1*time.Second, c.RecordFailure("a"))
	assert.True(t, c.ShouldRetry("a"))
	assert.Equal(t, 2*time.Second, c.RecordFailure("a"))
	assert.False(t, c.ShouldRetry("a"))

	// Capped at the maximum.
	c.RecordFailure("a")
	assert.Equal(t, 2, c.Count("a"))

	// Other ids are independent.
	assert.True(t, c.ShouldRetry("b"))
	assert.Equal(t, 0, c.Count("b"))
}

func TestControllerReset(t *testing.T) {
	c := NewController(2, 10*time.Millisecond)

	c.RecordFailure("a")
	c.RecordFailure("a")
	assert.False(t, c.ShouldRetry("a"))

	c.Reset("a")
	assert.True(t, c.ShouldRetry("a"))
	assert.Equal(t, 0, c.Count("a"))
	assert.Equal(t, 10*time.Millisecond, c.RecordFailure("a"))
}

func TestControllerZeroRetries(t *testing.T) {
	c := NewController(-1, time.Second)
	assert.Equal(t, 0, c.MaxRetries())
	assert.False(t, c.ShouldRetry("a"))
}
