package domain

import "time"

// ImageState is the lifecycle position of a managed image.
type ImageState string

const (
	ImageStateUnobserved ImageState = "unobserved" // Discovered, not yet classified
	ImageStatePending    ImageState = "pending"    // Waiting to become visible
	ImageStateLoading    ImageState = "loading"    // Probe in flight
	ImageStateLoaded     ImageState = "loaded"     // Remote source shown
	ImageStateFallback   ImageState = "fallback"   // Local placeholder shown, retryable
	ImageStateFailed     ImageState = "failed"     // Attempt failed, or nothing to load at all
)

func (s ImageState) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsSettled reports whether the state no longer waits on the network.
func (s ImageState) IsSettled() bool {
	switch s {
	case ImageStateLoaded, ImageStateFallback, ImageStateFailed:
		return true
	}
	return false
}

// ImageTask is a read-only snapshot of one managed image.
type ImageTask struct {
	ID             string     `json:"id"`
	Category       Category   `json:"category"`
	Alt            string     `json:"alt,omitempty"`
	OriginalSource string     `json:"original_source,omitempty"`
	CurrentSource  string     `json:"current_source,omitempty"`
	State          ImageState `json:"state"`
	RetryCount     int        `json:"retry_count"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	EnrolledAt     time.Time  `json:"enrolled_at"`
}

// Stats are the process-wide counters of the pipeline.
type Stats struct {
	Total    int `json:"total"`
	Loaded   int `json:"loaded"`
	Failed   int `json:"failed"`
	Fallback int `json:"fallback"`
	Online   int `json:"online"`
}

// Settled is the number of tasks that no longer wait on the network.
func (s Stats) Settled() int {
	return s.Loaded + s.Failed + s.Fallback
}
