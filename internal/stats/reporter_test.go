package stats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xiapu/imageguard/internal/domain"
	"xiapu/imageguard/internal/state"
)

type recordingOverlay struct {
	mu       sync.Mutex
	statuses []Status
	err      error
}

func (o *recordingOverlay) Render(_ context.Context, s Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, s)
	return o.err
}

func (o *recordingOverlay) last() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.statuses[len(o.statuses)-1]
}

func TestReporterWithoutOverlay(t *testing.T) {
	r := NewReporter()
	r.RecordObserved()
	r.RecordLoaded(false)
	r.RecordFallback()
	r.RecordFailed()

	want := domain.Stats{Total: 1, Loaded: 1, Online: 1, Fallback: 1, Failed: 1}
	if diff := cmp.Diff(want, r.Stats()); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
}

func TestReporterNilOverlayIsSkipped(t *testing.T) {
	r := NewReporter(nil)
	assert.NotPanics(t, func() { r.RecordObserved() })
}

func TestReporterRecordLoadedFromFallback(t *testing.T) {
	r := NewReporter()
	r.RecordObserved()
	r.RecordFallback()
	r.RecordLoaded(true)

	s := r.Stats()
	assert.Equal(t, 0, s.Fallback)
	assert.Equal(t, 1, s.Loaded)
	assert.Equal(t, 1, s.Online)
}

func TestReporterNeverNegative(t *testing.T) {
	r := NewReporter()
	r.RecordLoaded(true)
	r.RecordRemoved(domain.ImageStateFallback)
	r.RecordRemoved(domain.ImageStateFailed)
	r.RecordRevalidating(domain.ImageStateLoaded)
	r.RecordRevalidating(domain.ImageStateLoaded)

	s := r.Stats()
	assert.GreaterOrEqual(t, s.Total, 0)
	assert.GreaterOrEqual(t, s.Loaded, 0)
	assert.GreaterOrEqual(t, s.Online, 0)
	assert.GreaterOrEqual(t, s.Fallback, 0)
	assert.GreaterOrEqual(t, s.Failed, 0)
}

func TestReporterRemoved(t *testing.T) {
	r := NewReporter()
	r.RecordObserved()
	r.RecordObserved()
	r.RecordLoaded(false)
	r.RecordRemoved(domain.ImageStateLoaded)

	assert.Equal(t, domain.Stats{Total: 1}, r.Stats())
}

func TestReporterRendersEveryTransition(t *testing.T) {
	o := &recordingOverlay{err: errors.New("overlay gone")}
	r := NewReporter(o)

	r.RecordObserved()
	r.RecordObserved()
	assert.Equal(t, "Loading 0/2", o.last().Text)

	r.RecordLoaded(false)
	r.RecordFallback()

	last := o.last()
	assert.Equal(t, "1 online images, 1 fallback images", last.Text)
	assert.True(t, last.ShowRetryAll)
	assert.Len(t, o.statuses, 4)
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name  string
		stats domain.Stats
		text  string
		retry bool
	}{
		{"empty", domain.Stats{}, "No images", false},
		{"in progress", domain.Stats{Total: 5, Loaded: 2, Failed: 1}, "Loading 3/5", false},
		{"all online", domain.Stats{Total: 2, Loaded: 2, Online: 2}, "2 online images", false},
		{"with fallback", domain.Stats{Total: 3, Loaded: 2, Online: 2, Fallback: 1}, "2 online images, 1 fallback images", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Describe(tt.stats)
			assert.Equal(t, tt.text, s.Text)
			assert.Equal(t, tt.retry, s.ShowRetryAll)
		})
	}
}

func TestStoreOverlay(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	r := NewReporter(NewStoreOverlay(store), NewLogOverlay())

	r.RecordObserved()
	r.RecordLoaded(false)

	text, ok, err := store.Get(ctx, StatusTextKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1 online images", text)

	raw, ok, err := store.Get(ctx, StatusStatsKey)
	require.NoError(t, err)
	require.True(t, ok)

	var got Status
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, 1, got.Stats.Loaded)
}
