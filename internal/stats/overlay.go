package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"xiapu/imageguard/internal/state"
)

// LogOverlay writes the indicator text to the log whenever it changes.
type LogOverlay struct {
	mu   sync.Mutex
	last string
}

func NewLogOverlay() *LogOverlay {
	return &LogOverlay{}
}

func (o *LogOverlay) Render(_ context.Context, status Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if status.Text == o.last {
		return nil
	}
	o.last = status.Text

	if status.ShowRetryAll {
		log.Warnf("🖼️ %s (retry-all available)", status.Text)
	} else {
		log.Infof("🖼️ %s", status.Text)
	}
	return nil
}

const (
	StatusTextKey  = "status:text"
	StatusStatsKey = "status:stats"
)

// StoreOverlay mirrors the indicator into a key-value store so other
// processes can display it.
type StoreOverlay struct {
	store state.Store
}

func NewStoreOverlay(store state.Store) *StoreOverlay {
	return &StoreOverlay{store: store}
}

func (o *StoreOverlay) Render(ctx context.Context, status Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}

	if err := o.store.Set(ctx, StatusTextKey, status.Text); err != nil {
		return err
	}
	return o.store.Set(ctx, StatusStatsKey, string(payload))
}
