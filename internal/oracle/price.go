package oracle

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forecastlab/settle-engine/internal/model"
)

// PriceAdapter caches externally pushed price values per feed key.
// Keepers relay quotes via Submit/SubmitBatch; resolution reads go
// through FreshValue so a stale relay can never settle a market.
// The clock is injected for testability.
type PriceAdapter struct {
	mu    sync.RWMutex
	feeds map[string]*model.OracleValue
	now   func() time.Time
}

// NewPriceAdapter creates an empty price adapter. Pass nil for now to
// use the wall clock.
func NewPriceAdapter(now func() time.Time) *PriceAdapter {
	if now == nil {
		now = time.Now
	}
	return &PriceAdapter{
		feeds: make(map[string]*model.OracleValue),
		now:   now,
	}
}

// Register creates (or reactivates) a feed key. Submissions against
// unregistered keys are rejected.
func (a *PriceAdapter) Register(feedKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if f, ok := a.feeds[feedKey]; ok {
		f.Active = true
		return
	}
	a.feeds[feedKey] = &model.OracleValue{FeedKey: feedKey, Active: true}
}

// Deactivate marks a feed untrusted. Its last value is kept for
// inspection but refused for resolution.
func (a *PriceAdapter) Deactivate(feedKey string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if f, ok := a.feeds[feedKey]; ok {
		f.Active = false
	}
}

// Submit stores a pushed value and stamps it with the adapter clock.
func (a *PriceAdapter) Submit(feedKey string, value int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, ok := a.feeds[feedKey]
	if !ok {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, feedKey)
	}
	if !f.Active {
		return fmt.Errorf("%w: %s", ErrFeedInactive, feedKey)
	}

	f.Value = value
	f.UpdatedAt = a.now()
	slog.Debug("price feed updated", "feed", feedKey, "value", value)
	return nil
}

// SubmitBatch stores several pushed values in one call. It fails on
// the first unregistered or inactive key, leaving earlier writes in
// place — each write is independently valid.
func (a *PriceAdapter) SubmitBatch(values map[string]int64) error {
	for key, v := range values {
		if err := a.Submit(key, v); err != nil {
			return err
		}
	}
	return nil
}

// Value implements Adapter.
func (a *PriceAdapter) Value(feedKey string) (model.OracleValue, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	f, ok := a.feeds[feedKey]
	if !ok {
		return model.OracleValue{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feedKey)
	}
	return *f, nil
}

// FreshValue implements Adapter. A value is usable for resolution only
// if the feed is active, has ever been written, and is no older than
// the window.
func (a *PriceAdapter) FreshValue(feedKey string, window time.Duration) (int64, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	f, ok := a.feeds[feedKey]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrFeedNotFound, feedKey)
	}
	if !f.Active {
		return 0, fmt.Errorf("%w: %s", ErrFeedInactive, feedKey)
	}
	if f.UpdatedAt.IsZero() || a.now().Sub(f.UpdatedAt) > window {
		return 0, fmt.Errorf("%w: %s updated at %s", ErrStaleValue, feedKey, f.UpdatedAt)
	}
	return f.Value, nil
}
