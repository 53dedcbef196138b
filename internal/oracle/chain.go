package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/forecastlab/settle-engine/internal/model"
)

// Native feed keys served by the chain adapter. One external metric
// name may map to several of these; the resolver owns that mapping.
const (
	FeedGasPrice = "gas_price"
	FeedBaseFee  = "base_fee"
)

// Sample is one self-recorded snapshot of chain state. Gas values are
// in gwei.
type Sample struct {
	GasPrice int64     `json:"gas_price"`
	BaseFee  int64     `json:"base_fee"`
	Block    uint64    `json:"block"`
	At       time.Time `json:"at"`
}

// Sampler reads the current execution context. The production
// implementation queries an RPC node; tests use a static sampler.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// ChainAdapter self-samples chain statistics on Record calls. No
// external push is trusted for this adapter's truth: the only write
// path pulls from the Sampler. Snapshots are append-only.
type ChainAdapter struct {
	mu        sync.RWMutex
	sampler   Sampler
	now       func() time.Time
	snapshots []Sample
	latest    Sample
	recorded  bool
}

// NewChainAdapter creates a chain-metric adapter over the sampler.
// Pass nil for now to use the wall clock.
func NewChainAdapter(sampler Sampler, now func() time.Time) *ChainAdapter {
	if now == nil {
		now = time.Now
	}
	return &ChainAdapter{sampler: sampler, now: now}
}

// Record captures the current chain state into the snapshot log and
// updates the latest accessors. The reported block height never
// decreases even if the sampler briefly serves an older view.
func (a *ChainAdapter) Record(ctx context.Context) (Sample, error) {
	s, err := a.sampler.Sample(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("chain sample: %w", err)
	}
	s.At = a.now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if s.Block < a.latest.Block {
		s.Block = a.latest.Block
	}
	a.snapshots = append(a.snapshots, s)
	a.latest = s
	a.recorded = true

	slog.Debug("chain state recorded",
		"block", s.Block, "gas_price", s.GasPrice, "base_fee", s.BaseFee)
	return s, nil
}

// Value implements Adapter for the native keys.
func (a *ChainAdapter) Value(feedKey string) (model.OracleValue, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.recorded {
		return model.OracleValue{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feedKey)
	}

	v := model.OracleValue{FeedKey: feedKey, UpdatedAt: a.latest.At, Active: true}
	switch feedKey {
	case FeedGasPrice:
		v.Value = a.latest.GasPrice
	case FeedBaseFee:
		v.Value = a.latest.BaseFee
	default:
		return model.OracleValue{}, fmt.Errorf("%w: %s", ErrFeedNotFound, feedKey)
	}
	return v, nil
}

// FreshValue implements Adapter.
func (a *ChainAdapter) FreshValue(feedKey string, window time.Duration) (int64, error) {
	v, err := a.Value(feedKey)
	if err != nil {
		return 0, err
	}
	if a.now().Sub(v.UpdatedAt) > window {
		return 0, fmt.Errorf("%w: %s recorded at %s", ErrStaleValue, feedKey, v.UpdatedAt)
	}
	return v.Value, nil
}

// LatestBlock returns the highest block height seen so far. Zero until
// the first Record. Monotonic, which keeps block-window expiry
// monotonic too.
func (a *ChainAdapter) LatestBlock() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.latest.Block
}

// Snapshots returns a copy of the append-only snapshot log.
func (a *ChainAdapter) Snapshots() []Sample {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Sample, len(a.snapshots))
	copy(out, a.snapshots)
	return out
}
