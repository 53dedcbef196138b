package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
)

// ChainKeeper advances the chain-metric oracle and resolves expired
// CHAIN_METRIC markets. Each tick records one fresh sample first, so
// the resolution read is never stale when the RPC node is healthy.
type ChainKeeper struct {
	client *EngineClient
}

// NewChainKeeper creates the chain keeper.
func NewChainKeeper(client *EngineClient) *ChainKeeper {
	return &ChainKeeper{client: client}
}

// Name implements Ticker.
func (k *ChainKeeper) Name() string { return "chain-keeper" }

// RunTick records chain state, then resolves whatever the new block
// height has expired.
func (k *ChainKeeper) RunTick(ctx context.Context) error {
	sample, err := k.client.RecordChain(ctx)
	if err != nil {
		return fmt.Errorf("record chain state: %w", err)
	}
	slog.Debug("chain state recorded", "block", sample.Block, "gas_price", sample.GasPrice)

	markets, err := k.client.ActiveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}

	var firstErr error
	for _, m := range markets {
		if m.Kind != model.KindChainMetric {
			continue
		}
		if sample.Block < m.EndBlock {
			continue
		}

		resolved, err := k.client.ResolveWithFeed(ctx, m.ID, k.feedFor(m))
		if err != nil {
			if errors.Is(err, ErrStateConflict) {
				continue
			}
			slog.Error("chain resolve failed", "market", m.ID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		slog.Info("chain market resolved",
			"market", m.ID, "outcome", resolved.Status, "block", sample.Block)
	}
	return firstErr
}

// feedFor picks the native key for a market's metric. Gas questions
// settle on the node's suggested gas price unless the market asks for
// base fee explicitly.
func (k *ChainKeeper) feedFor(m model.Market) string {
	if m.ChainMeta != nil && m.ChainMeta.Metric == oracle.FeedBaseFee {
		return oracle.FeedBaseFee
	}
	return oracle.FeedGasPrice
}
