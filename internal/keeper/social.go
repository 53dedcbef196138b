package keeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forecastlab/settle-engine/internal/model"
)

// SocialKeeper resolves expired SOCIAL_METRIC markets: it reads each
// post's final metric from the content platform and submits the whole
// sweep as one privileged batch. Requires the engine client to carry
// an authorized resolver key.
type SocialKeeper struct {
	client *EngineClient
	source ContentSource
}

// NewSocialKeeper creates the social keeper.
func NewSocialKeeper(client *EngineClient, source ContentSource) *SocialKeeper {
	return &SocialKeeper{client: client, source: source}
}

// Name implements Ticker.
func (k *SocialKeeper) Name() string { return "social-keeper" }

// RunTick collects final values for every expired social market and
// resolves them in one batch. A post whose metric cannot be read is
// left for the next tick.
func (k *SocialKeeper) RunTick(ctx context.Context) error {
	markets, err := k.client.ActiveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}

	finals := make(map[uint64]int64)
	var firstErr error
	for _, m := range markets {
		if m.Kind != model.KindSocialMetric || m.SocialMeta == nil {
			continue
		}
		expired, err := k.client.IsExpired(ctx, m.ID)
		if err != nil || !expired {
			continue
		}

		value, err := k.source.MetricValue(ctx, m.SocialMeta.PostID, m.SocialMeta.Metric)
		if err != nil {
			slog.Warn("content metric fetch failed",
				"market", m.ID, "post", m.SocialMeta.PostID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		finals[m.ID] = value
	}

	if len(finals) == 0 {
		return firstErr
	}

	if err := k.client.ResolveBatch(ctx, finals); err != nil {
		if errors.Is(err, ErrStateConflict) {
			return firstErr
		}
		return fmt.Errorf("resolve batch: %w", err)
	}
	slog.Info("social markets resolved", "count", len(finals))
	return firstErr
}
