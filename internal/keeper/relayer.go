package keeper

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
)

// PriceRelayer pushes quotes into the engine's price adapter and
// triggers resolution of expired PRICE markets. With a signing key set
// it submits attested values; otherwise it uses the plain batch path.
type PriceRelayer struct {
	client  *EngineClient
	source  PriceSource
	feeds   []string
	signKey *ecdsa.PrivateKey
	now     func() time.Time
}

// NewPriceRelayer creates the relayer for a fixed feed list. signKey
// may be nil; pass nil for now to use the wall clock.
func NewPriceRelayer(client *EngineClient, source PriceSource, feeds []string, signKey *ecdsa.PrivateKey, now func() time.Time) *PriceRelayer {
	if now == nil {
		now = time.Now
	}
	return &PriceRelayer{
		client:  client,
		source:  source,
		feeds:   feeds,
		signKey: signKey,
		now:     now,
	}
}

// Name implements Ticker.
func (r *PriceRelayer) Name() string { return "price-relayer" }

// RunTick relays every configured feed, then sweeps expired PRICE
// markets. A failed quote skips that feed; a state conflict on resolve
// means another keeper won the race.
func (r *PriceRelayer) RunTick(ctx context.Context) error {
	var firstErr error

	batch := make(map[string]int64, len(r.feeds))
	for _, feed := range r.feeds {
		value, err := r.source.Quote(ctx, feed)
		if err != nil {
			slog.Warn("quote fetch failed", "feed", feed, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		batch[feed] = value
	}

	if err := r.submit(ctx, batch); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}

	if err := r.sweepExpired(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (r *PriceRelayer) submit(ctx context.Context, batch map[string]int64) error {
	if len(batch) == 0 {
		return nil
	}

	if r.signKey == nil {
		if err := r.client.SubmitPriceBatch(ctx, batch); err != nil {
			return fmt.Errorf("submit batch: %w", err)
		}
		slog.Debug("price batch relayed", "feeds", len(batch))
		return nil
	}

	ts := r.now().Unix()
	for feed, value := range batch {
		att, err := oracle.SignAttestation(r.signKey, feed, value, ts)
		if err != nil {
			return err
		}
		if err := r.client.SubmitAttested(ctx, att); err != nil {
			return fmt.Errorf("submit attested %s: %w", feed, err)
		}
	}
	slog.Debug("attested prices relayed", "feeds", len(batch))
	return nil
}

func (r *PriceRelayer) sweepExpired(ctx context.Context) error {
	markets, err := r.client.ActiveMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list markets: %w", err)
	}

	var firstErr error
	for _, m := range markets {
		if m.Kind != model.KindPrice {
			continue
		}
		expired, err := r.client.IsExpired(ctx, m.ID)
		if err != nil || !expired {
			continue
		}

		resolved, err := r.client.Resolve(ctx, m.ID)
		if err != nil {
			if errors.Is(err, ErrStateConflict) {
				continue // raced another keeper, or feed momentarily stale
			}
			slog.Error("resolve failed", "market", m.ID, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		slog.Info("price market resolved", "market", m.ID, "outcome", resolved.Status)
	}
	return firstErr
}
