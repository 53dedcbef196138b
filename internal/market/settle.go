package market

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/events"
	"github.com/forecastlab/settle-engine/internal/metrics"
	"github.com/forecastlab/settle-engine/internal/model"
)

var half = decimal.NewFromFloat(0.5)

// ClaimWinnings pays out the winning side of a resolved market: one
// collateral unit per winning share. Losing shares are worthless. The
// position is zeroed inside the same serialized section as the credit,
// so a repeated claim pays zero rather than double.
func (e *Engine) ClaimWinnings(ctx context.Context, marketID uint64, participant string) (decimal.Decimal, error) {
	if participant == "" {
		return decimal.Zero, ErrParticipantRequired
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrMarketNotFound, marketID)
	}

	var winning model.Side
	switch m.Status {
	case model.StatusResolvedYes:
		winning = model.SideYes
	case model.StatusResolvedNo:
		winning = model.SideNo
	default:
		return decimal.Zero, fmt.Errorf("%w: %d is %s", ErrMarketNotResolved, marketID, m.Status)
	}

	pos, err := e.store.GetPosition(ctx, marketID, participant)
	if err != nil {
		return decimal.Zero, err
	}
	payout := pos.Shares(winning)

	return e.payOut(ctx, m, pos, participant, payout, "claim")
}

// ReclaimVoided refunds both sides of a voided market at 50 cents per
// share: a YES/NO pair was minted from one collateral unit, so the
// pair refunds one unit regardless of which side a holder kept.
// Idempotent the same way ClaimWinnings is.
func (e *Engine) ReclaimVoided(ctx context.Context, marketID uint64, participant string) (decimal.Decimal, error) {
	if participant == "" {
		return decimal.Zero, ErrParticipantRequired
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %d", ErrMarketNotFound, marketID)
	}
	if m.Status != model.StatusVoided {
		return decimal.Zero, fmt.Errorf("%w: %d is %s", ErrMarketNotVoided, marketID, m.Status)
	}

	pos, err := e.store.GetPosition(ctx, marketID, participant)
	if err != nil {
		return decimal.Zero, err
	}
	refund := pos.YesShares.Add(pos.NoShares).Mul(half)

	return e.payOut(ctx, m, pos, participant, refund, "reclaim")
}

// payOut zeroes the position and credits the payout. A zero payout
// (nothing held, or already settled) writes nothing and emits nothing.
// Caller holds the engine mutex.
func (e *Engine) payOut(ctx context.Context, m *model.Market, pos *model.Position, participant string, payout decimal.Decimal, path string) (decimal.Decimal, error) {
	if pos.Empty() {
		return decimal.Zero, nil
	}

	pos.YesShares = decimal.Zero
	pos.NoShares = decimal.Zero
	if err := e.store.PutPosition(ctx, pos); err != nil {
		return decimal.Zero, err
	}

	if payout.IsPositive() {
		bal, err := e.store.GetBalance(ctx, participant)
		if err != nil {
			return decimal.Zero, err
		}
		if err := e.store.SetBalance(ctx, participant, bal.Add(payout)); err != nil {
			return decimal.Zero, err
		}
	}

	metrics.ClaimsTotal.WithLabelValues(path).Inc()
	e.log.Append(events.Claimed{MarketID: m.ID, Participant: participant, Payout: payout})
	slog.Info("settlement paid",
		"market", m.ID, "participant", participant,
		"path", path, "payout", payout.String())
	return payout, nil
}
