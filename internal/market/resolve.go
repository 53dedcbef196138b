package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/forecastlab/settle-engine/internal/events"
	"github.com/forecastlab/settle-engine/internal/metrics"
	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
)

// Resolve settles an expired PRICE market against the price adapter.
// Permissionless: the adapter is the authority, the caller only pulls
// the trigger. Final value at or above target resolves YES.
func (e *Engine) Resolve(ctx context.Context, marketID uint64, caller string) (*model.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.expiredActiveMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.Kind != model.KindPrice {
		return nil, fmt.Errorf("%w: resolve applies to %s, market %d is %s",
			ErrKindMismatch, model.KindPrice, marketID, m.Kind)
	}
	if err := e.policy.AllowResolve(m.Kind, caller); err != nil {
		return nil, err
	}

	final, err := e.price.FreshValue(m.FeedKey, e.cfg.StalenessWindow)
	if err != nil {
		return nil, err
	}
	return e.settleOutcome(ctx, m, final)
}

// ResolveManual settles an expired SOCIAL_METRIC market with a value
// attested by an authorized resolver.
func (e *Engine) ResolveManual(ctx context.Context, marketID uint64, caller string, finalValue int64) (*model.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.resolveManualLocked(ctx, marketID, caller, finalValue)
}

// BatchOutcome is one entry of a ResolveBatch result.
type BatchOutcome struct {
	MarketID uint64             `json:"market_id"`
	Status   model.MarketStatus `json:"status,omitempty"`
	Err      string             `json:"error,omitempty"`
}

// ResolveBatch applies ResolveManual across several markets in one
// serialized pass. Per-market failures are reported, not fatal: one
// bad entry must not strand the rest of the batch.
func (e *Engine) ResolveBatch(ctx context.Context, caller string, finals map[uint64]int64) []BatchOutcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]BatchOutcome, 0, len(finals))
	for id, v := range finals {
		m, err := e.resolveManualLocked(ctx, id, caller, v)
		if err != nil {
			out = append(out, BatchOutcome{MarketID: id, Err: err.Error()})
			continue
		}
		out = append(out, BatchOutcome{MarketID: id, Status: m.Status})
	}
	return out
}

func (e *Engine) resolveManualLocked(ctx context.Context, marketID uint64, caller string, finalValue int64) (*model.Market, error) {
	m, err := e.expiredActiveMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.Kind != model.KindSocialMetric {
		return nil, fmt.Errorf("%w: resolveManual applies to %s, market %d is %s",
			ErrKindMismatch, model.KindSocialMetric, marketID, m.Kind)
	}
	if err := e.policy.AllowResolve(m.Kind, caller); err != nil {
		return nil, err
	}
	return e.settleOutcome(ctx, m, finalValue)
}

// ResolveWithFeed settles an expired CHAIN_METRIC market against the
// chain adapter. The caller names the native feed key; it must be one
// of the keys the market's metric maps to. Permissionless.
func (e *Engine) ResolveWithFeed(ctx context.Context, marketID uint64, caller, feedKey string) (*model.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.expiredActiveMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if m.Kind != model.KindChainMetric {
		return nil, fmt.Errorf("%w: resolveWithFeed applies to %s, market %d is %s",
			ErrKindMismatch, model.KindChainMetric, marketID, m.Kind)
	}
	if err := e.policy.AllowResolve(m.Kind, caller); err != nil {
		return nil, err
	}
	if !e.feedMapped(m.FeedKey, feedKey) {
		return nil, fmt.Errorf("%w: %s is not mapped for metric %s", ErrFeedMismatch, feedKey, m.FeedKey)
	}

	final, err := e.chain.FreshValue(feedKey, e.cfg.StalenessWindow)
	if err != nil {
		return nil, err
	}
	return e.settleOutcome(ctx, m, final)
}

// Void moves an expired market to VOIDED so holders can reclaim.
// Authorized resolvers may void any expired market; anyone may void
// once the market's oracle has been unusable (inactive, or stale
// beyond the grace period) — at that point waiting longer cannot help.
func (e *Engine) Void(ctx context.Context, marketID uint64, caller string) (*model.Market, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.expiredActiveMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	if !e.policy.AllowPrivilegedVoid(caller) && !e.oracleDead(m) {
		return nil, fmt.Errorf("%w: market %d oracle still usable", ErrVoidNotAllowed, marketID)
	}

	if err := e.store.SetMarketTerminal(ctx, marketID, model.StatusVoided, 0); err != nil {
		return nil, err
	}
	m.Status = model.StatusVoided

	metrics.ResolutionsTotal.WithLabelValues(string(model.StatusVoided)).Inc()
	e.log.Append(events.Voided{MarketID: m.ID})
	slog.Warn("market voided", "market", m.ID, "kind", m.Kind, "caller", caller)
	return m, nil
}

// settleOutcome applies the outcome rule and writes the terminal
// status. Caller holds the engine mutex and has verified expiry,
// kind, and authorization.
func (e *Engine) settleOutcome(ctx context.Context, m *model.Market, finalValue int64) (*model.Market, error) {
	status := model.StatusResolvedNo
	if finalValue >= m.TargetValue {
		status = model.StatusResolvedYes
	}

	if err := e.store.SetMarketTerminal(ctx, m.ID, status, finalValue); err != nil {
		return nil, err
	}
	m.Status = status
	m.ResolvedValue = finalValue

	metrics.ResolutionsTotal.WithLabelValues(string(status)).Inc()
	e.log.Append(events.Resolved{MarketID: m.ID, Outcome: status, FinalValue: finalValue})
	slog.Info("market resolved",
		"market", m.ID, "kind", m.Kind, "outcome", status,
		"final", finalValue, "target", m.TargetValue)
	return m, nil
}

// expiredActiveMarket loads a market and checks it is ACTIVE and past
// expiry. Caller holds the engine mutex.
func (e *Engine) expiredActiveMarket(ctx context.Context, marketID uint64) (*model.Market, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrMarketNotFound, marketID)
	}
	if m.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: %d is %s", ErrMarketNotActive, marketID, m.Status)
	}
	if !e.expired(m) {
		return nil, fmt.Errorf("%w: %d", ErrMarketNotExpired, marketID)
	}
	return m, nil
}

// feedMapped reports whether native is one of the keys metric maps to.
func (e *Engine) feedMapped(metric, native string) bool {
	for _, k := range e.cfg.FeedAliases[metric] {
		if k == native {
			return true
		}
	}
	return false
}

// oracleDead reports whether the market's oracle can no longer produce
// a trustworthy value: feed missing or inactive, or last write older
// than staleness window plus grace period.
func (e *Engine) oracleDead(m *model.Market) bool {
	deadline := e.cfg.StalenessWindow + e.cfg.VoidGracePeriod

	switch m.Kind {
	case model.KindPrice:
		_, err := e.price.FreshValue(m.FeedKey, deadline)
		return err != nil
	case model.KindChainMetric:
		natives := e.cfg.FeedAliases[m.FeedKey]
		for _, k := range natives {
			if _, err := e.chain.FreshValue(k, deadline); err == nil {
				return false
			}
		}
		return true
	case model.KindSocialMetric:
		// No in-process oracle to consult; only the grace period after
		// expiry matters.
		return e.now().Sub(m.EndTime) > e.cfg.VoidGracePeriod
	}
	return false
}

// IsStateConflict reports whether err is one of the benign races a
// keeper should skip rather than retry.
func IsStateConflict(err error) bool {
	return errors.Is(err, ErrMarketNotActive) ||
		errors.Is(err, ErrMarketNotExpired) ||
		errors.Is(err, ErrVoidNotAllowed) ||
		errors.Is(err, oracle.ErrStaleValue)
}
