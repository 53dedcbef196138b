// Package market is the transactional core of the settlement engine:
// market registry, constant-product trading, resolution, and
// settlement over a Store. Every state-changing call runs under one
// mutex, which gives keepers and traders the atomic, serialized
// execution the resolution protocol relies on — whichever call lands
// first wins, and later callers observe its writes.
package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/cpmm"
	"github.com/forecastlab/settle-engine/internal/events"
	"github.com/forecastlab/settle-engine/internal/metrics"
	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
	"github.com/forecastlab/settle-engine/internal/store"
)

// Config holds the engine's economic and policy parameters.
type Config struct {
	// SeedCollateral is the fixed collateral amount a creator posts.
	// Both pools open at this value, so every market opens at 50/50.
	SeedCollateral decimal.Decimal

	// FeeBps is the trade fee in basis points, retained in the pools.
	FeeBps int64

	// MinDuration is the minimum lifetime for time-bound markets.
	MinDuration time.Duration

	// MinBlockWindow is the minimum window for block-bound markets.
	MinBlockWindow uint64

	// StalenessWindow is the maximum age of an oracle value still
	// trusted for resolution.
	StalenessWindow time.Duration

	// VoidGracePeriod is how long past the staleness window a feed may
	// stay unusable before anyone may void the expired market.
	VoidGracePeriod time.Duration

	// FeedAliases maps a market's external metric name to the chain
	// adapter's native keys, e.g. ETH_GAS → {gas_price, base_fee}.
	FeedAliases map[string][]string
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		SeedCollateral:  decimal.NewFromInt(10),
		FeeBps:          200,
		MinDuration:     time.Hour,
		MinBlockWindow:  100,
		StalenessWindow: 5 * time.Minute,
		VoidGracePeriod: 24 * time.Hour,
		FeedAliases: map[string][]string{
			"ETH_GAS": {oracle.FeedGasPrice, oracle.FeedBaseFee},
		},
	}
}

// Engine owns the market registry, share ledger, and settlement paths.
type Engine struct {
	mu     sync.Mutex
	store  store.Store
	price  *oracle.PriceAdapter
	chain  *oracle.ChainAdapter
	log    *events.Log
	policy ResolutionPolicy
	cfg    Config
	now    func() time.Time
}

// NewEngine wires the engine. Pass nil for now to use the wall clock.
func NewEngine(st store.Store, price *oracle.PriceAdapter, chain *oracle.ChainAdapter, log *events.Log, policy ResolutionPolicy, cfg Config, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:  st,
		price:  price,
		chain:  chain,
		log:    log,
		policy: policy,
		cfg:    cfg,
		now:    now,
	}
}

// Events returns the engine's event log.
func (e *Engine) Events() *events.Log { return e.log }

// PriceOracle returns the price adapter for keeper submissions.
func (e *Engine) PriceOracle() *oracle.PriceAdapter { return e.price }

// ChainOracle returns the chain-metric adapter.
func (e *Engine) ChainOracle() *oracle.ChainAdapter { return e.chain }

// Deposit credits collateral to a participant's account.
func (e *Engine) Deposit(ctx context.Context, participant string, amount decimal.Decimal) (decimal.Decimal, error) {
	if participant == "" {
		return decimal.Zero, ErrParticipantRequired
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, ErrAmountNotPositive
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bal, err := e.store.GetBalance(ctx, participant)
	if err != nil {
		return decimal.Zero, err
	}
	newBal := bal.Add(amount)
	if err := e.store.SetBalance(ctx, participant, newBal); err != nil {
		return decimal.Zero, err
	}
	return newBal, nil
}

// Balance returns a participant's collateral balance.
func (e *Engine) Balance(ctx context.Context, participant string) (decimal.Decimal, error) {
	return e.store.GetBalance(ctx, participant)
}

// --- Market creation ---

// CreatePriceParams configures a PRICE market: value ≥ target at
// expiry resolves YES.
type CreatePriceParams struct {
	Creator     string
	FeedKey     string // price adapter feed key, e.g. "BTC_USD"
	Pair        string // display pair, e.g. "BTC/USD"
	Question    string
	TargetValue int64
	Duration    time.Duration
	Seed        decimal.Decimal // zero means the fixed seed amount
}

// CreateSocialParams configures a SOCIAL_METRIC market, resolved by an
// authorized resolver attesting the final metric value.
type CreateSocialParams struct {
	Creator       string
	PostID        string
	Author        string
	Metric        string
	Question      string
	TargetValue   int64
	SnapshotValue int64 // metric baseline at creation
	Duration      time.Duration
	Seed          decimal.Decimal
}

// CreateChainParams configures a CHAIN_METRIC market over a block
// window, resolved against the chain adapter.
type CreateChainParams struct {
	Creator     string
	Metric      string // external name, mapped via Config.FeedAliases
	Question    string
	TargetValue int64
	BlockWindow uint64
	Seed        decimal.Decimal
}

// CreatePriceMarket creates a PRICE market and registers its feed key
// on the price adapter so keeper submissions are accepted.
func (e *Engine) CreatePriceMarket(ctx context.Context, p CreatePriceParams) (*model.Market, error) {
	if p.Duration < e.cfg.MinDuration {
		return nil, fmt.Errorf("%w: %s < %s", ErrDurationTooShort, p.Duration, e.cfg.MinDuration)
	}

	m := &model.Market{
		Kind:      model.KindPrice,
		FeedKey:   p.FeedKey,
		Question:  p.Question,
		PriceMeta: &model.PriceMeta{Pair: p.Pair},
	}
	created, err := e.create(ctx, m, p.Creator, p.TargetValue, p.Seed, func(m *model.Market) {
		m.EndTime = e.now().Add(p.Duration)
	})
	if err != nil {
		return nil, err
	}
	e.price.Register(p.FeedKey)
	return created, nil
}

// CreateSocialMetricMarket creates a SOCIAL_METRIC market.
func (e *Engine) CreateSocialMetricMarket(ctx context.Context, p CreateSocialParams) (*model.Market, error) {
	if p.Duration < e.cfg.MinDuration {
		return nil, fmt.Errorf("%w: %s < %s", ErrDurationTooShort, p.Duration, e.cfg.MinDuration)
	}

	m := &model.Market{
		Kind:          model.KindSocialMetric,
		FeedKey:       p.PostID + ":" + p.Metric,
		Question:      p.Question,
		SnapshotValue: p.SnapshotValue,
		SocialMeta:    &model.SocialMeta{PostID: p.PostID, Author: p.Author, Metric: p.Metric},
	}
	return e.create(ctx, m, p.Creator, p.TargetValue, p.Seed, func(m *model.Market) {
		m.EndTime = e.now().Add(p.Duration)
	})
}

// CreateChainMetricMarket creates a CHAIN_METRIC market. The snapshot
// baseline is the adapter's current value for the metric's first
// mapped native key, zero when nothing has been recorded yet.
func (e *Engine) CreateChainMetricMarket(ctx context.Context, p CreateChainParams) (*model.Market, error) {
	if p.BlockWindow < e.cfg.MinBlockWindow {
		return nil, fmt.Errorf("%w: %d < %d", ErrBlockWindowTooShort, p.BlockWindow, e.cfg.MinBlockWindow)
	}
	natives, ok := e.cfg.FeedAliases[p.Metric]
	if !ok || len(natives) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFeedMismatch, p.Metric)
	}

	var snapshot int64
	if v, err := e.chain.Value(natives[0]); err == nil {
		snapshot = v.Value
	}

	m := &model.Market{
		Kind:          model.KindChainMetric,
		FeedKey:       p.Metric,
		Question:      p.Question,
		SnapshotValue: snapshot,
		ChainMeta:     &model.ChainMeta{Metric: p.Metric, BlockWindow: p.BlockWindow},
	}
	return e.create(ctx, m, p.Creator, p.TargetValue, p.Seed, func(m *model.Market) {
		m.EndBlock = e.chain.LatestBlock() + p.BlockWindow
	})
}

// create runs the shared creation path: validate, debit the seed, open
// the pools at 50/50, mint the creator's shares, emit MarketCreated.
func (e *Engine) create(ctx context.Context, m *model.Market, creator string, target int64, seed decimal.Decimal, setExpiry func(*model.Market)) (*model.Market, error) {
	if creator == "" {
		return nil, ErrParticipantRequired
	}
	if m.Question == "" {
		return nil, ErrQuestionRequired
	}
	if target <= 0 {
		return nil, ErrTargetNotPositive
	}
	if seed.IsZero() {
		seed = e.cfg.SeedCollateral
	}
	if !seed.Equal(e.cfg.SeedCollateral) {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrSeedMismatch, seed, e.cfg.SeedCollateral)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	bal, err := e.store.GetBalance(ctx, creator)
	if err != nil {
		return nil, err
	}
	if bal.LessThan(seed) {
		return nil, fmt.Errorf("%w: balance %s, seed %s", ErrInsufficientBalance, bal, seed)
	}

	id, err := e.store.NextMarketID(ctx)
	if err != nil {
		return nil, err
	}

	m.ID = id
	m.TargetValue = target
	m.Status = model.StatusActive
	m.YesPool = seed
	m.NoPool = seed
	m.TotalVolume = decimal.Zero
	m.Creator = creator
	m.CreatedAt = e.now()
	setExpiry(m)

	if err := e.store.SetBalance(ctx, creator, bal.Sub(seed)); err != nil {
		return nil, err
	}
	if err := e.store.CreateMarket(ctx, m); err != nil {
		return nil, err
	}

	// Seed liquidity comes back to the creator as equal YES/NO shares.
	pos := &model.Position{MarketID: id, Participant: creator, YesShares: seed, NoShares: seed}
	if err := e.store.PutPosition(ctx, pos); err != nil {
		return nil, err
	}

	metrics.MarketsCreated.WithLabelValues(string(m.Kind)).Inc()
	e.log.Append(events.MarketCreated{
		MarketID:    m.ID,
		Kind:        m.Kind,
		FeedKey:     m.FeedKey,
		Question:    m.Question,
		TargetValue: m.TargetValue,
		EndTime:     m.EndTime,
		EndBlock:    m.EndBlock,
		Creator:     m.Creator,
	})

	slog.Info("market created",
		"id", m.ID, "kind", m.Kind, "feed", m.FeedKey,
		"target", m.TargetValue, "creator", creator)

	cp := *m
	return &cp, nil
}

// --- Trading ---

// Buy debits collateral and credits outcome shares priced by the CPMM.
func (e *Engine) Buy(ctx context.Context, marketID uint64, participant string, side model.Side, collateralIn decimal.Decimal) (*model.TradeRecord, error) {
	if participant == "" {
		return nil, ErrParticipantRequired
	}
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if collateralIn.LessThanOrEqual(decimal.Zero) {
		return nil, ErrAmountNotPositive
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.activeTradableMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	bal, err := e.store.GetBalance(ctx, participant)
	if err != nil {
		return nil, err
	}
	if bal.LessThan(collateralIn) {
		return nil, fmt.Errorf("%w: balance %s, need %s", ErrInsufficientBalance, bal, collateralIn)
	}

	res, err := cpmm.Buy(m.YesPool, m.NoPool, side, collateralIn, e.cfg.FeeBps)
	if err != nil {
		return nil, err
	}

	if err := e.store.SetBalance(ctx, participant, bal.Sub(collateralIn)); err != nil {
		return nil, err
	}

	pos, err := e.store.GetPosition(ctx, marketID, participant)
	if err != nil {
		return nil, err
	}
	if side == model.SideYes {
		pos.YesShares = pos.YesShares.Add(res.Shares)
	} else {
		pos.NoShares = pos.NoShares.Add(res.Shares)
	}
	if err := e.store.PutPosition(ctx, pos); err != nil {
		return nil, err
	}

	return e.finishTrade(ctx, m, participant, side, true, collateralIn, res.Shares,
		res.NewYesPool, res.NewNoPool)
}

// Sell burns outcome shares and credits collateral priced by running
// the invariant backward.
func (e *Engine) Sell(ctx context.Context, marketID uint64, participant string, side model.Side, sharesIn decimal.Decimal) (*model.TradeRecord, error) {
	if participant == "" {
		return nil, ErrParticipantRequired
	}
	if !side.Valid() {
		return nil, ErrInvalidSide
	}
	if sharesIn.LessThanOrEqual(decimal.Zero) {
		return nil, ErrAmountNotPositive
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	m, err := e.activeTradableMarket(ctx, marketID)
	if err != nil {
		return nil, err
	}

	pos, err := e.store.GetPosition(ctx, marketID, participant)
	if err != nil {
		return nil, err
	}
	if pos.Shares(side).LessThan(sharesIn) {
		return nil, fmt.Errorf("%w: hold %s %s, selling %s", ErrInsufficientShares, pos.Shares(side), side, sharesIn)
	}

	res, err := cpmm.Sell(m.YesPool, m.NoPool, side, sharesIn, e.cfg.FeeBps)
	if err != nil {
		return nil, err
	}

	if side == model.SideYes {
		pos.YesShares = pos.YesShares.Sub(sharesIn)
	} else {
		pos.NoShares = pos.NoShares.Sub(sharesIn)
	}
	if err := e.store.PutPosition(ctx, pos); err != nil {
		return nil, err
	}

	bal, err := e.store.GetBalance(ctx, participant)
	if err != nil {
		return nil, err
	}
	if err := e.store.SetBalance(ctx, participant, bal.Add(res.Payout)); err != nil {
		return nil, err
	}

	return e.finishTrade(ctx, m, participant, side, false, res.Payout, sharesIn,
		res.NewYesPool, res.NewNoPool)
}

// finishTrade persists pool state, appends the immutable trade record,
// and emits the Trade event. Caller holds the engine mutex.
func (e *Engine) finishTrade(ctx context.Context, m *model.Market, participant string, side model.Side, isBuy bool, collateral, shares, newYes, newNo decimal.Decimal) (*model.TradeRecord, error) {
	newVolume := m.TotalVolume.Add(collateral)
	newCount := m.TradeCount + 1
	if err := e.store.UpdateMarketPools(ctx, m.ID, newYes, newNo, newVolume, newCount); err != nil {
		return nil, err
	}

	rec := &model.TradeRecord{
		ID:            uuid.New().String(),
		MarketID:      m.ID,
		Participant:   participant,
		Side:          side,
		IsBuy:         isBuy,
		Collateral:    collateral,
		Shares:        shares,
		YesPriceCents: cpmm.YesPriceCents(newYes, newNo),
		Timestamp:     e.now(),
	}
	if err := e.store.InsertTrade(ctx, rec); err != nil {
		return nil, err
	}

	direction := "sell"
	if isBuy {
		direction = "buy"
	}
	metrics.TradesTotal.WithLabelValues(string(side), direction).Inc()
	e.log.Append(events.Trade{
		MarketID:         m.ID,
		Trader:           participant,
		Side:             side,
		IsBuy:            isBuy,
		CollateralAmount: collateral,
		Shares:           shares,
		NewYesPriceCents: rec.YesPriceCents,
	})

	slog.Info("trade executed",
		"market", m.ID, "trader", participant, "side", side,
		"buy", isBuy, "collateral", collateral.String(),
		"shares", shares.String(), "yes_cents", rec.YesPriceCents)
	return rec, nil
}

// activeTradableMarket loads a market and checks it is open for
// trading. Caller holds the engine mutex.
func (e *Engine) activeTradableMarket(ctx context.Context, marketID uint64) (*model.Market, error) {
	m, err := e.store.GetMarket(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrMarketNotFound, marketID)
	}
	if m.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: %d is %s", ErrMarketNotActive, marketID, m.Status)
	}
	if e.expired(m) {
		return nil, fmt.Errorf("%w: %d", ErrMarketExpired, marketID)
	}
	return m, nil
}

// --- Read surface ---

// Market returns one market.
func (e *Engine) Market(ctx context.Context, id uint64) (*model.Market, error) {
	m, err := e.store.GetMarket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %d", ErrMarketNotFound, id)
	}
	return m, nil
}

// Markets returns all markets.
func (e *Engine) Markets(ctx context.Context) ([]model.Market, error) {
	return e.store.ListMarkets(ctx)
}

// MarketCount returns the number of markets ever created.
func (e *Engine) MarketCount(ctx context.Context) (uint64, error) {
	return e.store.MarketCount(ctx)
}

// AMMInfo is the per-market AMM tuple for the read surface. Prices are
// derived, never stored: the two always sum to 100.
type AMMInfo struct {
	YesPool       decimal.Decimal `json:"yes_pool"`
	NoPool        decimal.Decimal `json:"no_pool"`
	YesPriceCents int64           `json:"yes_price_cents"`
	NoPriceCents  int64           `json:"no_price_cents"`
	TotalVolume   decimal.Decimal `json:"total_volume"`
	TradeCount    int64           `json:"trade_count"`
}

// AMM returns the market's AMM tuple.
func (e *Engine) AMM(ctx context.Context, id uint64) (*AMMInfo, error) {
	m, err := e.Market(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AMMInfo{
		YesPool:       m.YesPool,
		NoPool:        m.NoPool,
		YesPriceCents: cpmm.YesPriceCents(m.YesPool, m.NoPool),
		NoPriceCents:  cpmm.NoPriceCents(m.YesPool, m.NoPool),
		TotalVolume:   m.TotalVolume,
		TradeCount:    m.TradeCount,
	}, nil
}

// EstimateBuy prices a buy without state change.
func (e *Engine) EstimateBuy(ctx context.Context, id uint64, side model.Side, collateralIn decimal.Decimal) (decimal.Decimal, error) {
	if !side.Valid() {
		return decimal.Zero, ErrInvalidSide
	}
	m, err := e.Market(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return cpmm.EstimateBuy(m.YesPool, m.NoPool, side, collateralIn, e.cfg.FeeBps)
}

// EstimateSell prices a sell without state change.
func (e *Engine) EstimateSell(ctx context.Context, id uint64, side model.Side, sharesIn decimal.Decimal) (decimal.Decimal, error) {
	if !side.Valid() {
		return decimal.Zero, ErrInvalidSide
	}
	m, err := e.Market(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return cpmm.EstimateSell(m.YesPool, m.NoPool, side, sharesIn, e.cfg.FeeBps)
}

// Position returns a participant's share balances.
func (e *Engine) Position(ctx context.Context, id uint64, participant string) (*model.Position, error) {
	if _, err := e.Market(ctx, id); err != nil {
		return nil, err
	}
	return e.store.GetPosition(ctx, id, participant)
}

// Trades returns the market's trade history.
func (e *Engine) Trades(ctx context.Context, id uint64) ([]model.TradeRecord, error) {
	return e.store.TradesByMarket(ctx, id)
}

// IsExpired reports whether the market's expiry has been reached.
// Monotonic: time only advances, and the chain adapter's block height
// never decreases.
func (e *Engine) IsExpired(ctx context.Context, id uint64) (bool, error) {
	m, err := e.Market(ctx, id)
	if err != nil {
		return false, err
	}
	return e.expired(m), nil
}

func (e *Engine) expired(m *model.Market) bool {
	if m.Kind == model.KindChainMetric {
		return e.chain.LatestBlock() >= m.EndBlock
	}
	return !e.now().Before(m.EndTime)
}
