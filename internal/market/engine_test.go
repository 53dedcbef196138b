package market

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastlab/settle-engine/internal/events"
	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
	"github.com/forecastlab/settle-engine/internal/store"
)

type testClock struct {
	t time.Time
}

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	eng     *Engine
	clock   *testClock
	price   *oracle.PriceAdapter
	chain   *oracle.ChainAdapter
	sampler *oracle.StaticSampler
	log     *events.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	price := oracle.NewPriceAdapter(clock.Now)
	sampler := &oracle.StaticSampler{GasPrice: 30, BaseFee: 25}
	chain := oracle.NewChainAdapter(sampler, clock.Now)
	log := events.NewLog(clock.Now)
	policy := NewKindPolicy([]string{"resolver-1"})

	eng := NewEngine(store.NewMemoryStore(), price, chain, log, policy, DefaultConfig(), clock.Now)
	return &fixture{eng: eng, clock: clock, price: price, chain: chain, sampler: sampler, log: log}
}

func (f *fixture) fund(t *testing.T, participant string, amount int64) {
	t.Helper()
	_, err := f.eng.Deposit(context.Background(), participant, decimal.NewFromInt(amount))
	require.NoError(t, err)
}

func (f *fixture) priceMarket(t *testing.T, creator string) *model.Market {
	t.Helper()
	m, err := f.eng.CreatePriceMarket(context.Background(), CreatePriceParams{
		Creator:     creator,
		FeedKey:     "BTC_USD",
		Pair:        "BTC/USD",
		Question:    "BTC above 100k?",
		TargetValue: 100_000,
		Duration:    2 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestCreatePriceMarketOpensAtEvenOdds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")

	assert.Equal(t, uint64(1), m.ID)
	assert.Equal(t, model.StatusActive, m.Status)
	assert.Equal(t, model.KindPrice, m.Kind)
	assert.True(t, m.YesPool.Equal(decimal.NewFromInt(10)), "yes pool = seed")
	assert.True(t, m.NoPool.Equal(decimal.NewFromInt(10)), "no pool = seed")

	amm, err := f.eng.AMM(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), amm.YesPriceCents)
	assert.Equal(t, int64(50), amm.NoPriceCents)

	// Seed collateral debited, returned as equal YES/NO shares.
	bal, err := f.eng.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(90)))

	pos, err := f.eng.Position(ctx, m.ID, "alice")
	require.NoError(t, err)
	assert.True(t, pos.YesShares.Equal(decimal.NewFromInt(10)))
	assert.True(t, pos.NoShares.Equal(decimal.NewFromInt(10)))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	_, err := f.eng.CreatePriceMarket(ctx, CreatePriceParams{
		Creator: "alice", FeedKey: "BTC_USD", Question: "q",
		TargetValue: 1, Duration: 10 * time.Minute,
	})
	assert.ErrorIs(t, err, ErrDurationTooShort)

	_, err = f.eng.CreatePriceMarket(ctx, CreatePriceParams{
		Creator: "alice", FeedKey: "BTC_USD", Question: "",
		TargetValue: 1, Duration: 2 * time.Hour,
	})
	assert.ErrorIs(t, err, ErrQuestionRequired)

	_, err = f.eng.CreatePriceMarket(ctx, CreatePriceParams{
		Creator: "alice", FeedKey: "BTC_USD", Question: "q",
		TargetValue: 0, Duration: 2 * time.Hour,
	})
	assert.ErrorIs(t, err, ErrTargetNotPositive)

	_, err = f.eng.CreatePriceMarket(ctx, CreatePriceParams{
		Creator: "alice", FeedKey: "BTC_USD", Question: "q",
		TargetValue: 1, Duration: 2 * time.Hour,
		Seed: decimal.NewFromInt(25),
	})
	assert.ErrorIs(t, err, ErrSeedMismatch)

	_, err = f.eng.CreatePriceMarket(ctx, CreatePriceParams{
		Creator: "broke", FeedKey: "BTC_USD", Question: "q",
		TargetValue: 1, Duration: 2 * time.Hour,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestCreateChainMetricMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "carol", 100)

	// Record once so the snapshot baseline and block height exist.
	_, err := f.chain.Record(ctx)
	require.NoError(t, err)

	m, err := f.eng.CreateChainMetricMarket(ctx, CreateChainParams{
		Creator:     "carol",
		Metric:      "ETH_GAS",
		Question:    "gas above 50 gwei?",
		TargetValue: 50,
		BlockWindow: 100,
	})
	require.NoError(t, err)

	assert.Equal(t, model.KindChainMetric, m.Kind)
	assert.Equal(t, int64(30), m.SnapshotValue, "baseline from gas_price sample")
	assert.Equal(t, f.chain.LatestBlock()+100, m.EndBlock)

	_, err = f.eng.CreateChainMetricMarket(ctx, CreateChainParams{
		Creator: "carol", Metric: "ETH_GAS", Question: "q",
		TargetValue: 1, BlockWindow: 10,
	})
	assert.ErrorIs(t, err, ErrBlockWindowTooShort)

	_, err = f.eng.CreateChainMetricMarket(ctx, CreateChainParams{
		Creator: "carol", Metric: "UNKNOWN", Question: "q",
		TargetValue: 1, BlockWindow: 100,
	})
	assert.ErrorIs(t, err, ErrFeedMismatch)
}

func TestBuyMovesPriceAndLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)
	f.fund(t, "bob", 500)

	m := f.priceMarket(t, "alice")

	rec, err := f.eng.Buy(ctx, m.ID, "bob", model.SideYes, decimal.NewFromInt(100))
	require.NoError(t, err)

	// 100 into 10/10 pools at 2% fee: more than 100 shares out, price
	// driven hard toward YES.
	assert.True(t, rec.Shares.GreaterThan(decimal.NewFromInt(100)),
		"got %s shares", rec.Shares)
	assert.Greater(t, rec.YesPriceCents, int64(90))

	bal, err := f.eng.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(400)))

	pos, err := f.eng.Position(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.True(t, pos.YesShares.Equal(rec.Shares))
	assert.True(t, pos.NoShares.IsZero())

	got, err := f.eng.Market(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.TotalVolume.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, int64(1), got.TradeCount)

	trades, err := f.eng.Trades(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, rec.ID, trades[0].ID)
}

func TestSellRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)
	f.fund(t, "bob", 500)

	m := f.priceMarket(t, "alice")

	rec, err := f.eng.Buy(ctx, m.ID, "bob", model.SideYes, decimal.NewFromInt(50))
	require.NoError(t, err)

	sell, err := f.eng.Sell(ctx, m.ID, "bob", model.SideYes, rec.Shares)
	require.NoError(t, err)

	// Two fee hits: the round trip must lose money.
	assert.True(t, sell.Collateral.LessThan(decimal.NewFromInt(50)),
		"round trip returned %s", sell.Collateral)

	pos, err := f.eng.Position(ctx, m.ID, "bob")
	require.NoError(t, err)
	assert.True(t, pos.YesShares.IsZero())
}

func TestTradeRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)
	f.fund(t, "bob", 5)

	m := f.priceMarket(t, "alice")

	_, err := f.eng.Buy(ctx, m.ID, "bob", model.SideYes, decimal.NewFromInt(50))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	_, err = f.eng.Buy(ctx, m.ID, "bob", model.Side("MAYBE"), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = f.eng.Buy(ctx, m.ID, "bob", model.SideYes, decimal.Zero)
	assert.ErrorIs(t, err, ErrAmountNotPositive)

	_, err = f.eng.Sell(ctx, m.ID, "bob", model.SideYes, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrInsufficientShares)

	_, err = f.eng.Buy(ctx, 999, "bob", model.SideYes, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrMarketNotFound)
}

func TestTradingClosesAtExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")

	expired, err := f.eng.IsExpired(ctx, m.ID)
	require.NoError(t, err)
	assert.False(t, expired)

	f.clock.Advance(2 * time.Hour)

	expired, err = f.eng.IsExpired(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, expired)

	_, err = f.eng.Buy(ctx, m.ID, "alice", model.SideYes, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrMarketExpired)

	// Expiry is monotonic: once reached it never un-expires.
	f.clock.Advance(time.Hour)
	expired, err = f.eng.IsExpired(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, expired)
}

func TestEstimateMatchesExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)
	f.fund(t, "bob", 100)

	m := f.priceMarket(t, "alice")

	est, err := f.eng.EstimateBuy(ctx, m.ID, model.SideNo, decimal.NewFromInt(40))
	require.NoError(t, err)

	rec, err := f.eng.Buy(ctx, m.ID, "bob", model.SideNo, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.True(t, est.Equal(rec.Shares))
}

func TestDeposit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bal, err := f.eng.Deposit(ctx, "alice", decimal.NewFromInt(25))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(25)))

	bal, err = f.eng.Deposit(ctx, "alice", decimal.NewFromInt(15))
	require.NoError(t, err)
	assert.True(t, bal.Equal(decimal.NewFromInt(40)))

	_, err = f.eng.Deposit(ctx, "alice", decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrAmountNotPositive)

	_, err = f.eng.Deposit(ctx, "", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrParticipantRequired)
}

func TestEventsEmittedOnCreateAndTrade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)
	f.fund(t, "bob", 100)

	m := f.priceMarket(t, "alice")
	_, err := f.eng.Buy(ctx, m.ID, "bob", model.SideYes, decimal.NewFromInt(10))
	require.NoError(t, err)

	entries := f.log.Entries(0)
	require.Len(t, entries, 2)

	created, ok := entries[0].Event.(events.MarketCreated)
	require.True(t, ok)
	assert.Equal(t, m.ID, created.MarketID)
	assert.Equal(t, "BTC_USD", created.FeedKey)

	trade, ok := entries[1].Event.(events.Trade)
	require.True(t, ok)
	assert.Equal(t, "bob", trade.Trader)
	assert.True(t, trade.IsBuy)
}
