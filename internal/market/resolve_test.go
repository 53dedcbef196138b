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
)

func (f *fixture) socialMarket(t *testing.T, creator string) *model.Market {
	t.Helper()
	m, err := f.eng.CreateSocialMetricMarket(context.Background(), CreateSocialParams{
		Creator:       creator,
		PostID:        "post-42",
		Author:        "someone",
		Metric:        "likes",
		Question:      "post hits 1000 likes?",
		TargetValue:   1000,
		SnapshotValue: 120,
		Duration:      2 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestResolvePriceMarketYes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	f.clock.Advance(2 * time.Hour)

	// Fresh feed value at/above target resolves YES. Permissionless.
	require.NoError(t, f.price.Submit("BTC_USD", 105_000))
	got, err := f.eng.Resolve(ctx, m.ID, "anyone")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolvedYes, got.Status)
	assert.Equal(t, int64(105_000), got.ResolvedValue)

	stored, err := f.eng.Market(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolvedYes, stored.Status)
}

func TestResolvePriceMarketNoBelowTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	f.clock.Advance(2 * time.Hour)

	require.NoError(t, f.price.Submit("BTC_USD", 99_999))
	got, err := f.eng.Resolve(ctx, m.ID, "anyone")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolvedNo, got.Status)
}

func TestResolveRefusesBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	require.NoError(t, f.price.Submit("BTC_USD", 200_000))

	_, err := f.eng.Resolve(ctx, m.ID, "anyone")
	assert.ErrorIs(t, err, ErrMarketNotExpired)
}

func TestResolveRefusesStaleFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	require.NoError(t, f.price.Submit("BTC_USD", 200_000))

	// The submission ages past the staleness window by expiry.
	f.clock.Advance(2 * time.Hour)
	_, err := f.eng.Resolve(ctx, m.ID, "anyone")
	assert.ErrorIs(t, err, oracle.ErrStaleValue)

	// A fresh relay unblocks resolution.
	require.NoError(t, f.price.Submit("BTC_USD", 200_000))
	got, err := f.eng.Resolve(ctx, m.ID, "anyone")
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolvedYes, got.Status)
}

func TestResolveRaceSecondCallerLoses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.price.Submit("BTC_USD", 150_000))

	_, err := f.eng.Resolve(ctx, m.ID, "keeper-a")
	require.NoError(t, err)

	// Whoever lands second observes the terminal status.
	_, err = f.eng.Resolve(ctx, m.ID, "keeper-b")
	assert.ErrorIs(t, err, ErrMarketNotActive)
	assert.True(t, IsStateConflict(err))
}

func TestResolveKindMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.socialMarket(t, "alice")
	f.clock.Advance(2 * time.Hour)

	_, err := f.eng.Resolve(ctx, m.ID, "anyone")
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = f.eng.ResolveWithFeed(ctx, m.ID, "anyone", oracle.FeedGasPrice)
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestResolveManualRequiresAuthorizedResolver(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.socialMarket(t, "alice")
	f.clock.Advance(2 * time.Hour)

	_, err := f.eng.ResolveManual(ctx, m.ID, "rando", 1500)
	assert.ErrorIs(t, err, ErrUnauthorized)

	got, err := f.eng.ResolveManual(ctx, m.ID, "resolver-1", 1500)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolvedYes, got.Status)
	assert.Equal(t, int64(1500), got.ResolvedValue)
}

func TestResolveBatchReportsPerMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m1 := f.socialMarket(t, "alice")
	m2 := f.socialMarket(t, "alice")
	f.clock.Advance(2 * time.Hour)

	out := f.eng.ResolveBatch(ctx, "resolver-1", map[uint64]int64{
		m1.ID: 2000,
		m2.ID: 10,
		999:   5,
	})
	require.Len(t, out, 3)

	byID := make(map[uint64]BatchOutcome, len(out))
	for _, o := range out {
		byID[o.MarketID] = o
	}
	assert.Equal(t, model.StatusResolvedYes, byID[m1.ID].Status)
	assert.Equal(t, model.StatusResolvedNo, byID[m2.ID].Status)
	assert.NotEmpty(t, byID[999].Err, "missing market reported, not fatal")
}

func TestResolveWithFeed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "carol", 100)

	f.sampler.GasPrice = 60
	f.sampler.BaseFee = 40
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

	// Not enough blocks yet.
	_, err = f.eng.ResolveWithFeed(ctx, m.ID, "anyone", oracle.FeedGasPrice)
	assert.ErrorIs(t, err, ErrMarketNotExpired)

	// Advance the chain past the window.
	f.sampler.Step = 150
	_, err = f.chain.Record(ctx)
	require.NoError(t, err)

	// Unmapped native key refused even once expired.
	_, err = f.eng.ResolveWithFeed(ctx, m.ID, "anyone", "tx_count")
	assert.ErrorIs(t, err, ErrFeedMismatch)

	got, err := f.eng.ResolveWithFeed(ctx, m.ID, "anyone", oracle.FeedGasPrice)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolvedYes, got.Status)
	assert.Equal(t, int64(60), got.ResolvedValue)
}

func TestResolveWithFeedBaseFeeMapped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "carol", 100)

	f.sampler.GasPrice = 60
	f.sampler.BaseFee = 40
	_, err := f.chain.Record(ctx)
	require.NoError(t, err)

	m, err := f.eng.CreateChainMetricMarket(ctx, CreateChainParams{
		Creator: "carol", Metric: "ETH_GAS", Question: "q",
		TargetValue: 50, BlockWindow: 100,
	})
	require.NoError(t, err)

	f.sampler.Step = 150
	_, err = f.chain.Record(ctx)
	require.NoError(t, err)

	// Same market, other mapped key: below target resolves NO.
	got, err := f.eng.ResolveWithFeed(ctx, m.ID, "anyone", oracle.FeedBaseFee)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolvedNo, got.Status)
	assert.Equal(t, int64(40), got.ResolvedValue)
}

func TestVoidPrivilegedResolverAnyExpiredMarket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	require.NoError(t, f.price.Submit("BTC_USD", 100_000))

	// Feed still healthy, so the permissionless path refuses.
	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.price.Submit("BTC_USD", 100_000))
	_, err := f.eng.Void(ctx, m.ID, "rando")
	assert.ErrorIs(t, err, ErrVoidNotAllowed)

	got, err := f.eng.Void(ctx, m.ID, "resolver-1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVoided, got.Status)

	entries := f.log.Entries(0)
	last := entries[len(entries)-1]
	voided, ok := last.Event.(events.Voided)
	require.True(t, ok)
	assert.Equal(t, m.ID, voided.MarketID)
}

func TestVoidPermissionlessAfterGracePeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	require.NoError(t, f.price.Submit("BTC_USD", 100_000))

	// Feed falls silent; once the value is older than staleness plus
	// grace, anyone may void.
	f.clock.Advance(2 * time.Hour)
	_, err := f.eng.Void(ctx, m.ID, "rando")
	assert.ErrorIs(t, err, ErrVoidNotAllowed)

	f.clock.Advance(25 * time.Hour)
	got, err := f.eng.Void(ctx, m.ID, "rando")
	require.NoError(t, err)
	assert.Equal(t, model.StatusVoided, got.Status)
}

func TestVoidRefusesBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	_, err := f.eng.Void(ctx, m.ID, "resolver-1")
	assert.ErrorIs(t, err, ErrMarketNotExpired)
}

func TestTerminalStatusIsOneWay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, "alice", 100)

	m := f.priceMarket(t, "alice")
	f.clock.Advance(2 * time.Hour)
	require.NoError(t, f.price.Submit("BTC_USD", 150_000))

	_, err := f.eng.Resolve(ctx, m.ID, "anyone")
	require.NoError(t, err)

	// No path leads out of a terminal status.
	_, err = f.eng.Void(ctx, m.ID, "resolver-1")
	assert.ErrorIs(t, err, ErrMarketNotActive)

	_, err = f.eng.Buy(ctx, m.ID, "alice", model.SideYes, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrMarketNotActive)
}
