package oracle_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastlab/settle-engine/internal/oracle"
)

// fakeClock is an adjustable clock for staleness tests.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func TestPriceAdapter_SubmitAndRead(t *testing.T) {
	clock := newClock()
	a := oracle.NewPriceAdapter(clock.now)
	a.Register("BTC_USD")

	require.NoError(t, a.Submit("BTC_USD", 96_500))

	v, err := a.Value("BTC_USD")
	require.NoError(t, err)
	assert.EqualValues(t, 96_500, v.Value)
	assert.True(t, v.Active)
	assert.Equal(t, clock.t, v.UpdatedAt)

	fresh, err := a.FreshValue("BTC_USD", 5*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 96_500, fresh)
}

func TestPriceAdapter_RejectsUnregistered(t *testing.T) {
	a := oracle.NewPriceAdapter(nil)

	assert.ErrorIs(t, a.Submit("NOPE", 1), oracle.ErrFeedNotFound)

	_, err := a.Value("NOPE")
	assert.ErrorIs(t, err, oracle.ErrFeedNotFound)
}

func TestPriceAdapter_RejectsInactive(t *testing.T) {
	a := oracle.NewPriceAdapter(nil)
	a.Register("ETH_USD")
	require.NoError(t, a.Submit("ETH_USD", 3000))
	a.Deactivate("ETH_USD")

	assert.ErrorIs(t, a.Submit("ETH_USD", 3100), oracle.ErrFeedInactive)

	_, err := a.FreshValue("ETH_USD", time.Hour)
	assert.ErrorIs(t, err, oracle.ErrFeedInactive)
}

func TestPriceAdapter_StalenessWindow(t *testing.T) {
	clock := newClock()
	a := oracle.NewPriceAdapter(clock.now)
	a.Register("BTC_USD")
	require.NoError(t, a.Submit("BTC_USD", 95_000))

	clock.advance(4 * time.Minute)
	_, err := a.FreshValue("BTC_USD", 5*time.Minute)
	assert.NoError(t, err)

	clock.advance(2 * time.Minute)
	_, err = a.FreshValue("BTC_USD", 5*time.Minute)
	assert.ErrorIs(t, err, oracle.ErrStaleValue)
}

func TestPriceAdapter_NeverWrittenIsStale(t *testing.T) {
	a := oracle.NewPriceAdapter(nil)
	a.Register("BTC_USD")

	_, err := a.FreshValue("BTC_USD", time.Hour)
	assert.ErrorIs(t, err, oracle.ErrStaleValue)
}

func TestPriceAdapter_SubmitBatch(t *testing.T) {
	a := oracle.NewPriceAdapter(nil)
	a.Register("BTC_USD")
	a.Register("ETH_USD")

	err := a.SubmitBatch(map[string]int64{"BTC_USD": 95_000, "ETH_USD": 3_200})
	require.NoError(t, err)

	v, err := a.Value("ETH_USD")
	require.NoError(t, err)
	assert.EqualValues(t, 3_200, v.Value)
}

func TestChainAdapter_RecordAndRead(t *testing.T) {
	clock := newClock()
	sampler := &oracle.StaticSampler{GasPrice: 42, BaseFee: 35, Block: 100}
	a := oracle.NewChainAdapter(sampler, clock.now)

	_, err := a.Record(context.Background())
	require.NoError(t, err)

	gas, err := a.FreshValue(oracle.FeedGasPrice, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 42, gas)

	base, err := a.FreshValue(oracle.FeedBaseFee, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 35, base)

	assert.EqualValues(t, 101, a.LatestBlock())
	assert.Len(t, a.Snapshots(), 1)
}

func TestChainAdapter_NoRecordYet(t *testing.T) {
	a := oracle.NewChainAdapter(&oracle.StaticSampler{}, nil)

	_, err := a.Value(oracle.FeedGasPrice)
	assert.ErrorIs(t, err, oracle.ErrFeedNotFound)
	assert.EqualValues(t, 0, a.LatestBlock())
}

func TestChainAdapter_UnknownKey(t *testing.T) {
	a := oracle.NewChainAdapter(&oracle.StaticSampler{Block: 1}, nil)
	_, err := a.Record(context.Background())
	require.NoError(t, err)

	_, err = a.Value("tx_count")
	assert.ErrorIs(t, err, oracle.ErrFeedNotFound)
}

func TestChainAdapter_BlockMonotonic(t *testing.T) {
	clock := newClock()
	sampler := &oracle.StaticSampler{Block: 500}
	a := oracle.NewChainAdapter(sampler, clock.now)

	_, err := a.Record(context.Background())
	require.NoError(t, err)
	first := a.LatestBlock()

	// Even if the sampler's view rewinds, the adapter never reports a
	// lower block.
	sampler.Block = 10
	_, err = a.Record(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, a.LatestBlock(), first)
}

func TestChainAdapter_Staleness(t *testing.T) {
	clock := newClock()
	a := oracle.NewChainAdapter(&oracle.StaticSampler{GasPrice: 10, Block: 1}, clock.now)
	_, err := a.Record(context.Background())
	require.NoError(t, err)

	clock.advance(10 * time.Minute)
	_, err = a.FreshValue(oracle.FeedGasPrice, 5*time.Minute)
	assert.ErrorIs(t, err, oracle.ErrStaleValue)
}
