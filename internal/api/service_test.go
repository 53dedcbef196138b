package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forecastlab/settle-engine/internal/api"
	"github.com/forecastlab/settle-engine/internal/events"
	"github.com/forecastlab/settle-engine/internal/market"
	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
	"github.com/forecastlab/settle-engine/internal/store"
)

type testEnv struct {
	router http.Handler
	clock  *fakeClock
	price  *oracle.PriceAdapter
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	price := oracle.NewPriceAdapter(clock.Now)
	chain := oracle.NewChainAdapter(&oracle.StaticSampler{GasPrice: 30, BaseFee: 25}, clock.Now)
	log := events.NewLog(clock.Now)
	policy := market.NewKindPolicy([]string{"secret-resolver"})

	eng := market.NewEngine(store.NewMemoryStore(), price, chain, log, policy, market.DefaultConfig(), clock.Now)
	svc := api.NewService(eng, nil)
	return &testEnv{router: svc.Router(), clock: clock, price: price}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) deposit(t *testing.T, participant string, amount int64) {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/accounts/deposit", api.DepositRequest{
		Participant: participant,
		Amount:      decimal.NewFromInt(amount),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func (e *testEnv) createPriceMarket(t *testing.T, creator string) model.Market {
	t.Helper()
	w := e.do(t, "POST", "/api/v1/markets/price", api.CreatePriceMarketRequest{
		Creator:     creator,
		FeedKey:     "BTC_USD",
		Pair:        "BTC/USD",
		Question:    "BTC above 100k?",
		TargetValue: 100_000,
		DurationSec: 7200,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var m model.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, "GET", "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateAndGetMarket(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 100)

	m := env.createPriceMarket(t, "alice")
	assert.Equal(t, model.StatusActive, m.Status)

	w := env.do(t, "GET", "/api/v1/markets/1", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/api/v1/markets/1/amm", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var amm struct {
		YesPriceCents int64 `json:"yes_price_cents"`
		NoPriceCents  int64 `json:"no_price_cents"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &amm))
	assert.Equal(t, int64(50), amm.YesPriceCents)
	assert.Equal(t, int64(50), amm.NoPriceCents)

	w = env.do(t, "GET", "/api/v1/markets/1/question", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var q struct {
		Question string `json:"question"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &q))
	assert.Equal(t, "BTC above 100k?", q.Question)

	w = env.do(t, "GET", "/api/v1/markets/1/metadata", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var meta struct {
		Kind      model.MarketKind `json:"kind"`
		PriceMeta *model.PriceMeta `json:"price_meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, model.KindPrice, meta.Kind)
	require.NotNil(t, meta.PriceMeta)
	assert.Equal(t, "BTC/USD", meta.PriceMeta.Pair)

	w = env.do(t, "GET", "/api/v1/markets/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/v1/markets/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateMarketValidationStatus(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 100)

	w := env.do(t, "POST", "/api/v1/markets/price", api.CreatePriceMarketRequest{
		Creator: "alice", FeedKey: "BTC_USD", Question: "q",
		TargetValue: 1, DurationSec: 60,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code, "duration below minimum")

	w = env.do(t, "POST", "/api/v1/markets/price", api.CreatePriceMarketRequest{
		Creator: "broke", FeedKey: "BTC_USD", Question: "q",
		TargetValue: 1, DurationSec: 7200,
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "insufficient balance")
}

func TestBuySellRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 100)
	env.deposit(t, "bob", 500)
	env.createPriceMarket(t, "alice")

	w := env.do(t, "POST", "/api/v1/markets/1/buy", api.TradeRequest{
		Participant: "bob", Side: model.SideYes, Amount: decimal.NewFromInt(50),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec model.TradeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.Shares.IsPositive())

	w = env.do(t, "POST", "/api/v1/markets/1/sell", api.TradeRequest{
		Participant: "bob", Side: model.SideYes, Amount: rec.Shares,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Overselling is a conflict, not a validation failure.
	w = env.do(t, "POST", "/api/v1/markets/1/sell", api.TradeRequest{
		Participant: "bob", Side: model.SideYes, Amount: decimal.NewFromInt(1),
	}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/api/v1/markets/1/buy", api.TradeRequest{
		Participant: "bob", Side: model.Side("MAYBE"), Amount: decimal.NewFromInt(1),
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResolveAndClaimOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 100)
	env.deposit(t, "bob", 500)
	env.createPriceMarket(t, "alice")

	w := env.do(t, "POST", "/api/v1/markets/1/buy", api.TradeRequest{
		Participant: "bob", Side: model.SideYes, Amount: decimal.NewFromInt(100),
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	// Too early: conflict.
	w = env.do(t, "POST", "/api/v1/markets/1/resolve", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	env.clock.Advance(2 * time.Hour)
	require.NoError(t, env.price.Submit("BTC_USD", 150_000))

	w = env.do(t, "POST", "/api/v1/markets/1/resolve", nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var m model.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, model.StatusResolvedYes, m.Status)

	// Second resolve observes the terminal status.
	w = env.do(t, "POST", "/api/v1/markets/1/resolve", nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/api/v1/markets/1/claim", api.SettleRequest{Participant: "bob"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var payout struct {
		Payout decimal.Decimal `json:"payout"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payout))
	assert.True(t, payout.Payout.IsPositive())
}

func TestResolveManualRequiresResolverHeader(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 100)

	w := env.do(t, "POST", "/api/v1/markets/social", api.CreateSocialMarketRequest{
		Creator: "alice", PostID: "post-1", Author: "someone", Metric: "likes",
		Question: "1000 likes?", TargetValue: 1000, DurationSec: 7200,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	env.clock.Advance(2 * time.Hour)

	w = env.do(t, "POST", "/api/v1/markets/1/resolve-manual",
		api.ResolveManualRequest{FinalValue: 2000}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "POST", "/api/v1/markets/1/resolve-manual",
		api.ResolveManualRequest{FinalValue: 2000},
		map[string]string{"X-Resolver-Key": "secret-resolver"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var m model.Market
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, model.StatusResolvedYes, m.Status)
}

func TestOracleSubmitAndRead(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 100)
	env.createPriceMarket(t, "alice")

	w := env.do(t, "POST", "/api/v1/oracle/price", api.SubmitPriceRequest{
		FeedKey: "BTC_USD", Value: 101_000,
	}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	// Unregistered feed is a 404.
	w = env.do(t, "POST", "/api/v1/oracle/price", api.SubmitPriceRequest{
		FeedKey: "DOGE_USD", Value: 1,
	}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/api/v1/oracle/BTC_USD", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var v model.OracleValue
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	assert.Equal(t, int64(101_000), v.Value)

	// Chain record exposes native keys on the same read route.
	w = env.do(t, "POST", "/api/v1/oracle/chain/record", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, "GET", "/api/v1/oracle/gas_price", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEventsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 100)
	env.createPriceMarket(t, "alice")

	w := env.do(t, "GET", "/api/v1/events", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []struct {
		Seq uint64 `json:"seq"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)

	w = env.do(t, "GET", "/api/v1/events?after=999", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "null\n", w.Body.String())
}

func TestBalanceEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.deposit(t, "alice", 75)

	w := env.do(t, "GET", "/api/v1/accounts/alice/balance", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Balance decimal.Decimal `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Balance.Equal(decimal.NewFromInt(75)))
}
