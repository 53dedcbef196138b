// Package api provides the HTTP surface of the settlement engine:
// market lifecycle, trading, resolution, settlement, oracle writes,
// and the real-time event stream.
//
// All monetary values use shopspring/decimal — never float64 for money.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/market"
	"github.com/forecastlab/settle-engine/internal/metrics"
	"github.com/forecastlab/settle-engine/internal/model"
	"github.com/forecastlab/settle-engine/internal/oracle"
)

// resolverHeader carries the caller identity for authorized paths.
const resolverHeader = "X-Resolver-Key"

// Service exposes the engine over HTTP.
type Service struct {
	eng *market.Engine
	hub *WSHub // optional; nil disables the event stream
}

// NewService creates the HTTP service. Pass nil for hub if WebSocket
// streaming is not needed.
func NewService(eng *market.Engine, hub *WSHub) *Service {
	return &Service{eng: eng, hub: hub}
}

// Router builds the chi router with all routes mounted.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", s.Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/markets", func(r chi.Router) {
			r.Get("/", s.ListMarkets)
			r.Post("/price", s.CreatePriceMarket)
			r.Post("/social", s.CreateSocialMarket)
			r.Post("/chain", s.CreateChainMarket)

			r.Route("/{marketID}", func(r chi.Router) {
				r.Get("/", s.GetMarket)
				r.Get("/amm", s.GetAMM)
				r.Get("/question", s.GetQuestion)
				r.Get("/metadata", s.GetMetadata)
				r.Get("/expired", s.GetExpired)
				r.Get("/trades", s.GetTrades)
				r.Get("/positions/{participant}", s.GetPosition)
				r.Post("/estimate", s.Estimate)
				r.Post("/buy", s.Buy)
				r.Post("/sell", s.Sell)
				r.Post("/resolve", s.Resolve)
				r.Post("/resolve-feed", s.ResolveWithFeed)
				r.Post("/resolve-manual", s.ResolveManual)
				r.Post("/void", s.Void)
				r.Post("/claim", s.Claim)
				r.Post("/reclaim", s.Reclaim)
			})
		})
		r.Post("/resolve-batch", s.ResolveBatch)

		r.Route("/oracle", func(r chi.Router) {
			r.Post("/price", s.SubmitPrice)
			r.Post("/price-batch", s.SubmitPriceBatch)
			r.Post("/price-attested", s.SubmitPriceAttested)
			r.Post("/chain/record", s.RecordChain)
			r.Get("/{feedKey}", s.GetOracleValue)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/deposit", s.Deposit)
			r.Get("/{participant}/balance", s.GetBalance)
		})

		r.Get("/events", s.GetEvents)
		if s.hub != nil {
			r.Get("/ws", s.hub.HandleWS)
		}
	})

	return r
}

// Health handles GET /health.
func (s *Service) Health(w http.ResponseWriter, r *http.Request) {
	count, err := s.eng.MarketCount(r.Context())
	if err != nil {
		writeError(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "markets": count})
}

// --- Market creation ---

// CreatePriceMarketRequest is the JSON body for POST /markets/price.
type CreatePriceMarketRequest struct {
	Creator     string          `json:"creator"`
	FeedKey     string          `json:"feed_key"`
	Pair        string          `json:"pair"`
	Question    string          `json:"question"`
	TargetValue int64           `json:"target_value"`
	DurationSec int64           `json:"duration_seconds"`
	Seed        decimal.Decimal `json:"seed"`
}

// CreatePriceMarket handles POST /api/v1/markets/price.
func (s *Service) CreatePriceMarket(w http.ResponseWriter, r *http.Request) {
	var req CreatePriceMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.eng.CreatePriceMarket(r.Context(), market.CreatePriceParams{
		Creator:     req.Creator,
		FeedKey:     req.FeedKey,
		Pair:        req.Pair,
		Question:    req.Question,
		TargetValue: req.TargetValue,
		Duration:    time.Duration(req.DurationSec) * time.Second,
		Seed:        req.Seed,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// CreateSocialMarketRequest is the JSON body for POST /markets/social.
type CreateSocialMarketRequest struct {
	Creator       string          `json:"creator"`
	PostID        string          `json:"post_id"`
	Author        string          `json:"author"`
	Metric        string          `json:"metric"`
	Question      string          `json:"question"`
	TargetValue   int64           `json:"target_value"`
	SnapshotValue int64           `json:"snapshot_value"`
	DurationSec   int64           `json:"duration_seconds"`
	Seed          decimal.Decimal `json:"seed"`
}

// CreateSocialMarket handles POST /api/v1/markets/social.
func (s *Service) CreateSocialMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateSocialMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.eng.CreateSocialMetricMarket(r.Context(), market.CreateSocialParams{
		Creator:       req.Creator,
		PostID:        req.PostID,
		Author:        req.Author,
		Metric:        req.Metric,
		Question:      req.Question,
		TargetValue:   req.TargetValue,
		SnapshotValue: req.SnapshotValue,
		Duration:      time.Duration(req.DurationSec) * time.Second,
		Seed:          req.Seed,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// CreateChainMarketRequest is the JSON body for POST /markets/chain.
type CreateChainMarketRequest struct {
	Creator     string          `json:"creator"`
	Metric      string          `json:"metric"`
	Question    string          `json:"question"`
	TargetValue int64           `json:"target_value"`
	BlockWindow uint64          `json:"block_window"`
	Seed        decimal.Decimal `json:"seed"`
}

// CreateChainMarket handles POST /api/v1/markets/chain.
func (s *Service) CreateChainMarket(w http.ResponseWriter, r *http.Request) {
	var req CreateChainMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	m, err := s.eng.CreateChainMetricMarket(r.Context(), market.CreateChainParams{
		Creator:     req.Creator,
		Metric:      req.Metric,
		Question:    req.Question,
		TargetValue: req.TargetValue,
		BlockWindow: req.BlockWindow,
		Seed:        req.Seed,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// --- Market reads ---

// ListMarkets handles GET /api/v1/markets. Optional ?status= and
// ?kind= filters.
func (s *Service) ListMarkets(w http.ResponseWriter, r *http.Request) {
	markets, err := s.eng.Markets(r.Context())
	if err != nil {
		writeError(w, "failed to list markets", http.StatusInternalServerError)
		return
	}
	if markets == nil {
		markets = []model.Market{}
	}

	status := r.URL.Query().Get("status")
	kind := r.URL.Query().Get("kind")
	if status != "" || kind != "" {
		filtered := make([]model.Market, 0, len(markets))
		for _, m := range markets {
			if status != "" && string(m.Status) != status {
				continue
			}
			if kind != "" && string(m.Kind) != kind {
				continue
			}
			filtered = append(filtered, m)
		}
		markets = filtered
	}

	writeJSON(w, http.StatusOK, markets)
}

// GetMarket handles GET /api/v1/markets/{marketID}.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	m, err := s.eng.Market(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetAMM handles GET /api/v1/markets/{marketID}/amm.
func (s *Service) GetAMM(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	amm, err := s.eng.AMM(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, amm)
}

// GetQuestion handles GET /api/v1/markets/{marketID}/question.
func (s *Service) GetQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	m, err := s.eng.Market(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"question": m.Question})
}

// GetMetadata handles GET /api/v1/markets/{marketID}/metadata: the
// kind-specific block only.
func (s *Service) GetMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	m, err := s.eng.Market(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := map[string]any{"kind": m.Kind, "feed_key": m.FeedKey}
	switch {
	case m.PriceMeta != nil:
		resp["price_meta"] = m.PriceMeta
	case m.SocialMeta != nil:
		resp["social_meta"] = m.SocialMeta
	case m.ChainMeta != nil:
		resp["chain_meta"] = m.ChainMeta
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetExpired handles GET /api/v1/markets/{marketID}/expired.
func (s *Service) GetExpired(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	expired, err := s.eng.IsExpired(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"expired": expired})
}

// GetTrades handles GET /api/v1/markets/{marketID}/trades.
func (s *Service) GetTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	trades, err := s.eng.Trades(r.Context(), id)
	if err != nil {
		writeError(w, "failed to load trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPosition handles GET /api/v1/markets/{marketID}/positions/{participant}.
func (s *Service) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	pos, err := s.eng.Position(r.Context(), id, chi.URLParam(r, "participant"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}

// --- Trading ---

// TradeRequest is the JSON body for buy, sell, and estimate.
type TradeRequest struct {
	Participant string          `json:"participant"`
	Side        model.Side      `json:"side"`
	Amount      decimal.Decimal `json:"amount"` // collateral for buys, shares for sells
	IsBuy       bool            `json:"is_buy"` // estimate only
}

// Estimate handles POST /api/v1/markets/{marketID}/estimate.
func (s *Service) Estimate(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var out decimal.Decimal
	var err error
	if req.IsBuy {
		out, err = s.eng.EstimateBuy(r.Context(), id, req.Side, req.Amount)
	} else {
		out, err = s.eng.EstimateSell(r.Context(), id, req.Side, req.Amount)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"result": out})
}

// Buy handles POST /api/v1/markets/{marketID}/buy.
func (s *Service) Buy(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, true)
}

// Sell handles POST /api/v1/markets/{marketID}/sell.
func (s *Service) Sell(w http.ResponseWriter, r *http.Request) {
	s.trade(w, r, false)
}

func (s *Service) trade(w http.ResponseWriter, r *http.Request, isBuy bool) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	var rec *model.TradeRecord
	var err error
	if isBuy {
		rec, err = s.eng.Buy(r.Context(), id, req.Participant, req.Side, req.Amount)
	} else {
		rec, err = s.eng.Sell(r.Context(), id, req.Participant, req.Side, req.Amount)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Resolution and settlement ---

// ResolveManualRequest is the JSON body for POST resolve-manual.
type ResolveManualRequest struct {
	FinalValue int64 `json:"final_value"`
}

// ResolveFeedRequest is the JSON body for POST resolve-feed.
type ResolveFeedRequest struct {
	FeedKey string `json:"feed_key"`
}

// ResolveBatchRequest is the JSON body for POST /resolve-batch.
type ResolveBatchRequest struct {
	Finals map[uint64]int64 `json:"finals"` // market ID → final value
}

// Resolve handles POST /api/v1/markets/{marketID}/resolve.
func (s *Service) Resolve(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	m, err := s.eng.Resolve(r.Context(), id, r.Header.Get(resolverHeader))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ResolveWithFeed handles POST /api/v1/markets/{marketID}/resolve-feed.
func (s *Service) ResolveWithFeed(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req ResolveFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := s.eng.ResolveWithFeed(r.Context(), id, r.Header.Get(resolverHeader), req.FeedKey)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ResolveManual handles POST /api/v1/markets/{marketID}/resolve-manual.
func (s *Service) ResolveManual(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req ResolveManualRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	m, err := s.eng.ResolveManual(r.Context(), id, r.Header.Get(resolverHeader), req.FinalValue)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ResolveBatch handles POST /api/v1/resolve-batch.
func (s *Service) ResolveBatch(w http.ResponseWriter, r *http.Request) {
	var req ResolveBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	out := s.eng.ResolveBatch(r.Context(), r.Header.Get(resolverHeader), req.Finals)
	writeJSON(w, http.StatusOK, out)
}

// Void handles POST /api/v1/markets/{marketID}/void.
func (s *Service) Void(w http.ResponseWriter, r *http.Request) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	m, err := s.eng.Void(r.Context(), id, r.Header.Get(resolverHeader))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// SettleRequest is the JSON body for claim and reclaim.
type SettleRequest struct {
	Participant string `json:"participant"`
}

// Claim handles POST /api/v1/markets/{marketID}/claim.
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.eng.ClaimWinnings)
}

// Reclaim handles POST /api/v1/markets/{marketID}/reclaim.
func (s *Service) Reclaim(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.eng.ReclaimVoided)
}

func (s *Service) settle(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id uint64, participant string) (decimal.Decimal, error)) {
	id, ok := marketID(w, r)
	if !ok {
		return
	}
	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	payout, err := fn(r.Context(), id, req.Participant)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"payout": payout})
}

// --- Oracle ---

// SubmitPriceRequest is the JSON body for POST /oracle/price.
type SubmitPriceRequest struct {
	FeedKey string `json:"feed_key"`
	Value   int64  `json:"value"`
}

// SubmitPrice handles POST /api/v1/oracle/price.
func (s *Service) SubmitPrice(w http.ResponseWriter, r *http.Request) {
	var req SubmitPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.eng.PriceOracle().Submit(req.FeedKey, req.Value); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.OracleSubmissions.WithLabelValues("price").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// SubmitPriceBatch handles POST /api/v1/oracle/price-batch.
func (s *Service) SubmitPriceBatch(w http.ResponseWriter, r *http.Request) {
	var req map[string]int64
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := s.eng.PriceOracle().SubmitBatch(req); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.OracleSubmissions.WithLabelValues("price").Add(float64(len(req)))
	w.WriteHeader(http.StatusNoContent)
}

// SubmitPriceAttested handles POST /api/v1/oracle/price-attested: a
// signed submission whose signature must recover the claimed signer.
func (s *Service) SubmitPriceAttested(w http.ResponseWriter, r *http.Request) {
	var att oracle.Attestation
	if err := json.NewDecoder(r.Body).Decode(&att); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := oracle.VerifyAttestation(att); err != nil {
		writeError(w, err.Error(), http.StatusForbidden)
		return
	}
	if err := s.eng.PriceOracle().Submit(att.FeedKey, att.Value); err != nil {
		writeEngineError(w, err)
		return
	}
	metrics.OracleSubmissions.WithLabelValues("price_attested").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// RecordChain handles POST /api/v1/oracle/chain/record: triggers one
// self-sample of chain state.
func (s *Service) RecordChain(w http.ResponseWriter, r *http.Request) {
	sample, err := s.eng.ChainOracle().Record(r.Context())
	if err != nil {
		writeError(w, err.Error(), http.StatusBadGateway)
		return
	}
	metrics.OracleSubmissions.WithLabelValues("chain").Inc()
	writeJSON(w, http.StatusOK, sample)
}

// GetOracleValue handles GET /api/v1/oracle/{feedKey}. Checks the
// price adapter first, then the chain adapter's native keys.
func (s *Service) GetOracleValue(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "feedKey")

	if v, err := s.eng.PriceOracle().Value(key); err == nil {
		writeJSON(w, http.StatusOK, v)
		return
	}
	v, err := s.eng.ChainOracle().Value(key)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- Accounts ---

// DepositRequest is the JSON body for POST /accounts/deposit.
type DepositRequest struct {
	Participant string          `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`
}

// Deposit handles POST /api/v1/accounts/deposit.
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	bal, err := s.eng.Deposit(r.Context(), req.Participant, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": bal})
}

// GetBalance handles GET /api/v1/accounts/{participant}/balance.
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	bal, err := s.eng.Balance(r.Context(), chi.URLParam(r, "participant"))
	if err != nil {
		writeError(w, "failed to load balance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]decimal.Decimal{"balance": bal})
}

// --- Events ---

// GetEvents handles GET /api/v1/events?after=<seq>.
func (s *Service) GetEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, "invalid after parameter", http.StatusBadRequest)
			return
		}
		after = parsed
	}
	writeJSON(w, http.StatusOK, s.eng.Events().Entries(after))
}

// --- Helpers ---

func marketID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "marketID"), 10, 64)
	if err != nil {
		writeError(w, "invalid market id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// writeEngineError maps engine sentinel errors onto HTTP statuses:
// validation 400, authorization 403, not-found 404, state conflicts
// and oracle refusals 409, anything else 500.
func writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, market.ErrInvalidKind),
		errors.Is(err, market.ErrInvalidSide),
		errors.Is(err, market.ErrQuestionRequired),
		errors.Is(err, market.ErrTargetNotPositive),
		errors.Is(err, market.ErrDurationTooShort),
		errors.Is(err, market.ErrBlockWindowTooShort),
		errors.Is(err, market.ErrSeedMismatch),
		errors.Is(err, market.ErrParticipantRequired),
		errors.Is(err, market.ErrAmountNotPositive):
		status = http.StatusBadRequest

	case errors.Is(err, market.ErrUnauthorized):
		status = http.StatusForbidden

	case errors.Is(err, market.ErrMarketNotFound),
		errors.Is(err, oracle.ErrFeedNotFound):
		status = http.StatusNotFound

	case errors.Is(err, market.ErrMarketNotActive),
		errors.Is(err, market.ErrMarketExpired),
		errors.Is(err, market.ErrMarketNotExpired),
		errors.Is(err, market.ErrMarketNotResolved),
		errors.Is(err, market.ErrMarketNotVoided),
		errors.Is(err, market.ErrKindMismatch),
		errors.Is(err, market.ErrFeedMismatch),
		errors.Is(err, market.ErrVoidNotAllowed),
		errors.Is(err, market.ErrInsufficientBalance),
		errors.Is(err, market.ErrInsufficientShares),
		errors.Is(err, oracle.ErrFeedInactive),
		errors.Is(err, oracle.ErrStaleValue):
		status = http.StatusConflict
	}

	writeError(w, err.Error(), status)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
