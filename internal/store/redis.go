package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and invalidate
// the cache; reads check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateMarket(ctx context.Context, m *model.Market) error {
	if err := s.primary.CreateMarket(ctx, m); err != nil {
		return err
	}
	s.cacheMarket(ctx, m)
	return nil
}

func (s *CachedStore) UpdateMarketPools(ctx context.Context, id uint64, yesPool, noPool, totalVolume decimal.Decimal, tradeCount int64) error {
	if err := s.primary.UpdateMarketPools(ctx, id, yesPool, noPool, totalVolume, tradeCount); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) SetMarketTerminal(ctx context.Context, id uint64, status model.MarketStatus, resolvedValue int64) error {
	if err := s.primary.SetMarketTerminal(ctx, id, status, resolvedValue); err != nil {
		return err
	}
	s.rdb.Del(ctx, marketKey(id))
	return nil
}

func (s *CachedStore) PutPosition(ctx context.Context, p *model.Position) error {
	if err := s.primary.PutPosition(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, positionKey(p.MarketID, p.Participant))
	return nil
}

func (s *CachedStore) SetBalance(ctx context.Context, participant string, balance decimal.Decimal) error {
	if err := s.primary.SetBalance(ctx, participant, balance); err != nil {
		return err
	}
	s.rdb.Del(ctx, balanceKey(participant))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetMarket(ctx context.Context, id uint64) (*model.Market, error) {
	data, err := s.rdb.Get(ctx, marketKey(id)).Bytes()
	if err == nil {
		var m model.Market
		if json.Unmarshal(data, &m) == nil {
			return &m, nil
		}
	}

	m, err := s.primary.GetMarket(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheMarket(ctx, m)
	return m, nil
}

func (s *CachedStore) GetPosition(ctx context.Context, marketID uint64, participant string) (*model.Position, error) {
	data, err := s.rdb.Get(ctx, positionKey(marketID, participant)).Bytes()
	if err == nil {
		var p model.Position
		if json.Unmarshal(data, &p) == nil {
			return &p, nil
		}
	}

	p, err := s.primary.GetPosition(ctx, marketID, participant)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		s.rdb.Set(ctx, positionKey(marketID, participant), data, s.ttl)
	}
	return p, nil
}

func (s *CachedStore) GetBalance(ctx context.Context, participant string) (decimal.Decimal, error) {
	val, err := s.rdb.Get(ctx, balanceKey(participant)).Result()
	if err == nil {
		if bal, perr := decimal.NewFromString(val); perr == nil {
			return bal, nil
		}
	}

	bal, err := s.primary.GetBalance(ctx, participant)
	if err != nil {
		return decimal.Zero, err
	}
	s.rdb.Set(ctx, balanceKey(participant), bal.String(), s.ttl)
	return bal, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) NextMarketID(ctx context.Context) (uint64, error) {
	return s.primary.NextMarketID(ctx)
}

func (s *CachedStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	return s.primary.ListMarkets(ctx)
}

func (s *CachedStore) MarketCount(ctx context.Context) (uint64, error) {
	return s.primary.MarketCount(ctx)
}

func (s *CachedStore) InsertTrade(ctx context.Context, rec *model.TradeRecord) error {
	return s.primary.InsertTrade(ctx, rec)
}

func (s *CachedStore) TradesByMarket(ctx context.Context, marketID uint64) ([]model.TradeRecord, error) {
	return s.primary.TradesByMarket(ctx, marketID)
}

// --- Cache helpers ---

func (s *CachedStore) cacheMarket(ctx context.Context, m *model.Market) {
	if data, err := json.Marshal(m); err == nil {
		s.rdb.Set(ctx, marketKey(m.ID), data, s.ttl)
	}
}

func marketKey(id uint64) string { return fmt.Sprintf("market:%d", id) }

func positionKey(marketID uint64, participant string) string {
	return fmt.Sprintf("position:%d:%s", marketID, participant)
}

func balanceKey(participant string) string { return fmt.Sprintf("balance:%s", participant) }
