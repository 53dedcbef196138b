package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	nextID    uint64
	markets   map[uint64]*model.Market
	positions map[string]*model.Position // key: marketID/participant
	balances  map[string]decimal.Decimal
	trades    []model.TradeRecord
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		markets:   make(map[uint64]*model.Market),
		positions: make(map[string]*model.Position),
		balances:  make(map[string]decimal.Decimal),
	}
}

func posKey(marketID uint64, participant string) string {
	return fmt.Sprintf("%d/%s", marketID, participant)
}

func (s *MemoryStore) NextMarketID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *MemoryStore) CreateMarket(_ context.Context, m *model.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.markets[m.ID]; ok {
		return fmt.Errorf("market %d already exists", m.ID)
	}

	// Store a copy to avoid external mutation.
	cp := *m
	s.markets[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMarket(_ context.Context, id uint64) (*model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("market %d not found", id)
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) ListMarkets(_ context.Context) ([]model.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	markets := make([]model.Market, 0, len(s.markets))
	for _, m := range s.markets {
		markets = append(markets, *m)
	}
	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	return markets, nil
}

func (s *MemoryStore) MarketCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.markets)), nil
}

func (s *MemoryStore) UpdateMarketPools(_ context.Context, id uint64, yesPool, noPool, totalVolume decimal.Decimal, tradeCount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %d not found", id)
	}
	m.YesPool = yesPool
	m.NoPool = noPool
	m.TotalVolume = totalVolume
	m.TradeCount = tradeCount
	return nil
}

func (s *MemoryStore) SetMarketTerminal(_ context.Context, id uint64, status model.MarketStatus, resolvedValue int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return fmt.Errorf("market %d not found", id)
	}
	if m.Status.Terminal() {
		return fmt.Errorf("market %d already terminal (%s)", id, m.Status)
	}
	m.Status = status
	m.ResolvedValue = resolvedValue
	return nil
}

func (s *MemoryStore) GetPosition(_ context.Context, marketID uint64, participant string) (*model.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[posKey(marketID, participant)]
	if !ok {
		return &model.Position{
			MarketID:    marketID,
			Participant: participant,
			YesShares:   decimal.Zero,
			NoShares:    decimal.Zero,
		}, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) PutPosition(_ context.Context, p *model.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	s.positions[posKey(p.MarketID, p.Participant)] = &cp
	return nil
}

func (s *MemoryStore) GetBalance(_ context.Context, participant string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[participant], nil
}

func (s *MemoryStore) SetBalance(_ context.Context, participant string, balance decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[participant] = balance
	return nil
}

func (s *MemoryStore) InsertTrade(_ context.Context, rec *model.TradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, *rec)
	return nil
}

func (s *MemoryStore) TradesByMarket(_ context.Context, marketID uint64) ([]model.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.TradeRecord
	for _, tr := range s.trades {
		if tr.MarketID == marketID {
			result = append(result, tr)
		}
	}
	return result, nil
}
