// Package store defines the persistence interface for the settlement
// engine. Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and development).
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/model"
)

// Store is the persistence interface. The engine serializes all
// state-changing calls, so implementations only need to be safe for
// concurrent reads alongside one writer.
type Store interface {
	// --- Market registry ---

	// NextMarketID returns the next monotonically assigned market id.
	NextMarketID(ctx context.Context) (uint64, error)

	// CreateMarket persists a new market.
	CreateMarket(ctx context.Context, m *model.Market) error

	// GetMarket retrieves a market by id.
	GetMarket(ctx context.Context, id uint64) (*model.Market, error)

	// ListMarkets returns all markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)

	// MarketCount returns the number of markets ever created.
	MarketCount(ctx context.Context) (uint64, error)

	// UpdateMarketPools updates AMM state after a trade.
	UpdateMarketPools(ctx context.Context, id uint64, yesPool, noPool, totalVolume decimal.Decimal, tradeCount int64) error

	// SetMarketTerminal performs the one-way ACTIVE → terminal
	// transition. Implementations must refuse the write if the market
	// is already terminal.
	SetMarketTerminal(ctx context.Context, id uint64, status model.MarketStatus, resolvedValue int64) error

	// --- Share ledger ---

	// GetPosition returns a participant's position, zero-valued if the
	// participant has never traded the market.
	GetPosition(ctx context.Context, marketID uint64, participant string) (*model.Position, error)

	// PutPosition stores a position, replacing any existing balances.
	PutPosition(ctx context.Context, p *model.Position) error

	// --- Collateral accounts ---

	// GetBalance returns a participant's collateral balance (zero for
	// unknown participants).
	GetBalance(ctx context.Context, participant string) (decimal.Decimal, error)

	// SetBalance stores a participant's collateral balance.
	SetBalance(ctx context.Context, participant string, balance decimal.Decimal) error

	// --- Immutable trade records ---

	// InsertTrade appends an immutable trade record.
	InsertTrade(ctx context.Context, rec *model.TradeRecord) error

	// TradesByMarket returns all trades for a market in order.
	TradesByMarket(ctx context.Context, marketID uint64) ([]model.TradeRecord, error)
}
