// Package model defines the core domain types shared across the
// settlement engine. All collateral and share quantities use
// shopspring/decimal — never float64 for money. Oracle values and
// market targets are int64 fixed-point; the unit is opaque to the
// engine and depends on the market kind.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketKind identifies which oracle path resolves a market.
type MarketKind string

const (
	KindPrice        MarketKind = "PRICE"
	KindSocialMetric MarketKind = "SOCIAL_METRIC"
	KindChainMetric  MarketKind = "CHAIN_METRIC"
)

// Valid reports whether k is a known market kind.
func (k MarketKind) Valid() bool {
	switch k {
	case KindPrice, KindSocialMetric, KindChainMetric:
		return true
	}
	return false
}

// MarketStatus is the lifecycle state of a market. Transitions are
// one-way: ACTIVE → {RESOLVED_YES, RESOLVED_NO, VOIDED}, never back.
type MarketStatus string

const (
	StatusActive      MarketStatus = "ACTIVE"
	StatusResolvedYes MarketStatus = "RESOLVED_YES"
	StatusResolvedNo  MarketStatus = "RESOLVED_NO"
	StatusVoided      MarketStatus = "VOIDED"
)

// Terminal reports whether no further transition is possible.
func (s MarketStatus) Terminal() bool {
	return s != StatusActive
}

// Side is one of the two outcome tokens.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid reports whether s is YES or NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Market is one two-outcome market with its constant-product pools.
// IDs are monotonically assigned. Exactly one of EndTime/EndBlock is
// authoritative: EndTime for PRICE and SOCIAL_METRIC markets, EndBlock
// for CHAIN_METRIC markets.
type Market struct {
	ID            uint64          `json:"id" db:"id"`
	Kind          MarketKind      `json:"kind" db:"kind"`
	FeedKey       string          `json:"feed_key" db:"feed_key"`
	Question      string          `json:"question" db:"question"`
	TargetValue   int64           `json:"target_value" db:"target_value"`
	SnapshotValue int64           `json:"snapshot_value" db:"snapshot_value"`
	EndTime       time.Time       `json:"end_time" db:"end_time"`
	EndBlock      uint64          `json:"end_block" db:"end_block"`
	Status        MarketStatus    `json:"status" db:"status"`
	ResolvedValue int64           `json:"resolved_value" db:"resolved_value"`
	YesPool       decimal.Decimal `json:"yes_pool" db:"yes_pool"`
	NoPool        decimal.Decimal `json:"no_pool" db:"no_pool"`
	TotalVolume   decimal.Decimal `json:"total_volume" db:"total_volume"`
	TradeCount    int64           `json:"trade_count" db:"trade_count"`
	Creator       string          `json:"creator" db:"creator"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`

	// Kind-specific metadata; exactly one is non-nil.
	PriceMeta  *PriceMeta  `json:"price_meta,omitempty"`
	SocialMeta *SocialMeta `json:"social_meta,omitempty"`
	ChainMeta  *ChainMeta  `json:"chain_meta,omitempty"`
}

// PriceMeta describes a PRICE market's underlying pair, e.g. "BTC/USD".
type PriceMeta struct {
	Pair string `json:"pair"`
}

// SocialMeta describes the external post a SOCIAL_METRIC market tracks.
type SocialMeta struct {
	PostID string `json:"post_id"`
	Author string `json:"author"`
	Metric string `json:"metric"` // e.g. "likes", "reposts"
}

// ChainMeta describes a CHAIN_METRIC market's sampled statistic and
// the block window it runs over.
type ChainMeta struct {
	Metric      string `json:"metric"` // external name, e.g. "ETH_GAS"
	BlockWindow uint64 `json:"block_window"`
}

// Position holds one participant's outcome-share balances in one
// market. Created on first trade; zeroed by claim/reclaim.
type Position struct {
	MarketID    uint64          `json:"market_id" db:"market_id"`
	Participant string          `json:"participant" db:"participant"`
	YesShares   decimal.Decimal `json:"yes_shares" db:"yes_shares"`
	NoShares    decimal.Decimal `json:"no_shares" db:"no_shares"`
}

// Empty reports whether both share balances are zero.
func (p *Position) Empty() bool {
	return p.YesShares.IsZero() && p.NoShares.IsZero()
}

// Shares returns the balance for one side.
func (p *Position) Shares(side Side) decimal.Decimal {
	if side == SideYes {
		return p.YesShares
	}
	return p.NoShares
}

// TradeRecord is an immutable record of a trade execution, including
// the resulting YES price so downstream charting can reconstruct the
// price series without re-querying.
type TradeRecord struct {
	ID            string          `json:"id" db:"id"`
	MarketID      uint64          `json:"market_id" db:"market_id"`
	Participant   string          `json:"participant" db:"participant"`
	Side          Side            `json:"side" db:"side"`
	IsBuy         bool            `json:"is_buy" db:"is_buy"`
	Collateral    decimal.Decimal `json:"collateral" db:"collateral"`
	Shares        decimal.Decimal `json:"shares" db:"shares"`
	YesPriceCents int64           `json:"yes_price_cents" db:"yes_price_cents"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// OracleValue is a cached feed reading with its freshness metadata.
type OracleValue struct {
	FeedKey   string    `json:"feed_key"`
	Value     int64     `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
	Active    bool      `json:"active"`
}
