// Package events defines the engine's append-only event log. Each
// event name has a fixed schema decoded into a tagged variant, so
// consumers pattern-match on concrete types instead of indexing into
// untyped tuples. Every event carries the fields needed to reconstruct
// state without re-querying the engine.
package events

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/model"
)

// Event is one of the fixed-schema engine events.
type Event interface {
	// Name is the stable event name used on the wire.
	Name() string
}

// MarketCreated records a new market and its full configuration.
type MarketCreated struct {
	MarketID    uint64           `json:"market_id"`
	Kind        model.MarketKind `json:"kind"`
	FeedKey     string           `json:"feed_key"`
	Question    string           `json:"question"`
	TargetValue int64            `json:"target_value"`
	EndTime     time.Time        `json:"end_time"`
	EndBlock    uint64           `json:"end_block"`
	Creator     string           `json:"creator"`
}

func (MarketCreated) Name() string { return "MarketCreated" }

// Trade records one buy or sell with the resulting YES price.
type Trade struct {
	MarketID         uint64          `json:"market_id"`
	Trader           string          `json:"trader"`
	Side             model.Side      `json:"side"`
	IsBuy            bool            `json:"is_buy"`
	CollateralAmount decimal.Decimal `json:"collateral_amount"`
	Shares           decimal.Decimal `json:"shares"`
	NewYesPriceCents int64           `json:"new_yes_price_cents"`
}

func (Trade) Name() string { return "Trade" }

// Resolved records the terminal transition of a market.
type Resolved struct {
	MarketID   uint64             `json:"market_id"`
	Outcome    model.MarketStatus `json:"outcome"`
	FinalValue int64              `json:"final_value"`
}

func (Resolved) Name() string { return "Resolved" }

// Claimed records one participant's settlement payout.
type Claimed struct {
	MarketID    uint64          `json:"market_id"`
	Participant string          `json:"participant"`
	Payout      decimal.Decimal `json:"payout"`
}

func (Claimed) Name() string { return "Claimed" }

// Voided records a market that could not be resolved.
type Voided struct {
	MarketID uint64 `json:"market_id"`
}

func (Voided) Name() string { return "Voided" }

// Entry is an event with its position in the log.
type Entry struct {
	Seq   uint64    `json:"seq"`
	At    time.Time `json:"at"`
	Event Event     `json:"event"`
}

// Log is an append-only, in-memory event log with subscriber fan-out.
// Appends never block on slow subscribers: a subscriber whose buffer
// is full misses entries and should re-read the log.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	seq     uint64
	subs    map[int]chan Entry
	nextSub int
	now     func() time.Time
}

// NewLog creates an empty log. Pass nil for now to use the wall clock.
func NewLog(now func() time.Time) *Log {
	if now == nil {
		now = time.Now
	}
	return &Log{
		subs: make(map[int]chan Entry),
		now:  now,
	}
}

// Append adds an event to the log and fans it out to subscribers.
func (l *Log) Append(ev Event) Entry {
	l.mu.Lock()
	l.seq++
	entry := Entry{Seq: l.seq, At: l.now(), Event: ev}
	l.entries = append(l.entries, entry)
	subs := make([]chan Entry, 0, len(l.subs))
	for _, ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- entry:
		default:
			// Drop rather than block the transactional path.
		}
	}
	return entry
}

// Subscribe returns a buffered channel of future entries and a cancel
// function that must be called when done.
func (l *Log) Subscribe() (<-chan Entry, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan Entry, 256)
	l.subs[id] = ch

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if existing, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Entries returns a copy of the log, optionally starting after seq.
func (l *Log) Entries(afterSeq uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for _, e := range l.entries {
		if e.Seq > afterSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of appended entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
