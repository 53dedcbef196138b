package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/forecastlab/settle-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All collateral and share values are stored as NUMERIC for
// exact decimal precision; kind-specific metadata is a JSONB column.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketColumns = `id, kind, feed_key, question, target_value, snapshot_value,
	end_time, end_block, status, resolved_value,
	yes_pool::TEXT, no_pool::TEXT, total_volume::TEXT, trade_count,
	creator, created_at, metadata`

func (s *PostgresStore) NextMarketID(ctx context.Context) (uint64, error) {
	var id uint64
	err := s.pool.QueryRow(ctx, `SELECT nextval('market_id_seq')`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next market id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	meta, err := marshalMeta(m)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO markets (id, kind, feed_key, question, target_value, snapshot_value,
		                      end_time, end_block, status, resolved_value,
		                      yes_pool, no_pool, total_volume, trade_count,
		                      creator, created_at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		         $11::NUMERIC, $12::NUMERIC, $13::NUMERIC, $14, $15, $16, $17)`,
		m.ID, string(m.Kind), m.FeedKey, m.Question, m.TargetValue, m.SnapshotValue,
		m.EndTime, m.EndBlock, string(m.Status), m.ResolvedValue,
		m.YesPool.String(), m.NoPool.String(), m.TotalVolume.String(), m.TradeCount,
		m.Creator, m.CreatedAt, meta,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id uint64) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)
	m, err := scanMarket(row)
	if err != nil {
		return nil, fmt.Errorf("get market %d: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) MarketCount(ctx context.Context) (uint64, error) {
	var n uint64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n)
	return n, err
}

func (s *PostgresStore) UpdateMarketPools(ctx context.Context, id uint64, yesPool, noPool, totalVolume decimal.Decimal, tradeCount int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET yes_pool = $2::NUMERIC, no_pool = $3::NUMERIC,
		     total_volume = $4::NUMERIC, trade_count = $5
		 WHERE id = $1`,
		id, yesPool.String(), noPool.String(), totalVolume.String(), tradeCount,
	)
	return err
}

func (s *PostgresStore) SetMarketTerminal(ctx context.Context, id uint64, status model.MarketStatus, resolvedValue int64) error {
	// Guard at the database too: only an ACTIVE market may transition.
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET status = $2, resolved_value = $3
		 WHERE id = $1 AND status = 'ACTIVE'`,
		id, string(status), resolvedValue,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("market %d not found or already terminal", id)
	}
	return nil
}

func (s *PostgresStore) GetPosition(ctx context.Context, marketID uint64, participant string) (*model.Position, error) {
	var yesS, noS string
	err := s.pool.QueryRow(ctx,
		`SELECT yes_shares::TEXT, no_shares::TEXT
		 FROM positions WHERE market_id = $1 AND participant = $2`,
		marketID, participant).Scan(&yesS, &noS)
	if err == pgx.ErrNoRows {
		return &model.Position{
			MarketID:    marketID,
			Participant: participant,
			YesShares:   decimal.Zero,
			NoShares:    decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get position %d/%s: %w", marketID, participant, err)
	}

	p := &model.Position{MarketID: marketID, Participant: participant}
	p.YesShares, _ = decimal.NewFromString(yesS)
	p.NoShares, _ = decimal.NewFromString(noS)
	return p, nil
}

func (s *PostgresStore) PutPosition(ctx context.Context, p *model.Position) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO positions (market_id, participant, yes_shares, no_shares)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC)
		 ON CONFLICT (market_id, participant)
		 DO UPDATE SET yes_shares = EXCLUDED.yes_shares, no_shares = EXCLUDED.no_shares`,
		p.MarketID, p.Participant, p.YesShares.String(), p.NoShares.String(),
	)
	return err
}

func (s *PostgresStore) GetBalance(ctx context.Context, participant string) (decimal.Decimal, error) {
	var balS string
	err := s.pool.QueryRow(ctx,
		`SELECT balance::TEXT FROM accounts WHERE participant = $1`,
		participant).Scan(&balS)
	if err == pgx.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s: %w", participant, err)
	}
	bal, _ := decimal.NewFromString(balS)
	return bal, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, participant string, balance decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (participant, balance)
		 VALUES ($1, $2::NUMERIC)
		 ON CONFLICT (participant) DO UPDATE SET balance = EXCLUDED.balance`,
		participant, balance.String(),
	)
	return err
}

func (s *PostgresStore) InsertTrade(ctx context.Context, rec *model.TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, market_id, participant, side, is_buy,
		                     collateral, shares, yes_price_cents, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8, $9)`,
		rec.ID, rec.MarketID, rec.Participant, string(rec.Side), rec.IsBuy,
		rec.Collateral.String(), rec.Shares.String(), rec.YesPriceCents, rec.Timestamp,
	)
	return err
}

func (s *PostgresStore) TradesByMarket(ctx context.Context, marketID uint64) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, participant, side, is_buy,
		        collateral::TEXT, shares::TEXT, yes_price_cents, timestamp
		 FROM trades WHERE market_id = $1 ORDER BY timestamp`, marketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.TradeRecord
	for rows.Next() {
		var rec model.TradeRecord
		var side, collS, sharesS string
		if err := rows.Scan(&rec.ID, &rec.MarketID, &rec.Participant, &side, &rec.IsBuy,
			&collS, &sharesS, &rec.YesPriceCents, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.Side = model.Side(side)
		rec.Collateral, _ = decimal.NewFromString(collS)
		rec.Shares, _ = decimal.NewFromString(sharesS)
		trades = append(trades, rec)
	}
	return trades, rows.Err()
}

// marketMeta is the JSONB envelope for kind-specific metadata.
type marketMeta struct {
	Price  *model.PriceMeta  `json:"price,omitempty"`
	Social *model.SocialMeta `json:"social,omitempty"`
	Chain  *model.ChainMeta  `json:"chain,omitempty"`
}

func marshalMeta(m *model.Market) ([]byte, error) {
	meta := marketMeta{Price: m.PriceMeta, Social: m.SocialMeta, Chain: m.ChainMeta}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal market metadata: %w", err)
	}
	return data, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMarket(row rowScanner) (*model.Market, error) {
	var m model.Market
	var kind, status, yesS, noS, volS string
	var metaRaw []byte

	if err := row.Scan(&m.ID, &kind, &m.FeedKey, &m.Question, &m.TargetValue, &m.SnapshotValue,
		&m.EndTime, &m.EndBlock, &status, &m.ResolvedValue,
		&yesS, &noS, &volS, &m.TradeCount,
		&m.Creator, &m.CreatedAt, &metaRaw); err != nil {
		return nil, err
	}

	m.Kind = model.MarketKind(kind)
	m.Status = model.MarketStatus(status)
	m.YesPool, _ = decimal.NewFromString(yesS)
	m.NoPool, _ = decimal.NewFromString(noS)
	m.TotalVolume, _ = decimal.NewFromString(volS)

	var meta marketMeta
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			return nil, fmt.Errorf("unmarshal market metadata: %w", err)
		}
	}
	m.PriceMeta = meta.Price
	m.SocialMeta = meta.Social
	m.ChainMeta = meta.Chain

	return &m, nil
}
