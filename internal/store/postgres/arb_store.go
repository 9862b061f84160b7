package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sofmarkets/infofid/internal/domain"
)

// ArbStore implements domain.ArbStore using PostgreSQL. Rows are append-only.
type ArbStore struct {
	pool *pgxpool.Pool
}

// NewArbStore creates a new ArbStore backed by the given pool.
func NewArbStore(pool *pgxpool.Pool) *ArbStore {
	return &ArbStore{pool: pool}
}

const arbSelectCols = `id, season_id, player_address, market_id,
	raffle_pct, market_pct, price_diff_pct, profitability_pct,
	strategy_text, created_at`

func scanArb(row pgx.Row) (domain.ArbitrageOpportunity, error) {
	var o domain.ArbitrageOpportunity
	err := row.Scan(
		&o.ID, &o.SeasonID, &o.PlayerAddress, &o.MarketID,
		&o.RafflePricePct, &o.MarketPricePct, &o.PriceDifferencePct, &o.ProfitabilityPct,
		&o.StrategyText, &o.CreatedAt,
	)
	return o, err
}

// Insert stores a new arbitrage opportunity. The dedup window is enforced by
// the caller before Insert.
func (s *ArbStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	const query = `
		INSERT INTO arbitrage (
			id, season_id, player_address, market_id,
			raffle_pct, market_pct, price_diff_pct, profitability_pct,
			strategy_text, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	createdAt := opp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.SeasonID, domain.NormalizeAddress(opp.PlayerAddress), opp.MarketID,
		opp.RafflePricePct, opp.MarketPricePct, opp.PriceDifferencePct, opp.ProfitabilityPct,
		opp.StrategyText, createdAt,
	)
	if err != nil {
		return mapError(fmt.Sprintf("insert arbitrage %s", opp.ID), err)
	}
	return nil
}

// ListRecent returns the newest arbitrage rows, most recent first.
func (s *ArbStore) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + arbSelectCols + `
		FROM arbitrage ORDER BY created_at DESC LIMIT $1`

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent arbitrage: %w", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOpportunity
	for rows.Next() {
		o, err := scanArb(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan arbitrage: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ListBefore returns all rows created strictly before the cutoff, oldest
// first. Used by the cold-storage archiver.
func (s *ArbStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	const query = `
		SELECT ` + arbSelectCols + `
		FROM arbitrage WHERE created_at < $1
		ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list arbitrage before %s: %w", before, err)
	}
	defer rows.Close()

	var out []domain.ArbitrageOpportunity
	for rows.Next() {
		o, err := scanArb(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan arbitrage: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// DeleteBefore removes archived rows. Only called after the archive upload
// has been verified.
func (s *ArbStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM arbitrage WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete arbitrage before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}
