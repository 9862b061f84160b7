package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sofmarkets/infofid/internal/domain"
)

// PricingStore implements domain.PricingStore using PostgreSQL.
type PricingStore struct {
	pool *pgxpool.Pool
}

// NewPricingStore creates a new PricingStore backed by the given pool.
func NewPricingStore(pool *pgxpool.Pool) *PricingStore {
	return &PricingStore{pool: pool}
}

// Upsert writes one pricing cache row.
func (s *PricingStore) Upsert(ctx context.Context, row domain.PricingCacheRow) error {
	const query = `
		INSERT INTO pricing_cache (
			market_id, raffle_bps, sentiment_bps, hybrid_bps,
			raffle_weight_bps, market_weight_bps, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (market_id) DO UPDATE SET
			raffle_bps        = EXCLUDED.raffle_bps,
			sentiment_bps     = EXCLUDED.sentiment_bps,
			hybrid_bps        = EXCLUDED.hybrid_bps,
			raffle_weight_bps = EXCLUDED.raffle_weight_bps,
			market_weight_bps = EXCLUDED.market_weight_bps,
			last_updated      = NOW()`

	_, err := s.pool.Exec(ctx, query,
		row.MarketID, row.RaffleProbabilityBps, row.MarketSentimentBps, row.HybridPriceBps,
		row.RaffleWeightBps, row.MarketWeightBps,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert pricing for market %d: %w", row.MarketID, err)
	}
	return nil
}

// Get returns the pricing cache row for a market.
func (s *PricingStore) Get(ctx context.Context, marketID int64) (domain.PricingCacheRow, error) {
	const query = `
		SELECT market_id, raffle_bps, sentiment_bps, hybrid_bps,
		       raffle_weight_bps, market_weight_bps, last_updated
		FROM pricing_cache WHERE market_id = $1`

	var row domain.PricingCacheRow
	err := s.pool.QueryRow(ctx, query, marketID).Scan(
		&row.MarketID, &row.RaffleProbabilityBps, &row.MarketSentimentBps, &row.HybridPriceBps,
		&row.RaffleWeightBps, &row.MarketWeightBps, &row.LastUpdated,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PricingCacheRow{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PricingCacheRow{}, fmt.Errorf("postgres: get pricing for market %d: %w", marketID, err)
	}
	return row, nil
}
