package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sofmarkets/infofid/internal/domain"
)

// CursorStore implements domain.CursorStore using PostgreSQL. One row per
// (network_key, event_type); last_block is monotonic-non-decreasing.
type CursorStore struct {
	pool *pgxpool.Pool
}

// NewCursorStore creates a new CursorStore backed by the given pool.
func NewCursorStore(pool *pgxpool.Pool) *CursorStore {
	return &CursorStore{pool: pool}
}

// Get returns the last fully-processed block for the cursor, or
// domain.ErrNotFound if the event type has never been observed.
func (s *CursorStore) Get(ctx context.Context, networkKey string, et domain.EventType) (uint64, error) {
	const query = `
		SELECT last_block FROM event_cursors
		WHERE network_key = $1 AND event_type = $2`

	var last int64
	err := s.pool.QueryRow(ctx, query, networkKey, string(et)).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: get cursor %s/%s: %w", networkKey, et, err)
	}
	return uint64(last), nil
}

// Set advances the cursor. The guard in the ON CONFLICT clause makes the
// write monotonic: attempts to move the cursor backwards (or to the same
// block) return domain.ErrStaleCursor.
func (s *CursorStore) Set(ctx context.Context, networkKey string, et domain.EventType, lastBlock uint64) error {
	const query = `
		INSERT INTO event_cursors (network_key, event_type, last_block, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (network_key, event_type) DO UPDATE SET
			last_block = EXCLUDED.last_block,
			updated_at = NOW()
		WHERE event_cursors.last_block < EXCLUDED.last_block`

	tag, err := s.pool.Exec(ctx, query, networkKey, string(et), int64(lastBlock))
	if err != nil {
		return fmt.Errorf("postgres: set cursor %s/%s: %w", networkKey, et, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleCursor
	}
	return nil
}
