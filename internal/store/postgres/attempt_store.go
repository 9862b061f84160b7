package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sofmarkets/infofid/internal/domain"
)

// AttemptStore implements domain.AttemptStore using PostgreSQL. Attempt rows
// are operator-facing diagnostics; end users never see creation failures.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates a new AttemptStore backed by the given pool.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// Record stores one market-creation attempt.
func (s *AttemptStore) Record(ctx context.Context, a domain.CreationAttempt) error {
	const query = `
		INSERT INTO market_creation_attempts (
			season_id, player_address, attempt, tx_hash,
			error_kind, error_detail, permanent
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		a.SeasonID, domain.NormalizeAddress(a.PlayerAddress), a.Attempt, a.TxHash,
		a.ErrorKind, a.ErrorDetail, a.Permanent,
	)
	if err != nil {
		return fmt.Errorf("postgres: record creation attempt s%d/%s: %w", a.SeasonID, a.PlayerAddress, err)
	}
	return nil
}

// HasPermanentFailure reports whether creation for the pair has failed with a
// contract revert, which is never retried.
func (s *AttemptStore) HasPermanentFailure(ctx context.Context, seasonID int64, playerAddress string) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM market_creation_attempts
			WHERE season_id = $1 AND player_address = $2 AND permanent
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, seasonID, domain.NormalizeAddress(playerAddress)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: check permanent failure s%d/%s: %w", seasonID, playerAddress, err)
	}
	return exists, nil
}
