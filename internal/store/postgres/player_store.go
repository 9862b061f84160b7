package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sofmarkets/infofid/internal/domain"
)

// PlayerStore implements domain.PlayerStore using PostgreSQL.
type PlayerStore struct {
	pool *pgxpool.Pool
}

// NewPlayerStore creates a new PlayerStore backed by the given pool.
func NewPlayerStore(pool *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

// GetOrCreate returns the player row for an address, inserting it on first
// sight. The address is canonicalized to lowercase before any query.
func (s *PlayerStore) GetOrCreate(ctx context.Context, address string) (domain.Player, error) {
	addr := domain.NormalizeAddress(address)

	const query = `
		INSERT INTO players (address) VALUES ($1)
		ON CONFLICT (address) DO UPDATE SET address = EXCLUDED.address
		RETURNING id, address, created_at`

	var p domain.Player
	err := s.pool.QueryRow(ctx, query, addr).Scan(&p.ID, &p.Address, &p.CreatedAt)
	if err != nil {
		return domain.Player{}, fmt.Errorf("postgres: get or create player %s: %w", addr, err)
	}
	return p, nil
}
