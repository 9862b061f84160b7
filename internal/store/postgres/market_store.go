package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sofmarkets/infofid/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, season_id, player_address, market_type,
	initial_probability_bps, current_probability_bps,
	condition_id, COALESCE(contract_address, ''), is_active, is_settled,
	ts_created, ts_updated`

func scanMarket(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	var mt string
	err := row.Scan(
		&m.ID, &m.SeasonID, &m.PlayerAddress, &mt,
		&m.InitialProbabilityBps, &m.CurrentProbabilityBps,
		&m.ConditionID, &m.ContractAddress, &m.IsActive, &m.IsSettled,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.MarketType = domain.MarketType(mt)
	return m, nil
}

// Create inserts a new market row. The unique index on
// (season_id, lower(player_address), market_type) converts replayed or
// concurrent inserts into domain.ErrDuplicateKey.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (domain.Market, error) {
	const query = `
		INSERT INTO markets (
			season_id, player_address, market_type,
			initial_probability_bps, current_probability_bps,
			condition_id, contract_address, is_active, is_settled
		) VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)
		RETURNING ` + marketSelectCols

	row := s.pool.QueryRow(ctx, query,
		m.SeasonID, domain.NormalizeAddress(m.PlayerAddress), string(m.MarketType),
		m.InitialProbabilityBps, m.CurrentProbabilityBps,
		m.ConditionID, m.ContractAddress, m.IsActive, m.IsSettled,
	)
	created, err := scanMarket(row)
	if err != nil {
		return domain.Market{}, mapError(fmt.Sprintf("create market s%d/%s", m.SeasonID, m.PlayerAddress), err)
	}
	return created, nil
}

// Get returns the market for the composite key. Address comparison is
// case-insensitive.
func (s *MarketStore) Get(ctx context.Context, seasonID int64, playerAddress string, mt domain.MarketType) (domain.Market, error) {
	const query = `
		SELECT ` + marketSelectCols + `
		FROM markets
		WHERE season_id = $1 AND lower(player_address) = $2 AND market_type = $3`

	row := s.pool.QueryRow(ctx, query, seasonID, domain.NormalizeAddress(playerAddress), string(mt))
	m, err := scanMarket(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market: %w", err)
	}
	return m, nil
}

// GetByID returns the market with the given id.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.Market, error) {
	const query = `SELECT ` + marketSelectCols + ` FROM markets WHERE id = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// GetByContract returns the market whose deployed FPMM contract is at the
// given address.
func (s *MarketStore) GetByContract(ctx context.Context, fpmmAddress string) (domain.Market, error) {
	const query = `
		SELECT ` + marketSelectCols + `
		FROM markets
		WHERE lower(contract_address) = $1`

	m, err := scanMarket(s.pool.QueryRow(ctx, query, domain.NormalizeAddress(fpmmAddress)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market by contract %s: %w", fpmmAddress, err)
	}
	return m, nil
}

// Has reports whether a market row exists for the composite key.
func (s *MarketStore) Has(ctx context.Context, seasonID int64, playerAddress string, mt domain.MarketType) (bool, error) {
	const query = `
		SELECT EXISTS(
			SELECT 1 FROM markets
			WHERE season_id = $1 AND lower(player_address) = $2 AND market_type = $3
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, seasonID, domain.NormalizeAddress(playerAddress), string(mt)).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: has market: %w", err)
	}
	return exists, nil
}

// ListBySeason returns all active markets for a season.
func (s *MarketStore) ListBySeason(ctx context.Context, seasonID int64) ([]domain.Market, error) {
	const query = `
		SELECT ` + marketSelectCols + `
		FROM markets
		WHERE season_id = $1 AND is_active
		ORDER BY id`

	rows, err := s.pool.Query(ctx, query, seasonID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets for season %d: %w", seasonID, err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListActiveSeasons returns the distinct season ids with active, unsettled
// markets. Used at startup to resume one monitor loop per live season.
func (s *MarketStore) ListActiveSeasons(ctx context.Context) ([]int64, error) {
	const query = `
		SELECT DISTINCT season_id FROM markets
		WHERE is_active AND NOT is_settled
		ORDER BY season_id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active seasons: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan season id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpdateProbability writes a new current probability. The WHERE clause makes
// it a no-op when the stored value already equals newBps, so replayed events
// cause no write churn.
func (s *MarketStore) UpdateProbability(ctx context.Context, id int64, newBps int) error {
	const query = `
		UPDATE markets SET
			current_probability_bps = $2,
			ts_updated = NOW()
		WHERE id = $1 AND current_probability_bps <> $2`

	if _, err := s.pool.Exec(ctx, query, id, newBps); err != nil {
		return fmt.Errorf("postgres: update market %d probability: %w", id, err)
	}
	return nil
}

// UpdateContractAddress records the deployed FPMM address for a market.
func (s *MarketStore) UpdateContractAddress(ctx context.Context, id int64, fpmmAddress string) error {
	const query = `
		UPDATE markets SET
			contract_address = $2,
			ts_updated = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, domain.NormalizeAddress(fpmmAddress))
	if err != nil {
		return fmt.Errorf("postgres: update market %d contract address: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SettleSeason marks every market in the season settled and inactive.
func (s *MarketStore) SettleSeason(ctx context.Context, seasonID int64) error {
	const query = `
		UPDATE markets SET
			is_settled = TRUE,
			is_active = FALSE,
			ts_updated = NOW()
		WHERE season_id = $1 AND NOT is_settled`

	if _, err := s.pool.Exec(ctx, query, seasonID); err != nil {
		return fmt.Errorf("postgres: settle season %d: %w", seasonID, err)
	}
	return nil
}
