package domain

import (
	"context"
	"time"
)

// MarketStore persists InfoFi market rows. The database enforces uniqueness
// on (season_id, lower(player_address), market_type); Create returns
// ErrDuplicateKey when that index fires and the caller recovers by reading
// the existing row.
type MarketStore interface {
	Create(ctx context.Context, m Market) (Market, error)
	Get(ctx context.Context, seasonID int64, playerAddress string, mt MarketType) (Market, error)
	GetByID(ctx context.Context, id int64) (Market, error)
	GetByContract(ctx context.Context, fpmmAddress string) (Market, error)
	Has(ctx context.Context, seasonID int64, playerAddress string, mt MarketType) (bool, error)
	ListBySeason(ctx context.Context, seasonID int64) ([]Market, error)
	ListActiveSeasons(ctx context.Context) ([]int64, error)
	// UpdateProbability writes a new current probability; it is a no-op when
	// the stored value already equals newBps.
	UpdateProbability(ctx context.Context, id int64, newBps int) error
	UpdateContractAddress(ctx context.Context, id int64, fpmmAddress string) error
	SettleSeason(ctx context.Context, seasonID int64) error
}

// PricingStore persists the hybrid pricing cache.
type PricingStore interface {
	Upsert(ctx context.Context, row PricingCacheRow) error
	Get(ctx context.Context, marketID int64) (PricingCacheRow, error)
}

// ArbStore persists arbitrage opportunity records. Insert does not enforce
// the dedup window; the caller consults the DedupGuard first.
type ArbStore interface {
	Insert(ctx context.Context, opp ArbitrageOpportunity) error
	ListRecent(ctx context.Context, limit int) ([]ArbitrageOpportunity, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArbitrageOpportunity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// CursorStore persists per-(network, event type) listener progress. Set
// rejects non-monotonic writes with ErrStaleCursor.
type CursorStore interface {
	Get(ctx context.Context, networkKey string, et EventType) (uint64, error)
	Set(ctx context.Context, networkKey string, et EventType, lastBlock uint64) error
}

// PlayerStore tracks known participant addresses.
type PlayerStore interface {
	GetOrCreate(ctx context.Context, address string) (Player, error)
}

// AttemptStore retains market-creation attempt records.
type AttemptStore interface {
	Record(ctx context.Context, a CreationAttempt) error
	HasPermanentFailure(ctx context.Context, seasonID int64, playerAddress string) (bool, error)
}

// PriceMirror is an optional cross-restart mirror of the stream hub's
// in-memory price cache (Redis-backed when configured).
type PriceMirror interface {
	Set(ctx context.Context, row PricingCacheRow) error
	All(ctx context.Context) ([]PricingCacheRow, error)
}

// DedupGuard answers whether a key has been seen within a TTL window, and
// records it if not. Used for the arbitrage dedup window; backed by Redis
// SET NX EX when available, otherwise by an in-process map.
type DedupGuard interface {
	FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
