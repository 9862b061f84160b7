package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DedupGuard implements domain.DedupGuard using SET NX EX, so the arbitrage
// dedup window holds across multiple coordinator instances sharing one Redis.
type DedupGuard struct {
	rdb *redis.Client
}

// NewDedupGuard creates a DedupGuard backed by the given Client.
func NewDedupGuard(c *Client) *DedupGuard {
	return &DedupGuard{rdb: c.Underlying()}
}

// FirstSeen records the key with the given TTL if it is not already present.
// It returns true when this caller is the first to see the key within the
// window.
func (d *DedupGuard) FirstSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, "dedup:"+key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup %s: %w", key, err)
	}
	return ok, nil
}
