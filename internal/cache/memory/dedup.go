// Package memory provides in-process fallbacks for the optional Redis-backed
// caches.
package memory

import (
	"context"
	"sync"
	"time"
)

// DedupGuard implements domain.DedupGuard with an in-process map. Used when
// no Redis is configured; the dedup window then only holds within one
// coordinator instance.
type DedupGuard struct {
	seen map[string]time.Time
	mu   sync.Mutex
	now  func() time.Time
}

// NewDedupGuard creates an empty guard.
func NewDedupGuard() *DedupGuard {
	return &DedupGuard{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// FirstSeen reports whether key has not been seen within ttl, recording it
// when it has not. Expired entries are pruned opportunistically.
func (d *DedupGuard) FirstSeen(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if last, ok := d.seen[key]; ok && now.Sub(last) < ttl {
		return false, nil
	}
	d.seen[key] = now

	// Prune anything past its window to bound the map.
	for k, ts := range d.seen {
		if now.Sub(ts) >= ttl {
			delete(d.seen, k)
		}
	}
	return true, nil
}
