// Package stream implements the price stream hub: an in-memory cache of the
// latest hybrid price per market with WebSocket fanout to subscribers.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sofmarkets/infofid/internal/domain"
)

const (
	// sendBufferSize is the per-subscriber outgoing buffer. A subscriber that
	// falls this far behind is dropped rather than allowed to stall the hub.
	sendBufferSize = 64

	// subscribeAll is the wildcard market key.
	subscribeAll = int64(-1)
)

// Subscriber is one attached consumer. Updates arrive on C; the hub closes C
// when the subscriber is dropped or the hub shuts down.
type Subscriber struct {
	C chan domain.PriceUpdate

	hub     *Hub
	markets map[int64]bool
	mu      sync.Mutex
}

// Hub caches the latest price per market and fans updates out to subscribers.
// Publish never blocks: slow subscribers are disconnected, and they recover
// the current state from the initial snapshot on reconnect.
type Hub struct {
	heartbeat time.Duration
	logger    *slog.Logger

	mu    sync.RWMutex
	cache map[int64]domain.PriceUpdate
	subs  map[*Subscriber]bool
	done  bool
}

// NewHub creates an empty hub.
func NewHub(heartbeat time.Duration, logger *slog.Logger) *Hub {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &Hub{
		heartbeat: heartbeat,
		logger:    logger.With(slog.String("component", "stream_hub")),
		cache:     make(map[int64]domain.PriceUpdate),
		subs:      make(map[*Subscriber]bool),
	}
}

// Warm seeds the cache from the cross-restart price mirror so reconnecting
// clients get snapshots before the first live update. Best effort; a mirror
// failure leaves the cache to fill from live traffic.
func (h *Hub) Warm(ctx context.Context, mirror domain.PriceMirror) {
	if mirror == nil {
		return
	}
	rows, err := mirror.All(ctx)
	if err != nil {
		h.logger.Warn("price mirror warm failed", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	for _, r := range rows {
		if _, live := h.cache[r.MarketID]; live {
			continue
		}
		h.cache[r.MarketID] = domain.PriceUpdate{
			Type:         "update",
			MarketID:     r.MarketID,
			RaffleBps:    r.RaffleProbabilityBps,
			SentimentBps: r.MarketSentimentBps,
			HybridBps:    r.HybridPriceBps,
			Ts:           r.LastUpdated.UnixMilli(),
		}
	}
	n := len(h.cache)
	h.mu.Unlock()
	h.logger.Info("price cache warmed", slog.Int("markets", n))
}

// Run sends heartbeats until ctx is cancelled, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return ctx.Err()
		case <-ticker.C:
			h.fanout(domain.PriceUpdate{
				Type: "heartbeat",
				Ts:   time.Now().UnixMilli(),
			}, true)
		}
	}
}

// Publish records the latest price for the market and fans it out to
// subscribers of that market and of the wildcard.
func (h *Hub) Publish(u domain.PriceUpdate) {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return
	}
	h.cache[u.MarketID] = u
	h.mu.Unlock()

	h.fanout(u, false)
}

// Snapshot returns the cached update for one market.
func (h *Hub) Snapshot(marketID int64) (domain.PriceUpdate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	u, ok := h.cache[marketID]
	return u, ok
}

// Subscribe attaches a consumer for the given markets; an empty list means
// all markets. The subscriber's channel is immediately seeded with "initial"
// snapshots for every matching cached market.
func (h *Hub) Subscribe(marketIDs ...int64) *Subscriber {
	s := &Subscriber{
		C:       make(chan domain.PriceUpdate, sendBufferSize),
		hub:     h,
		markets: make(map[int64]bool),
	}
	if len(marketIDs) == 0 {
		s.markets[subscribeAll] = true
	}
	for _, id := range marketIDs {
		s.markets[id] = true
	}

	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		close(s.C)
		return s
	}
	h.subs[s] = true
	var seed []domain.PriceUpdate
	for id, u := range h.cache {
		if s.wants(id) {
			u.Type = "initial"
			seed = append(seed, u)
		}
	}
	h.mu.Unlock()

	for _, u := range seed {
		select {
		case s.C <- u:
		default:
		}
	}
	return s
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscriber) Close() { s.hub.drop(s) }

// Set replaces the subscriber's market filter. An empty list subscribes to
// all markets. Newly matching markets are seeded with "initial" snapshots.
func (s *Subscriber) Set(marketIDs ...int64) {
	s.mu.Lock()
	old := s.markets
	s.markets = make(map[int64]bool)
	if len(marketIDs) == 0 {
		s.markets[subscribeAll] = true
	}
	for _, id := range marketIDs {
		s.markets[id] = true
	}
	s.mu.Unlock()

	s.hub.mu.RLock()
	var seed []domain.PriceUpdate
	for id, u := range s.hub.cache {
		if s.wants(id) && !old[id] && !old[subscribeAll] {
			u.Type = "initial"
			seed = append(seed, u)
		}
	}
	s.hub.mu.RUnlock()

	for _, u := range seed {
		select {
		case s.C <- u:
		default:
		}
	}
}

func (s *Subscriber) wants(marketID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markets[subscribeAll] || s.markets[marketID]
}

// fanout delivers one update to every matching subscriber, dropping any whose
// buffer is full. Heartbeats go to everyone.
func (h *Hub) fanout(u domain.PriceUpdate, everyone bool) {
	var slow []*Subscriber

	h.mu.RLock()
	for s := range h.subs {
		if !everyone && !s.wants(u.MarketID) {
			continue
		}
		select {
		case s.C <- u:
		default:
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("dropping slow subscriber")
		h.drop(s)
	}
}

func (h *Hub) drop(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[s] {
		delete(h.subs, s)
		close(s.C)
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
	for s := range h.subs {
		delete(h.subs, s)
		close(s.C)
	}
}

// MarshalUpdate encodes one update as the wire JSON sent to WebSocket
// clients.
func MarshalUpdate(u domain.PriceUpdate) ([]byte, error) {
	return json.Marshal(u)
}
