package stream

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/sofmarkets/infofid/internal/domain"
)

func newTestHub() *Hub {
	return NewHub(time.Hour, slog.New(slog.DiscardHandler))
}

func update(marketID int64, hybridBps int) domain.PriceUpdate {
	return domain.PriceUpdate{
		Type:      "update",
		MarketID:  marketID,
		HybridBps: hybridBps,
		Ts:        time.Now().UnixMilli(),
	}
}

func recv(t *testing.T, c chan domain.PriceUpdate) domain.PriceUpdate {
	t.Helper()
	select {
	case u, ok := <-c:
		if !ok {
			t.Fatal("subscriber channel closed unexpectedly")
		}
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
	}
	return domain.PriceUpdate{}
}

func TestPublishFansOut(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	all := h.Subscribe()
	one := h.Subscribe(7)

	h.Publish(update(7, 2500))
	h.Publish(update(8, 4000))

	if u := recv(t, all.C); u.MarketID != 7 {
		t.Errorf("wildcard first update market = %d, want 7", u.MarketID)
	}
	if u := recv(t, all.C); u.MarketID != 8 {
		t.Errorf("wildcard second update market = %d, want 8", u.MarketID)
	}

	if u := recv(t, one.C); u.MarketID != 7 {
		t.Errorf("filtered update market = %d, want 7", u.MarketID)
	}
	select {
	case u := <-one.C:
		t.Errorf("filtered subscriber received market %d", u.MarketID)
	default:
	}
}

func TestSubscribeSeedsInitialSnapshot(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	h.Publish(update(3, 1200))
	h.Publish(update(4, 3400))

	s := h.Subscribe(4)
	u := recv(t, s.C)
	if u.Type != "initial" || u.MarketID != 4 || u.HybridBps != 3400 {
		t.Errorf("seed = %+v, want initial snapshot of market 4", u)
	}
	select {
	case extra := <-s.C:
		t.Errorf("unexpected extra seed %+v", extra)
	default:
	}
}

func TestSetRefiltersAndSeeds(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	h.Publish(update(1, 100))
	h.Publish(update(2, 200))

	s := h.Subscribe(1)
	recv(t, s.C) // initial for market 1

	s.Set(2)
	u := recv(t, s.C)
	if u.Type != "initial" || u.MarketID != 2 {
		t.Errorf("seed after Set = %+v, want initial snapshot of market 2", u)
	}

	h.Publish(update(1, 150))
	h.Publish(update(2, 250))
	if u := recv(t, s.C); u.MarketID != 2 || u.HybridBps != 250 {
		t.Errorf("update after Set = %+v, want market 2 only", u)
	}
}

func TestSnapshotTracksLatest(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	if _, ok := h.Snapshot(5); ok {
		t.Error("snapshot before any publish")
	}
	h.Publish(update(5, 1000))
	h.Publish(update(5, 1100))
	u, ok := h.Snapshot(5)
	if !ok || u.HybridBps != 1100 {
		t.Errorf("snapshot = %+v (%v), want latest 1100", u, ok)
	}
}

func TestSlowSubscriberDropped(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	s := h.Subscribe()

	// Never drained: overflow the send buffer by one.
	for i := 0; i <= sendBufferSize; i++ {
		h.Publish(update(int64(i), i))
	}

	// Draining terminates only because the hub closed the channel.
	for range s.C {
	}

	// Dropped subscribers no longer receive publishes.
	h.Publish(update(99, 1))
	if _, ok := h.Snapshot(99); !ok {
		t.Error("publish after drop must still cache")
	}
}

func TestRunShutdownClosesSubscribers(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	s := h.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	cancel()
	if err := <-done; err != context.Canceled {
		t.Errorf("Run returned %v, want context.Canceled", err)
	}

	if _, ok := <-s.C; ok {
		t.Error("subscriber channel still open after shutdown")
	}

	// Post-shutdown subscribers get a closed channel immediately.
	late := h.Subscribe()
	if _, ok := <-late.C; ok {
		t.Error("late subscriber channel should be closed")
	}
}

func TestWarmSeedsFromMirror(t *testing.T) {
	t.Parallel()

	h := newTestHub()
	h.Publish(update(1, 999))

	mirror := fakeMirror{
		{MarketID: 1, HybridPriceBps: 500, LastUpdated: time.Now()},
		{MarketID: 2, HybridPriceBps: 2600, LastUpdated: time.Now()},
	}
	h.Warm(context.Background(), mirror)

	// Live entries win over mirrored ones.
	if u, _ := h.Snapshot(1); u.HybridBps != 999 {
		t.Errorf("market 1 = %+v, want the live 999 kept", u)
	}
	if u, ok := h.Snapshot(2); !ok || u.HybridBps != 2600 {
		t.Errorf("market 2 = %+v (%v), want mirrored 2600", u, ok)
	}
}

type fakeMirror []domain.PricingCacheRow

func (m fakeMirror) Set(context.Context, domain.PricingCacheRow) error { return nil }

func (m fakeMirror) All(context.Context) ([]domain.PricingCacheRow, error) {
	return []domain.PricingCacheRow(m), nil
}
