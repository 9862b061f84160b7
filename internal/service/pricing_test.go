package service

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sofmarkets/infofid/internal/domain"
)

func staticFPMM(yesBps int) FPMMReader {
	return func(context.Context, common.Address) (int, int, error) {
		return yesBps, domain.BpsMax - yesBps, nil
	}
}

func newPricing(store *fakePricingStore, arbs *fakeArbStore, dedup *fakeDedup, read FPMMReader, pub *fakePublisher) *PricingService {
	cfg := PricingConfig{
		RaffleWeightBps:       domain.DefaultRaffleWeightBps,
		MarketWeightBps:       domain.DefaultMarketWeightBps,
		ArbitrageThresholdBps: 200,
		DedupWindow:           5 * time.Minute,
	}
	return NewPricingService(newFakeMarketStore(), store, arbs, dedup, nil, read, pub, nil, cfg, testLogger())
}

func TestRefreshMarketWithoutContract(t *testing.T) {
	t.Parallel()

	store := newFakePricingStore()
	arbs := &fakeArbStore{}
	pub := &fakePublisher{}
	// The reader must not be consulted before the FPMM is deployed.
	read := func(context.Context, common.Address) (int, int, error) {
		t.Error("fpmm read for a market without a contract")
		return 0, 0, nil
	}

	s := newPricing(store, arbs, newFakeDedup(), read, pub)
	m := domain.Market{ID: 4, SeasonID: 1, CurrentProbabilityBps: 2500, IsActive: true}
	if err := s.RefreshMarket(context.Background(), m); err != nil {
		t.Fatalf("RefreshMarket: %v", err)
	}

	row, err := store.Get(context.Background(), 4)
	if err != nil {
		t.Fatalf("pricing row not written: %v", err)
	}
	if row.MarketSentimentBps != 2500 || row.HybridPriceBps != 2500 {
		t.Errorf("row = %+v, want sentiment and hybrid seeded to the raffle price", row)
	}
	if arbs.count() != 0 {
		t.Errorf("arb inserts = %d, want none for a non-tradable market", arbs.count())
	}
	if pub.count() != 1 {
		t.Errorf("publishes = %d, want 1", pub.count())
	}
	if pub.updates[0].Type != "update" || pub.updates[0].HybridBps != 2500 {
		t.Errorf("published update = %+v", pub.updates[0])
	}
}

func TestRefreshMarketBlendsTradedPrice(t *testing.T) {
	t.Parallel()

	store := newFakePricingStore()
	s := newPricing(store, &fakeArbStore{}, newFakeDedup(), staticFPMM(2000), &fakePublisher{})

	m := domain.Market{
		ID: 5, SeasonID: 1, CurrentProbabilityBps: 3000,
		ContractAddress: "0x00000000000000000000000000000000000000f1", IsActive: true,
	}
	if err := s.RefreshMarket(context.Background(), m); err != nil {
		t.Fatalf("RefreshMarket: %v", err)
	}

	row, _ := store.Get(context.Background(), 5)
	// 70% of 3000 plus 30% of 2000.
	if row.HybridPriceBps != 2700 {
		t.Errorf("hybrid = %d, want 2700", row.HybridPriceBps)
	}
	if row.RaffleProbabilityBps != 3000 || row.MarketSentimentBps != 2000 {
		t.Errorf("row = %+v", row)
	}
}

func TestRefreshMarketRecordsArbitrageOnce(t *testing.T) {
	t.Parallel()

	store := newFakePricingStore()
	arbs := &fakeArbStore{}
	s := newPricing(store, arbs, newFakeDedup(), staticFPMM(2700), &fakePublisher{})

	m := domain.Market{
		ID: 6, SeasonID: 2, PlayerAddress: alice, CurrentProbabilityBps: 2500,
		ContractAddress: "0x00000000000000000000000000000000000000f2", IsActive: true,
	}

	if err := s.RefreshMarket(context.Background(), m); err != nil {
		t.Fatalf("RefreshMarket: %v", err)
	}
	if arbs.count() != 1 {
		t.Fatalf("arb inserts = %d, want 1 for a 200 bps gap", arbs.count())
	}

	// The gap persists on the next poll; the dedup window suppresses it.
	if err := s.RefreshMarket(context.Background(), m); err != nil {
		t.Fatalf("RefreshMarket: %v", err)
	}
	if arbs.count() != 1 {
		t.Errorf("arb inserts = %d, want the repeat suppressed", arbs.count())
	}

	opp := arbs.opps[0]
	if opp.SeasonID != 2 || opp.MarketID != 6 || opp.ProfitabilityPct != 8.0 {
		t.Errorf("opportunity = %+v", opp)
	}
}

func TestRefreshMarketBelowThresholdNoArb(t *testing.T) {
	t.Parallel()

	arbs := &fakeArbStore{}
	s := newPricing(newFakePricingStore(), arbs, newFakeDedup(), staticFPMM(2650), &fakePublisher{})

	m := domain.Market{
		ID: 7, SeasonID: 2, CurrentProbabilityBps: 2500,
		ContractAddress: "0x00000000000000000000000000000000000000f3", IsActive: true,
	}
	if err := s.RefreshMarket(context.Background(), m); err != nil {
		t.Fatalf("RefreshMarket: %v", err)
	}
	if arbs.count() != 0 {
		t.Errorf("arb inserts = %d, want none for a 150 bps gap", arbs.count())
	}
}

func TestPricingConfigNormalization(t *testing.T) {
	t.Parallel()

	cfg := PricingConfig{RaffleWeightBps: 9000, MarketWeightBps: 3000}
	s := NewPricingService(newFakeMarketStore(), newFakePricingStore(), &fakeArbStore{},
		newFakeDedup(), nil, staticFPMM(5000), nil, nil, cfg, testLogger())

	if s.cfg.RaffleWeightBps != domain.DefaultRaffleWeightBps ||
		s.cfg.MarketWeightBps != domain.DefaultMarketWeightBps {
		t.Errorf("weights = %d/%d, want defaults when the pair does not sum to %d",
			s.cfg.RaffleWeightBps, s.cfg.MarketWeightBps, domain.BpsMax)
	}
	if s.cfg.DedupWindow != 5*time.Minute {
		t.Errorf("dedup window = %v, want the 5m default", s.cfg.DedupWindow)
	}
}

func TestMonitorSeasonLifecycle(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	markets.add(domain.Market{SeasonID: 9, PlayerAddress: alice, CurrentProbabilityBps: 4000, IsActive: true})

	store := newFakePricingStore()
	pricing := newPricing(store, &fakeArbStore{}, newFakeDedup(), staticFPMM(4000), &fakePublisher{})
	pricing.markets = markets

	mon := NewMonitor(pricing, markets, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon.StartSeason(ctx, 9)
	mon.StartSeason(ctx, 9) // idempotent

	deadline := time.After(2 * time.Second)
	for {
		if _, err := store.Get(context.Background(), 1); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("monitor never refreshed the season's market")
		case <-time.After(5 * time.Millisecond):
		}
	}

	mon.StopSeason(9)
	mon.StopSeason(42) // unknown season is a no-op
	mon.Wait()
}

func TestMonitorResume(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	markets.add(domain.Market{SeasonID: 3, PlayerAddress: alice, CurrentProbabilityBps: 1000, IsActive: true})
	markets.add(domain.Market{SeasonID: 4, PlayerAddress: bob, CurrentProbabilityBps: 2000, IsActive: true})

	store := newFakePricingStore()
	pricing := newPricing(store, &fakeArbStore{}, newFakeDedup(), staticFPMM(1500), &fakePublisher{})
	pricing.markets = markets

	mon := NewMonitor(pricing, markets, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := mon.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		_, err3 := store.Get(context.Background(), 1)
		_, err4 := store.Get(context.Background(), 2)
		if err3 == nil && err4 == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("resume did not refresh both seasons")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	mon.Wait()
}
