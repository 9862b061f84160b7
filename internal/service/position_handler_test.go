package service

import (
	"context"
	"testing"

	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/domain"
)

const (
	alice = "0x00000000000000000000000000000000000000a1"
	bob   = "0x00000000000000000000000000000000000000b2"
)

func newPositionHandler(raffle *fakeRaffle, oracle *fakeOracle, markets *fakeMarketStore) *PositionHandler {
	return NewPositionHandler(raffle, oracle, markets, fakePlayerStore{}, nil, 10, 100, testLogger())
}

func TestPositionHandlerRecomputesAllMarkets(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	mAlice := markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: alice, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 5000, IsActive: true,
	})
	mBob := markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: bob, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 5000, IsActive: true,
	})

	// Alice bought in: 600 of 1000 tickets now, Bob holds 400.
	raffle := &fakeRaffle{total: 1000, tickets: map[string]uint64{alice: 600, bob: 400}}
	oracle := newFakeOracle()

	h := newPositionHandler(raffle, oracle, markets)
	err := h.Handle(context.Background(), domain.PositionUpdateEvent{SeasonID: 1, Player: alice})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, _ := markets.GetByID(context.Background(), mAlice.ID)
	if got.CurrentProbabilityBps != 6000 {
		t.Errorf("alice probability = %d, want 6000", got.CurrentProbabilityBps)
	}
	got, _ = markets.GetByID(context.Background(), mBob.ID)
	if got.CurrentProbabilityBps != 4000 {
		t.Errorf("bob probability = %d, want 4000", got.CurrentProbabilityBps)
	}
	if oracle.writes[mAlice.ID] != 6000 || oracle.writes[mBob.ID] != 4000 {
		t.Errorf("oracle writes = %v, want both markets updated", oracle.writes)
	}
}

func TestPositionHandlerSkipsUnchanged(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: alice, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 6000, IsActive: true,
	})

	raffle := &fakeRaffle{total: 1000, tickets: map[string]uint64{alice: 600}}
	oracle := newFakeOracle()

	h := newPositionHandler(raffle, oracle, markets)
	if err := h.Handle(context.Background(), domain.PositionUpdateEvent{SeasonID: 1, Player: alice}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if len(markets.updates) != 0 {
		t.Errorf("store updates = %v, want none for an unchanged probability", markets.updates)
	}
	if len(oracle.writes) != 0 {
		t.Errorf("oracle writes = %v, want none", oracle.writes)
	}
}

func TestPositionHandlerZeroTotalTickets(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	m := markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: alice, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 6000, IsActive: true,
	})

	raffle := &fakeRaffle{total: 0, tickets: map[string]uint64{alice: 0}}
	oracle := newFakeOracle()

	h := newPositionHandler(raffle, oracle, markets)
	if err := h.Handle(context.Background(), domain.PositionUpdateEvent{SeasonID: 1, Player: alice}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, _ := markets.GetByID(context.Background(), m.ID)
	if got.CurrentProbabilityBps != 0 {
		t.Errorf("probability = %d, want 0 when total tickets is zero", got.CurrentProbabilityBps)
	}
	// 0 bps is below the creation threshold so the oracle is not written.
	if len(oracle.writes) != 0 {
		t.Errorf("oracle writes = %v, want none below threshold", oracle.writes)
	}
}

func TestPositionHandlerSkipsFailedParticipant(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	mAlice := markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: alice, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 5000, IsActive: true,
	})
	mBob := markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: bob, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 5000, IsActive: true,
	})

	raffle := &fakeRaffle{
		total:   1000,
		tickets: map[string]uint64{alice: 600, bob: 400},
		errFor:  map[string]error{bob: &chain.Error{Kind: chain.KindTransient, Op: "call"}},
	}
	oracle := newFakeOracle()

	h := newPositionHandler(raffle, oracle, markets)
	if err := h.Handle(context.Background(), domain.PositionUpdateEvent{SeasonID: 1, Player: alice}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, _ := markets.GetByID(context.Background(), mAlice.ID)
	if got.CurrentProbabilityBps != 6000 {
		t.Errorf("alice probability = %d, want 6000 despite bob's read failing", got.CurrentProbabilityBps)
	}
	got, _ = markets.GetByID(context.Background(), mBob.ID)
	if got.CurrentProbabilityBps != 5000 {
		t.Errorf("bob probability = %d, want untouched 5000", got.CurrentProbabilityBps)
	}
}

func TestPositionHandlerOracleFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	m := markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: alice, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 5000, IsActive: true,
	})

	raffle := &fakeRaffle{total: 1000, tickets: map[string]uint64{alice: 600}}
	oracle := newFakeOracle()
	oracle.err = &chain.Error{Kind: chain.KindOutOfGas, Op: "send updateRaffleProbability"}

	h := newPositionHandler(raffle, oracle, markets)
	// An oracle write failure of any kind is reconciled by the next position
	// event; surfacing it would take the whole listener down.
	if err := h.Handle(context.Background(), domain.PositionUpdateEvent{SeasonID: 1, Player: alice}); err != nil {
		t.Fatalf("Handle: %v, want nil despite the failed oracle write", err)
	}

	got, _ := markets.GetByID(context.Background(), m.ID)
	if got.CurrentProbabilityBps != 6000 {
		t.Errorf("probability = %d, want the row updated to 6000", got.CurrentProbabilityBps)
	}
}

func TestPositionHandlerOracleSkipBelowThreshold(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	m := markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: alice, MarketType: domain.MarketTypeWinnerPrediction,
		CurrentProbabilityBps: 150, IsActive: true,
	})

	// Alice dropped to 50 bps: the row is updated but the oracle is not.
	raffle := &fakeRaffle{total: 10000, tickets: map[string]uint64{alice: 50}}
	oracle := newFakeOracle()

	h := newPositionHandler(raffle, oracle, markets)
	if err := h.Handle(context.Background(), domain.PositionUpdateEvent{SeasonID: 1, Player: alice}); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, _ := markets.GetByID(context.Background(), m.ID)
	if got.CurrentProbabilityBps != 50 {
		t.Errorf("probability = %d, want 50", got.CurrentProbabilityBps)
	}
	if len(oracle.writes) != 0 {
		t.Errorf("oracle writes = %v, want none below the 100 bps threshold", oracle.writes)
	}
}
