package service

import (
	"context"
	"testing"
	"time"

	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/domain"
)

func newCreator(factory *fakeFactory, markets *fakeMarketStore, attempts *fakeAttemptStore) *MarketCreator {
	delays := []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	return NewMarketCreator(factory, nil, markets, attempts, nil, 5_000_000, delays, testLogger())
}

func creationRequest() CreateRequest {
	return CreateRequest{SeasonID: 1, Player: alice, OldTickets: 0, NewTickets: 150, TotalTickets: 1000}
}

func TestCreatorSubmitsOnce(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	attempts := newFakeAttemptStore()
	c := newCreator(factory, newFakeMarketStore(), attempts)

	c.process(context.Background(), creationRequest())

	if factory.submissions() != 1 {
		t.Fatalf("submissions = %d, want 1", factory.submissions())
	}
	if len(attempts.records) != 1 {
		t.Fatalf("attempt records = %d, want 1", len(attempts.records))
	}
	rec := attempts.records[0]
	if rec.TxHash == "" || rec.Permanent || rec.ErrorKind != "" {
		t.Errorf("success record = %+v, want tx hash and no error", rec)
	}
}

func TestCreatorSkipsExistingRow(t *testing.T) {
	t.Parallel()

	markets := newFakeMarketStore()
	markets.add(domain.Market{
		SeasonID: 1, PlayerAddress: alice, MarketType: domain.MarketTypeWinnerPrediction, IsActive: true,
	})
	factory := &fakeFactory{}

	c := newCreator(factory, markets, newFakeAttemptStore())
	c.process(context.Background(), creationRequest())

	if factory.submissions() != 0 {
		t.Errorf("submissions = %d, want 0 for an already-recorded market", factory.submissions())
	}
}

func TestCreatorSkipsOnChainMarket(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{onChain: true}
	c := newCreator(factory, newFakeMarketStore(), newFakeAttemptStore())
	c.process(context.Background(), creationRequest())

	if factory.submissions() != 0 {
		t.Errorf("submissions = %d, want 0 when the factory already deployed", factory.submissions())
	}
}

func TestCreatorSkipsAfterPermanentFailure(t *testing.T) {
	t.Parallel()

	attempts := newFakeAttemptStore()
	attempts.permanent[attemptKey(1, alice)] = true
	factory := &fakeFactory{}

	c := newCreator(factory, newFakeMarketStore(), attempts)
	c.process(context.Background(), creationRequest())

	if factory.submissions() != 0 {
		t.Errorf("submissions = %d, want 0 after a permanent failure", factory.submissions())
	}
}

func TestCreatorRevertIsPermanent(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{err: &chain.Error{Kind: chain.KindRevert, Op: "send", Reason: "below threshold"}}
	attempts := newFakeAttemptStore()

	c := newCreator(factory, newFakeMarketStore(), attempts)
	c.process(context.Background(), creationRequest())

	if factory.submissions() != 1 {
		t.Fatalf("submissions = %d, want 1 (no retries after a revert)", factory.submissions())
	}
	rec := attempts.records[len(attempts.records)-1]
	if !rec.Permanent || rec.ErrorKind != "ContractRevert" {
		t.Errorf("record = %+v, want permanent ContractRevert", rec)
	}
}

func TestCreatorRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{errs: []error{
		&chain.Error{Kind: chain.KindTransient, Op: "send"},
		nil,
	}}
	attempts := newFakeAttemptStore()

	c := newCreator(factory, newFakeMarketStore(), attempts)
	c.process(context.Background(), creationRequest())

	if factory.submissions() != 2 {
		t.Fatalf("submissions = %d, want 2", factory.submissions())
	}
	last := attempts.records[len(attempts.records)-1]
	if last.Permanent || last.TxHash == "" {
		t.Errorf("final record = %+v, want a successful second attempt", last)
	}
}

func TestCreatorRetriesOutOfGas(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{errs: []error{
		&chain.Error{Kind: chain.KindOutOfGas, Op: "send"},
		nil,
	}}
	attempts := newFakeAttemptStore()

	c := newCreator(factory, newFakeMarketStore(), attempts)
	c.process(context.Background(), creationRequest())

	if factory.submissions() != 2 {
		t.Fatalf("submissions = %d, want an out-of-gas attempt to be retried", factory.submissions())
	}
	first := attempts.records[0]
	if first.Permanent || first.ErrorKind != "OutOfGas" {
		t.Errorf("first record = %+v, want non-permanent OutOfGas", first)
	}
	last := attempts.records[len(attempts.records)-1]
	if last.Permanent || last.TxHash == "" {
		t.Errorf("final record = %+v, want a successful second attempt", last)
	}
}

func TestCreatorExhaustsRetryBudget(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{err: &chain.Error{Kind: chain.KindTransient, Op: "send"}}
	attempts := newFakeAttemptStore()

	c := newCreator(factory, newFakeMarketStore(), attempts)
	c.process(context.Background(), creationRequest())

	// An initial submission plus one retry per configured delay.
	if factory.submissions() != 4 {
		t.Fatalf("submissions = %d, want the full ladder of 4", factory.submissions())
	}
	last := attempts.records[len(attempts.records)-1]
	if !last.Permanent {
		t.Errorf("final record = %+v, want permanent after exhausting retries", last)
	}
	if ok, _ := attempts.HasPermanentFailure(context.Background(), 1, alice); !ok {
		t.Error("pair should be marked permanently failed")
	}
}

func TestCreatorSubmitDedupesBursts(t *testing.T) {
	t.Parallel()

	c := newCreator(&fakeFactory{}, newFakeMarketStore(), newFakeAttemptStore())

	// A burst of position events for the same pair enqueues once.
	c.Submit(creationRequest())
	c.Submit(creationRequest())
	if n := len(c.enqueue); n != 1 {
		t.Fatalf("queued requests = %d, want the duplicate dropped", n)
	}

	// A different pair is unaffected.
	other := creationRequest()
	other.Player = bob
	c.Submit(other)
	if n := len(c.enqueue); n != 2 {
		t.Fatalf("queued requests = %d, want 2 distinct pairs", n)
	}

	// Once the ladder for a pair finishes, a resubmission queues again.
	req := <-c.enqueue
	c.process(context.Background(), req)
	c.release(creationKey(req.SeasonID, req.Player))
	c.Submit(creationRequest())
	if n := len(c.enqueue); n != 2 {
		t.Errorf("queued requests = %d, want the pair accepted again after release", n)
	}
}

func TestCreatorRunDrainsQueue(t *testing.T) {
	t.Parallel()

	factory := &fakeFactory{}
	c := newCreator(factory, newFakeMarketStore(), newFakeAttemptStore())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	c.Submit(creationRequest())

	deadline := time.After(2 * time.Second)
	for factory.submissions() == 0 {
		select {
		case <-deadline:
			t.Fatal("request was never processed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	<-done
}
