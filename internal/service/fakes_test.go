package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sofmarkets/infofid/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeMarketStore is an in-memory domain.MarketStore.
type fakeMarketStore struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]domain.Market
	updates []int64 // ids passed to UpdateProbability
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{nextID: 1, rows: map[int64]domain.Market{}}
}

func (s *fakeMarketStore) add(m domain.Market) domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID
	s.nextID++
	m.PlayerAddress = domain.NormalizeAddress(m.PlayerAddress)
	s.rows[m.ID] = m
	return m
}

func (s *fakeMarketStore) Create(_ context.Context, m domain.Market) (domain.Market, error) {
	s.mu.Lock()
	for _, r := range s.rows {
		if r.SeasonID == m.SeasonID &&
			r.PlayerAddress == domain.NormalizeAddress(m.PlayerAddress) &&
			r.MarketType == m.MarketType {
			s.mu.Unlock()
			return domain.Market{}, domain.ErrDuplicateKey
		}
	}
	s.mu.Unlock()
	return s.add(m), nil
}

func (s *fakeMarketStore) Get(_ context.Context, seasonID int64, player string, mt domain.MarketType) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.SeasonID == seasonID && r.PlayerAddress == domain.NormalizeAddress(player) && r.MarketType == mt {
			return r, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *fakeMarketStore) GetByID(_ context.Context, id int64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[id]; ok {
		return r, nil
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *fakeMarketStore) GetByContract(_ context.Context, fpmm string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rows {
		if r.ContractAddress == domain.NormalizeAddress(fpmm) {
			return r, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *fakeMarketStore) Has(ctx context.Context, seasonID int64, player string, mt domain.MarketType) (bool, error) {
	_, err := s.Get(ctx, seasonID, player, mt)
	if err == domain.ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *fakeMarketStore) ListBySeason(_ context.Context, seasonID int64) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Market
	for id := int64(1); id < s.nextID; id++ {
		if r, ok := s.rows[id]; ok && r.SeasonID == seasonID && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeMarketStore) ListActiveSeasons(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for _, r := range s.rows {
		if r.IsActive && !r.IsSettled && !seen[r.SeasonID] {
			seen[r.SeasonID] = true
			out = append(out, r.SeasonID)
		}
	}
	return out, nil
}

func (s *fakeMarketStore) UpdateProbability(_ context.Context, id int64, newBps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if r.CurrentProbabilityBps != newBps {
		r.CurrentProbabilityBps = newBps
		s.rows[id] = r
		s.updates = append(s.updates, id)
	}
	return nil
}

func (s *fakeMarketStore) UpdateContractAddress(_ context.Context, id int64, fpmm string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.ContractAddress = domain.NormalizeAddress(fpmm)
	s.rows[id] = r
	return nil
}

func (s *fakeMarketStore) SettleSeason(_ context.Context, seasonID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, r := range s.rows {
		if r.SeasonID == seasonID {
			r.IsSettled = true
			r.IsActive = false
			s.rows[id] = r
		}
	}
	return nil
}

// fakePlayerStore satisfies domain.PlayerStore.
type fakePlayerStore struct{}

func (fakePlayerStore) GetOrCreate(_ context.Context, address string) (domain.Player, error) {
	return domain.Player{ID: 1, Address: domain.NormalizeAddress(address)}, nil
}

// fakeRaffle serves positions from fixed maps.
type fakeRaffle struct {
	total   uint64
	tickets map[string]uint64 // lowercase hex -> tickets
	errFor  map[string]error
}

func (f *fakeRaffle) TotalTickets(context.Context, int64) (uint64, error) { return f.total, nil }

func (f *fakeRaffle) Participants(context.Context, int64) ([]common.Address, error) {
	var out []common.Address
	for addr := range f.tickets {
		out = append(out, common.HexToAddress(addr))
	}
	return out, nil
}

func (f *fakeRaffle) ParticipantTickets(_ context.Context, _ int64, p common.Address) (uint64, error) {
	key := domain.NormalizeAddress(p.Hex())
	if err, ok := f.errFor[key]; ok {
		return 0, err
	}
	return f.tickets[key], nil
}

// fakeOracle records probability writes.
type fakeOracle struct {
	mu     sync.Mutex
	writes map[int64]int
	err    error
}

func newFakeOracle() *fakeOracle { return &fakeOracle{writes: map[int64]int{}} }

func (f *fakeOracle) UpdateRaffleProbability(_ context.Context, marketID int64, bps int) (common.Hash, error) {
	if f.err != nil {
		return common.Hash{}, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[marketID] = bps
	return common.HexToHash("0x01"), nil
}

// fakePricingStore records upserts.
type fakePricingStore struct {
	mu   sync.Mutex
	rows map[int64]domain.PricingCacheRow
}

func newFakePricingStore() *fakePricingStore {
	return &fakePricingStore{rows: map[int64]domain.PricingCacheRow{}}
}

func (s *fakePricingStore) Upsert(_ context.Context, row domain.PricingCacheRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[row.MarketID] = row
	return nil
}

func (s *fakePricingStore) Get(_ context.Context, marketID int64) (domain.PricingCacheRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[marketID]; ok {
		return r, nil
	}
	return domain.PricingCacheRow{}, domain.ErrNotFound
}

// fakeArbStore records inserts.
type fakeArbStore struct {
	mu   sync.Mutex
	opps []domain.ArbitrageOpportunity
}

func (s *fakeArbStore) Insert(_ context.Context, opp domain.ArbitrageOpportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opps = append(s.opps, opp)
	return nil
}

func (s *fakeArbStore) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.opps) {
		limit = len(s.opps)
	}
	out := make([]domain.ArbitrageOpportunity, limit)
	copy(out, s.opps[len(s.opps)-limit:])
	return out, nil
}

func (s *fakeArbStore) ListBefore(_ context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	var out []domain.ArbitrageOpportunity
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.opps {
		if o.CreatedAt.Before(before) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeArbStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []domain.ArbitrageOpportunity
	var n int64
	for _, o := range s.opps {
		if o.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, o)
	}
	s.opps = kept
	return n, nil
}

func (s *fakeArbStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.opps)
}

// fakeDedup mirrors the in-process guard with a fixed clock.
type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newFakeDedup() *fakeDedup { return &fakeDedup{seen: map[string]bool{}} }

func (d *fakeDedup) FirstSeen(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

// fakeFactory records creation submissions.
type fakeFactory struct {
	mu        sync.Mutex
	submitted int
	err       error   // returned by OnPositionUpdate
	errs      []error // per-attempt errors, consumed in order; overrides err
	onChain   bool    // PlayerMarket answer
}

func (f *fakeFactory) OnPositionUpdate(_ context.Context, _ int64, _ common.Address, _, _, _ uint64, _ uint64) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return common.Hash{}, err
		}
		return common.HexToHash("0x02"), nil
	}
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0x02"), nil
}

func (f *fakeFactory) CallData(int64, common.Address, uint64, uint64, uint64) ([]byte, error) {
	return []byte{0x01}, nil
}

func (f *fakeFactory) PlayerMarket(context.Context, int64, common.Address) (bool, common.Hash, common.Address, error) {
	return f.onChain, common.Hash{}, common.Address{}, nil
}

func (f *fakeFactory) Address() common.Address { return common.HexToAddress("0xfac") }

func (f *fakeFactory) submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitted
}

// fakeAttemptStore records creation attempts.
type fakeAttemptStore struct {
	mu        sync.Mutex
	records   []domain.CreationAttempt
	permanent map[string]bool
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{permanent: map[string]bool{}}
}

func attemptKey(seasonID int64, player string) string {
	return fmt.Sprintf("%d/%s", seasonID, domain.NormalizeAddress(player))
}

func (s *fakeAttemptStore) Record(_ context.Context, a domain.CreationAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, a)
	if a.Permanent {
		s.permanent[attemptKey(a.SeasonID, a.PlayerAddress)] = true
	}
	return nil
}

func (s *fakeAttemptStore) HasPermanentFailure(_ context.Context, seasonID int64, player string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.permanent[attemptKey(seasonID, player)], nil
}

// fakePublisher captures hub publishes.
type fakePublisher struct {
	mu      sync.Mutex
	updates []domain.PriceUpdate
}

func (p *fakePublisher) Publish(u domain.PriceUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, u)
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}
