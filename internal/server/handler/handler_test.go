package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sofmarkets/infofid/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type stubMarkets struct {
	byID    map[int64]domain.Market
	seasons map[int64][]domain.Market
	active  []int64
	err     error
}

func (s stubMarkets) GetByID(_ context.Context, id int64) (domain.Market, error) {
	if s.err != nil {
		return domain.Market{}, s.err
	}
	m, ok := s.byID[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (s stubMarkets) ListBySeason(_ context.Context, seasonID int64) ([]domain.Market, error) {
	return s.seasons[seasonID], s.err
}

func (s stubMarkets) ListActiveSeasons(context.Context) ([]int64, error) {
	return s.active, s.err
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("content type = %q", ct)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding body %q: %v", rec.Body.String(), err)
	}
}

func TestGetMarket(t *testing.T) {
	t.Parallel()

	h := NewMarketHandler(stubMarkets{byID: map[int64]domain.Market{
		7: {ID: 7, SeasonID: 2, PlayerAddress: "0xaa", MarketType: domain.MarketTypeWinnerPrediction,
			CurrentProbabilityBps: 2500, IsActive: true},
	}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()
	h.GetMarket(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var view marketView
	decodeBody(t, rec, &view)
	if view.ID != 7 || view.CurrentProbabilityBps != 2500 || !view.IsActive {
		t.Errorf("view = %+v", view)
	}
}

func TestGetMarketErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		id   string
		stub stubMarkets
		code int
	}{
		{"missing row", "9", stubMarkets{}, http.StatusNotFound},
		{"bad id", "seven", stubMarkets{}, http.StatusBadRequest},
		{"store failure", "9", stubMarkets{err: errors.New("pool closed")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewMarketHandler(tt.stub, testLogger())
			req := httptest.NewRequest(http.MethodGet, "/api/markets/"+tt.id, nil)
			req.SetPathValue("id", tt.id)
			rec := httptest.NewRecorder()
			h.GetMarket(rec, req)
			if rec.Code != tt.code {
				t.Errorf("status = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestListMarketsBySeason(t *testing.T) {
	t.Parallel()

	h := NewMarketHandler(stubMarkets{seasons: map[int64][]domain.Market{
		3: {{ID: 1, SeasonID: 3}, {ID: 2, SeasonID: 3}},
	}}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets?season=3", nil)
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, req)

	var body struct {
		Markets []marketView `json:"markets"`
	}
	decodeBody(t, rec, &body)
	if len(body.Markets) != 2 {
		t.Errorf("markets = %+v, want 2 rows", body.Markets)
	}
}

func TestListMarketsAllActiveSeasons(t *testing.T) {
	t.Parallel()

	h := NewMarketHandler(stubMarkets{
		active: []int64{1, 2},
		seasons: map[int64][]domain.Market{
			1: {{ID: 1, SeasonID: 1}},
			2: {{ID: 2, SeasonID: 2}},
		},
	}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, req)

	var body struct {
		Markets []marketView `json:"markets"`
	}
	decodeBody(t, rec, &body)
	if len(body.Markets) != 2 {
		t.Errorf("markets = %+v, want one per active season", body.Markets)
	}
}

func TestListMarketsEmptyIsArray(t *testing.T) {
	t.Parallel()

	h := NewMarketHandler(stubMarkets{}, testLogger())
	req := httptest.NewRequest(http.MethodGet, "/api/markets", nil)
	rec := httptest.NewRecorder()
	h.ListMarkets(rec, req)

	// Clients must get [] rather than null.
	if got := rec.Body.String(); got != `{"markets":[]}` {
		t.Errorf("body = %s", got)
	}
}

type stubArbs struct {
	opps  []domain.ArbitrageOpportunity
	limit int
	err   error
}

func (s *stubArbs) ListRecent(_ context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	s.limit = limit
	return s.opps, s.err
}

func TestListRecentArbitrage(t *testing.T) {
	t.Parallel()

	arbs := &stubArbs{opps: []domain.ArbitrageOpportunity{{
		ID: "op-1", SeasonID: 2, MarketID: 7,
		RafflePricePct: 25, MarketPricePct: 27, PriceDifferencePct: 2, ProfitabilityPct: 8,
		StrategyText: "Buy raffle position at 25.00%, sell prediction-market YES at 27.00%",
		CreatedAt:    time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC),
	}}}
	h := NewArbHandler(arbs, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/arbitrage?limit=5", nil)
	rec := httptest.NewRecorder()
	h.ListRecent(rec, req)

	if arbs.limit != 5 {
		t.Errorf("limit passed = %d, want 5", arbs.limit)
	}
	var body struct {
		Opportunities []arbView `json:"opportunities"`
	}
	decodeBody(t, rec, &body)
	if len(body.Opportunities) != 1 {
		t.Fatalf("opportunities = %+v", body.Opportunities)
	}
	got := body.Opportunities[0]
	if got.ProfitabilityPct != 8 || got.CreatedAt != "2026-08-25T10:00:00Z" {
		t.Errorf("view = %+v", got)
	}
}

func TestListRecentArbitrageLimitClamp(t *testing.T) {
	t.Parallel()

	arbs := &stubArbs{}
	h := NewArbHandler(arbs, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/arbitrage?limit=9999", nil)
	h.ListRecent(httptest.NewRecorder(), req)
	if arbs.limit != 200 {
		t.Errorf("limit = %d, want clamped to 200", arbs.limit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/arbitrage?limit=-3", nil)
	h.ListRecent(httptest.NewRecorder(), req)
	if arbs.limit != 20 {
		t.Errorf("limit = %d, want the 20 default for junk input", arbs.limit)
	}
}

type pingErr struct{ err error }

func (p pingErr) Ping(context.Context) error { return p.err }

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		db     Pinger
		code   int
		status string
	}{
		{"db ok", pingErr{}, http.StatusOK, "ok"},
		{"db down", pingErr{err: errors.New("refused")}, http.StatusServiceUnavailable, "degraded"},
		{"no db wired", nil, http.StatusOK, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHealthHandler(tt.db, testLogger())
			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.code {
				t.Errorf("status code = %d, want %d", rec.Code, tt.code)
			}
			var body struct {
				Status string `json:"status"`
			}
			decodeBody(t, rec, &body)
			if body.Status != tt.status {
				t.Errorf("status = %q, want %q", body.Status, tt.status)
			}
		})
	}
}
