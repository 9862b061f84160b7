package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sofmarkets/infofid/internal/domain"
)

// Monitor runs one polling loop per active season, refreshing every market's
// hybrid price on a fixed interval. Loops are started on SeasonStarted (or at
// startup for seasons already live) and stopped on SeasonCompleted.
type Monitor struct {
	pricing  *PricingService
	markets  domain.MarketStore
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancels map[int64]context.CancelFunc
	wg      sync.WaitGroup
}

// NewMonitor creates the monitor registry.
func NewMonitor(pricing *PricingService, markets domain.MarketStore, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		pricing:  pricing,
		markets:  markets,
		interval: interval,
		logger:   logger.With(slog.String("component", "fpmm_monitor")),
		cancels:  make(map[int64]context.CancelFunc),
	}
}

// StartSeason launches the polling loop for one season. Idempotent: a season
// that already has a running loop is left alone.
func (m *Monitor) StartSeason(ctx context.Context, seasonID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.cancels[seasonID]; running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancels[seasonID] = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(loopCtx, seasonID)
	}()
	m.logger.Info("season monitor started", slog.Int64("season", seasonID))
}

// StopSeason cancels the season's loop. Safe to call for unknown seasons.
func (m *Monitor) StopSeason(seasonID int64) {
	m.mu.Lock()
	cancel, ok := m.cancels[seasonID]
	if ok {
		delete(m.cancels, seasonID)
	}
	m.mu.Unlock()

	if ok {
		cancel()
		m.logger.Info("season monitor stopped", slog.Int64("season", seasonID))
	}
}

// Resume starts loops for every season that still has active markets. Called
// once at startup so a restart picks up where the last run left off.
func (m *Monitor) Resume(ctx context.Context) error {
	seasons, err := m.markets.ListActiveSeasons(ctx)
	if err != nil {
		return err
	}
	for _, id := range seasons {
		m.StartSeason(ctx, id)
	}
	return nil
}

// Wait blocks until every loop has exited. Call after the parent context is
// cancelled.
func (m *Monitor) Wait() { m.wg.Wait() }

func (m *Monitor) run(ctx context.Context, seasonID int64) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.refreshSeason(ctx, seasonID)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// refreshSeason refreshes every active market in the season. A single
// market's failure is logged and the pass continues; cancellation is checked
// between markets so shutdown is not gated on a full pass.
func (m *Monitor) refreshSeason(ctx context.Context, seasonID int64) {
	markets, err := m.markets.ListBySeason(ctx, seasonID)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("season listing failed",
				slog.Int64("season", seasonID),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	for _, mk := range markets {
		if ctx.Err() != nil {
			return
		}
		if err := m.pricing.RefreshMarket(ctx, mk); err != nil && ctx.Err() == nil {
			m.logger.Warn("market refresh failed",
				slog.Int64("market", mk.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
