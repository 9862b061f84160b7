// Package app wires the coordinator's dependencies (stores, caches, chain
// clients, services, API server) and supervises their goroutines for the
// lifetime of the process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/config"
	"github.com/sofmarkets/infofid/internal/listener"
	"github.com/sofmarkets/infofid/internal/server"
	"github.com/sofmarkets/infofid/internal/server/handler"
	"github.com/sofmarkets/infofid/internal/server/ws"
	"github.com/sofmarkets/infofid/internal/service"
	"github.com/sofmarkets/infofid/internal/stream"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts every long-running component under one
// errgroup, and blocks until the context is cancelled or a component fails
// fatally. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting coordinator",
		slog.String("network", a.cfg.NetworkKey),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	// --- Price stream hub ---
	hub := stream.NewHub(time.Duration(a.cfg.Engine.HeartbeatSec)*time.Second, a.logger)
	hub.Warm(ctx, deps.Mirror)

	// --- Services ---
	creator := service.NewMarketCreator(
		deps.Factory, sponsorOrNil(deps), deps.Markets, deps.Attempts, deps.Notifier,
		a.cfg.Engine.MarketCreationGasLimit, a.cfg.RetryDelays(), a.logger,
	)

	positions := service.NewPositionHandler(
		deps.Raffle, deps.Oracle, deps.Markets, deps.Players, creator,
		a.cfg.Engine.PositionHandlerBatchSize, a.cfg.Engine.MarketThresholdBps, a.logger,
	)

	readFPMM := func(ctx context.Context, addr common.Address) (int, int, error) {
		return chain.NewFPMM(deps.Chain, addr).Prices(ctx)
	}
	pricing := service.NewPricingService(
		deps.Markets, deps.Pricing, deps.Arbs, deps.Dedup, deps.Mirror,
		readFPMM, hub, deps.Notifier,
		service.PricingConfig{
			RaffleWeightBps:       a.cfg.Engine.HybridRaffleWeightBps,
			MarketWeightBps:       a.cfg.Engine.HybridMarketWeightBps,
			ArbitrageThresholdBps: a.cfg.Engine.ArbitrageThresholdBps,
			DedupWindow:           time.Duration(a.cfg.Engine.ArbitrageDedupWindowSec) * time.Second,
		},
		a.logger,
	)

	monitor := service.NewMonitor(pricing, deps.Markets,
		time.Duration(a.cfg.Engine.MonitorIntervalSec)*time.Second, a.logger)

	recorder := service.NewRecorder(deps.Raffle, deps.Markets, pricing, deps.Pricing, monitor, hub, deps.Notifier, a.logger)

	// --- Listeners ---
	lookback := deps.Network.DefaultLookbackBlocks
	listeners := listener.NewSet(
		listener.Config{
			NetworkKey:     a.cfg.NetworkKey,
			PollInterval:   a.cfg.PollInterval(),
			LookbackBlocks: lookback,
			LogChunkMax:    a.cfg.Engine.LogChunkMax,
			LogChunkMin:    a.cfg.Engine.LogChunkMin,
		},
		listener.Addresses{
			Curve:   common.HexToAddress(deps.Network.Addresses.Curve),
			Factory: common.HexToAddress(deps.Network.Addresses.Factory),
			Oracle:  common.HexToAddress(deps.Network.Addresses.Oracle),
			Raffle:  common.HexToAddress(deps.Network.Addresses.Raffle),
		},
		deps.Chain, deps.Cursors,
		listener.Handlers{
			OnPositionUpdate:  positions.Handle,
			OnMarketCreated:   recorder.OnMarketCreated,
			OnTrade:           recorder.OnTrade,
			OnPriceUpdated:    recorder.OnPriceUpdated,
			OnSeasonStarted:   recorder.OnSeasonStarted,
			OnSeasonCompleted: recorder.OnSeasonCompleted,
		},
		a.logger,
	)

	// --- HTTP/WebSocket API ---
	srv := server.NewServer(
		server.Config{Port: a.cfg.Server.Port},
		server.Handlers{
			Health:  handler.NewHealthHandler(deps.Pool, a.logger),
			Markets: handler.NewMarketHandler(deps.Markets, a.logger),
			Arb:     handler.NewArbHandler(deps.Arbs, a.logger),
		},
		ws.NewHandler(hub, a.logger),
		a.logger,
	)

	// --- Supervision ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return creator.Run(gctx) })

	for _, l := range listeners {
		g.Go(func() error { return l.Start(gctx) })
	}

	g.Go(func() error {
		// Resume monitors for seasons that were live before the restart.
		if err := monitor.Resume(gctx); err != nil {
			a.logger.Warn("monitor resume failed", slog.String("error", err.Error()))
		}
		<-gctx.Done()
		monitor.Wait()
		return gctx.Err()
	})

	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(gctx) })
	}

	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && ctx.Err() == nil {
		a.logger.Error("coordinator stopped on error", slog.String("error", err.Error()))
		return err
	}
	return nil
}

// Close tears down all resources in reverse registration order. Safe to call
// multiple times.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func sponsorOrNil(deps *Dependencies) service.Sponsor {
	if deps.Paymaster == nil {
		return nil
	}
	return deps.Paymaster
}
