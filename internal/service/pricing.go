package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sofmarkets/infofid/internal/domain"
	"github.com/sofmarkets/infofid/internal/notify"
)

// PricePublisher receives every pricing-cache change for stream fanout.
// Satisfied by *stream.Hub.
type PricePublisher interface {
	Publish(u domain.PriceUpdate)
}

// FPMMReader reads one market maker's traded prices. Satisfied by a closure
// over *chain.FPMM so the service stays testable.
type FPMMReader func(ctx context.Context, fpmm common.Address) (yesBps, noBps int, err error)

// PricingConfig carries the hybrid blend and arbitrage tunables.
type PricingConfig struct {
	RaffleWeightBps       int
	MarketWeightBps       int
	ArbitrageThresholdBps int
	DedupWindow           time.Duration
}

// PricingService recomputes one market's hybrid price from the current raffle
// probability and the FPMM's traded sentiment, persists the result, publishes
// it to stream subscribers, and records deduplicated arbitrage opportunities.
type PricingService struct {
	markets  domain.MarketStore
	pricing  domain.PricingStore
	arbs     domain.ArbStore
	dedup    domain.DedupGuard
	mirror   domain.PriceMirror
	readFPMM FPMMReader
	pub      PricePublisher
	notifier *notify.Notifier
	cfg      PricingConfig
	logger   *slog.Logger
}

// NewPricingService creates the service. mirror, pub, and notifier may be nil.
func NewPricingService(
	markets domain.MarketStore,
	pricing domain.PricingStore,
	arbs domain.ArbStore,
	dedup domain.DedupGuard,
	mirror domain.PriceMirror,
	readFPMM FPMMReader,
	pub PricePublisher,
	notifier *notify.Notifier,
	cfg PricingConfig,
	logger *slog.Logger,
) *PricingService {
	if cfg.RaffleWeightBps+cfg.MarketWeightBps != domain.BpsMax {
		cfg.RaffleWeightBps = domain.DefaultRaffleWeightBps
		cfg.MarketWeightBps = domain.DefaultMarketWeightBps
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	return &PricingService{
		markets:  markets,
		pricing:  pricing,
		arbs:     arbs,
		dedup:    dedup,
		mirror:   mirror,
		readFPMM: readFPMM,
		pub:      pub,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "pricing")),
	}
}

// RefreshMarket recomputes and persists the hybrid price for one market. The
// raffle probability comes from the market row; sentiment comes from the
// FPMM's traded YES price when the contract is deployed, otherwise the
// sentiment is seeded to the raffle probability so the hybrid equals it.
func (s *PricingService) RefreshMarket(ctx context.Context, m domain.Market) error {
	raffleBps := m.CurrentProbabilityBps
	sentimentBps := raffleBps
	tradable := false

	if m.ContractAddress != "" {
		yes, _, err := s.readFPMM(ctx, common.HexToAddress(m.ContractAddress))
		if err != nil {
			return fmt.Errorf("pricing: market %d fpmm read: %w", m.ID, err)
		}
		sentimentBps = yes
		tradable = true
	}

	hybrid := HybridPriceBps(raffleBps, sentimentBps, s.cfg.RaffleWeightBps, s.cfg.MarketWeightBps)

	row := domain.PricingCacheRow{
		MarketID:             m.ID,
		RaffleProbabilityBps: raffleBps,
		MarketSentimentBps:   sentimentBps,
		HybridPriceBps:       hybrid,
		RaffleWeightBps:      s.cfg.RaffleWeightBps,
		MarketWeightBps:      s.cfg.MarketWeightBps,
		LastUpdated:          time.Now().UTC(),
	}
	if err := s.pricing.Upsert(ctx, row); err != nil {
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.Set(ctx, row); err != nil {
			s.logger.Warn("price mirror write failed", slog.String("error", err.Error()))
		}
	}
	if s.pub != nil {
		s.pub.Publish(domain.PriceUpdate{
			Type:         "update",
			MarketID:     m.ID,
			RaffleBps:    raffleBps,
			SentimentBps: sentimentBps,
			HybridBps:    hybrid,
			Ts:           row.LastUpdated.UnixMilli(),
		})
	}

	// Arbitrage only makes sense against a tradable market; a seeded
	// sentiment equals the raffle price by construction.
	if tradable {
		s.detectArbitrage(ctx, m, raffleBps, sentimentBps)
	}
	return nil
}

// detectArbitrage records a deduplicated opportunity when the price gap meets
// the threshold. Failures here never block the pricing write that preceded
// them.
func (s *PricingService) detectArbitrage(ctx context.Context, m domain.Market, raffleBps, sentimentBps int) {
	opp, ok := DetectOpportunity(m, raffleBps, sentimentBps, s.cfg.ArbitrageThresholdBps)
	if !ok {
		return
	}

	key := fmt.Sprintf("arb:%d", m.ID)
	first, err := s.dedup.FirstSeen(ctx, key, s.cfg.DedupWindow)
	if err != nil {
		s.logger.Warn("dedup check failed, suppressing opportunity",
			slog.Int64("market", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if !first {
		return
	}

	if err := s.arbs.Insert(ctx, opp); err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			return
		}
		s.logger.Error("arbitrage insert failed",
			slog.Int64("market", m.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("arbitrage opportunity",
		slog.Int64("market", m.ID),
		slog.Float64("diff_pct", opp.PriceDifferencePct),
		slog.Float64("profit_pct", opp.ProfitabilityPct),
	)
	if s.notifier != nil {
		msg := fmt.Sprintf("%s (diff %.2f%%, est. profit %.2f%%)",
			opp.StrategyText, opp.PriceDifferencePct, opp.ProfitabilityPct)
		if nerr := s.notifier.Notify(ctx, notify.EventArbitrage, "Arbitrage opportunity", msg); nerr != nil {
			s.logger.Warn("notification failed", slog.String("error", nerr.Error()))
		}
	}
}
