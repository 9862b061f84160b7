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

// Recorder handles the confirmed chain events that mutate durable state:
// market registration, season lifecycle, trades, and oracle price pushes. It
// is the only writer of market rows.
type Recorder struct {
	raffle   RaffleReader
	markets  domain.MarketStore
	pricing  *PricingService
	store    domain.PricingStore
	monitor  *Monitor
	pub      PricePublisher
	notifier *notify.Notifier
	logger   *slog.Logger
}

// NewRecorder creates the recorder. monitor, pub, and notifier may be nil.
func NewRecorder(
	raffle RaffleReader,
	markets domain.MarketStore,
	pricing *PricingService,
	store domain.PricingStore,
	monitor *Monitor,
	pub PricePublisher,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Recorder {
	return &Recorder{
		raffle:   raffle,
		markets:  markets,
		pricing:  pricing,
		store:    store,
		monitor:  monitor,
		pub:      pub,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "recorder")),
	}
}

// OnMarketCreated registers the deployed market. Idempotent: a replayed event
// hits the unique index and recovers by updating the existing row's contract
// address. The event does not carry the position, so the probability at
// creation is read from the raffle before the row is written; a row seeded at
// zero would hand the first monitor tick a phantom raffle/sentiment gap.
func (r *Recorder) OnMarketCreated(ctx context.Context, ev domain.MarketCreatedEvent) error {
	addr := domain.NormalizeAddress(ev.Player)

	bps, err := r.creationProbability(ctx, ev.SeasonID, ev.Player)
	if err != nil {
		return fmt.Errorf("market season %d player %s position read: %w", ev.SeasonID, addr, err)
	}

	m := domain.Market{
		SeasonID:              ev.SeasonID,
		PlayerAddress:         addr,
		MarketType:            ev.MarketType,
		InitialProbabilityBps: bps,
		CurrentProbabilityBps: bps,
		ConditionID:           ev.ConditionID,
		ContractAddress:       domain.NormalizeAddress(ev.FPMMAddress),
		IsActive:              true,
	}

	created, err := r.markets.Create(ctx, m)
	if errors.Is(err, domain.ErrDuplicateKey) {
		existing, gerr := r.markets.Get(ctx, ev.SeasonID, addr, ev.MarketType)
		if gerr != nil {
			return gerr
		}
		if existing.ContractAddress == "" && ev.FPMMAddress != "" {
			if uerr := r.markets.UpdateContractAddress(ctx, existing.ID, ev.FPMMAddress); uerr != nil {
				return uerr
			}
			existing.ContractAddress = domain.NormalizeAddress(ev.FPMMAddress)
		}
		if existing.CurrentProbabilityBps != bps {
			if uerr := r.markets.UpdateProbability(ctx, existing.ID, bps); uerr != nil {
				return uerr
			}
			existing.CurrentProbabilityBps = bps
		}
		created = existing
	} else if err != nil {
		return err
	}

	r.logger.Info("market registered",
		slog.Int64("market", created.ID),
		slog.Int64("season", ev.SeasonID),
		slog.String("player", addr),
		slog.String("fpmm", created.ContractAddress),
	)

	// Seed the pricing cache so the stream has a row before the first trade.
	// Sentiment starts at the raffle probability, making the hybrid equal it.
	bps = created.CurrentProbabilityBps
	row := domain.PricingCacheRow{
		MarketID:             created.ID,
		RaffleProbabilityBps: bps,
		MarketSentimentBps:   bps,
		HybridPriceBps:       bps,
		RaffleWeightBps:      r.pricing.cfg.RaffleWeightBps,
		MarketWeightBps:      r.pricing.cfg.MarketWeightBps,
		LastUpdated:          time.Now().UTC(),
	}
	if err := r.store.Upsert(ctx, row); err != nil {
		r.logger.Warn("pricing seed failed", slog.String("error", err.Error()))
	}
	if r.pub != nil {
		r.pub.Publish(domain.PriceUpdate{
			Type:      "update",
			MarketID:  created.ID,
			RaffleBps: bps, SentimentBps: bps, HybridBps: bps,
			Ts: row.LastUpdated.UnixMilli(),
		})
	}

	if r.notifier != nil {
		_ = r.notifier.Notify(ctx, notify.EventMarketCreated, "Market created",
			fmt.Sprintf("season %d player %s fpmm %s", ev.SeasonID, addr, created.ContractAddress))
	}
	return nil
}

// creationProbability reads the player's live position so the new row and its
// cache seed start at the on-chain truth.
func (r *Recorder) creationProbability(ctx context.Context, seasonID int64, player string) (int, error) {
	total, err := r.raffle.TotalTickets(ctx, seasonID)
	if err != nil {
		return 0, err
	}
	tickets, err := r.raffle.ParticipantTickets(ctx, seasonID, common.HexToAddress(player))
	if err != nil {
		return 0, err
	}
	return domain.ProbabilityBps(tickets, total), nil
}

// OnSeasonStarted launches the season's pricing monitor.
func (r *Recorder) OnSeasonStarted(ctx context.Context, ev domain.SeasonStartedEvent) error {
	if r.monitor != nil {
		r.monitor.StartSeason(ctx, ev.SeasonID)
	}
	return nil
}

// OnSeasonCompleted stops the season's monitor and settles its markets.
func (r *Recorder) OnSeasonCompleted(ctx context.Context, ev domain.SeasonCompletedEvent) error {
	if r.monitor != nil {
		r.monitor.StopSeason(ev.SeasonID)
	}
	if err := r.markets.SettleSeason(ctx, ev.SeasonID); err != nil {
		return err
	}
	r.logger.Info("season settled", slog.Int64("season", ev.SeasonID))
	if r.notifier != nil {
		_ = r.notifier.Notify(ctx, notify.EventSeasonCompleted, "Season completed",
			fmt.Sprintf("season %d markets settled", ev.SeasonID))
	}
	return nil
}

// OnTrade refreshes the traded market's hybrid price immediately instead of
// waiting for the next monitor tick. Trades on FPMMs we have no row for are
// dropped: the Trade listener filters by topic only, so foreign contracts can
// match.
func (r *Recorder) OnTrade(ctx context.Context, ev domain.TradeEvent) error {
	m, err := r.markets.GetByContract(ctx, ev.FPMM)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return r.pricing.RefreshMarket(ctx, m)
}

// OnPriceUpdated mirrors the oracle's authoritative price push into the
// pricing cache and the stream.
func (r *Recorder) OnPriceUpdated(ctx context.Context, ev domain.PriceUpdatedEvent) error {
	row := domain.PricingCacheRow{
		MarketID:             ev.MarketID,
		RaffleProbabilityBps: ev.RaffleBps,
		MarketSentimentBps:   ev.MarketBps,
		HybridPriceBps:       ev.HybridBps,
		RaffleWeightBps:      r.pricing.cfg.RaffleWeightBps,
		MarketWeightBps:      r.pricing.cfg.MarketWeightBps,
		LastUpdated:          time.Now().UTC(),
	}
	if err := r.store.Upsert(ctx, row); err != nil {
		return err
	}
	if r.pub != nil {
		r.pub.Publish(domain.PriceUpdate{
			Type:         "update",
			MarketID:     ev.MarketID,
			RaffleBps:    ev.RaffleBps,
			SentimentBps: ev.MarketBps,
			HybridBps:    ev.HybridBps,
			Ts:           row.LastUpdated.UnixMilli(),
		})
	}
	return nil
}
