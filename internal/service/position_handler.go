package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/domain"
)

// participantReadRetries is how many times one participant's position read is
// retried before it is skipped for this pass. A skipped participant is
// corrected by the next position event or the monitor's drift check.
const participantReadRetries = 3

// RaffleReader is the slice of the chain client the position handler needs.
// Satisfied by *chain.Raffle.
type RaffleReader interface {
	TotalTickets(ctx context.Context, seasonID int64) (uint64, error)
	Participants(ctx context.Context, seasonID int64) ([]common.Address, error)
	ParticipantTickets(ctx context.Context, seasonID int64, player common.Address) (uint64, error)
}

// OracleWriter pushes per-market raffle probabilities on-chain. Satisfied by
// *chain.Oracle.
type OracleWriter interface {
	UpdateRaffleProbability(ctx context.Context, marketID int64, probabilityBps int) (common.Hash, error)
}

// PositionHandler recomputes every participant's win probability whenever any
// position in the season changes, persists the changed rows, and fans the
// changes out to the on-chain oracle.
type PositionHandler struct {
	raffle       RaffleReader
	oracle       OracleWriter
	markets      domain.MarketStore
	players      domain.PlayerStore
	creator      *MarketCreator
	batchSize    int
	thresholdBps int
	logger       *slog.Logger
}

// NewPositionHandler creates the handler. creator may be nil in tests; when
// set, catch-up requests for threshold crossers without market rows are
// submitted to it.
func NewPositionHandler(
	raffle RaffleReader,
	oracle OracleWriter,
	markets domain.MarketStore,
	players domain.PlayerStore,
	creator *MarketCreator,
	batchSize, thresholdBps int,
	logger *slog.Logger,
) *PositionHandler {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &PositionHandler{
		raffle:       raffle,
		oracle:       oracle,
		markets:      markets,
		players:      players,
		creator:      creator,
		batchSize:    batchSize,
		thresholdBps: thresholdBps,
		logger:       logger.With(slog.String("component", "position_handler")),
	}
}

// Handle processes one PositionUpdate event. It is idempotent: rerunning it
// with no chain change produces zero DB writes and zero oracle writes,
// because unchanged probabilities are diffed away.
func (h *PositionHandler) Handle(ctx context.Context, ev domain.PositionUpdateEvent) error {
	if _, err := h.players.GetOrCreate(ctx, ev.Player); err != nil {
		h.logger.Warn("player upsert failed", slog.String("error", err.Error()))
	}

	total, err := h.raffle.TotalTickets(ctx, ev.SeasonID)
	if err != nil {
		return err
	}
	participants, err := h.raffle.Participants(ctx, ev.SeasonID)
	if err != nil {
		return err
	}

	probs := h.readProbabilities(ctx, ev.SeasonID, participants)

	// Threshold crossers without a market row go to the creator; it is the
	// single authority on creation and this handler never inserts rows.
	if h.creator != nil && total > 0 {
		for addr, tickets := range probs {
			bps := domain.ProbabilityBps(tickets, total)
			if bps < h.thresholdBps {
				continue
			}
			exists, err := h.markets.Has(ctx, ev.SeasonID, addr, domain.MarketTypeWinnerPrediction)
			if err != nil {
				h.logger.Warn("market existence check failed",
					slog.String("player", addr),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !exists {
				h.creator.Submit(CreateRequest{
					SeasonID:     ev.SeasonID,
					Player:       addr,
					OldTickets:   0,
					NewTickets:   tickets,
					TotalTickets: total,
				})
			}
		}
	}

	// Diff against stored probabilities and write only the changed rows.
	markets, err := h.markets.ListBySeason(ctx, ev.SeasonID)
	if err != nil {
		return err
	}

	for _, m := range markets {
		tickets, ok := probs[m.PlayerAddress]
		if !ok {
			continue // participant read failed this pass
		}
		newBps := domain.ProbabilityBps(tickets, total)
		if newBps == m.CurrentProbabilityBps {
			continue
		}

		if err := h.markets.UpdateProbability(ctx, m.ID, newBps); err != nil {
			h.logger.Error("probability update failed",
				slog.Int64("market", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Sub-threshold rows are not pushed on-chain; the oracle only tracks
		// markets above the creation threshold.
		if newBps < h.thresholdBps {
			continue
		}
		// The DB row is already current. An oracle write failure of any kind
		// is logged and left for the next position event to reconcile; it must
		// not take the listener down or wedge the cursor on this event.
		if _, err := h.oracle.UpdateRaffleProbability(ctx, m.ID, newBps); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			h.logger.Warn("oracle write failed, will reconcile on next event",
				slog.Int64("market", m.ID),
				slog.Int("bps", newBps),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// readProbabilities reads each participant's ticket count with bounded
// parallelism. Participants whose reads keep failing are omitted from the
// result; partial updates are allowed.
func (h *PositionHandler) readProbabilities(ctx context.Context, seasonID int64, participants []common.Address) map[string]uint64 {
	out := make(map[string]uint64, len(participants))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.batchSize)

	for _, p := range participants {
		g.Go(func() error {
			tickets, err := h.readWithRetry(gctx, seasonID, p)
			if err != nil {
				h.logger.Warn("participant read failed, skipping",
					slog.String("player", p.Hex()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			out[domain.NormalizeAddress(p.Hex())] = tickets
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (h *PositionHandler) readWithRetry(ctx context.Context, seasonID int64, p common.Address) (uint64, error) {
	var lastErr error
	for i := 0; i < participantReadRetries; i++ {
		tickets, err := h.raffle.ParticipantTickets(ctx, seasonID, p)
		if err == nil {
			return tickets, nil
		}
		lastErr = err
		if errors.Is(err, context.Canceled) || !chain.Retryable(err) {
			break
		}
	}
	return 0, lastErr
}
