package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/domain"
	"github.com/sofmarkets/infofid/internal/notify"
)

// CreateRequest asks the creator to deploy a market for one (season, player)
// pair. Ticket counts are forwarded to the factory unchanged.
type CreateRequest struct {
	SeasonID     int64
	Player       string // lowercase hex
	OldTickets   uint64
	NewTickets   uint64
	TotalTickets uint64
}

// FactoryWriter is the slice of the chain client the creator needs.
// Satisfied by *chain.Factory.
type FactoryWriter interface {
	OnPositionUpdate(ctx context.Context, seasonID int64, player common.Address, oldTickets, newTickets, totalTickets uint64, gasLimit uint64) (common.Hash, error)
	CallData(seasonID int64, player common.Address, oldTickets, newTickets, totalTickets uint64) ([]byte, error)
	PlayerMarket(ctx context.Context, seasonID int64, player common.Address) (bool, common.Hash, common.Address, error)
	Address() common.Address
}

// Sponsor submits a call through a gas sponsorship service. Satisfied by
// *chain.Paymaster; nil disables the sponsored path.
type Sponsor interface {
	SendSponsored(ctx context.Context, to common.Address, data []byte) (string, error)
}

// MarketCreator owns market-creation transactions. Requests arrive on a
// channel so the backoff between attempts never blocks the event listeners;
// the creator never inserts market rows itself, the MarketCreated listener
// does that when the deployment confirms.
type MarketCreator struct {
	factory  FactoryWriter
	sponsor  Sponsor
	markets  domain.MarketStore
	attempts domain.AttemptStore
	notifier *notify.Notifier
	gasLimit uint64
	delays   []time.Duration
	logger   *slog.Logger

	// pending tracks (season, player) pairs from Submit until their attempt
	// ladder finishes, so a burst of position events enqueues each pair once.
	mu      sync.Mutex
	pending map[string]struct{}
	enqueue chan CreateRequest
}

func creationKey(seasonID int64, player string) string {
	return fmt.Sprintf("%d/%s", seasonID, domain.NormalizeAddress(player))
}

// NewMarketCreator creates the creator. sponsor may be nil; notifier may be
// nil in tests.
func NewMarketCreator(
	factory FactoryWriter,
	sponsor Sponsor,
	markets domain.MarketStore,
	attempts domain.AttemptStore,
	notifier *notify.Notifier,
	gasLimit uint64,
	delays []time.Duration,
	logger *slog.Logger,
) *MarketCreator {
	if gasLimit == 0 {
		gasLimit = 5_000_000
	}
	if len(delays) == 0 {
		delays = []time.Duration{5 * time.Second, 15 * time.Second, 45 * time.Second}
	}
	return &MarketCreator{
		factory:  factory,
		sponsor:  sponsor,
		markets:  markets,
		attempts: attempts,
		notifier: notifier,
		gasLimit: gasLimit,
		delays:   delays,
		logger:   logger.With(slog.String("component", "market_creator")),
		pending:  make(map[string]struct{}),
		enqueue:  make(chan CreateRequest, 256),
	}
}

// Submit queues a creation request, dropping duplicates for a pair that is
// already queued or mid-ladder. Non-blocking: when the queue is full the
// request is dropped and the next position event for the player resubmits it.
func (c *MarketCreator) Submit(req CreateRequest) {
	key := creationKey(req.SeasonID, req.Player)
	c.mu.Lock()
	if _, dup := c.pending[key]; dup {
		c.mu.Unlock()
		return
	}
	c.pending[key] = struct{}{}
	c.mu.Unlock()

	select {
	case c.enqueue <- req:
	default:
		// Queue pressure at this depth means the chain or DB is down anyway.
		c.release(key)
	}
}

func (c *MarketCreator) release(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
}

// Run drains the request queue until ctx is cancelled. One request is
// processed at a time: the backend wallet serializes nonces, so concurrent
// creations would only conflict with each other.
func (c *MarketCreator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-c.enqueue:
			c.process(ctx, req)
			c.release(creationKey(req.SeasonID, req.Player))
		}
	}
}

// process runs the full attempt ladder for one request.
func (c *MarketCreator) process(ctx context.Context, req CreateRequest) {
	addr := domain.NormalizeAddress(req.Player)
	log := c.logger.With(
		slog.Int64("season", req.SeasonID),
		slog.String("player", addr),
	)

	// Skip pairs that already failed permanently; an operator clears the
	// attempt record to re-enable them.
	if failed, err := c.attempts.HasPermanentFailure(ctx, req.SeasonID, addr); err != nil {
		log.Warn("attempt lookup failed", slog.String("error", err.Error()))
	} else if failed {
		log.Debug("skipping, previous permanent failure")
		return
	}

	if exists, err := c.markets.Has(ctx, req.SeasonID, addr, domain.MarketTypeWinnerPrediction); err == nil && exists {
		return
	}

	// The factory is the source of truth: a market may exist on-chain that
	// our MarketCreated listener has not recorded yet.
	player := common.HexToAddress(req.Player)
	if created, _, _, err := c.factory.PlayerMarket(ctx, req.SeasonID, player); err != nil {
		log.Warn("on-chain market check failed", slog.String("error", err.Error()))
	} else if created {
		log.Debug("market already deployed on-chain")
		return
	}

	// One initial submission plus one retry per configured delay, so every
	// entry of the backoff schedule precedes exactly one attempt.
	maxAttempts := len(c.delays) + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		txHash, err := c.submitOnce(ctx, req, player)
		if err == nil {
			log.Info("market creation submitted",
				slog.Int("attempt", attempt),
				slog.String("tx", txHash),
			)
			c.record(ctx, req, attempt, txHash, nil, false)
			return
		}
		if ctx.Err() != nil {
			return
		}

		permanent := !creationRetryable(err) || attempt == maxAttempts
		log.Warn("market creation attempt failed",
			slog.Int("attempt", attempt),
			slog.Bool("permanent", permanent),
			slog.String("error", err.Error()),
		)
		c.record(ctx, req, attempt, txHash, err, permanent)

		if permanent {
			c.alert(ctx, req, attempt, err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.delays[attempt-1]):
		}
	}
}

// creationRetryable widens chain.Retryable for creation attempts: an
// out-of-gas submission is retried as well, since the next gas estimate can
// land under the limit.
func creationRetryable(err error) bool {
	return chain.Retryable(err) || chain.IsKind(err, chain.KindOutOfGas)
}

// submitOnce tries the sponsored path first when configured, falling back to
// a direct transaction from the backend wallet.
func (c *MarketCreator) submitOnce(ctx context.Context, req CreateRequest, player common.Address) (string, error) {
	if c.sponsor != nil {
		data, err := c.factory.CallData(req.SeasonID, player, req.OldTickets, req.NewTickets, req.TotalTickets)
		if err != nil {
			return "", err
		}
		bundleID, err := c.sponsor.SendSponsored(ctx, c.factory.Address(), data)
		if err == nil {
			return bundleID, nil
		}
		c.logger.Warn("sponsored submission failed, falling back to direct tx",
			slog.String("error", err.Error()),
		)
	}

	hash, err := c.factory.OnPositionUpdate(ctx, req.SeasonID, player,
		req.OldTickets, req.NewTickets, req.TotalTickets, c.gasLimit)
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

func (c *MarketCreator) record(ctx context.Context, req CreateRequest, attempt int, txHash string, attemptErr error, permanent bool) {
	a := domain.CreationAttempt{
		SeasonID:      req.SeasonID,
		PlayerAddress: domain.NormalizeAddress(req.Player),
		Attempt:       attempt,
		TxHash:        txHash,
		Permanent:     permanent,
	}
	if attemptErr != nil {
		a.ErrorDetail = attemptErr.Error()
		var kind chain.ErrKind
		for _, k := range []chain.ErrKind{
			chain.KindRevert, chain.KindOutOfGas, chain.KindNonceConflict, chain.KindFatal, chain.KindTransient,
		} {
			if chain.IsKind(attemptErr, k) {
				kind = k
				break
			}
		}
		a.ErrorKind = kind.String()
	}
	if err := c.attempts.Record(ctx, a); err != nil {
		c.logger.Warn("attempt record failed", slog.String("error", err.Error()))
	}
}

func (c *MarketCreator) alert(ctx context.Context, req CreateRequest, attempt int, err error) {
	if c.notifier == nil {
		return
	}
	title := "Market creation failed permanently"
	msg := fmt.Sprintf("season %d player %s gave up after attempt %d: %v",
		req.SeasonID, domain.NormalizeAddress(req.Player), attempt, err)
	if nerr := c.notifier.Notify(ctx, notify.EventMarketCreationFailed, title, msg); nerr != nil {
		c.logger.Warn("notification failed", slog.String("error", nerr.Error()))
	}
}
