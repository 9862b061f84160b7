// Package listener implements the per-event-type polling loops that read
// contract logs, drive the registered handlers in (blockNumber, logIndex)
// order, and persist per-(network, event type) cursors.
package listener

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sofmarkets/infofid/internal/chain"
	"github.com/sofmarkets/infofid/internal/domain"
)

// Chain is the slice of the chain client a listener needs. Satisfied by
// *chain.Client.
type Chain interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, addresses []common.Address, topics [][]common.Hash, from, to, maxChunk, minChunk uint64) ([]types.Log, error)
}

// Listener is one event stream's polling loop. HistoricalScan catches up any
// gap between the stored cursor and the chain head using the same chunked
// path as live polling; Start runs the scan and then polls until the context
// is cancelled.
type Listener interface {
	Start(ctx context.Context) error
	Stop()
	HistoricalScan(ctx context.Context) error
	HandleLog(ctx context.Context, l types.Log) error
}

// Config carries the knobs shared by every listener.
type Config struct {
	NetworkKey     string
	PollInterval   time.Duration
	LookbackBlocks uint64
	LogChunkMax    uint64
	LogChunkMin    uint64
}

// HandlerFunc processes one decoded-at-the-edge log. Handlers MUST be
// idempotent on (blockNumber, logIndex): redelivery after a restart is
// possible up to one poll window.
type HandlerFunc func(ctx context.Context, l types.Log) error

// PollLoop is the shared listener implementation. Concrete listeners are
// built with New, providing their event type, address/topic filter, and
// handler.
type PollLoop struct {
	cfg       Config
	eventType domain.EventType
	addresses []common.Address
	topics    [][]common.Hash
	chain     Chain
	cursors   domain.CursorStore
	handle    HandlerFunc
	logger    *slog.Logger
	stop      context.CancelFunc

	// lastRef guards against in-process redelivery inside one run.
	lastRef domain.LogRef
	haveRef bool
}

// New creates a listener for one event type. addresses may be nil to match
// the topic on any contract (used for per-FPMM Trade events).
func New(cfg Config, et domain.EventType, addresses []common.Address, topics [][]common.Hash, ch Chain, cursors domain.CursorStore, handle HandlerFunc, logger *slog.Logger) *PollLoop {
	return &PollLoop{
		cfg:       cfg,
		eventType: et,
		addresses: addresses,
		topics:    topics,
		chain:     ch,
		cursors:   cursors,
		handle:    handle,
		logger: logger.With(
			slog.String("component", "listener"),
			slog.String("event", string(et)),
		),
	}
}

// Start runs the historical catch-up and then the live polling loop until
// the context is cancelled or a fatal error surfaces.
func (p *PollLoop) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.stop = cancel
	defer cancel()

	// The catch-up scan gets the same disposition as live polling: transient
	// failures sleep and retry from the same block, since the cursor only
	// advances past fully handled ranges. Only fatal errors surface.
	for {
		err := p.HistoricalScan(ctx)
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !chain.Retryable(err) {
			return err
		}
		p.logger.Warn("historical scan failed, will retry", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}

	for {
		if err := p.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !chain.Retryable(err) {
				return fmt.Errorf("listener %s: %w", p.eventType, err)
			}
			p.logger.Warn("poll failed, will retry", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// Stop cancels the running loop. Safe to call before Start.
func (p *PollLoop) Stop() {
	if p.stop != nil {
		p.stop()
	}
}

// HistoricalScan processes the gap between the stored cursor and the current
// head. With no stored cursor the scan is seeded lookbackBlocks behind the
// head, bounded at block 0.
func (p *PollLoop) HistoricalScan(ctx context.Context) error {
	head, err := p.chain.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("listener %s: head: %w", p.eventType, err)
	}

	cursor, err := p.cursor(ctx, head)
	if err != nil {
		return err
	}
	if cursor >= head {
		return nil
	}

	p.logger.Info("historical scan",
		slog.Uint64("from", cursor+1),
		slog.Uint64("to", head),
	)
	return p.processRange(ctx, cursor+1, head)
}

// HandleLog runs the registered handler for one log, skipping logs at or
// before the last in-process (blockNumber, logIndex) mark.
func (p *PollLoop) HandleLog(ctx context.Context, l types.Log) error {
	if p.haveRef {
		if l.BlockNumber < p.lastRef.BlockNumber ||
			(l.BlockNumber == p.lastRef.BlockNumber && l.Index <= p.lastRef.LogIndex) {
			return nil
		}
	}
	if err := p.handle(ctx, l); err != nil {
		return err
	}
	p.lastRef = domain.LogRef{BlockNumber: l.BlockNumber, LogIndex: l.Index}
	p.haveRef = true
	return nil
}

// pollOnce runs one live polling iteration: [cursor+1, head].
func (p *PollLoop) pollOnce(ctx context.Context) error {
	head, err := p.chain.BlockNumber(ctx)
	if err != nil {
		return err
	}
	cursor, err := p.cursor(ctx, head)
	if err != nil {
		return err
	}
	if head < cursor+1 {
		return nil
	}
	return p.processRange(ctx, cursor+1, head)
}

// processRange fetches, handles, and acknowledges logs for [from, to]. The
// cursor advances only after every log in the range is handled successfully;
// a failure leaves the cursor untouched so the whole range is retried.
func (p *PollLoop) processRange(ctx context.Context, from, to uint64) error {
	logs, err := p.chain.GetLogs(ctx, p.addresses, p.topics, from, to, p.cfg.LogChunkMax, p.cfg.LogChunkMin)
	if err != nil {
		return err
	}

	for _, l := range logs {
		if l.Removed {
			continue
		}
		if err := p.HandleLog(ctx, l); err != nil {
			return fmt.Errorf("listener %s: handle block %d index %d: %w",
				p.eventType, l.BlockNumber, l.Index, err)
		}
	}

	if err := p.cursors.Set(ctx, p.cfg.NetworkKey, p.eventType, to); err != nil {
		// A concurrent writer moved the cursor past us; nothing to repair.
		if errors.Is(err, domain.ErrStaleCursor) {
			return nil
		}
		return err
	}
	return nil
}

// cursor returns the stored cursor, seeding it from the lookback window when
// the event type has never been observed.
func (p *PollLoop) cursor(ctx context.Context, head uint64) (uint64, error) {
	cur, err := p.cursors.Get(ctx, p.cfg.NetworkKey, p.eventType)
	if err == nil {
		return cur, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("listener %s: cursor: %w", p.eventType, err)
	}

	seed := uint64(0)
	if head > p.cfg.LookbackBlocks {
		seed = head - p.cfg.LookbackBlocks
	}
	return seed, nil
}
