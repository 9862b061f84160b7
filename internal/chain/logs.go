package chain

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// fetchFunc fetches logs for one inclusive block range.
type fetchFunc func(ctx context.Context, from, to uint64) ([]types.Log, error)

// GetLogs fetches logs for [from, to] against the given addresses and topic
// filter, transparently splitting the range into windows of at most maxChunk
// blocks. When a window fails it is halved and retried, bottoming out at
// minChunk blocks before the error is surfaced. Logs are returned in the
// node's (blockNumber, logIndex) order.
func (c *Client) GetLogs(ctx context.Context, addresses []common.Address, topics [][]common.Hash, from, to uint64, maxChunk, minChunk uint64) ([]types.Log, error) {
	fetch := func(ctx context.Context, lo, hi uint64) ([]types.Log, error) {
		cctx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		logs, err := c.eth.FilterLogs(cctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(lo),
			ToBlock:   new(big.Int).SetUint64(hi),
			Addresses: addresses,
			Topics:    topics,
		})
		if err != nil {
			return nil, classify("getLogs", err)
		}
		return logs, nil
	}
	return fetchChunked(ctx, fetch, from, to, maxChunk, minChunk, c.logger)
}

// fetchChunked walks [from, to] in maxChunk windows, delegating each window
// to fetchHalving. Split out from Client.GetLogs so the chunking behavior is
// testable without a node.
func fetchChunked(ctx context.Context, fetch fetchFunc, from, to uint64, maxChunk, minChunk uint64, logger *slog.Logger) ([]types.Log, error) {
	if to < from {
		return nil, nil
	}
	if maxChunk == 0 {
		maxChunk = 10000
	}
	if minChunk == 0 {
		minChunk = 500
	}

	var all []types.Log
	for lo := from; lo <= to; {
		hi := lo + maxChunk - 1
		if hi > to {
			hi = to
		}
		logs, err := fetchHalving(ctx, fetch, lo, hi, minChunk, logger)
		if err != nil {
			return nil, err
		}
		all = append(all, logs...)
		lo = hi + 1
	}
	return all, nil
}

// fetchHalving fetches one window, recursively halving it on failure until
// the window is at or below minChunk blocks, at which point the error is
// surfaced to the caller.
func fetchHalving(ctx context.Context, fetch fetchFunc, from, to uint64, minChunk uint64, logger *slog.Logger) ([]types.Log, error) {
	logs, err := fetch(ctx, from, to)
	if err == nil {
		return logs, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	span := to - from + 1
	if span <= minChunk {
		return nil, err
	}

	if logger != nil {
		logger.Warn("log window failed, halving",
			slog.Uint64("from", from),
			slog.Uint64("to", to),
			slog.String("error", err.Error()),
		)
	}

	mid := from + span/2 - 1
	left, err := fetchHalving(ctx, fetch, from, mid, minChunk, logger)
	if err != nil {
		return nil, err
	}
	right, err := fetchHalving(ctx, fetch, mid+1, to, minChunk, logger)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}
