package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is a read-side chain client with a per-call timeout. It deliberately
// avoids long-lived server-side log filters: public RPC endpoints expire
// filters within seconds under polling, producing "filter not found" errors.
// All log reads go through eth_getLogs with explicit block ranges instead.
type Client struct {
	eth         *ethclient.Client
	rpc         *rpc.Client
	callTimeout time.Duration
	logger      *slog.Logger
}

// Dial connects to the given HTTP RPC endpoint. callTimeout bounds every
// individual read; writes use their own confirmation timeout in Sender.
func Dial(ctx context.Context, url string, callTimeout time.Duration, logger *slog.Logger) (*Client, error) {
	rc, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, classify("dial", err)
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Client{
		eth:         ethclient.NewClient(rc),
		rpc:         rc,
		callTimeout: callTimeout,
		logger:      logger.With(slog.String("component", "chain")),
	}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Eth exposes the underlying ethclient for callers that need the raw
// interface (e.g. receipt polling in Sender).
func (c *Client) Eth() *ethclient.Client { return c.eth }

// RPC exposes the raw RPC client for non-standard methods such as the
// paymaster's wallet_sendCalls.
func (c *Client) RPC() *rpc.Client { return c.rpc }

// BlockNumber returns the current head block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	n, err := c.eth.BlockNumber(ctx)
	if err != nil {
		return 0, classify("blockNumber", err)
	}
	return n, nil
}

// ReadContract performs an eth_call against the given contract method and
// unpacks the result. It never blocks longer than the configured per-call
// timeout.
func (c *Client) ReadContract(ctx context.Context, addr common.Address, cabi abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := cabi.Pack(method, args...)
	if err != nil {
		return nil, &Error{Kind: KindFatal, Op: "pack " + method, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
	if err != nil {
		return nil, classify("call "+method, err)
	}

	res, err := cabi.Unpack(method, out)
	if err != nil {
		return nil, &Error{Kind: KindFatal, Op: "unpack " + method, Err: err}
	}
	return res, nil
}

// EstimateGas estimates gas for a contract call from the given account.
func (c *Client) EstimateGas(ctx context.Context, from, to common.Address, data []byte) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	gas, err := c.eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return 0, classify("estimateGas", err)
	}
	return gas, nil
}

func bigFromInt64(v int64) *big.Int { return big.NewInt(v) }

// bigToUint64 converts a contract uint256 to uint64, saturating rather than
// wrapping on values that exceed the ticket-count range.
func bigToUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() < 0 {
		return 0
	}
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// bigToBps clamps a contract uint256 probability to the [0, 10000] range.
func bigToBps(v *big.Int) int {
	n := bigToUint64(v)
	if n > 10000 {
		return 10000
	}
	return int(n)
}

func asBig(res []interface{}, i int, op string) (*big.Int, error) {
	if i >= len(res) {
		return nil, &Error{Kind: KindFatal, Op: op, Err: fmt.Errorf("short result: want index %d, got %d values", i, len(res))}
	}
	v, ok := res[i].(*big.Int)
	if !ok {
		return nil, &Error{Kind: KindFatal, Op: op, Err: fmt.Errorf("result %d is %T, want *big.Int", i, res[i])}
	}
	return v, nil
}
