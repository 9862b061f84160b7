package chain

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// receiptPollInterval is how often Sender polls for the confirmation receipt.
const receiptPollInterval = 2 * time.Second

// Sender owns one account's nonce space and serializes all writes from it:
// a transaction is submitted only after the previous one has at least one
// confirmation. This is the only component allowed to send from the backend
// account.
type Sender struct {
	client         *Client
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	confirmTimeout time.Duration
	logger         *slog.Logger

	mu sync.Mutex // held across submit + receipt wait
}

// NewSender creates a Sender for the given private key and chain.
func NewSender(client *Client, key *ecdsa.PrivateKey, chainID int64, confirmTimeout time.Duration, logger *slog.Logger) *Sender {
	if confirmTimeout <= 0 {
		confirmTimeout = 60 * time.Second
	}
	return &Sender{
		client:         client,
		key:            key,
		from:           ethcrypto.PubkeyToAddress(key.PublicKey),
		chainID:        big.NewInt(chainID),
		confirmTimeout: confirmTimeout,
		logger:         logger.With(slog.String("component", "sender")),
	}
}

// From returns the sending account address.
func (s *Sender) From() common.Address { return s.from }

// Write packs and submits a contract call, then blocks until the transaction
// has a one-confirmation receipt (or the confirmation timeout elapses). A
// zero gasLimit means estimate; a non-zero gasLimit is used as-is, which
// callers rely on for deploy-heavy paths where estimation under-budgets.
func (s *Sender) Write(ctx context.Context, to common.Address, cabi abi.ABI, method string, gasLimit uint64, args ...interface{}) (common.Hash, error) {
	data, err := cabi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, &Error{Kind: KindFatal, Op: "pack " + method, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.client.callTimeout)
	nonce, err := s.client.eth.PendingNonceAt(callCtx, s.from)
	cancel()
	if err != nil {
		return common.Hash{}, classify("pendingNonce", err)
	}

	callCtx, cancel = context.WithTimeout(ctx, s.client.callTimeout)
	gasPrice, err := s.client.eth.SuggestGasPrice(callCtx)
	cancel()
	if err != nil {
		return common.Hash{}, classify("suggestGasPrice", err)
	}

	if gasLimit == 0 {
		gasLimit, err = s.client.EstimateGas(ctx, s.from, to, data)
		if err != nil {
			return common.Hash{}, err
		}
	}

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return common.Hash{}, &Error{Kind: KindFatal, Op: "sign " + method, Err: err}
	}

	callCtx, cancel = context.WithTimeout(ctx, s.client.callTimeout)
	err = s.client.eth.SendTransaction(callCtx, signed)
	cancel()
	if err != nil {
		return common.Hash{}, classify("send "+method, err)
	}

	hash := signed.Hash()
	s.logger.Debug("transaction submitted",
		slog.String("method", method),
		slog.String("tx", hash.Hex()),
		slog.Uint64("nonce", nonce),
		slog.Uint64("gas", gasLimit),
	)

	if err := s.waitMined(ctx, hash, method); err != nil {
		return hash, err
	}
	return hash, nil
}

// waitMined polls for the receipt until one confirmation or timeout. The
// nonce lock is held by the caller for the duration, which is what keeps the
// account's writes serialized.
func (s *Sender) waitMined(ctx context.Context, hash common.Hash, method string) error {
	deadline := time.Now().Add(s.confirmTimeout)
	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		callCtx, cancel := context.WithTimeout(ctx, s.client.callTimeout)
		receipt, err := s.client.eth.TransactionReceipt(callCtx, hash)
		cancel()

		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return &Error{Kind: KindRevert, Op: "receipt " + method, Reason: "transaction reverted", Err: nil}
			}
			return nil
		}

		if time.Now().After(deadline) {
			return &Error{Kind: KindTransient, Op: "receipt " + method, Reason: "confirmation timeout"}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
