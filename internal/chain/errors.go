// Package chain wraps the JSON-RPC interface to the raffle contracts: typed
// reads, nonce-safe serialized writes, and chunked log queries tuned for
// unreliable public RPC endpoints.
package chain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrKind buckets chain failures by disposition. Callers switch on the kind
// to decide between retry, backoff, and permanent failure.
type ErrKind int

const (
	// KindTransient covers network hiccups, 5xx responses, and timeouts.
	// Retried with backoff at the call site.
	KindTransient ErrKind = iota
	// KindFatal covers misconfiguration and auth failures. The affected task
	// stops and is not restarted automatically.
	KindFatal
	// KindNonceConflict means another pending transaction holds the nonce.
	KindNonceConflict
	// KindOutOfGas means the transaction ran out of gas.
	KindOutOfGas
	// KindRevert is a business-logic revert from the contract.
	KindRevert
)

func (k ErrKind) String() string {
	switch k {
	case KindTransient:
		return "RpcTransient"
	case KindFatal:
		return "RpcFatal"
	case KindNonceConflict:
		return "NonceConflict"
	case KindOutOfGas:
		return "OutOfGas"
	case KindRevert:
		return "ContractRevert"
	default:
		return "Unknown"
	}
}

// Error is a classified chain failure. Reason carries the revert reason for
// KindRevert errors when the node returned one.
type Error struct {
	Kind   ErrKind
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("chain: %s: %s: %s", e.Op, e.Kind, e.Reason)
	}
	if e.Err != nil {
		return fmt.Sprintf("chain: %s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("chain: %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a chain.Error of the given kind.
func IsKind(err error, kind ErrKind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// Retryable reports whether the error is worth retrying: transient failures
// and nonce conflicts resolve on their own, reverts and auth failures do not.
func Retryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == KindTransient || ce.Kind == KindNonceConflict
	}
	// Unclassified errors default to retryable so a novel node error string
	// cannot permanently wedge a listener.
	return true
}

// classify maps a raw RPC error to a chain.Error. Node error strings are not
// standardized across clients, so matching is substring-based on the phrases
// geth, erigon, and common hosted providers emit.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "nonce too low"),
		strings.Contains(msg, "nonce too high"),
		strings.Contains(msg, "replacement transaction underpriced"),
		strings.Contains(msg, "already known"):
		return &Error{Kind: KindNonceConflict, Op: op, Err: err}

	case strings.Contains(msg, "out of gas"),
		strings.Contains(msg, "intrinsic gas too low"),
		strings.Contains(msg, "gas required exceeds allowance"):
		return &Error{Kind: KindOutOfGas, Op: op, Err: err}

	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "revert"):
		return &Error{Kind: KindRevert, Op: op, Reason: revertReason(err), Err: err}

	case strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "api key"),
		strings.Contains(msg, "invalid api"),
		strings.Contains(msg, "403"),
		strings.Contains(msg, "method not found"),
		strings.Contains(msg, "method not supported"):
		return &Error{Kind: KindFatal, Op: op, Err: err}
	}

	// Everything else (connection refused, timeouts, 5xx, filter not found,
	// rate limits) is treated as transient.
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

// revertReason extracts the human-readable reason from an "execution
// reverted: ..." error string when present.
func revertReason(err error) string {
	msg := err.Error()
	const marker = "execution reverted"
	idx := strings.Index(strings.ToLower(msg), marker)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(msg[idx+len(marker):])
	return strings.TrimPrefix(rest, ": ")
}
