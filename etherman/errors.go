package etherman

import (
	"errors"
	"fmt"
	"strings"
)

// Every failure crossing this package's boundary is one of these kinds.
// Upstream components never see raw transport errors.
var (
	// ErrRpc marks a network/node failure. Transient; callers retry with
	// backoff instead of treating it as fatal.
	ErrRpc = errors.New("rpc failure")

	// ErrDecode marks return data that does not match the expected shape.
	ErrDecode = errors.New("return data mismatch")

	// ErrTransactionRejected marks a revert or node-side rejection of a
	// submitted transaction. Terminal for that attempt.
	ErrTransactionRejected = errors.New("transaction rejected")

	// ErrInsufficientFunds marks a relayer account that cannot cover gas.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrReceiptTimeout marks a transaction that was not mined within the
	// configured confirmation window.
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

func rpcError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrRpc, err)
}

func decodeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrDecode, err)
}

// sendError classifies a transaction submission failure. Node error strings
// are the only signal available here; anything unrecognized counts as an
// RPC failure and stays retryable.
func sendError(op string, err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return fmt.Errorf("%s: %w: %v", op, ErrInsufficientFunds, err)
	case strings.Contains(msg, "execution reverted"),
		strings.Contains(msg, "revert"),
		strings.Contains(msg, "always failing transaction"),
		strings.Contains(msg, "nonce too low"):
		return fmt.Errorf("%s: %w: %v", op, ErrTransactionRejected, err)
	default:
		return fmt.Errorf("%s: %w: %v", op, ErrRpc, err)
	}
}
