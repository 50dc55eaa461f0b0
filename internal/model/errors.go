package model

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrDoubleSpend         = errors.New("double spend")
	ErrOwnershipMismatch   = errors.New("ownership mismatch")
	ErrInvalidPoW          = errors.New("invalid proof of work")
	ErrChainLinkMismatch   = errors.New("chain link mismatch")
	ErrMerkleMismatch      = errors.New("merkle root mismatch")
	ErrInvalidBlock        = errors.New("invalid block")
	ErrNonceExhausted      = errors.New("nonce space exhausted")

	ErrMarketNotFound    = errors.New("market not found")
	ErrOutcomeNotFound   = errors.New("outcome not found")
	ErrBetNotFound       = errors.New("bet not found")
	ErrMarketNotOpen     = errors.New("market not open")
	ErrAlreadyClosed     = errors.New("market already closed")
	ErrAlreadyResolved   = errors.New("market already resolved")
	ErrInvalidTransition = errors.New("invalid market state transition")
	ErrInvalidMarketSpec = errors.New("invalid market spec")
	ErrTradeCostMismatch = errors.New("trade cost exceeds staked amount")
	ErrInvalidSettlement = errors.New("invalid settlement")

	ErrInvalidTransaction  = errors.New("invalid transaction")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrMempoolFull         = errors.New("mempool full")
	ErrBlockNotFound       = errors.New("block not found")
	ErrPriceNotFound       = errors.New("price not found")
	ErrStalePrice          = errors.New("price predates market close")

	ErrInvariantViolation = errors.New("invariant violation")
	ErrHalted             = errors.New("ledger halted")
)

// TxError attaches the offending transaction id to a validation error.
type TxError struct {
	TxID chainhash.Hash
	Err  error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("transaction %s: %v", e.TxID, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}
