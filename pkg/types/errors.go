package types

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateIdempotencyKey means the (provider, idempotency key) pair was already recorded.
	// Ledger callers treat it as a successful no-op.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInsufficientFunds means a debit would leave the balance below the pending amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientAvailableFunds means a lock exceeds balance minus pending.
	ErrInsufficientAvailableFunds = errors.New("insufficient available funds")

	// ErrInvalidSignature means a webhook payload failed signature verification.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrUnparseableResolution means a venue reports a market as resolved but the
	// winning outcome cannot be determined.
	ErrUnparseableResolution = errors.New("unparseable resolution")

	// ErrResolutionConflict means the market is already claimed for a different
	// outcome, or for cancellation, by another settlement.
	ErrResolutionConflict = errors.New("market claimed for a different resolution")

	ErrResolutionNotFound  = errors.New("resolution not found")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrBetNotFound         = errors.New("bet not found")
	ErrMarketNotFound      = errors.New("market not found")
	ErrCompetitionNotFound = errors.New("competition not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrEmptyOutcome        = errors.New("winning outcome cannot be empty")
)

// UnparseableResolutionError carries the venue context of an unparseable resolution.
type UnparseableResolutionError struct {
	Source   Source
	MarketID string
	Reason   string
}

func (e *UnparseableResolutionError) Error() string {
	return fmt.Sprintf("%s market %s resolved but outcome unparseable: %s", e.Source, e.MarketID, e.Reason)
}

// Unwrap lets errors.Is match ErrUnparseableResolution.
func (e *UnparseableResolutionError) Unwrap() error {
	return ErrUnparseableResolution
}
