package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientFunds occurs when a debit would take the wallet balance
	// below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateReference indicates an entry with the given reference already
	// exists. Callers must treat this as already-applied, not as a failure.
	ErrDuplicateReference = errors.New("duplicate reference")

	// ErrInvalidAmount is returned for zero amounts.
	ErrInvalidAmount = errors.New("amount must be non-zero")
)

// InsufficientFundsError carries the amounts needed to prompt a top-up.
type InsufficientFundsError struct {
	Required  int64
	Available int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.Required, e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}
