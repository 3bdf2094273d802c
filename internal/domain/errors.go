package domain

import (
	"errors"
	"fmt"
)

// Core error kinds. Callers branch on these with errors.Is.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidState        = errors.New("invalid state")
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
	ErrNotFound            = errors.New("not found")
)

var (
	// Lookup errors
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrOrderNotFound       = fmt.Errorf("order %w", ErrNotFound)
	ErrAssetNotFound       = fmt.Errorf("asset %w", ErrNotFound)
	ErrPriceUnavailable    = fmt.Errorf("reference price %w", ErrNotFound)

	// Request errors
	ErrUnknownAsset = fmt.Errorf("%w: unknown asset", ErrInvalidAmount)
	ErrSameAccount  = fmt.Errorf("%w: source and destination user are the same", ErrInvalidAmount)
	ErrMissingUser  = fmt.Errorf("%w: user id is required", ErrInvalidAmount)

	// State errors
	ErrAccountArchived = fmt.Errorf("%w: account is archived", ErrInvalidState)
	ErrOrderNotLive    = fmt.Errorf("%w: order is not open", ErrInvalidState)
	ErrTerminalStatus  = fmt.Errorf("%w: status is terminal", ErrInvalidState)
)

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// IsRecoverable reports whether err is a business rejection the caller can act on.
// Anything else (storage failures, ledger inconsistency) is fatal for the operation.
func IsRecoverable(err error) bool {
	switch {
	case errors.Is(err, ErrLedgerInconsistency):
		return false
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrNotFound):
		return true
	default:
		return false
	}
}
