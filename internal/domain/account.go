package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is a user's wallet for a single asset.
// Balance is a cache of the sum of the account's entries; Held is the part of
// Balance reserved by live orders.
type Account struct {
	ID         string
	UserID     string
	Asset      string
	Balance    decimal.Decimal
	Held       decimal.Decimal
	Version    int64
	ArchivedAt *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AccountKey identifies an account by owner and asset.
type AccountKey struct {
	UserID string
	Asset  string
}

// Key returns the account's (user, asset) key.
func (a *Account) Key() AccountKey {
	return AccountKey{UserID: a.UserID, Asset: a.Asset}
}

// Less orders keys by user then asset. Accounts are always locked in this order.
func (k AccountKey) Less(other AccountKey) bool {
	if k.UserID != other.UserID {
		return k.UserID < other.UserID
	}
	return k.Asset < other.Asset
}

func (k AccountKey) String() string {
	return k.UserID + "/" + k.Asset
}

// Available returns the balance not reserved by holds.
func (a *Account) Available() decimal.Decimal {
	return a.Balance.Sub(a.Held)
}

// IsArchived reports whether the account has been archived.
func (a *Account) IsArchived() bool {
	return a.ArchivedAt != nil
}

// ValidatePosting checks that delta can be applied and returns the resulting balance.
func (a *Account) ValidatePosting(delta decimal.Decimal) (decimal.Decimal, error) {
	if delta.IsZero() {
		return decimal.Zero, ErrInvalidAmount
	}
	if a.IsArchived() {
		return decimal.Zero, ErrAccountArchived
	}

	newBalance := a.Balance.Add(delta)
	if newBalance.IsNegative() || newBalance.LessThan(a.Held) {
		return decimal.Zero, ErrInsufficientFunds
	}

	return newBalance, nil
}

// ValidateHold checks that amount can be reserved from the available balance.
func (a *Account) ValidateHold(amount decimal.Decimal) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if a.IsArchived() {
		return ErrAccountArchived
	}
	if a.Available().LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// ValidateRelease checks that amount does not exceed what is currently held.
// Releasing more than is held means hold bookkeeping has drifted from the orders.
func (a *Account) ValidateRelease(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	if amount.GreaterThan(a.Held) {
		return ErrLedgerInconsistency
	}
	return nil
}
