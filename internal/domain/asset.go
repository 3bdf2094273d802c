package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Asset is a tradable or depositable symbol recognized by the ledger.
type Asset struct {
	Symbol         string
	Name           string
	Scale          int32
	ReferencePrice decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// HasReferencePrice reports whether a reference price has been published.
func (a *Asset) HasReferencePrice() bool {
	return a.ReferencePrice.IsPositive()
}
