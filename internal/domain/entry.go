package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CauseType names what produced an entry.
type CauseType string

const (
	CauseTransaction CauseType = "transaction"
	CauseSettlement  CauseType = "settlement"
)

// IsValid reports whether c is a known cause.
func (c CauseType) IsValid() bool {
	return c == CauseTransaction || c == CauseSettlement
}

// Entry is an immutable signed change to one account's balance.
type Entry struct {
	CreatedAt              time.Time
	ID                     string
	AccountID              string
	CauseType              CauseType
	CauseID                string
	Amount                 decimal.Decimal
	AccountPreviousBalance decimal.Decimal
	AccountCurrentBalance  decimal.Decimal
	AccountVersion         int64
}
