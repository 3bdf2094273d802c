package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the kind of journal record.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionTransfer   TransactionType = "transfer"
)

// IsValid reports whether t is a known transaction type.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionDeposit, TransactionWithdrawal, TransactionTransfer:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a journal record.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionCompleted || s == TransactionFailed
}

// CanTransitionTo reports whether s may move to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	return s == TransactionPending && (next == TransactionCompleted || next == TransactionFailed)
}

// Transaction is a journal record of a deposit, withdrawal or transfer.
type Transaction struct {
	ID                 string
	Type               TransactionType
	UserID             string
	CounterpartyUserID string
	Asset              string
	Amount             decimal.Decimal
	Status             TransactionStatus
	FailureReason      string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Transition moves the record to next, recording reason for failures.
func (t *Transaction) Transition(next TransactionStatus, reason string, at time.Time) error {
	if !t.Status.CanTransitionTo(next) {
		return ErrTerminalStatus
	}
	t.Status = next
	if next == TransactionFailed {
		t.FailureReason = reason
	}
	t.UpdatedAt = at
	return nil
}
