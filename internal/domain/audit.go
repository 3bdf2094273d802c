package domain

import (
	"encoding/json"
	"time"
)

// AuditLog records who changed what, for compliance and debugging.
type AuditLog struct {
	ID           string
	UserID       string // who the action was performed for
	Action       string
	ResourceType string // order, transaction, settlement, account
	ResourceID   string
	RequestID    string
	AfterState   JSON
	Status       string
	ErrorMessage string
	CreatedAt    time.Time
}

// JSON is a type alias for JSON data
type JSON map[string]any

// AuditAction represents different types of auditable actions
type AuditAction string

const (
	AuditActionOrderSubmit     AuditAction = "order.submit"
	AuditActionOrderCancel     AuditAction = "order.cancel"
	AuditActionTradeSettle     AuditAction = "trade.settle"
	AuditActionDeposit         AuditAction = "transaction.deposit"
	AuditActionWithdrawal      AuditAction = "transaction.withdrawal"
	AuditActionTransfer        AuditAction = "transaction.transfer"
	AuditActionUserArchive     AuditAction = "user.archive"
	AuditActionLedgerReconcile AuditAction = "ledger.reconcile"
)

// AuditStatus represents the status of an audited action
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusFailure AuditStatus = "failure"
)

// MarshalState converts a domain object to JSON for audit logging
func MarshalState(v any) JSON {
	if v == nil {
		return nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return JSON{"error": "failed to marshal state"}
	}

	var result JSON
	if err := json.Unmarshal(data, &result); err != nil {
		return JSON{"error": "failed to unmarshal state"}
	}

	return result
}

// AuditFilter defines filters for querying audit logs
type AuditFilter struct {
	UserID       string
	Action       string
	ResourceType string
	ResourceID   string
	Limit        int
	Offset       int
}
