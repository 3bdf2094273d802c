package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/iho/goexchange/internal/domain"
)

// runInTx executes fn inside one storage transaction bounded by
// DefaultTransactionTimeout. When retrier is set, the whole transaction is
// re-run on transient storage conflicts.
func runInTx(ctx context.Context, txManager TransactionManager, retrier Retrier, fn func(txCtx context.Context, tx Transaction) error) error {
	attempt := func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			return err
		}

		return tx.Commit(txCtx)
	}

	if retrier == nil {
		return attempt()
	}

	return retrier.Retry(ctx, attempt)
}

// emitEvent writes an outbox event in the caller's transaction.
func emitEvent(ctx context.Context, tx Transaction, outboxRepo OutboxRepository, idGen IDGenerator, aggregateType, aggregateID, eventType string, payload map[string]any, now time.Time) error {
	if outboxRepo == nil {
		return nil
	}

	return outboxRepo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            idGen.Generate(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
		Published:     false,
	})
}

// writeAudit records an audit log in the caller's transaction.
func writeAudit(ctx context.Context, tx Transaction, auditRepo AuditRepository, idGen IDGenerator, userID string, action domain.AuditAction, resourceType, resourceID string, state any, now time.Time) error {
	if auditRepo == nil {
		return nil
	}

	if userID == "" {
		userID = systemUserID
	}

	return auditRepo.CreateTx(ctx, tx, &domain.AuditLog{
		ID:           idGen.Generate(),
		UserID:       userID,
		Action:       string(action),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		RequestID:    RequestIDFromContext(ctx),
		AfterState:   domain.MarshalState(state),
		Status:       string(domain.AuditStatusSuccess),
		CreatedAt:    now,
	})
}

// errorReason maps an error to a low-cardinality metric label.
func errorReason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, domain.ErrLedgerInconsistency):
		return "ledger_inconsistency"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "internal"
	}
}

type requestIDKey struct{}

// ContextWithRequestID attaches the caller's request id; audit logs record it.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the request id attached to ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
