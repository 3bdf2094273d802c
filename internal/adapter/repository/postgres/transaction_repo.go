package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

const transactionColumns = `id, type, user_id, counterparty_user_id, asset, amount, status, failure_reason, created_at, updated_at`

// TransactionRepository implements usecase.TransactionRepository.
type TransactionRepository struct {
	db DBTX
}

// NewTransactionRepository creates a new TransactionRepository.
func NewTransactionRepository(db DBTX) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a journal record within a transaction.
func (r *TransactionRepository) Create(ctx context.Context, tx usecase.Transaction, record *domain.Transaction) error {
	_, err := txDB(tx).Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ID,
		string(record.Type),
		record.UserID,
		record.CounterpartyUserID,
		record.Asset,
		decimalToNumeric(record.Amount),
		string(record.Status),
		record.FailureReason,
		timeToPgTimestamptz(record.CreatedAt),
		timeToPgTimestamptz(record.UpdatedAt),
	)

	return err
}

// GetByID retrieves a journal record.
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	return scanTransactionRow(row)
}

// GetByIDForUpdate retrieves a journal record with a FOR UPDATE lock.
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, id string) (*domain.Transaction, error) {
	row := txDB(tx).QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	return scanTransactionRow(row)
}

// UpdateStatus persists the status and failure reason of a record.
func (r *TransactionRepository) UpdateStatus(ctx context.Context, tx usecase.Transaction, record *domain.Transaction) error {
	tag, err := txDB(tx).Exec(ctx,
		`UPDATE transactions SET status = $2, failure_reason = $3, updated_at = $4 WHERE id = $1`,
		record.ID, string(record.Status), record.FailureReason, timeToPgTimestamptz(record.UpdatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTransactionNotFound
	}

	return nil
}

// ListByUser lists records where the user is the owner or the counterparty, newest first.
func (r *TransactionRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1 OR counterparty_user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limitArg(limit), offset)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanTransaction)
}

func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	record, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, err
	}
	return record, nil
}

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		t                    domain.Transaction
		txType, status       string
		amount               pgtype.Numeric
		createdAt, updatedAt pgtype.Timestamptz
	)

	if err := row.Scan(&t.ID, &txType, &t.UserID, &t.CounterpartyUserID, &t.Asset, &amount,
		&status, &t.FailureReason, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	t.Type = domain.TransactionType(txType)
	t.Status = domain.TransactionStatus(status)
	t.Amount = numericToDecimal(amount)
	t.CreatedAt = createdAt.Time
	t.UpdatedAt = updatedAt.Time

	return &t, nil
}
