package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

const entryColumns = `id, account_id, cause_type, cause_id, amount, account_previous_balance, account_current_balance, account_version, created_at`

// EntryRepository implements usecase.EntryRepository and usecase.LedgerRepository.
type EntryRepository struct {
	db DBTX
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(db DBTX) *EntryRepository {
	return &EntryRepository{db: db}
}

// Create creates a new entry within a transaction.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	_, err := txDB(tx).Exec(ctx, `
		INSERT INTO entries (`+entryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.AccountID,
		string(entry.CauseType),
		entry.CauseID,
		decimalToNumeric(entry.Amount),
		decimalToNumeric(entry.AccountPreviousBalance),
		decimalToNumeric(entry.AccountCurrentBalance),
		entry.AccountVersion,
		timeToPgTimestamptz(entry.CreatedAt),
	)

	return err
}

// GetByCause retrieves the entries posted for one transaction or settlement.
func (r *EntryRepository) GetByCause(ctx context.Context, causeType domain.CauseType, causeID string) ([]*domain.Entry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM entries WHERE cause_type = $1 AND cause_id = $2 ORDER BY id`,
		string(causeType), causeID)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanEntry)
}

// GetByAccount retrieves entries by account ID, newest first.
func (r *EntryRepository) GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+entryColumns+` FROM entries
		WHERE account_id = $1
		ORDER BY account_version DESC
		LIMIT $2 OFFSET $3`,
		accountID, limitArg(limit), offset)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanEntry)
}

// SumByAccount returns the sum of an account's entries.
func (r *EntryRepository) SumByAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var sum pgtype.Numeric
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM entries WHERE account_id = $1`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, err
	}

	return numericToDecimal(sum), nil
}

// GetBalanceAtTime returns the balance snapshot of the last entry at or before at.
func (r *EntryRepository) GetBalanceAtTime(ctx context.Context, accountID string, at time.Time) (decimal.Decimal, error) {
	var balance pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT account_current_balance FROM entries
		WHERE account_id = $1 AND created_at <= $2
		ORDER BY account_version DESC
		LIMIT 1`,
		accountID, timeToPgTimestamptz(at)).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}

	return numericToDecimal(balance), nil
}

// CheckConsistency returns the sum of all cached balances and the sum of all entries.
func (r *EntryRepository) CheckConsistency(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	var totalBalance, totalAmount pgtype.Numeric
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COALESCE(SUM(balance), 0) FROM accounts),
			(SELECT COALESCE(SUM(amount), 0) FROM entries)`).Scan(&totalBalance, &totalAmount)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	return numericToDecimal(totalBalance), numericToDecimal(totalAmount), nil
}

func scanEntry(row rowScanner) (*domain.Entry, error) {
	var (
		e                     domain.Entry
		causeType             string
		amount, prev, current pgtype.Numeric
		createdAt             pgtype.Timestamptz
	)

	if err := row.Scan(&e.ID, &e.AccountID, &causeType, &e.CauseID, &amount, &prev, &current, &e.AccountVersion, &createdAt); err != nil {
		return nil, err
	}

	e.CauseType = domain.CauseType(causeType)
	e.Amount = numericToDecimal(amount)
	e.AccountPreviousBalance = numericToDecimal(prev)
	e.AccountCurrentBalance = numericToDecimal(current)
	e.CreatedAt = createdAt.Time

	return &e, nil
}
