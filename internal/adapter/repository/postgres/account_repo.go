package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/usecase"
)

const accountColumns = `id, user_id, asset, balance, held, version, archived_at, created_at, updated_at`

// AccountRepository implements usecase.AccountRepository.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// CreateTx creates a new account within a transaction.
func (r *AccountRepository) CreateTx(ctx context.Context, tx usecase.Transaction, account *domain.Account) error {
	_, err := txDB(tx).Exec(ctx, `
		INSERT INTO accounts (id, user_id, asset, balance, held, version, archived_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		account.ID,
		account.UserID,
		account.Asset,
		decimalToNumeric(account.Balance),
		decimalToNumeric(account.Held),
		account.Version,
		timePtrToPg(account.ArchivedAt),
		timeToPgTimestamptz(account.CreatedAt),
		timeToPgTimestamptz(account.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create account %s: %w", account.Key(), err)
	}

	return nil
}

// GetByID retrieves an account by ID.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccountRow(row)
}

// GetByUserAsset retrieves a user's account for an asset.
func (r *AccountRepository) GetByUserAsset(ctx context.Context, userID, asset string) (*domain.Account, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND asset = $2`,
		userID, asset)
	return scanAccountRow(row)
}

// GetByUserAssetForUpdate retrieves a user's account with a FOR UPDATE lock.
func (r *AccountRepository) GetByUserAssetForUpdate(ctx context.Context, tx usecase.Transaction, userID, asset string) (*domain.Account, error) {
	row := txDB(tx).QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 AND asset = $2 FOR UPDATE`,
		userID, asset)
	return scanAccountRow(row)
}

// LockForUpdate locks the existing accounts among keys, ordered by (user_id, asset).
func (r *AccountRepository) LockForUpdate(ctx context.Context, tx usecase.Transaction, keys []domain.AccountKey) ([]*domain.Account, error) {
	if len(keys) == 0 {
		return []*domain.Account{}, nil
	}

	users := make([]string, len(keys))
	assets := make([]string, len(keys))
	for i, k := range keys {
		users[i] = k.UserID
		assets[i] = k.Asset
	}

	rows, err := txDB(tx).Query(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE (user_id, asset) IN (SELECT * FROM unnest($1::text[], $2::text[]))
		ORDER BY user_id, asset
		FOR UPDATE`,
		users, assets)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAccount)
}

// UpdateBalance sets the cached balance and version of an account.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error {
	tag, err := txDB(tx).Exec(ctx,
		`UPDATE accounts SET balance = $2, version = $3, updated_at = $4 WHERE id = $1`,
		id, decimalToNumeric(balance), version, timeToPgTimestamptz(updatedAt))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// UpdateHeld sets the held amount of an account.
func (r *AccountRepository) UpdateHeld(ctx context.Context, tx usecase.Transaction, id string, held decimal.Decimal, updatedAt time.Time) error {
	tag, err := txDB(tx).Exec(ctx,
		`UPDATE accounts SET held = $2, updated_at = $3 WHERE id = $1`,
		id, decimalToNumeric(held), timeToPgTimestamptz(updatedAt))
	if err != nil {
		if isPgError(err, pgErrCheckViolation) {
			return fmt.Errorf("%w: held outside balance on account %s", domain.ErrLedgerInconsistency, id)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAccountNotFound
	}

	return nil
}

// ArchiveByUser archives every live account of a user.
func (r *AccountRepository) ArchiveByUser(ctx context.Context, tx usecase.Transaction, userID string, at time.Time) (int, error) {
	tag, err := txDB(tx).Exec(ctx,
		`UPDATE accounts SET archived_at = $2, updated_at = $2 WHERE user_id = $1 AND archived_at IS NULL`,
		userID, timeToPgTimestamptz(at))
	if err != nil {
		return 0, err
	}

	return int(tag.RowsAffected()), nil
}

// ListByUser lists every account of a user, ordered by asset.
func (r *AccountRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY asset`, userID)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAccount)
}

// ListByUserForUpdate locks and lists every account of a user.
func (r *AccountRepository) ListByUserForUpdate(ctx context.Context, tx usecase.Transaction, userID string) ([]*domain.Account, error) {
	rows, err := txDB(tx).Query(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1 ORDER BY asset FOR UPDATE`, userID)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAccount)
}

// List lists accounts with pagination.
func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]*domain.Account, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+accountColumns+` FROM accounts ORDER BY id LIMIT $1 OFFSET $2`,
		limitArg(limit), offset)
	if err != nil {
		return nil, err
	}

	return collect(rows, scanAccount)
}

func scanAccountRow(row pgx.Row) (*domain.Account, error) {
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

func scanAccount(row rowScanner) (*domain.Account, error) {
	var (
		a                   domain.Account
		balance, held       pgtype.Numeric
		archivedAt          pgtype.Timestamptz
		createdAt, updateAt pgtype.Timestamptz
	)

	if err := row.Scan(&a.ID, &a.UserID, &a.Asset, &balance, &held, &a.Version, &archivedAt, &createdAt, &updateAt); err != nil {
		return nil, err
	}

	a.Balance = numericToDecimal(balance)
	a.Held = numericToDecimal(held)
	a.ArchivedAt = nullableTime(archivedAt)
	a.CreatedAt = createdAt.Time
	a.UpdatedAt = updateAt.Time

	return &a, nil
}
