package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/domain"
)

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	CreateTx(ctx context.Context, tx Transaction, account *domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUserAsset(ctx context.Context, userID, asset string) (*domain.Account, error)
	// GetByUserAssetForUpdate locks the account row for the rest of tx.
	GetByUserAssetForUpdate(ctx context.Context, tx Transaction, userID, asset string) (*domain.Account, error)
	// LockForUpdate locks every existing account among keys, in key order.
	LockForUpdate(ctx context.Context, tx Transaction, keys []domain.AccountKey) ([]*domain.Account, error)
	UpdateBalance(ctx context.Context, tx Transaction, id string, balance decimal.Decimal, version int64, updatedAt time.Time) error
	UpdateHeld(ctx context.Context, tx Transaction, id string, held decimal.Decimal, updatedAt time.Time) error
	ArchiveByUser(ctx context.Context, tx Transaction, userID string, at time.Time) (int, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.Account, error)
	ListByUserForUpdate(ctx context.Context, tx Transaction, userID string) ([]*domain.Account, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Account, error)
}

// EntryRepository defines data access for entries.
type EntryRepository interface {
	Create(ctx context.Context, tx Transaction, entry *domain.Entry) error
	GetByCause(ctx context.Context, causeType domain.CauseType, causeID string) ([]*domain.Entry, error)
	GetByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Entry, error)
	SumByAccount(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetBalanceAtTime(ctx context.Context, accountID string, at time.Time) (decimal.Decimal, error)
}

// LedgerRepository defines data access for ledger-wide operations.
type LedgerRepository interface {
	CheckConsistency(ctx context.Context) (totalBalance, totalAmount decimal.Decimal, err error)
}

// AssetRepository defines data access for recognized assets.
type AssetRepository interface {
	Upsert(ctx context.Context, asset *domain.Asset) error
	GetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error)
	List(ctx context.Context) ([]*domain.Asset, error)
}

// TransactionRepository defines data access for journal records.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction, record *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, id string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, tx Transaction, record *domain.Transaction) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Transaction, error)
}

// MatchQuery selects resting orders an incoming order may trade with.
type MatchQuery struct {
	Asset         string
	QuoteAsset    string
	Side          domain.Side // side of the resting orders
	LimitPrice    decimal.Decimal
	ExcludeUserID string
	Limit         int
}

// PriceLevel is aggregated resting quantity at one price.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Orders   int
}

// OrderRepository defines data access for orders.
type OrderRepository interface {
	Create(ctx context.Context, tx Transaction, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// GetByIDsForUpdate locks the orders in id order.
	GetByIDsForUpdate(ctx context.Context, tx Transaction, ids []string) ([]*domain.Order, error)
	Update(ctx context.Context, tx Transaction, order *domain.Order) error
	// ListMatchable returns live orders crossing q.LimitPrice in price-time priority.
	ListMatchable(ctx context.Context, q MatchQuery) ([]*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*domain.Order, error)
	CountLiveByUser(ctx context.Context, tx Transaction, userID string) (int, error)
	Depth(ctx context.Context, asset, quoteAsset string, side domain.Side, levels int) ([]PriceLevel, error)
}

// SettlementRepository defines data access for settlements.
type SettlementRepository interface {
	Create(ctx context.Context, tx Transaction, settlement *domain.Settlement) error
	ListByOrder(ctx context.Context, orderID string) ([]*domain.Settlement, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Delete releases a key so the request can be retried.
	Delete(ctx context.Context, key string) error
}
