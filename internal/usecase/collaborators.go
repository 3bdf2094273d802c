package usecase

//go:generate mockgen -source=collaborators.go -destination=mocks/mock_collaborators.go -package=mocks

import (
	"context"

	"github.com/shopspring/decimal"
)

// PriceOracle supplies reference prices. It is advisory: matching never
// uses it to set a fill price.
type PriceOracle interface {
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
}

// BookLocker serializes submission and matching for one order book.
type BookLocker interface {
	// Lock blocks until the book is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, book string) (func(), error)
}

// Retrier re-runs an operation on transient storage conflicts.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique, lexicographically increasing IDs.
type IDGenerator interface {
	Generate() string
}
