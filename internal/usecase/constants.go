package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// DefaultQuoteAsset prices every order book when no quote asset is configured.
	DefaultQuoteAsset = "USD"

	// matchBatchSize is how many resting orders one matching query loads.
	matchBatchSize = 50

	systemUserID = "system"
)
