package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/iho/goexchange/internal/adapter/repository/postgres"
	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/infrastructure/idgen"
	"github.com/iho/goexchange/internal/infrastructure/metrics"
	infrapg "github.com/iho/goexchange/internal/infrastructure/postgres"
	"github.com/iho/goexchange/internal/usecase"
)

// QuoteAsset prices every book in integration tests.
const QuoteAsset = "USD"

// TestDB provides a migrated database connection. Tests using it are skipped
// when DATABASE_URL is not set.
type TestDB struct {
	Pool *pgxpool.Pool
	t    *testing.T
}

// NewTestDB connects to DATABASE_URL and applies the migrations.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set")
	}

	if err := infrapg.RunMigrations(dbURL, migrationsPath(t), zerolog.Nop()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infrapg.NewPool(ctx, dbURL, 20, 2)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	db := &TestDB{Pool: pool, t: t}
	t.Cleanup(db.Cleanup)

	return db
}

// migrationsPath walks up from the working directory to the repository's migrations.
func migrationsPath(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	for {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("migrations directory not found")
		}
		dir = parent
	}
}

// Cleanup closes the database connection.
func (db *TestDB) Cleanup() {
	db.Pool.Close()
}

// TruncateAll removes all data from tables.
func (db *TestDB) TruncateAll(ctx context.Context) {
	db.t.Helper()

	_, err := db.Pool.Exec(ctx, `
		TRUNCATE TABLE settlements, orders, entries, transactions, accounts, outbox_events, audit_logs, assets CASCADE;
	`)
	if err != nil {
		db.t.Fatalf("failed to truncate tables: %v", err)
	}
}

// Stack is the postgres-backed use case graph.
type Stack struct {
	Accounts    *postgres.AccountRepository
	Entries     *postgres.EntryRepository
	Assets      *postgres.AssetRepository
	Outbox      *postgres.OutboxRepository
	Ledger      *usecase.LedgerUseCase
	Journal     *usecase.JournalUseCase
	Matching    *usecase.MatchingUseCase
	Account     *usecase.AccountUseCase
	Reconcile   *usecase.ReconciliationUseCase
	AssetConfig *usecase.AssetUseCase
}

// NewStack wires the use cases over the test database.
func (db *TestDB) NewStack() *Stack {
	pool := db.Pool
	logger := zerolog.Nop()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	ids := idgen.NewULIDGenerator()
	retrier := postgres.NewRetrier(logger)

	txManager := postgres.NewTxManager(pool, postgres.WithLockTimeout(5*time.Second))
	accounts := postgres.NewAccountRepository(pool)
	entries := postgres.NewEntryRepository(pool)
	assets := postgres.NewAssetRepository(pool)
	outbox := postgres.NewOutboxRepository(pool)
	audit := postgres.NewAuditRepository(pool)
	orders := postgres.NewOrderRepository(pool)

	ledger := usecase.NewLedgerUseCase(txManager, accounts, entries, entries, assets, ids, m, logger).WithRetrier(retrier)
	oracle := usecase.NewAssetOracle(assets)

	return &Stack{
		Accounts: accounts,
		Entries:  entries,
		Assets:   assets,
		Outbox:   outbox,
		Ledger:   ledger,
		Journal: usecase.NewJournalUseCase(usecase.JournalConfig{
			TxManager:       txManager,
			Ledger:          ledger,
			TransactionRepo: postgres.NewTransactionRepository(pool),
			OutboxRepo:      outbox,
			AuditRepo:       audit,
			IDGen:           ids,
			Retrier:         retrier,
			Metrics:         m,
			Logger:          logger,
		}),
		Matching: usecase.NewMatchingUseCase(usecase.MatchingConfig{
			TxManager:      txManager,
			Ledger:         ledger,
			OrderRepo:      orders,
			SettlementRepo: postgres.NewSettlementRepository(pool),
			OutboxRepo:     outbox,
			AuditRepo:      audit,
			Oracle:         oracle,
			IDGen:          ids,
			Retrier:        retrier,
			Metrics:        m,
			Logger:         logger,
			QuoteAsset:     QuoteAsset,
		}),
		Account:     usecase.NewAccountUseCase(txManager, accounts, orders, outbox, audit, ids, logger),
		Reconcile:   usecase.NewReconciliationUseCase(accounts, entries, ledger),
		AssetConfig: usecase.NewAssetUseCase(assets, oracle),
	}
}

// SeedAsset registers an asset with the given scale and reference price.
func (s *Stack) SeedAsset(t *testing.T, symbol string, scale int32, price string) {
	t.Helper()

	_, err := s.AssetConfig.UpsertAsset(context.Background(), usecase.UpsertAssetInput{
		Symbol:         symbol,
		Name:           symbol,
		Scale:          scale,
		ReferencePrice: decimal.RequireFromString(price),
	})
	if err != nil {
		t.Fatalf("failed to seed asset %s: %v", symbol, err)
	}
}

// Fund deposits amount of asset for userID.
func (s *Stack) Fund(t *testing.T, userID, asset, amount string) *domain.Transaction {
	t.Helper()

	record, err := s.Journal.RecordDeposit(context.Background(), usecase.RecordDepositInput{
		UserID: userID,
		Asset:  asset,
		Amount: decimal.RequireFromString(amount),
	})
	if err != nil {
		t.Fatalf("failed to fund %s with %s %s: %v", userID, amount, asset, err)
	}

	return record
}

// Balance returns the cached balance of userID in asset.
func (s *Stack) Balance(t *testing.T, userID, asset string) decimal.Decimal {
	t.Helper()

	balance, err := s.Ledger.GetBalance(context.Background(), userID, asset)
	if err != nil {
		t.Fatalf("failed to get balance of %s in %s: %v", userID, asset, err)
	}

	return balance
}

// AssertConsistent fails the test unless the ledger is consistent and
// every account reconciles.
func (s *Stack) AssertConsistent(t *testing.T) {
	t.Helper()

	ctx := context.Background()
	if ok, err := s.Ledger.CheckConsistency(ctx); err != nil || !ok {
		t.Fatalf("ledger inconsistent: ok=%v err=%v", ok, err)
	}

	report, err := s.Reconcile.GenerateReport(ctx)
	if err != nil {
		t.Fatalf("reconciliation failed: %v", err)
	}
	if len(report.Discrepancies) > 0 {
		t.Fatalf("expected no discrepancies, got %d", len(report.Discrepancies))
	}
}

// UserID generates a unique user id.
func UserID(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}
