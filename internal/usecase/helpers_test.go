package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iho/goexchange/internal/adapter/repository/memory"
	"github.com/iho/goexchange/internal/domain"
	"github.com/iho/goexchange/internal/infrastructure/idgen"
	"github.com/iho/goexchange/internal/infrastructure/metrics"
	"github.com/iho/goexchange/internal/usecase"
	"github.com/iho/goexchange/internal/usecase/mocks"
)

type testEnv struct {
	store          *memory.Store
	metrics        *metrics.Metrics
	ledger         *usecase.LedgerUseCase
	journal        *usecase.JournalUseCase
	matching       *usecase.MatchingUseCase
	accounts       *usecase.AccountUseCase
	entries        *usecase.EntryUseCase
	reconciliation *usecase.ReconciliationUseCase
	assets         *usecase.AssetUseCase
}

type envConfig struct {
	wrapPoster func(usecase.Poster) usecase.Poster
	oracle     usecase.PriceOracle
	priceBand  decimal.Decimal
}

type envOption func(*envConfig)

func withPoster(wrap func(usecase.Poster) usecase.Poster) envOption {
	return func(c *envConfig) { c.wrapPoster = wrap }
}

func withOracle(o usecase.PriceOracle, band string) envOption {
	return func(c *envConfig) {
		c.oracle = o
		c.priceBand = decimal.RequireFromString(band)
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	var cfg envConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	store := memory.NewStore()
	txManager := store.TxManager()
	ids := idgen.NewULIDGenerator()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	logger := zerolog.Nop()

	ledger := usecase.NewLedgerUseCase(txManager, store.Accounts(), store.Entries(), store.Entries(), store.Assets(), ids, m, logger)

	var matchingPoster usecase.Poster = ledger
	if cfg.wrapPoster != nil {
		matchingPoster = cfg.wrapPoster(ledger)
	}

	env := &testEnv{
		store:   store,
		metrics: m,
		ledger:  ledger,
		journal: usecase.NewJournalUseCase(usecase.JournalConfig{
			TxManager:       txManager,
			Ledger:          ledger,
			TransactionRepo: store.Transactions(),
			OutboxRepo:      store.Outbox(),
			AuditRepo:       store.Audit(),
			IDGen:           ids,
			Metrics:         m,
			Logger:          logger,
		}),
		matching: usecase.NewMatchingUseCase(usecase.MatchingConfig{
			TxManager:      txManager,
			Ledger:         matchingPoster,
			OrderRepo:      store.Orders(),
			SettlementRepo: store.Settlements(),
			OutboxRepo:     store.Outbox(),
			AuditRepo:      store.Audit(),
			Oracle:         cfg.oracle,
			IDGen:          ids,
			Metrics:        m,
			Logger:         logger,
			QuoteAsset:     "USD",
			PriceBand:      cfg.priceBand,
		}),
		accounts: usecase.NewAccountUseCase(txManager, store.Accounts(), store.Orders(), store.Outbox(), store.Audit(), ids, logger),
		entries:  usecase.NewEntryUseCase(store.Accounts(), store.Entries()),
		assets:   usecase.NewAssetUseCase(store.Assets(), cfg.oracle),
	}
	env.reconciliation = usecase.NewReconciliationUseCase(store.Accounts(), store.Entries(), ledger)

	for _, a := range []usecase.UpsertAssetInput{
		{Symbol: "BTC", Name: "Bitcoin", Scale: 8, ReferencePrice: dec("5")},
		{Symbol: "ETH", Name: "Ether", Scale: 8},
		{Symbol: "USD", Name: "US Dollar", Scale: 2, ReferencePrice: dec("1")},
	} {
		_, err := env.assets.UpsertAsset(context.Background(), a)
		require.NoError(t, err)
	}

	return env
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (e *testEnv) deposit(t *testing.T, userID, asset, amount string) {
	t.Helper()
	_, err := e.journal.RecordDeposit(context.Background(), usecase.RecordDepositInput{
		UserID: userID,
		Asset:  asset,
		Amount: dec(amount),
	})
	require.NoError(t, err)
}

func (e *testEnv) submit(t *testing.T, userID string, side domain.Side, qty, price string) *usecase.SubmitOrderResult {
	t.Helper()
	res, err := e.matching.SubmitOrder(context.Background(), usecase.SubmitOrderInput{
		UserID:   userID,
		Asset:    "BTC",
		Side:     side,
		Price:    dec(price),
		Quantity: dec(qty),
	})
	require.NoError(t, err)
	return res
}

// requireBalance asserts balance and held of a wallet.
func (e *testEnv) requireBalance(t *testing.T, userID, asset, balance, held string) {
	t.Helper()
	got, err := e.ledger.GetBalance(context.Background(), userID, asset)
	require.NoError(t, err)
	require.True(t, got.Equal(dec(balance)), "%s %s balance = %s, want %s", userID, asset, got, balance)

	account, err := e.ledger.GetAccount(context.Background(), userID, asset)
	if err != nil {
		require.ErrorIs(t, err, domain.ErrAccountNotFound)
		require.True(t, dec(held).IsZero(), "%s %s has no account, want held %s", userID, asset, held)
		return
	}
	require.True(t, account.Held.Equal(dec(held)), "%s %s held = %s, want %s", userID, asset, account.Held, held)
}

// requireReconciled asserts every account's balance equals the sum of its entries.
func (e *testEnv) requireReconciled(t *testing.T) {
	t.Helper()
	report, err := e.reconciliation.GenerateReport(context.Background())
	require.NoError(t, err)
	require.True(t, report.LedgerConsistent)
	require.Empty(t, report.Discrepancies)
}

// failingPoster fails the n-th PostTx call after it is armed. It fails with
// err, or mocks.ErrInjected when err is nil.
type failingPoster struct {
	usecase.Poster

	mu     sync.Mutex
	armed  bool
	failOn int
	calls  int
	err    error
}

func (p *failingPoster) arm(failOn int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armed = true
	p.failOn = failOn
	p.calls = 0
}

func (p *failingPoster) PostTx(ctx context.Context, tx usecase.Transaction, input usecase.PostInput) (*domain.Entry, error) {
	p.mu.Lock()
	if p.armed {
		p.calls++
		if p.calls == p.failOn {
			p.armed = false
			err := p.err
			p.mu.Unlock()
			if err == nil {
				err = mocks.ErrInjected
			}
			return nil, err
		}
	}
	p.mu.Unlock()
	return p.Poster.PostTx(ctx, tx, input)
}
