package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	httpAdapter "github.com/iho/goexchange/internal/adapter/http"
	"github.com/iho/goexchange/internal/adapter/http/handler"
	"github.com/iho/goexchange/internal/adapter/http/middleware"
	"github.com/iho/goexchange/internal/adapter/repository/memory"
	postgresRepo "github.com/iho/goexchange/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/goexchange/internal/adapter/repository/redis"
	"github.com/iho/goexchange/internal/infrastructure/auth"
	"github.com/iho/goexchange/internal/infrastructure/config"
	"github.com/iho/goexchange/internal/infrastructure/eventpublisher"
	"github.com/iho/goexchange/internal/infrastructure/idgen"
	"github.com/iho/goexchange/internal/infrastructure/metrics"
	"github.com/iho/goexchange/internal/infrastructure/postgres"
	"github.com/iho/goexchange/internal/infrastructure/redis"
	"github.com/iho/goexchange/internal/usecase"
)

// repositories is the storage backend selected by configuration.
type repositories struct {
	txManager    usecase.TransactionManager
	accounts     usecase.AccountRepository
	entries      usecase.EntryRepository
	ledger       usecase.LedgerRepository
	assets       usecase.AssetRepository
	transactions usecase.TransactionRepository
	orders       usecase.OrderRepository
	settlements  usecase.SettlementRepository
	outbox       usecase.OutboxRepository
	audit        usecase.AuditRepository
	retrier      usecase.Retrier
}

func memoryRepositories() repositories {
	store := memory.NewStore()
	return repositories{
		txManager:    store.TxManager(),
		accounts:     store.Accounts(),
		entries:      store.Entries(),
		ledger:       store.Entries(),
		assets:       store.Assets(),
		transactions: store.Transactions(),
		orders:       store.Orders(),
		settlements:  store.Settlements(),
		outbox:       store.Outbox(),
		audit:        store.Audit(),
	}
}

func postgresRepositories(pool *pgxpool.Pool, lockTimeout time.Duration, logger zerolog.Logger) repositories {
	entries := postgresRepo.NewEntryRepository(pool)
	return repositories{
		txManager:    postgresRepo.NewTxManager(pool, postgresRepo.WithLockTimeout(lockTimeout)),
		accounts:     postgresRepo.NewAccountRepository(pool),
		entries:      entries,
		ledger:       entries,
		assets:       postgresRepo.NewAssetRepository(pool),
		transactions: postgresRepo.NewTransactionRepository(pool),
		orders:       postgresRepo.NewOrderRepository(pool),
		settlements:  postgresRepo.NewSettlementRepository(pool),
		outbox:       postgresRepo.NewOutboxRepository(pool),
		audit:        postgresRepo.NewAuditRepository(pool),
		retrier:      postgresRepo.NewRetrier(logger),
	}
}

// app holds every long-lived component of the server.
type app struct {
	router     http.Handler
	publisher  *eventpublisher.EventPublisher
	limiter    *middleware.RateLimiter
	healthDeps map[string]handler.Pinger
	closers    []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects storage, seeds assets and wires use cases into the router.
func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{healthDeps: map[string]handler.Pinger{}}
	m := metrics.NewWithRegisterer(reg)

	var repos repositories
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn().Msg("using in-memory storage; state is lost on restart")
		repos = memoryRepositories()
	default:
		if err := postgres.RunMigrations(cfg.DatabaseURL, cfg.MigrationsPath, logger); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.healthDeps["database"] = pool
		logger.Info().Msg("connected to postgres")
		repos = postgresRepositories(pool, cfg.DatabaseLockTimeout, logger)
	}

	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		client, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		redis.Instrument(client, m)
		redisClient = client
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.healthDeps["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		logger.Info().Msg("connected to redis")
	}

	priceBand, err := cfg.PriceBandDecimal()
	if err != nil {
		a.Close()
		return nil, err
	}

	ids := idgen.NewULIDGenerator()

	ledgerUC := usecase.NewLedgerUseCase(repos.txManager, repos.accounts, repos.entries, repos.ledger, repos.assets, ids, m, logger)
	if repos.retrier != nil {
		ledgerUC.WithRetrier(repos.retrier)
	}

	var oracle usecase.PriceOracle = usecase.NewAssetOracle(repos.assets)
	var locker usecase.BookLocker
	var idempotency usecase.IdempotencyStore
	if redisClient != nil {
		oracle = redisRepo.NewCachedPriceOracle(redisClient, oracle, cfg.PriceCacheTTL, logger)
		locker = redisRepo.NewBookLocker(redisClient, cfg.BookLockLease, cfg.BookLockPoll, logger)
		idempotency = redisRepo.NewIdempotencyStore(redisClient)
	}

	assetUC := usecase.NewAssetUseCase(repos.assets, oracle)
	if err := seedAssets(ctx, cfg, assetUC, logger); err != nil {
		a.Close()
		return nil, err
	}

	journalUC := usecase.NewJournalUseCase(usecase.JournalConfig{
		TxManager:       repos.txManager,
		Ledger:          ledgerUC,
		TransactionRepo: repos.transactions,
		OutboxRepo:      repos.outbox,
		AuditRepo:       repos.audit,
		IDGen:           ids,
		Retrier:         repos.retrier,
		Metrics:         m,
		Logger:          logger,
	})
	matchingUC := usecase.NewMatchingUseCase(usecase.MatchingConfig{
		TxManager:      repos.txManager,
		Ledger:         ledgerUC,
		OrderRepo:      repos.orders,
		SettlementRepo: repos.settlements,
		OutboxRepo:     repos.outbox,
		AuditRepo:      repos.audit,
		Oracle:         oracle,
		Locker:         locker,
		IDGen:          ids,
		Retrier:        repos.retrier,
		Metrics:        m,
		Logger:         logger,
		QuoteAsset:     cfg.QuoteAsset,
		PriceBand:      priceBand,
	})
	accountUC := usecase.NewAccountUseCase(repos.txManager, repos.accounts, repos.orders, repos.outbox, repos.audit, ids, logger)
	entryUC := usecase.NewEntryUseCase(repos.accounts, repos.entries)
	reconcileUC := usecase.NewReconciliationUseCase(repos.accounts, repos.entries, ledgerUC)

	var publisher eventpublisher.Publisher = eventpublisher.NewLogPublisher(logger)
	if len(cfg.KafkaBrokers) > 0 {
		kafka := eventpublisher.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		a.closers = append(a.closers, func() { _ = kafka.Close() })
		publisher = kafka
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	}
	a.publisher = eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: repos.outbox,
		Publisher:  publisher,
		Logger:     logger,
		Metrics:    m,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})

	var verifier middleware.TokenVerifier
	if cfg.AuthEnabled {
		verifier = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration)
	} else {
		logger.Warn().Msg("token auth disabled; trusting " + middleware.UserIDHeader + " header")
	}

	if cfg.RateLimitRPS > 0 {
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).WithMetrics(m)
	}

	routerCfg := httpAdapter.RouterConfig{
		WalletHandler:    handler.NewWalletHandler(ledgerUC, accountUC, entryUC),
		JournalHandler:   handler.NewJournalHandler(journalUC),
		OrderHandler:     handler.NewOrderHandler(matchingUC),
		AssetHandler:     handler.NewAssetHandler(assetUC, matchingUC.QuoteAsset()),
		LedgerHandler:    handler.NewLedgerHandler(ledgerUC, reconcileUC),
		HealthHandler:    handler.NewHealthHandler(a.healthDeps),
		IdempotencyStore: idempotency,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      a.limiter,
		AuthVerifier:     verifier,
		Operators:        cfg.OperatorIDs,
		Metrics:          m,
		MetricsHandler:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:           logger,
	}
	a.router = httpAdapter.NewRouter(routerCfg)

	return a, nil
}

// seedAssets registers the configured assets. The quote asset is always present.
func seedAssets(ctx context.Context, cfg *config.Config, assetUC *usecase.AssetUseCase, logger zerolog.Logger) error {
	seeds := config.DefaultAssets(cfg.QuoteAsset)
	if cfg.AssetsFile != "" {
		loaded, err := config.LoadAssets(cfg.AssetsFile)
		if err != nil {
			return err
		}
		if hasAsset(loaded, cfg.QuoteAsset) {
			seeds = loaded
		} else {
			seeds = append(seeds, loaded...)
		}
	}

	for _, s := range seeds {
		price, err := s.Price()
		if err != nil {
			return err
		}
		if _, err := assetUC.UpsertAsset(ctx, usecase.UpsertAssetInput{
			Symbol:         s.Symbol,
			Name:           s.Name,
			Scale:          s.Scale,
			ReferencePrice: price,
		}); err != nil {
			return fmt.Errorf("seed asset %s: %w", s.Symbol, err)
		}
	}

	logger.Info().Int("assets", len(seeds)).Msg("asset registry seeded")
	return nil
}

func hasAsset(seeds []config.AssetSeed, symbol string) bool {
	for _, s := range seeds {
		if strings.EqualFold(strings.TrimSpace(s.Symbol), symbol) {
			return true
		}
	}
	return false
}
