package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/iho/goexchange/internal/adapter/http/handler"
	"github.com/iho/goexchange/internal/adapter/http/middleware"
	"github.com/iho/goexchange/internal/infrastructure/metrics"
	"github.com/iho/goexchange/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	WalletHandler  *handler.WalletHandler
	JournalHandler *handler.JournalHandler
	OrderHandler   *handler.OrderHandler
	AssetHandler   *handler.AssetHandler
	LedgerHandler  *handler.LedgerHandler
	HealthHandler  *handler.HealthHandler

	// Optional.
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
	RateLimiter      *middleware.RateLimiter
	AuthVerifier     middleware.TokenVerifier
	Operators        []string
	Metrics          *metrics.Metrics
	MetricsHandler   http.Handler
	Logger           zerolog.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	r.Use(middleware.Recovery)
	if cfg.Metrics != nil {
		r.Use(middleware.NewMetricsMiddleware(cfg.Metrics).Wrap)
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public market data
		r.Get("/assets", cfg.AssetHandler.List)
		r.Get("/assets/{symbol}/price", cfg.AssetHandler.GetPrice)
		r.Get("/books/{asset}", cfg.OrderHandler.Book)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(cfg.AuthVerifier))

			// Idempotency runs after auth so keys are scoped to the caller.
			if cfg.IdempotencyStore != nil {
				idem := middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore).WithTTL(cfg.IdempotencyTTL)
				r.Use(idem.Wrap)
			}

			// Wallets
			r.Get("/balances/{asset}", cfg.WalletHandler.GetBalance)
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", cfg.WalletHandler.ListAccounts)
				r.Post("/archive", cfg.WalletHandler.Archive)
				r.Get("/{asset}/entries", cfg.WalletHandler.ListEntries)
			})

			// Journal
			r.Post("/deposits", cfg.JournalHandler.Deposit)
			r.Post("/withdrawals", cfg.JournalHandler.Withdraw)
			r.Post("/transfers", cfg.JournalHandler.Transfer)
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", cfg.JournalHandler.List)
				r.Get("/{id}", cfg.JournalHandler.Get)
			})

			// Orders
			r.Route("/orders", func(r chi.Router) {
				r.Post("/", cfg.OrderHandler.Submit)
				r.Get("/", cfg.OrderHandler.List)
				r.Get("/{id}", cfg.OrderHandler.Get)
				r.Delete("/{id}", cfg.OrderHandler.Cancel)
				r.Get("/{id}/settlements", cfg.OrderHandler.Settlements)
			})

			// Ledger-wide checks expose every account and are operator-only.
			r.Route("/ledger", func(r chi.Router) {
				r.Use(middleware.RequireOperator(cfg.Operators))
				r.Get("/consistency", cfg.LedgerHandler.CheckConsistency)
				r.Get("/reconciliation", cfg.LedgerHandler.Reconcile)
			})
		})
	})

	return r
}
