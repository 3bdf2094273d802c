package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	EntriesPosted         *prometheus.CounterVec
	PostingRejections     *prometheus.CounterVec
	LedgerInconsistencies prometheus.Counter

	// Journal metrics
	TransactionsRecorded *prometheus.CounterVec
	TransactionDuration  *prometheus.HistogramVec

	// Matching metrics
	OrdersSubmitted    *prometheus.CounterVec
	OrdersRejected     *prometheus.CounterVec
	OrdersCancelled    prometheus.Counter
	SettlementsTotal   prometheus.Counter
	SettlementFailures *prometheus.CounterVec
	SettlementDuration prometheus.Histogram
	MatchDuration      prometheus.Histogram
	OracleErrors       prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Redis metrics
	RedisOperations *prometheus.CounterVec
	RedisErrors     *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits prometheus.Counter

	// Outbox metrics
	EventsPublished *prometheus.CounterVec
}

// New creates all metrics and registers them with the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all metrics and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		EntriesPosted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_entries_posted_total",
				Help: "Total ledger entries posted by cause",
			},
			[]string{"cause"},
		),
		PostingRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_posting_rejections_total",
				Help: "Total rejected postings by reason",
			},
			[]string{"reason"},
		),
		LedgerInconsistencies: factory.NewCounter(prometheus.CounterOpts{
			Name: "goexchange_ledger_inconsistencies_total",
			Help: "Total ledger inconsistencies detected",
		}),

		// Journal metrics
		TransactionsRecorded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_transactions_total",
				Help: "Total journal transactions by type and final status",
			},
			[]string{"type", "status"},
		),
		TransactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goexchange_transaction_duration_seconds",
				Help:    "Duration of journal postings",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"type"},
		),

		// Matching metrics
		OrdersSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_orders_submitted_total",
				Help: "Total orders accepted by side",
			},
			[]string{"side"},
		),
		OrdersRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_orders_rejected_total",
				Help: "Total orders rejected by reason",
			},
			[]string{"reason"},
		),
		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "goexchange_orders_cancelled_total",
			Help: "Total orders cancelled",
		}),
		SettlementsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "goexchange_settlements_total",
			Help: "Total settled fills",
		}),
		SettlementFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_settlement_failures_total",
				Help: "Total rolled back settlements by reason",
			},
			[]string{"reason"},
		),
		SettlementDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "goexchange_settlement_duration_seconds",
			Help:    "Duration of settlement transactions",
			Buckets: prometheus.DefBuckets,
		}),
		MatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "goexchange_match_duration_seconds",
			Help:    "Duration of matching passes",
			Buckets: prometheus.DefBuckets,
		}),
		OracleErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "goexchange_oracle_errors_total",
			Help: "Total failed reference price lookups",
		}),

		// API metrics
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "goexchange_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Redis metrics
		RedisOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_redis_operations_total",
				Help: "Total Redis operations",
			},
			[]string{"operation"},
		),
		RedisErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_redis_errors_total",
				Help: "Total Redis errors",
			},
			[]string{"operation"},
		),

		// Rate limiting metrics
		RateLimitHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "goexchange_rate_limit_hits_total",
				Help: "Total requests rejected by the rate limiter",
			},
		),

		// Outbox metrics
		EventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "goexchange_events_published_total",
				Help: "Total outbox events delivered by type and result",
			},
			[]string{"event_type", "result"},
		),
	}
}
