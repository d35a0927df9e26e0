package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/tripleledger/internal/adapter/http/handler"
	"github.com/iho/tripleledger/internal/adapter/http/middleware"
	"github.com/iho/tripleledger/internal/infrastructure/metrics"
	"github.com/iho/tripleledger/internal/usecase"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	DocumentHandler *handler.DocumentHandler
	EntryHandler    *handler.EntryHandler
	AccountHandler  *handler.AccountHandler
	PeriodHandler   *handler.PeriodHandler
	AnomalyHandler  *handler.AnomalyHandler
	LedgerHandler   *handler.LedgerHandler
	HealthHandler   *handler.HealthHandler

	Logger           zerolog.Logger
	Metrics          *metrics.Metrics
	Gatherer         prometheus.Gatherer
	RateLimiter      *middleware.RateLimiter
	IdempotencyStore usecase.IdempotencyStore
	IdempotencyTTL   time.Duration
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// API v1
	r.Route("/api/v1/companies/{companyID}", func(r chi.Router) {
		r.Use(middleware.Actor)
		if cfg.IdempotencyStore != nil {
			r.Use(middleware.NewIdempotencyMiddleware(cfg.IdempotencyStore, cfg.IdempotencyTTL).Wrap)
		}

		// Documents
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", cfg.DocumentHandler.Post)
			r.Post("/{transactionID}/void", cfg.DocumentHandler.Void)
			r.Post("/{transactionID}/reverse", cfg.DocumentHandler.Reverse)
		})

		// Transactions
		r.Route("/transactions/{transactionID}", func(r chi.Router) {
			r.Get("/", cfg.EntryHandler.GetTransaction)
			r.Get("/entries", cfg.EntryHandler.ListByTransaction)
			r.Post("/entries", cfg.EntryHandler.Create)
		})

		// Entries
		r.Route("/entries/{entryID}", func(r chi.Router) {
			r.Get("/", cfg.EntryHandler.Get)
			r.Post("/post", cfg.EntryHandler.Post)
			r.Post("/void", cfg.EntryHandler.Void)
			r.Post("/reverse", cfg.EntryHandler.Reverse)
		})

		// Accounts
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", cfg.AccountHandler.Create)
			r.Get("/", cfg.AccountHandler.List)
			r.Get("/{accountID}", cfg.AccountHandler.Get)
			r.Delete("/{accountID}", cfg.AccountHandler.Delete)
			r.Post("/{accountID}/recompute", cfg.AccountHandler.Recompute)
			r.Get("/{accountID}/balance", cfg.AccountHandler.Balance)
			r.Get("/{accountID}/lines", cfg.AccountHandler.Lines)
			r.Get("/{accountID}/reconcile", cfg.LedgerHandler.ReconcileAccount)
		})

		// Periods and books close
		r.Route("/periods", func(r chi.Router) {
			r.Post("/", cfg.PeriodHandler.Create)
			r.Get("/", cfg.PeriodHandler.List)
			r.Get("/{periodID}", cfg.PeriodHandler.Get)
			r.Post("/{periodID}/books-close", cfg.PeriodHandler.RunBooksClose)
			r.Post("/{periodID}/close", cfg.PeriodHandler.Close)
		})
		r.Get("/books-close-runs/{runID}", cfg.PeriodHandler.GetRun)
		r.Get("/books-close-runs/{runID}/findings", cfg.PeriodHandler.ListRunFindings)

		// Anomalies
		r.Get("/anomalies", cfg.AnomalyHandler.ListOpen)
		r.Post("/anomalies/{anomalyID}/resolve", cfg.AnomalyHandler.Resolve)
		r.Post("/anomaly-rules", cfg.AnomalyHandler.CreateRule)

		// Audit and ledger checks
		r.Get("/audit/verify", cfg.LedgerHandler.VerifyAuditChain)
		r.Get("/audit/history", cfg.LedgerHandler.AuditHistory)
		r.Get("/ledger/consistency", cfg.LedgerHandler.CheckConsistency)
	})

	return r
}
