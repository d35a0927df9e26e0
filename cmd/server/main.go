package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	httpAdapter "github.com/iho/tripleledger/internal/adapter/http"
	"github.com/iho/tripleledger/internal/adapter/http/handler"
	"github.com/iho/tripleledger/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/tripleledger/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/tripleledger/internal/adapter/repository/redis"
	"github.com/iho/tripleledger/internal/anomaly"
	"github.com/iho/tripleledger/internal/infrastructure/config"
	"github.com/iho/tripleledger/internal/infrastructure/eventpublisher"
	"github.com/iho/tripleledger/internal/infrastructure/logger"
	"github.com/iho/tripleledger/internal/infrastructure/metrics"
	"github.com/iho/tripleledger/internal/infrastructure/postgres"
	"github.com/iho/tripleledger/internal/infrastructure/redis"
	"github.com/iho/tripleledger/internal/usecase"
)

// streamMaxLen caps the event stream when publishing to Redis.
const streamMaxLen = 100_000

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	policy, err := cfg.Anomaly.Policy()
	if err != nil {
		return fmt.Errorf("invalid anomaly policy: %w", err)
	}

	if cfg.AutoMigrate {
		if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	// Connect to PostgreSQL
	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	// Connect to Redis
	var redisClient *goredis.Client
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer redisClient.Close()
		log.Info().Msg("connected to redis")
	} else {
		log.Warn().Msg("redis disabled: no idempotency keys or books close locks")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	transactionRepo := postgresRepo.NewTransactionRepository(pool)
	journalRepo := postgresRepo.NewJournalRepository(pool)
	periodRepo := postgresRepo.NewPeriodRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)
	anomalyRepo := postgresRepo.NewAnomalyRepository(pool)
	runRepo := postgresRepo.NewRunRepository(pool)
	ruleRepo := postgresRepo.NewRuleRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()
	clock := usecase.SystemClock{}

	// Initialize use cases
	audit := usecase.NewAuditUseCase(txManager, auditRepo, idGen, clock, cfg.AuditCheckpointInterval, m)
	balance := usecase.NewBalanceUseCase(txManager, accountRepo, journalRepo, audit, clock, m)
	posting := usecase.NewPostingUseCase(txManager, accountRepo, transactionRepo, journalRepo, periodRepo, outboxRepo, balance, audit, idGen, clock, m).
		WithRetrier(postgresRepo.NewRetrier(log))
	documents := usecase.NewDocumentUseCase(posting)
	chart := usecase.NewChartUseCase(txManager, accountRepo, periodRepo, audit, idGen, clock)
	booksClose := usecase.NewBooksCloseUseCase(txManager, periodRepo, transactionRepo, journalRepo, ruleRepo, anomalyRepo, runRepo, outboxRepo, audit,
		anomaly.NewEngine(policy), idGen, clock, m).
		WithLogger(log)
	anomalies := usecase.NewAnomalyUseCase(txManager, anomalyRepo, ruleRepo, outboxRepo, audit, idGen, clock, m)
	recon := usecase.NewReconciliationUseCase(accountRepo, journalRepo, clock)
	queries := usecase.NewLedgerQueryUseCase(transactionRepo, journalRepo, balance)

	var (
		idempotencyStore usecase.IdempotencyStore
		redisPing        handler.Pinger
	)
	if redisClient != nil {
		booksClose.WithRunLock(redisRepo.NewRunLock(redisClient), cfg.BooksCloseLockTTL)
		idempotencyStore = redisRepo.NewIdempotencyStore(redisClient)
		redisPing = handler.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).WithMetrics(m)

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		DocumentHandler:  handler.NewDocumentHandler(documents, queries),
		EntryHandler:     handler.NewEntryHandler(posting, queries),
		AccountHandler:   handler.NewAccountHandler(chart, balance, queries),
		PeriodHandler:    handler.NewPeriodHandler(chart, booksClose),
		AnomalyHandler:   handler.NewAnomalyHandler(anomalies),
		LedgerHandler:    handler.NewLedgerHandler(recon, audit),
		HealthHandler:    handler.NewHealthHandler(pool, redisPing),
		Logger:           log,
		Metrics:          m,
		Gatherer:         reg,
		RateLimiter:      rateLimiter,
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
	})

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	publisherLog := log
	worker := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: outboxRepo,
		Publisher:  newPublisher(cfg, redisClient, log),
		Logger:     &publisherLog,
		Metrics:    m,
		Clock:      clock,
		BatchSize:  cfg.OutboxBatchSize,
		Interval:   cfg.OutboxPollInterval,
		Retention:  cfg.OutboxRetention,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cfg.HTTPPort).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		if err := worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				rateLimiter.CleanupLimiters(10 * time.Minute)
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down server...")

		// Graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newPublisher sends outbox events to the configured Redis stream, or to
// the log when no stream is configured.
func newPublisher(cfg *config.Config, client *goredis.Client, log zerolog.Logger) eventpublisher.Publisher {
	if cfg.EventStream != "" && client != nil {
		return redisRepo.NewStreamPublisher(client, cfg.EventStream, streamMaxLen)
	}
	return eventpublisher.NewLogPublisher(log)
}
