package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/tripleledger/internal/anomaly"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/infrastructure/metrics"
)

// BooksCloseUseCase runs anomaly detection over a fiscal period and closes it.
type BooksCloseUseCase struct {
	txManager       TransactionManager
	periodRepo      PeriodRepository
	transactionRepo TransactionRepository
	journalRepo     JournalRepository
	ruleRepo        RuleRepository
	anomalyRepo     AnomalyRepository
	runRepo         RunRepository
	outboxRepo      OutboxRepository
	audit           *AuditUseCase
	engine          *anomaly.Engine
	idGen           IDGenerator
	clock           Clock
	metrics         *metrics.Metrics
	logger          zerolog.Logger
	lock            RunLock
	lockTTL         time.Duration
}

// NewBooksCloseUseCase creates a new BooksCloseUseCase.
func NewBooksCloseUseCase(
	txManager TransactionManager,
	periodRepo PeriodRepository,
	transactionRepo TransactionRepository,
	journalRepo JournalRepository,
	ruleRepo RuleRepository,
	anomalyRepo AnomalyRepository,
	runRepo RunRepository,
	outboxRepo OutboxRepository,
	audit *AuditUseCase,
	engine *anomaly.Engine,
	idGen IDGenerator,
	clock Clock,
	metrics *metrics.Metrics,
) *BooksCloseUseCase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &BooksCloseUseCase{
		txManager:       txManager,
		periodRepo:      periodRepo,
		transactionRepo: transactionRepo,
		journalRepo:     journalRepo,
		ruleRepo:        ruleRepo,
		anomalyRepo:     anomalyRepo,
		runRepo:         runRepo,
		outboxRepo:      outboxRepo,
		audit:           audit,
		engine:          engine,
		idGen:           idGen,
		clock:           clock,
		metrics:         metrics,
		logger:          zerolog.Nop(),
		lockTTL:         DefaultRunLockTTL,
	}
}

// WithLogger sets the logger used for run progress.
func (uc *BooksCloseUseCase) WithLogger(logger zerolog.Logger) *BooksCloseUseCase {
	uc.logger = logger
	return uc
}

// WithRunLock guards runs of the same period across processes.
func (uc *BooksCloseUseCase) WithRunLock(lock RunLock, ttl time.Duration) *BooksCloseUseCase {
	uc.lock = lock
	if ttl > 0 {
		uc.lockTTL = ttl
	}
	return uc
}

func runLockKey(companyID, periodID string) string {
	return "books-close:" + companyID + ":" + periodID
}

// RunBooksClose scans the period and persists a run with its ranked findings.
// A failed run is stored with its error and returned together with a
// *domain.RunFailedError; no findings are saved for it.
func (uc *BooksCloseUseCase) RunBooksClose(ctx context.Context, companyID, periodID, initiatorID string) (*domain.BooksCloseRun, error) {
	if companyID == "" {
		return nil, domain.ErrCompanyRequired
	}
	initiatorID = actorOrSystem(initiatorID)

	period, err := uc.periodRepo.GetByID(ctx, companyID, periodID)
	if err != nil {
		return nil, err
	}

	log := uc.logger.With().Str("company_id", companyID).Str("period_id", periodID).Logger()

	if uc.lock != nil {
		key := runLockKey(companyID, periodID)
		token, ok, err := uc.lock.TryLock(ctx, key, uc.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("acquire books close lock: %w", err)
		}
		if !ok {
			return nil, domain.ErrRunInProgress
		}
		defer func() {
			if err := uc.lock.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
				log.Warn().Err(err).Msg("failed to release books close lock")
			}
		}()
	}

	start := time.Now()
	run, err := uc.startRun(ctx, companyID, periodID, initiatorID)
	if err != nil {
		return nil, err
	}
	log = log.With().Str("run_id", run.ID).Logger()
	log.Info().Msg("books close run started")

	snap, err := uc.loadSnapshot(ctx, companyID, period)
	if err != nil {
		return uc.failRun(ctx, log, run, fmt.Errorf("load snapshot: %w", err))
	}

	findings, err := uc.engine.Run(ctx, snap)
	if err != nil {
		return uc.failRun(ctx, log, run, err)
	}

	if err := uc.completeRun(ctx, run, snap, findings, time.Since(start)); err != nil {
		return uc.failRun(ctx, log, run, fmt.Errorf("save findings: %w", err))
	}

	if uc.metrics != nil {
		uc.metrics.BooksCloseRuns.WithLabelValues(string(domain.RunCompleted)).Inc()
		uc.metrics.BooksCloseDuration.Observe(time.Since(start).Seconds())
		for _, f := range findings {
			uc.metrics.AnomaliesDetected.WithLabelValues(string(f.Type), string(f.Severity)).Inc()
		}
	}
	log.Info().
		Int("anomalies", run.AnomaliesFound).
		Int("critical", run.CriticalCount).
		Int("transactions", run.TransactionsProcessed).
		Msg("books close run completed")
	return run, nil
}

func (uc *BooksCloseUseCase) startRun(ctx context.Context, companyID, periodID, initiatorID string) (*domain.BooksCloseRun, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	run := &domain.BooksCloseRun{
		ID:             uc.idGen.Generate(),
		CompanyID:      companyID,
		FiscalPeriodID: periodID,
		InitiatedBy:    initiatorID,
		Status:         domain.RunRunning,
		StartedAt:      uc.clock.Now(),
	}
	if err := uc.runRepo.Create(txCtx, tx, run); err != nil {
		return nil, err
	}
	batch := uc.audit.batch(tx, companyID, initiatorID)
	if err := batch.record(txCtx, domain.Ref(domain.KindBooksCloseRun, run.ID), domain.AuditStarted, nil, runState(run)); err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	return run, nil
}

func (uc *BooksCloseUseCase) loadSnapshot(ctx context.Context, companyID string, period *domain.FiscalPeriod) (*anomaly.Snapshot, error) {
	transactions, err := uc.transactionRepo.ListInRange(ctx, companyID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	historical, err := uc.transactionRepo.ListPostedBefore(ctx, companyID, period.StartDate)
	if err != nil {
		return nil, err
	}
	entries, err := uc.journalRepo.ListPostedInRange(ctx, companyID, period.StartDate, period.EndDate)
	if err != nil {
		return nil, err
	}
	var rules []*domain.AnomalyRule
	if uc.ruleRepo != nil {
		if rules, err = uc.ruleRepo.ListActive(ctx, companyID); err != nil {
			return nil, err
		}
	}
	return anomaly.NewSnapshot(companyID, period, transactions, historical, entries, rules, uc.clock.Now()), nil
}

func (uc *BooksCloseUseCase) completeRun(
	ctx context.Context,
	run *domain.BooksCloseRun,
	snap *anomaly.Snapshot,
	findings []domain.AnomalyDetection,
	elapsed time.Duration,
) error {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if _, err := uc.periodRepo.GetForShare(txCtx, tx, run.CompanyID, run.FiscalPeriodID); err != nil {
		return err
	}

	now := uc.clock.Now()
	batch := make([]*domain.AnomalyDetection, len(findings))
	for i := range findings {
		f := &findings[i]
		f.ID = uc.idGen.Generate()
		f.CompanyID = run.CompanyID
		f.RunID = run.ID
		f.FiscalPeriodID = run.FiscalPeriodID
		f.Status = domain.AnomalyOpen
		f.CreatedAt = now
		f.UpdatedAt = now
		batch[i] = f
	}
	if len(batch) > 0 {
		if err := uc.anomalyRepo.SaveBatch(txCtx, tx, batch); err != nil {
			return err
		}
	}

	detectors := make([]string, 0)
	for _, d := range uc.engine.Detectors() {
		detectors = append(detectors, string(d))
	}
	summary := domain.JSON{
		"period_start":          day(snap.Period.StartDate),
		"period_end":            day(snap.Period.EndDate),
		"transactions_reviewed": len(snap.Transactions),
		"entries_reviewed":      len(snap.Entries),
		"historical_samples":    len(snap.Historical),
		"detectors_run":         detectors,
		"duration_ms":           elapsed.Milliseconds(),
	}

	old := runState(run)
	completed := *run
	completed.Complete(findings, len(snap.Transactions), summary, now)
	if err := uc.runRepo.Update(txCtx, tx, &completed); err != nil {
		return err
	}
	audit := uc.audit.batch(tx, run.CompanyID, run.InitiatedBy)
	if err := audit.record(txCtx, domain.Ref(domain.KindBooksCloseRun, run.ID), domain.AuditCompleted, old, runState(&completed)); err != nil {
		return err
	}
	err = emit(txCtx, tx, uc.outboxRepo, uc.idGen, run.CompanyID,
		domain.AggregateTypeBooksCloseRun, run.ID, domain.EventTypeBooksCloseCompleted,
		domain.BooksCloseFinishedEvent{
			RunID:          run.ID,
			FiscalPeriodID: run.FiscalPeriodID,
			Status:         string(completed.Status),
			AnomaliesFound: completed.AnomaliesFound,
			CriticalCount:  completed.CriticalCount,
		}, now)
	if err != nil {
		return err
	}
	if err := tx.Commit(txCtx); err != nil {
		return err
	}
	*run = completed
	return nil
}

// failRun stores the failure even when ctx was cancelled.
func (uc *BooksCloseUseCase) failRun(ctx context.Context, log zerolog.Logger, run *domain.BooksCloseRun, cause error) (*domain.BooksCloseRun, error) {
	log.Error().Err(cause).Msg("books close run failed")
	if uc.metrics != nil {
		uc.metrics.BooksCloseRuns.WithLabelValues(string(domain.RunFailed)).Inc()
	}

	ctx = context.WithoutCancel(ctx)
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	runErr := &domain.RunFailedError{RunID: run.ID, Err: cause}

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return run, errors.Join(runErr, err)
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	old := runState(run)
	run.Fail(cause, uc.clock.Now())
	if err := uc.runRepo.Update(txCtx, tx, run); err != nil {
		return run, errors.Join(runErr, err)
	}
	batch := uc.audit.batch(tx, run.CompanyID, run.InitiatedBy)
	if err := batch.record(txCtx, domain.Ref(domain.KindBooksCloseRun, run.ID), domain.AuditFailed, old, runState(run)); err != nil {
		return run, errors.Join(runErr, err)
	}
	err = emit(txCtx, tx, uc.outboxRepo, uc.idGen, run.CompanyID,
		domain.AggregateTypeBooksCloseRun, run.ID, domain.EventTypeBooksCloseFailed,
		domain.BooksCloseFinishedEvent{
			RunID:          run.ID,
			FiscalPeriodID: run.FiscalPeriodID,
			Status:         string(run.Status),
		}, *run.CompletedAt)
	if err != nil {
		return run, errors.Join(runErr, err)
	}
	if err := tx.Commit(txCtx); err != nil {
		return run, errors.Join(runErr, err)
	}
	return run, runErr
}

// GetRun returns a books close run.
func (uc *BooksCloseUseCase) GetRun(ctx context.Context, companyID, runID string) (*domain.BooksCloseRun, error) {
	return uc.runRepo.GetByID(ctx, companyID, runID)
}

// ListRunFindings returns the findings saved by a run in rank order.
func (uc *BooksCloseUseCase) ListRunFindings(ctx context.Context, companyID, runID string) ([]*domain.AnomalyDetection, error) {
	if _, err := uc.runRepo.GetByID(ctx, companyID, runID); err != nil {
		return nil, err
	}
	return uc.anomalyRepo.ListByRun(ctx, companyID, runID)
}

// ClosePeriod closes a period whose latest run completed and left no
// unresolved critical findings.
func (uc *BooksCloseUseCase) ClosePeriod(ctx context.Context, companyID, periodID, actorID string) (*domain.FiscalPeriod, error) {
	if actorID == "" {
		return nil, domain.ErrActorRequired
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	// Checks below run under the period row lock; completeRun share-locks the same row.
	period, err := uc.periodRepo.GetForUpdate(txCtx, tx, companyID, periodID)
	if err != nil {
		return nil, err
	}
	if !period.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrPeriodClosed, period.Name, period.Status)
	}

	run, err := uc.runRepo.LatestForPeriod(txCtx, companyID, periodID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrRunNotCompleted
		}
		return nil, err
	}
	if run.Status != domain.RunCompleted {
		return nil, fmt.Errorf("%w: latest run %s is %s", domain.ErrRunNotCompleted, run.ID, run.Status)
	}

	open, err := uc.anomalyRepo.ListUnresolved(txCtx, companyID, periodID)
	if err != nil {
		return nil, err
	}
	critical := 0
	for _, a := range open {
		if a.Severity == domain.SeverityCritical {
			critical++
		}
	}
	if critical > 0 {
		return nil, fmt.Errorf("%w: %d open", domain.ErrCriticalAnomaliesOpen, critical)
	}

	now := uc.clock.Now()
	old := periodState(period)
	period.Status = domain.PeriodClosed
	period.ClosedAt = &now
	period.ClosedBy = &actorID
	period.UpdatedAt = now
	if err := uc.periodRepo.Update(txCtx, tx, period); err != nil {
		return nil, err
	}

	batch := uc.audit.batch(tx, companyID, actorID)
	if err := batch.record(txCtx, domain.Ref(domain.KindFiscalPeriod, period.ID), domain.AuditClosed, old, periodState(period)); err != nil {
		return nil, err
	}
	err = emit(txCtx, tx, uc.outboxRepo, uc.idGen, companyID,
		domain.AggregateTypeFiscalPeriod, period.ID, domain.EventTypePeriodClosed,
		map[string]any{"fiscal_period_id": period.ID, "run_id": run.ID, "closed_by": actorID}, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	uc.logger.Info().Str("company_id", companyID).Str("period_id", periodID).Msg("fiscal period closed")
	return period, nil
}
