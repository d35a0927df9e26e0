package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/infrastructure/metrics"
)

// checkpointLookback bounds how many checkpoints are tried before falling back to genesis.
const checkpointLookback = 5

// AuditUseCase appends to and verifies the per-company audit chain.
type AuditUseCase struct {
	txManager          TransactionManager
	auditRepo          AuditRepository
	idGen              IDGenerator
	clock              Clock
	checkpointInterval int64
	metrics            *metrics.Metrics
}

// NewAuditUseCase creates a new AuditUseCase.
func NewAuditUseCase(
	txManager TransactionManager,
	auditRepo AuditRepository,
	idGen IDGenerator,
	clock Clock,
	checkpointInterval int,
	metrics *metrics.Metrics,
) *AuditUseCase {
	if checkpointInterval <= 0 {
		checkpointInterval = DefaultCheckpointInterval
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &AuditUseCase{
		txManager:          txManager,
		auditRepo:          auditRepo,
		idGen:              idGen,
		clock:              clock,
		checkpointInterval: int64(checkpointInterval),
		metrics:            metrics,
	}
}

// AuditRecord is the input for one chain append.
type AuditRecord struct {
	CompanyID      string
	Auditable      domain.EntityRef
	Event          domain.AuditEvent
	OldValues      domain.JSON
	NewValues      domain.JSON
	ActorID        string
	TransactionID  *string
	JournalEntryID *string
	BatchID        string
}

// AppendTx seals and appends rec inside tx. The company head row stays locked
// until tx ends, which serializes appends per company.
func (uc *AuditUseCase) AppendTx(ctx context.Context, tx Transaction, rec AuditRecord) (*domain.AuditLog, error) {
	if rec.CompanyID == "" {
		return nil, domain.ErrCompanyRequired
	}
	if err := rec.Auditable.Validate(); err != nil {
		return nil, err
	}
	if rec.ActorID == "" {
		rec.ActorID = SystemActor
	}
	if rec.BatchID == "" {
		rec.BatchID = uuid.NewString()
	}

	head, err := uc.auditRepo.LockHead(ctx, tx, rec.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("lock audit head: %w", err)
	}

	log := &domain.AuditLog{
		ID:             uc.idGen.Generate(),
		CompanyID:      rec.CompanyID,
		Sequence:       head.LastSequence + 1,
		Auditable:      rec.Auditable,
		Event:          rec.Event,
		OldValues:      rec.OldValues,
		NewValues:      rec.NewValues,
		ChangedFields:  domain.ChangedFields(rec.OldValues, rec.NewValues),
		ActorID:        rec.ActorID,
		TransactionID:  rec.TransactionID,
		JournalEntryID: rec.JournalEntryID,
		BatchID:        rec.BatchID,
		CreatedAt:      uc.clock.Now(),
	}
	if err := log.Seal(head.NextPrevious()); err != nil {
		return nil, err
	}
	if err := uc.auditRepo.Append(ctx, tx, log); err != nil {
		return nil, fmt.Errorf("append audit log: %w", err)
	}

	if log.Sequence%uc.checkpointInterval == 0 {
		cp := &domain.AuditCheckpoint{
			ID:             uc.idGen.Generate(),
			CompanyID:      log.CompanyID,
			LastLogID:      log.ID,
			LastSequence:   log.Sequence,
			CheckpointHash: log.Hash,
			LogCount:       log.Sequence,
			CreatedAt:      log.CreatedAt,
		}
		if err := uc.auditRepo.CreateCheckpoint(ctx, tx, cp); err != nil {
			return nil, fmt.Errorf("create audit checkpoint: %w", err)
		}
		if uc.metrics != nil {
			uc.metrics.AuditCheckpoints.Inc()
		}
	}

	if uc.metrics != nil {
		uc.metrics.AuditAppends.Inc()
	}
	return log, nil
}

// Append appends a single record in its own transaction.
func (uc *AuditUseCase) Append(ctx context.Context, rec AuditRecord) (*domain.AuditLog, error) {
	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	log, err := uc.AppendTx(txCtx, tx, rec)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	return log, nil
}

// VerifyIntegrity recomputes the record digest against its stored previous hash.
func (uc *AuditUseCase) VerifyIntegrity(log *domain.AuditLog) bool {
	return log.VerifyIntegrity()
}

// VerifyRange walks sequences from..to (to=0 means head) recomputing every hash.
// Each record is checked against the recomputed hash of its predecessor, so a
// modified record fails together with every record after it.
func (uc *AuditUseCase) VerifyRange(ctx context.Context, companyID string, from, to int64) (*domain.VerificationReport, error) {
	if companyID == "" {
		return nil, domain.ErrCompanyRequired
	}
	if from < 1 {
		from = 1
	}

	head, err := uc.auditRepo.Head(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if to == 0 || to > head.LastSequence {
		to = head.LastSequence
	}

	report := &domain.VerificationReport{
		CompanyID:  companyID,
		From:       from,
		To:         to,
		Valid:      true,
		VerifiedAt: uc.clock.Now(),
	}
	if to < from {
		if head.LastSequence == 0 {
			uc.observeVerification(report)
			return report, nil
		}
		return nil, fmt.Errorf("%w: from %d after to %d", domain.ErrInvalidRange, from, to)
	}

	start, expectedPrev, err := uc.startingPoint(ctx, companyID, from)
	if err != nil {
		return nil, err
	}
	report.StartedFrom = start

	logs, err := uc.auditRepo.ListRange(ctx, companyID, start+1, to)
	if err != nil {
		return nil, err
	}

	next := start + 1
	for _, log := range logs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if log.Sequence != next {
			uc.markBroken(report, next, "", fmt.Sprintf("missing sequence %d", next))
			next = log.Sequence
		}
		next++

		recomputed, err := log.DigestWith(expectedPrev)
		if err != nil {
			return nil, err
		}
		if log.Sequence >= from {
			report.RecordsChecked++
			switch {
			case log.PreviousHash != expectedPrev:
				uc.markBroken(report, log.Sequence, log.ID, "previous hash does not match predecessor")
			case recomputed != log.Hash:
				uc.markBroken(report, log.Sequence, log.ID, "hash does not match record contents")
			}
		}
		expectedPrev = recomputed
	}
	if next <= to {
		uc.markBroken(report, next, "", fmt.Sprintf("missing sequence %d", next))
	}

	uc.observeVerification(report)
	return report, nil
}

// startingPoint returns the sequence to resume after and the hash expected as
// its successor's previous hash. Checkpoints whose record no longer matches are skipped.
func (uc *AuditUseCase) startingPoint(ctx context.Context, companyID string, from int64) (int64, string, error) {
	checkpoints, err := uc.auditRepo.ListCheckpoints(ctx, companyID, from-1, checkpointLookback)
	if err != nil {
		return 0, "", err
	}
	for _, cp := range checkpoints {
		log, err := uc.auditRepo.GetBySequence(ctx, companyID, cp.LastSequence)
		if err != nil {
			continue
		}
		if log.ID == cp.LastLogID && log.Hash == cp.CheckpointHash && log.VerifyIntegrity() {
			return cp.LastSequence, cp.CheckpointHash, nil
		}
	}
	return 0, domain.GenesisHash, nil
}

func (uc *AuditUseCase) markBroken(r *domain.VerificationReport, seq int64, logID, reason string) {
	r.Valid = false
	r.BrokenSequences = append(r.BrokenSequences, seq)
	if r.FirstBreak == nil {
		r.FirstBreak = &domain.ChainBreak{Sequence: seq, LogID: logID, Reason: reason}
	}
}

func (uc *AuditUseCase) observeVerification(r *domain.VerificationReport) {
	if uc.metrics == nil {
		return
	}
	result := "valid"
	if !r.Valid {
		result = "broken"
	}
	uc.metrics.AuditVerifications.WithLabelValues(result).Inc()
}

// CreateCheckpoint writes a checkpoint at the current head after verifying the chain up to it.
func (uc *AuditUseCase) CreateCheckpoint(ctx context.Context, companyID string) (*domain.AuditCheckpoint, error) {
	report, err := uc.VerifyRange(ctx, companyID, 1, 0)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, fmt.Errorf("%w: first break at sequence %d", domain.ErrChainBroken, report.FirstBreak.Sequence)
	}
	if report.To == 0 {
		return nil, fmt.Errorf("%w: chain is empty", domain.ErrInvalidRange)
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	head, err := uc.auditRepo.LockHead(txCtx, tx, companyID)
	if err != nil {
		return nil, err
	}
	cp := &domain.AuditCheckpoint{
		ID:             uc.idGen.Generate(),
		CompanyID:      companyID,
		LastLogID:      head.LastLogID,
		LastSequence:   head.LastSequence,
		CheckpointHash: head.LastHash,
		LogCount:       head.LastSequence,
		CreatedAt:      domain.AuditTimestamp(uc.clock.Now()),
	}
	if err := uc.auditRepo.CreateCheckpoint(txCtx, tx, cp); err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	if uc.metrics != nil {
		uc.metrics.AuditCheckpoints.Inc()
	}
	return cp, nil
}

// History lists audit records for one entity.
func (uc *AuditUseCase) History(ctx context.Context, companyID string, ref domain.EntityRef, limit, offset int) ([]*domain.AuditLog, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	limit, offset = domain.ValidatePagination(limit, offset)
	return uc.auditRepo.ListByEntity(ctx, companyID, ref, limit, offset)
}

// auditBatch records every row mutated by one operation under a shared batch id.
type auditBatch struct {
	uc             *AuditUseCase
	tx             Transaction
	companyID      string
	actorID        string
	batchID        string
	transactionID  *string
	journalEntryID *string
}

func (uc *AuditUseCase) batch(tx Transaction, companyID, actorID string) *auditBatch {
	return &auditBatch{uc: uc, tx: tx, companyID: companyID, actorID: actorID, batchID: uuid.NewString()}
}

func (b *auditBatch) forTransaction(id string) *auditBatch {
	b.transactionID = &id
	return b
}

func (b *auditBatch) forEntry(id string) *auditBatch {
	b.journalEntryID = &id
	return b
}

func (b *auditBatch) record(ctx context.Context, ref domain.EntityRef, event domain.AuditEvent, old, new any) error {
	_, err := b.uc.AppendTx(ctx, b.tx, AuditRecord{
		CompanyID:      b.companyID,
		Auditable:      ref,
		Event:          event,
		OldValues:      domain.MarshalState(old),
		NewValues:      domain.MarshalState(new),
		ActorID:        b.actorID,
		TransactionID:  b.transactionID,
		JournalEntryID: b.journalEntryID,
		BatchID:        b.batchID,
	})
	return err
}
