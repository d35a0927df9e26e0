package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/infrastructure/metrics"
)

// PostingUseCase creates, posts, voids and reverses journal entries.
type PostingUseCase struct {
	txManager       TransactionManager
	accountRepo     AccountRepository
	transactionRepo TransactionRepository
	journalRepo     JournalRepository
	periodRepo      PeriodRepository
	outboxRepo      OutboxRepository
	balance         *BalanceUseCase
	audit           *AuditUseCase
	idGen           IDGenerator
	clock           Clock
	retrier         Retrier
	metrics         *metrics.Metrics
}

// NewPostingUseCase creates a new PostingUseCase.
func NewPostingUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	transactionRepo TransactionRepository,
	journalRepo JournalRepository,
	periodRepo PeriodRepository,
	outboxRepo OutboxRepository,
	balance *BalanceUseCase,
	audit *AuditUseCase,
	idGen IDGenerator,
	clock Clock,
	metrics *metrics.Metrics,
) *PostingUseCase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &PostingUseCase{
		txManager:       txManager,
		accountRepo:     accountRepo,
		transactionRepo: transactionRepo,
		journalRepo:     journalRepo,
		periodRepo:      periodRepo,
		outboxRepo:      outboxRepo,
		balance:         balance,
		audit:           audit,
		idGen:           idGen,
		clock:           clock,
		retrier:         noRetry{},
		metrics:         metrics,
	}
}

// WithRetrier retries whole operations on transient storage errors.
func (uc *PostingUseCase) WithRetrier(r Retrier) *PostingUseCase {
	if r != nil {
		uc.retrier = r
	}
	return uc
}

// LineSpec describes one line of a new entry.
type LineSpec struct {
	AccountID string
	Type      domain.LineType
	Amount    decimal.Decimal
	// ExchangeRate defaults to the transaction's rate.
	ExchangeRate *decimal.Decimal
	Description  string
	Dimensions   domain.Dimensions
	TaxRateID    *string
	TaxAmount    decimal.Decimal
}

// CreateEntryInput represents input for creating a draft journal entry.
type CreateEntryInput struct {
	CompanyID     string
	TransactionID string
	// EntryDate defaults to the transaction date.
	EntryDate       *time.Time
	Type            domain.EntryType
	AutoReverseDate *time.Time
	Memo            string
	ActorID         string
	Lines           []LineSpec
}

// ReverseInput represents input for reversing a posted entry.
type ReverseInput struct {
	CompanyID string
	EntryID   string
	// Date overrides the reversal date resolution.
	Date    *time.Time
	ActorID string
}

func (uc *PostingUseCase) run(ctx context.Context, op string, fn func(ctx context.Context, tx Transaction) error) error {
	return uc.retrier.Retry(ctx, func() error {
		txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
		defer cancel()

		tx, err := uc.txManager.Begin(txCtx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(txCtx) }()

		if err := fn(txCtx, tx); err != nil {
			uc.observeError(op, err)
			return err
		}
		return tx.Commit(txCtx)
	})
}

func (uc *PostingUseCase) observeError(op string, err error) {
	if uc.metrics == nil {
		return
	}
	kind := "internal"
	switch {
	case domain.IsPeriodClosed(err):
		kind = "period_closed"
	case errors.Is(err, domain.ErrValidation):
		kind = "validation"
	case errors.Is(err, domain.ErrState):
		kind = "state"
	case errors.Is(err, domain.ErrNotFound):
		kind = "not_found"
	case errors.Is(err, domain.ErrConflict):
		kind = "conflict"
	}
	uc.metrics.PostingErrors.WithLabelValues(op + ":" + kind).Inc()
}

// CreateBalancedEntry validates the lines and stores a draft entry.
func (uc *PostingUseCase) CreateBalancedEntry(ctx context.Context, input CreateEntryInput) (*domain.JournalEntry, error) {
	if input.CompanyID == "" {
		return nil, domain.ErrCompanyRequired
	}
	if err := validateSpecs(input.Lines); err != nil {
		return nil, err
	}

	var entry *domain.JournalEntry
	err := uc.run(ctx, "create", func(ctx context.Context, tx Transaction) error {
		txn, err := uc.transactionRepo.GetForUpdate(ctx, tx, input.CompanyID, input.TransactionID)
		if err != nil {
			return err
		}
		batch := uc.audit.batch(tx, input.CompanyID, actorOrSystem(input.ActorID)).forTransaction(txn.ID)
		entry, err = uc.createEntryTx(ctx, tx, batch, txn, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func validateSpecs(specs []LineSpec) error {
	if len(specs) == 0 {
		return domain.ErrNoLines
	}
	for i, s := range specs {
		if !s.Type.Valid() {
			return fmt.Errorf("line %d: %w: %q", i+1, domain.ErrInvalidLineType, s.Type)
		}
		if err := domain.ValidateAmount(s.Amount); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if s.ExchangeRate != nil {
			if err := domain.ValidateExchangeRate(*s.ExchangeRate); err != nil {
				return fmt.Errorf("line %d: %w", i+1, err)
			}
		}
	}
	return nil
}

// createEntryTx builds and stores a draft entry for txn. txn must be locked.
func (uc *PostingUseCase) createEntryTx(
	ctx context.Context,
	tx Transaction,
	batch *auditBatch,
	txn *domain.Transaction,
	input CreateEntryInput,
) (*domain.JournalEntry, error) {
	if txn.Status == domain.TxStatusVoid {
		return nil, fmt.Errorf("%w: transaction %s is void", domain.ErrTransactionImmutable, txn.Number)
	}

	entryDate := txn.TransactionDate
	if input.EntryDate != nil {
		entryDate = *input.EntryDate
	}
	period, err := uc.resolvePeriod(ctx, tx, txn, entryDate)
	if err != nil {
		return nil, err
	}

	specAccounts := make([]string, len(input.Lines))
	for i, s := range input.Lines {
		specAccounts[i] = s.AccountID
	}
	if _, err := uc.lockAccounts(ctx, tx, input.CompanyID, specAccounts); err != nil {
		return nil, err
	}

	entryType := input.Type
	if entryType == "" {
		entryType = domain.EntryStandard
	}
	if !entryType.Valid() {
		return nil, fmt.Errorf("%w: entry type %q", domain.ErrValidation, entryType)
	}

	number, err := uc.journalRepo.NextEntryNumber(ctx, tx, input.CompanyID)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	entry := &domain.JournalEntry{
		ID:              uc.idGen.Generate(),
		CompanyID:       input.CompanyID,
		TransactionID:   txn.ID,
		EntryNumber:     number,
		EntryDate:       domain.DateOf(entryDate),
		FiscalPeriodID:  period.ID,
		Type:            entryType,
		Status:          domain.EntryDraft,
		Memo:            input.Memo,
		AutoReverseDate: input.AutoReverseDate,
		CreatedBy:       batch.actorID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i, s := range input.Lines {
		rate := txn.ExchangeRate
		if s.ExchangeRate != nil {
			rate = *s.ExchangeRate
		}
		entry.Lines = append(entry.Lines, domain.JournalEntryLine{
			ID:             uc.idGen.Generate(),
			JournalEntryID: entry.ID,
			CompanyID:      input.CompanyID,
			AccountID:      s.AccountID,
			Type:           s.Type,
			Amount:         s.Amount,
			ExchangeRate:   rate,
			BaseAmount:     domain.BaseAmount(s.Amount, rate),
			Description:    s.Description,
			Dimensions:     s.Dimensions,
			TaxRateID:      s.TaxRateID,
			TaxAmount:      s.TaxAmount,
			LineNumber:     i + 1,
			CreatedAt:      now,
		})
	}
	if err := entry.ValidateLines(); err != nil {
		return nil, err
	}
	entry.RecalculateTotals()

	existing, err := uc.journalRepo.ListByTransaction(ctx, tx, input.CompanyID, txn.ID)
	if err != nil {
		return nil, err
	}
	if err := uc.journalRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("create journal entry: %w", err)
	}

	batch = batch.forEntry(entry.ID)
	if err := batch.record(ctx, domain.Ref(domain.KindJournalEntry, entry.ID), domain.AuditCreated, nil, entryState(entry)); err != nil {
		return nil, err
	}
	for i := range entry.Lines {
		l := &entry.Lines[i]
		if err := batch.record(ctx, domain.Ref(domain.KindJournalEntryLine, l.ID), domain.AuditCreated, nil, lineState(l)); err != nil {
			return nil, err
		}
	}

	// The first entry of an unposted transaction sets its totals.
	if len(existing) == 0 && !txn.IsPosted() {
		old := transactionState(txn)
		tax := decimal.Zero
		for _, l := range entry.Lines {
			tax = tax.Add(l.TaxAmount)
		}
		if err := txn.ApplyTotals(entry.TotalDebit, tax); err != nil {
			return nil, err
		}
		if txn.FiscalPeriodID == "" {
			txn.FiscalPeriodID = period.ID
		}
		txn.UpdatedAt = now
		if err := uc.transactionRepo.Update(ctx, tx, txn); err != nil {
			return nil, err
		}
		if err := batch.record(ctx, domain.Ref(domain.KindTransaction, txn.ID), domain.AuditUpdated, old, transactionState(txn)); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

// resolvePeriod returns the open period for a new entry, shared-locked in tx.
func (uc *PostingUseCase) resolvePeriod(ctx context.Context, tx Transaction, txn *domain.Transaction, date time.Time) (*domain.FiscalPeriod, error) {
	periodID := txn.FiscalPeriodID
	if periodID == "" {
		p, err := uc.periodRepo.FindByDate(ctx, txn.CompanyID, date)
		if err != nil {
			return nil, fmt.Errorf("no fiscal period for %s: %w", day(date), err)
		}
		periodID = p.ID
	}
	return uc.openPeriod(ctx, tx, txn.CompanyID, periodID)
}

func (uc *PostingUseCase) openPeriod(ctx context.Context, tx Transaction, companyID, periodID string) (*domain.FiscalPeriod, error) {
	period, err := uc.periodRepo.GetForShare(ctx, tx, companyID, periodID)
	if err != nil {
		return nil, err
	}
	if !period.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrPeriodClosed, period.Name, period.Status)
	}
	return period, nil
}

// lockAccounts locks the distinct accounts in sorted order and rejects missing
// or deleted ones.
func (uc *PostingUseCase) lockAccounts(ctx context.Context, tx Transaction, companyID string, ids []string) ([]*domain.Account, error) {
	ids = sortedUnique(ids)
	accounts, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, companyID, ids)
	if err != nil {
		return nil, err
	}
	found := make(map[string]*domain.Account, len(accounts))
	for _, a := range accounts {
		found[a.ID] = a
	}
	for _, id := range ids {
		a, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountNotFound, id)
		}
		if a.CompanyID != companyID {
			return nil, fmt.Errorf("%w: account %s", domain.ErrCompanyMismatch, id)
		}
		if a.IsDeleted() {
			return nil, fmt.Errorf("%w: %s", domain.ErrAccountDeleted, a.Code)
		}
	}
	return accounts, nil
}

// lockAccountRows locks the distinct accounts in sorted order. Callers take it
// before the first audit record. Deleted accounts are not rejected.
func (uc *PostingUseCase) lockAccountRows(ctx context.Context, tx Transaction, companyID string, ids []string) error {
	ids = sortedUnique(ids)
	if len(ids) == 0 {
		return nil
	}
	_, err := uc.accountRepo.GetByIDsForUpdate(ctx, tx, companyID, ids)
	return err
}

// Post moves a balanced draft entry to posted and updates balances.
func (uc *PostingUseCase) Post(ctx context.Context, companyID, entryID, actorID string) error {
	start := time.Now()
	var entry *domain.JournalEntry
	err := uc.run(ctx, "post", func(ctx context.Context, tx Transaction) error {
		e, err := uc.journalRepo.GetForUpdate(ctx, tx, companyID, entryID)
		if err != nil {
			return err
		}
		txn, err := uc.transactionRepo.GetForUpdate(ctx, tx, companyID, e.TransactionID)
		if err != nil {
			return err
		}
		batch := uc.audit.batch(tx, companyID, actorOrSystem(actorID)).forTransaction(txn.ID).forEntry(e.ID)
		if err := uc.postEntryTx(ctx, tx, batch, txn, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesPosted.Inc()
		uc.metrics.PostedAmount.Observe(entry.TotalDebit.InexactFloat64())
		uc.metrics.PostingDuration.Observe(time.Since(start).Seconds())
	}
	return nil
}

// postEntryTx posts a draft entry, cascades the transaction to posted and
// recomputes the touched balances.
func (uc *PostingUseCase) postEntryTx(ctx context.Context, tx Transaction, batch *auditBatch, txn *domain.Transaction, entry *domain.JournalEntry) error {
	if entry.Status != domain.EntryDraft {
		return fmt.Errorf("%w: %s is %s", domain.ErrEntryNotDraft, entry.EntryNumber, entry.Status)
	}
	if _, err := uc.openPeriod(ctx, tx, entry.CompanyID, entry.FiscalPeriodID); err != nil {
		return err
	}
	if _, err := uc.lockAccounts(ctx, tx, entry.CompanyID, entry.AccountIDs()); err != nil {
		return err
	}

	now := uc.clock.Now()
	old := entryState(entry)
	if err := entry.MarkPosted(batch.actorID, now); err != nil {
		return err
	}
	if err := uc.journalRepo.Update(ctx, tx, entry); err != nil {
		return err
	}
	if err := batch.record(ctx, domain.Ref(domain.KindJournalEntry, entry.ID), domain.AuditPosted, old, entryState(entry)); err != nil {
		return err
	}

	if !txn.IsPosted() {
		oldTxn := transactionState(txn)
		if err := txn.MarkPosted(now); err != nil {
			return err
		}
		if err := uc.transactionRepo.Update(ctx, tx, txn); err != nil {
			return err
		}
		if err := batch.record(ctx, domain.Ref(domain.KindTransaction, txn.ID), domain.AuditPosted, oldTxn, transactionState(txn)); err != nil {
			return err
		}
	}

	if err := uc.balance.recomputeAccounts(ctx, tx, batch, entry.CompanyID, entry.AccountIDs()); err != nil {
		return err
	}

	return emit(ctx, tx, uc.outboxRepo, uc.idGen, entry.CompanyID,
		domain.AggregateTypeJournalEntry, entry.ID, domain.EventTypeEntryPosted,
		domain.EntryPostedEvent{
			EntryID:       entry.ID,
			EntryNumber:   entry.EntryNumber,
			TransactionID: entry.TransactionID,
			TotalDebit:    money(entry.TotalDebit),
			AccountIDs:    entry.AccountIDs(),
			PostedAt:      now.Format(time.RFC3339Nano),
		}, now)
}

// Void marks a posted entry void. Its lines stay stored but stop counting
// toward balances. When every entry of the transaction is void, the
// transaction is voided with the same reason.
func (uc *PostingUseCase) Void(ctx context.Context, companyID, entryID, reason, actorID string) error {
	if err := domain.ValidateVoidReason(reason); err != nil {
		return err
	}
	err := uc.run(ctx, "void", func(ctx context.Context, tx Transaction) error {
		entry, err := uc.journalRepo.GetForUpdate(ctx, tx, companyID, entryID)
		if err != nil {
			return err
		}
		txn, err := uc.transactionRepo.GetForUpdate(ctx, tx, companyID, entry.TransactionID)
		if err != nil {
			return err
		}
		if err := entry.CanVoid(); err != nil {
			return err
		}
		if err := uc.lockAccountRows(ctx, tx, companyID, entry.AccountIDs()); err != nil {
			return err
		}
		batch := uc.audit.batch(tx, companyID, actorOrSystem(actorID)).forTransaction(txn.ID).forEntry(entry.ID)
		if err := uc.voidEntryTx(ctx, tx, batch, entry, reason); err != nil {
			return err
		}
		if err := uc.balance.recomputeAccounts(ctx, tx, batch, companyID, entry.AccountIDs()); err != nil {
			return err
		}

		entries, err := uc.journalRepo.ListByTransaction(ctx, tx, companyID, txn.ID)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Status != domain.EntryVoid {
				return nil
			}
		}
		if !txn.IsPosted() {
			return nil
		}
		return uc.voidTransactionTx(ctx, tx, batch, txn, reason)
	})
	if err != nil {
		return err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesVoided.Inc()
	}
	return nil
}

// voidEntryTx voids a posted entry without touching balances. Callers lock
// the entry's accounts first.
func (uc *PostingUseCase) voidEntryTx(ctx context.Context, tx Transaction, batch *auditBatch, entry *domain.JournalEntry, reason string) error {
	if err := entry.CanVoid(); err != nil {
		return err
	}
	if _, err := uc.openPeriod(ctx, tx, entry.CompanyID, entry.FiscalPeriodID); err != nil {
		return err
	}

	now := uc.clock.Now()
	old := entryState(entry)
	if err := entry.MarkVoid(reason, batch.actorID, now); err != nil {
		return err
	}
	if err := uc.journalRepo.Update(ctx, tx, entry); err != nil {
		return err
	}
	ref := domain.Ref(domain.KindJournalEntry, entry.ID)
	if err := batch.record(ctx, ref, domain.AuditVoided, old, entryState(entry)); err != nil {
		return err
	}
	return emit(ctx, tx, uc.outboxRepo, uc.idGen, entry.CompanyID,
		domain.AggregateTypeJournalEntry, entry.ID, domain.EventTypeEntryVoided,
		domain.EntryVoidedEvent{EntryID: entry.ID, Reason: reason}, now)
}

func (uc *PostingUseCase) voidTransactionTx(ctx context.Context, tx Transaction, batch *auditBatch, txn *domain.Transaction, reason string) error {
	now := uc.clock.Now()
	old := transactionState(txn)
	if err := txn.MarkVoid(reason, batch.actorID, now); err != nil {
		return err
	}
	if err := uc.transactionRepo.Update(ctx, tx, txn); err != nil {
		return err
	}
	ref := domain.Ref(domain.KindTransaction, txn.ID)
	if err := batch.record(ctx, ref, domain.AuditVoided, old, transactionState(txn)); err != nil {
		return err
	}
	return emit(ctx, tx, uc.outboxRepo, uc.idGen, txn.CompanyID,
		domain.AggregateTypeTransaction, txn.ID, domain.EventTypeTransactionVoided,
		domain.TransactionVoidedEvent{TransactionID: txn.ID, Number: txn.Number, Reason: reason}, now)
}

// Reverse posts a reversing entry with every line's side swapped and links it
// to the original in both directions.
func (uc *PostingUseCase) Reverse(ctx context.Context, input ReverseInput) (*domain.JournalEntry, error) {
	var reversal *domain.JournalEntry
	err := uc.run(ctx, "reverse", func(ctx context.Context, tx Transaction) error {
		original, err := uc.journalRepo.GetForUpdate(ctx, tx, input.CompanyID, input.EntryID)
		if err != nil {
			return err
		}
		batch := uc.audit.batch(tx, input.CompanyID, actorOrSystem(input.ActorID)).forTransaction(original.TransactionID)
		reversal, err = uc.reverseEntryTx(ctx, tx, batch, original, original.TransactionID, input.Date)
		if err != nil {
			return err
		}
		return uc.balance.recomputeAccounts(ctx, tx, batch, input.CompanyID, original.AccountIDs())
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesReversed.Inc()
	}
	return reversal, nil
}

// reverseEntryTx stores the posted reversing entry of original under
// transactionID. Balances are left to the caller.
func (uc *PostingUseCase) reverseEntryTx(
	ctx context.Context,
	tx Transaction,
	batch *auditBatch,
	original *domain.JournalEntry,
	transactionID string,
	date *time.Time,
) (*domain.JournalEntry, error) {
	if err := original.CanReverse(); err != nil {
		return nil, err
	}

	entryDate, err := uc.reversalDate(ctx, original, date)
	if err != nil {
		return nil, err
	}
	target, err := uc.periodRepo.FindByDate(ctx, original.CompanyID, entryDate)
	if err != nil {
		return nil, fmt.Errorf("no fiscal period for reversal date %s: %w", day(entryDate), err)
	}
	if _, err := uc.openPeriod(ctx, tx, original.CompanyID, target.ID); err != nil {
		return nil, err
	}
	if _, err := uc.lockAccounts(ctx, tx, original.CompanyID, original.AccountIDs()); err != nil {
		return nil, err
	}

	number, err := uc.journalRepo.NextEntryNumber(ctx, tx, original.CompanyID)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	reversal := &domain.JournalEntry{
		ID:                uc.idGen.Generate(),
		CompanyID:         original.CompanyID,
		TransactionID:     transactionID,
		EntryNumber:       number,
		EntryDate:         entryDate,
		FiscalPeriodID:    target.ID,
		Type:              domain.EntryReversing,
		Status:            domain.EntryDraft,
		Memo:              "Reversal of " + original.EntryNumber,
		ReversalOfEntryID: &original.ID,
		CreatedBy:         batch.actorID,
		CreatedAt:         now,
		UpdatedAt:         now,
		Lines:             original.ReversedLines(),
	}
	for i := range reversal.Lines {
		reversal.Lines[i].ID = uc.idGen.Generate()
		reversal.Lines[i].JournalEntryID = reversal.ID
		reversal.Lines[i].CreatedAt = now
	}
	if err := reversal.MarkPosted(batch.actorID, now); err != nil {
		return nil, err
	}
	if err := uc.journalRepo.Create(ctx, tx, reversal); err != nil {
		return nil, fmt.Errorf("create reversing entry: %w", err)
	}

	old := entryState(original)
	original.ReversedByEntryID = &reversal.ID
	original.UpdatedAt = now
	if err := uc.journalRepo.Update(ctx, tx, original); err != nil {
		return nil, err
	}

	if err := batch.record(ctx, domain.Ref(domain.KindJournalEntry, reversal.ID), domain.AuditPosted, nil, entryState(reversal)); err != nil {
		return nil, err
	}
	for i := range reversal.Lines {
		l := &reversal.Lines[i]
		if err := batch.record(ctx, domain.Ref(domain.KindJournalEntryLine, l.ID), domain.AuditCreated, nil, lineState(l)); err != nil {
			return nil, err
		}
	}
	if err := batch.record(ctx, domain.Ref(domain.KindJournalEntry, original.ID), domain.AuditReversed, old, entryState(original)); err != nil {
		return nil, err
	}

	err = emit(ctx, tx, uc.outboxRepo, uc.idGen, original.CompanyID,
		domain.AggregateTypeJournalEntry, original.ID, domain.EventTypeEntryReversed,
		domain.EntryReversedEvent{
			OriginalEntryID: original.ID,
			ReversalEntryID: reversal.ID,
			EntryDate:       day(entryDate),
		}, now)
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// reversalDate picks the explicit date, else the entry's auto-reverse date,
// else the start of the next fiscal period, else the day after the entry's period.
func (uc *PostingUseCase) reversalDate(ctx context.Context, original *domain.JournalEntry, date *time.Time) (time.Time, error) {
	if date != nil {
		return domain.DateOf(*date), nil
	}
	if original.AutoReverseDate != nil {
		return domain.DateOf(*original.AutoReverseDate), nil
	}
	period, err := uc.periodRepo.GetByID(ctx, original.CompanyID, original.FiscalPeriodID)
	if err != nil {
		return time.Time{}, err
	}
	next, err := uc.periodRepo.NextAfter(ctx, original.CompanyID, period.EndDate)
	switch {
	case err == nil:
		return domain.DateOf(next.StartDate), nil
	case errors.Is(err, domain.ErrNotFound):
		return period.DayAfterEnd(), nil
	default:
		return time.Time{}, err
	}
}

// RemoveDraftLine deletes one line of a draft entry and refreshes its totals.
func (uc *PostingUseCase) RemoveDraftLine(ctx context.Context, companyID, entryID, lineID, actorID string) (*domain.JournalEntry, error) {
	var entry *domain.JournalEntry
	err := uc.run(ctx, "remove_line", func(ctx context.Context, tx Transaction) error {
		e, err := uc.journalRepo.GetForUpdate(ctx, tx, companyID, entryID)
		if err != nil {
			return err
		}
		if e.Status != domain.EntryDraft {
			return fmt.Errorf("%w: %s is %s", domain.ErrEntryNotDraft, e.EntryNumber, e.Status)
		}

		idx := -1
		for i := range e.Lines {
			if e.Lines[i].ID == lineID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return domain.ErrLineNotFound
		}
		removed := e.Lines[idx]
		if err := uc.lockAccountRows(ctx, tx, companyID, e.AccountIDs()); err != nil {
			return err
		}

		if err := uc.journalRepo.DeleteLine(ctx, tx, e.ID, lineID); err != nil {
			return err
		}
		old := entryState(e)
		e.Lines = append(e.Lines[:idx:idx], e.Lines[idx+1:]...)
		e.RecalculateTotals()
		e.UpdatedAt = uc.clock.Now()
		if err := uc.journalRepo.Update(ctx, tx, e); err != nil {
			return err
		}

		batch := uc.audit.batch(tx, companyID, actorOrSystem(actorID)).forTransaction(e.TransactionID).forEntry(e.ID)
		if err := batch.record(ctx, domain.Ref(domain.KindJournalEntryLine, removed.ID), domain.AuditDeleted, lineState(&removed), nil); err != nil {
			return err
		}
		if err := batch.record(ctx, domain.Ref(domain.KindJournalEntry, e.ID), domain.AuditUpdated, old, entryState(e)); err != nil {
			return err
		}
		if err := uc.balance.recomputeAccounts(ctx, tx, batch, companyID, []string{removed.AccountID}); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}
