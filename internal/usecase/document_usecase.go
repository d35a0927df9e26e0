package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

// reversalSuffix is appended to the number of a reversing counterpart.
const reversalSuffix = "-R"

// DocumentUseCase posts and voids whole business documents atomically.
type DocumentUseCase struct {
	posting *PostingUseCase
}

// NewDocumentUseCase creates a new DocumentUseCase on top of the posting engine.
func NewDocumentUseCase(posting *PostingUseCase) *DocumentUseCase {
	return &DocumentUseCase{posting: posting}
}

// TransactionSpec describes the transaction created by a document.
type TransactionSpec struct {
	Type    domain.TransactionType
	Number  string
	Date    time.Time
	DueDate *time.Time
	// FiscalPeriodID is resolved from Date when empty.
	FiscalPeriodID string
	ContactID      *string
	Currency       string
	// ExchangeRate defaults to 1.
	ExchangeRate decimal.Decimal
	Memo         string
}

// PostDocumentInput represents input for posting a document.
type PostDocumentInput struct {
	CompanyID   string
	ActorID     string
	Transaction TransactionSpec
	Lines       []LineSpec
}

// PostDocument creates the transaction and its balanced entry and posts both
// in one database transaction.
func (uc *DocumentUseCase) PostDocument(ctx context.Context, input PostDocumentInput) (*domain.Transaction, *domain.JournalEntry, error) {
	p := uc.posting
	if err := validateSpecs(input.Lines); err != nil {
		return nil, nil, err
	}

	spec := input.Transaction
	rate := spec.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}
	actor := actorOrSystem(input.ActorID)

	var (
		txn   *domain.Transaction
		entry *domain.JournalEntry
	)
	start := time.Now()
	err := p.run(ctx, "post_document", func(ctx context.Context, tx Transaction) error {
		ids := make([]string, 0, len(input.Lines))
		for _, l := range input.Lines {
			ids = append(ids, l.AccountID)
		}
		if _, err := p.lockAccounts(ctx, tx, input.CompanyID, ids); err != nil {
			return err
		}

		now := p.clock.Now()
		txn = &domain.Transaction{
			ID:              p.idGen.Generate(),
			CompanyID:       input.CompanyID,
			Type:            spec.Type,
			Number:          strings.TrimSpace(spec.Number),
			TransactionDate: domain.DateOf(spec.Date),
			DueDate:         spec.DueDate,
			FiscalPeriodID:  spec.FiscalPeriodID,
			ContactID:       spec.ContactID,
			Currency:        strings.ToUpper(spec.Currency),
			ExchangeRate:    rate,
			Subtotal:        decimal.Zero,
			TaxTotal:        decimal.Zero,
			TotalAmount:     decimal.Zero,
			Status:          domain.TxStatusDraft,
			Memo:            spec.Memo,
			CreatedBy:       actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := txn.Validate(); err != nil {
			return err
		}
		if err := p.transactionRepo.Create(ctx, tx, txn); err != nil {
			return err
		}

		batch := p.audit.batch(tx, input.CompanyID, actor).forTransaction(txn.ID)
		if err := batch.record(ctx, domain.Ref(domain.KindTransaction, txn.ID), domain.AuditCreated, nil, transactionState(txn)); err != nil {
			return err
		}

		var err error
		entry, err = p.createEntryTx(ctx, tx, batch, txn, CreateEntryInput{
			CompanyID:     input.CompanyID,
			TransactionID: txn.ID,
			Memo:          spec.Memo,
			ActorID:       actor,
			Lines:         input.Lines,
		})
		if err != nil {
			return err
		}
		return p.postEntryTx(ctx, tx, batch, txn, entry)
	})
	if err != nil {
		return nil, nil, err
	}

	if p.metrics != nil {
		p.metrics.EntriesPosted.Inc()
		p.metrics.PostedAmount.Observe(entry.TotalDebit.InexactFloat64())
		p.metrics.PostingDuration.Observe(time.Since(start).Seconds())
	}
	return txn, entry, nil
}

// VoidDocument voids every posted entry of a posted transaction and the
// transaction itself.
func (uc *DocumentUseCase) VoidDocument(ctx context.Context, companyID, transactionID, reason, actorID string) error {
	p := uc.posting
	if err := domain.ValidateVoidReason(reason); err != nil {
		return err
	}

	voided := 0
	err := p.run(ctx, "void_document", func(ctx context.Context, tx Transaction) error {
		voided = 0
		txn, err := p.transactionRepo.GetForUpdate(ctx, tx, companyID, transactionID)
		if err != nil {
			return err
		}
		if !txn.IsPosted() {
			return fmt.Errorf("%w: %s is %s", domain.ErrTransactionNotPosted, txn.Number, txn.Status)
		}
		if txn.ReversedByID != nil || txn.ReversalOfID != nil {
			return fmt.Errorf("%w: transaction %s", domain.ErrReversalImmutable, txn.Number)
		}

		entries, err := p.journalRepo.ListByTransaction(ctx, tx, companyID, txn.ID)
		if err != nil {
			return err
		}
		var posted []*domain.JournalEntry
		var touched []string
		for _, e := range entries {
			if e.Status != domain.EntryPosted {
				continue
			}
			locked, err := p.journalRepo.GetForUpdate(ctx, tx, companyID, e.ID)
			if err != nil {
				return err
			}
			if err := locked.CanVoid(); err != nil {
				return err
			}
			posted = append(posted, locked)
			touched = append(touched, locked.AccountIDs()...)
		}
		if err := p.lockAccountRows(ctx, tx, companyID, touched); err != nil {
			return err
		}

		batch := p.audit.batch(tx, companyID, actorOrSystem(actorID)).forTransaction(txn.ID)
		for _, e := range posted {
			if err := p.voidEntryTx(ctx, tx, batch, e, reason); err != nil {
				return err
			}
			voided++
		}
		if err := p.balance.recomputeAccounts(ctx, tx, batch, companyID, touched); err != nil {
			return err
		}
		return p.voidTransactionTx(ctx, tx, batch, txn, reason)
	})
	if err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.EntriesVoided.Add(float64(voided))
	}
	return nil
}

// ReverseDocument creates the reversing counterpart of a posted transaction.
// It holds the reversing entry of every posted entry. A reversal cannot itself
// be reversed, so the pair never grows past two transactions.
func (uc *DocumentUseCase) ReverseDocument(ctx context.Context, companyID, transactionID string, date *time.Time, actorID string) (*domain.Transaction, error) {
	p := uc.posting
	actor := actorOrSystem(actorID)

	var counterpart *domain.Transaction
	reversed := 0
	err := p.run(ctx, "reverse_document", func(ctx context.Context, tx Transaction) error {
		reversed = 0
		original, err := p.transactionRepo.GetForUpdate(ctx, tx, companyID, transactionID)
		if err != nil {
			return err
		}
		if !original.IsPosted() {
			return fmt.Errorf("%w: %s is %s", domain.ErrTransactionNotPosted, original.Number, original.Status)
		}
		if original.ReversedByID != nil || original.ReversalOfID != nil {
			return fmt.Errorf("%w: transaction %s", domain.ErrAlreadyReversed, original.Number)
		}

		entries, err := p.journalRepo.ListByTransaction(ctx, tx, companyID, original.ID)
		if err != nil {
			return err
		}
		var posted []*domain.JournalEntry
		for _, e := range entries {
			if e.Status == domain.EntryPosted && e.ReversedByEntryID == nil {
				posted = append(posted, e)
			}
		}
		if len(posted) == 0 {
			return fmt.Errorf("%w: transaction %s has no posted entries", domain.ErrEntryNotPosted, original.Number)
		}

		txDate := original.TransactionDate
		if date != nil {
			txDate = domain.DateOf(*date)
		} else if d, err := p.reversalDate(ctx, posted[0], nil); err == nil {
			txDate = d
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		var accountIDs []string
		for _, e := range posted {
			accountIDs = append(accountIDs, e.AccountIDs()...)
		}
		if _, err := p.lockAccounts(ctx, tx, companyID, accountIDs); err != nil {
			return err
		}

		now := p.clock.Now()
		counterpart = &domain.Transaction{
			ID:              p.idGen.Generate(),
			CompanyID:       companyID,
			Type:            original.Type,
			Number:          original.Number + reversalSuffix,
			TransactionDate: txDate,
			ContactID:       original.ContactID,
			Currency:        original.Currency,
			ExchangeRate:    original.ExchangeRate,
			Subtotal:        original.Subtotal,
			TaxTotal:        original.TaxTotal,
			TotalAmount:     original.TotalAmount,
			Status:          domain.TxStatusPosted,
			PostingDate:     &now,
			Memo:            "Reversal of " + original.Number,
			ReversalOfID:    &original.ID,
			CreatedBy:       actor,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if period, err := p.periodRepo.FindByDate(ctx, companyID, txDate); err == nil {
			counterpart.FiscalPeriodID = period.ID
		}
		if err := p.transactionRepo.Create(ctx, tx, counterpart); err != nil {
			return err
		}

		batch := p.audit.batch(tx, companyID, actor).forTransaction(counterpart.ID)
		if err := batch.record(ctx, domain.Ref(domain.KindTransaction, counterpart.ID), domain.AuditCreated, nil, transactionState(counterpart)); err != nil {
			return err
		}

		var touched []string
		for _, e := range posted {
			locked, err := p.journalRepo.GetForUpdate(ctx, tx, companyID, e.ID)
			if err != nil {
				return err
			}
			if _, err := p.reverseEntryTx(ctx, tx, batch, locked, counterpart.ID, date); err != nil {
				return err
			}
			touched = append(touched, locked.AccountIDs()...)
			reversed++
		}
		if err := p.balance.recomputeAccounts(ctx, tx, batch, companyID, touched); err != nil {
			return err
		}

		old := transactionState(original)
		original.ReversedByID = &counterpart.ID
		original.UpdatedAt = now
		if err := p.transactionRepo.Update(ctx, tx, original); err != nil {
			return err
		}
		if err := batch.record(ctx, domain.Ref(domain.KindTransaction, original.ID), domain.AuditReversed, old, transactionState(original)); err != nil {
			return err
		}
		return emit(ctx, tx, p.outboxRepo, p.idGen, companyID,
			domain.AggregateTypeTransaction, original.ID, domain.EventTypeTransactionReversed,
			map[string]any{
				"transaction_id":          original.ID,
				"reversal_transaction_id": counterpart.ID,
				"entries_reversed":        reversed,
			}, now)
	})
	if err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.EntriesReversed.Add(float64(reversed))
	}
	return counterpart, nil
}
