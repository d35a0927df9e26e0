package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
)

// Audit snapshots use stable snake_case keys and fixed-scale decimal strings so
// hashes survive a JSON round trip through storage.

func money(d decimal.Decimal) string {
	return d.StringFixed(domain.MoneyScale)
}

func day(t time.Time) string {
	return t.Format(time.DateOnly)
}

func balanceState(a *domain.Account) domain.JSON {
	return domain.JSON{"current_balance": money(a.CurrentBalance)}
}

func accountState(a *domain.Account) domain.JSON {
	s := domain.JSON{
		"code":            a.Code,
		"name":            a.Name,
		"type":            string(a.Type),
		"normal_balance":  string(a.NormalBalance),
		"currency":        a.Currency,
		"opening_balance": money(a.OpeningBalance),
		"current_balance": money(a.CurrentBalance),
	}
	if a.ParentID != nil {
		s["parent_id"] = *a.ParentID
	}
	if a.DeletedAt != nil {
		s["deleted_at"] = a.DeletedAt.UTC().Format(time.RFC3339)
	}
	return s
}

func transactionState(t *domain.Transaction) domain.JSON {
	s := domain.JSON{
		"type":             string(t.Type),
		"number":           t.Number,
		"transaction_date": day(t.TransactionDate),
		"fiscal_period_id": t.FiscalPeriodID,
		"currency":         t.Currency,
		"exchange_rate":    t.ExchangeRate.String(),
		"subtotal":         money(t.Subtotal),
		"tax_total":        money(t.TaxTotal),
		"total_amount":     money(t.TotalAmount),
		"status":           string(t.Status),
	}
	if t.ContactID != nil {
		s["contact_id"] = *t.ContactID
	}
	if t.VoidReason != nil {
		s["void_reason"] = *t.VoidReason
	}
	if t.ReversalOfID != nil {
		s["reversal_of_id"] = *t.ReversalOfID
	}
	if t.ReversedByID != nil {
		s["reversed_by_id"] = *t.ReversedByID
	}
	return s
}

func entryState(e *domain.JournalEntry) domain.JSON {
	s := domain.JSON{
		"entry_number":     e.EntryNumber,
		"transaction_id":   e.TransactionID,
		"entry_date":       day(e.EntryDate),
		"fiscal_period_id": e.FiscalPeriodID,
		"entry_type":       string(e.Type),
		"status":           string(e.Status),
		"total_debit":      money(e.TotalDebit),
		"total_credit":     money(e.TotalCredit),
		"is_balanced":      e.IsBalanced(),
		"line_count":       len(e.Lines),
	}
	if e.PostedBy != nil {
		s["posted_by"] = *e.PostedBy
	}
	if e.VoidReason != nil {
		s["void_reason"] = *e.VoidReason
	}
	if e.ReversalOfEntryID != nil {
		s["reversal_of_entry_id"] = *e.ReversalOfEntryID
	}
	if e.ReversedByEntryID != nil {
		s["reversed_by_entry_id"] = *e.ReversedByEntryID
	}
	return s
}

func lineState(l *domain.JournalEntryLine) domain.JSON {
	return domain.JSON{
		"journal_entry_id": l.JournalEntryID,
		"account_id":       l.AccountID,
		"type":             string(l.Type),
		"amount":           money(l.Amount),
		"exchange_rate":    l.ExchangeRate.String(),
		"base_amount":      money(l.BaseAmount),
		"line_number":      l.LineNumber,
	}
}

func periodState(p *domain.FiscalPeriod) domain.JSON {
	return domain.JSON{
		"name":       p.Name,
		"start_date": day(p.StartDate),
		"end_date":   day(p.EndDate),
		"status":     string(p.Status),
	}
}

func anomalyState(a *domain.AnomalyDetection) domain.JSON {
	return domain.JSON{
		"detection_type": string(a.Type),
		"severity":       string(a.Severity),
		"status":         string(a.Status),
		"entity":         a.Entity.String(),
	}
}

func runState(r *domain.BooksCloseRun) domain.JSON {
	s := domain.JSON{
		"fiscal_period_id":       r.FiscalPeriodID,
		"status":                 string(r.Status),
		"transactions_processed": r.TransactionsProcessed,
		"anomalies_found":        r.AnomaliesFound,
		"critical_count":         r.CriticalCount,
		"warning_count":          r.WarningCount,
		"info_count":             r.InfoCount,
	}
	if r.ErrorMessage != nil {
		s["error_message"] = *r.ErrorMessage
	}
	return s
}

func actorOrSystem(actorID string) string {
	if actorID == "" {
		return SystemActor
	}
	return actorID
}

// emit writes an outbox event in tx.
func emit(
	ctx context.Context,
	tx Transaction,
	repo OutboxRepository,
	idGen IDGenerator,
	companyID, aggregateType, aggregateID, eventType string,
	payload any,
	at time.Time,
) error {
	if repo == nil {
		return nil
	}
	return repo.Create(ctx, tx, &domain.OutboxEvent{
		ID:            idGen.Generate(),
		CompanyID:     companyID,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Payload:       domain.MarshalState(payload),
		CreatedAt:     at,
	})
}
