package domain

import "time"

// Event types
const (
	EventTypeEntryPosted         = "journal_entry.posted"
	EventTypeEntryVoided         = "journal_entry.voided"
	EventTypeEntryReversed       = "journal_entry.reversed"
	EventTypeTransactionVoided   = "transaction.voided"
	EventTypeTransactionReversed = "transaction.reversed"
	EventTypeBooksCloseCompleted = "books_close.completed"
	EventTypeBooksCloseFailed    = "books_close.failed"
	EventTypeAnomalyResolved     = "anomaly.resolved"
	EventTypePeriodClosed        = "fiscal_period.closed"
)

// Aggregate types
const (
	AggregateTypeJournalEntry  = "journal_entry"
	AggregateTypeTransaction   = "transaction"
	AggregateTypeBooksCloseRun = "books_close_run"
	AggregateTypeAnomaly       = "anomaly_detection"
	AggregateTypeFiscalPeriod  = "fiscal_period"
)

// OutboxEvent represents an event to be published
type OutboxEvent struct {
	ID            string
	CompanyID     string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// EntryPostedEvent payload
type EntryPostedEvent struct {
	EntryID       string   `json:"entry_id"`
	EntryNumber   string   `json:"entry_number"`
	TransactionID string   `json:"transaction_id"`
	TotalDebit    string   `json:"total_debit"`
	AccountIDs    []string `json:"account_ids"`
	PostedAt      string   `json:"posted_at"`
}

// EntryVoidedEvent payload
type EntryVoidedEvent struct {
	EntryID string `json:"entry_id"`
	Reason  string `json:"reason"`
}

// EntryReversedEvent payload
type EntryReversedEvent struct {
	OriginalEntryID string `json:"original_entry_id"`
	ReversalEntryID string `json:"reversal_entry_id"`
	EntryDate       string `json:"entry_date"`
}

// TransactionVoidedEvent payload
type TransactionVoidedEvent struct {
	TransactionID string `json:"transaction_id"`
	Number        string `json:"number"`
	Reason        string `json:"reason"`
}

// BooksCloseFinishedEvent payload
type BooksCloseFinishedEvent struct {
	RunID          string `json:"run_id"`
	FiscalPeriodID string `json:"fiscal_period_id"`
	Status         string `json:"status"`
	AnomaliesFound int    `json:"anomalies_found"`
	CriticalCount  int    `json:"critical_count"`
}

// AnomalyResolvedEvent payload
type AnomalyResolvedEvent struct {
	AnomalyID string `json:"anomaly_id"`
	Status    string `json:"status"`
	ActorID   string `json:"actor_id"`
}
