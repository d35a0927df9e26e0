package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

func formatDate(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

func formatOptionalDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatDate(*t)
	return &s
}

// AccountResponse represents an account in API responses.
type AccountResponse struct {
	ID             string          `json:"id"`
	CompanyID      string          `json:"company_id"`
	ParentID       *string         `json:"parent_id,omitempty"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	NormalBalance  string          `json:"normal_balance"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      *time.Time      `json:"deleted_at,omitempty"`
}

// AccountFromDomain converts domain account to response.
func AccountFromDomain(a *domain.Account) *AccountResponse {
	return &AccountResponse{
		ID:             a.ID,
		CompanyID:      a.CompanyID,
		ParentID:       a.ParentID,
		Code:           a.Code,
		Name:           a.Name,
		Type:           string(a.Type),
		NormalBalance:  string(a.NormalBalance),
		Currency:       a.Currency,
		OpeningBalance: a.OpeningBalance,
		CurrentBalance: a.CurrentBalance,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
		DeletedAt:      a.DeletedAt,
	}
}

// AccountsFromDomain converts domain accounts to responses.
func AccountsFromDomain(accounts []*domain.Account) []*AccountResponse {
	result := make([]*AccountResponse, len(accounts))
	for i, a := range accounts {
		result[i] = AccountFromDomain(a)
	}
	return result
}

// ListAccountsResponse represents a page of accounts.
type ListAccountsResponse struct {
	Accounts []*AccountResponse `json:"accounts"`
	Total    int64              `json:"total"`
}

// BalanceResponse is an account balance, current or as of a date.
type BalanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
	AsOf      *string         `json:"as_of,omitempty"`
}

// TransactionResponse represents a transaction in API responses.
type TransactionResponse struct {
	ID              string          `json:"id"`
	CompanyID       string          `json:"company_id"`
	Type            string          `json:"type"`
	Number          string          `json:"number"`
	TransactionDate string          `json:"transaction_date"`
	DueDate         *string         `json:"due_date,omitempty"`
	PostingDate     *string         `json:"posting_date,omitempty"`
	FiscalPeriodID  string          `json:"fiscal_period_id"`
	ContactID       *string         `json:"contact_id,omitempty"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	TaxTotal        decimal.Decimal `json:"tax_total"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	Status          string          `json:"status"`
	Memo            string          `json:"memo,omitempty"`
	VoidReason      *string         `json:"void_reason,omitempty"`
	VoidedAt        *time.Time      `json:"voided_at,omitempty"`
	VoidedBy        *string         `json:"voided_by,omitempty"`
	ReversalOfID    *string         `json:"reversal_of_id,omitempty"`
	ReversedByID    *string         `json:"reversed_by_id,omitempty"`
	CreatedBy       string          `json:"created_by"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TransactionFromDomain converts a domain transaction to response.
func TransactionFromDomain(t *domain.Transaction) *TransactionResponse {
	return &TransactionResponse{
		ID:              t.ID,
		CompanyID:       t.CompanyID,
		Type:            string(t.Type),
		Number:          t.Number,
		TransactionDate: formatDate(t.TransactionDate),
		DueDate:         formatOptionalDate(t.DueDate),
		PostingDate:     formatOptionalDate(t.PostingDate),
		FiscalPeriodID:  t.FiscalPeriodID,
		ContactID:       t.ContactID,
		Currency:        t.Currency,
		ExchangeRate:    t.ExchangeRate,
		Subtotal:        t.Subtotal,
		TaxTotal:        t.TaxTotal,
		TotalAmount:     t.TotalAmount,
		Status:          string(t.Status),
		Memo:            t.Memo,
		VoidReason:      t.VoidReason,
		VoidedAt:        t.VoidedAt,
		VoidedBy:        t.VoidedBy,
		ReversalOfID:    t.ReversalOfID,
		ReversedByID:    t.ReversedByID,
		CreatedBy:       t.CreatedBy,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}

// LineResponse represents a journal entry line.
type LineResponse struct {
	ID           string          `json:"id"`
	AccountID    string          `json:"account_id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	BaseAmount   decimal.Decimal `json:"base_amount"`
	Description  string          `json:"description,omitempty"`
	ContactID    *string         `json:"contact_id,omitempty"`
	DepartmentID *string         `json:"department_id,omitempty"`
	ProjectID    *string         `json:"project_id,omitempty"`
	ClassID      *string         `json:"class_id,omitempty"`
	LocationID   *string         `json:"location_id,omitempty"`
	TaxRateID    *string         `json:"tax_rate_id,omitempty"`
	TaxAmount    decimal.Decimal `json:"tax_amount"`
	LineNumber   int             `json:"line_number"`
}

// LinesFromDomain converts entry lines to responses.
func LinesFromDomain(lines []domain.JournalEntryLine) []LineResponse {
	result := make([]LineResponse, len(lines))
	for i, l := range lines {
		result[i] = LineResponse{
			ID:           l.ID,
			AccountID:    l.AccountID,
			Type:         string(l.Type),
			Amount:       l.Amount,
			ExchangeRate: l.ExchangeRate,
			BaseAmount:   l.BaseAmount,
			Description:  l.Description,
			ContactID:    l.Dimensions.ContactID,
			DepartmentID: l.Dimensions.DepartmentID,
			ProjectID:    l.Dimensions.ProjectID,
			ClassID:      l.Dimensions.ClassID,
			LocationID:   l.Dimensions.LocationID,
			TaxRateID:    l.TaxRateID,
			TaxAmount:    l.TaxAmount,
			LineNumber:   l.LineNumber,
		}
	}
	return result
}

// EntryResponse represents a journal entry in API responses.
type EntryResponse struct {
	ID                string          `json:"id"`
	CompanyID         string          `json:"company_id"`
	TransactionID     string          `json:"transaction_id"`
	EntryNumber       string          `json:"entry_number"`
	EntryDate         string          `json:"entry_date"`
	FiscalPeriodID    string          `json:"fiscal_period_id"`
	Type              string          `json:"type"`
	Status            string          `json:"status"`
	TotalDebit        decimal.Decimal `json:"total_debit"`
	TotalCredit       decimal.Decimal `json:"total_credit"`
	Memo              string          `json:"memo,omitempty"`
	AutoReverseDate   *string         `json:"auto_reverse_date,omitempty"`
	PostedAt          *time.Time      `json:"posted_at,omitempty"`
	PostedBy          *string         `json:"posted_by,omitempty"`
	VoidedAt          *time.Time      `json:"voided_at,omitempty"`
	VoidedBy          *string         `json:"voided_by,omitempty"`
	VoidReason        *string         `json:"void_reason,omitempty"`
	ReversalOfEntryID *string         `json:"reversal_of_entry_id,omitempty"`
	ReversedByEntryID *string         `json:"reversed_by_entry_id,omitempty"`
	CreatedBy         string          `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
	Lines             []LineResponse  `json:"lines"`
}

// EntryFromDomain converts a domain entry to response.
func EntryFromDomain(e *domain.JournalEntry) *EntryResponse {
	return &EntryResponse{
		ID:                e.ID,
		CompanyID:         e.CompanyID,
		TransactionID:     e.TransactionID,
		EntryNumber:       e.EntryNumber,
		EntryDate:         formatDate(e.EntryDate),
		FiscalPeriodID:    e.FiscalPeriodID,
		Type:              string(e.Type),
		Status:            string(e.Status),
		TotalDebit:        e.TotalDebit,
		TotalCredit:       e.TotalCredit,
		Memo:              e.Memo,
		AutoReverseDate:   formatOptionalDate(e.AutoReverseDate),
		PostedAt:          e.PostedAt,
		PostedBy:          e.PostedBy,
		VoidedAt:          e.VoidedAt,
		VoidedBy:          e.VoidedBy,
		VoidReason:        e.VoidReason,
		ReversalOfEntryID: e.ReversalOfEntryID,
		ReversedByEntryID: e.ReversedByEntryID,
		CreatedBy:         e.CreatedBy,
		CreatedAt:         e.CreatedAt,
		Lines:             LinesFromDomain(e.Lines),
	}
}

// EntriesFromDomain converts domain entries to responses.
func EntriesFromDomain(entries []*domain.JournalEntry) []*EntryResponse {
	result := make([]*EntryResponse, len(entries))
	for i, e := range entries {
		result[i] = EntryFromDomain(e)
	}
	return result
}

// DocumentResponse is a posted document: its transaction and entry.
type DocumentResponse struct {
	Transaction *TransactionResponse `json:"transaction"`
	Entry       *EntryResponse       `json:"entry"`
}

// AccountLineResponse is one ledger line of an account.
type AccountLineResponse struct {
	LineResponse
	JournalEntryID string    `json:"journal_entry_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// AccountLinesFromDomain converts an account's lines to responses.
func AccountLinesFromDomain(lines []domain.JournalEntryLine) []AccountLineResponse {
	base := LinesFromDomain(lines)
	result := make([]AccountLineResponse, len(lines))
	for i, l := range lines {
		result[i] = AccountLineResponse{
			LineResponse:   base[i],
			JournalEntryID: l.JournalEntryID,
			CreatedAt:      l.CreatedAt,
		}
	}
	return result
}

// PeriodResponse represents a fiscal period.
type PeriodResponse struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id"`
	Name      string     `json:"name"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Status    string     `json:"status"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	ClosedBy  *string    `json:"closed_by,omitempty"`
}

// PeriodFromDomain converts a fiscal period to response.
func PeriodFromDomain(p *domain.FiscalPeriod) *PeriodResponse {
	return &PeriodResponse{
		ID:        p.ID,
		CompanyID: p.CompanyID,
		Name:      p.Name,
		StartDate: formatDate(p.StartDate),
		EndDate:   formatDate(p.EndDate),
		Status:    string(p.Status),
		ClosedAt:  p.ClosedAt,
		ClosedBy:  p.ClosedBy,
	}
}

// PeriodsFromDomain converts fiscal periods to responses.
func PeriodsFromDomain(periods []*domain.FiscalPeriod) []*PeriodResponse {
	result := make([]*PeriodResponse, len(periods))
	for i, p := range periods {
		result[i] = PeriodFromDomain(p)
	}
	return result
}

// RunResponse represents a books close run.
type RunResponse struct {
	ID                    string         `json:"id"`
	CompanyID             string         `json:"company_id"`
	FiscalPeriodID        string         `json:"fiscal_period_id"`
	InitiatedBy           string         `json:"initiated_by"`
	Status                string         `json:"status"`
	StartedAt             time.Time      `json:"started_at"`
	CompletedAt           *time.Time     `json:"completed_at,omitempty"`
	TransactionsProcessed int            `json:"transactions_processed"`
	AnomaliesFound        int            `json:"anomalies_found"`
	CriticalCount         int            `json:"critical_count"`
	WarningCount          int            `json:"warning_count"`
	InfoCount             int            `json:"info_count"`
	CountsByType          map[string]int `json:"counts_by_type"`
	Summary               map[string]any `json:"summary,omitempty"`
	ErrorMessage          *string        `json:"error_message,omitempty"`
}

// RunFromDomain converts a books close run to response.
func RunFromDomain(r *domain.BooksCloseRun) *RunResponse {
	counts := make(map[string]int, len(r.CountsByType))
	for k, v := range r.CountsByType {
		counts[string(k)] = v
	}
	return &RunResponse{
		ID:                    r.ID,
		CompanyID:             r.CompanyID,
		FiscalPeriodID:        r.FiscalPeriodID,
		InitiatedBy:           r.InitiatedBy,
		Status:                string(r.Status),
		StartedAt:             r.StartedAt,
		CompletedAt:           r.CompletedAt,
		TransactionsProcessed: r.TransactionsProcessed,
		AnomaliesFound:        r.AnomaliesFound,
		CriticalCount:         r.CriticalCount,
		WarningCount:          r.WarningCount,
		InfoCount:             r.InfoCount,
		CountsByType:          counts,
		Summary:               r.Summary,
		ErrorMessage:          r.ErrorMessage,
	}
}

// AnomalyResponse represents a finding.
type AnomalyResponse struct {
	ID               string                     `json:"id"`
	RunID            string                     `json:"run_id"`
	FiscalPeriodID   string                     `json:"fiscal_period_id"`
	Type             string                     `json:"type"`
	Severity         string                     `json:"severity"`
	Status           string                     `json:"status"`
	Entity           domain.EntityRef           `json:"entity"`
	Confidence       float64                    `json:"confidence"`
	Title            string                     `json:"title"`
	Description      string                     `json:"description"`
	Data             map[string]any             `json:"data,omitempty"`
	SuggestedActions []string                   `json:"suggested_actions,omitempty"`
	Rank             int                        `json:"rank"`
	Trail            []domain.AnomalyResolution `json:"trail,omitempty"`
	ReviewedBy       *string                    `json:"reviewed_by,omitempty"`
	ResolvedBy       *string                    `json:"resolved_by,omitempty"`
	CreatedAt        time.Time                  `json:"created_at"`
}

// AnomalyFromDomain converts a finding to response.
func AnomalyFromDomain(a *domain.AnomalyDetection) *AnomalyResponse {
	return &AnomalyResponse{
		ID:               a.ID,
		RunID:            a.RunID,
		FiscalPeriodID:   a.FiscalPeriodID,
		Type:             string(a.Type),
		Severity:         string(a.Severity),
		Status:           string(a.Status),
		Entity:           a.Entity,
		Confidence:       a.Confidence,
		Title:            a.Title,
		Description:      a.Description,
		Data:             a.Data,
		SuggestedActions: a.SuggestedActions,
		Rank:             a.Rank,
		Trail:            a.Trail,
		ReviewedBy:       a.ReviewedBy,
		ResolvedBy:       a.ResolvedBy,
		CreatedAt:        a.CreatedAt,
	}
}

// AnomaliesFromDomain converts findings to responses.
func AnomaliesFromDomain(findings []*domain.AnomalyDetection) []*AnomalyResponse {
	result := make([]*AnomalyResponse, len(findings))
	for i, a := range findings {
		result[i] = AnomalyFromDomain(a)
	}
	return result
}

// RuleResponse represents a custom anomaly rule.
type RuleResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Severity    string          `json:"severity"`
	Confidence  float64         `json:"confidence"`
	Active      bool            `json:"active"`
	Condition   domain.RuleNode `json:"condition"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RuleFromDomain converts a rule to response.
func RuleFromDomain(r *domain.AnomalyRule) *RuleResponse {
	resp := &RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Severity:    string(r.Severity),
		Confidence:  r.Confidence,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
	}
	if r.Condition != nil {
		resp.Condition = r.Condition.Node()
	}
	return resp
}

// AuditLogResponse represents one audit record.
type AuditLogResponse struct {
	ID            string           `json:"id"`
	Sequence      int64            `json:"sequence"`
	Auditable     domain.EntityRef `json:"auditable"`
	Event         string           `json:"event"`
	ActorID       string           `json:"actor_id"`
	OldValues     map[string]any   `json:"old_values,omitempty"`
	NewValues     map[string]any   `json:"new_values,omitempty"`
	ChangedFields []string         `json:"changed_fields,omitempty"`
	BatchID       string           `json:"batch_id,omitempty"`
	PreviousHash  string           `json:"previous_hash"`
	Hash          string           `json:"hash"`
	CreatedAt     time.Time        `json:"created_at"`
}

// AuditLogsFromDomain converts audit records to responses.
func AuditLogsFromDomain(logs []*domain.AuditLog) []*AuditLogResponse {
	result := make([]*AuditLogResponse, len(logs))
	for i, l := range logs {
		result[i] = &AuditLogResponse{
			ID:            l.ID,
			Sequence:      l.Sequence,
			Auditable:     l.Auditable,
			Event:         string(l.Event),
			ActorID:       l.ActorID,
			OldValues:     l.OldValues,
			NewValues:     l.NewValues,
			ChangedFields: l.ChangedFields,
			BatchID:       l.BatchID,
			PreviousHash:  l.PreviousHash,
			Hash:          l.Hash,
			CreatedAt:     l.CreatedAt,
		}
	}
	return result
}

// ConsistencyResponse wraps a company-wide consistency check.
type ConsistencyResponse struct {
	Status     string                     `json:"status"`
	Consistent bool                       `json:"consistent"`
	Report     *usecase.ConsistencyReport `json:"report"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}
