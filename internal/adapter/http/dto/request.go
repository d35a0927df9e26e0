package dto

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return t.UTC(), nil
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// LineRequest is one debit or credit line.
type LineRequest struct {
	AccountID    string           `json:"account_id"`
	Type         string           `json:"type"`
	Amount       decimal.Decimal  `json:"amount"`
	ExchangeRate *decimal.Decimal `json:"exchange_rate,omitempty"`
	Description  string           `json:"description,omitempty"`
	ContactID    *string          `json:"contact_id,omitempty"`
	DepartmentID *string          `json:"department_id,omitempty"`
	ProjectID    *string          `json:"project_id,omitempty"`
	ClassID      *string          `json:"class_id,omitempty"`
	LocationID   *string          `json:"location_id,omitempty"`
	TaxRateID    *string          `json:"tax_rate_id,omitempty"`
	TaxAmount    decimal.Decimal  `json:"tax_amount"`
}

func linesToSpecs(lines []LineRequest) []usecase.LineSpec {
	specs := make([]usecase.LineSpec, len(lines))
	for i, l := range lines {
		specs[i] = usecase.LineSpec{
			AccountID:    l.AccountID,
			Type:         domain.LineType(strings.ToLower(l.Type)),
			Amount:       l.Amount,
			ExchangeRate: l.ExchangeRate,
			Description:  l.Description,
			Dimensions: domain.Dimensions{
				ContactID:    l.ContactID,
				DepartmentID: l.DepartmentID,
				ProjectID:    l.ProjectID,
				ClassID:      l.ClassID,
				LocationID:   l.LocationID,
			},
			TaxRateID: l.TaxRateID,
			TaxAmount: l.TaxAmount,
		}
	}
	return specs
}

// PostDocumentRequest represents a request to post a business document.
type PostDocumentRequest struct {
	Type           string           `json:"type"`
	Number         string           `json:"number"`
	Date           string           `json:"date"`
	DueDate        *string          `json:"due_date,omitempty"`
	FiscalPeriodID string           `json:"fiscal_period_id,omitempty"`
	ContactID      *string          `json:"contact_id,omitempty"`
	Currency       string           `json:"currency"`
	ExchangeRate   *decimal.Decimal `json:"exchange_rate,omitempty"`
	Memo           string           `json:"memo,omitempty"`
	Lines          []LineRequest    `json:"lines"`
}

// ToUseCaseInput converts to use case input.
func (r *PostDocumentRequest) ToUseCaseInput(companyID, actorID string) (usecase.PostDocumentInput, error) {
	date, err := ParseDate(r.Date)
	if err != nil {
		return usecase.PostDocumentInput{}, err
	}
	due, err := parseOptionalDate(r.DueDate)
	if err != nil {
		return usecase.PostDocumentInput{}, err
	}

	spec := usecase.TransactionSpec{
		Type:           domain.TransactionType(r.Type),
		Number:         r.Number,
		Date:           date,
		DueDate:        due,
		FiscalPeriodID: r.FiscalPeriodID,
		ContactID:      r.ContactID,
		Currency:       r.Currency,
		Memo:           r.Memo,
	}
	if r.ExchangeRate != nil {
		spec.ExchangeRate = *r.ExchangeRate
	}

	return usecase.PostDocumentInput{
		CompanyID:   companyID,
		ActorID:     actorID,
		Transaction: spec,
		Lines:       linesToSpecs(r.Lines),
	}, nil
}

// CreateEntryRequest represents a request to add a draft entry to a transaction.
type CreateEntryRequest struct {
	EntryDate       *string       `json:"entry_date,omitempty"`
	Type            string        `json:"type,omitempty"`
	AutoReverseDate *string       `json:"auto_reverse_date,omitempty"`
	Memo            string        `json:"memo,omitempty"`
	Lines           []LineRequest `json:"lines"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateEntryRequest) ToUseCaseInput(companyID, transactionID, actorID string) (usecase.CreateEntryInput, error) {
	entryDate, err := parseOptionalDate(r.EntryDate)
	if err != nil {
		return usecase.CreateEntryInput{}, err
	}
	autoReverse, err := parseOptionalDate(r.AutoReverseDate)
	if err != nil {
		return usecase.CreateEntryInput{}, err
	}

	return usecase.CreateEntryInput{
		CompanyID:       companyID,
		TransactionID:   transactionID,
		EntryDate:       entryDate,
		Type:            domain.EntryType(r.Type),
		AutoReverseDate: autoReverse,
		Memo:            r.Memo,
		ActorID:         actorID,
		Lines:           linesToSpecs(r.Lines),
	}, nil
}

// VoidRequest carries the reason for a void.
type VoidRequest struct {
	Reason string `json:"reason"`
}

// ReverseRequest optionally fixes the reversal date.
type ReverseRequest struct {
	Date *string `json:"date,omitempty"`
}

// ParsedDate returns the requested reversal date, if any.
func (r *ReverseRequest) ParsedDate() (*time.Time, error) {
	return parseOptionalDate(r.Date)
}

// CreateAccountRequest represents a request to create an account.
type CreateAccountRequest struct {
	ParentID       *string         `json:"parent_id,omitempty"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	NormalBalance  string          `json:"normal_balance,omitempty"`
	Currency       string          `json:"currency"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// ToUseCaseInput converts to use case input.
func (r *CreateAccountRequest) ToUseCaseInput(companyID, actorID string) usecase.CreateAccountInput {
	return usecase.CreateAccountInput{
		CompanyID:      companyID,
		ParentID:       r.ParentID,
		Code:           r.Code,
		Name:           r.Name,
		Type:           domain.AccountType(r.Type),
		NormalBalance:  domain.NormalBalance(r.NormalBalance),
		Currency:       r.Currency,
		OpeningBalance: r.OpeningBalance,
		ActorID:        actorID,
	}
}

// CreatePeriodRequest represents a request to open a fiscal period.
type CreatePeriodRequest struct {
	Name      string `json:"name,omitempty"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// ToUseCaseInput converts to use case input.
func (r *CreatePeriodRequest) ToUseCaseInput(companyID, actorID string) (usecase.CreatePeriodInput, error) {
	start, err := ParseDate(r.StartDate)
	if err != nil {
		return usecase.CreatePeriodInput{}, err
	}
	end, err := ParseDate(r.EndDate)
	if err != nil {
		return usecase.CreatePeriodInput{}, err
	}
	return usecase.CreatePeriodInput{
		CompanyID: companyID,
		Name:      r.Name,
		StartDate: start,
		EndDate:   end,
		ActorID:   actorID,
	}, nil
}

// ResolveAnomalyRequest moves a finding through the review workflow.
type ResolveAnomalyRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// ToAction converts to a use case action.
func (r *ResolveAnomalyRequest) ToAction(actorID string) usecase.ResolveAction {
	return usecase.ResolveAction{
		Status:  domain.AnomalyStatus(r.Status),
		ActorID: actorID,
		Note:    r.Note,
	}
}

// CreateRuleRequest defines a custom anomaly rule.
type CreateRuleRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Severity    string          `json:"severity"`
	Confidence  float64         `json:"confidence"`
	Condition   json.RawMessage `json:"condition"`
}

// ToUseCaseInput parses the condition and converts to use case input.
func (r *CreateRuleRequest) ToUseCaseInput(companyID, actorID string) (usecase.CreateRuleInput, error) {
	var cond domain.Expr
	if len(r.Condition) > 0 {
		parsed, err := domain.ParseRule(r.Condition)
		if err != nil {
			return usecase.CreateRuleInput{}, err
		}
		cond = parsed
	}
	return usecase.CreateRuleInput{
		CompanyID:   companyID,
		Name:        r.Name,
		Description: r.Description,
		Severity:    domain.Severity(r.Severity),
		Confidence:  r.Confidence,
		Condition:   cond,
		ActorID:     actorID,
	}, nil
}
