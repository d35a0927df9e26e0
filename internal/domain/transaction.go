package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType is the business document class behind a transaction.
type TransactionType string

const (
	TxTypeInvoice    TransactionType = "invoice"
	TxTypeBill       TransactionType = "bill"
	TxTypePayment    TransactionType = "payment"
	TxTypeExpense    TransactionType = "expense"
	TxTypeJournal    TransactionType = "journal"
	TxTypeCreditNote TransactionType = "credit_note"
	TxTypeDeposit    TransactionType = "deposit"
	TxTypeTransfer   TransactionType = "transfer"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxTypeInvoice, TxTypeBill, TxTypePayment, TxTypeExpense,
		TxTypeJournal, TxTypeCreditNote, TxTypeDeposit, TxTypeTransfer:
		return true
	}
	return false
}

// TransactionStatus is the posting state of a transaction.
type TransactionStatus string

const (
	TxStatusDraft   TransactionStatus = "draft"
	TxStatusPending TransactionStatus = "pending"
	TxStatusPosted  TransactionStatus = "posted"
	TxStatusVoid    TransactionStatus = "void"
)

// Transaction is a business event that produces one or more journal entries.
type Transaction struct {
	ID              string
	CompanyID       string
	Type            TransactionType
	Number          string
	TransactionDate time.Time
	DueDate         *time.Time
	PostingDate     *time.Time
	FiscalPeriodID  string
	ContactID       *string
	Currency        string
	ExchangeRate    decimal.Decimal
	Subtotal        decimal.Decimal
	TaxTotal        decimal.Decimal
	TotalAmount     decimal.Decimal
	Status          TransactionStatus
	Memo            string
	VoidReason      *string
	VoidedAt        *time.Time
	VoidedBy        *string
	ReversalOfID    *string
	ReversedByID    *string
	CreatedBy       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

// Validate checks the fields required before a transaction is stored.
func (t *Transaction) Validate() error {
	if t.CompanyID == "" {
		return ErrCompanyRequired
	}
	if !t.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTxType, t.Type)
	}
	if strings.TrimSpace(t.Number) == "" {
		return ErrInvalidNumber
	}
	if err := ValidateCurrency(t.Currency); err != nil {
		return err
	}
	return ValidateExchangeRate(t.ExchangeRate)
}

// IsPosted reports whether the transaction is in the immutable posted state.
func (t *Transaction) IsPosted() bool {
	return t.Status == TxStatusPosted
}

// ContactKey returns the contact id or an empty string.
func (t *Transaction) ContactKey() string {
	if t.ContactID == nil {
		return ""
	}
	return *t.ContactID
}

// MarkPosted moves a draft or pending transaction to posted.
func (t *Transaction) MarkPosted(at time.Time) error {
	switch t.Status {
	case TxStatusDraft, TxStatusPending:
		t.Status = TxStatusPosted
		t.PostingDate = &at
		t.UpdatedAt = at
		return nil
	case TxStatusPosted:
		return nil
	default:
		return fmt.Errorf("%w: cannot post transaction in status %s", ErrTransactionImmutable, t.Status)
	}
}

// MarkVoid moves a posted transaction to void.
func (t *Transaction) MarkVoid(reason, actorID string, at time.Time) error {
	if err := ValidateVoidReason(reason); err != nil {
		return err
	}
	if t.Status != TxStatusPosted {
		return fmt.Errorf("%w: status %s", ErrTransactionNotPosted, t.Status)
	}
	if t.ReversedByID != nil || t.ReversalOfID != nil {
		return fmt.Errorf("%w: transaction %s", ErrReversalImmutable, t.Number)
	}
	t.Status = TxStatusVoid
	t.VoidReason = &reason
	t.VoidedAt = &at
	t.VoidedBy = &actorID
	t.UpdatedAt = at
	return nil
}

// ApplyTotals sets computed totals. Posted transactions reject the change.
func (t *Transaction) ApplyTotals(total, tax decimal.Decimal) error {
	if t.Status == TxStatusPosted || t.Status == TxStatusVoid {
		return ErrTransactionImmutable
	}
	t.TotalAmount = total
	t.TaxTotal = tax
	t.Subtotal = total.Sub(tax)
	return nil
}
