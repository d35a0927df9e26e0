package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LineType is the side of a journal entry line.
type LineType string

const (
	Debit  LineType = "debit"
	Credit LineType = "credit"
)

// Valid reports whether t is debit or credit.
func (t LineType) Valid() bool {
	return t == Debit || t == Credit
}

// Opposite returns the other side.
func (t LineType) Opposite() LineType {
	if t == Debit {
		return Credit
	}
	return Debit
}

// EntryType classifies a journal entry.
type EntryType string

const (
	EntryStandard  EntryType = "standard"
	EntryAdjusting EntryType = "adjusting"
	EntryClosing   EntryType = "closing"
	EntryReversing EntryType = "reversing"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryStandard, EntryAdjusting, EntryClosing, EntryReversing:
		return true
	}
	return false
}

// EntryStatus is the posting state of a journal entry.
type EntryStatus string

const (
	EntryDraft  EntryStatus = "draft"
	EntryPosted EntryStatus = "posted"
	EntryVoid   EntryStatus = "void"
)

// Dimensions are optional analytic tags carried by a line.
type Dimensions struct {
	ContactID    *string
	DepartmentID *string
	ProjectID    *string
	ClassID      *string
	LocationID   *string
}

// JournalEntryLine is one debit or credit against a single account.
type JournalEntryLine struct {
	ID               string
	JournalEntryID   string
	CompanyID        string
	AccountID        string
	Type             LineType
	Amount           decimal.Decimal
	ExchangeRate     decimal.Decimal
	BaseAmount       decimal.Decimal
	Description      string
	Dimensions       Dimensions
	TaxRateID        *string
	TaxAmount        decimal.Decimal
	ReconciliationID *string
	IsReconciled     bool
	LineNumber       int
	CreatedAt        time.Time
}

// Validate checks amount, scale, side and exchange rate of the line.
func (l *JournalEntryLine) Validate() error {
	if !l.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLineType, l.Type)
	}
	if err := ValidateAmount(l.Amount); err != nil {
		return err
	}
	if err := ValidateExchangeRate(l.ExchangeRate); err != nil {
		return err
	}
	if l.TaxAmount.IsNegative() {
		return fmt.Errorf("%w: tax amount is negative", ErrInvalidAmount)
	}
	return ValidateScale(l.TaxAmount)
}

// JournalEntry groups balanced lines posted together for one transaction.
type JournalEntry struct {
	ID                string
	CompanyID         string
	TransactionID     string
	EntryNumber       string
	EntryDate         time.Time
	FiscalPeriodID    string
	Type              EntryType
	Status            EntryStatus
	TotalDebit        decimal.Decimal
	TotalCredit       decimal.Decimal
	Memo              string
	AutoReverseDate   *time.Time
	PostedAt          *time.Time
	PostedBy          *string
	VoidedAt          *time.Time
	VoidedBy          *string
	VoidReason        *string
	ReversalOfEntryID *string
	ReversedByEntryID *string
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Lines             []JournalEntryLine
}

// SumLines returns the base-currency debit and credit totals of lines.
func SumLines(lines []JournalEntryLine) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, l := range lines {
		if l.Type == Debit {
			debit = debit.Add(l.BaseAmount)
		} else {
			credit = credit.Add(l.BaseAmount)
		}
	}
	return debit, credit
}

// RecalculateTotals refreshes TotalDebit and TotalCredit from the lines.
func (e *JournalEntry) RecalculateTotals() {
	e.TotalDebit, e.TotalCredit = SumLines(e.Lines)
}

// IsBalanced compares stored totals exactly.
func (e *JournalEntry) IsBalanced() bool {
	return e.TotalDebit.Equal(e.TotalCredit)
}

// LinesBalanced recomputes from the lines and compares exactly.
func (e *JournalEntry) LinesBalanced() bool {
	d, c := SumLines(e.Lines)
	return d.Equal(c)
}

// ValidateLines checks every line and that the entry has both sides and balances.
func (e *JournalEntry) ValidateLines() error {
	var hasDebit, hasCredit bool
	for i := range e.Lines {
		if err := e.Lines[i].Validate(); err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		if e.Lines[i].Type == Debit {
			hasDebit = true
		} else {
			hasCredit = true
		}
	}
	if !hasDebit || !hasCredit {
		return ErrNoLines
	}
	if !e.LinesBalanced() {
		d, c := SumLines(e.Lines)
		return fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced, d.StringFixed(MoneyScale), c.StringFixed(MoneyScale))
	}
	return nil
}

// AccountIDs returns the distinct accounts touched by the entry.
func (e *JournalEntry) AccountIDs() []string {
	seen := make(map[string]struct{}, len(e.Lines))
	ids := make([]string, 0, len(e.Lines))
	for _, l := range e.Lines {
		if _, ok := seen[l.AccountID]; ok {
			continue
		}
		seen[l.AccountID] = struct{}{}
		ids = append(ids, l.AccountID)
	}
	return ids
}

// MarkPosted moves a balanced draft to posted.
func (e *JournalEntry) MarkPosted(actorID string, at time.Time) error {
	if e.Status != EntryDraft {
		return fmt.Errorf("%w: status %s", ErrEntryNotDraft, e.Status)
	}
	e.RecalculateTotals()
	if !e.IsBalanced() {
		return fmt.Errorf("%w: debits %s, credits %s", ErrUnbalanced, e.TotalDebit, e.TotalCredit)
	}
	e.Status = EntryPosted
	e.PostedAt = &at
	e.PostedBy = &actorID
	e.UpdatedAt = at
	return nil
}

// CanVoid checks that the entry is posted and not part of a reversal pair.
func (e *JournalEntry) CanVoid() error {
	if e.Status != EntryPosted {
		return fmt.Errorf("%w: status %s", ErrEntryNotPosted, e.Status)
	}
	if e.ReversedByEntryID != nil {
		return fmt.Errorf("%w: entry %s reversed by %s", ErrReversalImmutable, e.EntryNumber, *e.ReversedByEntryID)
	}
	if e.ReversalOfEntryID != nil {
		return fmt.Errorf("%w: entry %s reverses %s", ErrReversalImmutable, e.EntryNumber, *e.ReversalOfEntryID)
	}
	return nil
}

// MarkVoid moves a posted entry to void. Lines are retained.
func (e *JournalEntry) MarkVoid(reason, actorID string, at time.Time) error {
	if err := ValidateVoidReason(reason); err != nil {
		return err
	}
	if err := e.CanVoid(); err != nil {
		return err
	}
	e.Status = EntryVoid
	e.VoidReason = &reason
	e.VoidedAt = &at
	e.VoidedBy = &actorID
	e.UpdatedAt = at
	return nil
}

// CanReverse checks that the entry is posted, has no reversal yet and is not
// itself a reversal.
func (e *JournalEntry) CanReverse() error {
	if e.ReversedByEntryID != nil {
		return fmt.Errorf("%w: entry %s reversed by %s", ErrAlreadyReversed, e.EntryNumber, *e.ReversedByEntryID)
	}
	if e.ReversalOfEntryID != nil {
		return fmt.Errorf("%w: entry %s reverses %s", ErrAlreadyReversed, e.EntryNumber, *e.ReversalOfEntryID)
	}
	if e.Status != EntryPosted {
		return fmt.Errorf("%w: status %s", ErrEntryNotPosted, e.Status)
	}
	return nil
}

// ReversedLines returns copies of the lines with every side swapped.
// IDs and entry references are cleared for the caller to assign.
func (e *JournalEntry) ReversedLines() []JournalEntryLine {
	out := make([]JournalEntryLine, len(e.Lines))
	for i, l := range e.Lines {
		l.ID = ""
		l.JournalEntryID = ""
		l.Type = l.Type.Opposite()
		l.ReconciliationID = nil
		l.IsReconciled = false
		out[i] = l
	}
	return out
}
