package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every concrete domain error unwraps to exactly one of these,
// so callers can branch on the category with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrState        = errors.New("invalid state transition")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrIntegrity    = errors.New("integrity violation")
	ErrRunFailure   = errors.New("books close run failed")
	errPeriodClosed = errors.New("period closed")
)

// Error is a concrete domain error tagged with its kind.
type Error struct {
	kind error
	msg  string
}

func newError(kind error, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Unwrap returns the error kind.
func (e *Error) Unwrap() error { return e.kind }

var (
	// Money and line validation
	ErrInvalidAmount       = newError(ErrValidation, "amount must be positive")
	ErrAmountScale         = newError(ErrValidation, "amount has more than 4 fractional digits")
	ErrInvalidExchangeRate = newError(ErrValidation, "exchange rate must be positive")
	ErrInvalidLineType     = newError(ErrValidation, "line type must be debit or credit")
	ErrNoLines             = newError(ErrValidation, "journal entry requires at least one debit and one credit line")
	ErrUnbalanced          = newError(ErrValidation, "journal entry is not balanced")
	ErrVoidReasonRequired  = newError(ErrValidation, "void reason is required")
	ErrInvalidCurrency     = newError(ErrValidation, "invalid currency code")
	ErrCurrencyMismatch    = newError(ErrValidation, "line currency does not match account currency")
	ErrCompanyMismatch     = newError(ErrValidation, "entity belongs to another company")
	ErrCompanyRequired     = newError(ErrValidation, "company id is required")
	ErrActorRequired       = newError(ErrValidation, "actor id is required")
	ErrInvalidAccountName  = newError(ErrValidation, "invalid account name")
	ErrInvalidAccountType  = newError(ErrValidation, "invalid account type")
	ErrInvalidTxType       = newError(ErrValidation, "invalid transaction type")
	ErrInvalidNumber       = newError(ErrValidation, "transaction number is required")
	ErrInvalidPeriod       = newError(ErrValidation, "invalid fiscal period bounds")
	ErrPeriodOverlap       = newError(ErrValidation, "fiscal period overlaps an existing period")
	ErrInvalidRule         = newError(ErrValidation, "invalid anomaly rule")
	ErrInvalidRange        = newError(ErrValidation, "invalid audit range")
	ErrInvalidEntityRef    = newError(ErrValidation, "invalid entity reference")

	// Lookups
	ErrAccountNotFound     = newError(ErrNotFound, "account not found")
	ErrTransactionNotFound = newError(ErrNotFound, "transaction not found")
	ErrEntryNotFound       = newError(ErrNotFound, "journal entry not found")
	ErrLineNotFound        = newError(ErrNotFound, "journal entry line not found")
	ErrPeriodNotFound      = newError(ErrNotFound, "fiscal period not found")
	ErrAnomalyNotFound     = newError(ErrNotFound, "anomaly detection not found")
	ErrRunNotFound         = newError(ErrNotFound, "books close run not found")
	ErrRuleNotFound        = newError(ErrNotFound, "anomaly rule not found")
	ErrAuditLogNotFound    = newError(ErrNotFound, "audit log not found")

	// State transitions
	ErrEntryNotDraft         = newError(ErrState, "journal entry is not a draft")
	ErrEntryNotPosted        = newError(ErrState, "journal entry is not posted")
	ErrAlreadyReversed       = newError(ErrState, "already reversed")
	ErrReversalImmutable     = newError(ErrState, "entry belongs to a reversal pair")
	ErrTransactionImmutable  = newError(ErrState, "posted transaction is immutable")
	ErrTransactionNotPosted  = newError(ErrState, "transaction is not posted")
	ErrAccountDeleted        = newError(ErrState, "account is deleted")
	ErrAnomalyTransition     = newError(ErrState, "anomaly status transition not allowed")
	ErrRunNotCompleted       = newError(ErrState, "no completed books close run for period")
	ErrCriticalAnomaliesOpen = newError(ErrState, "period has unresolved critical anomalies")

	// Period
	ErrPeriodClosed = newError(errPeriodClosed, "fiscal period is not open")

	// Conflicts
	ErrDuplicateNumber = newError(ErrConflict, "number already used")
	ErrRunInProgress   = newError(ErrConflict, "books close run already in progress")

	// Integrity
	ErrChainBroken = newError(ErrIntegrity, "audit chain broken")
)

// IsPeriodClosed reports whether err is a closed-period rejection.
func IsPeriodClosed(err error) bool {
	return errors.Is(err, errPeriodClosed)
}

// RunFailedError is returned when a books close run ends in the failed state.
type RunFailedError struct {
	RunID string
	Err   error
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf("books close run %s failed: %v", e.RunID, e.Err)
}

func (e *RunFailedError) Unwrap() []error {
	return []error{ErrRunFailure, e.Err}
}
