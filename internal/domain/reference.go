package domain

import "fmt"

// EntityKind enumerates the entity types an EntityRef may point at.
type EntityKind string

const (
	KindAccount          EntityKind = "account"
	KindTransaction      EntityKind = "transaction"
	KindJournalEntry     EntityKind = "journal_entry"
	KindJournalEntryLine EntityKind = "journal_entry_line"
	KindFiscalPeriod     EntityKind = "fiscal_period"
	KindAnomaly          EntityKind = "anomaly_detection"
	KindBooksCloseRun    EntityKind = "books_close_run"
	KindAnomalyRule      EntityKind = "anomaly_rule"
	KindCompany          EntityKind = "company"
)

// Valid reports whether k is one of the known kinds.
func (k EntityKind) Valid() bool {
	switch k {
	case KindAccount, KindTransaction, KindJournalEntry, KindJournalEntryLine,
		KindFiscalPeriod, KindAnomaly, KindBooksCloseRun, KindAnomalyRule, KindCompany:
		return true
	}
	return false
}

// EntityRef is a typed pointer to any auditable or detectable entity.
type EntityRef struct {
	Kind EntityKind `json:"kind"`
	ID   string     `json:"id"`
}

// Ref builds an EntityRef.
func Ref(kind EntityKind, id string) EntityRef {
	return EntityRef{Kind: kind, ID: id}
}

// Validate checks the kind and that an id is present.
func (r EntityRef) Validate() error {
	if !r.Kind.Valid() || r.ID == "" {
		return fmt.Errorf("%w: %s/%s", ErrInvalidEntityRef, r.Kind, r.ID)
	}
	return nil
}

func (r EntityRef) String() string {
	return string(r.Kind) + ":" + r.ID
}
