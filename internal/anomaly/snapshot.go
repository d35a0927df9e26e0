package anomaly

import (
	"time"

	"github.com/iho/tripleledger/internal/domain"
)

// Snapshot is the read-only view of a period that detectors scan.
// Detectors share it across goroutines and must not modify it.
type Snapshot struct {
	CompanyID string
	Period    *domain.FiscalPeriod
	// Transactions are every non-deleted transaction dated in the period.
	Transactions []*domain.Transaction
	// Historical are posted transactions dated before the period.
	Historical []*domain.Transaction
	// Entries are posted journal entries in the period, with lines.
	Entries []*domain.JournalEntry
	Rules   []*domain.AnomalyRule
	// Now is the time the run started.
	Now time.Time

	posted []*domain.Transaction
}

// NewSnapshot builds a snapshot and indexes the posted transactions.
func NewSnapshot(
	companyID string,
	period *domain.FiscalPeriod,
	transactions, historical []*domain.Transaction,
	entries []*domain.JournalEntry,
	rules []*domain.AnomalyRule,
	now time.Time,
) *Snapshot {
	s := &Snapshot{
		CompanyID:    companyID,
		Period:       period,
		Transactions: transactions,
		Historical:   historical,
		Entries:      entries,
		Rules:        rules,
		Now:          now,
	}
	for _, t := range transactions {
		if t.Status == domain.TxStatusPosted {
			s.posted = append(s.posted, t)
		}
	}
	return s
}

// Posted returns the posted transactions of the period.
func (s *Snapshot) Posted() []*domain.Transaction {
	return s.posted
}

func (s *Snapshot) periodRef() domain.EntityRef {
	if s.Period == nil {
		return domain.Ref(domain.KindCompany, s.CompanyID)
	}
	return domain.Ref(domain.KindFiscalPeriod, s.Period.ID)
}
