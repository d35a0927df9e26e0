package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// JournalRepo implements usecase.JournalRepository.
type JournalRepo struct{ s *Store }

func cloneEntry(e domain.JournalEntry) *domain.JournalEntry {
	e.Lines = append([]domain.JournalEntryLine(nil), e.Lines...)
	return &e
}

func (r *JournalRepo) Create(_ context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	return r.s.write(tx, func(st *state) error {
		for _, e := range st.entries {
			if e.CompanyID == entry.CompanyID && e.EntryNumber == entry.EntryNumber {
				return domain.ErrDuplicateNumber
			}
		}
		st.entries[entry.ID] = *cloneEntry(*entry)
		return nil
	})
}

func (r *JournalRepo) GetByID(_ context.Context, companyID, id string) (*domain.JournalEntry, error) {
	var (
		out *domain.JournalEntry
		err error
	)
	r.s.read(func(st *state) {
		e, ok := st.entries[id]
		if !ok || e.CompanyID != companyID {
			err = domain.ErrEntryNotFound
			return
		}
		out = cloneEntry(e)
	})
	return out, err
}

func (r *JournalRepo) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.JournalEntry, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, companyID, id)
}

func (r *JournalRepo) Update(_ context.Context, tx usecase.Transaction, entry *domain.JournalEntry) error {
	return r.s.write(tx, func(st *state) error {
		stored, ok := st.entries[entry.ID]
		if !ok {
			return domain.ErrEntryNotFound
		}
		updated := *entry
		updated.Lines = stored.Lines
		st.entries[entry.ID] = updated
		return nil
	})
}

func (r *JournalRepo) DeleteLine(_ context.Context, tx usecase.Transaction, entryID, lineID string) error {
	return r.s.write(tx, func(st *state) error {
		e, ok := st.entries[entryID]
		if !ok {
			return domain.ErrEntryNotFound
		}
		lines := make([]domain.JournalEntryLine, 0, len(e.Lines))
		for _, l := range e.Lines {
			if l.ID != lineID {
				lines = append(lines, l)
			}
		}
		if len(lines) == len(e.Lines) {
			return domain.ErrLineNotFound
		}
		e.Lines = lines
		st.entries[entryID] = e
		return nil
	})
}

func (r *JournalRepo) ListByTransaction(_ context.Context, _ usecase.Transaction, companyID, transactionID string) ([]*domain.JournalEntry, error) {
	return r.list(func(e *domain.JournalEntry) bool {
		return e.CompanyID == companyID && e.TransactionID == transactionID
	}), nil
}

func (r *JournalRepo) ListPostedInRange(_ context.Context, companyID string, from, to time.Time) ([]*domain.JournalEntry, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	return r.list(func(e *domain.JournalEntry) bool {
		d := domain.DateOf(e.EntryDate)
		return e.CompanyID == companyID && e.Status == domain.EntryPosted && !d.Before(from) && !d.After(to)
	}), nil
}

func (r *JournalRepo) list(match func(*domain.JournalEntry) bool) []*domain.JournalEntry {
	var out []*domain.JournalEntry
	r.s.read(func(st *state) {
		for _, e := range st.entries {
			if match(&e) {
				out = append(out, cloneEntry(e))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].EntryNumber < out[j].EntryNumber
	})
	return out
}

func (r *JournalRepo) SumPosted(_ context.Context, _ usecase.Transaction, accountID string, asOf *time.Time) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	r.s.read(func(st *state) {
		for _, e := range st.entries {
			if e.Status != domain.EntryPosted {
				continue
			}
			if asOf != nil && domain.DateOf(e.EntryDate).After(domain.DateOf(*asOf)) {
				continue
			}
			for _, l := range e.Lines {
				if l.AccountID != accountID {
					continue
				}
				if l.Type == domain.Debit {
					debit = debit.Add(l.BaseAmount)
				} else {
					credit = credit.Add(l.BaseAmount)
				}
			}
		}
	})
	return debit, credit, nil
}

func (r *JournalRepo) SumPostedCompany(_ context.Context, companyID string) (decimal.Decimal, decimal.Decimal, error) {
	debit, credit := decimal.Zero, decimal.Zero
	r.s.read(func(st *state) {
		for _, e := range st.entries {
			if e.CompanyID != companyID || e.Status != domain.EntryPosted {
				continue
			}
			d, c := domain.SumLines(e.Lines)
			debit, credit = debit.Add(d), credit.Add(c)
		}
	})
	return debit, credit, nil
}

func (r *JournalRepo) ListLinesByAccount(_ context.Context, companyID, accountID string, limit, offset int) ([]domain.JournalEntryLine, error) {
	entries := r.list(func(e *domain.JournalEntry) bool {
		return e.CompanyID == companyID && e.Status == domain.EntryPosted
	})
	var lines []domain.JournalEntryLine
	for _, e := range entries {
		for _, l := range e.Lines {
			if l.AccountID == accountID {
				lines = append(lines, l)
			}
		}
	}
	return page(lines, limit, offset), nil
}

func (r *JournalRepo) NextEntryNumber(_ context.Context, tx usecase.Transaction, companyID string) (string, error) {
	var n int64
	err := r.s.write(tx, func(st *state) error {
		st.entrySeq[companyID]++
		n = st.entrySeq[companyID]
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("JE-%06d", n), nil
}
