package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// TransactionRepo implements usecase.TransactionRepository.
type TransactionRepo struct{ s *Store }

func (r *TransactionRepo) Create(_ context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	return r.s.write(tx, func(st *state) error {
		for _, existing := range st.transactions {
			if existing.CompanyID == t.CompanyID && existing.Type == t.Type && existing.Number == t.Number {
				return domain.ErrDuplicateNumber
			}
		}
		st.transactions[t.ID] = *t
		return nil
	})
}

func (r *TransactionRepo) GetByID(_ context.Context, companyID, id string) (*domain.Transaction, error) {
	var (
		out *domain.Transaction
		err error
	)
	r.s.read(func(st *state) {
		t, ok := st.transactions[id]
		if !ok || t.CompanyID != companyID || t.DeletedAt != nil {
			err = domain.ErrTransactionNotFound
			return
		}
		out = &t
	})
	return out, err
}

func (r *TransactionRepo) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.Transaction, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, companyID, id)
}

func (r *TransactionRepo) Update(_ context.Context, tx usecase.Transaction, t *domain.Transaction) error {
	return r.s.write(tx, func(st *state) error {
		if _, ok := st.transactions[t.ID]; !ok {
			return domain.ErrTransactionNotFound
		}
		st.transactions[t.ID] = *t
		return nil
	})
}

func (r *TransactionRepo) ListInRange(_ context.Context, companyID string, from, to time.Time) ([]*domain.Transaction, error) {
	from, to = domain.DateOf(from), domain.DateOf(to)
	return r.list(func(t *domain.Transaction) bool {
		d := domain.DateOf(t.TransactionDate)
		return t.CompanyID == companyID && !d.Before(from) && !d.After(to)
	}), nil
}

func (r *TransactionRepo) ListPostedBefore(_ context.Context, companyID string, before time.Time) ([]*domain.Transaction, error) {
	before = domain.DateOf(before)
	return r.list(func(t *domain.Transaction) bool {
		return t.CompanyID == companyID && t.Status == domain.TxStatusPosted &&
			domain.DateOf(t.TransactionDate).Before(before)
	}), nil
}

func (r *TransactionRepo) list(match func(*domain.Transaction) bool) []*domain.Transaction {
	var out []*domain.Transaction
	r.s.read(func(st *state) {
		for _, t := range st.transactions {
			t := t
			if t.DeletedAt == nil && match(&t) {
				out = append(out, &t)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.TransactionDate.Equal(b.TransactionDate) {
			return a.TransactionDate.Before(b.TransactionDate)
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.ID < b.ID
	})
	return out
}
