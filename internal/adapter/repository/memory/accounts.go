package memory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// AccountRepo implements usecase.AccountRepository.
type AccountRepo struct{ s *Store }

func (r *AccountRepo) Create(_ context.Context, tx usecase.Transaction, account *domain.Account) error {
	return r.s.write(tx, func(st *state) error {
		for _, a := range st.accounts {
			if a.CompanyID == account.CompanyID && a.Code != "" && a.Code == account.Code && a.DeletedAt == nil {
				return domain.ErrDuplicateNumber
			}
		}
		st.accounts[account.ID] = *account
		return nil
	})
}

func (r *AccountRepo) GetByID(_ context.Context, companyID, id string) (*domain.Account, error) {
	var (
		out *domain.Account
		err error
	)
	r.s.read(func(st *state) {
		a, ok := st.accounts[id]
		if !ok || a.CompanyID != companyID {
			err = domain.ErrAccountNotFound
			return
		}
		out = &a
	})
	return out, err
}

func (r *AccountRepo) GetByIDsForUpdate(_ context.Context, tx usecase.Transaction, companyID string, ids []string) ([]*domain.Account, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	var out []*domain.Account
	r.s.read(func(st *state) {
		for _, id := range ids {
			if a, ok := st.accounts[id]; ok && a.CompanyID == companyID {
				out = append(out, &a)
			}
		}
	})
	return out, nil
}

func (r *AccountRepo) UpdateBalance(_ context.Context, tx usecase.Transaction, id string, balance decimal.Decimal, updatedAt time.Time) error {
	return r.s.write(tx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.CurrentBalance = balance
		a.UpdatedAt = updatedAt
		st.accounts[id] = a
		return nil
	})
}

func (r *AccountRepo) SoftDelete(_ context.Context, tx usecase.Transaction, id string, deletedAt time.Time) error {
	return r.s.write(tx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return domain.ErrAccountNotFound
		}
		a.DeletedAt = &deletedAt
		a.UpdatedAt = deletedAt
		st.accounts[id] = a
		return nil
	})
}

func (r *AccountRepo) List(_ context.Context, companyID string, limit, offset int) ([]*domain.Account, error) {
	var all []*domain.Account
	r.s.read(func(st *state) {
		for _, a := range st.accounts {
			if a.CompanyID == companyID && a.DeletedAt == nil {
				a := a
				all = append(all, &a)
			}
		}
	})
	sort.Slice(all, func(i, j int) bool {
		if all[i].Code != all[j].Code {
			return all[i].Code < all[j].Code
		}
		return all[i].ID < all[j].ID
	})
	return page(all, limit, offset), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
