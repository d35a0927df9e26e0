package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// PeriodRepo implements usecase.PeriodRepository.
type PeriodRepo struct{ s *Store }

func (r *PeriodRepo) Create(_ context.Context, tx usecase.Transaction, period *domain.FiscalPeriod) error {
	return r.s.write(tx, func(st *state) error {
		for _, p := range st.periods {
			if p.CompanyID == period.CompanyID && p.Overlaps(period) {
				return domain.ErrPeriodOverlap
			}
		}
		st.periods[period.ID] = *period
		return nil
	})
}

func (r *PeriodRepo) GetByID(_ context.Context, companyID, id string) (*domain.FiscalPeriod, error) {
	var (
		out *domain.FiscalPeriod
		err error
	)
	r.s.read(func(st *state) {
		p, ok := st.periods[id]
		if !ok || p.CompanyID != companyID {
			err = domain.ErrPeriodNotFound
			return
		}
		out = &p
	})
	return out, err
}

func (r *PeriodRepo) GetForShare(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.FiscalPeriod, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, companyID, id)
}

func (r *PeriodRepo) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.FiscalPeriod, error) {
	return r.GetForShare(ctx, tx, companyID, id)
}

func (r *PeriodRepo) FindByDate(ctx context.Context, companyID string, date time.Time) (*domain.FiscalPeriod, error) {
	periods, _ := r.List(ctx, companyID)
	for _, p := range periods {
		if p.Contains(date) {
			return p, nil
		}
	}
	return nil, domain.ErrPeriodNotFound
}

func (r *PeriodRepo) NextAfter(ctx context.Context, companyID string, date time.Time) (*domain.FiscalPeriod, error) {
	periods, _ := r.List(ctx, companyID)
	day := domain.DateOf(date)
	for _, p := range periods {
		if domain.DateOf(p.StartDate).After(day) {
			return p, nil
		}
	}
	return nil, domain.ErrPeriodNotFound
}

// List returns the company periods ordered by start date.
func (r *PeriodRepo) List(_ context.Context, companyID string) ([]*domain.FiscalPeriod, error) {
	var out []*domain.FiscalPeriod
	r.s.read(func(st *state) {
		for _, p := range st.periods {
			if p.CompanyID == companyID {
				p := p
				out = append(out, &p)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (r *PeriodRepo) Update(_ context.Context, tx usecase.Transaction, period *domain.FiscalPeriod) error {
	return r.s.write(tx, func(st *state) error {
		if _, ok := st.periods[period.ID]; !ok {
			return domain.ErrPeriodNotFound
		}
		st.periods[period.ID] = *period
		return nil
	})
}
