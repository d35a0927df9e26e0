package memory

import (
	"context"
	"sort"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// AnomalyRepo implements usecase.AnomalyRepository.
type AnomalyRepo struct{ s *Store }

func cloneAnomaly(a domain.AnomalyDetection) *domain.AnomalyDetection {
	a.Trail = append([]domain.AnomalyResolution(nil), a.Trail...)
	a.SuggestedActions = append([]string(nil), a.SuggestedActions...)
	return &a
}

func (r *AnomalyRepo) SaveBatch(_ context.Context, tx usecase.Transaction, findings []*domain.AnomalyDetection) error {
	return r.s.write(tx, func(st *state) error {
		for _, f := range findings {
			st.anomalies[f.ID] = *cloneAnomaly(*f)
		}
		return nil
	})
}

func (r *AnomalyRepo) GetByID(_ context.Context, companyID, id string) (*domain.AnomalyDetection, error) {
	var (
		out *domain.AnomalyDetection
		err error
	)
	r.s.read(func(st *state) {
		a, ok := st.anomalies[id]
		if !ok || a.CompanyID != companyID {
			err = domain.ErrAnomalyNotFound
			return
		}
		out = cloneAnomaly(a)
	})
	return out, err
}

func (r *AnomalyRepo) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.AnomalyDetection, error) {
	if err := r.s.checkTx(tx); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, companyID, id)
}

func (r *AnomalyRepo) Update(_ context.Context, tx usecase.Transaction, a *domain.AnomalyDetection) error {
	return r.s.write(tx, func(st *state) error {
		if _, ok := st.anomalies[a.ID]; !ok {
			return domain.ErrAnomalyNotFound
		}
		st.anomalies[a.ID] = *cloneAnomaly(*a)
		return nil
	})
}

func (r *AnomalyRepo) ListUnresolved(_ context.Context, companyID, periodID string) ([]*domain.AnomalyDetection, error) {
	return r.list(func(a *domain.AnomalyDetection) bool {
		return a.CompanyID == companyID && a.Status.Unresolved() &&
			(periodID == "" || a.FiscalPeriodID == periodID)
	}), nil
}

func (r *AnomalyRepo) ListByRun(_ context.Context, companyID, runID string) ([]*domain.AnomalyDetection, error) {
	return r.list(func(a *domain.AnomalyDetection) bool {
		return a.CompanyID == companyID && a.RunID == runID
	}), nil
}

// list orders findings by creation time, then run rank.
func (r *AnomalyRepo) list(match func(*domain.AnomalyDetection) bool) []*domain.AnomalyDetection {
	var out []*domain.AnomalyDetection
	r.s.read(func(st *state) {
		for _, a := range st.anomalies {
			if match(&a) {
				out = append(out, cloneAnomaly(a))
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		if out[i].RunID != out[j].RunID {
			return out[i].RunID < out[j].RunID
		}
		return out[i].Rank < out[j].Rank
	})
	return out
}

// RunRepo implements usecase.RunRepository.
type RunRepo struct{ s *Store }

func (r *RunRepo) Create(_ context.Context, tx usecase.Transaction, run *domain.BooksCloseRun) error {
	return r.s.write(tx, func(st *state) error {
		st.runs[run.ID] = *run
		return nil
	})
}

func (r *RunRepo) Update(_ context.Context, tx usecase.Transaction, run *domain.BooksCloseRun) error {
	return r.s.write(tx, func(st *state) error {
		if _, ok := st.runs[run.ID]; !ok {
			return domain.ErrRunNotFound
		}
		st.runs[run.ID] = *run
		return nil
	})
}

func (r *RunRepo) GetByID(_ context.Context, companyID, id string) (*domain.BooksCloseRun, error) {
	var (
		out *domain.BooksCloseRun
		err error
	)
	r.s.read(func(st *state) {
		run, ok := st.runs[id]
		if !ok || run.CompanyID != companyID {
			err = domain.ErrRunNotFound
			return
		}
		out = &run
	})
	return out, err
}

func (r *RunRepo) LatestForPeriod(_ context.Context, companyID, periodID string) (*domain.BooksCloseRun, error) {
	var out *domain.BooksCloseRun
	r.s.read(func(st *state) {
		for _, run := range st.runs {
			if run.CompanyID != companyID || run.FiscalPeriodID != periodID {
				continue
			}
			if out == nil || run.StartedAt.After(out.StartedAt) ||
				(run.StartedAt.Equal(out.StartedAt) && run.ID > out.ID) {
				run := run
				out = &run
			}
		}
	})
	if out == nil {
		return nil, domain.ErrRunNotFound
	}
	return out, nil
}

// RuleRepo implements usecase.RuleRepository.
type RuleRepo struct{ s *Store }

func (r *RuleRepo) Create(_ context.Context, tx usecase.Transaction, rule *domain.AnomalyRule) error {
	return r.s.write(tx, func(st *state) error {
		st.rules[rule.ID] = *rule
		return nil
	})
}

func (r *RuleRepo) ListActive(_ context.Context, companyID string) ([]*domain.AnomalyRule, error) {
	var out []*domain.AnomalyRule
	r.s.read(func(st *state) {
		for _, rule := range st.rules {
			if rule.CompanyID == companyID && rule.Active {
				rule := rule
				out = append(out, &rule)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
