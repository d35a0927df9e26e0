package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

const periodColumns = `id, company_id, name, start_date, end_date, status, closed_at, closed_by, created_at, updated_at`

// PeriodRepository implements usecase.PeriodRepository.
type PeriodRepository struct {
	db DB
}

// NewPeriodRepository creates a new PeriodRepository.
func NewPeriodRepository(db DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// Create inserts a period unless it overlaps another period of the company.
func (r *PeriodRepository) Create(ctx context.Context, tx usecase.Transaction, period *domain.FiscalPeriod) error {
	q := querier(r.db, tx)
	if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('fiscal_periods:' || $1))`, period.CompanyID); err != nil {
		return err
	}

	var overlaps bool
	err := q.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM fiscal_periods WHERE company_id = $1 AND start_date <= $3 AND end_date >= $2)`,
		period.CompanyID, domain.DateOf(period.StartDate), domain.DateOf(period.EndDate)).Scan(&overlaps)
	if err != nil {
		return err
	}
	if overlaps {
		return domain.ErrPeriodOverlap
	}

	_, err = q.Exec(ctx, `
		INSERT INTO fiscal_periods (id, company_id, name, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		period.ID, period.CompanyID, period.Name, domain.DateOf(period.StartDate), domain.DateOf(period.EndDate),
		string(period.Status), period.CreatedAt, period.UpdatedAt,
	)
	return err
}

// GetByID retrieves a period.
func (r *PeriodRepository) GetByID(ctx context.Context, companyID, id string) (*domain.FiscalPeriod, error) {
	return r.get(ctx, r.db, `SELECT `+periodColumns+` FROM fiscal_periods WHERE company_id = $1 AND id = $2`, companyID, id)
}

// GetForShare takes a share lock so the period cannot close under a posting.
func (r *PeriodRepository) GetForShare(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.FiscalPeriod, error) {
	return r.get(ctx, querier(r.db, tx), `SELECT `+periodColumns+` FROM fiscal_periods
		WHERE company_id = $1 AND id = $2 FOR SHARE`, companyID, id)
}

// GetForUpdate locks the period row exclusively.
func (r *PeriodRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.FiscalPeriod, error) {
	return r.get(ctx, querier(r.db, tx), `SELECT `+periodColumns+` FROM fiscal_periods
		WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
}

// FindByDate returns the period containing date.
func (r *PeriodRepository) FindByDate(ctx context.Context, companyID string, date time.Time) (*domain.FiscalPeriod, error) {
	return r.get(ctx, r.db, `SELECT `+periodColumns+` FROM fiscal_periods
		WHERE company_id = $1 AND start_date <= $2 AND end_date >= $2
		ORDER BY start_date LIMIT 1`, companyID, domain.DateOf(date))
}

// NextAfter returns the first period starting after date.
func (r *PeriodRepository) NextAfter(ctx context.Context, companyID string, date time.Time) (*domain.FiscalPeriod, error) {
	return r.get(ctx, r.db, `SELECT `+periodColumns+` FROM fiscal_periods
		WHERE company_id = $1 AND start_date > $2
		ORDER BY start_date LIMIT 1`, companyID, domain.DateOf(date))
}

func (r *PeriodRepository) get(ctx context.Context, q DB, sql string, args ...any) (*domain.FiscalPeriod, error) {
	p, err := scanPeriod(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrPeriodNotFound
	}
	return p, err
}

// List returns the company periods in start date order.
func (r *PeriodRepository) List(ctx context.Context, companyID string) ([]*domain.FiscalPeriod, error) {
	rows, err := r.db.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
		WHERE company_id = $1 ORDER BY start_date`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var periods []*domain.FiscalPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// Update persists status and closing fields.
func (r *PeriodRepository) Update(ctx context.Context, tx usecase.Transaction, period *domain.FiscalPeriod) error {
	tag, err := querier(r.db, tx).Exec(ctx, `
		UPDATE fiscal_periods SET name = $2, status = $3, closed_at = $4, closed_by = $5, updated_at = $6
		WHERE id = $1`,
		period.ID, period.Name, string(period.Status), period.ClosedAt, period.ClosedBy, period.UpdatedAt,
	)
	return rowsAffectedOr(tag, err, domain.ErrPeriodNotFound)
}

func scanPeriod(row pgx.Row) (*domain.FiscalPeriod, error) {
	var p domain.FiscalPeriod
	err := row.Scan(&p.ID, &p.CompanyID, &p.Name, &p.StartDate, &p.EndDate, &p.Status,
		&p.ClosedAt, &p.ClosedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}
