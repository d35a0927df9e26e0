package domain

import (
	"fmt"
	"time"
)

// PeriodStatus is the lifecycle state of a fiscal period.
type PeriodStatus string

const (
	PeriodOpen   PeriodStatus = "open"
	PeriodClosed PeriodStatus = "closed"
	PeriodLocked PeriodStatus = "locked"
)

// FiscalPeriod is a company accounting period. Dates are inclusive and compared
// at day granularity in UTC.
type FiscalPeriod struct {
	ID        string
	CompanyID string
	Name      string
	StartDate time.Time
	EndDate   time.Time
	Status    PeriodStatus
	ClosedAt  *time.Time
	ClosedBy  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the period bounds.
func (p *FiscalPeriod) Validate() error {
	if p.CompanyID == "" {
		return ErrCompanyRequired
	}
	if p.EndDate.Before(p.StartDate) {
		return fmt.Errorf("%w: end %s before start %s", ErrInvalidPeriod,
			p.EndDate.Format(time.DateOnly), p.StartDate.Format(time.DateOnly))
	}
	return nil
}

// IsOpen reports whether entries may be posted into the period.
func (p *FiscalPeriod) IsOpen() bool {
	return p.Status == PeriodOpen
}

// Contains reports whether t falls inside the period.
func (p *FiscalPeriod) Contains(t time.Time) bool {
	d := DateOf(t)
	return !d.Before(DateOf(p.StartDate)) && !d.After(DateOf(p.EndDate))
}

// Overlaps reports whether p and other share at least one day.
func (p *FiscalPeriod) Overlaps(other *FiscalPeriod) bool {
	return !DateOf(p.EndDate).Before(DateOf(other.StartDate)) &&
		!DateOf(other.EndDate).Before(DateOf(p.StartDate))
}

// DayAfterEnd is the fallback start of the following period.
func (p *FiscalPeriod) DayAfterEnd() time.Time {
	return DateOf(p.EndDate).AddDate(0, 0, 1)
}

// DateOf truncates t to midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
