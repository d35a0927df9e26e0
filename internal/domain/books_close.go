package domain

import "time"

// RunStatus is the state of a books close run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// BooksCloseRun records one anomaly detection pass over a fiscal period.
type BooksCloseRun struct {
	ID                    string
	CompanyID             string
	FiscalPeriodID        string
	InitiatedBy           string
	Status                RunStatus
	StartedAt             time.Time
	CompletedAt           *time.Time
	TransactionsProcessed int
	AnomaliesFound        int
	CriticalCount         int
	WarningCount          int
	InfoCount             int
	CountsByType          map[DetectionType]int
	Summary               JSON
	ErrorMessage          *string
}

// Complete tallies findings and moves the run to completed.
func (r *BooksCloseRun) Complete(findings []AnomalyDetection, processed int, summary JSON, at time.Time) {
	r.TransactionsProcessed = processed
	r.AnomaliesFound = len(findings)
	r.CriticalCount, r.WarningCount, r.InfoCount = 0, 0, 0
	r.CountsByType = make(map[DetectionType]int)
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			r.CriticalCount++
		case SeverityWarning:
			r.WarningCount++
		default:
			r.InfoCount++
		}
		r.CountsByType[f.Type]++
	}
	r.Summary = summary
	r.Status = RunCompleted
	r.CompletedAt = &at
}

// Fail moves the run to failed with the error message.
func (r *BooksCloseRun) Fail(err error, at time.Time) {
	msg := err.Error()
	r.Status = RunFailed
	r.ErrorMessage = &msg
	r.CompletedAt = &at
}

// IsTerminal reports whether the run has finished.
func (r *BooksCloseRun) IsTerminal() bool {
	return r.Status == RunCompleted || r.Status == RunFailed
}
