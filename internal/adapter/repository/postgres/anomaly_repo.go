package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

const anomalyColumns = `id, company_id, run_id, fiscal_period_id, type, severity, status, entity_kind, entity_id,
	confidence, title, description, detection_data, suggested_actions, rank, trail, reviewed_by, reviewed_at,
	resolved_by, resolved_at, created_at, updated_at`

// AnomalyRepository implements usecase.AnomalyRepository.
type AnomalyRepository struct {
	db DB
}

// NewAnomalyRepository creates a new AnomalyRepository.
func NewAnomalyRepository(db DB) *AnomalyRepository {
	return &AnomalyRepository{db: db}
}

// SaveBatch inserts the findings of one run.
func (r *AnomalyRepository) SaveBatch(ctx context.Context, tx usecase.Transaction, findings []*domain.AnomalyDetection) error {
	q := querier(r.db, tx)
	for _, f := range findings {
		data, trail, actions, err := anomalyJSON(f)
		if err != nil {
			return err
		}
		_, err = q.Exec(ctx, `
			INSERT INTO anomaly_detections (id, company_id, run_id, fiscal_period_id, type, severity, status,
				entity_kind, entity_id, confidence, title, description, detection_data, suggested_actions,
				rank, trail, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			f.ID, f.CompanyID, f.RunID, f.FiscalPeriodID, string(f.Type), string(f.Severity), string(f.Status),
			string(f.Entity.Kind), f.Entity.ID, f.Confidence, f.Title, f.Description, data, actions,
			f.Rank, trail, f.CreatedAt, f.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert anomaly %s: %w", f.ID, err)
		}
	}
	return nil
}

// GetByID retrieves a finding.
func (r *AnomalyRepository) GetByID(ctx context.Context, companyID, id string) (*domain.AnomalyDetection, error) {
	return r.get(ctx, r.db, `SELECT `+anomalyColumns+` FROM anomaly_detections WHERE company_id = $1 AND id = $2`, companyID, id)
}

// GetForUpdate retrieves a finding and locks its row.
func (r *AnomalyRepository) GetForUpdate(ctx context.Context, tx usecase.Transaction, companyID, id string) (*domain.AnomalyDetection, error) {
	return r.get(ctx, querier(r.db, tx), `SELECT `+anomalyColumns+` FROM anomaly_detections
		WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id)
}

func (r *AnomalyRepository) get(ctx context.Context, q DB, sql string, args ...any) (*domain.AnomalyDetection, error) {
	a, err := scanAnomaly(q.QueryRow(ctx, sql, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAnomalyNotFound
	}
	return a, err
}

// Update persists the review state of a finding.
func (r *AnomalyRepository) Update(ctx context.Context, tx usecase.Transaction, a *domain.AnomalyDetection) error {
	_, trail, _, err := anomalyJSON(a)
	if err != nil {
		return err
	}
	tag, err := querier(r.db, tx).Exec(ctx, `
		UPDATE anomaly_detections SET status = $2, trail = $3, reviewed_by = $4, reviewed_at = $5,
			resolved_by = $6, resolved_at = $7, updated_at = $8
		WHERE id = $1`,
		a.ID, string(a.Status), trail, a.ReviewedBy, a.ReviewedAt, a.ResolvedBy, a.ResolvedAt, a.UpdatedAt,
	)
	return rowsAffectedOr(tag, err, domain.ErrAnomalyNotFound)
}

// ListUnresolved returns open and reviewed findings; periodID "" matches all periods.
func (r *AnomalyRepository) ListUnresolved(ctx context.Context, companyID, periodID string) ([]*domain.AnomalyDetection, error) {
	return r.list(ctx, `SELECT `+anomalyColumns+` FROM anomaly_detections
		WHERE company_id = $1 AND status IN ('open', 'reviewed') AND ($2 = '' OR fiscal_period_id = $2)
		ORDER BY created_at, run_id, rank`, companyID, periodID)
}

// ListByRun returns the findings of one run in rank order.
func (r *AnomalyRepository) ListByRun(ctx context.Context, companyID, runID string) ([]*domain.AnomalyDetection, error) {
	return r.list(ctx, `SELECT `+anomalyColumns+` FROM anomaly_detections
		WHERE company_id = $1 AND run_id = $2 ORDER BY created_at, run_id, rank`, companyID, runID)
}

func (r *AnomalyRepository) list(ctx context.Context, sql string, args ...any) ([]*domain.AnomalyDetection, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AnomalyDetection
	for rows.Next() {
		a, err := scanAnomaly(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func anomalyJSON(a *domain.AnomalyDetection) (data, trail []byte, actions []string, err error) {
	if data, err = jsonColumn(a.Data); err != nil {
		return nil, nil, nil, err
	}
	steps := a.Trail
	if steps == nil {
		steps = []domain.AnomalyResolution{}
	}
	if trail, err = marshalJSON(steps); err != nil {
		return nil, nil, nil, err
	}
	actions = a.SuggestedActions
	if actions == nil {
		actions = []string{}
	}
	return data, trail, actions, nil
}

func scanAnomaly(row pgx.Row) (*domain.AnomalyDetection, error) {
	var (
		a           domain.AnomalyDetection
		data, trail []byte
	)
	err := row.Scan(&a.ID, &a.CompanyID, &a.RunID, &a.FiscalPeriodID, &a.Type, &a.Severity, &a.Status,
		&a.Entity.Kind, &a.Entity.ID, &a.Confidence, &a.Title, &a.Description, &data, &a.SuggestedActions,
		&a.Rank, &trail, &a.ReviewedBy, &a.ReviewedAt, &a.ResolvedBy, &a.ResolvedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Data, err = unmarshalJSON[domain.JSON](data); err != nil {
		return nil, fmt.Errorf("decode detection data of %s: %w", a.ID, err)
	}
	if a.Trail, err = unmarshalJSON[[]domain.AnomalyResolution](trail); err != nil {
		return nil, fmt.Errorf("decode trail of %s: %w", a.ID, err)
	}
	return &a, nil
}

// RunRepository implements usecase.RunRepository.
type RunRepository struct {
	db DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `id, company_id, fiscal_period_id, initiated_by, status, started_at, completed_at,
	transactions_processed, anomalies_found, critical_count, warning_count, info_count, counts_by_type,
	summary, error_message`

// Create inserts a run record.
func (r *RunRepository) Create(ctx context.Context, tx usecase.Transaction, run *domain.BooksCloseRun) error {
	counts, summary, err := runJSON(run)
	if err != nil {
		return err
	}
	_, err = querier(r.db, tx).Exec(ctx, `
		INSERT INTO books_close_runs (id, company_id, fiscal_period_id, initiated_by, status, started_at,
			completed_at, transactions_processed, anomalies_found, critical_count, warning_count, info_count,
			counts_by_type, summary, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		run.ID, run.CompanyID, run.FiscalPeriodID, run.InitiatedBy, string(run.Status), run.StartedAt,
		run.CompletedAt, run.TransactionsProcessed, run.AnomaliesFound, run.CriticalCount, run.WarningCount,
		run.InfoCount, counts, summary, run.ErrorMessage,
	)
	return err
}

// Update persists the outcome of a run.
func (r *RunRepository) Update(ctx context.Context, tx usecase.Transaction, run *domain.BooksCloseRun) error {
	counts, summary, err := runJSON(run)
	if err != nil {
		return err
	}
	tag, err := querier(r.db, tx).Exec(ctx, `
		UPDATE books_close_runs SET status = $2, completed_at = $3, transactions_processed = $4,
			anomalies_found = $5, critical_count = $6, warning_count = $7, info_count = $8,
			counts_by_type = $9, summary = $10, error_message = $11
		WHERE id = $1`,
		run.ID, string(run.Status), run.CompletedAt, run.TransactionsProcessed, run.AnomaliesFound,
		run.CriticalCount, run.WarningCount, run.InfoCount, counts, summary, run.ErrorMessage,
	)
	return rowsAffectedOr(tag, err, domain.ErrRunNotFound)
}

// GetByID retrieves a run.
func (r *RunRepository) GetByID(ctx context.Context, companyID, id string) (*domain.BooksCloseRun, error) {
	return r.get(ctx, `SELECT `+runColumns+` FROM books_close_runs WHERE company_id = $1 AND id = $2`, companyID, id)
}

// LatestForPeriod returns the most recently started run of a period.
func (r *RunRepository) LatestForPeriod(ctx context.Context, companyID, periodID string) (*domain.BooksCloseRun, error) {
	return r.get(ctx, `SELECT `+runColumns+` FROM books_close_runs
		WHERE company_id = $1 AND fiscal_period_id = $2
		ORDER BY started_at DESC, id DESC LIMIT 1`, companyID, periodID)
}

func (r *RunRepository) get(ctx context.Context, sql string, args ...any) (*domain.BooksCloseRun, error) {
	var (
		run             domain.BooksCloseRun
		counts, summary []byte
	)
	err := r.db.QueryRow(ctx, sql, args...).Scan(&run.ID, &run.CompanyID, &run.FiscalPeriodID, &run.InitiatedBy,
		&run.Status, &run.StartedAt, &run.CompletedAt, &run.TransactionsProcessed, &run.AnomaliesFound,
		&run.CriticalCount, &run.WarningCount, &run.InfoCount, &counts, &summary, &run.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}
	if run.CountsByType, err = unmarshalJSON[map[domain.DetectionType]int](counts); err != nil {
		return nil, fmt.Errorf("decode counts of run %s: %w", run.ID, err)
	}
	if run.Summary, err = unmarshalJSON[domain.JSON](summary); err != nil {
		return nil, fmt.Errorf("decode summary of run %s: %w", run.ID, err)
	}
	return &run, nil
}

func runJSON(run *domain.BooksCloseRun) (counts, summary []byte, err error) {
	byType := run.CountsByType
	if byType == nil {
		byType = map[domain.DetectionType]int{}
	}
	if counts, err = marshalJSON(byType); err != nil {
		return nil, nil, err
	}
	summary, err = jsonColumn(run.Summary)
	return counts, summary, err
}

// RuleRepository implements usecase.RuleRepository.
type RuleRepository struct {
	db DB
}

// NewRuleRepository creates a new RuleRepository.
func NewRuleRepository(db DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// Create stores a rule with its condition in tagged JSON form.
func (r *RuleRepository) Create(ctx context.Context, tx usecase.Transaction, rule *domain.AnomalyRule) error {
	condition, err := marshalJSON(rule.Condition.Node())
	if err != nil {
		return err
	}
	_, err = querier(r.db, tx).Exec(ctx, `
		INSERT INTO anomaly_rules (id, company_id, name, description, severity, confidence, active, condition,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rule.ID, rule.CompanyID, rule.Name, rule.Description, string(rule.Severity), rule.Confidence,
		rule.Active, condition, rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// ListActive returns the active rules of a company.
func (r *RuleRepository) ListActive(ctx context.Context, companyID string) ([]*domain.AnomalyRule, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, company_id, name, description, severity, confidence, active, condition, created_at, updated_at
		FROM anomaly_rules WHERE company_id = $1 AND active ORDER BY id`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AnomalyRule
	for rows.Next() {
		var (
			rule      domain.AnomalyRule
			condition []byte
		)
		if err := rows.Scan(&rule.ID, &rule.CompanyID, &rule.Name, &rule.Description, &rule.Severity,
			&rule.Confidence, &rule.Active, &condition, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		if rule.Condition, err = domain.ParseRule(condition); err != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, err)
		}
		out = append(out, &rule)
	}
	return out, rows.Err()
}
