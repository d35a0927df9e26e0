package usecase

import (
	"context"
	"fmt"

	"github.com/iho/tripleledger/internal/anomaly"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/infrastructure/metrics"
)

// AnomalyUseCase serves the review workflow for books close findings.
type AnomalyUseCase struct {
	txManager   TransactionManager
	anomalyRepo AnomalyRepository
	ruleRepo    RuleRepository
	outboxRepo  OutboxRepository
	audit       *AuditUseCase
	idGen       IDGenerator
	clock       Clock
	metrics     *metrics.Metrics
}

// NewAnomalyUseCase creates a new AnomalyUseCase.
func NewAnomalyUseCase(
	txManager TransactionManager,
	anomalyRepo AnomalyRepository,
	ruleRepo RuleRepository,
	outboxRepo OutboxRepository,
	audit *AuditUseCase,
	idGen IDGenerator,
	clock Clock,
	metrics *metrics.Metrics,
) *AnomalyUseCase {
	if clock == nil {
		clock = SystemClock{}
	}
	return &AnomalyUseCase{
		txManager:   txManager,
		anomalyRepo: anomalyRepo,
		ruleRepo:    ruleRepo,
		outboxRepo:  outboxRepo,
		audit:       audit,
		idGen:       idGen,
		clock:       clock,
		metrics:     metrics,
	}
}

// ResolveAction is one review transition requested by a user.
type ResolveAction struct {
	Status  domain.AnomalyStatus
	ActorID string
	Note    string
}

// GetOpenAnomalies returns open and reviewed findings, most severe first.
func (uc *AnomalyUseCase) GetOpenAnomalies(ctx context.Context, companyID string) ([]*domain.AnomalyDetection, error) {
	if companyID == "" {
		return nil, domain.ErrCompanyRequired
	}
	found, err := uc.anomalyRepo.ListUnresolved(ctx, companyID, "")
	if err != nil {
		return nil, err
	}
	values := make([]domain.AnomalyDetection, len(found))
	for i, a := range found {
		values[i] = *a
	}
	// Ranking renumbers the copies; stored ranks stay per run.
	anomaly.Rank(values)
	out := make([]*domain.AnomalyDetection, len(values))
	for i := range values {
		out[i] = &values[i]
	}
	return out, nil
}

// ResolveAnomaly applies one review transition and appends it to the trail.
func (uc *AnomalyUseCase) ResolveAnomaly(ctx context.Context, companyID, anomalyID string, action ResolveAction) (*domain.AnomalyDetection, error) {
	if action.ActorID == "" {
		return nil, domain.ErrActorRequired
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	a, err := uc.anomalyRepo.GetForUpdate(txCtx, tx, companyID, anomalyID)
	if err != nil {
		return nil, err
	}

	now := uc.clock.Now()
	old := anomalyState(a)
	if err := a.Apply(action.Status, action.ActorID, action.Note, now); err != nil {
		return nil, err
	}
	if err := uc.anomalyRepo.Update(txCtx, tx, a); err != nil {
		return nil, err
	}

	batch := uc.audit.batch(tx, companyID, action.ActorID)
	newState := anomalyState(a)
	if action.Note != "" {
		newState["note"] = action.Note
	}
	if err := batch.record(txCtx, domain.Ref(domain.KindAnomaly, a.ID), domain.AuditResolved, old, newState); err != nil {
		return nil, err
	}
	err = emit(txCtx, tx, uc.outboxRepo, uc.idGen, companyID,
		domain.AggregateTypeAnomaly, a.ID, domain.EventTypeAnomalyResolved,
		domain.AnomalyResolvedEvent{AnomalyID: a.ID, Status: string(a.Status), ActorID: action.ActorID}, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AnomaliesResolved.WithLabelValues(string(a.Status)).Inc()
	}
	return a, nil
}

// CreateRuleInput represents input for a company anomaly rule.
type CreateRuleInput struct {
	CompanyID   string
	Name        string
	Description string
	Severity    domain.Severity
	Confidence  float64
	Condition   domain.Expr
	ActorID     string
}

// CreateRule stores an active custom rule evaluated by later runs.
func (uc *AnomalyUseCase) CreateRule(ctx context.Context, input CreateRuleInput) (*domain.AnomalyRule, error) {
	now := uc.clock.Now()
	rule := &domain.AnomalyRule{
		ID:          uc.idGen.Generate(),
		CompanyID:   input.CompanyID,
		Name:        input.Name,
		Description: input.Description,
		Severity:    input.Severity,
		Confidence:  input.Confidence,
		Active:      true,
		Condition:   input.Condition,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	txCtx, cancel := context.WithTimeout(ctx, DefaultTransactionTimeout)
	defer cancel()

	tx, err := uc.txManager.Begin(txCtx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(txCtx) }()

	if err := uc.ruleRepo.Create(txCtx, tx, rule); err != nil {
		return nil, fmt.Errorf("create anomaly rule: %w", err)
	}
	batch := uc.audit.batch(tx, input.CompanyID, actorOrSystem(input.ActorID))
	state := domain.JSON{
		"name":       rule.Name,
		"severity":   string(rule.Severity),
		"confidence": rule.Confidence,
		"condition":  domain.MarshalState(rule.Condition.Node()),
	}
	if err := batch.record(txCtx, domain.Ref(domain.KindAnomalyRule, rule.ID), domain.AuditCreated, nil, state); err != nil {
		return nil, err
	}
	if err := tx.Commit(txCtx); err != nil {
		return nil, err
	}
	return rule, nil
}
