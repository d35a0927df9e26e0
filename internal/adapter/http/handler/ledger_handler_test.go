package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/adapter/http/middleware"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

type stubReconciliationService struct {
	report *usecase.ConsistencyReport
}

func (s *stubReconciliationService) CheckConsistency(ctx context.Context, companyID string) (*usecase.ConsistencyReport, error) {
	return s.report, nil
}

func (s *stubReconciliationService) ReconcileAccount(ctx context.Context, companyID, accountID string) (*usecase.ReconciliationResult, error) {
	return nil, domain.ErrAccountNotFound
}

type stubAuditService struct {
	from, to int64
	ref      domain.EntityRef
}

func (s *stubAuditService) VerifyRange(ctx context.Context, companyID string, from, to int64) (*domain.VerificationReport, error) {
	s.from, s.to = from, to
	return &domain.VerificationReport{CompanyID: companyID, From: from, To: to, Valid: true}, nil
}

func (s *stubAuditService) History(ctx context.Context, companyID string, ref domain.EntityRef, limit, offset int) ([]*domain.AuditLog, error) {
	s.ref = ref
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return []*domain.AuditLog{{ID: "log-1", Sequence: 1, Auditable: ref}}, nil
}

func newLedgerRouter(h *LedgerHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/companies/{companyID}/ledger/consistency", h.CheckConsistency)
	r.Get("/companies/{companyID}/accounts/{accountID}/reconcile", h.ReconcileAccount)
	r.Get("/companies/{companyID}/audit/verify", h.VerifyAuditChain)
	r.Get("/companies/{companyID}/audit/history", h.AuditHistory)
	return r
}

func TestLedgerHandler_CheckConsistency(t *testing.T) {
	recon := &stubReconciliationService{report: &usecase.ConsistencyReport{
		CompanyID:      "co-1",
		TotalAccounts:  2,
		LedgerBalanced: true,
	}}
	router := newLedgerRouter(NewLedgerHandler(recon, &stubAuditService{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/ledger/consistency", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	recon.report.Discrepancies = []*usecase.ReconciliationResult{{
		AccountID:         "acc-1",
		RecordedBalance:   decimal.NewFromInt(10),
		CalculatedBalance: decimal.NewFromInt(12),
		Difference:        decimal.NewFromInt(2),
	}}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/ledger/consistency", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for an inconsistent ledger, got %d", rec.Code)
	}

	var resp dto.ConsistencyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Consistent || resp.Status != "inconsistent" || len(resp.Report.Discrepancies) != 1 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestLedgerHandler_ReconcileUnknownAccount(t *testing.T) {
	router := newLedgerRouter(NewLedgerHandler(&stubReconciliationService{}, &stubAuditService{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/accounts/nope/reconcile", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestLedgerHandler_VerifyAuditChain(t *testing.T) {
	audit := &stubAuditService{}
	router := newLedgerRouter(NewLedgerHandler(&stubReconciliationService{}, audit))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/audit/verify", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if audit.from != 1 || audit.to != 0 {
		t.Fatalf("expected full range by default, got %d..%d", audit.from, audit.to)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/audit/verify?from=5&to=9", nil))
	if audit.from != 5 || audit.to != 9 {
		t.Fatalf("expected 5..9, got %d..%d", audit.from, audit.to)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/audit/verify?to=x", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad range, got %d", rec.Code)
	}
}

func TestLedgerHandler_AuditHistory(t *testing.T) {
	audit := &stubAuditService{}
	router := newLedgerRouter(NewLedgerHandler(&stubReconciliationService{}, audit))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/audit/history?kind=journal_entry&id=je-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if audit.ref != domain.Ref(domain.KindJournalEntry, "je-1") {
		t.Fatalf("unexpected entity ref %+v", audit.ref)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/audit/history", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without an entity, got %d", rec.Code)
	}
}

type stubAnomalyService struct {
	action usecase.ResolveAction
	rule   usecase.CreateRuleInput
}

func (s *stubAnomalyService) GetOpenAnomalies(ctx context.Context, companyID string) ([]*domain.AnomalyDetection, error) {
	return []*domain.AnomalyDetection{
		{ID: "a-1", Type: domain.DetectionUnbalanced, Severity: domain.SeverityCritical, Status: domain.AnomalyOpen, Rank: 1},
	}, nil
}

func (s *stubAnomalyService) ResolveAnomaly(ctx context.Context, companyID, anomalyID string, action usecase.ResolveAction) (*domain.AnomalyDetection, error) {
	s.action = action
	if action.ActorID == "" {
		return nil, domain.ErrActorRequired
	}
	return &domain.AnomalyDetection{ID: anomalyID, Status: action.Status}, nil
}

func (s *stubAnomalyService) CreateRule(ctx context.Context, input usecase.CreateRuleInput) (*domain.AnomalyRule, error) {
	s.rule = input
	return &domain.AnomalyRule{ID: "rule-1", CompanyID: input.CompanyID, Name: input.Name, Severity: input.Severity, Condition: input.Condition}, nil
}

func newAnomalyRouter(h *AnomalyHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Actor)
	r.Get("/companies/{companyID}/anomalies", h.ListOpen)
	r.Post("/companies/{companyID}/anomalies/{anomalyID}/resolve", h.Resolve)
	r.Post("/companies/{companyID}/anomaly-rules", h.CreateRule)
	return r
}

func TestAnomalyHandler_ListOpen(t *testing.T) {
	router := newAnomalyRouter(NewAnomalyHandler(&stubAnomalyService{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/anomalies", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var findings []dto.AnomalyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &findings); err != nil {
		t.Fatalf("failed to decode findings: %v", err)
	}
	if len(findings) != 1 || findings[0].Severity != "critical" {
		t.Fatalf("unexpected findings %+v", findings)
	}
}

func TestAnomalyHandler_Resolve(t *testing.T) {
	svc := &stubAnomalyService{}
	router := newAnomalyRouter(NewAnomalyHandler(svc))

	req := httptest.NewRequest(http.MethodPost, "/companies/co-1/anomalies/a-1/resolve", strings.NewReader(`{"status":"dismissed","note":"known vendor"}`))
	req.Header.Set(middleware.ActorHeader, "auditor")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.action.Status != domain.AnomalyDismissed || svc.action.ActorID != "auditor" || svc.action.Note != "known vendor" {
		t.Fatalf("unexpected action %+v", svc.action)
	}

	req = httptest.NewRequest(http.MethodPost, "/companies/co-1/anomalies/a-1/resolve", strings.NewReader(`{"status":"resolved"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without an actor, got %d", rec.Code)
	}
}

func TestAnomalyHandler_CreateRule(t *testing.T) {
	svc := &stubAnomalyService{}
	router := newAnomalyRouter(NewAnomalyHandler(svc))

	body := `{"name":"large EUR","severity":"warning","confidence":0.6,
		"condition":{"op":"and","args":[{"op":"eq","field":"currency","value":"EUR"},{"op":"gt","field":"total_amount","value":"10000"}]}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/anomaly-rules", strings.NewReader(body)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.rule.Condition == nil || svc.rule.CompanyID != "co-1" {
		t.Fatalf("expected parsed condition, got %+v", svc.rule)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/anomaly-rules", strings.NewReader(`{"name":"x","condition":{"op":"like","field":"total_amount","value":"1"}}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unknown operator, got %d", rec.Code)
	}
}
