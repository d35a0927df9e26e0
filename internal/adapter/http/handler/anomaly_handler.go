package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// AnomalyService defines the review workflow used by AnomalyHandler.
type AnomalyService interface {
	GetOpenAnomalies(ctx context.Context, companyID string) ([]*domain.AnomalyDetection, error)
	ResolveAnomaly(ctx context.Context, companyID, anomalyID string, action usecase.ResolveAction) (*domain.AnomalyDetection, error)
	CreateRule(ctx context.Context, input usecase.CreateRuleInput) (*domain.AnomalyRule, error)
}

// AnomalyHandler handles anomaly review requests.
type AnomalyHandler struct {
	anomalies AnomalyService
}

// NewAnomalyHandler creates a new AnomalyHandler.
func NewAnomalyHandler(anomalies AnomalyService) *AnomalyHandler {
	return &AnomalyHandler{anomalies: anomalies}
}

// ListOpen lists unresolved findings, most severe first.
func (h *AnomalyHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	findings, err := h.anomalies.GetOpenAnomalies(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeDomainError(w, "failed to list anomalies", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AnomaliesFromDomain(findings))
}

// Resolve moves a finding to reviewed, resolved or dismissed.
func (h *AnomalyHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req dto.ResolveAnomalyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	finding, err := h.anomalies.ResolveAnomaly(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "anomalyID"), req.ToAction(actor(r)))
	if err != nil {
		writeDomainError(w, "failed to resolve anomaly", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AnomalyFromDomain(finding))
}

// CreateRule stores a custom rule evaluated by later runs.
func (h *AnomalyHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "companyID"), actor(r))
	if err != nil {
		writeDomainError(w, "invalid rule", err)
		return
	}

	rule, err := h.anomalies.CreateRule(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create rule", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RuleFromDomain(rule))
}
