package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// PeriodService manages fiscal periods.
type PeriodService interface {
	CreatePeriod(ctx context.Context, input usecase.CreatePeriodInput) (*domain.FiscalPeriod, error)
	GetPeriod(ctx context.Context, companyID, id string) (*domain.FiscalPeriod, error)
	ListPeriods(ctx context.Context, companyID string) ([]*domain.FiscalPeriod, error)
}

// BooksCloseService runs books close and closes periods.
type BooksCloseService interface {
	RunBooksClose(ctx context.Context, companyID, periodID, initiatorID string) (*domain.BooksCloseRun, error)
	ClosePeriod(ctx context.Context, companyID, periodID, actorID string) (*domain.FiscalPeriod, error)
	GetRun(ctx context.Context, companyID, runID string) (*domain.BooksCloseRun, error)
	ListRunFindings(ctx context.Context, companyID, runID string) ([]*domain.AnomalyDetection, error)
}

// PeriodHandler handles fiscal period and books close requests.
type PeriodHandler struct {
	periods    PeriodService
	booksClose BooksCloseService
}

// NewPeriodHandler creates a new PeriodHandler.
func NewPeriodHandler(periods PeriodService, booksClose BooksCloseService) *PeriodHandler {
	return &PeriodHandler{periods: periods, booksClose: booksClose}
}

// Create opens a new fiscal period.
func (h *PeriodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "companyID"), actor(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	period, err := h.periods.CreatePeriod(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create period", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.PeriodFromDomain(period))
}

// List lists the company's fiscal periods by start date.
func (h *PeriodHandler) List(w http.ResponseWriter, r *http.Request) {
	periods, err := h.periods.ListPeriods(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeDomainError(w, "failed to list periods", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PeriodsFromDomain(periods))
}

// Get returns a fiscal period.
func (h *PeriodHandler) Get(w http.ResponseWriter, r *http.Request) {
	period, err := h.periods.GetPeriod(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "periodID"))
	if err != nil {
		writeDomainError(w, "failed to get period", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PeriodFromDomain(period))
}

// RunBooksClose scans the period for anomalies. A failed run is reported
// with its id so the stored run can be inspected.
func (h *PeriodHandler) RunBooksClose(w http.ResponseWriter, r *http.Request) {
	run, err := h.booksClose.RunBooksClose(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "periodID"), actor(r))
	if err != nil {
		writeDomainError(w, "failed to run books close", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.RunFromDomain(run))
}

// Close closes the period after a clean books close run.
func (h *PeriodHandler) Close(w http.ResponseWriter, r *http.Request) {
	period, err := h.booksClose.ClosePeriod(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "periodID"), actor(r))
	if err != nil {
		writeDomainError(w, "failed to close period", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.PeriodFromDomain(period))
}

// GetRun returns a books close run.
func (h *PeriodHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.booksClose.GetRun(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, "failed to get run", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RunFromDomain(run))
}

// ListRunFindings lists the findings of one run by rank.
func (h *PeriodHandler) ListRunFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := h.booksClose.ListRunFindings(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "runID"))
	if err != nil {
		writeDomainError(w, "failed to list findings", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AnomaliesFromDomain(findings))
}
