package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// ReconciliationService checks stored balances against the journal.
type ReconciliationService interface {
	CheckConsistency(ctx context.Context, companyID string) (*usecase.ConsistencyReport, error)
	ReconcileAccount(ctx context.Context, companyID, accountID string) (*usecase.ReconciliationResult, error)
}

// AuditService verifies and reads the audit chain.
type AuditService interface {
	VerifyRange(ctx context.Context, companyID string, from, to int64) (*domain.VerificationReport, error)
	History(ctx context.Context, companyID string, ref domain.EntityRef, limit, offset int) ([]*domain.AuditLog, error)
}

// LedgerHandler handles ledger-wide operations.
type LedgerHandler struct {
	recon ReconciliationService
	audit AuditService
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(recon ReconciliationService, audit AuditService) *LedgerHandler {
	return &LedgerHandler{recon: recon, audit: audit}
}

// CheckConsistency checks if the ledger is consistent.
func (h *LedgerHandler) CheckConsistency(w http.ResponseWriter, r *http.Request) {
	report, err := h.recon.CheckConsistency(r.Context(), chi.URLParam(r, "companyID"))
	if err != nil {
		writeDomainError(w, "failed to check consistency", err)
		return
	}

	if !report.Consistent() {
		writeJSON(w, http.StatusConflict, dto.ConsistencyResponse{
			Status:     "inconsistent",
			Consistent: false,
			Report:     report,
		})
		return
	}

	writeJSON(w, http.StatusOK, dto.ConsistencyResponse{
		Status:     "consistent",
		Consistent: true,
		Report:     report,
	})
}

// ReconcileAccount compares one account's stored balance with its lines.
func (h *LedgerHandler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	result, err := h.recon.ReconcileAccount(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, "failed to reconcile account", err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// VerifyAuditChain walks the chain between the from and to sequences.
// A broken chain is reported with 200 and valid=false.
func (h *LedgerHandler) VerifyAuditChain(w http.ResponseWriter, r *http.Request) {
	from, err := parseInt64Query(r, "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from", err.Error())
		return
	}
	to, err := parseInt64Query(r, "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to", err.Error())
		return
	}
	if from == 0 {
		from = 1
	}

	report, err := h.audit.VerifyRange(r.Context(), chi.URLParam(r, "companyID"), from, to)
	if err != nil {
		writeDomainError(w, "failed to verify audit chain", err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// AuditHistory lists audit records of one entity, oldest first.
func (h *LedgerHandler) AuditHistory(w http.ResponseWriter, r *http.Request) {
	ref := domain.Ref(domain.EntityKind(r.URL.Query().Get("kind")), r.URL.Query().Get("id"))
	limit := parseIntQuery(r, "limit", 100)
	offset := parseIntQuery(r, "offset", 0)

	logs, err := h.audit.History(r.Context(), chi.URLParam(r, "companyID"), ref, limit, offset)
	if err != nil {
		writeDomainError(w, "failed to load audit history", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditLogsFromDomain(logs))
}
