package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// DocumentService defines the behavior needed by DocumentHandler.
type DocumentService interface {
	PostDocument(ctx context.Context, input usecase.PostDocumentInput) (*domain.Transaction, *domain.JournalEntry, error)
	VoidDocument(ctx context.Context, companyID, transactionID, reason, actorID string) error
	ReverseDocument(ctx context.Context, companyID, transactionID string, date *time.Time, actorID string) (*domain.Transaction, error)
}

// LedgerQueries defines the read side shared by several handlers.
type LedgerQueries interface {
	GetTransaction(ctx context.Context, companyID, id string) (*domain.Transaction, error)
	GetEntry(ctx context.Context, companyID, id string) (*domain.JournalEntry, error)
	ListEntriesByTransaction(ctx context.Context, companyID, transactionID string) ([]*domain.JournalEntry, error)
	ListLinesByAccount(ctx context.Context, companyID, accountID string, limit, offset int) ([]domain.JournalEntryLine, error)
	BalanceAsOf(ctx context.Context, companyID, accountID string, at time.Time) (decimal.Decimal, error)
}

// DocumentHandler handles document posting requests.
type DocumentHandler struct {
	documents DocumentService
	queries   LedgerQueries
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documents DocumentService, queries LedgerQueries) *DocumentHandler {
	return &DocumentHandler{documents: documents, queries: queries}
}

// Post posts a document: its transaction and balanced entry.
func (h *DocumentHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req dto.PostDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "companyID"), actor(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	tx, entry, err := h.documents.PostDocument(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to post document", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.DocumentResponse{
		Transaction: dto.TransactionFromDomain(tx),
		Entry:       dto.EntryFromDomain(entry),
	})
}

// Void voids a posted document and all of its entries.
func (h *DocumentHandler) Void(w http.ResponseWriter, r *http.Request) {
	var req dto.VoidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	companyID := chi.URLParam(r, "companyID")
	transactionID := chi.URLParam(r, "transactionID")

	if err := h.documents.VoidDocument(r.Context(), companyID, transactionID, req.Reason, actor(r)); err != nil {
		writeDomainError(w, "failed to void document", err)
		return
	}

	tx, err := h.queries.GetTransaction(r.Context(), companyID, transactionID)
	if err != nil {
		writeDomainError(w, "failed to load transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(tx))
}

// Reverse creates the reversing counterpart of a posted document.
func (h *DocumentHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	var req dto.ReverseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	date, err := req.ParsedDate()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reversal date", err.Error())
		return
	}

	reversal, err := h.documents.ReverseDocument(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "transactionID"), date, actor(r))
	if err != nil {
		writeDomainError(w, "failed to reverse document", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(reversal))
}
