package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// PostingService defines the entry lifecycle used by EntryHandler.
type PostingService interface {
	CreateBalancedEntry(ctx context.Context, input usecase.CreateEntryInput) (*domain.JournalEntry, error)
	Post(ctx context.Context, companyID, entryID, actorID string) error
	Void(ctx context.Context, companyID, entryID, reason, actorID string) error
	Reverse(ctx context.Context, input usecase.ReverseInput) (*domain.JournalEntry, error)
}

// EntryHandler handles transaction and journal entry requests.
type EntryHandler struct {
	posting PostingService
	queries LedgerQueries
}

// NewEntryHandler creates a new EntryHandler.
func NewEntryHandler(posting PostingService, queries LedgerQueries) *EntryHandler {
	return &EntryHandler{posting: posting, queries: queries}
}

// GetTransaction returns a transaction by ID.
func (h *EntryHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.queries.GetTransaction(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "transactionID"))
	if err != nil {
		writeDomainError(w, "failed to get transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionFromDomain(tx))
}

// ListByTransaction lists the entries of a transaction.
func (h *EntryHandler) ListByTransaction(w http.ResponseWriter, r *http.Request) {
	entries, err := h.queries.ListEntriesByTransaction(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "transactionID"))
	if err != nil {
		writeDomainError(w, "failed to list entries", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntriesFromDomain(entries))
}

// Create adds a balanced draft entry to a transaction.
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	input, err := req.ToUseCaseInput(chi.URLParam(r, "companyID"), chi.URLParam(r, "transactionID"), actor(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	entry, err := h.posting.CreateBalancedEntry(r.Context(), input)
	if err != nil {
		writeDomainError(w, "failed to create entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(entry))
}

// Get returns a journal entry with its lines.
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.queries.GetEntry(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "entryID"))
	if err != nil {
		writeDomainError(w, "failed to get entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}

// Post posts a draft entry.
func (h *EntryHandler) Post(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	entryID := chi.URLParam(r, "entryID")

	if err := h.posting.Post(r.Context(), companyID, entryID, actor(r)); err != nil {
		writeDomainError(w, "failed to post entry", err)
		return
	}

	h.respondWithEntry(w, r, companyID, entryID)
}

// Void voids a posted entry.
func (h *EntryHandler) Void(w http.ResponseWriter, r *http.Request) {
	var req dto.VoidRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	companyID := chi.URLParam(r, "companyID")
	entryID := chi.URLParam(r, "entryID")

	if err := h.posting.Void(r.Context(), companyID, entryID, req.Reason, actor(r)); err != nil {
		writeDomainError(w, "failed to void entry", err)
		return
	}

	h.respondWithEntry(w, r, companyID, entryID)
}

// Reverse posts the reversing entry of a posted entry.
func (h *EntryHandler) Reverse(w http.ResponseWriter, r *http.Request) {
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

	reversal, err := h.posting.Reverse(r.Context(), usecase.ReverseInput{
		CompanyID: chi.URLParam(r, "companyID"),
		EntryID:   chi.URLParam(r, "entryID"),
		Date:      date,
		ActorID:   actor(r),
	})
	if err != nil {
		writeDomainError(w, "failed to reverse entry", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.EntryFromDomain(reversal))
}

func (h *EntryHandler) respondWithEntry(w http.ResponseWriter, r *http.Request, companyID, entryID string) {
	entry, err := h.queries.GetEntry(r.Context(), companyID, entryID)
	if err != nil {
		writeDomainError(w, "failed to load entry", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.EntryFromDomain(entry))
}
