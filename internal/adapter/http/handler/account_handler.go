package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// AccountService defines the behavior needed by AccountHandler.
type AccountService interface {
	CreateAccount(ctx context.Context, input usecase.CreateAccountInput) (*domain.Account, error)
	GetAccount(ctx context.Context, companyID, id string) (*domain.Account, error)
	ListAccounts(ctx context.Context, companyID string, limit, offset int) ([]*domain.Account, error)
	SoftDeleteAccount(ctx context.Context, companyID, id, actorID string) error
}

// BalanceService recomputes stored balances.
type BalanceService interface {
	RecomputeBalance(ctx context.Context, companyID, accountID string) (decimal.Decimal, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	accounts AccountService
	balances BalanceService
	queries  LedgerQueries
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts AccountService, balances BalanceService, queries LedgerQueries) *AccountHandler {
	return &AccountHandler{accounts: accounts, balances: balances, queries: queries}
}

// Create creates a new account.
func (h *AccountHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	account, err := h.accounts.CreateAccount(r.Context(), req.ToUseCaseInput(chi.URLParam(r, "companyID"), actor(r)))
	if err != nil {
		writeDomainError(w, "failed to create account", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.AccountFromDomain(account))
}

// Get retrieves an account by ID.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	account, err := h.accounts.GetAccount(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "accountID"))
	if err != nil {
		writeDomainError(w, "failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountFromDomain(account))
}

// List lists accounts.
func (h *AccountHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 100)
	offset := parseIntQuery(r, "offset", 0)

	accounts, err := h.accounts.ListAccounts(r.Context(), chi.URLParam(r, "companyID"), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list accounts", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ListAccountsResponse{
		Accounts: dto.AccountsFromDomain(accounts),
		Total:    int64(len(accounts)),
	})
}

// Delete soft-deletes an account.
func (h *AccountHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.SoftDeleteAccount(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "accountID"), actor(r)); err != nil {
		writeDomainError(w, "failed to delete account", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Recompute rebuilds the stored balance from posted lines.
func (h *AccountHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	balance, err := h.balances.RecomputeBalance(r.Context(), chi.URLParam(r, "companyID"), accountID)
	if err != nil {
		writeDomainError(w, "failed to recompute balance", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: accountID, Balance: balance})
}

// Balance returns the balance as of the "at" date, or the current stored
// balance when no date is given.
func (h *AccountHandler) Balance(w http.ResponseWriter, r *http.Request) {
	companyID := chi.URLParam(r, "companyID")
	accountID := chi.URLParam(r, "accountID")

	at := r.URL.Query().Get("at")
	if at == "" {
		account, err := h.accounts.GetAccount(r.Context(), companyID, accountID)
		if err != nil {
			writeDomainError(w, "failed to get account", err)
			return
		}
		writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: accountID, Balance: account.CurrentBalance})
		return
	}

	date, err := dto.ParseDate(at)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err.Error())
		return
	}

	balance, err := h.queries.BalanceAsOf(r.Context(), companyID, accountID, date)
	if err != nil {
		writeDomainError(w, "failed to get balance", err)
		return
	}

	asOf := date.Format(dto.DateLayout)
	writeJSON(w, http.StatusOK, dto.BalanceResponse{AccountID: accountID, Balance: balance, AsOf: &asOf})
}

// Lines lists the posted lines booked to an account.
func (h *AccountHandler) Lines(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 100)
	offset := parseIntQuery(r, "offset", 0)

	lines, err := h.queries.ListLinesByAccount(r.Context(), chi.URLParam(r, "companyID"), chi.URLParam(r, "accountID"), limit, offset)
	if err != nil {
		writeDomainError(w, "failed to list lines", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AccountLinesFromDomain(lines))
}
