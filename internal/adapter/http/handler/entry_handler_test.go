package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/adapter/http/middleware"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

type stubPostingService struct {
	created  usecase.CreateEntryInput
	reversed usecase.ReverseInput
	entries  map[string]*domain.JournalEntry
}

func newStubPosting() *stubPostingService {
	return &stubPostingService{entries: map[string]*domain.JournalEntry{}}
}

func (s *stubPostingService) CreateBalancedEntry(ctx context.Context, input usecase.CreateEntryInput) (*domain.JournalEntry, error) {
	s.created = input
	e := &domain.JournalEntry{ID: "je-1", CompanyID: input.CompanyID, TransactionID: input.TransactionID, Status: domain.EntryDraft}
	s.entries[e.ID] = e
	return e, nil
}

func (s *stubPostingService) Post(ctx context.Context, companyID, entryID, actorID string) error {
	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	e.Status = domain.EntryPosted
	return nil
}

func (s *stubPostingService) Void(ctx context.Context, companyID, entryID, reason, actorID string) error {
	if err := domain.ValidateVoidReason(reason); err != nil {
		return err
	}
	e, ok := s.entries[entryID]
	if !ok {
		return domain.ErrEntryNotFound
	}
	e.Status = domain.EntryVoid
	return nil
}

func (s *stubPostingService) Reverse(ctx context.Context, input usecase.ReverseInput) (*domain.JournalEntry, error) {
	s.reversed = input
	return &domain.JournalEntry{ID: "je-2", ReversalOfEntryID: &input.EntryID, Status: domain.EntryPosted}, nil
}

// stubQueries reads entries back from the posting stub.
type stubQueries struct {
	posting *stubPostingService
}

func (q stubQueries) GetTransaction(ctx context.Context, companyID, id string) (*domain.Transaction, error) {
	return nil, domain.ErrTransactionNotFound
}

func (q stubQueries) GetEntry(ctx context.Context, companyID, id string) (*domain.JournalEntry, error) {
	if e, ok := q.posting.entries[id]; ok {
		return e, nil
	}
	return nil, domain.ErrEntryNotFound
}

func (q stubQueries) ListEntriesByTransaction(ctx context.Context, companyID, transactionID string) ([]*domain.JournalEntry, error) {
	return nil, nil
}

func (q stubQueries) ListLinesByAccount(ctx context.Context, companyID, accountID string, limit, offset int) ([]domain.JournalEntryLine, error) {
	return nil, nil
}

func (q stubQueries) BalanceAsOf(ctx context.Context, companyID, accountID string, at time.Time) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func newEntryRouter(h *EntryHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Actor)
	r.Get("/companies/{companyID}/transactions/{transactionID}", h.GetTransaction)
	r.Post("/companies/{companyID}/transactions/{transactionID}/entries", h.Create)
	r.Post("/companies/{companyID}/entries/{entryID}/post", h.Post)
	r.Post("/companies/{companyID}/entries/{entryID}/void", h.Void)
	r.Post("/companies/{companyID}/entries/{entryID}/reverse", h.Reverse)
	return r
}

func TestEntryHandler_DraftLifecycle(t *testing.T) {
	posting := newStubPosting()
	router := newEntryRouter(NewEntryHandler(posting, stubQueries{posting: posting}))

	body := `{"type":"adjusting","entry_date":"2024-01-31","lines":[
		{"account_id":"acc-1","type":"DEBIT","amount":"15"},
		{"account_id":"acc-2","type":"credit","amount":"15"}]}`
	req := httptest.NewRequest(http.MethodPost, "/companies/co-1/transactions/tx-1/entries", strings.NewReader(body))
	req.Header.Set(middleware.ActorHeader, "clerk")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	in := posting.created
	if in.TransactionID != "tx-1" || in.ActorID != "clerk" || in.Type != domain.EntryAdjusting {
		t.Fatalf("unexpected input %+v", in)
	}
	if len(in.Lines) != 2 || in.Lines[0].Type != domain.Debit {
		t.Fatalf("expected normalized line types, got %+v", in.Lines)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/entries/je-1/post", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 posting, got %d", rec.Code)
	}
	var entry dto.EntryResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode entry: %v", err)
	}
	if entry.Status != "posted" {
		t.Fatalf("expected posted entry, got %s", entry.Status)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/entries/je-1/void", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a void reason, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/entries/missing/post", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown entry, got %d", rec.Code)
	}
}

func TestEntryHandler_Reverse(t *testing.T) {
	posting := newStubPosting()
	router := newEntryRouter(NewEntryHandler(posting, stubQueries{posting: posting}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/entries/je-1/reverse", strings.NewReader(`{"date":"2024-02-01"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if posting.reversed.Date == nil || !posting.reversed.Date.Equal(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected reversal date to be passed, got %+v", posting.reversed.Date)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/entries/je-1/reverse", strings.NewReader(`{"date":"tomorrow"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a bad date, got %d", rec.Code)
	}
}

func TestEntryHandler_GetTransactionNotFound(t *testing.T) {
	posting := newStubPosting()
	router := newEntryRouter(NewEntryHandler(posting, stubQueries{posting: posting}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/transactions/tx-9", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
