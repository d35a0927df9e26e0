package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/iho/tripleledger/internal/adapter/http/dto"
	"github.com/iho/tripleledger/internal/adapter/http/middleware"
	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

type stubPeriodService struct {
	created usecase.CreatePeriodInput
}

func (s *stubPeriodService) CreatePeriod(ctx context.Context, input usecase.CreatePeriodInput) (*domain.FiscalPeriod, error) {
	s.created = input
	return &domain.FiscalPeriod{ID: "p-1", CompanyID: input.CompanyID, Name: "2024-01", StartDate: input.StartDate, EndDate: input.EndDate, Status: domain.PeriodOpen}, nil
}

func (s *stubPeriodService) GetPeriod(ctx context.Context, companyID, id string) (*domain.FiscalPeriod, error) {
	return nil, domain.ErrPeriodNotFound
}

func (s *stubPeriodService) ListPeriods(ctx context.Context, companyID string) ([]*domain.FiscalPeriod, error) {
	return []*domain.FiscalPeriod{}, nil
}

type stubBooksCloseService struct {
	run      *domain.BooksCloseRun
	runErr   error
	closeErr error
	actor    string
}

func (s *stubBooksCloseService) RunBooksClose(ctx context.Context, companyID, periodID, initiatorID string) (*domain.BooksCloseRun, error) {
	s.actor = initiatorID
	return s.run, s.runErr
}

func (s *stubBooksCloseService) ClosePeriod(ctx context.Context, companyID, periodID, actorID string) (*domain.FiscalPeriod, error) {
	s.actor = actorID
	if s.closeErr != nil {
		return nil, s.closeErr
	}
	return &domain.FiscalPeriod{ID: periodID, Status: domain.PeriodClosed}, nil
}

func (s *stubBooksCloseService) GetRun(ctx context.Context, companyID, runID string) (*domain.BooksCloseRun, error) {
	return s.run, nil
}

func (s *stubBooksCloseService) ListRunFindings(ctx context.Context, companyID, runID string) ([]*domain.AnomalyDetection, error) {
	return []*domain.AnomalyDetection{}, nil
}

func newPeriodRouter(h *PeriodHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Actor)
	r.Post("/companies/{companyID}/periods", h.Create)
	r.Get("/companies/{companyID}/periods/{periodID}", h.Get)
	r.Post("/companies/{companyID}/periods/{periodID}/books-close", h.RunBooksClose)
	r.Post("/companies/{companyID}/periods/{periodID}/close", h.Close)
	return r
}

func TestPeriodHandler_Create(t *testing.T) {
	periods := &stubPeriodService{}
	router := newPeriodRouter(NewPeriodHandler(periods, &stubBooksCloseService{}))

	req := httptest.NewRequest(http.MethodPost, "/companies/co-1/periods", strings.NewReader(`{"start_date":"2024-01-01","end_date":"2024-01-31"}`))
	req.Header.Set(middleware.ActorHeader, "controller")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if periods.created.CompanyID != "co-1" || periods.created.ActorID != "controller" {
		t.Fatalf("expected company and actor from the request, got %+v", periods.created)
	}
	if !periods.created.EndDate.Equal(time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end date %s", periods.created.EndDate)
	}

	req = httptest.NewRequest(http.MethodPost, "/companies/co-1/periods", strings.NewReader(`{"start_date":"Jan 1","end_date":"2024-01-31"}`))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for an unparseable date, got %d", rec.Code)
	}
}

func TestPeriodHandler_GetNotFound(t *testing.T) {
	router := newPeriodRouter(NewPeriodHandler(&stubPeriodService{}, &stubBooksCloseService{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/companies/co-1/periods/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPeriodHandler_RunBooksClose(t *testing.T) {
	booksClose := &stubBooksCloseService{run: &domain.BooksCloseRun{
		ID:             "run-1",
		FiscalPeriodID: "p-1",
		Status:         domain.RunCompleted,
		CountsByType:   map[domain.DetectionType]int{domain.DetectionDuplicate: 2},
	}}
	router := newPeriodRouter(NewPeriodHandler(&stubPeriodService{}, booksClose))

	req := httptest.NewRequest(http.MethodPost, "/companies/co-1/periods/p-1/books-close", nil)
	req.Header.Set(middleware.ActorHeader, "controller")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var run dto.RunResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("failed to decode run: %v", err)
	}
	if run.CountsByType["duplicate"] != 2 {
		t.Fatalf("expected counts keyed by detection type, got %+v", run.CountsByType)
	}
	if booksClose.actor != "controller" {
		t.Fatalf("expected initiator from header, got %q", booksClose.actor)
	}
}

func TestPeriodHandler_RunBooksCloseFailure(t *testing.T) {
	booksClose := &stubBooksCloseService{
		run:    &domain.BooksCloseRun{ID: "run-9", Status: domain.RunFailed},
		runErr: &domain.RunFailedError{RunID: "run-9", Err: errors.New("context deadline exceeded")},
	}
	router := newPeriodRouter(NewPeriodHandler(&stubPeriodService{}, booksClose))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/periods/p-1/books-close", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp dto.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode error: %v", err)
	}
	if resp.RunID != "run-9" {
		t.Fatalf("expected failed run id in response, got %+v", resp)
	}
}

func TestPeriodHandler_CloseBlocked(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"critical findings open", domain.ErrCriticalAnomaliesOpen, http.StatusUnprocessableEntity},
		{"no completed run", domain.ErrRunNotCompleted, http.StatusUnprocessableEntity},
		{"already closed", domain.ErrPeriodClosed, http.StatusUnprocessableEntity},
		{"missing actor", domain.ErrActorRequired, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newPeriodRouter(NewPeriodHandler(&stubPeriodService{}, &stubBooksCloseService{closeErr: tt.err}))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/companies/co-1/periods/p-1/close", nil))
			if rec.Code != tt.expected {
				t.Fatalf("expected %d, got %d", tt.expected, rec.Code)
			}
		})
	}
}
