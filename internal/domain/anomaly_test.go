package domain

import (
	"errors"
	"testing"
	"time"
)

func TestAnomalyStatus_Transitions(t *testing.T) {
	tests := []struct {
		from AnomalyStatus
		to   AnomalyStatus
		ok   bool
	}{
		{AnomalyOpen, AnomalyReviewed, true},
		{AnomalyOpen, AnomalyResolved, true},
		{AnomalyOpen, AnomalyDismissed, true},
		{AnomalyReviewed, AnomalyResolved, true},
		{AnomalyReviewed, AnomalyOpen, false},
		{AnomalyResolved, AnomalyDismissed, false},
		{AnomalyDismissed, AnomalyOpen, false},
		{AnomalyOpen, AnomalyOpen, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.ok {
				t.Errorf("CanTransition() = %v, want %v", got, tt.ok)
			}
		})
	}
}

func TestAnomalyDetection_Apply(t *testing.T) {
	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	a := &AnomalyDetection{Status: AnomalyOpen}

	if err := a.Apply(AnomalyReviewed, "", "", now); !errors.Is(err, ErrActorRequired) {
		t.Fatalf("expected ErrActorRequired, got %v", err)
	}
	if err := a.Apply(AnomalyReviewed, "auditor", "looking", now); err != nil {
		t.Fatalf("review failed: %v", err)
	}
	if a.ReviewedBy == nil || *a.ReviewedBy != "auditor" {
		t.Fatal("reviewer not recorded")
	}
	if err := a.Apply(AnomalyResolved, "controller", "confirmed with vendor", now.Add(time.Hour)); err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if err := a.Apply(AnomalyDismissed, "controller", "", now); !errors.Is(err, ErrAnomalyTransition) {
		t.Fatalf("expected ErrAnomalyTransition, got %v", err)
	}
	if len(a.Trail) != 2 || a.Trail[0].From != AnomalyOpen || a.Trail[1].Status != AnomalyResolved {
		t.Fatalf("unexpected trail %+v", a.Trail)
	}
}

func TestBooksCloseRun_Complete(t *testing.T) {
	run := &BooksCloseRun{Status: RunRunning}
	findings := []AnomalyDetection{
		{Type: DetectionUnbalanced, Severity: SeverityCritical},
		{Type: DetectionDuplicate, Severity: SeverityWarning},
		{Type: DetectionTiming, Severity: SeverityInfo},
		{Type: DetectionTiming, Severity: SeverityInfo},
	}

	run.Complete(findings, 40, JSON{"detectors": 7}, time.Now())

	if run.Status != RunCompleted || !run.IsTerminal() {
		t.Fatalf("expected completed, got %s", run.Status)
	}
	if run.AnomaliesFound != 4 || run.CriticalCount != 1 || run.WarningCount != 1 || run.InfoCount != 2 {
		t.Fatalf("unexpected counts %+v", run)
	}
	if run.CountsByType[DetectionTiming] != 2 {
		t.Fatalf("expected 2 timing findings, got %d", run.CountsByType[DetectionTiming])
	}
}

func TestBooksCloseRun_Fail(t *testing.T) {
	run := &BooksCloseRun{Status: RunRunning}
	run.Fail(errors.New("boom"), time.Now())
	if run.Status != RunFailed || run.ErrorMessage == nil || *run.ErrorMessage != "boom" {
		t.Fatalf("unexpected run %+v", run)
	}
}
