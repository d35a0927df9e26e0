package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/tests/testutil"
)

func TestBooksClose_ThenClosePeriod(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	db := testutil.NewTestDB(t)
	l := db.NewLedger()

	jan := l.CreatePeriod(t, testutil.Date(2024, time.January, 1), testutil.Date(2024, time.January, 31))
	receivable := l.CreateAccount(t, "1100", "Receivables", domain.AccountTypeAsset)
	revenue := l.CreateAccount(t, "4000", "Revenue", domain.AccountTypeRevenue)

	for _, number := range []string{"INV-1", "INV-2", "INV-3"} {
		if _, _, err := l.PostDocument(ctx, domain.TxTypeInvoice, number, testutil.Date(2024, time.January, 10), receivable, revenue, decimal.NewFromInt(250)); err != nil {
			t.Fatalf("PostDocument %s failed: %v", number, err)
		}
	}

	run, err := l.BooksClose.RunBooksClose(ctx, l.CompanyID, jan.ID, "controller")
	if err != nil {
		t.Fatalf("RunBooksClose failed: %v", err)
	}
	if run.Status != domain.RunCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.TransactionsProcessed != 3 {
		t.Errorf("expected 3 transactions processed, got %d", run.TransactionsProcessed)
	}

	findings, err := l.BooksClose.ListRunFindings(ctx, l.CompanyID, run.ID)
	if err != nil {
		t.Fatalf("ListRunFindings failed: %v", err)
	}
	if len(findings) != run.AnomaliesFound {
		t.Errorf("expected %d findings, got %d", run.AnomaliesFound, len(findings))
	}

	closed, err := l.BooksClose.ClosePeriod(ctx, l.CompanyID, jan.ID, "controller")
	if err != nil {
		t.Fatalf("ClosePeriod failed: %v", err)
	}
	if closed.Status != domain.PeriodClosed {
		t.Errorf("expected closed period, got %s", closed.Status)
	}

	_, _, err = l.PostDocument(ctx, domain.TxTypeInvoice, "INV-4", testutil.Date(2024, time.January, 11), receivable, revenue, decimal.NewFromInt(1))
	if !domain.IsPeriodClosed(err) {
		t.Fatalf("expected period closed error, got %v", err)
	}

	rerun, err := l.BooksClose.RunBooksClose(ctx, l.CompanyID, jan.ID, "controller")
	if err != nil {
		t.Fatalf("RunBooksClose on closed period failed: %v", err)
	}
	if rerun.Status != domain.RunCompleted {
		t.Errorf("expected completed run, got %s", rerun.Status)
	}
}
