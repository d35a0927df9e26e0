package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/tests/testutil"
)

func TestAuditChain_PersistedAndVerified(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	db := testutil.NewTestDB(t)
	l := db.NewLedger()

	l.CreatePeriod(t, testutil.Date(2024, time.January, 1), testutil.Date(2024, time.January, 31))
	cash := l.CreateAccount(t, "1000", "Cash", domain.AccountTypeAsset)
	revenue := l.CreateAccount(t, "4000", "Revenue", domain.AccountTypeRevenue)
	if _, _, err := l.PostDocument(ctx, domain.TxTypeInvoice, "INV-1", testutil.Date(2024, time.January, 10), cash, revenue, decimal.NewFromInt(99)); err != nil {
		t.Fatalf("PostDocument failed: %v", err)
	}

	report, err := l.Audit.VerifyRange(ctx, l.CompanyID, 1, 0)
	if err != nil {
		t.Fatalf("VerifyRange failed: %v", err)
	}
	if !report.Valid {
		t.Fatalf("expected valid chain, first break %+v", report.FirstBreak)
	}
	if report.RecordsChecked == 0 {
		t.Fatal("expected audit records to be checked")
	}

	history, err := l.Audit.History(ctx, l.CompanyID, domain.Ref(domain.KindAccount, cash.ID), 10, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) == 0 {
		t.Fatal("expected account history")
	}
	if history[0].Event != domain.AuditCreated {
		t.Errorf("expected first event created, got %s", history[0].Event)
	}
}

func TestAuditLogs_RejectUpdate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	db := testutil.NewTestDB(t)
	l := db.NewLedger()
	l.CreateAccount(t, "1000", "Cash", domain.AccountTypeAsset)

	_, err := db.Pool.Exec(ctx, `UPDATE audit_logs SET actor_id = 'intruder' WHERE company_id = $1`, l.CompanyID)
	if err == nil {
		t.Fatal("expected audit log update to be rejected")
	}

	_, err = db.Pool.Exec(ctx, `DELETE FROM audit_logs WHERE company_id = $1`, l.CompanyID)
	if err == nil {
		t.Fatal("expected audit log delete to be rejected")
	}
}
