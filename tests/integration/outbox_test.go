package integration

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/tests/testutil"
)

func TestOutbox_EventsWrittenWithPosting(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()
	db := testutil.NewTestDB(t)
	db.TruncateAll(ctx)
	l := db.NewLedger()

	l.CreatePeriod(t, testutil.Date(2024, time.January, 1), testutil.Date(2024, time.January, 31))
	cash := l.CreateAccount(t, "1000", "Cash", domain.AccountTypeAsset)
	revenue := l.CreateAccount(t, "4000", "Revenue", domain.AccountTypeRevenue)

	_, entry, err := l.PostDocument(ctx, domain.TxTypeInvoice, "INV-1", testutil.Date(2024, time.January, 10), cash, revenue, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("PostDocument failed: %v", err)
	}

	events, err := l.Outbox.GetUnpublished(ctx, 100)
	if err != nil {
		t.Fatalf("GetUnpublished failed: %v", err)
	}

	var posted *domain.OutboxEvent
	for _, e := range events {
		if e.EventType == domain.EventTypeEntryPosted && e.AggregateID == entry.ID {
			posted = e
		}
	}
	if posted == nil {
		t.Fatalf("expected %s event for entry %s", domain.EventTypeEntryPosted, entry.ID)
	}
	if posted.CompanyID != l.CompanyID {
		t.Errorf("expected company %s, got %s", l.CompanyID, posted.CompanyID)
	}

	if err := l.Outbox.MarkPublished(ctx, posted.ID, time.Now().UTC()); err != nil {
		t.Fatalf("MarkPublished failed: %v", err)
	}

	events, err = l.Outbox.GetUnpublished(ctx, 100)
	if err != nil {
		t.Fatalf("GetUnpublished failed: %v", err)
	}
	for _, e := range events {
		if e.ID == posted.ID {
			t.Error("published event still returned as unpublished")
		}
	}

	if err := l.Outbox.DeletePublished(ctx, time.Now().UTC().Add(time.Minute)); err != nil {
		t.Fatalf("DeletePublished failed: %v", err)
	}
}
