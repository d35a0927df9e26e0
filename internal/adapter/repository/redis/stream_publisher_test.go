package redis

import (
	"context"
	"testing"
	"time"

	"github.com/iho/tripleledger/internal/domain"
)

func TestStreamPublisherAppendsEvent(t *testing.T) {
	client, mr := newTestRedisClient(t)
	defer mr.Close()
	defer client.Close()

	pub := NewStreamPublisher(client, "ledger-events", 0)
	ctx := context.Background()

	err := pub.Publish(ctx, &domain.OutboxEvent{
		ID:            "evt-1",
		CompanyID:     "co-1",
		AggregateID:   "je-1",
		AggregateType: domain.AggregateTypeJournalEntry,
		EventType:     domain.EventTypeEntryPosted,
		Payload:       map[string]any{"entry_number": "JE-000001"},
		CreatedAt:     time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	entries, err := client.XRange(ctx, "ledger-events", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one stream entry, got %d", len(entries))
	}

	values := entries[0].Values
	if values["event_type"] != domain.EventTypeEntryPosted || values["company_id"] != "co-1" {
		t.Fatalf("unexpected stream values: %v", values)
	}
	if values["payload"] != `{"entry_number":"JE-000001"}` {
		t.Fatalf("unexpected payload: %v", values["payload"])
	}
	if values["created_at"] != "2024-01-10T09:00:00Z" {
		t.Fatalf("unexpected created_at: %v", values["created_at"])
	}
}
