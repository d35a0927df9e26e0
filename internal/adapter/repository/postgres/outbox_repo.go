package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Create writes an event in the caller's transaction.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	payload, err := marshalJSON(event.Payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}
	if payload == nil {
		payload = []byte("{}")
	}

	_, err = querier(r.db, tx).Exec(ctx, `
		INSERT INTO outbox_events (id, company_id, aggregate_id, aggregate_type, event_type, payload, created_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.CompanyID, event.AggregateID, event.AggregateType, event.EventType,
		payload, event.CreatedAt, event.Published,
	)
	return err
}

// GetUnpublished retrieves the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, company_id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at
		FROM outbox_events
		WHERE NOT published
		ORDER BY created_at, id
		LIMIT $1`, limitOrAll(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.OutboxEvent
	for rows.Next() {
		var (
			e       domain.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.AggregateID, &e.AggregateType, &e.EventType,
			&payload, &e.CreatedAt, &e.Published, &e.PublishedAt); err != nil {
			return nil, err
		}
		if e.Payload, err = unmarshalJSON[map[string]any](payload); err != nil {
			return nil, fmt.Errorf("decode outbox payload %s: %w", e.ID, err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// MarkPublished marks an event as published.
func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE outbox_events SET published = TRUE, published_at = $2 WHERE id = $1`, id, publishedAt,
	)
	return rowsAffectedOr(tag, err, domain.ErrNotFound)
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := r.db.Exec(ctx, `DELETE FROM outbox_events WHERE published AND published_at < $1`, before)
	return err
}
