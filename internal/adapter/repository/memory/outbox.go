package memory

import (
	"context"
	"sort"
	"time"

	"github.com/iho/tripleledger/internal/domain"
	"github.com/iho/tripleledger/internal/usecase"
)

// OutboxRepo implements usecase.OutboxRepository.
type OutboxRepo struct{ s *Store }

func (r *OutboxRepo) Create(_ context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	return r.s.write(tx, func(st *state) error {
		st.outbox[event.ID] = *event
		return nil
	})
}

func (r *OutboxRepo) GetUnpublished(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	var out []*domain.OutboxEvent
	r.s.read(func(st *state) {
		for _, e := range st.outbox {
			if !e.Published {
				e := e
				out = append(out, &e)
			}
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, limit, 0), nil
}

// MarkPublished and DeletePublished run outside writer transactions, like the
// background publisher that calls them.
func (r *OutboxRepo) MarkPublished(_ context.Context, id string, publishedAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.st.outbox[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Published = true
	e.PublishedAt = &publishedAt
	r.s.st.outbox[id] = e
	return nil
}

func (r *OutboxRepo) DeletePublished(_ context.Context, before time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, e := range r.s.st.outbox {
		if e.Published && e.PublishedAt != nil && e.PublishedAt.Before(before) {
			delete(r.s.st.outbox, id)
		}
	}
	return nil
}

// Events returns every outbox event ordered by creation, published or not.
func (r *OutboxRepo) Events() []domain.OutboxEvent {
	var out []domain.OutboxEvent
	r.s.read(func(st *state) {
		for _, e := range st.outbox {
			out = append(out, e)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
