package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/errors"
)

type outboxRepository struct {
	mu      sync.Mutex
	events  map[uuid.UUID]*model.OutboxEvent
	claimed map[uuid.UUID]bool
}

// NewOutboxRepository returns an in-process outbox. A claimed event is not
// handed out again until it is marked processed or failed.
func NewOutboxRepository() repository.OutboxRepository {
	return &outboxRepository{
		events:  make(map[uuid.UUID]*model.OutboxEvent),
		claimed: make(map[uuid.UUID]bool),
	}
}

func (r *outboxRepository) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event == nil {
		return fmt.Errorf("event cannot be nil")
	}
	if event.Payload == nil {
		return fmt.Errorf("event payload cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	event.Status = model.OutboxStatusPending

	cp := *event
	r.events[cp.ID] = &cp
	return nil
}

func (r *outboxRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := make([]*model.OutboxEvent, 0)
	for id, e := range r.events {
		if e.Status == model.OutboxStatusPending && !r.claimed[id] {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	result := make([]*model.OutboxEvent, 0, len(pending))
	for _, e := range pending {
		r.claimed[e.ID] = true
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (r *outboxRepository) MarkAsProcessed(ctx context.Context, id uuid.UUID) error {
	return r.update(id, func(e *model.OutboxEvent) {
		now := time.Now().UTC()
		e.Status = model.OutboxStatusProcessed
		e.ProcessedAt = &now
		e.ErrorMessage = nil
	})
}

func (r *outboxRepository) MarkAsFailed(ctx context.Context, id uuid.UUID, errMsg string) error {
	return r.update(id, func(e *model.OutboxEvent) {
		e.Status = model.OutboxStatusFailed
		e.ErrorMessage = &errMsg
		e.RetryCount++
	})
}

func (r *outboxRepository) DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, e := range r.events {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			delete(r.events, id)
			delete(r.claimed, id)
			n++
		}
	}
	return n, nil
}

func (r *outboxRepository) update(id uuid.UUID, fn func(*model.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return errors.NewNotFound("outbox event", nil)
	}
	fn(e)
	e.UpdatedAt = time.Now().UTC()
	delete(r.claimed, id)
	return nil
}
