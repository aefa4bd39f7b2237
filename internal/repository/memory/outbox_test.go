package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/errors"
)

func newOutboxEvent() *model.OutboxEvent {
	return &model.OutboxEvent{
		AggregateID: uuid.New(),
		EventType:   string(model.AppointmentCreated),
		Topic:       "appointments",
		Payload:     json.RawMessage(`{"type":"AppointmentCreated"}`),
	}
}

func TestOutbox_ClaimOnce(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, newOutboxEvent()))
	}

	first, err := repo.GetPendingEvents(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, first, 2)

	second, err := repo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.NotContains(t, []uuid.UUID{first[0].ID, first[1].ID}, second[0].ID)

	empty, err := repo.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestOutbox_MarkAndCleanup(t *testing.T) {
	repo := NewOutboxRepository()
	ctx := context.Background()

	ok, failed := newOutboxEvent(), newOutboxEvent()
	require.NoError(t, repo.Create(ctx, ok))
	require.NoError(t, repo.Create(ctx, failed))

	require.NoError(t, repo.MarkAsProcessed(ctx, ok.ID))
	require.NoError(t, repo.MarkAsFailed(ctx, failed.ID, "broker down"))
	assert.ErrorIs(t, repo.MarkAsProcessed(ctx, uuid.New()), errors.NotFound)

	n, err := repo.DeleteProcessedBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.ErrorIs(t, repo.MarkAsProcessed(ctx, ok.ID), errors.NotFound)
	assert.NoError(t, repo.MarkAsProcessed(ctx, failed.ID))
}
