package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

type failingBroker struct {
	messaging.Broker
	calls int
}

func (b *failingBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	b.calls++
	return errors.New("connection refused")
}

func TestBrokerSink_PublishesKeyedEvent(t *testing.T) {
	broker := messaging.NewMemoryBroker(1)
	defer broker.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := broker.Subscribe(ctx, "appointments")
	require.NoError(t, err)

	event := sampleEvent(model.AppointmentCreated)
	require.NoError(t, NewBrokerSink(broker, "appointments", logger.Nop()).Deliver(ctx, event))

	var got model.AppointmentEvent
	require.NoError(t, json.Unmarshal(<-ch, &got))
	assert.Equal(t, event.AppointmentID, got.AppointmentID)
	assert.Equal(t, model.AppointmentCreated, got.Type)
}

func TestBrokerSink_BreakerOpensAfterFailures(t *testing.T) {
	broker := &failingBroker{}
	sink := NewBrokerSink(broker, "appointments", logger.Nop())
	event := sampleEvent(model.AppointmentCreated)

	for i := 0; i < 5; i++ {
		assert.Error(t, sink.Deliver(context.Background(), event))
	}
	err := sink.Deliver(context.Background(), event)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, broker.calls)
}

type fakePusher struct {
	sent map[uuid.UUID][][]byte
}

func (p *fakePusher) SendToUser(userID uuid.UUID, data []byte) int {
	p.sent[userID] = append(p.sent[userID], data)
	return 1
}

func TestHubSink_PushesToBothParticipants(t *testing.T) {
	pusher := &fakePusher{sent: map[uuid.UUID][][]byte{}}
	event := sampleEvent(model.AppointmentRescheduled)

	require.NoError(t, NewHubSink(pusher).Deliver(context.Background(), event))
	assert.Len(t, pusher.sent[event.DoctorID], 1)
	assert.Len(t, pusher.sent[event.PatientID], 1)
	assert.Contains(t, string(pusher.sent[event.DoctorID][0]), `"type":"AppointmentRescheduled"`)
}

func TestOutboxSink_RecordsPendingEvent(t *testing.T) {
	repo := memory.NewOutboxRepository()
	event := sampleEvent(model.AppointmentCancelled)

	require.NoError(t, NewOutboxSink(repo, "appointments").Deliver(context.Background(), event))

	pending, err := repo.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, event.AppointmentID, pending[0].AggregateID)
	assert.Equal(t, "AppointmentCancelled", pending[0].EventType)
	assert.Equal(t, "appointments", pending[0].Topic)
}
