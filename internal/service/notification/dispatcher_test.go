package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type recordingSink struct {
	name  string
	err   error
	panic bool
	block chan struct{}

	mu     sync.Mutex
	events []model.AppointmentEvent
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Deliver(ctx context.Context, event model.AppointmentEvent) error {
	if s.block != nil {
		<-s.block
	}
	if s.panic {
		panic("boom")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) received() []model.AppointmentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AppointmentEvent(nil), s.events...)
}

func sampleEvent(t model.AppointmentEventType) model.AppointmentEvent {
	return model.AppointmentEvent{
		Type:          t,
		AppointmentID: uuid.New(),
		DoctorID:      uuid.New(),
		PatientID:     uuid.New(),
		StartTime:     time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
		OccurredAt:    time.Now().UTC(),
	}
}

func TestDispatcher_DeliversToEverySink(t *testing.T) {
	m := metrics.NewNop()
	failing := &recordingSink{name: "failing", err: errors.New("down")}
	panicking := &recordingSink{name: "panicking", panic: true}
	ok := &recordingSink{name: "ok"}

	d := NewDispatcher(Config{QueueSize: 8, Workers: 2}, logger.Nop(), m, failing, panicking, ok)
	d.Start()

	for i := 0; i < 3; i++ {
		d.Dispatch(context.Background(), sampleEvent(model.AppointmentCreated))
	}
	require.NoError(t, d.Stop(context.Background()))

	assert.Len(t, ok.received(), 3)
	assert.Len(t, failing.received(), 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsDelivered.WithLabelValues("ok", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsDelivered.WithLabelValues("failing", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.NotificationsDelivered.WithLabelValues("panicking", "error")))
}

func TestDispatcher_DropsWhenQueueFull(t *testing.T) {
	m := metrics.NewNop()
	sink := &recordingSink{name: "ok"}
	d := NewDispatcher(Config{QueueSize: 1, Workers: 1}, logger.Nop(), m, sink)

	done := make(chan struct{})
	go func() {
		// Not started: the queue holds one event and the rest are dropped
		// without Dispatch blocking.
		for i := 0; i < 5; i++ {
			d.Dispatch(context.Background(), sampleEvent(model.AppointmentCreated))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dispatch blocked on a full queue")
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(m.NotificationsDropped))

	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	assert.Len(t, sink.received(), 1)
}

func TestDispatcher_DispatchAfterStop(t *testing.T) {
	m := metrics.NewNop()
	d := NewDispatcher(Config{}, logger.Nop(), m)
	d.Start()
	require.NoError(t, d.Stop(context.Background()))
	require.NoError(t, d.Stop(context.Background()))

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), sampleEvent(model.AppointmentCancelled))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDropped))
}

func TestDispatcher_StopHonoursDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	d := NewDispatcher(Config{QueueSize: 4, Workers: 1}, logger.Nop(), metrics.NewNop(), &recordingSink{name: "slow", block: block})
	d.Start()
	d.Dispatch(context.Background(), sampleEvent(model.AppointmentCreated))
	d.Dispatch(context.Background(), sampleEvent(model.AppointmentCreated))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Stop(ctx), context.DeadlineExceeded)
}

func TestDispatcher_StopWithoutStartDrainsQueue(t *testing.T) {
	m := metrics.NewNop()
	sink := &recordingSink{name: "ok"}
	d := NewDispatcher(Config{QueueSize: 4, Workers: 1}, logger.Nop(), m, sink)

	d.Dispatch(context.Background(), sampleEvent(model.AppointmentCreated))
	d.Dispatch(context.Background(), sampleEvent(model.AppointmentCancelled))
	require.NoError(t, d.Stop(context.Background()))

	assert.Len(t, sink.received(), 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationsDelivered.WithLabelValues("ok", "success")))
	assert.Zero(t, testutil.ToFloat64(m.NotificationsDropped))

	// Start after Stop stays a no-op.
	assert.NotPanics(t, d.Start)
}

func TestDispatcher_StopWithoutStartHonoursDeadline(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	d := NewDispatcher(Config{QueueSize: 4, Workers: 1}, logger.Nop(), metrics.NewNop(), &recordingSink{name: "slow", block: block})
	d.Dispatch(context.Background(), sampleEvent(model.AppointmentCreated))
	d.Dispatch(context.Background(), sampleEvent(model.AppointmentCreated))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := d.Stop(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "events undelivered")
}
