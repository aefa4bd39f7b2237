package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

// BrokerSink publishes events to a topic, keyed by appointment. A circuit
// breaker stops hammering a broker that keeps failing.
type BrokerSink struct {
	broker messaging.Broker
	topic  string
	cb     *gobreaker.CircuitBreaker
}

func NewBrokerSink(broker messaging.Broker, topic string, logger *logger.Logger) *BrokerSink {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notification-broker",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &BrokerSink{broker: broker, topic: topic, cb: cb}
}

func (s *BrokerSink) Name() string { return "broker" }

func (s *BrokerSink) Deliver(ctx context.Context, event model.AppointmentEvent) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, messaging.PublishKeyed(ctx, s.broker, s.topic, event.Key(), event)
	})
	return err
}

// Pusher delivers raw messages to a user's live connections.
type Pusher interface {
	SendToUser(userID uuid.UUID, data []byte) int
}

// HubSink pushes events to the doctor's and the patient's open websockets.
// Nobody being connected is not an error.
type HubSink struct {
	pusher Pusher
}

func NewHubSink(pusher Pusher) *HubSink {
	return &HubSink{pusher: pusher}
}

func (s *HubSink) Name() string { return "websocket" }

func (s *HubSink) Deliver(ctx context.Context, event model.AppointmentEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	s.pusher.SendToUser(event.DoctorID, data)
	if event.PatientID != event.DoctorID {
		s.pusher.SendToUser(event.PatientID, data)
	}
	return nil
}

// OutboxSink records events in the outbox table for the worker to relay.
type OutboxSink struct {
	repo  repository.OutboxRepository
	topic string
}

func NewOutboxSink(repo repository.OutboxRepository, topic string) *OutboxSink {
	return &OutboxSink{repo: repo, topic: topic}
}

func (s *OutboxSink) Name() string { return "outbox" }

func (s *OutboxSink) Deliver(ctx context.Context, event model.AppointmentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return s.repo.Create(ctx, &model.OutboxEvent{
		AggregateID: event.AppointmentID,
		EventType:   string(event.Type),
		Topic:       s.topic,
		Payload:     payload,
	})
}
