package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type Config struct {
	QueueSize       int
	Workers         int
	DeliveryTimeout time.Duration
}

// Sink is one delivery channel for appointment events.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event model.AppointmentEvent) error
}

type job struct {
	event model.AppointmentEvent
	span  trace.SpanContext
}

// Dispatcher fans committed booking changes out to its sinks on background
// workers. Dispatch never blocks: when the queue is full the event is
// dropped and counted.
type Dispatcher struct {
	cfg     Config
	sinks   []Sink
	queue   chan job
	logger  *logger.Logger
	metrics *metrics.Metrics

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

func NewDispatcher(cfg Config, logger *logger.Logger, metrics *metrics.Metrics, sinks ...Sink) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 5 * time.Second
	}
	return &Dispatcher{
		cfg:     cfg,
		sinks:   sinks,
		queue:   make(chan job, cfg.QueueSize),
		logger:  logger,
		metrics: metrics,
	}
}

// Start launches the workers. It is a no-op after the first call.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.startWorkers()
	d.logger.Info("notification dispatcher started", "workers", d.cfg.Workers, "sinks", len(d.sinks))
}

// startWorkers must be called with mu held.
func (d *Dispatcher) startWorkers() {
	d.started = true
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
}

// Dispatch queues event for delivery. Only the trace context is taken from
// ctx; delivery outlives the request.
func (d *Dispatcher) Dispatch(ctx context.Context, event model.AppointmentEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(event, "dispatcher stopped")
		return
	}

	select {
	case d.queue <- job{event: event, span: trace.SpanContextFromContext(ctx)}:
		d.metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
	default:
		d.drop(event, "queue full")
	}
}

// Stop refuses new events and waits for queued ones to be delivered, or
// for ctx to end. Events queued before Start are drained too.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	if !d.started && len(d.queue) > 0 {
		d.startWorkers()
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("notification dispatcher: %d events undelivered: %w", len(d.queue), ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.metrics.NotificationQueueDepth.Set(float64(len(d.queue)))
		for _, sink := range d.sinks {
			d.deliver(sink, j)
		}
	}
}

func (d *Dispatcher) deliver(sink Sink, j job) {
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), j.span)
	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	ctx, span := otel.Tracer("notification").Start(ctx, "notification.deliver",
		trace.WithAttributes(
			attribute.String("notification.sink", sink.Name()),
			attribute.String("appointment.event", string(j.event.Type)),
		),
	)
	defer span.End()

	err := safeDeliver(ctx, sink, j.event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.metrics.NotificationsDelivered.WithLabelValues(sink.Name(), "error").Inc()
		d.logger.Warn("notification delivery failed",
			"sink", sink.Name(),
			"event_type", string(j.event.Type),
			"appointment_id", j.event.AppointmentID.String(),
			"error", err.Error())
		return
	}
	d.metrics.NotificationsDelivered.WithLabelValues(sink.Name(), "success").Inc()
}

func (d *Dispatcher) drop(event model.AppointmentEvent, reason string) {
	d.metrics.NotificationsDropped.Inc()
	d.logger.Warn("notification dropped",
		"reason", reason,
		"event_type", string(event.Type),
		"appointment_id", event.AppointmentID.String())
}

// safeDeliver keeps a panicking sink from taking a worker down.
func safeDeliver(ctx context.Context, sink Sink, event model.AppointmentEvent) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("sink %s panicked: %v", sink.Name(), p)
		}
	}()
	return sink.Deliver(ctx, event)
}
