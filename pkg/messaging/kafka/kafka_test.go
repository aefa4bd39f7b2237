package kafka

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, SplitBrokers(" k1:9092, ,k2:9092 ,"))
	assert.Empty(t, SplitBrokers(""))
}

func TestNewKafkaBroker_RequiresBrokers(t *testing.T) {
	nop := zerolog.Nop()
	_, err := NewKafkaBroker(Config{}, &nop)
	assert.Error(t, err)

	b, err := NewKafkaBroker(Config{Brokers: []string{"localhost:9092"}, GroupID: "g"}, &nop)
	require.NoError(t, err)
	_, keyed := b.(messaging.KeyedPublisher)
	assert.True(t, keyed)
	assert.NoError(t, b.Close())
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_type", Value: []byte("AppointmentCreated")}})
	require.Len(t, headers, 2)

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}
