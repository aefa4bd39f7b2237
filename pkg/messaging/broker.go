package messaging

import (
	"context"
	"encoding/json"
	"fmt"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// KeyedPublisher is implemented by brokers that can route messages sharing
// a key to the same partition, preserving their relative order.
type KeyedPublisher interface {
	PublishKeyed(ctx context.Context, channel, key string, message interface{}) error
}

// PublishKeyed uses the broker's keyed path when it has one and falls back
// to a plain publish otherwise.
func PublishKeyed(ctx context.Context, b Broker, channel, key string, message interface{}) error {
	if kp, ok := b.(KeyedPublisher); ok {
		return kp.PublishKeyed(ctx, channel, key, message)
	}
	return b.Publish(ctx, channel, message)
}

// Encode serializes a message for the wire. Raw bytes and json.RawMessage
// are sent as they are.
func Encode(message interface{}) ([]byte, error) {
	switch m := message.(type) {
	case []byte:
		return m, nil
	case json.RawMessage:
		return m, nil
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}
	return payload, nil
}
