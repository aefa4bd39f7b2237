package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

type Config struct {
	Brokers []string
	GroupID string
}

// KafkaBroker publishes through one shared writer; each Subscribe call gets
// its own consumer-group reader.
type KafkaBroker struct {
	writer *kafka.Writer
	config Config
	logger *zerolog.Logger
}

func NewKafkaBroker(config Config, logger *zerolog.Logger) (messaging.Broker, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}

	return &KafkaBroker{
		writer: writer,
		config: config,
		logger: logger,
	}, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, channel string, message interface{}) error {
	return b.PublishKeyed(ctx, channel, "", message)
}

// PublishKeyed hashes key onto a partition so every event for one
// appointment lands on the same partition in order.
func (b *KafkaBroker) PublishKeyed(ctx context.Context, channel, key string, message interface{}) error {
	payload, err := messaging.Encode(message)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: channel,
		Value: payload,
	}
	if key != "" {
		msg.Key = []byte(key)
	}
	msg.Headers = InjectTraceHeaders(ctx, msg.Headers)

	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write to %s: %w", channel, err)
	}
	return nil
}

func (b *KafkaBroker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.config.Brokers,
		GroupID:  b.config.GroupID,
		Topic:    channel,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	msgChan := make(chan []byte, 100)

	go func() {
		defer func() {
			reader.Close()
			close(msgChan)
		}()

		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Error().Err(err).Str("topic", channel).Msg("kafka read error")
				select {
				case <-time.After(time.Second):
					continue
				case <-ctx.Done():
					return
				}
			}

			select {
			case msgChan <- msg.Value:
			case <-ctx.Done():
				return
			}
		}
	}()

	return msgChan, nil
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

// SplitBrokers parses a comma separated broker list, skipping blanks.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
