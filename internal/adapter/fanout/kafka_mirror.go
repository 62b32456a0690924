package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/carepulse/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer used by the mirror.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DefaultMirrorTimeout bounds a single mirrored write when no timeout is configured.
const DefaultMirrorTimeout = 2 * time.Second

// KafkaMirror copies every published message to a Kafka topic for consumers outside
// the dashboard. The fan-out channel is used as the record key.
type KafkaMirror struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *slog.Logger
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaMirror wraps a writer. Each write is cut off after timeout.
func NewKafkaMirror(writer MessageWriter, timeout time.Duration, logger *slog.Logger) *KafkaMirror {
	if timeout <= 0 {
		timeout = DefaultMirrorTimeout
	}
	return &KafkaMirror{
		writer:  writer,
		timeout: timeout,
		logger:  logger.With("component", "fanout_kafka_mirror"),
	}
}

// Publish writes msg under its own deadline. Cancelling ctx does not abort a write
// already in flight.
func (k *KafkaMirror) Publish(ctx context.Context, channel string, msg domain.Message) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(channel),
		Value: value,
		Time:  msg.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(msg.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to mirror message to kafka: %w", err)
	}
	return nil
}

// Close flushes pending writes.
func (k *KafkaMirror) Close() error {
	return k.writer.Close()
}
