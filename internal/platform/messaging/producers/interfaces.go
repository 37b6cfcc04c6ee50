package producers

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/banking-ledger-engine/internal/domain/outbox"
)

// EventPublisher publishes committed ledger records taken from the outbox
type EventPublisher interface {
	PublishEvent(ctx context.Context, message *outbox.Message) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
