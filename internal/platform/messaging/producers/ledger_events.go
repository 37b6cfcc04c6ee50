package producers

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/segmentio/kafka-go"

	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/domain/outbox"
)

// Header keys attached to every ledger event
const (
	HeaderEventType     = "event-type"
	HeaderRecordID      = "record-id"
	HeaderCorrelationID = "correlation-id"
	HeaderOutboxID      = "outbox-id"
)

// LedgerEventProducer writes ledger events keyed by account id. The hash
// balancer keeps one account's events on one partition, in publish order.
type LedgerEventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

func NewLedgerEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*LedgerEventProducer, error) {
	if cfg.LedgerEventsTopic == "" {
		return nil, fmt.Errorf("kafka ledger events topic is not configured")
	}

	if err := ensureTopic(ctx, cfg.Brokers, cfg.LedgerEventsTopic, cfg.NumPartitions, cfg.ReplicationFactor, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger events topic %s exists: %w", cfg.LedgerEventsTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.LedgerEventsTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false, // the relay marks a row processed only after the broker acknowledged it
		WriteTimeout: cfg.MaxWait,
	}

	return &LedgerEventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.LedgerEventsTopic,
	}, nil
}

func (p *LedgerEventProducer) PublishEvent(ctx context.Context, message *outbox.Message) error {
	headers := []kafka.Header{
		{Key: HeaderEventType, Value: []byte(outbox.EventTypeRecordAppended)},
		{Key: HeaderRecordID, Value: []byte(message.RecordID.String())},
		{Key: HeaderOutboxID, Value: []byte(strconv.FormatInt(message.ID, 10))},
	}
	if correlationID := message.CorrelationID(); correlationID != "" {
		headers = append(headers, kafka.Header{Key: HeaderCorrelationID, Value: []byte(correlationID)})
	}

	key := message.AccountID.String()
	msg := kafka.Message{
		Key:     []byte(key),
		Value:   message.Payload,
		Headers: headers,
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish ledger event",
			"topic", p.topic,
			"key", key,
			"outbox_id", message.ID,
			"error", err,
		)
		return fmt.Errorf("failed to publish ledger event to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published ledger event",
		"topic", p.topic,
		"key", key,
		"record_id", message.RecordID.String(),
	)
	return nil
}

func (p *LedgerEventProducer) Close() error {
	p.logger.Info("Closing ledger event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka writer for topic %s: %w", p.topic, err)
	}
	return nil
}
