package producers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

const topicProbeAttempts = 5

// ensureTopic creates topicName unless its partitions can be read. Reads are
// retried while the broker is not answering yet; an unknown topic is created
// right away.
func ensureTopic(ctx context.Context, brokers, topicName string, numPartitions, replicationFactor int, log *slog.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokers)
	if err != nil {
		return fmt.Errorf("failed to dial kafka: %w", err)
	}
	defer conn.Close()

	var partitions []kafka.Partition
	probe := func() error {
		var readErr error
		partitions, readErr = conn.ReadPartitions(topicName)
		if errors.Is(readErr, kafka.UnknownTopicOrPartition) {
			return backoff.Permanent(readErr)
		}
		return readErr
	}
	notify := func(err error, next time.Duration) {
		log.Warn("Failed to read partitions, retrying", "topic", topicName, "next_attempt_in", next.String(), "error", err)
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), topicProbeAttempts-1), ctx)
	if err := backoff.RetryNotify(probe, b, notify); err == nil && len(partitions) > 0 {
		log.Info("Kafka topic already exists", "topic", topicName, "partitions", len(partitions))
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	topicConfig := kafka.TopicConfig{
		Topic:             topicName,
		NumPartitions:     numPartitions,
		ReplicationFactor: replicationFactor,
	}
	if topicConfig.NumPartitions == 0 {
		topicConfig.NumPartitions = 1
	}
	if topicConfig.ReplicationFactor == 0 {
		topicConfig.ReplicationFactor = 1
	}

	log.Info("Creating Kafka topic", "topic", topicName, "partitions", topicConfig.NumPartitions)
	if err := conn.CreateTopics(topicConfig); err != nil {
		return fmt.Errorf("failed to create kafka topic %s: %w", topicName, err)
	}
	return nil
}
