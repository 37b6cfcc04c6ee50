package outbox_relay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/domain/outbox"
	"github.com/banking-ledger-engine/internal/domain/shared"
	"github.com/banking-ledger-engine/internal/platform/messaging/producers"
)

// Poller relays pending outbox messages to the ledger events topic.
// Messages of one account are published one at a time in outbox order;
// different accounts are published concurrently on a worker pool.
type Poller struct {
	outboxRepo       outbox.Repository
	publisher        producers.EventPublisher
	deadLetters      producers.DeadLetterPublisher
	pool             *ants.Pool
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	workers int,
	outboxRepo outbox.Repository,
	publisher producers.EventPublisher,
	deadLetters producers.DeadLetterPublisher,
	logger *slog.Logger,
) (*Poller, error) {
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create relay worker pool: %w", err)
	}

	return &Poller{
		outboxRepo:       outboxRepo,
		publisher:        publisher,
		deadLetters:      deadLetters,
		pool:             pool,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}, nil
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Relay",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
		"workers", p.pool.Cap(),
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Relay stopping due to context cancellation.")
			return
		case <-ticker.C:
			p.logger.Debug("Outbox Relay tick: processing pending messages")
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// Shutdown releases the worker pool
func (p *Poller) Shutdown() {
	p.logger.Info("Shutting down relay worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}

func (p *Poller) processPendingMessages(ctx context.Context) error {
	messages, err := p.outboxRepo.GetPending(ctx, p.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending outbox messages: %w", err)
	}

	if len(messages) == 0 {
		p.logger.Debug("No pending outbox messages found.")
		return nil
	}

	p.logger.Info("Fetched pending outbox messages", "count", len(messages))

	var wg sync.WaitGroup
	for _, group := range groupByAccount(messages) {
		group := group
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			p.relayAccount(ctx, group)
		})
		if err != nil {
			wg.Done()
			p.logger.Error("Failed to submit outbox batch to worker pool",
				"account_id", group[0].AccountID.String(),
				"error", err,
			)
		}
	}
	wg.Wait()
	return nil
}

// groupByAccount splits messages per account, keeping outbox order inside each group
func groupByAccount(messages []*outbox.Message) [][]*outbox.Message {
	index := make(map[uuid.UUID]int)
	var groups [][]*outbox.Message
	for _, msg := range messages {
		i, ok := index[msg.AccountID]
		if !ok {
			i = len(groups)
			index[msg.AccountID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], msg)
	}
	return groups
}

// relayAccount publishes one account's messages in order. A message that stays
// pending blocks the rest of its group until the next tick.
func (p *Poller) relayAccount(ctx context.Context, group []*outbox.Message) {
	for _, msg := range group {
		if ctx.Err() != nil {
			return
		}
		if !p.relay(ctx, msg) {
			return
		}
	}
}

// relay reports whether msg left the pending state
func (p *Poller) relay(ctx context.Context, msg *outbox.Message) bool {
	logger := p.logger
	if correlationID := msg.CorrelationID(); correlationID != "" {
		logger = p.logger.With("correlation_id", correlationID)
	}

	err := p.publisher.PublishEvent(ctx, msg)
	if err == nil {
		if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusProcessed); errUpdate != nil {
			// the event will be published again on the next tick
			logger.Error("Failed to mark outbox message as PROCESSED", "outbox_id", msg.ID, "error", errUpdate)
			return false
		}
		logger.Info("Published outbox message", "outbox_id", msg.ID, "record_id", msg.RecordID.String())
		return true
	}

	logger.Error("Failed to publish outbox message",
		"outbox_id", msg.ID, "record_id", msg.RecordID.String(), "current_attempts", msg.Attempts, "error", err,
	)

	if errInc := p.outboxRepo.IncrementAttempts(ctx, msg.ID); errInc != nil {
		logger.Error("Failed to increment attempts for outbox message", "outbox_id", msg.ID, "error", errInc)
		return false
	}

	if msg.Attempts+1 < p.maxRetryAttempts {
		return false
	}

	logger.Warn("Max retry attempts reached for outbox message, routing to DLQ",
		"outbox_id", msg.ID, "record_id", msg.RecordID.String(), "attempts_made", msg.Attempts+1,
	)
	if p.deadLetters != nil {
		reason := fmt.Sprintf("publish failed after %d attempts: %v", msg.Attempts+1, err)
		if dlqErr := p.deadLetters.PublishToDLQ(ctx, strconv.FormatInt(msg.ID, 10), msg.Payload, reason); dlqErr != nil {
			logger.Error("Failed to publish outbox message to DLQ", "outbox_id", msg.ID, "error", dlqErr)
		}
	}
	if errUpdate := p.outboxRepo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
		logger.Error("Failed to update outbox status to FAILED_TO_PUBLISH after max retries", "outbox_id", msg.ID, "error", errUpdate)
		return false
	}
	return true
}
