package ledger_projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/outbox"
	"github.com/banking-ledger-engine/internal/domain/shared"
	"github.com/banking-ledger-engine/internal/platform/messaging/producers"
)

// RecordMirror stores records committed by the ledger database
type RecordMirror interface {
	Mirror(ctx context.Context, record *ledger.Record) error
}

// EventHandler projects ledger events into a read-side transaction log
type EventHandler struct {
	mirror   RecordMirror
	producer producers.DeadLetterPublisher
	logger   *slog.Logger
}

func NewEventHandler(logger *slog.Logger, mirror RecordMirror, producer producers.DeadLetterPublisher) *EventHandler {
	return &EventHandler{
		mirror:   mirror,
		producer: producer,
		logger:   logger,
	}
}

// HandleMessage mirrors one ledger event. Returning nil commits the offset;
// an error makes the consumer retry the same message.
func (h *EventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event outbox.LedgerEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return h.deadLetter(ctx, key, value, "Failed to unmarshal ledger event", err)
	}

	if event.EventType != outbox.EventTypeRecordAppended {
		h.logger.Warn("Skipping ledger event of unknown type",
			"event_type", event.EventType,
			"event_id", event.EventID.String(),
		)
		return nil
	}
	if event.Record == nil {
		return h.deadLetter(ctx, key, value, "Ledger event carries no record", errors.New("missing record"))
	}

	logger := h.logger
	if event.Record.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.Record.CorrelationID)
	}

	if err := h.mirror.Mirror(ctx, event.Record); err != nil {
		if errors.Is(err, shared.ErrInvalidAmount) {
			return h.deadLetter(ctx, key, value, "Ledger event carries an invalid record", err)
		}
		logger.Error("Failed to mirror ledger record",
			"record_id", event.Record.ID.String(),
			"account_id", event.Record.AccountID.String(),
			"error", err,
		)
		return fmt.Errorf("mirroring record %s failed: %w", event.Record.ID.String(), err)
	}

	logger.Debug("Mirrored ledger record",
		"record_id", event.Record.ID.String(),
		"account_id", event.Record.AccountID.String(),
		"kind", event.Record.Kind,
	)
	return nil
}

// deadLetter parks an unprocessable message. Without a working DLQ the
// message is retried so it is never silently dropped.
func (h *EventHandler) deadLetter(ctx context.Context, key, value []byte, message string, cause error) error {
	h.logger.Error(message,
		"error", cause,
		"message_key", string(key),
	)

	if h.producer != nil {
		dlqReason := fmt.Sprintf("%s: %s", message, cause.Error())
		if dlqErr := h.producer.PublishToDLQ(ctx, string(key), value, dlqReason); dlqErr != nil {
			h.logger.Error("Failed to publish message to DLQ",
				"dlq_error", dlqErr,
				"original_error", cause,
				"message_key", string(key),
			)
		} else {
			h.logger.Info("Successfully published unprocessable message to DLQ", "message_key", string(key), "reason", dlqReason)
			return nil
		}
	}
	return fmt.Errorf("unprocessable ledger event: %w", cause)
}
