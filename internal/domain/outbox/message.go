package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Message stores a committed ledger record for reliable event publishing
type Message struct {
	ID            int64               `json:"id"`
	RecordID      uuid.UUID           `json:"record_id"`
	AccountID     uuid.UUID           `json:"account_id"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// LedgerEvent is the payload published for every committed record
type LedgerEvent struct {
	EventID   uuid.UUID      `json:"event_id"`
	EventType string         `json:"event_type"`
	Record    *ledger.Record `json:"record"`
}

// EventTypeRecordAppended is the only event type emitted today
const EventTypeRecordAppended = "ledger.record_appended"

func NewMessage(record *ledger.Record) (*Message, error) {
	payload, err := json.Marshal(LedgerEvent{
		EventID:   record.ID,
		EventType: EventTypeRecordAppended,
		Record:    record,
	})
	if err != nil {
		return nil, err
	}

	return &Message{
		RecordID:  record.ID,
		AccountID: record.AccountID,
		Payload:   payload,
		Status:    shared.OutboxStatusPending,
		Attempts:  0,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// GetEvent decodes the ledger event from the payload
func (m *Message) GetEvent() (*LedgerEvent, error) {
	var event LedgerEvent
	if err := json.Unmarshal(m.Payload, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CorrelationID extracts the correlation id carried by the payload, if readable
func (m *Message) CorrelationID() string {
	event, err := m.GetEvent()
	if err != nil || event.Record == nil {
		return ""
	}
	return event.Record.CorrelationID
}
