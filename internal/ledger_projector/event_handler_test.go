package ledger_projector

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/outbox"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

type MockRecordMirror struct {
	mock.Mock
}

func (m *MockRecordMirror) Mirror(ctx context.Context, record *ledger.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

type MockDeadLetterPublisher struct {
	mock.Mock
}

func (m *MockDeadLetterPublisher) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func (m *MockDeadLetterPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func eventPayload(t *testing.T, record *ledger.Record) []byte {
	t.Helper()
	msg, err := outbox.NewMessage(record)
	require.NoError(t, err)
	return msg.Payload
}

func TestHandleMessage(t *testing.T) {
	ctx := context.Background()
	accountID := uuid.New()
	key := []byte(accountID.String())
	record := ledger.NewDeposit(accountID, 1200, "corr-proj", time.Now())
	matchesRecord := mock.MatchedBy(func(r *ledger.Record) bool {
		return r.ID == record.ID && r.Amount == 1200 && r.CorrelationID == "corr-proj"
	})

	tests := []struct {
		name        string
		value       []byte
		setupMocks  func(mirror *MockRecordMirror, dlq *MockDeadLetterPublisher)
		expectError bool
	}{
		{
			name:  "MirrorsRecord",
			value: eventPayload(t, record),
			setupMocks: func(mirror *MockRecordMirror, _ *MockDeadLetterPublisher) {
				mirror.On("Mirror", mock.Anything, matchesRecord).Return(nil).Once()
			},
		},
		{
			name:  "MirrorUnavailableIsRetried",
			value: eventPayload(t, record),
			setupMocks: func(mirror *MockRecordMirror, _ *MockDeadLetterPublisher) {
				mirror.On("Mirror", mock.Anything, matchesRecord).
					Return(shared.NewError(shared.KindStoreUnavailable, "store unavailable", errors.New("timeout"))).Once()
			},
			expectError: true,
		},
		{
			name:  "InvalidRecordGoesToDLQ",
			value: eventPayload(t, record),
			setupMocks: func(mirror *MockRecordMirror, dlq *MockDeadLetterPublisher) {
				mirror.On("Mirror", mock.Anything, matchesRecord).
					Return(shared.NewError(shared.KindInvalidAmount, "invalid transaction record", ledger.ErrNonPositiveAmount)).Once()
				dlq.On("PublishToDLQ", mock.Anything, string(key), mock.Anything, mock.MatchedBy(func(reason string) bool {
					return strings.Contains(reason, "invalid record")
				})).Return(nil).Once()
			},
		},
		{
			name:  "MalformedPayloadGoesToDLQ",
			value: []byte("{not json"),
			setupMocks: func(_ *MockRecordMirror, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, string(key), []byte("{not json"), mock.AnythingOfType("string")).Return(nil).Once()
			},
		},
		{
			name:  "MissingRecordGoesToDLQ",
			value: []byte(`{"event_type":"ledger.record_appended"}`),
			setupMocks: func(_ *MockRecordMirror, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, string(key), mock.Anything, mock.AnythingOfType("string")).Return(nil).Once()
			},
		},
		{
			name:  "DLQFailureKeepsMessageForRetry",
			value: []byte("{not json"),
			setupMocks: func(_ *MockRecordMirror, dlq *MockDeadLetterPublisher) {
				dlq.On("PublishToDLQ", mock.Anything, string(key), mock.Anything, mock.AnythingOfType("string")).
					Return(errors.New("dlq down")).Once()
			},
			expectError: true,
		},
		{
			name:       "UnknownEventTypeIsSkipped",
			value:      []byte(`{"event_type":"ledger.account_renamed"}`),
			setupMocks: func(*MockRecordMirror, *MockDeadLetterPublisher) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mirror := &MockRecordMirror{}
			dlq := &MockDeadLetterPublisher{}
			handler := NewEventHandler(slog.Default(), mirror, dlq)
			tt.setupMocks(mirror, dlq)

			err := handler.HandleMessage(ctx, key, tt.value)

			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			mirror.AssertExpectations(t)
			dlq.AssertExpectations(t)
		})
	}
}

func TestHandleMessage_WithoutDLQ(t *testing.T) {
	handler := NewEventHandler(slog.Default(), &MockRecordMirror{}, nil)

	err := handler.HandleMessage(context.Background(), []byte("k"), []byte("garbage"))
	require.Error(t, err)

	var syntaxErr *json.SyntaxError
	assert.ErrorAs(t, err, &syntaxErr)
}
