package outbox_relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/outbox"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

var testOutboxConfig = &config.OutboxConfig{
	PollingInterval:  time.Second,
	BatchSize:        10,
	MaxRetryAttempts: 3,
}

func newMessage(t *testing.T, id int64, accountID uuid.UUID, attempts int) *outbox.Message {
	t.Helper()
	msg, err := outbox.NewMessage(ledger.NewDeposit(accountID, 100*id, "corr-relay", time.Now()))
	require.NoError(t, err)
	msg.ID = id
	msg.Attempts = attempts
	return msg
}

type relayMocks struct {
	repo        *MockOutboxRepo
	publisher   *MockEventPublisher
	deadLetters *MockDeadLetterPublisher
}

func newTestPoller(t *testing.T) (*Poller, relayMocks) {
	t.Helper()
	mocks := relayMocks{
		repo:        &MockOutboxRepo{},
		publisher:   &MockEventPublisher{},
		deadLetters: &MockDeadLetterPublisher{},
	}
	poller, err := NewPoller(testOutboxConfig, 4, mocks.repo, mocks.publisher, mocks.deadLetters, slog.Default())
	require.NoError(t, err)
	t.Cleanup(poller.Shutdown)
	return poller, mocks
}

func (m relayMocks) assertExpectations(t *testing.T) {
	m.repo.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
	m.deadLetters.AssertExpectations(t)
}

func TestPoller_ProcessPendingMessages(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()

	t.Run("PublishesEveryAccountAndMarksProcessed", func(t *testing.T) {
		poller, mocks := newTestPoller(t)
		m1, m2, m3 := newMessage(t, 1, alice, 0), newMessage(t, 2, bob, 0), newMessage(t, 3, alice, 0)

		mocks.repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{m1, m2, m3}, nil).Once()
		for _, msg := range []*outbox.Message{m1, m2, m3} {
			mocks.publisher.On("PublishEvent", mock.Anything, msg).Return(nil).Once()
			mocks.repo.On("UpdateStatus", mock.Anything, msg.ID, shared.OutboxStatusProcessed).Return(nil).Once()
		}

		require.NoError(t, poller.processPendingMessages(context.Background()))
		mocks.assertExpectations(t)
	})

	t.Run("ErrorGettingPendingMessages", func(t *testing.T) {
		poller, mocks := newTestPoller(t)
		mocks.repo.On("GetPending", mock.Anything, 10).Return(nil, errors.New("db error")).Once()

		err := poller.processPendingMessages(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get pending outbox messages")
		mocks.assertExpectations(t)
	})

	t.Run("NoPendingMessages", func(t *testing.T) {
		poller, mocks := newTestPoller(t)
		mocks.repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{}, nil).Once()

		require.NoError(t, poller.processPendingMessages(context.Background()))
		mocks.assertExpectations(t)
		mocks.publisher.AssertNotCalled(t, "PublishEvent", mock.Anything, mock.Anything)
	})

	t.Run("FailureHoldsBackLaterMessagesOfSameAccount", func(t *testing.T) {
		poller, mocks := newTestPoller(t)
		a1, b1, a2 := newMessage(t, 1, alice, 0), newMessage(t, 2, bob, 0), newMessage(t, 3, alice, 0)

		mocks.repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{a1, b1, a2}, nil).Once()
		mocks.publisher.On("PublishEvent", mock.Anything, a1).Return(errors.New("broker down")).Once()
		mocks.repo.On("IncrementAttempts", mock.Anything, int64(1)).Return(nil).Once()
		mocks.publisher.On("PublishEvent", mock.Anything, b1).Return(nil).Once()
		mocks.repo.On("UpdateStatus", mock.Anything, int64(2), shared.OutboxStatusProcessed).Return(nil).Once()

		require.NoError(t, poller.processPendingMessages(context.Background()))
		mocks.assertExpectations(t)
		mocks.publisher.AssertNotCalled(t, "PublishEvent", mock.Anything, a2)
	})

	t.Run("MaxRetryAttemptsRoutesToDLQ", func(t *testing.T) {
		poller, mocks := newTestPoller(t)
		exhausted, next := newMessage(t, 3, alice, 2), newMessage(t, 4, alice, 0)

		mocks.repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{exhausted, next}, nil).Once()
		mocks.publisher.On("PublishEvent", mock.Anything, exhausted).Return(errors.New("message too large")).Once()
		mocks.repo.On("IncrementAttempts", mock.Anything, int64(3)).Return(nil).Once()
		mocks.deadLetters.On("PublishToDLQ", mock.Anything, "3", []byte(exhausted.Payload), mock.MatchedBy(func(reason string) bool {
			return strings.Contains(reason, "3 attempts") && strings.Contains(reason, "message too large")
		})).Return(nil).Once()
		mocks.repo.On("UpdateStatus", mock.Anything, int64(3), shared.OutboxStatusFailedToPublish).Return(nil).Once()
		mocks.publisher.On("PublishEvent", mock.Anything, next).Return(nil).Once()
		mocks.repo.On("UpdateStatus", mock.Anything, int64(4), shared.OutboxStatusProcessed).Return(nil).Once()

		require.NoError(t, poller.processPendingMessages(context.Background()))
		mocks.assertExpectations(t)
	})

	t.Run("IncrementFailureStopsAccount", func(t *testing.T) {
		poller, mocks := newTestPoller(t)
		a1, a2 := newMessage(t, 5, alice, 2), newMessage(t, 6, alice, 0)

		mocks.repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{a1, a2}, nil).Once()
		mocks.publisher.On("PublishEvent", mock.Anything, a1).Return(errors.New("broker down")).Once()
		mocks.repo.On("IncrementAttempts", mock.Anything, int64(5)).Return(errors.New("db error")).Once()

		require.NoError(t, poller.processPendingMessages(context.Background()))
		mocks.assertExpectations(t)
		mocks.deadLetters.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		mocks.publisher.AssertNotCalled(t, "PublishEvent", mock.Anything, a2)
	})

	t.Run("StatusUpdateFailureStopsAccount", func(t *testing.T) {
		poller, mocks := newTestPoller(t)
		a1, a2 := newMessage(t, 7, alice, 0), newMessage(t, 8, alice, 0)

		mocks.repo.On("GetPending", mock.Anything, 10).Return([]*outbox.Message{a1, a2}, nil).Once()
		mocks.publisher.On("PublishEvent", mock.Anything, a1).Return(nil).Once()
		mocks.repo.On("UpdateStatus", mock.Anything, int64(7), shared.OutboxStatusProcessed).Return(errors.New("db error")).Once()

		require.NoError(t, poller.processPendingMessages(context.Background()))
		mocks.assertExpectations(t)
		mocks.publisher.AssertNotCalled(t, "PublishEvent", mock.Anything, a2)
	})
}

func TestGroupByAccount(t *testing.T) {
	alice, bob := uuid.New(), uuid.New()
	a1, b1, a2, b2 := newMessage(t, 1, alice, 0), newMessage(t, 2, bob, 0), newMessage(t, 3, alice, 0), newMessage(t, 4, bob, 0)

	groups := groupByAccount([]*outbox.Message{a1, b1, a2, b2})

	require.Len(t, groups, 2)
	assert.Equal(t, []*outbox.Message{a1, a2}, groups[0])
	assert.Equal(t, []*outbox.Message{b1, b2}, groups[1])
}

func TestPoller_Start(t *testing.T) {
	mocks := relayMocks{repo: &MockOutboxRepo{}, publisher: &MockEventPublisher{}, deadLetters: &MockDeadLetterPublisher{}}
	cfg := &config.OutboxConfig{PollingInterval: 10 * time.Millisecond, BatchSize: 10, MaxRetryAttempts: 3}
	poller, err := NewPoller(cfg, 2, mocks.repo, mocks.publisher, mocks.deadLetters, slog.Default())
	require.NoError(t, err)
	defer poller.Shutdown()

	polled := make(chan struct{}, 1)
	mocks.repo.On("GetPending", mock.Anything, 10).Run(func(mock.Arguments) {
		select {
		case polled <- struct{}{}:
		default:
		}
	}).Return([]*outbox.Message{}, nil).Maybe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Start(ctx)
		close(done)
	}()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("poller never polled the outbox")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
