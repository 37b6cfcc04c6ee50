package auth

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/banking-ledger-engine/internal/data/memory"
	"github.com/banking-ledger-engine/internal/domain/account"
)

const testSecret = "test-secret-of-sufficient-length"

func newTestService() (*Service, *memory.Store) {
	store := memory.NewStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := NewTokenIssuer(testSecret, time.Hour, "ledger-engine-test")
	return NewService(logger, store, tokens, bcrypt.MinCost), store
}

func TestService_Register(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	acc, err := svc.Register(ctx, "Alice", " Alice@Example.com ", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", acc.Email)
	assert.Zero(t, acc.Balance)
	assert.NotEqual(t, "correct horse", acc.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("correct horse")))

	stored, err := store.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, stored.ID)
}

func TestService_RegisterRejections(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "Alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	tests := []struct {
		name     string
		userName string
		email    string
		password string
		expected error
	}{
		{"duplicate email", "Alice Again", "ALICE@example.com", "another password", ErrEmailTaken},
		{"short password", "Bob", "bob@example.com", "short", ErrWeakPassword},
		{"invalid email", "Bob", "bob-at-example", "long enough password", account.ErrInvalidEmail},
		{"empty name", "  ", "bob@example.com", "long enough password", account.ErrEmptyName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := svc.Register(ctx, tt.userName, tt.email, tt.password)
			assert.Nil(t, acc)
			assert.ErrorIs(t, err, tt.expected)
		})
	}
}

func TestService_Login(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	acc, err := svc.Register(ctx, "Alice", "alice@example.com", "correct horse")
	require.NoError(t, err)

	session, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, acc.ID, session.AccountID)
	assert.NotEmpty(t, session.Token)
	assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)

	id, err := svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, id)

	_, err = svc.Login(ctx, "alice@example.com", "wrong horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "not an email", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenIssuer_Verify(t *testing.T) {
	accountID := uuid.New()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	issuer := NewTokenIssuer(testSecret, 10*time.Minute, "ledger-engine-test")
	issuer.now = func() time.Time { return base }
	token, expiresAt, err := issuer.Issue(accountID)
	require.NoError(t, err)
	assert.Equal(t, base.Add(10*time.Minute), expiresAt)

	id, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, accountID, id)

	t.Run("expired", func(t *testing.T) {
		later := NewTokenIssuer(testSecret, 10*time.Minute, "ledger-engine-test")
		later.now = func() time.Time { return base.Add(11 * time.Minute) }
		_, err := later.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer("a-completely-different-secret", 10*time.Minute, "ledger-engine-test")
		other.now = issuer.now
		_, err := other.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
