// Package auth registers accounts and issues the session tokens that the HTTP
// guard turns into a ledger caller identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

const minPasswordLength = 8

var (
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", minPasswordLength)
)

// Session is the outcome of a successful login
type Session struct {
	AccountID uuid.UUID
	Token     string
	ExpiresAt time.Time
}

type Service struct {
	accounts   account.Repository
	tokens     *TokenIssuer
	bcryptCost int
	logger     *slog.Logger
}

func NewService(logger *slog.Logger, accounts account.Repository, tokens *TokenIssuer, bcryptCost int) *Service {
	return &Service{
		accounts:   accounts,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
}

// Register creates an account with a zero balance
func (s *Service) Register(ctx context.Context, name, email, password string) (*account.Account, error) {
	if len(strings.TrimSpace(password)) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	acc, err := account.NewAccount(name, email, string(hash))
	if err != nil {
		return nil, err
	}

	if err := s.accounts.Create(ctx, acc); err != nil {
		var dup account.ErrDuplicateEmail
		if errors.As(err, &dup) {
			return nil, ErrEmailTaken
		}
		s.logger.Error("Failed to create account", "email", acc.Email, "error", err)
		return nil, fmt.Errorf("failed to register account: %w", err)
	}

	s.logger.Info("Account registered", "account_id", acc.ID.String())
	return acc, nil
}

// Login checks the credentials and issues a session token
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	normalized, err := account.NormalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	acc, err := s.accounts.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("Login rejected", "account_id", acc.ID.String())
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(acc.ID)
	if err != nil {
		return nil, err
	}

	return &Session{AccountID: acc.ID, Token: token, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a session token to the account it was issued for
func (s *Service) Authenticate(token string) (uuid.UUID, error) {
	return s.tokens.Verify(token)
}
