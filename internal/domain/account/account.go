package account

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Common errors
var (
	ErrEmptyName     = errors.New("name cannot be empty")
	ErrInvalidEmail  = errors.New("email address is invalid")
	ErrEmptyPassword = errors.New("password hash cannot be empty")
)

// Account represents a ledger account
type Account struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Balance          int64      `json:"balance"` // Stored in cents/minor units
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	QuarantinedAt    *time.Time `json:"quarantined_at,omitempty"`
	QuarantineReason string     `json:"quarantine_reason,omitempty"`
}

// NewAccount creates an account with a zero balance
func NewAccount(name, email, passwordHash string) (*Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, ErrEmptyPassword
	}

	now := time.Now().UTC()
	return &Account{
		ID:           uuid.New(),
		Name:         name,
		Email:        normalized,
		PasswordHash: passwordHash,
		Balance:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// NormalizeEmail lower-cases and validates an address used as the alternate lookup key
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// IsQuarantined reports whether transfers on this account are halted
func (a *Account) IsQuarantined() bool {
	return a.QuarantinedAt != nil
}
