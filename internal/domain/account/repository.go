package account

import (
	"context"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Store is the account surface the ledger engine depends on
type Store interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)

	// AtomicAdjust applies delta to the balance and returns the new balance.
	// It refuses with shared.ErrConditionFailed when the result would be negative.
	AtomicAdjust(ctx context.Context, id uuid.UUID, delta int64) (int64, error)

	// Quarantine halts transfers on the account until ReleaseQuarantine is called
	Quarantine(ctx context.Context, id uuid.UUID, reason string) error
	ReleaseQuarantine(ctx context.Context, id uuid.UUID) error
}

// Repository adds account creation for registration
type Repository interface {
	Store
	Create(ctx context.Context, account *Account) error
}

// ErrAccountNotFound indicates missing account
type ErrAccountNotFound struct {
	AccountID uuid.UUID
	Email     string
}

func (e ErrAccountNotFound) Error() string {
	if e.Email != "" {
		return "account not found: " + e.Email
	}
	return "account not found: " + e.AccountID.String()
}

func (e ErrAccountNotFound) Unwrap() error {
	return shared.ErrAccountNotFound
}

// ErrDuplicateEmail indicates email uniqueness violation
type ErrDuplicateEmail struct {
	Email string
}

func (e ErrDuplicateEmail) Error() string {
	return "account with email already exists: " + e.Email
}
