package ledger_engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Caller is the authenticated identity an operation runs on behalf of
type Caller struct {
	AccountID     uuid.UUID
	CorrelationID string
}

// RecipientRef names a transfer recipient either by account id or by email
type RecipientRef struct {
	id      uuid.UUID
	email   string
	byEmail bool
}

func ByID(id uuid.UUID) RecipientRef {
	return RecipientRef{id: id}
}

func ByEmail(email string) RecipientRef {
	return RecipientRef{email: email, byEmail: true}
}

func (r RecipientRef) String() string {
	if r.byEmail {
		return "email:" + r.email
	}
	return "id:" + r.id.String()
}

// AccountLookup is the read side of the account store used for resolution
type AccountLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
}

// RecipientResolver turns a RecipientRef into an account
type RecipientResolver struct {
	accounts AccountLookup
}

func NewRecipientResolver(accounts AccountLookup) *RecipientResolver {
	return &RecipientResolver{accounts: accounts}
}

// Resolve returns the recipient account or a RECIPIENT_NOT_FOUND error on a miss
func (r *RecipientResolver) Resolve(ctx context.Context, ref RecipientRef) (*account.Account, error) {
	var (
		acc *account.Account
		err error
	)
	switch {
	case ref.byEmail:
		email, normErr := account.NormalizeEmail(ref.email)
		if normErr != nil {
			return nil, shared.NewError(shared.KindRecipientNotFound, "recipient not found: "+ref.email, normErr)
		}
		acc, err = r.accounts.GetByEmail(ctx, email)
	case ref.id != uuid.Nil:
		acc, err = r.accounts.GetByID(ctx, ref.id)
	default:
		return nil, shared.NewError(shared.KindRecipientNotFound, "recipient not specified", nil)
	}

	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return nil, shared.NewError(shared.KindRecipientNotFound, "recipient not found: "+ref.String(), err)
		}
		return nil, err
	}
	return acc, nil
}

// BalanceResult is returned by deposits and withdrawals
type BalanceResult struct {
	AccountID uuid.UUID
	Balance   int64
	RecordID  uuid.UUID
}

// TransferConfirmation is returned by a completed transfer
type TransferConfirmation struct {
	TransferID    uuid.UUID
	FromAccountID uuid.UUID
	ToAccountID   uuid.UUID
	Amount        int64
	SenderBalance int64
	Status        shared.TransferStatus
	Timestamp     time.Time
}
