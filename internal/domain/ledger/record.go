package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Record is one immutable line of an account's transaction history
type Record struct {
	ID                    uuid.UUID              `json:"id"`
	AccountID             uuid.UUID              `json:"account_id"`
	Kind                  shared.TransactionType `json:"kind"`
	Amount                int64                  `json:"amount"` // Stored in cents/minor units
	CounterpartyAccountID *uuid.UUID             `json:"counterparty_account_id,omitempty"`
	TransferID            *uuid.UUID             `json:"transfer_id,omitempty"`
	LinkedRecordID        *uuid.UUID             `json:"linked_record_id,omitempty"`
	CorrelationID         string                 `json:"correlation_id,omitempty"`
	Sequence              int64                  `json:"sequence"`
	Timestamp             time.Time              `json:"timestamp"`
}

var (
	ErrNonPositiveAmount     = errors.New("record amount must be positive")
	ErrUnknownKind           = errors.New("unknown record kind")
	ErrMissingCounterparty   = errors.New("transfer record requires a counterparty")
	ErrUnexpectedCounterpart = errors.New("only transfer records carry a counterparty")
	ErrUnmatchedTransfer     = errors.New("transfer records do not mirror each other")
)

// NewDeposit builds the record for a deposit into accountID
func NewDeposit(accountID uuid.UUID, amount int64, correlationID string, at time.Time) *Record {
	return newRecord(accountID, shared.TransactionTypeDeposit, amount, correlationID, at)
}

// NewWithdrawal builds the record for a withdrawal from accountID
func NewWithdrawal(accountID uuid.UUID, amount int64, correlationID string, at time.Time) *Record {
	return newRecord(accountID, shared.TransactionTypeWithdrawal, amount, correlationID, at)
}

// NewTransferPair builds the mirrored transfer_out/transfer_in records of one transfer.
// Both share a transfer id and reference each other.
func NewTransferPair(from, to uuid.UUID, amount int64, correlationID string, at time.Time) (out *Record, in *Record) {
	transferID := uuid.New()
	out = newRecord(from, shared.TransactionTypeTransferOut, amount, correlationID, at)
	in = newRecord(to, shared.TransactionTypeTransferIn, amount, correlationID, at)

	// Each record owns its references; none point into the other record
	fromID, toID := from, to
	outID, inID := out.ID, in.ID
	outTransferID, inTransferID := transferID, transferID

	out.CounterpartyAccountID = &toID
	in.CounterpartyAccountID = &fromID
	out.TransferID = &outTransferID
	in.TransferID = &inTransferID
	out.LinkedRecordID = &inID
	in.LinkedRecordID = &outID
	return out, in
}

func newRecord(accountID uuid.UUID, kind shared.TransactionType, amount int64, correlationID string, at time.Time) *Record {
	return &Record{
		ID:            uuid.New(),
		AccountID:     accountID,
		Kind:          kind,
		Amount:        amount,
		CorrelationID: correlationID,
		Timestamp:     at.UTC(),
	}
}

// Clone returns a copy that shares no memory with r
func (r *Record) Clone() *Record {
	c := *r
	c.CounterpartyAccountID = cloneID(r.CounterpartyAccountID)
	c.TransferID = cloneID(r.TransferID)
	c.LinkedRecordID = cloneID(r.LinkedRecordID)
	return &c
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// Validate checks the per-record invariants
func (r *Record) Validate() error {
	if r.Amount <= 0 {
		return ErrNonPositiveAmount
	}
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	if r.Kind.IsTransfer() && r.CounterpartyAccountID == nil {
		return ErrMissingCounterparty
	}
	if !r.Kind.IsTransfer() && r.CounterpartyAccountID != nil {
		return ErrUnexpectedCounterpart
	}
	return nil
}

// ValidateBatch checks each record and that every transfer_out in the batch has
// exactly one mirrored transfer_in
func ValidateBatch(records []*Record) error {
	byID := make(map[uuid.UUID]*Record, len(records))
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
		byID[r.ID] = r
	}
	for _, r := range records {
		if !r.Kind.IsTransfer() {
			continue
		}
		if r.LinkedRecordID == nil {
			return ErrUnmatchedTransfer
		}
		other, ok := byID[*r.LinkedRecordID]
		if !ok || !mirrors(r, other) {
			return ErrUnmatchedTransfer
		}
	}
	return nil
}

func mirrors(a, b *Record) bool {
	if a.Kind == b.Kind || !b.Kind.IsTransfer() || a.Amount != b.Amount {
		return false
	}
	if b.LinkedRecordID == nil || *b.LinkedRecordID != a.ID {
		return false
	}
	return *a.CounterpartyAccountID == b.AccountID && *b.CounterpartyAccountID == a.AccountID
}
