package ledger

import (
	"context"

	"github.com/google/uuid"
)

// Tx is the set of store operations visible inside one atomic unit
type Tx interface {
	AtomicAdjust(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error)
	AppendMany(ctx context.Context, records []*Record) error
}

// UnitOfWork runs fn so that every adjustment and append it makes commits
// together or not at all. Stores without multi-record transactions do not
// implement it.
type UnitOfWork interface {
	RunInUnit(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
