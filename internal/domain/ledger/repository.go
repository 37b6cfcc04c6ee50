package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
)

// Log is the append-only transaction history
type Log interface {
	Append(ctx context.Context, record *Record) error

	// AppendMany writes all records or none of them
	AppendMany(ctx context.Context, records []*Record) error

	// ListByAccount returns the account's records, newest first
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*Record, error)

	// Contains reports whether a record with the id has been written
	Contains(ctx context.Context, recordID uuid.UUID) (bool, error)
}

// ErrDuplicateRecord indicates record id uniqueness violation
type ErrDuplicateRecord struct {
	RecordID uuid.UUID
}

func (e ErrDuplicateRecord) Error() string {
	return "duplicate transaction record: " + e.RecordID.String()
}

// Is implements the errors.Is interface for ErrDuplicateRecord
func (e ErrDuplicateRecord) Is(target error) bool {
	t, ok := target.(ErrDuplicateRecord)
	if !ok {
		return false
	}
	// If the target RecordID is empty, consider it a match for any ErrDuplicateRecord
	if t.RecordID == uuid.Nil {
		return true
	}
	return e.RecordID == t.RecordID
}

// SortNewestFirst orders records by timestamp descending, breaking ties on sequence
func SortNewestFirst(records []*Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Sequence > records[j].Sequence
	})
}
