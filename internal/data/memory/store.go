// Package memory provides a single-process store implementing the account
// store, the transaction log and the unit of work. It backs development runs
// and the engine's property tests.
package memory

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Store keeps accounts and records behind one mutex. A unit of work holds the
// mutex for its whole duration and applies its staged writes only on success.
type Store struct {
	mu        sync.Mutex
	accounts  map[uuid.UUID]*account.Account
	emails    map[string]uuid.UUID
	byAccount map[uuid.UUID][]*ledger.Record
	recordIDs map[uuid.UUID]struct{}
	sequence  int64
	now       func() time.Time
}

var (
	_ account.Repository = (*Store)(nil)
	_ ledger.Log         = (*Store)(nil)
	_ ledger.UnitOfWork  = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		accounts:  make(map[uuid.UUID]*account.Account),
		emails:    make(map[string]uuid.UUID),
		byAccount: make(map[uuid.UUID][]*ledger.Record),
		recordIDs: make(map[uuid.UUID]struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new account; the email must be unused
func (s *Store) Create(ctx context.Context, acc *account.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[acc.Email]; taken {
		return account.ErrDuplicateEmail{Email: acc.Email}
	}
	stored := *acc
	s.accounts[acc.ID] = &stored
	s.emails[acc.Email] = acc.ID
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	snapshot := *acc
	return &snapshot, nil
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	id, ok := s.emails[email]
	s.mu.Unlock()
	if !ok {
		return nil, account.ErrAccountNotFound{Email: email}
	}
	return s.GetByID(ctx, id)
}

func (s *Store) AtomicAdjust(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return 0, account.ErrAccountNotFound{AccountID: id}
	}
	next, err := adjusted(acc.Balance, delta)
	if err != nil {
		return 0, err
	}
	acc.Balance = next
	acc.UpdatedAt = s.now()
	return next, nil
}

func (s *Store) Quarantine(ctx context.Context, id uuid.UUID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return account.ErrAccountNotFound{AccountID: id}
	}
	at := s.now()
	acc.QuarantinedAt = &at
	acc.QuarantineReason = reason
	return nil
}

func (s *Store) ReleaseQuarantine(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[id]
	if !ok {
		return account.ErrAccountNotFound{AccountID: id}
	}
	acc.QuarantinedAt = nil
	acc.QuarantineReason = ""
	return nil
}

func (s *Store) Append(ctx context.Context, record *ledger.Record) error {
	return s.AppendMany(ctx, []*ledger.Record{record})
}

func (s *Store) AppendMany(ctx context.Context, records []*ledger.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkAppendable(records, nil); err != nil {
		return err
	}
	s.commitRecords(records)
	return nil
}

// ListByAccount returns copies so callers cannot mutate stored records
func (s *Store) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.byAccount[accountID]
	records := make([]*ledger.Record, 0, len(stored))
	for _, r := range stored {
		records = append(records, r.Clone())
	}
	ledger.SortNewestFirst(records)
	return records, nil
}

func (s *Store) Contains(ctx context.Context, recordID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.recordIDs[recordID]
	return ok, nil
}

// RunInUnit serialises units against every other store operation
func (s *Store) RunInUnit(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &unitTx{store: s, balances: make(map[uuid.UUID]int64)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	// A cancelled caller observes either the whole unit or none of it
	if err := ctx.Err(); err != nil {
		return err
	}

	at := s.now()
	for id, balance := range tx.balances {
		acc := s.accounts[id]
		acc.Balance = balance
		acc.UpdatedAt = at
	}
	s.commitRecords(tx.records)
	return nil
}

// checkAppendable must be called with mu held
func (s *Store) checkAppendable(records []*ledger.Record, staged []*ledger.Record) error {
	if err := ledger.ValidateBatch(records); err != nil {
		return shared.NewError(shared.KindInvalidAmount, "invalid transaction records", err)
	}
	seen := make(map[uuid.UUID]struct{}, len(records)+len(staged))
	for _, r := range staged {
		seen[r.ID] = struct{}{}
	}
	for _, r := range records {
		if _, ok := s.accounts[r.AccountID]; !ok {
			return account.ErrAccountNotFound{AccountID: r.AccountID}
		}
		if _, dup := s.recordIDs[r.ID]; dup {
			return ledger.ErrDuplicateRecord{RecordID: r.ID}
		}
		if _, dup := seen[r.ID]; dup {
			return ledger.ErrDuplicateRecord{RecordID: r.ID}
		}
		seen[r.ID] = struct{}{}
	}
	return nil
}

// commitRecords must be called with mu held
func (s *Store) commitRecords(records []*ledger.Record) {
	for _, r := range records {
		s.sequence++
		stored := r.Clone()
		stored.Sequence = s.sequence
		r.Sequence = s.sequence
		s.byAccount[r.AccountID] = append(s.byAccount[r.AccountID], stored)
		s.recordIDs[r.ID] = struct{}{}
	}
}

// unitTx stages balances and records until the unit commits
type unitTx struct {
	store    *Store
	balances map[uuid.UUID]int64
	records  []*ledger.Record
}

func (t *unitTx) AtomicAdjust(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	current, staged := t.balances[id]
	if !staged {
		acc, ok := t.store.accounts[id]
		if !ok {
			return 0, account.ErrAccountNotFound{AccountID: id}
		}
		current = acc.Balance
	}
	next, err := adjusted(current, delta)
	if err != nil {
		return 0, err
	}
	t.balances[id] = next
	return next, nil
}

func (t *unitTx) AppendMany(ctx context.Context, records []*ledger.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.store.checkAppendable(records, t.records); err != nil {
		return err
	}
	t.records = append(t.records, records...)
	return nil
}

func adjusted(balance, delta int64) (int64, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, shared.NewError(shared.KindInvalidAmount, "balance would overflow", nil)
	}
	next := balance + delta
	if next < 0 {
		return 0, shared.ConditionFailed(nil)
	}
	return next, nil
}
