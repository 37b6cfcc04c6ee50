package ledger_engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/data/memory"
	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/money"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.LedgerConfig {
	return &config.LedgerConfig{
		Backend:             config.BackendMemory,
		RetryMaxAttempts:    5,
		RetryBaseDelay:      time.Millisecond,
		RetryMaxDelay:       5 * time.Millisecond,
		CompensationTimeout: time.Second,
		MaxConcurrentOps:    8,
	}
}

var modes = []struct {
	name          string
	transactional bool
}{
	{"unit of work", true},
	{"compensating", false},
}

type harness struct {
	store  *memory.Store
	engine *Engine
}

func newHarness(t *testing.T, transactional bool) *harness {
	t.Helper()
	store := memory.NewStore()
	var units ledger.UnitOfWork
	if transactional {
		units = store
	}
	return &harness{
		store:  store,
		engine: NewEngine(newTestLogger(), testConfig(), store, store, units),
	}
}

func (h *harness) open(t *testing.T, email string, balance int64) *account.Account {
	t.Helper()
	acc, err := account.NewAccount("Test User", email, "hash")
	require.NoError(t, err)
	acc.Balance = balance
	require.NoError(t, h.store.Create(context.Background(), acc))
	return acc
}

func (h *harness) balance(t *testing.T, id uuid.UUID) int64 {
	t.Helper()
	acc, err := h.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return acc.Balance
}

func (h *harness) history(t *testing.T, id uuid.UUID) []*ledger.Record {
	t.Helper()
	records, err := h.store.ListByAccount(context.Background(), id)
	require.NoError(t, err)
	return records
}

func caller(id uuid.UUID) Caller {
	return Caller{AccountID: id, CorrelationID: "test-" + id.String()[:8]}
}

func amt(v int64) money.Amount {
	return money.Amount(v)
}

// steppingClock returns strictly increasing timestamps
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

// faultyAccounts injects failures into AtomicAdjust calls
type faultyAccounts struct {
	account.Store
	mu        sync.Mutex
	calls     int
	fail      func(call int, id uuid.UUID, delta int64) error
	landFirst bool // apply the adjustment before reporting the failure
}

func (f *faultyAccounts) AtomicAdjust(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(call, id, delta); err != nil {
			if f.landFirst {
				if _, adjErr := f.Store.AtomicAdjust(context.WithoutCancel(ctx), id, delta); adjErr != nil {
					return 0, adjErr
				}
			}
			return 0, err
		}
	}
	return f.Store.AtomicAdjust(ctx, id, delta)
}

// faultyLog injects failures into log writes and lookups
type faultyLog struct {
	ledger.Log
	appendErr   error
	landFirst   bool // apply the write before reporting appendErr
	containsErr error
	onAppend    func()
}

func (f *faultyLog) Append(ctx context.Context, record *ledger.Record) error {
	return f.AppendMany(ctx, []*ledger.Record{record})
}

func (f *faultyLog) AppendMany(ctx context.Context, records []*ledger.Record) error {
	if f.onAppend != nil {
		f.onAppend()
	}
	if f.appendErr == nil {
		return f.Log.AppendMany(ctx, records)
	}
	if f.landFirst {
		if err := f.Log.AppendMany(context.WithoutCancel(ctx), records); err != nil {
			return err
		}
	}
	return f.appendErr
}

func (f *faultyLog) Contains(ctx context.Context, recordID uuid.UUID) (bool, error) {
	if f.containsErr != nil {
		return false, f.containsErr
	}
	return f.Log.Contains(ctx, recordID)
}

// faultyUnits injects failures into units of work. Not safe for concurrent use.
type faultyUnits struct {
	units             ledger.UnitOfWork
	runs              int
	conditionFailures int // leading runs refused before fn is called
	failAdjustCall    int // 1-based adjust call inside a unit to fail
	adjustErr         error
	appendErr         error
	beforeRun         func(run int)
}

func (f *faultyUnits) RunInUnit(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	f.runs++
	if f.beforeRun != nil {
		f.beforeRun(f.runs)
	}
	if f.runs <= f.conditionFailures {
		return shared.ConditionFailed(nil)
	}
	return f.units.RunInUnit(ctx, func(ctx context.Context, tx ledger.Tx) error {
		return fn(ctx, &faultyTx{Tx: tx, f: f})
	})
}

type faultyTx struct {
	ledger.Tx
	f     *faultyUnits
	calls int
}

func (t *faultyTx) AtomicAdjust(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	t.calls++
	if t.f.failAdjustCall == t.calls {
		return 0, t.f.adjustErr
	}
	return t.Tx.AtomicAdjust(ctx, id, delta)
}

func (t *faultyTx) AppendMany(ctx context.Context, records []*ledger.Record) error {
	if t.f.appendErr != nil {
		return t.f.appendErr
	}
	return t.Tx.AppendMany(ctx, records)
}
