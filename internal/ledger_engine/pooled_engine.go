package ledger_engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/banking-ledger-engine/internal/domain/money"
)

// PooledEngine bounds the number of in-flight engine operations with a
// worker pool. Callers block until a worker is free or their context ends.
type PooledEngine struct {
	engine Operations
	pool   *ants.Pool
	logger *slog.Logger
}

var _ Operations = (*PooledEngine)(nil)

func NewPooledEngine(engine Operations, size int, logger *slog.Logger) (*PooledEngine, error) {
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, err
	}

	return &PooledEngine{
		engine: engine,
		pool:   pool,
		logger: logger,
	}, nil
}

func (p *PooledEngine) Deposit(ctx context.Context, caller Caller, amount money.Amount) (*BalanceResult, error) {
	return submit(ctx, p, caller, "deposit", func() (*BalanceResult, error) {
		return p.engine.Deposit(ctx, caller, amount)
	})
}

func (p *PooledEngine) Withdraw(ctx context.Context, caller Caller, amount money.Amount) (*BalanceResult, error) {
	return submit(ctx, p, caller, "withdraw", func() (*BalanceResult, error) {
		return p.engine.Withdraw(ctx, caller, amount)
	})
}

func (p *PooledEngine) Transfer(ctx context.Context, caller Caller, to RecipientRef, amount money.Amount) (*TransferConfirmation, error) {
	return submit(ctx, p, caller, "transfer", func() (*TransferConfirmation, error) {
		return p.engine.Transfer(ctx, caller, to, amount)
	})
}

// submit runs fn on a pool worker and waits for its outcome. A caller whose
// context ends before a worker picks fn up gets ctx.Err() and fn never runs.
// Once fn has started the wait ignores ctx so the caller learns whether the
// operation applied.
func submit[T any](ctx context.Context, p *PooledEngine, caller Caller, name string, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s not scheduled: %w", name, err)
	}

	const (
		pending int32 = iota
		started
		abandoned
	)
	var state atomic.Int32
	resultChan := make(chan result, 1)
	submitted := make(chan error, 1)

	go func() {
		submitted <- p.pool.Submit(func() {
			if !state.CompareAndSwap(pending, started) {
				return
			}
			value, err := fn()
			resultChan <- result{value: value, err: err}
		})
	}()

	select {
	case err := <-submitted:
		if err != nil {
			p.logger.Error("Failed to submit ledger operation to worker pool",
				"operation", name,
				"account_id", caller.AccountID.String(),
				"error", err,
			)
			return zero, fmt.Errorf("failed to schedule %s: %w", name, err)
		}
	case <-ctx.Done():
		if state.CompareAndSwap(pending, abandoned) {
			p.logger.Warn("Ledger operation abandoned while waiting for a worker",
				"operation", name,
				"account_id", caller.AccountID.String(),
				"error", ctx.Err(),
			)
			return zero, fmt.Errorf("%s not scheduled: %w", name, ctx.Err())
		}
	}

	r := <-resultChan
	return r.value, r.err
}

// Shutdown stops accepting operations; later calls fail with ants.ErrPoolClosed
func (p *PooledEngine) Shutdown() {
	p.logger.Info("Shutting down ledger worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}

func (p *PooledEngine) Running() int {
	return p.pool.Running()
}

func (p *PooledEngine) Capacity() int {
	return p.pool.Cap()
}
