// Package ledger_engine performs deposits, withdrawals and transfers as
// atomic, invariant-preserving state transitions over the account store and
// the transaction log.
//
// With a ledger.UnitOfWork every operation runs in one store transaction.
// Without one the engine applies steps in order and reverses the applied
// ones when a later step fails.
package ledger_engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/money"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

// Operations is the engine surface consumed by transports
type Operations interface {
	Deposit(ctx context.Context, caller Caller, amount money.Amount) (*BalanceResult, error)
	Withdraw(ctx context.Context, caller Caller, amount money.Amount) (*BalanceResult, error)
	Transfer(ctx context.Context, caller Caller, to RecipientRef, amount money.Amount) (*TransferConfirmation, error)
}

type Engine struct {
	accounts account.Store
	log      ledger.Log
	units    ledger.UnitOfWork // nil selects the compensating path
	resolver *RecipientResolver
	cfg      config.LedgerConfig
	logger   *slog.Logger
	now      func() time.Time
}

var _ Operations = (*Engine)(nil)

func NewEngine(
	logger *slog.Logger,
	cfg *config.LedgerConfig,
	accounts account.Store,
	log ledger.Log,
	units ledger.UnitOfWork,
) *Engine {
	return &Engine{
		accounts: accounts,
		log:      log,
		units:    units,
		resolver: NewRecipientResolver(accounts),
		cfg:      *cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Transactional reports whether operations run inside store transactions
func (e *Engine) Transactional() bool {
	return e.units != nil
}

func (e *Engine) loggerFor(caller Caller) *slog.Logger {
	if caller.CorrelationID != "" {
		return e.logger.With("correlation_id", caller.CorrelationID)
	}
	return e.logger
}

// Deposit credits the caller's account and records one deposit
func (e *Engine) Deposit(ctx context.Context, caller Caller, amount money.Amount) (*BalanceResult, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	logger := e.loggerFor(caller)

	res, err := withRetry(ctx, e, logger, "deposit", func() (*BalanceResult, error) {
		record := ledger.NewDeposit(caller.AccountID, amount.MinorUnits(), caller.CorrelationID, e.now())
		return e.applySingle(ctx, logger, record, amount.MinorUnits())
	})
	if err != nil {
		logger.Warn("Deposit failed", "account_id", caller.AccountID.String(), "amount", amount.String(), "error", err)
		return nil, err
	}

	logger.Info("Deposit completed", "account_id", caller.AccountID.String(), "amount", amount.String(), "balance", res.Balance)
	return res, nil
}

// Withdraw debits the caller's account if the balance covers amount
func (e *Engine) Withdraw(ctx context.Context, caller Caller, amount money.Amount) (*BalanceResult, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	logger := e.loggerFor(caller)

	res, err := withRetry(ctx, e, logger, "withdraw", func() (*BalanceResult, error) {
		record := ledger.NewWithdrawal(caller.AccountID, amount.MinorUnits(), caller.CorrelationID, e.now())
		res, err := e.applySingle(ctx, logger, record, -amount.MinorUnits())
		if err != nil {
			return nil, e.explainRefusal(ctx, err, caller.AccountID, amount.MinorUnits())
		}
		return res, nil
	})
	if err != nil {
		logger.Warn("Withdrawal failed", "account_id", caller.AccountID.String(), "amount", amount.String(), "error", err)
		return nil, err
	}

	logger.Info("Withdrawal completed", "account_id", caller.AccountID.String(), "amount", amount.String(), "balance", res.Balance)
	return res, nil
}

// Transfer moves amount from the caller to the resolved recipient as one unit
func (e *Engine) Transfer(ctx context.Context, caller Caller, to RecipientRef, amount money.Amount) (*TransferConfirmation, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	logger := e.loggerFor(caller)

	recipient, err := e.resolver.Resolve(ctx, to)
	if err != nil {
		logger.Warn("Transfer recipient resolution failed", "recipient", to.String(), "error", err)
		return nil, err
	}
	if recipient.ID == caller.AccountID {
		return nil, shared.ErrSelfTransfer
	}

	res, err := withRetry(ctx, e, logger, "transfer", func() (*TransferConfirmation, error) {
		// Re-read on every attempt so a quarantine set by a failed attempt holds
		if err := e.refuseQuarantined(ctx, logger, caller.AccountID, recipient.ID); err != nil {
			return nil, err
		}
		out, in := ledger.NewTransferPair(caller.AccountID, recipient.ID, amount.MinorUnits(), caller.CorrelationID, e.now())

		var (
			balance int64
			err     error
		)
		if e.units != nil {
			balance, err = e.transferInUnit(ctx, out, in)
		} else {
			balance, err = e.transferCompensating(ctx, logger, out, in)
		}
		if err != nil {
			return nil, e.explainRefusal(ctx, err, caller.AccountID, amount.MinorUnits())
		}

		return &TransferConfirmation{
			TransferID:    *out.TransferID,
			FromAccountID: caller.AccountID,
			ToAccountID:   recipient.ID,
			Amount:        amount.MinorUnits(),
			SenderBalance: balance,
			Status:        shared.TransferStatusCompleted,
			Timestamp:     out.Timestamp,
		}, nil
	})
	if err != nil {
		logger.Warn("Transfer failed",
			"from_account_id", caller.AccountID.String(),
			"to_account_id", recipient.ID.String(),
			"amount", amount.String(),
			"error", err,
		)
		return nil, err
	}

	logger.Info("Transfer completed",
		"transfer_id", res.TransferID.String(),
		"from_account_id", caller.AccountID.String(),
		"to_account_id", recipient.ID.String(),
		"amount", amount.String(),
	)
	return res, nil
}

// refuseQuarantined fails with ErrAccountQuarantined if any of ids is held
// for manual review
func (e *Engine) refuseQuarantined(ctx context.Context, logger *slog.Logger, ids ...uuid.UUID) error {
	for _, id := range ids {
		acc, err := e.accounts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if acc.IsQuarantined() {
			logger.Warn("Transfer refused on quarantined account",
				"account_id", acc.ID.String(),
				"quarantined_at", acc.QuarantinedAt,
				"reason", acc.QuarantineReason,
			)
			return shared.ErrAccountQuarantined
		}
	}
	return nil
}

// ReleaseQuarantine lifts a quarantine once an operator has reconciled the
// account. Releasing an account that is not quarantined is a no-op.
func (e *Engine) ReleaseQuarantine(ctx context.Context, accountID uuid.UUID) error {
	acc, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.IsQuarantined() {
		e.logger.Info("Account is not quarantined", "account_id", accountID.String())
		return nil
	}
	if err := e.accounts.ReleaseQuarantine(ctx, accountID); err != nil {
		return err
	}
	e.logger.Warn("Account quarantine released",
		"account_id", accountID.String(),
		"quarantined_at", acc.QuarantinedAt,
		"reason", acc.QuarantineReason,
		"balance", acc.Balance,
	)
	return nil
}

// applySingle adjusts one account by delta and records it
func (e *Engine) applySingle(ctx context.Context, logger *slog.Logger, record *ledger.Record, delta int64) (*BalanceResult, error) {
	var (
		balance int64
		err     error
	)
	if e.units != nil {
		err = e.units.RunInUnit(ctx, func(ctx context.Context, tx ledger.Tx) error {
			var adjErr error
			if balance, adjErr = tx.AtomicAdjust(ctx, record.AccountID, delta); adjErr != nil {
				return adjErr
			}
			return tx.AppendMany(ctx, []*ledger.Record{record})
		})
	} else {
		balance, err = e.applySingleCompensating(ctx, logger, record, delta)
	}
	if err != nil {
		return nil, err
	}
	return &BalanceResult{AccountID: record.AccountID, Balance: balance, RecordID: record.ID}, nil
}

// transferInUnit adjusts both accounts in ascending id order so opposite
// transfers lock rows in the same order
func (e *Engine) transferInUnit(ctx context.Context, out, in *ledger.Record) (int64, error) {
	adjustments := []struct {
		id    uuid.UUID
		delta int64
	}{
		{out.AccountID, -out.Amount},
		{in.AccountID, in.Amount},
	}
	if bytes.Compare(in.AccountID[:], out.AccountID[:]) < 0 {
		adjustments[0], adjustments[1] = adjustments[1], adjustments[0]
	}

	var senderBalance int64
	err := e.units.RunInUnit(ctx, func(ctx context.Context, tx ledger.Tx) error {
		for _, adj := range adjustments {
			balance, err := tx.AtomicAdjust(ctx, adj.id, adj.delta)
			if err != nil {
				return err
			}
			if adj.id == out.AccountID {
				senderBalance = balance
			}
		}
		return tx.AppendMany(ctx, []*ledger.Record{out, in})
	})
	return senderBalance, err
}

// explainRefusal turns a refused debit into INSUFFICIENT_FUNDS when a fresh
// read shows the balance does not cover amount. Otherwise the refusal was a
// lost race and stays retryable.
func (e *Engine) explainRefusal(ctx context.Context, err error, accountID uuid.UUID, amount int64) error {
	if shared.KindOf(err) != shared.KindConditionFailed {
		return err
	}
	acc, readErr := e.accounts.GetByID(ctx, accountID)
	if readErr != nil {
		return errors.Join(err, readErr)
	}
	if acc.Balance < amount {
		return shared.ErrInsufficientFunds
	}
	return err
}
