package ledger_engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/shared"
)

// adjustment is a balance change already applied to the account store
type adjustment struct {
	accountID uuid.UUID
	delta     int64
}

func (a adjustment) String() string {
	return fmt.Sprintf("%s%+d", a.accountID, a.delta)
}

func (e *Engine) applySingleCompensating(ctx context.Context, logger *slog.Logger, record *ledger.Record, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	balance, err := e.accounts.AtomicAdjust(ctx, record.AccountID, delta)
	if err != nil {
		if refused(err) {
			return 0, err
		}
		return 0, e.inconsistent(ctx, logger, "adjustment outcome unknown", err, nil, nil, []adjustment{{record.AccountID, delta}})
	}

	records := []*ledger.Record{record}
	if err := e.log.Append(ctx, record); err != nil {
		landed, compErr := e.compensate(ctx, logger, err, records, []adjustment{{record.AccountID, delta}})
		if landed {
			return balance, nil
		}
		return 0, compErr
	}
	return balance, nil
}

// transferCompensating debits, credits and then writes the pair. A failing
// step reverses the adjustments that already applied. A step whose outcome
// cannot be told leaves both accounts quarantined.
func (e *Engine) transferCompensating(ctx context.Context, logger *slog.Logger, out, in *ledger.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	records := []*ledger.Record{out, in}
	debit := adjustment{out.AccountID, -out.Amount}
	credit := adjustment{in.AccountID, in.Amount}

	senderBalance, err := e.accounts.AtomicAdjust(ctx, debit.accountID, debit.delta)
	if err != nil {
		if refused(err) {
			return 0, err
		}
		return 0, e.inconsistent(ctx, logger, "debit outcome unknown", err, nil, records, []adjustment{debit})
	}
	applied := []adjustment{debit}

	if _, err := e.accounts.AtomicAdjust(ctx, credit.accountID, credit.delta); err != nil {
		if refused(err) {
			_, compErr := e.compensate(ctx, logger, err, nil, applied)
			return 0, compErr
		}
		// Reversing the debit could mint money if the credit landed
		return 0, e.inconsistent(ctx, logger, "credit outcome unknown", err, nil, records, []adjustment{debit, credit})
	}
	applied = append(applied, credit)

	if err := e.log.AppendMany(ctx, records); err != nil {
		landed, compErr := e.compensate(ctx, logger, err, records, applied)
		if landed {
			return senderBalance, nil
		}
		return 0, compErr
	}
	return senderBalance, nil
}

// refused reports whether a failed adjustment is known not to have applied.
// Any other failure may have committed before it was reported.
func refused(err error) bool {
	switch shared.KindOf(err) {
	case shared.KindConditionFailed, shared.KindAccountNotFound, shared.KindInvalidAmount, shared.KindInsufficientFunds:
		return true
	}
	return false
}

// compensate settles an operation whose step failed after adjustments were
// applied. It runs detached from caller cancellation under its own deadline.
//
// If the records turn out to have been written the operation is complete and
// landed is true. Otherwise the applied adjustments are reversed newest first
// and cause is returned. Any step that cannot finish yields INCONSISTENT_STATE.
func (e *Engine) compensate(ctx context.Context, logger *slog.Logger, cause error, records []*ledger.Record, applied []adjustment) (landed bool, err error) {
	compCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CompensationTimeout)
	defer cancel()

	if len(records) > 0 {
		// A write reported as failed may still have been applied
		var found bool
		checkErr := e.retryTransient(compCtx, func() error {
			var err error
			found, err = e.log.Contains(compCtx, records[0].ID)
			return err
		})
		if checkErr != nil {
			return false, e.inconsistent(ctx, logger, "transaction log state unknown", cause, checkErr, records, applied)
		}
		if found {
			logger.Warn("Transaction log write reported failure but records are present",
				"record_id", records[0].ID.String(),
				"error", cause,
			)
			return true, nil
		}
	}

	for i := len(applied) - 1; i >= 0; i-- {
		adj := applied[i]
		revErr := e.retryTransient(compCtx, func() error {
			_, err := e.accounts.AtomicAdjust(compCtx, adj.accountID, -adj.delta)
			return err
		})
		if revErr != nil {
			return false, e.inconsistent(ctx, logger, "reversal of "+adj.String()+" failed", cause, revErr, records, applied[:i+1])
		}
	}

	logger.Warn("Reversed partially applied operation",
		"reversed", adjustmentStrings(applied),
		"error", cause,
	)
	return false, cause
}

// inconsistent reports an unrepairable partial operation and quarantines
// every account it touched. compErr may be nil when nothing was attempted
// beyond the failing step.
func (e *Engine) inconsistent(ctx context.Context, logger *slog.Logger, stage string, cause, compErr error, records []*ledger.Record, unrepaired []adjustment) error {
	seen := make(map[uuid.UUID]struct{})
	var accountIDs []uuid.UUID
	for _, adj := range unrepaired {
		if _, ok := seen[adj.accountID]; !ok {
			seen[adj.accountID] = struct{}{}
			accountIDs = append(accountIDs, adj.accountID)
		}
	}
	for _, r := range records {
		if _, ok := seen[r.AccountID]; !ok {
			seen[r.AccountID] = struct{}{}
			accountIDs = append(accountIDs, r.AccountID)
		}
	}

	recordIDs := make([]string, 0, len(records))
	for _, r := range records {
		recordIDs = append(recordIDs, r.ID.String())
	}
	logger.Error("Ledger left in inconsistent state, quarantining accounts",
		"stage", stage,
		"account_ids", uuidStrings(accountIDs),
		"unrepaired_adjustments", adjustmentStrings(unrepaired),
		"record_ids", recordIDs,
		"cause", cause,
		"compensation_error", compErr,
	)

	qCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CompensationTimeout)
	defer cancel()
	reason := stage
	if compErr != nil {
		reason += ": " + compErr.Error()
	}
	for _, id := range accountIDs {
		if err := e.accounts.Quarantine(qCtx, id, reason); err != nil {
			logger.Error("Failed to quarantine account", "account_id", id.String(), "error", err)
		}
	}

	return shared.NewError(shared.KindInconsistentState, "operation could not be compensated: "+stage, errors.Join(cause, compErr))
}

func adjustmentStrings(adjs []adjustment) []string {
	out := make([]string, 0, len(adjs))
	for _, a := range adjs {
		out = append(out, a.String())
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
