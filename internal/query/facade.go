// Package query serves read-only projections of the ledger: current balances
// straight from the account store and transaction history from the log.
package query

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/ledger"
)

// BalanceReader is the account store read used for balances
type BalanceReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

// HistoryReader is the transaction log read used for history
type HistoryReader interface {
	ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*ledger.Record, error)
}

// BalanceView is the presentation form of an account balance
type BalanceView struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	AsOf      string `json:"as_of"`
}

// RecordView is the presentation form of a transaction record
type RecordView struct {
	ID                    string `json:"id"`
	AccountID             string `json:"account_id"`
	Kind                  string `json:"kind"`
	Amount                int64  `json:"amount"`
	CounterpartyAccountID string `json:"counterparty_account_id,omitempty"`
	TransferID            string `json:"transfer_id,omitempty"`
	Timestamp             string `json:"timestamp"`
}

type Facade struct {
	accounts BalanceReader
	log      HistoryReader
	logger   *slog.Logger
	now      func() time.Time
}

func NewFacade(logger *slog.Logger, accounts BalanceReader, log HistoryReader) *Facade {
	return &Facade{
		accounts: accounts,
		log:      log,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CurrentBalance reads the committed balance on every call
func (f *Facade) CurrentBalance(ctx context.Context, accountID uuid.UUID) (*BalanceView, error) {
	acc, err := f.accounts.GetByID(ctx, accountID)
	if err != nil {
		f.logger.Debug("Balance lookup failed", "account_id", accountID.String(), "error", err)
		return nil, err
	}
	return &BalanceView{
		AccountID: acc.ID.String(),
		Balance:   acc.Balance,
		AsOf:      formatTime(f.now()),
	}, nil
}

// History returns the account's records newest first. An account without
// records yields an empty, non-nil slice.
func (f *Facade) History(ctx context.Context, accountID uuid.UUID) ([]RecordView, error) {
	records, err := f.log.ListByAccount(ctx, accountID)
	if err != nil {
		f.logger.Debug("History lookup failed", "account_id", accountID.String(), "error", err)
		return nil, err
	}

	views := make([]RecordView, 0, len(records))
	for _, r := range records {
		views = append(views, toView(r))
	}
	return views, nil
}

func toView(r *ledger.Record) RecordView {
	v := RecordView{
		ID:        r.ID.String(),
		AccountID: r.AccountID.String(),
		Kind:      string(r.Kind),
		Amount:    r.Amount,
		Timestamp: formatTime(r.Timestamp),
	}
	if r.CounterpartyAccountID != nil {
		v.CounterpartyAccountID = r.CounterpartyAccountID.String()
	}
	if r.TransferID != nil {
		v.TransferID = r.TransferID.String()
	}
	return v
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
