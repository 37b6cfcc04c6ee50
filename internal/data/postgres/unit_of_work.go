package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/platform/persistence"
)

// UnitOfWork runs ledger units inside one PostgreSQL transaction
type UnitOfWork struct {
	db       persistence.TxBeginner
	accounts *AccountRepository
	records  *TransactionRepository
	logger   *slog.Logger
}

var _ ledger.UnitOfWork = (*UnitOfWork)(nil)

func NewUnitOfWork(logger *slog.Logger, db *persistence.PostgresDB, accounts *AccountRepository, records *TransactionRepository) *UnitOfWork {
	return &UnitOfWork{
		db:       db.Pool(),
		accounts: accounts,
		records:  records,
		logger:   logger,
	}
}

// RunInUnit commits when fn returns nil and rolls back otherwise. A failed
// commit is classified so serialization failures surface as ConditionFailed.
func (u *UnitOfWork) RunInUnit(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	err := persistence.ExecuteTx(ctx, u.db, func(tx pgx.Tx) error {
		return fn(ctx, &unitTx{
			accounts: u.accounts.WithTx(tx),
			records:  u.records.WithTx(tx),
		})
	})
	if err != nil {
		u.logger.Debug("Ledger unit rolled back", "error", err)
		return classify(err)
	}
	return nil
}

type unitTx struct {
	accounts *AccountRepository
	records  *TransactionRepository
}

func (t *unitTx) AtomicAdjust(ctx context.Context, accountID uuid.UUID, delta int64) (int64, error) {
	return t.accounts.AtomicAdjust(ctx, accountID, delta)
}

func (t *unitTx) AppendMany(ctx context.Context, records []*ledger.Record) error {
	return t.records.AppendMany(ctx, records)
}
