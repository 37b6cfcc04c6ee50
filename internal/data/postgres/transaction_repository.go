package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/domain/outbox"
	"github.com/banking-ledger-engine/internal/domain/shared"
	"github.com/banking-ledger-engine/internal/platform/persistence"
)

const recordColumns = `id, sequence, account_id, kind, amount, counterparty_account_id, transfer_id, linked_record_id, correlation_id, created_at`

// TransactionRepository implements ledger.Log for PostgreSQL. Every appended
// record also gets an outbox row in the same transaction.
type TransactionRepository struct {
	querier  persistence.Querier
	beginner persistence.TxBeginner // nil when bound to a transaction
	logger   *slog.Logger
}

var _ ledger.Log = (*TransactionRepository)(nil)

func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) *TransactionRepository {
	return &TransactionRepository{
		querier:  db.Pool(),
		beginner: db.Pool(),
		logger:   logger,
	}
}

// WithTx returns a repository bound to tx
func (r *TransactionRepository) WithTx(tx pgx.Tx) *TransactionRepository {
	return &TransactionRepository{
		querier: tx,
		logger:  r.logger,
	}
}

func (r *TransactionRepository) Append(ctx context.Context, record *ledger.Record) error {
	return r.AppendMany(ctx, []*ledger.Record{record})
}

// AppendMany writes records in one transaction, or inside the bound one
func (r *TransactionRepository) AppendMany(ctx context.Context, records []*ledger.Record) error {
	if err := ledger.ValidateBatch(records); err != nil {
		return shared.NewError(shared.KindInvalidAmount, "invalid transaction records", err)
	}
	if r.beginner == nil {
		return r.insertAll(ctx, records)
	}

	err := persistence.ExecuteTx(ctx, r.beginner, func(tx pgx.Tx) error {
		return r.WithTx(tx).insertAll(ctx, records)
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

func (r *TransactionRepository) insertAll(ctx context.Context, records []*ledger.Record) error {
	query := `
		INSERT INTO transaction_records (id, account_id, kind, amount, counterparty_account_id, transfer_id, linked_record_id, correlation_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING sequence
	`
	outboxRepo := &OutboxRepository{querier: r.querier, logger: r.logger}

	for _, record := range records {
		err := r.querier.QueryRow(ctx, query,
			record.ID,
			record.AccountID,
			record.Kind,
			record.Amount,
			record.CounterpartyAccountID,
			record.TransferID,
			record.LinkedRecordID,
			record.CorrelationID,
			record.Timestamp,
		).Scan(&record.Sequence)
		if err != nil {
			if isUniqueViolation(err) {
				return ledger.ErrDuplicateRecord{RecordID: record.ID}
			}
			r.logger.Error("Failed to append transaction record",
				"record_id", record.ID.String(),
				"account_id", record.AccountID.String(),
				"error", err,
			)
			return fmt.Errorf("failed to append transaction record: %w", classify(err))
		}

		message, err := outbox.NewMessage(record)
		if err != nil {
			return fmt.Errorf("failed to build outbox message: %w", err)
		}
		if err := outboxRepo.Create(ctx, message); err != nil {
			return err
		}
	}
	return nil
}

func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID uuid.UUID) ([]*ledger.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM transaction_records
		WHERE account_id = $1
		ORDER BY created_at DESC, sequence DESC
	`

	rows, err := r.querier.Query(ctx, query, accountID)
	if err != nil {
		r.logger.Error("Failed to list transaction records", "account_id", accountID.String(), "error", err)
		return nil, fmt.Errorf("failed to list transaction records: %w", classify(err))
	}
	defer rows.Close()

	records := make([]*ledger.Record, 0)
	for rows.Next() {
		var record ledger.Record
		err := rows.Scan(
			&record.ID,
			&record.Sequence,
			&record.AccountID,
			&record.Kind,
			&record.Amount,
			&record.CounterpartyAccountID,
			&record.TransferID,
			&record.LinkedRecordID,
			&record.CorrelationID,
			&record.Timestamp,
		)
		if err != nil {
			r.logger.Error("Failed to scan transaction record", "error", err)
			return nil, fmt.Errorf("failed to scan transaction record: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over transaction records", "error", err)
		return nil, fmt.Errorf("error iterating over transaction records: %w", classify(err))
	}

	return records, nil
}

func (r *TransactionRepository) Contains(ctx context.Context, recordID uuid.UUID) (bool, error) {
	var exists bool
	err := r.querier.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM transaction_records WHERE id = $1)`, recordID).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to look up transaction record", "record_id", recordID.String(), "error", err)
		return false, fmt.Errorf("failed to look up transaction record: %w", classify(err))
	}
	return exists, nil
}
