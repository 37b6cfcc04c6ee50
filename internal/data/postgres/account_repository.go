// Package postgres provides PostgreSQL implementations of the account store,
// the transaction log, the outbox and the ledger unit of work.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/shared"
	"github.com/banking-ledger-engine/internal/platform/persistence"
)

const accountColumns = `id, name, email, password_hash, balance, created_at, updated_at, quarantined_at, quarantine_reason`

// AccountRepository implements account.Repository for PostgreSQL
type AccountRepository struct {
	querier persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	logger  *slog.Logger
}

var _ account.Repository = (*AccountRepository)(nil)

func NewAccountRepository(logger *slog.Logger, db *persistence.PostgresDB) *AccountRepository {
	return &AccountRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// WithTx returns a repository bound to tx
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	return &AccountRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// Create stores a new account. A taken email yields account.ErrDuplicateEmail.
func (r *AccountRepository) Create(ctx context.Context, acc *account.Account) error {
	query := `
		INSERT INTO accounts (id, name, email, password_hash, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.querier.Exec(ctx, query,
		acc.ID,
		acc.Name,
		acc.Email,
		acc.PasswordHash,
		acc.Balance,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrDuplicateEmail{Email: acc.Email}
		}
		r.logger.Error("Failed to create account", "error", err)
		return fmt.Errorf("failed to create account: %w", classify(err))
	}

	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{AccountID: id}
		}
		r.logger.Error("Failed to get account", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get account: %w", classify(err))
	}

	return acc, nil
}

// GetByEmail expects an already normalised email
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE email = $1`

	acc, err := scanAccount(r.querier.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrAccountNotFound{Email: email}
		}
		r.logger.Error("Failed to get account by email", "error", err)
		return nil, fmt.Errorf("failed to get account by email: %w", classify(err))
	}

	return acc, nil
}

// AtomicAdjust applies delta in a single conditional statement. No row back
// means either the account is missing or the balance would go negative.
func (r *AccountRepository) AtomicAdjust(ctx context.Context, id uuid.UUID, delta int64) (int64, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`

	var balance int64
	err := r.querier.QueryRow(ctx, query, delta, id).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		r.logger.Error("Failed to adjust account balance", "id", id.String(), "delta", delta, "error", err)
		return 0, fmt.Errorf("failed to adjust account balance: %w", classify(err))
	}

	exists, err := r.exists(ctx, id)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, account.ErrAccountNotFound{AccountID: id}
	}
	return 0, shared.ConditionFailed(nil)
}

func (r *AccountRepository) Quarantine(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE accounts
		SET quarantined_at = NOW(), quarantine_reason = $1, updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.querier.Exec(ctx, query, reason, id)
	if err != nil {
		r.logger.Error("Failed to quarantine account", "id", id.String(), "error", err)
		return fmt.Errorf("failed to quarantine account: %w", classify(err))
	}
	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound{AccountID: id}
	}
	return nil
}

func (r *AccountRepository) ReleaseQuarantine(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE accounts
		SET quarantined_at = NULL, quarantine_reason = '', updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to release account quarantine", "id", id.String(), "error", err)
		return fmt.Errorf("failed to release account quarantine: %w", classify(err))
	}
	if result.RowsAffected() == 0 {
		return account.ErrAccountNotFound{AccountID: id}
	}
	return nil
}

func (r *AccountRepository) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.querier.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		r.logger.Error("Failed to check account existence", "id", id.String(), "error", err)
		return false, fmt.Errorf("failed to check account existence: %w", classify(err))
	}
	return exists, nil
}

func scanAccount(row pgx.Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID,
		&acc.Name,
		&acc.Email,
		&acc.PasswordHash,
		&acc.Balance,
		&acc.CreatedAt,
		&acc.UpdatedAt,
		&acc.QuarantinedAt,
		&acc.QuarantineReason,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}
