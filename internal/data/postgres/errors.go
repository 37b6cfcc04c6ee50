package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/banking-ledger-engine/internal/domain/shared"
)

// PostgreSQL error codes the adapters react to
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeNumericOutOfRange    = "22003"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeTooManyConnections   = "53300"
	codeAdminShutdown        = "57P01"
	codeCannotConnectNow     = "57P03"
)

// classify maps driver failures onto the ledger error taxonomy.
// Errors it does not recognise are returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable, codeCheckViolation:
			return shared.ConditionFailed(err)
		case codeNumericOutOfRange:
			return shared.NewError(shared.KindInvalidAmount, "balance would overflow", err)
		case codeTooManyConnections, codeAdminShutdown, codeCannotConnectNow:
			return shared.StoreUnavailable(err)
		}
		// Connection exception class
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return shared.StoreUnavailable(err)
		}
		return err
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) || pgconn.Timeout(err) {
		return shared.StoreUnavailable(err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return shared.StoreUnavailable(err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation
}
