package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/banking-ledger-engine/internal/domain/shared"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind shared.ErrorKind
	}{
		{"serialization failure", &pgconn.PgError{Code: codeSerializationFailure}, shared.KindConditionFailed},
		{"deadlock", &pgconn.PgError{Code: codeDeadlockDetected}, shared.KindConditionFailed},
		{"balance check", &pgconn.PgError{Code: codeCheckViolation}, shared.KindConditionFailed},
		{"overflow", &pgconn.PgError{Code: codeNumericOutOfRange}, shared.KindInvalidAmount},
		{"connection failure", &pgconn.PgError{Code: "08006"}, shared.KindStoreUnavailable},
		{"server shutting down", &pgconn.PgError{Code: codeAdminShutdown}, shared.KindStoreUnavailable},
		{"wrapped deadlock", fmt.Errorf("failed to commit transaction: %w", &pgconn.PgError{Code: codeDeadlockDetected}), shared.KindConditionFailed},
		{"unique violation is left alone", &pgconn.PgError{Code: codeUniqueViolation}, ""},
		{"unknown error is left alone", errors.New("boom"), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classify(tt.err)
			assert.Equal(t, tt.kind, shared.KindOf(classified))
			assert.ErrorIs(t, classified, tt.err)
		})
	}
}

func TestClassify_ContextErrorsPassThrough(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.Equal(t, context.Canceled, classify(context.Canceled))
	assert.Equal(t, context.DeadlineExceeded, classify(context.DeadlineExceeded))
}
