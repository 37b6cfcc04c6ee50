package handler

import (
	"context"
	"io"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/banking-ledger-engine/internal/api_gateway/middleware"
	"github.com/banking-ledger-engine/internal/auth"
	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/money"
	"github.com/banking-ledger-engine/internal/ledger_engine"
	"github.com/banking-ledger-engine/internal/query"
)

type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Register(ctx context.Context, name, email, password string) (*account.Account, error) {
	args := m.Called(ctx, name, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*account.Account), args.Error(1)
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*auth.Session), args.Error(1)
}

type MockOperations struct {
	mock.Mock
}

func (m *MockOperations) Deposit(ctx context.Context, caller ledger_engine.Caller, amount money.Amount) (*ledger_engine.BalanceResult, error) {
	args := m.Called(ctx, caller, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger_engine.BalanceResult), args.Error(1)
}

func (m *MockOperations) Withdraw(ctx context.Context, caller ledger_engine.Caller, amount money.Amount) (*ledger_engine.BalanceResult, error) {
	args := m.Called(ctx, caller, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger_engine.BalanceResult), args.Error(1)
}

func (m *MockOperations) Transfer(ctx context.Context, caller ledger_engine.Caller, to ledger_engine.RecipientRef, amount money.Amount) (*ledger_engine.TransferConfirmation, error) {
	args := m.Called(ctx, caller, to, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger_engine.TransferConfirmation), args.Error(1)
}

type MockLedgerQueries struct {
	mock.Mock
}

func (m *MockLedgerQueries) CurrentBalance(ctx context.Context, accountID uuid.UUID) (*query.BalanceView, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*query.BalanceView), args.Error(1)
}

func (m *MockLedgerQueries) History(ctx context.Context, accountID uuid.UUID) ([]query.RecordView, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]query.RecordView), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// asAccount stands in for the auth guard
func asAccount(id uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.AccountIDKey, id)
		c.Next()
	}
}
