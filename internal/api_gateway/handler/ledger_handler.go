package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/banking-ledger-engine/internal/api_gateway/middleware"
	"github.com/banking-ledger-engine/internal/domain/money"
	"github.com/banking-ledger-engine/internal/ledger_engine"
	"github.com/banking-ledger-engine/internal/query"
)

// LedgerQueries is the read side served by the ledger handler
type LedgerQueries interface {
	CurrentBalance(ctx context.Context, accountID uuid.UUID) (*query.BalanceView, error)
	History(ctx context.Context, accountID uuid.UUID) ([]query.RecordView, error)
}

// LedgerHandler serves balance, money movement and history for the
// authenticated account
type LedgerHandler struct {
	engine  ledger_engine.Operations
	queries LedgerQueries
	logger  *slog.Logger
}

func NewLedgerHandler(logger *slog.Logger, engine ledger_engine.Operations, queries LedgerQueries) *LedgerHandler {
	return &LedgerHandler{
		engine:  engine,
		queries: queries,
		logger:  logger,
	}
}

func (h *LedgerHandler) Balance(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	view, err := h.queries.CurrentBalance(c.Request.Context(), caller.AccountID)
	if err != nil {
		RespondLedgerError(c, err)
		return
	}

	RespondOK(c, BalanceResponse{
		AccountID:        view.AccountID,
		Balance:          view.Balance,
		BalanceFormatted: money.FormatMinorUnits(view.Balance),
		AsOf:             view.AsOf,
	})
}

func (h *LedgerHandler) Deposit(c *gin.Context) {
	h.moveFunds(c, h.engine.Deposit)
}

func (h *LedgerHandler) Withdraw(c *gin.Context) {
	h.moveFunds(c, h.engine.Withdraw)
}

func (h *LedgerHandler) moveFunds(c *gin.Context, op func(context.Context, ledger_engine.Caller, money.Amount) (*ledger_engine.BalanceResult, error)) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req AmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	res, err := op(c.Request.Context(), caller, amount)
	if err != nil {
		RespondLedgerError(c, err)
		return
	}

	RespondOK(c, BalanceResponse{
		AccountID:        res.AccountID.String(),
		Balance:          res.Balance,
		BalanceFormatted: money.FormatMinorUnits(res.Balance),
		RecordID:         res.RecordID.String(),
	})
}

func (h *LedgerHandler) Transfer(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	var to ledger_engine.RecipientRef
	email := strings.TrimSpace(req.ToAccountEmail)
	switch {
	case req.ToAccountID != "" && email != "":
		RespondBadRequest(c, "Specify either to_account_id or to_account_email, not both")
		return
	case req.ToAccountID != "":
		id, err := uuid.Parse(req.ToAccountID)
		if err != nil {
			RespondBadRequest(c, "Invalid to_account_id")
			return
		}
		to = ledger_engine.ByID(id)
	case email != "":
		to = ledger_engine.ByEmail(email)
	default:
		RespondBadRequest(c, "to_account_id or to_account_email is required")
		return
	}

	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	conf, err := h.engine.Transfer(c.Request.Context(), caller, to, amount)
	if err != nil {
		RespondLedgerError(c, err)
		return
	}

	RespondOK(c, TransferResponse{
		TransferID:             conf.TransferID.String(),
		FromAccountID:          conf.FromAccountID.String(),
		ToAccountID:            conf.ToAccountID.String(),
		Amount:                 conf.Amount,
		SenderBalance:          conf.SenderBalance,
		SenderBalanceFormatted: money.FormatMinorUnits(conf.SenderBalance),
		Status:                 string(conf.Status),
		Timestamp:              conf.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func (h *LedgerHandler) History(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	records, err := h.queries.History(c.Request.Context(), caller.AccountID)
	if err != nil {
		RespondLedgerError(c, err)
		return
	}
	RespondOK(c, records)
}

// caller builds the engine identity from the guard's account id. A missing id
// means the route was mounted without the guard.
func (h *LedgerHandler) caller(c *gin.Context) (ledger_engine.Caller, bool) {
	accountID, ok := middleware.GetAccountID(c)
	if !ok {
		h.logger.Error("Ledger route reached without an authenticated account", "path", c.Request.URL.Path)
		RespondUnauthorized(c, "")
		return ledger_engine.Caller{}, false
	}
	return ledger_engine.Caller{AccountID: accountID, CorrelationID: correlationID(c)}, true
}

func parseAmount(c *gin.Context, d decimal.Decimal) (money.Amount, bool) {
	amount, err := money.FromDecimal(d)
	if err != nil {
		RespondLedgerError(c, err)
		return 0, false
	}
	return amount, true
}

func correlationID(c *gin.Context) string {
	return middleware.GetCorrelationID(c)
}
