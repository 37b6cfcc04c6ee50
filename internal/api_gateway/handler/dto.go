package handler

import (
	"github.com/shopspring/decimal"
)

// RegisterRequest represents a request to open a new account
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest represents a request for a session token
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AccountResponse represents an account in API responses
type AccountResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Balance   int64  `json:"balance"`
	CreatedAt string `json:"created_at"`
}

// SessionResponse carries a bearer token
type SessionResponse struct {
	AccountID string `json:"account_id"`
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
	ExpiresAt string `json:"expires_at"`
}

// AmountRequest is the body of deposits and withdrawals. Amount is in major
// units, e.g. "12.50"; it may be sent as a JSON string or number.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TransferRequest names the recipient by id or by email, not both
type TransferRequest struct {
	ToAccountID    string          `json:"to_account_id" binding:"omitempty,uuid"`
	ToAccountEmail string          `json:"to_account_email"`
	Amount         decimal.Decimal `json:"amount"`
}

// BalanceResponse reports a balance in minor units together with its display form
type BalanceResponse struct {
	AccountID        string `json:"account_id"`
	Balance          int64  `json:"balance"`
	BalanceFormatted string `json:"balance_formatted"`
	RecordID         string `json:"record_id,omitempty"`
	AsOf             string `json:"as_of,omitempty"`
}

// TransferResponse represents a completed transfer
type TransferResponse struct {
	TransferID             string `json:"transfer_id"`
	FromAccountID          string `json:"from_account_id"`
	ToAccountID            string `json:"to_account_id"`
	Amount                 int64  `json:"amount"`
	SenderBalance          int64  `json:"sender_balance"`
	SenderBalanceFormatted string `json:"sender_balance_formatted"`
	Status                 string `json:"status"`
	Timestamp              string `json:"timestamp"`
}
