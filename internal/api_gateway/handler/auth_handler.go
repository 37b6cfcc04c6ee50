package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/banking-ledger-engine/internal/auth"
	"github.com/banking-ledger-engine/internal/domain/account"
)

// AuthService registers accounts and opens sessions
type AuthService interface {
	Register(ctx context.Context, name, email, password string) (*account.Account, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
}

// AuthHandler handles registration and login
type AuthHandler struct {
	authService AuthService
	logger      *slog.Logger
}

func NewAuthHandler(logger *slog.Logger, authService AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// Register opens an account with a zero balance
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	acc, err := h.authService.Register(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailTaken):
			RespondConflict(c, "An account with this email already exists")
		case errors.Is(err, auth.ErrWeakPassword),
			errors.Is(err, account.ErrInvalidEmail),
			errors.Is(err, account.ErrEmptyName):
			RespondBadRequest(c, err.Error())
		default:
			h.logger.Error("Failed to register account", "correlation_id", correlationID(c), "error", err)
			RespondInternalError(c)
		}
		return
	}

	RespondCreated(c, AccountResponse{
		ID:        acc.ID.String(),
		Name:      acc.Name,
		Email:     acc.Email,
		Balance:   acc.Balance,
		CreatedAt: acc.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Login exchanges credentials for a bearer token
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	session, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			RespondUnauthorized(c, "Invalid email or password")
			return
		}
		h.logger.Error("Failed to log in", "correlation_id", correlationID(c), "error", err)
		RespondLedgerError(c, err)
		return
	}

	RespondOK(c, SessionResponse{
		AccountID: session.AccountID.String(),
		Token:     session.Token,
		TokenType: "Bearer",
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
