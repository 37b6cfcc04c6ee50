package api_gateway

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/banking-ledger-engine/internal/api_gateway/handler"
	"github.com/banking-ledger-engine/internal/api_gateway/middleware"
)

// setupRouter configures API routes and middleware for the application
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	verifier middleware.TokenVerifier,
	authHandler *handler.AuthHandler,
	ledgerHandler *handler.LedgerHandler,
	healthHandler *handler.HealthHandler,
) {
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	v1 := r.Group("/api/v1")
	{
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
		}

		// Everything below acts on the account named by the bearer token
		guarded := v1.Group("", middleware.Authenticate(verifier, logger))
		{
			guarded.GET("/balance", ledgerHandler.Balance)
			guarded.POST("/deposit", ledgerHandler.Deposit)
			guarded.POST("/withdraw", ledgerHandler.Withdraw)
			guarded.POST("/transfer", ledgerHandler.Transfer)
			guarded.GET("/transactions", ledgerHandler.History)
		}
	}

	r.GET("/health", healthHandler.Check)
}
