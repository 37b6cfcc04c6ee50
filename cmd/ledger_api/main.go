package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/banking-ledger-engine/internal/api_gateway"
	"github.com/banking-ledger-engine/internal/auth"
	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/ledger_engine"
	"github.com/banking-ledger-engine/internal/logger"
	"github.com/banking-ledger-engine/internal/query"
)

func main() {
	releaseID := pflag.String("release-quarantine", "", "lift the quarantine on the given account id and exit")
	pflag.Parse()

	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("ledger_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Ledger API",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
		"backend", cfg.Ledger.Backend,
	)

	st, err := openStores(appCtx, log, cfg)
	if err != nil {
		log.Error("Failed to initialize ledger stores", "error", err)
		os.Exit(1)
	}

	engine := ledger_engine.NewEngine(log, &cfg.Ledger, st.accounts, st.log, st.units)
	if !engine.Transactional() {
		log.Warn("Ledger backend has no multi-record transactions, transfers use compensation")
	}
	if *releaseID != "" {
		os.Exit(releaseQuarantine(appCtx, log, engine, st, *releaseID))
	}

	pooled, err := ledger_engine.NewPooledEngine(engine, cfg.Ledger.MaxConcurrentOps, log)
	if err != nil {
		log.Error("Failed to initialize engine worker pool", "error", err)
		os.Exit(1)
	}

	tokens := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Application.Name)
	server := api_gateway.NewServer(log, cfg, api_gateway.Services{
		Auth:    auth.NewService(log, st.accounts, tokens, cfg.Auth.BcryptCost),
		Engine:  pooled,
		Queries: query.NewFacade(log, st.accounts, st.log),
		Stores:  st.pingers,
	})
	log.Info("REST server initialized")

	errChan := make(chan error, 1)

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	log.Info("Starting graceful shutdown...")

	// drain in-flight requests before the stores go away
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}
	pooled.Shutdown()
	cancelAppCtx()
	st.close(shutdownCtx)

	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}

// releaseQuarantine is the operator path for clearing an account after manual
// reconciliation. It returns the process exit code.
func releaseQuarantine(ctx context.Context, log *slog.Logger, engine *ledger_engine.Engine, st *stores, rawID string) int {
	defer st.close(ctx)

	accountID, err := uuid.Parse(rawID)
	if err != nil {
		log.Error("Invalid account id", "account_id", rawID, "error", err)
		return 2
	}
	if err := engine.ReleaseQuarantine(ctx, accountID); err != nil {
		log.Error("Failed to release account quarantine", "account_id", rawID, "error", err)
		return 1
	}
	return 0
}
