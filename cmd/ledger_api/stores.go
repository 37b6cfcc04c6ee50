package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/banking-ledger-engine/internal/api_gateway/handler"
	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/data/memory"
	"github.com/banking-ledger-engine/internal/data/mongo"
	"github.com/banking-ledger-engine/internal/data/postgres"
	"github.com/banking-ledger-engine/internal/domain/account"
	"github.com/banking-ledger-engine/internal/domain/ledger"
	"github.com/banking-ledger-engine/internal/platform/persistence"
)

// stores holds what the selected ledger backend provides
type stores struct {
	accounts account.Repository
	log      ledger.Log
	units    ledger.UnitOfWork // nil for backends without multi-record transactions
	pingers  map[string]handler.Pinger
	closers  []func(ctx context.Context)
}

func (s *stores) close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i](ctx)
	}
}

func openStores(ctx context.Context, log *slog.Logger, cfg *config.Config) (*stores, error) {
	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		store := memory.NewStore()
		return &stores{accounts: store, log: store, units: store, pingers: map[string]handler.Pinger{}}, nil

	case config.BackendPostgres, config.BackendSplit:
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	accounts := postgres.NewAccountRepository(log, postgresDB)
	s := &stores{
		accounts: accounts,
		pingers:  map[string]handler.Pinger{"postgres": postgresDB},
		closers:  []func(context.Context){func(context.Context) { postgresDB.Close() }},
	}

	if cfg.Ledger.Backend == config.BackendPostgres {
		records := postgres.NewTransactionRepository(log, postgresDB)
		s.log = records
		s.units = postgres.NewUnitOfWork(log, postgresDB, accounts, records)
		return s, nil
	}

	mongoDB, err := persistence.NewMongoDB(ctx, log, &cfg.MongoDB)
	if err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to initialize MongoDB: %w", err)
	}
	s.closers = append(s.closers, func(ctx context.Context) {
		if err := mongoDB.Close(ctx); err != nil {
			log.Error("Error closing MongoDB connection", "error", err)
		}
	})
	s.pingers["mongodb"] = mongoDB

	transactionLog := mongo.NewTransactionLog(log, mongoDB.Database())
	if err := transactionLog.EnsureIndexes(ctx); err != nil {
		s.close(ctx)
		return nil, fmt.Errorf("failed to ensure transaction log indexes: %w", err)
	}
	s.log = transactionLog
	return s, nil
}
