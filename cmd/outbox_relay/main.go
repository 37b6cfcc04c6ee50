package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banking-ledger-engine/internal/config"
	"github.com/banking-ledger-engine/internal/data/postgres"
	"github.com/banking-ledger-engine/internal/logger"
	"github.com/banking-ledger-engine/internal/outbox_relay"
	"github.com/banking-ledger-engine/internal/platform/messaging/producers"
	"github.com/banking-ledger-engine/internal/platform/persistence"
)

func main() {
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	cfg, err := config.LoadConfig("outbox_relay")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg)

	log.Info("Starting Outbox Relay",
		"app_name", cfg.Application.Name,
		"env", cfg.Application.Env,
	)

	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	eventProducer, err := producers.NewLedgerEventProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize ledger event producer", "error", err)
		os.Exit(1)
	}

	// nil when KAFKA_DLQ_TOPIC is empty; PublishToDLQ then reports ErrDLQDisabled
	dlqProducer, err := producers.NewDLQProducer(appCtx, log, &cfg.Kafka, "outbox-relay")
	if err != nil {
		log.Error("Failed to initialize DLQ Kafka producer", "error", err)
		os.Exit(1)
	}

	poller, err := outbox_relay.NewPoller(
		&cfg.Outbox,
		cfg.WorkerPool.Size,
		postgres.NewOutboxRepository(log, postgresDB),
		eventProducer,
		dlqProducer,
		log,
	)
	if err != nil {
		log.Error("Failed to initialize outbox relay", "error", err)
		os.Exit(1)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		poller.Start(appCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	log.Info("Shutdown signal received")

	cancelAppCtx()

	log.Info("Waiting for relay to stop...")
	wg.Wait()
	poller.Shutdown()

	var shutdownErr error
	if err := eventProducer.Close(); err != nil {
		log.Error("Error closing ledger event producer", "error", err)
		shutdownErr = err
	}
	if err := dlqProducer.Close(); err != nil {
		log.Error("Error closing DLQ Kafka producer", "error", err)
		shutdownErr = err
	}
	postgresDB.Close()

	if shutdownErr != nil {
		log.Error("Outbox Relay shutdown completed with errors")
	} else {
		log.Info("Outbox Relay shutdown completed successfully")
	}
}
