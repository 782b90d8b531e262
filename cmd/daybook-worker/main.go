package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"daybook/internal/amqp"
	"daybook/internal/config"
	"daybook/internal/log"
	"daybook/internal/storage"
	"daybook/internal/worker"
)

// daybook-worker consumes report events from the broker and archives them in
// the ledger database. It runs alongside the API server and shares its
// configuration.
func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentAMQP)
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		return err
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		return errors.New("AMQP_URL is required")
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", log.FieldError, err, "db_path", cfg.SQLiteDBPath)
		return err
	}
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err)
		return err
	}
	defer amqpClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eventWorker := worker.NewEventWorker(repo)

	logger.Info("Starting daybook worker",
		"queue", cfg.AMQPQueue,
		"db_path", cfg.SQLiteDBPath)

	err = amqpClient.ConsumeReportEvents(ctx, func(msg *amqp.ReportEventMessage) error {
		return eventWorker.HandleReportEvent(ctx, msg)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Event consumption failed", log.FieldError, err)
		return err
	}

	logger.Info("Worker stopped gracefully")
	return nil
}
