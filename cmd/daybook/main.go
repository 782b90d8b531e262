package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"daybook/internal/amqp"
	"daybook/internal/auth"
	"daybook/internal/config"
	apphttp "daybook/internal/http"
	"daybook/internal/log"
	"daybook/internal/middleware/ratelimit"
	"daybook/internal/services"
	"daybook/internal/storage"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger := log.New(log.DefaultConfig()).WithComponent(log.ComponentApp)
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", log.FieldError, err)
		return err
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to open storage", log.FieldError, err, "db_path", cfg.SQLiteDBPath)
		return err
	}

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The ledger works without the event stream; start degraded.
			logger.Warn("AMQP unavailable, report events disabled", log.FieldError, err)
			amqpClient = nil
		}
	}

	reports := services.NewReportService(repo, amqpClient, cfg.OverrideTTL)
	defer func() {
		if err := reports.Close(); err != nil {
			logger.Error("Shutdown cleanup failed", log.FieldError, err)
		}
	}()

	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.AuthRateLimit})
	defer limiter.Stop()

	server := apphttp.NewServer(reports, auth.NewService(repo), limiter, logger)

	httpServer := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        server.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting daybook server",
			"port", cfg.Port,
			"db_path", cfg.SQLiteDBPath,
			"amqp_enabled", amqpClient != nil)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}
