// Package main is the entrypoint for the sweep worker, which purges refills and
// expenses left behind by interrupted vehicle deletes.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/fuelsync/fuelsync/internal/app"
	"github.com/fuelsync/fuelsync/internal/cascade"
	"github.com/fuelsync/fuelsync/internal/config"
	"github.com/fuelsync/fuelsync/internal/handler"
	"github.com/fuelsync/fuelsync/internal/server"
	"github.com/fuelsync/fuelsync/internal/sweep"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat).With("process", "sweeper")
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("sweeper error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the sweeper")
	}

	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	client, err := sweep.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		store.Close()
		logger.Error("failed to connect to AMQP", "error", app.SanitizeError(err, cfg.AMQPURL))
		return err
	}

	recorder, gatherer := app.NewMetrics(cfg.MetricsEnabled)
	planner := cascade.New(store, cascade.Options{
		BatchSize: cfg.CascadeBatchSize,
		Logger:    logger,
		Metrics:   recorder,
	})
	worker := sweep.NewWorker(client, planner, client, sweep.WorkerOptions{
		MaxAttempts: cfg.SweepMaxAttempts,
		Logger:      logger,
		Metrics:     recorder,
	})

	var storeHealth handler.HealthChecker
	if p := store.Pinger(); p != nil {
		storeHealth = p
	}
	health := handler.NewHealthHandler(storeHealth, nil)
	r := chi.NewRouter()
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)
	r.Method("GET", "/metrics", handler.MetricsHandler(gatherer))

	srv := server.New(r, server.Options{
		Port:            cfg.SweeperPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})
	srv.OnShutdown("store", func(context.Context) error { return store.Close() })
	srv.OnShutdown("amqp", func(context.Context) error { return client.Close() })
	srv.OnShutdown("sweep worker", worker.Shutdown)

	// A worker that stops on its own takes the process down with it.
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("sweep worker stopped", "error", err)
			cancel(err)
		}
	}()

	logger.Info("starting sweeper", "port", cfg.SweeperPort, "queue", cfg.AMQPQueue, "store", cfg.StoreBackend)
	if err := srv.Run(ctx); err != nil {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return nil
}
