// Package main is the entrypoint for the fuelsync API server.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/fuelsync/fuelsync/internal/app"
	"github.com/fuelsync/fuelsync/internal/auth"
	"github.com/fuelsync/fuelsync/internal/cache"
	"github.com/fuelsync/fuelsync/internal/cascade"
	"github.com/fuelsync/fuelsync/internal/config"
	"github.com/fuelsync/fuelsync/internal/currency"
	"github.com/fuelsync/fuelsync/internal/handler"
	"github.com/fuelsync/fuelsync/internal/middleware"
	"github.com/fuelsync/fuelsync/internal/ratesource"
	"github.com/fuelsync/fuelsync/internal/repository"
	"github.com/fuelsync/fuelsync/internal/server"
	"github.com/fuelsync/fuelsync/internal/service"
	"github.com/fuelsync/fuelsync/internal/sweep"
)

func main() {
	// Local development only; missing .env is fine
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var (
		cacheClient *cache.Cache
		rateCache   repository.RateCache
		limiter     middleware.RateLimiter
		cacheHealth handler.HealthChecker
	)
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL,
			cache.WithNamespace(cfg.RedisNamespace),
			cache.WithPoolSize(cfg.RedisPoolSize),
		)
		if err != nil {
			logger.Error("failed to connect to Redis",
				"error", app.SanitizeError(err, cfg.RedisURL),
				"redis_url", app.RedactURL(cfg.RedisURL),
			)
			store.Close()
			return err
		}
		rateCache, limiter, cacheHealth = cacheClient, cacheClient, cacheClient
		logger.Info("connected to Redis")
	} else {
		logger.Info("Redis disabled; rate snapshots are not cached and rate limiting is off")
	}

	var sweeps sweep.Publisher
	var amqpClient *sweep.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = sweep.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("failed to connect to AMQP", "error", app.SanitizeError(err, cfg.AMQPURL))
			store.Close()
			if cacheClient != nil {
				cacheClient.Close()
			}
			return err
		}
		sweeps = amqpClient
		logger.Info("connected to AMQP", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	}

	recorder, gatherer := app.NewMetrics(cfg.MetricsEnabled)

	repo := repository.New(store)
	rates := currency.New(
		repo.RateSnapshots(rateCache, recorder),
		ratesource.New(ratesource.Options{URL: cfg.RateSourceURL, Logger: logger}),
		currency.Options{
			Base:       cfg.BaseCurrency,
			WindowDays: cfg.RateSearchWindowDays,
			Logger:     logger,
			Metrics:    recorder,
		},
	)
	planner := cascade.New(store, cascade.Options{
		BatchSize: cfg.CascadeBatchSize,
		Logger:    logger,
		Metrics:   recorder,
	})
	svc := service.New(repo, rates, planner, service.Options{
		Sweeps:  sweeps,
		Logger:  logger,
		Metrics: recorder,
	})

	var storeHealth handler.HealthChecker
	if p := store.Pinger(); p != nil {
		storeHealth = p
	}

	router := handler.NewRouter(handler.RouterConfig{
		Logger:  logger,
		Service: svc,
		Verifier: auth.NewVerifier(auth.VerifierConfig{
			Secret:   cfg.AuthJWTSecret,
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
		}),
		RateLimit: middleware.RateLimitConfig{
			Logger:              logger,
			Limiter:             limiter,
			Enabled:             cfg.RateLimitEnabled,
			RequestsPerMinute:   cfg.RateLimitRPM,
			Burst:               cfg.RateLimitBurst,
			IPRequestsPerSecond: cfg.RateLimitIPRPS,
			IPBurst:             cfg.RateLimitIPBurst,
		},
		Security: middleware.SecurityConfig{
			IsDevelopment:      cfg.IsDevelopment(),
			MaxRequestBodySize: cfg.MaxRequestBodySize,
		},
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.GetCORSAllowedOrigins(),
		Store:          storeHealth,
		Cache:          cacheHealth,
		Gatherer:       gatherer,
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		Logger:          logger,
	})
	// LIFO: the store closes last
	srv.OnShutdown("store", func(context.Context) error { return store.Close() })
	if cacheClient != nil {
		srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
	}
	if amqpClient != nil {
		srv.OnShutdown("amqp", func(context.Context) error { return amqpClient.Close() })
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"store", cfg.StoreBackend,
		"base_currency", cfg.BaseCurrency,
	)
	return srv.Run(ctx)
}
