// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendDynamoDB = "dynamodb"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"8s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Storage
	StoreBackend     string `env:"STORE_BACKEND" envDefault:"memory"`
	DynamoDBTable    string `env:"DYNAMODB_TABLE" envDefault:"fuelsync"`
	AWSRegion        string `env:"AWS_REGION" envDefault:"us-east-1"`
	DynamoDBEndpoint string `env:"DYNAMODB_ENDPOINT"`
	DatabaseURL      string `env:"DATABASE_URL"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"fuelsync.db"`

	// Cache (Redis). Optional; rate snapshots and rate limiting need it.
	RedisURL       string `env:"REDIS_URL"`
	RedisNamespace string `env:"REDIS_NAMESPACE" envDefault:"fuelsync:"`
	RedisPoolSize  int    `env:"REDIS_POOL_SIZE" envDefault:"10"`

	// Sweep queue (AMQP). Optional; without it incomplete deletes are only logged.
	AMQPURL          string `env:"AMQP_URL"`
	AMQPExchange     string `env:"AMQP_EXCHANGE" envDefault:"fuelsync.sweep"`
	AMQPQueue        string `env:"AMQP_QUEUE" envDefault:"fuelsync.sweep.jobs"`
	SweepMaxAttempts int    `env:"SWEEP_MAX_ATTEMPTS" envDefault:"5"`
	SweeperPort      int    `env:"SWEEPER_PORT" envDefault:"8081"`

	// Authentication
	AuthJWTSecret string `env:"AUTH_JWT_SECRET,required,unset"`
	AuthIssuer    string `env:"AUTH_ISSUER"`
	AuthAudience  string `env:"AUTH_AUDIENCE"`

	// Currency normalization
	BaseCurrency         string `env:"BASE_CURRENCY" envDefault:"USD"`
	RateSourceURL        string `env:"RATE_SOURCE_URL"`
	RateSearchWindowDays int    `env:"RATE_SEARCH_WINDOW_DAYS" envDefault:"30"`

	// Cascade deletes
	CascadeBatchSize int `env:"CASCADE_BATCH_SIZE" envDefault:"25"`

	// Rate limiting
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitRPM     int  `env:"RATE_LIMIT_RPM" envDefault:"120"`
	RateLimitBurst   int  `env:"RATE_LIMIT_BURST" envDefault:"20"`
	RateLimitIPRPS   int  `env:"RATE_LIMIT_IP_RPS" envDefault:"20"`
	RateLimitIPBurst int  `env:"RATE_LIMIT_IP_BURST" envDefault:"40"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	var errs []error

	switch c.StoreBackend {
	case BackendMemory:
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_BACKEND=memory is not allowed in production"))
		}
	case BackendDynamoDB:
		if c.DynamoDBTable == "" {
			errs = append(errs, errors.New("DYNAMODB_TABLE is required for the dynamodb backend"))
		}
		if c.AWSRegion == "" {
			errs = append(errs, errors.New("AWS_REGION is required for the dynamodb backend"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres backend"))
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend))
	}

	switch c.LogFormat {
	case "json", "text", "pretty":
	default:
		errs = append(errs, fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat))
	}

	if len(c.BaseCurrency) != 3 {
		errs = append(errs, fmt.Errorf("BASE_CURRENCY %q must be a three-letter code", c.BaseCurrency))
	}
	if c.RateSearchWindowDays < 0 {
		errs = append(errs, errors.New("RATE_SEARCH_WINDOW_DAYS must not be negative"))
	}
	if c.CascadeBatchSize < 1 || c.CascadeBatchSize > 25 {
		errs = append(errs, errors.New("CASCADE_BATCH_SIZE must be between 1 and 25"))
	}
	if c.SweepMaxAttempts < 1 {
		errs = append(errs, errors.New("SWEEP_MAX_ATTEMPTS must be at least 1"))
	}
	if c.RateLimitEnabled && (c.RateLimitRPM <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_RPM and RATE_LIMIT_BURST must be positive"))
	}
	if c.MaxRequestBodySize <= 0 {
		errs = append(errs, errors.New("MAX_REQUEST_BODY_SIZE must be positive"))
	}

	return errors.Join(errs...)
}

// Load parses environment variables and returns a validated Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.BaseCurrency = strings.ToUpper(strings.TrimSpace(cfg.BaseCurrency))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
