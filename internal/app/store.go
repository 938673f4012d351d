package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/fuelsync/fuelsync/internal/config"
	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/kv/dynamo"
	"github.com/fuelsync/fuelsync/internal/kv/memory"
	"github.com/fuelsync/fuelsync/internal/kv/postgres"
	"github.com/fuelsync/fuelsync/internal/kv/sqlite"
)

// Store is an opened backend together with its release function.
type Store struct {
	kv.Store
	close func() error
}

// Close releases the backend.
func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Pinger returns the backend's health check, or nil if it has none.
func (s *Store) Pinger() kv.Pinger {
	p, _ := s.Store.(kv.Pinger)
	return p
}

// OpenStore opens the backend selected by cfg.StoreBackend.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return &Store{Store: memory.New(memory.Options{})}, nil

	case config.BackendDynamoDB:
		s, err := openDynamo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("connected to DynamoDB", "table", cfg.DynamoDBTable, "region", cfg.AWSRegion)
		return &Store{Store: s}, nil

	case config.BackendPostgres:
		s, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %s", SanitizeError(err, cfg.DatabaseURL))
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate database: %s", SanitizeError(err, cfg.DatabaseURL))
		}
		logger.Info("connected to database", "database_url", RedactURL(cfg.DatabaseURL))
		return &Store{Store: s, close: func() error { s.Close(); return nil }}, nil

	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		logger.Info("opened sqlite database", "path", cfg.SQLitePath)
		return &Store{Store: s, close: s.Close}, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func openDynamo(ctx context.Context, cfg *config.Config) (*dynamo.Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
	// Local emulators accept any credentials.
	if cfg.DynamoDBEndpoint != "" && os.Getenv("AWS_ACCESS_KEY_ID") == "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("local", "local", ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDBEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDBEndpoint)
		}
	})
	s := dynamo.New(client, cfg.DynamoDBTable)
	if cfg.DynamoDBEndpoint != "" {
		if err := s.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("ensure table %s: %w", cfg.DynamoDBTable, err)
		}
	}
	return s, nil
}
