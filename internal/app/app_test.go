package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelsync/fuelsync/internal/config"
	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/testutil"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	NewLogger(&buf, "info", "json").Info("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	NewLogger(&buf, "info", "text").Info("hello", "k", "v")
	assert.Contains(t, buf.String(), "msg=hello")

	buf.Reset()
	logger := NewLogger(&buf, "warn", "pretty")
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "", RedactURL(""))
	assert.Equal(t, "postgres://app@db:5432/fuelsync", RedactURL("postgres://app:s3cret@db:5432/fuelsync"))
	assert.Equal(t, "redis://redacted@cache:6379", RedactURL("redis://:s3cret@cache:6379"))
	assert.Equal(t, "amqp://cache:5672", RedactURL("amqp://cache:5672"))
}

func TestSanitizeError(t *testing.T) {
	dsn := "postgres://app:s3cret@db:5432/fuelsync"
	err := errors.New("dial " + dsn + " failed: password=hunter2 rejected")

	got := SanitizeError(err, dsn)
	assert.NotContains(t, got, "s3cret")
	assert.NotContains(t, got, "hunter2")
	assert.Contains(t, got, "postgres://app@db:5432/fuelsync")
	assert.Equal(t, "", SanitizeError(nil, dsn))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	logger := testutil.DiscardLogger()

	t.Run("memory", func(t *testing.T) {
		s, err := OpenStore(ctx, &config.Config{StoreBackend: config.BackendMemory}, logger)
		require.NoError(t, err)
		defer s.Close()
		require.NoError(t, s.Put(ctx, kv.WithKey(kv.Key{PK: "OWNER#u1", SK: "PROFILE"}, nil), kv.Always))
	})

	t.Run("sqlite", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fuelsync.db")
		s, err := OpenStore(ctx, &config.Config{StoreBackend: config.BackendSQLite, SQLitePath: path}, logger)
		require.NoError(t, err)
		defer s.Close()
		require.NotNil(t, s.Pinger())
		assert.NoError(t, s.Pinger().Ping(ctx))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := OpenStore(ctx, &config.Config{StoreBackend: "mongo"}, logger)
		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "mongo"))
	})
}

func TestNewMetrics(t *testing.T) {
	rec, gatherer := NewMetrics(false)
	assert.NotNil(t, rec)
	assert.Nil(t, gatherer)

	rec, gatherer = NewMetrics(true)
	require.NotNil(t, gatherer)
	rec.IncEntityCreated("vehicle")

	families, err := gatherer.Gather()
	require.NoError(t, err)
	var found bool
	for _, f := range families {
		if strings.HasPrefix(f.GetName(), "fuelsync_") {
			found = true
		}
	}
	assert.True(t, found, "expected fuelsync metrics to be registered")
}
