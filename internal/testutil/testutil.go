// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fuelsync/fuelsync/internal/model"
)

// RequireEnv returns an environment variable or skips the test if missing.
func RequireEnv(t testing.TB, key string) string {
	t.Helper()
	value := os.Getenv(key)
	if value == "" {
		t.Skipf("%s not set", key)
	}
	return value
}

// FlushRedis clears the current Redis database.
func FlushRedis(ctx context.Context, client *redis.Client) error {
	return client.FlushDB(ctx).Err()
}

const advisoryLockID int64 = 420420

// AcquireDBLock grabs a global advisory lock to serialize DB tests.
func AcquireDBLock(ctx context.Context, pool *pgxpool.Pool) (func() error, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", advisoryLockID); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquire advisory lock: %w", err)
	}

	unlock := func() error {
		defer conn.Release()
		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", advisoryLockID); err != nil {
			return fmt.Errorf("release advisory lock: %w", err)
		}
		return nil
	}

	return unlock, nil
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// SignToken issues an HS256 identity token for tests.
func SignToken(t testing.TB, secret, subject, email string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   subject,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

// ============================================================================
// Test Data Factories
// ============================================================================

var seq atomic.Int64

// UniqueID generates a unique ID for tests.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d-%d", prefix, time.Now().UnixNano(), seq.Add(1))
}

// NewTestVehicle creates a test vehicle with sensible defaults.
func NewTestVehicle(t testing.TB, ownerID string) *model.Vehicle {
	t.Helper()
	now := time.Now().UTC()
	return &model.Vehicle{
		ID:           UniqueID("vehicle"),
		OwnerID:      ownerID,
		Make:         "Skoda",
		Model:        "Octavia",
		Year:         2019,
		FuelType:     model.FuelGasoline,
		TankCapacity: 50,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewTestRefill creates a base-currency refill at ts.
func NewTestRefill(t testing.TB, v *model.Vehicle, id string, ts time.Time) *model.Refill {
	t.Helper()
	return &model.Refill{
		ID:           id,
		VehicleID:    v.ID,
		OwnerID:      v.OwnerID,
		Timestamp:    ts.UTC(),
		Odometer:     10000,
		Volume:       40,
		PricePerUnit: 1.5,
		TotalCost:    60,
		Money:        model.Money{Currency: "USD", ExchangeRate: 1, BaseAmount: 60},
		FuelType:     model.FuelGasoline,
		CreatedAt:    ts.UTC(),
		UpdatedAt:    ts.UTC(),
	}
}

// NewTestExpense creates a base-currency expense at ts.
func NewTestExpense(t testing.TB, v *model.Vehicle, id string, ts time.Time) *model.Expense {
	t.Helper()
	return &model.Expense{
		ID:        id,
		VehicleID: v.ID,
		OwnerID:   v.OwnerID,
		Timestamp: ts.UTC(),
		Category:  model.CategoryOther,
		Amount:    25,
		Money:     model.Money{Currency: "USD", ExchangeRate: 1, BaseAmount: 25},
		CreatedAt: ts.UTC(),
		UpdatedAt: ts.UTC(),
	}
}
