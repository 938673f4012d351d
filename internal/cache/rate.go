package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/fuelsync/fuelsync/internal/model"
)

// Cache key prefixes and TTLs.
const (
	rateKeyPrefix     = "rates:"
	negCacheKeySuffix = ":neg"

	fieldBase    = "_base"
	fieldUpdated = "_updated"

	// DefaultRateTTL is the TTL for cached rate snapshots.
	DefaultRateTTL = time.Hour

	// NegativeCacheTTL is the TTL for negative cache entries.
	NegativeCacheTTL = 5 * time.Minute
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")
)

// GetRateSnapshot retrieves a cached snapshot by date.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetRateSnapshot(ctx context.Context, date string) (*model.RateSnapshot, error) {
	result, err := c.client.HGetAll(ctx, c.key(rateKeyPrefix, date)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}

	if len(result) == 0 {
		return nil, ErrCacheMiss
	}

	snap := &model.RateSnapshot{
		Date:  date,
		Base:  result[fieldBase],
		Rates: make(map[string]float64, len(result)),
	}
	if updated, err := time.Parse(time.RFC3339Nano, result[fieldUpdated]); err == nil {
		snap.LastUpdated = updated
	}
	for field, value := range result {
		if field == fieldBase || field == fieldUpdated {
			continue
		}
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			// Corrupted entry - treat as miss
			return nil, ErrCacheMiss
		}
		snap.Rates[field] = rate
	}

	return snap, nil
}

// SetRateSnapshot replaces the cached snapshot for its date.
func (c *Cache) SetRateSnapshot(ctx context.Context, snap *model.RateSnapshot) error {
	key := c.key(rateKeyPrefix, snap.Date)

	fields := make(map[string]any, len(snap.Rates)+2)
	for code, rate := range snap.Rates {
		fields[code] = strconv.FormatFloat(rate, 'g', -1, 64)
	}
	fields[fieldBase] = snap.Base
	fields[fieldUpdated] = snap.LastUpdated.UTC().Format(time.RFC3339Nano)

	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key, key+negCacheKeySuffix)
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, DefaultRateTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache rate snapshot: %w", err)
	}

	return nil
}

// DeleteRateSnapshot removes a snapshot and its negative entry from cache.
func (c *Cache) DeleteRateSnapshot(ctx context.Context, date string) error {
	key := c.key(rateKeyPrefix, date)

	if err := c.client.Del(ctx, key, key+negCacheKeySuffix).Err(); err != nil {
		return fmt.Errorf("failed to delete rate snapshot from cache: %w", err)
	}

	return nil
}

// IsRateSnapshotAbsent checks if a date is in the negative cache.
func (c *Cache) IsRateSnapshotAbsent(ctx context.Context, date string) (bool, error) {
	exists, err := c.client.Exists(ctx, c.key(rateKeyPrefix, date, negCacheKeySuffix)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check negative cache: %w", err)
	}

	return exists > 0, nil
}

// SetRateSnapshotAbsent marks a date as having no snapshot.
func (c *Cache) SetRateSnapshotAbsent(ctx context.Context, date string) error {
	err := c.client.SetEx(ctx, c.key(rateKeyPrefix, date, negCacheKeySuffix), "", NegativeCacheTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to set negative cache: %w", err)
	}

	return nil
}
