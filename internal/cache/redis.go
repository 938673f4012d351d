// Package cache holds the Redis-backed rate snapshot cache and the
// token-bucket limiter shared by every API replica.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultNamespace prefixes every key this package writes.
const DefaultNamespace = "fuelsync:"

// Cache is a namespaced view over a Redis client.
type Cache struct {
	client    *redis.Client
	namespace string
	now       func() time.Time
}

// Option tunes a Cache.
type Option func(*Cache, *redis.Options)

// WithNamespace overrides the key prefix. Replicas sharing a Redis must agree on it.
func WithNamespace(ns string) Option {
	return func(c *Cache, _ *redis.Options) { c.namespace = ns }
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(n int) Option {
	return func(_ *Cache, o *redis.Options) {
		if n > 0 {
			o.PoolSize = n
			o.MinIdleConns = max(1, n/5)
		}
	}
}

// New dials redisURL and verifies the connection with a PING.
func New(ctx context.Context, redisURL string, opts ...Option) (*Cache, error) {
	ropt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	ropt.PoolSize = 10
	ropt.MinIdleConns = 2
	ropt.PoolTimeout = 4 * time.Second
	ropt.ConnMaxIdleTime = 5 * time.Minute

	c := &Cache{namespace: DefaultNamespace, now: time.Now}
	for _, opt := range opts {
		opt(c, ropt)
	}
	c.client = redis.NewClient(ropt)

	if err := c.client.Ping(ctx).Err(); err != nil {
		_ = c.client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return c, nil
}

// Ping reports Redis reachability for readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}

// Client exposes the raw client for test fixtures.
func (c *Cache) Client() *redis.Client {
	return c.client
}

func (c *Cache) key(parts ...string) string {
	k := c.namespace
	for _, p := range parts {
		k += p
	}
	return k
}
