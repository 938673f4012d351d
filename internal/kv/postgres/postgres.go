// Package postgres implements kv.Store on a PostgreSQL table of (pk, sk, attrs jsonb) rows.
// Sort keys use the "C" collation so range scans follow byte order.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/fuelsync/fuelsync/internal/kv"
)

// DefaultPageSize applies to queries without a limit.
const DefaultPageSize = 100

// TxLimit bounds the number of rows deleted in one transaction.
const TxLimit = 1000

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ kv.Store     = (*Store)(nil)
	_ kv.TxDeleter = (*Store)(nil)
	_ kv.Pinger    = (*Store)(nil)
)

// Store is a PostgreSQL-backed kv.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema migrations.
func (s *Store) Migrate() error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("create pgx migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Ping implements kv.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT attrs FROM items WHERE pk = $1 AND sk = $2`, key.PK, key.SK).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return decodeRow(key, raw)
}

// Put implements kv.Store.
func (s *Store) Put(ctx context.Context, item kv.Item, cond kv.Condition) error {
	key, err := item.Key()
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(item.Attrs())
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	var query string
	switch cond {
	case kv.MustExist:
		query = `UPDATE items SET attrs = $3::jsonb WHERE pk = $1 AND sk = $2`
	case kv.MustNotExist:
		query = `INSERT INTO items (pk, sk, attrs) VALUES ($1, $2, $3::jsonb) ON CONFLICT (pk, sk) DO NOTHING`
	default:
		query = `INSERT INTO items (pk, sk, attrs) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (pk, sk) DO UPDATE SET attrs = EXCLUDED.attrs`
	}

	tag, err := s.pool.Exec(ctx, query, key.PK, key.SK, string(attrs))
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	if cond != kv.Always && tag.RowsAffected() == 0 {
		return kv.ErrConditionFailed
	}
	return nil
}

// Update implements kv.Store. Top-level attributes in set replace existing ones.
func (s *Store) Update(ctx context.Context, key kv.Key, set map[string]any, cond kv.Condition) (kv.Item, error) {
	patch := make(map[string]any, len(set))
	for k, v := range set {
		if k != kv.AttrPK && k != kv.AttrSK {
			patch[k] = v
		}
	}
	data, err := json.Marshal(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}

	var query string
	switch cond {
	case kv.MustExist:
		query = `UPDATE items SET attrs = attrs || $3::jsonb WHERE pk = $1 AND sk = $2 RETURNING attrs`
	case kv.MustNotExist:
		query = `INSERT INTO items (pk, sk, attrs) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (pk, sk) DO NOTHING RETURNING attrs`
	default:
		query = `INSERT INTO items (pk, sk, attrs) VALUES ($1, $2, $3::jsonb)
			ON CONFLICT (pk, sk) DO UPDATE SET attrs = items.attrs || EXCLUDED.attrs RETURNING attrs`
	}

	var raw []byte
	err = s.pool.QueryRow(ctx, query, key.PK, key.SK, string(data)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrConditionFailed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return decodeRow(key, raw)
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key kv.Key, cond kv.Condition) error {
	if cond == kv.MustNotExist {
		var exists bool
		err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE pk = $1 AND sk = $2)`, key.PK, key.SK).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		if exists {
			return kv.ErrConditionFailed
		}
		return nil
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE pk = $1 AND sk = $2`, key.PK, key.SK)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if cond == kv.MustExist && tag.RowsAffected() == 0 {
		return kv.ErrConditionFailed
	}
	return nil
}

// Query implements kv.Store.
func (s *Store) Query(ctx context.Context, q kv.Query) (kv.Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	order, cmp := "ASC", ">"
	if q.Reverse {
		order, cmp = "DESC", "<"
	}
	args := []any{q.Partition, q.Prefix, limit + 1}
	query := `SELECT sk, attrs FROM items WHERE pk = $1 AND starts_with(sk, $2)`
	if after := q.After.SortKey(); after != "" {
		query += ` AND sk ` + cmp + ` $4`
		args = append(args, after)
	}
	query += ` ORDER BY sk ` + order + ` LIMIT $3`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return kv.Page{}, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var page kv.Page
	for rows.Next() {
		var (
			sk  string
			raw []byte
		)
		if err := rows.Scan(&sk, &raw); err != nil {
			return kv.Page{}, fmt.Errorf("failed to scan item: %w", err)
		}
		item, err := decodeRow(kv.Key{PK: q.Partition, SK: sk}, raw)
		if err != nil {
			return kv.Page{}, err
		}
		page.Items = append(page.Items, item)
	}
	if err := rows.Err(); err != nil {
		return kv.Page{}, fmt.Errorf("failed to iterate items: %w", err)
	}

	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		last, _ := page.Items[limit-1].Key()
		page.Next = kv.MarkerFor(last)
	}
	return page, nil
}

// BatchDelete implements kv.Store.
func (s *Store) BatchDelete(ctx context.Context, keys []kv.Key) error {
	if len(keys) > kv.MaxBatchSize {
		return fmt.Errorf("%w: %d keys, limit %d", kv.ErrBatchTooLarge, len(keys), kv.MaxBatchSize)
	}
	if len(keys) == 0 {
		return nil
	}
	pks, sks := split(keys)
	_, err := s.pool.Exec(ctx,
		`DELETE FROM items WHERE (pk, sk) IN (SELECT * FROM unnest($1::text[], $2::text[]))`,
		pks, sks)
	if err != nil {
		return fmt.Errorf("failed to batch delete: %w", err)
	}
	return nil
}

// TxLimit implements kv.TxDeleter.
func (s *Store) TxLimit() int {
	return TxLimit
}

// DeleteTx implements kv.TxDeleter.
func (s *Store) DeleteTx(ctx context.Context, parent kv.Key, children []kv.Key) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `DELETE FROM items WHERE pk = $1 AND sk = $2`, parent.PK, parent.SK)
	if err != nil {
		return fmt.Errorf("failed to delete parent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return kv.ErrConditionFailed
	}

	if len(children) > 0 {
		pks, sks := split(children)
		if _, err := tx.Exec(ctx,
			`DELETE FROM items WHERE (pk, sk) IN (SELECT * FROM unnest($1::text[], $2::text[]))`,
			pks, sks); err != nil {
			return fmt.Errorf("failed to delete children: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func split(keys []kv.Key) ([]string, []string) {
	pks := make([]string, len(keys))
	sks := make([]string, len(keys))
	for i, k := range keys {
		pks[i], sks[i] = k.PK, k.SK
	}
	return pks, sks
}

func decodeRow(key kv.Key, raw []byte) (kv.Item, error) {
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return kv.WithKey(key, attrs), nil
}
