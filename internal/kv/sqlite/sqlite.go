// Package sqlite implements kv.Store on a single SQLite table of (pk, sk, attrs) rows.
// It is meant for local development and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

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

// Store is a SQLite-backed kv.Store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := RunMigrations(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer at a time; a single connection keeps transactions simple.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// RunMigrations applies the embedded schema migrations to the database at path.
func RunMigrations(path string) error {
	// Separate connection so the migrator can close it independently.
	migrateDB, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	driver, err := migratesqlite.WithInstance(migrateDB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite driver: %w", err)
	}
	d, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", d, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping implements kv.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get implements kv.Store.
func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Item, error) {
	return getRow(ctx, s.db, key)
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
		query = `UPDATE items SET attrs = ?3 WHERE pk = ?1 AND sk = ?2`
	case kv.MustNotExist:
		query = `INSERT INTO items (pk, sk, attrs) VALUES (?1, ?2, ?3) ON CONFLICT (pk, sk) DO NOTHING`
	default:
		query = `INSERT INTO items (pk, sk, attrs) VALUES (?1, ?2, ?3)
			ON CONFLICT (pk, sk) DO UPDATE SET attrs = excluded.attrs`
	}

	res, err := s.db.ExecContext(ctx, query, key.PK, key.SK, string(attrs))
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	if cond != kv.Always {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to put item: %w", err)
		}
		if n == 0 {
			return kv.ErrConditionFailed
		}
	}
	return nil
}

// Update implements kv.Store. The merge happens in a transaction.
func (s *Store) Update(ctx context.Context, key kv.Key, set map[string]any, cond kv.Condition) (kv.Item, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getRow(ctx, tx, key)
	exists := err == nil
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return nil, err
	}
	if !cond.Check(exists) {
		return nil, kv.ErrConditionFailed
	}

	attrs := map[string]any{}
	if exists {
		attrs = current.Attrs()
	}
	for k, v := range set {
		if k != kv.AttrPK && k != kv.AttrSK {
			attrs[k] = v
		}
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO items (pk, sk, attrs) VALUES (?1, ?2, ?3)
		ON CONFLICT (pk, sk) DO UPDATE SET attrs = excluded.attrs`, key.PK, key.SK, string(data)); err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit update: %w", err)
	}
	return decodeRow(key, data)
}

// Delete implements kv.Store.
func (s *Store) Delete(ctx context.Context, key kv.Key, cond kv.Condition) error {
	if cond == kv.MustNotExist {
		_, err := s.Get(ctx, key)
		if err == nil {
			return kv.ErrConditionFailed
		}
		if errors.Is(err, kv.ErrNotFound) {
			return nil
		}
		return err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE pk = ? AND sk = ?`, key.PK, key.SK)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if cond == kv.MustExist {
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to delete item: %w", err)
		}
		if n == 0 {
			return kv.ErrConditionFailed
		}
	}
	return nil
}

// Query implements kv.Store. Text comparison uses the BINARY collation, so
// range scans follow byte order.
func (s *Store) Query(ctx context.Context, q kv.Query) (kv.Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	order, cmp := "ASC", ">"
	if q.Reverse {
		order, cmp = "DESC", "<"
	}

	var b strings.Builder
	args := []any{q.Partition}
	b.WriteString(`SELECT sk, attrs FROM items WHERE pk = ?`)
	if q.Prefix != "" {
		b.WriteString(` AND substr(sk, 1, length(?)) = ?`)
		args = append(args, q.Prefix, q.Prefix)
	}
	if after := q.After.SortKey(); after != "" {
		b.WriteString(` AND sk ` + cmp + ` ?`)
		args = append(args, after)
	}
	b.WriteString(` ORDER BY sk ` + order + ` LIMIT ?`)
	args = append(args, limit+1)

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return kv.Page{}, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var page kv.Page
	for rows.Next() {
		var sk, raw string
		if err := rows.Scan(&sk, &raw); err != nil {
			return kv.Page{}, fmt.Errorf("failed to scan item: %w", err)
		}
		item, err := decodeRow(kv.Key{PK: q.Partition, SK: sk}, []byte(raw))
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
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := deleteKeys(ctx, tx, keys); err != nil {
		return fmt.Errorf("failed to batch delete: %w", err)
	}
	return tx.Commit()
}

// TxLimit implements kv.TxDeleter.
func (s *Store) TxLimit() int {
	return TxLimit
}

// DeleteTx implements kv.TxDeleter.
func (s *Store) DeleteTx(ctx context.Context, parent kv.Key, children []kv.Key) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM items WHERE pk = ? AND sk = ?`, parent.PK, parent.SK)
	if err != nil {
		return fmt.Errorf("failed to delete parent: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("failed to delete parent: %w", err)
	} else if n == 0 {
		return kv.ErrConditionFailed
	}

	if err := deleteKeys(ctx, tx, children); err != nil {
		return fmt.Errorf("failed to delete children: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRow(ctx context.Context, q querier, key kv.Key) (kv.Item, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT attrs FROM items WHERE pk = ? AND sk = ?`, key.PK, key.SK).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return decodeRow(key, []byte(raw))
}

func deleteKeys(ctx context.Context, tx *sql.Tx, keys []kv.Key) error {
	if len(keys) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `DELETE FROM items WHERE pk = ? AND sk = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k.PK, k.SK); err != nil {
			return err
		}
	}
	return nil
}

func decodeRow(key kv.Key, raw []byte) (kv.Item, error) {
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return kv.WithKey(key, attrs), nil
}
