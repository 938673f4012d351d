// Package repository maps domain entities onto the key-value store.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fuelsync/fuelsync/internal/cursor"
	"github.com/fuelsync/fuelsync/internal/kv"
)

// Paging defaults.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Common repository errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidCursor = cursor.ErrMalformed
)

// Repository provides typed access to the single item table.
type Repository struct {
	store kv.Store
}

// New creates a Repository over store.
func New(store kv.Store) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying store.
func (r *Repository) Store() kv.Store {
	return r.store
}

// Ping checks store connectivity when the backend supports it.
func (r *Repository) Ping(ctx context.Context) error {
	if p, ok := r.store.(kv.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Page is one page of a listing.
type Page[T any] struct {
	Items []T
	// NextToken is empty at the end of the collection.
	NextToken string
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}

// marshalItem converts an entity into an item stored under key.
func marshalItem(key kv.Key, v any) (kv.Item, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item: %w", err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to encode item: %w", err)
	}
	return kv.WithKey(key, attrs), nil
}

// unmarshalItem decodes an item's attributes into v.
func unmarshalItem(item kv.Item, v any) error {
	data, err := json.Marshal(item.Attrs())
	if err != nil {
		return fmt.Errorf("failed to decode item: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode item: %w", err)
	}
	return nil
}

// attrsOf renders a patch struct or map into item attributes.
func attrsOf(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}
	var attrs map[string]any
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("failed to encode attributes: %w", err)
	}
	return attrs, nil
}

// get loads and decodes one entity.
func get[T any](ctx context.Context, store kv.Store, key kv.Key) (*T, error) {
	item, err := store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := unmarshalItem(item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// put stores an entity, translating condition failures.
func put(ctx context.Context, store kv.Store, key kv.Key, v any, cond kv.Condition) error {
	item, err := marshalItem(key, v)
	if err != nil {
		return err
	}
	err = store.Put(ctx, item, cond)
	if errors.Is(err, kv.ErrConditionFailed) {
		if cond == kv.MustNotExist {
			return ErrAlreadyExists
		}
		return ErrNotFound
	}
	return err
}

// update applies set to an existing entity and decodes the result.
func update[T any](ctx context.Context, store kv.Store, key kv.Key, set map[string]any) (*T, error) {
	item, err := store.Update(ctx, key, set, kv.MustExist)
	if errors.Is(err, kv.ErrConditionFailed) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := unmarshalItem(item, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// list runs one page of a prefix query behind an opaque token.
func list[T any](ctx context.Context, store kv.Store, q kv.Query, token string) (Page[T], error) {
	after, err := cursor.Decode(token)
	if err != nil {
		return Page[T]{}, err
	}
	if after != nil && after[kv.AttrPK] != q.Partition {
		return Page[T]{}, ErrInvalidCursor
	}
	q.After = after
	q.Limit = ClampLimit(q.Limit)

	page, err := store.Query(ctx, q)
	if err != nil {
		return Page[T]{}, fmt.Errorf("failed to query %s: %w", q.Partition, err)
	}

	items := make([]T, 0, len(page.Items))
	for _, item := range page.Items {
		var v T
		if err := unmarshalItem(item, &v); err != nil {
			return Page[T]{}, err
		}
		items = append(items, v)
	}
	return Page[T]{Items: items, NextToken: cursor.Encode(page.Next)}, nil
}

// scan walks every page of a query, calling fn for each item.
func scan(ctx context.Context, store kv.Store, q kv.Query, fn func(kv.Item) error) error {
	for {
		page, err := store.Query(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to query %s: %w", q.Partition, err)
		}
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if page.Next == nil {
			return nil
		}
		q.After = page.Next
	}
}

// all collects every entity matched by a query.
func all[T any](ctx context.Context, store kv.Store, q kv.Query) ([]T, error) {
	var out []T
	err := scan(ctx, store, q, func(item kv.Item) error {
		var v T
		if err := unmarshalItem(item, &v); err != nil {
			return err
		}
		out = append(out, v)
		return nil
	})
	return out, err
}
