// Package memory provides an in-memory kv.Store for tests and local development.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/fuelsync/fuelsync/internal/kv"
)

// Options tune the store's pagination and batching limits.
type Options struct {
	// PageSize is the number of items returned by Query when no limit is set.
	PageSize int
	// BatchLimit is the largest accepted BatchDelete.
	BatchLimit int
}

// Store keeps items in nested maps guarded by a RWMutex.
type Store struct {
	mu    sync.RWMutex
	parts map[string]map[string]kv.Item
	opts  Options
}

var _ kv.Store = (*Store)(nil)

// New creates an empty store.
func New(opts Options) *Store {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.BatchLimit <= 0 || opts.BatchLimit > kv.MaxBatchSize {
		opts.BatchLimit = kv.MaxBatchSize
	}
	return &Store{
		parts: make(map[string]map[string]kv.Item),
		opts:  opts,
	}
}

// Get implements kv.Store.
func (s *Store) Get(_ context.Context, key kv.Key) (kv.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.lookupLocked(key)
	if !ok {
		return nil, kv.ErrNotFound
	}
	return clone(item)
}

// Put implements kv.Store.
func (s *Store) Put(_ context.Context, item kv.Item, cond kv.Condition) error {
	key, err := item.Key()
	if err != nil {
		return err
	}
	stored, err := clone(item)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.lookupLocked(key)
	if !cond.Check(exists) {
		return kv.ErrConditionFailed
	}
	s.storeLocked(key, stored)
	return nil
}

// Update implements kv.Store.
func (s *Store) Update(_ context.Context, key kv.Key, set map[string]any, cond kv.Condition) (kv.Item, error) {
	patch, err := clone(kv.Item(set))
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.lookupLocked(key)
	if !cond.Check(exists) {
		return nil, kv.ErrConditionFailed
	}

	updated := kv.WithKey(key, nil)
	for k, v := range current {
		updated[k] = v
	}
	for k, v := range patch {
		if k == kv.AttrPK || k == kv.AttrSK {
			continue
		}
		updated[k] = v
	}
	s.storeLocked(key, updated)
	return clone(updated)
}

// Delete implements kv.Store.
func (s *Store) Delete(_ context.Context, key kv.Key, cond kv.Condition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, exists := s.lookupLocked(key)
	if !cond.Check(exists) {
		return kv.ErrConditionFailed
	}
	s.deleteLocked(key)
	return nil
}

// Query implements kv.Store.
func (s *Store) Query(_ context.Context, q kv.Query) (kv.Page, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = s.opts.PageSize
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	part := s.parts[q.Partition]
	sortKeys := make([]string, 0, len(part))
	for sk := range part {
		if strings.HasPrefix(sk, q.Prefix) {
			sortKeys = append(sortKeys, sk)
		}
	}
	sort.Strings(sortKeys)
	if q.Reverse {
		sort.Sort(sort.Reverse(sort.StringSlice(sortKeys)))
	}

	if after := q.After.SortKey(); after != "" {
		start := len(sortKeys)
		for i, sk := range sortKeys {
			if (!q.Reverse && sk > after) || (q.Reverse && sk < after) {
				start = i
				break
			}
		}
		sortKeys = sortKeys[start:]
	}

	var page kv.Page
	if len(sortKeys) > limit {
		sortKeys = sortKeys[:limit]
		page.Next = kv.MarkerFor(kv.Key{PK: q.Partition, SK: sortKeys[limit-1]})
	}

	page.Items = make([]kv.Item, 0, len(sortKeys))
	for _, sk := range sortKeys {
		item, err := clone(part[sk])
		if err != nil {
			return kv.Page{}, err
		}
		page.Items = append(page.Items, item)
	}
	return page, nil
}

// BatchDelete implements kv.Store.
func (s *Store) BatchDelete(_ context.Context, keys []kv.Key) error {
	if len(keys) > s.opts.BatchLimit {
		return fmt.Errorf("%w: %d keys, limit %d", kv.ErrBatchTooLarge, len(keys), s.opts.BatchLimit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		s.deleteLocked(key)
	}
	return nil
}

// Len returns the number of items stored under a partition.
func (s *Store) Len(partition string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parts[partition])
}

func (s *Store) lookupLocked(key kv.Key) (kv.Item, bool) {
	item, ok := s.parts[key.PK][key.SK]
	return item, ok
}

func (s *Store) storeLocked(key kv.Key, item kv.Item) {
	part, ok := s.parts[key.PK]
	if !ok {
		part = make(map[string]kv.Item)
		s.parts[key.PK] = part
	}
	part[key.SK] = item
}

func (s *Store) deleteLocked(key kv.Key) {
	part, ok := s.parts[key.PK]
	if !ok {
		return
	}
	delete(part, key.SK)
	if len(part) == 0 {
		delete(s.parts, key.PK)
	}
}

// clone deep-copies an item through JSON so stored values have the same
// shapes every other backend returns.
func clone(item kv.Item) (kv.Item, error) {
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item: %w", err)
	}
	var out kv.Item
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode item: %w", err)
	}
	return out, nil
}
