// Package kv defines the key-value store contract the data-access layer is built on.
//
// Items live in a single flat table addressed by a two-part key: a partition key that
// groups related items and a sort key that orders them within the partition.
// Backends (in-memory, DynamoDB, PostgreSQL, SQLite) implement Store.
package kv

import (
	"context"
	"errors"
)

// Reserved attribute names holding the item key.
const (
	AttrPK = "PK"
	AttrSK = "SK"
)

// MaxBatchSize is the largest number of keys accepted by a single BatchDelete.
const MaxBatchSize = 25

var (
	// ErrNotFound is returned by Get when no item exists for the key.
	ErrNotFound = errors.New("kv: item not found")

	// ErrConditionFailed is returned when a conditional write's condition is false.
	ErrConditionFailed = errors.New("kv: condition failed")

	// ErrBatchTooLarge is returned when BatchDelete receives more keys than the backend accepts.
	ErrBatchTooLarge = errors.New("kv: batch too large")

	// ErrInvalidItem is returned for items without a usable key.
	ErrInvalidItem = errors.New("kv: invalid item")
)

// Key addresses one item.
type Key struct {
	PK string
	SK string
}

// Marker is a backend's native "last key seen" pagination marker.
// A nil Marker means there is no further page.
type Marker map[string]string

// Item is an attribute map of JSON-compatible values.
// PK and SK hold the item key.
type Item map[string]any

// Key returns the item key stored in the reserved attributes.
func (i Item) Key() (Key, error) {
	pk, _ := i[AttrPK].(string)
	sk, _ := i[AttrSK].(string)
	if pk == "" || sk == "" {
		return Key{}, ErrInvalidItem
	}
	return Key{PK: pk, SK: sk}, nil
}

// Attrs returns the item without its key attributes.
func (i Item) Attrs() map[string]any {
	attrs := make(map[string]any, len(i))
	for k, v := range i {
		if k == AttrPK || k == AttrSK {
			continue
		}
		attrs[k] = v
	}
	return attrs
}

// WithKey returns attrs merged with the key attributes.
func WithKey(key Key, attrs map[string]any) Item {
	item := make(Item, len(attrs)+2)
	for k, v := range attrs {
		item[k] = v
	}
	item[AttrPK] = key.PK
	item[AttrSK] = key.SK
	return item
}

// MarkerFor builds the marker pointing at key.
func MarkerFor(key Key) Marker {
	return Marker{AttrPK: key.PK, AttrSK: key.SK}
}

// SortKey returns the marker's sort key, or "" if the marker is empty.
func (m Marker) SortKey() string {
	return m[AttrSK]
}

// Condition guards a write on the current state of the target item.
type Condition int

const (
	// Always writes unconditionally.
	Always Condition = iota
	// MustExist requires the item to exist.
	MustExist
	// MustNotExist requires the item to be absent.
	MustNotExist
)

// String implements fmt.Stringer.
func (c Condition) String() string {
	switch c {
	case MustExist:
		return "must_exist"
	case MustNotExist:
		return "must_not_exist"
	default:
		return "always"
	}
}

// Check reports whether the condition holds given the item's existence.
func (c Condition) Check(exists bool) bool {
	switch c {
	case MustExist:
		return exists
	case MustNotExist:
		return !exists
	default:
		return true
	}
}

// Query selects items of one partition whose sort key starts with Prefix.
type Query struct {
	Partition string
	Prefix    string
	// Reverse returns items in descending sort-key order.
	Reverse bool
	// Limit caps the page size; zero means the backend default.
	Limit int
	// After resumes the scan after the given marker.
	After Marker
}

// Page is one round trip of a Query.
type Page struct {
	Items []Item
	// Next is nil when the scan is complete.
	Next Marker
}

// Store is the key-value store collaborator.
type Store interface {
	// Get returns the item for key or ErrNotFound.
	Get(ctx context.Context, key Key) (Item, error)

	// Put writes a whole item, replacing any previous version.
	Put(ctx context.Context, item Item, cond Condition) error

	// Update sets attributes on an item and returns the full updated item.
	Update(ctx context.Context, key Key, set map[string]any, cond Condition) (Item, error)

	// Delete removes an item. Deleting an absent item under Always is a no-op.
	Delete(ctx context.Context, key Key, cond Condition) error

	// Query returns one page of a prefix scan.
	Query(ctx context.Context, q Query) (Page, error)

	// BatchDelete removes up to MaxBatchSize items unconditionally.
	BatchDelete(ctx context.Context, keys []Key) error
}

// TxDeleter is implemented by stores able to delete several items atomically.
type TxDeleter interface {
	// TxLimit is the maximum number of items in one transaction.
	TxLimit() int

	// DeleteTx deletes parent (which must exist) and children in one transaction.
	// It fails with ErrConditionFailed, deleting nothing, if parent is absent.
	DeleteTx(ctx context.Context, parent Key, children []Key) error
}

// Pinger is implemented by stores with a reachable backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Chunk splits keys into consecutive slices of at most size keys.
func Chunk(keys []Key, size int) [][]Key {
	if size <= 0 {
		size = MaxBatchSize
	}
	chunks := make([][]Key, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := min(start+size, len(keys))
		chunks = append(chunks, keys[start:end])
	}
	return chunks
}
