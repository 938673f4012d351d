package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/kv/kvtest"
)

func TestStore_Conformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		return New(Options{})
	})
}

func TestStore_DefaultPageSize(t *testing.T) {
	ctx := context.Background()
	s := New(Options{PageSize: 2})
	for _, sk := range []string{"REFILL#1", "REFILL#2", "REFILL#3"} {
		require.NoError(t, s.Put(ctx, kv.WithKey(kv.Key{PK: "VEHICLE#v1", SK: sk}, nil), kv.Always))
	}

	page, err := s.Query(ctx, kv.Query{Partition: "VEHICLE#v1"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "REFILL#2", page.Next.SortKey())

	page, err = s.Query(ctx, kv.Query{Partition: "VEHICLE#v1", After: page.Next})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Nil(t, page.Next)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New(Options{})
	key := kv.Key{PK: "RATE#2024-01-01", SK: "RATES"}
	require.NoError(t, s.Put(ctx, kv.WithKey(key, map[string]any{"rates": map[string]any{"EUR": 0.9}}), kv.Always))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	got["rates"].(map[string]any)["EUR"] = 5.0

	again, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 0.9, again["rates"].(map[string]any)["EUR"])
}

func TestStore_BatchLimit(t *testing.T) {
	s := New(Options{BatchLimit: 2})
	keys := []kv.Key{{PK: "p", SK: "1"}, {PK: "p", SK: "2"}, {PK: "p", SK: "3"}}
	assert.ErrorIs(t, s.BatchDelete(context.Background(), keys), kv.ErrBatchTooLarge)
	assert.NoError(t, s.BatchDelete(context.Background(), keys[:2]))
}
