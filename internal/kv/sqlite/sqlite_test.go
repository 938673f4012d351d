package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelsync/fuelsync/internal/kv"
	"github.com/fuelsync/fuelsync/internal/kv/kvtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "fuelsync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		return newTestStore(t)
	})
}

func TestOpen_ReappliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fuelsync.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(context.Background(), path)
	require.NoError(t, err)
	assert.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Close())
}

func TestQuery_PrefixIsLiteral(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, sk := range []string{"REFILL#1", "REFILL_1", "REFILLX"} {
		require.NoError(t, s.Put(ctx, kv.WithKey(kv.Key{PK: "VEHICLE#v1", SK: sk}, nil), kv.Always))
	}

	page, err := s.Query(ctx, kv.Query{Partition: "VEHICLE#v1", Prefix: "REFILL#"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "REFILL#1", page.Items[0][kv.AttrSK])
}

func TestDeleteTx(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	parent := kv.Key{PK: "OWNER#u1", SK: "VEHICLE#v1"}
	children := []kv.Key{{PK: "VEHICLE#v1", SK: "REFILL#a"}, {PK: "VEHICLE#v1", SK: "EXPENSE#b"}}
	require.NoError(t, s.Put(ctx, kv.WithKey(parent, nil), kv.Always))
	for _, k := range children {
		require.NoError(t, s.Put(ctx, kv.WithKey(k, nil), kv.Always))
	}

	require.NoError(t, s.DeleteTx(ctx, parent, children))
	page, err := s.Query(ctx, kv.Query{Partition: "VEHICLE#v1"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	require.NoError(t, s.Put(ctx, kv.WithKey(children[0], nil), kv.Always))
	assert.ErrorIs(t, s.DeleteTx(ctx, parent, children[:1]), kv.ErrConditionFailed)
	_, err = s.Get(ctx, children[0])
	assert.NoError(t, err, "children survive a failed transaction")
}
