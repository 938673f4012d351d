// Package kvtest holds the behavioural suite every kv.Store backend must pass.
package kvtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fuelsync/fuelsync/internal/kv"
)

// Run exercises store. newStore is called once per subtest and must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) kv.Store) {
	t.Helper()

	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newStore(t)) })
	t.Run("Conditions", func(t *testing.T) { testConditions(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("QueryOrderAndPrefix", func(t *testing.T) { testQueryOrder(t, newStore(t)) })
	t.Run("QueryPagination", func(t *testing.T) { testQueryPagination(t, newStore(t)) })
	t.Run("BatchDelete", func(t *testing.T) { testBatchDelete(t, newStore(t)) })
}

func testPutGet(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{PK: "OWNER#u1", SK: "VEHICLE#v1"}

	_, err := s.Get(ctx, key)
	require.ErrorIs(t, err, kv.ErrNotFound)

	item := kv.WithKey(key, map[string]any{
		"make":  "Skoda",
		"year":  2019.0,
		"tags":  []any{"a", "b"},
		"rates": map[string]any{"EUR": 0.92},
	})
	require.NoError(t, s.Put(ctx, item, kv.Always))

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Skoda", got["make"])
	assert.InDelta(t, 2019.0, got["year"], 0)
	assert.Equal(t, map[string]any{"EUR": 0.92}, got["rates"])

	gotKey, err := got.Key()
	require.NoError(t, err)
	assert.Equal(t, key, gotKey)

	require.NoError(t, s.Delete(ctx, key, kv.Always))
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, kv.ErrNotFound)

	// Deleting again without a condition is a no-op.
	require.NoError(t, s.Delete(ctx, key, kv.Always))
}

func testConditions(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{PK: "OWNER#u1", SK: "PROFILE"}
	item := kv.WithKey(key, map[string]any{"email": "a@example.com"})

	require.ErrorIs(t, s.Put(ctx, item, kv.MustExist), kv.ErrConditionFailed)
	require.NoError(t, s.Put(ctx, item, kv.MustNotExist))
	require.ErrorIs(t, s.Put(ctx, item, kv.MustNotExist), kv.ErrConditionFailed)
	require.NoError(t, s.Put(ctx, item, kv.MustExist))

	require.NoError(t, s.Delete(ctx, key, kv.MustExist))
	require.ErrorIs(t, s.Delete(ctx, key, kv.MustExist), kv.ErrConditionFailed)

	_, err := s.Update(ctx, key, map[string]any{"email": "b@example.com"}, kv.MustExist)
	require.ErrorIs(t, err, kv.ErrConditionFailed)
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func testUpdate(t *testing.T, s kv.Store) {
	ctx := context.Background()
	key := kv.Key{PK: "OWNER#u1", SK: "SETTINGS"}
	require.NoError(t, s.Put(ctx, kv.WithKey(key, map[string]any{
		"units":         "imperial",
		"notifications": true,
	}), kv.Always))

	updated, err := s.Update(ctx, key, map[string]any{"units": "metric"}, kv.MustExist)
	require.NoError(t, err)
	assert.Equal(t, "metric", updated["units"])
	assert.Equal(t, true, updated["notifications"])
	assert.Equal(t, key.PK, updated[kv.AttrPK])

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "metric", got["units"])
}

func testQueryOrder(t *testing.T, s kv.Store) {
	ctx := context.Background()
	part := "VEHICLE#v1"
	for _, sk := range []string{"REFILL#2", "EXPENSE#1", "REFILL#1", "REFILL#3", "EXPENSE#2"} {
		require.NoError(t, s.Put(ctx, kv.WithKey(kv.Key{PK: part, SK: sk}, nil), kv.Always))
	}
	require.NoError(t, s.Put(ctx, kv.WithKey(kv.Key{PK: "VEHICLE#v2", SK: "REFILL#9"}, nil), kv.Always))

	page, err := s.Query(ctx, kv.Query{Partition: part, Prefix: "REFILL#"})
	require.NoError(t, err)
	assert.Equal(t, []string{"REFILL#1", "REFILL#2", "REFILL#3"}, sortKeys(page.Items))
	assert.Nil(t, page.Next)

	page, err = s.Query(ctx, kv.Query{Partition: part, Prefix: "REFILL#", Reverse: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"REFILL#3", "REFILL#2", "REFILL#1"}, sortKeys(page.Items))

	page, err = s.Query(ctx, kv.Query{Partition: part})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)

	page, err = s.Query(ctx, kv.Query{Partition: "VEHICLE#missing"})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func testQueryPagination(t *testing.T, s kv.Store) {
	ctx := context.Background()
	part := "VEHICLE#v1"
	for i := range 23 {
		key := kv.Key{PK: part, SK: fmt.Sprintf("REFILL#%03d", i)}
		require.NoError(t, s.Put(ctx, kv.WithKey(key, map[string]any{"n": float64(i)}), kv.Always))
	}

	full, err := s.Query(ctx, kv.Query{Partition: part, Prefix: "REFILL#", Reverse: true, Limit: 100})
	require.NoError(t, err)
	require.Len(t, full.Items, 23)

	var paged []kv.Item
	var after kv.Marker
	for calls := 0; ; calls++ {
		require.Less(t, calls, 10, "pagination did not terminate")
		page, err := s.Query(ctx, kv.Query{Partition: part, Prefix: "REFILL#", Reverse: true, Limit: 5, After: after})
		require.NoError(t, err)
		paged = append(paged, page.Items...)
		if page.Next == nil {
			break
		}
		after = page.Next
	}
	assert.Equal(t, sortKeys(full.Items), sortKeys(paged))
}

func testBatchDelete(t *testing.T, s kv.Store) {
	ctx := context.Background()
	part := "VEHICLE#v1"
	keys := make([]kv.Key, 0, kv.MaxBatchSize)
	for i := range kv.MaxBatchSize {
		key := kv.Key{PK: part, SK: fmt.Sprintf("EXPENSE#%03d", i)}
		keys = append(keys, key)
		require.NoError(t, s.Put(ctx, kv.WithKey(key, nil), kv.Always))
	}

	tooMany := append(append([]kv.Key{}, keys...), kv.Key{PK: part, SK: "EXPENSE#999"})
	require.ErrorIs(t, s.BatchDelete(ctx, tooMany), kv.ErrBatchTooLarge)

	require.NoError(t, s.BatchDelete(ctx, keys))
	page, err := s.Query(ctx, kv.Query{Partition: part})
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	// Absent keys are ignored.
	require.NoError(t, s.BatchDelete(ctx, keys[:3]))
}

func sortKeys(items []kv.Item) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		sk, _ := item[kv.AttrSK].(string)
		out = append(out, sk)
	}
	return out
}
