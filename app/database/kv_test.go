package database

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err, "Failed to create test SQLite store")
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

func newBadgerTestStore(t *testing.T) *BadgerStore {
	t.Helper()

	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err, "Failed to create test Badger store")
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

// backends runs the same contract checks against every implementation.
func backends(t *testing.T) map[string]KV {
	memory, err := NewMemoryBadgerStore()
	require.NoError(t, err)
	t.Cleanup(func() { memory.Close() })

	return map[string]KV{
		"sqlite": newSQLiteTestStore(t),
		"badger": newBadgerTestStore(t),
		"memory": memory,
	}
}

func TestKV_GetPutDelete(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, found, err := kv.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, kv.Put(ctx, "item:1", []byte("one"), PutOptions{}))
			require.NoError(t, kv.Put(ctx, "item:1", []byte("uno"), PutOptions{}))

			value, found, err := kv.Get(ctx, "item:1")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "uno", string(value), "Last write should win")

			require.NoError(t, kv.Delete(ctx, "item:1"))
			_, found, err = kv.Get(ctx, "item:1")
			require.NoError(t, err)
			assert.False(t, found)

			assert.NoError(t, kv.Delete(ctx, "item:1"), "Delete should be idempotent")
		})
	}
}

func TestKV_ListPaging(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 5; i++ {
				require.NoError(t, kv.Put(ctx, fmt.Sprintf("item:%d", i), []byte("x"), PutOptions{}))
			}
			require.NoError(t, kv.Put(ctx, LastNotificationKey, []byte("{}"), PutOptions{}))
			require.NoError(t, kv.Put(ctx, "item_other", []byte("x"), PutOptions{}))

			first, err := kv.List(ctx, ListOptions{Prefix: "item:", Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"item:0", "item:1"}, first.Keys)
			assert.False(t, first.Complete)
			assert.Equal(t, "item:1", first.Cursor)

			second, err := kv.List(ctx, ListOptions{Prefix: "item:", Cursor: first.Cursor, Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"item:2", "item:3"}, second.Keys)

			last, err := kv.List(ctx, ListOptions{Prefix: "item:", Cursor: second.Cursor, Limit: 2})
			require.NoError(t, err)
			assert.Equal(t, []string{"item:4"}, last.Keys)
			assert.True(t, last.Complete)
			assert.Empty(t, last.Cursor)

			all, err := kv.List(ctx, ListOptions{})
			require.NoError(t, err)
			assert.Len(t, all.Keys, 7)
		})
	}
}

func TestSQLiteStore_TTL(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, "session:a", []byte("a"), PutOptions{TTL: time.Minute}))
	require.NoError(t, store.Put(ctx, "session:b", []byte("b"), PutOptions{}))

	_, found, err := store.Get(ctx, "session:a")
	require.NoError(t, err)
	assert.True(t, found)

	now = now.Add(2 * time.Minute)

	_, found, err = store.Get(ctx, "session:a")
	require.NoError(t, err)
	assert.False(t, found, "Expired key should be hidden")

	result, err := store.List(ctx, ListOptions{Prefix: "session:"})
	require.NoError(t, err)
	assert.Equal(t, []string{"session:b"}, result.Keys)
}

func TestSQLiteStore_PrefixIsLiteral(t *testing.T) {
	store := newSQLiteTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a_b", []byte("x"), PutOptions{}))
	require.NoError(t, store.Put(ctx, "axb", []byte("x"), PutOptions{}))

	result, err := store.List(ctx, ListOptions{Prefix: "a_"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a_b"}, result.Keys)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("postgres", "", "")
	assert.Error(t, err)
}
