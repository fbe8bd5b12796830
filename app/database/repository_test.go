package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemRepository_SaveAndGet(t *testing.T) {
	repo := NewItemRepository(newSQLiteTestStore(t))
	ctx := context.Background()

	missing, err := repo.GetItem(ctx, "0123456789abcdef")
	require.NoError(t, err)
	assert.Nil(t, missing)

	item := &MirroredItem{
		ID:          "0123456789abcdef",
		UUID:        "6f1c1d0e-8d36-4a5e-9a53-3b8a4b1f2e10",
		Title:       "Comunicado sobre Discernimentos",
		SourceURL:   "https://x/y",
		PublishedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		BodyHTML:    "<p>body</p>",
	}
	require.NoError(t, repo.SaveItem(ctx, item))
	created := item.CreatedAt
	assert.False(t, created.IsZero())

	got, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, item.UUID, got.UUID)
	assert.False(t, got.Published())

	got.Revision = "abc123"
	require.NoError(t, repo.SaveItem(ctx, got))

	updated, err := repo.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, updated.Published())
	assert.True(t, updated.CreatedAt.Equal(created), "CreatedAt should survive updates")
}

func TestItemRepository_RejectsIncompleteItem(t *testing.T) {
	repo := NewItemRepository(newSQLiteTestStore(t))
	assert.Error(t, repo.SaveItem(context.Background(), &MirroredItem{ID: "x"}))
}

func TestItemRepository_ListAndDelete(t *testing.T) {
	kv := newBadgerTestStore(t)
	repo := NewItemRepository(kv)
	ctx := context.Background()

	for _, id := range []string{"a1", "b2", "c3"} {
		require.NoError(t, repo.SaveItem(ctx, &MirroredItem{ID: id, UUID: "u-" + id}))
	}
	require.NoError(t, NewNotificationRepository(kv).SetLast(ctx, Notification{ID: "a1"}))

	items, next, err := repo.ListItems(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a1", items[0].ID)
	assert.Equal(t, "b2", next)

	items, next, err = repo.ListItems(ctx, next, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c3", items[0].ID)
	assert.Empty(t, next)

	require.NoError(t, repo.DeleteItem(ctx, "b2"))
	items, _, err = repo.ListItems(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestNotificationRepository(t *testing.T) {
	repo := NewNotificationRepository(newSQLiteTestStore(t))
	ctx := context.Background()

	last, err := repo.GetLast(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, repo.SetLast(ctx, Notification{ID: "a", Title: "First", URL: "https://m/a"}))
	require.NoError(t, repo.SetLast(ctx, Notification{ID: "b", Title: "Second", URL: "https://m/b"}))

	last, err = repo.GetLast(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "b", last.ID, "Only the most recent notification is kept")
}
