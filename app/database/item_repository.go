package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

var _ ItemRepository = (*KVItemRepository)(nil)

// KVItemRepository stores MirroredItems as JSON under item:{id}.
type KVItemRepository struct {
	kv  KV
	now func() time.Time
}

func NewItemRepository(kv KV) *KVItemRepository {
	return &KVItemRepository{kv: kv, now: time.Now}
}

// GetItem returns nil without error when the item does not exist.
func (r *KVItemRepository) GetItem(ctx context.Context, id string) (*MirroredItem, error) {
	data, found, err := r.kv.Get(ctx, ItemKey(id))
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}

	var item MirroredItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", id, err)
	}
	return &item, nil
}

// SaveItem overwrites the record, keeping CreatedAt from the first save.
func (r *KVItemRepository) SaveItem(ctx context.Context, item *MirroredItem) error {
	if item.ID == "" || item.UUID == "" {
		return fmt.Errorf("item requires id and uuid")
	}

	now := r.now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item %s: %w", item.ID, err)
	}

	if err := r.kv.Put(ctx, ItemKey(item.ID), data, PutOptions{}); err != nil {
		return fmt.Errorf("failed to save item %s: %w", item.ID, err)
	}
	return nil
}

// ListItems pages through items in id order. An empty next cursor means the
// listing is complete.
func (r *KVItemRepository) ListItems(ctx context.Context, cursor string, limit int) ([]MirroredItem, string, error) {
	opts := ListOptions{Prefix: ItemKeyPrefix, Limit: limit}
	if cursor != "" {
		opts.Cursor = ItemKey(cursor)
	}

	result, err := r.kv.List(ctx, opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list items: %w", err)
	}

	items := make([]MirroredItem, 0, len(result.Keys))
	for _, key := range result.Keys {
		id := strings.TrimPrefix(key, ItemKeyPrefix)
		item, err := r.GetItem(ctx, id)
		if err != nil {
			slog.Warn("Skipping unreadable item", "id", id, "error", err)
			continue
		}
		if item == nil {
			// Deleted or expired between List and Get.
			continue
		}
		items = append(items, *item)
	}

	next := ""
	if !result.Complete {
		next = strings.TrimPrefix(result.Cursor, ItemKeyPrefix)
	}
	return items, next, nil
}

func (r *KVItemRepository) DeleteItem(ctx context.Context, id string) error {
	if err := r.kv.Delete(ctx, ItemKey(id)); err != nil {
		return fmt.Errorf("failed to delete item %s: %w", id, err)
	}
	return nil
}
