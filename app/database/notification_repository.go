package database

import (
	"context"
	"encoding/json"
	"fmt"
)

var _ NotificationRepository = (*KVNotificationRepository)(nil)

type KVNotificationRepository struct {
	kv KV
}

func NewNotificationRepository(kv KV) *KVNotificationRepository {
	return &KVNotificationRepository{kv: kv}
}

// SetLast replaces the previous marker.
func (r *KVNotificationRepository) SetLast(ctx context.Context, notification Notification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := r.kv.Put(ctx, LastNotificationKey, data, PutOptions{}); err != nil {
		return fmt.Errorf("failed to save notification marker: %w", err)
	}
	return nil
}

// GetLast returns nil when nothing has been published yet.
func (r *KVNotificationRepository) GetLast(ctx context.Context) (*Notification, error) {
	data, found, err := r.kv.Get(ctx, LastNotificationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get notification marker: %w", err)
	}
	if !found {
		return nil, nil
	}

	var notification Notification
	if err := json.Unmarshal(data, &notification); err != nil {
		return nil, fmt.Errorf("failed to decode notification marker: %w", err)
	}
	return &notification, nil
}
