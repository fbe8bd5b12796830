package database

import (
	"context"
)

type ItemRepository interface {
	GetItem(ctx context.Context, id string) (*MirroredItem, error)
	SaveItem(ctx context.Context, item *MirroredItem) error
	ListItems(ctx context.Context, cursor string, limit int) ([]MirroredItem, string, error)
	DeleteItem(ctx context.Context, id string) error
}

type NotificationRepository interface {
	SetLast(ctx context.Context, notification Notification) error
	GetLast(ctx context.Context) (*Notification, error)
}
