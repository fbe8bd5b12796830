package database

import (
	"context"
	"time"
)

const DefaultListLimit = 100

type PutOptions struct {
	// TTL of zero keeps the value until it is overwritten or deleted.
	TTL time.Duration
}

type ListOptions struct {
	Prefix string
	// Cursor is the last key of the previous page.
	Cursor string
	Limit  int
}

type ListResult struct {
	Keys     []string
	Cursor   string
	Complete bool
}

// KV is the key-value contract every backend implements. Writes are
// last-writer-wins; nothing spans more than one key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, opts PutOptions) error
	List(ctx context.Context, opts ListOptions) (ListResult, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
