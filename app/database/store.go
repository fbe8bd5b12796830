package database

import (
	"fmt"
	"log/slog"
)

const (
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// Open returns the KV backend named by backend.
func Open(backend, dbPath, badgerDir string) (KV, error) {
	switch backend {
	case BackendSQLite, "":
		slog.Debug("Opening key-value store", "backend", BackendSQLite, "path", dbPath)
		store, err := NewSQLiteStore(dbPath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendBadger:
		slog.Debug("Opening key-value store", "backend", BackendBadger, "dir", badgerDir)
		store, err := NewBadgerStore(badgerDir)
		if err != nil {
			return nil, err
		}
		return store, nil
	case BackendMemory:
		slog.Warn("Using in-memory key-value store, records will not survive a restart")
		store, err := NewMemoryBadgerStore()
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
