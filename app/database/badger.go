package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var _ KV = (*BadgerStore)(nil)

// BadgerStore maps the KV contract onto badger. TTLs are native; iteration
// is by key order so cursors behave as in SQLiteStore.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: slog.Default().With("component", "badger")}

	return openBadger(opts)
}

// NewMemoryBadgerStore keeps everything in memory. Nothing survives Close.
func NewMemoryBadgerStore() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	return openBadger(opts)
}

func openBadger(opts badger.Options) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %s: %w", opts.Dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return value, true, nil
}

func (s *BadgerStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if opts.TTL > 0 {
			e = e.WithTTL(opts.TTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	limit := listLimit(opts.Limit)
	prefix := []byte(opts.Prefix)

	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.PrefetchValues = false
		iterOpts.Prefix = prefix

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		start := prefix
		if opts.Cursor != "" && strings.HasPrefix(opts.Cursor, opts.Prefix) {
			start = []byte(opts.Cursor)
		}

		for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			if opts.Cursor != "" && key <= opts.Cursor {
				continue
			}
			keys = append(keys, key)
			if len(keys) > limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to list keys: %w", err)
	}

	return page(keys, limit), nil
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts slog to badger's logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)))
}

func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(f, v...)))
}
