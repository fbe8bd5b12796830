package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"
)

var _ KV = (*SQLiteStore)(nil)

// SQLiteStore keeps keys in a single table. Expired rows are hidden from
// reads and removed lazily on write.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database %s: %w", path, err)
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Database migrations applied", "path", path, "version", version, "dirty", dirty)

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) notExpired(now time.Time) sq.Sqlizer {
	return sq.Or{sq.Eq{"expires_at": nil}, sq.Gt{"expires_at": now.UnixMilli()}}
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	query, args, err := sq.Select("value").
		From("kv").
		Where(sq.Eq{"key": key}).
		Where(s.notExpired(s.now())).
		ToSql()
	if err != nil {
		return nil, false, err
	}

	var value []byte
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte, opts PutOptions) error {
	now := s.now()

	var expiresAt any
	if opts.TTL > 0 {
		expiresAt = now.Add(opts.TTL).UnixMilli()
	}

	query, args, err := sq.Insert("kv").
		Columns("key", "value", "expires_at", "updated_at").
		Values(key, value, expiresAt, now.UnixMilli()).
		Suffix("ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	if opts.TTL > 0 {
		s.purgeExpired(ctx, now)
	}

	return nil
}

func (s *SQLiteStore) List(ctx context.Context, opts ListOptions) (ListResult, error) {
	limit := listLimit(opts.Limit)

	builder := sq.Select("key").
		From("kv").
		Where(s.notExpired(s.now())).
		OrderBy("key").
		Limit(uint64(limit + 1))
	if opts.Prefix != "" {
		builder = builder.Where(sq.Expr(`key LIKE ? ESCAPE '\'`, escapeLike(opts.Prefix)+"%"))
	}
	if opts.Cursor != "" {
		builder = builder.Where(sq.Gt{"key": opts.Cursor})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return ListResult{}, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ListResult{}, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return ListResult{}, fmt.Errorf("failed to scan key row: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return ListResult{}, fmt.Errorf("error iterating key rows: %w", err)
	}

	return page(keys, limit), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	query, args, err := sq.Delete("kv").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) purgeExpired(ctx context.Context, now time.Time) {
	query, args, err := sq.Delete("kv").Where(sq.LtOrEq{"expires_at": now.UnixMilli()}).ToSql()
	if err != nil {
		return
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		slog.Warn("Failed to purge expired keys", "error", err)
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// page trims a limit+1 result down to limit and sets the cursor.
func page(keys []string, limit int) ListResult {
	if len(keys) <= limit {
		return ListResult{Keys: keys, Complete: true}
	}
	keys = keys[:limit]
	return ListResult{Keys: keys, Cursor: keys[len(keys)-1]}
}
