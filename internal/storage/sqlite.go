package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const createKVTable = `
CREATE TABLE IF NOT EXISTS kv (
	ns         TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      BLOB    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (ns, key)
);
`

// SQLite stores namespaced values in a single SQLite table.
type SQLite struct {
	mu     sync.Mutex // serialises writers
	db     *sql.DB
	closed atomic.Bool
}

var (
	_ Store     = (*SQLite)(nil)
	_ Modifier  = (*SQLite)(nil)
	_ Compacter = (*SQLite)(nil)
)

// OpenSQLite opens or creates a SQLite keysafe database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	handle, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// one connection keeps pragmas and transactions on the same handle
	handle.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := handle.Exec(pragma); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := handle.Exec(createKVTable); err != nil {
		handle.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0o600); err != nil && !os.IsNotExist(err) {
			handle.Close()
			return nil, fmt.Errorf("chmod database: %w", err)
		}
	}

	return &SQLite{db: handle}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil || s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) ready(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *SQLite) Get(ctx context.Context, ns, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE ns = ? AND key = ?`, ns, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", ns, key, err)
	}
	return value, nil
}

func (s *SQLite) Put(ctx context.Context, ns, key string, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if value == nil {
		value = []byte{}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (ns, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (ns, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		ns, key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, ns, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE ns = ? AND key = ?`, ns, key)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", ns, key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", ns, key, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) Keys(ctx context.Context, ns string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE ns = ? ORDER BY key`, ns)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ns, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("list %s: %w", ns, err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetModified returns the time of the most recent write.
func (s *SQLite) GetModified() (time.Time, error) {
	var nanos sql.NullInt64
	if err := s.db.QueryRow(`SELECT MAX(updated_at) FROM kv`).Scan(&nanos); err != nil {
		return time.Time{}, fmt.Errorf("read modified time: %w", err)
	}
	if !nanos.Valid {
		return time.Time{}, fmt.Errorf("modified time not found")
	}
	return time.Unix(0, nanos.Int64), nil
}

// Compact rebuilds the database file to reclaim free pages.
func (s *SQLite) Compact() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`VACUUM`); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
