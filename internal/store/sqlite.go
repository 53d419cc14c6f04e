package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is the durable file-backed backend: one kv table, one row
// per key. The whole retry queue is a single serialized value, so the
// schema stays deliberately flat.
type SQLiteStore struct {
	db  *sql.DB
	hub *watchHub
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS kv (
    key   TEXT PRIMARY KEY,
    value BLOB NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init kv schema: %w", err)
	}

	return &SQLiteStore{db: db, hub: newWatchHub()}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	old, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite set %s: %w", key, err)
	}

	s.hub.dispatch(key, value, old)
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context, key string) error {
	old, err := s.Get(ctx, key)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite delete %s: %w", key, err)
	}

	if old != nil {
		s.hub.dispatch(key, nil, old)
	}
	return nil
}

func (s *SQLiteStore) Watch(key string, fn func(newValue, oldValue []byte)) {
	s.hub.add(key, fn)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
