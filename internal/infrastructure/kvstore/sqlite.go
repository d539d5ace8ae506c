package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-mqttmgr/internal/infrastructure/database"
)

// SQLiteStore keeps blobs in the kv_blobs table created by the embedded migrations.
type SQLiteStore struct {
	db *database.DB

	mu     sync.Mutex
	staged map[stagedKey][]byte
	closed bool
}

// NewSQLiteStore wraps an open, migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{
		db:     db,
		staged: make(map[stagedKey][]byte),
	}
}

// Get returns the staged value if any, otherwise the committed row.
func (s *SQLiteStore) Get(ctx context.Context, namespace, key string) ([]byte, error) {
	if err := validateKey(namespace, key); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if v, ok := s.staged[stagedKey{namespace, key}]; ok {
		out := append([]byte(nil), v...)
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv_blobs WHERE namespace = ? AND key = ?",
		namespace, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s/%s: %w", namespace, key, err)
	}
	return value, nil
}

// Set stages value for the next Commit.
func (s *SQLiteStore) Set(_ context.Context, namespace, key string, value []byte) error {
	if err := validateKey(namespace, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.staged[stagedKey{namespace, key}] = append([]byte(nil), value...)
	return nil
}

// Commit writes all staged values in one transaction. The staged values
// are dropped whether or not it succeeds, so Get never reports a value
// that was not persisted; callers Set again to retry.
func (s *SQLiteStore) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.staged) == 0 {
		return nil
	}
	defer clear(s.staged)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range s.staged {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv_blobs (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
		`, k.namespace, k.key, v, now); err != nil {
			return fmt.Errorf("writing %s/%s: %w", k.namespace, k.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing blobs: %w", err)
	}
	return nil
}

// Close discards uncommitted values. The database itself is owned by the caller.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	clear(s.staged)
	return nil
}
