package flagstore

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists cached flags to SQLite.
// It is suitable for single-process use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore creates a SQLite store.
// The path should be a file path (e.g., "./flags.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS flag_cache (
			env TEXT NOT NULL,
			context_hash TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			timestamp TEXT NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (env, context_hash)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_flag_cache_env_sequence
		ON flag_cache(env, sequence)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(env, contextHash string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	// Sequence is global so that recency is comparable across saves.
	_, err := s.db.Exec(`
		INSERT INTO flag_cache (env, context_hash, sequence, timestamp, data)
		VALUES (
			?, ?,
			COALESCE((SELECT MAX(sequence) FROM flag_cache), 0) + 1,
			?, ?
		)
		ON CONFLICT(env, context_hash) DO UPDATE SET
			sequence = (SELECT MAX(sequence) FROM flag_cache) + 1,
			timestamp = excluded.timestamp,
			data = excluded.data
	`, env, contextHash, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save flags: %w", err)
	}
	return nil
}

// Load implements Store.
func (s *SQLiteStore) Load(env, contextHash string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := s.db.QueryRow(`
		SELECT data FROM flag_cache
		WHERE env = ? AND context_hash = ?
	`, env, contextHash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load flags: %w", err)
	}
	return data, nil
}

// List implements Store.
func (s *SQLiteStore) List(env string) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.Query(`
		SELECT context_hash, sequence, timestamp, LENGTH(data)
		FROM flag_cache
		WHERE env = ?
		ORDER BY sequence
	`, env)
	if err != nil {
		return nil, fmt.Errorf("list flags: %w", err)
	}
	defer rows.Close()

	infos := []Info{}
	for rows.Next() {
		var info Info
		var timestamp string
		if err := rows.Scan(&info.ContextHash, &info.Sequence, &timestamp, &info.Size); err != nil {
			return nil, fmt.Errorf("scan flag cache info: %w", err)
		}
		info.Env = env
		info.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flag cache: %w", err)
	}
	return infos, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(env, contextHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`
		DELETE FROM flag_cache
		WHERE env = ? AND context_hash = ?
	`, env, contextHash); err != nil {
		return fmt.Errorf("delete flags: %w", err)
	}
	return nil
}

// Prune implements Store.
func (s *SQLiteStore) Prune(env string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.Exec(`
		DELETE FROM flag_cache
		WHERE env = ? AND context_hash NOT IN (
			SELECT context_hash FROM flag_cache
			WHERE env = ?
			ORDER BY sequence DESC
			LIMIT ?
		)
	`, env, env, max(keep, 0)); err != nil {
		return fmt.Errorf("prune flags: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
