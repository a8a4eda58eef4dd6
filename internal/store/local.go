// Package store implements SQLite persistence for fieldpilot: profiles,
// vector entries, and the fill response cache. Three logical collections,
// one database file, no cross-collection transactional guarantees.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"fieldpilot/internal/logging"
)

// ErrNotFound is returned when a keyed lookup has no row.
var ErrNotFound = errors.New("store: not found")

// LocalStore is the single-file SQLite store. One connection, WAL mode,
// guarded by a RWMutex the way a single logical owner would use it.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
// Pass ":memory:" for an ephemeral store in tests.
func NewLocalStore(path string) (*LocalStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewLocalStore")
	defer timer.Stop()

	logging.Store("Initializing LocalStore at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &LocalStore{db: db, dbPath: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("LocalStore ready")
	return s, nil
}

func (s *LocalStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		id         TEXT PRIMARY KEY,
		data       TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vectors (
		id          TEXT PRIMARY KEY,
		profile_id  TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_ref  TEXT,
		content     TEXT NOT NULL,
		embedding   BLOB NOT NULL,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_vectors_profile ON vectors(profile_id);
	CREATE INDEX IF NOT EXISTS idx_vectors_source ON vectors(profile_id, source_kind);

	CREATE TABLE IF NOT EXISTS fill_cache (
		key        TEXT PRIMARY KEY,
		profile_id TEXT NOT NULL,
		payload    TEXT NOT NULL,
		tokens     INTEGER NOT NULL DEFAULT 0,
		hits       INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fill_cache_expiry ON fill_cache(expires_at);
	CREATE INDEX IF NOT EXISTS idx_fill_cache_profile ON fill_cache(profile_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *LocalStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
