package store

import (
	"database/sql"
	"fmt"
	"time"

	"fieldpilot/internal/logging"
)

// CacheRow is one persisted fill-cache entry. Payload is the serialized
// mapping set; the cache service owns its shape.
type CacheRow struct {
	Key       string
	ProfileID string
	Payload   string
	Tokens    int
	Hits      int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// PutCacheRow inserts or replaces a cache entry.
func (s *LocalStore) PutCacheRow(row CacheRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO fill_cache (key, profile_id, payload, tokens, hits, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		row.Key, row.ProfileID, row.Payload, row.Tokens, row.Hits, row.CreatedAt.Unix(), row.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// GetCacheRow loads one cache entry by key. Returns ErrNotFound when absent.
// Expiry is enforced by the cache service, not here.
func (s *LocalStore) GetCacheRow(key string) (CacheRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var row CacheRow
	var created, expires int64
	err := s.db.QueryRow(
		"SELECT key, profile_id, payload, tokens, hits, created_at, expires_at FROM fill_cache WHERE key = ?", key,
	).Scan(&row.Key, &row.ProfileID, &row.Payload, &row.Tokens, &row.Hits, &created, &expires)
	if err == sql.ErrNoRows {
		return CacheRow{}, ErrNotFound
	}
	if err != nil {
		return CacheRow{}, err
	}
	row.CreatedAt = time.Unix(created, 0)
	row.ExpiresAt = time.Unix(expires, 0)
	return row, nil
}

// BumpCacheHit increments and persists the hit counter.
func (s *LocalStore) BumpCacheHit(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE fill_cache SET hits = hits + 1 WHERE key = ?", key)
	return err
}

// PurgeExpiredCache deletes entries whose expiry is at or before now,
// returning the number removed.
func (s *LocalStore) PurgeExpiredCache(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM fill_cache WHERE expires_at <= ?", now.Unix())
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Cache("purged %d expired cache entries", n)
	}
	return int(n), nil
}

// DeleteCacheRow removes a single cache entry.
func (s *LocalStore) DeleteCacheRow(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM fill_cache WHERE key = ?", key)
	return err
}

// DeleteCacheByProfile removes every cache entry a profile owns.
func (s *LocalStore) DeleteCacheByProfile(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM fill_cache WHERE profile_id = ?", profileID)
	return err
}
