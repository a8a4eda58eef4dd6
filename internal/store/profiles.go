package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
)

// SaveProfile inserts or replaces a profile, stored as a JSON blob.
func (s *LocalStore) SaveProfile(p *types.Profile) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("profile id required")
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO profiles (id, data, updated_at) VALUES (?, ?, ?)",
		p.ID, string(data), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save profile %s: %w", p.ID, err)
	}
	logging.StoreDebug("saved profile %s (%d fields)", p.ID, len(p.Fields))
	return nil
}

// GetProfile loads one profile by id. Returns ErrNotFound when absent.
func (s *LocalStore) GetProfile(id string) (*types.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data string
	err := s.db.QueryRow("SELECT data FROM profiles WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile %s: %w", id, err)
	}

	var p types.Profile
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile %s: %w", id, err)
	}
	return &p, nil
}

// DeleteProfile removes a profile row. Vectors and cache entries owned by
// the profile are deleted separately; the store assumes no multi-collection
// transaction.
func (s *LocalStore) DeleteProfile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM profiles WHERE id = ?", id)
	return err
}

// ListProfileIDs returns all stored profile ids.
func (s *LocalStore) ListProfileIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id FROM profiles ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
