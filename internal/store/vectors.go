package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"fieldpilot/internal/logging"
	"fieldpilot/internal/types"
)

// encodeVector packs float32s as little-endian bytes, the layout sqlite-vec
// expects, so the blob column works with or without the extension loaded.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector. A ragged blob yields nil,
// which downstream cosine scoring treats as zero similarity.
func decodeVector(blob []byte) []float32 {
	if len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

// PutVectors inserts or replaces a batch of vector entries.
func (s *LocalStore) PutVectors(entries []types.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin vector write: %w", err)
	}

	stmt, err := tx.Prepare(
		"INSERT OR REPLACE INTO vectors (id, profile_id, source_kind, source_ref, content, embedding, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		created := e.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		if _, err := stmt.Exec(e.ID, e.ProfileID, string(e.Source), e.SourceRef, e.Text, encodeVector(e.Embedding), created.Unix()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to write vector %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vector write: %w", err)
	}
	logging.StoreDebug("wrote %d vectors", len(entries))
	return nil
}

// VectorsByProfile loads every vector entry owned by a profile.
func (s *LocalStore) VectorsByProfile(profileID string) ([]types.VectorEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, profile_id, source_kind, source_ref, content, embedding, created_at FROM vectors WHERE profile_id = ? ORDER BY created_at, id",
		profileID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []types.VectorEntry
	for rows.Next() {
		var e types.VectorEntry
		var source, ref string
		var blob []byte
		var created int64
		if err := rows.Scan(&e.ID, &e.ProfileID, &source, &ref, &e.Text, &blob, &created); err != nil {
			continue
		}
		e.Source = types.VectorSource(source)
		e.SourceRef = ref
		e.Embedding = decodeVector(blob)
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteVectorsByProfile removes every vector a profile owns.
func (s *LocalStore) DeleteVectorsByProfile(profileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM vectors WHERE profile_id = ?", profileID)
	return err
}

// DeleteVectorsBySource removes one source kind for a profile, leaving
// other kinds untouched.
func (s *LocalStore) DeleteVectorsBySource(profileID string, source types.VectorSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM vectors WHERE profile_id = ? AND source_kind = ?", profileID, string(source))
	return err
}

// DeleteVectorsByRef removes the vectors of one source reference, such as a
// single document or learned example.
func (s *LocalStore) DeleteVectorsByRef(profileID string, source types.VectorSource, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"DELETE FROM vectors WHERE profile_id = ? AND source_kind = ? AND source_ref = ?",
		profileID, string(source), ref)
	return err
}

// VectorStats returns per-source-kind counts for a profile.
func (s *LocalStore) VectorStats(profileID string) (map[types.VectorSource]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT source_kind, COUNT(*) FROM vectors WHERE profile_id = ? GROUP BY source_kind", profileID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[types.VectorSource]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			continue
		}
		stats[types.VectorSource(kind)] = n
	}
	return stats, rows.Err()
}
