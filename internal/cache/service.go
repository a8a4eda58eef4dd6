// Package cache persists resolved mapping sets keyed by form shape, so a
// revisited form on the same domain resolves without another LLM round trip.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"fieldpilot/internal/logging"
	"fieldpilot/internal/store"
	"fieldpilot/internal/types"
)

// keySalt is mixed into every cache key so keys are not portable between
// unrelated deployments of the same database file.
const keySalt = "fieldpilot-fill-cache-v1"

// Entry is one cached resolution: the mappings the pipeline produced for a
// form shape plus bookkeeping read back for stats.
type Entry struct {
	Mappings  []types.FieldMapping `json:"mappings"`
	Tokens    int                  `json:"tokens"`
	Hits      int                  `json:"-"`
	CreatedAt time.Time            `json:"-"`
}

// Service wraps the store's fill_cache collection with key derivation,
// TTL enforcement, and hit accounting.
type Service struct {
	store *store.LocalStore
	ttl   time.Duration
	now   func() time.Time
}

// NewService builds a cache service and lazily purges entries that expired
// while the process was down.
func NewService(st *store.LocalStore, ttl time.Duration) *Service {
	s := &Service{store: st, ttl: ttl, now: time.Now}
	if _, err := st.PurgeExpiredCache(s.now()); err != nil {
		logging.Cache("startup purge failed: %v", err)
	}
	return s
}

// Key derives the cache key for a form shape. The key covers the profile,
// the domain, and the multiset of class:kind pairs of the fields that needed
// generation. Field ids, labels, and DOM order are deliberately excluded:
// the same form re-rendered with different element ids must hit.
func (s *Service) Key(profileID, domain string, fields []types.FieldSignature) string {
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		pairs = append(pairs, string(f.Class)+":"+string(f.Kind))
	}
	sort.Strings(pairs)

	h := sha256.New()
	h.Write([]byte(keySalt))
	h.Write([]byte{0})
	h.Write([]byte(profileID))
	h.Write([]byte{0})
	h.Write([]byte(strings.ToLower(domain)))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// Get looks up a cached resolution. Expired entries are deleted on read and
// reported as a miss. A hit bumps the persisted hit counter.
func (s *Service) Get(profileID, domain string, fields []types.FieldSignature) (Entry, bool) {
	key := s.Key(profileID, domain, fields)
	row, err := s.store.GetCacheRow(key)
	if errors.Is(err, store.ErrNotFound) {
		return Entry{}, false
	}
	if err != nil {
		logging.Cache("cache read failed for %s: %v", key[:12], err)
		return Entry{}, false
	}
	if !row.ExpiresAt.After(s.now()) {
		// Lazy expiry: sweep everything stale, not just this key.
		if _, err := s.store.PurgeExpiredCache(s.now()); err != nil {
			logging.Cache("expiry sweep failed: %v", err)
		}
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(row.Payload), &entry); err != nil {
		logging.Cache("dropping undecodable cache entry %s: %v", key[:12], err)
		_ = s.store.DeleteCacheRow(key)
		return Entry{}, false
	}
	if err := s.store.BumpCacheHit(key); err != nil {
		logging.Cache("hit bump failed for %s: %v", key[:12], err)
	}
	entry.Hits = row.Hits + 1
	entry.CreatedAt = row.CreatedAt
	for i := range entry.Mappings {
		entry.Mappings[i].Provenance = types.ProvenanceCache
	}
	logging.Cache("hit %s (%d mappings, %d tokens saved)", key[:12], len(entry.Mappings), entry.Tokens)
	return entry, true
}

// Put stores a resolution under the derived key, replacing any prior entry
// for the same shape. Empty mapping sets are not cached.
func (s *Service) Put(profileID, domain string, fields []types.FieldSignature, mappings []types.FieldMapping, tokens int) error {
	if len(mappings) == 0 {
		return nil
	}
	payload, err := json.Marshal(Entry{Mappings: mappings, Tokens: tokens})
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	now := s.now()
	row := store.CacheRow{
		Key:       s.Key(profileID, domain, fields),
		ProfileID: profileID,
		Payload:   string(payload),
		Tokens:    tokens,
		Hits:      0,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.PutCacheRow(row); err != nil {
		return err
	}
	logging.Cache("stored %s (%d mappings, ttl %s)", row.Key[:12], len(mappings), s.ttl)
	return nil
}

// Invalidate removes every cached resolution for a profile. Called after
// profile edits and learned-example commits so stale values never replay.
func (s *Service) Invalidate(profileID string) error {
	if err := s.store.DeleteCacheByProfile(profileID); err != nil {
		return fmt.Errorf("failed to invalidate cache for profile %s: %w", profileID, err)
	}
	logging.Cache("invalidated all entries for profile %s", profileID)
	return nil
}
