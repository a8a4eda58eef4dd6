// Package vecindex maintains the per-profile vector collection: durable
// rows in the store, read through an in-memory cache invalidated by an
// explicit per-profile generation counter. The index is advisory: a search
// racing a write may serve data one generation stale, which at worst omits
// a single retrieval candidate.
package vecindex

import (
	"fmt"
	"sort"
	"sync"

	"fieldpilot/internal/embedding"
	"fieldpilot/internal/logging"
	"fieldpilot/internal/store"
	"fieldpilot/internal/types"
)

// Index is the per-profile vector collection.
type Index struct {
	store *store.LocalStore

	mu     sync.Mutex
	gens   map[string]uint64       // write generation per profile
	cached map[string]profileCache // entries as of cached.gen
}

type profileCache struct {
	gen     uint64
	entries []types.VectorEntry
}

// SearchResult pairs a vector entry with its similarity to the query.
type SearchResult struct {
	Entry      types.VectorEntry
	Similarity float64
}

// New creates an index over the given store.
func New(s *store.LocalStore) *Index {
	return &Index{
		store:  s,
		gens:   make(map[string]uint64),
		cached: make(map[string]profileCache),
	}
}

// Upsert writes one entry.
func (ix *Index) Upsert(entry types.VectorEntry) error {
	return ix.UpsertBatch([]types.VectorEntry{entry})
}

// UpsertBatch persists entries, then invalidates the affected profiles'
// caches. The durable write completes before the generation bump, so a
// revalidated cache can never be newer than the store.
func (ix *Index) UpsertBatch(entries []types.VectorEntry) error {
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if e.ProfileID == "" {
			return fmt.Errorf("vector entry %s has no profile id", e.ID)
		}
	}

	if err := ix.store.PutVectors(entries); err != nil {
		return err
	}

	ix.mu.Lock()
	for _, e := range entries {
		ix.gens[e.ProfileID]++
	}
	ix.mu.Unlock()

	logging.IndexDebug("upserted %d vectors", len(entries))
	return nil
}

// DeleteByProfile removes every vector a profile owns.
func (ix *Index) DeleteByProfile(profileID string) error {
	if err := ix.store.DeleteVectorsByProfile(profileID); err != nil {
		return err
	}
	ix.bump(profileID)
	return nil
}

// DeleteBySourceKind removes one source kind for a profile, leaving other
// kinds untouched.
func (ix *Index) DeleteBySourceKind(profileID string, source types.VectorSource) error {
	if err := ix.store.DeleteVectorsBySource(profileID, source); err != nil {
		return err
	}
	ix.bump(profileID)

	logging.Index("cleared %s vectors for profile %s", source, profileID)
	return nil
}

// DeleteBySourceRef removes the vectors of a single source reference, such
// as one evicted learned example.
func (ix *Index) DeleteBySourceRef(profileID string, source types.VectorSource, ref string) error {
	if err := ix.store.DeleteVectorsByRef(profileID, source, ref); err != nil {
		return err
	}
	ix.bump(profileID)
	return nil
}

// Search runs brute-force cosine similarity over the profile's entries,
// filters by threshold, sorts descending, and truncates to topK. Entries
// with mismatched dimensions score 0 and fall below any positive threshold.
func (ix *Index) Search(profileID string, query []float32, topK int, threshold float64) ([]SearchResult, error) {
	timer := logging.StartTimer(logging.CategoryIndex, "Search")
	defer timer.Stop()

	if topK <= 0 {
		topK = 5
	}

	entries, err := ix.load(profileID)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		sim := embedding.CosineSimilarity(query, e.Embedding)
		if sim >= threshold {
			results = append(results, SearchResult{Entry: e, Similarity: sim})
		}
	}

	// Stable sort keeps insertion order for equal similarities, which makes
	// repeated searches over an unchanged index return identical orderings.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}

	logging.IndexDebug("search profile=%s corpus=%d hits=%d", profileID, len(entries), len(results))
	return results, nil
}

// Count returns the number of entries cached or stored for a profile.
func (ix *Index) Count(profileID string) (int, error) {
	entries, err := ix.load(profileID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// load returns the profile's entries, revalidating the cache if its
// generation is behind the write generation.
func (ix *Index) load(profileID string) ([]types.VectorEntry, error) {
	ix.mu.Lock()
	gen := ix.gens[profileID]
	if c, ok := ix.cached[profileID]; ok && c.gen == gen {
		entries := c.entries
		ix.mu.Unlock()
		return entries, nil
	}
	ix.mu.Unlock()

	entries, err := ix.store.VectorsByProfile(profileID)
	if err != nil {
		return nil, err
	}

	ix.mu.Lock()
	// Only cache if no write happened while we were reading; a stale fill
	// here would pin old data under a current generation.
	if ix.gens[profileID] == gen {
		ix.cached[profileID] = profileCache{gen: gen, entries: entries}
	}
	ix.mu.Unlock()
	return entries, nil
}

func (ix *Index) bump(profileID string) {
	ix.mu.Lock()
	ix.gens[profileID]++
	ix.mu.Unlock()
}
