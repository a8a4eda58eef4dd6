package vecindex

import (
	"testing"
	"time"

	"fieldpilot/internal/store"
	"fieldpilot/internal/types"
)

func testIndex(t *testing.T) *Index {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func entry(id, profile string, src types.VectorSource, ref string, vec []float32) types.VectorEntry {
	return types.VectorEntry{
		ID:        id,
		ProfileID: profile,
		Source:    src,
		SourceRef: ref,
		Text:      "text for " + id,
		Embedding: vec,
		CreatedAt: time.Now(),
	}
}

func TestSearchRanksByCosine(t *testing.T) {
	ix := testIndex(t)
	err := ix.UpsertBatch([]types.VectorEntry{
		entry("far", "p1", types.SourceDocument, "", []float32{0, 1}),
		entry("near", "p1", types.SourceDocument, "", []float32{1, 0.1}),
		entry("exact", "p1", types.SourceDocument, "", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}

	results, err := ix.Search("p1", []float32{1, 0}, 10, 0.5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2 (threshold filters the orthogonal one): %+v", len(results), results)
	}
	if results[0].Entry.ID != "exact" || results[1].Entry.ID != "near" {
		t.Errorf("order = %s, %s", results[0].Entry.ID, results[1].Entry.ID)
	}
	if results[0].Similarity < results[1].Similarity {
		t.Errorf("similarities not descending: %v", results)
	}
}

func TestSearchTopKTruncation(t *testing.T) {
	ix := testIndex(t)
	var entries []types.VectorEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, entry(string(rune('a'+i)), "p1", types.SourceDocument, "", []float32{1, 0}))
	}
	if err := ix.UpsertBatch(entries); err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	results, err := ix.Search("p1", []float32{1, 0}, 3, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearchDimensionMismatchScoresZero(t *testing.T) {
	ix := testIndex(t)
	err := ix.UpsertBatch([]types.VectorEntry{
		entry("threedim", "p1", types.SourceDocument, "", []float32{1, 0, 0}),
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	results, err := ix.Search("p1", []float32{1, 0}, 10, 0.1)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("mismatched dimensions must fall below threshold: %+v", results)
	}
}

func TestSearchProfileIsolation(t *testing.T) {
	ix := testIndex(t)
	err := ix.UpsertBatch([]types.VectorEntry{
		entry("mine", "p1", types.SourceDocument, "", []float32{1, 0}),
		entry("theirs", "p2", types.SourceDocument, "", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	results, err := ix.Search("p1", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "mine" {
		t.Errorf("cross-profile leak: %+v", results)
	}
}

func TestRepeatedSearchIsStable(t *testing.T) {
	ix := testIndex(t)
	err := ix.UpsertBatch([]types.VectorEntry{
		entry("a", "p1", types.SourceDocument, "", []float32{1, 0}),
		entry("b", "p1", types.SourceDocument, "", []float32{1, 0}),
		entry("c", "p1", types.SourceDocument, "", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	first, err := ix.Search("p1", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := ix.Search("p1", []float32{1, 0}, 10, 0)
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		for j := range first {
			if again[j].Entry.ID != first[j].Entry.ID {
				t.Fatalf("ordering changed between identical searches")
			}
		}
	}
}

func TestDeleteBySourceKind(t *testing.T) {
	ix := testIndex(t)
	err := ix.UpsertBatch([]types.VectorEntry{
		entry("doc", "p1", types.SourceDocument, "d1", []float32{1, 0}),
		entry("kb", "p1", types.SourceKnowledgeBase, "", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if err := ix.DeleteBySourceKind("p1", types.SourceDocument); err != nil {
		t.Fatalf("DeleteBySourceKind failed: %v", err)
	}
	results, err := ix.Search("p1", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "kb" {
		t.Errorf("wrong survivors after kind delete: %+v", results)
	}
}

func TestDeleteBySourceRef(t *testing.T) {
	ix := testIndex(t)
	err := ix.UpsertBatch([]types.VectorEntry{
		entry("e1", "p1", types.SourceLearnedExample, "ex1", []float32{1, 0}),
		entry("e2", "p1", types.SourceLearnedExample, "ex2", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if err := ix.DeleteBySourceRef("p1", types.SourceLearnedExample, "ex1"); err != nil {
		t.Fatalf("DeleteBySourceRef failed: %v", err)
	}
	results, err := ix.Search("p1", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.ID != "e2" {
		t.Errorf("wrong survivors after ref delete: %+v", results)
	}
}

func TestCacheInvalidationOnWrite(t *testing.T) {
	ix := testIndex(t)
	if err := ix.Upsert(entry("a", "p1", types.SourceDocument, "", []float32{1, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Prime the cache.
	if _, err := ix.Search("p1", []float32{1, 0}, 10, 0); err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	// Second write must be visible through the cached path.
	if err := ix.Upsert(entry("b", "p1", types.SourceDocument, "", []float32{1, 0})); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	results, err := ix.Search("p1", []float32{1, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("stale cache after write: got %d results, want 2", len(results))
	}

	n, err := ix.Count("p1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestUpsertRejectsMissingProfile(t *testing.T) {
	ix := testIndex(t)
	err := ix.Upsert(types.VectorEntry{ID: "v1", Embedding: []float32{1}})
	if err == nil {
		t.Fatal("expected error for entry without profile id")
	}
}
