package store

import (
	"testing"
	"time"

	"fieldpilot/internal/types"
)

func memStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProfileRoundTrip(t *testing.T) {
	s := memStore(t)

	p := &types.Profile{
		ID:   "p1",
		Name: "Test",
		Fields: []types.ContextField{
			{Key: "firstName", Value: "Ada"},
			{Key: "secret", Value: "x", IsEncrypted: true},
		},
		Settings: types.FillSettings{UseCache: true},
	}
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	got, err := s.GetProfile("p1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Name != "Test" || len(got.Fields) != 2 {
		t.Errorf("round trip mangled profile: %+v", got)
	}
	if !got.Fields[1].IsEncrypted {
		t.Errorf("encryption flag lost")
	}

	// Save again replaces.
	p.SetField("firstName", "Grace")
	if err := s.SaveProfile(p); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
	got, err = s.GetProfile("p1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.Field("firstName") != "Grace" {
		t.Errorf("update not persisted: %q", got.Field("firstName"))
	}
}

func TestGetProfileNotFound(t *testing.T) {
	s := memStore(t)
	if _, err := s.GetProfile("missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListAndDeleteProfiles(t *testing.T) {
	s := memStore(t)
	for _, id := range []string{"b", "a"} {
		if err := s.SaveProfile(&types.Profile{ID: id}); err != nil {
			t.Fatalf("SaveProfile(%s) failed: %v", id, err)
		}
	}
	ids, err := s.ListProfileIDs()
	if err != nil {
		t.Fatalf("ListProfileIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("got %d ids", len(ids))
	}
	if err := s.DeleteProfile("a"); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	ids, _ = s.ListProfileIDs()
	if len(ids) != 1 || ids[0] != "b" {
		t.Errorf("ids after delete = %v", ids)
	}
}

func TestVectorEncodeDecode(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3.875}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("len = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("component %d = %v, want %v", i, out[i], in[i])
		}
	}

	if decodeVector([]byte{1, 2, 3}) != nil {
		t.Errorf("ragged blob must decode to nil")
	}
}

func TestVectorsRoundTrip(t *testing.T) {
	s := memStore(t)

	base := time.Now().Truncate(time.Second)
	entries := []types.VectorEntry{
		{ID: "v1", ProfileID: "p1", Source: types.SourceDocument, SourceRef: "doc1", Text: "alpha", Embedding: []float32{1, 0}, CreatedAt: base},
		{ID: "v2", ProfileID: "p1", Source: types.SourceKnowledgeBase, Text: "beta", Embedding: []float32{0, 1}, CreatedAt: base.Add(time.Second)},
		{ID: "v3", ProfileID: "p2", Source: types.SourceDocument, Text: "gamma", Embedding: []float32{1, 1}, CreatedAt: base},
	}
	if err := s.PutVectors(entries); err != nil {
		t.Fatalf("PutVectors failed: %v", err)
	}

	got, err := s.VectorsByProfile("p1")
	if err != nil {
		t.Fatalf("VectorsByProfile failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d vectors, want 2", len(got))
	}
	if got[0].ID != "v1" || got[1].ID != "v2" {
		t.Errorf("order = %s, %s; want v1, v2", got[0].ID, got[1].ID)
	}
	if got[0].Text != "alpha" || got[0].Source != types.SourceDocument || got[0].SourceRef != "doc1" {
		t.Errorf("fields mangled: %+v", got[0])
	}
	if got[0].Embedding[0] != 1 || got[0].Embedding[1] != 0 {
		t.Errorf("embedding mangled: %v", got[0].Embedding)
	}
}

func TestDeleteVectorsScopes(t *testing.T) {
	s := memStore(t)
	now := time.Now()
	put := func(id, profile string, src types.VectorSource, ref string) {
		t.Helper()
		err := s.PutVectors([]types.VectorEntry{{
			ID: id, ProfileID: profile, Source: src, SourceRef: ref,
			Text: id, Embedding: []float32{1}, CreatedAt: now,
		}})
		if err != nil {
			t.Fatalf("put %s failed: %v", id, err)
		}
	}
	put("v1", "p1", types.SourceDocument, "d1")
	put("v2", "p1", types.SourceDocument, "d2")
	put("v3", "p1", types.SourceLearnedExample, "e1")
	put("v4", "p2", types.SourceDocument, "d1")

	if err := s.DeleteVectorsByRef("p1", types.SourceDocument, "d1"); err != nil {
		t.Fatalf("DeleteVectorsByRef failed: %v", err)
	}
	got, _ := s.VectorsByProfile("p1")
	if len(got) != 2 {
		t.Fatalf("after ref delete: %d vectors, want 2", len(got))
	}

	if err := s.DeleteVectorsBySource("p1", types.SourceDocument); err != nil {
		t.Fatalf("DeleteVectorsBySource failed: %v", err)
	}
	got, _ = s.VectorsByProfile("p1")
	if len(got) != 1 || got[0].Source != types.SourceLearnedExample {
		t.Fatalf("after source delete: %+v", got)
	}

	if err := s.DeleteVectorsByProfile("p1"); err != nil {
		t.Fatalf("DeleteVectorsByProfile failed: %v", err)
	}
	got, _ = s.VectorsByProfile("p1")
	if len(got) != 0 {
		t.Fatalf("after profile delete: %d vectors", len(got))
	}

	// Other profile untouched throughout.
	other, _ := s.VectorsByProfile("p2")
	if len(other) != 1 {
		t.Errorf("p2 vectors = %d, want 1", len(other))
	}
}

func TestVectorStats(t *testing.T) {
	s := memStore(t)
	now := time.Now()
	entries := []types.VectorEntry{
		{ID: "v1", ProfileID: "p1", Source: types.SourceDocument, Text: "a", Embedding: []float32{1}, CreatedAt: now},
		{ID: "v2", ProfileID: "p1", Source: types.SourceDocument, Text: "b", Embedding: []float32{1}, CreatedAt: now},
		{ID: "v3", ProfileID: "p1", Source: types.SourceLearnedExample, Text: "c", Embedding: []float32{1}, CreatedAt: now},
	}
	if err := s.PutVectors(entries); err != nil {
		t.Fatalf("PutVectors failed: %v", err)
	}
	stats, err := s.VectorStats("p1")
	if err != nil {
		t.Fatalf("VectorStats failed: %v", err)
	}
	if stats[types.SourceDocument] != 2 || stats[types.SourceLearnedExample] != 1 {
		t.Errorf("stats = %v", stats)
	}
}

func TestCacheRows(t *testing.T) {
	s := memStore(t)
	now := time.Now().Truncate(time.Second)

	row := CacheRow{
		Key:       "k1",
		ProfileID: "p1",
		Payload:   `{"mappings":[]}`,
		Tokens:    120,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := s.PutCacheRow(row); err != nil {
		t.Fatalf("PutCacheRow failed: %v", err)
	}

	got, err := s.GetCacheRow("k1")
	if err != nil {
		t.Fatalf("GetCacheRow failed: %v", err)
	}
	if got.Payload != row.Payload || got.Tokens != 120 || got.Hits != 0 {
		t.Errorf("row mangled: %+v", got)
	}
	if !got.ExpiresAt.Equal(row.ExpiresAt) {
		t.Errorf("expiry = %v, want %v", got.ExpiresAt, row.ExpiresAt)
	}

	if err := s.BumpCacheHit("k1"); err != nil {
		t.Fatalf("BumpCacheHit failed: %v", err)
	}
	got, _ = s.GetCacheRow("k1")
	if got.Hits != 1 {
		t.Errorf("hits = %d, want 1", got.Hits)
	}

	if _, err := s.GetCacheRow("missing"); err != ErrNotFound {
		t.Errorf("missing key err = %v, want ErrNotFound", err)
	}
}

func TestPurgeExpiredCache(t *testing.T) {
	s := memStore(t)
	now := time.Now()

	rows := []CacheRow{
		{Key: "live", ProfileID: "p1", Payload: "{}", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		{Key: "dead", ProfileID: "p1", Payload: "{}", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
	}
	for _, r := range rows {
		if err := s.PutCacheRow(r); err != nil {
			t.Fatalf("PutCacheRow failed: %v", err)
		}
	}

	n, err := s.PurgeExpiredCache(now)
	if err != nil {
		t.Fatalf("PurgeExpiredCache failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d, want 1", n)
	}
	if _, err := s.GetCacheRow("dead"); err != ErrNotFound {
		t.Errorf("dead entry survived")
	}
	if _, err := s.GetCacheRow("live"); err != nil {
		t.Errorf("live entry purged: %v", err)
	}
}
