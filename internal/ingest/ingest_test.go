package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"fieldpilot/internal/embedding"
	"fieldpilot/internal/store"
	"fieldpilot/internal/types"
	"fieldpilot/internal/vecindex"
)

// stubEngine returns a constant-direction vector per text so searches are
// deterministic.
type stubEngine struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (e *stubEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (e *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("stub engine failure")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *stubEngine) Dimensions() int { return 3 }
func (e *stubEngine) Name() string    { return "stub" }

func testService(t *testing.T) (*Service, *vecindex.Index, *stubEngine) {
	t.Helper()
	st, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	engine := &stubEngine{}
	gateway := embedding.NewGateway(engine, 100, 20)
	index := vecindex.New(st)
	return NewService(gateway, index), index, engine
}

func TestIngestKnowledgeBase(t *testing.T) {
	svc, index, _ := testService(t)

	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)
	n, err := svc.IngestKnowledgeBase(context.Background(), "p1", text, 200)
	if err != nil {
		t.Fatalf("IngestKnowledgeBase failed: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected multiple chunks, got %d", n)
	}

	count, err := index.Count("p1")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != n {
		t.Errorf("index holds %d entries, ingest reported %d", count, n)
	}
}

func TestIngestReplacesPriorKind(t *testing.T) {
	svc, index, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.IngestKnowledgeBase(ctx, "p1", strings.Repeat("old content here. ", 30), 100); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	n, err := svc.IngestKnowledgeBase(ctx, "p1", "new content", 100)
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("second ingest chunks = %d, want 1", n)
	}

	count, _ := index.Count("p1")
	if count != 1 {
		t.Errorf("re-ingest accumulated: %d entries, want 1", count)
	}

	results, err := index.Search("p1", []float32{1, 0, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Text != "new content" {
		t.Errorf("old vectors survived: %+v", results)
	}
}

func TestIngestEmptyTextClearsKind(t *testing.T) {
	svc, index, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.IngestKnowledgeBase(ctx, "p1", "some knowledge", 100); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	n, err := svc.IngestKnowledgeBase(ctx, "p1", "", 100)
	if err != nil {
		t.Fatalf("empty ingest failed: %v", err)
	}
	if n != 0 {
		t.Errorf("empty ingest chunks = %d", n)
	}
	count, _ := index.Count("p1")
	if count != 0 {
		t.Errorf("empty ingest left %d vectors", count)
	}
}

func TestIngestDocumentKeepsOtherKinds(t *testing.T) {
	svc, index, _ := testService(t)
	ctx := context.Background()

	if _, err := svc.IngestKnowledgeBase(ctx, "p1", "kb text", 100); err != nil {
		t.Fatalf("kb ingest failed: %v", err)
	}
	doc := types.ContextDocument{ID: "resume", Text: "resume text", Type: "resume"}
	if _, err := svc.IngestDocument(ctx, "p1", doc, 100); err != nil {
		t.Fatalf("doc ingest failed: %v", err)
	}

	count, _ := index.Count("p1")
	if count != 2 {
		t.Errorf("got %d vectors, want kb + doc", count)
	}
}

func TestIngestEmbedFailurePreservesIndex(t *testing.T) {
	svc, index, engine := testService(t)
	ctx := context.Background()

	if _, err := svc.IngestKnowledgeBase(ctx, "p1", "original", 100); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	engine.fail = true
	if _, err := svc.IngestKnowledgeBase(ctx, "p1", "replacement text never indexed", 100); err == nil {
		t.Fatal("expected embed failure")
	}

	// Old vectors still present: the clear happens after embedding succeeds.
	results, err := index.Search("p1", []float32{1, 0, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 || results[0].Entry.Text != "original" {
		t.Errorf("failed ingest damaged the index: %+v", results)
	}
}

func TestIngestRequiresProfile(t *testing.T) {
	svc, _, _ := testService(t)
	if _, err := svc.IngestKnowledgeBase(context.Background(), "", "text", 100); err == nil {
		t.Fatal("expected error for missing profile id")
	}
}

func TestIngestLearnedExample(t *testing.T) {
	svc, index, _ := testService(t)
	ctx := context.Background()

	ex := types.LearnedExample{
		ID:     "ex1",
		Domain: "jobs.example.com",
		Mappings: []types.FieldMapping{
			{Field: types.FieldSignature{ID: "f1", Label: "desired salary"}, Value: "120000"},
			{Field: types.FieldSignature{ID: "f2", Label: "notice period"}, Value: "4 weeks"},
		},
	}
	if err := svc.IngestLearnedExample(ctx, "p1", ex); err != nil {
		t.Fatalf("IngestLearnedExample failed: %v", err)
	}

	results, err := index.Search("p1", []float32{1, 0, 0}, 10, 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	got := results[0].Entry
	if got.Source != types.SourceLearnedExample || got.SourceRef != "ex1" {
		t.Errorf("entry provenance wrong: %+v", got)
	}
	want := "Form filled on jobs.example.com: desired salary → 120000, notice period → 4 weeks"
	if got.Text != want {
		t.Errorf("text = %q, want %q", got.Text, want)
	}

	// A second example accumulates rather than replacing.
	ex2 := types.LearnedExample{
		ID:       "ex2",
		Domain:   "jobs.example.com",
		Mappings: []types.FieldMapping{{Field: types.FieldSignature{ID: "f3", Label: "pronouns"}, Value: "they/them"}},
	}
	if err := svc.IngestLearnedExample(ctx, "p1", ex2); err != nil {
		t.Fatalf("second IngestLearnedExample failed: %v", err)
	}
	count, _ := index.Count("p1")
	if count != 2 {
		t.Errorf("learned examples must accumulate: count = %d", count)
	}

	if err := svc.DeleteLearnedExample("p1", "ex1"); err != nil {
		t.Fatalf("DeleteLearnedExample failed: %v", err)
	}
	count, _ = index.Count("p1")
	if count != 1 {
		t.Errorf("delete left %d entries", count)
	}
}

func TestLearnedExampleTextEmpty(t *testing.T) {
	if got := LearnedExampleText(types.LearnedExample{ID: "x"}); got != "" {
		t.Errorf("empty example rendered %q", got)
	}
}
