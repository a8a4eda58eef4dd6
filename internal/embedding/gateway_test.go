package embedding

import (
	"context"
	"fmt"
	"math"
	"testing"
)

func TestGatewayCachesRepeatedTexts(t *testing.T) {
	engine := newMockEngine()
	g := NewGateway(engine, 10, 20)

	ctx := context.Background()
	first, err := g.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	second, err := g.Embed(ctx, "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if engine.callCount() != 1 {
		t.Errorf("engine called %d times, want 1", engine.callCount())
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("cached vector differs at %d", i)
		}
	}
	if g.CacheLen() != 1 {
		t.Errorf("cache len = %d, want 1", g.CacheLen())
	}
}

func TestGatewayBatchOrderPreserved(t *testing.T) {
	engine := newMockEngine()
	g := NewGateway(engine, 100, 3)

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("text number %d padded to length %d", i, i)
	}
	vecs, err := g.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		want := engine.vecFor(text)
		for j := range want {
			if vecs[i][j] != want[j] {
				t.Fatalf("vector %d mismatched: got %v, want %v", i, vecs[i], want)
			}
		}
	}
	if got := engine.maxBatchLen(); got > 3 {
		t.Errorf("engine saw a batch of %d, batch size is 3", got)
	}
}

func TestGatewayMixedHitsAndMisses(t *testing.T) {
	engine := newMockEngine()
	g := NewGateway(engine, 100, 20)
	ctx := context.Background()

	if _, err := g.EmbedBatch(ctx, []string{"aa", "bbb"}); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}
	engine.mu.Lock()
	engine.batches = nil
	engine.mu.Unlock()

	vecs, err := g.EmbedBatch(ctx, []string{"aa", "cccc", "bbb"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors", len(vecs))
	}
	// Only the miss goes to the engine.
	engine.mu.Lock()
	batches := engine.batches
	engine.mu.Unlock()
	if len(batches) != 1 || len(batches[0]) != 1 || batches[0][0] != "cccc" {
		t.Errorf("engine batches = %v, want just the miss", batches)
	}
}

func TestGatewayLRUEviction(t *testing.T) {
	engine := newMockEngine()
	g := NewGateway(engine, 2, 20)
	ctx := context.Background()

	for _, text := range []string{"a", "bb", "ccc"} {
		if _, err := g.Embed(ctx, text); err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
	}
	if g.CacheLen() != 2 {
		t.Fatalf("cache len = %d, want 2", g.CacheLen())
	}

	// "a" was evicted; embedding it again must hit the engine.
	before := engine.callCount()
	if _, err := g.Embed(ctx, "a"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if engine.callCount() != before+1 {
		t.Errorf("evicted text served from cache")
	}

	// "ccc" is still resident.
	before = engine.callCount()
	if _, err := g.Embed(ctx, "ccc"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if engine.callCount() != before {
		t.Errorf("resident text went to the engine")
	}
}

func TestGatewayFailureLeavesCacheUntouched(t *testing.T) {
	engine := newMockEngine()
	g := NewGateway(engine, 10, 20)
	ctx := context.Background()

	engine.fail = true
	if _, err := g.EmbedBatch(ctx, []string{"x", "y"}); err == nil {
		t.Fatal("expected failure")
	}
	if g.CacheLen() != 0 {
		t.Errorf("failed call populated cache: len = %d", g.CacheLen())
	}

	engine.fail = false
	vecs, err := g.EmbedBatch(ctx, []string{"x", "y"})
	if err != nil {
		t.Fatalf("EmbedBatch failed after recovery: %v", err)
	}
	if len(vecs) != 2 || vecs[0] == nil || vecs[1] == nil {
		t.Errorf("recovery produced bad vectors: %v", vecs)
	}
}

func TestGatewayEmptyInput(t *testing.T) {
	g := NewGateway(newMockEngine(), 10, 20)
	vecs, err := g.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) errored: %v", err)
	}
	if vecs != nil {
		t.Errorf("EmbedBatch(nil) = %v, want nil", vecs)
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "dimension_mismatch", a: []float32{1, 2}, b: []float32{1, 2, 3}, want: 0},
		{name: "zero_vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineSimilarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CosineSimilarity = %v, want %v", got, tt.want)
			}
		})
	}
}
