package embedding

import (
	"context"
	"fmt"
	"sync"
)

// mockEngine produces deterministic vectors derived from text length and
// records every batch it serves.
type mockEngine struct {
	mu      sync.Mutex
	batches [][]string
	calls   int
	fail    bool
	dims    int
}

func newMockEngine() *mockEngine {
	return &mockEngine{dims: 4}
}

func (m *mockEngine) vecFor(text string) []float32 {
	v := make([]float32, m.dims)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v
}

func (m *mockEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *mockEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail {
		return nil, fmt.Errorf("mock engine failure")
	}
	m.batches = append(m.batches, append([]string(nil), texts...))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = m.vecFor(t)
	}
	return out, nil
}

func (m *mockEngine) Dimensions() int { return m.dims }
func (m *mockEngine) Name() string    { return "mock" }

func (m *mockEngine) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockEngine) maxBatchLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	max := 0
	for _, b := range m.batches {
		if len(b) > max {
			max = len(b)
		}
	}
	return max
}
