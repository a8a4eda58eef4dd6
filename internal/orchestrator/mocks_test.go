package orchestrator

import (
	"context"
	"sync"

	"fieldpilot/internal/llm"
)

// mockChat is a programmable ChatClient that records requests.
type mockChat struct {
	mu       sync.Mutex
	fn       func(ctx context.Context, req llm.Request) (*llm.Completion, error)
	requests []llm.Request
}

func (m *mockChat) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	fn := m.fn
	m.mu.Unlock()
	if fn == nil {
		return &llm.Completion{Text: "{}"}, nil
	}
	return fn(ctx, req)
}

func (m *mockChat) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockChat) lastRequest() llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[len(m.requests)-1]
}

// replyJSON makes the mock answer every request with a fixed body and usage.
func replyJSON(body string, tokens int) func(context.Context, llm.Request) (*llm.Completion, error) {
	return func(context.Context, llm.Request) (*llm.Completion, error) {
		return &llm.Completion{Text: body, Usage: llm.Usage{TotalTokens: tokens}}, nil
	}
}

// stubEngine embeds every text to the same direction so retrieval is inert
// but functional.
type stubEngine struct{}

func (stubEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (stubEngine) Dimensions() int { return 3 }
func (stubEngine) Name() string    { return "stub" }
