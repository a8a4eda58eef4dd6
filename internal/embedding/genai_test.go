package embedding

import "testing"

var _ Engine = (*GenAIEngine)(nil)

func TestNewGenAIEngineRequiresKey(t *testing.T) {
	if _, err := NewGenAIEngine("", "gemini-embedding-001"); err == nil {
		t.Fatal("empty API key accepted")
	}
}

func TestGenAIEngineMetadata(t *testing.T) {
	e := &GenAIEngine{model: "gemini-embedding-001"}
	if got := e.Name(); got != "genai:gemini-embedding-001" {
		t.Errorf("Name = %q", got)
	}
	if got := e.Dimensions(); got != 768 {
		t.Errorf("Dimensions = %d", got)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
