// Package embedding provides vector embedding generation for semantic
// retrieval. Two backends, an OpenAI-compatible HTTP endpoint and Google
// GenAI, sit behind one engine interface, plus a caching gateway that
// batches remote calls and memoizes text->vector results.
package embedding

import (
	"context"
	"fmt"
	"math"

	"fieldpilot/internal/config"
	"fieldpilot/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// NewEngine creates an embedding engine based on configuration.
func NewEngine(cfg config.EmbeddingConfig) (Engine, error) {
	timer := logging.StartTimer(logging.CategoryEmbed, "NewEngine")
	defer timer.Stop()

	logging.Embed("Creating embedding engine with provider=%s model=%s", cfg.Provider, cfg.Model)

	var engine Engine
	var err error

	switch cfg.Provider {
	case "openai", "":
		engine, err = NewOpenAIEngine(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case "genai":
		engine, err = NewGenAIEngine(cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'openai' or 'genai')", cfg.Provider)
	}

	if err != nil {
		logging.Get(logging.CategoryEmbed).Error("Failed to create embedding engine: %v", err)
		return nil, err
	}

	logging.Embed("Embedding engine ready: name=%s dimensions=%d", engine.Name(), engine.Dimensions())
	return engine, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// A dimension mismatch scores 0 rather than erroring: vectors written by
// different embedding model versions may coexist in the index, and a stale
// vector should merely lose the ranking, not break the search.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, aMag, bMag float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		aMag += float64(a[i]) * float64(a[i])
		bMag += float64(b[i]) * float64(b[i])
	}

	if aMag == 0 || bMag == 0 {
		return 0
	}
	return dot / (math.Sqrt(aMag) * math.Sqrt(bMag))
}
