package config

import (
	"fmt"
	"time"
)

// LimitsConfig holds the tunable thresholds of the resolution pipeline.
// All zero values are replaced by defaults at load time, so stored configs
// only need to carry what they override.
type LimitsConfig struct {
	// TopK is the number of vector-search results requested per fill.
	TopK int `json:"top_k,omitempty"`

	// SimilarityThreshold filters retrieval candidates (cosine, [0,1]).
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`

	// ContextTokenBudget caps retrieved context packed into a prompt,
	// estimated at ~4 characters per token.
	ContextTokenBudget int `json:"context_token_budget,omitempty"`

	// PromptTokenBudget caps the whole user instruction.
	PromptTokenBudget int `json:"prompt_token_budget,omitempty"`

	// CacheTTLHours bounds response-cache entry lifetime (default 168h = 7d).
	CacheTTLHours int `json:"cache_ttl_hours,omitempty"`

	// LearnThreshold: edits to mappings at or above this confidence are
	// treated as preference changes and not learned from.
	LearnThreshold float64 `json:"learn_threshold,omitempty"`

	// MaxLearnedExamples caps per-profile correction history.
	MaxLearnedExamples int `json:"max_learned_examples,omitempty"`

	// ChunkSize is the default knowledge-base chunk size in characters.
	ChunkSize int `json:"chunk_size,omitempty"`
}

// DefaultLimitsConfig returns the pipeline defaults.
func DefaultLimitsConfig() LimitsConfig {
	return LimitsConfig{
		TopK:                5,
		SimilarityThreshold: 0.5,
		ContextTokenBudget:  1500,
		PromptTokenBudget:   4000,
		CacheTTLHours:       168,
		LearnThreshold:      0.95,
		MaxLearnedExamples:  100,
		ChunkSize:           800,
	}
}

// Validate checks limits are within acceptable ranges.
func (l LimitsConfig) Validate() error {
	if l.TopK < 0 {
		return fmt.Errorf("top_k must be >= 0")
	}
	if l.SimilarityThreshold < 0 || l.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1]")
	}
	if l.LearnThreshold < 0 || l.LearnThreshold > 1 {
		return fmt.Errorf("learn_threshold must be in [0,1]")
	}
	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (l LimitsConfig) CacheTTL() time.Duration {
	hours := l.CacheTTLHours
	if hours <= 0 {
		hours = 168
	}
	return time.Duration(hours) * time.Hour
}
