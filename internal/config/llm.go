package config

// LLMConfig configures the chat-completion client.
type LLMConfig struct {
	Provider string `json:"provider"` // openai, anthropic

	// APIKey is usually supplied via FIELDPILOT_API_KEY. An empty key means
	// the LLM tier is unavailable and fills degrade to static matching.
	APIKey string `json:"api_key,omitempty"`

	Model   string `json:"model"`
	BaseURL string `json:"base_url"`

	// TimeoutSeconds bounds each request (default 30).
	TimeoutSeconds int `json:"timeout_seconds,omitempty"`

	// MaxRetries bounds transient-failure retries (default 2).
	MaxRetries int `json:"max_retries,omitempty"`

	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// DefaultLLMConfig returns sensible defaults.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		BaseURL:        "https://api.openai.com/v1",
		TimeoutSeconds: 30,
		MaxRetries:     2,
		Temperature:    0.1, // low temperature for structured output
		MaxTokens:      2048,
	}
}

// Configured reports whether the LLM tier can be used at all.
func (c LLMConfig) Configured() bool {
	return c.APIKey != ""
}

// EmbeddingConfig configures the embedding backend.
type EmbeddingConfig struct {
	Provider string `json:"provider"` // openai, genai

	APIKey  string `json:"api_key,omitempty"`
	Model   string `json:"model"`
	BaseURL string `json:"base_url,omitempty"`

	// CacheSize bounds the gateway's text->vector LRU (default 500).
	CacheSize int `json:"cache_size,omitempty"`

	// BatchSize bounds texts per remote call (default 20).
	BatchSize int `json:"batch_size,omitempty"`
}

// DefaultEmbeddingConfig returns sensible defaults.
func DefaultEmbeddingConfig() EmbeddingConfig {
	return EmbeddingConfig{
		Provider:  "openai",
		Model:     "text-embedding-3-small",
		BaseURL:   "https://api.openai.com/v1",
		CacheSize: 500,
		BatchSize: 20,
	}
}
