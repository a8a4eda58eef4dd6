// Package llm wraps the remote chat-completion API behind a small client
// interface with classified errors and bounded retries. Only transient
// failures are retried; auth and content-length failures surface
// immediately so the orchestrator can fall back to static matching.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fieldpilot/internal/config"
	"fieldpilot/internal/logging"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries everything a completion call needs.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int

	// JSONMode asks the provider to constrain output to a JSON object.
	JSONMode bool
}

// Usage reports token consumption for a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is a successful model response.
type Completion struct {
	Text  string
	Usage Usage
}

// ChatClient is the interface the orchestrator consumes.
type ChatClient interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// NewClient builds a client from configuration.
func NewClient(cfg config.LLMConfig) (ChatClient, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAIClient(cfg), nil
	case "anthropic":
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s (use 'openai' or 'anthropic')", cfg.Provider)
	}
}

// withRetries runs fn with exponential backoff (1s, 2s, 4s...) on transient
// error classes. Terminal classes and context cancellation return at once.
func withRetries(ctx context.Context, maxRetries int, fn func() (*Completion, error)) (*Completion, error) {
	if maxRetries < 0 {
		maxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			logging.LLMDebug("retry %d after %v: %v", attempt, backoff, lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrNetwork, ctx.Err())
			}
		}

		comp, err := fn()
		if err == nil {
			return comp, nil
		}
		lastErr = err
		if !Retryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("llm: retries exhausted: %w", lastErr)
}

// =============================================================================
// OPENAI-COMPATIBLE CLIENT
// =============================================================================

// OpenAIClient talks to any /chat/completions-shaped endpoint.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	httpClient *http.Client
}

// NewOpenAIClient creates a client from config, applying default timeout
// and retry bounds for zero values.
func NewOpenAIClient(cfg config.LLMConfig) *OpenAIClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 2
	}
	return &OpenAIClient{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type openaiRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type openaiResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends the request and returns the completion.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	body := openaiRequest{
		Model:       c.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return withRetries(ctx, c.maxRetries, func() (*Completion, error) {
		timer := logging.StartTimer(logging.CategoryLLM, "openai.Complete")
		defer timer.StopWithThreshold(10 * time.Second)

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp.StatusCode, string(respBody))
		}

		var parsed openaiResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			if strings.Contains(parsed.Error.Code, "context_length") || strings.Contains(parsed.Error.Message, "maximum context length") {
				return nil, fmt.Errorf("%w: %s", ErrContentLength, parsed.Error.Message)
			}
			return nil, fmt.Errorf("llm: API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return nil, fmt.Errorf("llm: no completion returned")
		}

		logging.LLM("completion ok: %d prompt + %d completion tokens",
			parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
		return &Completion{
			Text:  strings.TrimSpace(parsed.Choices[0].Message.Content),
			Usage: parsed.Usage,
		}, nil
	})
}

// =============================================================================
// ANTHROPIC CLIENT
// =============================================================================

// AnthropicClient talks to the Anthropic messages API.
type AnthropicClient struct {
	apiKey     string
	baseURL    string
	model      string
	maxRetries int
	httpClient *http.Client
}

// NewAnthropicClient creates a client from config.
func NewAnthropicClient(cfg config.LLMConfig) *AnthropicClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = 2
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" || strings.Contains(baseURL, "openai.com") {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      cfg.Model,
		maxRetries: retries,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the request and returns the completion. JSONMode is
// enforced by instruction for Anthropic; the validator handles any fence
// wrapping.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	// Anthropic keeps the system turn out of the message list.
	var system string
	var messages []Message
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	body := anthropicRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    messages,
		Temperature: req.Temperature,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	return withRetries(ctx, c.maxRetries, func() (*Completion, error) {
		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/messages", bytes.NewReader(jsonData))
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", "2023-06-01")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}

		if resp.StatusCode != http.StatusOK {
			return nil, classifyStatus(resp.StatusCode, string(respBody))
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if parsed.Error != nil {
			return nil, fmt.Errorf("llm: API error: %s", parsed.Error.Message)
		}
		if len(parsed.Content) == 0 {
			return nil, fmt.Errorf("llm: no completion returned")
		}

		var sb strings.Builder
		for _, content := range parsed.Content {
			if content.Type == "text" {
				sb.WriteString(content.Text)
			}
		}

		return &Completion{
			Text: strings.TrimSpace(sb.String()),
			Usage: Usage{
				PromptTokens:     parsed.Usage.InputTokens,
				CompletionTokens: parsed.Usage.OutputTokens,
				TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
			},
		}, nil
	})
}
