package llm

import (
	"errors"
	"fmt"
)

// Sentinel error classes the orchestrator branches on. Auth and content
// errors are terminal for a call; rate-limit, server, and network errors
// are retried with backoff before the call fails.
var (
	ErrAuth          = errors.New("llm: authentication failed")
	ErrRateLimited   = errors.New("llm: rate limited")
	ErrServer        = errors.New("llm: server error")
	ErrContentLength = errors.New("llm: context length exceeded")
	ErrNetwork       = errors.New("llm: network failure")
	ErrNotConfigured = errors.New("llm: no API key configured")
)

// Retryable reports whether an error class is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) || errors.Is(err, ErrNetwork)
}

// classifyStatus maps an HTTP status to a sentinel class. Unknown statuses
// fold into ErrServer when 5xx, otherwise a plain error.
func classifyStatus(status int, body string) error {
	switch {
	case status == 401 || status == 403:
		return fmt.Errorf("%w (status %d)", ErrAuth, status)
	case status == 429:
		return fmt.Errorf("%w (status %d)", ErrRateLimited, status)
	case status == 413:
		return fmt.Errorf("%w (status %d)", ErrContentLength, status)
	case status >= 500:
		return fmt.Errorf("%w (status %d): %s", ErrServer, status, truncate(body, 200))
	default:
		return fmt.Errorf("llm: request failed with status %d: %s", status, truncate(body, 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
