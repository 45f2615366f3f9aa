// Package llm defines the outbound chat-completion provider port and its
// error kinds.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Message is one chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a chat completion request.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Usage reports token consumption of a call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Response is a chat completion response.
type Response struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Usage   Usage  `json:"usage"`
}

// Provider sends chat completion requests to an LLM backend.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// RateLimitError is returned on HTTP 429. It is retryable.
type RateLimitError struct {
	RetryAfter time.Duration
	Body       string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry after %s): %s", e.RetryAfter, e.Body)
	}
	return "rate limited: " + e.Body
}

// Retryable marks the error as safe to retry.
func (e *RateLimitError) Retryable() bool { return true }

// RetryAfterHint is the server-requested wait, if any.
func (e *RateLimitError) RetryAfterHint() time.Duration { return e.RetryAfter }

// AuthenticationError is returned on HTTP 401/403. It is never retried.
type AuthenticationError struct {
	StatusCode int
	Body       string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports false.
func (e *AuthenticationError) Retryable() bool { return false }

// ProviderError is any other non-2xx provider response.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports true for server-side failures.
func (e *ProviderError) Retryable() bool { return e.StatusCode >= 500 }
