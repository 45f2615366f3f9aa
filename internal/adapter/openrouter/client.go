// Package openrouter provides an HTTP client for the OpenRouter
// chat completion API (OpenAI-compatible).
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/llm"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/resilience"
)

// maxErrorBody caps how much of an error response is kept in the error value.
const maxErrorBody = 2048

// Model is one entry of the /models listing.
type Model struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ContextLength int    `json:"context_length"`
	Pricing       struct {
		Prompt     string `json:"prompt"`
		Completion string `json:"completion"`
	} `json:"pricing"`
}

// Client talks to the OpenRouter API.
type Client struct {
	baseURL    string
	apiKey     string
	referer    string
	appName    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// Option configures a Client.
type Option func(*Client)

// WithAttribution sets the HTTP-Referer and X-Title headers OpenRouter uses
// for app attribution.
func WithAttribution(referer, appName string) Option {
	return func(c *Client) {
		c.referer = referer
		c.appName = appName
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new OpenRouter client.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []llm.Message `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message llm.Message `json:"message"`
	} `json:"choices"`
	Usage llm.Usage `json:"usage"`
}

// Complete sends a chat completion request.
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body, err := json.Marshal(chatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	data, err := c.doRequest(ctx, http.MethodPost, "/chat/completions", body)
	if err != nil {
		return nil, fmt.Errorf("chat completion %s: %w", req.Model, err)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion %s: %w", req.Model, &llm.ProviderError{StatusCode: http.StatusBadGateway, Body: "response has no choices"})
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	u := resp.Usage
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return &llm.Response{
		Content: resp.Choices[0].Message.Content,
		Model:   model,
		Usage:   u,
	}, nil
}

// ListModels returns the models the API key can use.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	data, err := c.doRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var result struct {
		Data []Model `json:"data"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal models: %w", err)
	}
	return result.Data, nil
}

// Health checks that the API is reachable.
func (c *Client) Health(ctx context.Context) (bool, error) {
	_, err := c.ListModels(ctx)
	return err == nil, err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		if c.referer != "" {
			req.Header.Set("HTTP-Referer", c.referer)
		}
		if c.appName != "" {
			req.Header.Set("X-Title", c.appName)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &transportError{err: err}
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &transportError{err: fmt.Errorf("read response: %w", err)}
		}

		if resp.StatusCode >= 400 {
			return statusError(resp, data)
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// statusError maps a non-2xx response to the provider error kinds.
func statusError(resp *http.Response, data []byte) error {
	body := string(data)
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &llm.RateLimitError{RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now()), Body: body}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &llm.AuthenticationError{StatusCode: resp.StatusCode, Body: body}
	default:
		return &llm.ProviderError{StatusCode: resp.StatusCode, Body: body}
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// transportError is a network-level failure. It is retryable unless the
// caller cancelled.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return "http request: " + e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func (e *transportError) Retryable() bool {
	return !errors.Is(e.err, context.Canceled)
}

var _ llm.Provider = (*Client)(nil)
