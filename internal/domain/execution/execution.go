// Package execution defines the results and failure kinds of selective crew execution.
package execution

import (
	"errors"
	"fmt"
	"strings"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// ErrUnauthorizedResponse is returned when a response arrives for a crew
// member that was not activated.
var ErrUnauthorizedResponse = errors.New("response from non-activated crew member")

// CrewResponse is one member's answer.
type CrewResponse struct {
	CrewID           string        `json:"crew_id"`
	Model            string        `json:"model"`
	Tier             tier.CostTier `json:"tier"`
	Content          string        `json:"content"`
	PromptTokens     int64         `json:"prompt_tokens"`
	CompletionTokens int64         `json:"completion_tokens"`
	CostUSD          float64       `json:"cost_usd"`
	Batched          bool          `json:"batched"`
	Attempts         int           `json:"attempts"`
}

// BatchSummary describes one upstream call group.
type BatchSummary struct {
	Model    string   `json:"model"`
	CrewIDs  []string `json:"crew_ids"`
	APICalls int      `json:"api_calls"`
	Fallback bool     `json:"fallback,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// BatchExecutionResult aggregates batching metrics for one execution.
type BatchExecutionResult struct {
	TotalBatches          int            `json:"total_batches"`
	TotalRequests         int            `json:"total_requests"`
	APICalls              int            `json:"api_calls"`
	APICallsSaved         int            `json:"api_calls_saved"`
	TotalPromptTokens     int64          `json:"total_prompt_tokens"`
	TotalCompletionTokens int64          `json:"total_completion_tokens"`
	TotalCostUSD          float64        `json:"total_cost_usd"`
	Batches               []BatchSummary `json:"batches"`
}

// MemberFailure records a member that produced no response.
type MemberFailure struct {
	CrewID string `json:"crew_id"`
	Model  string `json:"model"`
	Error  string `json:"error"`
}

// Result is the outcome of executing the activated crew.
type Result struct {
	Responses []CrewResponse       `json:"responses"`
	Metrics   BatchExecutionResult `json:"metrics"`
	Failures  []MemberFailure      `json:"failures,omitempty"`
	Missing   []string             `json:"missing,omitempty"`
}

// Response returns the response of a member, if present.
func (r *Result) Response(crewID string) (CrewResponse, bool) {
	for _, resp := range r.Responses {
		if resp.CrewID == crewID {
			return resp, true
		}
	}
	return CrewResponse{}, false
}

// ConfigLoadError aborts an execution before any LLM call is made.
type ConfigLoadError struct {
	CrewID string
	Err    error
}

func (e *ConfigLoadError) Error() string {
	return fmt.Sprintf("load crew config %q: %v", e.CrewID, e.Err)
}

func (e *ConfigLoadError) Unwrap() error { return e.Err }

// ParseError reports a batched response that could not be split back into
// per-member answers.
type ParseError struct {
	Model    string
	Expected []string
	Found    []string
	Missing  []string
	Reason   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse batched response from %s: %s (expected [%s], found [%s], missing [%s])",
		e.Model, e.Reason,
		strings.Join(e.Expected, ","), strings.Join(e.Found, ","), strings.Join(e.Missing, ","))
}
