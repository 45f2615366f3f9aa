// Package usage defines the append-only ledger of LLM calls and the
// workflow requests that group them.
package usage

import (
	"fmt"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// Status is the lifecycle state of a workflow request or usage event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s ends the lifecycle.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusTimeout, StatusCancelled:
		return true
	}
	return false
}

// Event records a single LLM call.
type Event struct {
	ID                string        `json:"id"`
	ProjectID         string        `json:"project_id"`
	WorkflowRequestID string        `json:"workflow_request_id,omitempty"`
	CrewID            string        `json:"crew_id"`
	Model             string        `json:"model"`
	Tier              tier.CostTier `json:"tier,omitempty"`
	PromptTokens      int64         `json:"prompt_tokens"`
	CompletionTokens  int64         `json:"completion_tokens"`
	TotalTokens       int64         `json:"total_tokens"`
	EstimatedCost     float64       `json:"estimated_cost"`
	ActualCost        float64       `json:"actual_cost"`
	Status            Status        `json:"status"`
	Batched           bool          `json:"batched,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
}

// WorkflowRequest tracks one crew run from creation to completion.
type WorkflowRequest struct {
	ID            string     `json:"id"`
	ProjectID     string     `json:"project_id"`
	CrewIDs       []string   `json:"crew_ids"`
	Status        Status     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	PollCount     int        `json:"poll_count"`
	EstimatedCost float64    `json:"estimated_cost"`
	ActualCost    float64    `json:"actual_cost"`
	Error         string     `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Start moves a pending request to running.
func (w *WorkflowRequest) Start(now time.Time) error {
	if w.Status != StatusPending {
		return fmt.Errorf("%w: workflow request %s is %s, not pending", domain.ErrConflict, w.ID, w.Status)
	}
	w.Status = StatusRunning
	w.StartedAt = &now
	return nil
}

// Complete records the terminal outcome. It may be called exactly once.
func (w *WorkflowRequest) Complete(status Status, actualCost float64, errMsg string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("%w: %q is not a terminal status", domain.ErrValidation, status)
	}
	if w.Status.Terminal() {
		return fmt.Errorf("%w: workflow request %s already completed as %s", domain.ErrConflict, w.ID, w.Status)
	}
	w.Status = status
	w.ActualCost = actualCost
	w.Error = errMsg
	w.CompletedAt = &now
	return nil
}
