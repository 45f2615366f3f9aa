// Package orchestration defines the outputs of the analysis, optimization and
// orchestration stages.
package orchestration

import (
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/execution"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// TaskAnalysis is the analyzer's classification of a request.
type TaskAnalysis struct {
	Complexity        tier.Complexity  `json:"complexity"`
	RequiredExpertise []crew.Expertise `json:"required_expertise"`
	RecommendedCrew   []string         `json:"recommended_crew"`
	MatchedKeyword    string           `json:"matched_keyword,omitempty"`
	Reasoning         string           `json:"reasoning"`
}

// ROIAnalysis compares premium-baseline cost to tier-optimized cost.
type ROIAnalysis struct {
	BaselineCost      float64                  `json:"baseline_cost"`
	OptimizedCost     float64                  `json:"optimized_cost"`
	Savings           float64                  `json:"savings"`
	SavingsPercentage float64                  `json:"savings_percentage"`
	Assignments       map[string]tier.CostTier `json:"assignments"`
	Estimated         bool                     `json:"estimated,omitempty"`
	Reasoning         string                   `json:"reasoning"`
}

// Result is the combined outcome of one orchestration.
type Result struct {
	ActivatedCrew  []string                 `json:"activated_crew"`
	LLMAssignments map[string]tier.CostTier `json:"llm_assignments"`
	TaskComplexity tier.Complexity          `json:"task_complexity"`
	EstimatedCost  float64                  `json:"estimated_cost"`
	Analysis       TaskAnalysis             `json:"analysis"`
	ROI            ROIAnalysis              `json:"roi"`
	Overridden     bool                     `json:"overridden,omitempty"`
	Reasoning      string                   `json:"reasoning"`
}

// Request is the inbound orchestration request.
type Request struct {
	UserRequest  string                   `json:"user_request"`
	Context      map[string]string        `json:"context,omitempty"`
	TierOverride map[string]tier.CostTier `json:"tier_override,omitempty"`
}

// RunRequest asks the pipeline to orchestrate, charge and execute a request
// for a project.
type RunRequest struct {
	ProjectID    string                   `json:"project_id"`
	UserRequest  string                   `json:"user_request"`
	Context      map[string]string        `json:"context,omitempty"`
	TierOverride map[string]tier.CostTier `json:"tier_override,omitempty"`
	DryRun       bool                     `json:"dry_run,omitempty"`
}

// RunResult is the outcome of one pipeline run. Execution is nil for dry runs.
type RunResult struct {
	WorkflowRequestID string            `json:"workflow_request_id,omitempty"`
	Orchestration     *Result           `json:"orchestration"`
	Budget            budget.Status     `json:"budget"`
	Execution         *execution.Result `json:"execution,omitempty"`
	ActualCost        float64           `json:"actual_cost"`
	DryRun            bool              `json:"dry_run,omitempty"`
}
