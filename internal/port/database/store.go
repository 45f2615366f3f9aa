// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/cost"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
)

// Store is the port interface for database operations.
type Store interface {
	// Usage ledger
	InsertUsageEvent(ctx context.Context, ev *usage.Event) error
	ListUsageEvents(ctx context.Context, projectID string, limit int) ([]usage.Event, error)

	// Workflow requests
	CreateWorkflowRequest(ctx context.Context, wr *usage.WorkflowRequest) error
	UpdateWorkflowRequest(ctx context.Context, wr *usage.WorkflowRequest) error
	GetWorkflowRequest(ctx context.Context, id string) (*usage.WorkflowRequest, error)

	// Budgets
	UpsertBudget(ctx context.Context, scope string, cfg budget.Config) error
	GetBudget(ctx context.Context, scope string) (*budget.Config, error)
	ListBudgets(ctx context.Context) (map[string]budget.Config, error)
	DeleteBudget(ctx context.Context, scope string) error

	// Cost aggregation
	CostSummaryGlobal(ctx context.Context) ([]cost.ProjectSummary, error)
	CostSummaryByProject(ctx context.Context, projectID string) (*cost.Summary, error)
	CostByModel(ctx context.Context, projectID string) ([]cost.ModelSummary, error)
	CostByCrew(ctx context.Context, projectID string) ([]cost.CrewSummary, error)
	CostTimeSeries(ctx context.Context, projectID string, days int) ([]cost.DailyCost, error)

	Ping(ctx context.Context) error
	Close() error
}
