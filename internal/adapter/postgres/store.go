package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// --- Usage events ---

func (s *Store) InsertUsageEvent(ctx context.Context, ev *usage.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_events (id, project_id, workflow_request_id, crew_id, model, tier,
		                           prompt_tokens, completion_tokens, total_tokens,
		                           estimated_cost, actual_cost, status, batched, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		ev.ID, ev.ProjectID, nullableID(ev.WorkflowRequestID), ev.CrewID, ev.Model, string(ev.Tier),
		ev.PromptTokens, ev.CompletionTokens, ev.TotalTokens,
		ev.EstimatedCost, ev.ActualCost, string(ev.Status), ev.Batched, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

func (s *Store) ListUsageEvents(ctx context.Context, projectID string, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, project_id, COALESCE(workflow_request_id::text, ''), crew_id, model, tier,
		        prompt_tokens, completion_tokens, total_tokens, estimated_cost, actual_cost,
		        status, batched, created_at
		 FROM usage_events WHERE project_id = $1
		 ORDER BY created_at DESC LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}
	defer rows.Close()

	var events []usage.Event
	for rows.Next() {
		ev, err := scanUsageEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanUsageEvent(row scannable) (usage.Event, error) {
	var (
		ev           usage.Event
		tierName     string
		statusString string
	)
	err := row.Scan(&ev.ID, &ev.ProjectID, &ev.WorkflowRequestID, &ev.CrewID, &ev.Model, &tierName,
		&ev.PromptTokens, &ev.CompletionTokens, &ev.TotalTokens, &ev.EstimatedCost, &ev.ActualCost,
		&statusString, &ev.Batched, &ev.CreatedAt)
	if err != nil {
		return ev, fmt.Errorf("scan usage event: %w", err)
	}
	ev.Tier = tier.CostTier(tierName)
	ev.Status = usage.Status(statusString)
	return ev, nil
}

// --- Workflow requests ---

func (s *Store) CreateWorkflowRequest(ctx context.Context, wr *usage.WorkflowRequest) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO workflow_requests (id, project_id, crew_ids, status, retry_count, poll_count,
		                                estimated_cost, actual_cost, error, created_at, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		wr.ID, wr.ProjectID, crewIDArray(wr.CrewIDs), string(wr.Status), wr.RetryCount, wr.PollCount,
		wr.EstimatedCost, wr.ActualCost, wr.Error, wr.CreatedAt, wr.StartedAt, wr.CompletedAt)
	if err != nil {
		return wrapConflict(err, "create workflow request "+wr.ID)
	}
	return nil
}

func (s *Store) UpdateWorkflowRequest(ctx context.Context, wr *usage.WorkflowRequest) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE workflow_requests
		 SET status = $2, retry_count = $3, poll_count = $4, actual_cost = $5, error = $6,
		     started_at = $7, completed_at = $8
		 WHERE id = $1`,
		wr.ID, string(wr.Status), wr.RetryCount, wr.PollCount, wr.ActualCost, wr.Error,
		wr.StartedAt, wr.CompletedAt)
	return expectOne(tag, err, "update workflow request "+wr.ID)
}

func (s *Store) GetWorkflowRequest(ctx context.Context, id string) (*usage.WorkflowRequest, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("get workflow request %s: %w", id, domain.ErrNotFound)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, project_id, crew_ids, status, retry_count, poll_count, estimated_cost,
		        actual_cost, error, created_at, started_at, completed_at
		 FROM workflow_requests WHERE id = $1`, id)

	var (
		wr     usage.WorkflowRequest
		status string
	)
	err := row.Scan(&wr.ID, &wr.ProjectID, &wr.CrewIDs, &status, &wr.RetryCount, &wr.PollCount,
		&wr.EstimatedCost, &wr.ActualCost, &wr.Error, &wr.CreatedAt, &wr.StartedAt, &wr.CompletedAt)
	if err != nil {
		return nil, wrapNotFound(err, "get workflow request "+id)
	}
	wr.Status = usage.Status(status)
	return &wr, nil
}

// --- Budgets ---

func (s *Store) UpsertBudget(ctx context.Context, scope string, cfg budget.Config) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO budgets (scope, per_request_limit, daily_limit, monthly_limit, project_limit, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (scope) DO UPDATE SET
		     per_request_limit = EXCLUDED.per_request_limit,
		     daily_limit = EXCLUDED.daily_limit,
		     monthly_limit = EXCLUDED.monthly_limit,
		     project_limit = EXCLUDED.project_limit,
		     updated_at = EXCLUDED.updated_at`,
		scope, cfg.PerRequestLimit, cfg.DailyLimit, cfg.MonthlyLimit, cfg.ProjectLimit, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert budget %s: %w", scope, err)
	}
	return nil
}

func (s *Store) GetBudget(ctx context.Context, scope string) (*budget.Config, error) {
	var cfg budget.Config
	err := s.pool.QueryRow(ctx,
		`SELECT per_request_limit, daily_limit, monthly_limit, project_limit
		 FROM budgets WHERE scope = $1`, scope).
		Scan(&cfg.PerRequestLimit, &cfg.DailyLimit, &cfg.MonthlyLimit, &cfg.ProjectLimit)
	if err != nil {
		return nil, wrapNotFound(err, "get budget "+scope)
	}
	return &cfg, nil
}

func (s *Store) ListBudgets(ctx context.Context) (map[string]budget.Config, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT scope, per_request_limit, daily_limit, monthly_limit, project_limit FROM budgets`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := make(map[string]budget.Config)
	for rows.Next() {
		var (
			scope string
			cfg   budget.Config
		)
		if err := rows.Scan(&scope, &cfg.PerRequestLimit, &cfg.DailyLimit, &cfg.MonthlyLimit, &cfg.ProjectLimit); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out[scope] = cfg
	}
	return out, rows.Err()
}

func (s *Store) DeleteBudget(ctx context.Context, scope string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM budgets WHERE scope = $1`, scope)
	return expectOne(tag, err, "delete budget "+scope)
}

var _ database.Store = (*Store)(nil)
