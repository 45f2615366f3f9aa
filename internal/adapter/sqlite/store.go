package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
)

// Store implements database.Store on SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanNullableTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

func notFound(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func expectOne(res sql.Result, err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", msg, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", msg, domain.ErrNotFound)
	}
	return nil
}

// --- Usage events ---

func (s *Store) InsertUsageEvent(ctx context.Context, ev *usage.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_events (id, project_id, workflow_request_id, crew_id, model, tier,
		                           prompt_tokens, completion_tokens, total_tokens,
		                           estimated_cost, actual_cost, status, batched, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ProjectID, ev.WorkflowRequestID, ev.CrewID, ev.Model, string(ev.Tier),
		ev.PromptTokens, ev.CompletionTokens, ev.TotalTokens,
		ev.EstimatedCost, ev.ActualCost, string(ev.Status), ev.Batched, formatTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

func (s *Store) ListUsageEvents(ctx context.Context, projectID string, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, workflow_request_id, crew_id, model, tier,
		        prompt_tokens, completion_tokens, total_tokens, estimated_cost, actual_cost,
		        status, batched, created_at
		 FROM usage_events WHERE project_id = ?
		 ORDER BY created_at DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list usage events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []usage.Event
	for rows.Next() {
		var (
			ev                         usage.Event
			tierName, status, created string
		)
		if err := rows.Scan(&ev.ID, &ev.ProjectID, &ev.WorkflowRequestID, &ev.CrewID, &ev.Model, &tierName,
			&ev.PromptTokens, &ev.CompletionTokens, &ev.TotalTokens, &ev.EstimatedCost, &ev.ActualCost,
			&status, &ev.Batched, &created); err != nil {
			return nil, fmt.Errorf("scan usage event: %w", err)
		}
		ev.Tier = tier.CostTier(tierName)
		ev.Status = usage.Status(status)
		if ev.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse usage event time: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Workflow requests ---

func (s *Store) CreateWorkflowRequest(ctx context.Context, wr *usage.WorkflowRequest) error {
	crewIDs, err := json.Marshal(orEmpty(wr.CrewIDs))
	if err != nil {
		return fmt.Errorf("marshal crew ids: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflow_requests (id, project_id, crew_ids, status, retry_count, poll_count,
		                                estimated_cost, actual_cost, error, created_at, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wr.ID, wr.ProjectID, string(crewIDs), string(wr.Status), wr.RetryCount, wr.PollCount,
		wr.EstimatedCost, wr.ActualCost, wr.Error, formatTime(wr.CreatedAt),
		nullableTime(wr.StartedAt), nullableTime(wr.CompletedAt))
	if err != nil {
		return fmt.Errorf("create workflow request: %w", err)
	}
	return nil
}

func (s *Store) UpdateWorkflowRequest(ctx context.Context, wr *usage.WorkflowRequest) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflow_requests
		 SET status = ?, retry_count = ?, poll_count = ?, actual_cost = ?, error = ?,
		     started_at = ?, completed_at = ?
		 WHERE id = ?`,
		string(wr.Status), wr.RetryCount, wr.PollCount, wr.ActualCost, wr.Error,
		nullableTime(wr.StartedAt), nullableTime(wr.CompletedAt), wr.ID)
	return expectOne(res, err, "update workflow request %s", wr.ID)
}

func (s *Store) GetWorkflowRequest(ctx context.Context, id string) (*usage.WorkflowRequest, error) {
	var (
		wr                       usage.WorkflowRequest
		crewIDs, status, created string
		started, completed       sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, crew_ids, status, retry_count, poll_count, estimated_cost,
		        actual_cost, error, created_at, started_at, completed_at
		 FROM workflow_requests WHERE id = ?`, id).
		Scan(&wr.ID, &wr.ProjectID, &crewIDs, &status, &wr.RetryCount, &wr.PollCount,
			&wr.EstimatedCost, &wr.ActualCost, &wr.Error, &created, &started, &completed)
	if err != nil {
		return nil, notFound(err, "get workflow request %s", id)
	}
	if err := json.Unmarshal([]byte(crewIDs), &wr.CrewIDs); err != nil {
		return nil, fmt.Errorf("decode crew ids: %w", err)
	}
	wr.Status = usage.Status(status)
	if wr.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if wr.StartedAt, err = scanNullableTime(started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if wr.CompletedAt, err = scanNullableTime(completed); err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &wr, nil
}

// --- Budgets ---

func (s *Store) UpsertBudget(ctx context.Context, scope string, cfg budget.Config) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO budgets (scope, per_request_limit, daily_limit, monthly_limit, project_limit, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (scope) DO UPDATE SET
		     per_request_limit = excluded.per_request_limit,
		     daily_limit = excluded.daily_limit,
		     monthly_limit = excluded.monthly_limit,
		     project_limit = excluded.project_limit,
		     updated_at = excluded.updated_at`,
		scope, nullableFloat(cfg.PerRequestLimit), nullableFloat(cfg.DailyLimit),
		nullableFloat(cfg.MonthlyLimit), nullableFloat(cfg.ProjectLimit), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("upsert budget %s: %w", scope, err)
	}
	return nil
}

func scanBudget(row interface{ Scan(...any) error }, prefix ...any) (budget.Config, error) {
	var perRequest, daily, monthly, project sql.NullFloat64
	if err := row.Scan(append(prefix, &perRequest, &daily, &monthly, &project)...); err != nil {
		return budget.Config{}, err
	}
	return budget.Config{
		PerRequestLimit: floatPtr(perRequest),
		DailyLimit:      floatPtr(daily),
		MonthlyLimit:    floatPtr(monthly),
		ProjectLimit:    floatPtr(project),
	}, nil
}

func (s *Store) GetBudget(ctx context.Context, scope string) (*budget.Config, error) {
	cfg, err := scanBudget(s.db.QueryRowContext(ctx,
		`SELECT per_request_limit, daily_limit, monthly_limit, project_limit
		 FROM budgets WHERE scope = ?`, scope))
	if err != nil {
		return nil, notFound(err, "get budget %s", scope)
	}
	return &cfg, nil
}

func (s *Store) ListBudgets(ctx context.Context) (map[string]budget.Config, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scope, per_request_limit, daily_limit, monthly_limit, project_limit FROM budgets`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]budget.Config)
	for rows.Next() {
		var scope string
		cfg, err := scanBudget(rows, &scope)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out[scope] = cfg
	}
	return out, rows.Err()
}

func (s *Store) DeleteBudget(ctx context.Context, scope string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM budgets WHERE scope = ?`, scope)
	return expectOne(res, err, "delete budget %s", scope)
}

func orEmpty[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

var _ database.Store = (*Store)(nil)
