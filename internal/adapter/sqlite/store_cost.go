package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/cost"
)

const summaryColumns = `COALESCE(SUM(actual_cost), 0), COALESCE(SUM(estimated_cost), 0),
	COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COUNT(*),
	COALESCE(SUM(batched), 0), COALESCE(SUM(CASE WHEN status <> 'success' THEN 1 ELSE 0 END), 0)`

func scanSummary(row interface{ Scan(...any) error }, prefix ...any) (cost.Summary, error) {
	var cs cost.Summary
	err := row.Scan(append(prefix,
		&cs.TotalCostUSD, &cs.EstimatedCostUSD, &cs.PromptTokens, &cs.CompletionTokens,
		&cs.CallCount, &cs.BatchedCallCount, &cs.FailedCallCount)...)
	return cs, err
}

func (s *Store) CostSummaryGlobal(ctx context.Context) ([]cost.ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, `+summaryColumns+`
		 FROM usage_events GROUP BY project_id ORDER BY SUM(actual_cost) DESC`)
	if err != nil {
		return nil, fmt.Errorf("cost summary global: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []cost.ProjectSummary
	for rows.Next() {
		var ps cost.ProjectSummary
		if ps.Summary, err = scanSummary(rows, &ps.ProjectID); err != nil {
			return nil, fmt.Errorf("scan cost summary: %w", err)
		}
		result = append(result, ps)
	}
	return result, rows.Err()
}

func (s *Store) CostSummaryByProject(ctx context.Context, projectID string) (*cost.Summary, error) {
	cs, err := scanSummary(s.db.QueryRowContext(ctx,
		`SELECT `+summaryColumns+` FROM usage_events WHERE project_id = ?`, projectID))
	if err != nil {
		return nil, fmt.Errorf("cost summary by project: %w", err)
	}
	return &cs, nil
}

// groupedSummaries runs a per-key aggregation and hands each key and summary to add.
func (s *Store) groupedSummaries(ctx context.Context, column, projectID string, add func(key string, sum cost.Summary)) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, `+summaryColumns+`
		 FROM usage_events WHERE project_id = ?
		 GROUP BY `+column+` ORDER BY SUM(actual_cost) DESC`, projectID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key string
		sum, err := scanSummary(rows, &key)
		if err != nil {
			return err
		}
		add(key, sum)
	}
	return rows.Err()
}

func (s *Store) CostByModel(ctx context.Context, projectID string) ([]cost.ModelSummary, error) {
	var result []cost.ModelSummary
	err := s.groupedSummaries(ctx, "model", projectID, func(key string, sum cost.Summary) {
		result = append(result, cost.ModelSummary{Model: key, Summary: sum})
	})
	if err != nil {
		return nil, fmt.Errorf("cost by model: %w", err)
	}
	return result, nil
}

func (s *Store) CostByCrew(ctx context.Context, projectID string) ([]cost.CrewSummary, error) {
	var result []cost.CrewSummary
	err := s.groupedSummaries(ctx, "crew_id", projectID, func(key string, sum cost.Summary) {
		result = append(result, cost.CrewSummary{CrewID: key, Summary: sum})
	})
	if err != nil {
		return nil, fmt.Errorf("cost by crew: %w", err)
	}
	return result, nil
}

func (s *Store) CostTimeSeries(ctx context.Context, projectID string, days int) ([]cost.DailyCost, error) {
	if days <= 0 {
		days = 30
	}
	since := formatTime(s.now().Add(-time.Duration(days) * 24 * time.Hour))
	rows, err := s.db.QueryContext(ctx,
		`SELECT substr(created_at, 1, 10) AS day, SUM(actual_cost), SUM(prompt_tokens),
		        SUM(completion_tokens), COUNT(*)
		 FROM usage_events
		 WHERE project_id = ? AND created_at >= ?
		 GROUP BY day ORDER BY day`, projectID, since)
	if err != nil {
		return nil, fmt.Errorf("cost time series: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []cost.DailyCost
	for rows.Next() {
		var (
			dc    cost.DailyCost
			spent sql.NullFloat64
		)
		if err := rows.Scan(&dc.Date, &spent, &dc.PromptTokens, &dc.CompletionTokens, &dc.CallCount); err != nil {
			return nil, fmt.Errorf("scan daily cost: %w", err)
		}
		dc.CostUSD = spent.Float64
		result = append(result, dc)
	}
	return result, rows.Err()
}
