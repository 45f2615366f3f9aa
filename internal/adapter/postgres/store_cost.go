package postgres

import (
	"context"
	"fmt"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/cost"
)

// summaryColumns aggregates a set of usage_events rows into cost.Summary order.
const summaryColumns = `COALESCE(SUM(actual_cost), 0), COALESCE(SUM(estimated_cost), 0),
	COALESCE(SUM(prompt_tokens), 0), COALESCE(SUM(completion_tokens), 0), COUNT(*),
	COUNT(*) FILTER (WHERE batched), COUNT(*) FILTER (WHERE status <> 'success')`

func scanSummary(row scannable, prefix ...any) (cost.Summary, error) {
	var cs cost.Summary
	dest := append(prefix,
		&cs.TotalCostUSD, &cs.EstimatedCostUSD, &cs.PromptTokens, &cs.CompletionTokens,
		&cs.CallCount, &cs.BatchedCallCount, &cs.FailedCallCount)
	err := row.Scan(dest...)
	return cs, err
}

func (s *Store) CostSummaryGlobal(ctx context.Context) ([]cost.ProjectSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT project_id, `+summaryColumns+`
		 FROM usage_events
		 GROUP BY project_id
		 ORDER BY SUM(actual_cost) DESC`)
	if err != nil {
		return nil, fmt.Errorf("cost summary global: %w", err)
	}
	defer rows.Close()

	var result []cost.ProjectSummary
	for rows.Next() {
		var ps cost.ProjectSummary
		ps.Summary, err = scanSummary(rows, &ps.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("scan cost summary: %w", err)
		}
		result = append(result, ps)
	}
	return result, rows.Err()
}

func (s *Store) CostSummaryByProject(ctx context.Context, projectID string) (*cost.Summary, error) {
	cs, err := scanSummary(s.pool.QueryRow(ctx,
		`SELECT `+summaryColumns+` FROM usage_events WHERE project_id = $1`, projectID))
	if err != nil {
		return nil, fmt.Errorf("cost summary by project: %w", err)
	}
	return &cs, nil
}

func (s *Store) CostByModel(ctx context.Context, projectID string) ([]cost.ModelSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT model, `+summaryColumns+`
		 FROM usage_events WHERE project_id = $1
		 GROUP BY model ORDER BY SUM(actual_cost) DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("cost by model: %w", err)
	}
	defer rows.Close()

	var result []cost.ModelSummary
	for rows.Next() {
		var ms cost.ModelSummary
		ms.Summary, err = scanSummary(rows, &ms.Model)
		if err != nil {
			return nil, fmt.Errorf("scan model summary: %w", err)
		}
		result = append(result, ms)
	}
	return result, rows.Err()
}

func (s *Store) CostByCrew(ctx context.Context, projectID string) ([]cost.CrewSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT crew_id, `+summaryColumns+`
		 FROM usage_events WHERE project_id = $1
		 GROUP BY crew_id ORDER BY SUM(actual_cost) DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("cost by crew: %w", err)
	}
	defer rows.Close()

	var result []cost.CrewSummary
	for rows.Next() {
		var cs cost.CrewSummary
		cs.Summary, err = scanSummary(rows, &cs.CrewID)
		if err != nil {
			return nil, fmt.Errorf("scan crew summary: %w", err)
		}
		result = append(result, cs)
	}
	return result, rows.Err()
}

func (s *Store) CostTimeSeries(ctx context.Context, projectID string, days int) ([]cost.DailyCost, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := s.pool.Query(ctx,
		`SELECT TO_CHAR((created_at AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD'), SUM(actual_cost),
		        SUM(prompt_tokens), SUM(completion_tokens), COUNT(*)
		 FROM usage_events
		 WHERE project_id = $1 AND created_at >= NOW() - make_interval(days => $2)
		 GROUP BY 1
		 ORDER BY 1`, projectID, days)
	if err != nil {
		return nil, fmt.Errorf("cost time series: %w", err)
	}
	defer rows.Close()

	var result []cost.DailyCost
	for rows.Next() {
		var dc cost.DailyCost
		if err := rows.Scan(&dc.Date, &dc.CostUSD, &dc.PromptTokens, &dc.CompletionTokens, &dc.CallCount); err != nil {
			return nil, fmt.Errorf("scan daily cost: %w", err)
		}
		result = append(result, dc)
	}
	return result, rows.Err()
}
