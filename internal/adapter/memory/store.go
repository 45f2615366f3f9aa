// Package memory implements the database store in process memory. It backs
// tests and serves as the fallback when the configured database is
// unreachable; nothing survives a restart.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/cost"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
)

// Store is a mutex-guarded in-memory database.Store.
type Store struct {
	mu       sync.RWMutex
	events   []usage.Event
	requests map[string]usage.WorkflowRequest
	budgets  map[string]budget.Config
	now      func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		requests: make(map[string]usage.WorkflowRequest),
		budgets:  make(map[string]budget.Config),
		now:      time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) InsertUsageEvent(_ context.Context, ev *usage.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *Store) ListUsageEvents(_ context.Context, projectID string, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []usage.Event
	for _, ev := range s.events {
		if ev.ProjectID == projectID {
			out = append(out, ev)
		}
	}
	slices.SortStableFunc(out, func(a, b usage.Event) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateWorkflowRequest(_ context.Context, wr *usage.WorkflowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[wr.ID]; ok {
		return fmt.Errorf("create workflow request %s: %w", wr.ID, domain.ErrConflict)
	}
	s.requests[wr.ID] = cloneRequest(*wr)
	return nil
}

func (s *Store) UpdateWorkflowRequest(_ context.Context, wr *usage.WorkflowRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[wr.ID]; !ok {
		return fmt.Errorf("update workflow request %s: %w", wr.ID, domain.ErrNotFound)
	}
	s.requests[wr.ID] = cloneRequest(*wr)
	return nil
}

func (s *Store) GetWorkflowRequest(_ context.Context, id string) (*usage.WorkflowRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wr, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("get workflow request %s: %w", id, domain.ErrNotFound)
	}
	wr = cloneRequest(wr)
	return &wr, nil
}

func cloneRequest(wr usage.WorkflowRequest) usage.WorkflowRequest {
	wr.CrewIDs = slices.Clone(wr.CrewIDs)
	return wr
}

func (s *Store) UpsertBudget(_ context.Context, scope string, cfg budget.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[scope] = cfg
	return nil
}

func (s *Store) GetBudget(_ context.Context, scope string) (*budget.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.budgets[scope]
	if !ok {
		return nil, fmt.Errorf("get budget %s: %w", scope, domain.ErrNotFound)
	}
	return &cfg, nil
}

func (s *Store) ListBudgets(context.Context) (map[string]budget.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]budget.Config, len(s.budgets))
	for k, v := range s.budgets {
		out[k] = v
	}
	return out, nil
}

func (s *Store) DeleteBudget(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.budgets[scope]; !ok {
		return fmt.Errorf("delete budget %s: %w", scope, domain.ErrNotFound)
	}
	delete(s.budgets, scope)
	return nil
}

func add(sum *cost.Summary, ev *usage.Event) {
	sum.TotalCostUSD += ev.ActualCost
	sum.EstimatedCostUSD += ev.EstimatedCost
	sum.PromptTokens += ev.PromptTokens
	sum.CompletionTokens += ev.CompletionTokens
	sum.CallCount++
	if ev.Batched {
		sum.BatchedCallCount++
	}
	if ev.Status != usage.StatusSuccess {
		sum.FailedCallCount++
	}
}

// group aggregates the events of projectID (all projects when empty) by key.
func (s *Store) group(projectID string, key func(*usage.Event) string) (map[string]*cost.Summary, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sums := make(map[string]*cost.Summary)
	var keys []string
	for i := range s.events {
		ev := &s.events[i]
		if projectID != "" && ev.ProjectID != projectID {
			continue
		}
		k := key(ev)
		sum, ok := sums[k]
		if !ok {
			sum = &cost.Summary{}
			sums[k] = sum
			keys = append(keys, k)
		}
		add(sum, ev)
	}
	// Most expensive first, key as the tie-break.
	slices.SortFunc(keys, func(a, b string) int {
		if c := cmp.Compare(sums[b].TotalCostUSD, sums[a].TotalCostUSD); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return sums, keys
}

func (s *Store) CostSummaryGlobal(context.Context) ([]cost.ProjectSummary, error) {
	sums, keys := s.group("", func(ev *usage.Event) string { return ev.ProjectID })
	out := make([]cost.ProjectSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, cost.ProjectSummary{ProjectID: k, Summary: *sums[k]})
	}
	return out, nil
}

func (s *Store) CostSummaryByProject(_ context.Context, projectID string) (*cost.Summary, error) {
	sums, _ := s.group(projectID, func(*usage.Event) string { return "" })
	if sum, ok := sums[""]; ok {
		return sum, nil
	}
	return &cost.Summary{}, nil
}

func (s *Store) CostByModel(_ context.Context, projectID string) ([]cost.ModelSummary, error) {
	sums, keys := s.group(projectID, func(ev *usage.Event) string { return ev.Model })
	out := make([]cost.ModelSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, cost.ModelSummary{Model: k, Summary: *sums[k]})
	}
	return out, nil
}

func (s *Store) CostByCrew(_ context.Context, projectID string) ([]cost.CrewSummary, error) {
	sums, keys := s.group(projectID, func(ev *usage.Event) string { return ev.CrewID })
	out := make([]cost.CrewSummary, 0, len(keys))
	for _, k := range keys {
		out = append(out, cost.CrewSummary{CrewID: k, Summary: *sums[k]})
	}
	return out, nil
}

func (s *Store) CostTimeSeries(_ context.Context, projectID string, days int) ([]cost.DailyCost, error) {
	if days <= 0 {
		days = 30
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)

	s.mu.RLock()
	byDay := make(map[string]*cost.DailyCost)
	for i := range s.events {
		ev := &s.events[i]
		if ev.ProjectID != projectID || ev.CreatedAt.Before(since) {
			continue
		}
		day := ev.CreatedAt.UTC().Format(time.DateOnly)
		dc, ok := byDay[day]
		if !ok {
			dc = &cost.DailyCost{Date: day}
			byDay[day] = dc
		}
		dc.CostUSD += ev.ActualCost
		dc.PromptTokens += ev.PromptTokens
		dc.CompletionTokens += ev.CompletionTokens
		dc.CallCount++
	}
	s.mu.RUnlock()

	out := make([]cost.DailyCost, 0, len(byDay))
	for _, dc := range byDay {
		out = append(out, *dc)
	}
	slices.SortFunc(out, func(a, b cost.DailyCost) int { return cmp.Compare(a.Date, b.Date) })
	return out, nil
}

var _ database.Store = (*Store)(nil)
