package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/broadcast"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/messagequeue"
)

// DefaultWarningThreshold is the fraction of a ceiling at which a scope is
// reported as near its limit.
const DefaultWarningThreshold = 0.80

// limitTolerance absorbs float rounding so that spending exactly up to a
// ceiling is not reported as a breach.
const limitTolerance = 1e-9

// BudgetService enforces per-scope spending ceilings. All scope state is
// guarded by a single mutex; Charge is the atomic check-and-record used by
// the crew pipeline.
type BudgetService struct {
	mu               sync.Mutex
	configs          map[string]budget.Config
	spend            map[string]*budget.Spend
	warningThreshold float64

	store database.Store
	queue messagequeue.Queue
	hub   broadcast.Broadcaster
}

// NewBudgetService creates a budget enforcer. store, queue and hub may be nil.
func NewBudgetService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster, warningThreshold float64) *BudgetService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	s := &BudgetService{
		configs: make(map[string]budget.Config),
		spend:   make(map[string]*budget.Spend),
		store:   store,
		queue:   queue,
		hub:     hub,
	}
	s.SetWarningThreshold(warningThreshold)
	return s
}

// SetWarningThreshold sets the near-limit fraction, clamped to (0, 1].
// Non-positive values select DefaultWarningThreshold.
func (s *BudgetService) SetWarningThreshold(threshold float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case threshold <= 0:
		threshold = DefaultWarningThreshold
	case threshold > 1:
		threshold = 1
	}
	s.warningThreshold = threshold
}

// LoadBudgets restores persisted budget configs. Spend is not persisted.
func (s *BudgetService) LoadBudgets(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	configs, err := s.store.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("list budgets: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for scope, cfg := range configs {
		s.configs[scope] = cfg
	}
	slog.Info("budgets loaded", "count", len(configs))
	return nil
}

// SetBudget installs or replaces the ceilings of a scope.
func (s *BudgetService) SetBudget(ctx context.Context, scope string, cfg budget.Config) error {
	if scope == "" {
		return fmt.Errorf("%w: budget scope is required", domain.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.configs[scope] = cfg
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.UpsertBudget(ctx, scope, cfg); err != nil {
			slog.Warn("persist budget failed, keeping in memory", "scope", scope, "error", err)
		}
	}
	return nil
}

// Budget returns the ceilings of a scope.
func (s *BudgetService) Budget(scope string) (budget.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[scope]
	return cfg, ok
}

// RemoveBudget drops the ceilings of a scope. Accumulated spend is kept.
func (s *BudgetService) RemoveBudget(ctx context.Context, scope string) error {
	s.mu.Lock()
	_, ok := s.configs[scope]
	delete(s.configs, scope)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("budget %q: %w", scope, domain.ErrNotFound)
	}
	if s.store != nil {
		if err := s.store.DeleteBudget(ctx, scope); err != nil {
			slog.Warn("delete persisted budget failed", "scope", scope, "error", err)
		}
	}
	return nil
}

// Spend returns the accumulated spend of a scope.
func (s *BudgetService) Spend(scope string) budget.Spend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sp, ok := s.spend[scope]; ok {
		return *sp
	}
	return budget.Spend{}
}

// CheckBudget reports whether estimatedCost fits every configured ceiling of
// scope. It does not record anything. A scope without config always fits.
func (s *BudgetService) CheckBudget(scope string, estimatedCost float64) budget.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evaluateLocked(scope, estimatedCost)
}

// RecordSpending adds actualCost to every accumulator of scope without
// checking limits. Negative amounts are ignored.
func (s *BudgetService) RecordSpending(scope string, actualCost float64) {
	if actualCost <= 0 || math.IsNaN(actualCost) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(scope, actualCost)
}

// Charge checks and records estimatedCost in one step. When any ceiling would
// be breached nothing is recorded and a *budget.ExceededError is returned.
func (s *BudgetService) Charge(ctx context.Context, scope string, estimatedCost float64) (budget.Status, error) {
	if estimatedCost < 0 || math.IsNaN(estimatedCost) {
		return budget.Status{}, fmt.Errorf("%w: estimated cost must be a non-negative number", domain.ErrValidation)
	}

	s.mu.Lock()
	status := s.evaluateLocked(scope, estimatedCost)
	if status.WithinBudget {
		s.addLocked(scope, estimatedCost)
		status.Spend = *s.spend[scope]
	}
	s.mu.Unlock()

	if !status.WithinBudget {
		s.alert(ctx, status, true)
		return status, &budget.ExceededError{Scope: scope, Breaches: status.Breaches}
	}
	if status.NearLimit {
		s.alert(ctx, status, false)
	}
	return status, nil
}

// Settle replaces a charged estimate with the cost actually incurred. An
// overrun is added without checking limits; an underrun (including a run
// that failed before any call) is refunded. Accumulators never go below
// zero, so a reset between Charge and Settle is not undone.
func (s *BudgetService) Settle(scope string, charged, actual float64) {
	if math.IsNaN(charged) || math.IsNaN(actual) || charged < 0 || actual < 0 {
		return
	}
	delta := actual - charged
	if delta == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if delta > 0 {
		s.addLocked(scope, delta)
		return
	}
	sp, ok := s.spend[scope]
	if !ok {
		return
	}
	sp.Daily = max(sp.Daily+delta, 0)
	sp.Monthly = max(sp.Monthly+delta, 0)
	sp.Project = max(sp.Project+delta, 0)
}

// ResetDailySpending zeroes the daily accumulator of scope, or of every
// scope when scope is empty.
func (s *BudgetService) ResetDailySpending(scope string) {
	s.reset(scope, budget.PeriodDaily)
}

// ResetMonthlySpending zeroes the monthly accumulator of scope, or of every
// scope when scope is empty.
func (s *BudgetService) ResetMonthlySpending(scope string) {
	s.reset(scope, budget.PeriodMonthly)
}

// Reset dispatches to the reset of the given period.
func (s *BudgetService) Reset(ctx context.Context, scope string, period budget.Period) {
	s.reset(scope, period)
	s.hub.BroadcastEvent(ctx, broadcast.EventBudgetReset, messagequeue.BudgetResetPayload{
		Scope:  scope,
		Period: string(period),
	})
}

func (s *BudgetService) reset(scope string, period budget.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	apply := func(sp *budget.Spend) {
		switch period {
		case budget.PeriodDaily:
			sp.Daily = 0
		case budget.PeriodMonthly:
			sp.Monthly = 0
		}
	}
	if scope == "" {
		for _, sp := range s.spend {
			apply(sp)
		}
		return
	}
	if sp, ok := s.spend[scope]; ok {
		apply(sp)
	}
}

// StartResetSubscriber listens for period-boundary resets sent by an
// external scheduler.
func (s *BudgetService) StartResetSubscriber(ctx context.Context) (cancel func(), err error) {
	if s.queue == nil {
		return func() {}, nil
	}
	return s.queue.Subscribe(ctx, messagequeue.SubjectBudgetReset, func(msgCtx context.Context, _ string, data []byte) error {
		var p messagequeue.BudgetResetPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshal budget reset: %w", err)
		}
		period, err := budget.ParsePeriod(p.Period)
		if err != nil {
			return err
		}
		s.Reset(msgCtx, p.Scope, period)
		slog.Info("budget spending reset", "scope", p.Scope, "period", period)
		return nil
	})
}

func (s *BudgetService) addLocked(scope string, amount float64) {
	sp, ok := s.spend[scope]
	if !ok {
		sp = &budget.Spend{}
		s.spend[scope] = sp
	}
	sp.Daily += amount
	sp.Monthly += amount
	sp.Project += amount
}

func (s *BudgetService) evaluateLocked(scope string, cost float64) budget.Status {
	var spend budget.Spend
	if sp, ok := s.spend[scope]; ok {
		spend = *sp
	}
	status := budget.Status{
		Scope:         scope,
		WithinBudget:  true,
		EstimatedCost: cost,
		Spend:         spend,
	}
	cfg, ok := s.configs[scope]
	if !ok {
		return status
	}
	status.Config = &cfg

	if l := cfg.PerRequestLimit; l != nil && cost > *l+limitTolerance {
		status.Breaches = append(status.Breaches, budget.Breach{
			Kind: budget.LimitPerRequest, Limit: *l, Estimated: cost, Available: *l,
		})
	}
	for _, c := range []struct {
		kind    budget.LimitKind
		limit   *float64
		current float64
	}{
		{budget.LimitDaily, cfg.DailyLimit, spend.Daily},
		{budget.LimitMonthly, cfg.MonthlyLimit, spend.Monthly},
		{budget.LimitProject, cfg.ProjectLimit, spend.Project},
	} {
		if c.limit == nil {
			continue
		}
		after := c.current + cost
		if after > *c.limit+limitTolerance {
			status.Breaches = append(status.Breaches, budget.Breach{
				Kind:      c.kind,
				Limit:     *c.limit,
				Current:   c.current,
				Estimated: cost,
				Available: math.Max(*c.limit-c.current, 0),
			})
			continue
		}
		if *c.limit > 0 && after/(*c.limit) >= s.warningThreshold {
			status.NearLimit = true
		}
	}
	status.WithinBudget = len(status.Breaches) == 0
	return status
}

func (s *BudgetService) alert(ctx context.Context, status budget.Status, rejected bool) {
	event := broadcast.EventBudgetWarning
	if rejected {
		event = broadcast.EventBudgetExceeded
		slog.Warn("budget exceeded", "scope", status.Scope, "estimated", status.EstimatedCost, "breaches", len(status.Breaches))
	} else {
		slog.Info("budget near limit", "scope", status.Scope, "spend_daily", status.Spend.Daily, "spend_monthly", status.Spend.Monthly)
	}
	s.hub.BroadcastEvent(ctx, event, status)

	if s.queue == nil {
		return
	}
	payload := messagequeue.BudgetAlertPayload{
		Scope:     status.Scope,
		Estimated: status.EstimatedCost,
		Rejected:  rejected,
	}
	if len(status.Breaches) > 0 {
		b := status.Breaches[0]
		payload.Kind = string(b.Kind)
		payload.Limit = b.Limit
		payload.Available = b.Available
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal budget alert", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.SubjectBudgetAlert, data); err != nil {
		slog.Warn("publish budget alert failed", "scope", status.Scope, "error", err)
	}
}
