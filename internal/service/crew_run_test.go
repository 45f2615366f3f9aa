package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/execution"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/messagequeue"
)

type runFixture struct {
	svc         *CrewRunService
	provider    *fakeProvider
	loader      *fakeLoader
	budgets     *BudgetService
	coordinator *CoordinatorService
	store       *mockStore
	queue       *mockQueue
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	f := &runFixture{
		provider: echoProvider(),
		loader:   newFakeLoader(),
		store:    newMockStore(),
		queue:    &mockQueue{},
	}
	reg := crew.DefaultRegistry()
	usageSvc := NewUsageService(f.store, f.queue, nil)
	f.budgets = NewBudgetService(nil, nil, nil, 0)
	f.coordinator = NewCoordinatorService(reg)
	f.svc = NewCrewRunService(
		newTestOrchestrator(),
		f.budgets,
		f.coordinator,
		newTestExecutor(f.provider, f.loader, testExecutorConfig(), usageSvc),
		usageSvc,
		nil,
	)
	return f
}

func picardOnly() map[string]tier.CostTier {
	return map[string]tier.CostTier{crew.CaptainPicard: tier.Budget}
}

func TestRunExecutesAndCharges(t *testing.T) {
	f := newRunFixture(t)
	ctx := context.Background()

	res, err := f.svc.Run(ctx, orchestration.RunRequest{
		ProjectID:    "p1",
		UserRequest:  "fix the login bug",
		TierOverride: picardOnly(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Execution == nil || len(res.Execution.Responses) != 1 {
		t.Fatalf("execution = %+v", res.Execution)
	}
	if res.Execution.Responses[0].CrewID != crew.CaptainPicard {
		t.Errorf("responder = %s", res.Execution.Responses[0].CrewID)
	}
	if f.provider.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", f.provider.callCount())
	}

	want := res.ActualCost
	if got := f.budgets.Spend("p1").Daily; math.Abs(got-want) > 1e-12 {
		t.Errorf("daily spend = %v, want %v", got, want)
	}

	wr, ok := f.store.requests[res.WorkflowRequestID]
	if !ok {
		t.Fatalf("workflow request %s not persisted", res.WorkflowRequestID)
	}
	if wr.Status != usage.StatusSuccess || wr.ActualCost != res.ActualCost {
		t.Errorf("workflow request = %+v", wr)
	}
	if w := workloadOf(t, f.coordinator, crew.CaptainPicard); w.Current != 0 {
		t.Errorf("coordinator slot not released: %+v", w)
	}

	var completed bool
	for _, s := range f.queue.subjects() {
		if s == messagequeue.SubjectRunCompleted {
			completed = true
		}
	}
	if !completed {
		t.Errorf("no %s published, got %v", messagequeue.SubjectRunCompleted, f.queue.subjects())
	}
}

func TestRunDryRunExecutesNothing(t *testing.T) {
	f := newRunFixture(t)

	res, err := f.svc.Run(context.Background(), orchestration.RunRequest{
		ProjectID:    "p1",
		UserRequest:  "fix the login bug",
		TierOverride: picardOnly(),
		DryRun:       true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.DryRun || res.Execution != nil || res.WorkflowRequestID != "" {
		t.Errorf("dry run result = %+v", res)
	}
	if !res.Budget.WithinBudget {
		t.Errorf("budget = %+v", res.Budget)
	}
	if f.provider.callCount() != 0 || len(f.loader.loaded) != 0 {
		t.Errorf("dry run reached the provider: calls=%d loaded=%v", f.provider.callCount(), f.loader.loaded)
	}
	if got := f.budgets.Spend("p1").Daily; got != 0 {
		t.Errorf("dry run charged %v", got)
	}
}

func TestRunBudgetRejection(t *testing.T) {
	for _, dry := range []bool{false, true} {
		f := newRunFixture(t)
		ctx := context.Background()
		if err := f.budgets.SetBudget(ctx, "p1", budget.Config{PerRequestLimit: budget.Limit(0.001)}); err != nil {
			t.Fatal(err)
		}

		res, err := f.svc.Run(ctx, orchestration.RunRequest{
			ProjectID:    "p1",
			UserRequest:  "fix the login bug",
			TierOverride: picardOnly(),
			DryRun:       dry,
		})
		var exceeded *budget.ExceededError
		if !errors.As(err, &exceeded) {
			t.Fatalf("dry=%v: expected ExceededError, got %v", dry, err)
		}
		if len(exceeded.Breaches) != 1 || exceeded.Breaches[0].Kind != budget.LimitPerRequest {
			t.Errorf("dry=%v: breaches = %+v", dry, exceeded.Breaches)
		}
		if res == nil || res.Budget.WithinBudget {
			t.Errorf("dry=%v: result should carry the rejected status, got %+v", dry, res)
		}
		if f.provider.callCount() != 0 {
			t.Errorf("dry=%v: provider called %d times after rejection", dry, f.provider.callCount())
		}
		if got := f.budgets.Spend("p1").Daily; got != 0 {
			t.Errorf("dry=%v: rejected run charged %v", dry, got)
		}
		if w := workloadOf(t, f.coordinator, crew.CaptainPicard); w.Current != 0 {
			t.Errorf("dry=%v: slot held after rejection: %+v", dry, w)
		}
	}
}

func TestRunCrewAtCapacity(t *testing.T) {
	f := newRunFixture(t)
	m, _ := crew.DefaultRegistry().Get(crew.CaptainPicard)
	for range m.Capacity {
		if err := f.coordinator.Assign([]string{crew.CaptainPicard}); err != nil {
			t.Fatal(err)
		}
	}

	_, err := f.svc.Run(context.Background(), orchestration.RunRequest{
		ProjectID:    "p1",
		UserRequest:  "fix the login bug",
		TierOverride: picardOnly(),
	})
	if !errors.Is(err, ErrCrewAtCapacity) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}
	if got := f.budgets.Spend("p1").Daily; got != 0 {
		t.Errorf("capacity failure charged %v", got)
	}
	if f.provider.callCount() != 0 {
		t.Errorf("provider called %d times", f.provider.callCount())
	}
}

func TestRunConfigLoadFailure(t *testing.T) {
	f := newRunFixture(t)
	delete(f.loader.configs, crew.CaptainPicard)

	res, err := f.svc.Run(context.Background(), orchestration.RunRequest{
		ProjectID:    "p1",
		UserRequest:  "fix the login bug",
		TierOverride: picardOnly(),
	})
	var loadErr *execution.ConfigLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("expected ConfigLoadError, got %v", err)
	}
	if f.provider.callCount() != 0 {
		t.Errorf("provider called %d times", f.provider.callCount())
	}
	wr, ok := f.store.requests[res.WorkflowRequestID]
	if !ok || wr.Status != usage.StatusFailed || wr.Error == "" {
		t.Errorf("workflow request = %+v (found %v)", wr, ok)
	}
	if got := f.budgets.Spend("p1"); got != (budget.Spend{}) {
		t.Errorf("failed run left spend %+v", got)
	}
}

func TestRunFailureRefundsCharge(t *testing.T) {
	f := newRunFixture(t)
	ctx := context.Background()
	req := orchestration.RunRequest{
		ProjectID:    "p1",
		UserRequest:  "fix the login bug",
		TierOverride: picardOnly(),
	}
	req.DryRun = true
	plan, err := f.svc.Run(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	req.DryRun = false
	est := plan.Orchestration.EstimatedCost
	if err := f.budgets.SetBudget(ctx, "p1", budget.Config{DailyLimit: budget.Limit(1.5 * est)}); err != nil {
		t.Fatal(err)
	}

	delete(f.loader.configs, crew.CaptainPicard)
	if _, err := f.svc.Run(ctx, req); err == nil {
		t.Fatal("expected the first run to fail")
	}
	if got := f.budgets.Spend("p1").Daily; got != 0 {
		t.Fatalf("daily spend after failed run = %v", got)
	}

	f.loader.configs[crew.CaptainPicard] = newFakeLoader().configs[crew.CaptainPicard]
	res, err := f.svc.Run(ctx, req)
	if err != nil {
		t.Fatalf("second run rejected: %v", err)
	}
	if got := f.budgets.Spend("p1").Daily; math.Abs(got-res.ActualCost) > 1e-12 {
		t.Errorf("daily spend = %v, want actual %v", got, res.ActualCost)
	}
}

func TestRunValidation(t *testing.T) {
	f := newRunFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Run(ctx, orchestration.RunRequest{UserRequest: "x"}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("missing project: %v", err)
	}
	if _, err := f.svc.Run(ctx, orchestration.RunRequest{ProjectID: "p1", UserRequest: "  "}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("blank request: %v", err)
	}
	if _, err := f.svc.Run(ctx, orchestration.RunRequest{
		ProjectID:    "p1",
		UserRequest:  "x",
		TierOverride: map[string]tier.CostTier{"ensign_nobody": tier.Budget},
	}); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("unknown override member: %v", err)
	}
}

func TestRunStatus(t *testing.T) {
	ok := &execution.Result{Responses: []execution.CrewResponse{{CrewID: "a"}}}
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		exec *execution.Result
		err  error
		want usage.Status
	}{
		{"success", context.Background(), ok, nil, usage.StatusSuccess},
		{"error", context.Background(), nil, errors.New("boom"), usage.StatusFailed},
		{"no responses", context.Background(), &execution.Result{}, nil, usage.StatusFailed},
		{"cancelled", cancelled, ok, nil, usage.StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := runStatus(tt.ctx, tt.exec, tt.err); got != tt.want {
				t.Errorf("runStatus = %s, want %s", got, tt.want)
			}
		})
	}
}
