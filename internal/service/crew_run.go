package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	crewotel "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/otel"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/execution"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/logger"
)

// CrewRunService drives a request through orchestration, budget enforcement
// and selective execution.
type CrewRunService struct {
	orchestrator *OrchestratorService
	budgets      *BudgetService
	coordinator  *CoordinatorService
	executor     *ExecutorService
	usage        *UsageService
	metrics      *crewotel.Metrics
}

// NewCrewRunService wires the pipeline. metrics may be nil.
func NewCrewRunService(
	orchestrator *OrchestratorService,
	budgets *BudgetService,
	coordinator *CoordinatorService,
	executor *ExecutorService,
	usageSvc *UsageService,
	metrics *crewotel.Metrics,
) *CrewRunService {
	return &CrewRunService{
		orchestrator: orchestrator,
		budgets:      budgets,
		coordinator:  coordinator,
		executor:     executor,
		usage:        usageSvc,
		metrics:      metrics,
	}
}

// Run orchestrates the request and, unless it is a dry run, charges the
// estimate to the project's budget and executes the activated crew. A
// budget breach returns a *budget.ExceededError and executes nothing.
func (s *CrewRunService) Run(ctx context.Context, req orchestration.RunRequest) (*orchestration.RunResult, error) {
	if req.ProjectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	started := time.Now()
	ctx, span := crewotel.StartRunSpan(ctx, req.ProjectID, req.DryRun)

	result, err := s.run(ctx, req)
	crewotel.EndSpan(span, err)

	status := "success"
	var exceeded *budget.ExceededError
	switch {
	case errors.As(err, &exceeded):
		status = "rejected"
		if len(exceeded.Breaches) > 0 {
			s.metrics.RecordBudgetRejection(ctx, string(exceeded.Breaches[0].Kind))
		}
	case err != nil:
		status = "failed"
	case req.DryRun:
		status = "dry_run"
	}
	cost := 0.0
	if result != nil {
		cost = result.ActualCost
	}
	s.metrics.RecordRun(ctx, cost, time.Since(started).Seconds(), callsSaved(result), status)
	return result, err
}

func (s *CrewRunService) run(ctx context.Context, req orchestration.RunRequest) (*orchestration.RunResult, error) {
	orch, err := s.orchestrator.Orchestrate(ctx, orchestration.Request{
		UserRequest:  req.UserRequest,
		Context:      req.Context,
		TierOverride: req.TierOverride,
	})
	if err != nil {
		return nil, err
	}
	result := &orchestration.RunResult{Orchestration: orch, DryRun: req.DryRun}

	if req.DryRun {
		result.Budget = s.budgets.CheckBudget(req.ProjectID, orch.EstimatedCost)
		if !result.Budget.WithinBudget {
			return result, &budget.ExceededError{Scope: req.ProjectID, Breaches: result.Budget.Breaches}
		}
		return result, nil
	}

	if err := s.coordinator.Assign(orch.ActivatedCrew); err != nil {
		return nil, err
	}
	defer s.coordinator.Release(orch.ActivatedCrew)

	result.Budget, err = s.budgets.Charge(ctx, req.ProjectID, orch.EstimatedCost)
	if err != nil {
		return result, err
	}
	// Whatever happens next, the charge is trued up to what the run cost.
	defer func() {
		s.budgets.Settle(req.ProjectID, orch.EstimatedCost, result.ActualCost)
	}()

	wr, err := s.usage.BeginRequest(ctx, req.ProjectID, orch.ActivatedCrew, orch.EstimatedCost)
	if err != nil {
		return nil, err
	}
	result.WorkflowRequestID = wr.ID
	if err := s.usage.MarkRunning(ctx, wr); err != nil {
		return nil, err
	}

	exec, execErr := s.executor.ExecuteSelectedCrew(ctx, ExecuteRequest{
		ProjectID:         req.ProjectID,
		WorkflowRequestID: wr.ID,
		ActivatedIDs:      orch.ActivatedCrew,
		Assignments:       orch.LLMAssignments,
		UserRequest:       req.UserRequest,
		Context:           req.Context,
	})
	result.Execution = exec
	if exec != nil {
		result.ActualCost = exec.Metrics.TotalCostUSD
	}

	final, errMsg := runStatus(ctx, exec, execErr)
	// The caller may be gone; the ledger entry must still be written.
	if err := s.usage.CompleteRequest(logger.Detach(ctx), wr, final, result.ActualCost, errMsg, callsSaved(result)); err != nil {
		slog.Warn("complete workflow request", "workflow_request_id", wr.ID, "error", err)
	}
	if execErr != nil {
		return result, execErr
	}
	return result, nil
}

func runStatus(ctx context.Context, exec *execution.Result, err error) (usage.Status, string) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return usage.StatusTimeout, ctx.Err().Error()
	case errors.Is(ctx.Err(), context.Canceled):
		return usage.StatusCancelled, ctx.Err().Error()
	case err != nil:
		return usage.StatusFailed, err.Error()
	case exec == nil || len(exec.Responses) == 0:
		return usage.StatusFailed, "no crew member produced a response"
	}
	return usage.StatusSuccess, ""
}

func callsSaved(r *orchestration.RunResult) int {
	if r == nil || r.Execution == nil {
		return 0
	}
	return r.Execution.Metrics.APICallsSaved
}
