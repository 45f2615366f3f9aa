package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	crewotel "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/otel"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/callpool"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/execution"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/crewconfig"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/llm"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/resilience"
)

// ExecutorConfig tunes batching and outbound calls.
type ExecutorConfig struct {
	MaxBatchSize         int
	MaxParallel          int
	FallbackToIndividual bool
	CallTimeout          time.Duration
	Retry                resilience.RetryPolicy
}

// DefaultExecutorConfig mirrors the service defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxBatchSize:         5,
		MaxParallel:          4,
		FallbackToIndividual: true,
		CallTimeout:          30 * time.Second,
		Retry:                resilience.DefaultRetryPolicy(),
	}
}

// ExecuteRequest is the input of one selective execution.
type ExecuteRequest struct {
	ProjectID         string
	WorkflowRequestID string
	ActivatedIDs      []string
	Assignments       map[string]tier.CostTier
	UserRequest       string
	Context           map[string]string
}

// ExecutorService calls the LLM provider for activated crew members only,
// batching members that share a model into one upstream call.
type ExecutorService struct {
	provider llm.Provider
	configs  crewconfig.Loader
	costs    *tier.CostDatabase
	usage    *UsageService
	pool     *callpool.Pool
	metrics  *crewotel.Metrics
	cfg      ExecutorConfig
}

// NewExecutorService creates an executor. usage, pool and metrics may be nil.
func NewExecutorService(
	provider llm.Provider,
	configs crewconfig.Loader,
	costs *tier.CostDatabase,
	usageSvc *UsageService,
	pool *callpool.Pool,
	metrics *crewotel.Metrics,
	cfg ExecutorConfig,
) *ExecutorService {
	if costs == nil {
		costs = tier.FallbackCostDatabase()
	}
	if cfg.MaxBatchSize < 1 {
		cfg.MaxBatchSize = 1
	}
	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}
	return &ExecutorService{
		provider: provider,
		configs:  configs,
		costs:    costs,
		usage:    usageSvc,
		pool:     pool,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// batchOutcome is what one batch contributes to the result.
type batchOutcome struct {
	responses []execution.CrewResponse
	failures  []execution.MemberFailure
	summary   execution.BatchSummary
	prompt    int64
	complete  int64
	cost      float64
}

// ExecuteSelectedCrew runs the activated members. Configs for every member
// are loaded before any call is made; a load failure aborts with a
// *execution.ConfigLoadError. Provider and parse failures are isolated to
// their batch and reported in the result.
func (s *ExecutorService) ExecuteSelectedCrew(ctx context.Context, req ExecuteRequest) (*execution.Result, error) {
	ids := dedupeIDs(req.ActivatedIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no crew members activated", domain.ErrValidation)
	}

	calls := make([]memberCall, 0, len(ids))
	for _, id := range ids {
		t, ok := req.Assignments[id]
		if !ok || !t.Valid() {
			return nil, fmt.Errorf("%w: no valid tier assigned to %s", domain.ErrValidation, id)
		}
		cfg, err := s.configs.Load(ctx, id)
		if err != nil {
			return nil, &execution.ConfigLoadError{CrewID: id, Err: err}
		}
		calls = append(calls, memberCall{
			crewID: id,
			tier:   t,
			model:  s.resolveModel(cfg, t),
			config: cfg,
		})
	}

	batches := planBatches(calls, s.cfg.MaxBatchSize)
	outcomes := make([]batchOutcome, len(batches))

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxParallel)
	for i, b := range batches {
		g.Go(func() error {
			outcomes[i] = s.runBatch(ctx, req, b)
			return nil
		})
	}
	_ = g.Wait()

	result := &execution.Result{
		Metrics: execution.BatchExecutionResult{
			TotalBatches:  len(batches),
			TotalRequests: len(calls),
		},
	}
	for _, o := range outcomes {
		result.Responses = append(result.Responses, o.responses...)
		result.Failures = append(result.Failures, o.failures...)
		result.Metrics.Batches = append(result.Metrics.Batches, o.summary)
		result.Metrics.APICalls += o.summary.APICalls
		result.Metrics.TotalPromptTokens += o.prompt
		result.Metrics.TotalCompletionTokens += o.complete
		result.Metrics.TotalCostUSD += o.cost
	}
	result.Metrics.APICallsSaved = max(result.Metrics.TotalRequests-result.Metrics.APICalls, 0)

	missing, err := ValidateCrewResponses(ids, result.Responses)
	if err != nil {
		return nil, err
	}
	result.Missing = missing
	return result, nil
}

// resolveModel prefers the member's tiered model, then the price sheet's
// model for the tier, then the member's default model.
func (s *ExecutorService) resolveModel(cfg *crew.Config, t tier.CostTier) string {
	if m, ok := cfg.ModelForTier(t); ok {
		return m
	}
	if m := s.costs.ModelFor(t); m != "" {
		return m
	}
	return cfg.Model
}

func (s *ExecutorService) runBatch(ctx context.Context, req ExecuteRequest, b batch) batchOutcome {
	ctx, span := crewotel.StartBatchSpan(ctx, b.model, len(b.members))
	out := batchOutcome{summary: execution.BatchSummary{Model: b.model, CrewIDs: b.ids()}}

	if len(b.members) == 1 {
		s.runIndividual(ctx, req, b.members[0], &out)
		crewotel.EndSpan(span, nil)
		return out
	}

	temperature, maxTokens := batchParams(b)
	resp, attempts, err := s.complete(ctx, llm.Request{
		Model:       b.model,
		Messages:    batchMessages(b, req.UserRequest, req.Context),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, true)
	out.summary.APICalls++

	pending := b.members
	if err == nil {
		out.addTokens(resp.Usage)
		sections, perr := splitBatchResponse(b.model, resp.Content, b.ids())
		pending = nil
		var answered []memberCall
		for _, m := range b.members {
			if _, ok := sections[m.crewID]; ok {
				answered = append(answered, m)
			} else {
				pending = append(pending, m)
			}
		}
		if len(answered) == 0 {
			out.cost += s.callCost(b.members[0], resp.Usage)
		}
		prompts := splitUsage(resp.Usage.PromptTokens, len(answered))
		completions := splitUsage(resp.Usage.CompletionTokens, len(answered))
		for i, m := range answered {
			share := llm.Usage{PromptTokens: prompts[i], CompletionTokens: completions[i]}
			s.respond(ctx, req, &out, m, sections[m.crewID], share, attempts, true)
		}
		if perr != nil {
			err = perr
			slog.Warn("batched response incomplete", "model", b.model, "missing", perr.Missing, "reason", perr.Reason)
		}
	}

	if err != nil {
		out.summary.Error = err.Error()
		// Individual calls would hit the same rejected credentials.
		var authErr *llm.AuthenticationError
		if s.cfg.FallbackToIndividual && !errors.As(err, &authErr) {
			out.summary.Fallback = true
			for _, m := range pending {
				s.runIndividual(ctx, req, m, &out)
			}
		} else {
			for _, m := range pending {
				s.fail(ctx, req, &out, m, err)
			}
		}
	}
	crewotel.EndSpan(span, err)
	return out
}

func (s *ExecutorService) runIndividual(ctx context.Context, req ExecuteRequest, m memberCall, out *batchOutcome) {
	resp, attempts, err := s.complete(ctx, llm.Request{
		Model:       m.model,
		Messages:    individualMessages(m, req.UserRequest, req.Context),
		Temperature: m.config.Temperature,
		MaxTokens:   m.config.MaxTokens,
	}, false)
	out.summary.APICalls++
	if err != nil {
		s.fail(ctx, req, out, m, err)
		return
	}
	out.addTokens(resp.Usage)
	s.respond(ctx, req, out, m, resp.Content, resp.Usage, attempts, false)
}

// complete sends one request through the call pool with retries and a
// per-attempt timeout.
func (s *ExecutorService) complete(ctx context.Context, r llm.Request, batched bool) (*llm.Response, int, error) {
	ctx, span := crewotel.StartLLMCallSpan(ctx, r.Model)
	var resp *llm.Response
	attempts, err := resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) error {
		return s.pool.Do(ctx, func(ctx context.Context) error {
			callCtx := ctx
			if s.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
				defer cancel()
			}
			var callErr error
			resp, callErr = s.provider.Complete(callCtx, r)
			return callErr
		})
	})
	s.metrics.RecordLLMCall(ctx, r.Model, batched, err == nil)
	crewotel.EndSpan(span, err)
	if err != nil {
		return nil, attempts, err
	}
	return resp, attempts, nil
}

// callCost prices a call by tokens when the model is priced, else by the
// tier's unit cost.
func (s *ExecutorService) callCost(m memberCall, u llm.Usage) float64 {
	if c, ok := s.costs.CostForTokens(m.model, u.PromptTokens, u.CompletionTokens); ok {
		return c
	}
	return s.costs.UnitCost(m.tier)
}

func (s *ExecutorService) respond(ctx context.Context, req ExecuteRequest, out *batchOutcome, m memberCall, content string, u llm.Usage, attempts int, batched bool) {
	cost := s.callCost(m, u)
	out.cost += cost
	out.responses = append(out.responses, execution.CrewResponse{
		CrewID:           m.crewID,
		Model:            m.model,
		Tier:             m.tier,
		Content:          content,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		CostUSD:          cost,
		Batched:          batched,
		Attempts:         attempts,
	})
	s.track(ctx, req, m, u, cost, usage.StatusSuccess, batched)
}

func (s *ExecutorService) fail(ctx context.Context, req ExecuteRequest, out *batchOutcome, m memberCall, err error) {
	slog.Warn("crew member call failed", "crew_id", m.crewID, "model", m.model, "error", err)
	out.failures = append(out.failures, execution.MemberFailure{
		CrewID: m.crewID,
		Model:  m.model,
		Error:  err.Error(),
	})
	status := usage.StatusFailed
	if ctx.Err() != nil {
		status = usage.StatusCancelled
	}
	s.track(ctx, req, m, llm.Usage{}, 0, status, false)
}

func (s *ExecutorService) track(ctx context.Context, req ExecuteRequest, m memberCall, u llm.Usage, cost float64, status usage.Status, batched bool) {
	if s.usage == nil {
		return
	}
	s.usage.RecordEvent(ctx, &usage.Event{
		ProjectID:         req.ProjectID,
		WorkflowRequestID: req.WorkflowRequestID,
		CrewID:            m.crewID,
		Model:             m.model,
		Tier:              m.tier,
		PromptTokens:      u.PromptTokens,
		CompletionTokens:  u.CompletionTokens,
		EstimatedCost:     s.costs.UnitCost(m.tier),
		ActualCost:        cost,
		Status:            status,
		Batched:           batched,
	})
}

func (o *batchOutcome) addTokens(u llm.Usage) {
	o.prompt += u.PromptTokens
	o.complete += u.CompletionTokens
}

// ValidateCrewResponses fails with execution.ErrUnauthorizedResponse when a
// response belongs to a member that was not activated. Activated members
// without a response are returned and logged, but are not an error.
func ValidateCrewResponses(activated []string, responses []execution.CrewResponse) ([]string, error) {
	allowed := make(map[string]bool, len(activated))
	for _, id := range activated {
		allowed[id] = true
	}
	seen := make(map[string]bool, len(responses))
	for _, r := range responses {
		if !allowed[r.CrewID] {
			return nil, fmt.Errorf("%w: %s", execution.ErrUnauthorizedResponse, r.CrewID)
		}
		seen[r.CrewID] = true
	}
	var missing []string
	for _, id := range dedupeIDs(activated) {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		slog.Warn("activated crew members without response", "missing", missing)
	}
	return missing, nil
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
