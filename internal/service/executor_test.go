package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/callpool"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/execution"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/llm"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/resilience"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []llm.Request
	fn    func(n int, req llm.Request) (*llm.Response, error)
}

func (p *fakeProvider) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	p.mu.Unlock()
	return p.fn(n, req)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// echoProvider answers batched prompts with one section per requested member
// and individual prompts with a plain answer.
func echoProvider() *fakeProvider {
	return &fakeProvider{fn: func(_ int, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: echoContent(req), Model: req.Model, Usage: llm.Usage{PromptTokens: 100, CompletionTokens: 50}}, nil
	}}
}

func echoContent(req llm.Request) string {
	ids := markerIDs(req)
	if len(ids) == 0 {
		return "individual answer"
	}
	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "[[crew:%s]]\nanswer from %s\n\n", id, id)
	}
	return b.String()
}

func markerIDs(req llm.Request) []string {
	var ids []string
	for _, m := range sectionMarker.FindAllStringSubmatch(req.Messages[0].Content, -1) {
		ids = append(ids, m[1])
	}
	return ids
}

type fakeLoader struct {
	mu      sync.Mutex
	configs map[string]*crew.Config
	loaded  []string
}

func newFakeLoader() *fakeLoader {
	l := &fakeLoader{configs: make(map[string]*crew.Config)}
	for _, m := range crew.DefaultRegistry().Members() {
		l.configs[m.ID] = &crew.Config{
			ID:           m.ID,
			SystemPrompt: "You are " + m.DisplayName + ".",
			Model:        m.DefaultModel,
			Temperature:  0.7,
			MaxTokens:    500,
		}
	}
	return l
}

func (l *fakeLoader) Load(_ context.Context, id string) (*crew.Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = append(l.loaded, id)
	cfg, ok := l.configs[id]
	if !ok {
		return nil, fmt.Errorf("crew config %s: %w", id, domain.ErrNotFound)
	}
	return cfg, nil
}

func testExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxBatchSize:         5,
		MaxParallel:          4,
		FallbackToIndividual: true,
		CallTimeout:          time.Second,
		Retry:                resilience.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond},
	}
}

func newTestExecutor(p llm.Provider, l *fakeLoader, cfg ExecutorConfig, u *UsageService) *ExecutorService {
	return NewExecutorService(p, l, tier.FallbackCostDatabase(), u, callpool.New(8), nil, cfg)
}

func TestExecuteOnlyActivatedMembers(t *testing.T) {
	p := echoProvider()
	l := newFakeLoader()
	e := newTestExecutor(p, l, testExecutorConfig(), nil)

	activated := []string{crew.CaptainPicard, crew.LieutenantWorf}
	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID:    "p1",
		ActivatedIDs: activated,
		Assignments:  map[string]tier.CostTier{crew.CaptainPicard: tier.Premium, crew.LieutenantWorf: tier.Standard},
		UserRequest:  "fix the auth bug",
	})
	if err != nil {
		t.Fatal(err)
	}

	if !slices.Equal(l.loaded, activated) {
		t.Errorf("configs loaded for %v, want only %v", l.loaded, activated)
	}
	for _, r := range res.Responses {
		if !slices.Contains(activated, r.CrewID) {
			t.Errorf("response from non-activated member %s", r.CrewID)
		}
	}
	if len(res.Responses) != 2 || len(res.Missing) != 0 {
		t.Fatalf("responses = %d, missing = %v", len(res.Responses), res.Missing)
	}
	// Different tiers resolve to different models, so no batching.
	if res.Metrics.APICalls != 2 || res.Metrics.APICallsSaved != 0 {
		t.Errorf("metrics = %+v", res.Metrics)
	}
}

func TestExecuteBatchesSameModel(t *testing.T) {
	p := echoProvider()
	usageSvc := NewUsageService(nil, nil, nil)
	e := newTestExecutor(p, newFakeLoader(), testExecutorConfig(), usageSvc)

	ids := []string{crew.GeordiLaForge, crew.LieutenantWorf, crew.DrCrusher}
	assign := map[string]tier.CostTier{}
	for _, id := range ids {
		assign[id] = tier.Budget
	}
	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p1", WorkflowRequestID: "wr-1", ActivatedIDs: ids, Assignments: assign, UserRequest: "investigate latency",
	})
	if err != nil {
		t.Fatal(err)
	}

	if p.callCount() != 1 {
		t.Fatalf("provider calls = %d, want 1 batched call", p.callCount())
	}
	m := res.Metrics
	if m.TotalBatches != 1 || m.TotalRequests != 3 || m.APICalls != 1 || m.APICallsSaved != 2 {
		t.Errorf("metrics = %+v", m)
	}
	if m.TotalPromptTokens != 100 || m.TotalCompletionTokens != 50 {
		t.Errorf("tokens = %d/%d, want 100/50", m.TotalPromptTokens, m.TotalCompletionTokens)
	}
	var prompt int64
	for _, r := range res.Responses {
		if !r.Batched || r.Model != "openai/gpt-4o-mini" {
			t.Errorf("response %+v should be batched on the budget model", r)
		}
		if r.Content != "answer from "+r.CrewID {
			t.Errorf("%s got %q", r.CrewID, r.Content)
		}
		prompt += r.PromptTokens
	}
	if prompt != 100 {
		t.Errorf("split prompt tokens sum to %d", prompt)
	}
	if m.TotalCostUSD <= 0 {
		t.Error("expected a positive total cost")
	}

	events, _ := usageSvc.RecentEvents(context.Background(), "p1", 10)
	if len(events) != 3 {
		t.Fatalf("usage events = %d, want one per member", len(events))
	}
	for _, ev := range events {
		if ev.WorkflowRequestID != "wr-1" || !ev.Batched {
			t.Errorf("event = %+v", ev)
		}
	}
}

func TestExecuteBatchSizeChunks(t *testing.T) {
	p := echoProvider()
	cfg := testExecutorConfig()
	cfg.MaxBatchSize = 2
	e := newTestExecutor(p, newFakeLoader(), cfg, nil)

	ids := []string{crew.GeordiLaForge, crew.LieutenantWorf, crew.DrCrusher}
	assign := map[string]tier.CostTier{}
	for _, id := range ids {
		assign[id] = tier.Budget
	}
	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{ProjectID: "p", ActivatedIDs: ids, Assignments: assign, UserRequest: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Metrics.TotalBatches != 2 || res.Metrics.APICalls != 2 || res.Metrics.APICallsSaved != 1 {
		t.Fatalf("metrics = %+v", res.Metrics)
	}
}

func TestExecuteParseFailureFallsBack(t *testing.T) {
	p := &fakeProvider{fn: func(_ int, req llm.Request) (*llm.Response, error) {
		if ids := markerIDs(req); len(ids) > 0 {
			return &llm.Response{Content: "[[crew:" + ids[0] + "]]\nonly the first", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 10}}, nil
		}
		return &llm.Response{Content: "individual answer", Usage: llm.Usage{PromptTokens: 5, CompletionTokens: 5}}, nil
	}}
	e := newTestExecutor(p, newFakeLoader(), testExecutorConfig(), nil)

	ids := []string{crew.LieutenantUhura, crew.ChiefOBrien}
	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p", ActivatedIDs: ids, UserRequest: "x",
		Assignments: map[string]tier.CostTier{crew.LieutenantUhura: tier.UltraBudget, crew.ChiefOBrien: tier.UltraBudget},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Responses) != 2 || len(res.Failures) != 0 {
		t.Fatalf("responses = %+v failures = %+v", res.Responses, res.Failures)
	}
	obrien, _ := res.Response(crew.ChiefOBrien)
	if obrien.Batched || obrien.Content != "individual answer" {
		t.Errorf("fallback response = %+v", obrien)
	}
	b := res.Metrics.Batches[0]
	if !b.Fallback || b.APICalls != 2 || !strings.Contains(b.Error, "missing") {
		t.Errorf("batch summary = %+v", b)
	}
}

func TestExecuteAuthFailureSkipsFallback(t *testing.T) {
	p := &fakeProvider{fn: func(int, llm.Request) (*llm.Response, error) {
		return nil, &llm.AuthenticationError{StatusCode: 401, Body: "bad key"}
	}}
	e := newTestExecutor(p, newFakeLoader(), testExecutorConfig(), nil)

	ids := []string{crew.LieutenantUhura, crew.ChiefOBrien}
	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p", ActivatedIDs: ids, UserRequest: "x",
		Assignments: map[string]tier.CostTier{crew.LieutenantUhura: tier.UltraBudget, crew.ChiefOBrien: tier.UltraBudget},
	})
	if err != nil {
		t.Fatal(err)
	}
	if p.callCount() != 1 {
		t.Errorf("calls = %d, want only the batched call", p.callCount())
	}
	if len(res.Failures) != 2 || !slices.Equal(res.Missing, ids) {
		t.Fatalf("failures = %+v missing = %v", res.Failures, res.Missing)
	}
	if b := res.Metrics.Batches[0]; b.Fallback || b.APICalls != 1 {
		t.Errorf("batch summary = %+v", b)
	}
}

func TestExecuteParseFailureWithoutFallback(t *testing.T) {
	p := &fakeProvider{fn: func(int, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "I refuse to use your format."}, nil
	}}
	cfg := testExecutorConfig()
	cfg.FallbackToIndividual = false
	e := newTestExecutor(p, newFakeLoader(), cfg, nil)

	ids := []string{crew.LieutenantUhura, crew.ChiefOBrien}
	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p", ActivatedIDs: ids, UserRequest: "x",
		Assignments: map[string]tier.CostTier{crew.LieutenantUhura: tier.UltraBudget, crew.ChiefOBrien: tier.UltraBudget},
	})
	if err != nil {
		t.Fatalf("parse failure must not fail the execution: %v", err)
	}
	if len(res.Failures) != 2 || !slices.Equal(res.Missing, ids) {
		t.Fatalf("failures = %+v missing = %v", res.Failures, res.Missing)
	}
	if !strings.Contains(res.Failures[0].Error, "no section delimiters") {
		t.Errorf("failure = %q", res.Failures[0].Error)
	}
	if p.callCount() != 1 {
		t.Errorf("calls = %d, want no individual retries", p.callCount())
	}
}

func TestExecuteConfigLoadFailureAbortsBeforeCalls(t *testing.T) {
	p := echoProvider()
	l := newFakeLoader()
	delete(l.configs, crew.LieutenantWorf)
	e := newTestExecutor(p, l, testExecutorConfig(), nil)

	_, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p", ActivatedIDs: []string{crew.CaptainPicard, crew.LieutenantWorf}, UserRequest: "x",
		Assignments: map[string]tier.CostTier{crew.CaptainPicard: tier.Premium, crew.LieutenantWorf: tier.Budget},
	})
	var cle *execution.ConfigLoadError
	if !errors.As(err, &cle) || cle.CrewID != crew.LieutenantWorf {
		t.Fatalf("want ConfigLoadError for worf, got %v", err)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("cause not preserved: %v", err)
	}
	if p.callCount() != 0 {
		t.Fatalf("provider called %d times after config failure", p.callCount())
	}
}

func TestExecuteValidation(t *testing.T) {
	e := newTestExecutor(echoProvider(), newFakeLoader(), testExecutorConfig(), nil)
	tests := []struct {
		name string
		req  ExecuteRequest
	}{
		{"empty crew", ExecuteRequest{ProjectID: "p"}},
		{"missing tier", ExecuteRequest{ProjectID: "p", ActivatedIDs: []string{crew.Quark}}},
		{"invalid tier", ExecuteRequest{ProjectID: "p", ActivatedIDs: []string{crew.Quark}, Assignments: map[string]tier.CostTier{crew.Quark: "gold"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.ExecuteSelectedCrew(context.Background(), tt.req); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}

func TestExecuteBatchFailureIsolated(t *testing.T) {
	p := &fakeProvider{fn: func(_ int, req llm.Request) (*llm.Response, error) {
		if req.Model == "anthropic/claude-3.5-sonnet" {
			return nil, &llm.AuthenticationError{StatusCode: 401, Body: "bad key"}
		}
		return &llm.Response{Content: echoContent(req)}, nil
	}}
	e := newTestExecutor(p, newFakeLoader(), testExecutorConfig(), nil)

	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p", UserRequest: "x",
		ActivatedIDs: []string{crew.CaptainPicard, crew.Quark},
		Assignments:  map[string]tier.CostTier{crew.CaptainPicard: tier.Premium, crew.Quark: tier.Budget},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := res.Response(crew.Quark); !ok {
		t.Fatal("sibling batch was affected by a failing batch")
	}
	if len(res.Failures) != 1 || res.Failures[0].CrewID != crew.CaptainPicard {
		t.Fatalf("failures = %+v", res.Failures)
	}
	if !slices.Equal(res.Missing, []string{crew.CaptainPicard}) {
		t.Errorf("missing = %v", res.Missing)
	}
	// Authentication errors are not retried.
	if got := p.callCount(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestExecuteRetriesRateLimit(t *testing.T) {
	p := &fakeProvider{fn: func(n int, req llm.Request) (*llm.Response, error) {
		if n == 1 {
			return nil, &llm.RateLimitError{Body: "slow down"}
		}
		return &llm.Response{Content: "ok"}, nil
	}}
	e := newTestExecutor(p, newFakeLoader(), testExecutorConfig(), nil)

	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p", UserRequest: "x",
		ActivatedIDs: []string{crew.Quark},
		Assignments:  map[string]tier.CostTier{crew.Quark: tier.Budget},
	})
	if err != nil {
		t.Fatal(err)
	}
	r, ok := res.Response(crew.Quark)
	if !ok || r.Attempts != 2 {
		t.Fatalf("response = %+v, want success on attempt 2", r)
	}
}

func TestExecuteTieredModelOverride(t *testing.T) {
	p := echoProvider()
	l := newFakeLoader()
	l.configs[crew.Quark].TieredModels = map[tier.CostTier]string{tier.Budget: "mistralai/mistral-small"}
	e := newTestExecutor(p, l, testExecutorConfig(), nil)

	res, err := e.ExecuteSelectedCrew(context.Background(), ExecuteRequest{
		ProjectID: "p", UserRequest: "x",
		ActivatedIDs: []string{crew.Quark},
		Assignments:  map[string]tier.CostTier{crew.Quark: tier.Budget},
	})
	if err != nil {
		t.Fatal(err)
	}
	r, _ := res.Response(crew.Quark)
	if r.Model != "mistralai/mistral-small" {
		t.Fatalf("model = %s", r.Model)
	}
	// Unpriced model falls back to the tier's unit cost.
	if r.CostUSD != 0.001575 {
		t.Errorf("cost = %v, want budget unit cost", r.CostUSD)
	}
}

func TestValidateCrewResponses(t *testing.T) {
	activated := []string{crew.CaptainPicard, crew.CommanderData}

	missing, err := ValidateCrewResponses(activated, []execution.CrewResponse{{CrewID: crew.CaptainPicard}})
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(missing, []string{crew.CommanderData}) {
		t.Errorf("missing = %v", missing)
	}

	_, err = ValidateCrewResponses(activated, []execution.CrewResponse{{CrewID: crew.Quark}})
	if !errors.Is(err, execution.ErrUnauthorizedResponse) {
		t.Fatalf("err = %v", err)
	}
}
