package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

func newTestOrchestrator() *OrchestratorService {
	reg := crew.DefaultRegistry()
	return NewOrchestratorService(reg, NewAnalyzerService(reg), NewOptimizerService(tier.FallbackCostDatabase(), reg.Rules()), nil)
}

func TestOrchestrateAnalyzedCrew(t *testing.T) {
	res, err := newTestOrchestrator().Orchestrate(context.Background(), orchestration.Request{
		UserRequest: "fix a production-down critical bug in the payment API",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.TaskComplexity != tier.Critical || res.Overridden {
		t.Fatalf("result = %+v", res)
	}
	if !reflect.DeepEqual(res.ActivatedCrew, res.Analysis.RecommendedCrew) {
		t.Errorf("activated %v != recommended %v", res.ActivatedCrew, res.Analysis.RecommendedCrew)
	}
	if len(res.LLMAssignments) != len(res.ActivatedCrew) {
		t.Errorf("assignments %v do not cover crew %v", res.LLMAssignments, res.ActivatedCrew)
	}
	if res.LLMAssignments[crew.CaptainPicard] != tier.Premium {
		t.Errorf("coordinator tier = %s", res.LLMAssignments[crew.CaptainPicard])
	}
	if res.EstimatedCost != res.ROI.OptimizedCost || res.EstimatedCost > res.ROI.BaselineCost {
		t.Errorf("estimated %v, roi %+v", res.EstimatedCost, res.ROI)
	}
	if !strings.Contains(res.Reasoning, "critical") {
		t.Errorf("reasoning = %q", res.Reasoning)
	}
}

func TestOrchestrateTierOverride(t *testing.T) {
	res, err := newTestOrchestrator().Orchestrate(context.Background(), orchestration.Request{
		UserRequest:  "fix a production-down critical bug",
		TierOverride: map[string]tier.CostTier{crew.CaptainPicard: tier.Budget},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(res.ActivatedCrew, []string{crew.CaptainPicard}) {
		t.Fatalf("activated = %v", res.ActivatedCrew)
	}
	if res.EstimatedCost != 0.001575 {
		t.Errorf("estimated = %v, want the budget unit cost exactly", res.EstimatedCost)
	}
	if !res.Overridden || !res.ROI.Estimated {
		t.Errorf("override flags not set: %+v", res)
	}
}

func TestOrchestrateOverrideRegistryOrder(t *testing.T) {
	res, err := newTestOrchestrator().Orchestrate(context.Background(), orchestration.Request{
		UserRequest: "anything",
		TierOverride: map[string]tier.CostTier{
			crew.Quark: tier.UltraBudget, crew.CommanderData: tier.Standard, crew.CaptainPicard: tier.Premium,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{crew.CaptainPicard, crew.CommanderData, crew.Quark}
	if !reflect.DeepEqual(res.ActivatedCrew, want) {
		t.Fatalf("activated = %v, want %v", res.ActivatedCrew, want)
	}
}

func TestOrchestrateValidation(t *testing.T) {
	tests := []struct {
		name string
		req  orchestration.Request
	}{
		{"empty request", orchestration.Request{UserRequest: "   "}},
		{"unknown member", orchestration.Request{UserRequest: "x", TierOverride: map[string]tier.CostTier{"q": tier.Budget}}},
		{"invalid tier", orchestration.Request{UserRequest: "x", TierOverride: map[string]tier.CostTier{crew.Quark: "platinum"}}},
	}
	o := newTestOrchestrator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.Orchestrate(context.Background(), tt.req); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("err = %v", err)
			}
		})
	}
}
