package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	crewotel "github.com/familiarcat/openrouter-crew-platform-sub004/internal/adapter/otel"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// OrchestratorService composes analysis and tier optimization into one
// decision about who runs and at which tier.
type OrchestratorService struct {
	registry  *crew.Registry
	analyzer  *AnalyzerService
	optimizer *OptimizerService
	metrics   *crewotel.Metrics
}

// NewOrchestratorService creates an orchestrator. metrics may be nil.
func NewOrchestratorService(registry *crew.Registry, analyzer *AnalyzerService, optimizer *OptimizerService, metrics *crewotel.Metrics) *OrchestratorService {
	return &OrchestratorService{
		registry:  registry,
		analyzer:  analyzer,
		optimizer: optimizer,
		metrics:   metrics,
	}
}

// Orchestrate analyzes the request and assigns tiers. A tier override
// replaces both crew selection and tier assignment: the activated crew is
// exactly the override's members, in registry order.
func (s *OrchestratorService) Orchestrate(ctx context.Context, req orchestration.Request) (*orchestration.Result, error) {
	if strings.TrimSpace(req.UserRequest) == "" {
		return nil, fmt.Errorf("%w: user_request is required", domain.ErrValidation)
	}
	ctx, span := crewotel.StartOrchestrateSpan(ctx, len(req.TierOverride) > 0)

	analysis := s.analyzer.Analyze(req.UserRequest, req.Context)

	var (
		activated []string
		roi       orchestration.ROIAnalysis
	)
	if len(req.TierOverride) > 0 {
		if err := s.validateOverride(req.TierOverride); err != nil {
			crewotel.EndSpan(span, err)
			return nil, err
		}
		activated = s.inRegistryOrder(req.TierOverride)
		roi = s.optimizer.OptimizeFromTiers(req.TierOverride)
	} else {
		activated = analysis.RecommendedCrew
		roi = s.optimizer.Optimize(analysis, activated)
	}

	s.metrics.RecordOrchestration(ctx, string(analysis.Complexity), roi.SavingsPercentage)
	crewotel.EndSpan(span, nil)

	return &orchestration.Result{
		ActivatedCrew:  activated,
		LLMAssignments: roi.Assignments,
		TaskComplexity: analysis.Complexity,
		EstimatedCost:  roi.OptimizedCost,
		Analysis:       analysis,
		ROI:            roi,
		Overridden:     len(req.TierOverride) > 0,
		Reasoning:      orchestrationReasoning(analysis, roi, activated, len(req.TierOverride) > 0),
	}, nil
}

func (s *OrchestratorService) validateOverride(override map[string]tier.CostTier) error {
	var errs []error
	for _, id := range s.sortedKeys(override) {
		if !s.registry.Contains(id) {
			errs = append(errs, fmt.Errorf("%w: unknown crew member %q in tier override", domain.ErrValidation, id))
			continue
		}
		if t := override[id]; !t.Valid() {
			errs = append(errs, fmt.Errorf("%w: invalid tier %q for %s", domain.ErrValidation, t, id))
		}
	}
	return errors.Join(errs...)
}

func (s *OrchestratorService) inRegistryOrder(override map[string]tier.CostTier) []string {
	out := make([]string, 0, len(override))
	for _, m := range s.registry.Members() {
		if _, ok := override[m.ID]; ok {
			out = append(out, m.ID)
		}
	}
	return out
}

// sortedKeys orders known ids by registry position and unknown ids after them
// alphabetically, so error messages are stable.
func (s *OrchestratorService) sortedKeys(m map[string]tier.CostTier) []string {
	known := s.inRegistryOrder(m)
	var unknown []string
	for id := range m {
		if !s.registry.Contains(id) {
			unknown = append(unknown, id)
		}
	}
	slices.Sort(unknown)
	return append(known, unknown...)
}

func orchestrationReasoning(a orchestration.TaskAnalysis, roi orchestration.ROIAnalysis, activated []string, overridden bool) string {
	var b strings.Builder
	if overridden {
		fmt.Fprintf(&b, "Tier override applied to %d crew members (analysis: %s). ", len(activated), a.Complexity)
	} else {
		b.WriteString(a.Reasoning)
		b.WriteString(" ")
	}
	b.WriteString(roi.Reasoning)
	return b.String()
}
