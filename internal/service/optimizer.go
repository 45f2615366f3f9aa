package service

import (
	"fmt"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// overrideBaselineFactor estimates the premium baseline when tiers are
// supplied by the caller instead of derived from the rule table.
const overrideBaselineFactor = 1.5

// OptimizerService assigns cost tiers to an activated crew and reports the
// savings against an all-premium baseline. It is pure.
type OptimizerService struct {
	costs *tier.CostDatabase
	rules tier.Rules
}

// NewOptimizerService creates an optimizer. A nil cost database selects the
// built-in fallback table.
func NewOptimizerService(costs *tier.CostDatabase, rules tier.Rules) *OptimizerService {
	if costs == nil {
		costs = tier.FallbackCostDatabase()
	}
	return &OptimizerService{costs: costs, rules: rules}
}

// CostDatabase returns the price sheet in use.
func (s *OptimizerService) CostDatabase() *tier.CostDatabase { return s.costs }

// Optimize assigns each member its tier for the analysis' complexity.
func (s *OptimizerService) Optimize(analysis orchestration.TaskAnalysis, activated []string) orchestration.ROIAnalysis {
	assignments := make(map[string]tier.CostTier, len(activated))
	optimized := 0.0
	for _, id := range activated {
		t := s.rules.TierFor(analysis.Complexity, id)
		assignments[id] = t
		optimized += s.costs.UnitCost(t)
	}
	baseline := float64(len(activated)) * s.costs.UnitCost(tier.Premium)
	return s.roi(baseline, optimized, assignments, false)
}

// CostFromTiers sums the unit costs of an explicit tier assignment.
func (s *OptimizerService) CostFromTiers(tiers map[string]tier.CostTier) float64 {
	total := 0.0
	for _, t := range tiers {
		total += s.costs.UnitCost(t)
	}
	return total
}

// OptimizeFromTiers builds an ROI analysis for caller-supplied tiers. The
// baseline is an estimate, not a premium recomputation.
func (s *OptimizerService) OptimizeFromTiers(tiers map[string]tier.CostTier) orchestration.ROIAnalysis {
	assignments := make(map[string]tier.CostTier, len(tiers))
	for id, t := range tiers {
		assignments[id] = t
	}
	cost := s.CostFromTiers(tiers)
	return s.roi(cost*overrideBaselineFactor, cost, assignments, true)
}

func (s *OptimizerService) roi(baseline, optimized float64, assignments map[string]tier.CostTier, estimated bool) orchestration.ROIAnalysis {
	savings := baseline - optimized
	pct := 0.0
	if baseline > 0 {
		pct = savings / baseline * 100
	}
	kind := "premium baseline"
	if estimated {
		kind = "estimated baseline"
	}
	return orchestration.ROIAnalysis{
		BaselineCost:      baseline,
		OptimizedCost:     optimized,
		Savings:           savings,
		SavingsPercentage: pct,
		Assignments:       assignments,
		Estimated:         estimated,
		Reasoning: fmt.Sprintf("Optimized cost $%.6f vs %s $%.6f across %d crew: saves $%.6f (%.1f%%).",
			optimized, kind, baseline, len(assignments), savings, pct),
	}
}
