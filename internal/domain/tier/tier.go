// Package tier defines cost tiers, task complexity classes and the fixed
// complexity-to-tier assignment rules.
package tier

import (
	"fmt"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
)

// CostTier is a discrete pricing class for LLM calls.
type CostTier string

const (
	Premium     CostTier = "premium"
	Standard    CostTier = "standard"
	Budget      CostTier = "budget"
	UltraBudget CostTier = "ultra_budget"
)

// All lists every tier in descending unit-cost order.
var All = []CostTier{Premium, Standard, Budget, UltraBudget}

var tierRank = map[CostTier]int{
	Premium:     0,
	Standard:    1,
	Budget:      2,
	UltraBudget: 3,
}

// Valid reports whether t is a known tier.
func (t CostTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank orders tiers from most (0) to least expensive. Unknown tiers rank last.
func (t CostTier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return len(tierRank)
}

// ParseCostTier converts a string to a CostTier.
func ParseCostTier(s string) (CostTier, error) {
	t := CostTier(s)
	if !t.Valid() {
		return "", fmt.Errorf("%w: unknown cost tier %q", domain.ErrValidation, s)
	}
	return t, nil
}

// Complexity is the coarse class a request is sorted into.
type Complexity string

const (
	Critical  Complexity = "critical"
	Important Complexity = "important"
	Routine   Complexity = "routine"
	Trivial   Complexity = "trivial"
)

// Complexities lists every complexity class.
var Complexities = []Complexity{Critical, Important, Routine, Trivial}

var maxCrewSize = map[Complexity]int{
	Critical:  7,
	Important: 5,
	Routine:   3,
	Trivial:   2,
}

// Valid reports whether c is a known complexity class.
func (c Complexity) Valid() bool {
	_, ok := maxCrewSize[c]
	return ok
}

// MaxCrewSize returns how many crew members a request of this class may activate.
// Unknown classes get the routine cap.
func (c Complexity) MaxCrewSize() int {
	if n, ok := maxCrewSize[c]; ok {
		return n
	}
	return maxCrewSize[Routine]
}

// ParseComplexity converts a string to a Complexity.
func ParseComplexity(s string) (Complexity, error) {
	c := Complexity(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown complexity %q", domain.ErrValidation, s)
	}
	return c, nil
}
