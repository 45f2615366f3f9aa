package tier

// Rule assigns a tier to each member of a crew for one complexity class.
// Overrides are keyed by crew member id.
type Rule struct {
	Overrides map[string]CostTier `json:"overrides,omitempty"`
	Default   CostTier            `json:"default"`
}

// Rules is the fixed complexity -> tier assignment table.
type Rules map[Complexity]Rule

// DefaultRules builds the assignment table for the given coordinator and deputy ids.
func DefaultRules(coordinatorID, deputyID string) Rules {
	return Rules{
		Critical: {
			Overrides: map[string]CostTier{coordinatorID: Premium, deputyID: Standard},
			Default:   Standard,
		},
		Important: {
			Overrides: map[string]CostTier{coordinatorID: Standard, deputyID: Standard},
			Default:   Budget,
		},
		Routine: {
			Overrides: map[string]CostTier{coordinatorID: Standard, deputyID: Budget},
			Default:   Budget,
		},
		Trivial: {
			Overrides: map[string]CostTier{deputyID: Budget},
			Default:   UltraBudget,
		},
	}
}

// TierFor returns the tier a member gets for a request of the given complexity.
// A complexity without a rule falls back to the routine rule.
func (r Rules) TierFor(c Complexity, memberID string) CostTier {
	rule, ok := r[c]
	if !ok {
		rule = r[Routine]
	}
	if t, ok := rule.Overrides[memberID]; ok {
		return t
	}
	if rule.Default == "" {
		return Standard
	}
	return rule.Default
}
