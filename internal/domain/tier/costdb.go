package tier

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
)

// TierCost is the per-request unit cost of a tier and the model that serves it.
type TierCost struct {
	CostUSD float64 `json:"cost_usd"`
	Model   string  `json:"model,omitempty"`
}

// Pricing holds per-million token prices for a specific model.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
}

// CostDatabase is the validated price sheet used by the optimizer and executor.
type CostDatabase struct {
	Tiers   map[CostTier]TierCost `json:"tiers"`
	Pricing map[string]Pricing    `json:"pricing,omitempty"`
}

// FallbackCostDatabase returns the built-in price sheet used when no external
// cost database can be loaded.
func FallbackCostDatabase() *CostDatabase {
	return &CostDatabase{
		Tiers: map[CostTier]TierCost{
			Premium:     {CostUSD: 0.0135, Model: "anthropic/claude-3.5-sonnet"},
			Standard:    {CostUSD: 0.01, Model: "openai/gpt-4o"},
			Budget:      {CostUSD: 0.001575, Model: "openai/gpt-4o-mini"},
			UltraBudget: {CostUSD: 0.0003, Model: "meta-llama/llama-3.1-8b-instruct"},
		},
		Pricing: map[string]Pricing{
			"anthropic/claude-3.5-sonnet":      {InputPerMillion: 3.00, OutputPerMillion: 15.00},
			"openai/gpt-4o":                    {InputPerMillion: 2.50, OutputPerMillion: 10.00},
			"openai/gpt-4o-mini":               {InputPerMillion: 0.15, OutputPerMillion: 0.60},
			"meta-llama/llama-3.1-8b-instruct": {InputPerMillion: 0.05, OutputPerMillion: 0.05},
		},
	}
}

// rawCostDatabase is the on-disk JSON shape: tier names at the top level plus
// an optional "pricing" object.
type rawCostDatabase map[string]json.RawMessage

// ParseCostDatabase decodes and validates a cost database document.
func ParseCostDatabase(data []byte) (*CostDatabase, error) {
	var raw rawCostDatabase
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode cost database: %v", domain.ErrValidation, err)
	}

	db := &CostDatabase{
		Tiers:   make(map[CostTier]TierCost, len(All)),
		Pricing: make(map[string]Pricing),
	}
	for key, msg := range raw {
		if key == "pricing" {
			if err := json.Unmarshal(msg, &db.Pricing); err != nil {
				return nil, fmt.Errorf("%w: decode pricing: %v", domain.ErrValidation, err)
			}
			continue
		}
		t := CostTier(key)
		if !t.Valid() {
			return nil, fmt.Errorf("%w: unknown tier %q in cost database", domain.ErrValidation, key)
		}
		var tc TierCost
		if err := json.Unmarshal(msg, &tc); err != nil {
			return nil, fmt.Errorf("%w: decode tier %q: %v", domain.ErrValidation, key, err)
		}
		db.Tiers[t] = tc
	}

	if err := db.Validate(); err != nil {
		return nil, err
	}
	return db, nil
}

// Validate checks that every tier is priced, no price is negative and no tier
// costs more than premium.
func (db *CostDatabase) Validate() error {
	var errs []error
	for _, t := range All {
		tc, ok := db.Tiers[t]
		if !ok {
			errs = append(errs, fmt.Errorf("tier %q is missing", t))
			continue
		}
		if tc.CostUSD < 0 {
			errs = append(errs, fmt.Errorf("tier %q has negative cost %v", t, tc.CostUSD))
		}
	}
	if premium, ok := db.Tiers[Premium]; ok {
		for _, t := range All[1:] {
			if tc, ok := db.Tiers[t]; ok && tc.CostUSD > premium.CostUSD {
				errs = append(errs, fmt.Errorf("tier %q costs more than premium (%v > %v)", t, tc.CostUSD, premium.CostUSD))
			}
		}
	}
	for model, p := range db.Pricing {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			errs = append(errs, fmt.Errorf("model %q has negative pricing", model))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: invalid cost database: %w", domain.ErrValidation, errors.Join(errs...))
	}
	return nil
}

// UnitCost returns the per-request cost of a tier, 0 for unknown tiers.
func (db *CostDatabase) UnitCost(t CostTier) float64 {
	return db.Tiers[t].CostUSD
}

// ModelFor returns the model configured for a tier, if any.
func (db *CostDatabase) ModelFor(t CostTier) string {
	return db.Tiers[t].Model
}

// PricingFor returns the per-million pricing of a model.
func (db *CostDatabase) PricingFor(model string) (Pricing, bool) {
	p, ok := db.Pricing[model]
	return p, ok
}

// CostForTokens prices a call by its token counts. The boolean is false when
// the model has no pricing entry.
func (db *CostDatabase) CostForTokens(model string, in, out int64) (float64, bool) {
	p, ok := db.Pricing[model]
	if !ok {
		return 0, false
	}
	return float64(in)/1_000_000*p.InputPerMillion + float64(out)/1_000_000*p.OutputPerMillion, true
}

// Models returns the priced model ids in sorted order.
func (db *CostDatabase) Models() []string {
	out := make([]string, 0, len(db.Pricing))
	for m := range db.Pricing {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}
