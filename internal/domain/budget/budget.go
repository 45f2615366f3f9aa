// Package budget defines spending ceilings, spend snapshots and breach reporting.
package budget

import (
	"fmt"
	"strings"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
)

// LimitKind names one of the ceilings a scope can carry.
type LimitKind string

const (
	LimitPerRequest LimitKind = "per_request"
	LimitDaily      LimitKind = "daily"
	LimitMonthly    LimitKind = "monthly"
	LimitProject    LimitKind = "project"
)

// Period is a resettable accumulation window.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodMonthly Period = "monthly"
)

// ParsePeriod converts a string to a Period.
func ParsePeriod(s string) (Period, error) {
	switch Period(s) {
	case PeriodDaily, PeriodMonthly:
		return Period(s), nil
	}
	return "", fmt.Errorf("%w: unknown budget period %q", domain.ErrValidation, s)
}

// Config holds the optional ceilings for one scope. A nil limit is not enforced.
type Config struct {
	PerRequestLimit *float64 `json:"per_request_limit,omitempty"`
	DailyLimit      *float64 `json:"daily_limit,omitempty"`
	MonthlyLimit    *float64 `json:"monthly_limit,omitempty"`
	ProjectLimit    *float64 `json:"project_limit,omitempty"`
}

// Limit returns a pointer to v, for building configs inline.
func Limit(v float64) *float64 { return &v }

// Validate rejects negative limits.
func (c *Config) Validate() error {
	check := func(kind LimitKind, v *float64) error {
		if v != nil && *v < 0 {
			return fmt.Errorf("%w: %s limit must not be negative", domain.ErrValidation, kind)
		}
		return nil
	}
	for _, l := range []struct {
		kind LimitKind
		v    *float64
	}{
		{LimitPerRequest, c.PerRequestLimit},
		{LimitDaily, c.DailyLimit},
		{LimitMonthly, c.MonthlyLimit},
		{LimitProject, c.ProjectLimit},
	} {
		if err := check(l.kind, l.v); err != nil {
			return err
		}
	}
	return nil
}

// Spend is the accumulated spend of a scope.
type Spend struct {
	Daily   float64 `json:"daily"`
	Monthly float64 `json:"monthly"`
	Project float64 `json:"project"`
}

// Breach describes one ceiling an estimated cost would exceed.
type Breach struct {
	Kind      LimitKind `json:"kind"`
	Limit     float64   `json:"limit"`
	Current   float64   `json:"current"`
	Estimated float64   `json:"estimated"`
	Available float64   `json:"available"`
}

func (b Breach) String() string {
	return fmt.Sprintf("%s limit %.6f exceeded: estimated %.6f, available %.6f", b.Kind, b.Limit, b.Estimated, b.Available)
}

// Status is a point-in-time snapshot of a scope's spend against its limits.
type Status struct {
	Scope         string   `json:"scope"`
	WithinBudget  bool     `json:"within_budget"`
	EstimatedCost float64  `json:"estimated_cost"`
	Spend         Spend    `json:"spend"`
	Config        *Config  `json:"config,omitempty"`
	Breaches      []Breach `json:"breaches,omitempty"`
	NearLimit     bool     `json:"near_limit"`
}

// ExceededError reports that a charge was rejected because it would breach
// one or more ceilings.
type ExceededError struct {
	Scope    string
	Breaches []Breach
}

func (e *ExceededError) Error() string {
	parts := make([]string, len(e.Breaches))
	for i, b := range e.Breaches {
		parts[i] = b.String()
	}
	return fmt.Sprintf("budget exceeded for %q: %s", e.Scope, strings.Join(parts, "; "))
}
