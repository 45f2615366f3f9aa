// Package crew defines crew members, the static roster and per-member
// LLM configuration documents.
package crew

import "github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"

// Expertise is a skill tag used to match requests to crew members.
type Expertise string

const (
	ExpStrategy       Expertise = "strategy"
	ExpLeadership     Expertise = "leadership"
	ExpPlanning       Expertise = "planning"
	ExpTactical       Expertise = "tactical"
	ExpExecution      Expertise = "execution"
	ExpSecurity       Expertise = "security"
	ExpTesting        Expertise = "testing"
	ExpAPIs           Expertise = "apis"
	ExpIntegration    Expertise = "integration"
	ExpInfrastructure Expertise = "infrastructure"
	ExpPerformance    Expertise = "performance"
	ExpData           Expertise = "data"
	ExpAnalytics      Expertise = "analytics"
	ExpArchitecture   Expertise = "architecture"
	ExpUX             Expertise = "ux"
	ExpCommunication  Expertise = "communication"
	ExpDocumentation  Expertise = "documentation"
	ExpFinance        Expertise = "finance"
	ExpCost           Expertise = "cost"
	ExpDiagnostics    Expertise = "diagnostics"
	ExpCompliance     Expertise = "compliance"
)

// AllExpertise lists every known tag.
var AllExpertise = []Expertise{
	ExpStrategy, ExpLeadership, ExpPlanning, ExpTactical, ExpExecution,
	ExpSecurity, ExpTesting, ExpAPIs, ExpIntegration, ExpInfrastructure,
	ExpPerformance, ExpData, ExpAnalytics, ExpArchitecture, ExpUX,
	ExpCommunication, ExpDocumentation, ExpFinance, ExpCost,
	ExpDiagnostics, ExpCompliance,
}

var validExpertise = func() map[Expertise]bool {
	m := make(map[Expertise]bool, len(AllExpertise))
	for _, e := range AllExpertise {
		m[e] = true
	}
	return m
}()

// Valid reports whether e is a known tag.
func (e Expertise) Valid() bool { return validExpertise[e] }

// Role is a member's function on the crew.
type Role string

const (
	RoleCoordinator Role = "coordinator"
	RoleDeputy      Role = "deputy"
	RoleSpecialist  Role = "specialist"
)

// Member is the static descriptor of one crew member. Workload counters live
// in the coordinator service, not here.
type Member struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"display_name"`
	Role         Role          `json:"role"`
	Title        string        `json:"title"`
	DefaultModel string        `json:"default_model"`
	CostTier     tier.CostTier `json:"cost_tier"`
	Expertise    []Expertise   `json:"expertise"`
	Capacity     int           `json:"capacity"`
	Active       bool          `json:"active"`
}

// HasAny reports whether the member holds at least one of the given tags.
func (m *Member) HasAny(tags map[Expertise]bool) bool {
	for _, e := range m.Expertise {
		if tags[e] {
			return true
		}
	}
	return false
}

// Workload is a member's current assignment count against its capacity.
type Workload struct {
	CrewID   string `json:"crew_id"`
	Current  int    `json:"current"`
	Capacity int    `json:"capacity"`
	Active   bool   `json:"active"`
}

// Available reports whether the member can take one more assignment.
func (w Workload) Available() bool { return w.Active && w.Current < w.Capacity }
