package crew

import (
	"fmt"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// Well-known member ids.
const (
	CaptainPicard   = "captain_picard"
	CommanderRiker  = "commander_riker"
	CommanderData   = "commander_data"
	GeordiLaForge   = "geordi_la_forge"
	LieutenantWorf  = "lieutenant_worf"
	CounselorTroi   = "counselor_troi"
	DrCrusher       = "dr_crusher"
	LieutenantUhura = "lieutenant_uhura"
	ChiefOBrien     = "chief_obrien"
	Quark           = "quark"
)

// Registry is the immutable, ordered crew roster. Iteration order is the
// tie-break when several members match a request equally.
type Registry struct {
	members     []Member
	index       map[string]int
	coordinator string
	deputy      string
}

// NewRegistry validates the roster and builds a Registry. The roster must
// contain exactly one coordinator and one deputy.
func NewRegistry(members []Member) (*Registry, error) {
	r := &Registry{
		members: make([]Member, 0, len(members)),
		index:   make(map[string]int, len(members)),
	}
	for i := range members {
		m := members[i]
		if m.ID == "" {
			return nil, fmt.Errorf("%w: crew member %d has no id", domain.ErrValidation, i)
		}
		if _, dup := r.index[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate crew member %q", domain.ErrValidation, m.ID)
		}
		if m.CostTier != "" && !m.CostTier.Valid() {
			return nil, fmt.Errorf("%w: crew member %q has invalid tier %q", domain.ErrValidation, m.ID, m.CostTier)
		}
		switch m.Role {
		case RoleCoordinator:
			if r.coordinator != "" {
				return nil, fmt.Errorf("%w: multiple coordinators (%s, %s)", domain.ErrValidation, r.coordinator, m.ID)
			}
			r.coordinator = m.ID
		case RoleDeputy:
			if r.deputy != "" {
				return nil, fmt.Errorf("%w: multiple deputies (%s, %s)", domain.ErrValidation, r.deputy, m.ID)
			}
			r.deputy = m.ID
		}
		m.Expertise = append([]Expertise(nil), m.Expertise...)
		r.index[m.ID] = len(r.members)
		r.members = append(r.members, m)
	}
	if r.coordinator == "" {
		return nil, fmt.Errorf("%w: roster has no coordinator", domain.ErrValidation)
	}
	if r.deputy == "" {
		return nil, fmt.Errorf("%w: roster has no deputy", domain.ErrValidation)
	}
	return r, nil
}

// Members returns a copy of the roster in registry order.
func (r *Registry) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// Get looks up a member by id.
func (r *Registry) Get(id string) (Member, bool) {
	i, ok := r.index[id]
	if !ok {
		return Member{}, false
	}
	return r.members[i], true
}

// Contains reports whether id is on the roster.
func (r *Registry) Contains(id string) bool {
	_, ok := r.index[id]
	return ok
}

// Position returns the registry index of id, or -1.
func (r *Registry) Position(id string) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return -1
}

// Coordinator returns the coordinator's id.
func (r *Registry) Coordinator() string { return r.coordinator }

// Deputy returns the deputy's id.
func (r *Registry) Deputy() string { return r.deputy }

// Rules returns the tier assignment table bound to this roster's coordinator and deputy.
func (r *Registry) Rules() tier.Rules {
	return tier.DefaultRules(r.coordinator, r.deputy)
}

// DefaultRegistry returns the built-in roster.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(defaultMembers())
	if err != nil {
		panic(fmt.Sprintf("crew: invalid built-in roster: %v", err))
	}
	return r
}

func defaultMembers() []Member {
	return []Member{
		{
			ID: CaptainPicard, DisplayName: "Captain Jean-Luc Picard", Role: RoleCoordinator,
			Title: "Strategic Leadership", DefaultModel: "anthropic/claude-3.5-sonnet", CostTier: tier.Premium,
			Expertise: []Expertise{ExpStrategy, ExpLeadership, ExpPlanning, ExpArchitecture},
			Capacity:  10, Active: true,
		},
		{
			ID: CommanderRiker, DisplayName: "Commander William Riker", Role: RoleDeputy,
			Title: "Tactical Execution", DefaultModel: "openai/gpt-4o", CostTier: tier.Standard,
			Expertise: []Expertise{ExpTactical, ExpExecution, ExpLeadership, ExpPlanning},
			Capacity:  8, Active: true,
		},
		{
			ID: CommanderData, DisplayName: "Lieutenant Commander Data", Role: RoleSpecialist,
			Title: "Data Analysis", DefaultModel: "openai/gpt-4o", CostTier: tier.Standard,
			Expertise: []Expertise{ExpData, ExpAnalytics, ExpArchitecture, ExpAPIs},
			Capacity:  8, Active: true,
		},
		{
			ID: GeordiLaForge, DisplayName: "Lieutenant Commander Geordi La Forge", Role: RoleSpecialist,
			Title: "Infrastructure Engineering", DefaultModel: "openai/gpt-4o-mini", CostTier: tier.Budget,
			Expertise: []Expertise{ExpInfrastructure, ExpPerformance, ExpIntegration, ExpDiagnostics},
			Capacity:  6, Active: true,
		},
		{
			ID: LieutenantWorf, DisplayName: "Lieutenant Worf", Role: RoleSpecialist,
			Title: "Security", DefaultModel: "openai/gpt-4o-mini", CostTier: tier.Budget,
			Expertise: []Expertise{ExpSecurity, ExpTesting, ExpCompliance},
			Capacity:  6, Active: true,
		},
		{
			ID: CounselorTroi, DisplayName: "Counselor Deanna Troi", Role: RoleSpecialist,
			Title: "User Experience", DefaultModel: "openai/gpt-4o-mini", CostTier: tier.Budget,
			Expertise: []Expertise{ExpUX, ExpCommunication},
			Capacity:  6, Active: true,
		},
		{
			ID: DrCrusher, DisplayName: "Dr. Beverly Crusher", Role: RoleSpecialist,
			Title: "System Health", DefaultModel: "openai/gpt-4o-mini", CostTier: tier.Budget,
			Expertise: []Expertise{ExpDiagnostics, ExpTesting, ExpPerformance},
			Capacity:  6, Active: true,
		},
		{
			ID: LieutenantUhura, DisplayName: "Lieutenant Nyota Uhura", Role: RoleSpecialist,
			Title: "Communications", DefaultModel: "meta-llama/llama-3.1-8b-instruct", CostTier: tier.UltraBudget,
			Expertise: []Expertise{ExpCommunication, ExpIntegration, ExpAPIs, ExpDocumentation},
			Capacity:  6, Active: true,
		},
		{
			ID: ChiefOBrien, DisplayName: "Chief Miles O'Brien", Role: RoleSpecialist,
			Title: "Operations", DefaultModel: "meta-llama/llama-3.1-8b-instruct", CostTier: tier.UltraBudget,
			Expertise: []Expertise{ExpExecution, ExpInfrastructure, ExpTactical},
			Capacity:  6, Active: true,
		},
		{
			ID: Quark, DisplayName: "Quark", Role: RoleSpecialist,
			Title: "Cost Optimization", DefaultModel: "openai/gpt-4o-mini", CostTier: tier.Budget,
			Expertise: []Expertise{ExpFinance, ExpCost, ExpAnalytics},
			Capacity:  6, Active: true,
		},
	}
}
