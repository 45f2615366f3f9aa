package service

import (
	"fmt"
	"strings"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

// complexityKeywords are checked in order; the first class with a matching
// keyword wins. Routine is the fallback and has no keywords.
var complexityKeywords = []struct {
	complexity tier.Complexity
	keywords   []string
}{
	{tier.Critical, []string{
		"critical", "production", "outage", "down", "urgent", "emergency",
		"breach", "incident", "hotfix", "data loss",
	}},
	{tier.Important, []string{
		"feature", "implement", "refactor", "integration", "integrate",
		"migrate", "migration", "optimize", "architecture", "redesign", "deploy",
	}},
	{tier.Trivial, []string{
		"typo", "readme", "rename", "comment", "comments", "formatting",
		"format", "spelling", "whitespace", "lint",
	}},
}

// expertiseKeywords maps request vocabulary to the expertise it calls for.
// Table order fixes the order of RequiredExpertise.
var expertiseKeywords = []struct {
	keyword string
	tags    []crew.Expertise
}{
	{"strategy", []crew.Expertise{crew.ExpStrategy, crew.ExpPlanning}},
	{"roadmap", []crew.Expertise{crew.ExpStrategy, crew.ExpPlanning}},
	{"plan", []crew.Expertise{crew.ExpPlanning}},
	{"architecture", []crew.Expertise{crew.ExpArchitecture, crew.ExpStrategy}},
	{"production", []crew.Expertise{crew.ExpInfrastructure, crew.ExpDiagnostics}},
	{"outage", []crew.Expertise{crew.ExpInfrastructure, crew.ExpDiagnostics}},
	{"down", []crew.Expertise{crew.ExpInfrastructure, crew.ExpDiagnostics}},
	{"bug", []crew.Expertise{crew.ExpSecurity, crew.ExpTesting}},
	{"bugs", []crew.Expertise{crew.ExpSecurity, crew.ExpTesting}},
	{"crash", []crew.Expertise{crew.ExpDiagnostics, crew.ExpTesting}},
	{"error", []crew.Expertise{crew.ExpDiagnostics, crew.ExpTesting}},
	{"debug", []crew.Expertise{crew.ExpDiagnostics}},
	{"security", []crew.Expertise{crew.ExpSecurity, crew.ExpCompliance}},
	{"vulnerability", []crew.Expertise{crew.ExpSecurity, crew.ExpCompliance}},
	{"auth", []crew.Expertise{crew.ExpSecurity}},
	{"authentication", []crew.Expertise{crew.ExpSecurity}},
	{"breach", []crew.Expertise{crew.ExpSecurity, crew.ExpCompliance}},
	{"compliance", []crew.Expertise{crew.ExpCompliance}},
	{"test", []crew.Expertise{crew.ExpTesting}},
	{"tests", []crew.Expertise{crew.ExpTesting}},
	{"testing", []crew.Expertise{crew.ExpTesting}},
	{"api", []crew.Expertise{crew.ExpAPIs, crew.ExpIntegration}},
	{"apis", []crew.Expertise{crew.ExpAPIs, crew.ExpIntegration}},
	{"endpoint", []crew.Expertise{crew.ExpAPIs, crew.ExpIntegration}},
	{"webhook", []crew.Expertise{crew.ExpAPIs, crew.ExpIntegration}},
	{"integration", []crew.Expertise{crew.ExpIntegration}},
	{"integrate", []crew.Expertise{crew.ExpIntegration}},
	{"payment", []crew.Expertise{crew.ExpFinance, crew.ExpSecurity}},
	{"payments", []crew.Expertise{crew.ExpFinance, crew.ExpSecurity}},
	{"billing", []crew.Expertise{crew.ExpFinance, crew.ExpSecurity}},
	{"cost", []crew.Expertise{crew.ExpCost, crew.ExpFinance}},
	{"budget", []crew.Expertise{crew.ExpCost, crew.ExpFinance}},
	{"pricing", []crew.Expertise{crew.ExpCost, crew.ExpFinance}},
	{"roi", []crew.Expertise{crew.ExpCost, crew.ExpAnalytics}},
	{"database", []crew.Expertise{crew.ExpData}},
	{"data", []crew.Expertise{crew.ExpData, crew.ExpAnalytics}},
	{"sql", []crew.Expertise{crew.ExpData}},
	{"analytics", []crew.Expertise{crew.ExpAnalytics, crew.ExpData}},
	{"metrics", []crew.Expertise{crew.ExpAnalytics}},
	{"report", []crew.Expertise{crew.ExpAnalytics, crew.ExpCommunication}},
	{"deploy", []crew.Expertise{crew.ExpInfrastructure}},
	{"infrastructure", []crew.Expertise{crew.ExpInfrastructure}},
	{"server", []crew.Expertise{crew.ExpInfrastructure}},
	{"kubernetes", []crew.Expertise{crew.ExpInfrastructure}},
	{"docker", []crew.Expertise{crew.ExpInfrastructure}},
	{"performance", []crew.Expertise{crew.ExpPerformance, crew.ExpInfrastructure}},
	{"latency", []crew.Expertise{crew.ExpPerformance}},
	{"optimize", []crew.Expertise{crew.ExpPerformance}},
	{"ui", []crew.Expertise{crew.ExpUX}},
	{"ux", []crew.Expertise{crew.ExpUX}},
	{"frontend", []crew.Expertise{crew.ExpUX}},
	{"user", []crew.Expertise{crew.ExpUX, crew.ExpCommunication}},
	{"docs", []crew.Expertise{crew.ExpDocumentation, crew.ExpCommunication}},
	{"documentation", []crew.Expertise{crew.ExpDocumentation, crew.ExpCommunication}},
	{"readme", []crew.Expertise{crew.ExpDocumentation, crew.ExpCommunication}},
	{"announce", []crew.Expertise{crew.ExpCommunication}},
	{"release", []crew.Expertise{crew.ExpTactical, crew.ExpExecution}},
	{"ship", []crew.Expertise{crew.ExpTactical, crew.ExpExecution}},
}

var defaultExpertise = []crew.Expertise{crew.ExpTactical, crew.ExpExecution}

// AnalyzerService classifies requests into a complexity class and the crew
// that should handle them. It is pure and safe for concurrent use.
type AnalyzerService struct {
	registry *crew.Registry
}

// NewAnalyzerService creates an analyzer over the given roster.
func NewAnalyzerService(registry *crew.Registry) *AnalyzerService {
	return &AnalyzerService{registry: registry}
}

// Analyze never fails. Unmatched requests are routine and need
// tactical/execution expertise. The optional "expertise" context key adds
// comma-separated tags on top of the keyword matches; a valid "complexity"
// key replaces keyword classification, an invalid one is ignored.
func (s *AnalyzerService) Analyze(request string, hints map[string]string) orchestration.TaskAnalysis {
	text := strings.ToLower(request)

	complexity, matched := classifyComplexity(text)
	trigger := "no complexity keyword matched"
	if matched != "" {
		trigger = fmt.Sprintf("matched %q", matched)
	}
	if raw := strings.TrimSpace(hints["complexity"]); raw != "" {
		if c, err := tier.ParseComplexity(strings.ToLower(raw)); err == nil {
			complexity, matched = c, ""
			trigger = "set by complexity hint"
		}
	}
	expertise := extractExpertise(text, hints)
	selected := s.selectCrew(expertise, complexity.MaxCrewSize())

	return orchestration.TaskAnalysis{
		Complexity:        complexity,
		RequiredExpertise: expertise,
		RecommendedCrew:   selected,
		MatchedKeyword:    matched,
		Reasoning:         analysisReasoning(complexity, trigger, expertise, len(selected)),
	}
}

func classifyComplexity(text string) (tier.Complexity, string) {
	for _, level := range complexityKeywords {
		for _, kw := range level.keywords {
			if containsWord(text, kw) {
				return level.complexity, kw
			}
		}
	}
	return tier.Routine, ""
}

func extractExpertise(text string, hints map[string]string) []crew.Expertise {
	seen := make(map[crew.Expertise]bool)
	var out []crew.Expertise
	add := func(e crew.Expertise) {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}

	for _, entry := range expertiseKeywords {
		if containsWord(text, entry.keyword) {
			for _, tag := range entry.tags {
				add(tag)
			}
		}
	}
	for _, raw := range strings.Split(hints["expertise"], ",") {
		if tag := crew.Expertise(strings.TrimSpace(strings.ToLower(raw))); tag.Valid() {
			add(tag)
		}
	}

	if len(out) == 0 {
		return append([]crew.Expertise(nil), defaultExpertise...)
	}
	return out
}

// selectCrew puts the coordinator first, then every other active member whose
// expertise intersects the requirement, in registry order, capped at limit.
func (s *AnalyzerService) selectCrew(expertise []crew.Expertise, limit int) []string {
	want := make(map[crew.Expertise]bool, len(expertise))
	for _, e := range expertise {
		want[e] = true
	}

	coordinator := s.registry.Coordinator()
	selected := []string{coordinator}
	for _, m := range s.registry.Members() {
		if len(selected) >= limit {
			break
		}
		if m.ID == coordinator || !m.Active {
			continue
		}
		if m.HasAny(want) {
			selected = append(selected, m.ID)
		}
	}
	return selected
}

func analysisReasoning(c tier.Complexity, trigger string, expertise []crew.Expertise, crewSize int) string {
	tags := make([]string, len(expertise))
	for i, e := range expertise {
		tags[i] = string(e)
	}
	return fmt.Sprintf("Complexity %s (%s); expertise needed: %s; activating %d of max %d crew members.",
		c, trigger, strings.Join(tags, ", "), crewSize, c.MaxCrewSize())
}

// containsWord reports whether kw occurs in text without being embedded in a
// longer alphanumeric word. Both arguments must already be lower-case.
func containsWord(text, kw string) bool {
	for start := 0; start <= len(text)-len(kw); {
		i := strings.Index(text[start:], kw)
		if i < 0 {
			return false
		}
		i += start
		end := i + len(kw)
		if (i == 0 || !isWordByte(text[i-1])) && (end == len(text) || !isWordByte(text[end])) {
			return true
		}
		start = i + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
