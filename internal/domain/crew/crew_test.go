package crew_test

import (
	"errors"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

func TestDefaultRegistry(t *testing.T) {
	r := crew.DefaultRegistry()
	if r.Coordinator() != crew.CaptainPicard {
		t.Errorf("coordinator = %q, want %q", r.Coordinator(), crew.CaptainPicard)
	}
	if r.Deputy() != crew.CommanderRiker {
		t.Errorf("deputy = %q, want %q", r.Deputy(), crew.CommanderRiker)
	}
	members := r.Members()
	if len(members) != 10 {
		t.Fatalf("expected 10 members, got %d", len(members))
	}
	if members[0].ID != crew.CaptainPicard {
		t.Errorf("first member = %q, want coordinator", members[0].ID)
	}
	if r.Position(crew.Quark) != 9 {
		t.Errorf("Position(quark) = %d, want 9", r.Position(crew.Quark))
	}
	if r.Position("nobody") != -1 {
		t.Error("expected -1 for unknown id")
	}
}

func TestRegistryMembersIsCopy(t *testing.T) {
	r := crew.DefaultRegistry()
	m := r.Members()
	m[0].ID = "mutated"
	if r.Members()[0].ID != crew.CaptainPicard {
		t.Fatal("Members() must return a copy")
	}
}

func TestNewRegistryRejects(t *testing.T) {
	coord := crew.Member{ID: "c", Role: crew.RoleCoordinator}
	dep := crew.Member{ID: "d", Role: crew.RoleDeputy}
	tests := []struct {
		name    string
		members []crew.Member
	}{
		{"empty", nil},
		{"no deputy", []crew.Member{coord}},
		{"no coordinator", []crew.Member{dep}},
		{"duplicate", []crew.Member{coord, dep, {ID: "d"}}},
		{"two coordinators", []crew.Member{coord, dep, {ID: "x", Role: crew.RoleCoordinator}}},
		{"missing id", []crew.Member{coord, dep, {}}},
		{"bad tier", []crew.Member{coord, dep, {ID: "x", CostTier: "gold"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crew.NewRegistry(tt.members)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestMemberHasAny(t *testing.T) {
	m := crew.Member{Expertise: []crew.Expertise{crew.ExpSecurity, crew.ExpTesting}}
	if !m.HasAny(map[crew.Expertise]bool{crew.ExpTesting: true}) {
		t.Error("expected match on testing")
	}
	if m.HasAny(map[crew.Expertise]bool{crew.ExpFinance: true}) {
		t.Error("unexpected match on finance")
	}
}

func TestParseConfig(t *testing.T) {
	data := []byte(`{
		"id": "commander_data",
		"system_prompt": "You are Data.",
		"model": "openai/gpt-4o",
		"temperature": 0.3,
		"max_tokens": 1024,
		"tiered_models": {"budget": "openai/gpt-4o-mini"}
	}`)
	cfg, err := crew.ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if m, ok := cfg.ModelForTier(tier.Budget); !ok || m != "openai/gpt-4o-mini" {
		t.Errorf("ModelForTier(budget) = %q, %v", m, ok)
	}
	if m, ok := cfg.ModelForTier(tier.Premium); ok || m != "openai/gpt-4o" {
		t.Errorf("ModelForTier(premium) = %q, %v; want fallback to model", m, ok)
	}
}

func TestParseConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"unknown field", `{"id":"a","system_prompt":"p","model":"m","temperature":0.5,"max_tokens":10,"extra":1}`},
		{"missing prompt", `{"id":"a","model":"m","temperature":0.5,"max_tokens":10}`},
		{"missing model", `{"id":"a","system_prompt":"p","temperature":0.5,"max_tokens":10}`},
		{"temperature", `{"id":"a","system_prompt":"p","model":"m","temperature":3,"max_tokens":10}`},
		{"max tokens", `{"id":"a","system_prompt":"p","model":"m","temperature":0.5,"max_tokens":0}`},
		{"bad tier", `{"id":"a","system_prompt":"p","model":"m","temperature":0.5,"max_tokens":10,"tiered_models":{"gold":"x"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := crew.ParseConfig([]byte(tt.data))
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}
