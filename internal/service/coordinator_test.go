package service

import (
	"errors"
	"testing"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
)

func workloadOf(t *testing.T, s *CoordinatorService, id string) crew.Workload {
	t.Helper()
	for _, w := range s.Workload() {
		if w.CrewID == id {
			return w
		}
	}
	t.Fatalf("no workload for %s", id)
	return crew.Workload{}
}

func TestCoordinatorAssignRelease(t *testing.T) {
	s := NewCoordinatorService(crew.DefaultRegistry())
	ids := []string{crew.CaptainPicard, crew.LieutenantWorf}

	if err := s.Assign(ids); err != nil {
		t.Fatal(err)
	}
	if w := workloadOf(t, s, crew.LieutenantWorf); w.Current != 1 || w.Capacity != 6 {
		t.Fatalf("worf workload = %+v", w)
	}
	s.Release(ids)
	s.Release(ids)
	if w := workloadOf(t, s, crew.LieutenantWorf); w.Current != 0 {
		t.Fatalf("release went below zero: %+v", w)
	}
}

func TestCoordinatorAssignAllOrNothing(t *testing.T) {
	s := NewCoordinatorService(crew.DefaultRegistry())
	for range 6 {
		if err := s.Assign([]string{crew.LieutenantWorf}); err != nil {
			t.Fatal(err)
		}
	}

	err := s.Assign([]string{crew.CaptainPicard, crew.LieutenantWorf})
	if !errors.Is(err, ErrCrewAtCapacity) || !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("want capacity conflict, got %v", err)
	}
	if w := workloadOf(t, s, crew.CaptainPicard); w.Current != 0 {
		t.Fatalf("partial assignment leaked: %+v", w)
	}
}

func TestCoordinatorAssignErrors(t *testing.T) {
	members := crew.DefaultRegistry().Members()
	for i := range members {
		if members[i].ID == crew.Quark {
			members[i].Active = false
		}
	}
	reg, err := crew.NewRegistry(members)
	if err != nil {
		t.Fatal(err)
	}
	s := NewCoordinatorService(reg)

	tests := []struct {
		name string
		ids  []string
		want error
	}{
		{"unknown", []string{"wesley_crusher"}, domain.ErrValidation},
		{"inactive", []string{crew.Quark}, ErrCrewAtCapacity},
		{"duplicates beyond capacity", []string{
			crew.ChiefOBrien, crew.ChiefOBrien, crew.ChiefOBrien, crew.ChiefOBrien,
			crew.ChiefOBrien, crew.ChiefOBrien, crew.ChiefOBrien,
		}, ErrCrewAtCapacity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.Assign(tt.ids); !errors.Is(err, tt.want) {
				t.Fatalf("Assign(%v) = %v, want %v", tt.ids, err, tt.want)
			}
		})
	}
}
