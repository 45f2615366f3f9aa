package service

import (
	"errors"
	"fmt"
	"sync"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
)

// ErrCrewAtCapacity is returned when a member cannot take another assignment.
var ErrCrewAtCapacity = fmt.Errorf("%w: crew member at capacity", domain.ErrConflict)

// CoordinatorService owns the workload counters of the roster.
type CoordinatorService struct {
	registry *crew.Registry

	mu      sync.Mutex
	current map[string]int
}

// NewCoordinatorService creates a coordinator with all counters at zero.
func NewCoordinatorService(registry *crew.Registry) *CoordinatorService {
	return &CoordinatorService{
		registry: registry,
		current:  make(map[string]int),
	}
}

// Assign takes one slot from every listed member, or from none of them.
func (s *CoordinatorService) Assign(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]int, len(ids))
	for _, id := range ids {
		want[id]++
	}
	var errs []error
	for _, id := range ids {
		if want[id] == 0 {
			continue
		}
		n := want[id]
		want[id] = 0
		m, ok := s.registry.Get(id)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%w: unknown crew member %q", domain.ErrValidation, id))
		case !m.Active:
			errs = append(errs, fmt.Errorf("%w: %s is inactive", ErrCrewAtCapacity, id))
		case s.current[id]+n > m.Capacity:
			errs = append(errs, fmt.Errorf("%w: %s (%d/%d)", ErrCrewAtCapacity, id, s.current[id], m.Capacity))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for _, id := range ids {
		s.current[id]++
	}
	return nil
}

// Release returns one slot for every listed member. Counters never go
// below zero.
func (s *CoordinatorService) Release(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if s.current[id] > 0 {
			s.current[id]--
		}
	}
}

// Workload returns a snapshot of every member in registry order.
func (s *CoordinatorService) Workload() []crew.Workload {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := s.registry.Members()
	out := make([]crew.Workload, len(members))
	for i, m := range members {
		out[i] = crew.Workload{
			CrewID:   m.ID,
			Current:  s.current[m.ID],
			Capacity: m.Capacity,
			Active:   m.Active,
		}
	}
	return out
}
