package usage_test

import (
	"errors"
	"testing"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
)

func TestWorkflowRequestLifecycle(t *testing.T) {
	now := time.Now()
	w := &usage.WorkflowRequest{ID: "wr-1", Status: usage.StatusPending}

	if err := w.Start(now); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if w.Status != usage.StatusRunning || w.StartedAt == nil {
		t.Fatalf("expected running with start time, got %+v", w)
	}
	if err := w.Start(now); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Start: expected ErrConflict, got %v", err)
	}

	if err := w.Complete(usage.StatusSuccess, 0.02, "", now); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if w.CompletedAt == nil || w.ActualCost != 0.02 {
		t.Fatalf("unexpected completion state: %+v", w)
	}
	if err := w.Complete(usage.StatusFailed, 0, "late", now); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second Complete: expected ErrConflict, got %v", err)
	}
	if w.Status != usage.StatusSuccess {
		t.Fatalf("status changed after second Complete: %s", w.Status)
	}
}

func TestCompleteFromPending(t *testing.T) {
	w := &usage.WorkflowRequest{ID: "wr-2", Status: usage.StatusPending}
	if err := w.Complete(usage.StatusCancelled, 0, "cancelled before start", time.Now()); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestCompleteRejectsNonTerminal(t *testing.T) {
	w := &usage.WorkflowRequest{ID: "wr-3", Status: usage.StatusRunning}
	if err := w.Complete(usage.StatusRunning, 0, "", time.Now()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	tests := []struct {
		s    usage.Status
		want bool
	}{
		{usage.StatusPending, false},
		{usage.StatusRunning, false},
		{usage.StatusSuccess, true},
		{usage.StatusFailed, true},
		{usage.StatusTimeout, true},
		{usage.StatusCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.s), func(t *testing.T) {
			if got := tt.s.Terminal(); got != tt.want {
				t.Errorf("Terminal() = %v, want %v", got, tt.want)
			}
		})
	}
}
