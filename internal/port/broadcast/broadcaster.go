// Package broadcast defines the port for pushing live usage and budget events
// to connected dashboard clients.
package broadcast

import "context"

// Event types sent to clients.
const (
	EventUsageRecorded    = "usage.recorded"
	EventRunCompleted     = "run.completed"
	EventBudgetWarning    = "budget.warning"
	EventBudgetExceeded   = "budget.exceeded"
	EventBudgetReset      = "budget.reset"
	EventWorkflowProgress = "workflow.progress"
)

// Broadcaster sends real-time events to all connected clients.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Nop discards every event.
type Nop struct{}

// BroadcastEvent implements Broadcaster.
func (Nop) BroadcastEvent(context.Context, string, any) {}
