package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/broadcast"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/messagequeue"
)

// DefaultUsageRingSize is how many events the in-memory fallback keeps.
const DefaultUsageRingSize = 1024

// UsageService is the append-only cost ledger. Writes that the store rejects
// are kept in a bounded in-memory ring so a database outage never fails a run.
type UsageService struct {
	store database.Store
	queue messagequeue.Queue
	hub   broadcast.Broadcaster
	now   func() time.Time

	mu       sync.Mutex
	ring     []usage.Event
	ringSize int
	requests map[string]*usage.WorkflowRequest // not persisted by the store
}

// NewUsageService creates a ledger. store, queue and hub may be nil.
func NewUsageService(store database.Store, queue messagequeue.Queue, hub broadcast.Broadcaster) *UsageService {
	if hub == nil {
		hub = broadcast.Nop{}
	}
	return &UsageService{
		store:    store,
		queue:    queue,
		hub:      hub,
		now:      time.Now,
		ringSize: DefaultUsageRingSize,
		requests: make(map[string]*usage.WorkflowRequest),
	}
}

// BeginRequest creates a pending workflow request for a run.
func (s *UsageService) BeginRequest(ctx context.Context, projectID string, crewIDs []string, estimatedCost float64) (*usage.WorkflowRequest, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id is required", domain.ErrValidation)
	}
	wr := &usage.WorkflowRequest{
		ID:            uuid.New().String(),
		ProjectID:     projectID,
		CrewIDs:       append([]string(nil), crewIDs...),
		Status:        usage.StatusPending,
		EstimatedCost: estimatedCost,
		CreatedAt:     s.now().UTC(),
	}
	s.saveRequest(ctx, wr, true)
	return wr, nil
}

// MarkRunning moves a request from pending to running.
func (s *UsageService) MarkRunning(ctx context.Context, wr *usage.WorkflowRequest) error {
	if err := wr.Start(s.now().UTC()); err != nil {
		return err
	}
	s.saveRequest(ctx, wr, false)
	s.hub.BroadcastEvent(ctx, broadcast.EventWorkflowProgress, wr)
	return nil
}

// CompleteRequest records the terminal outcome of a request exactly once and
// announces it.
func (s *UsageService) CompleteRequest(ctx context.Context, wr *usage.WorkflowRequest, status usage.Status, actualCost float64, errMsg string, apiCallsSaved int) error {
	if err := wr.Complete(status, actualCost, errMsg, s.now().UTC()); err != nil {
		return err
	}
	s.saveRequest(ctx, wr, false)

	payload := messagequeue.RunCompletedPayload{
		WorkflowRequestID: wr.ID,
		ProjectID:         wr.ProjectID,
		CrewIDs:           wr.CrewIDs,
		Status:            string(wr.Status),
		EstimatedCost:     wr.EstimatedCost,
		ActualCost:        wr.ActualCost,
		APICallsSaved:     apiCallsSaved,
	}
	s.publish(ctx, messagequeue.SubjectRunCompleted, payload)
	s.hub.BroadcastEvent(ctx, broadcast.EventRunCompleted, payload)
	return nil
}

// GetWorkflowRequest looks a request up in memory first, then in the store.
func (s *UsageService) GetWorkflowRequest(ctx context.Context, id string) (*usage.WorkflowRequest, error) {
	s.mu.Lock()
	if wr, ok := s.requests[id]; ok {
		cp := *wr
		s.mu.Unlock()
		return &cp, nil
	}
	s.mu.Unlock()

	if s.store == nil {
		return nil, fmt.Errorf("workflow request %s: %w", id, domain.ErrNotFound)
	}
	return s.store.GetWorkflowRequest(ctx, id)
}

// RecordEvent appends a usage event. Missing ids, timestamps and totals are
// filled in.
func (s *UsageService) RecordEvent(ctx context.Context, ev *usage.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now().UTC()
	}
	if ev.TotalTokens == 0 {
		ev.TotalTokens = ev.PromptTokens + ev.CompletionTokens
	}

	s.remember(*ev)
	if s.store != nil {
		if err := s.store.InsertUsageEvent(ctx, ev); err != nil {
			slog.Warn("usage event not persisted, kept in memory", "event_id", ev.ID, "crew_id", ev.CrewID, "error", err)
		}
	}

	s.publish(ctx, messagequeue.SubjectUsageRecorded, messagequeue.UsageRecordedPayload{
		EventID:           ev.ID,
		ProjectID:         ev.ProjectID,
		WorkflowRequestID: ev.WorkflowRequestID,
		CrewID:            ev.CrewID,
		Model:             ev.Model,
		Tier:              string(ev.Tier),
		PromptTokens:      ev.PromptTokens,
		CompletionTokens:  ev.CompletionTokens,
		CostUSD:           ev.ActualCost,
		Status:            string(ev.Status),
	})
	s.hub.BroadcastEvent(ctx, broadcast.EventUsageRecorded, ev)
}

// RecentEvents returns the newest events of a project, newest first. When the
// store is unavailable the in-memory ring answers instead.
func (s *UsageService) RecentEvents(ctx context.Context, projectID string, limit int) ([]usage.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	if s.store != nil {
		events, err := s.store.ListUsageEvents(ctx, projectID, limit)
		if err == nil {
			return events, nil
		}
		slog.Warn("list usage events failed, serving from memory", "project_id", projectID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []usage.Event
	for i := len(s.ring) - 1; i >= 0 && len(out) < limit; i-- {
		if s.ring[i].ProjectID == projectID {
			out = append(out, s.ring[i])
		}
	}
	return out, nil
}

func (s *UsageService) remember(ev usage.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) >= s.ringSize {
		n := copy(s.ring, s.ring[1:])
		s.ring = s.ring[:n]
	}
	s.ring = append(s.ring, ev)
}

// saveRequest persists wr. Requests the store cannot take stay in memory
// for the rest of their life.
func (s *UsageService) saveRequest(ctx context.Context, wr *usage.WorkflowRequest, create bool) {
	s.mu.Lock()
	_, inMemory := s.requests[wr.ID]
	s.mu.Unlock()

	if s.store != nil && !inMemory {
		var err error
		if create {
			err = s.store.CreateWorkflowRequest(ctx, wr)
		} else {
			err = s.store.UpdateWorkflowRequest(ctx, wr)
		}
		if err == nil {
			return
		}
		slog.Warn("workflow request not persisted, kept in memory", "workflow_request_id", wr.ID, "error", err)
	}

	cp := *wr
	s.mu.Lock()
	s.requests[wr.ID] = &cp
	s.mu.Unlock()
}

func (s *UsageService) publish(ctx context.Context, subject string, payload any) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal payload", "subject", subject, "error", err)
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("publish failed", "subject", subject, "error", err)
	}
}
