package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/cost"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/usage"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/broadcast"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/database"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/messagequeue"
)

// Ensure mock types implement their interfaces at compile time.
var (
	_ broadcast.Broadcaster = (*mockBroadcaster)(nil)
	_ messagequeue.Queue    = (*mockQueue)(nil)
	_ database.Store        = (*mockStore)(nil)
)

type broadcastRecord struct {
	eventType string
	payload   any
}

type mockBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
}

func (m *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, broadcastRecord{eventType, payload})
}

func (m *mockBroadcaster) count(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.eventType == eventType {
			n++
		}
	}
	return n
}

type publishRecord struct {
	subject string
	data    []byte
}

type mockQueue struct {
	mu         sync.Mutex
	published  []publishRecord
	handlers   map[string]messagequeue.Handler
	publishErr error
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.publishErr != nil {
		return q.publishErr
	}
	q.published = append(q.published, publishRecord{subject, data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = make(map[string]messagequeue.Handler)
	}
	q.handlers[subject] = h
	return func() {
		q.mu.Lock()
		delete(q.handlers, subject)
		q.mu.Unlock()
	}, nil
}

// deliver invokes the subscribed handler as if a message arrived.
func (q *mockQueue) deliver(ctx context.Context, subject string, data []byte) error {
	q.mu.Lock()
	h, ok := q.handlers[subject]
	q.mu.Unlock()
	if !ok {
		return fmt.Errorf("no subscriber for %s", subject)
	}
	return h(ctx, subject, data)
}

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.published))
	for i, p := range q.published {
		out[i] = p.subject
	}
	return out
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

// mockStore keeps everything in maps. Setting err makes every call fail.
type mockStore struct {
	mu       sync.Mutex
	events   []usage.Event
	requests map[string]usage.WorkflowRequest
	budgets  map[string]budget.Config
	err      error

	seriesDays int
}

func newMockStore() *mockStore {
	return &mockStore{
		requests: make(map[string]usage.WorkflowRequest),
		budgets:  make(map[string]budget.Config),
	}
}

func (m *mockStore) InsertUsageEvent(_ context.Context, ev *usage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, *ev)
	return nil
}

func (m *mockStore) ListUsageEvents(_ context.Context, projectID string, limit int) ([]usage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []usage.Event
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if m.events[i].ProjectID == projectID {
			out = append(out, m.events[i])
		}
	}
	return out, nil
}

func (m *mockStore) CreateWorkflowRequest(_ context.Context, wr *usage.WorkflowRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.requests[wr.ID] = *wr
	return nil
}

func (m *mockStore) UpdateWorkflowRequest(_ context.Context, wr *usage.WorkflowRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.requests[wr.ID]; !ok {
		return fmt.Errorf("workflow request %s: %w", wr.ID, domain.ErrNotFound)
	}
	m.requests[wr.ID] = *wr
	return nil
}

func (m *mockStore) GetWorkflowRequest(_ context.Context, id string) (*usage.WorkflowRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	wr, ok := m.requests[id]
	if !ok {
		return nil, fmt.Errorf("workflow request %s: %w", id, domain.ErrNotFound)
	}
	return &wr, nil
}

func (m *mockStore) UpsertBudget(_ context.Context, scope string, cfg budget.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.budgets[scope] = cfg
	return nil
}

func (m *mockStore) GetBudget(_ context.Context, scope string) (*budget.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.budgets[scope]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cfg, nil
}

func (m *mockStore) ListBudgets(_ context.Context) (map[string]budget.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]budget.Config, len(m.budgets))
	for k, v := range m.budgets {
		out[k] = v
	}
	return out, nil
}

func (m *mockStore) DeleteBudget(_ context.Context, scope string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.budgets, scope)
	return nil
}

func (m *mockStore) CostSummaryGlobal(_ context.Context) ([]cost.ProjectSummary, error) {
	return nil, m.err
}

func (m *mockStore) CostSummaryByProject(_ context.Context, projectID string) (*cost.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := &cost.Summary{}
	for _, ev := range m.events {
		if ev.ProjectID == projectID {
			s.TotalCostUSD += ev.ActualCost
			s.CallCount++
		}
	}
	return s, nil
}

func (m *mockStore) CostByModel(_ context.Context, _ string) ([]cost.ModelSummary, error) {
	return nil, m.err
}

func (m *mockStore) CostByCrew(_ context.Context, _ string) ([]cost.CrewSummary, error) {
	return nil, m.err
}

func (m *mockStore) CostTimeSeries(_ context.Context, _ string, days int) ([]cost.DailyCost, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seriesDays = days
	return nil, m.err
}

func (m *mockStore) Ping(_ context.Context) error { return m.err }
func (m *mockStore) Close() error                 { return nil }
