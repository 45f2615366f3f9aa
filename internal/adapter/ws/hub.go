// Package ws pushes live usage and budget events to dashboard clients over
// WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/port/broadcast"
)

const writeTimeout = 5 * time.Second

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// conn wraps a single WebSocket connection. An empty project receives
// events for every project.
type conn struct {
	ws      *websocket.Conn
	cancel  context.CancelFunc
	project string
}

// Hub manages all active WebSocket connections and broadcasts messages.
type Hub struct {
	mu             sync.RWMutex
	conns          map[*conn]struct{}
	allowedOrigins []string
}

// NewHub creates a new WebSocket hub. With no allowed origins any origin is
// accepted.
func NewHub(allowedOrigins ...string) *Hub {
	return &Hub{
		conns:          make(map[*conn]struct{}),
		allowedOrigins: allowedOrigins,
	}
}

// HandleWS upgrades the request to a WebSocket. The optional "project" query
// parameter restricts the connection to that project's events.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	opts := &websocket.AcceptOptions{OriginPatterns: h.allowedOrigins}
	if len(h.allowedOrigins) == 0 {
		opts.InsecureSkipVerify = true
	}
	ws, err := websocket.Accept(w, r, opts)
	if err != nil {
		slog.Error("websocket accept failed", "error", err)
		return
	}

	// The request context ends when the handler returns.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &conn{ws: ws, cancel: cancel, project: r.URL.Query().Get("project")}

	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	slog.Info("websocket connected", "remote", r.RemoteAddr, "project", c.project)

	// Read loop detects disconnects; clients never send anything we act on.
	go func() {
		defer func() {
			h.remove(c)
			_ = ws.Close(websocket.StatusNormalClosure, "")
		}()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends msg to every connection subscribed to project. An empty
// project reaches all connections.
func (h *Hub) Broadcast(ctx context.Context, project string, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		if c.project == "" || project == "" || c.project == project {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := c.ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			slog.Debug("websocket write failed", "error", err)
			h.remove(c)
		}
	}
}

// BroadcastEvent marshals payload and broadcasts it as eventType, routed by
// the payload's project_id (or budget scope) when it carries one.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}
	h.Broadcast(ctx, projectOf(data), Message{Type: eventType, Payload: data})
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := h.conns
	h.conns = make(map[*conn]struct{})
	h.mu.Unlock()

	for c := range conns {
		c.cancel()
		if c.ws != nil {
			_ = c.ws.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		c.cancel()
		delete(h.conns, c)
		slog.Info("websocket disconnected", "project", c.project)
	}
}

// routing holds the fields an event payload may carry to name its project.
type routing struct {
	ProjectID string `json:"project_id"`
	Scope     string `json:"scope"`
}

// projectOf extracts the project a marshaled payload belongs to.
func projectOf(data []byte) string {
	var r routing
	if err := json.Unmarshal(data, &r); err != nil {
		return ""
	}
	if r.ProjectID != "" {
		return r.ProjectID
	}
	return r.Scope
}

var _ broadcast.Broadcaster = (*Hub)(nil)
