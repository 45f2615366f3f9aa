// Package mcp exposes the crew pipeline to AI agents over the Model Context
// Protocol (streamable HTTP transport).
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/budget"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/cost"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
)

// TaskAnalyzer classifies a request without side effects.
type TaskAnalyzer interface {
	Analyze(request string, hints map[string]string) orchestration.TaskAnalysis
}

// Orchestrator combines analysis and tier optimization.
type Orchestrator interface {
	Orchestrate(ctx context.Context, req orchestration.Request) (*orchestration.Result, error)
}

// BudgetChecker reports a scope's budget status for a prospective cost.
type BudgetChecker interface {
	CheckBudget(scope string, estimatedCost float64) budget.Status
}

// CostReader reads aggregated spend from the usage ledger.
type CostReader interface {
	GlobalSummary(ctx context.Context) ([]cost.ProjectSummary, error)
	ProjectSummary(ctx context.Context, projectID string) (*cost.Summary, error)
}

// ServerConfig holds the listener and identity of the MCP server.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	// APIKey guards the endpoint. Empty disables auth.
	APIKey string
}

// ServerDeps are the services the tools call into. Any may be nil; the
// matching tool then reports itself as not configured.
type ServerDeps struct {
	Analyzer     TaskAnalyzer
	Orchestrator Orchestrator
	Budgets      BudgetChecker
	Cost         CostReader
}

// Server wraps an mcp-go server and its HTTP listener.
type Server struct {
	cfg        ServerConfig
	deps       ServerDeps
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// NewServer creates the MCP server and registers its tools and resources.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.mcpServer = mcpserver.NewMCPServer(cfg.Name, cfg.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithRecovery(),
	)
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler returns the authenticated streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.cfg.APIKey, mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithStateLess(true),
	))
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("mcp listen %s: %w", s.cfg.Addr, err)
	}
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("mcp server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server error", "error", err)
		}
	}()
	return nil
}

// Stop gracefully shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	slog.Info("mcp server stopping")
	return s.httpServer.Shutdown(ctx)
}
