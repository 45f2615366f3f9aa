package http

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/crew"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/service"
)

// Version is reported by the health and version endpoints.
var Version = "0.1.0"

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Handlers holds the services the HTTP API exposes.
type Handlers struct {
	Registry     *crew.Registry
	Analyzer     *service.AnalyzerService
	Optimizer    *service.OptimizerService
	Orchestrator *service.OrchestratorService
	Coordinator  *service.CoordinatorService
	Budgets      *service.BudgetService
	Runs         *service.CrewRunService
	Usage        *service.UsageService
	Cost         *service.CostService
	// Checks are reported by /health; a failing check degrades the status
	// without failing the endpoint.
	Checks map[string]HealthCheck
}

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Version: Version}
	if len(h.Checks) > 0 {
		resp.Checks = make(map[string]string, len(h.Checks))
		for name, check := range h.Checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Crew ---

type crewEntry struct {
	crew.Member
	Current   int  `json:"current"`
	Available bool `json:"available"`
}

// ListCrew handles GET /api/v1/crew
func (h *Handlers) ListCrew(w http.ResponseWriter, _ *http.Request) {
	workload := make(map[string]crew.Workload)
	for _, wl := range h.Coordinator.Workload() {
		workload[wl.CrewID] = wl
	}
	members := h.Registry.Members()
	out := make([]crewEntry, len(members))
	for i, m := range members {
		wl := workload[m.ID]
		out[i] = crewEntry{Member: m, Current: wl.Current, Available: wl.Available()}
	}
	writeJSON(w, http.StatusOK, out)
}

// --- Analysis and optimization ---

type analyzeRequest struct {
	UserRequest string            `json:"user_request"`
	Context     map[string]string `json:"context,omitempty"`
}

// Analyze handles POST /api/v1/analyze
func (h *Handlers) Analyze(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[analyzeRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.Analyzer.Analyze(req.UserRequest, req.Context))
}

// optimizeRequest takes exactly one of: a user request to analyze first, a
// complexity with an explicit crew, or an explicit tier assignment.
type optimizeRequest struct {
	UserRequest string            `json:"user_request,omitempty"`
	Complexity  string            `json:"complexity,omitempty"`
	Crew        []string          `json:"crew,omitempty"`
	Tiers       map[string]string `json:"tiers,omitempty"`
}

// Optimize handles POST /api/v1/optimize
func (h *Handlers) Optimize(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[optimizeRequest](w, r)
	if !ok {
		return
	}

	switch {
	case len(req.Tiers) > 0:
		tiers, err := parseTiers(req.Tiers)
		if err != nil {
			writeDomainError(w, err, "", nil)
			return
		}
		if err := h.knownMembers(mapKeys(tiers)); err != nil {
			writeDomainError(w, err, "", nil)
			return
		}
		writeJSON(w, http.StatusOK, h.Optimizer.OptimizeFromTiers(tiers))

	case req.Complexity != "":
		c, err := parseComplexity(req.Complexity)
		if err != nil {
			writeDomainError(w, err, "", nil)
			return
		}
		if err := h.knownMembers(req.Crew); err != nil {
			writeDomainError(w, err, "", nil)
			return
		}
		analysis := orchestration.TaskAnalysis{Complexity: c, RecommendedCrew: req.Crew}
		writeJSON(w, http.StatusOK, h.Optimizer.Optimize(analysis, req.Crew))

	case strings.TrimSpace(req.UserRequest) != "":
		analysis := h.Analyzer.Analyze(req.UserRequest, nil)
		writeJSON(w, http.StatusOK, h.Optimizer.Optimize(analysis, analysis.RecommendedCrew))

	default:
		writeError(w, http.StatusBadRequest, "one of user_request, complexity or tiers is required")
	}
}

// Orchestrate handles POST /api/v1/orchestrate
func (h *Handlers) Orchestrate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[orchestration.Request](w, r)
	if !ok {
		return
	}
	res, err := h.Orchestrator.Orchestrate(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "", nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Runs ---

type runRequest struct {
	UserRequest  string            `json:"user_request"`
	Context      map[string]string `json:"context,omitempty"`
	TierOverride map[string]string `json:"tier_override,omitempty"`
	DryRun       bool              `json:"dry_run,omitempty"`
}

// StartRun handles POST /api/v1/projects/{id}/runs
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[runRequest](w, r)
	if !ok {
		return
	}
	override, err := parseTiers(req.TierOverride)
	if err != nil {
		writeDomainError(w, err, "", nil)
		return
	}

	res, err := h.Runs.Run(r.Context(), orchestration.RunRequest{
		ProjectID:    urlParam(r, "id"),
		UserRequest:  req.UserRequest,
		Context:      req.Context,
		TierOverride: override,
		DryRun:       req.DryRun,
	})
	if err != nil {
		// Executed runs report provider and parse failures in the body.
		if res != nil && res.Execution != nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
		writeDomainError(w, err, "", res)
		return
	}
	status := http.StatusCreated
	if res.DryRun {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// GetWorkflowRequest handles GET /api/v1/workflow-requests/{id}
func (h *Handlers) GetWorkflowRequest(w http.ResponseWriter, r *http.Request) {
	wr, err := h.Usage.GetWorkflowRequest(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "workflow request not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, wr)
}

// ListUsage handles GET /api/v1/projects/{id}/usage
func (h *Handlers) ListUsage(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit", 50)
	if !ok {
		return
	}
	events, err := h.Usage.RecentEvents(r.Context(), urlParam(r, "id"), min(limit, 500))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(events))
}

func parseTiers(raw map[string]string) (map[string]tier.CostTier, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]tier.CostTier, len(raw))
	var bad []string
	for _, id := range mapKeys(raw) {
		t := tier.CostTier(strings.ToLower(strings.TrimSpace(raw[id])))
		if !t.Valid() {
			bad = append(bad, fmt.Sprintf("%s=%q", id, raw[id]))
			continue
		}
		out[id] = t
	}
	if len(bad) > 0 {
		return nil, fmt.Errorf("%w: unknown cost tier for %s", domain.ErrValidation, strings.Join(bad, ", "))
	}
	return out, nil
}

func parseComplexity(s string) (tier.Complexity, error) {
	return tier.ParseComplexity(strings.ToLower(strings.TrimSpace(s)))
}

func (h *Handlers) knownMembers(ids []string) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one crew member is required", domain.ErrValidation)
	}
	var unknown []string
	for _, id := range ids {
		if !h.Registry.Contains(id) {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return fmt.Errorf("%w: unknown crew members %s", domain.ErrValidation, strings.Join(unknown, ", "))
	}
	return nil
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
