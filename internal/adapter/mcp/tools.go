package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/orchestration"
	"github.com/familiarcat/openrouter-crew-platform-sub004/internal/domain/tier"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.analyzeTaskTool(),
		s.orchestrateTool(),
		s.budgetStatusTool(),
		s.costSummaryTool(),
	)
}

func (s *Server) analyzeTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("analyze_task",
		mcplib.WithDescription("Classify a request's complexity and recommend crew members"),
		mcplib.WithString("request",
			mcplib.Required(),
			mcplib.Description("The natural-language request to analyze"),
		),
		mcplib.WithObject("hints",
			mcplib.Description("Optional string key/value hints merged into expertise detection"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleAnalyzeTask}
}

func (s *Server) orchestrateTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("orchestrate",
		mcplib.WithDescription("Select crew members and cost tiers for a request and estimate its cost"),
		mcplib.WithString("request",
			mcplib.Required(),
			mcplib.Description("The natural-language request to orchestrate"),
		),
		mcplib.WithObject("tier_override",
			mcplib.Description("Optional map of crew member id to cost tier (premium, standard, budget, ultra_budget)"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleOrchestrate}
}

func (s *Server) budgetStatusTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("budget_status",
		mcplib.WithDescription("Report a project's spend and whether a prospective cost fits its budget"),
		mcplib.WithString("project_id",
			mcplib.Required(),
			mcplib.Description("The budget scope, usually a project id"),
		),
		mcplib.WithNumber("estimated_cost",
			mcplib.Description("Prospective cost in USD to check against the limits"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleBudgetStatus}
}

func (s *Server) costSummaryTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cost_summary",
		mcplib.WithDescription("Get recorded spend for one project, or for all projects when project_id is omitted"),
		mcplib.WithString("project_id",
			mcplib.Description("Restrict the summary to this project"),
		),
	)
	return mcpserver.ServerTool{Tool: tool, Handler: s.handleCostSummary}
}

func (s *Server) handleAnalyzeTask(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Analyzer == nil {
		return mcplib.NewToolResultError("analyzer not configured"), nil
	}
	args := req.GetArguments()
	request, _ := args["request"].(string)
	if strings.TrimSpace(request) == "" {
		return mcplib.NewToolResultError("request is required"), nil
	}
	hints, err := stringMap(args["hints"])
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid hints", err), nil
	}
	return marshalResult(s.deps.Analyzer.Analyze(request, hints), "analysis")
}

func (s *Server) handleOrchestrate(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Orchestrator == nil {
		return mcplib.NewToolResultError("orchestrator not configured"), nil
	}
	args := req.GetArguments()
	request, _ := args["request"].(string)
	if strings.TrimSpace(request) == "" {
		return mcplib.NewToolResultError("request is required"), nil
	}
	raw, err := stringMap(args["tier_override"])
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("invalid tier_override", err), nil
	}
	var override map[string]tier.CostTier
	if len(raw) > 0 {
		override = make(map[string]tier.CostTier, len(raw))
		for id, v := range raw {
			t, err := tier.ParseCostTier(strings.ToLower(strings.TrimSpace(v)))
			if err != nil {
				return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("invalid tier for %s", id), err), nil
			}
			override[id] = t
		}
	}
	res, err := s.deps.Orchestrator.Orchestrate(ctx, orchestration.Request{
		UserRequest:  request,
		TierOverride: override,
	})
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("orchestration failed", err), nil
	}
	return marshalResult(res, "orchestration")
}

func (s *Server) handleBudgetStatus(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Budgets == nil {
		return mcplib.NewToolResultError("budgets not configured"), nil
	}
	args := req.GetArguments()
	projectID, ok := args["project_id"].(string)
	if !ok || projectID == "" {
		return mcplib.NewToolResultError("project_id is required"), nil
	}
	estimate, _ := args["estimated_cost"].(float64)
	if estimate < 0 {
		return mcplib.NewToolResultError("estimated_cost must not be negative"), nil
	}
	return marshalResult(s.deps.Budgets.CheckBudget(projectID, estimate), "budget status")
}

func (s *Server) handleCostSummary(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Cost == nil {
		return mcplib.NewToolResultError("cost reader not configured"), nil
	}
	projectID, _ := req.GetArguments()["project_id"].(string)
	if projectID == "" {
		summary, err := s.deps.Cost.GlobalSummary(ctx)
		if err != nil {
			return mcplib.NewToolResultErrorFromErr("failed to get cost summary", err), nil
		}
		return marshalResult(summary, "cost summary")
	}
	summary, err := s.deps.Cost.ProjectSummary(ctx, projectID)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get cost summary for %s", projectID), err,
		), nil
	}
	return marshalResult(summary, "cost summary")
}

// stringMap accepts a JSON object argument whose values are strings.
func stringMap(v any) (map[string]string, error) {
	if v == nil {
		return nil, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected an object, got %T", v)
	}
	out := make(map[string]string, len(obj))
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, ok := obj[k].(string)
		if !ok {
			return nil, fmt.Errorf("value for %q must be a string", k)
		}
		out[k] = s
	}
	return out, nil
}

func marshalResult(v any, what string) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal "+what, err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
