package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

const costSummaryURI = "crew://costs/summary"

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			costSummaryURI,
			"Cost Summary",
			mcplib.WithResourceDescription("Recorded crew spend grouped by project"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCostSummaryResource,
	)
}

func (s *Server) handleCostSummaryResource(ctx context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	text := `{"error":"cost reader not configured"}`
	if s.deps.Cost != nil {
		summary, err := s.deps.Cost.GlobalSummary(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(summary)
		if err != nil {
			return nil, err
		}
		text = string(data)
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     text,
		},
	}, nil
}
