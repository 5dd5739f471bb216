package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// CurrentTool handles the arch_current MCP tool.
type CurrentTool struct {
	store ArchitectureReader
}

// NewCurrentTool creates a CurrentTool.
func NewCurrentTool(store ArchitectureReader) *CurrentTool {
	return &CurrentTool{store: store}
}

// Definition returns the MCP tool definition for arch_current.
func (t *CurrentTool) Definition() mcp.Tool {
	return mcp.NewTool("arch_current",
		mcp.WithDescription(
			"Load the current committed architecture of a project as JSON. "+
				"A project that was never committed returns an empty architecture at version 0.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to load"),
		),
	)
}

// Handle processes the arch_current tool call.
func (t *CurrentTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, errResult := requiredString(req, "project_id", "name the project to load")
	if errResult != nil {
		return errResult, nil
	}

	a, err := t.store.CurrentOrDefault(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading architecture: %w", err)
	}

	block, err := jsonBlock(a)
	if err != nil {
		return nil, err
	}
	header := fmt.Sprintf("Current architecture of %s (v%d, %d services):\n\n", a.ProjectID, a.Version, len(a.Services))
	return mcp.NewToolResultText(header + block), nil
}
