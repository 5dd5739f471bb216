package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// HistoryTool handles the arch_history MCP tool.
type HistoryTool struct {
	store ArchitectureReader
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(store ArchitectureReader) *HistoryTool {
	return &HistoryTool{store: store}
}

// Definition returns the MCP tool definition for arch_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("arch_history",
		mcp.WithDescription("List every committed architecture version of a project, oldest first."),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project to inspect"),
		),
	)
}

// Handle processes the arch_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, errResult := requiredString(req, "project_id", "name the project to inspect")
	if errResult != nil {
		return errResult, nil
	}

	hist, err := t.store.History(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	if len(hist) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("Project %s has no committed architecture yet.", projectID)), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s has %d committed versions:\n\n", projectID, len(hist))
	for _, a := range hist {
		fmt.Fprintf(&b, "- v%d: %s\n", a.Version, strings.Join(a.ServiceNames(), ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}
