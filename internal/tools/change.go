package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// ChangeTool handles the arch_change MCP tool: it runs the full
// architect → planner → commit pipeline for one requirement.
type ChangeTool struct {
	runner Runner
}

// NewChangeTool creates a ChangeTool.
func NewChangeTool(runner Runner) *ChangeTool {
	return &ChangeTool{runner: runner}
}

// Definition returns the MCP tool definition for arch_change.
func (t *ChangeTool) Definition() mcp.Tool {
	return mcp.NewTool("arch_change",
		mcp.WithDescription(
			"Apply a new requirement to a project's architecture. The architect agent proposes a minimal "+
				"diff and the updated architecture, the project-manager agent breaks the diff into tasks "+
				"(every diff item covered), and the result is committed as a new architecture version "+
				"with an audit entry. Returns the session id, diff, task plan and updated architecture.",
		),
		mcp.WithString("project_id",
			mcp.Required(),
			mcp.Description("Project whose architecture changes. New projects start from an empty version 0."),
		),
		mcp.WithString("requirement",
			mcp.Required(),
			mcp.Description("The new requirement, e.g. 'add payments service'. Stored as the commit reason."),
		),
	)
}

// Handle processes the arch_change tool call.
func (t *ChangeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	projectID, errResult := requiredString(req, "project_id", "name the project to change")
	if errResult != nil {
		return errResult, nil
	}
	requirement, errResult := requiredString(req, "requirement", "describe the new requirement")
	if errResult != nil {
		return errResult, nil
	}

	res, err := t.runner.Run(ctx, projectID, requirement)
	if err != nil {
		return pipelineFailure(err), nil
	}

	text, err := formatRun(res)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(text), nil
}
