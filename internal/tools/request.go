package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/archpipe/internal/dispatch"
	"github.com/HendryAvila/archpipe/internal/pipeline"
	"github.com/mark3labs/mcp-go/mcp"
)

// RequestTool handles the arch_request MCP tool: a single entry point that
// routes free text to the change pipeline or to the audit log.
type RequestTool struct {
	dispatcher *dispatch.Dispatcher
}

// NewRequestTool creates a RequestTool.
func NewRequestTool(d *dispatch.Dispatcher) *RequestTool {
	return &RequestTool{dispatcher: d}
}

// Definition returns the MCP tool definition for arch_request.
func (t *RequestTool) Definition() mcp.Tool {
	return mcp.NewTool("arch_request",
		mcp.WithDescription(
			"Route a free-text request. New requirements ('Add feature X') run the change pipeline "+
				"for project_id; questions about past changes ('Why did we add payments?') search the "+
				"audit log. Set `intent` to force the route.",
		),
		mcp.WithString("text",
			mcp.Required(),
			mcp.Description("The request in plain language"),
		),
		mcp.WithString("project_id",
			mcp.Description("Project to change. Required when the request is a change."),
		),
		mcp.WithString("intent",
			mcp.Description("Route override"),
			mcp.Enum("auto", "change", "audit"),
		),
	)
}

// Handle processes the arch_request tool call.
func (t *RequestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, errResult := requiredString(req, "text", "describe the change or the question")
	if errResult != nil {
		return errResult, nil
	}
	intent, err := dispatch.ParseIntent(req.GetString("intent", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := t.dispatcher.Dispatch(ctx, dispatch.Request{
		ProjectID: req.GetString("project_id", ""),
		Text:      text,
		Intent:    intent,
	})
	if err != nil {
		var stageErr *pipeline.StageError
		if errors.As(err, &stageErr) {
			return pipelineFailure(err), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}

	switch resp.Intent {
	case dispatch.IntentChange:
		out, err := formatRun(resp.Run)
		if err != nil {
			return nil, err
		}
		return mcp.NewToolResultText(out), nil
	default:
		header := fmt.Sprintf("Audit search for %q\n\n", resp.Filter)
		return mcp.NewToolResultText(header + formatEntries(resp.Entries, resp.Filter)), nil
	}
}
