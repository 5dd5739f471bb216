package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/mark3labs/mcp-go/mcp"
)

// SessionTool handles the arch_session MCP tool.
type SessionTool struct {
	store ArchitectureReader
}

// NewSessionTool creates a SessionTool.
func NewSessionTool(store ArchitectureReader) *SessionTool {
	return &SessionTool{store: store}
}

// Definition returns the MCP tool definition for arch_session.
func (t *SessionTool) Definition() mcp.Tool {
	return mcp.NewTool("arch_session",
		mcp.WithDescription(
			"Fetch a committed session by id: the diff, the updated architecture, "+
				"the task plan, the commit time and the reason.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session id returned by arch_change or listed by arch_audit"),
		),
	)
}

// Handle processes the arch_session tool call.
func (t *SessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requiredString(req, "session_id", "pass the id returned by arch_change")
	if errResult != nil {
		return errResult, nil
	}

	sess, err := t.store.GetSession(ctx, sessionID)
	if errors.Is(err, arch.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Session %q not found.", sessionID)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	block, err := jsonBlock(sess)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(block), nil
}
