package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/mark3labs/mcp-go/mcp"
)

// DiagramTool handles the arch_diagram MCP tool.
type DiagramTool struct {
	store    ArchitectureReader
	renderer Diagrammer
}

// NewDiagramTool creates a DiagramTool.
func NewDiagramTool(store ArchitectureReader, renderer Diagrammer) *DiagramTool {
	return &DiagramTool{store: store, renderer: renderer}
}

// Definition returns the MCP tool definition for arch_diagram.
func (t *DiagramTool) Definition() mcp.Tool {
	return mcp.NewTool("arch_diagram",
		mcp.WithDescription(
			"Generate PlantUML DSL for an architecture. With `session_id`, renders the delta of that "+
				"committed session (changed services highlighted). Otherwise renders a project's "+
				"current architecture, or a specific `version`. The DSL is text only; render it with PlantUML.",
		),
		mcp.WithString("project_id",
			mcp.Description("Project to draw. Required unless session_id is given."),
		),
		mcp.WithNumber("version",
			mcp.Description("Committed version to draw (default: current)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Draw the delta committed by this session instead"),
		),
	)
}

// Handle processes the arch_diagram tool call.
func (t *DiagramTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if sessionID := req.GetString("session_id", ""); sessionID != "" {
		return t.delta(ctx, sessionID)
	}

	projectID, errResult := requiredString(req, "project_id", "name the project to draw, or pass session_id")
	if errResult != nil {
		return errResult, nil
	}

	var target *arch.Architecture
	if version := intArg(req, "version", -1); version >= 0 {
		hist, err := t.store.History(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("listing history: %w", err)
		}
		for i := range hist {
			if hist[i].Version == version {
				target = &hist[i]
				break
			}
		}
		if target == nil && version == 0 {
			target = arch.Empty(projectID)
		}
		if target == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Project %s has no committed version %d.", projectID, version)), nil
		}
	} else {
		a, err := t.store.CurrentOrDefault(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("loading architecture: %w", err)
		}
		target = a
	}

	dsl, err := t.renderer.Render(*target)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText("```plantuml\n" + dsl + "```\n"), nil
}

func (t *DiagramTool) delta(ctx context.Context, sessionID string) (*mcp.CallToolResult, error) {
	sess, err := t.store.GetSession(ctx, sessionID)
	if errors.Is(err, arch.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Session %q not found.", sessionID)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	dsl, err := t.renderer.RenderDiff(sess.UpdatedArchitecture, sess.Diff)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText("```plantuml\n" + dsl + "```\n"), nil
}
