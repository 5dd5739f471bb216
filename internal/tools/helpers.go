// Package tools implements the MCP tool handlers of archpipe.
//
// Each tool is a struct with its dependencies injected through the
// constructor, a Definition() returning the mcp.Tool schema and a Handle()
// processing the call. Tools depend on the small interfaces declared here,
// not on the concrete store or pipeline.
//
// Bad input and domain outcomes (unknown project, rejected plan, version
// conflict) come back as tool errors the host model can read and act on.
// Infrastructure failures are returned as Go errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/pipeline"
	"github.com/HendryAvila/archpipe/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// ArchitectureReader is the read side of the architecture store.
type ArchitectureReader interface {
	CurrentOrDefault(ctx context.Context, projectID string) (*arch.Architecture, error)
	History(ctx context.Context, projectID string) ([]arch.Architecture, error)
	GetSession(ctx context.Context, sessionID string) (*arch.Session, error)
}

// AuditSearcher queries the audit log.
type AuditSearcher interface {
	Search(ctx context.Context, filterText string, opts store.QueryOptions) ([]arch.AuditEntry, error)
}

// Runner runs the change pipeline.
type Runner interface {
	Run(ctx context.Context, projectID, requirement string) (*pipeline.RunResult, error)
}

// Diagrammer renders PlantUML diagrams.
type Diagrammer interface {
	Render(a arch.Architecture) (string, error)
	RenderDiff(updated arch.Architecture, d arch.ArchitectureDiff) (string, error)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// requiredString returns the trimmed argument or a tool error result.
func requiredString(req mcp.CallToolRequest, key, hint string) (string, *mcp.CallToolResult) {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("'%s' is required: %s", key, hint))
	}
	return v, nil
}

// jsonBlock renders v as an indented fenced JSON block.
func jsonBlock(v any) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return "```json\n" + string(raw) + "\n```\n", nil
}

// pipelineFailure turns a run error into a tool error with a next step.
func pipelineFailure(err error) *mcp.CallToolResult {
	hint := ""
	switch {
	case errors.Is(err, arch.ErrVersionConflict):
		hint = "Another change was committed first. Re-run the request against the new current architecture."
	case errors.Is(err, arch.ErrUpstream):
		hint = "The reasoning backend was unavailable or timed out. Retry later."
	case errors.Is(err, arch.ErrDiffGeneration):
		hint = "The architect returned an invalid diff. Rephrase the requirement more concretely and retry."
	case errors.Is(err, arch.ErrPlanGeneration):
		hint = "The task plan did not cover every diff item after one retry. Nothing was committed."
	}
	msg := "Pipeline failed: " + err.Error()
	var stageErr *pipeline.StageError
	if errors.As(err, &stageErr) {
		if i := pipeline.StageIndex(stageErr.Stage); i >= 0 {
			msg = fmt.Sprintf("Pipeline failed at %s (stage %d of %d): %v",
				stageErr.Stage, i+1, len(pipeline.StageOrder), stageErr.Err)
		}
	}
	if hint != "" {
		msg += "\n\n" + hint
	}
	return mcp.NewToolResultError(msg)
}

// formatRun renders a committed run as markdown.
func formatRun(res *pipeline.RunResult) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "## Committed %s v%d\n\n", res.ProjectID, res.Architecture.Version)
	fmt.Fprintf(&b, "- **Session**: `%s`\n", res.SessionID)
	fmt.Fprintf(&b, "- **Services**: %s\n", strings.Join(res.Architecture.ServiceNames(), ", "))
	if res.PlanAttempts > 1 {
		fmt.Fprintf(&b, "- **Plan attempts**: %d\n", res.PlanAttempts)
	}

	b.WriteString("\n### Diff\n\n")
	for _, it := range res.Diff.Items {
		fmt.Fprintf(&b, "- `%s` [%s] %s\n", it.ID, it.AffectedService, it.Description)
	}

	b.WriteString("\n### Tasks\n\n")
	b.WriteString("| ID | Title | Stream | Diff item |\n|---|---|---|---|\n")
	for _, t := range res.TaskPlan.Tasks {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", t.ID, t.Title, t.Stream, t.ArchDiffItemID)
	}

	block, err := jsonBlock(res.Architecture)
	if err != nil {
		return "", err
	}
	b.WriteString("\n### Updated architecture\n\n")
	b.WriteString(block)
	return b.String(), nil
}

// formatEntries renders audit entries as markdown, newest first.
func formatEntries(entries []arch.AuditEntry, filter string) string {
	if len(entries) == 0 {
		if filter == "" {
			return "The audit log is empty."
		}
		return fmt.Sprintf("No audit entries match %q.", filter)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d audit entries (newest first):\n\n", len(entries))
	for i, e := range entries {
		fmt.Fprintf(&b, "[%d] %s | %s | session `%s`\n    reason: %s\n    %s\n\n",
			i+1, e.CommittedAt.Format("2006-01-02 15:04:05Z07:00"), e.ProjectID, e.SessionID,
			e.Reason, e.Summary,
		)
	}
	return b.String()
}
