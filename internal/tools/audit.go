package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/HendryAvila/archpipe/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

// AuditTool handles the arch_audit MCP tool.
type AuditTool struct {
	audit AuditSearcher
	limit int
}

// NewAuditTool creates an AuditTool returning at most limit entries by default.
func NewAuditTool(audit AuditSearcher, limit int) *AuditTool {
	if limit <= 0 {
		limit = 20
	}
	return &AuditTool{audit: audit, limit: limit}
}

// Definition returns the MCP tool definition for arch_audit.
func (t *AuditTool) Definition() mcp.Tool {
	return mcp.NewTool("arch_audit",
		mcp.WithDescription(
			"Search the audit log of committed architecture changes. Matches keywords and substrings "+
				"in the commit reason and the change summary (services, diff items, task titles). "+
				"Results are newest first. An empty query lists the most recent changes.",
		),
		mcp.WithString("query",
			mcp.Description("Keywords, e.g. 'payments' or 'orders database'. Leave empty for recent changes."),
		),
		mcp.WithString("project_id",
			mcp.Description("Only return changes of this project"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Max results (default and max: %d)", t.limit)),
		),
	)
}

// Handle processes the arch_audit tool call.
func (t *AuditTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := strings.TrimSpace(req.GetString("query", ""))
	limit := intArg(req, "limit", t.limit)
	if limit <= 0 || limit > t.limit {
		limit = t.limit
	}

	entries, err := t.audit.Search(ctx, query, store.QueryOptions{
		ProjectID: strings.TrimSpace(req.GetString("project_id", "")),
		Limit:     limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching audit log: %w", err)
	}
	return mcp.NewToolResultText(formatEntries(entries, query)), nil
}
