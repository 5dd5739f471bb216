// Package resources implements MCP resource handlers for archpipe.
//
// Resources provide read-only data that the host can consume for context.
// They use URI-based addressing (arch://...) following MCP conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/store"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	projectPrefix      = "arch://projects/"
	architectureSuffix = "/architecture"
	diagramSuffix      = "/diagram"

	// RecentAuditURI lists the latest audit entries.
	RecentAuditURI = "arch://audit/recent"
)

// ArchitectureReader loads the current architecture of a project.
type ArchitectureReader interface {
	CurrentOrDefault(ctx context.Context, projectID string) (*arch.Architecture, error)
}

// AuditSearcher queries the audit log.
type AuditSearcher interface {
	Search(ctx context.Context, filterText string, opts store.QueryOptions) ([]arch.AuditEntry, error)
}

// Renderer draws an architecture as PlantUML.
type Renderer interface {
	Render(a arch.Architecture) (string, error)
}

// Handler manages archpipe resource endpoints.
type Handler struct {
	store    ArchitectureReader
	audit    AuditSearcher
	renderer Renderer
}

// NewHandler creates a resource Handler with its dependencies.
func NewHandler(store ArchitectureReader, audit AuditSearcher, renderer Renderer) *Handler {
	return &Handler{store: store, audit: audit, renderer: renderer}
}

// ArchitectureTemplate returns the resource template of a project's
// current architecture.
func (h *Handler) ArchitectureTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		projectPrefix+"{project_id}"+architectureSuffix,
		"Current architecture",
		mcp.WithTemplateDescription("Current committed architecture of a project (empty version 0 when never committed)"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// DiagramTemplate returns the resource template of a project's PlantUML
// diagram.
func (h *Handler) DiagramTemplate() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		projectPrefix+"{project_id}"+diagramSuffix,
		"Architecture diagram",
		mcp.WithTemplateDescription("PlantUML DSL of a project's current architecture"),
		mcp.WithTemplateMIMEType("text/plain"),
	)
}

// RecentAuditResource returns the resource of the latest audit entries.
func (h *Handler) RecentAuditResource() mcp.Resource {
	return mcp.NewResource(
		RecentAuditURI,
		"Recent architecture changes",
		mcp.WithResourceDescription("Most recent committed architecture changes, newest first"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleArchitecture returns the current architecture as JSON.
func (h *Handler) HandleArchitecture(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projectID := projectArg(req, architectureSuffix)
	if projectID == "" {
		return errorResource(req.Params.URI, "project_id is missing from the URI"), nil
	}

	a, err := h.store.CurrentOrDefault(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading architecture: %w", err)
	}
	return jsonResource(req.Params.URI, a)
}

// HandleDiagram returns the PlantUML DSL of the current architecture.
func (h *Handler) HandleDiagram(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	projectID := projectArg(req, diagramSuffix)
	if projectID == "" {
		return errorResource(req.Params.URI, "project_id is missing from the URI"), nil
	}

	a, err := h.store.CurrentOrDefault(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("loading architecture: %w", err)
	}
	dsl, err := h.renderer.Render(*a)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: dsl},
	}, nil
}

// HandleRecentAudit returns the latest audit entries as JSON.
func (h *Handler) HandleRecentAudit(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	entries, err := h.audit.Search(ctx, "", store.QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("reading audit log: %w", err)
	}
	return jsonResource(req.Params.URI, entries)
}

// projectArg reads project_id from the template arguments, falling back to
// parsing the URI.
func projectArg(req mcp.ReadResourceRequest, suffix string) string {
	switch v := req.Params.Arguments["project_id"].(type) {
	case string:
		if v != "" {
			return v
		}
	case []string:
		if len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	uri := req.Params.URI
	if !strings.HasPrefix(uri, projectPrefix) || !strings.HasSuffix(uri, suffix) {
		return ""
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, projectPrefix), suffix)
	if strings.Contains(id, "/") {
		return ""
	}
	return id
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling resource: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
