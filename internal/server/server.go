// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it creates concrete implementations and
// injects them into the tools, prompts and resources that depend on
// abstractions. No business logic lives here, only wiring.
package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/HendryAvila/archpipe/internal/config"
	"github.com/HendryAvila/archpipe/internal/dispatch"
	"github.com/HendryAvila/archpipe/internal/llm"
	"github.com/HendryAvila/archpipe/internal/logging"
	"github.com/HendryAvila/archpipe/internal/pipeline"
	"github.com/HendryAvila/archpipe/internal/prompts"
	"github.com/HendryAvila/archpipe/internal/reasoner"
	"github.com/HendryAvila/archpipe/internal/render"
	"github.com/HendryAvila/archpipe/internal/resources"
	"github.com/HendryAvila/archpipe/internal/store"
	"github.com/HendryAvila/archpipe/internal/tools"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App bundles the MCP server with the components the CLI drives directly.
type App struct {
	MCP        *server.MCPServer
	Pipeline   *pipeline.Coordinator
	Dispatcher *dispatch.Dispatcher
	Store      *store.ArchitectureStore
	Audit      *store.AuditLog

	db       *store.DB
	renderer *render.Renderer
	clients []llm.Client
	log     *logging.Logger
}

// New resolves every dependency from cfg and registers all tools, prompts
// and resources. Close must be called on shutdown.
func New(ctx context.Context, cfg config.Config, log *logging.Logger) (*App, error) {
	log = logging.OrNop(log)

	db, err := store.Open(store.Config{DataDir: cfg.DataDir, MaxQueryResults: cfg.AuditQueryLimit})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	audit := store.NewAuditLog(db)
	archStore := store.NewArchitectureStore(db, audit)

	architectLLM, plannerLLM, err := newClients(ctx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	app := &App{
		Store:   archStore,
		Audit:   audit,
		db:      db,
		clients: []llm.Client{architectLLM, plannerLLM},
		log:     log,
	}

	architect := reasoner.NewArchitect(llm.WithHook(architectLLM, llm.NewLogHook(log, architectLLM.Name())))
	planner := reasoner.NewTaskMaster(llm.WithHook(plannerLLM, llm.NewLogHook(log, plannerLLM.Name())))

	app.Pipeline = pipeline.New(archStore, architect, planner, pipeline.Options{
		ReasonerTimeout: cfg.ReasonerTimeout,
		Logger:          log,
	})
	app.Dispatcher = dispatch.New(app.Pipeline, audit, log)

	renderer, err := render.NewRenderer(render.DefaultCacheSize)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("creating diagram renderer: %w", err)
	}
	app.renderer = renderer

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"archpipe",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register pipeline tools ---

	changeTool := tools.NewChangeTool(app.Pipeline)
	s.AddTool(changeTool.Definition(), changeTool.Handle)

	requestTool := tools.NewRequestTool(app.Dispatcher)
	s.AddTool(requestTool.Definition(), requestTool.Handle)

	// --- Register read-side tools ---

	currentTool := tools.NewCurrentTool(archStore)
	s.AddTool(currentTool.Definition(), currentTool.Handle)

	historyTool := tools.NewHistoryTool(archStore)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	sessionTool := tools.NewSessionTool(archStore)
	s.AddTool(sessionTool.Definition(), sessionTool.Handle)

	diagramTool := tools.NewDiagramTool(archStore, renderer)
	s.AddTool(diagramTool.Definition(), diagramTool.Handle)

	auditTool := tools.NewAuditTool(audit, cfg.AuditQueryLimit)
	s.AddTool(auditTool.Definition(), auditTool.Handle)

	// --- Register prompts ---

	changePrompt := prompts.NewChangePrompt()
	s.AddPrompt(changePrompt.Definition(), changePrompt.Handle)

	auditPrompt := prompts.NewAuditPrompt()
	s.AddPrompt(auditPrompt.Definition(), auditPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(archStore, audit, renderer)
	s.AddResourceTemplate(resourceHandler.ArchitectureTemplate(), resourceHandler.HandleArchitecture)
	s.AddResourceTemplate(resourceHandler.DiagramTemplate(), resourceHandler.HandleDiagram)
	s.AddResource(resourceHandler.RecentAuditResource(), resourceHandler.HandleRecentAudit)

	app.MCP = s
	log.Info("archpipe ready",
		"version", Version,
		"backend", string(cfg.Backend),
		"architect", architectLLM.Name(),
		"planner", plannerLLM.Name(),
		"data_dir", cfg.DataDir,
	)
	return app, nil
}

// Health is a point-in-time status of a running App.
type Health struct {
	Version        string `json:"version"`
	Database       string `json:"database"`
	AuditEntries   int    `json:"audit_entries"`
	CachedDiagrams int    `json:"cached_diagrams"`
}

// Health pings the database and reports audit and diagram cache sizes.
func (a *App) Health(ctx context.Context) (*Health, error) {
	if a.db == nil {
		return nil, fmt.Errorf("app is closed")
	}
	if err := a.db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	n, err := a.Audit.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Health{
		Version:        Version,
		Database:       "ok",
		AuditEntries:   n,
		CachedDiagrams: a.renderer.Len(),
	}, nil
}

// Close releases the LLM clients and the database. It is safe to call more
// than once.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.clients {
		if c != nil {
			errs = append(errs, c.Close())
		}
	}
	a.clients = nil
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	a.log.Sync()
	return errors.Join(errs...)
}

// newClients builds the architect and planner clients for the configured
// backend. The architect runs on the larger model.
func newClients(ctx context.Context, cfg config.Config) (llm.Client, llm.Client, error) {
	if cfg.Backend == config.BackendFake {
		return llm.NewFakeClient(), llm.NewFakeClient(), nil
	}
	if cfg.GeminiAPIKey == "" {
		return nil, nil, fmt.Errorf("%s is required for the gemini backend (or set %s=fake)",
			config.EnvGeminiAPIKey, config.EnvBackend)
	}
	architect, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.ArchitectModel)
	if err != nil {
		return nil, nil, fmt.Errorf("creating architect client: %w", err)
	}
	planner, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.PlannerModel)
	if err != nil {
		_ = architect.Close()
		return nil, nil, fmt.Errorf("creating planner client: %w", err)
	}
	return architect, planner, nil
}

// serverInstructions returns the system instructions that tell the host
// model how to use archpipe.
func serverInstructions() string {
	return `You have access to archpipe, an architecture change pipeline.

## What it does
archpipe keeps a versioned architecture per project. A change requirement
runs through four stages:
1. LOADED: the current architecture is read (version 0 for a new project)
2. DIFFED: an architect model produces a diff and the updated architecture
3. PLANNED: a planner model turns every diff item into backend/infra tasks
4. COMMITTED: architecture, session and audit entry are written atomically

Nothing is written unless all four stages succeed.

## Tools
- arch_change: run the pipeline for a project and a requirement
- arch_request: free-form request; classified as a change or an audit question
- arch_current: current architecture of a project
- arch_history: every committed version of a project
- arch_session: a committed session (diff, updated architecture, task plan)
- arch_diagram: PlantUML of a version, or of the change made by a session
- arch_audit: search past changes, newest first

## Failures
- "diff stage failed" or "plan stage failed": the model output was unusable;
  rephrasing the requirement usually helps
- "upstream": the model service failed or timed out; retry later
- "version conflict": another change committed first; run the change again

## Resources
- arch://projects/{project_id}/architecture (JSON)
- arch://projects/{project_id}/diagram (PlantUML)
- arch://audit/recent (JSON)`
}
