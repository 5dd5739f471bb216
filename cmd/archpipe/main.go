// archpipe: architecture change pipeline MCP server.
//
// A requirement is diffed against a project's current architecture, turned
// into a task plan and committed as a new version with an audit entry.
//
// Usage:
//
//	archpipe serve                         # Start MCP server (stdio transport)
//	archpipe run <project> <requirement>   # Run one change and print the result
//	archpipe audit [query]                 # Search committed changes
//	archpipe health                        # Check the database and caches
//	archpipe version
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/HendryAvila/archpipe/internal/config"
	"github.com/HendryAvila/archpipe/internal/logging"
	archserver "github.com/HendryAvila/archpipe/internal/server"
	"github.com/mark3labs/mcp-go/server"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = withApp(serve)
	case "run":
		if len(os.Args) < 4 {
			fmt.Fprintf(os.Stderr, "Usage: archpipe run <project> <requirement>\n")
			os.Exit(1)
		}
		err = withApp(func(ctx context.Context, app *archserver.App) error {
			return runChange(ctx, app, os.Args[2], strings.Join(os.Args[3:], " "))
		})
	case "audit":
		err = withApp(func(ctx context.Context, app *archserver.App) error {
			return runAudit(ctx, app, strings.Join(os.Args[2:], " "))
		})
	case "health":
		err = withApp(func(ctx context.Context, app *archserver.App) error {
			h, err := app.Health(ctx)
			if err != nil {
				return err
			}
			return printJSON(h)
		})
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("archpipe v%s\n", archserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withApp loads configuration, builds the app and runs fn until it returns
// or the process is interrupted.
func withApp(fn func(ctx context.Context, app *archserver.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app, err := archserver.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer func() { _ = app.Close() }()

	return fn(ctx, app)
}

func serve(ctx context.Context, app *archserver.App) error {
	stdio := server.NewStdioServer(app.MCP)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func runChange(ctx context.Context, app *archserver.App, projectID, requirement string) error {
	res, err := app.Pipeline.Run(ctx, projectID, requirement)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runAudit(ctx context.Context, app *archserver.App, query string) error {
	entries, err := app.Audit.Query(ctx, query)
	if err != nil {
		return err
	}
	return printJSON(entries)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `archpipe v%s: architecture change pipeline MCP server

Usage:
  archpipe serve                         Start the MCP server (stdio transport)
  archpipe run <project> <requirement>   Run one change and print the result
  archpipe audit [query]                 Search committed changes, newest first
  archpipe health                        Check the database and caches
  archpipe version                       Print the version

Configuration:
  %s    data directory (default ~/.archpipe, reads config.yaml there)
  %s     gemini (default) or fake
  %s      required for the gemini backend
  A .env file in the working directory is loaded first.

  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "archpipe": {
        "command": "archpipe",
        "args": ["serve"]
      }
    }
  }
`, archserver.Version, config.EnvDataDir, config.EnvBackend, config.EnvGeminiAPIKey)
}
