// Package prompts implements MCP prompt handlers for archpipe.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ChangePrompt handles the arch-change MCP prompt.
// It guides the AI through reviewing the current architecture, running the
// change pipeline and presenting the committed result.
type ChangePrompt struct{}

// NewChangePrompt creates a ChangePrompt.
func NewChangePrompt() *ChangePrompt {
	return &ChangePrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ChangePrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("arch-change",
		mcp.WithPromptDescription(
			"Apply a new requirement to a project's architecture: review the current design, "+
				"commit a minimal change with a fully covering task plan, and show the diagram.",
		),
		mcp.WithArgument("project_id",
			mcp.ArgumentDescription("Project to change"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("requirement",
			mcp.ArgumentDescription("The new requirement, e.g. 'add payments service'"),
		),
	)
}

// Handle processes the arch-change prompt request.
func (p *ChangePrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	projectID := "my-project"
	requirement := ""
	if args := req.Params.Arguments; args != nil {
		if v := strings.TrimSpace(args["project_id"]); v != "" {
			projectID = v
		}
		requirement = strings.TrimSpace(args["requirement"])
	}

	ask := fmt.Sprintf("2. Run `arch_change` with project_id='%s' and requirement='%s'\n", projectID, requirement)
	if requirement == "" {
		ask = "2. Ask me for the requirement, then run `arch_change` with it\n"
	}

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Architecture change for %s", projectID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to change the architecture of project '%s'.\n\n"+
						"Please:\n"+
						"1. Run `arch_current` with project_id='%s' and summarize the services\n"+
						"%s"+
						"3. Show me the diff and the task plan grouped by stream\n"+
						"4. Run `arch_diagram` with the returned session_id and show the PlantUML\n\n"+
						"If the pipeline fails, explain which stage failed and what I can do about it. "+
						"Nothing is committed on failure.",
					projectID, projectID, ask,
				)),
			},
		},
	}, nil
}
