package prompts

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// AuditPrompt handles the arch-audit MCP prompt.
// It instructs the AI to answer a question about past architecture changes
// from the audit log.
type AuditPrompt struct{}

// NewAuditPrompt creates an AuditPrompt.
func NewAuditPrompt() *AuditPrompt {
	return &AuditPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *AuditPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("arch-audit",
		mcp.WithPromptDescription(
			"Answer a question about past architecture changes (why, when, what changed) "+
				"from the audit log and the committed sessions.",
		),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("e.g. 'Why did we add the payments service?'"),
		),
	)
}

// Handle processes the arch-audit prompt request.
func (p *AuditPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	question := "What changed recently?"
	if args := req.Params.Arguments; args != nil {
		if q := strings.TrimSpace(args["question"]); q != "" {
			question = q
		}
	}

	return &mcp.GetPromptResult{
		Description: "Architecture audit",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"%s\n\n"+
						"Please:\n"+
						"1. Run `arch_audit` with the key nouns of my question as the query "+
						"(service names, features), not the whole sentence\n"+
						"2. For the most relevant entries, run `arch_session` to read the diff and tasks\n"+
						"3. Answer with dates, versions and session ids. Quote the recorded reason\n"+
						"4. If nothing matches, say so and suggest a broader query",
					question,
				)),
			},
		},
	}, nil
}
