package reasoner

import (
	"context"
	"fmt"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/llm"
)

const architectPrompt = `You are a senior cloud architect. Analyze the requirement against
current_architecture and propose the minimal, safe architectural change.

Respond with a single JSON object and nothing else:
{
  "architecture_diff": {
    "items": [
      {"id": "D1", "description": "...", "affected_service": "..."}
    ]
  },
  "updated_architecture": {
    "project_id": "<same as current>",
    "services": [{"name": "...", "attributes": {"key": "value"}}],
    "version": <current version + 1>
  }
}

Rules:
- Every diff item has a unique id, a description and the affected service name.
- updated_architecture lists ALL services after the change, not only the changed ones.
- Service names are unique.
- Do not add fields that are not in the schema.`

// Architect proposes architecture changes through a language model.
type Architect struct {
	client llm.Client
}

// NewArchitect returns an Architect backed by client.
func NewArchitect(client llm.Client) *Architect {
	return &Architect{client: client}
}

type diffInput struct {
	CurrentArchitecture arch.Architecture `json:"current_architecture"`
	Requirement         string            `json:"requirement"`
}

type diffOutput struct {
	Diff                *arch.ArchitectureDiff `json:"architecture_diff"`
	UpdatedArchitecture *arch.Architecture     `json:"updated_architecture"`
}

// Diff asks the model for the diff and the updated architecture.
// Malformed answers wrap arch.ErrDiffGeneration; client failures wrap
// arch.ErrUpstream.
func (a *Architect) Diff(ctx context.Context, current arch.Architecture, requirement string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
	ctx = llm.WithPhase(ctx, llm.PhaseDiff)
	raw, err := a.client.GenerateJSON(ctx, architectPrompt, diffInput{
		CurrentArchitecture: current,
		Requirement:         requirement,
	})
	if err != nil {
		return nil, nil, classify(err, arch.ErrDiffGeneration)
	}

	var out diffOutput
	if err := decodeStrict(raw, &out); err != nil {
		return nil, nil, fmt.Errorf("%w: decoding architect answer: %v", arch.ErrDiffGeneration, err)
	}
	if out.Diff == nil {
		return nil, nil, fmt.Errorf("%w: answer has no architecture_diff", arch.ErrDiffGeneration)
	}
	if out.UpdatedArchitecture == nil {
		return nil, nil, fmt.Errorf("%w: answer has no updated_architecture", arch.ErrDiffGeneration)
	}
	return out.Diff, out.UpdatedArchitecture, nil
}
