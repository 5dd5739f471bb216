// Package llm is the language-model boundary: a JSON-in/JSON-out client
// interface, a Gemini implementation on google.golang.org/genai, and a
// deterministic fake for offline runs and tests.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrInvalidJSON means the model answered without a usable JSON payload.
var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// Client sends an instruction prompt plus a JSON input and returns the
// model's JSON answer undecoded.
type Client interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}

// Phases name the agent a request belongs to. They travel in the context
// so hooks and the fake client can tell requests apart.
const (
	PhaseDiff = "architect.diff"
	PhasePlan = "taskmaster.plan"
)

type ctxKeyPhase struct{}

// WithPhase tags ctx with the pipeline phase issuing the request.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, ctxKeyPhase{}, phase)
}

// PhaseFrom returns the phase stored in ctx, or "unknown".
func PhaseFrom(ctx context.Context) string {
	if v := ctx.Value(ctxKeyPhase{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return "unknown"
}

// buildPrompt concatenates the instruction with the indented input JSON.
func buildPrompt(prompt string, input any) (string, error) {
	in, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return "", err
	}
	return prompt + "\n\n[INPUT JSON]\n" + string(in), nil
}
