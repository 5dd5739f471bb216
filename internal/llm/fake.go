package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/HendryAvila/archpipe/internal/arch"
)

// FakeClient returns deterministic, minimal JSON payloads per phase for
// offline runs and tests. The architect phase adds (or touches) one service
// named after the requirement; the planner phase emits two tasks per diff
// item.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("llm: encoding input: %w", err)
	}

	var obj any
	switch phase := PhaseFrom(ctx); phase {
	case PhaseDiff:
		var in struct {
			Current     arch.Architecture `json:"current_architecture"`
			Requirement string            `json:"requirement"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("llm: fake %s input: %w", phase, err)
		}
		obj = fakeDiff(in.Current, in.Requirement)
	case PhasePlan:
		var in struct {
			Diff arch.ArchitectureDiff `json:"architecture_diff"`
		}
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("llm: fake %s input: %w", phase, err)
		}
		obj = fakePlan(in.Diff)
	default:
		obj = map[string]any{"notes": []string{"fake output for phase " + phase}}
	}

	out, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

func fakeDiff(current arch.Architecture, requirement string) map[string]any {
	svc := serviceFromRequirement(requirement)
	next := current.Clone()
	next.Version = current.Version + 1
	if next.Services == nil {
		next.Services = []arch.ServiceDescriptor{}
	}

	tag := fmt.Sprintf("v%d", next.Version)
	found := false
	for i := range next.Services {
		if next.Services[i].Name == svc {
			if next.Services[i].Attributes == nil {
				next.Services[i].Attributes = map[string]string{}
			}
			next.Services[i].Attributes["changed_in"] = tag
			found = true
		}
	}
	if !found {
		next.Services = append(next.Services, arch.ServiceDescriptor{
			Name:       svc,
			Attributes: map[string]string{"introduced_in": tag},
		})
	}

	desc := strings.TrimSpace(requirement)
	if desc == "" {
		desc = "change " + svc
	}
	return map[string]any{
		"architecture_diff": arch.ArchitectureDiff{Items: []arch.DiffItem{
			{ID: "D1", Description: desc, AffectedService: svc},
		}},
		"updated_architecture": next,
	}
}

func fakePlan(d arch.ArchitectureDiff) arch.TaskPlan {
	plan := arch.TaskPlan{Tasks: []arch.Task{}}
	for _, it := range d.Items {
		n := len(plan.Tasks)
		plan.Tasks = append(plan.Tasks,
			arch.Task{
				ID:             fmt.Sprintf("T%d", n+1),
				Title:          "Implement " + it.Description,
				Stream:         "backend",
				ArchDiffItemID: it.ID,
			},
			arch.Task{
				ID:             fmt.Sprintf("T%d", n+2),
				Title:          "Deploy " + it.AffectedService,
				Stream:         "infra",
				ArchDiffItemID: it.ID,
			},
		)
	}
	return plan
}

var requirementStopwords = map[string]bool{
	"a": true, "an": true, "the": true, "add": true, "create": true,
	"introduce": true, "new": true, "feature": true, "support": true,
	"for": true, "to": true, "with": true, "of": true, "and": true,
}

// serviceFromRequirement picks the word before "service", else the first
// non-stopword. "add payments service" → "payments".
func serviceFromRequirement(req string) string {
	words := strings.FieldsFunc(strings.ToLower(req), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	for i, w := range words {
		if (w == "service" || w == "svc") && i > 0 {
			return words[i-1]
		}
	}
	for _, w := range words {
		if !requirementStopwords[w] {
			return w
		}
	}
	return "core"
}
