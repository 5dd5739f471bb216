package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	genai "google.golang.org/genai"

	"github.com/HendryAvila/archpipe/internal/arch"
)

func TestPhaseFrom_Default(t *testing.T) {
	if got := PhaseFrom(context.Background()); got != "unknown" {
		t.Errorf("PhaseFrom = %s, want unknown", got)
	}
	if got := PhaseFrom(WithPhase(context.Background(), PhasePlan)); got != PhasePlan {
		t.Errorf("PhaseFrom = %s, want %s", got, PhasePlan)
	}
}

func TestBuildPrompt(t *testing.T) {
	got, err := buildPrompt("do it", map[string]int{"n": 1})
	if err != nil {
		t.Fatalf("buildPrompt error: %v", err)
	}
	if !strings.HasPrefix(got, "do it\n\n[INPUT JSON]\n") || !strings.Contains(got, `"n": 1`) {
		t.Errorf("buildPrompt = %q", got)
	}
}

func TestFirstText(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{"nil response", nil, ""},
		{"no candidates", &genai.GenerateContentResponse{}, ""},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}, ""},
		{"text", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: `{"ok":true}`}}},
		}}}, `{"ok":true}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := firstText(tt.resp); got != tt.want {
				t.Errorf("firstText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServiceFromRequirement(t *testing.T) {
	tests := []struct {
		req, want string
	}{
		{"add payments service", "payments"},
		{"Add a new Billing-Gateway service for invoices", "billing-gateway"},
		{"Add feature search", "search"},
		{"add the", "core"},
	}
	for _, tt := range tests {
		if got := serviceFromRequirement(tt.req); got != tt.want {
			t.Errorf("serviceFromRequirement(%q) = %s, want %s", tt.req, got, tt.want)
		}
	}
}

func TestFakeClient_DiffPhase(t *testing.T) {
	f := NewFakeClient()
	ctx := WithPhase(context.Background(), PhaseDiff)
	input := map[string]any{
		"current_architecture": arch.Empty("P1"),
		"requirement":          "add payments service",
	}

	raw, err := f.GenerateJSON(ctx, "prompt", input)
	if err != nil {
		t.Fatalf("GenerateJSON error: %v", err)
	}

	var out struct {
		Diff    arch.ArchitectureDiff `json:"architecture_diff"`
		Updated arch.Architecture     `json:"updated_architecture"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Diff.Items) != 1 || out.Diff.Items[0].AffectedService != "payments" {
		t.Errorf("Diff = %+v, want one payments item", out.Diff)
	}
	if out.Updated.Version != 1 || out.Updated.ProjectID != "P1" {
		t.Errorf("Updated = %+v, want P1 v1", out.Updated)
	}
	if err := arch.ValidateSuccessor(arch.Empty("P1"), &out.Updated); err != nil {
		t.Errorf("fake updated architecture is not a valid successor: %v", err)
	}
}

func TestFakeClient_DiffTouchesExistingService(t *testing.T) {
	current := &arch.Architecture{
		ProjectID: "P1",
		Version:   2,
		Services:  []arch.ServiceDescriptor{{Name: "payments"}},
	}
	raw, err := NewFakeClient().GenerateJSON(WithPhase(context.Background(), PhaseDiff), "",
		map[string]any{"current_architecture": current, "requirement": "harden payments service"})
	if err != nil {
		t.Fatalf("GenerateJSON error: %v", err)
	}

	var out struct {
		Updated arch.Architecture `json:"updated_architecture"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Updated.Services) != 1 {
		t.Fatalf("Services = %+v, want payments only", out.Updated.Services)
	}
	if got := out.Updated.Services[0].Attributes["changed_in"]; got != "v3" {
		t.Errorf("changed_in = %q, want v3", got)
	}
}

func TestFakeClient_PlanCoversDiff(t *testing.T) {
	diff := arch.ArchitectureDiff{Items: []arch.DiffItem{
		{ID: "D1", Description: "add payments", AffectedService: "payments"},
		{ID: "D2", Description: "add ledger", AffectedService: "ledger"},
	}}
	raw, err := NewFakeClient().GenerateJSON(WithPhase(context.Background(), PhasePlan), "",
		map[string]any{"architecture_diff": diff})
	if err != nil {
		t.Fatalf("GenerateJSON error: %v", err)
	}

	var plan arch.TaskPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(plan.Tasks) != 4 {
		t.Errorf("len(Tasks) = %d, want 4", len(plan.Tasks))
	}
	if err := arch.ValidatePlan(&plan, &diff); err != nil {
		t.Errorf("fake plan is invalid: %v", err)
	}
}

func TestFakeClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewFakeClient().GenerateJSON(ctx, "", nil); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

type recordingHook struct {
	before, after []string
	lastErr       error
}

func (r *recordingHook) Before(_ context.Context, phase, _ string, _ any) {
	r.before = append(r.before, phase)
}

func (r *recordingHook) After(_ context.Context, phase string, _ json.RawMessage, err error) {
	r.after = append(r.after, phase)
	r.lastErr = err
}

func TestWithHook_SeesEveryCall(t *testing.T) {
	hook := &recordingHook{}
	c := WithHook(NewFakeClient(), hook)

	ctx := WithPhase(context.Background(), PhasePlan)
	if _, err := c.GenerateJSON(ctx, "", map[string]any{"architecture_diff": arch.ArchitectureDiff{}}); err != nil {
		t.Fatalf("GenerateJSON error: %v", err)
	}

	if len(hook.before) != 1 || hook.before[0] != PhasePlan {
		t.Errorf("before = %v, want [%s]", hook.before, PhasePlan)
	}
	if len(hook.after) != 1 || hook.lastErr != nil {
		t.Errorf("after = %v err = %v, want one clean call", hook.after, hook.lastErr)
	}
	if c.Name() != "FakeLLM" {
		t.Errorf("Name = %s, want FakeLLM", c.Name())
	}
}

func TestLogHook_DoesNotPanicWithNilLogger(t *testing.T) {
	c := WithHook(NewFakeClient(), NewLogHook(nil, "fake"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = c.GenerateJSON(ctx, "", nil)
}
