package render

import (
	"strings"
	"testing"

	"github.com/HendryAvila/archpipe/internal/arch"
)

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(8)
	if err != nil {
		t.Fatalf("NewRenderer() failed: %v", err)
	}
	return r
}

func paymentsArch() arch.Architecture {
	return arch.Architecture{
		ProjectID: "P1",
		Version:   2,
		Services: []arch.ServiceDescriptor{
			{Name: "orders", Attributes: map[string]string{"db": "mysql", "lang": "go"}},
			{Name: "payments"},
		},
	}
}

func TestRender_Architecture(t *testing.T) {
	r := newTestRenderer(t)

	out, err := r.Render(paymentsArch())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	checks := []string{
		"@startuml P1-v2",
		"title P1 architecture v2",
		`component "orders" as svc_orders`,
		`component "payments" as svc_payments`,
		"note right of svc_orders\n  db: mysql\n  lang: go\nend note",
		"@enduml",
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "legend") {
		t.Error("plain render should not carry a legend")
	}
}

func TestRender_EmptyArchitecture(t *testing.T) {
	out, err := newTestRenderer(t).Render(*arch.Empty("P1"))
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.HasPrefix(out, "@startuml P1-v0") || !strings.HasSuffix(strings.TrimSpace(out), "@enduml") {
		t.Errorf("Render() = %q", out)
	}
}

func TestRender_EscapesNames(t *testing.T) {
	a := arch.Architecture{ProjectID: "my project", Version: 1, Services: []arch.ServiceDescriptor{
		{Name: `api "edge"`},
	}}
	out, err := newTestRenderer(t).Render(a)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(out, `component "api 'edge'" as svc_api__edge_`) {
		t.Errorf("Render() did not escape the name:\n%s", out)
	}
	if !strings.Contains(out, "@startuml my_project-v1") {
		t.Errorf("Render() did not sanitize the diagram name:\n%s", out)
	}
}

func TestRender_Caches(t *testing.T) {
	r := newTestRenderer(t)
	a := paymentsArch()

	first, _ := r.Render(a)
	second, _ := r.Render(a)
	if first != second {
		t.Error("cached render differs from the first one")
	}
	if r.Len() != 1 {
		t.Errorf("cache size = %d, want 1", r.Len())
	}

	a.Services = append(a.Services, arch.ServiceDescriptor{Name: "ledger"})
	third, _ := r.Render(a)
	if !strings.Contains(third, "svc_ledger") {
		t.Error("changed services at the same version must not hit the cache")
	}
	if r.Len() != 2 {
		t.Errorf("cache size = %d, want 2", r.Len())
	}
}

func TestRenderDiff_HighlightsAffected(t *testing.T) {
	r := newTestRenderer(t)
	d := arch.ArchitectureDiff{Items: []arch.DiffItem{
		{ID: "D1", Description: "add payments service", AffectedService: "payments"},
		{ID: "D2", Description: "retire legacy billing", AffectedService: "billing"},
	}}

	out, err := r.RenderDiff(paymentsArch(), d)
	if err != nil {
		t.Fatalf("RenderDiff failed: %v", err)
	}

	checks := []string{
		"@startuml P1-v2-delta",
		"title Architecture delta P1 v2",
		`component "payments" as svc_payments #LightGreen`,
		`component "orders" as svc_orders` + "\n",
		`component "billing (removed)" as svc_billing #Pink`,
		"legend bottom",
		"D1 [payments] add payments service",
		"D2 [billing] retire legacy billing",
		"endlegend",
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("RenderDiff() missing %q in:\n%s", want, out)
		}
	}
}
