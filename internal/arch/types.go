// Package arch holds the domain model shared by the architecture pipeline:
// architectures and their services, the diff an architect proposes, the
// task plan derived from it, and the committed session that binds them.
//
// Design principles:
// - Values only: no persistence or transport concerns live here
// - Structural validation is explicit (validate.go); nothing is repaired
// - Error taxonomy is a set of sentinels checked with errors.Is (errors.go)
package arch

import (
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// --- Architecture ---

// ServiceDescriptor is one service of a high-level architecture. Attributes
// is an opaque key/value bag; its schema is not fixed.
type ServiceDescriptor struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Architecture is the high-level design of a project at a given version.
// A committed Architecture is never mutated: a new commit creates a new
// version.
type Architecture struct {
	ProjectID string              `json:"project_id"`
	Services  []ServiceDescriptor `json:"services"`
	Version   int                 `json:"version"`
}

// Empty returns the baseline architecture of a project that has never been
// committed: no services, version 0.
func Empty(projectID string) *Architecture {
	return &Architecture{
		ProjectID: projectID,
		Services:  []ServiceDescriptor{},
		Version:   0,
	}
}

// Clone returns a deep copy so callers can hand an Architecture to an
// external collaborator without sharing maps.
func (a *Architecture) Clone() *Architecture {
	if a == nil {
		return nil
	}
	out := &Architecture{
		ProjectID: a.ProjectID,
		Version:   a.Version,
		Services:  make([]ServiceDescriptor, len(a.Services)),
	}
	for i, s := range a.Services {
		out.Services[i] = ServiceDescriptor{Name: s.Name}
		if s.Attributes != nil {
			out.Services[i].Attributes = make(map[string]string, len(s.Attributes))
			for k, v := range s.Attributes {
				out.Services[i].Attributes[k] = v
			}
		}
	}
	return out
}

// ServiceNames returns the service names in declaration order.
func (a *Architecture) ServiceNames() []string {
	names := make([]string, 0, len(a.Services))
	for _, s := range a.Services {
		names = append(names, s.Name)
	}
	return names
}

// --- Diff ---

// DiffItem is one proposed change against the current architecture.
type DiffItem struct {
	ID              string `json:"id"`
	Description     string `json:"description"`
	AffectedService string `json:"affected_service"`
}

// ArchitectureDiff is the minimal ordered set of changes an architect
// proposes for a requirement.
type ArchitectureDiff struct {
	Items []DiffItem `json:"items"`
}

// ItemIDs returns the diff item ids in order.
func (d *ArchitectureDiff) ItemIDs() []string {
	ids := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		ids = append(ids, it.ID)
	}
	return ids
}

// --- Task plan ---

// Task is one unit of implementation work traced back to a diff item.
type Task struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Stream         string `json:"stream"`
	ArchDiffItemID string `json:"arch_diff_item_id"`
}

// TaskPlan is the ordered task breakdown derived from a diff.
type TaskPlan struct {
	Tasks []Task `json:"tasks"`
}

// --- Session & audit ---

// Session is one committed unit of (diff, updated architecture, task plan).
// It is created only by a successful commit and never changes afterwards.
type Session struct {
	ID                  string           `json:"session_id"`
	ProjectID           string           `json:"project_id"`
	Diff                ArchitectureDiff `json:"diff"`
	UpdatedArchitecture Architecture     `json:"updated_architecture"`
	TaskPlan            TaskPlan         `json:"task_plan"`
	CommittedAt         time.Time        `json:"committed_at"`
	Reason              string           `json:"reason"`
}

// AuditEntry is the queryable projection of a committed session.
type AuditEntry struct {
	SessionID   string    `json:"session_id"`
	ProjectID   string    `json:"project_id"`
	CommittedAt time.Time `json:"committed_at"`
	Reason      string    `json:"reason"`
	Summary     string    `json:"summary"`
}

// CommitParams is the input of an architecture commit.
type CommitParams struct {
	ProjectID           string
	Diff                ArchitectureDiff
	UpdatedArchitecture Architecture
	TaskPlan            TaskPlan
	Reason              string
}

// maxSummaryLen bounds the audit summary so the FTS index stays small.
const maxSummaryLen = 1000

// Summarize builds the free-text audit summary of a session: the target
// version, each diff item with its service, and the task titles.
// Example: "v2 | D1 [payments] add payments service | tasks: T1 Scaffold payments"
func Summarize(s *Session) string {
	var b strings.Builder
	b.WriteString("v")
	b.WriteString(strconv.Itoa(s.UpdatedArchitecture.Version))

	for _, it := range s.Diff.Items {
		b.WriteString(" | ")
		b.WriteString(it.ID)
		if it.AffectedService != "" {
			b.WriteString(" [")
			b.WriteString(it.AffectedService)
			b.WriteString("]")
		}
		if it.Description != "" {
			b.WriteString(" ")
			b.WriteString(it.Description)
		}
	}

	if len(s.TaskPlan.Tasks) > 0 {
		titles := make([]string, 0, len(s.TaskPlan.Tasks))
		for _, t := range s.TaskPlan.Tasks {
			titles = append(titles, t.ID+" "+t.Title)
		}
		b.WriteString(" | tasks: ")
		b.WriteString(strings.Join(titles, "; "))
	}

	streams := taskStreams(s.TaskPlan)
	if len(streams) > 0 {
		b.WriteString(" | streams: ")
		b.WriteString(strings.Join(streams, ", "))
	}

	out := b.String()
	if len(out) > maxSummaryLen {
		n := maxSummaryLen
		for n > 0 && !utf8.RuneStart(out[n]) {
			n--
		}
		out = out[:n] + "..."
	}
	return out
}

// taskStreams returns the distinct, sorted streams of a plan.
func taskStreams(p TaskPlan) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range p.Tasks {
		if t.Stream == "" || seen[t.Stream] {
			continue
		}
		seen[t.Stream] = true
		out = append(out, t.Stream)
	}
	sort.Strings(out)
	return out
}
