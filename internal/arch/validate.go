package arch

import (
	"fmt"
	"strings"
)

// --- Structural validation ---
//
// Output of the external reasoners is never trusted: each check below returns
// a descriptive error and never repairs the value it inspects. Callers wrap
// the error with the matching sentinel (ErrDiffGeneration/ErrPlanGeneration).

// ValidateArchitecture checks required fields and service name uniqueness.
func ValidateArchitecture(a *Architecture) error {
	if a == nil {
		return fmt.Errorf("architecture is missing")
	}
	if strings.TrimSpace(a.ProjectID) == "" {
		return fmt.Errorf("architecture project_id is required")
	}
	if a.Version < 0 {
		return fmt.Errorf("architecture version %d is negative", a.Version)
	}
	if a.Services == nil {
		return fmt.Errorf("architecture services are missing")
	}

	seen := make(map[string]bool, len(a.Services))
	for i, s := range a.Services {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("service #%d has no name", i+1)
		}
		if seen[name] {
			return fmt.Errorf("duplicate service %q", name)
		}
		seen[name] = true
	}
	return nil
}

// ValidateDiff checks that the diff is non-empty, every item carries the
// required fields, and item ids are unique within the diff.
func ValidateDiff(d *ArchitectureDiff) error {
	if d == nil {
		return fmt.Errorf("architecture diff is missing")
	}
	if len(d.Items) == 0 {
		return fmt.Errorf("architecture diff has no items")
	}

	seen := make(map[string]bool, len(d.Items))
	for i, it := range d.Items {
		id := strings.TrimSpace(it.ID)
		if id == "" {
			return fmt.Errorf("diff item #%d has no id", i+1)
		}
		if seen[id] {
			return fmt.Errorf("duplicate diff item id %q", id)
		}
		seen[id] = true

		if strings.TrimSpace(it.Description) == "" {
			return fmt.Errorf("diff item %q has no description", id)
		}
		if strings.TrimSpace(it.AffectedService) == "" {
			return fmt.Errorf("diff item %q has no affected_service", id)
		}
	}
	return nil
}

// ValidateSuccessor checks that next is a legal successor of current:
// same project and exactly one version ahead.
func ValidateSuccessor(current, next *Architecture) error {
	if err := ValidateArchitecture(next); err != nil {
		return fmt.Errorf("updated architecture: %w", err)
	}
	if next.ProjectID != current.ProjectID {
		return fmt.Errorf("updated architecture belongs to project %q, want %q", next.ProjectID, current.ProjectID)
	}
	if next.Version != current.Version+1 {
		return fmt.Errorf("updated architecture version = %d, want %d", next.Version, current.Version+1)
	}
	return nil
}

// ValidatePlan checks task-level required fields, task id uniqueness, and
// that every task traces to an item of the originating diff.
func ValidatePlan(p *TaskPlan, d *ArchitectureDiff) error {
	if p == nil {
		return fmt.Errorf("task plan is missing")
	}
	if len(p.Tasks) == 0 {
		return fmt.Errorf("task plan has no tasks")
	}

	known := make(map[string]bool, len(d.Items))
	for _, it := range d.Items {
		known[it.ID] = true
	}

	seen := make(map[string]bool, len(p.Tasks))
	for i, t := range p.Tasks {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return fmt.Errorf("task #%d has no id", i+1)
		}
		if seen[id] {
			return fmt.Errorf("duplicate task id %q", id)
		}
		seen[id] = true

		if strings.TrimSpace(t.Title) == "" {
			return fmt.Errorf("task %q has no title", id)
		}
		if t.ArchDiffItemID == "" {
			return fmt.Errorf("task %q has no arch_diff_item_id", id)
		}
		if !known[t.ArchDiffItemID] {
			return fmt.Errorf("task %q references unknown diff item %q", id, t.ArchDiffItemID)
		}
	}

	if missing := UncoveredItems(p, d); len(missing) > 0 {
		return fmt.Errorf("diff items without a task: %s", strings.Join(missing, ", "))
	}
	return nil
}

// UncoveredItems returns the diff item ids (in diff order) that no task
// references through arch_diff_item_id.
func UncoveredItems(p *TaskPlan, d *ArchitectureDiff) []string {
	covered := make(map[string]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		covered[t.ArchDiffItemID] = true
	}

	var missing []string
	for _, id := range d.ItemIDs() {
		if !covered[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
