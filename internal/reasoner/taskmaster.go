package reasoner

import (
	"context"
	"fmt"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/llm"
)

const taskMasterPrompt = `You are a project manager. Convert architecture_diff into a task plan.

Respond with a single JSON object and nothing else:
{
  "tasks": [
    {"id": "T1", "title": "...", "stream": "backend|frontend|infra|data|qa", "arch_diff_item_id": "D1"}
  ]
}

Constraint: 100% coverage. Every item of architecture_diff must be referenced
by at least one task through arch_diff_item_id, and no task may reference an
id that is not in the diff. Task ids are unique.`

// TaskMaster derives task plans from diffs through a language model.
type TaskMaster struct {
	client llm.Client
}

// NewTaskMaster returns a TaskMaster backed by client.
func NewTaskMaster(client llm.Client) *TaskMaster {
	return &TaskMaster{client: client}
}

type planInput struct {
	Diff arch.ArchitectureDiff `json:"architecture_diff"`
}

// Plan asks the model for the task plan of diff.
// Malformed answers wrap arch.ErrPlanGeneration; client failures wrap
// arch.ErrUpstream.
func (m *TaskMaster) Plan(ctx context.Context, diff arch.ArchitectureDiff) (*arch.TaskPlan, error) {
	ctx = llm.WithPhase(ctx, llm.PhasePlan)
	raw, err := m.client.GenerateJSON(ctx, taskMasterPrompt, planInput{Diff: diff})
	if err != nil {
		return nil, classify(err, arch.ErrPlanGeneration)
	}

	var plan arch.TaskPlan
	if err := decodeStrict(raw, &plan); err != nil {
		return nil, fmt.Errorf("%w: decoding planner answer: %v", arch.ErrPlanGeneration, err)
	}
	if plan.Tasks == nil {
		return nil, fmt.Errorf("%w: answer has no tasks", arch.ErrPlanGeneration)
	}
	return &plan, nil
}
