package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HendryAvila/archpipe/internal/arch"
	"github.com/HendryAvila/archpipe/internal/logging"
)

// timeNow is a package-level variable for testability.
var timeNow = time.Now

// ArchitectureStore is the persistence the coordinator needs.
type ArchitectureStore interface {
	CurrentOrDefault(ctx context.Context, projectID string) (*arch.Architecture, error)
	Commit(ctx context.Context, p arch.CommitParams) (string, error)
}

// DiffReasoner proposes a diff and the updated architecture for a
// requirement.
type DiffReasoner interface {
	Diff(ctx context.Context, current arch.Architecture, requirement string) (*arch.ArchitectureDiff, *arch.Architecture, error)
}

// PlanReasoner turns a diff into a task plan.
type PlanReasoner interface {
	Plan(ctx context.Context, diff arch.ArchitectureDiff) (*arch.TaskPlan, error)
}

// DefaultReasonerTimeout bounds a single reasoner call when Options leaves
// it unset.
const DefaultReasonerTimeout = 2 * time.Minute

// planAttempts is one request plus one re-request.
const planAttempts = 2

// Options tunes a Coordinator.
type Options struct {
	ReasonerTimeout time.Duration
	Logger          *logging.Logger
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	SessionID    string                 `json:"session_id"`
	ProjectID    string                 `json:"project_id"`
	Architecture *arch.Architecture     `json:"architecture"`
	Diff         *arch.ArchitectureDiff `json:"diff"`
	TaskPlan     *arch.TaskPlan         `json:"task_plan"`
	PlanAttempts int                    `json:"plan_attempts"`
	Elapsed      time.Duration          `json:"elapsed"`
}

// Coordinator runs the architect → planner → commit pipeline.
// It is safe for concurrent use; concurrent runs on the same project race
// at commit and the store picks one winner.
type Coordinator struct {
	store     ArchitectureStore
	architect DiffReasoner
	planner   PlanReasoner
	timeout   time.Duration
	log       *logging.Logger
}

// New returns a Coordinator over the given collaborators.
func New(store ArchitectureStore, architect DiffReasoner, planner PlanReasoner, opts Options) *Coordinator {
	timeout := opts.ReasonerTimeout
	if timeout <= 0 {
		timeout = DefaultReasonerTimeout
	}
	return &Coordinator{
		store:     store,
		architect: architect,
		planner:   planner,
		timeout:   timeout,
		log:       logging.OrNop(opts.Logger),
	}
}

// Run applies requirement to the project's current architecture and
// commits the result. Past input validation, every failure is a *StageError
// wrapping one of arch.ErrUpstream, arch.ErrDiffGeneration,
// arch.ErrPlanGeneration or arch.ErrCommit.
func (c *Coordinator) Run(ctx context.Context, projectID, requirement string) (*RunResult, error) {
	projectID = strings.TrimSpace(projectID)
	requirement = strings.TrimSpace(requirement)
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if requirement == "" {
		return nil, fmt.Errorf("requirement is required")
	}

	start := timeNow()
	log := c.log.With("project", projectID)

	// LOADED
	current, err := c.store.CurrentOrDefault(ctx, projectID)
	if err != nil {
		return nil, c.fail(log, StageLoaded, asUpstream(err))
	}
	log.Debug("stage complete", "stage", StageLoaded, "version", current.Version)

	// DIFFED
	diff, updated, err := c.diff(ctx, current, requirement)
	if err != nil {
		return nil, c.fail(log, StageDiffed, err)
	}
	log.Debug("stage complete", "stage", StageDiffed, "items", len(diff.Items), "target_version", updated.Version)

	// PLANNED
	plan, attempts, err := c.plan(ctx, log, diff)
	if err != nil {
		return nil, c.fail(log, StagePlanned, err)
	}
	log.Debug("stage complete", "stage", StagePlanned, "tasks", len(plan.Tasks), "attempts", attempts)

	// COMMITTED
	sessionID, err := c.store.Commit(ctx, arch.CommitParams{
		ProjectID:           projectID,
		Diff:                *diff,
		UpdatedArchitecture: *updated,
		TaskPlan:            *plan,
		Reason:              requirement,
	})
	if err != nil {
		return nil, c.fail(log, StageCommitted, fmt.Errorf("%w: %w", arch.ErrCommit, err))
	}

	elapsed := timeNow().Sub(start)
	log.Info("architecture committed",
		"session", sessionID,
		"version", updated.Version,
		"tasks", len(plan.Tasks),
		"elapsed", elapsed,
	)

	return &RunResult{
		SessionID:    sessionID,
		ProjectID:    projectID,
		Architecture: updated,
		Diff:         diff,
		TaskPlan:     plan,
		PlanAttempts: attempts,
		Elapsed:      elapsed,
	}, nil
}

// diff calls the architect and validates its answer against current.
func (c *Coordinator) diff(ctx context.Context, current *arch.Architecture, requirement string) (*arch.ArchitectureDiff, *arch.Architecture, error) {
	type answer struct {
		diff    *arch.ArchitectureDiff
		updated *arch.Architecture
	}
	got, err := withTimeout(ctx, c.timeout, func(ctx context.Context) (answer, error) {
		d, a, err := c.architect.Diff(ctx, *current.Clone(), requirement)
		return answer{d, a}, err
	})
	if err != nil {
		return nil, nil, err
	}

	if err := arch.ValidateDiff(got.diff); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", arch.ErrDiffGeneration, err)
	}
	if got.updated == nil {
		return nil, nil, fmt.Errorf("%w: updated architecture is missing", arch.ErrDiffGeneration)
	}
	if err := arch.ValidateSuccessor(current, got.updated); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", arch.ErrDiffGeneration, err)
	}
	return got.diff, got.updated, nil
}

// plan calls the planner, re-requesting once when the answer is malformed
// or leaves a diff item uncovered. Upstream failures are not retried.
func (c *Coordinator) plan(ctx context.Context, log *logging.Logger, diff *arch.ArchitectureDiff) (*arch.TaskPlan, int, error) {
	var lastErr error
	for attempt := 1; attempt <= planAttempts; attempt++ {
		plan, err := withTimeout(ctx, c.timeout, func(ctx context.Context) (*arch.TaskPlan, error) {
			return c.planner.Plan(ctx, *diff)
		})
		if err == nil {
			if verr := arch.ValidatePlan(plan, diff); verr != nil {
				err = fmt.Errorf("%w: %v", arch.ErrPlanGeneration, verr)
			}
		}
		if err == nil {
			return plan, attempt, nil
		}
		if !errors.Is(err, arch.ErrPlanGeneration) {
			return nil, attempt, err
		}

		lastErr = err
		if attempt < planAttempts {
			log.Warn("task plan rejected, re-requesting", "attempt", attempt, "error", err)
		}
	}
	return nil, planAttempts, lastErr
}

func (c *Coordinator) fail(log *logging.Logger, stage Stage, err error) error {
	log.Warn("pipeline run failed", "stage", stage, "error", err)
	return &StageError{Stage: stage, Err: err}
}

// withTimeout runs fn under a deadline. The deadline is enforced even if fn
// ignores its context; expiry and errors without an arch sentinel are
// reported as arch.ErrUpstream.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(cctx)
		ch <- result{v, err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil {
			if cctx.Err() != nil && !errors.Is(r.err, arch.ErrUpstream) {
				return zero, fmt.Errorf("%w: %w", arch.ErrUpstream, cctx.Err())
			}
			return zero, asUpstream(r.err)
		}
		return r.v, nil
	case <-cctx.Done():
		return zero, fmt.Errorf("%w: %w", arch.ErrUpstream, cctx.Err())
	}
}

// asUpstream wraps err with arch.ErrUpstream unless it already carries a
// pipeline sentinel.
func asUpstream(err error) error {
	for _, s := range []error{arch.ErrUpstream, arch.ErrDiffGeneration, arch.ErrPlanGeneration} {
		if errors.Is(err, s) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", arch.ErrUpstream, err)
}
