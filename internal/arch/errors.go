package arch

import "errors"

// Error taxonomy. Every error surfaced by the store, the reasoners or the
// coordinator wraps exactly one of these so callers can branch with errors.Is.
var (
	// ErrNotFound means the project has no committed architecture yet.
	ErrNotFound = errors.New("architecture not found")

	// ErrVersionConflict means the proposed version is not current+1,
	// typically because a concurrent commit won the race.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDiffGeneration means the architect returned structurally invalid output.
	ErrDiffGeneration = errors.New("diff generation failed")

	// ErrPlanGeneration means the task plan was invalid or did not cover the diff.
	ErrPlanGeneration = errors.New("plan generation failed")

	// ErrCommit wraps any store-level failure during commit.
	ErrCommit = errors.New("commit failed")

	// ErrUpstream means a collaborator was unreachable or timed out.
	ErrUpstream = errors.New("upstream unavailable")
)
