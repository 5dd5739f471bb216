// Package pipeline drives one architecture change from requirement to
// committed session.
//
// A run moves strictly forward through four stages:
//
//	LOADED → DIFFED → PLANNED → COMMITTED
//
// A failure stops the run at the stage that failed and nothing is
// committed. Only the COMMITTED stage writes to the store.
package pipeline

import (
	"fmt"
	"strings"
)

// Stage identifies a step of a pipeline run.
type Stage string

const (
	StageLoaded    Stage = "LOADED"
	StageDiffed    Stage = "DIFFED"
	StagePlanned   Stage = "PLANNED"
	StageCommitted Stage = "COMMITTED"
)

// StageOrder is the fixed order of a run.
var StageOrder = []Stage{StageLoaded, StageDiffed, StagePlanned, StageCommitted}

// StageIndex returns the position of s in StageOrder, or -1 if unknown.
func StageIndex(s Stage) int {
	for i, st := range StageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// StageError reports the stage a run failed in. Err carries one of the
// arch sentinels.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", strings.ToLower(string(e.Stage)), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
