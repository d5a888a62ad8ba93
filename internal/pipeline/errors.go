package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrStageExecution is matched by every *StageError.
	ErrStageExecution = errors.New("stage execution failed")
	// ErrDependencyOrdering is matched by every *OrderingError.
	ErrDependencyOrdering = errors.New("dependency ordering violation")
)

// StageError reports the stage whose worker invocation failed. Trace holds
// the results of the stages that completed before it.
type StageError struct {
	Workflow string
	Stage    string
	Index    int
	Trace    []StageResult
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: stage %d (%s) failed: %v", e.Workflow, e.Index, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func (e *StageError) Is(target error) bool { return target == ErrStageExecution }

// OrderingError reports a dependency on an undeclared or later stage.
type OrderingError struct {
	Workflow  string
	Stage     string
	Index     int
	DependsOn int
}

func (e *OrderingError) Error() string {
	if e.DependsOn >= e.Index {
		return fmt.Sprintf("%s: stage %d (%s) depends on later stage %d",
			e.Workflow, e.Index, e.Stage, e.DependsOn)
	}
	return fmt.Sprintf("%s: stage %d (%s) depends on undeclared stage %d",
		e.Workflow, e.Index, e.Stage, e.DependsOn)
}

func (e *OrderingError) Is(target error) bool { return target == ErrDependencyOrdering }
