// Package models defines the run and stage records shared by the engine,
// the journal and the HTTP API.
package models

import "time"

// RunStatus represents the outcome of a workflow run.
type RunStatus string

const (
	// RunStatusRunning indicates the pipeline is still executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusDone indicates every stage (and cleanup, if any) completed.
	RunStatusDone RunStatus = "done"
	// RunStatusFailed indicates the pipeline aborted before its final stage.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCleanupFailed indicates the pipeline completed but the
	// post-run cleanup did not.
	RunStatusCleanupFailed RunStatus = "cleanup_failed"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusDone, RunStatusFailed, RunStatusCleanupFailed:
		return true
	default:
		return false
	}
}

// StageStatus represents the completion state of a single pipeline stage.
type StageStatus string

const (
	// StageStatusPending indicates the stage has not run.
	StageStatusPending StageStatus = "pending"
	// StageStatusDone indicates the stage produced a result.
	StageStatusDone StageStatus = "done"
	// StageStatusFailed indicates the bound worker's invocation failed.
	StageStatusFailed StageStatus = "failed"
	// StageStatusSkipped indicates the stage was short-circuited without
	// invoking its worker.
	StageStatusSkipped StageStatus = "skipped"
)

// Valid returns true if the status is a known value.
func (s StageStatus) Valid() bool {
	switch s {
	case StageStatusPending, StageStatusDone, StageStatusFailed, StageStatusSkipped:
		return true
	default:
		return false
	}
}

// Completed reports whether the stage has a usable result.
func (s StageStatus) Completed() bool {
	return s == StageStatusDone || s == StageStatusSkipped
}

// StageRecord is the persisted/diagnostic view of one stage result.
type StageRecord struct {
	// Index is the stage's position in the pipeline (0-based).
	Index int `json:"index"`
	// Name is the stage name (e.g. "ReadExistingSchema").
	Name string `json:"name"`
	// Status is the completion state.
	Status StageStatus `json:"status"`
	// Output is the raw text the stage produced.
	Output string `json:"output,omitempty"`
	// Error holds the failure message for failed stages.
	Error string `json:"error,omitempty"`
	// Duration is how long the stage took.
	Duration time.Duration `json:"duration"`
}

// RunRecord describes one workflow invocation for the run journal.
type RunRecord struct {
	// ID is the run identifier (a UUID).
	ID string `json:"id"`
	// Workflow is the workflow name.
	Workflow string `json:"workflow"`
	// Usecase is the caller-supplied usecase text, if any.
	Usecase string `json:"usecase,omitempty"`
	// Status is the final run status.
	Status RunStatus `json:"status"`
	// Output is the final stage's raw text.
	Output string `json:"output,omitempty"`
	// Error is the error message for failed runs.
	Error string `json:"error,omitempty"`
	// NodesRemoved is the cleanup count, or -1 when cleanup did not run.
	NodesRemoved int `json:"nodes_removed"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// Duration is the total run time.
	Duration time.Duration `json:"duration"`
	// Stages is the ordered stage trace.
	Stages []StageRecord `json:"stages,omitempty"`
}

// UploadStatus is the structured response of the data-upload workflows.
type UploadStatus struct {
	// RunID identifies the run in logs and the journal.
	RunID string `json:"run_id"`
	// Workflow is the workflow name.
	Workflow string `json:"workflow"`
	// Report is the upload stage's status report text.
	Report string `json:"report"`
	// CleanupRan reports whether isolated-node cleanup executed.
	CleanupRan bool `json:"cleanup_ran"`
	// NodesRemoved is the number of isolated nodes deleted by cleanup.
	NodesRemoved int `json:"nodes_removed"`
	// Stages is the ordered stage trace.
	Stages []StageRecord `json:"stages"`
	// ElapsedSeconds is the wall time of the whole run.
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}
