package pipeline

import (
	"time"

	"github.com/ShayCichocki/graphseed/pkg/models"
)

// Stage is one unit of work in a pipeline.
type Stage struct {
	// Name identifies the stage (e.g. "ReadExistingSchema").
	Name string
	// Template is the prompt rendered for the worker.
	Template *Template
	// DependsOn lists indices of earlier stages whose outputs feed this one.
	DependsOn []int
	// ExpectedOutput describes what the stage should produce.
	ExpectedOutput string
}

// StageResult is the recorded outcome of a stage.
type StageResult struct {
	Index    int
	Name     string
	Status   models.StageStatus
	Output   string
	Err      error
	Duration time.Duration
}

// Record converts the result to its diagnostic form.
func (r StageResult) Record() models.StageRecord {
	rec := models.StageRecord{
		Index:    r.Index,
		Name:     r.Name,
		Status:   r.Status,
		Output:   r.Output,
		Duration: r.Duration,
	}
	if r.Err != nil {
		rec.Error = r.Err.Error()
	}
	return rec
}

// Records converts a trace to its diagnostic form.
func Records(trace []StageResult) []models.StageRecord {
	out := make([]models.StageRecord, len(trace))
	for i, r := range trace {
		out[i] = r.Record()
	}
	return out
}
