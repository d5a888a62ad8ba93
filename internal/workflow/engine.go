package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/graphseed/internal/cleanup"
	"github.com/ShayCichocki/graphseed/internal/pipeline"
	"github.com/ShayCichocki/graphseed/internal/provider"
	"github.com/ShayCichocki/graphseed/pkg/models"
)

// CleanupError reports a cleanup failure after a pipeline that completed.
// Result holds the completed pipeline's output.
type CleanupError struct {
	Result *pipeline.Result
	Err    error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("%s completed but cleanup failed: %v", e.Result.Workflow, e.Err)
}

func (e *CleanupError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, cleanup.ErrCleanup) match even when Err does not
// wrap it.
func (e *CleanupError) Is(target error) bool { return target == cleanup.ErrCleanup }

// Recorder persists finished runs. Errors are logged by the engine and never
// fail a run.
type Recorder interface {
	Record(ctx context.Context, run models.RunRecord) error
}

// EventKind classifies engine progress events.
type EventKind string

const (
	EventRunStarted     EventKind = "run_started"
	EventStageStarted   EventKind = "stage_started"
	EventStageDone      EventKind = "stage_done"
	EventCleanupStarted EventKind = "cleanup_started"
	EventCleanupDone    EventKind = "cleanup_done"
	EventRunDone        EventKind = "run_done"
)

// Event is a progress notification for one run.
type Event struct {
	Kind     EventKind
	RunID    string
	Workflow Name
	Stages   []string
	Index    int
	Stage    string
	Status   models.StageStatus
	Removed  int
	Err      error
	Elapsed  time.Duration
}

// Request selects a workflow and supplies its inputs.
type Request struct {
	Workflow Name
	Inputs   pipeline.Inputs
	// Observer receives every worker action; optional.
	Observer pipeline.Observer
	// Events receives progress notifications; optional.
	Events func(Event)
}

// Outcome is the result of a successful run.
type Outcome struct {
	RunID    string
	Workflow Name
	Result   *pipeline.Result
	// Cleanup is set when isolated-node cleanup ran.
	Cleanup *cleanup.Summary
	Elapsed time.Duration
}

// UploadStatus returns the structured status of a data-upload run.
func (o *Outcome) UploadStatus() models.UploadStatus {
	st := models.UploadStatus{
		RunID:          o.RunID,
		Workflow:       string(o.Workflow),
		ElapsedSeconds: o.Elapsed.Seconds(),
	}
	if o.Result != nil {
		st.Report = o.Result.Output
		st.Stages = pipeline.Records(o.Result.Trace)
	}
	if o.Cleanup != nil {
		st.CleanupRan = true
		st.NodesRemoved = o.Cleanup.Removed
	}
	return st
}

// EngineConfig holds the engine's collaborators.
type EngineConfig struct {
	Registry  *provider.Registry
	Providers []provider.Spec
	Invoker   pipeline.Invoker
	Cleaner   cleanup.Cleaner
	Catalog   *Catalog
	// Recorder is optional.
	Recorder Recorder
}

// Engine runs catalog workflows. It keeps no per-run state, so one Engine
// may serve concurrent requests; each run acquires its own providers.
type Engine struct {
	registry  *provider.Registry
	providers []provider.Spec
	invoker   pipeline.Invoker
	cleaner   cleanup.Cleaner
	recorder  Recorder
	catalog   atomic.Pointer[Catalog]
}

// NewEngine validates cfg and creates an engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("engine: registry is required")
	case cfg.Invoker == nil:
		return nil, errors.New("engine: invoker is required")
	case cfg.Cleaner == nil:
		return nil, errors.New("engine: cleaner is required")
	case cfg.Catalog == nil:
		return nil, errors.New("engine: catalog is required")
	}

	e := &Engine{
		registry:  cfg.Registry,
		providers: cfg.Providers,
		invoker:   cfg.Invoker,
		cleaner:   cfg.Cleaner,
		recorder:  cfg.Recorder,
	}
	e.catalog.Store(cfg.Catalog)
	return e, nil
}

// SetCatalog swaps the catalog used by subsequent runs.
func (e *Engine) SetCatalog(c *Catalog) {
	if c != nil {
		e.catalog.Store(c)
	}
}

// Catalog returns the current catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog.Load()
}

// Run executes one workflow. Providers are acquired for the duration of the
// call and released before Run returns, whatever the outcome.
//
// Errors: provider.ErrCapabilityUnavailable before any stage runs,
// pipeline.ErrStageExecution when a stage fails, and *CleanupError when the
// pipeline completed but cleanup did not.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	runID := uuid.NewString()
	start := time.Now()
	catalog := e.Catalog()

	def, err := catalog.Definition(req.Workflow)
	if err != nil {
		return nil, err
	}

	emit := func(ev Event) {
		if req.Events == nil {
			return
		}
		ev.RunID, ev.Workflow = runID, def.Name
		req.Events(ev)
	}

	log.Printf("[workflow] %s %s: started", shortID(runID), def.Name)
	emit(Event{Kind: EventRunStarted, Stages: def.StageNames()})

	out := &Outcome{RunID: runID, Workflow: def.Name}
	err = provider.With(ctx, e.registry, e.providers, func(scope *provider.Scope) error {
		log.Printf("[registry] available capabilities: %s", strings.Join(scope.Names(), ", "))

		if err := scope.Require(def.RequiredCapabilities()); err != nil {
			return err
		}

		if def.Name == EditSchema && strings.TrimSpace(req.Inputs.Instructions) == "" {
			log.Printf("[workflow] %s %s: no edit instructions, returning diagram unchanged", shortID(runID), def.Name)
			out.Result = pipeline.Skipped(string(def.Name), def.Stages[0].Name, req.Inputs.Diagram)
			emit(Event{Kind: EventStageDone, Index: 0, Stage: def.Stages[0].Name, Status: models.StageStatusSkipped})
			return nil
		}

		p, err := catalog.Build(def.Name, scope, req.Observer)
		if err != nil {
			return err
		}

		res, err := p.Run(ctx, e.invoker, req.Inputs, &pipeline.Hooks{
			OnStageStart: func(i int, name string) {
				emit(Event{Kind: EventStageStarted, Index: i, Stage: name})
			},
			OnStageDone: func(r pipeline.StageResult) {
				emit(Event{Kind: EventStageDone, Index: r.Index, Stage: r.Name, Status: r.Status, Err: r.Err, Elapsed: r.Duration})
			},
		})
		if err != nil {
			return err
		}
		out.Result = res

		if !def.Cleanup {
			return nil
		}
		emit(Event{Kind: EventCleanupStarted})
		sum, err := e.cleaner.DeleteIsolatedNodes(ctx)
		emit(Event{Kind: EventCleanupDone, Removed: sum.Removed, Err: err})
		if err != nil {
			return &CleanupError{Result: res, Err: err}
		}
		out.Cleanup = &sum
		return nil
	})
	out.Elapsed = time.Since(start)

	if err != nil {
		log.Printf("[workflow] %s %s: error after %.2fs: %v", shortID(runID), def.Name, out.Elapsed.Seconds(), err)
	} else {
		log.Printf("[workflow] %s %s: completed in %.2fs", shortID(runID), def.Name, out.Elapsed.Seconds())
	}
	emit(Event{Kind: EventRunDone, Err: err, Elapsed: out.Elapsed})
	e.record(ctx, req, out, start, err)

	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) record(ctx context.Context, req Request, out *Outcome, start time.Time, runErr error) {
	if e.recorder == nil {
		return
	}

	rec := models.RunRecord{
		ID:           out.RunID,
		Workflow:     string(out.Workflow),
		Usecase:      req.Inputs.Usecase,
		Status:       models.RunStatusDone,
		NodesRemoved: -1,
		StartedAt:    start,
		Duration:     out.Elapsed,
	}
	if out.Result != nil {
		rec.Output = out.Result.Output
		rec.Stages = pipeline.Records(out.Result.Trace)
	}
	if out.Cleanup != nil {
		rec.NodesRemoved = out.Cleanup.Removed
	}

	var se *pipeline.StageError
	var ce *CleanupError
	switch {
	case runErr == nil:
	case errors.As(runErr, &ce):
		rec.Status = models.RunStatusCleanupFailed
		rec.Error = runErr.Error()
		rec.Output = ce.Result.Output
		rec.Stages = pipeline.Records(ce.Result.Trace)
	case errors.As(runErr, &se):
		rec.Status = models.RunStatusFailed
		rec.Error = runErr.Error()
		rec.Stages = append(pipeline.Records(se.Trace), models.StageRecord{
			Index:  se.Index,
			Name:   se.Stage,
			Status: models.StageStatusFailed,
			Error:  se.Err.Error(),
		})
	default:
		rec.Status = models.RunStatusFailed
		rec.Error = runErr.Error()
	}

	// The journal write must survive a cancelled request context.
	if err := e.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
		log.Printf("[workflow] %s: warning: failed to record run: %v", shortID(out.RunID), err)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
