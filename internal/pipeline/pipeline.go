// Package pipeline executes ordered stages, each bound to a worker, feeding
// the outputs of declared dependencies into later stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ShayCichocki/graphseed/internal/provider"
	"github.com/ShayCichocki/graphseed/pkg/models"
)

// Task is what an Invoker receives for one stage.
type Task struct {
	Workflow       string
	Stage          string
	Index          int
	Prompt         string
	ExpectedOutput string
}

// Invoker runs a worker against a task and returns its final text.
type Invoker interface {
	Invoke(ctx context.Context, w *Worker, task Task) (string, error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, w *Worker, task Task) (string, error)

func (f InvokerFunc) Invoke(ctx context.Context, w *Worker, task Task) (string, error) {
	return f(ctx, w, task)
}

// Step pairs a stage with the worker that executes it.
type Step struct {
	Stage  Stage
	Worker *Worker
}

// Hooks receive stage progress. Either field may be nil.
type Hooks struct {
	OnStageStart func(index int, name string)
	OnStageDone  func(StageResult)
}

func (h *Hooks) start(i int, name string) {
	if h != nil && h.OnStageStart != nil {
		h.OnStageStart(i, name)
	}
}

func (h *Hooks) done(r StageResult) {
	if h != nil && h.OnStageDone != nil {
		h.OnStageDone(r)
	}
}

// Result is the outcome of a completed pipeline.
type Result struct {
	Workflow string
	// Output is the final stage's text.
	Output string
	// Trace holds every stage result in execution order.
	Trace []StageResult
}

// Pipeline is a validated, ordered sequence of steps.
type Pipeline struct {
	workflow string
	steps    []Step
}

// New validates steps and builds a pipeline. A stage may only depend on
// stages declared before it; anything else is an ErrDependencyOrdering.
func New(workflow string, steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline %s has no stages", workflow)
	}

	names := make(map[string]int, len(steps))
	for i, step := range steps {
		if step.Stage.Name == "" {
			return nil, fmt.Errorf("pipeline %s: stage %d has no name", workflow, i)
		}
		if prev, dup := names[step.Stage.Name]; dup {
			return nil, fmt.Errorf("pipeline %s: stage %q declared at %d and %d",
				workflow, step.Stage.Name, prev, i)
		}
		names[step.Stage.Name] = i

		if step.Stage.Template == nil {
			return nil, fmt.Errorf("pipeline %s: stage %s has no template", workflow, step.Stage.Name)
		}
		if step.Worker == nil {
			return nil, fmt.Errorf("pipeline %s: stage %s has no worker", workflow, step.Stage.Name)
		}
		for _, dep := range step.Stage.DependsOn {
			if dep < 0 || dep >= i {
				return nil, &OrderingError{
					Workflow:  workflow,
					Stage:     step.Stage.Name,
					Index:     i,
					DependsOn: dep,
				}
			}
		}
	}

	return &Pipeline{workflow: workflow, steps: steps}, nil
}

// Workflow returns the name of the workflow that produced the pipeline.
func (p *Pipeline) Workflow() string { return p.workflow }

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.steps) }

// StageNames returns the stage names in execution order.
func (p *Pipeline) StageNames() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Stage.Name
	}
	return out
}

// Run executes every stage in declaration order. The first invocation
// failure halts the run and is returned as a *StageError; there are no
// retries.
func (p *Pipeline) Run(ctx context.Context, inv Invoker, in Inputs, hooks *Hooks) (*Result, error) {
	trace := make([]StageResult, 0, len(p.steps))

	for i, step := range p.steps {
		stage := step.Stage
		hooks.start(i, stage.Name)
		log.Printf("[pipeline] %s: stage %d/%d %s started", p.workflow, i+1, len(p.steps), stage.Name)
		start := time.Now()

		out, err := p.runStage(ctx, inv, step, i, in, trace)
		res := StageResult{
			Index:    i,
			Name:     stage.Name,
			Output:   out,
			Duration: time.Since(start),
		}
		if err != nil {
			res.Status = models.StageStatusFailed
			res.Err = err
			hooks.done(res)
			log.Printf("[pipeline] %s: stage %s failed after %.2fs: %v",
				p.workflow, stage.Name, res.Duration.Seconds(), err)
			return nil, &StageError{
				Workflow: p.workflow,
				Stage:    stage.Name,
				Index:    i,
				Trace:    trace,
				Err:      stageCause(err),
			}
		}

		res.Status = models.StageStatusDone
		trace = append(trace, res)
		hooks.done(res)
		log.Printf("[pipeline] %s: stage %s completed in %.2fs", p.workflow, stage.Name, res.Duration.Seconds())
	}

	return &Result{
		Workflow: p.workflow,
		Output:   trace[len(trace)-1].Output,
		Trace:    trace,
	}, nil
}

func (p *Pipeline) runStage(ctx context.Context, inv Invoker, step Step, i int, in Inputs, trace []StageResult) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	prompt, err := step.Stage.Template.Render(in.vars(dependencyContext(step.Stage.DependsOn, trace)))
	if err != nil {
		return "", err
	}

	return inv.Invoke(ctx, step.Worker, Task{
		Workflow:       p.workflow,
		Stage:          step.Stage.Name,
		Index:          i,
		Prompt:         prompt,
		ExpectedOutput: step.Stage.ExpectedOutput,
	})
}

// dependencyContext concatenates the outputs of deps in declaration order.
func dependencyContext(deps []int, trace []StageResult) string {
	if len(deps) == 0 {
		return ""
	}
	parts := make([]string, 0, len(deps))
	for _, d := range deps {
		r := trace[d]
		parts = append(parts, fmt.Sprintf("### Output of %s\n%s", r.Name, r.Output))
	}
	return strings.Join(parts, "\n\n")
}

// Skipped builds a single-stage result for a run that was short-circuited
// without invoking any worker.
func Skipped(workflow, stage, output string) *Result {
	return &Result{
		Workflow: workflow,
		Output:   output,
		Trace: []StageResult{{
			Index:  0,
			Name:   stage,
			Status: models.StageStatusSkipped,
			Output: output,
		}},
	}
}

// stageCause keeps ErrCapabilityUnavailable out of a stage failure's chain:
// that error means no stage ran, so a capability lost mid-stage is reported
// by message only.
func stageCause(err error) error {
	if errors.Is(err, provider.ErrCapabilityUnavailable) {
		return errors.New(err.Error())
	}
	return err
}
