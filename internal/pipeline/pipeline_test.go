package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/ShayCichocki/graphseed/internal/provider"
	"github.com/ShayCichocki/graphseed/pkg/models"
)

type recordingInvoker struct {
	calls   []Task
	outputs map[string]string
	failOn  string
	failErr error
}

func (r *recordingInvoker) Invoke(ctx context.Context, w *Worker, task Task) (string, error) {
	r.calls = append(r.calls, task)
	if task.Stage == r.failOn {
		if r.failErr != nil {
			return "", r.failErr
		}
		return "", errors.New("model refused")
	}
	if out, ok := r.outputs[task.Stage]; ok {
		return out, nil
	}
	return task.Stage + " output", nil
}

func (r *recordingInvoker) stages() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.Stage
	}
	return out
}

func plainWorker() *Worker {
	return &Worker{role: "tester", goal: "test"}
}

func step(name, tmpl string, deps ...int) Step {
	return Step{
		Stage: Stage{
			Name:           name,
			Template:       MustParseTemplate(name, tmpl),
			DependsOn:      deps,
			ExpectedOutput: name + " expected",
		},
		Worker: plainWorker(),
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name         string
		steps        []Step
		wantOrdering bool
		wantErr      bool
	}{
		{
			name:    "empty pipeline",
			steps:   nil,
			wantErr: true,
		},
		{
			name:  "linear chain",
			steps: []Step{step("a", "a"), step("b", "b", 0), step("c", "c", 1)},
		},
		{
			name:  "fan in",
			steps: []Step{step("a", "a"), step("b", "b"), step("c", "c", 0, 1)},
		},
		{
			name:         "depends on later stage",
			steps:        []Step{step("a", "a", 1), step("b", "b")},
			wantErr:      true,
			wantOrdering: true,
		},
		{
			name:         "depends on itself",
			steps:        []Step{step("a", "a"), step("b", "b", 1)},
			wantErr:      true,
			wantOrdering: true,
		},
		{
			name:         "depends on undeclared stage",
			steps:        []Step{step("a", "a"), step("b", "b", 7)},
			wantErr:      true,
			wantOrdering: true,
		},
		{
			name:         "negative index",
			steps:        []Step{step("a", "a"), step("b", "b", -1)},
			wantErr:      true,
			wantOrdering: true,
		},
		{
			name:    "duplicate names",
			steps:   []Step{step("a", "a"), step("a", "again")},
			wantErr: true,
		},
		{
			name:    "missing worker",
			steps:   []Step{{Stage: Stage{Name: "a", Template: MustParseTemplate("a", "a")}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("Test", tt.steps...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := errors.Is(err, ErrDependencyOrdering); got != tt.wantOrdering {
				t.Errorf("errors.Is(err, ErrDependencyOrdering) = %v, want %v (err = %v)", got, tt.wantOrdering, err)
			}
		})
	}
}

func TestRun_DeclarationOrder(t *testing.T) {
	p, err := New("Test",
		step("first", "one"),
		step("second", "two ${context}", 0),
		step("third", "three ${context}", 1),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	inv := &recordingInvoker{}
	res, err := p.Run(context.Background(), inv, Inputs{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"first", "second", "third"}
	if got := inv.stages(); !reflect.DeepEqual(got, want) {
		t.Errorf("execution order = %v, want %v", got, want)
	}
	if res.Output != "third output" {
		t.Errorf("Output = %q, want %q", res.Output, "third output")
	}
	if len(res.Trace) != 3 {
		t.Fatalf("len(Trace) = %d, want 3", len(res.Trace))
	}
	for i, r := range res.Trace {
		if r.Index != i || r.Status != models.StageStatusDone {
			t.Errorf("Trace[%d] = {Index:%d Status:%s}", i, r.Index, r.Status)
		}
	}
}

func TestRun_DependencyContext(t *testing.T) {
	p, err := New("Test",
		step("schema", "read"),
		step("unrelated", "noise"),
		step("diagram", "use:\n${context}", 0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	inv := &recordingInvoker{outputs: map[string]string{
		"schema":    "(:Person)",
		"unrelated": "SHOULD NOT APPEAR",
	}}
	if _, err := p.Run(context.Background(), inv, Inputs{}, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	prompt := inv.calls[2].Prompt
	if !strings.Contains(prompt, "(:Person)") {
		t.Errorf("prompt %q missing dependency output", prompt)
	}
	if strings.Contains(prompt, "SHOULD NOT APPEAR") {
		t.Errorf("prompt %q contains output of a non-dependency", prompt)
	}
	if inv.calls[0].Prompt != "read" {
		t.Errorf("first prompt = %q, want %q", inv.calls[0].Prompt, "read")
	}
	if inv.calls[2].ExpectedOutput != "diagram expected" {
		t.Errorf("ExpectedOutput = %q", inv.calls[2].ExpectedOutput)
	}
}

func TestRun_FailFast(t *testing.T) {
	p, err := New("Test",
		step("first", "one"),
		step("second", "two", 0),
		step("third", "three", 1),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var done []StageResult
	hooks := &Hooks{OnStageDone: func(r StageResult) { done = append(done, r) }}
	inv := &recordingInvoker{failOn: "second"}
	res, err := p.Run(context.Background(), inv, Inputs{}, hooks)
	if res != nil {
		t.Errorf("Run() result = %+v, want nil on failure", res)
	}
	if !errors.Is(err, ErrStageExecution) {
		t.Fatalf("Run() error = %v, want ErrStageExecution", err)
	}

	var se *StageError
	if !errors.As(err, &se) {
		t.Fatalf("error %T is not *StageError", err)
	}
	if se.Stage != "second" || se.Index != 1 {
		t.Errorf("StageError = {Stage:%s Index:%d}, want {second 1}", se.Stage, se.Index)
	}
	if len(se.Trace) != 1 || se.Trace[0].Name != "first" {
		t.Errorf("StageError.Trace = %+v, want only first", se.Trace)
	}
	if got := inv.stages(); !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Errorf("invoked %v, third must not run", got)
	}
	if len(done) != 2 || done[1].Status != models.StageStatusFailed {
		t.Errorf("hook results = %+v", done)
	}
}

func TestRun_StageErrorCause(t *testing.T) {
	tests := []struct {
		name         string
		cause        error
		wantDeadline bool
	}{
		{
			name:  "capability lost mid-stage",
			cause: fmt.Errorf("tool read_neo4j_cypher: %w", &provider.UnavailableError{Names: []string{"read_neo4j_cypher"}}),
		},
		{
			name:         "deadline keeps its chain",
			cause:        fmt.Errorf("API call failed: %w", context.DeadlineExceeded),
			wantDeadline: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New("Test", step("first", "one"), step("second", "two", 0))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			inv := &recordingInvoker{failOn: "second", failErr: tt.cause}
			_, err = p.Run(context.Background(), inv, Inputs{}, nil)

			if !errors.Is(err, ErrStageExecution) {
				t.Fatalf("Run() error = %v, want ErrStageExecution", err)
			}
			if errors.Is(err, provider.ErrCapabilityUnavailable) {
				t.Errorf("Run() error = %v, should not match ErrCapabilityUnavailable", err)
			}
			if got := errors.Is(err, context.DeadlineExceeded); got != tt.wantDeadline {
				t.Errorf("Is(DeadlineExceeded) = %v, want %v", got, tt.wantDeadline)
			}
			if !strings.Contains(err.Error(), tt.cause.Error()) {
				t.Errorf("Run() error = %q, want cause message %q", err, tt.cause)
			}
		})
	}
}

func TestRun_CancelledContext(t *testing.T) {
	p, err := New("Test", step("only", "x"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	inv := &recordingInvoker{}
	_, err = p.Run(ctx, inv, Inputs{}, nil)
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrStageExecution) {
		t.Errorf("Run() error = %v, want cancelled stage error", err)
	}
	if len(inv.calls) != 0 {
		t.Errorf("invoker called %d times after cancellation", len(inv.calls))
	}
}

func TestRun_InputSubstitution(t *testing.T) {
	p, err := New("CreateSchema",
		step("ReadExistingSchema", "Read the schema."),
		step("ProposeGraphDiagram",
			"Usecase: ${usecase}\nEntities: ${entities}\nRelationships: ${relationships}\n${context}", 0),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	inv := &recordingInvoker{}
	in := Inputs{
		Usecase:       "Employee Org",
		Entities:      []string{"Employee", "Company"},
		Relationships: []string{"EMPLOYED_AT"},
	}
	if _, err := p.Run(context.Background(), inv, in, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	prompt := inv.calls[1].Prompt
	for _, want := range []string{"Employee Org", "Employee, Company", "EMPLOYED_AT", "ReadExistingSchema output"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt %q missing %q", prompt, want)
		}
	}
}

func TestSkipped(t *testing.T) {
	res := Skipped("EditSchema", "ApplyEditInstructions", "graph TD")
	if res.Output != "graph TD" {
		t.Errorf("Output = %q", res.Output)
	}
	if len(res.Trace) != 1 || res.Trace[0].Status != models.StageStatusSkipped {
		t.Errorf("Trace = %+v", res.Trace)
	}
}

func TestRecords(t *testing.T) {
	trace := []StageResult{
		{Index: 0, Name: "a", Status: models.StageStatusDone, Output: "x"},
		{Index: 1, Name: "b", Status: models.StageStatusFailed, Err: errors.New("bad")},
	}
	recs := Records(trace)
	if recs[0].Error != "" || recs[1].Error != "bad" {
		t.Errorf("Records() errors = %q, %q", recs[0].Error, recs[1].Error)
	}
	if recs[1].Status != models.StageStatusFailed {
		t.Errorf("Records()[1].Status = %s", recs[1].Status)
	}
}
