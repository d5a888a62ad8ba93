package pipeline

import (
	"log"

	"github.com/ShayCichocki/graphseed/internal/provider"
)

// CapabilitySource resolves capability names to live handles. *provider.Scope
// satisfies it.
type CapabilitySource interface {
	Bind(names ...string) ([]*provider.Capability, error)
}

// ActionKind identifies what a worker did during a stage.
type ActionKind string

const (
	ActionThought    ActionKind = "thought"
	ActionToolCall   ActionKind = "tool_call"
	ActionToolResult ActionKind = "tool_result"
	ActionAnswer     ActionKind = "answer"
)

// Action is one step a worker took while executing a stage.
type Action struct {
	Kind       ActionKind
	Stage      string
	Capability string
	Text       string
	Err        error
}

// Observer receives worker actions. It cannot affect the stage outcome.
type Observer func(Action)

// Worker is an execution role bound to a fixed subset of capabilities.
type Worker struct {
	role      string
	goal      string
	backstory string
	caps      []*provider.Capability
	observer  Observer
}

// WorkerOption configures optional worker fields.
type WorkerOption func(*Worker)

// WithBackstory sets the persona text given to the model alongside the role
// and goal.
func WithBackstory(backstory string) WorkerOption {
	return func(w *Worker) { w.backstory = backstory }
}

// WithObserver attaches a per-action observer.
func WithObserver(o Observer) WorkerOption {
	return func(w *Worker) { w.observer = o }
}

// BuildWorker binds the named capabilities from src. If any name cannot be
// resolved the error matches provider.ErrCapabilityUnavailable and no worker
// is returned.
func BuildWorker(src CapabilitySource, role, goal string, names []string, opts ...WorkerOption) (*Worker, error) {
	var caps []*provider.Capability
	if len(names) > 0 {
		bound, err := src.Bind(names...)
		if err != nil {
			return nil, err
		}
		caps = bound
	}

	w := &Worker{role: role, goal: goal, caps: caps}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *Worker) Role() string      { return w.role }
func (w *Worker) Goal() string      { return w.goal }
func (w *Worker) Backstory() string { return w.backstory }

// Capabilities returns the bound capabilities in binding order.
func (w *Worker) Capabilities() []*provider.Capability {
	out := make([]*provider.Capability, len(w.caps))
	copy(out, w.caps)
	return out
}

// CapabilityNames returns the names of the bound capabilities.
func (w *Worker) CapabilityNames() []string {
	names := make([]string, len(w.caps))
	for i, c := range w.caps {
		names[i] = c.Name()
	}
	return names
}

// Capability returns the bound capability with the given name.
func (w *Worker) Capability(name string) (*provider.Capability, bool) {
	for _, c := range w.caps {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Observe forwards a to the observer, if any. A panicking observer is logged
// and otherwise ignored.
func (w *Worker) Observe(a Action) {
	if w.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[pipeline] observer panic ignored: %v", r)
		}
	}()
	w.observer(a)
}
