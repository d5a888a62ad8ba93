package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/graphseed/internal/pipeline"
)

// StageInvoker runs pipeline stages through an AgentLoop.
type StageInvoker struct {
	client        *Client
	maxIterations int
}

// NewStageInvoker creates an invoker backed by client.
func NewStageInvoker(client *Client, maxIterations int) *StageInvoker {
	return &StageInvoker{client: client, maxIterations: maxIterations}
}

// Invoke implements pipeline.Invoker.
func (s *StageInvoker) Invoke(ctx context.Context, w *pipeline.Worker, task pipeline.Task) (string, error) {
	loop := NewAgentLoop(AgentLoopConfig{Client: s.client, MaxIterations: s.maxIterations})
	loop.SetStreamHandler(func(ev StreamEvent) {
		if a, ok := actionFor(task.Stage, ev); ok {
			w.Observe(a)
		}
	})

	res, err := loop.RunWithTools(ctx, SystemPrompt(w), UserPrompt(task), w.Capabilities())
	if res != nil {
		log.Printf("[api] %s/%s: %d call(s), %d tool call(s), %d in / %d out tokens",
			task.Workflow, task.Stage, res.Iterations, res.ToolCalls, res.TokensIn, res.TokensOut)
	}
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// SystemPrompt renders the worker persona.
func SystemPrompt(w *pipeline.Worker) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s.\n", w.Role())
	if b := strings.TrimSpace(w.Backstory()); b != "" {
		sb.WriteString(b)
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Your personal goal is: %s\n", w.Goal())
	if names := w.CapabilityNames(); len(names) > 0 {
		fmt.Fprintf(&sb, "You may only use these tools: %s\n", strings.Join(names, ", "))
	}
	return sb.String()
}

// UserPrompt renders the stage task and its output contract.
func UserPrompt(task pipeline.Task) string {
	if strings.TrimSpace(task.ExpectedOutput) == "" {
		return task.Prompt
	}
	return task.Prompt + "\n\nThis is the expected criteria for your final answer:\n" + task.ExpectedOutput +
		"\nYou MUST return the actual complete content as the final answer, not a summary."
}

func actionFor(stage string, ev StreamEvent) (pipeline.Action, bool) {
	a := pipeline.Action{Stage: stage, Capability: ev.Tool}
	switch ev.Type {
	case "text":
		a.Kind, a.Text = pipeline.ActionThought, ev.Content
	case "tool_use":
		a.Kind, a.Text = pipeline.ActionToolCall, string(ev.Input)
	case "tool_result":
		a.Kind, a.Text = pipeline.ActionToolResult, ev.Content
	case "error":
		a.Kind, a.Text = pipeline.ActionToolResult, ev.Content
		a.Err = errors.New(ev.Content)
	case "done":
		a.Kind, a.Text = pipeline.ActionAnswer, ev.Content
	default:
		return pipeline.Action{}, false
	}
	return a, true
}

var _ pipeline.Invoker = (*StageInvoker)(nil)
