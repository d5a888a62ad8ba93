package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/ShayCichocki/graphseed/internal/pipeline"
	"github.com/ShayCichocki/graphseed/internal/tui"
	"github.com/ShayCichocki/graphseed/internal/workflow"
)

// runWithTUI runs req while the progress TUI owns the terminal. Quitting the
// TUI before the run returns cancels the run.
func runWithTUI(ctx context.Context, runner workflowRunner, req workflow.Request) (*workflow.Outcome, error) {
	// Log output corrupts the display.
	originalOutput := log.Writer()
	log.SetOutput(io.Discard)
	defer log.SetOutput(originalOutput)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	program, _ := tui.NewProgressProgram(string(req.Workflow))
	req.Events = func(ev workflow.Event) {
		program.Send(tui.EventMsg{Event: ev})
	}
	req.Observer = func(a pipeline.Action) {
		program.Send(tui.ActionMsg{Action: a})
	}

	type result struct {
		out *workflow.Outcome
		err error
	}
	runDone := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in workflow run: %v", r)
				program.Send(tui.DoneMsg{Err: err})
				runDone <- result{err: err}
			}
		}()
		out, err := runner.Run(ctx, req)
		program.Send(tui.DoneMsg{Err: err})
		runDone <- result{out: out, err: err}
	}()

	_, tuiErr := program.Run()
	cancel()
	r := <-runDone
	if tuiErr != nil && r.err == nil {
		return r.out, fmt.Errorf("tui: %w", tuiErr)
	}
	return r.out, r.err
}
