// Package tui renders live workflow progress in the terminal.
//
// The display is read-only: it lists the workflow's stages with their
// state, the post-run cleanup, and the most recent tool calls made by the
// running stage's worker. Users can only quit with 'q' or Ctrl+C, which
// cancels the run.
//
// Usage:
//
//	program, _ := tui.NewProgressProgram("GenerateDataForUsecase")
//
//	req.Events = func(ev workflow.Event) { program.Send(tui.EventMsg{Event: ev}) }
//	req.Observer = func(a pipeline.Action) { program.Send(tui.ActionMsg{Action: a}) }
//	go func() {
//	    _, err := engine.Run(ctx, req)
//	    program.Send(tui.DoneMsg{Err: err})
//	}()
//
//	program.Run()
package tui
