// cmd/viewer/terminal.go
package main

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/render"
)

// terminalFrame is the redraw interval of the terminal viewer
const terminalFrame = 33 * time.Millisecond

// runTerminal draws fe on screen until Escape, Ctrl-C or ctx is done
func runTerminal(ctx context.Context, screen tcell.Screen, fe frontend, view render.View, logger *logging.Logger) error {
	r := render.NewTerminalRenderer(screen, fe.arena)

	ticker := time.NewTicker(terminalFrame)
	defer ticker.Stop()

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				// screen finalised
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev := <-eventChan:
			action := r.EventAction(ev)
			quit, err := render.Apply(action, &view, fe.modes)
			if err != nil {
				logger.Warn(ctx, "Mode change rejected", "error", err)
			}
			if quit {
				return nil
			}
			if action == render.ActionToggleCells && fe.onView != nil {
				fe.onView(view)
			}

		case <-ticker.C:
			snap := fe.source()
			if snap != nil {
				r.SetArena(snap.Arena)
			}
			render.Draw(r, snap, view)
		}
	}
}
