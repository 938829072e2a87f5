// pkg/render/input.go
package render

import (
	"unicode"

	"github.com/opd-ai/go-quadsim/pkg/engine"
)

// Action is a viewer command decoded from a key press
type Action int

const (
	ActionNone Action = iota
	ActionBruteForce
	ActionQuadTree
	ActionToggleCells
	ActionToggleStats
	ActionQuit
)

// KeyAction maps a typed character to an Action. B and Q pick the detection
// mode, C and S toggle the cell overlay and statistics.
func KeyAction(r rune) Action {
	switch unicode.ToLower(r) {
	case 'b':
		return ActionBruteForce
	case 'q':
		return ActionQuadTree
	case 'c':
		return ActionToggleCells
	case 's':
		return ActionToggleStats
	}
	return ActionNone
}

// ModeSetter receives mode requests. *engine.Simulation satisfies it.
type ModeSetter interface {
	SetMode(m engine.Mode) error
}

// Apply performs a on view or modes. It reports whether the viewer should
// quit.
func Apply(a Action, view *View, modes ModeSetter) (quit bool, err error) {
	switch a {
	case ActionBruteForce:
		err = modes.SetMode(engine.ModeBruteForce)
	case ActionQuadTree:
		err = modes.SetMode(engine.ModeQuadTree)
	case ActionToggleCells:
		view.ShowCells = !view.ShowCells
	case ActionToggleStats:
		view.ShowStats = !view.ShowStats
	case ActionQuit:
		return true, nil
	}
	return false, err
}
