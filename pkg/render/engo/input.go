// pkg/render/engo/input.go
package engo

import (
	"context"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"

	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/render"
)

// Button names registered with engo.Input
const (
	buttonBrute     = "bruteForce"
	buttonQuadTree  = "quadTree"
	buttonCells     = "toggleCells"
	buttonStats     = "toggleStats"
	buttonQuit      = "quit"
	buttonZoomIn    = "zoomIn"
	buttonZoomOut   = "zoomOut"
	buttonResetZoom = "resetZoom"
)

var buttonActions = []struct {
	name   string
	action render.Action
}{
	{buttonBrute, render.ActionBruteForce},
	{buttonQuadTree, render.ActionQuadTree},
	{buttonCells, render.ActionToggleCells},
	{buttonStats, render.ActionToggleStats},
	{buttonQuit, render.ActionQuit},
}

// SetupInputBindings registers the viewer's key bindings
func SetupInputBindings() {
	engo.Input.RegisterButton(buttonBrute, engo.KeyB)
	engo.Input.RegisterButton(buttonQuadTree, engo.KeyQ)
	engo.Input.RegisterButton(buttonCells, engo.KeyC)
	engo.Input.RegisterButton(buttonStats, engo.KeyS)
	engo.Input.RegisterButton(buttonQuit, engo.KeyEscape)
	engo.Input.RegisterButton(buttonZoomIn, engo.KeyEquals, engo.KeyArrowUp)
	engo.Input.RegisterButton(buttonZoomOut, engo.KeyDash, engo.KeyArrowDown)
	engo.Input.RegisterButton(buttonResetZoom, engo.KeyR)
}

// InputSystem turns key presses into render actions every frame
type InputSystem struct {
	view   *render.View
	modes  render.ModeSetter
	camera *Camera
	logger *logging.Logger

	// seams over engo's global input and exit
	justPressed func(name string) bool
	exit        func()
}

// NewInputSystem creates an input system acting on view and modes
func NewInputSystem(view *render.View, modes render.ModeSetter, camera *Camera, logger *logging.Logger) *InputSystem {
	if logger == nil {
		logger = logging.Discard()
	}
	return &InputSystem{
		view:   view,
		modes:  modes,
		camera: camera,
		logger: logger,
		justPressed: func(name string) bool {
			return engo.Input.Button(name).JustPressed()
		},
		exit: engo.Exit,
	}
}

// Update satisfies the ecs.System interface
func (is *InputSystem) Update(float32) {
	for _, b := range buttonActions {
		if !is.justPressed(b.name) {
			continue
		}
		quit, err := render.Apply(b.action, is.view, is.modes)
		if err != nil {
			is.logger.Warn(context.Background(), "mode change rejected", "error", err)
		}
		if quit {
			is.exit()
			return
		}
	}

	if is.camera == nil {
		return
	}
	switch {
	case is.justPressed(buttonZoomIn):
		is.camera.SetZoom(is.camera.Zoom() * 1.25)
	case is.justPressed(buttonZoomOut):
		is.camera.SetZoom(is.camera.Zoom() / 1.25)
	case is.justPressed(buttonResetZoom):
		is.camera.SetZoom(1)
	}
}

// Remove satisfies the ecs.System interface
func (is *InputSystem) Remove(ecs.BasicEntity) {}
