// pkg/render/engo/scene.go
package engo

import (
	"context"
	"image/color"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/physics"
	"github.com/opd-ai/go-quadsim/pkg/render"
)

// SnapshotSource returns the newest snapshot, or nil before the first frame
type SnapshotSource func() *engine.Snapshot

// SimulationScene shows a simulation in an engo window. It pulls a snapshot
// every frame from source and sends mode requests to modes, so the same
// scene drives a local simulation or a remote stream.
type SimulationScene struct {
	source SnapshotSource
	modes  render.ModeSetter
	arena  physics.AABB
	view   render.View
	logger *logging.Logger

	world    *ecs.World
	camera   *Camera
	renderer *EngoRenderer
	input    *InputSystem
	hud      *HUDSystem
}

// NewSimulationScene creates a scene. arena is the initial world rectangle;
// snapshots carrying a different arena replace it.
func NewSimulationScene(source SnapshotSource, modes render.ModeSetter, arena physics.AABB, view render.View, logger *logging.Logger) *SimulationScene {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SimulationScene{
		source: source,
		modes:  modes,
		arena:  arena,
		view:   view,
		logger: logger,
	}
}

// Type returns the scene type (required by Engo)
func (scene *SimulationScene) Type() string {
	return "SimulationScene"
}

// Preload is called before the scene starts (required by Engo)
func (scene *SimulationScene) Preload() {}

// Setup is called when the scene starts (required by Engo)
func (scene *SimulationScene) Setup(u engo.Updater) {
	world := u.(*ecs.World)
	scene.world = world

	common.SetBackground(color.Black)
	renderSystem := &common.RenderSystem{}
	world.AddSystem(renderSystem)

	SetupInputBindings()

	scene.hud = NewHUDSystem(renderSystem)
	if font, err := LoadHUDFont(); err != nil {
		scene.logger.Error(context.Background(), "hud disabled", err)
	} else {
		scene.hud.SetFont(font)
	}

	scene.camera = NewCamera(scene.arena, engo.GameWidth(), engo.GameHeight())
	scene.renderer = NewEngoRenderer(renderSystem, scene.camera, scene.hud)
	scene.input = NewInputSystem(&scene.view, scene.modes, scene.camera, scene.logger)

	world.AddSystem(scene.input)
	world.AddSystem(&frameSystem{scene: scene})
	world.AddSystem(scene.hud)

	scene.logger.Info(context.Background(), "engo viewer started",
		"width", engo.GameWidth(), "height", engo.GameHeight())
}

// drawFrame renders the newest snapshot
func (scene *SimulationScene) drawFrame() {
	snap := scene.source()
	if snap != nil && snap.Arena != scene.arena && snap.Arena.Width() > 0 {
		scene.arena = snap.Arena
		scene.camera.SetArena(snap.Arena)
	}
	render.Draw(scene.renderer, snap, scene.view)
}

// Exit is called when the scene is exiting (required by Engo)
func (scene *SimulationScene) Exit() {
	scene.logger.Info(context.Background(), "engo viewer closed")
}

// frameSystem draws one snapshot per engo update
type frameSystem struct {
	scene *SimulationScene
}

func (f *frameSystem) Update(float32) {
	f.scene.drawFrame()
}

func (f *frameSystem) Remove(ecs.BasicEntity) {}

// RunOptions describes the viewer window
type RunOptions struct {
	Title  string
	Width  int
	Height int
}

// Run opens the window and blocks until it is closed
func Run(opts RunOptions, scene *SimulationScene) {
	engo.Run(engo.RunOptions{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		VSync:  true,
	}, scene)
}
