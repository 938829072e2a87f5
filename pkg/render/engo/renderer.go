// pkg/render/engo/renderer.go
package engo

import (
	"image/color"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/render"
)

// Z layers
const (
	cellLayer     float32 = 0
	particleLayer float32 = 1
)

// spriteSystem is the part of common.RenderSystem the renderer needs
type spriteSystem interface {
	Add(basic *ecs.BasicEntity, render *common.RenderComponent, space *common.SpaceComponent)
}

// sprite is one drawable entity. Sprites are pooled and reused across frames;
// the ones a frame does not need are hidden.
type sprite struct {
	ecs.BasicEntity
	common.RenderComponent
	common.SpaceComponent
}

// EngoRenderer implements render.Renderer on top of the engo render system.
// Particles are circles and quadtree cells are outlined rectangles.
type EngoRenderer struct {
	system spriteSystem
	camera *Camera
	hud    *HUDSystem

	// layer assigns a z index. Defaults to RenderComponent.SetZIndex.
	layer func(rc *common.RenderComponent, z float32)

	particles []*sprite
	cells     []*sprite
	usedP     int
	usedC     int
	lines     []string
}

// NewEngoRenderer creates a renderer adding its entities to system. hud may
// be nil.
func NewEngoRenderer(system spriteSystem, camera *Camera, hud *HUDSystem) *EngoRenderer {
	return &EngoRenderer{
		system: system,
		camera: camera,
		hud:    hud,
		layer:  (*common.RenderComponent).SetZIndex,
	}
}

func toRGBA(c render.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// Clear implements render.Renderer
func (r *EngoRenderer) Clear() {
	r.usedP, r.usedC = 0, 0
	r.lines = r.lines[:0]
}

func (r *EngoRenderer) newSprite(drawable common.Drawable, z float32) *sprite {
	s := &sprite{BasicEntity: ecs.NewBasic()}
	s.RenderComponent.Drawable = drawable
	r.layer(&s.RenderComponent, z)
	r.system.Add(&s.BasicEntity, &s.RenderComponent, &s.SpaceComponent)
	return s
}

// RenderCell implements render.Renderer
func (r *EngoRenderer) RenderCell(cell engine.CellState) {
	if r.usedC == len(r.cells) {
		r.cells = append(r.cells, r.newSprite(common.Rectangle{
			BorderWidth: 1,
			BorderColor: toRGBA(render.CellColor),
		}, cellLayer))
	}
	s := r.cells[r.usedC]
	r.usedC++

	scale := r.camera.Scale()
	s.Position = r.camera.WorldToScreen(cell.X, cell.Y)
	s.Width = float32(cell.Width) * scale
	s.Height = float32(cell.Height) * scale
	s.Color = color.Transparent
	s.Hidden = false
}

// RenderParticle implements render.Renderer
func (r *EngoRenderer) RenderParticle(p engine.ParticleState, c render.Color) {
	if r.usedP == len(r.particles) {
		r.particles = append(r.particles, r.newSprite(common.Circle{}, particleLayer))
	}
	s := r.particles[r.usedP]
	r.usedP++

	d := float32(2*p.Radius) * r.camera.Scale()
	s.Position = r.camera.WorldToScreen(p.X-p.Radius, p.Y-p.Radius)
	s.Width, s.Height = d, d
	s.Color = toRGBA(c)
	s.Hidden = false
}

// RenderText implements render.Renderer
func (r *EngoRenderer) RenderText(_ int, text string) {
	r.lines = append(r.lines, text)
}

// Present implements render.Renderer by hiding pooled sprites this frame
// did not use and handing the text to the HUD.
func (r *EngoRenderer) Present() {
	for _, s := range r.particles[r.usedP:] {
		s.Hidden = true
	}
	for _, s := range r.cells[r.usedC:] {
		s.Hidden = true
	}
	if r.hud != nil {
		r.hud.SetLines(r.lines)
	}
}

// Visible returns how many particles and cells the last frame showed
func (r *EngoRenderer) Visible() (particles, cells int) {
	return r.usedP, r.usedC
}

