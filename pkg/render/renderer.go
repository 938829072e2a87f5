// pkg/render/renderer.go
package render

import (
	"context"
	"fmt"

	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/logging"
)

// Color is an opaque RGB colour
type Color struct {
	R, G, B uint8
}

// Palette
var (
	Green     = Color{0, 228, 48}
	Red       = Color{230, 41, 55}
	Yellow    = Color{253, 249, 0}
	Magenta   = Color{255, 0, 255}
	LightGray = Color{200, 200, 200}
	White     = Color{255, 255, 255}
)

// ParticleColor picks a particle's colour from the detection mode and
// whether it was hit recently.
func ParticleColor(mode engine.Mode, hit bool) Color {
	if mode == engine.ModeBruteForce {
		if hit {
			return Red
		}
		return Green
	}
	if hit {
		return Magenta
	}
	return Yellow
}

// CellColor is used for quadtree cell outlines
var CellColor = LightGray

// Renderer draws one snapshot per frame between Clear and Present
type Renderer interface {
	Clear()
	RenderCell(cell engine.CellState)
	RenderParticle(p engine.ParticleState, c Color)
	RenderText(line int, text string)
	Present()
}

// View holds viewer-side display choices
type View struct {
	ShowCells bool
	ShowStats bool
}

// Draw renders snap: cells first so particles stay on top, then the HUD
func Draw(r Renderer, snap *engine.Snapshot, view View) {
	r.Clear()
	if snap == nil {
		r.RenderText(0, "waiting for first frame...")
		r.Present()
		return
	}

	if view.ShowCells {
		for _, c := range snap.Cells {
			r.RenderCell(c)
		}
	}
	for _, p := range snap.Particles {
		r.RenderParticle(p, ParticleColor(snap.Mode, p.Hit()))
	}
	for i, line := range HUDLines(snap, view) {
		r.RenderText(i, line)
	}
	r.Present()
}

// HUDLines returns the overlay text for snap
func HUDLines(snap *engine.Snapshot, view View) []string {
	lines := []string{modeLine(snap.Mode)}
	if !view.ShowStats {
		return lines
	}
	st := snap.Stats
	lines = append(lines,
		fmt.Sprintf("Frame %d  particles %d  tests %d  contacts %d", snap.Frame, len(snap.Particles), st.Tests, st.Contacts),
	)
	if snap.Mode == engine.ModeQuadTree {
		lines = append(lines,
			fmt.Sprintf("Nodes %d  leaves %d  depth %d  overflow %d  truncated %d", st.Nodes, st.Leaves, st.MaxDepth, st.Overflow, st.Truncated),
		)
	}
	lines = append(lines, fmt.Sprintf("Step %v", st.Duration))
	return lines
}

func modeLine(m engine.Mode) string {
	if m == engine.ModeBruteForce {
		return "Mode: Brute Force (press Q)"
	}
	return "Mode: QuadTree (press B)"
}

// NullRenderer draws nothing. It counts calls and logs them at debug level.
type NullRenderer struct {
	Frames    int
	Cells     int
	Particles int
	Lines     []string

	logger *logging.Logger
}

// NewNullRenderer creates a NullRenderer. A nil logger discards output.
func NewNullRenderer(logger *logging.Logger) *NullRenderer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &NullRenderer{logger: logger}
}

// Clear implements Renderer
func (d *NullRenderer) Clear() {
	d.Cells, d.Particles, d.Lines = 0, 0, d.Lines[:0]
}

// RenderCell implements Renderer
func (d *NullRenderer) RenderCell(engine.CellState) {
	d.Cells++
}

// RenderParticle implements Renderer
func (d *NullRenderer) RenderParticle(engine.ParticleState, Color) {
	d.Particles++
}

// RenderText implements Renderer
func (d *NullRenderer) RenderText(_ int, text string) {
	d.Lines = append(d.Lines, text)
}

// Present implements Renderer
func (d *NullRenderer) Present() {
	d.Frames++
	d.logger.Debug(context.Background(), "frame presented",
		"frame", d.Frames, "cells", d.Cells, "particles", d.Particles)
}
