// pkg/render/engo/camera.go
package engo

import (
	"github.com/EngoEngine/engo"

	"github.com/opd-ai/go-quadsim/pkg/physics"
)

// Camera maps the arena onto the window. At zoom 1 the whole arena fits,
// letterboxed to keep its aspect ratio, and the arena centre stays in the
// middle of the canvas at every zoom level.
type Camera struct {
	arena physics.AABB

	canvasW float32
	canvasH float32

	zoom    float32
	minZoom float32
	maxZoom float32
}

// NewCamera creates a camera showing arena on a canvas of the given size
func NewCamera(arena physics.AABB, canvasW, canvasH float32) *Camera {
	return &Camera{
		arena:   arena,
		canvasW: canvasW,
		canvasH: canvasH,
		zoom:    1.0,
		minZoom: 0.5,
		maxZoom: 8.0,
	}
}

// SetArena changes the world rectangle, e.g. after the first remote snapshot
func (c *Camera) SetArena(arena physics.AABB) {
	c.arena = arena
}

// SetCanvas changes the canvas size
func (c *Camera) SetCanvas(w, h float32) {
	c.canvasW, c.canvasH = w, h
}

// SetZoom sets the zoom level, clamped to the camera limits
func (c *Camera) SetZoom(zoom float32) {
	c.zoom = c.clampZoom(zoom)
}

// Zoom returns the current zoom level
func (c *Camera) Zoom() float32 {
	return c.zoom
}

func (c *Camera) clampZoom(zoom float32) float32 {
	if zoom < c.minZoom {
		return c.minZoom
	}
	if zoom > c.maxZoom {
		return c.maxZoom
	}
	return zoom
}

// Scale returns canvas pixels per world unit
func (c *Camera) Scale() float32 {
	sx := c.canvasW / float32(c.arena.Width())
	sy := c.canvasH / float32(c.arena.Height())
	return min(sx, sy) * c.zoom
}

// WorldToScreen converts a world position to canvas coordinates
func (c *Camera) WorldToScreen(x, y float64) engo.Point {
	s := c.Scale()
	return engo.Point{
		X: float32(x-c.arena.Center.X)*s + c.canvasW/2,
		Y: float32(y-c.arena.Center.Y)*s + c.canvasH/2,
	}
}

// ScreenToWorld converts canvas coordinates back to a world position
func (c *Camera) ScreenToWorld(p engo.Point) physics.Vector2D {
	s := c.Scale()
	return physics.Vector2D{
		X: float64((p.X-c.canvasW/2)/s) + c.arena.Center.X,
		Y: float64((p.Y-c.canvasH/2)/s) + c.arena.Center.Y,
	}
}
