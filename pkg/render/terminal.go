// pkg/render/terminal.go
package render

import (
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/physics"
)

// hudRows is reserved at the top of the screen for text
const hudRows = 4

// TerminalRenderer draws snapshots as characters on a tcell screen. The
// arena is scaled to fit below the HUD rows.
type TerminalRenderer struct {
	screen tcell.Screen
	arena  physics.AABB

	width, height int
	scaleX        float64
	scaleY        float64
}

// NewTerminalRenderer creates a renderer drawing arena onto an initialised
// screen.
func NewTerminalRenderer(screen tcell.Screen, arena physics.AABB) *TerminalRenderer {
	r := &TerminalRenderer{screen: screen, arena: arena}
	r.Resize()
	return r
}

// Resize recomputes the scale after the terminal changed size
func (r *TerminalRenderer) Resize() {
	r.width, r.height = r.screen.Size()
	rows := max(r.height-hudRows, 1)
	r.scaleX = float64(r.width) / r.arena.Width()
	r.scaleY = float64(rows) / r.arena.Height()
}

// SetArena changes the world rectangle mapped to the screen
func (r *TerminalRenderer) SetArena(arena physics.AABB) {
	if arena != r.arena {
		r.arena = arena
		r.Resize()
	}
}

// worldToScreen maps a world position to a terminal cell
func (r *TerminalRenderer) worldToScreen(x, y float64) (int, int) {
	ox, oy := r.arena.Origin()
	sx := int(math.Floor((x - ox) * r.scaleX))
	sy := int(math.Floor((y-oy)*r.scaleY)) + hudRows
	return sx, sy
}

func (r *TerminalRenderer) inside(x, y int) bool {
	return x >= 0 && x < r.width && y >= hudRows && y < r.height
}

func style(c Color) tcell.Style {
	return tcell.StyleDefault.Foreground(tcell.NewRGBColor(int32(c.R), int32(c.G), int32(c.B)))
}

// Clear implements Renderer
func (r *TerminalRenderer) Clear() {
	r.screen.Clear()
}

// RenderCell implements Renderer by drawing the cell outline
func (r *TerminalRenderer) RenderCell(cell engine.CellState) {
	st := style(CellColor)
	x0, y0 := r.worldToScreen(cell.X, cell.Y)
	x1, y1 := r.worldToScreen(cell.X+cell.Width, cell.Y+cell.Height)
	x1, y1 = min(x1, r.width-1), min(y1, r.height-1)

	for x := x0; x <= x1; x++ {
		r.setIfEmpty(x, y0, '─', st)
		r.setIfEmpty(x, y1, '─', st)
	}
	for y := y0; y <= y1; y++ {
		r.setIfEmpty(x0, y, '│', st)
		r.setIfEmpty(x1, y, '│', st)
	}
}

func (r *TerminalRenderer) setIfEmpty(x, y int, ch rune, st tcell.Style) {
	if !r.inside(x, y) {
		return
	}
	if cur, _, _, _ := r.screen.GetContent(x, y); cur != ' ' && cur != 0 {
		return
	}
	r.screen.SetContent(x, y, ch, nil, st)
}

// RenderParticle implements Renderer
func (r *TerminalRenderer) RenderParticle(p engine.ParticleState, c Color) {
	x, y := r.worldToScreen(p.X, p.Y)
	if !r.inside(x, y) {
		return
	}
	ch := 'o'
	if p.Hit() {
		ch = '*'
	}
	r.screen.SetContent(x, y, ch, nil, style(c))
}

// RenderText implements Renderer
func (r *TerminalRenderer) RenderText(line int, text string) {
	if line >= hudRows {
		return
	}
	st := style(White)
	x := 0
	for _, ch := range text {
		if x >= r.width {
			break
		}
		r.screen.SetContent(x, line, ch, nil, st)
		x++
	}
}

// Present implements Renderer
func (r *TerminalRenderer) Present() {
	r.screen.Show()
}

// EventAction decodes a tcell event. Escape and Ctrl-C quit; a resize
// rescales the renderer.
func (r *TerminalRenderer) EventAction(ev tcell.Event) Action {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return ActionQuit
		case tcell.KeyRune:
			return KeyAction(ev.Rune())
		}
	case *tcell.EventResize:
		r.Resize()
		r.screen.Sync()
	}
	return ActionNone
}
