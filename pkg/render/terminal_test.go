// pkg/render/terminal_test.go
package render

import (
	"strings"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/engine"
	"github.com/opd-ai/go-quadsim/pkg/physics"
)

func newTestScreen(t *testing.T, w, h int) tcell.SimulationScreen {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("screen init: %v", err)
	}
	screen.SetSize(w, h)
	t.Cleanup(screen.Fini)
	return screen
}

func contentAt(screen tcell.Screen, x, y int) (rune, tcell.Color) {
	ch, _, st, _ := screen.GetContent(x, y)
	fg, _, _ := st.Decompose()
	return ch, fg
}

func TestTerminalRenderer_WorldToScreen(t *testing.T) {
	screen := newTestScreen(t, 80, 24)
	r := NewTerminalRenderer(screen, physics.FromOrigin(0, 0, 800, 600))

	tests := []struct {
		name   string
		x, y   float64
		sx, sy int
	}{
		{name: "origin", x: 0, y: 0, sx: 0, sy: hudRows},
		{name: "centre", x: 405, y: 305, sx: 40, sy: hudRows + 10},
		{name: "far corner", x: 799, y: 599, sx: 79, sy: 23},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sx, sy := r.worldToScreen(tt.x, tt.y)
			if sx != tt.sx || sy != tt.sy {
				t.Errorf("worldToScreen(%v, %v) = (%d, %d), want (%d, %d)", tt.x, tt.y, sx, sy, tt.sx, tt.sy)
			}
		})
	}
}

func TestTerminalRenderer_RenderParticle(t *testing.T) {
	screen := newTestScreen(t, 80, 24)
	r := NewTerminalRenderer(screen, physics.FromOrigin(0, 0, 800, 600))

	r.Clear()
	r.RenderParticle(engine.ParticleState{X: 405, Y: 305, Radius: 5}, ParticleColor(engine.ModeQuadTree, false))
	r.RenderParticle(engine.ParticleState{X: 105, Y: 105, Radius: 5, HitTimer: 2}, ParticleColor(engine.ModeBruteForce, true))
	r.RenderParticle(engine.ParticleState{X: -50, Y: 10000, Radius: 5}, Green)
	r.Present()

	ch, fg := contentAt(screen, 40, hudRows+10)
	if ch != 'o' || fg != tcell.NewRGBColor(int32(Yellow.R), int32(Yellow.G), int32(Yellow.B)) {
		t.Errorf("normal quadtree particle drawn as %q in %v", ch, fg)
	}

	ch, fg = contentAt(screen, 10, hudRows+3)
	if ch != '*' || fg != tcell.NewRGBColor(int32(Red.R), int32(Red.G), int32(Red.B)) {
		t.Errorf("hit brute force particle drawn as %q in %v", ch, fg)
	}
}

func TestTerminalRenderer_RenderCell(t *testing.T) {
	screen := newTestScreen(t, 80, 24)
	r := NewTerminalRenderer(screen, physics.FromOrigin(0, 0, 800, 600))

	r.Clear()
	r.RenderParticle(engine.ParticleState{X: 200, Y: 0}, Green)
	r.RenderCell(engine.CellState{X: 0, Y: 0, Width: 400, Height: 300, Depth: 1})
	r.Present()

	if ch, _ := contentAt(screen, 5, hudRows); ch != '─' {
		t.Errorf("top edge = %q", ch)
	}
	if ch, _ := contentAt(screen, 0, hudRows+5); ch != '│' {
		t.Errorf("left edge = %q", ch)
	}
	if ch, _ := contentAt(screen, 40, hudRows+5); ch != '│' {
		t.Errorf("right edge = %q", ch)
	}
	if ch, _ := contentAt(screen, 20, hudRows); ch != 'o' {
		t.Errorf("cell outline overwrote a particle: %q", ch)
	}
	if ch, _ := contentAt(screen, 20, hudRows+5); ch != ' ' {
		t.Errorf("cell interior = %q", ch)
	}
}

func TestTerminalRenderer_RenderText(t *testing.T) {
	screen := newTestScreen(t, 20, 24)
	r := NewTerminalRenderer(screen, physics.FromOrigin(0, 0, 800, 600))

	r.Clear()
	r.RenderText(0, "Mode: Brute Force (press Q)")
	r.RenderText(hudRows, "not drawn")
	r.Present()

	var sb strings.Builder
	for x := 0; x < 20; x++ {
		ch, _ := contentAt(screen, x, 0)
		sb.WriteRune(ch)
	}
	if got := sb.String(); got != "Mode: Brute Force (p" {
		t.Errorf("line 0 = %q", got)
	}
	if ch, _ := contentAt(screen, 0, hudRows); ch == 'n' {
		t.Error("text drawn into the arena")
	}
}

func TestTerminalRenderer_DrawSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Particles.Count = 200
	cfg.Seed = 11
	sim, err := engine.NewSimulation(cfg)
	if err != nil {
		t.Fatal(err)
	}
	sim.Step()

	screen := newTestScreen(t, 100, 40)
	r := NewTerminalRenderer(screen, sim.Bounds())
	Draw(r, sim.Snapshot(), View{ShowCells: true, ShowStats: true})

	particles, lines := 0, 0
	for y := hudRows; y < 40; y++ {
		for x := 0; x < 100; x++ {
			switch ch, _ := contentAt(screen, x, y); ch {
			case 'o', '*':
				particles++
			case '─', '│':
				lines++
			}
		}
	}
	if particles == 0 {
		t.Error("no particles on screen")
	}
	if lines == 0 {
		t.Error("no quadtree cells on screen")
	}
}

func TestTerminalRenderer_Resize(t *testing.T) {
	screen := newTestScreen(t, 80, 24)
	r := NewTerminalRenderer(screen, physics.FromOrigin(0, 0, 800, 600))

	screen.SetSize(160, 44)
	if a := r.EventAction(tcell.NewEventResize(160, 44)); a != ActionNone {
		t.Errorf("resize produced action %v", a)
	}
	if r.width != 160 || r.height != 44 {
		t.Errorf("size after resize = %dx%d", r.width, r.height)
	}
	if sx, sy := r.worldToScreen(400, 300); sx != 80 || sy != hudRows+20 {
		t.Errorf("centre maps to (%d, %d) after resize", sx, sy)
	}

	r.SetArena(physics.FromOrigin(0, 0, 1600, 1200))
	if sx, _ := r.worldToScreen(800, 0); sx != 80 {
		t.Errorf("centre column after SetArena = %d", sx)
	}
}
