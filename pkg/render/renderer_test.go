// pkg/render/renderer_test.go
package render

import (
	"errors"
	"strings"
	"testing"

	"github.com/opd-ai/go-quadsim/pkg/engine"
)

func TestParticleColor(t *testing.T) {
	tests := []struct {
		mode engine.Mode
		hit  bool
		want Color
	}{
		{engine.ModeBruteForce, false, Green},
		{engine.ModeBruteForce, true, Red},
		{engine.ModeQuadTree, false, Yellow},
		{engine.ModeQuadTree, true, Magenta},
	}

	for _, tt := range tests {
		if got := ParticleColor(tt.mode, tt.hit); got != tt.want {
			t.Errorf("ParticleColor(%v, %v) = %v, want %v", tt.mode, tt.hit, got, tt.want)
		}
	}
}

func testSnapshot(mode engine.Mode) *engine.Snapshot {
	return &engine.Snapshot{
		Frame: 9,
		Mode:  mode,
		Particles: []engine.ParticleState{
			{ID: 0, X: 10, Y: 10, Radius: 5},
			{ID: 1, X: 20, Y: 20, Radius: 5, HitTimer: 4},
		},
		Cells: []engine.CellState{{Width: 800, Height: 600}, {Width: 400, Height: 300, Depth: 1}},
		Stats: engine.FrameStats{Frame: 9, Mode: mode, Tests: 3, Contacts: 1, Nodes: 2},
	}
}

// recordingRenderer keeps the colours it was asked to draw
type recordingRenderer struct {
	NullRenderer
	colors []Color
	order  []string
}

func (r *recordingRenderer) RenderCell(c engine.CellState) {
	r.order = append(r.order, "cell")
	r.NullRenderer.RenderCell(c)
}

func (r *recordingRenderer) RenderParticle(p engine.ParticleState, c Color) {
	r.order = append(r.order, "particle")
	r.colors = append(r.colors, c)
	r.NullRenderer.RenderParticle(p, c)
}

func TestDraw(t *testing.T) {
	tests := []struct {
		name      string
		snap      *engine.Snapshot
		view      View
		cells     int
		particles int
		colors    []Color
	}{
		{
			name:      "quadtree with cells",
			snap:      testSnapshot(engine.ModeQuadTree),
			view:      View{ShowCells: true},
			cells:     2,
			particles: 2,
			colors:    []Color{Yellow, Magenta},
		},
		{
			name:      "quadtree without cells",
			snap:      testSnapshot(engine.ModeQuadTree),
			particles: 2,
			colors:    []Color{Yellow, Magenta},
		},
		{
			name:      "brute force",
			snap:      testSnapshot(engine.ModeBruteForce),
			view:      View{ShowCells: true},
			cells:     2,
			particles: 2,
			colors:    []Color{Green, Red},
		},
		{
			name: "no snapshot yet",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recordingRenderer{NullRenderer: *NewNullRenderer(nil)}
			Draw(r, tt.snap, tt.view)

			if r.Frames != 1 {
				t.Errorf("Present called %d times", r.Frames)
			}
			if r.Cells != tt.cells || r.Particles != tt.particles {
				t.Errorf("drew %d cells and %d particles, want %d and %d", r.Cells, r.Particles, tt.cells, tt.particles)
			}
			for i, c := range tt.colors {
				if r.colors[i] != c {
					t.Errorf("particle %d colour %v, want %v", i, r.colors[i], c)
				}
			}
			if tt.cells > 0 && r.order[0] != "cell" {
				t.Error("cells should be drawn beneath particles")
			}
			if len(r.Lines) == 0 {
				t.Error("no HUD text")
			}
		})
	}
}

func TestHUDLines(t *testing.T) {
	brute := HUDLines(testSnapshot(engine.ModeBruteForce), View{})
	if len(brute) != 1 || brute[0] != "Mode: Brute Force (press Q)" {
		t.Errorf("brute force HUD = %q", brute)
	}

	quad := HUDLines(testSnapshot(engine.ModeQuadTree), View{ShowStats: true})
	if quad[0] != "Mode: QuadTree (press B)" {
		t.Errorf("quadtree mode line = %q", quad[0])
	}
	joined := strings.Join(quad, "\n")
	for _, want := range []string{"Frame 9", "particles 2", "contacts 1", "Nodes 2"} {
		if !strings.Contains(joined, want) {
			t.Errorf("HUD missing %q:\n%s", want, joined)
		}
	}
}

type fakeModes struct {
	got []engine.Mode
	err error
}

func (f *fakeModes) SetMode(m engine.Mode) error {
	f.got = append(f.got, m)
	return f.err
}

func TestKeyActionAndApply(t *testing.T) {
	tests := []struct {
		key    rune
		action Action
	}{
		{'b', ActionBruteForce},
		{'B', ActionBruteForce},
		{'q', ActionQuadTree},
		{'Q', ActionQuadTree},
		{'c', ActionToggleCells},
		{'s', ActionToggleStats},
		{'x', ActionNone},
	}
	for _, tt := range tests {
		if got := KeyAction(tt.key); got != tt.action {
			t.Errorf("KeyAction(%q) = %v, want %v", tt.key, got, tt.action)
		}
	}

	modes := &fakeModes{}
	view := View{}

	Apply(ActionBruteForce, &view, modes)
	Apply(ActionQuadTree, &view, modes)
	Apply(ActionToggleCells, &view, modes)
	Apply(ActionToggleStats, &view, modes)

	if len(modes.got) != 2 || modes.got[0] != engine.ModeBruteForce || modes.got[1] != engine.ModeQuadTree {
		t.Errorf("mode requests = %v", modes.got)
	}
	if !view.ShowCells || !view.ShowStats {
		t.Errorf("view after toggles = %+v", view)
	}

	if quit, _ := Apply(ActionQuit, &view, modes); !quit {
		t.Error("ActionQuit should quit")
	}

	modes.err = errors.New("offline")
	if _, err := Apply(ActionBruteForce, &view, modes); err == nil {
		t.Error("SetMode error should be returned")
	}
}
