// pkg/render/engo/hud.go
package engo

import (
	"bytes"
	"fmt"
	"image/color"
	"strings"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	hudFontURL  = "quadsim/gomono.ttf"
	hudFontSize = 14
	hudLayer    = 10
)

// HUDSystem draws the overlay text in the top-left corner of the window
type HUDSystem struct {
	system spriteSystem
	font   *common.Font
	label  *sprite

	text  string
	dirty bool
}

// NewHUDSystem creates a HUD adding its label to system. Text is only drawn
// once a font is set.
func NewHUDSystem(system spriteSystem) *HUDSystem {
	return &HUDSystem{system: system}
}

// LoadHUDFont registers the embedded Go Mono face with engo and prepares it
func LoadHUDFont() (*common.Font, error) {
	if err := engo.Files.LoadReaderData(hudFontURL, bytes.NewReader(gomono.TTF)); err != nil {
		return nil, fmt.Errorf("load hud font: %w", err)
	}
	font := &common.Font{
		URL:  hudFontURL,
		FG:   color.White,
		Size: hudFontSize,
	}
	if err := font.CreatePreloaded(); err != nil {
		return nil, fmt.Errorf("create hud font: %w", err)
	}
	return font, nil
}

// SetFont sets the font used for HUD text rendering
func (h *HUDSystem) SetFont(font *common.Font) {
	h.font = font
	h.dirty = true
}

// SetLines replaces the HUD text
func (h *HUDSystem) SetLines(lines []string) {
	text := strings.Join(lines, "\n")
	if text != h.text {
		h.text = text
		h.dirty = true
	}
}

// Text returns the current HUD text
func (h *HUDSystem) Text() string {
	return h.text
}

// Update satisfies the ecs.System interface
func (h *HUDSystem) Update(float32) {
	if !h.dirty || h.font == nil {
		return
	}
	h.dirty = false

	drawable := common.Text{Font: h.font, Text: h.text, LineSpacing: 0.2}
	if h.label != nil {
		h.label.Drawable = drawable
		return
	}

	h.label = &sprite{BasicEntity: ecs.NewBasic()}
	h.label.Drawable = drawable
	h.label.SetShader(common.TextHUDShader)
	h.label.SetZIndex(hudLayer)
	h.label.Position = engo.Point{X: 10, Y: 10}
	h.system.Add(&h.label.BasicEntity, &h.label.RenderComponent, &h.label.SpaceComponent)
}

// Remove satisfies the ecs.System interface
func (h *HUDSystem) Remove(ecs.BasicEntity) {}
