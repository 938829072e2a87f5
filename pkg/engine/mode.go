// pkg/engine/mode.go
package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/opd-ai/go-quadsim/pkg/config"
)

// Mode selects the candidate strategy used by Step
type Mode int32

const (
	ModeBruteForce Mode = iota
	ModeQuadTree
)

// ErrUnknownMode is returned for mode names or values outside the enum
var ErrUnknownMode = errors.New("unknown detection mode")

// String returns the configuration name of the mode
func (m Mode) String() string {
	switch m {
	case ModeBruteForce:
		return config.ModeBrute
	case ModeQuadTree:
		return config.ModeQuadTree
	default:
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
}

// Valid reports whether m is one of the defined modes
func (m Mode) Valid() bool {
	return m == ModeBruteForce || m == ModeQuadTree
}

// Toggle returns the other mode
func (m Mode) Toggle() Mode {
	if m == ModeQuadTree {
		return ModeBruteForce
	}
	return ModeQuadTree
}

// ParseMode converts a name such as "brute" or "quadtree" to a Mode.
// Matching ignores case and surrounding space.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case config.ModeBrute, "bruteforce", "brute-force":
		return ModeBruteForce, nil
	case config.ModeQuadTree, "qt":
		return ModeQuadTree, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// MarshalText implements encoding.TextMarshaler
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMode, int32(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
