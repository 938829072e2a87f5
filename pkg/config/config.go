// pkg/config/config.go
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Detection mode names accepted in configuration files and environment
const (
	ModeBrute    = "brute"
	ModeQuadTree = "quadtree"
)

// SimulationConfig contains configuration for a particle simulation
type SimulationConfig struct {
	Arena     ArenaConfig     `json:"arena"`
	Particles ParticleConfig  `json:"particles"`
	QuadTree  QuadTreeConfig  `json:"quadtree"`
	Collision CollisionConfig `json:"collision"`
	Mode      string          `json:"mode"`
	Seed      uint64          `json:"seed"`
	Server    ServerConfig    `json:"server"`
}

// ArenaConfig describes the rectangle particles bounce around in.
// The origin is the top-left corner.
type ArenaConfig struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ParticleConfig controls the initial particle population
type ParticleConfig struct {
	Count  int     `json:"count"`
	Radius float64 `json:"radius"`
	// SpawnMargin keeps initial positions this far from every wall
	SpawnMargin float64 `json:"spawnMargin"`
}

// QuadTreeConfig contains spatial index tuning
type QuadTreeConfig struct {
	Capacity        int     `json:"capacity"`
	MinHalfSize     float64 `json:"minHalfSize"`
	QueryLimit      int     `json:"queryLimit"`
	QueryHalfExtent float64 `json:"queryHalfExtent"`
	DedupPairs      bool    `json:"dedupPairs"`
	Workers         int     `json:"workers"`
}

// CollisionConfig contains the contact response settings
type CollisionConfig struct {
	MinSpeed  float64 `json:"minSpeed"`
	MaxSpeed  float64 `json:"maxSpeed"`
	HitFrames int     `json:"hitFrames"`
}

// ServerConfig contains settings for the headless streaming server
type ServerConfig struct {
	Address        string `json:"address"`
	Port           int    `json:"port"`
	FrameRate      int    `json:"frameRate"`
	BroadcastEvery int    `json:"broadcastEvery"`
	MaxViewers     int    `json:"maxViewers"`
	IncludeCells   bool   `json:"includeCells"`
}

// ListenAddr returns host:port for the stream server
func (s ServerConfig) ListenAddr() string {
	return fmt.Sprintf("%s:%d", s.Address, s.Port)
}

// LoadConfig loads a configuration from a file.
// Fields missing from the file keep their default values.
func LoadConfig(path string) (*SimulationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *SimulationConfig, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a default simulation configuration
func DefaultConfig() *SimulationConfig {
	return &SimulationConfig{
		Arena: ArenaConfig{
			Width:  800,
			Height: 600,
		},
		Particles: ParticleConfig{
			Count:       1000,
			Radius:      5,
			SpawnMargin: 20,
		},
		QuadTree: QuadTreeConfig{
			Capacity:        6,
			MinHalfSize:     6,
			QueryLimit:      200,
			QueryHalfExtent: 20,
			DedupPairs:      true,
			Workers:         1,
		},
		Collision: CollisionConfig{
			MinSpeed:  1,
			MaxSpeed:  4,
			HitFrames: 6,
		},
		Mode: ModeQuadTree,
		Seed: 0,
		Server: ServerConfig{
			Address:        "localhost",
			Port:           4680,
			FrameRate:      60,
			BroadcastEvery: 2,
			MaxViewers:     32,
			IncludeCells:   true,
		},
	}
}

// IsKnownMode reports whether name selects a detection strategy
func IsKnownMode(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ModeBrute, "bruteforce", "brute-force", ModeQuadTree, "qt":
		return true
	}
	return false
}

// Validate checks every section and returns all problems at once.
// The returned error wraps ErrInvalidConfig.
func (c *SimulationConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Arena.Width <= 0 || c.Arena.Height <= 0 {
		add("arena must have positive size, got %vx%v", c.Arena.Width, c.Arena.Height)
	}

	p := c.Particles
	if p.Count < 0 {
		add("particle count must not be negative, got %d", p.Count)
	}
	if p.Radius <= 0 {
		add("particle radius must be positive, got %v", p.Radius)
	}
	if p.SpawnMargin < p.Radius {
		add("spawn margin %v must be at least the particle radius %v", p.SpawnMargin, p.Radius)
	}
	if 2*p.SpawnMargin >= c.Arena.Width || 2*p.SpawnMargin >= c.Arena.Height {
		add("spawn margin %v leaves no room in a %vx%v arena", p.SpawnMargin, c.Arena.Width, c.Arena.Height)
	}

	q := c.QuadTree
	if q.Capacity < 1 {
		add("quadtree capacity must be at least 1, got %d", q.Capacity)
	}
	if q.MinHalfSize <= 0 {
		add("quadtree minimum half size must be positive, got %v", q.MinHalfSize)
	}
	if q.QueryHalfExtent < 2*p.Radius {
		add("query half extent %v must cover two particle radii (%v)", q.QueryHalfExtent, 2*p.Radius)
	}
	if q.Workers < 1 {
		add("quadtree workers must be at least 1, got %d", q.Workers)
	}

	col := c.Collision
	if col.MinSpeed <= 0 {
		add("minimum response speed must be positive, got %v", col.MinSpeed)
	}
	if col.MaxSpeed < col.MinSpeed {
		add("maximum response speed %v is below minimum %v", col.MaxSpeed, col.MinSpeed)
	}
	if col.HitFrames < 0 {
		add("hit frames must not be negative, got %d", col.HitFrames)
	}

	if !IsKnownMode(c.Mode) {
		add("unknown mode %q", c.Mode)
	}

	s := c.Server
	if s.Port < 0 || s.Port > 65535 {
		add("server port %d out of range", s.Port)
	}
	if s.FrameRate < 1 || s.FrameRate > 1000 {
		add("frame rate must be between 1 and 1000, got %d", s.FrameRate)
	}
	if s.BroadcastEvery < 1 {
		add("broadcast interval must be at least 1 frame, got %d", s.BroadcastEvery)
	}
	if s.MaxViewers < 1 {
		add("max viewers must be at least 1, got %d", s.MaxViewers)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}
