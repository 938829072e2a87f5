// pkg/engine/simulation.go
package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/entity"
	"github.com/opd-ai/go-quadsim/pkg/event"
	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/physics"
)

// Simulation owns the particle population and advances it one frame at a time.
// Step must be called from a single goroutine. SetMode and Snapshot are safe
// to call from any goroutine.
type Simulation struct {
	Config   *config.SimulationConfig
	EventBus *event.Bus

	bounds    physics.AABB
	particles []entity.Particle
	brute     BruteForceDetector
	quad      *QuadTreeDetector
	resolver  *Resolver
	seed      uint64
	logger    *logging.Logger

	requested atomic.Int32
	running   atomic.Bool
	lastFrame atomic.Int64

	// guarded by mu
	mu       sync.RWMutex
	mode     Mode
	frame    uint64
	contacts []Pair
	cells    []CellState
	stats    FrameStats
}

// Option customises a Simulation
type Option func(*Simulation)

// WithLogger sets the logger used by the simulation
func WithLogger(logger *logging.Logger) Option {
	return func(s *Simulation) {
		s.logger = logger
	}
}

// WithEventBus publishes simulation events on bus instead of a private one
func WithEventBus(bus *event.Bus) Option {
	return func(s *Simulation) {
		s.EventBus = bus
	}
}

// NewSimulation validates cfg and spawns the particles. A zero seed is
// replaced by one derived from the clock; Seed reports the value in use.
func NewSimulation(cfg *config.SimulationConfig, opts ...Option) (*Simulation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil simulation config: %w", config.ErrInvalidConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, logging.WrapError(err, "create simulation")
	}
	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, logging.WrapError(err, "create simulation")
	}

	s := &Simulation{
		Config: cfg,
		bounds: physics.FromOrigin(0, 0, cfg.Arena.Width, cfg.Arena.Height),
		seed:   cfg.Seed,
		mode:   mode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.EventBus == nil {
		s.EventBus = event.NewEventBus()
	}
	if s.seed == 0 {
		s.seed = uint64(time.Now().UnixNano())
	}

	rng := rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15))
	s.resolver = NewResolver(cfg.Collision, rng)
	s.quad = NewQuadTreeDetector(s.bounds, cfg.QuadTree, s.logger)
	s.requested.Store(int32(mode))
	s.spawn(rng)

	s.logger.Info(context.Background(), "simulation created",
		"particles", len(s.particles),
		"mode", mode.String(),
		"seed", s.seed,
		"width", cfg.Arena.Width,
		"height", cfg.Arena.Height,
	)
	return s, nil
}

// spawn places particles uniformly inside the spawn margin with random velocities
func (s *Simulation) spawn(rng *rand.Rand) {
	p := s.Config.Particles
	w := s.Config.Arena.Width - 2*p.SpawnMargin
	h := s.Config.Arena.Height - 2*p.SpawnMargin

	s.particles = make([]entity.Particle, p.Count)
	for i := range s.particles {
		pos := physics.Vector2D{
			X: p.SpawnMargin + rng.Float64()*w,
			Y: p.SpawnMargin + rng.Float64()*h,
		}
		s.particles[i] = entity.NewParticle(i, pos, s.resolver.RandomVelocity(), p.Radius)
	}
}

// Seed returns the random seed the simulation was built with
func (s *Simulation) Seed() uint64 {
	return s.seed
}

// Bounds returns the arena rectangle
func (s *Simulation) Bounds() physics.AABB {
	return s.bounds
}

// SetMode requests a detection strategy. It takes effect at the start of the
// next Step.
func (s *Simulation) SetMode(m Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMode, int32(m))
	}
	s.requested.Store(int32(m))
	return nil
}

// ToggleMode requests the other strategy and returns it
func (s *Simulation) ToggleMode() Mode {
	for {
		cur := s.requested.Load()
		next := Mode(cur).Toggle()
		if s.requested.CompareAndSwap(cur, int32(next)) {
			return next
		}
	}
}

// Mode returns the most recently requested strategy
func (s *Simulation) Mode() Mode {
	return Mode(s.requested.Load())
}

// Frame returns the number of completed steps
func (s *Simulation) Frame() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// Stats returns the statistics of the last completed step
func (s *Simulation) Stats() FrameStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Step advances the simulation one frame: integrate, detect with the
// requested strategy, then resolve every contact.
func (s *Simulation) Step() FrameStats {
	start := time.Now()
	mode := Mode(s.requested.Load())

	s.mu.Lock()
	prev := s.mode
	stats, contacts := s.step(mode)
	stats.Duration = time.Since(start)
	s.stats = stats
	s.mu.Unlock()

	s.lastFrame.Store(time.Now().UnixNano())
	s.publishFrame(prev, stats, contacts)
	return stats
}

// step runs one frame with mu held and returns the contacts resolved
func (s *Simulation) step(mode Mode) (FrameStats, []Pair) {
	s.mode = mode
	s.frame++
	stats := FrameStats{Frame: s.frame, Mode: mode}

	for i := range s.particles {
		p := &s.particles[i]
		p.Tick()
		if fx, fy := p.Integrate(s.bounds); fx || fy {
			stats.Bounces++
		}
	}

	var ds DetectStats
	if mode == ModeQuadTree {
		s.contacts, ds = s.quad.Detect(s.particles, s.contacts[:0])
		s.cells = s.quad.Cells(s.cells[:0])
	} else {
		s.contacts, ds = s.brute.Detect(s.particles, s.contacts[:0])
		s.cells = s.cells[:0]
	}

	for _, c := range s.contacts {
		s.resolver.Resolve(&s.particles[c.A], &s.particles[c.B])
	}

	stats.Tests = ds.Tests
	stats.Contacts = len(s.contacts)
	stats.Nodes = ds.Tree.Nodes
	stats.Leaves = ds.Tree.Leaves
	stats.MaxDepth = ds.Tree.MaxDepth
	stats.Overflow = ds.Tree.Overflow
	stats.Rejected = ds.Rejected
	stats.Truncated = ds.Truncated
	return stats, s.contacts
}

// publishFrame sends the events of a finished step. It runs without mu held
// so handlers may call Snapshot.
func (s *Simulation) publishFrame(prev Mode, stats FrameStats, contacts []Pair) {
	ctx := context.Background()

	if prev != stats.Mode {
		s.logger.Info(ctx, "detection mode changed", "from", prev.String(), "to", stats.Mode.String(), "frame", stats.Frame)
		s.EventBus.Publish(event.NewModeEvent(s, prev.String(), stats.Mode.String(), stats.Frame))
	}

	if stats.Rejected > 0 {
		s.logger.Debug(ctx, "inserts rejected", "frame", stats.Frame, "rejected", stats.Rejected)
	}

	if s.EventBus.HandlerCount(event.ParticleCollision) > 0 {
		// contacts still aliases s.contacts; only Step rewrites it
		s.mu.RLock()
		for _, c := range contacts {
			a := s.particles[c.A].GetCollider()
			b := s.particles[c.B].GetCollider()
			res := physics.CheckCollision(a, b)
			s.EventBus.Publish(event.NewCollisionEvent(s, c.A, c.B, res.Penetration, stats.Frame))
		}
		s.mu.RUnlock()
	}

	s.EventBus.Publish(event.NewFrameEvent(s, stats.Frame, stats.Contacts, stats.Tests))
}

// Snapshot returns a deep copy of the current state
func (s *Simulation) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Frame:     s.frame,
		Mode:      s.mode,
		Arena:     s.bounds,
		Particles: make([]ParticleState, len(s.particles)),
		Stats:     s.stats,
	}
	for i, p := range s.particles {
		snap.Particles[i] = ParticleState{
			ID:       p.ID,
			X:        p.Position.X,
			Y:        p.Position.Y,
			Radius:   p.Radius,
			HitTimer: p.HitTimer,
		}
	}
	if len(s.cells) > 0 {
		snap.Cells = append([]CellState(nil), s.cells...)
	}
	return snap
}

// Particles returns a copy of the particle slice
func (s *Simulation) Particles() []entity.Particle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]entity.Particle(nil), s.particles...)
}

// Start marks the simulation as running and publishes SimulationStarted
func (s *Simulation) Start() {
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	s.lastFrame.Store(time.Now().UnixNano())
	s.logger.Info(context.Background(), "simulation started", "mode", s.Mode().String())
	s.EventBus.Publish(&event.BaseEvent{EventType: event.SimulationStarted, Source: s})
}

// Stop marks the simulation as stopped and publishes SimulationStopped
func (s *Simulation) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.logger.Info(context.Background(), "simulation stopped", "frame", s.Frame())
	s.EventBus.Publish(&event.BaseEvent{EventType: event.SimulationStopped, Source: s})
}

// Running reports whether Run is active or Start was called without Stop
func (s *Simulation) Running() bool {
	return s.running.Load()
}

// LastFrameTime returns when the last step finished, or when Start was called
func (s *Simulation) LastFrameTime() time.Time {
	ns := s.lastFrame.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Run steps the simulation at Config.Server.FrameRate until ctx is cancelled
func (s *Simulation) Run(ctx context.Context) error {
	rate := s.Config.Server.FrameRate
	if rate <= 0 {
		return fmt.Errorf("frame rate %d: %w", rate, config.ErrInvalidConfig)
	}

	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	s.Start()
	defer s.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Step()
		}
	}
}
