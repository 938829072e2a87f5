// pkg/engine/resolver.go
package engine

import (
	"math"
	"math/rand/v2"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/entity"
	"github.com/opd-ai/go-quadsim/pkg/physics"
)

// Resolver applies the contact response: both particles leave in new random
// directions and start their hit highlight. Positions and radii are never
// touched, so resolving the same pair twice is harmless.
type Resolver struct {
	MinSpeed  float64
	MaxSpeed  float64
	HitFrames int

	rng *rand.Rand
}

// NewResolver creates a resolver drawing from rng
func NewResolver(cfg config.CollisionConfig, rng *rand.Rand) *Resolver {
	return &Resolver{
		MinSpeed:  cfg.MinSpeed,
		MaxSpeed:  cfg.MaxSpeed,
		HitFrames: cfg.HitFrames,
		rng:       rng,
	}
}

// RandomVelocity returns a velocity with a uniform direction in [0, 2π) and a
// speed in [MinSpeed, MaxSpeed].
func (r *Resolver) RandomVelocity() physics.Vector2D {
	angle := r.rng.Float64() * 2 * math.Pi
	speed := r.MinSpeed + r.rng.Float64()*(r.MaxSpeed-r.MinSpeed)
	return physics.FromAngle(angle, speed)
}

// Resolve applies the response to both particles of a contact
func (r *Resolver) Resolve(a, b *entity.Particle) {
	a.Velocity = r.RandomVelocity()
	b.Velocity = r.RandomVelocity()
	a.MarkHit(r.HitFrames)
	b.MarkHit(r.HitFrames)
}
