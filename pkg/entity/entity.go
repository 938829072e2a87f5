// pkg/entity/entity.go
package entity

import (
	"math"

	"github.com/opd-ai/go-quadsim/pkg/physics"
)

// ID identifies a particle. It is the particle's index in the owning slice.
type ID = int

// Particle is a moving circle confined to the arena
type Particle struct {
	ID       ID
	Position physics.Vector2D
	Velocity physics.Vector2D
	Radius   float64
	// HitTimer counts the frames left in the contact highlight. Zero means
	// no recent contact.
	HitTimer int
}

// NewParticle creates a particle with no recent contact
func NewParticle(id ID, pos, vel physics.Vector2D, radius float64) Particle {
	return Particle{
		ID:       id,
		Position: pos,
		Velocity: vel,
		Radius:   radius,
	}
}

// GetCollider returns the particle's collision shape
func (p *Particle) GetCollider() physics.Circle {
	return physics.Circle{
		Center: p.Position,
		Radius: p.Radius,
	}
}

// Integrate advances the particle one frame and reflects it off the arena
// walls. The velocity component on an axis is pointed back into the arena
// when the circle touches or crosses that axis' wall, and a flip is reported
// only if the sign actually changed. The position is then clamped so the
// circle lies fully inside bounds.
func (p *Particle) Integrate(bounds physics.AABB) (flipX, flipY bool) {
	p.Position = p.Position.Add(p.Velocity)

	lo, hi := bounds.Min(), bounds.Max()
	p.Position.X, p.Velocity.X, flipX = reflect(p.Position.X, p.Velocity.X, p.Radius, lo.X, hi.X)
	p.Position.Y, p.Velocity.Y, flipY = reflect(p.Position.Y, p.Velocity.Y, p.Radius, lo.Y, hi.Y)
	return flipX, flipY
}

func reflect(pos, vel, r, lo, hi float64) (float64, float64, bool) {
	next := vel
	if pos-r <= lo {
		next = math.Abs(vel)
	} else if pos+r >= hi {
		next = -math.Abs(vel)
	}
	flipped := next != vel

	if hi-lo < 2*r {
		return (lo + hi) / 2, next, flipped
	}
	pos = math.Max(lo+r, math.Min(hi-r, pos))
	return pos, next, flipped
}

// Tick counts down the hit highlight by one frame
func (p *Particle) Tick() {
	if p.HitTimer > 0 {
		p.HitTimer--
	}
}

// MarkHit starts the contact highlight
func (p *Particle) MarkHit(frames int) {
	p.HitTimer = frames
}

// Hit reports whether the particle touched another one recently
func (p *Particle) Hit() bool {
	return p.HitTimer > 0
}
