// pkg/physics/collision.go
package physics

// Circle represents a circular collision shape
type Circle struct {
	Center Vector2D
	Radius float64
}

// Collides checks if two circles are touching or overlapping.
// Squared distances are compared so no square root is taken.
func (c Circle) Collides(other Circle) bool {
	rad := c.Radius + other.Radius
	return c.Center.DistanceSquared(other.Center) <= rad*rad
}

// Bounds returns the smallest box enclosing the circle
func (c Circle) Bounds() AABB {
	return Around(c.Center, c.Radius)
}

// CollisionResult contains information about a collision
type CollisionResult struct {
	Collided    bool
	Distance    float64
	Penetration float64
}

// CheckCollision performs the exact test and reports how deep the circles overlap
func CheckCollision(a, b Circle) CollisionResult {
	if !a.Collides(b) {
		return CollisionResult{Collided: false}
	}

	distance := a.Center.Distance(b.Center)
	return CollisionResult{
		Collided:    true,
		Distance:    distance,
		Penetration: a.Radius + b.Radius - distance,
	}
}
