// pkg/physics/aabb.go
package physics

// AABB is an axis-aligned rectangle stored as a center and half extents.
// All containment and intersection tests are inclusive on every edge.
type AABB struct {
	Center     Vector2D `json:"center" msgpack:"c"`
	HalfWidth  float64  `json:"halfWidth" msgpack:"hw"`
	HalfHeight float64  `json:"halfHeight" msgpack:"hh"`
}

// NewAABB creates a box from its center and half extents
func NewAABB(cx, cy, halfWidth, halfHeight float64) AABB {
	return AABB{
		Center:     Vector2D{X: cx, Y: cy},
		HalfWidth:  halfWidth,
		HalfHeight: halfHeight,
	}
}

// FromOrigin creates a box from its top-left origin and full extents.
// FromOrigin(x, y, w, h) and NewAABB(x+w/2, y+h/2, w/2, h/2) describe the
// same rectangle.
func FromOrigin(x, y, width, height float64) AABB {
	return NewAABB(x+width/2, y+height/2, width/2, height/2)
}

// Around returns a square box of the given half extent centered on p
func Around(p Vector2D, halfExtent float64) AABB {
	return AABB{Center: p, HalfWidth: halfExtent, HalfHeight: halfExtent}
}

// Origin returns the top-left corner
func (b AABB) Origin() (x, y float64) {
	return b.Center.X - b.HalfWidth, b.Center.Y - b.HalfHeight
}

// Width returns the full horizontal extent
func (b AABB) Width() float64 { return b.HalfWidth * 2 }

// Height returns the full vertical extent
func (b AABB) Height() float64 { return b.HalfHeight * 2 }

// Min returns the corner with the smallest coordinates
func (b AABB) Min() Vector2D {
	return Vector2D{X: b.Center.X - b.HalfWidth, Y: b.Center.Y - b.HalfHeight}
}

// Max returns the corner with the largest coordinates
func (b AABB) Max() Vector2D {
	return Vector2D{X: b.Center.X + b.HalfWidth, Y: b.Center.Y + b.HalfHeight}
}

// Contains checks whether the point lies inside the box or on its edge
func (b AABB) Contains(p Vector2D) bool {
	return p.X >= b.Center.X-b.HalfWidth &&
		p.X <= b.Center.X+b.HalfWidth &&
		p.Y >= b.Center.Y-b.HalfHeight &&
		p.Y <= b.Center.Y+b.HalfHeight
}

// Intersects checks whether two boxes overlap or touch
func (b AABB) Intersects(other AABB) bool {
	return !(b.Center.X-b.HalfWidth > other.Center.X+other.HalfWidth ||
		b.Center.X+b.HalfWidth < other.Center.X-other.HalfWidth ||
		b.Center.Y-b.HalfHeight > other.Center.Y+other.HalfHeight ||
		b.Center.Y+b.HalfHeight < other.Center.Y-other.HalfHeight)
}

// Quadrants splits the box into four equal boxes that tile it exactly.
// The y axis grows downwards, so NW/NE are the upper half.
func (b AABB) Quadrants() (nw, ne, sw, se AABB) {
	hw := b.HalfWidth / 2
	hh := b.HalfHeight / 2
	x, y := b.Center.X, b.Center.Y

	nw = NewAABB(x-hw, y-hh, hw, hh)
	ne = NewAABB(x+hw, y-hh, hw, hh)
	sw = NewAABB(x-hw, y+hh, hw, hh)
	se = NewAABB(x+hw, y+hh, hw, hh)
	return nw, ne, sw, se
}
