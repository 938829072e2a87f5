// pkg/physics/collision_test.go
package physics

import (
	"math"
	"testing"
)

func TestCircle_Collides(t *testing.T) {
	tests := []struct {
		name     string
		c1       Circle
		c2       Circle
		expected bool
	}{
		{
			name:     "circles_overlapping",
			c1:       Circle{Center: Vector2D{X: 100, Y: 100}, Radius: 5},
			c2:       Circle{Center: Vector2D{X: 108, Y: 100}, Radius: 5},
			expected: true,
		},
		{
			name:     "circles_touching",
			c1:       Circle{Center: Vector2D{X: 0, Y: 0}, Radius: 5},
			c2:       Circle{Center: Vector2D{X: 10, Y: 0}, Radius: 5},
			expected: true,
		},
		{
			name:     "circles_separate",
			c1:       Circle{Center: Vector2D{X: 0, Y: 0}, Radius: 5},
			c2:       Circle{Center: Vector2D{X: 10.001, Y: 0}, Radius: 5},
			expected: false,
		},
		{
			name:     "same_center",
			c1:       Circle{Center: Vector2D{X: 3, Y: 3}, Radius: 1},
			c2:       Circle{Center: Vector2D{X: 3, Y: 3}, Radius: 1},
			expected: true,
		},
		{
			name:     "diagonal_touching",
			c1:       Circle{Center: Vector2D{X: 0, Y: 0}, Radius: 2},
			c2:       Circle{Center: Vector2D{X: 3, Y: 4}, Radius: 3},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c1.Collides(tt.c2); got != tt.expected {
				t.Errorf("Collides() = %v, expected %v", got, tt.expected)
			}
			if got := tt.c2.Collides(tt.c1); got != tt.expected {
				t.Errorf("Collides() is not symmetric")
			}
		})
	}
}

func TestCircle_Bounds(t *testing.T) {
	c := Circle{Center: Vector2D{X: 20, Y: 30}, Radius: 5}
	b := c.Bounds()
	if b.Min() != (Vector2D{X: 15, Y: 25}) || b.Max() != (Vector2D{X: 25, Y: 35}) {
		t.Errorf("Bounds() = %+v", b)
	}
}

func TestCheckCollision(t *testing.T) {
	a := Circle{Center: Vector2D{X: 100, Y: 100}, Radius: 5}
	b := Circle{Center: Vector2D{X: 108, Y: 100}, Radius: 5}

	result := CheckCollision(a, b)
	if !result.Collided {
		t.Fatal("expected collision")
	}
	if math.Abs(result.Distance-8) > 1e-9 {
		t.Errorf("Distance = %v, expected 8", result.Distance)
	}
	if math.Abs(result.Penetration-2) > 1e-9 {
		t.Errorf("Penetration = %v, expected 2", result.Penetration)
	}

	far := Circle{Center: Vector2D{X: 200, Y: 100}, Radius: 5}
	if CheckCollision(a, far).Collided {
		t.Error("expected no collision for distant circles")
	}
}
