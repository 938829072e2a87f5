// pkg/physics/quadtree.go
package physics

// Quadrant order used for child slots, insertion attempts and query walks.
const (
	NorthWest = iota
	NorthEast
	SouthWest
	SouthEast
)

const (
	// DefaultCapacity is the number of items a node holds before it subdivides
	DefaultCapacity = 6
	// DefaultMinHalfSize is the half extent at or below which nodes never subdivide
	DefaultMinHalfSize = 6.0
	// DefaultQueryLimit caps the results appended by a single Query call
	DefaultQueryLimit = 200
)

const noChild int32 = -1

// Item is one indexed particle: its index in the owner's collection and the
// position it had when it was inserted.
type Item struct {
	Index    int
	Position Vector2D
}

// node is one cell of the tree. Children are handles into QuadTree.nodes.
type node struct {
	boundary AABB
	items    []Item
	divided  bool
	children [4]int32
	depth    int
}

// QuadTree is a spatial index over particle indices. Nodes live in a single
// arena addressed by integer handles; Reset truncates the arena so a tree can
// be rebuilt every frame without reallocating its nodes.
//
// The tree never owns particles. It stores the index and the position at
// insertion time, so it stays valid while the caller mutates velocities.
type QuadTree struct {
	// Capacity is the soft per-node limit that triggers subdivision.
	Capacity int
	// MinHalfSize stops subdivision once a node's half width or half height
	// is at or below it. Such nodes accept items past Capacity.
	MinHalfSize float64
	// QueryLimit caps the number of results one Query call appends.
	// Zero or negative disables the cap.
	QueryLimit int

	nodes []node

	count       int
	overflow    int
	truncations int
}

// NewQuadTree creates a new quad tree with the given boundary and capacity
func NewQuadTree(boundary AABB, capacity int) *QuadTree {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	qt := &QuadTree{
		Capacity:    capacity,
		MinHalfSize: DefaultMinHalfSize,
		QueryLimit:  DefaultQueryLimit,
	}
	qt.Reset(boundary)
	return qt
}

// Reset releases every node and starts over with a single empty root.
// Node slots and their item storage are reused by the next build.
func (qt *QuadTree) Reset(boundary AABB) {
	qt.nodes = qt.nodes[:0]
	qt.count = 0
	qt.overflow = 0
	qt.truncations = 0
	qt.newNode(boundary, 0)
}

// newNode appends a node to the arena, recycling a previous slot's item slice
func (qt *QuadTree) newNode(boundary AABB, depth int) int32 {
	h := len(qt.nodes)
	if h < cap(qt.nodes) {
		qt.nodes = qt.nodes[:h+1]
		items := qt.nodes[h].items[:0]
		qt.nodes[h] = node{boundary: boundary, items: items, depth: depth}
	} else {
		qt.nodes = append(qt.nodes, node{boundary: boundary, depth: depth})
	}
	qt.nodes[h].children = [4]int32{noChild, noChild, noChild, noChild}
	return int32(h)
}

// Boundary returns the root boundary
func (qt *QuadTree) Boundary() AABB {
	return qt.nodes[0].boundary
}

// Divided reports whether the root has subdivided
func (qt *QuadTree) Divided() bool {
	return qt.nodes[0].divided
}

// Len returns the number of items stored in the tree
func (qt *QuadTree) Len() int {
	return qt.count
}

// Insert adds the particle index at the given position.
// It returns false only if the position lies outside the root boundary.
func (qt *QuadTree) Insert(index int, pos Vector2D) bool {
	if qt.insert(0, Item{Index: index, Position: pos}) {
		qt.count++
		return true
	}
	return false
}

func (qt *QuadTree) insert(h int32, it Item) bool {
	n := &qt.nodes[h]
	if !n.boundary.Contains(it.Position) {
		return false
	}

	if qt.atFloor(n.boundary) {
		n.items = append(n.items, it)
		return true
	}

	if !n.divided && len(n.items) < qt.Capacity {
		n.items = append(n.items, it)
		return true
	}

	if !n.divided {
		qt.subdivide(h)
	}
	qt.place(h, it)
	return true
}

// place hands an item to the first child that accepts it. If none does the
// item stays with the parent; this only happens for positions that fall
// between children through floating point rounding.
func (qt *QuadTree) place(h int32, it Item) {
	for _, c := range qt.nodes[h].children {
		if qt.insert(c, it) {
			return
		}
	}
	qt.nodes[h].items = append(qt.nodes[h].items, it)
	qt.overflow++
}

func (qt *QuadTree) atFloor(b AABB) bool {
	return b.HalfWidth <= qt.MinHalfSize || b.HalfHeight <= qt.MinHalfSize
}

// subdivide splits a node into four children and moves its items into them.
// Handles stay valid across arena growth, pointers do not, so nodes are
// re-indexed after every append.
func (qt *QuadTree) subdivide(h int32) {
	nw, ne, sw, se := qt.nodes[h].boundary.Quadrants()
	depth := qt.nodes[h].depth + 1

	var children [4]int32
	children[NorthWest] = qt.newNode(nw, depth)
	children[NorthEast] = qt.newNode(ne, depth)
	children[SouthWest] = qt.newNode(sw, depth)
	children[SouthEast] = qt.newNode(se, depth)

	moved := qt.nodes[h].items
	qt.nodes[h].items = nil
	qt.nodes[h].children = children
	qt.nodes[h].divided = true

	for _, it := range moved {
		qt.place(h, it)
	}
	if qt.nodes[h].items == nil {
		qt.nodes[h].items = moved[:0]
	}
}

// Query appends to found the index of every item whose position lies inside
// rng and returns the extended slice. Results are in pre-order. At most
// QueryLimit results are appended; when the limit is hit the walk stops early.
func (qt *QuadTree) Query(rng AABB, found []int) []int {
	found, truncated := qt.Search(rng, found)
	if truncated {
		qt.truncations++
	}
	return found
}

// Search is Query without bookkeeping: it reports whether the limit was hit
// instead of counting it. It does not modify the tree, so any number of
// goroutines may Search a tree that is no longer being built.
func (qt *QuadTree) Search(rng AABB, found []int) ([]int, bool) {
	limit := -1
	if qt.QueryLimit > 0 {
		limit = len(found) + qt.QueryLimit
	}
	return qt.query(0, rng, found, limit)
}

// SearchAll is Search with QueryLimit ignored
func (qt *QuadTree) SearchAll(rng AABB, found []int) []int {
	found, _ = qt.query(0, rng, found, -1)
	return found
}

func (qt *QuadTree) query(h int32, rng AABB, found []int, limit int) ([]int, bool) {
	n := &qt.nodes[h]
	if !n.boundary.Intersects(rng) {
		return found, false
	}

	for _, it := range n.items {
		if rng.Contains(it.Position) {
			found = append(found, it.Index)
			if len(found) == limit {
				return found, true
			}
		}
	}

	if !n.divided {
		return found, false
	}

	children := n.children
	for _, c := range children {
		var full bool
		if found, full = qt.query(c, rng, found, limit); full {
			return found, true
		}
	}
	return found, false
}

// Walk visits every node in pre-order. It is meant for debug drawing of the
// partition; depth is 0 for the root and items is the number stored directly.
func (qt *QuadTree) Walk(fn func(boundary AABB, depth, items int)) {
	qt.walk(0, fn)
}

func (qt *QuadTree) walk(h int32, fn func(boundary AABB, depth, items int)) {
	n := &qt.nodes[h]
	fn(n.boundary, n.depth, len(n.items))
	if n.divided {
		for _, c := range n.children {
			qt.walk(c, fn)
		}
	}
}

// TreeStats summarises the shape of the tree after a build
type TreeStats struct {
	Nodes       int `json:"nodes" msgpack:"nodes"`
	Leaves      int `json:"leaves" msgpack:"leaves"`
	MaxDepth    int `json:"maxDepth" msgpack:"maxDepth"`
	Items       int `json:"items" msgpack:"items"`
	Overflow    int `json:"overflow" msgpack:"overflow"`
	Truncations int `json:"truncations" msgpack:"truncations"`
}

// Stats returns counters for the current build
func (qt *QuadTree) Stats() TreeStats {
	stats := TreeStats{
		Nodes:       len(qt.nodes),
		Items:       qt.count,
		Overflow:    qt.overflow,
		Truncations: qt.truncations,
	}
	for i := range qt.nodes {
		n := &qt.nodes[i]
		if !n.divided {
			stats.Leaves++
		}
		if n.depth > stats.MaxDepth {
			stats.MaxDepth = n.depth
		}
	}
	return stats
}
