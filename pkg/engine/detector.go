// pkg/engine/detector.go
package engine

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/opd-ai/go-quadsim/pkg/config"
	"github.com/opd-ai/go-quadsim/pkg/entity"
	"github.com/opd-ai/go-quadsim/pkg/logging"
	"github.com/opd-ai/go-quadsim/pkg/physics"
)

// Pair is two particle indices whose circles touch or overlap
type Pair struct {
	A, B int
}

// DetectStats describes the work done by one Detect call
type DetectStats struct {
	Tests     int
	Rejected  int
	Truncated int
	Tree      physics.TreeStats
}

// Detector finds contacting particle pairs. Implementations only read
// particles; applying a response is left to the caller.
type Detector interface {
	// Detect appends every contact to contacts and returns it.
	Detect(particles []entity.Particle, contacts []Pair) ([]Pair, DetectStats)
}

// BruteForceDetector tests every unordered pair once
type BruteForceDetector struct{}

// Detect implements Detector
func (BruteForceDetector) Detect(particles []entity.Particle, contacts []Pair) ([]Pair, DetectStats) {
	var stats DetectStats
	for i := range particles {
		a := particles[i].GetCollider()
		for j := i + 1; j < len(particles); j++ {
			stats.Tests++
			if a.Collides(particles[j].GetCollider()) {
				contacts = append(contacts, Pair{A: i, B: j})
			}
		}
	}
	return contacts, stats
}

// QuadTreeDetector narrows candidates to particles inside a square
// neighbourhood of each particle using a quadtree rebuilt on every call.
type QuadTreeDetector struct {
	// QueryHalfExtent is the half size of the box searched around each particle
	QueryHalfExtent float64
	// DedupPairs keeps a contact only from the lower index side, so each
	// touching pair is reported once instead of twice. A pair the lower
	// index missed through a truncated query is still reported when the
	// higher index's query found it.
	DedupPairs bool
	// Workers > 1 runs neighbourhood queries concurrently
	Workers int

	bounds physics.AABB
	tree   *physics.QuadTree
	found  [][]int
	parts  [][]Pair
	logger *logging.Logger

	// per particle, set by scan when DedupPairs is on
	cut     []bool
	partial [][]int
	near    []int
}

// NewQuadTreeDetector creates a detector over the given arena
func NewQuadTreeDetector(bounds physics.AABB, cfg config.QuadTreeConfig, logger *logging.Logger) *QuadTreeDetector {
	tree := physics.NewQuadTree(bounds, cfg.Capacity)
	if cfg.MinHalfSize > 0 {
		tree.MinHalfSize = cfg.MinHalfSize
	}
	tree.QueryLimit = cfg.QueryLimit

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &QuadTreeDetector{
		QueryHalfExtent: cfg.QueryHalfExtent,
		DedupPairs:      cfg.DedupPairs,
		Workers:         workers,
		bounds:          bounds,
		tree:            tree,
		found:           make([][]int, workers),
		parts:           make([][]Pair, workers),
		logger:          logger,
	}
}

// Tree exposes the index built by the last Detect call
func (d *QuadTreeDetector) Tree() *physics.QuadTree {
	return d.tree
}

// Detect implements Detector
func (d *QuadTreeDetector) Detect(particles []entity.Particle, contacts []Pair) ([]Pair, DetectStats) {
	var stats DetectStats
	base := len(contacts)

	if d.DedupPairs {
		if cap(d.cut) < len(particles) {
			d.cut = make([]bool, len(particles))
			d.partial = make([][]int, len(particles))
		}
		d.cut = d.cut[:len(particles)]
		d.partial = d.partial[:len(particles)]
		clear(d.cut)
	}

	d.tree.Reset(d.bounds)
	for i := range particles {
		if !d.tree.Insert(i, particles[i].Position) {
			stats.Rejected++
			d.logger.Debug(context.Background(), "particle outside index bounds",
				"particle", i, "x", particles[i].Position.X, "y", particles[i].Position.Y)
		}
	}

	workers := d.Workers
	if workers > len(particles) {
		workers = len(particles)
	}
	if workers <= 1 {
		var tests, truncated int
		d.found[0], contacts, tests, truncated = d.scan(particles, 0, len(particles), d.found[0], contacts)
		stats.Tests += tests
		stats.Truncated += truncated
	} else {
		contacts = d.scanParallel(particles, workers, contacts, &stats)
	}

	if d.DedupPairs && stats.Truncated > 0 {
		var tests int
		contacts, tests = d.backfill(particles, contacts, base)
		stats.Tests += tests
	}

	stats.Tree = d.tree.Stats()
	stats.Tree.Truncations += stats.Truncated
	return contacts, stats
}

// scanParallel splits the particle range into contiguous chunks. Chunks are
// merged in index order so the result matches a sequential scan.
func (d *QuadTreeDetector) scanParallel(particles []entity.Particle, workers int, contacts []Pair, stats *DetectStats) []Pair {
	tests := make([]int, workers)
	truncated := make([]int, workers)
	chunk := (len(particles) + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, len(particles))
		if lo >= hi {
			continue
		}
		wg.Add(1)
		go func(w, lo, hi int) {
			defer wg.Done()
			d.found[w], d.parts[w], tests[w], truncated[w] = d.scan(particles, lo, hi, d.found[w], d.parts[w][:0])
		}(w, lo, hi)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		contacts = append(contacts, d.parts[w]...)
		stats.Tests += tests[w]
		stats.Truncated += truncated[w]
	}
	return contacts
}

// scan queries the neighbourhood of particles[lo:hi] and runs the exact test
// on each candidate. It only reads the tree.
func (d *QuadTreeDetector) scan(particles []entity.Particle, lo, hi int, found []int, contacts []Pair) ([]int, []Pair, int, int) {
	var tests, truncated int
	for i := lo; i < hi; i++ {
		a := particles[i].GetCollider()

		var hit bool
		found, hit = d.tree.Search(physics.Around(a.Center, d.QueryHalfExtent), found[:0])
		// index order makes the contact order match BruteForceDetector
		slices.Sort(found)
		if hit {
			truncated++
			if d.DedupPairs {
				d.cut[i] = true
				d.partial[i] = append(d.partial[i][:0], found...)
			}
		}

		for _, j := range found {
			if j == i || (d.DedupPairs && j < i) {
				continue
			}
			tests++
			if a.Collides(particles[j].GetCollider()) {
				contacts = append(contacts, Pair{A: i, B: j})
			}
		}
	}
	return found, contacts, tests, truncated
}

// backfill runs after every query finished. For each particle j whose query
// was truncated it adds the pairs (j, i), i > j, that j's query missed but
// i's query found. Pairs appended after base are then put back in index order.
func (d *QuadTreeDetector) backfill(particles []entity.Particle, contacts []Pair, base int) ([]Pair, int) {
	added := len(contacts)
	var tests int
	for j, cut := range d.cut {
		if !cut {
			continue
		}
		a := particles[j].GetCollider()
		// query boxes are squares of one size, so i's box holds j iff j's holds i
		d.near = d.tree.SearchAll(physics.Around(a.Center, d.QueryHalfExtent), d.near[:0])
		for _, i := range d.near {
			if i <= j {
				continue
			}
			if _, seen := slices.BinarySearch(d.partial[j], i); seen {
				continue
			}
			if d.cut[i] {
				if _, ok := slices.BinarySearch(d.partial[i], j); !ok {
					continue
				}
			}
			tests++
			if a.Collides(particles[i].GetCollider()) {
				contacts = append(contacts, Pair{A: j, B: i})
			}
		}
	}
	if len(contacts) > added {
		slices.SortFunc(contacts[base:], func(p, q Pair) int {
			if c := cmp.Compare(p.A, q.A); c != 0 {
				return c
			}
			return cmp.Compare(p.B, q.B)
		})
	}
	return contacts, tests
}

// CellState is one quadtree node in origin/size form for drawing
type CellState struct {
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Width  float64 `json:"w" msgpack:"w"`
	Height float64 `json:"h" msgpack:"h"`
	Depth  int     `json:"d" msgpack:"d"`
}

// Cells appends the boundary of every node of the last built tree
func (d *QuadTreeDetector) Cells(dst []CellState) []CellState {
	d.tree.Walk(func(b physics.AABB, depth, _ int) {
		x, y := b.Origin()
		dst = append(dst, CellState{X: x, Y: y, Width: b.Width(), Height: b.Height(), Depth: depth})
	})
	return dst
}
