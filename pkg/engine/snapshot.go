// pkg/engine/snapshot.go
package engine

import (
	"time"

	"github.com/opd-ai/go-quadsim/pkg/physics"
)

// FrameStats summarises one simulation step
type FrameStats struct {
	Frame     uint64        `json:"frame" msgpack:"frame"`
	Mode      Mode          `json:"mode" msgpack:"mode"`
	Tests     int           `json:"tests" msgpack:"tests"`
	Contacts  int           `json:"contacts" msgpack:"contacts"`
	Bounces   int           `json:"bounces" msgpack:"bounces"`
	Nodes     int           `json:"nodes" msgpack:"nodes"`
	Leaves    int           `json:"leaves" msgpack:"leaves"`
	MaxDepth  int           `json:"maxDepth" msgpack:"maxDepth"`
	Overflow  int           `json:"overflow" msgpack:"overflow"`
	Rejected  int           `json:"rejected" msgpack:"rejected"`
	Truncated int           `json:"truncated" msgpack:"truncated"`
	Duration  time.Duration `json:"duration" msgpack:"duration"`
}

// ParticleState represents a snapshot of a particle's state
type ParticleState struct {
	ID       int     `json:"id" msgpack:"id"`
	X        float64 `json:"x" msgpack:"x"`
	Y        float64 `json:"y" msgpack:"y"`
	Radius   float64 `json:"r" msgpack:"r"`
	HitTimer int     `json:"hit" msgpack:"hit"`
}

// Hit reports whether the particle is in its contact highlight
func (p ParticleState) Hit() bool {
	return p.HitTimer > 0
}

// Snapshot is a copy of the simulation taken between frames. Nothing in it
// aliases simulation state, so it may be read from any goroutine. Cells holds
// the quadtree partition in quadtree mode and is empty otherwise.
type Snapshot struct {
	Frame     uint64          `json:"frame" msgpack:"frame"`
	Mode      Mode            `json:"mode" msgpack:"mode"`
	Arena     physics.AABB    `json:"arena" msgpack:"arena"`
	Particles []ParticleState `json:"particles" msgpack:"particles"`
	Cells     []CellState     `json:"cells,omitempty" msgpack:"cells,omitempty"`
	Stats     FrameStats      `json:"stats" msgpack:"stats"`
}
