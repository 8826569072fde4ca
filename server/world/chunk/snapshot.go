package chunk

import (
	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
)

// Snapshot is a copy of the bricks of a Chunk taken at a single revision. A
// Snapshot shares no storage with the Chunk it was taken from.
type Snapshot struct {
	Bricks   []brick.ID
	Revision uint64
}

// At returns the brick at the local coordinates passed.
func (s Snapshot) At(x, y, z uint8) brick.ID {
	return s.Bricks[Index(x, y, z)]
}

// Snapshot copies the bricks of the chunk.
func (c *Chunk) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

// SnapshotClean copies the bricks of the chunk and clears its dirty flag in
// one step, so that any later change marks the chunk dirty again.
func (c *Chunk) SnapshotClean() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	c.dirty.Store(false)
	return c.snapshot()
}

func (c *Chunk) snapshot() Snapshot {
	bricks := make([]brick.ID, Volume)
	copy(bricks, c.bricks[:])
	return Snapshot{Bricks: bricks, Revision: c.revision.Load()}
}

// LayerIndex returns the index in a layer returned by Border of the brick at
// the local coordinates passed. The coordinate on the axis of face f is
// ignored.
func LayerIndex(f cube.Face, x, y, z uint8) int {
	switch f.Axis() {
	case 0:
		return int(y) | int(z)<<4
	case 1:
		return int(x) | int(z)<<4
	default:
		return int(x) | int(y)<<4
	}
}

// Border returns a copy of the outermost layer of bricks at face f of the
// chunk, indexed by LayerIndex.
func (c *Chunk) Border(f cube.Face) []brick.ID {
	layer := make([]brick.ID, Area)
	var fixed uint8
	if f.Positive() {
		fixed = Size - 1
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for v := range uint8(Size) {
		for u := range uint8(Size) {
			var x, y, z uint8
			switch f.Axis() {
			case 0:
				x, y, z = fixed, u, v
			case 1:
				x, y, z = u, fixed, v
			default:
				x, y, z = u, v, fixed
			}
			layer[LayerIndex(f, x, y, z)] = c.bricks[Index(x, y, z)]
		}
	}
	return layer
}

// OnBorder returns the faces of the chunk that the local coordinates passed
// touch. A brick touches at most one face per axis.
func OnBorder(x, y, z uint8) []cube.Face {
	var faces []cube.Face
	for axis, v := range [3]uint8{x, y, z} {
		switch v {
		case 0:
			faces = append(faces, negative[axis])
		case Size - 1:
			faces = append(faces, negative[axis].Opposite())
		}
	}
	return faces
}

var negative = [3]cube.Face{cube.FaceWest, cube.FaceNorth, cube.FaceDown}
