package mesh

import (
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/go-gl/mathgl/mgl32"
)

// Box is an axis aligned box in chunk-local coordinates.
type Box struct {
	Min, Max mgl32.Vec3
}

// Colliders returns collision boxes for the non-empty bricks of the chunk
// snapshot that touch empty space. Bricks fully enclosed by other bricks
// cannot be reached and get no box. Runs of such bricks along X are merged
// into a single box.
func Colliders(snap chunk.Snapshot, n Neighbours) []Box {
	if len(snap.Bricks) != chunk.Volume {
		return nil
	}
	var boxes []Box
	for z := range uint8(chunk.Size) {
		for y := range uint8(chunk.Size) {
			start := -1
			for x := uint8(0); x <= chunk.Size; x++ {
				exposed := x < chunk.Size && !snap.At(x, y, z).Empty() && touchesEmpty(snap, n, x, y, z)
				if exposed && start < 0 {
					start = int(x)
				}
				if !exposed && start >= 0 {
					boxes = append(boxes, Box{
						Min: mgl32.Vec3{float32(start), float32(y), float32(z)},
						Max: mgl32.Vec3{float32(x), float32(y) + 1, float32(z) + 1},
					})
					start = -1
				}
			}
		}
	}
	return boxes
}

// touchesEmpty reports whether any brick sharing a face with the brick at
// x, y, z is empty.
func touchesEmpty(snap chunk.Snapshot, n Neighbours, x, y, z uint8) bool {
	p := cube.Pos{int(x), int(y), int(z)}
	for _, f := range cube.Faces() {
		q := p.Side(f)
		axis := f.Axis()
		if q[axis] >= 0 && q[axis] < chunk.Size {
			if snap.At(uint8(q[0]), uint8(q[1]), uint8(q[2])).Empty() {
				return true
			}
			continue
		}
		layer := n[f]
		if layer == nil || layer[chunk.LayerIndex(f, x, y, z)].Empty() {
			return true
		}
	}
	return false
}
