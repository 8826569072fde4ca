package world

import (
	"context"
	"errors"
	"math"

	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/go-gl/mathgl/mgl64"
)

// Focus moves the active area of the World to a sphere of the radius passed
// in bricks around view. Chunks inside the sphere that are not loaded yet are
// scheduled for loading without waiting for them. Chunks farther than one
// chunk outside the sphere are saved, if modified, and evicted. A chunk that
// could not be saved is kept. Focus stops evicting once ctx is done.
func (w *World) Focus(ctx context.Context, view mgl64.Vec3, radius float64) error {
	select {
	case <-w.closing:
		return ErrClosed
	default:
	}
	// Chunk distances are measured between chunk centres, in chunks.
	centre := view.Mul(1.0 / chunk.Size)
	r := math.Max(0, radius/chunk.Size)
	keep := r + 1

	base := cube.PosFromVec3(centre)
	n := int(math.Ceil(r))
	for dz := -n; dz <= n; dz++ {
		for dy := -n; dy <= n; dy++ {
			for dx := -n; dx <= n; dx++ {
				pos, ok := chunkAt(base[0]+dx, base[1]+dy, base[2]+dz)
				if !ok || chunkDistance(pos, centre) > r || !w.conf.Bounds.Contains(pos) {
					continue
				}
				w.requestColumn(pos)
			}
		}
	}

	far := w.columns(func(pos cube.ChunkPos, _ *Column) bool {
		return chunkDistance(pos, centre) > keep
	})
	var errs []error
	for _, ref := range far {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ref.col.Modified() && !w.conf.ReadOnly {
			if err := w.saveColumn(ref.pos, ref.col); err != nil {
				errs = append(errs, err)
				continue
			}
		}
		// A chunk changed again while it was being saved is kept.
		w.evictColumn(ref.pos, ref.col, w.conf.ReadOnly)
	}
	return errors.Join(errs...)
}

// chunkAt returns the chunk position with the coordinates passed, or false if
// one of them does not fit a ChunkPos.
func chunkAt(x, y, z int) (cube.ChunkPos, bool) {
	var pos cube.ChunkPos
	for i, v := range [3]int{x, y, z} {
		if v < math.MinInt32 || v > math.MaxInt32 {
			return pos, false
		}
		pos[i] = int32(v)
	}
	return pos, true
}

// chunkDistance returns the distance between the centre of the chunk at pos
// and the point passed, in chunks.
func chunkDistance(pos cube.ChunkPos, p mgl64.Vec3) float64 {
	c := mgl64.Vec3{float64(pos[0]) + 0.5, float64(pos[1]) + 0.5, float64(pos[2]) + 0.5}
	return c.Sub(p).Len()
}
