// Package mesh builds renderable surfaces for the chunks of a world. A mesh
// holds one quad for every visible face of a chunk, or, with greedy merging
// enabled, one quad for every rectangle of coplanar faces of the same brick
// and shading. Every vertex carries an ambient occlusion factor computed from
// the opaque bricks around it.
package mesh

import (
	"cmp"
	"slices"

	"github.com/brentp/intintmap"
	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/go-gl/mathgl/mgl32"
)

// Neighbours holds the border layers of the six chunks around a chunk,
// indexed by the cube.Face the neighbour lies at. Each layer is the border of
// the neighbour facing the chunk, as returned by chunk.Border with the
// opposite face, and is indexed with chunk.LayerIndex. A nil layer is treated
// as air.
type Neighbours [6][]brick.ID

// Options changes the way a Mesh is built.
type Options struct {
	// Greedy merges adjacent coplanar faces of the same brick into larger
	// rectangles.
	Greedy bool
}

// Batch is a range of indices in a Mesh that share a brick and a face
// direction, so that they may be drawn with the same material.
type Batch struct {
	Brick brick.ID
	Face  cube.Face
	// First is the offset of the first index of the batch. Count is the
	// number of indices in it.
	First, Count int
}

// Normal returns the normal shared by every quad in the batch.
func (b Batch) Normal() mgl32.Vec3 {
	off := b.Face.Offset()
	return mgl32.Vec3{float32(off[0]), float32(off[1]), float32(off[2])}
}

// Mesh is the surface of a single chunk. Vertices are in chunk-local
// coordinates and range from 0 to chunk.Size on each axis; they must be
// offset by the origin of the chunk to get world coordinates. Every quad is
// made of two triangles, wound counter-clockwise seen from outside.
type Mesh struct {
	// Chunk is the position of the chunk the mesh was built for.
	Chunk cube.ChunkPos
	// Revision is the revision of the chunk snapshot the mesh was built from.
	Revision uint64

	Vertices []mgl32.Vec3
	// Occlusion holds the ambient occlusion factor of every vertex, from 0
	// for a fully occluded corner to 1 for an open one.
	Occlusion []float32
	Indices   []uint32
	Batches   []Batch
	// Colliders holds the collision boxes of the chunk, in chunk-local
	// coordinates. It is only set by a Scheduler configured to collide the
	// chunk.
	Colliders []Box
}

// FaceCount returns the number of quads in the mesh.
func (m *Mesh) FaceCount() int {
	return len(m.Indices) / 6
}

// Empty reports whether the mesh has no faces.
func (m *Mesh) Empty() bool {
	return len(m.Indices) == 0
}

// quad is an axis aligned rectangle on the face of one or more bricks. u and
// v are the in-plane coordinates of the axes following the axis of the face.
// ao holds the occlusion levels of the corners at (u0, v0), (u1, v0),
// (u1, v1) and (u0, v1).
type quad struct {
	face   cube.Face
	d      int
	u0, v0 int
	du, dv int
	ao     [4]uint8
}

// maxOcclusion is the occlusion level of a corner with no opaque brick
// around it.
const maxOcclusion = 3

// cell is an entry of a face mask. The low 16 bits hold the brick with a
// visible face, the bits above hold two bits of occlusion level per corner.
// The zero cell has no face.
type cell uint32

func newCell(id brick.ID, ao [4]uint8) cell {
	c := cell(id)
	for i, l := range ao {
		c |= cell(l) << (16 + 2*i)
	}
	return c
}

func (c cell) id() brick.ID {
	return brick.ID(c & 0xffff)
}

func (c cell) occlusion() [4]uint8 {
	var ao [4]uint8
	for i := range ao {
		ao[i] = uint8(c>>(16+2*i)) & 3
	}
	return ao
}

// Build builds the Mesh of the chunk snapshot passed. A face of a non-empty
// brick is emitted if brick.FaceVisible reports it visible against the brick
// it touches, which is looked up in n for faces on the border of the chunk.
func Build(snap chunk.Snapshot, n Neighbours, opts Options) *Mesh {
	m := &Mesh{Revision: snap.Revision}
	if len(snap.Bricks) != chunk.Volume {
		return m
	}
	b := &builder{
		m:     m,
		index: intintmap.New(256, 0.6),
	}
	quads := make(map[batchKey][]quad)
	var mask [chunk.Area]cell
	for _, f := range cube.Faces() {
		for d := range chunk.Size {
			if !faceMask(snap, n, f, d, &mask) {
				continue
			}
			add := func(c cell, q quad) {
				key := batchKey{face: f, brick: c.id()}
				q.face, q.d, q.ao = f, d, c.occlusion()
				quads[key] = append(quads[key], q)
			}
			if opts.Greedy {
				mergeMask(&mask, add)
				continue
			}
			for i, c := range mask {
				if c != 0 {
					add(c, quad{u0: i % chunk.Size, v0: i / chunk.Size, du: 1, dv: 1})
				}
			}
		}
	}

	keys := make([]batchKey, 0, len(quads))
	for k := range quads {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b batchKey) int {
		return cmp.Or(cmp.Compare(a.face, b.face), cmp.Compare(a.brick, b.brick))
	})
	for _, k := range keys {
		first := len(m.Indices)
		for _, q := range quads[k] {
			b.emit(q)
		}
		m.Batches = append(m.Batches, Batch{Brick: k.brick, Face: k.face, First: first, Count: len(m.Indices) - first})
	}
	return m
}

type batchKey struct {
	face  cube.Face
	brick brick.ID
}

// faceMask fills mask with the cells of the bricks whose face f is visible
// in layer d along the axis of f. Entries without a visible face are zero.
// The mask is indexed by u + v*chunk.Size. False is returned if no face is
// visible in the layer.
func faceMask(snap chunk.Snapshot, n Neighbours, f cube.Face, d int, mask *[chunk.Area]cell) bool {
	off := f.Offset()
	found := false
	for v := range chunk.Size {
		for u := range chunk.Size {
			p := fromPlane(f.Axis(), d, u, v)
			id := snap.At(uint8(p[0]), uint8(p[1]), uint8(p[2]))
			mask[u+v*chunk.Size] = 0
			if id.Empty() || !brick.FaceVisible(id, sample(snap, n, p.Add(off))) {
				continue
			}
			mask[u+v*chunk.Size] = newCell(id, occlusion(snap, n, f, p))
			found = true
		}
	}
	return found
}

// occlusion returns the occlusion levels of the four corners of face f of
// the brick at p. A corner is darkened by each opaque brick touching it in
// the layer in front of the face. A corner between two opaque bricks is
// fully occluded.
func occlusion(snap chunk.Snapshot, n Neighbours, f cube.Face, p cube.Pos) [4]uint8 {
	front := p.Add(f.Offset())
	ua, va := (f.Axis()+1)%3, (f.Axis()+2)%3
	at := func(du, dv int) bool {
		q := front
		q[ua] += du
		q[va] += dv
		return sample(snap, n, q).Class() == brick.Opaque
	}
	var ao [4]uint8
	for i, c := range [4][2]int{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
		side1, side2, corner := at(c[0], 0), at(0, c[1]), at(c[0], c[1])
		if !side1 || !side2 {
			ao[i] = maxOcclusion - uint8(btoi(side1)+btoi(side2)+btoi(corner))
		}
	}
	return ao
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sample returns the brick at the chunk-local position p. Positions outside
// the chunk on one axis are looked up in the neighbour layer at that side.
// Positions outside on more than one axis are treated as air.
func sample(snap chunk.Snapshot, n Neighbours, p cube.Pos) brick.ID {
	out := -1
	for i, v := range p {
		if v < 0 || v >= chunk.Size {
			if out >= 0 {
				return brick.Air
			}
			out = i
		}
	}
	if out < 0 {
		return snap.At(uint8(p[0]), uint8(p[1]), uint8(p[2]))
	}
	f := cube.FaceAlong(out, p[out] >= chunk.Size)
	layer := n[f]
	if layer == nil {
		return brick.Air
	}
	return layer[chunk.LayerIndex(f, uint8(p[0]), uint8(p[1]), uint8(p[2]))]
}

// fromPlane returns the position at depth d along axis with the in-plane
// coordinates u and v, which lie on the two axes following axis.
func fromPlane(axis, d, u, v int) cube.Pos {
	var p cube.Pos
	p[axis], p[(axis+1)%3], p[(axis+2)%3] = d, u, v
	return p
}

// builder appends quads to a Mesh, sharing vertices between quads.
type builder struct {
	m     *Mesh
	index *intintmap.Map
}

// emit appends the two triangles of q to the mesh.
func (b *builder) emit(q quad) {
	axis := q.face.Axis()
	d := q.d
	if q.face.Positive() {
		d++
	}
	u1, v1 := q.u0+q.du, q.v0+q.dv
	corners := [4][2]int{{q.u0, q.v0}, {u1, q.v0}, {u1, v1}, {q.u0, v1}}
	ao := q.ao
	if !q.face.Positive() {
		corners[1], corners[3] = corners[3], corners[1]
		ao[1], ao[3] = ao[3], ao[1]
	}
	var idx [4]uint32
	for i, c := range corners {
		idx[i] = b.vertex(fromPlane(axis, d, c[0], c[1]), ao[i])
	}
	b.m.Indices = append(b.m.Indices, idx[0], idx[1], idx[2], idx[0], idx[2], idx[3])
}

// vertex returns the index of the vertex at the lattice point p with the
// occlusion level passed, adding it to the mesh if it is not yet present.
func (b *builder) vertex(p cube.Pos, level uint8) uint32 {
	const edge = chunk.Size + 1
	key := int64((p[0]*edge+p[1])*edge+p[2])*(maxOcclusion+1) + int64(level)
	if i, ok := b.index.Get(key); ok {
		return uint32(i)
	}
	i := uint32(len(b.m.Vertices))
	b.m.Vertices = append(b.m.Vertices, mgl32.Vec3{float32(p[0]), float32(p[1]), float32(p[2])})
	b.m.Occlusion = append(b.m.Occlusion, float32(level)/maxOcclusion)
	b.index.Put(key, int64(i))
	return i
}
