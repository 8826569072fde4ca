package mesh

import (
	"testing"

	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/go-gl/mathgl/mgl32"
)

func snapshot(f func(x, y, z uint8) brick.ID) chunk.Snapshot {
	c := chunk.New()
	c.Fill(f)
	return c.Snapshot()
}

func single(px, py, pz uint8, id brick.ID) chunk.Snapshot {
	return snapshot(func(x, y, z uint8) brick.ID {
		if x == px && y == py && z == pz {
			return id
		}
		return brick.Air
	})
}

func solidLayers(id brick.ID) Neighbours {
	var n Neighbours
	for i := range n {
		layer := make([]brick.ID, chunk.Area)
		for j := range layer {
			layer[j] = id
		}
		n[i] = layer
	}
	return n
}

func TestIsolatedBrick(t *testing.T) {
	t.Parallel()

	for _, greedy := range []bool{false, true} {
		m := Build(single(5, 5, 5, brick.Rock), Neighbours{}, Options{Greedy: greedy})
		if m.FaceCount() != 6 || len(m.Vertices) != 8 || len(m.Indices) != 36 {
			t.Fatalf("greedy=%v: expected 6 faces, 8 vertices and 36 indices, got %d, %d and %d", greedy, m.FaceCount(), len(m.Vertices), len(m.Indices))
		}
		if len(m.Batches) != 6 {
			t.Fatalf("greedy=%v: expected 6 batches, got %d", greedy, len(m.Batches))
		}
	}
}

func TestWindingFacesOutwards(t *testing.T) {
	t.Parallel()

	m := Build(single(0, 15, 7, brick.Dirt), Neighbours{}, Options{})
	for _, b := range m.Batches {
		off := b.Face.Offset()
		for i := b.First; i < b.First+b.Count; i += 3 {
			v0, v1, v2 := m.Vertices[m.Indices[i]], m.Vertices[m.Indices[i+1]], m.Vertices[m.Indices[i+2]]
			normal := v1.Sub(v0).Cross(v2.Sub(v0)).Normalize()
			for axis := range 3 {
				if normal[axis] != float32(off[axis]) {
					t.Fatalf("face %v: expected normal %v, got %v", b.Face, off, normal)
				}
			}
		}
	}
}

func TestSolidChunkCulled(t *testing.T) {
	t.Parallel()

	solid := snapshot(func(_, _, _ uint8) brick.ID { return brick.Rock })
	if m := Build(solid, solidLayers(brick.Sandstone), Options{}); !m.Empty() {
		t.Fatalf("expected no faces between solid chunks, got %d", m.FaceCount())
	}

	m := Build(solid, Neighbours{}, Options{})
	if m.FaceCount() != 6*chunk.Area {
		t.Fatalf("expected %d faces towards missing neighbours, got %d", 6*chunk.Area, m.FaceCount())
	}
	if want := 17*17*17 - 15*15*15; len(m.Vertices) != want {
		t.Fatalf("expected %d shared vertices, got %d", want, len(m.Vertices))
	}

	greedy := Build(solid, Neighbours{}, Options{Greedy: true})
	if greedy.FaceCount() != 6 || len(greedy.Vertices) != 8 {
		t.Fatalf("expected six merged faces on 8 vertices, got %d faces on %d vertices", greedy.FaceCount(), len(greedy.Vertices))
	}
}

func TestNeighbourBorderCulls(t *testing.T) {
	t.Parallel()

	snap := single(15, 3, 3, brick.Rock)
	var n Neighbours
	n[cube.FaceEast] = solidLayers(brick.Rock)[cube.FaceEast]
	if m := Build(snap, n, Options{}); m.FaceCount() != 5 {
		t.Fatalf("expected face towards the solid neighbour culled, got %d faces", m.FaceCount())
	}

	n[cube.FaceEast] = solidLayers(brick.Glass)[cube.FaceEast]
	if m := Build(snap, n, Options{}); m.FaceCount() != 6 {
		t.Fatalf("expected opaque face against translucent neighbour drawn, got %d faces", m.FaceCount())
	}
}

func TestTranslucentFaces(t *testing.T) {
	t.Parallel()

	mixed := snapshot(func(x, y, z uint8) brick.ID {
		switch {
		case y != 5 || z != 5:
			return brick.Air
		case x == 5:
			return brick.Glass
		case x == 6:
			return brick.Rock
		}
		return brick.Air
	})
	m := Build(mixed, Neighbours{}, Options{})
	if m.FaceCount() != 11 {
		t.Fatalf("expected 11 faces for glass next to rock, got %d", m.FaceCount())
	}
	for _, b := range m.Batches {
		if b.Brick == brick.Glass && b.Face == cube.FaceEast {
			t.Fatal("glass face towards rock should be culled")
		}
	}

	glass := snapshot(func(x, y, z uint8) brick.ID {
		if (x == 5 || x == 6) && y == 5 && z == 5 {
			return brick.Glass
		}
		return brick.Air
	})
	if m := Build(glass, Neighbours{}, Options{}); m.FaceCount() != 10 {
		t.Fatalf("expected shared face of two glass bricks culled, got %d faces", m.FaceCount())
	}
}

func TestGreedyMergesSameBrick(t *testing.T) {
	t.Parallel()

	// A 4x4 floor of two materials split in halves along X.
	floor := snapshot(func(x, y, z uint8) brick.ID {
		switch {
		case z != 0 || x >= 4 || y >= 4:
			return brick.Air
		case x < 2:
			return brick.Grass
		}
		return brick.Dirt
	})
	plain := Build(floor, Neighbours{}, Options{})
	greedy := Build(floor, Neighbours{}, Options{Greedy: true})
	if plain.FaceCount() != 2*16+4*4 {
		t.Fatalf("expected %d faces without merging, got %d", 2*16+4*4, plain.FaceCount())
	}
	// Top and bottom merge into one rectangle per material, each side into
	// one per material touching it.
	if greedy.FaceCount() != 2*2+6 {
		t.Fatalf("expected %d merged faces, got %d", 2*2+6, greedy.FaceCount())
	}
	for _, b := range greedy.Batches {
		if b.Count%6 != 0 {
			t.Fatalf("batch %+v does not hold whole quads", b)
		}
	}
}

func TestMergeMaskCoversEveryCell(t *testing.T) {
	t.Parallel()

	var mask [chunk.Area]cell
	for i := range mask {
		mask[i] = newCell(brick.ID(1+(i/7)%3), [4]uint8{3, 3, uint8(i/50) % 4, 3})
	}
	want := mask
	var got [chunk.Area]cell
	mergeMask(&mask, func(c cell, q quad) {
		for v := q.v0; v < q.v0+q.dv; v++ {
			for u := q.u0; u < q.u0+q.du; u++ {
				if got[u+v*chunk.Size] != 0 {
					t.Fatalf("cell %d,%d covered twice", u, v)
				}
				got[u+v*chunk.Size] = c
			}
		}
	})
	if got != want {
		t.Fatal("merged rectangles do not reproduce the mask")
	}
	for _, c := range mask {
		if c != 0 {
			t.Fatal("mask was not cleared")
		}
	}
}

// topOcclusion returns the occlusion factor of the vertices of the up faces
// of rock at height z, keyed by the X and Y of the vertex.
func topOcclusion(t *testing.T, m *Mesh, z float32) map[[2]float32]float32 {
	t.Helper()
	if len(m.Occlusion) != len(m.Vertices) {
		t.Fatalf("expected an occlusion factor per vertex, got %d for %d vertices", len(m.Occlusion), len(m.Vertices))
	}
	ao := make(map[[2]float32]float32)
	for _, b := range m.Batches {
		if b.Face != cube.FaceUp || b.Brick != brick.Rock {
			continue
		}
		if b.Normal() != (mgl32.Vec3{0, 0, 1}) {
			t.Fatalf("expected up normal, got %v", b.Normal())
		}
		for _, i := range m.Indices[b.First : b.First+b.Count] {
			if v := m.Vertices[i]; v[2] == z {
				ao[[2]float32{v[0], v[1]}] = m.Occlusion[i]
			}
		}
	}
	return ao
}

func TestAmbientOcclusion(t *testing.T) {
	t.Parallel()

	if m := Build(single(5, 5, 5, brick.Rock), Neighbours{}, Options{}); len(m.Occlusion) != 8 {
		t.Fatalf("expected 8 occlusion factors, got %d", len(m.Occlusion))
	} else {
		for _, o := range m.Occlusion {
			if o != 1 {
				t.Fatalf("expected open corners around an isolated brick, got %v", o)
			}
		}
	}

	step := func(x, y, z uint8) brick.ID {
		if (x == 5 && y == 5 && z == 5) || (x == 6 && y == 5 && z == 6) {
			return brick.Rock
		}
		return brick.Air
	}
	for _, greedy := range []bool{false, true} {
		ao := topOcclusion(t, Build(snapshot(step), Neighbours{}, Options{Greedy: greedy}), 6)
		want := map[[2]float32]float32{{5, 5}: 1, {5, 6}: 1, {6, 5}: 2.0 / 3, {6, 6}: 2.0 / 3}
		for k, w := range want {
			if ao[k] != w {
				t.Fatalf("greedy=%v: expected occlusion %v at %v, got %v", greedy, w, k, ao[k])
			}
		}
	}

	corner := snapshot(func(x, y, z uint8) brick.ID {
		if x == 5 && y == 6 && z == 6 {
			return brick.Rock
		}
		return step(x, y, z)
	})
	if ao := topOcclusion(t, Build(corner, Neighbours{}, Options{}), 6); ao[[2]float32{6, 6}] != 0 {
		t.Fatalf("expected corner between two bricks fully occluded, got %v", ao[[2]float32{6, 6}])
	}
}

func TestAmbientOcclusionAcrossBorder(t *testing.T) {
	t.Parallel()

	var n Neighbours
	n[cube.FaceEast] = make([]brick.ID, chunk.Area)
	n[cube.FaceEast][chunk.LayerIndex(cube.FaceEast, 0, 5, 6)] = brick.Rock

	ao := topOcclusion(t, Build(single(15, 5, 5, brick.Rock), n, Options{}), 6)
	if ao[[2]float32{16, 5}] != 2.0/3 || ao[[2]float32{16, 6}] != 2.0/3 {
		t.Fatalf("expected the east corners darkened by the neighbour, got %v", ao)
	}
	if ao[[2]float32{15, 5}] != 1 {
		t.Fatalf("expected the west corners open, got %v", ao[[2]float32{15, 5}])
	}
}
