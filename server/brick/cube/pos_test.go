package cube

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestPosChunkFloors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pos   Pos
		chunk ChunkPos
		local [3]uint8
	}{
		{Pos{0, 0, 0}, ChunkPos{0, 0, 0}, [3]uint8{0, 0, 0}},
		{Pos{15, 16, 17}, ChunkPos{0, 1, 1}, [3]uint8{15, 0, 1}},
		{Pos{-1, -16, -17}, ChunkPos{-1, -1, -2}, [3]uint8{15, 0, 15}},
	}
	for _, tt := range tests {
		if got := tt.pos.Chunk(); got != tt.chunk {
			t.Errorf("%v: expected chunk %v, got %v", tt.pos, tt.chunk, got)
		}
		x, y, z := tt.pos.Local()
		if got := [3]uint8{x, y, z}; got != tt.local {
			t.Errorf("%v: expected local %v, got %v", tt.pos, tt.local, got)
		}
		if back := tt.chunk.Pos(x, y, z); back != tt.pos {
			t.Errorf("%v: round trip through chunk gave %v", tt.pos, back)
		}
	}
}

func TestPosChunkInRange(t *testing.T) {
	t.Parallel()

	edge := ChunkPos{math.MaxInt32, math.MinInt32, 0}.Origin()
	if !edge.ChunkInRange() || edge.Chunk() != (ChunkPos{math.MaxInt32, math.MinInt32, 0}) {
		t.Fatalf("expected %v to map to the edge chunk, got %v", edge, edge.Chunk())
	}
	for _, p := range []Pos{{1<<36 + 5, 0, 0}, {0, edge[1] - 1, 0}, {0, 0, (math.MaxInt32 + 1) << ChunkSizeLog2}} {
		if p.ChunkInRange() {
			t.Fatalf("expected chunk of %v out of range", p)
		}
		if Unbounded().ContainsPos(p) {
			t.Fatalf("expected %v outside unlimited bounds", p)
		}
	}
}

func TestFaceOpposite(t *testing.T) {
	t.Parallel()

	for _, f := range Faces() {
		o := f.Opposite()
		if o.Opposite() != f {
			t.Fatalf("opposite of opposite of %v is not %v", f, f)
		}
		if sum := f.Offset().Add(o.Offset()); sum != (Pos{}) {
			t.Fatalf("offsets of %v and %v do not cancel: %v", f, o, sum)
		}
		if got := FaceAlong(f.Axis(), f.Positive()); got != f {
			t.Fatalf("expected face along axis %d to be %v, got %v", f.Axis(), f, got)
		}
	}
}

func TestPosFromVec3(t *testing.T) {
	t.Parallel()

	if got := PosFromVec3(mgl64.Vec3{-0.5, 1.5, -3}); got != (Pos{-1, 1, -3}) {
		t.Fatalf("expected (-1,1,-3), got %v", got)
	}
}

func TestBounds(t *testing.T) {
	t.Parallel()

	if !Unbounded().Contains(ChunkPos{1 << 20, -1 << 20, 5}) {
		t.Fatal("unbounded should contain every position")
	}
	b := NewBounds(ChunkPos{2, 2, 2}, ChunkPos{-2, -2, 0})
	if !b.Contains(ChunkPos{0, 0, 0}) || b.Contains(ChunkPos{0, 0, 3}) {
		t.Fatal("bounds containment is wrong")
	}
	if z, ok := b.MaxZ(); !ok || z != 2*ChunkSize+ChunkSize-1 {
		t.Fatalf("expected max z %d, got %d", 3*ChunkSize-1, z)
	}
}
