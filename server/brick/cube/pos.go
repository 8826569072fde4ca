package cube

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// ChunkSizeLog2 is the base 2 logarithm of the edge length of a chunk.
const ChunkSizeLog2 = 4

// ChunkSize is the edge length of a chunk in bricks.
const ChunkSize = 1 << ChunkSizeLog2

// Pos holds the position of a brick. The position is represented of an array
// with an x, y and z value, where the z value is the vertical axis.
type Pos [3]int

// String converts the Pos to a string in the format (1,2,3) and returns it.
func (p Pos) String() string {
	return fmt.Sprintf("(%v,%v,%v)", p[0], p[1], p[2])
}

// X returns the X coordinate of the brick position.
func (p Pos) X() int {
	return p[0]
}

// Y returns the Y coordinate of the brick position.
func (p Pos) Y() int {
	return p[1]
}

// Z returns the Z coordinate of the brick position.
func (p Pos) Z() int {
	return p[2]
}

// Add adds two brick positions together and returns a new one with the
// combined values.
func (p Pos) Add(pos Pos) Pos {
	return Pos{p[0] + pos[0], p[1] + pos[1], p[2] + pos[2]}
}

// Side returns the position on the side of this brick position, at a specific
// face.
func (p Pos) Side(face Face) Pos {
	return p.Add(face.Offset())
}

// Chunk returns the position of the chunk that the brick position is in. The
// division floors, so that -1 lies in chunk -1.
func (p Pos) Chunk() ChunkPos {
	return ChunkPos{
		int32(p[0] >> ChunkSizeLog2),
		int32(p[1] >> ChunkSizeLog2),
		int32(p[2] >> ChunkSizeLog2),
	}
}

// ChunkInRange reports whether the chunk of the brick position can be
// represented by a ChunkPos. Chunk wraps around for positions where it
// returns false.
func (p Pos) ChunkInRange() bool {
	for _, v := range p {
		if c := v >> ChunkSizeLog2; c < math.MinInt32 || c > math.MaxInt32 {
			return false
		}
	}
	return true
}

// Local returns the position of the brick relative to the origin of the chunk
// it is in. Each value is within [0, ChunkSize).
func (p Pos) Local() (x, y, z uint8) {
	const mask = ChunkSize - 1
	return uint8(p[0] & mask), uint8(p[1] & mask), uint8(p[2] & mask)
}

// Vec3 returns a vec3 holding the same coordinates as the brick position.
func (p Pos) Vec3() mgl64.Vec3 {
	return mgl64.Vec3{float64(p[0]), float64(p[1]), float64(p[2])}
}

// Vec3Centre returns a Vec3 holding the coordinates of the brick position with
// 0.5 added on all axes.
func (p Pos) Vec3Centre() mgl64.Vec3 {
	return mgl64.Vec3{float64(p[0]) + 0.5, float64(p[1]) + 0.5, float64(p[2]) + 0.5}
}

// PosFromVec3 returns a brick position by a Vec3, rounding the values down
// adequately.
func PosFromVec3(vec3 mgl64.Vec3) Pos {
	return Pos{floor(vec3[0]), floor(vec3[1]), floor(vec3[2])}
}

func floor(v float64) int {
	i := int(v)
	if v < float64(i) {
		return i - 1
	}
	return i
}

// ChunkPos holds the position of a chunk. The type is provided as a utility
// struct for keeping track of a chunk's position. Chunks do not themselves keep
// track of that. Each value is the brick coordinate floor-divided by
// ChunkSize.
type ChunkPos [3]int32

// String implements fmt.Stringer and returns (x, y, z).
func (p ChunkPos) String() string {
	return fmt.Sprintf("(%v, %v, %v)", p[0], p[1], p[2])
}

// X returns the X coordinate of the chunk position.
func (p ChunkPos) X() int32 {
	return p[0]
}

// Y returns the Y coordinate of the chunk position.
func (p ChunkPos) Y() int32 {
	return p[1]
}

// Z returns the Z coordinate of the chunk position.
func (p ChunkPos) Z() int32 {
	return p[2]
}

// Side returns the chunk position adjacent to this one at the face passed.
func (p ChunkPos) Side(face Face) ChunkPos {
	o := face.Offset()
	return ChunkPos{p[0] + int32(o[0]), p[1] + int32(o[1]), p[2] + int32(o[2])}
}

// Origin returns the brick position with the lowest coordinates inside the
// chunk.
func (p ChunkPos) Origin() Pos {
	return Pos{int(p[0]) << ChunkSizeLog2, int(p[1]) << ChunkSizeLog2, int(p[2]) << ChunkSizeLog2}
}

// Pos returns the world position of the local coordinates passed within the
// chunk.
func (p ChunkPos) Pos(x, y, z uint8) Pos {
	return p.Origin().Add(Pos{int(x), int(y), int(z)})
}
