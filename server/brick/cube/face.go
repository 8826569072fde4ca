package cube

const (
	// FaceDown represents the bottom face of a brick, facing -Z.
	FaceDown Face = iota
	// FaceUp represents the top face of a brick, facing +Z.
	FaceUp
	// FaceNorth represents the north face of a brick, facing -Y.
	FaceNorth
	// FaceSouth represents the south face of a brick, facing +Y.
	FaceSouth
	// FaceWest represents the west face of the brick, facing -X.
	FaceWest
	// FaceEast represents the east face of the brick, facing +X.
	FaceEast
)

// Face represents the face of a brick or entity.
type Face int

// Faces returns all six faces in the order of their values.
func Faces() []Face {
	return faces[:]
}

var faces = [...]Face{FaceDown, FaceUp, FaceNorth, FaceSouth, FaceWest, FaceEast}

// Opposite returns the opposite face. FaceDown will return FaceUp, FaceNorth
// will return FaceSouth and FaceWest will return FaceEast, and vice versa.
func (f Face) Opposite() Face {
	return f ^ 1
}

// Axis returns the index of the axis the face lies on: 0 for X, 1 for Y and
// 2 for Z.
func (f Face) Axis() int {
	switch f {
	case FaceDown, FaceUp:
		return 2
	case FaceNorth, FaceSouth:
		return 1
	default:
		return 0
	}
}

// Positive reports whether the face points along the positive direction of
// its axis.
func (f Face) Positive() bool {
	return f&1 == 1
}

// FaceAlong returns the face on the axis passed, as returned by Axis, that
// points in the positive or negative direction.
func FaceAlong(axis int, positive bool) Face {
	f := [3]Face{FaceWest, FaceNorth, FaceDown}[axis]
	if positive {
		f++
	}
	return f
}

// Offset returns the unit offset of the face.
func (f Face) Offset() Pos {
	var p Pos
	if f.Positive() {
		p[f.Axis()] = 1
	} else {
		p[f.Axis()] = -1
	}
	return p
}

// String returns the Face as a string.
func (f Face) String() string {
	switch f {
	case FaceDown:
		return "down"
	case FaceUp:
		return "up"
	case FaceNorth:
		return "north"
	case FaceSouth:
		return "south"
	case FaceWest:
		return "west"
	case FaceEast:
		return "east"
	}
	panic("invalid face")
}
