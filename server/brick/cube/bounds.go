package cube

// Bounds is an inclusive box of chunk positions that limits a world. The zero
// value contains every position.
type Bounds struct {
	Min, Max ChunkPos
	set      bool
}

// Unbounded returns Bounds that contain every chunk position.
func Unbounded() Bounds {
	return Bounds{}
}

// NewBounds returns Bounds containing all chunk positions between min and max
// inclusive. The values are swapped per axis if min exceeds max.
func NewBounds(min, max ChunkPos) Bounds {
	for i := range 3 {
		if min[i] > max[i] {
			min[i], max[i] = max[i], min[i]
		}
	}
	return Bounds{Min: min, Max: max, set: true}
}

// Limited reports whether the Bounds restrict any position.
func (b Bounds) Limited() bool {
	return b.set
}

// Contains checks if the chunk position passed lies within the Bounds.
func (b Bounds) Contains(pos ChunkPos) bool {
	if !b.set {
		return true
	}
	for i := range 3 {
		if pos[i] < b.Min[i] || pos[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// ContainsPos checks if the brick position passed lies within the Bounds.
func (b Bounds) ContainsPos(pos Pos) bool {
	return pos.ChunkInRange() && b.Contains(pos.Chunk())
}

// MinZ returns the lowest brick Z coordinate in the Bounds and true, or false
// if the Bounds are unlimited.
func (b Bounds) MinZ() (int, bool) {
	return b.Min.Origin()[2], b.set
}

// MaxZ returns the highest brick Z coordinate in the Bounds and true, or false
// if the Bounds are unlimited.
func (b Bounds) MaxZ() (int, bool) {
	return b.Max.Origin()[2] + ChunkSize - 1, b.set
}
