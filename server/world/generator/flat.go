package generator

import (
	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
)

// Flat is the flat generator of a world. It generates horizontal layers of
// bricks. Flat worlds are useful for testing and building.
type Flat struct {
	floor  int
	layers []brick.ID
}

// NewFlat creates a new Flat generator. The first layer passed is placed at
// Z=floor, the next one above it and so on. Above the last layer, the world
// is air.
func NewFlat(floor int, layers ...brick.ID) Flat {
	return Flat{floor: floor, layers: layers}
}

// GenerateChunk ...
func (f Flat) GenerateChunk(pos cube.ChunkPos, c *chunk.Chunk) {
	oz := pos.Origin()[2]
	if oz+chunk.Size <= f.floor || oz >= f.floor+len(f.layers) {
		return
	}
	c.Fill(func(_, _, lz uint8) brick.ID {
		if i := oz + int(lz) - f.floor; i >= 0 && i < len(f.layers) {
			return f.layers[i]
		}
		return brick.Air
	})
}

// Height returns the Z coordinate of the topmost layer.
func (f Flat) Height() int {
	return f.floor + len(f.layers) - 1
}
