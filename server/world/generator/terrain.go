package generator

import (
	"github.com/brickgame/brickworld/server/brick"
	"github.com/brickgame/brickworld/server/brick/cube"
	"github.com/brickgame/brickworld/server/world/chunk"
	"github.com/brickgame/brickworld/server/world/noise"
)

// caveStep is the vertical distance in bricks between two samples of cave
// density. Densities in between are interpolated linearly.
const caveStep = 4

// Params holds the tunables of the Terrain generator. Heights are in bricks
// and relative to Z=0.
type Params struct {
	// Floor is the Z coordinate of the bedrock layer. Nothing is generated
	// below it.
	Floor int `toml:"floor"`
	// CaveThreshold is the cave density above which rock is carved out.
	CaveThreshold float64 `toml:"cave_threshold"`
	// DirtCaveBias is added to CaveThreshold for bricks in the dirt layer, so
	// that caves break through the surface less often.
	DirtCaveBias float64 `toml:"dirt_cave_bias"`
	// SandMoisture is the moisture below which eroded rock becomes
	// sandstone.
	SandMoisture float64 `toml:"sand_moisture"`
	// GrassMoisture is the moisture above which the top dirt brick becomes
	// grass.
	GrassMoisture float64 `toml:"grass_moisture"`

	UnerodedHeight noise.Function `toml:"uneroded_height"`
	ErodedHeight   noise.Function `toml:"eroded_height"`
	Erosion        noise.Function `toml:"erosion"`
	DirtThickness  noise.Function `toml:"dirt_thickness"`
	Moisture       noise.Function `toml:"moisture"`
	CaveDensity    noise.Function `toml:"cave_density"`
}

// DefaultParams returns the Params used for new worlds.
func DefaultParams() Params {
	return Params{
		Floor:          -32,
		CaveThreshold:  0.92,
		DirtCaveBias:   0.04,
		SandMoisture:   0.3,
		GrassMoisture:  0.35,
		UnerodedHeight: noise.Function{Period: 384, Min: -8, Max: 64, Octaves: 5, Lacunarity: 2},
		ErodedHeight:   noise.Function{Period: 160, Min: -4, Max: 20, Octaves: 4, Lacunarity: 2},
		Erosion:        noise.Function{Period: 512, Min: 0, Max: 1, Octaves: 2, Lacunarity: 2},
		DirtThickness:  noise.Function{Period: 96, Min: 1, Max: 5, Octaves: 2, Lacunarity: 2},
		Moisture:       noise.Function{Period: 640, Min: 0, Max: 1, Octaves: 3, Lacunarity: 2},
		CaveDensity:    noise.Function{Ridged: true, Period: 48, Min: 0, Max: 1, Octaves: 2, Lacunarity: 2},
	}
}

// Terrain generates eroded rock terrain covered by dirt and grass, carved by
// ridged noise caves. Every brick is a pure function of its position and the
// seed, so chunks line up at their edges and regenerate identically. Terrain
// holds no mutable state and may generate chunks concurrently.
type Terrain struct {
	seed int64
	p    Params

	uneroded, eroded, erosion, dirt, moisture, cave *noise.Source
}

// NewTerrain returns a Terrain generator for the seed and params passed.
func NewTerrain(seed int64, p Params) *Terrain {
	return &Terrain{
		seed:     seed,
		p:        p,
		uneroded: noise.New(seed*59 + 1),
		eroded:   noise.New(seed*67 + 2),
		erosion:  noise.New(seed*71 + 3),
		dirt:     noise.New(seed*79 + 4),
		moisture: noise.New(seed*61 + 5),
		cave:     noise.New(seed*73 + 6),
	}
}

// Seed returns the seed the generator was created with.
func (t *Terrain) Seed() int64 {
	return t.seed
}

// Column holds the surface properties of one column of terrain.
type Column struct {
	// RockHeight is the height of the top of the rock layer.
	RockHeight float64
	// ErodedHeight is the height below which rock is eroded.
	ErodedHeight float64
	// GroundHeight is the height of the top of the dirt layer.
	GroundHeight float64
	// Moisture is within [0, 1].
	Moisture float64
}

// Column samples the surface properties of the column at x, y.
func (t *Terrain) Column(x, y int) Column {
	fx, fy := float64(x), float64(y)
	erosion := t.p.Erosion.Sample2(t.erosion, fx, fy)
	uneroded := t.p.UnerodedHeight.Sample2(t.uneroded, fx, fy)
	eroded := t.p.ErodedHeight.Sample2(t.eroded, fx, fy)
	rock := max(uneroded*(1-erosion), eroded)
	return Column{
		RockHeight:   rock,
		ErodedHeight: eroded,
		GroundHeight: rock + t.p.DirtThickness.Sample2(t.dirt, fx, fy),
		Moisture:     t.p.Moisture.Sample2(t.moisture, fx, fy),
	}
}

// caveDensity samples the cave density at x, y for every Z in [z0, z0+Size)
// and stores it in dst.
func (t *Terrain) caveDensity(x, y, z0 int, dst *[chunk.Size]float64) {
	fx, fy := float64(x), float64(y)
	var samples [chunk.Size/caveStep + 1]float64
	for i := range samples {
		samples[i] = t.p.CaveDensity.Sample3(t.cave, fx, fy, float64(z0+i*caveStep))
	}
	for lz := range chunk.Size {
		i, f := lz/caveStep, float64(lz%caveStep)/caveStep
		dst[lz] = samples[i] + (samples[i+1]-samples[i])*f
	}
}

// GenerateChunk fills the chunk at pos.
func (t *Terrain) GenerateChunk(pos cube.ChunkPos, c *chunk.Chunk) {
	origin := pos.Origin()
	var (
		columns [chunk.Area]Column
		caves   [chunk.Area][chunk.Size]float64
	)
	for ly := range chunk.Size {
		for lx := range chunk.Size {
			i := lx | ly<<4
			x, y := origin[0]+lx, origin[1]+ly
			columns[i] = t.Column(x, y)
			if float64(origin[2]) <= columns[i].GroundHeight {
				t.caveDensity(x, y, origin[2], &caves[i])
			}
		}
	}
	c.Fill(func(lx, ly, lz uint8) brick.ID {
		i := int(lx) | int(ly)<<4
		return t.brick(origin[2]+int(lz), columns[i], caves[i][lz])
	})
}

// brick selects the brick at height z of a column with the cave density
// passed. A density above the cave threshold carves air, so raising the
// threshold leaves fewer caves. Heights are compared unrounded: a brick is
// part of a layer if its bottom lies at or below the height of the layer.
func (t *Terrain) brick(z int, col Column, cave float64) brick.ID {
	fz := float64(z)
	switch {
	case z < t.p.Floor:
		return brick.Air
	case z == t.p.Floor:
		return brick.Bedrock
	case fz <= col.RockHeight:
		if cave > t.p.CaveThreshold {
			return brick.Air
		}
		if fz <= col.ErodedHeight {
			if col.Moisture < t.p.SandMoisture {
				return brick.Sandstone
			}
			return brick.ErodedRock
		}
		return brick.Rock
	case fz <= col.GroundHeight:
		if cave > t.p.CaveThreshold+t.p.DirtCaveBias {
			return brick.Air
		}
		if fz+1 > col.GroundHeight && col.Moisture > t.p.GrassMoisture {
			return brick.Grass
		}
		return brick.Dirt
	}
	return brick.Air
}
