// Package noise provides seeded coherent noise used by terrain generation.
package noise

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

// Source is a seeded simplex noise field. Samples are continuous and
// deterministic per seed and coordinates. A Source holds no mutable state and
// is safe for concurrent use.
type Source struct {
	seed  int64
	noise opensimplex.Noise
}

// New returns a Source seeded with the seed passed.
func New(seed int64) *Source {
	return &Source{seed: seed, noise: opensimplex.New(seed)}
}

// Seed returns the seed the Source was created with.
func (s *Source) Seed() int64 {
	return s.seed
}

// Sample2 samples the noise field at x, y. The value returned is within
// [-1, 1].
func (s *Source) Sample2(x, y float64) float64 {
	return clamp(s.noise.Eval2(x, y))
}

// Sample3 samples the noise field at x, y, z. The value returned is within
// [-1, 1].
func (s *Source) Sample3(x, y, z float64) float64 {
	return clamp(s.noise.Eval3(x, y, z))
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
