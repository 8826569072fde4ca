package noise

import "math"

// Function describes fractal noise built from octaves of a Source. Each
// octave doubles (by Lacunarity) the frequency of the previous one. The
// result is mapped into [Min, Max].
type Function struct {
	// Ridged folds each octave around zero, producing sharp crests.
	Ridged bool `toml:"ridged"`
	// Period is the distance in bricks over which the lowest octave repeats
	// once.
	Period float64 `toml:"period"`
	// Min and Max bound the value returned by the function.
	Min float64 `toml:"min"`
	Max float64 `toml:"max"`
	// Octaves is the number of layers summed. Values below 1 are treated as 1.
	Octaves int `toml:"octaves"`
	// Lacunarity is the frequency multiplier between octaves. Values of 1 or
	// below are treated as 2.
	Lacunarity float64 `toml:"lacunarity"`
}

func (f Function) params() (octaves int, lacunarity, period float64) {
	octaves, lacunarity, period = f.Octaves, f.Lacunarity, f.Period
	if octaves < 1 {
		octaves = 1
	}
	if lacunarity <= 1 {
		lacunarity = 2
	}
	if period <= 0 {
		period = 1
	}
	return
}

// Sample2 evaluates the function at x, y using Source s.
func (f Function) Sample2(s *Source, x, y float64) float64 {
	octaves, lac, period := f.params()
	x, y = x/period, y/period
	var v float64
	for range octaves {
		v = v*lac + f.octave(s.Sample2(x, y))
		x, y = x*lac, y*lac
	}
	return f.normalise(v, octaves, lac)
}

// Sample3 evaluates the function at x, y, z using Source s.
func (f Function) Sample3(s *Source, x, y, z float64) float64 {
	octaves, lac, period := f.params()
	x, y, z = x/period, y/period, z/period
	var v float64
	for range octaves {
		v = v*lac + f.octave(s.Sample3(x, y, z))
		x, y, z = x*lac, y*lac, z*lac
	}
	return f.normalise(v, octaves, lac)
}

// octave maps a raw sample in [-1, 1] to the value added for one octave,
// also in [-1, 1].
func (f Function) octave(n float64) float64 {
	if f.Ridged {
		return -1 + 2*(1-math.Abs(n))
	}
	return n
}

// normalise maps the sum of octaves into [Min, Max]. The sum of n octaves with
// weights lac^(n-1), ..., lac, 1 lies within +-(lac^n-1)/(lac-1).
func (f Function) normalise(v float64, octaves int, lac float64) float64 {
	denom := (math.Pow(lac, float64(octaves)) - 1) / (lac - 1)
	scale := (f.Max - f.Min) / (denom * 2)
	bias := (f.Max + f.Min) / 2
	return math.Max(f.Min, math.Min(f.Max, v*scale+bias))
}
