package noise

import (
	"math"
	"testing"
)

func TestSourceDeterministic(t *testing.T) {
	t.Parallel()

	a, b := New(42), New(42)
	for i := range 200 {
		x, y, z := float64(i)*0.37, float64(i)*-1.11, float64(i)*0.05
		if a.Sample3(x, y, z) != b.Sample3(x, y, z) {
			t.Fatalf("samples differ at %v,%v,%v", x, y, z)
		}
		if a.Sample2(x, y) != b.Sample2(x, y) {
			t.Fatalf("2D samples differ at %v,%v", x, y)
		}
	}
}

func TestSourceRange(t *testing.T) {
	t.Parallel()

	s := New(7)
	for i := range 5000 {
		v := s.Sample3(float64(i)*0.173, float64(i%97)*0.29, float64(i%13)*0.71)
		if v < -1 || v > 1 || math.IsNaN(v) {
			t.Fatalf("sample %v out of range", v)
		}
	}
}

func TestSourceContinuous(t *testing.T) {
	t.Parallel()

	s := New(1)
	const step = 1e-4
	for i := range 1000 {
		x := float64(i) * 0.5
		if d := math.Abs(s.Sample2(x, 3) - s.Sample2(x+step, 3)); d > 0.01 {
			t.Fatalf("discontinuity of %v at x=%v", d, x)
		}
	}
}

func TestFunctionBounds(t *testing.T) {
	t.Parallel()

	s := New(3)
	fns := []Function{
		{Period: 64, Min: -8, Max: 24, Octaves: 4, Lacunarity: 2},
		{Ridged: true, Period: 32, Min: 0, Max: 1, Octaves: 3, Lacunarity: 2.5},
		{Min: 5, Max: 6},
	}
	for _, f := range fns {
		for i := range 2000 {
			x, y := float64(i)*3.7, float64(i)*-2.3
			v := f.Sample2(s, x, y)
			if v < f.Min || v > f.Max {
				t.Fatalf("%+v: value %v outside [%v, %v]", f, v, f.Min, f.Max)
			}
			v = f.Sample3(s, x, y, float64(i%50))
			if v < f.Min || v > f.Max {
				t.Fatalf("%+v: 3D value %v outside [%v, %v]", f, v, f.Min, f.Max)
			}
		}
	}
}
