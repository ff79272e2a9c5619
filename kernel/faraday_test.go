package kernel

import (
	"math"
	"testing"
)

func defaultParams() Params {
	return Params{
		IterationLimit: 100,
		SampleCount:    20000,
		StepSize:       0.1,
		Coupling:       4.5,
	}
}

func TestFaradayDeterministic(t *testing.T) {
	p := defaultParams()
	a := Faraday(-0.75, 0.1, p)
	b := Faraday(-0.75, 0.1, p)
	if a != b {
		t.Errorf("Faraday not deterministic: %v != %v", a, b)
	}
}

func TestFaradayFiniteOverDefaultViewport(t *testing.T) {
	p := defaultParams()
	for yi := 0; yi <= 20; yi++ {
		for xi := 0; xi <= 20; xi++ {
			x := -2.0 + 2.5*float64(xi)/20
			y := -1.25 + 2.5*float64(yi)/20
			v := Faraday(x, y, p)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Fatalf("Faraday(%v, %v) = %v, want finite", x, y, v)
			}
			if v < 0 {
				t.Fatalf("Faraday(%v, %v) = %v, want >= 0", x, y, v)
			}
		}
	}
}

func TestIGaussianSaturatesFarBelowWave(t *testing.T) {
	// Deep on the reducing side of the wave the denominator exponent
	// overflows; the cutoff must return exactly 0, never Inf/Inf.
	v := IGaussian(1, 1e-4, 1.0, 2e-5, 0.5, -2, 1.25, 0.1)
	if v != 0 {
		t.Errorf("IGaussian far below wave = %v, want 0", v)
	}

	// The worst case of the default parameter sweep: the last of 100
	// waves sits 44.55 potential units above the sample point.
	p := defaultParams()
	got := Faraday(-2, -1.25, p)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Errorf("Faraday(-2, -1.25) = %v, want finite", got)
	}
}

func TestFaradayPeaksNearWave(t *testing.T) {
	p := defaultParams()
	p.IterationLimit = 1
	y := 0.0
	// The single wave sits at E⁰ = y; the current just below the wave
	// must exceed the current far to the positive side.
	near := Faraday(y-0.05, y, p)
	far := Faraday(y+1.5, y, p)
	if near <= far {
		t.Errorf("near-wave current %v <= far current %v", near, far)
	}
}

func TestFaradayHandlesDegenerateParams(t *testing.T) {
	p := Params{IterationLimit: 0, SampleCount: 0, StepSize: 0, Coupling: 0}
	v := Faraday(0, 0, p)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		t.Errorf("Faraday with zero params = %v, want finite", v)
	}
}

func TestITForwardKnownValue(t *testing.T) {
	// With a huge exponent the exp term vanishes: i ≈ v·C + v/Rp·(t − Rs·C).
	v, c, rS, rP := 1.0, 0.05, 10.0, 1e5
	got := ITForward(v, c, 100, 0, rS, rP, 2)
	want := v*c + v/rP*(2-rS*c)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ITForward = %v, want %v", got, want)
	}
}

func TestITBackwardBaseline(t *testing.T) {
	// At Eap == Ef the exp term is 1, so both bracketed terms collapse:
	// i = a + v/Rp·t.
	a, v, c, rS, rP := 3.0, 1.0, 0.05, 10.0, 1e5
	got := ITBackward(a, v, c, 0.5, 0.5, rS, rP, 4)
	want := a + v/rP*4
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("ITBackward = %v, want %v", got, want)
	}
}

func TestIGaussianSymmetryAroundPeak(t *testing.T) {
	// The wave decays in both directions away from its maximum.
	peakV := IGaussian(1, 1e-4, 1.0, 2e-5, 0.5, 0, 0, 0.1)
	leftV := IGaussian(1, 1e-4, 1.0, 2e-5, 0.5, -0.5, 0, 0.1)
	rightV := IGaussian(1, 1e-4, 1.0, 2e-5, 0.5, 0.5, 0, 0.1)
	if peakV <= leftV || peakV <= rightV {
		t.Errorf("IGaussian peak %v not above flanks %v, %v", peakV, leftV, rightV)
	}
}

func TestCapacitiveFinite(t *testing.T) {
	p := defaultParams()
	for yi := 0; yi <= 10; yi++ {
		for xi := 0; xi <= 10; xi++ {
			x := -2.0 + 2.5*float64(xi)/10
			y := -1.25 + 2.5*float64(yi)/10
			v := Capacitive(x, y, p)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				t.Fatalf("Capacitive(%v, %v) = %v, want finite non-negative", x, y, v)
			}
		}
	}
}
