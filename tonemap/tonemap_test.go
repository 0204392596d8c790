// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package tonemap

import (
	"math"
	"reflect"
	"testing"

	"github.com/gogpu/vidre/colorspace"
)

// hdrToSDR returns a representative HDR10 (1000 nits) to SDR (100 nits)
// request for the given function.
func hdrToSDR(f *Function) Params {
	return Params{
		Function:      f,
		InputScaling:  colorspace.ScaleAbsolute,
		OutputScaling: colorspace.ScaleAbsolute,
		InputMin:      0.005,
		InputMax:      1000,
		OutputMin:     0.1,
		OutputMax:     100,
		LUTSize:       128,
	}
}

func TestFunctionByName(t *testing.T) {
	for _, f := range Functions {
		if got := FunctionByName(f.Name); got != f {
			t.Errorf("FunctionByName(%q) = %v, want %v", f.Name, got, f)
		}
	}
	if got := FunctionByName("does-not-exist"); got != nil {
		t.Errorf("unknown name returned %v, want nil", got)
	}
}

func TestInferIdempotent(t *testing.T) {
	for _, f := range Functions {
		t.Run(f.Name, func(t *testing.T) {
			p := hdrToSDR(f)
			p.Param = f.ParamDefault * 1.3 // exercise the legacy path
			p.Constants = Constants{KneeMinimum: -1, KneeMaximum: 7, Exposure: 99}
			once := p
			once.Infer()
			twice := once
			twice.Infer()
			if !reflect.DeepEqual(once, twice) {
				t.Errorf("Infer not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
			}
		})
	}
}

func TestInferClampsConstants(t *testing.T) {
	p := hdrToSDR(FunctionSpline)
	p.Constants = Constants{
		KneeAdaptation:   5,
		KneeMinimum:      0.9,
		KneeMaximum:      0.2,
		KneeDefault:      17,
		KneeOffset:       100,
		SlopeTuning:      -3,
		SlopeOffset:      2,
		SplineContrast:   9,
		ReinhardContrast: 1.5,
		LinearKnee:       -0.2,
		Exposure:         1000,
	}
	p.Infer()
	c := p.Constants
	checks := []struct {
		name     string
		v, lo, hi float64
	}{
		{"KneeAdaptation", c.KneeAdaptation, 0, 1},
		{"KneeMinimum", c.KneeMinimum, 0, 0.5},
		{"KneeMaximum", c.KneeMaximum, 0.5, 1},
		{"KneeDefault", c.KneeDefault, c.KneeMinimum, c.KneeMaximum},
		{"KneeOffset", c.KneeOffset, 0.5, 2},
		{"SlopeTuning", c.SlopeTuning, 0, 10},
		{"SlopeOffset", c.SlopeOffset, 0, 1},
		{"SplineContrast", c.SplineContrast, 0, 1.5},
		{"ReinhardContrast", c.ReinhardContrast, 0, 1},
		{"LinearKnee", c.LinearKnee, 0, 1},
		{"Exposure", c.Exposure, 0, 10},
	}
	for _, ck := range checks {
		if ck.v < ck.lo || ck.v > ck.hi {
			t.Errorf("%s = %v, outside [%v, %v]", ck.name, ck.v, ck.lo, ck.hi)
		}
	}
	// Strict interiors where documented.
	if c.KneeMinimum <= 0 || c.KneeMinimum >= 0.5 {
		t.Errorf("KneeMinimum = %v, want strictly inside (0, 0.5)", c.KneeMinimum)
	}
	if c.Exposure <= 0 {
		t.Errorf("Exposure = %v, want strictly positive", c.Exposure)
	}
}

func TestGenerateEndpoints(t *testing.T) {
	for _, f := range Functions {
		t.Run(f.Name, func(t *testing.T) {
			p := hdrToSDR(f)
			p.Infer()
			lut := p.Generate()
			if len(lut) != p.LUTSize {
				t.Fatalf("LUT size = %d, want %d", len(lut), p.LUTSize)
			}
			// Endpoint behavior: black maps near the output black point,
			// peak maps near the output peak.
			if d := math.Abs(float64(lut[0]) - p.OutputMin); d > 1e-3*p.OutputMax {
				t.Errorf("lut[0] = %v, want ~%v", lut[0], p.OutputMin)
			}
			last := float64(lut[len(lut)-1])
			if d := math.Abs(last - p.OutputMax); d > 1e-3*p.OutputMax {
				t.Errorf("lut[n-1] = %v, want ~%v", last, p.OutputMax)
			}
		})
	}
}

func TestSampleAgreesWithLUT(t *testing.T) {
	for _, f := range Functions {
		t.Run(f.Name, func(t *testing.T) {
			p := hdrToSDR(f)
			p.LUTSize = 4096
			p.Infer()
			lut := p.Generate()
			n := len(lut)
			for _, frac := range []float64{0.1, 0.25, 0.5, 0.8, 0.95} {
				x := p.InputMin + frac*(p.InputMax-p.InputMin)
				got := p.Sample(x)
				// Linear interpolation into the LUT.
				pos := frac * float64(n-1)
				i := int(pos)
				t0 := pos - float64(i)
				want := float64(lut[i])*(1-t0) + float64(lut[i+1])*t0
				if math.Abs(got-want) > 1e-3*p.OutputMax {
					t.Errorf("Sample(%v) = %v, LUT says %v", x, got, want)
				}
			}
		})
	}
}

func TestGenerateMonotonic(t *testing.T) {
	for _, f := range Functions {
		t.Run(f.Name, func(t *testing.T) {
			p := hdrToSDR(f)
			p.LUTSize = 512
			lut := p.Generate()
			for i := 1; i < len(lut); i++ {
				// Tiny negative steps are float noise, not curve defects.
				if float64(lut[i]) < float64(lut[i-1])-1e-6*p.OutputMax {
					t.Fatalf("LUT not monotone at %d: %v -> %v", i, lut[i-1], lut[i])
				}
			}
		})
	}
}

func TestIsNoopEqualRanges(t *testing.T) {
	for _, f := range Functions {
		p := Params{
			Function:      f,
			InputScaling:  colorspace.ScaleNominal,
			OutputScaling: colorspace.ScaleNominal,
			InputMin:      0.001, InputMax: 1,
			OutputMin: 0.001, OutputMax: 1,
		}
		if !p.IsNoop() {
			t.Errorf("%s: equal ranges not detected as no-op", f.Name)
		}
	}
}

func TestIsNoopNearTolerance(t *testing.T) {
	base := Params{
		Function:      FunctionClip,
		InputScaling:  colorspace.ScaleNominal,
		OutputScaling: colorspace.ScaleNominal,
		InputMin:      0.001, InputMax: 1,
		OutputMin: 0.001,
	}
	// Well inside the relative tolerance.
	p := base
	p.OutputMax = 1.001
	if !p.IsNoop() {
		t.Error("peak ratio 1.001 should be no-op")
	}
	// Well outside.
	p = base
	p.OutputMax = 0.9
	if p.IsNoop() {
		t.Error("peak ratio 0.9 should not be no-op")
	}
	// Black point mismatch beyond the absolute tolerance.
	p = base
	p.OutputMax = 1
	p.OutputMin = 0.01
	if p.IsNoop() {
		t.Error("black point mismatch should not be no-op")
	}
}

func TestInverseRequiresCallback(t *testing.T) {
	// A function without an inverse must have its effective output peak
	// clamped to the input peak rather than attempting to brighten.
	p := Params{
		Function:      FunctionReinhard,
		InputScaling:  colorspace.ScaleNominal,
		OutputScaling: colorspace.ScaleNominal,
		InputMax:      1,
		OutputMax:     10,
	}
	p.Infer()
	if p.OutputMax != 1 {
		t.Fatalf("OutputMax = %v, want clamped to 1", p.OutputMax)
	}

	// Functions with an inverse keep the brightened peak.
	p = Params{
		Function:      FunctionBT2446A,
		InputScaling:  colorspace.ScaleNominal,
		OutputScaling: colorspace.ScaleNominal,
		InputMax:      1,
		OutputMax:     10,
	}
	p.Infer()
	if p.OutputMax != 10 {
		t.Fatalf("OutputMax = %v, want 10 (inverse supported)", p.OutputMax)
	}
	lut := p.Generate()
	if float64(lut[len(lut)-1]) < 5 {
		t.Errorf("inverse mapping peak = %v, expected substantial brightening", lut[len(lut)-1])
	}
}

func TestLegacyParamRedistribution(t *testing.T) {
	p := hdrToSDR(FunctionReinhard)
	p.Param = 0.7
	p.Infer()
	if p.Constants.ReinhardContrast != 0.7 {
		t.Errorf("ReinhardContrast = %v, want 0.7 from legacy scalar", p.Constants.ReinhardContrast)
	}

	p = hdrToSDR(FunctionMobius)
	p.Param = 0.45
	p.Infer()
	if p.Constants.LinearKnee != 0.45 {
		t.Errorf("LinearKnee = %v, want 0.45 from legacy scalar", p.Constants.LinearKnee)
	}

	// Out-of-bounds scalars are clamped into the declared bounds first.
	p = hdrToSDR(FunctionReinhard)
	p.Param = 40
	p.Infer()
	if p.Constants.ReinhardContrast != FunctionReinhard.ParamMax {
		t.Errorf("ReinhardContrast = %v, want clamped to %v", p.Constants.ReinhardContrast, FunctionReinhard.ParamMax)
	}
}
