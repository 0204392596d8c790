// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package tonemap implements a library of perceptual tone-mapping curves.
//
// A tone-mapping curve remaps luminance from a source dynamic range to a
// target dynamic range. Curves are registered as Function descriptors and
// looked up by name; all of them are pure and total: malformed constants are
// clamped into safe ranges, never rejected. The package produces either a
// 1-D lookup table for GPU upload or a single-point evaluation, and has no
// GPU dependency of its own.
package tonemap

import (
	"math"

	"github.com/gogpu/vidre/colorspace"
)

// Tolerances for no-op detection and related comparisons. They are
// empirical, not invariants; tests probe behavior near these values.
var (
	// AbsTolerance is the absolute luminance tolerance (nominal scaling)
	// below which two range endpoints are considered identical.
	AbsTolerance = 1e-4

	// RelTolerance is the relative tolerance on the peak ratio.
	RelTolerance = 1e-2
)

// Constants tunes the shape of the registered curves. The zero value means
// "use the default"; Params.Infer replaces zero fields and clamps everything
// into the documented safe range.
type Constants struct {
	// KneeAdaptation blends the knee point between the configured default
	// and the scene average metadata. Range [0, 1], default 0.4.
	KneeAdaptation float64

	// KneeMinimum and KneeMaximum bound the relative knee position.
	// Ranges (0, 0.5) and (0.5, 1), defaults 0.1 and 0.8.
	KneeMinimum float64
	KneeMaximum float64

	// KneeDefault is the relative knee used without scene metadata.
	// Range [KneeMinimum, KneeMaximum], default 0.4.
	KneeDefault float64

	// KneeOffset tunes the BT.2390 knee start. Range [0.5, 2], default 1.
	KneeOffset float64

	// SlopeTuning and SlopeOffset tune the ST 2094-10 mid-point slope.
	// Ranges [0, 10] and [0, 1], defaults 1.5 and 0.2.
	SlopeTuning float64
	SlopeOffset float64

	// SplineContrast tunes the spline slope at the knee. Range [0, 1.5],
	// default 0.5.
	SplineContrast float64

	// ReinhardContrast is the Reinhard curve contrast. Range (0, 1),
	// default 0.5.
	ReinhardContrast float64

	// LinearKnee is the knee of the mobius/gamma curves. Range (0, 1),
	// default 0.3.
	LinearKnee float64

	// Exposure is the linear gain of the clip/linear curves. Range
	// (0, 10], default 1.
	Exposure float64
}

// DefaultConstants returns the default curve constants.
func DefaultConstants() Constants {
	return Constants{
		KneeAdaptation:   0.4,
		KneeMinimum:      0.1,
		KneeMaximum:      0.8,
		KneeDefault:      0.4,
		KneeOffset:       1.0,
		SlopeTuning:      1.5,
		SlopeOffset:      0.2,
		SplineContrast:   0.5,
		ReinhardContrast: 0.5,
		LinearKnee:       0.3,
		Exposure:         1.0,
	}
}

// mapping is the resolved context handed to curve callbacks. All range
// fields are expressed in the function's preferred scaling basis.
type mapping struct {
	Constants
	x0, x1 float64 // input black and peak
	avg    float64 // input scene average, 0 if unsignalled
	y0, y1 float64 // output black and peak
	hdr    colorspace.HDRMetadata
}

// mapFn maps lut samples (input values in the function's scaling basis)
// in place to output values in the same basis.
type mapFn func(lut []float64, m *mapping)

// Function describes one registered tone-mapping curve.
type Function struct {
	// Name is the canonical lowercase name used for lookup.
	Name string

	// Description is a one-line human-readable summary.
	Description string

	// Scaling is the basis the curve math operates in. Params values are
	// rescaled into this basis before the callbacks run.
	Scaling colorspace.Scaling

	// ParamMin, ParamMax and ParamDefault describe the legacy
	// single-scalar tuning API. legacy redistributes that scalar into the
	// appropriate named constant; nil when the curve takes no scalar.
	ParamMin, ParamMax, ParamDefault float64
	legacy                           func(c *Constants, v float64)

	fwd mapFn
	inv mapFn // nil when the curve cannot brighten
}

// HasInverse reports whether the function supports inverse tone mapping
// (brightening into a larger output range).
func (f *Function) HasInverse() bool { return f != nil && f.inv != nil }

// Functions lists every registered curve, in preference order.
var Functions = []*Function{
	FunctionSpline,
	FunctionST2094_40,
	FunctionST2094_10,
	FunctionBT2390,
	FunctionBT2446A,
	FunctionReinhard,
	FunctionMobius,
	FunctionHable,
	FunctionGamma,
	FunctionLinear,
	FunctionClip,
}

// FunctionByName looks up a registered curve by its canonical name.
// Unknown names return nil; the caller treats nil as "not found".
func FunctionByName(name string) *Function {
	for _, f := range Functions {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Params is one complete tone-mapping request.
type Params struct {
	// Function selects the curve. Nil defaults to FunctionSpline.
	Function *Function

	// Param is the legacy single-scalar tuning value. Zero means default.
	// Infer redistributes it into the matching Constants field.
	Param float64

	// Constants tunes the curve shape; zero fields take defaults.
	Constants Constants

	// InputScaling and OutputScaling are the bases the range endpoints
	// (and LUT samples) are expressed in.
	InputScaling  colorspace.Scaling
	OutputScaling colorspace.Scaling

	// Input range: black point, peak and optional scene average, in
	// InputScaling units. InputAvg zero means unsignalled.
	InputMin, InputMax, InputAvg float64

	// Output range in OutputScaling units.
	OutputMin, OutputMax float64

	// HDR carries the source frame's HDR metadata, consulted by the
	// ST 2094 family for knee and anchor derivation.
	HDR colorspace.HDRMetadata

	// LUTSize is the number of LUT samples Generate produces. Zero
	// defaults to 256.
	LUTSize int
}

// DefaultLUTSize is the LUT resolution used when Params.LUTSize is zero.
const DefaultLUTSize = 256

func clampf(x, lo, hi float64) float64 {
	return math.Min(math.Max(x, lo), hi)
}

// Infer normalizes p in place: it fills defaults, redistributes the legacy
// scalar, clamps every constant into its documented safe range, and clamps
// the effective output peak when the curve cannot brighten. Infer is
// idempotent: applying it twice yields the same Params as applying it once.
func (p *Params) Infer() {
	if p.Function == nil {
		p.Function = FunctionSpline
	}
	if p.LUTSize <= 0 {
		p.LUTSize = DefaultLUTSize
	}

	c := &p.Constants
	def := DefaultConstants()
	if c.KneeAdaptation == 0 {
		c.KneeAdaptation = def.KneeAdaptation
	}
	if c.KneeMinimum == 0 {
		c.KneeMinimum = def.KneeMinimum
	}
	if c.KneeMaximum == 0 {
		c.KneeMaximum = def.KneeMaximum
	}
	if c.KneeDefault == 0 {
		c.KneeDefault = def.KneeDefault
	}
	if c.KneeOffset == 0 {
		c.KneeOffset = def.KneeOffset
	}
	if c.SlopeTuning == 0 {
		c.SlopeTuning = def.SlopeTuning
	}
	if c.SlopeOffset == 0 {
		c.SlopeOffset = def.SlopeOffset
	}
	if c.SplineContrast == 0 {
		c.SplineContrast = def.SplineContrast
	}
	if c.ReinhardContrast == 0 {
		c.ReinhardContrast = def.ReinhardContrast
	}
	if c.LinearKnee == 0 {
		c.LinearKnee = def.LinearKnee
	}
	if c.Exposure == 0 {
		c.Exposure = def.Exposure
	}

	// Legacy scalar redistribution, once per function identity.
	if p.Param != 0 && p.Function.legacy != nil {
		v := clampf(p.Param, p.Function.ParamMin, p.Function.ParamMax)
		p.Param = v
		p.Function.legacy(c, v)
	}

	// Clamp into safe ranges. Knee bounds are kept strictly inside (0, 1)
	// so every curve fit stays stable.
	c.KneeAdaptation = clampf(c.KneeAdaptation, 0, 1)
	c.KneeMinimum = clampf(c.KneeMinimum, 1e-3, 0.5-1e-3)
	c.KneeMaximum = clampf(c.KneeMaximum, 0.5+1e-3, 1-1e-3)
	c.KneeDefault = clampf(c.KneeDefault, c.KneeMinimum, c.KneeMaximum)
	c.KneeOffset = clampf(c.KneeOffset, 0.5, 2)
	c.SlopeTuning = clampf(c.SlopeTuning, 0, 10)
	c.SlopeOffset = clampf(c.SlopeOffset, 0, 1)
	c.SplineContrast = clampf(c.SplineContrast, 0, 1.5)
	c.ReinhardContrast = clampf(c.ReinhardContrast, 1e-3, 1-1e-3)
	c.LinearKnee = clampf(c.LinearKnee, 1e-3, 1-1e-3)
	c.Exposure = clampf(c.Exposure, 1e-3, 10)

	// Normalize the ranges. Peaks must exceed black points by a sane
	// margin in nominal light. Fields are only written back when a clamp
	// actually moved them, so repeated Infer calls cannot accumulate
	// rescaling round-trip drift.
	inMaxN := colorspace.Rescale(p.InputMax, p.InputScaling, colorspace.ScaleNominal)
	inMinN := colorspace.Rescale(p.InputMin, p.InputScaling, colorspace.ScaleNominal)
	outMaxN := colorspace.Rescale(p.OutputMax, p.OutputScaling, colorspace.ScaleNominal)
	outMinN := colorspace.Rescale(p.OutputMin, p.OutputScaling, colorspace.ScaleNominal)

	setIfChanged := func(dst *float64, oldN, newN float64, s colorspace.Scaling) {
		// The 1e-12 guard ignores rescaling round-trip noise from a
		// previous Infer, keeping repeated application exact.
		if math.Abs(newN-oldN) > 1e-12*math.Max(math.Abs(oldN), 1) {
			*dst = colorspace.Rescale(newN, colorspace.ScaleNominal, s)
		}
	}

	inMax := inMaxN
	if inMax <= 0 {
		inMax = 1
	}
	outMax := outMaxN
	if outMax <= 0 {
		outMax = 1
	}
	setIfChanged(&p.InputMax, inMaxN, inMax, p.InputScaling)
	setIfChanged(&p.InputMin, inMinN, clampf(inMinN, 0, inMax/2), p.InputScaling)
	setIfChanged(&p.OutputMin, outMinN, clampf(outMinN, 0, outMax/2), p.OutputScaling)

	// Inverse tone mapping requires an inverse callback. Without one, the
	// effective output peak is clamped to the input peak instead.
	if outMax > inMax && !p.Function.HasInverse() {
		outMax = inMax
	}
	setIfChanged(&p.OutputMax, outMaxN, outMax, p.OutputScaling)

	if p.InputAvg != 0 {
		avgN := colorspace.Rescale(p.InputAvg, p.InputScaling, colorspace.ScaleNominal)
		setIfChanged(&p.InputAvg, avgN, clampf(avgN, clampf(inMinN, 0, inMax/2), inMax), p.InputScaling)
	}
}

// IsNoop reports whether the mapping is the identity within tolerance, so
// callers can skip GPU work entirely. The comparison runs on the inferred
// ranges: equal black points, a peak ratio within RelTolerance, and no
// requested brightening.
func (p *Params) IsNoop() bool {
	q := *p
	q.Infer()
	inMax := colorspace.Rescale(q.InputMax, q.InputScaling, colorspace.ScaleNominal)
	inMin := colorspace.Rescale(q.InputMin, q.InputScaling, colorspace.ScaleNominal)
	outMax := colorspace.Rescale(q.OutputMax, q.OutputScaling, colorspace.ScaleNominal)
	outMin := colorspace.Rescale(q.OutputMin, q.OutputScaling, colorspace.ScaleNominal)
	if math.Abs(inMin-outMin) > AbsTolerance {
		return false
	}
	if math.Abs(inMax-outMax) > math.Max(AbsTolerance, RelTolerance*outMax) {
		return false
	}
	return q.Constants.Exposure == 1 || q.Function != FunctionClip && q.Function != FunctionLinear
}

// resolve rescales the inferred ranges into the function's scaling basis.
func (p *Params) resolve() mapping {
	f := p.Function
	return mapping{
		Constants: p.Constants,
		x0:        colorspace.Rescale(p.InputMin, p.InputScaling, f.Scaling),
		x1:        colorspace.Rescale(p.InputMax, p.InputScaling, f.Scaling),
		avg:       rescaleNonzero(p.InputAvg, p.InputScaling, f.Scaling),
		y0:        colorspace.Rescale(p.OutputMin, p.OutputScaling, f.Scaling),
		y1:        colorspace.Rescale(p.OutputMax, p.OutputScaling, f.Scaling),
		hdr:       p.HDR,
	}
}

func rescaleNonzero(x float64, from, to colorspace.Scaling) float64 {
	if x == 0 {
		return 0
	}
	return colorspace.Rescale(x, from, to)
}

// Generate produces a LUT of p.LUTSize samples evenly spaced across
// [InputMin, InputMax] in the input scaling basis, mapped through the curve
// into [OutputMin, OutputMax] in the output scaling basis.
func (p *Params) Generate() []float32 {
	q := *p
	q.Infer()
	n := q.LUTSize
	lut64 := make([]float64, n)
	f := q.Function
	for i := range lut64 {
		x := q.InputMin
		if n > 1 {
			x += float64(i) / float64(n-1) * (q.InputMax - q.InputMin)
		}
		lut64[i] = colorspace.Rescale(x, q.InputScaling, f.Scaling)
	}
	q.mapValues(lut64)
	lut := make([]float32, n)
	for i, y := range lut64 {
		lut[i] = float32(colorspace.Rescale(y, f.Scaling, q.OutputScaling))
	}
	return lut
}

// Sample evaluates the curve at a single point x (in the input scaling
// basis) and returns the mapped value in the output scaling basis. It
// agrees with Generate up to LUT quantization.
func (p *Params) Sample(x float64) float64 {
	q := *p
	q.Infer()
	f := q.Function
	buf := [1]float64{colorspace.Rescale(x, q.InputScaling, f.Scaling)}
	q.mapValues(buf[:])
	return colorspace.Rescale(buf[0], f.Scaling, q.OutputScaling)
}

// mapValues runs the curve callback over values already expressed in the
// function's scaling basis, picking the inverse callback for brightening.
// Results are clamped into the output range. Must be called on inferred
// params only.
func (p *Params) mapValues(vals []float64) {
	m := p.resolve()
	fn := p.Function.fwd
	if m.y1 > m.x1 && p.Function.inv != nil {
		fn = p.Function.inv
	}
	fn(vals, &m)
	for i, v := range vals {
		vals[i] = clampf(v, m.y0, m.y1)
	}
}

// mix linearly interpolates between a and b by t.
func mix(a, b, t float64) float64 { return a + t*(b-a) }

// smoothstep is the cubic Hermite step between edges e0 and e1.
func smoothstep(e0, e1, x float64) float64 {
	t := clampf((x-e0)/(e1-e0), 0, 1)
	return t * t * (3 - 2*t)
}
