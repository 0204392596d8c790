// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package tonemap

import (
	"math"

	"github.com/gogpu/vidre/colorspace"
)

// FunctionClip multiplies by the exposure and clips to the output range.
var FunctionClip = &Function{
	Name:         "clip",
	Description:  "No tone mapping, clip out-of-range values",
	Scaling:      colorspace.ScaleNominal,
	ParamMin:     0.5,
	ParamMax:     2.0,
	ParamDefault: 1.0,
	legacy:       func(c *Constants, v float64) { c.Exposure = v },
	fwd: func(lut []float64, m *mapping) {
		for i, x := range lut {
			lut[i] = m.Exposure * x
		}
	},
}

// FunctionLinear stretches the input range onto the output range. The only
// registered curve that is exactly invertible, so it also serves as the
// trivial inverse tone mapping.
var FunctionLinear = &Function{
	Name:         "linear",
	Description:  "Linear stretch from input to output range",
	Scaling:      colorspace.ScalePQ,
	ParamMin:     0.5,
	ParamMax:     10.0,
	ParamDefault: 1.0,
	legacy:       func(c *Constants, v float64) { c.Exposure = v },
	fwd:          linearStretch,
	inv:          linearStretch,
}

func linearStretch(lut []float64, m *mapping) {
	d := m.x1 - m.x0
	if d <= 0 {
		return
	}
	for i, x := range lut {
		t := clampf(m.Exposure*(x-m.x0)/d, 0, 1)
		lut[i] = mix(m.y0, m.y1, t)
	}
}

// FunctionGamma fits a power curve through the derived knee point.
var FunctionGamma = &Function{
	Name:         "gamma",
	Description:  "Power curve through the knee point",
	Scaling:      colorspace.ScaleNominal,
	ParamMin:     0.5,
	ParamMax:     10.0,
	ParamDefault: 1.0,
	legacy:       func(c *Constants, v float64) { c.LinearKnee = clampf(0.3/v, 1e-3, 1-1e-3) },
	fwd: func(lut []float64, m *mapping) {
		// Solve x^g through (knee_in, knee_out) in normalized light.
		ks := m.LinearKnee
		kd := ks * m.y1 / m.x1
		g := 1.0
		if ks > 0 && ks < 1 && kd > 0 && kd < 1 {
			g = math.Log(kd) / math.Log(ks)
		}
		for i, x := range lut {
			t := clampf(x/m.x1, 0, 1)
			lut[i] = m.y1 * math.Pow(t, g)
		}
	},
}

// FunctionReinhard is the classic rational curve y = x/(x+k), rescaled to
// hit the output peak exactly.
var FunctionReinhard = &Function{
	Name:         "reinhard",
	Description:  "Reinhard rational curve",
	Scaling:      colorspace.ScaleNominal,
	ParamMin:     0.001,
	ParamMax:     0.99,
	ParamDefault: 0.5,
	legacy:       func(c *Constants, v float64) { c.ReinhardContrast = v },
	fwd: func(lut []float64, m *mapping) {
		offset := m.ReinhardContrast / (1 - m.ReinhardContrast)
		peak := m.x1 / m.y1 // relative overshoot of the source
		scale := (peak + offset) / peak
		for i, x := range lut {
			t := x / m.y1
			lut[i] = m.y1 * scale * t / (t + offset)
		}
	},
}

// FunctionMobius is linear below the knee and a Möbius transform above it,
// matched for C1 continuity at the knee.
var FunctionMobius = &Function{
	Name:         "mobius",
	Description:  "Möbius rational curve, linear near black",
	Scaling:      colorspace.ScaleNominal,
	ParamMin:     0.0,
	ParamMax:     0.99,
	ParamDefault: 0.3,
	legacy:       func(c *Constants, v float64) { c.LinearKnee = math.Max(v, 1e-3) },
	fwd: func(lut []float64, m *mapping) {
		peak := m.x1 / m.y1
		j := m.LinearKnee
		if peak <= 1+1e-6 {
			for i, x := range lut {
				lut[i] = x
			}
			return
		}
		// Solve for a, b such that the transform is C1 at j and maps
		// peak to 1.
		a := -j * j * (peak - 1) / (j*j - 2*j + peak)
		b := (j*j - 2*j*peak + peak) / math.Max(peak-1, 1e-6)
		scale := (b*b + 2*b*j + j*j) / (b - a)
		for i, x := range lut {
			t := x / m.y1
			if t <= j {
				lut[i] = m.y1 * t
			} else {
				lut[i] = m.y1 * scale * (t + a) / (t + b)
			}
		}
	},
}

// hableEval is the Uncharted 2 filmic operator.
func hableEval(x float64) float64 {
	const a, b, c, d, e, f = 0.15, 0.50, 0.10, 0.20, 0.02, 0.30
	return (x*(a*x+c*b)+d*e)/(x*(a*x+b)+d*f) - e/f
}

// FunctionHable is the filmic curve by John Hable, with a strong shoulder
// and toe. Takes no tuning scalar.
var FunctionHable = &Function{
	Name:        "hable",
	Description: "Filmic curve with strong toe and shoulder",
	Scaling:     colorspace.ScaleNominal,
	fwd: func(lut []float64, m *mapping) {
		peak := m.x1 / m.y1
		white := hableEval(peak)
		for i, x := range lut {
			lut[i] = m.y1 * hableEval(x/m.y1) / white
		}
	},
}

// FunctionBT2390 is the ITU-R BT.2390 EETF, a PQ-space Hermite spline with
// a configurable knee offset.
var FunctionBT2390 = &Function{
	Name:         "bt.2390",
	Description:  "ITU-R BT.2390 EETF (PQ Hermite spline)",
	Scaling:      colorspace.ScalePQ,
	ParamMin:     0.5,
	ParamMax:     2.0,
	ParamDefault: 1.0,
	legacy:       func(c *Constants, v float64) { c.KneeOffset = v },
	fwd: func(lut []float64, m *mapping) {
		d := m.x1 - m.x0
		if d <= 0 {
			return
		}
		maxLum := clampf((m.y1-m.x0)/d, 0, 1)
		minLum := clampf((m.y0-m.x0)/d, 0, 1)
		// KneeOffset = 1 reproduces the reference KS = 1.5 maxLum - 0.5.
		ks := (1+m.KneeOffset/2)*maxLum - m.KneeOffset/2
		ks = clampf(ks, 0, maxLum)
		for i, x := range lut {
			e1 := clampf((x-m.x0)/d, 0, 1)
			if e1 > ks && ks < 1 {
				t := (e1 - ks) / (1 - ks)
				t2, t3 := t*t, t*t*t
				e1 = (2*t3-3*t2+1)*ks + (t3-2*t2+t)*(1-ks) + (-2*t3+3*t2)*maxLum
			}
			e1 += minLum * math.Pow(1-e1, 4)
			lut[i] = m.x0 + clampf(e1, 0, 1)*d
		}
	},
}

// bt2446Perceptual encodes relative luminance with the BT.2446-A log curve.
func bt2446Perceptual(y, peakNorm float64) float64 {
	p := 1 + 32*math.Pow(peakNorm, 1/2.4)
	return math.Log1p((p-1)*y) / math.Log(p)
}

func bt2446PerceptualInv(v, peakNorm float64) float64 {
	p := 1 + 32*math.Pow(peakNorm, 1/2.4)
	return (math.Pow(p, v) - 1) / (p - 1)
}

// FunctionBT2446A implements ITU-R BT.2446 method A luminance mapping. The
// curve is defined in both directions, so it is also the preferred choice
// for SDR-to-HDR inverse tone mapping.
var FunctionBT2446A = &Function{
	Name:        "bt.2446a",
	Description: "ITU-R BT.2446 method A (both directions)",
	Scaling:     colorspace.ScaleNominal,
	fwd: func(lut []float64, m *mapping) {
		srcPeak := m.x1 * colorspace.ReferenceWhite / colorspace.PQMaxNits
		dstPeak := m.y1 * colorspace.ReferenceWhite / colorspace.PQMaxNits
		for i, x := range lut {
			yp := bt2446Perceptual(math.Pow(clampf(x/m.x1, 0, 1), 1/2.4), srcPeak)
			var yc float64
			switch {
			case yp <= 0.7399:
				yc = 1.0770 * yp
			case yp < 0.9909:
				yc = -1.1510*yp*yp + 2.7811*yp - 0.6302
			default:
				yc = 0.5*yp + 0.5
			}
			ySDR := bt2446PerceptualInv(clampf(yc, 0, 1), dstPeak)
			lut[i] = m.y1 * math.Pow(ySDR, 2.4)
		}
	},
	inv: func(lut []float64, m *mapping) {
		srcPeak := m.x1 * colorspace.ReferenceWhite / colorspace.PQMaxNits
		dstPeak := m.y1 * colorspace.ReferenceWhite / colorspace.PQMaxNits
		for i, x := range lut {
			yc := bt2446Perceptual(math.Pow(clampf(x/m.x1, 0, 1), 1/2.4), srcPeak)
			// Invert the piecewise tone curve of the forward direction.
			var yp float64
			switch {
			case yc <= 0.7399*1.0770:
				yp = yc / 1.0770
			case yc < 0.5*0.9909+0.5:
				// Lower root of the quadratic branch.
				yp = (2.7811 - math.Sqrt(2.7811*2.7811-4*1.1510*(0.6302+yc))) / (2 * 1.1510)
			default:
				yp = 2 * (yc - 0.5)
			}
			yHDR := bt2446PerceptualInv(clampf(yp, 0, 1), dstPeak)
			lut[i] = m.y1 * math.Pow(yHDR, 2.4)
		}
	},
}
