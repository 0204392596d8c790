// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package tonemap

import (
	"math"

	"github.com/gogpu/vidre/colorspace"
)

// maxAnchorOrder bounds the Bernstein polynomial degree of the ST 2094-40
// anchor curve.
const maxAnchorOrder = 16

// binomial holds Pascal's triangle up to degree maxAnchorOrder.
var binomial [maxAnchorOrder + 1][maxAnchorOrder + 1]float64

func init() {
	for n := 0; n <= maxAnchorOrder; n++ {
		binomial[n][0] = 1
		for k := 1; k <= n; k++ {
			binomial[n][k] = binomial[n-1][k-1] + binomial[n-1][k]
		}
	}
}

// deriveKnee computes the knee point (sx, sy) of the curve in PQ space.
//
// The relative knee follows the scene average when metadata carries one,
// else the configured default fraction, blended by the adaptation strength.
// A smoothstep remap damps the knee near the extremes of the allowed range
// so per-frame metadata jitter cannot produce visible discontinuities.
func deriveKnee(m *mapping) (sx, sy float64) {
	dx := m.x1 - m.x0
	dy := m.y1 - m.y0
	rel := m.KneeDefault
	avg := m.avg
	if avg == 0 && m.hdr.SceneAvg > 0 {
		avg = colorspace.NitsToPQ(m.hdr.SceneAvg)
	}
	if avg > 0 && dx > 0 {
		rel = mix(m.KneeDefault, clampf((avg-m.x0)/dx, 0, 1), m.KneeAdaptation)
	}
	rel = mix(m.KneeMinimum, m.KneeMaximum,
		smoothstep(0, 1, (rel-m.KneeMinimum)/(m.KneeMaximum-m.KneeMinimum)))

	sx = m.x0 + rel*dx
	// Preserve knee luminance where the target range allows it; never
	// brighten below the knee when mapping downward.
	sy = math.Min(m.y0+rel*dy, sx)
	sy = clampf(sy, m.y0, m.y1)
	return sx, sy
}

// hermiteSlope limits segment tangents so the interpolant stays monotone
// (Fritsch-Carlson criterion, simplified for two segments).
func hermiteSlope(want, secant float64) float64 {
	if secant <= 0 {
		return 0
	}
	return clampf(want, 0, 3*secant)
}

// hermiteSeg evaluates a cubic Hermite segment.
func hermiteSeg(x, x0, y0, d0, x1, y1, d1 float64) float64 {
	h := x1 - x0
	if h <= 0 {
		return y0
	}
	t := (x - x0) / h
	t2, t3 := t*t, t*t*t
	return (2*t3-3*t2+1)*y0 + (t3-2*t2+t)*h*d0 + (-2*t3+3*t2)*y1 + (t3-t2)*h*d1
}

// splineMap fits a monotone two-segment Hermite spline through the black
// point, the derived knee and the peak.
func splineMap(lut []float64, m *mapping) {
	sx, sy := deriveKnee(m)
	if m.x1-m.x0 <= 0 {
		return
	}
	// Slope at the knee blends between unity (preserve local contrast)
	// and the global compression slope, tuned by SplineContrast.
	global := (m.y1 - m.y0) / (m.x1 - m.x0)
	kneeSlope := mix(global, 1, clampf(m.SplineContrast, 0, 1))

	secLo := 0.0
	if sx > m.x0 {
		secLo = (sy - m.y0) / (sx - m.x0)
	}
	secHi := 0.0
	if m.x1 > sx {
		secHi = (m.y1 - sy) / (m.x1 - sx)
	}
	dKneeLo := hermiteSlope(kneeSlope, secLo)
	dKneeHi := hermiteSlope(kneeSlope, secHi)
	d0 := hermiteSlope(1, secLo)
	d1 := hermiteSlope(0, secHi)

	for i, x := range lut {
		switch {
		case x <= m.x0:
			lut[i] = m.y0
		case x < sx:
			lut[i] = hermiteSeg(x, m.x0, m.y0, d0, sx, sy, dKneeLo)
		case x < m.x1:
			lut[i] = hermiteSeg(x, sx, sy, dKneeHi, m.x1, m.y1, d1)
		default:
			lut[i] = m.y1
		}
	}
}

// FunctionSpline is the default curve: a perceptually tuned monotone
// Hermite spline in PQ space with a metadata-adaptive knee. The fit is
// symmetric in x and y, so the same construction serves as its inverse.
var FunctionSpline = &Function{
	Name:         "spline",
	Description:  "Monotone PQ spline with adaptive knee",
	Scaling:      colorspace.ScalePQ,
	ParamMin:     0.0,
	ParamMax:     1.5,
	ParamDefault: 0.5,
	legacy:       func(c *Constants, v float64) { c.SplineContrast = v },
	fwd:          splineMap,
	// The monotone fit is direction-agnostic: with an output peak above
	// the input peak the upper segment expands instead of compressing.
	inv: splineMap,
}

// FunctionST2094_10 implements the SMPTE ST 2094-10 rational curve: a
// three-point fit of (c1 + c2 x)/(1 + c3 x) in PQ space through black,
// the derived knee and the peak.
var FunctionST2094_10 = &Function{
	Name:         "st2094-10",
	Description:  "SMPTE ST 2094-10 rational curve",
	Scaling:      colorspace.ScalePQ,
	ParamMin:     0.0,
	ParamMax:     10.0,
	ParamDefault: 1.5,
	legacy:       func(c *Constants, v float64) { c.SlopeTuning = v },
	fwd: func(lut []float64, m *mapping) {
		sx, sy := deriveKnee(m)
		// Nudge the mid anchor by the slope tuning controls before the
		// fit; the offset biases toward preserving shadows.
		w := clampf(m.SlopeTuning/10, 0, 1)
		sy = mix(sy, mix(m.y0, sy, 1-m.SlopeOffset), w)

		x1, x2, x3 := m.x0, sx, m.x1
		y1, y2, y3 := m.y0, sy, m.y1
		// Solve c1 + c2*xi - c3*xi*yi = yi for the three anchors.
		c1, c2, c3, ok := solveRational(x1, y1, x2, y2, x3, y3)
		if !ok {
			linearStretch(lut, m)
			return
		}
		for i, x := range lut {
			x = clampf(x, m.x0, m.x1)
			lut[i] = (c1 + c2*x) / (1 + c3*x)
		}
	},
}

// solveRational solves the 3x3 system of the ST 2094-10 fit. Reports
// failure when the anchors are (near) collinear in the degenerate sense or
// the resulting curve would have a pole inside the input range.
func solveRational(x1, y1, x2, y2, x3, y3 float64) (c1, c2, c3 float64, ok bool) {
	// Rows: [1, xi, -xi*yi] · [c1 c2 c3] = yi
	a := [3][4]float64{
		{1, x1, -x1 * y1, y1},
		{1, x2, -x2 * y2, y2},
		{1, x3, -x3 * y3, y3},
	}
	for col := 0; col < 3; col++ {
		// Partial pivoting keeps the elimination stable for the nearly
		// singular fits produced by extreme knee positions.
		piv := col
		for r := col + 1; r < 3; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[piv][col]) {
				piv = r
			}
		}
		a[col], a[piv] = a[piv], a[col]
		if math.Abs(a[col][col]) < 1e-12 {
			return 0, 0, 0, false
		}
		for r := 0; r < 3; r++ {
			if r == col {
				continue
			}
			f := a[r][col] / a[col][col]
			for c := col; c < 4; c++ {
				a[r][c] -= f * a[col][c]
			}
		}
	}
	c1 = a[0][3] / a[0][0]
	c2 = a[1][3] / a[1][1]
	c3 = a[2][3] / a[2][2]
	// Reject fits with a pole inside [x1, x3].
	if pole := -1 / c3; c3 != 0 && pole >= x1 && pole <= x3 {
		return 0, 0, 0, false
	}
	return c1, c2, c3, true
}

// FunctionST2094_40 implements the SMPTE ST 2094-40 (HDR10+) tone curve: a
// knee point followed by a variable-order Bernstein polynomial through the
// metadata anchors, with regime blending toward identity as the target peak
// approaches the mastering peak.
var FunctionST2094_40 = &Function{
	Name:         "st2094-40",
	Description:  "SMPTE ST 2094-40 Bezier anchor curve",
	Scaling:      colorspace.ScalePQ,
	ParamMin:     0.0,
	ParamMax:     1.0,
	ParamDefault: 0.4,
	legacy:       func(c *Constants, v float64) { c.KneeAdaptation = v },
	fwd: func(lut []float64, m *mapping) {
		sx, sy := deriveKnee(m)
		anchors := bezierAnchors(m)

		// Regime blending. Below the mastering peak the full anchor curve
		// applies; as the target peak rises toward the source peak the
		// curve continuously degrades to the identity, and as it falls
		// toward the knee floor it degrades to pure clipping. One scalar
		// controls both blends.
		blend := 0.0
		if m.x1 > sx {
			blend = clampf((m.x1-m.y1)/(m.x1-sx), 0, 1)
		}

		for i, x := range lut {
			ident := clampf(x, m.y0, m.y1)
			if x <= sx {
				// Linear segment below the knee.
				var lo float64
				if sx > m.x0 {
					lo = mix(m.y0, sy, (x-m.x0)/(sx-m.x0))
				} else {
					lo = sy
				}
				lut[i] = mix(ident, lo, blend)
				continue
			}
			t := clampf((x-sx)/(m.x1-sx), 0, 1)
			b := bernstein(anchors, t)
			lut[i] = mix(ident, sy+(m.y1-sy)*b, blend)
		}
	},
}

// bezierAnchors returns the interior Bernstein control values P1..Pn-1 in
// [0, 1]. Metadata-supplied OOTF anchor curves are used directly (order
// capped at maxAnchorOrder); otherwise a fixed-order concave default is
// synthesized from the compression ratio.
func bezierAnchors(m *mapping) []float64 {
	if n := len(m.hdr.OOTF); n > 0 {
		if n > maxAnchorOrder-1 {
			n = maxAnchorOrder - 1
		}
		anchors := make([]float64, n)
		for i := 0; i < n; i++ {
			anchors[i] = clampf(m.hdr.OOTF[i], 0, 1)
		}
		return anchors
	}
	// Default: order-3 shoulder whose initial slope matches the
	// compression ratio, yielding a soft roll-off.
	ratio := 1.0
	if m.x1 > m.x0 {
		ratio = clampf((m.y1-m.y0)/(m.x1-m.x0), 0, 1)
	}
	p1 := clampf(0.5+0.5*ratio, 0, 1)
	p2 := clampf(0.8+0.2*ratio, 0, 1)
	return []float64{p1, p2}
}

// bernstein evaluates the Bernstein polynomial with interior control
// values anchors (P0 = 0, Pn = 1 implied) at t in [0, 1].
func bernstein(anchors []float64, t float64) float64 {
	n := len(anchors) + 1
	sum := 0.0
	for k := 1; k <= n; k++ {
		p := 1.0
		if k < n {
			p = anchors[k-1]
		}
		sum += binomial[n][k] * math.Pow(t, float64(k)) * math.Pow(1-t, float64(n-k)) * p
	}
	return sum
}
