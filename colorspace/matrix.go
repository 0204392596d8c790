// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package colorspace

// Matrix3 is a row-major 3x3 matrix.
type Matrix3 [3][3]float64

// MulVec applies m to v.
func (m Matrix3) MulVec(v [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

// Mul returns m * o.
func (m Matrix3) Mul(o Matrix3) Matrix3 {
	var out Matrix3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m[i][0]*o[0][j] + m[i][1]*o[1][j] + m[i][2]*o[2][j]
		}
	}
	return out
}

// Inverse returns the matrix inverse. Color matrices are well conditioned;
// a singular input returns the zero matrix.
func (m Matrix3) Inverse() Matrix3 {
	c := Matrix3{
		{m[1][1]*m[2][2] - m[1][2]*m[2][1], m[0][2]*m[2][1] - m[0][1]*m[2][2], m[0][1]*m[1][2] - m[0][2]*m[1][1]},
		{m[1][2]*m[2][0] - m[1][0]*m[2][2], m[0][0]*m[2][2] - m[0][2]*m[2][0], m[0][2]*m[1][0] - m[0][0]*m[1][2]},
		{m[1][0]*m[2][1] - m[1][1]*m[2][0], m[0][1]*m[2][0] - m[0][0]*m[2][1], m[0][0]*m[1][1] - m[0][1]*m[1][0]},
	}
	det := m[0][0]*c[0][0] + m[0][1]*c[1][0] + m[0][2]*c[2][0]
	if det == 0 {
		return Matrix3{}
	}
	inv := 1 / det
	for i := range c {
		for j := range c[i] {
			c[i][j] *= inv
		}
	}
	return c
}

// LumaCoefficients returns the Y weights of a YCbCr system. RGB-like
// systems return BT.709 weights as a stand-in for luminance estimation.
func LumaCoefficients(s System) [3]float64 {
	switch s {
	case SystemBT601:
		return [3]float64{0.299, 0.587, 0.114}
	case SystemBT2020NC:
		return [3]float64{0.2627, 0.6780, 0.0593}
	default:
		return [3]float64{0.2126, 0.7152, 0.0722}
	}
}

// ycbcrToRGB builds the full-range YCbCr -> RGB matrix from luma weights.
func ycbcrToRGB(k [3]float64) Matrix3 {
	kr, kg, kb := k[0], k[1], k[2]
	return Matrix3{
		{1, 0, 2 * (1 - kr)},
		{1, -2 * (1 - kb) * kb / kg, -2 * (1 - kr) * kr / kg},
		{1, 2 * (1 - kb), 0},
	}
}

// DecodeMatrix returns the affine transform taking normalized raw samples
// (texture values in [0, 1], channel-mapped to the system's component
// order) to full-range RGB (or XYZ) in [0, 1]: out = M*(in + off).
//
// Limited range expansion uses the classical 8-bit code points scaled by
// 2^(n-8) for bit depth n; unknown depth assumes 8 bits. Texture
// normalization divides raw codes by 2^n - 1.
func DecodeMatrix(r Repr) (m Matrix3, off [3]float64) {
	depth := r.BitDepth
	if depth == 0 {
		depth = 8
	}
	maxCode := float64(uint64(1)<<depth - 1)
	mul := float64(uint64(1) << (depth - 8)) // 2^(n-8); depth >= 8 in practice
	if depth < 8 {
		mul = 1 / float64(uint64(1)<<(8-depth))
	}

	var yScale, cScale, yOff, cOff float64
	switch r.Levels {
	case LevelsLimited:
		yScale = maxCode / (219 * mul)
		cScale = maxCode / (224 * mul)
		yOff = -16 * mul / maxCode
		cOff = -128 * mul / maxCode
	default:
		yScale, cScale = 1, 1
		yOff = 0
		cOff = -float64(uint64(1)<<(depth-1)) / maxCode
	}

	switch r.System {
	case SystemBT601, SystemBT709, SystemBT2020NC:
		conv := ycbcrToRGB(LumaCoefficients(r.System))
		lv := Matrix3{{yScale, 0, 0}, {0, cScale, 0}, {0, 0, cScale}}
		return conv.Mul(lv), [3]float64{yOff, cOff, cOff}
	default:
		// RGB and XYZ: per-component range expansion only.
		return Matrix3{{yScale, 0, 0}, {0, yScale, 0}, {0, 0, yScale}},
			[3]float64{yOff, yOff, yOff}
	}
}

// CIE 1931 chromaticities per primary set, with D65 white except DCI-P3
// theater white for PrimariesDCIP3's original definition; the display
// variant in common use is D65, which is what we target.
type chroma struct{ rx, ry, gx, gy, bx, by, wx, wy float64 }

func chromaticities(p Primaries) chroma {
	switch p {
	case PrimariesBT601_525:
		return chroma{0.630, 0.340, 0.310, 0.595, 0.155, 0.070, 0.3127, 0.3290}
	case PrimariesBT601_625:
		return chroma{0.640, 0.330, 0.290, 0.600, 0.150, 0.060, 0.3127, 0.3290}
	case PrimariesBT2020:
		return chroma{0.708, 0.292, 0.170, 0.797, 0.131, 0.046, 0.3127, 0.3290}
	case PrimariesDCIP3:
		return chroma{0.680, 0.320, 0.265, 0.690, 0.150, 0.060, 0.3127, 0.3290}
	default:
		return chroma{0.640, 0.330, 0.300, 0.600, 0.150, 0.060, 0.3127, 0.3290}
	}
}

// RGBToXYZ returns the linear RGB -> CIE XYZ matrix for the primaries,
// normalized so white maps to Y = 1.
func RGBToXYZ(p Primaries) Matrix3 {
	c := chromaticities(p)
	xyz := func(x, y float64) [3]float64 { return [3]float64{x / y, 1, (1 - x - y) / y} }
	r, g, b := xyz(c.rx, c.ry), xyz(c.gx, c.gy), xyz(c.bx, c.by)
	w := xyz(c.wx, c.wy)
	m := Matrix3{
		{r[0], g[0], b[0]},
		{r[1], g[1], b[1]},
		{r[2], g[2], b[2]},
	}
	s := m.Inverse().MulVec(w)
	for i := 0; i < 3; i++ {
		m[i][0] *= s[0]
		m[i][1] *= s[1]
		m[i][2] *= s[2]
	}
	return m
}

// ConversionMatrix returns the linear RGB matrix converting from one
// primary set to another. Identical primaries yield the identity.
func ConversionMatrix(from, to Primaries) Matrix3 {
	if from == to {
		return Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	return RGBToXYZ(to).Inverse().Mul(RGBToXYZ(from))
}
