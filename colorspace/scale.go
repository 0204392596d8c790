// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package colorspace

import "math"

// Luminance scaling constants.
const (
	// ReferenceWhite is the luminance of SDR diffuse white in nits,
	// per ITU-R BT.2408.
	ReferenceWhite = 203.0

	// PQMaxNits is the peak luminance encodable by SMPTE ST 2084.
	PQMaxNits = 10000.0

	// HLGMaxNits is the nominal peak of an HLG signal on a 1000-nit
	// reference display.
	HLGMaxNits = 1000.0
)

// ST 2084 curve constants.
const (
	pqM1 = 2610.0 / 16384
	pqM2 = 2523.0 / 4096 * 128
	pqC1 = 3424.0 / 4096
	pqC2 = 2413.0 / 4096 * 32
	pqC3 = 2392.0 / 4096 * 32
)

// Scaling identifies the basis a luminance value is expressed in.
type Scaling int

const (
	// ScaleNominal is linear light relative to SDR reference white
	// (1.0 = 203 nits).
	ScaleNominal Scaling = iota

	// ScalePQ is the ST 2084 perceptual encoding in [0, 1].
	ScalePQ

	// ScaleAbsolute is absolute luminance in nits.
	ScaleAbsolute
)

func (s Scaling) String() string {
	switch s {
	case ScaleNominal:
		return "nominal"
	case ScalePQ:
		return "pq"
	case ScaleAbsolute:
		return "absolute"
	default:
		return "invalid"
	}
}

// NitsToPQ encodes an absolute luminance to its ST 2084 signal value.
// Values outside [0, PQMaxNits] are clamped.
func NitsToPQ(nits float64) float64 {
	y := math.Min(math.Max(nits/PQMaxNits, 0), 1)
	ym := math.Pow(y, pqM1)
	return math.Pow((pqC1+pqC2*ym)/(1+pqC3*ym), pqM2)
}

// PQToNits decodes an ST 2084 signal value to absolute luminance.
// Values outside [0, 1] are clamped.
func PQToNits(pq float64) float64 {
	e := math.Min(math.Max(pq, 0), 1)
	ep := math.Pow(e, 1/pqM2)
	num := math.Max(ep-pqC1, 0)
	den := pqC2 - pqC3*ep
	return PQMaxNits * math.Pow(num/den, 1/pqM1)
}

// Rescale converts a luminance value from one scaling basis to another.
// The conversion round-trips within floating point error.
func Rescale(x float64, from, to Scaling) float64 {
	if from == to {
		return x
	}
	// Normalize to nits first.
	var nits float64
	switch from {
	case ScaleNominal:
		nits = x * ReferenceWhite
	case ScalePQ:
		nits = PQToNits(x)
	default:
		nits = x
	}
	switch to {
	case ScaleNominal:
		return nits / ReferenceWhite
	case ScalePQ:
		return NitsToPQ(nits)
	default:
		return nits
	}
}
