// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package colorspace

import "math"

// Linearize decodes a single non-linear signal value in [0, 1] to linear
// light in the nominal scaling basis (1.0 = SDR reference white). For HDR
// transfers the result may substantially exceed 1.0.
func Linearize(t Transfer, x float64) float64 {
	x = math.Min(math.Max(x, 0), 1)
	switch t {
	case TransferSRGB:
		if x <= 0.04045 {
			return x / 12.92
		}
		return math.Pow((x+0.055)/1.055, 2.4)
	case TransferBT1886:
		return math.Pow(x, 2.4)
	case TransferGamma22:
		return math.Pow(x, 2.2)
	case TransferLinear:
		return x
	case TransferPQ:
		return PQToNits(x) / ReferenceWhite
	case TransferHLG:
		// ARIB STD-B67, normalized to a 1000-nit peak.
		const a, b, c = 0.17883277, 0.28466892, 0.55991073
		var e float64
		if x <= 0.5 {
			e = x * x / 3
		} else {
			e = (math.Exp((x-c)/a) + b) / 12
		}
		return e * HLGMaxNits / ReferenceWhite
	default:
		return math.Pow(x, 2.4)
	}
}

// Delinearize is the inverse of Linearize. Input below 0 is clamped; input
// above the transfer's nominal peak saturates at 1.
func Delinearize(t Transfer, x float64) float64 {
	x = math.Max(x, 0)
	switch t {
	case TransferSRGB:
		x = math.Min(x, 1)
		if x <= 0.0031308 {
			return 12.92 * x
		}
		return 1.055*math.Pow(x, 1/2.4) - 0.055
	case TransferBT1886:
		return math.Pow(math.Min(x, 1), 1/2.4)
	case TransferGamma22:
		return math.Pow(math.Min(x, 1), 1/2.2)
	case TransferLinear:
		return math.Min(x, 1)
	case TransferPQ:
		return NitsToPQ(x * ReferenceWhite)
	case TransferHLG:
		const a, b, c = 0.17883277, 0.28466892, 0.55991073
		e := math.Min(x*ReferenceWhite/HLGMaxNits, 1)
		if e <= 1.0/12 {
			return math.Sqrt(3 * e)
		}
		return a*math.Log(12*e-b) + c
	default:
		return math.Pow(math.Min(x, 1), 1/2.4)
	}
}
