// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package colorspace

// Primaries identifies the chromaticity coordinates of the RGB primaries
// and white point.
type Primaries int

const (
	PrimariesUnknown Primaries = iota

	// PrimariesBT709 covers sRGB and HD video.
	PrimariesBT709

	// PrimariesBT601_525 is SMPTE-C (NTSC SD).
	PrimariesBT601_525

	// PrimariesBT601_625 is EBU Tech 3213 (PAL SD).
	PrimariesBT601_625

	// PrimariesBT2020 is the wide gamut used by UHD and HDR video.
	PrimariesBT2020

	// PrimariesDCIP3 is the digital cinema gamut with D65 white.
	PrimariesDCIP3
)

func (p Primaries) String() string {
	switch p {
	case PrimariesBT709:
		return "bt.709"
	case PrimariesBT601_525:
		return "bt.601-525"
	case PrimariesBT601_625:
		return "bt.601-625"
	case PrimariesBT2020:
		return "bt.2020"
	case PrimariesDCIP3:
		return "dci-p3"
	default:
		return "unknown"
	}
}

// Wide reports whether the gamut meaningfully exceeds BT.709.
func (p Primaries) Wide() bool {
	return p == PrimariesBT2020 || p == PrimariesDCIP3
}

// Transfer identifies the opto-electronic transfer characteristic of the
// coded signal.
type Transfer int

const (
	TransferUnknown Transfer = iota

	// TransferBT1886 is the effective SDR television EOTF (gamma 2.4 with
	// black lift).
	TransferBT1886

	// TransferSRGB is the IEC 61966-2-1 piecewise curve.
	TransferSRGB

	// TransferLinear is scene-linear light.
	TransferLinear

	// TransferGamma22 is a pure 2.2 power curve.
	TransferGamma22

	// TransferPQ is SMPTE ST 2084 perceptual quantization (HDR10).
	TransferPQ

	// TransferHLG is ARIB STD-B67 hybrid log-gamma.
	TransferHLG
)

func (t Transfer) String() string {
	switch t {
	case TransferBT1886:
		return "bt.1886"
	case TransferSRGB:
		return "srgb"
	case TransferLinear:
		return "linear"
	case TransferGamma22:
		return "gamma2.2"
	case TransferPQ:
		return "pq"
	case TransferHLG:
		return "hlg"
	default:
		return "unknown"
	}
}

// IsHDR reports whether the transfer encodes a dynamic range beyond SDR.
func (t Transfer) IsHDR() bool {
	return t == TransferPQ || t == TransferHLG
}

// NominalPeak returns the peak luminance the transfer can encode, in
// multiples of SDR reference white.
func (t Transfer) NominalPeak() float64 {
	switch t {
	case TransferPQ:
		return PQMaxNits / ReferenceWhite
	case TransferHLG:
		return HLGMaxNits / ReferenceWhite
	default:
		return 1.0
	}
}

// HDRMetadata carries static and dynamic HDR signalling for one frame.
// All luminance values are in cd/m² (nits); zero means unsignalled.
type HDRMetadata struct {
	// MinLuma and MaxLuma describe the mastering display.
	MinLuma float64
	MaxLuma float64

	// MaxCLL and MaxFALL are the content light level stats of the stream.
	MaxCLL  float64
	MaxFALL float64

	// SceneMax and SceneAvg are per-scene stats (ST 2094-40 dynamic
	// metadata), per RGB channel maximum and overall average.
	SceneMax [3]float64
	SceneAvg float64

	// OOTF is an optional metadata-supplied anchor curve guiding
	// HDR-to-HDR luminance remapping. Sample positions are evenly spaced
	// in PQ over the scene range. Empty means no anchor curve.
	OOTF []float64
}

// Empty reports whether no field of the metadata is signalled.
func (h *HDRMetadata) Empty() bool {
	return h.MinLuma == 0 && h.MaxLuma == 0 && h.MaxCLL == 0 &&
		h.MaxFALL == 0 && h.SceneMax == [3]float64{} && h.SceneAvg == 0 &&
		len(h.OOTF) == 0
}

// Equal compares two metadata blocks, including anchor curves.
func (h *HDRMetadata) Equal(o *HDRMetadata) bool {
	if h.MinLuma != o.MinLuma || h.MaxLuma != o.MaxLuma ||
		h.MaxCLL != o.MaxCLL || h.MaxFALL != o.MaxFALL ||
		h.SceneMax != o.SceneMax || h.SceneAvg != o.SceneAvg {
		return false
	}
	if len(h.OOTF) != len(o.OOTF) {
		return false
	}
	for i := range h.OOTF {
		if h.OOTF[i] != o.OOTF[i] {
			return false
		}
	}
	return true
}

// Space is a complete output-referred color space: gamut, transfer and HDR
// signalling.
type Space struct {
	Primaries Primaries
	Transfer  Transfer
	HDR       HDRMetadata
}

// Equal reports whether two spaces are identical, metadata included.
func (s Space) Equal(o Space) bool {
	return s.Primaries == o.Primaries && s.Transfer == o.Transfer &&
		s.HDR.Equal(&o.HDR)
}

// SDR is the baseline BT.709 space used as the fallback target.
var SDR = Space{Primaries: PrimariesBT709, Transfer: TransferBT1886}

// InferSpace fills unsignalled fields of s with BT.709 SDR defaults and
// completes HDR luminance metadata from the transfer's nominal range.
func InferSpace(s *Space) {
	if s.Primaries == PrimariesUnknown {
		s.Primaries = PrimariesBT709
	}
	if s.Transfer == TransferUnknown {
		if s.Primaries == PrimariesBT2020 {
			s.Transfer = TransferPQ
		} else {
			s.Transfer = TransferBT1886
		}
	}
	if s.HDR.MaxLuma == 0 {
		s.HDR.MaxLuma = s.Transfer.NominalPeak() * ReferenceWhite
	}
	if s.HDR.MinLuma == 0 {
		// 1000:1 contrast for SDR, PQ minimum for HDR.
		if s.Transfer.IsHDR() {
			s.HDR.MinLuma = 0.005
		} else {
			s.HDR.MinLuma = s.HDR.MaxLuma / 1000
		}
	}
}
