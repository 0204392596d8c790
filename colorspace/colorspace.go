// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package colorspace describes how decoded video samples relate to light.
//
// The package is pure math and metadata: color systems (how components map
// to channels), signal levels, alpha modes, primaries, transfer functions,
// and HDR mastering/scene metadata. The renderer consults it for every
// conversion decision but it carries no GPU state of its own.
package colorspace

// System identifies the color coding system of an image, i.e. how its
// components are to be interpreted before conversion to RGB.
type System int

const (
	// SystemUnknown means the system was not signalled. Infer substitutes
	// a resolution-appropriate default.
	SystemUnknown System = iota

	// SystemBT601 is ITU-R BT.601 YCbCr (SD content).
	SystemBT601

	// SystemBT709 is ITU-R BT.709 YCbCr (HD content).
	SystemBT709

	// SystemBT2020NC is ITU-R BT.2020 non-constant-luminance YCbCr.
	SystemBT2020NC

	// SystemRGB means the components are already red, green and blue.
	SystemRGB

	// SystemXYZ means the components are CIE 1931 XYZ tristimulus values
	// (digital cinema), encoded with the DCI transfer.
	SystemXYZ
)

// String returns the canonical lowercase name of the system.
func (s System) String() string {
	switch s {
	case SystemBT601:
		return "bt.601"
	case SystemBT709:
		return "bt.709"
	case SystemBT2020NC:
		return "bt.2020-ncl"
	case SystemRGB:
		return "rgb"
	case SystemXYZ:
		return "xyz"
	default:
		return "unknown"
	}
}

// IsYCbCr reports whether the system codes luma/chroma rather than RGB-like
// channels.
func (s System) IsYCbCr() bool {
	switch s {
	case SystemBT601, SystemBT709, SystemBT2020NC:
		return true
	}
	return false
}

// Levels describes the nominal range of the coded signal.
type Levels int

const (
	// LevelsUnknown means the range was not signalled.
	LevelsUnknown Levels = iota

	// LevelsLimited is TV range: 16-235 luma, 16-240 chroma at 8 bits.
	LevelsLimited

	// LevelsFull is PC range: the entire coded range is used.
	LevelsFull
)

func (l Levels) String() string {
	switch l {
	case LevelsLimited:
		return "limited"
	case LevelsFull:
		return "full"
	default:
		return "unknown"
	}
}

// AlphaMode describes the relationship between color and alpha channels.
type AlphaMode int

const (
	// AlphaUnknown means the mode was not signalled; treated as independent
	// when an alpha channel exists.
	AlphaUnknown AlphaMode = iota

	// AlphaIndependent means color channels are stored unmultiplied.
	AlphaIndependent

	// AlphaPremultiplied means color channels are pre-scaled by alpha.
	// Required for correct filtering and blending.
	AlphaPremultiplied

	// AlphaNone means any fourth channel carries no alpha semantics.
	AlphaNone
)

func (a AlphaMode) String() string {
	switch a {
	case AlphaIndependent:
		return "independent"
	case AlphaPremultiplied:
		return "premultiplied"
	case AlphaNone:
		return "none"
	default:
		return "unknown"
	}
}

// Repr bundles the coding parameters of an image: the system its components
// are expressed in, the signal range, alpha semantics, and sample bit depth.
type Repr struct {
	System   System
	Levels   Levels
	Alpha    AlphaMode
	BitDepth int // significant bits per sample; 0 = unknown
}

// Equal reports whether two representations are identical field by field.
func (r Repr) Equal(o Repr) bool {
	return r == o
}

// InferRepr fills unsignalled fields of r with defaults appropriate for
// typical video: BT.709 limited range, independent alpha, 8-bit depth.
func InferRepr(r *Repr) {
	if r.System == SystemUnknown {
		r.System = SystemBT709
	}
	if r.Levels == LevelsUnknown {
		if r.System == SystemRGB || r.System == SystemXYZ {
			r.Levels = LevelsFull
		} else {
			r.Levels = LevelsLimited
		}
	}
	if r.Alpha == AlphaUnknown {
		r.Alpha = AlphaIndependent
	}
	if r.BitDepth == 0 {
		r.BitDepth = 8
	}
}
