// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"fmt"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
)

// Channel is the semantic meaning of one plane component.
type Channel int8

const (
	// ChannelNone marks an unused component.
	ChannelNone Channel = iota

	// ChannelY is luma (or R/X for single-plane RGB/XYZ content).
	ChannelY

	// ChannelU is the first chroma component (Cb).
	ChannelU

	// ChannelV is the second chroma component (Cr).
	ChannelV

	// ChannelA is alpha.
	ChannelA
)

func (c Channel) String() string {
	switch c {
	case ChannelY:
		return "y"
	case ChannelU:
		return "u"
	case ChannelV:
		return "v"
	case ChannelA:
		return "a"
	default:
		return "none"
	}
}

// PlaneKind is the derived type of a plane. It is never stored: it is a
// total, deterministic function of the channel mapping and color system.
type PlaneKind int

const (
	// KindAlpha is a plane carrying only alpha.
	KindAlpha PlaneKind = iota

	// KindChroma carries at least one chroma component.
	KindChroma

	// KindLuma carries luma but no chroma.
	KindLuma

	// KindRGB is any plane of an RGB-system frame.
	KindRGB

	// KindXYZ is any plane of an XYZ-system frame.
	KindXYZ
)

func (k PlaneKind) String() string {
	switch k {
	case KindAlpha:
		return "alpha"
	case KindChroma:
		return "chroma"
	case KindLuma:
		return "luma"
	case KindRGB:
		return "rgb"
	case KindXYZ:
		return "xyz"
	default:
		return "invalid"
	}
}

// Plane is one channel-bearing texture of a frame.
type Plane struct {
	// Texture is the decoded plane data.
	Texture gpux.Texture

	// Components is the number of meaningful components, 1-4.
	Components int

	// ChannelMap assigns a semantic channel to each component.
	// Components beyond Components must be ChannelNone.
	ChannelMap [4]Channel

	// SubX and SubY are the subsampling shifts relative to the reference
	// plane (1 = half resolution, as in 4:2:0 chroma).
	SubX, SubY int

	// Flipped marks planes stored bottom-up.
	Flipped bool
}

// Kind classifies the plane. The classification is total: every valid
// (components, mapping, system) triple yields exactly one kind, with the
// RGB and XYZ systems collapsing to a single per-frame kind.
func (p *Plane) Kind(sys colorspace.System) PlaneKind {
	switch sys {
	case colorspace.SystemRGB:
		return KindRGB
	case colorspace.SystemXYZ:
		return KindXYZ
	}
	var hasY, hasC, hasA bool
	for i := 0; i < p.Components && i < 4; i++ {
		switch p.ChannelMap[i] {
		case ChannelY:
			hasY = true
		case ChannelU, ChannelV:
			hasC = true
		case ChannelA:
			hasA = true
		}
	}
	switch {
	case hasC:
		return KindChroma
	case hasY:
		return KindLuma
	case hasA:
		return KindAlpha
	default:
		// Validation rejects all-none planes; classify deterministically
		// anyway so Kind stays total.
		return KindAlpha
	}
}

// Rotation is a whole-frame rotation in 90 degree steps, applied during
// rendering.
type Rotation int

const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

// Transposed reports whether the rotation swaps width and height.
func (r Rotation) Transposed() bool { return r == Rotate90 || r == Rotate270 }

// Overlay is a pre-rasterized image composited onto the output, in output
// coordinates.
type Overlay struct {
	// Texture holds premultiplied RGBA overlay data.
	Texture gpux.Texture

	// Rect is the destination placement.
	Rect Rect

	// Repr and Space describe the overlay's coding; inferred when zero.
	Repr  colorspace.Repr
	Space colorspace.Space
}

// GrainParams configures film grain synthesis.
type GrainParams struct {
	// Seed keys the grain pattern; frames sharing a seed share grain.
	Seed uint64

	// Strength is the grain intensity per channel class, 0 disables.
	StrengthLuma, StrengthChroma float64
}

// Frame is one logical image: an ordered set of planes plus all metadata
// needed to interpret and present them.
type Frame struct {
	// Planes holds 1-4 planes. The first non-alpha plane with the lowest
	// subsampling acts as the reference for geometry.
	Planes []Plane

	// Repr and Space describe the coded representation.
	Repr  colorspace.Repr
	Space colorspace.Space

	// Crop selects the visible source rectangle in reference-plane
	// pixels. A zero rect means the full surface.
	Crop Rect

	// Rotation is applied at render time.
	Rotation Rotation

	// ICC is an optional raw ICC profile governing decode (source
	// frames) or encode (target frames).
	ICC []byte

	// LUT is an optional custom look-up table applied at decode time
	// (source) or before output (target).
	LUT *CustomLUT

	// Grain configures film grain synthesis for this frame.
	Grain *GrainParams

	// Overlays are composited last, in order.
	Overlays []Overlay

	// Prev and Next enable deinterlacing when a triptych is available.
	Prev, Next *Frame

	// Field selects the field to construct when deinterlacing: 0 top,
	// 1 bottom.
	Field int

	// Signature is an opaque caller-supplied identity for the frame
	// mixing cache. Zero disables caching for this frame.
	Signature uint64

	// Acquire and Release bracket GPU-side access for frames whose
	// textures need explicit locking. Either may be nil.
	Acquire func() error
	Release func()
}

// W returns the reference plane width in pixels, 0 without planes.
func (f *Frame) W() int {
	if len(f.Planes) == 0 || f.Planes[0].Texture == nil {
		return 0
	}
	p := f.refPlane()
	return p.Texture.Params().W << p.SubX
}

// H returns the reference plane height in pixels.
func (f *Frame) H() int {
	if len(f.Planes) == 0 || f.Planes[0].Texture == nil {
		return 0
	}
	p := f.refPlane()
	return p.Texture.Params().H << p.SubY
}

// refPlane picks the geometry reference: the least subsampled non-alpha
// plane.
func (f *Frame) refPlane() *Plane {
	best := &f.Planes[0]
	for i := range f.Planes {
		p := &f.Planes[i]
		if p.Kind(f.Repr.System) == KindAlpha {
			continue
		}
		if p.SubX+p.SubY < best.SubX+best.SubY {
			best = p
		}
	}
	return best
}

// CropOrFull returns the crop rect, defaulting to the full surface.
func (f *Frame) CropOrFull() Rect {
	if f.Crop.Empty() {
		return RectWH(float64(f.W()), float64(f.H()))
	}
	return f.Crop
}

// InferFrame completes a partially-specified frame descriptor in place:
// missing representation, color space and crop fields are filled with
// defaults derived from the planes. No rendering or GPU work happens.
func InferFrame(f *Frame) {
	colorspace.InferRepr(&f.Repr)
	colorspace.InferSpace(&f.Space)
	if f.Crop.Empty() && f.W() > 0 {
		f.Crop = RectWH(float64(f.W()), float64(f.H()))
	}
	for i := range f.Planes {
		p := &f.Planes[i]
		if p.Components == 0 && p.Texture != nil {
			// Derive a sensible mapping from the component count.
			switch {
			case len(f.Planes) == 1:
				p.Components = 3
				p.ChannelMap = [4]Channel{ChannelY, ChannelU, ChannelV, ChannelNone}
			case i == 0:
				p.Components = 1
				p.ChannelMap = [4]Channel{ChannelY}
			default:
				p.Components = 1
				p.ChannelMap = [4]Channel{ChannelU + Channel(i-1)}
			}
		}
	}
	for i := range f.Overlays {
		o := &f.Overlays[i]
		colorspace.InferRepr(&o.Repr)
		colorspace.InferSpace(&o.Space)
	}
}

// validateFrame checks the structural invariants the renderer relies on.
// Violations abort a render call before any GPU work.
func validateFrame(f *Frame, what string) error {
	if f == nil {
		return fmt.Errorf("%w: nil %s frame", ErrInvalidFrame, what)
	}
	if len(f.Planes) < 1 || len(f.Planes) > 4 {
		return fmt.Errorf("%w: %s frame has %d planes, want 1-4", ErrInvalidFrame, what, len(f.Planes))
	}
	for i := range f.Planes {
		p := &f.Planes[i]
		if p.Texture == nil {
			return fmt.Errorf("%w: %s plane %d has no texture", ErrInvalidFrame, what, i)
		}
		if p.Components < 1 || p.Components > 4 {
			return fmt.Errorf("%w: %s plane %d has %d components", ErrInvalidFrame, what, i, p.Components)
		}
		mapped := 0
		for c := 0; c < 4; c++ {
			ch := p.ChannelMap[c]
			if ch < ChannelNone || ch > ChannelA {
				return fmt.Errorf("%w: %s plane %d channel %d unrecognized", ErrInvalidFrame, what, i, c)
			}
			if c >= p.Components && ch != ChannelNone {
				return fmt.Errorf("%w: %s plane %d maps channel beyond its %d components", ErrInvalidFrame, what, i, p.Components)
			}
			if ch != ChannelNone {
				mapped++
			}
		}
		if mapped == 0 {
			return fmt.Errorf("%w: %s plane %d maps no channels", ErrInvalidFrame, what, i)
		}
		if p.SubX < 0 || p.SubX > 2 || p.SubY < 0 || p.SubY > 2 {
			return fmt.Errorf("%w: %s plane %d has invalid subsampling %d/%d", ErrInvalidFrame, what, i, p.SubX, p.SubY)
		}
	}
	crop := f.Crop.Normalized()
	if w, h := float64(f.W()), float64(f.H()); crop.X1 > w || crop.Y1 > h || crop.X0 < 0 || crop.Y0 < 0 {
		return fmt.Errorf("%w: %s crop %+v exceeds surface %gx%g", ErrInvalidFrame, what, f.Crop, w, h)
	}
	for i := range f.Overlays {
		if f.Overlays[i].Texture == nil {
			return fmt.Errorf("%w: %s overlay %d has no texture", ErrInvalidFrame, what, i)
		}
	}
	if f.LUT != nil {
		if err := f.LUT.validate(); err != nil {
			return fmt.Errorf("%w: %s frame LUT: %v", ErrInvalidFrame, what, err)
		}
	}
	return nil
}
