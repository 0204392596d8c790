// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package texel converts between encoded texture bytes and float RGBA.
// Both backends use it: the soft device for Upload/Download and the wgpu
// device for staging-buffer round trips.
package texel

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/vidre/gpux"
)

// Layout describes the component layout of a pixel format.
type Layout struct {
	// Class is the component family.
	Class gpux.FormatClass

	// Comps is the number of stored components.
	Comps int

	// Depth is the bits per component.
	Depth int
}

// Bytes returns the encoded size of one texel.
func (l Layout) Bytes() int { return l.Comps * l.Depth / 8 }

var layouts = map[gputypes.TextureFormat]Layout{
	gputypes.TextureFormatR8Unorm:     {gpux.ClassUnorm, 1, 8},
	gputypes.TextureFormatRG8Unorm:    {gpux.ClassUnorm, 2, 8},
	gputypes.TextureFormatRGBA8Unorm:  {gpux.ClassUnorm, 4, 8},
	gputypes.TextureFormatBGRA8Unorm:  {gpux.ClassUnorm, 4, 8},
	gputypes.TextureFormatR16Float:    {gpux.ClassFloat, 1, 16},
	gputypes.TextureFormatRG16Float:   {gpux.ClassFloat, 2, 16},
	gputypes.TextureFormatRGBA16Float: {gpux.ClassFloat, 4, 16},
	gputypes.TextureFormatR32Float:    {gpux.ClassFloat, 1, 32},
	gputypes.TextureFormatRGBA32Float: {gpux.ClassFloat, 4, 32},
}

// Lookup returns the layout of a format, or ok=false for formats the
// backends do not handle.
func Lookup(f gputypes.TextureFormat) (Layout, bool) {
	l, ok := layouts[f]
	return l, ok
}

// Decode reads one texel. Missing components default to (0, 0, 0, 1).
func Decode(l Layout, b []byte) [4]float32 {
	c := [4]float32{0, 0, 0, 1}
	for i := 0; i < l.Comps; i++ {
		switch l.Depth {
		case 8:
			c[i] = float32(b[i]) / 255
		case 16:
			c[i] = HalfToFloat(binary.LittleEndian.Uint16(b[i*2:]))
		default:
			c[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	}
	return c
}

// Encode writes one texel. Unorm components are clamped to [0, 1].
func Encode(l Layout, b []byte, c [4]float32) {
	for i := 0; i < l.Comps; i++ {
		switch l.Depth {
		case 8:
			v := c[i]
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			b[i] = byte(v*255 + 0.5)
		case 16:
			binary.LittleEndian.PutUint16(b[i*2:], FloatToHalf(c[i]))
		default:
			binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(c[i]))
		}
	}
}

// HalfToFloat converts an IEEE 754 binary16 value to float32.
func HalfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h >> 10 & 0x1f)
	frac := uint32(h & 0x3ff)
	switch exp {
	case 0:
		if frac == 0 {
			return math.Float32frombits(sign)
		}
		// subnormal
		for frac&0x400 == 0 {
			frac <<= 1
			exp--
		}
		exp++
		frac &= 0x3ff
		return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
	case 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
	}
}

// FloatToHalf converts a float32 to IEEE 754 binary16, round to nearest.
func FloatToHalf(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits >> 31 << 15)
	exp := int32(bits>>23&0xff) - 127 + 15
	frac := bits & 0x7fffff
	switch {
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		frac |= 0x800000
		shift := uint32(14 - exp)
		half := uint16(frac >> shift)
		if frac>>(shift-1)&1 != 0 {
			half++
		}
		return sign | half
	default:
		half := sign | uint16(exp)<<10 | uint16(frac>>13)
		if frac&0x1000 != 0 {
			half++
		}
		return half
	}
}
