// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package texel

import (
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/vidre/gpux"
)

func TestHalfRoundtrip(t *testing.T) {
	cases := []float32{0, 1, -1, 0.5, 0.25, 2, 65504, -65504, 1.0 / 1024}
	for _, v := range cases {
		got := HalfToFloat(FloatToHalf(v))
		if got != v {
			t.Errorf("half roundtrip %v: got %v", v, got)
		}
	}
}

func TestHalfSpecials(t *testing.T) {
	if !math.IsInf(float64(HalfToFloat(0x7c00)), 1) {
		t.Error("0x7c00 should decode to +Inf")
	}
	if !math.IsInf(float64(HalfToFloat(0xfc00)), -1) {
		t.Error("0xfc00 should decode to -Inf")
	}
	if !math.IsNaN(float64(HalfToFloat(0x7e00))) {
		t.Error("0x7e00 should decode to NaN")
	}
	// Subnormal: smallest positive half is 2^-24.
	if got := HalfToFloat(0x0001); got != float32(math.Ldexp(1, -24)) {
		t.Errorf("smallest subnormal: got %v", got)
	}
	// Overflow clamps to infinity.
	if HalfToFloat(FloatToHalf(1e6)) != HalfToFloat(0x7c00) {
		t.Error("1e6 should overflow to +Inf")
	}
}

func TestLookup(t *testing.T) {
	l, ok := Lookup(gputypes.TextureFormatRGBA16Float)
	if !ok {
		t.Fatal("rgba16f should be known")
	}
	if l.Class != gpux.ClassFloat || l.Comps != 4 || l.Depth != 16 {
		t.Errorf("rgba16f layout = %+v", l)
	}
	if l.Bytes() != 8 {
		t.Errorf("rgba16f Bytes() = %d, want 8", l.Bytes())
	}
	if _, ok := Lookup(gputypes.TextureFormatUndefined); ok {
		t.Error("undefined format should not be known")
	}
}

func TestEncodeDecodeUnorm(t *testing.T) {
	l, _ := Lookup(gputypes.TextureFormatRGBA8Unorm)
	b := make([]byte, l.Bytes())
	Encode(l, b, [4]float32{0, 0.5, 1, 2})
	c := Decode(l, b)
	if c[0] != 0 || c[2] != 1 || c[3] != 1 {
		t.Errorf("decode = %v", c)
	}
	if math.Abs(float64(c[1])-0.5) > 1.0/255 {
		t.Errorf("mid value = %v, want ~0.5", c[1])
	}
}

func TestDecodeDefaults(t *testing.T) {
	l, _ := Lookup(gputypes.TextureFormatR32Float)
	b := make([]byte, l.Bytes())
	Encode(l, b, [4]float32{0.75, 9, 9, 9})
	c := Decode(l, b)
	if c[0] != 0.75 {
		t.Errorf("r = %v", c[0])
	}
	// Missing components decode to 0,0,0,1.
	if c[1] != 0 || c[2] != 0 || c[3] != 1 {
		t.Errorf("defaults = %v, want 0,0,1", c[1:])
	}
}
