// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"fmt"

	"github.com/gogpu/vidre/colorspace"
)

// LUTType selects how a custom 3D LUT's inputs and outputs are
// interpreted.
type LUTType int

const (
	// LUTNative maps raw (decoded, pre-conversion) values to raw values.
	LUTNative LUTType = iota

	// LUTNormalized maps linear-light values normalized to the image
	// peak; the renderer injects the normalization factor around the
	// lookup.
	LUTNormalized

	// LUTConversion replaces the renderer's color space conversion
	// entirely. The LUT output is in the target space.
	LUTConversion
)

func (t LUTType) String() string {
	switch t {
	case LUTNative:
		return "native"
	case LUTNormalized:
		return "normalized"
	case LUTConversion:
		return "conversion"
	default:
		return "invalid"
	}
}

// CustomLUT is a user-supplied 3D look-up table applied as a three stage
// pipeline: pre-map into the LUT's input space, the lookup itself, and a
// post-map into the pipeline's working space.
type CustomLUT struct {
	// Size is the edge length of the cube; Data holds Size³ RGB triples
	// in R-fastest order.
	Size int
	Data []float32

	// Type selects interpretation of inputs and outputs.
	Type LUTType

	// InputTransfer and OutputTransfer describe the LUT's end-point
	// encodings, used to build the pre- and post-map stages. Unknown
	// means "pipeline working space".
	InputTransfer, OutputTransfer colorspace.Transfer

	// Strength blends between the identity and the full LUT, [0, 1].
	// Zero means 1 (full).
	Strength float64
}

func (l *CustomLUT) validate() error {
	if l.Size < 2 {
		return fmt.Errorf("lut size %d, want >= 2", l.Size)
	}
	if want := l.Size * l.Size * l.Size * 3; len(l.Data) != want {
		return fmt.Errorf("lut data length %d, want %d for size %d", len(l.Data), want, l.Size)
	}
	return nil
}

// hash folds the LUT identity into a parameter hash. Data contents are
// hashed sparsely: full-table hashing per frame would dwarf the render
// cost for large LUTs.
func (l *CustomLUT) hash() uint64 {
	if l == nil {
		return 0
	}
	h := uint64(14695981039346656037)
	mixIn := func(v uint64) {
		h ^= v
		h *= 1099511628211
	}
	mixIn(uint64(l.Size))
	mixIn(uint64(l.Type))
	mixIn(uint64(l.InputTransfer))
	mixIn(uint64(l.OutputTransfer))
	step := len(l.Data)/64 + 1
	for i := 0; i < len(l.Data); i += step {
		mixIn(uint64(uint32(l.Data[i] * 65535)))
	}
	return h
}
