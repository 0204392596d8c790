// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"encoding/binary"
	"hash/fnv"
	"math"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
)

// iccState caches the last parsed profile so per-frame re-parsing is a
// hash comparison.
type iccState struct {
	hash     uint64
	transfer colorspace.Transfer
	ok       bool
}

func (s *iccState) release(gpux.Device) { *s = iccState{} }

// iccTransfer extracts the effective transfer curve of an ICC profile by
// inspecting its red TRC tag. Full PCS transforms are not attempted: the
// GPU pipeline only needs the tone curve, and profiles in the wild that
// matter for video are matrix/TRC profiles.
func iccTransfer(profile []byte) (colorspace.Transfer, bool) {
	if len(profile) < 132 {
		return colorspace.TransferUnknown, false
	}
	tagCount := binary.BigEndian.Uint32(profile[128:132])
	if tagCount > 1024 {
		return colorspace.TransferUnknown, false
	}
	for i := uint32(0); i < tagCount; i++ {
		off := 132 + i*12
		if int(off)+12 > len(profile) {
			return colorspace.TransferUnknown, false
		}
		sig := string(profile[off : off+4])
		if sig != "rTRC" {
			continue
		}
		tagOff := binary.BigEndian.Uint32(profile[off+4 : off+8])
		tagSize := binary.BigEndian.Uint32(profile[off+8 : off+12])
		if int(tagOff)+int(tagSize) > len(profile) || tagSize < 12 {
			return colorspace.TransferUnknown, false
		}
		tag := profile[tagOff : tagOff+tagSize]
		switch string(tag[0:4]) {
		case "curv":
			n := binary.BigEndian.Uint32(tag[8:12])
			switch {
			case n == 0:
				return colorspace.TransferLinear, true
			case n == 1 && len(tag) >= 14:
				// u8.8 fixed-point gamma exponent.
				g := float64(binary.BigEndian.Uint16(tag[12:14])) / 256
				return gammaTransfer(g), true
			default:
				// Sampled curves in practice encode an sRGB-like tone
				// response.
				return colorspace.TransferSRGB, true
			}
		case "para":
			return colorspace.TransferSRGB, true
		}
	}
	return colorspace.TransferUnknown, false
}

func gammaTransfer(g float64) colorspace.Transfer {
	switch {
	case math.Abs(g-1) < 0.05:
		return colorspace.TransferLinear
	case math.Abs(g-2.2) < 0.05:
		return colorspace.TransferGamma22
	case math.Abs(g-2.4) < 0.05:
		return colorspace.TransferBT1886
	default:
		return colorspace.TransferGamma22
	}
}

// iccHash fingerprints a raw profile for cache validity checks; no
// profile hashes to zero.
func iccHash(profile []byte) uint64 {
	if len(profile) == 0 {
		return 0
	}
	h := fnv.New64a()
	h.Write(profile)
	return h.Sum64()
}

// cachedICCTransfer memoizes iccTransfer through the renderer state.
func (r *Renderer) cachedICCTransfer(profile []byte) (colorspace.Transfer, bool) {
	h := fnv.New64a()
	h.Write(profile)
	sum := h.Sum64()
	if r.icc.hash == sum {
		return r.icc.transfer, r.icc.ok
	}
	t, ok := iccTransfer(profile)
	r.icc = iccState{hash: sum, transfer: t, ok: ok}
	return t, ok
}
