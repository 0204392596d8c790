// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"encoding/binary"
	"testing"

	"github.com/gogpu/vidre/backend/soft"
	"github.com/gogpu/vidre/colorspace"
)

// curvProfile synthesizes a minimal ICC profile whose rTRC tag is a curv
// element with the given entries.
func curvProfile(entries ...uint16) []byte {
	tag := make([]byte, 12+2*len(entries))
	copy(tag, "curv")
	binary.BigEndian.PutUint32(tag[8:12], uint32(len(entries)))
	for i, e := range entries {
		binary.BigEndian.PutUint16(tag[12+2*i:], e)
	}

	prof := make([]byte, 132+12, 132+12+len(tag))
	binary.BigEndian.PutUint32(prof[128:132], 1) // one tag
	copy(prof[132:136], "rTRC")
	binary.BigEndian.PutUint32(prof[136:140], uint32(132+12))
	binary.BigEndian.PutUint32(prof[140:144], uint32(len(tag)))
	return append(prof, tag...)
}

func TestICCTransferCurv(t *testing.T) {
	tests := []struct {
		name    string
		entries []uint16
		want    colorspace.Transfer
	}{
		{"identity", nil, colorspace.TransferLinear},
		{"gamma 2.2", []uint16{2*256 + 51}, colorspace.TransferGamma22}, // 2.2 in u8.8
		{"gamma 2.4", []uint16{2*256 + 102}, colorspace.TransferBT1886}, // 2.4 in u8.8
		{"gamma 1.0", []uint16{256}, colorspace.TransferLinear},
		{"sampled", []uint16{0, 16384, 32768, 49152, 65535}, colorspace.TransferSRGB},
	}
	for _, tt := range tests {
		got, ok := iccTransfer(curvProfile(tt.entries...))
		if !ok {
			t.Errorf("%s: parse failed", tt.name)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: transfer = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestICCTransferRejects(t *testing.T) {
	if _, ok := iccTransfer(nil); ok {
		t.Error("nil profile parsed")
	}
	if _, ok := iccTransfer(make([]byte, 64)); ok {
		t.Error("truncated profile parsed")
	}
	// A profile without an rTRC tag yields no transfer.
	prof := make([]byte, 144)
	binary.BigEndian.PutUint32(prof[128:132], 1)
	copy(prof[132:136], "desc")
	if _, ok := iccTransfer(prof); ok {
		t.Error("profile without rTRC parsed")
	}
	// Absurd tag counts are rejected rather than scanned.
	huge := make([]byte, 132)
	binary.BigEndian.PutUint32(huge[128:132], 1<<20)
	if _, ok := iccTransfer(huge); ok {
		t.Error("oversized tag count parsed")
	}
}

func TestGammaTransfer(t *testing.T) {
	for _, tt := range []struct {
		g    float64
		want colorspace.Transfer
	}{
		{1.0, colorspace.TransferLinear},
		{2.2, colorspace.TransferGamma22},
		{2.4, colorspace.TransferBT1886},
		{1.8, colorspace.TransferGamma22}, // unusual gammas approximate
	} {
		if got := gammaTransfer(tt.g); got != tt.want {
			t.Errorf("gammaTransfer(%v) = %v, want %v", tt.g, got, tt.want)
		}
	}
}

func TestCachedICCTransfer(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	prof := curvProfile(2*256 + 51)
	t1, ok := r.cachedICCTransfer(prof)
	if !ok || t1 != colorspace.TransferGamma22 {
		t.Fatalf("first parse = %v, %v", t1, ok)
	}
	// The memo answers repeats without reparsing; mutating the profile
	// changes the hash and invalidates it.
	t2, _ := r.cachedICCTransfer(prof)
	if t2 != t1 {
		t.Error("memoized result differs")
	}
	other := curvProfile()
	t3, ok := r.cachedICCTransfer(other)
	if !ok || t3 != colorspace.TransferLinear {
		t.Errorf("second profile = %v, %v", t3, ok)
	}
}
