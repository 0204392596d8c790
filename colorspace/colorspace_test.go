// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package colorspace

import (
	"math"
	"testing"
)

func TestPQRoundtrip(t *testing.T) {
	for _, nits := range []float64{0, 0.005, 1, 100, 203, 1000, 4000, 10000} {
		pq := NitsToPQ(nits)
		if pq < 0 || pq > 1 {
			t.Fatalf("NitsToPQ(%v) = %v, out of [0,1]", nits, pq)
		}
		back := PQToNits(pq)
		if math.Abs(back-nits) > 1e-6*math.Max(nits, 1) {
			t.Errorf("PQ roundtrip: %v nits -> %v -> %v", nits, pq, back)
		}
	}
}

func TestPQKnownValues(t *testing.T) {
	// 10000 nits must encode to exactly 1.0, and reference white to the
	// well-known ~0.58 signal level.
	if got := NitsToPQ(10000); math.Abs(got-1) > 1e-9 {
		t.Errorf("NitsToPQ(10000) = %v, want 1", got)
	}
	if got := NitsToPQ(203); math.Abs(got-0.5807) > 5e-3 {
		t.Errorf("NitsToPQ(203) = %v, want ~0.5807", got)
	}
}

func TestRescaleRoundtrip(t *testing.T) {
	bases := []Scaling{ScaleNominal, ScalePQ, ScaleAbsolute}
	for _, from := range bases {
		for _, to := range bases {
			x := 0.75
			if from == ScaleAbsolute {
				x = 600 // nits
			}
			y := Rescale(x, from, to)
			back := Rescale(y, to, from)
			if math.Abs(back-x) > 1e-6*math.Max(x, 1) {
				t.Errorf("Rescale %v->%v->%v: %v -> %v -> %v", from, to, from, x, y, back)
			}
		}
	}
}

func TestLinearizeRoundtrip(t *testing.T) {
	transfers := []Transfer{TransferSRGB, TransferBT1886, TransferGamma22, TransferLinear, TransferPQ, TransferHLG}
	for _, tr := range transfers {
		for _, x := range []float64{0, 0.01, 0.18, 0.5, 0.9, 1} {
			lin := Linearize(tr, x)
			back := Delinearize(tr, lin)
			if math.Abs(back-x) > 1e-6 {
				t.Errorf("%v: roundtrip %v -> %v -> %v", tr, x, lin, back)
			}
		}
	}
}

func TestLinearizeMonotonic(t *testing.T) {
	transfers := []Transfer{TransferSRGB, TransferBT1886, TransferPQ, TransferHLG}
	for _, tr := range transfers {
		prev := math.Inf(-1)
		for i := 0; i <= 100; i++ {
			v := Linearize(tr, float64(i)/100)
			if v < prev {
				t.Fatalf("%v: not monotonic at %d: %v < %v", tr, i, v, prev)
			}
			prev = v
		}
	}
}

func TestInferRepr(t *testing.T) {
	tests := []struct {
		name string
		in   Repr
		want Repr
	}{
		{
			name: "empty gets BT.709 limited",
			in:   Repr{},
			want: Repr{System: SystemBT709, Levels: LevelsLimited, Alpha: AlphaIndependent, BitDepth: 8},
		},
		{
			name: "rgb gets full range",
			in:   Repr{System: SystemRGB},
			want: Repr{System: SystemRGB, Levels: LevelsFull, Alpha: AlphaIndependent, BitDepth: 8},
		},
		{
			name: "signalled fields survive",
			in:   Repr{System: SystemBT2020NC, Levels: LevelsFull, Alpha: AlphaPremultiplied, BitDepth: 10},
			want: Repr{System: SystemBT2020NC, Levels: LevelsFull, Alpha: AlphaPremultiplied, BitDepth: 10},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in
			InferRepr(&got)
			if got != tt.want {
				t.Errorf("InferRepr(%+v) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestInferSpace(t *testing.T) {
	var s Space
	InferSpace(&s)
	if s.Primaries != PrimariesBT709 || s.Transfer != TransferBT1886 {
		t.Fatalf("empty space inferred to %v/%v", s.Primaries, s.Transfer)
	}
	if s.HDR.MaxLuma != ReferenceWhite {
		t.Errorf("SDR MaxLuma = %v, want %v", s.HDR.MaxLuma, ReferenceWhite)
	}
	if s.HDR.MinLuma <= 0 || s.HDR.MinLuma >= s.HDR.MaxLuma {
		t.Errorf("MinLuma = %v not inside (0, MaxLuma)", s.HDR.MinLuma)
	}

	hdr := Space{Primaries: PrimariesBT2020}
	InferSpace(&hdr)
	if hdr.Transfer != TransferPQ {
		t.Errorf("BT.2020 inferred transfer %v, want PQ", hdr.Transfer)
	}
	if hdr.HDR.MaxLuma != PQMaxNits {
		t.Errorf("PQ MaxLuma = %v, want %v", hdr.HDR.MaxLuma, PQMaxNits)
	}
}

func TestSpaceEqual(t *testing.T) {
	a := Space{Primaries: PrimariesBT2020, Transfer: TransferPQ, HDR: HDRMetadata{MaxLuma: 1000}}
	b := a
	if !a.Equal(b) {
		t.Fatal("identical spaces not equal")
	}
	b.HDR.SceneAvg = 120
	if a.Equal(b) {
		t.Fatal("differing metadata reported equal")
	}
	b = a
	b.HDR.OOTF = []float64{0.1, 0.5}
	if a.Equal(b) {
		t.Fatal("differing OOTF reported equal")
	}
}
