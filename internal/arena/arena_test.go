// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package arena

import "testing"

func TestBytesZeroedAndDisjoint(t *testing.T) {
	a := New(64)
	s1 := a.Bytes(16)
	s2 := a.Bytes(16)
	for i := range s1 {
		s1[i] = 0xff
	}
	for _, b := range s2 {
		if b != 0 {
			t.Fatal("allocations overlap")
		}
	}
	if len(s1) != 16 || len(s2) != 16 {
		t.Fatalf("lengths = %d, %d", len(s1), len(s2))
	}
}

func TestResetReuses(t *testing.T) {
	a := New(64)
	a.Bytes(48)
	used := a.Used()
	a.Reset()
	if a.Used() != 0 {
		t.Fatalf("Used after Reset = %d", a.Used())
	}
	s := a.Bytes(48)
	if len(s) != 48 || a.Used() != used {
		t.Fatal("reset arena did not reuse its buffer")
	}
	for _, b := range s {
		if b != 0 {
			t.Fatal("recycled allocation not zeroed")
		}
	}
}

func TestGrowth(t *testing.T) {
	a := New(8)
	s := a.Bytes(1 << 16)
	if len(s) != 1<<16 {
		t.Fatalf("len = %d", len(s))
	}
	// The grown buffer persists across Reset.
	a.Reset()
	if cap(a.buf) < 1<<16 {
		t.Error("growth not retained across Reset")
	}
}

func TestZeroAndNegative(t *testing.T) {
	a := New(8)
	if s := a.Bytes(0); s != nil {
		t.Errorf("Bytes(0) = %v, want nil", s)
	}
	if s := a.Bytes(-5); s != nil {
		t.Errorf("Bytes(-5) = %v, want nil", s)
	}
}
