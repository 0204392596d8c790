// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/vidre/backend/soft"
	"github.com/gogpu/vidre/gpux"
)

func TestProbeFBOFormats(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	r.probeFBOFormats()
	for comps := 1; comps <= 4; comps++ {
		f := r.fboFormats[comps-1]
		if f.caps == 0 {
			t.Errorf("no format probed for %d components", comps)
			continue
		}
		// The soft device offers float16, so probing should land there.
		if f.depth != 16 {
			t.Errorf("%d components: depth %d, want 16", comps, f.depth)
		}
	}
	if !r.enabled(FeatureFBOs) {
		t.Error("FBOs disabled with formats available")
	}
	// Probing is one-shot.
	saved := r.fboFormats
	r.probeFBOFormats()
	if r.fboFormats != saved {
		t.Error("reprobe changed the format table")
	}
}

func TestFBODistance(t *testing.T) {
	a := gpux.TextureParams{W: 100, H: 50, Format: gputypes.TextureFormatRGBA16Float}
	if d := fboDistance(a, a); d != 0 {
		t.Errorf("identical params distance = %d", d)
	}
	b := a
	b.W = 90
	if d := fboDistance(a, b); d != 10 {
		t.Errorf("size delta distance = %d", d)
	}
	c := a
	c.Format = gputypes.TextureFormatRGBA8Unorm
	if d := fboDistance(a, c); d < 1<<20 {
		t.Errorf("format mismatch distance = %d", d)
	}
}

func TestFBOPoolReuse(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()
	r.probeFBOFormats()
	f := r.fboFormats[3]

	var pool fboPool
	defer pool.release(d)

	t1, err := pool.acquire(d, 64, 64, f)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	// Same request within a pass may not reuse the busy slot.
	t2, err := pool.acquire(d, 64, 64, f)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if t1 == t2 {
		t.Fatal("busy slot reused within a pass")
	}

	pool.reset()
	t3, err := pool.acquire(d, 64, 64, f)
	if err != nil {
		t.Fatalf("acquire after reset: %v", err)
	}
	if t3 != t1 && t3 != t2 {
		t.Error("exact match not reused after reset")
	}
	if len(pool.slots) != 2 {
		t.Errorf("pool size = %d, want 2", len(pool.slots))
	}
}

func TestFBOPoolResize(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()
	r.probeFBOFormats()
	f := r.fboFormats[3]

	var pool fboPool
	defer pool.release(d)

	if _, err := pool.acquire(d, 64, 64, f); err != nil {
		t.Fatal(err)
	}
	pool.reset()

	// A different size replaces the free slot instead of growing the pool.
	t2, err := pool.acquire(d, 128, 32, f)
	if err != nil {
		t.Fatal(err)
	}
	if len(pool.slots) != 1 {
		t.Errorf("pool size = %d, want 1", len(pool.slots))
	}
	if p := t2.Params(); p.W != 128 || p.H != 32 {
		t.Errorf("resized slot params = %+v", p)
	}
	if d.TextureCount() != 1 {
		t.Errorf("live textures = %d, want 1", d.TextureCount())
	}

	pool.release(d)
	if d.TextureCount() != 0 {
		t.Errorf("textures leaked after release: %d", d.TextureCount())
	}
}
