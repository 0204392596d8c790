// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/vidre/backend/soft"
	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
)

func TestMixNearest(t *testing.T) {
	m := &FrameMix{
		Frames:     make([]*Frame, 3),
		Timestamps: []float64{-0.8, -0.1, 0.6},
	}
	if got := m.nearest(); got != 1 {
		t.Errorf("nearest = %d, want 1", got)
	}
}

func sumWeights(w []float64) float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

func TestMixWeightsTent(t *testing.T) {
	mix := &FrameMix{Timestamps: []float64{-0.8, -0.2, 0.7, 1.5}}
	params := &RenderParams{FrameMixer: &FilterConfig{Name: "tent"}}

	idx, weights := mixWeights(mix, params)
	// The tent covers |ts| < 1; the last frame contributes nothing.
	if len(idx) != 3 {
		t.Fatalf("idx = %v", idx)
	}
	if math.Abs(sumWeights(weights)-1) > 1e-12 {
		t.Errorf("weights sum to %v", sumWeights(weights))
	}
	// The center-nearest frame dominates.
	if !(weights[1] > weights[0] && weights[1] > weights[2]) {
		t.Errorf("weights = %v", weights)
	}
}

func TestMixWeightsOversample(t *testing.T) {
	mix := &FrameMix{Timestamps: []float64{-0.9, 0.05}, VsyncDuration: 1}
	params := &RenderParams{
		FrameMixer:        FilterOversample,
		FrameMixThreshold: 0.2,
	}
	idx, weights := mixWeights(mix, params)
	// 0.1 coverage is under the threshold; only the near frame remains.
	if len(idx) != 1 || idx[0] != 1 {
		t.Fatalf("idx = %v", idx)
	}
	if math.Abs(weights[0]-1) > 1e-12 {
		t.Errorf("weights = %v", weights)
	}
}

func TestMixWeightsKernel(t *testing.T) {
	mix := &FrameMix{Timestamps: []float64{-2.5, -0.5, 0.5, 2.5}}
	params := &RenderParams{FrameMixer: FilterMitchell}

	idx, weights := mixWeights(mix, params)
	// Radius 2 excludes the outer frames.
	if len(idx) != 2 || idx[0] != 1 || idx[1] != 2 {
		t.Fatalf("idx = %v", idx)
	}
	// Symmetric offsets weigh equally.
	if math.Abs(weights[0]-weights[1]) > 1e-12 {
		t.Errorf("weights = %v", weights)
	}
}

func TestMixWeightsEpsilonCut(t *testing.T) {
	mix := &FrameMix{Timestamps: []float64{0, 0.9999}}
	params := &RenderParams{FrameMixer: &FilterConfig{Name: "tent"}}

	idx, weights := mixWeights(mix, params)
	// The far frame's normalized weight is ~1e-4, below the cut.
	if len(idx) != 1 || idx[0] != 0 {
		t.Fatalf("idx = %v, weights = %v", idx, weights)
	}
	if math.Abs(weights[0]-1) > 1e-12 {
		t.Errorf("renormalized weights = %v", weights)
	}
}

func TestRenderFrameMixValidation(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	target := rgbFrame(t, d, 8, 4)

	if err := r.RenderFrameMix(nil, target, nil); !errors.Is(err, ErrEmptyMix) {
		t.Errorf("nil mix: %v", err)
	}
	if err := r.RenderFrameMix(&FrameMix{}, target, nil); !errors.Is(err, ErrEmptyMix) {
		t.Errorf("empty mix: %v", err)
	}
	mismatched := &FrameMix{
		Frames:     []*Frame{rgbFrame(t, d, 8, 4)},
		Timestamps: []float64{0, 1},
	}
	if err := r.RenderFrameMix(mismatched, target, nil); !errors.Is(err, ErrEmptyMix) {
		t.Errorf("mismatched timestamps: %v", err)
	}

	r.Close()
	m := &FrameMix{Frames: []*Frame{rgbFrame(t, d, 8, 4)}, Timestamps: []float64{0}}
	if err := r.RenderFrameMix(m, target, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("closed renderer: %v", err)
	}
}

func TestRenderFrameMixZeroOrderHold(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	far := rgbFrame(t, d, 8, 4)
	near := rgbFrame(t, d, 8, 4)
	fillFrame(far, 0.25)
	fillFrame(near, 0.75)
	m := &FrameMix{
		Frames:     []*Frame{far, near},
		Timestamps: []float64{-0.6, 0.1},
	}
	target := rgbFrame(t, d, 8, 4)

	// No mixer configured: the nearest frame renders alone.
	if err := r.RenderFrameMix(m, target, nil); err != nil {
		t.Fatalf("RenderFrameMix: %v", err)
	}
	if len(d.Dispatches) == 0 {
		t.Fatal("no dispatches recorded")
	}
	// The nearest frame's pixels landed on the target, give or take the
	// 8-bit ordered dither offset.
	got := target.Planes[0].Texture.(*soft.Texture).At(1, 1)
	if math.Abs(float64(got[0])-0.75) > 3e-3 {
		t.Errorf("target texel = %v, want ~0.75", got)
	}
}

// fillFrame paints every texel of a single-plane frame.
func fillFrame(f *Frame, v float32) {
	st := f.Planes[0].Texture.(*soft.Texture)
	p := st.Params()
	for y := 0; y < p.H; y++ {
		for x := 0; x < p.W; x++ {
			st.Set(x, y, [4]float32{v, v, v, 1})
		}
	}
}

func TestRenderFrameMixBlend(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	f1 := rgbFrame(t, d, 8, 4)
	f1.Signature = 101
	f2 := rgbFrame(t, d, 8, 4)
	f2.Signature = 102
	m := &FrameMix{
		Frames:     []*Frame{f1, f2},
		Timestamps: []float64{-0.3, 0.4},
	}
	target := rgbFrame(t, d, 8, 4)
	params := DefaultRenderParams()
	params.FrameMixer = FilterOversample

	if err := r.RenderFrameMix(m, target, params); err != nil {
		t.Fatalf("RenderFrameMix: %v", err)
	}
	if r.mixFrames != 2 {
		t.Errorf("cached frames = %d, want 2", r.mixFrames)
	}

	// A second render of the same mix reuses both cached entries.
	before := len(d.Dispatches)
	if err := r.RenderFrameMix(m, target, params); err != nil {
		t.Fatalf("second RenderFrameMix: %v", err)
	}
	// Only the final blend dispatch should run on a warm cache.
	if got := len(d.Dispatches) - before; got != 1 {
		t.Errorf("warm-cache dispatches = %d, want 1", got)
	}

	r.FlushMixCache()
	if r.mixFrames != 0 || len(r.mix) != 0 {
		t.Error("FlushMixCache left entries behind")
	}
}

func TestMixCacheEviction(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d, WithMixCacheLimit(2))
	defer r.Close()

	params := DefaultRenderParams()
	params.FrameMixer = FilterOversample
	target := rgbFrame(t, d, 8, 4)

	render := func(sigA, sigB uint64) {
		fa := rgbFrame(t, d, 8, 4)
		fa.Signature = sigA
		fb := rgbFrame(t, d, 8, 4)
		fb.Signature = sigB
		m := &FrameMix{Frames: []*Frame{fa, fb}, Timestamps: []float64{-0.3, 0.4}}
		if err := r.RenderFrameMix(m, target, params); err != nil {
			t.Fatalf("RenderFrameMix: %v", err)
		}
	}

	render(1, 2)
	render(3, 4)
	if r.mixFrames != 2 {
		t.Errorf("cache holds %d frames, want 2", r.mixFrames)
	}
	// The current pass's entries survive eviction.
	if _, ok := r.mix[3]; !ok {
		t.Error("entry 3 evicted while in use")
	}
	if _, ok := r.mix[4]; !ok {
		t.Error("entry 4 evicted while in use")
	}
	// Frames that left the mix window entirely are gone.
	if _, ok := r.mix[1]; ok {
		t.Error("entry 1 survived leaving the mix window")
	}
	if _, ok := r.mix[2]; ok {
		t.Error("entry 2 survived leaving the mix window")
	}
}

func TestMixCacheEvictsDeparted(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	params := DefaultRenderParams()
	params.FrameMixer = FilterOversample
	target := rgbFrame(t, d, 8, 4)

	frames := make([]*Frame, 5)
	for i := range frames {
		frames[i] = rgbFrame(t, d, 8, 4)
		frames[i].Signature = uint64(i + 1)
	}
	render := func(a, b int) {
		m := &FrameMix{
			Frames:     []*Frame{frames[a], frames[b]},
			Timestamps: []float64{-0.3, 0.4},
		}
		if err := r.RenderFrameMix(m, target, params); err != nil {
			t.Fatalf("RenderFrameMix: %v", err)
		}
	}

	// Slide the mix window one frame at a time: the departed frame's
	// entry must be gone after the very next pass, with the shared frame
	// retained.
	render(0, 1)
	render(1, 2)
	if _, ok := r.mix[1]; ok {
		t.Error("departed entry still cached")
	}
	if _, ok := r.mix[2]; !ok {
		t.Error("retained frame evicted")
	}
	if r.mixFrames != 2 {
		t.Errorf("cache holds %d frames, want 2", r.mixFrames)
	}

	// The evicted entry's texture went to the free list and backs the
	// next new entry instead of a fresh allocation.
	count := d.TextureCount()
	render(2, 3)
	if got := d.TextureCount(); got > count {
		t.Errorf("textures grew %d -> %d, want recycled", count, got)
	}
}

func TestMixWeightsRotationSkip(t *testing.T) {
	d := soft.New()
	defer d.Close()

	near := rgbFrame(t, d, 8, 4)
	rotated := rgbFrame(t, d, 8, 4)
	rotated.Rotation = Rotate90
	mix := &FrameMix{
		Frames:     []*Frame{rotated, near},
		Timestamps: []float64{-0.4, 0.1},
	}
	params := &RenderParams{FrameMixer: &FilterConfig{Name: "tent"}}

	// The rotated frame cannot blend with the reference; only the near
	// frame contributes.
	idx, weights := mixWeights(mix, params)
	if len(idx) != 1 || idx[0] != 1 {
		t.Fatalf("idx = %v", idx)
	}
	if math.Abs(weights[0]-1) > 1e-12 {
		t.Errorf("weights = %v", weights)
	}

	// Matching rotations blend as usual.
	rotated.Rotation = Rotate0
	if idx, _ = mixWeights(mix, params); len(idx) != 2 {
		t.Errorf("matched rotations idx = %v", idx)
	}
}

func TestMixCacheWarmAcrossConversion(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	// Subsampled HDR sources convert to the target space on the way into
	// the cache; the entries must still validate against the source-side
	// repr and space on the next pass.
	mk := func(sig uint64) *Frame {
		f := yuv420Frame(t, d, 8, 4)
		f.Space = colorspace.Space{
			Primaries: colorspace.PrimariesBT2020,
			Transfer:  colorspace.TransferPQ,
		}
		f.Space.HDR.MaxCLL = 800
		f.Signature = sig
		InferFrame(f)
		return f
	}
	m := &FrameMix{
		Frames:     []*Frame{mk(1), mk(2)},
		Timestamps: []float64{-0.3, 0.4},
	}
	target := rgbFrame(t, d, 8, 4)
	params := DefaultRenderParams()
	params.FrameMixer = FilterOversample

	if err := r.RenderFrameMix(m, target, params); err != nil {
		t.Fatalf("RenderFrameMix: %v", err)
	}
	before := len(d.Dispatches)
	if err := r.RenderFrameMix(m, target, params); err != nil {
		t.Fatalf("second RenderFrameMix: %v", err)
	}
	if got := len(d.Dispatches) - before; got != 1 {
		t.Errorf("warm-cache dispatches = %d, want 1", got)
	}
}

func TestMixCacheKeyedOnTargetProfile(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	f1 := rgbFrame(t, d, 8, 4)
	f1.Signature = 1
	f2 := rgbFrame(t, d, 8, 4)
	f2.Signature = 2
	m := &FrameMix{Frames: []*Frame{f1, f2}, Timestamps: []float64{-0.3, 0.4}}
	target := rgbFrame(t, d, 8, 4)
	params := DefaultRenderParams()
	params.FrameMixer = FilterOversample

	if err := r.RenderFrameMix(m, target, params); err != nil {
		t.Fatalf("RenderFrameMix: %v", err)
	}

	// A new target profile invalidates the cached entries: both frames
	// re-render instead of reusing conversions for the old profile.
	target.ICC = curvProfile(2*256 + 51)
	before := len(d.Dispatches)
	if err := r.RenderFrameMix(m, target, params); err != nil {
		t.Fatalf("profiled RenderFrameMix: %v", err)
	}
	if got := len(d.Dispatches) - before; got < 3 {
		t.Errorf("dispatches after profile change = %d, want re-renders", got)
	}
}

func TestRenderFrameMixFallback(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	f1 := rgbFrame(t, d, 8, 4)
	f2 := rgbFrame(t, d, 8, 4)
	m := &FrameMix{Frames: []*Frame{f1, f2}, Timestamps: []float64{-0.3, 0.4}}
	target := rgbFrame(t, d, 8, 4)
	params := DefaultRenderParams()
	params.FrameMixer = FilterOversample

	// Fail the first dispatch only: the mix path dies mid-cache, the
	// retry renders zero-order hold with mixing disabled.
	failed := false
	d.OnDispatch = func(p *gpux.Program) error {
		if !failed {
			failed = true
			return errors.New("injected")
		}
		return nil
	}
	if err := r.RenderFrameMix(m, target, params); err != nil {
		t.Fatalf("RenderFrameMix: %v", err)
	}
	if r.enabled(FeatureFrameMixing) {
		t.Error("frame mixing still enabled after mix failure")
	}
}
