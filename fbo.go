// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/vidre/gpux"
)

// fboFormat is one probed intermediate-texture format slot.
type fboFormat struct {
	format gputypes.TextureFormat
	caps   gpux.Caps
	depth  int
}

// fboCaps is the minimum capability set for intermediate render targets.
const fboCaps = gpux.CapSampleable | gpux.CapRenderable

// probeFBOFormats fills the per-component-count format table. Preference
// order per slot: 16-bit float, then 16-bit unorm or snorm with linear
// filtering, then plain 16-bit unorm, then 8-bit unorm. If nothing at all
// is renderable the FBO feature is disabled.
func (r *Renderer) probeFBOFormats() {
	if r.fboProbed {
		return
	}
	r.fboProbed = true
	any := false
	for comps := 1; comps <= 4; comps++ {
		f, ok := r.findFBOFormat(comps)
		if ok {
			r.fboFormats[comps-1] = f
			any = true
		}
	}
	if !any {
		r.disable(FeatureFBOs, ErrNoFBOFormat)
	}
}

func (r *Renderer) findFBOFormat(comps int) (fboFormat, bool) {
	type query struct {
		class gpux.FormatClass
		depth int
		caps  gpux.Caps
	}
	for _, q := range []query{
		{gpux.ClassFloat, 16, fboCaps | gpux.CapLinearFilterable},
		{gpux.ClassUnorm, 16, fboCaps | gpux.CapLinearFilterable},
		{gpux.ClassSnorm, 16, fboCaps | gpux.CapLinearFilterable},
		{gpux.ClassUnorm, 16, fboCaps},
		{gpux.ClassUnorm, 8, fboCaps | gpux.CapLinearFilterable},
		{gpux.ClassUnorm, 8, fboCaps},
	} {
		if f, ok := r.dev.FindFormat(q.class, comps, q.depth, q.caps); ok {
			return fboFormat{format: f, caps: r.dev.FormatCaps(f), depth: q.depth}, true
		}
	}
	return fboFormat{}, false
}

// fboSlot is one pooled intermediate texture. inUse guards against reuse
// within a single pass; the pool resets it when the pass ends.
type fboSlot struct {
	tex   gpux.Texture
	inUse bool
}

// fboPool recycles intermediate textures across passes and frames. Lookup
// is best-fit: an exact size and format match is reused as-is; otherwise
// the closest free slot is resized in place. The pool is bounded by the
// number of simultaneously live FBOs in the busiest pass, which in
// practice stays in the single digits.
type fboPool struct {
	slots []fboSlot
}

// distance scores how well a slot fits a request. Zero means exact reuse.
// A format mismatch always forces reallocation, but reallocating a
// same-format slot is still preferred over growing the pool.
func fboDistance(have gpux.TextureParams, want gpux.TextureParams) int {
	d := abs(have.W-want.W) + abs(have.H-want.H)
	if have.Format != want.Format {
		d += 1 << 20
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// acquire returns an intermediate texture of the given size and format
// slot, creating or resizing a pooled texture as needed.
func (p *fboPool) acquire(dev gpux.Device, w, h int, f fboFormat) (gpux.Texture, error) {
	want := gpux.TextureParams{
		W: w, H: h,
		Format: f.format,
		Caps:   f.caps & (fboCaps | gpux.CapLinearFilterable | gpux.CapBlittable),
		Label:  "vidre-fbo",
	}
	best := -1
	bestD := 0
	for i := range p.slots {
		if p.slots[i].inUse {
			continue
		}
		d := fboDistance(p.slots[i].tex.Params(), want)
		if best < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	if best >= 0 && bestD == 0 {
		p.slots[best].inUse = true
		return p.slots[best].tex, nil
	}
	tex, err := dev.CreateTexture(want)
	if err != nil {
		return nil, err
	}
	if best >= 0 {
		dev.DestroyTexture(p.slots[best].tex)
		p.slots[best] = fboSlot{tex: tex, inUse: true}
		return tex, nil
	}
	p.slots = append(p.slots, fboSlot{tex: tex, inUse: true})
	return tex, nil
}

// reset marks all slots free. Called at the end of each pass; texture
// contents are not preserved between passes.
func (p *fboPool) reset() {
	for i := range p.slots {
		p.slots[i].inUse = false
	}
}

// release destroys all pooled textures.
func (p *fboPool) release(dev gpux.Device) {
	for i := range p.slots {
		dev.DestroyTexture(p.slots[i].tex)
	}
	p.slots = nil
}
