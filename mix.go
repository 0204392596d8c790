// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"errors"
	"math"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/shader"
)

// mixWeightEps is the weight below which a frame's contribution is
// dropped from the blend entirely.
const mixWeightEps = 1e-3

// FrameMix describes the set of source frames overlapping one output
// vsync, for temporal frame mixing.
type FrameMix struct {
	// Frames are the candidate frames, ordered by presentation time.
	Frames []*Frame

	// Timestamps give each frame's presentation time relative to the
	// middle of the current vsync, in vsync units: 0 is dead center,
	// -0.5 the vsync start. Must parallel Frames.
	Timestamps []float64

	// VsyncDuration is the display refresh period relative to the
	// source frame duration. Zero means 1 (matched rates).
	VsyncDuration float64
}

// nearest returns the index of the frame closest to the vsync center.
func (m *FrameMix) nearest() int {
	best := 0
	for i, ts := range m.Timestamps {
		if math.Abs(ts) < math.Abs(m.Timestamps[best]) {
			best = i
		}
	}
	return best
}

// mixEntry is one cached intermediate render: a frame taken through the
// read, scale and color stages at target size and color space. Validity
// is judged against the source frame as it looked at render time; the out
// fields describe the cached pixels, which are already tone mapped and so
// carry no HDR metadata any more.
type mixEntry struct {
	tex   gpux.Texture
	w, h  int
	comps int

	sig      uint64 // frame signature
	params   uint64 // RenderParams.Hash at render time
	icc      uint64 // target ICC profile fingerprint
	crop     Rect
	srcSpace colorspace.Space
	srcRepr  colorspace.Repr

	outSpace colorspace.Space
	outRepr  colorspace.Repr

	tick uint64
}

func (e *mixEntry) destroy(dev gpux.Device) {
	dev.DestroyTexture(e.tex)
	e.tex = nil
}

// usable reports whether a cached entry still matches the current render
// request. With SkipCaching set only the signature is trusted.
func (e *mixEntry) usable(p *pass, f *Frame, w, h int, paramsHash, icc uint64) bool {
	if e.tex == nil {
		return false
	}
	if p.params.SkipCaching {
		return true
	}
	return e.w == w && e.h == h &&
		e.params == paramsHash &&
		e.icc == icc &&
		e.crop.ApproxEqual(f.CropOrFull(), 1e-6) &&
		e.srcRepr.Equal(f.Repr) &&
		e.srcSpace.Primaries == f.Space.Primaries &&
		e.srcSpace.Transfer == f.Space.Transfer &&
		e.srcSpace.HDR.Equal(&f.Space.HDR)
}

// RenderFrameMix renders a temporal mix of frames onto the target. With no
// mixer configured (or the feature disabled) the frame nearest the vsync
// center renders alone, zero-order hold. Cached intermediate renders are
// keyed by frame signature; frames with a zero signature bypass the cache.
func (r *Renderer) RenderFrameMix(mix *FrameMix, target *Frame, params *RenderParams) error {
	if r.closed {
		return ErrClosed
	}
	if mix == nil || len(mix.Frames) == 0 {
		return ErrEmptyMix
	}
	if len(mix.Timestamps) != len(mix.Frames) {
		return ErrEmptyMix
	}
	if err := validateFrame(target, "target"); err != nil {
		return err
	}
	InferFrame(target)

	p := r.newPass(params)
	defer p.end()
	r.mixTick++

	single := p.params.FrameMixer == nil || !r.enabled(FeatureFrameMixing) || len(mix.Frames) == 1
	if single {
		f := mix.Frames[mix.nearest()]
		if err := validateFrame(f, "source"); err != nil {
			return err
		}
		InferFrame(f)
		if err := p.acquireFrame(f); err != nil {
			return err
		}
		return p.renderOne(f, target)
	}

	if err := p.renderMix(mix, target); err != nil {
		if errors.Is(err, ErrOutputFailed) {
			return err
		}
		// Mixing failed before output; retry as zero-order hold.
		r.disable(FeatureFrameMixing, err)
		f := mix.Frames[mix.nearest()]
		if err := validateFrame(f, "source"); err != nil {
			return err
		}
		InferFrame(f)
		if err := p.acquireFrame(f); err != nil {
			return err
		}
		return p.renderOne(f, target)
	}
	return nil
}

// renderMix blends the contributing frames through the mix cache.
func (p *pass) renderMix(mix *FrameMix, target *Frame) error {
	w, h := targetSize(target)
	paramsHash := p.params.Hash()
	icc := iccHash(target.ICC)

	idx, weights := mixWeights(mix, p.params)
	if len(idx) == 0 {
		idx = []int{mix.nearest()}
		weights = []float64{1}
	}

	entries := make([]*mixEntry, len(idx))
	// Entries for unsigned frames bypass the cache and live only for
	// this pass.
	defer func() {
		for _, e := range entries {
			if e != nil && e.sig == 0 && e.tex != nil {
				e.destroy(p.r.dev)
			}
		}
	}()
	for k, i := range idx {
		f := mix.Frames[i]
		if err := validateFrame(f, "source"); err != nil {
			return err
		}
		InferFrame(f)
		e, err := p.cachedRender(f, target, w, h, paramsHash, icc)
		if err != nil {
			return err
		}
		entries[k] = e
	}
	// Every frame still in the input list stays resident, contributing or
	// not; everything else leaves the cache after this pass.
	for _, f := range mix.Frames {
		if f == nil || f.Signature == 0 {
			continue
		}
		if e, ok := p.r.mix[f.Signature]; ok {
			e.tick = p.r.mixTick
		}
	}
	p.evictMix()

	sb := shader.New()
	sb.Append("color = vec4<f32>(0.0);")
	for k, e := range entries {
		tex := sb.BindTexture("mix_src", e.tex, false)
		// Weights ride in a uniform so shifting vsync phase reuses the
		// compiled blend pipeline.
		wgt := sb.Var("mix_w", "f32", p.stageFloats([]float32{float32(weights[k])}))
		sb.Append("color += textureSample(%s, pos) * %s;", tex, wgt)
	}
	im := img{
		sb:    sb,
		w:     w,
		h:     h,
		comps: entries[0].comps,
		repr:  entries[0].outRepr,
		space: entries[0].outSpace,
	}
	return p.outputStage(&im, mix.Frames[mix.nearest()], target)
}

// mixWeights evaluates the mixer kernel at each frame's distance from the
// vsync center, culls negligible and threshold-trimmed contributions, and
// normalizes the rest.
func mixWeights(mix *FrameMix, params *RenderParams) (idx []int, weights []float64) {
	cfg := params.FrameMixer
	radius := cfg.Radius
	if radius <= 0 {
		radius = 1
	}
	vsync := mix.VsyncDuration
	if vsync <= 0 {
		vsync = 1
	}

	var refRot Rotation
	if n := mix.nearest(); n < len(mix.Frames) && mix.Frames[n] != nil {
		refRot = mix.Frames[n].Rotation
	}

	var sum float64
	for i, ts := range mix.Timestamps {
		// Frames rotated differently from the reference cannot blend
		// texel for texel; they sit out this vsync.
		if i < len(mix.Frames) && mix.Frames[i] != nil && mix.Frames[i].Rotation != refRot {
			continue
		}
		x := math.Abs(ts)
		var w float64
		switch {
		case cfg.Oversample:
			// Oversampling weights by vsync coverage; contributions
			// below the threshold fraction collapse onto the neighbor.
			w = math.Max(0, 1-x/vsync)
			if w < params.FrameMixThreshold {
				w = 0
			}
		case cfg.Kernel != nil:
			if x < radius {
				w = cfg.Kernel(x)
			}
		default:
			w = math.Max(0, 1-x)
		}
		if w > 0 {
			idx = append(idx, i)
			weights = append(weights, w)
			sum += w
		}
	}
	if sum <= 0 {
		return nil, nil
	}
	outI := idx[:0]
	outW := weights[:0]
	for k := range idx {
		w := weights[k] / sum
		if w < mixWeightEps {
			continue
		}
		outI = append(outI, idx[k])
		outW = append(outW, w)
	}
	// Renormalize after the epsilon cut.
	var s2 float64
	for _, w := range outW {
		s2 += w
	}
	for k := range outW {
		outW[k] /= s2
	}
	return outI, outW
}

// cachedRender returns the intermediate render of f, reusing the cache
// when valid. Uncacheable frames (zero signature) render fresh into a
// transient entry that is destroyed at eviction time.
func (p *pass) cachedRender(f *Frame, target *Frame, w, h int, paramsHash, icc uint64) (*mixEntry, error) {
	r := p.r
	if f.Signature != 0 {
		if e, ok := r.mix[f.Signature]; ok && e.usable(p, f, w, h, paramsHash, icc) {
			e.tick = r.mixTick
			return e, nil
		}
	}

	// Validity fields are captured before the pipeline mutates the image.
	srcSpace, srcRepr := f.Space, f.Repr

	if err := p.acquireFrame(f); err != nil {
		return nil, err
	}
	im, err := p.readFrame(f)
	if err != nil {
		return nil, err
	}
	p.scaleStage(&im, f, target)
	p.colorStage(&im, f, target)

	format, ok := p.fboFormatFor(im.comps)
	if !ok {
		return nil, ErrNoFBOFormat
	}
	tex, err := r.acquireMixTexture(w, h, format)
	if err != nil {
		return nil, err
	}
	prog, err := im.builder(p).Finalize()
	if err != nil {
		r.dev.DestroyTexture(tex)
		return nil, err
	}
	if err := r.dev.DispatchFragment(prog, tex, gpux.Rect{X1: w, Y1: h}); err != nil {
		r.dev.DestroyTexture(tex)
		return nil, err
	}

	// Cached pixels are post tone mapping; drop the HDR metadata from the
	// out-side space so a reuse never re-applies it.
	outSpace := im.space
	outSpace.HDR = colorspace.HDRMetadata{}
	e := &mixEntry{
		tex: tex, w: w, h: h, comps: im.comps,
		sig: f.Signature, params: paramsHash, icc: icc,
		crop:     f.CropOrFull(),
		srcSpace: srcSpace,
		srcRepr:  srcRepr,
		outSpace: outSpace,
		outRepr:  im.repr,
		tick:     r.mixTick,
	}
	if f.Signature != 0 {
		if old, ok := r.mix[f.Signature]; ok {
			r.recycleMixTexture(old)
		} else {
			r.mixFrames++
		}
		r.mix[f.Signature] = e
	}
	return e, nil
}

// evictMix runs the mark-then-filter sweep after a mix pass: renderMix
// marked every entry whose frame is still in the input list with the
// current tick, so anything unmarked belongs to a frame that left the mix
// window and goes now. Evicted textures land on a free list for the next
// cachedRender.
func (p *pass) evictMix() {
	r := p.r
	for sig, e := range r.mix {
		if e.tick == r.mixTick {
			continue
		}
		r.recycleMixTexture(e)
		delete(r.mix, sig)
		r.mixFrames--
	}
}

// acquireMixTexture reuses a recycled cache texture of matching shape, or
// creates one.
func (r *Renderer) acquireMixTexture(w, h int, format fboFormat) (gpux.Texture, error) {
	for i, t := range r.mixFree {
		tp := t.Params()
		if tp.W == w && tp.H == h && tp.Format == format.format {
			r.mixFree = append(r.mixFree[:i], r.mixFree[i+1:]...)
			return t, nil
		}
	}
	return r.dev.CreateTexture(gpux.TextureParams{
		W: w, H: h,
		Format: format.format,
		Caps:   format.caps & (fboCaps | gpux.CapLinearFilterable),
		Label:  "vidre-mix",
	})
}

// recycleMixTexture parks an evicted entry's texture on the free list,
// dropping it outright once the list holds a full cache's worth.
func (r *Renderer) recycleMixTexture(e *mixEntry) {
	if e.tex == nil {
		return
	}
	if len(r.mixFree) >= r.mixLimit {
		e.destroy(r.dev)
		return
	}
	r.mixFree = append(r.mixFree, e.tex)
	e.tex = nil
}
