// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"fmt"

	"github.com/gogpu/vidre/gpux"
)

// pass is the transient state of one render call. It tracks acquired
// frames so every exit path, including mid-pipeline failures, releases
// them exactly once.
type pass struct {
	r      *Renderer
	params *RenderParams

	// measuredPeak is the GPU-measured frame peak in nominal units, zero
	// when no measurement ran this pass.
	measuredPeak float64

	acquired []*Frame
}

func (r *Renderer) newPass(params *RenderParams) *pass {
	if params == nil {
		params = DefaultRenderParams()
	}
	r.probeFBOFormats()
	return &pass{r: r, params: params}
}

// acquireFrame runs the frame's acquire callback and registers the
// matching release. Acquiring the same frame twice within a pass is the
// caller's bug; frames are registered per call.
func (p *pass) acquireFrame(f *Frame) error {
	if f.Acquire != nil {
		if err := f.Acquire(); err != nil {
			return fmt.Errorf("%w: %v", ErrAcquireFailed, err)
		}
	}
	p.acquired = append(p.acquired, f)
	return nil
}

// end releases everything the pass holds. Safe to call on every exit
// path; it runs exactly once per pass via defer in the entry points.
func (p *pass) end() {
	for _, f := range p.acquired {
		if f.Release != nil {
			f.Release()
		}
	}
	p.acquired = nil
	p.r.fbos.reset()
	p.r.arena.Reset()
}

// fboFormatFor returns the probed format for a component count.
func (p *pass) fboFormatFor(comps int) (fboFormat, bool) {
	if comps < 1 || comps > 4 || !p.r.enabled(FeatureFBOs) || p.params.DisableFBOs {
		return fboFormat{}, false
	}
	f := p.r.fboFormats[comps-1]
	return f, f.caps != 0
}

// realize forces a shader-side img into a pooled texture. After success
// the img is texture-side. Failure leaves the builder intact, so a caller
// that restores the img can realize it again on a fallback path.
func (p *pass) realize(im *img) error {
	if im.sb == nil {
		return nil
	}
	f, ok := p.fboFormatFor(im.comps)
	if !ok {
		return ErrNoFBOFormat
	}
	prog, err := im.sb.Finalize()
	if err != nil {
		return err
	}
	tex, err := p.r.fbos.acquire(p.r.dev, im.w, im.h, f)
	if err != nil {
		return err
	}
	dst := gpux.Rect{X1: im.w, Y1: im.h}
	if err := p.r.dev.DispatchFragment(prog, tex, dst); err != nil {
		return err
	}
	im.sb = nil
	im.tex = tex
	im.rect = RectWH(float64(im.w), float64(im.h))
	return nil
}

// tryStage runs an optional pipeline stage. The stage mutates im via a
// replacement shader; if realizing or building fails, the feature category
// is disabled and im is restored to its prior state so rendering continues
// without the stage.
func (p *pass) tryStage(im *img, feat Feature, stage func(*img) error) {
	if !p.r.enabled(feat) {
		return
	}
	saved := *im
	if err := stage(im); err != nil {
		p.r.disable(feat, err)
		*im = saved
	}
}

// output dispatches a finished shader to a caller-owned target texture.
// This is the one mandatory dispatch of a pass; failure surfaces as
// ErrOutputFailed.
func (p *pass) output(im *img, dst gpux.Texture, dstRect gpux.Rect) error {
	sb := im.builder(p)
	prog, err := sb.Finalize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFailed, err)
	}
	if err := p.r.dev.DispatchFragment(prog, dst, dstRect); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFailed, err)
	}
	return nil
}
