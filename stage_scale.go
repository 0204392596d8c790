// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"github.com/gogpu/vidre/internal/shader"
)

// scaleStage resizes the decoded image to the target crop, in linear light
// when precision allows, with optional sigmoidization around upscaling.
func (p *pass) scaleStage(im *img, f *Frame, target *Frame) {
	if f.Rotation != Rotate0 {
		p.tryStage(im, FeatureSampling, func(im *img) error {
			return p.rotateImg(im, f.Rotation)
		})
	}

	w, h := targetSize(target)
	src := RectWH(float64(im.w), float64(im.h))
	if im.tex != nil {
		src = im.rect
	}
	cfg := p.pickScaler(src, float64(w), float64(h), false)
	noop := cfg == nil && im.w == w && im.h == h

	// Linear-light scaling needs at least 16-bit intermediates or the
	// quantization noise exceeds the scaling gain.
	canLinear := !p.params.DisableLinearScaling && !noop &&
		p.r.enabled(FeatureFBOs) && !p.params.DisableFBOs
	if fboF, ok := p.fboFormatFor(im.comps); !ok || fboF.depth < 16 {
		canLinear = false
	}

	if canLinear && !im.linear {
		emitLinearize(im.builder(p), im.space.Transfer)
		im.linear = true
	}
	p.runHooks(im, HookStageLinear)

	upscaling := scaleDir(src.W(), float64(w)) > 0 || scaleDir(src.H(), float64(h)) > 0

	// Peak measurement runs where the image is smallest: ahead of an
	// upscale, after a downscale.
	wantPeak := p.params.PeakDetect != nil && im.linear &&
		im.space.Transfer.IsHDR() && p.r.enabled(FeaturePeakDetect)
	if wantPeak && upscaling {
		p.measurePeakStage(im)
		wantPeak = false
	}

	sig := p.params.Sigmoid
	useSigmoid := sig != nil && upscaling && im.linear && !im.space.Transfer.IsHDR()
	if useSigmoid {
		emitSigmoid(im.builder(p), sig)
	}

	if !noop {
		p.tryStage(im, FeatureSampling, func(im *img) error {
			return p.scaleTo(im, w, h, cfg)
		})
		if im.w != w || im.h != h {
			// The custom path failed; fall back to direct sampling so
			// the output is at least the right size.
			if err := p.scaleTo(im, w, h, nil); err != nil {
				p.r.disable(FeatureFBOs, err)
			}
		}
	}
	if useSigmoid {
		emitDesigmoid(im.builder(p), sig)
	}
	if wantPeak {
		p.measurePeakStage(im)
	}
}

// measurePeakStage measures the frame peak as an optional stage: failure
// disables peak detection and rendering continues on signalled metadata.
func (p *pass) measurePeakStage(im *img) {
	p.tryStage(im, FeaturePeakDetect, func(im *img) error {
		m, err := p.measurePeak(im)
		if err != nil {
			return err
		}
		p.measuredPeak = m
		return nil
	})
}

// rotateImg rewrites the image with the rotation baked in, swapping
// dimensions for transposed angles.
func (p *pass) rotateImg(im *img, rot Rotation) error {
	if err := p.realize(im); err != nil {
		return err
	}
	w, h := im.w, im.h
	ow, oh := w, h
	if rot.Transposed() {
		ow, oh = h, w
	}
	sb := shader.New()
	tex := sb.BindTexture("rot_src", im.tex, false)
	sx := sb.Const("rot_sx", im.rect.X0)
	sy := sb.Const("rot_sy", im.rect.Y0)
	mw := sb.Const("rot_w", float64(w))
	mh := sb.Const("rot_h", float64(h))
	c := sb.Fresh("rc")
	switch rot {
	case Rotate90:
		sb.Append("let %s = vec2<f32>(pos.y, %s - pos.x);", c, mh)
	case Rotate180:
		sb.Append("let %s = vec2<f32>(%s - pos.x, %s - pos.y);", c, mw, mh)
	case Rotate270:
		sb.Append("let %s = vec2<f32>(%s - pos.y, pos.x);", c, mw)
	default:
		sb.Append("let %s = pos;", c)
	}
	sb.Append("color = textureSample(%s, %s + vec2<f32>(%s, %s));", tex, c, sx, sy)
	padComponents(sb, im.comps)
	im.sb, im.tex = sb, nil
	im.w, im.h = ow, oh
	return nil
}
