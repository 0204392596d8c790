// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"fmt"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/shader"
)

// outputStage finishes the pass: pre-output hooks, overlays, corner
// rounding, background compositing, representation encoding, dithering
// and the per-plane writes into the target textures. The writes are the
// only mandatory dispatches of a pass.
func (p *pass) outputStage(im *img, f *Frame, target *Frame) error {
	p.runHooks(im, HookStagePreOutput)

	if len(f.Overlays) > 0 || len(target.Overlays) > 0 {
		p.tryStage(im, FeatureOverlays, func(im *img) error {
			p.compositeOverlays(im, f.Overlays)
			p.compositeOverlays(im, target.Overlays)
			return nil
		})
	}

	if p.params.CornerRadius > 0 {
		emitCornerMask(im.builder(p), p.params.CornerRadius, im.w, im.h)
	}

	switch {
	case target.Repr.Alpha == colorspace.AlphaNone || p.params.BlendAgainstTiles:
		p.tryStage(im, FeatureBlending, func(im *img) error {
			emitBackground(im.builder(p), &p.params.Background, im.w, im.h)
			return nil
		})
	case target.Repr.Alpha == colorspace.AlphaIndependent:
		sb := im.builder(p)
		sb.Append("color = vec4<f32>(color.rgb / max(color.a, 1e-6), color.a);")
	}

	// Error diffusion runs once, before the per-plane split; its result
	// is already quantized so the plane writes skip further dithering.
	dithered := false
	if d := p.params.Dither; d != nil && d.Method == DitherErrorDiffusion &&
		p.r.enabled(FeatureErrorDiffusion) {
		if !errorDiffusionBudget(p.r.dev.Limits().MaxSharedMem, im.w) {
			p.r.disable(FeatureErrorDiffusion, gpux.ErrInvalidParams)
		} else {
			p.tryStage(im, FeatureErrorDiffusion, func(im *img) error {
				err := runErrorDiffusion(p, im, d.Kernel, ditherDepth(target.Repr.BitDepth))
				dithered = err == nil
				return err
			})
		}
	}

	// Multi-plane targets and subsampled writes need the finished image
	// as a texture.
	if len(target.Planes) > 1 {
		if err := p.realize(im); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailed, err)
		}
	}

	crop := target.CropOrFull().Normalized()
	for i := range target.Planes {
		if err := p.writePlane(im, target, i, crop, dithered); err != nil {
			return err
		}
	}
	return nil
}

// writePlane encodes and writes one target plane.
func (p *pass) writePlane(im *img, target *Frame, idx int, crop Rect, dithered bool) error {
	pl := &target.Planes[idx]
	pc := Rect{
		X0: crop.X0 / float64(int(1)<<pl.SubX),
		Y0: crop.Y0 / float64(int(1)<<pl.SubY),
		X1: crop.X1 / float64(int(1)<<pl.SubX),
		Y1: crop.Y1 / float64(int(1)<<pl.SubY),
	}
	if pl.Flipped {
		ph := float64(pl.Texture.Params().H)
		pc.Y0, pc.Y1 = ph-pc.Y1, ph-pc.Y0
	}
	dstRect := pc.RoundInt()
	w, h := dstRect.Dx(), dstRect.Dy()

	var sb *shader.Builder
	if im.deferred() && len(target.Planes) == 1 && w == im.w && h == im.h {
		sb = im.builder(p)
	} else {
		if err := p.realize(im); err != nil {
			return fmt.Errorf("%w: %v", ErrOutputFailed, err)
		}
		// Subsampled planes resample with the plane scaler.
		tmp := *im
		if w != im.w || h != im.h {
			cfg := p.pickScaler(tmp.rect, float64(w), float64(h), true)
			if err := p.scaleTo(&tmp, w, h, cfg); err != nil {
				return fmt.Errorf("%w: %v", ErrOutputFailed, err)
			}
			sb = tmp.builder(p)
		} else {
			sb = shader.New()
			tex := sb.BindTexture("out_src", im.tex, false)
			pos := samplePos(sb, im.rect, float64(w), float64(h))
			sb.Append("color = textureSample(%s, %s);", tex, pos)
		}
	}

	m, off := colorspace.DecodeMatrix(target.Repr)
	emitEncodeMat(sb, m, off)

	if !dithered {
		emitDither(sb, p.params.Dither, ditherDepth(target.Repr.BitDepth))
	}

	// Swizzle the mapped channels into the plane's component order.
	expr := [4]string{"0.0", "0.0", "0.0", "1.0"}
	for c := 0; c < pl.Components; c++ {
		switch pl.ChannelMap[c] {
		case ChannelY:
			expr[c] = "color.r"
		case ChannelU:
			expr[c] = "color.g"
		case ChannelV:
			expr[c] = "color.b"
		case ChannelA:
			expr[c] = "color.a"
		}
	}
	sb.Append("color = vec4<f32>(%s, %s, %s, %s);", expr[0], expr[1], expr[2], expr[3])

	prog, err := sb.Finalize()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFailed, err)
	}
	if err := p.r.dev.DispatchFragment(prog, pl.Texture, dstRect); err != nil {
		return fmt.Errorf("%w: %v", ErrOutputFailed, err)
	}
	return nil
}

// emitEncodeMat appends the inverse of the decode transform: full-range
// RGB back into the target representation's system and levels.
func emitEncodeMat(sb *shader.Builder, m colorspace.Matrix3, off [3]float64) {
	if isIdentityDecode(m, off) {
		return
	}
	inv := m.Inverse()
	name := sb.Fresh("emat")
	sb.Declare("const %s = mat3x3<f32>(\n"+
		"vec3<f32>(%g, %g, %g),\nvec3<f32>(%g, %g, %g),\nvec3<f32>(%g, %g, %g));",
		name,
		inv[0][0], inv[1][0], inv[2][0],
		inv[0][1], inv[1][1], inv[2][1],
		inv[0][2], inv[1][2], inv[2][2])
	sb.Append("color = vec4<f32>(%s * color.rgb - vec3<f32>(%g, %g, %g), color.a);",
		name, off[0], off[1], off[2])
}

// compositeOverlays draws each overlay source-over onto the image, in
// target crop coordinates.
func (p *pass) compositeOverlays(im *img, overlays []Overlay) {
	for i := range overlays {
		o := &overlays[i]
		sb := im.builder(p)
		tex := sb.BindTexture("overlay", o.Texture, true)
		op := o.Texture.Params()
		x0 := sb.Const("ov_x0", o.Rect.X0)
		y0 := sb.Const("ov_y0", o.Rect.Y0)
		sx := sb.Const("ov_sx", float64(op.W)/o.Rect.W())
		sy := sb.Const("ov_sy", float64(op.H)/o.Rect.H())
		x1 := sb.Const("ov_x1", o.Rect.X1)
		y1 := sb.Const("ov_y1", o.Rect.Y1)
		sb.Append("if pos.x >= %s && pos.x < %s && pos.y >= %s && pos.y < %s {", x0, x1, y0, y1)
		sb.Append("let oc = textureSample(%s, vec2<f32>((pos.x - %s) * %s, (pos.y - %s) * %s));",
			tex, x0, sx, y0, sy)
		sb.Append("color = oc + color * (1.0 - oc.a);")
		sb.Append("}")
	}
}

// emitCornerMask multiplies alpha by a rounded-rectangle coverage mask.
// radius is a fraction of the smaller output dimension.
func emitCornerMask(sb *shader.Builder, radius float64, w, h int) {
	r := float64(min(w, h)) * 0.5 * clamp01(radius)
	rad := sb.Const("corner_r", r)
	cw := sb.Const("corner_w", float64(w))
	ch := sb.Const("corner_h", float64(h))
	sb.Append("{\nlet half = vec2<f32>(%s, %s) * 0.5;", cw, ch)
	sb.Append("let d = abs(pos - half) - (half - vec2<f32>(%s));", rad)
	sb.Append("let dist = length(max(d, vec2<f32>(0.0))) - %s;", rad)
	sb.Append("let cov = clamp(0.5 - dist, 0.0, 1.0);")
	sb.Append("color *= cov;\n}")
}

// emitBackground composites the (premultiplied) image over a solid color
// or checkerboard and strips alpha.
func emitBackground(sb *shader.Builder, bg *BackgroundParams, w, h int) {
	c := bg.Color
	switch bg.Mode {
	case BackgroundCheckerboard:
		tile := bg.TileSize
		if tile <= 0 {
			tile = 32
		}
		t := bg.TileColor
		ts := sb.Const("bg_tile", float64(tile))
		sb.Append("{\nlet cell = (floor(pos.x / %s) + floor(pos.y / %s)) %% 2.0;", ts, ts)
		sb.Append("let bg = mix(vec3<f32>(%g, %g, %g), vec3<f32>(%g, %g, %g), cell);",
			c[0], c[1], c[2], t[0], t[1], t[2])
		sb.Append("color = vec4<f32>(color.rgb + bg * (1.0 - color.a), 1.0);\n}")
	default:
		sb.Append("color = vec4<f32>(color.rgb + vec3<f32>(%g, %g, %g) * (1.0 - color.a), 1.0);",
			c[0], c[1], c[2])
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
