// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/internal/shader"
)

// readFrame turns a source frame into one merged img in the frame's coded
// color system, full range, with chroma upsampled to reference resolution
// and crop applied. Per-plane processing (deinterlacing, debanding, grain,
// plane hooks) happens before the merge.
func (p *pass) readFrame(f *Frame) (img, error) {
	crop := f.CropOrFull().Normalized()
	planes := make([]img, len(f.Planes))
	kinds := make([]PlaneKind, len(f.Planes))
	maxComps := 0

	for i := range f.Planes {
		pl := &f.Planes[i]
		kinds[i] = pl.Kind(f.Repr.System)
		// Crop rects are aligned to plane resolution by truncation
		// toward zero; fractional chroma positions are resolved by the
		// merge-time resample.
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
		planes[i] = fromTexture(pl.Texture, pc, pl.Components)
		for c := 0; c < pl.Components; c++ {
			if n := int(pl.ChannelMap[c]); n > maxComps {
				maxComps = n
			}
		}

		if p.params.Deinterlace && f.Field >= 0 && (f.Prev != nil || f.Next != nil) {
			p.tryStage(&planes[i], FeatureDeinterlacing, func(im *img) error {
				return p.deinterlacePlane(im, f)
			})
		}
		if p.params.Deband != nil && kinds[i] != KindAlpha {
			p.tryStage(&planes[i], FeatureDebanding, func(im *img) error {
				return p.debandPlane(im, p.params.Deband)
			})
		}
		p.runHooks(&planes[i], HookStagePlane)
	}

	if f.Grain != nil && (f.Grain.StrengthLuma > 0 || f.Grain.StrengthChroma > 0) {
		for i := range planes {
			if kinds[i] == KindAlpha {
				continue
			}
			strength := f.Grain.StrengthLuma
			if kinds[i] == KindChroma {
				strength = f.Grain.StrengthChroma
			}
			if strength <= 0 {
				continue
			}
			p.tryStage(&planes[i], FeatureGrain, func(im *img) error {
				return p.grainPlane(im, f.Grain, strength, i)
			})
		}
	}

	out, err := p.mergePlanes(f, planes, kinds, crop, maxComps)
	if err != nil {
		return img{}, err
	}
	out.repr = f.Repr
	out.space = f.Space
	p.runHooks(&out, HookStageChroma)

	p.decodeStage(&out, f)
	return out, nil
}

// mergePlanes resamples every plane to the crop's reference resolution and
// swizzles the mapped channels into a single image, channel-ordered by the
// color system (Y/R first, then U/G, V/B, alpha).
func (p *pass) mergePlanes(f *Frame, planes []img, kinds []PlaneKind, crop Rect, maxComps int) (img, error) {
	w := int(crop.W() + 0.5)
	h := int(crop.H() + 0.5)
	if maxComps < 1 {
		maxComps = 1
	}

	// Single plane carrying everything skips the merge dispatch.
	if len(planes) == 1 && identityMap(&f.Planes[0]) {
		im := planes[0]
		if im.tex != nil {
			im.w, im.h = w, h
		}
		return im, nil
	}

	sb := shader.New()
	sb.Append("color = vec4<f32>(0.0, 0.0, 0.0, 1.0);")
	for i := range planes {
		pim := &planes[i]
		// Subsampled planes resample to the reference resolution first.
		if pim.w != w || pim.h != h {
			cfg := p.pickScaler(pim.rect, float64(w), float64(h), true)
			if err := p.scaleTo(pim, w, h, cfg); err != nil {
				return img{}, err
			}
		}
		v := sb.Fresh("p")
		if pim.deferred() {
			// Shader-side planes fuse into the merge as subpasses, so
			// per-plane processing and the swizzle share one dispatch.
			fn := sb.Subpass(pim.sb, "plane")
			sb.Append("let %s = %s(pos);", v, fn)
		} else {
			tex := sb.BindTexture("plane", pim.tex, false)
			pos := samplePos(sb, pim.rect, float64(w), float64(h))
			sb.Append("let %s = textureSample(%s, %s);", v, tex, pos)
		}
		for c := 0; c < f.Planes[i].Components; c++ {
			ch := f.Planes[i].ChannelMap[c]
			if ch == ChannelNone {
				continue
			}
			sb.Append("color%s = %s%s;", swizzleDst(ch), v, swizzleSrc(c))
		}
	}

	return img{
		sb:    sb,
		w:     w,
		h:     h,
		comps: maxComps,
	}, nil
}

func identityMap(pl *Plane) bool {
	for c := 0; c < pl.Components; c++ {
		want := Channel(c) + ChannelY
		if c == 3 {
			want = ChannelA
		}
		if pl.ChannelMap[c] != want {
			return false
		}
	}
	return pl.SubX == 0 && pl.SubY == 0
}

func swizzleDst(ch Channel) string {
	switch ch {
	case ChannelY:
		return ".r"
	case ChannelU:
		return ".g"
	case ChannelV:
		return ".b"
	default:
		return ".a"
	}
}

func swizzleSrc(c int) string {
	return []string{".r", ".g", ".b", ".a"}[c]
}

// decodeStage converts the merged image to full-range RGB in the source
// primaries, applies native LUTs and ICC decode, and normalizes alpha to
// premultiplied.
func (p *pass) decodeStage(im *img, f *Frame) {
	lut := f.LUT
	if lut == nil {
		lut = p.params.LUT
	}
	if lut != nil && lut.Type == LUTNative && p.r.enabled(FeatureLUTs) {
		p.tryStage(im, FeatureLUTs, func(im *img) error {
			emit3DLUT(im.builder(p), lut, p.stageFloats(lut.Data))
			return nil
		})
	}

	m, off := colorspace.DecodeMatrix(im.repr)
	if !isIdentityDecode(m, off) {
		emitMat3(im.builder(p), m, off)
	}
	im.repr.System = colorspace.SystemRGB
	im.repr.Levels = colorspace.LevelsFull
	p.runHooks(im, HookStageRGB)

	if len(f.ICC) > 0 {
		// ICC decode reduces to the profile's effective transfer curve;
		// full PCS transforms are out of scope for the GPU path, so the
		// profile only overrides the tagged transfer when parseable.
		p.tryStage(im, FeatureICC, func(im *img) error {
			t, ok := p.r.cachedICCTransfer(f.ICC)
			if !ok {
				return nil
			}
			im.space.Transfer = t
			return nil
		})
	}

	// Independent alpha is premultiplied immediately so every later
	// linear operation composes correctly.
	if im.repr.Alpha == colorspace.AlphaIndependent && im.comps >= 4 {
		sb := im.builder(p)
		sb.Append("color = vec4<f32>(color.rgb * color.a, color.a);")
		im.repr.Alpha = colorspace.AlphaPremultiplied
	}
}

func isIdentityDecode(m colorspace.Matrix3, off [3]float64) bool {
	id := colorspace.Matrix3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	return m == id && off == [3]float64{}
}

// deinterlacePlane reconstructs the selected field with line-averaged bob:
// lines belonging to the frame's field are kept, the others interpolated
// from their vertical neighbors. Prev/Next stay unused by this method but
// gate it, matching the triptych contract.
func (p *pass) deinterlacePlane(im *img, f *Frame) error {
	if err := p.realize(im); err != nil {
		return err
	}
	sb := shader.New()
	tex := sb.BindTexture("field", im.tex, false)
	pos := samplePos(sb, im.rect, float64(im.w), float64(im.h))
	parity := sb.Const("parity", float64(f.Field))
	sb.Append("let line = floor(%s.y - 0.5);", pos)
	sb.Append("let keep = (line %% 2.0) == %s;", parity)
	sb.Append("let above = textureSample(%s, vec2<f32>(%s.x, %s.y - 1.0));", tex, pos, pos)
	sb.Append("let below = textureSample(%s, vec2<f32>(%s.x, %s.y + 1.0));", tex, pos, pos)
	sb.Append("let cur = textureSample(%s, %s);", tex, pos)
	sb.Append("color = select((above + below) * 0.5, cur, keep);")
	im.sb, im.tex = sb, nil
	return p.realize(im)
}
