// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/shader"
)

// img is one intermediate image flowing through the render pipeline. It is
// a tagged union: either an in-progress shader (sb non-nil) describing how
// to compute the pixels, or a concrete texture (tex non-nil) holding them.
// Exactly one of the two is set.
//
// Deferring realization lets consecutive pointwise stages fuse into a
// single dispatch; a stage that needs neighborhood access (scalers,
// debanding) forces the pending shader into an FBO first.
type img struct {
	sb  *shader.Builder
	tex gpux.Texture

	// w, h are the logical pixel dimensions of the image content.
	w, h int

	// rect is the active source region within the texture, in texel
	// coordinates. Only meaningful on the texture side.
	rect Rect

	// comps is the number of meaningful components.
	comps int

	repr  colorspace.Repr
	space colorspace.Space

	// linear is set while the pixel values are linear light normalized
	// to reference white rather than space.Transfer encoded.
	linear bool
}

// fromTexture wraps an existing texture region.
func fromTexture(tex gpux.Texture, rect Rect, comps int) img {
	return img{
		tex:   tex,
		rect:  rect,
		w:     int(rect.W() + 0.5),
		h:     int(rect.H() + 0.5),
		comps: comps,
	}
}

// deferred reports whether the image is still an unrealized shader.
func (im *img) deferred() bool { return im.sb != nil }

// builder returns a shader computing this image, converting a texture-side
// img into a fresh sampling shader when needed. After the call the img is
// shader-side; the caller owns realization.
func (im *img) builder(p *pass) *shader.Builder {
	if im.sb != nil {
		return im.sb
	}
	sb := shader.New()
	pos := samplePos(sb, im.rect, float64(im.w), float64(im.h))
	tex := sb.BindTexture("src", im.tex, false)
	sb.Append("color = textureSample(%s, %s);", tex, pos)
	padComponents(sb, im.comps)
	im.sb = sb
	im.tex = nil
	return sb
}

// samplePos emits the source texel coordinate for the current output
// position, mapping the output quad onto rect.
func samplePos(sb *shader.Builder, rect Rect, outW, outH float64) string {
	name := sb.Fresh("pos")
	sx := sb.Const("sx", rect.W()/outW)
	sy := sb.Const("sy", rect.H()/outH)
	ox := sb.Const("ox", rect.X0)
	oy := sb.Const("oy", rect.Y0)
	sb.Append("let %s = vec2<f32>(pos.x * %s + %s, pos.y * %s + %s);",
		name, sx, ox, sy, oy)
	return name
}

// padComponents forces unsampled components to neutral values: zero for
// missing color channels, one for missing alpha.
func padComponents(sb *shader.Builder, comps int) {
	switch comps {
	case 1:
		sb.Append("color = vec4<f32>(color.r, 0.0, 0.0, 1.0);")
	case 2:
		sb.Append("color = vec4<f32>(color.rg, 0.0, 1.0);")
	case 3:
		sb.Append("color.a = 1.0;")
	}
}
