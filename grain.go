// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"math/rand"

	"github.com/gogpu/vidre/gpux"
)

// grainNoiseSize is the edge length of the cached white noise tile.
const grainNoiseSize = 64

// grainState caches one uploaded noise tile per plane slot so grain stays
// cheap across frames; the per-frame seed only moves the tile offset.
type grainState struct {
	tex gpux.Texture
}

func (g *grainState) ensure(dev gpux.Device) error {
	if g.tex != nil {
		return nil
	}
	f, ok := dev.FindFormat(gpux.ClassUnorm, 1, 8, gpux.CapSampleable|gpux.CapLinearFilterable)
	if !ok {
		return gpux.ErrNoFormat
	}
	tex, err := dev.CreateTexture(gpux.TextureParams{
		W: grainNoiseSize, H: grainNoiseSize,
		Format: f,
		Caps:   gpux.CapSampleable | gpux.CapLinearFilterable,
		Label:  "vidre-grain-noise",
	})
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(0x67726169))
	pix := make([]byte, grainNoiseSize*grainNoiseSize)
	for i := range pix {
		pix[i] = byte(rng.Intn(256))
	}
	if err := dev.Upload(tex, pix, grainNoiseSize); err != nil {
		dev.DestroyTexture(tex)
		return err
	}
	g.tex = tex
	return nil
}

func (g *grainState) release(dev gpux.Device) {
	dev.DestroyTexture(g.tex)
	g.tex = nil
}

// grainPlane adds tiled white noise scaled by strength. The frame seed
// derives the tile offset, so consecutive frames get decorrelated grain
// from one static texture.
func (p *pass) grainPlane(im *img, gp *GrainParams, strength float64, planeIdx int) error {
	st := &p.r.grain[planeIdx]
	if err := st.ensure(p.r.dev); err != nil {
		return err
	}
	sb := im.builder(p)
	noise := sb.BindTexture("grain_noise", st.tex, false)
	ox := sb.Const("grain_ox", float64(gp.Seed%grainNoiseSize))
	oy := sb.Const("grain_oy", float64((gp.Seed/grainNoiseSize)%grainNoiseSize))
	s := sb.Const("grain_str", strength)
	n := sb.Fresh("noise")
	sb.Append("let %s = textureSample(%s, (pos + vec2<f32>(%s, %s)) %% vec2<f32>(%d.0)).r;",
		n, noise, ox, oy, grainNoiseSize)
	sb.Append("color += vec4<f32>(vec3<f32>(%s - 0.5) * %s, 0.0);", n, s)
	return nil
}
