// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"github.com/gogpu/vidre/internal/shader"
)

// debandPlane runs iterative gradient-noise debanding on one plane: each
// iteration samples four taps on a randomly rotated cross of growing
// radius and replaces the pixel with their average when the difference
// stays below the threshold, so banding flattens while detail survives.
// A final grain term masks residual steps.
func (p *pass) debandPlane(im *img, d *DebandParams) error {
	if err := p.realize(im); err != nil {
		return err
	}
	iters := d.Iterations
	if iters < 1 {
		iters = 1
	} else if iters > 4 {
		iters = 4
	}

	sb := shader.New()
	tex := sb.BindTexture("deband_src", im.tex, true)
	pos := samplePos(sb, im.rect, float64(im.w), float64(im.h))
	thresh := sb.Const("thresh", d.Threshold/255)
	radius := sb.Const("radius", d.Radius)

	rand := emitPRNG(sb, pos, 26699)
	sb.Append("var avg: vec4<f32>;")
	sb.Append("var diff: vec4<f32>;")
	sb.Append("color = textureSample(%s, %s);", tex, pos)
	for i := 1; i <= iters; i++ {
		// Each iteration gets an independent angle and sub-radius.
		sb.Append("{\nlet dist = %s() * %s * %d.0;", rand, radius, i)
		sb.Append("let angle = %s() * 6.2831853;", rand)
		sb.Append("let d = dist * vec2<f32>(cos(angle), sin(angle));")
		sb.Append("avg = 0.25 * (%s + %s + %s + %s);",
			sampleAt(sb, tex, pos, "d"),
			sampleAt(sb, tex, pos, "-d"),
			sampleAt(sb, tex, pos, "vec2<f32>(-d.y, d.x)"),
			sampleAt(sb, tex, pos, "vec2<f32>(d.y, -d.x)"))
		sb.Append("diff = abs(color - avg);")
		sb.Append("color = select(color, avg, diff < vec4<f32>(%s * %d.0));\n}", thresh, i)
	}
	if d.Grain > 0 {
		g := sb.Const("deband_grain", d.Grain/255)
		sb.Append("color += vec4<f32>(%s() - 0.5, %s() - 0.5, %s() - 0.5, 0.0) * %s;",
			rand, rand, rand, g)
	}
	padComponents(sb, im.comps)
	im.sb, im.tex = sb, nil
	return nil
}

func sampleAt(sb *shader.Builder, tex, pos, offset string) string {
	return "textureSample(" + tex + ", " + pos + " + " + offset + ")"
}

// emitPRNG declares a per-pixel xorshift rand helper seeded from the
// output position and a caller seed, returning the function name. Each
// call advances the state.
func emitPRNG(sb *shader.Builder, pos string, seed uint32) string {
	state := sb.Fresh("prng_state")
	rand := sb.Fresh("rand")
	sb.Declare("var<private> %s: u32;", state)
	sb.Declare("fn %s() -> f32 {\n"+
		"%s = %s ^ (%s << 13u);\n"+
		"%s = %s ^ (%s >> 17u);\n"+
		"%s = %s ^ (%s << 5u);\n"+
		"return f32(%s) * (1.0 / 4294967296.0);\n}", rand,
		state, state, state,
		state, state, state,
		state, state, state,
		state)
	sb.Append("%s = u32(%s.x) * 1973u + u32(%s.y) * 9277u + %du;", state, pos, pos, seed)
	return rand
}
