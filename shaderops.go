// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/internal/shader"
	"github.com/gogpu/vidre/tonemap"
)

// emitMat3 appends color.rgb = m * (color.rgb + off).
func emitMat3(sb *shader.Builder, m colorspace.Matrix3, off [3]float64) {
	name := sb.Fresh("cmat")
	sb.Declare("const %s = mat3x3<f32>(\n"+
		"vec3<f32>(%g, %g, %g),\nvec3<f32>(%g, %g, %g),\nvec3<f32>(%g, %g, %g));",
		name,
		m[0][0], m[1][0], m[2][0],
		m[0][1], m[1][1], m[2][1],
		m[0][2], m[1][2], m[2][2])
	sb.Append("color = vec4<f32>(%s * (color.rgb + vec3<f32>(%g, %g, %g)), color.a);",
		name, off[0], off[1], off[2])
}

// emitLinearize appends code converting color.rgb from the given transfer
// to linear light normalized to reference white (1.0 = 203 nits).
func emitLinearize(sb *shader.Builder, t colorspace.Transfer) {
	peak := sb.Const("peak", t.NominalPeak()/colorspace.ReferenceWhite)
	switch t {
	case colorspace.TransferSRGB:
		sb.Append("color = vec4<f32>(select(pow((color.rgb + vec3<f32>(0.055)) / vec3<f32>(1.055), vec3<f32>(2.4)), color.rgb / vec3<f32>(12.92), color.rgb <= vec3<f32>(0.04045)) * %s, color.a);", peak)
	case colorspace.TransferLinear:
		sb.Append("color = vec4<f32>(color.rgb * %s, color.a);", peak)
	case colorspace.TransferGamma22:
		sb.Append("color = vec4<f32>(pow(max(color.rgb, vec3<f32>(0.0)), vec3<f32>(2.2)) * %s, color.a);", peak)
	case colorspace.TransferPQ:
		m1 := sb.Const("pq_m1", 1/2610.0*16384)
		m2 := sb.Const("pq_m2", 1/(2523.0/4096*128))
		c1 := sb.Const("pq_c1", 3424.0/4096)
		c2 := sb.Const("pq_c2", 2413.0/4096*32)
		c3 := sb.Const("pq_c3", 2392.0/4096*32)
		sb.Append("{\nlet e = pow(max(color.rgb, vec3<f32>(0.0)), vec3<f32>(%s));", m2)
		sb.Append("let num = max(e - vec3<f32>(%s), vec3<f32>(0.0));", c1)
		sb.Append("let den = vec3<f32>(%s) - %s * e;", c2, c3)
		sb.Append("color = vec4<f32>(pow(num / den, vec3<f32>(%s)) * %s, color.a);\n}",
			m1, sb.Const("pq_scale", colorspace.PQMaxNits/colorspace.ReferenceWhite))
	case colorspace.TransferHLG:
		// Inverse OETF plus a fixed gamma 1.2 OOTF at nominal peak.
		a := sb.Const("hlg_a", 0.17883277)
		b := sb.Const("hlg_b", 0.28466892)
		c := sb.Const("hlg_c", 0.55991073)
		sb.Append("{\nlet lin = select(exp((color.rgb - vec3<f32>(%s)) / vec3<f32>(%s)) + vec3<f32>(%s), color.rgb * color.rgb * 4.0, color.rgb <= vec3<f32>(0.5)) / 12.0;", c, a, b)
		sb.Append("let y = dot(lin, vec3<f32>(0.2627, 0.678, 0.0593));")
		sb.Append("color = vec4<f32>(lin * pow(max(y, 1e-6), 0.2) * %s, color.a);\n}", peak)
	default: // BT.1886 approximated as pure 2.4 power
		sb.Append("color = vec4<f32>(pow(max(color.rgb, vec3<f32>(0.0)), vec3<f32>(2.4)) * %s, color.a);", peak)
	}
}

// emitDelinearize appends the inverse of emitLinearize.
func emitDelinearize(sb *shader.Builder, t colorspace.Transfer) {
	peak := sb.Const("ipeak", colorspace.ReferenceWhite/t.NominalPeak())
	sb.Append("color = vec4<f32>(max(color.rgb * %s, vec3<f32>(0.0)), color.a);", peak)
	switch t {
	case colorspace.TransferSRGB:
		sb.Append("color = vec4<f32>(select(vec3<f32>(1.055) * pow(color.rgb, vec3<f32>(1.0 / 2.4)) - vec3<f32>(0.055), color.rgb * 12.92, color.rgb <= vec3<f32>(0.0031308)), color.a);")
	case colorspace.TransferLinear:
		// nothing further
	case colorspace.TransferGamma22:
		sb.Append("color = vec4<f32>(pow(color.rgb, vec3<f32>(1.0 / 2.2)), color.a);")
	case colorspace.TransferPQ:
		m1 := sb.Const("pqi_m1", 2610.0/16384)
		m2 := sb.Const("pqi_m2", 2523.0/4096*128)
		c1 := sb.Const("pqi_c1", 3424.0/4096)
		c2 := sb.Const("pqi_c2", 2413.0/4096*32)
		c3 := sb.Const("pqi_c3", 2392.0/4096*32)
		sb.Append("{\nlet y = pow(color.rgb, vec3<f32>(%s));", m1)
		sb.Append("color = vec4<f32>(pow((vec3<f32>(%s) + %s * y) / (vec3<f32>(1.0) + %s * y), vec3<f32>(%s)), color.a);\n}",
			c1, c2, c3, m2)
	case colorspace.TransferHLG:
		sb.Append("{\nlet y = dot(color.rgb, vec3<f32>(0.2627, 0.678, 0.0593));")
		sb.Append("let sc = color.rgb * pow(max(y, 1e-6), -1.0 / 6.0) * 12.0;")
		sb.Append("color = vec4<f32>(select(vec3<f32>(%s) * log(max(sc - vec3<f32>(%s), vec3<f32>(1e-6))) + vec3<f32>(%s), sqrt(sc * 0.25), sc <= vec3<f32>(3.0)), color.a);\n}",
			sb.Const("hlgi_a", 0.17883277), sb.Const("hlgi_b", 0.28466892), sb.Const("hlgi_c", 0.55991073))
	default:
		sb.Append("color = vec4<f32>(pow(color.rgb, vec3<f32>(1.0 / 2.4)), color.a);")
	}
}

// emitSigmoid compresses linear values through an inverse logistic curve
// ahead of upscaling; emitDesigmoid undoes it afterwards.
func emitSigmoid(sb *shader.Builder, sig *SigmoidParams) {
	c := sb.Const("sig_c", sig.Center)
	s := sb.Const("sig_s", sig.Slope)
	off := sigOffset(sig)
	scale := sigScale(sig)
	o := sb.Const("sig_o", off)
	k := sb.Const("sig_k", scale)
	sb.Append("color = vec4<f32>(clamp(color.rgb, vec3<f32>(0.0), vec3<f32>(1.0)), color.a);")
	sb.Append("color = vec4<f32>(%s - log(vec3<f32>(1.0) / (color.rgb * %s + vec3<f32>(%s)) - vec3<f32>(1.0)) / %s, color.a);",
		c, k, o, s)
}

func emitDesigmoid(sb *shader.Builder, sig *SigmoidParams) {
	c := sb.Const("dsig_c", sig.Center)
	s := sb.Const("dsig_s", sig.Slope)
	o := sb.Const("dsig_o", sigOffset(sig))
	k := sb.Const("dsig_k", 1/sigScale(sig))
	sb.Append("color = vec4<f32>((vec3<f32>(1.0) / (vec3<f32>(1.0) + exp(%s * (vec3<f32>(%s) - color.rgb))) - vec3<f32>(%s)) * %s, color.a);",
		s, c, o, k)
}

func sigOffset(sig *SigmoidParams) float64 {
	return 1 / (1 + math.Exp(sig.Slope*sig.Center))
}

func sigScale(sig *SigmoidParams) float64 {
	return 1/(1+math.Exp(sig.Slope*(sig.Center-1))) - sigOffset(sig)
}

// stageFloats packs a float32 table into pass-lifetime bytes for a
// buffer binding. The backing memory is reclaimed when the pass ends.
func (p *pass) stageFloats(vals []float32) []byte {
	buf := p.r.arena.Bytes(len(vals) * 4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// emitToneLUT applies a precomputed tone mapping curve. The LUT maps the
// input scaling to the output scaling; luminance is mapped and chroma
// scaled by the ratio, which preserves hue at the cost of some saturation
// accuracy near the peak.
func emitToneLUT(sb *shader.Builder, tp *tonemap.Params, lut []float32, buf []byte) {
	table := sb.BindBuffer("tone_lut", buf)
	lo := sb.Const("tm_lo", colorspace.Rescale(tp.InputMin, tp.InputScaling, colorspace.ScaleNominal))
	hi := sb.Const("tm_hi", colorspace.Rescale(tp.InputMax, tp.InputScaling, colorspace.ScaleNominal))
	n := sb.Const("tm_n", float64(len(lut)-1))
	sb.Append("{\nlet y = max(max(color.r, color.g), color.b);")
	sb.Append("let t = clamp((y - %s) / (%s - %s), 0.0, 1.0) * %s;", lo, hi, lo, n)
	sb.Append("let i0 = u32(floor(t));")
	sb.Append("let i1 = min(i0 + 1u, u32(%s));", n)
	sb.Append("let mapped = mix(%s[i0], %s[i1], t - floor(t));", table, table)
	sb.Append("color = vec4<f32>(color.rgb * (mapped / max(y, 1e-6)), color.a);\n}")
}

// Machado et al. severity-1.0 simulation matrices, linear RGB.
var colorBlindMatrices = map[ColorBlindMode]colorspace.Matrix3{
	ColorBlindProtanopia: {
		{0.152286, 1.052583, -0.204868},
		{0.114503, 0.786281, 0.099216},
		{-0.003882, -0.048116, 1.051998},
	},
	ColorBlindDeuteranopia: {
		{0.367322, 0.860646, -0.227968},
		{0.280085, 0.672501, 0.047413},
		{-0.011820, 0.042940, 0.968881},
	},
	ColorBlindTritanopia: {
		{1.255528, -0.076749, -0.178779},
		{-0.078411, 0.930809, 0.147602},
		{0.004733, 0.691367, 0.303900},
	},
}

func emitColorBlind(sb *shader.Builder, mode ColorBlindMode) {
	m, ok := colorBlindMatrices[mode]
	if !ok {
		return
	}
	emitMat3(sb, m, [3]float64{})
}

// emit3DLUT applies a CustomLUT with trilinear interpolation out of a
// storage buffer. Strength below 1 blends with the identity.
func emit3DLUT(sb *shader.Builder, l *CustomLUT, buf []byte) {
	table := sb.BindBuffer("lut3d", buf)
	n := sb.Const("lut_n", float64(l.Size))
	sb.Append("{\nlet q = clamp(color.rgb, vec3<f32>(0.0), vec3<f32>(1.0)) * (%s - 1.0);", n)
	sb.Append("let i0 = vec3<u32>(floor(q));")
	sb.Append("let i1 = min(i0 + vec3<u32>(1u), vec3<u32>(u32(%s) - 1u));", n)
	sb.Append("let f = q - floor(q);")
	sb.Append("let nn = u32(%s);", n)
	fetch := sb.Fresh("fetch")
	sb.Declare("fn %s(x: u32, y: u32, z: u32, nn: u32) -> u32 {\nreturn ((z * nn + y) * nn + x) * 3u;\n}", fetch)
	at := func(v, x, y, z string) {
		sb.Append("let base_%s = %s(%s, %s, %s, nn);", v, fetch, x, y, z)
		sb.Append("let %s = vec3<f32>(%s[base_%s], %s[base_%s + 1u], %s[base_%s + 2u]);",
			v, table, v, table, v, table, v)
	}
	at("c000", "i0.x", "i0.y", "i0.z")
	at("c100", "i1.x", "i0.y", "i0.z")
	at("c010", "i0.x", "i1.y", "i0.z")
	at("c110", "i1.x", "i1.y", "i0.z")
	at("c001", "i0.x", "i0.y", "i1.z")
	at("c101", "i1.x", "i0.y", "i1.z")
	at("c011", "i0.x", "i1.y", "i1.z")
	at("c111", "i1.x", "i1.y", "i1.z")
	sb.Append("let c00 = mix(c000, c100, f.x); let c10 = mix(c010, c110, f.x);")
	sb.Append("let c01 = mix(c001, c101, f.x); let c11 = mix(c011, c111, f.x);")
	sb.Append("let c0 = mix(c00, c10, f.y); let c1 = mix(c01, c11, f.y);")
	sb.Append("let lutted = mix(c0, c1, f.z);")
	strength := l.Strength
	if strength == 0 {
		strength = 1
	}
	sb.Append("color = vec4<f32>(mix(color.rgb, lutted, %s), color.a);\n}",
		sb.Const("lut_str", strength))
}
