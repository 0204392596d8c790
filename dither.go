// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/shader"
)

// DitherMethod selects the output dithering algorithm.
type DitherMethod int

const (
	// DitherAuto picks ordered dithering for shallow targets and none
	// for deep (> 10 bit) ones.
	DitherAuto DitherMethod = iota

	// DitherNone disables dithering.
	DitherNone

	// DitherOrdered uses a bit-reversal Bayer pattern, stateless and
	// cheap.
	DitherOrdered

	// DitherWhiteNoise adds uniform noise, trading pattern artifacts
	// for grain.
	DitherWhiteNoise

	// DitherErrorDiffusion propagates quantization error to neighboring
	// pixels in a compute pass. Highest quality, needs shared memory;
	// falls back to ordered when the device budget is too small.
	DitherErrorDiffusion
)

// DitherParams configures output dithering.
type DitherParams struct {
	Method DitherMethod

	// LUTSize is the Bayer matrix edge exponent for DitherOrdered,
	// 1-8. Zero means 4 (a 16x16 matrix).
	LUTSize int

	// Kernel picks the error diffusion kernel. Nil means Sierra Lite.
	Kernel *DiffusionKernel
}

// DiffusionKernel is an error diffusion weight stencil. Weights are
// expressed over the scanned neighborhood, shift is the divisor exponent.
type DiffusionKernel struct {
	Name string

	// Taps are (dx, dy, weight) triples with dy >= 0 and, for dy == 0,
	// dx > 0; weights are divided by 2^Shift.
	Taps []DiffusionTap

	Shift int
}

type DiffusionTap struct {
	DX, DY, Weight int
}

// Built-in diffusion kernels.
var (
	KernelSimple = &DiffusionKernel{
		Name:  "simple",
		Taps:  []DiffusionTap{{1, 0, 1}},
		Shift: 0,
	}

	KernelSierraLite = &DiffusionKernel{
		Name:  "sierra-lite",
		Taps:  []DiffusionTap{{1, 0, 2}, {-1, 1, 1}, {0, 1, 1}},
		Shift: 2,
	}

	KernelFloydSteinberg = &DiffusionKernel{
		Name:  "floyd-steinberg",
		Taps:  []DiffusionTap{{1, 0, 7}, {-1, 1, 3}, {0, 1, 5}, {1, 1, 1}},
		Shift: 4,
	}
)

// ditherState is a placeholder for GPU-side dither resources (none are
// cached at present; the Bayer pattern is computed in-shader).
type ditherState struct{}

func (ditherState) release(gpux.Device) {}

// ditherDepth resolves the effective target depth for dither scaling.
func ditherDepth(depth int) int {
	if depth <= 0 {
		return 8
	}
	return depth
}

// emitDither appends ordered or white-noise dithering ahead of output
// quantization to the given bit depth. Error diffusion runs elsewhere (as
// a compute pass); callers that requested it but lost the feature land
// here with DitherOrdered.
func emitDither(sb *shader.Builder, d *DitherParams, depth int) {
	method := DitherAuto
	lutSize := 4
	if d != nil {
		method = d.Method
		if d.LUTSize >= 1 && d.LUTSize <= 8 {
			lutSize = d.LUTSize
		}
	}
	if method == DitherAuto {
		if depth > 10 {
			method = DitherNone
		} else {
			method = DitherOrdered
		}
	}
	if method == DitherNone {
		return
	}
	scale := sb.Const("dither_scale", 1/float64(uint64(1)<<depth-1))

	switch method {
	case DitherWhiteNoise:
		rand := emitPRNG(sb, "pos", 0x9e3779b9)
		sb.Append("color = vec4<f32>(color.rgb + vec3<f32>(%s() - 0.5) * %s, color.a);",
			rand, scale)
	default:
		fn := emitBayer(sb, lutSize)
		sb.Append("color = vec4<f32>(color.rgb + vec3<f32>(%s(vec2<u32>(u32(pos.x), u32(pos.y))) - 0.5) * %s, color.a);",
			fn, scale)
	}
}

// emitBayer declares a procedural Bayer threshold function of the given
// size exponent (matrix edge = 2^size), returning values in [0, 1).
func emitBayer(sb *shader.Builder, size int) string {
	fn := sb.Fresh("bayer")
	sb.Declare("fn %s(p: vec2<u32>) -> f32 {\n"+
		"var x = p.x %% %du;\n"+
		"var y = p.y %% %du;\n"+
		"var v = 0u;\n"+
		"for (var i = 0; i < %d; i++) {\n"+
		"v = (v << 2u) | ((x & 1u) ^ (y & 1u)) << 1u | (y & 1u);\n"+
		"x >>= 1u;\ny >>= 1u;\n}\n"+
		"return f32(v) / %d.0;\n}",
		fn, 1<<size, 1<<size, size, 1<<(2*size))
	return fn
}

// errorDiffusionBudget reports whether the device can run error diffusion
// for an image of the given height: the compute pass runs one workgroup
// carrying two rows of running error per component in shared memory.
func errorDiffusionBudget(maxSharedMem, width int) bool {
	// two rows x 3 components x 4 bytes, plus slack
	need := 2*3*4*width + 256
	return maxSharedMem >= need
}

// runErrorDiffusion quantizes the image at the given depth, propagating
// the quantization error with the kernel. The pass is inherently serial,
// so a single workgroup walks the image in scanline order keeping two rows
// of running error in workgroup memory. On success the image is replaced
// by the quantized result; the final output pass then copies it without
// further dithering.
func runErrorDiffusion(p *pass, im *img, k *DiffusionKernel, depth int) error {
	if err := p.realize(im); err != nil {
		return err
	}
	if k == nil {
		k = KernelSierraLite
	}
	w, h := im.w, im.h
	f, ok := p.fboFormatFor(im.comps)
	if !ok || !f.caps.Has(gpux.CapStorable) {
		return ErrNoFBOFormat
	}
	dstTex, err := p.r.fbos.acquire(p.r.dev, w, h, f)
	if err != nil {
		return err
	}

	sb := shader.New()
	src := sb.BindTexture("ed_src", im.tex, false)
	dst := sb.BindStorage("ed_dst", dstTex)
	sb.Compute(1, 1, 2*3*4*w+256)

	q := sb.Const("ed_q", float64(uint64(1)<<depth-1))
	sb.Declare("var<workgroup> ed_err: array<array<vec3<f32>, %d>, 2>;", w)
	sb.Append("for (var y = 0; y < %d; y++) {", h)
	sb.Append("for (var x = 0; x < %d; x++) {", w)
	sb.Append("let c = textureSample(%s, vec2<f32>(f32(x) + 0.5, f32(y) + 0.5));", src)
	sb.Append("let v = c.rgb + ed_err[y %% 2][x];")
	sb.Append("ed_err[y %% 2][x] = vec3<f32>(0.0);")
	sb.Append("let quant = round(clamp(v, vec3<f32>(0.0), vec3<f32>(1.0)) * %s) / %s;", q, q)
	sb.Append("let e = v - quant;")
	for _, tap := range k.Taps {
		row := "y %% 2"
		if tap.DY == 1 {
			row = "(y + 1) %% 2"
		}
		sb.Append("if x + %d >= 0 && x + %d < %d { ed_err[%s][x + %d] += e * %g; }",
			tap.DX, tap.DX, w, row, tap.DX, float64(tap.Weight)/float64(int(1)<<k.Shift))
	}
	sb.Append("textureStore(%s, vec2<i32>(x, y), vec4<f32>(quant, c.a));", dst)
	sb.Append("}")
	sb.Append("}")

	prog, err := sb.Finalize()
	if err != nil {
		return err
	}
	if err := p.r.dev.DispatchCompute(prog, 1, 1); err != nil {
		return err
	}
	im.tex = dstTex
	im.rect = RectWH(float64(w), float64(h))
	return nil
}
