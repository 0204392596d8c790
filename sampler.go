// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/vidre/internal/shader"
)

// FilterKernel is a windowless filter kernel, evaluated over [0, radius].
type FilterKernel func(x float64) float64

// FilterConfig names a scaling filter. Configs are value-compared by Name
// and Radius when hashing render parameters.
type FilterConfig struct {
	// Name identifies the filter; FilterByName resolves it.
	Name string

	// Kernel is the weight function. Nil means a built-in sampling path
	// (nearest or bilinear).
	Kernel FilterKernel

	// Radius is the kernel support in source pixels.
	Radius float64

	// Polar evaluates the kernel over the 2D euclidean distance in one
	// dispatch instead of two separable 1D dispatches.
	Polar bool

	// Oversample snaps to the nearest source pixel except at edges,
	// used mainly as a frame mixer for judder-free reproduction.
	Oversample bool
}

func sinc(x float64) float64 {
	if x == 0 {
		return 1
	}
	x *= math.Pi
	return math.Sin(x) / x
}

// Built-in filters. Bilinear and nearest use the device's native sampling;
// the rest run as generated convolutions.
var (
	FilterNearest  = &FilterConfig{Name: "nearest"}
	FilterBilinear = &FilterConfig{Name: "bilinear"}

	FilterHermite = &FilterConfig{Name: "hermite", Radius: 1,
		Kernel: func(x float64) float64 { return (2*x - 3) * x * x + 1 }}

	FilterBicubic = &FilterConfig{Name: "bicubic", Radius: 2,
		Kernel: func(x float64) float64 {
			// Catmull-Rom.
			if x < 1 {
				return 1.5*x*x*x - 2.5*x*x + 1
			}
			return -0.5*x*x*x + 2.5*x*x - 4*x + 2
		}}

	FilterMitchell = &FilterConfig{Name: "mitchell", Radius: 2,
		Kernel: func(x float64) float64 {
			const b, c = 1.0 / 3, 1.0 / 3
			if x < 1 {
				return ((12-9*b-6*c)*x*x*x + (-18+12*b+6*c)*x*x + (6 - 2*b)) / 6
			}
			return ((-b-6*c)*x*x*x + (6*b+30*c)*x*x + (-12*b-48*c)*x + (8*b + 24*c)) / 6
		}}

	FilterLanczos = &FilterConfig{Name: "lanczos", Radius: 3,
		Kernel: func(x float64) float64 { return sinc(x) * sinc(x/3) }}

	FilterGaussian = &FilterConfig{Name: "gaussian", Radius: 2,
		Kernel: func(x float64) float64 { return math.Exp(-2 * x * x) }}

	FilterEWALanczos = &FilterConfig{Name: "ewa-lanczos", Radius: 3.2383154841662362, Polar: true,
		Kernel: func(x float64) float64 { return sinc(x) * sinc(x/3.2383154841662362) }}

	FilterOversample = &FilterConfig{Name: "oversample", Oversample: true}
)

// Filters lists the built-in filter configs in lookup order.
var Filters = []*FilterConfig{
	FilterNearest, FilterBilinear, FilterHermite, FilterBicubic,
	FilterMitchell, FilterLanczos, FilterGaussian, FilterEWALanczos,
	FilterOversample,
}

// FilterByName resolves a built-in filter config, nil when unknown.
func FilterByName(name string) *FilterConfig {
	for _, f := range Filters {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// scaleEps is the relative tolerance under which a scale ratio counts as
// 1:1 and scaling is skipped.
const scaleEps = 1e-6

// scaleDir classifies one axis: -1 downscaling, 0 none, +1 upscaling.
func scaleDir(srcLen, dstLen float64) int {
	ratio := dstLen / srcLen
	switch {
	case ratio < 1-scaleEps:
		return -1
	case ratio > 1+scaleEps:
		return 1
	default:
		return 0
	}
}

// pickScaler selects the filter for a source-to-destination mapping.
// A nil return means scaling is unnecessary. Downscaling on either axis
// wins over upscaling on the other.
func (p *pass) pickScaler(src Rect, dstW, dstH float64, plane bool) *FilterConfig {
	dx := scaleDir(src.W(), dstW)
	dy := scaleDir(src.H(), dstH)
	if dx == 0 && dy == 0 {
		subpixel := src.X0 != math.Trunc(src.X0) || src.Y0 != math.Trunc(src.Y0)
		if !subpixel || !p.params.CorrectSubpixelOffsets {
			return nil
		}
		dx = 1
	}
	var cfg *FilterConfig
	if dx < 0 || dy < 0 {
		cfg = p.params.Downscaler
		if plane && p.params.PlaneDownscaler != nil {
			cfg = p.params.PlaneDownscaler
		}
		if cfg == nil {
			cfg = FilterHermite
		}
	} else {
		cfg = p.params.Upscaler
		if plane && p.params.PlaneUpscaler != nil {
			cfg = p.params.PlaneUpscaler
		}
		if cfg == nil {
			cfg = FilterBilinear
		}
	}
	return cfg
}

// scaleTo resamples im's active region to dstW x dstH using cfg. The
// result is a deferred shader sampling from the realized source. Custom
// kernels require FBOs and the sampling feature; without them the filter
// degrades to direct (bi)linear sampling.
func (p *pass) scaleTo(im *img, dstW, dstH int, cfg *FilterConfig) error {
	if err := p.realize(im); err != nil {
		return err
	}
	src := im.rect
	direct := cfg == nil || cfg.Kernel == nil && !cfg.Oversample
	if p.params.DisableBuiltinSampling && cfg != nil && (cfg.Kernel != nil || cfg.Oversample) {
		direct = false
	}
	// The feature check comes last: once sampling is deny-listed nothing
	// may dispatch a generated convolution, DisableBuiltinSampling included.
	if !p.r.enabled(FeatureSampling) {
		direct = true
	}

	if direct {
		linear := cfg == nil || cfg.Name != "nearest"
		sb := shader.New()
		pos := samplePos(sb, src, float64(dstW), float64(dstH))
		tex := sb.BindTexture("src", im.tex, linear)
		sb.Append("color = textureSample(%s, %s);", tex, pos)
		padComponents(sb, im.comps)
		im.sb, im.tex = sb, nil
		im.w, im.h = dstW, dstH
		return nil
	}

	if cfg.Oversample {
		sb := genOversample(im, src, dstW, dstH)
		im.sb, im.tex = sb, nil
		im.w, im.h = dstW, dstH
		return nil
	}

	if cfg.Polar {
		sb := genConvolution(im, src, dstW, dstH, cfg, p.params.Antiringing, convPolar)
		im.sb, im.tex = sb, nil
		im.w, im.h = dstW, dstH
		return nil
	}

	// Separable: horizontal pass into an FBO, then vertical.
	mid := *im
	mid.sb = genConvolution(im, src, dstW, im.h, cfg, p.params.Antiringing, convHorizontal)
	mid.tex = nil
	mid.w, mid.h = dstW, im.h
	if err := p.realize(&mid); err != nil {
		return err
	}
	sb := genConvolution(&mid, mid.rect, dstW, dstH, cfg, p.params.Antiringing, convVertical)
	*im = mid
	im.sb, im.tex = sb, nil
	im.w, im.h = dstW, dstH
	return nil
}

type convAxis int

const (
	convHorizontal convAxis = iota
	convVertical
	convPolar
)

// kernelLUTSize is the sampled resolution of a kernel weight table.
const kernelLUTSize = 256

func kernelLUT(cfg *FilterConfig) []byte {
	buf := make([]byte, kernelLUTSize*4)
	for i := 0; i < kernelLUTSize; i++ {
		x := cfg.Radius * float64(i) / float64(kernelLUTSize-1)
		w := cfg.Kernel(x)
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(w)))
	}
	return buf
}

// genConvolution emits a convolution shader for one axis (or polar, both
// at once). Downscaling widens the effective radius by the scale ratio so
// the kernel covers the full source footprint.
func genConvolution(im *img, src Rect, dstW, dstH int, cfg *FilterConfig, antiring float64, axis convAxis) *shader.Builder {
	sb := shader.New()
	pos := samplePos(sb, src, float64(dstW), float64(dstH))
	tex := sb.BindTexture("src", im.tex, false)
	lut := sb.BindBuffer("kernel", kernelLUT(cfg))

	stretchX := src.W() / float64(dstW)
	stretchY := src.H() / float64(dstH)
	rx, ry := cfg.Radius, cfg.Radius
	if stretchX > 1 {
		rx *= stretchX
	}
	if stretchY > 1 {
		ry *= stretchY
	}

	radX := sb.Const("rad_x", rx)
	radY := sb.Const("rad_y", ry)
	invRad := sb.Const("inv_rad", 1/cfg.Radius)
	// Distances are rescaled into kernel space before the table lookup.
	scX := sb.Const("ksc_x", math.Max(stretchX, 1))
	scY := sb.Const("ksc_y", math.Max(stretchY, 1))
	n := sb.Const("lutmax", float64(kernelLUTSize-1))

	acc := sb.Fresh("acc")
	wsum := sb.Fresh("wsum")
	lo := sb.Fresh("lo")
	hi := sb.Fresh("hi")
	sb.Append("var %s = vec4<f32>(0.0);", acc)
	sb.Append("var %s = 0.0;", wsum)
	sb.Append("var %s = vec4<f32>(1e30);", lo)
	sb.Append("var %s = vec4<f32>(-1e30);", hi)

	weight := func(dist string) string {
		w := sb.Fresh("w")
		sb.Append("let %s = %s[u32(clamp(%s * %s, 0.0, 1.0) * %s)];",
			w, lut, dist, invRad, n)
		return w
	}
	tap := func(coord, w string) {
		c := sb.Fresh("c")
		sb.Append("let %s = textureSample(%s, %s);", c, tex, coord)
		sb.Append("%s += %s * %s;", acc, w, c)
		sb.Append("%s += %s;", wsum, w)
		sb.Append("if %s > 0.0 { %s = min(%s, %s); %s = max(%s, %s); }",
			w, lo, lo, c, hi, hi, c)
	}

	i := sb.Fresh("i")
	switch axis {
	case convHorizontal:
		sb.Append("let base = floor(%s.x - 0.5) + 0.5;", pos)
		sb.Append("for (var %s = -ceil(%s); %s <= ceil(%s); %s += 1.0) {", i, radX, i, radX, i)
		sb.Append("let sx = base + %s;", i)
		d := sb.Fresh("d")
		sb.Append("let %s = abs(sx - %s.x) / %s;", d, pos, scX)
		w := weight(d)
		tap("vec2<f32>(sx, "+pos+".y)", w)
		sb.Append("}")
	case convVertical:
		sb.Append("let base = floor(%s.y - 0.5) + 0.5;", pos)
		sb.Append("for (var %s = -ceil(%s); %s <= ceil(%s); %s += 1.0) {", i, radY, i, radY, i)
		sb.Append("let sy = base + %s;", i)
		d := sb.Fresh("d")
		sb.Append("let %s = abs(sy - %s.y) / %s;", d, pos, scY)
		w := weight(d)
		tap("vec2<f32>("+pos+".x, sy)", w)
		sb.Append("}")
	case convPolar:
		j := sb.Fresh("j")
		sb.Append("let base = floor(%s - vec2<f32>(0.5)) + vec2<f32>(0.5);", pos)
		sb.Append("for (var %s = -ceil(%s); %s <= ceil(%s); %s += 1.0) {", j, radY, j, radY, j)
		sb.Append("for (var %s = -ceil(%s); %s <= ceil(%s); %s += 1.0) {", i, radX, i, radX, i)
		sb.Append("let sp = base + vec2<f32>(%s, %s);", i, j)
		d := sb.Fresh("d")
		sb.Append("let %s = length((sp - %s) / vec2<f32>(%s, %s));", d, pos, scX, scY)
		sb.Append("if %s <= %s {", d, sb.Const("polar_r", cfg.Radius))
		w := weight(d)
		tap("sp", w)
		sb.Append("}")
		sb.Append("}")
		sb.Append("}")
	}

	sb.Append("color = %s / max(%s, 1e-6);", acc, wsum)
	if antiring > 0 && axis != convHorizontal {
		ar := sb.Const("antiring", antiring)
		sb.Append("color = mix(color, clamp(color, %s, %s), %s);", lo, hi, ar)
	}
	padComponents(sb, im.comps)
	return sb
}

// genOversample snaps each output pixel to the nearest source pixel, but
// linearly interpolates across source pixel boundaries so edges stay
// non-jittering at arbitrary ratios.
func genOversample(im *img, src Rect, dstW, dstH int) *shader.Builder {
	sb := shader.New()
	pos := samplePos(sb, src, float64(dstW), float64(dstH))
	tex := sb.BindTexture("src", im.tex, true)
	fx := sb.Const("fx", float64(dstW) / src.W())
	fy := sb.Const("fy", float64(dstH) / src.H())
	coord := sb.Fresh("coord")
	sb.Append("let cell = floor(%s - vec2<f32>(0.5)) + vec2<f32>(0.5);", pos)
	sb.Append("let frac = %s - cell;", pos)
	sb.Append("let %s = cell + clamp(frac * vec2<f32>(%s, %s), vec2<f32>(-0.5), vec2<f32>(0.5));",
		coord, fx, fy)
	sb.Append("color = textureSample(%s, %s);", tex, coord)
	padComponents(sb, im.comps)
	return sb
}
