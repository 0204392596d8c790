// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"hash/fnv"
	"math"

	"github.com/gogpu/vidre/tonemap"
)

// DebandParams configures the debanding pre-filter.
type DebandParams struct {
	// Iterations is the number of debanding steps, 1-4.
	Iterations int

	// Threshold is the cut-off between banding and detail, in 1/255
	// units.
	Threshold float64

	// Radius is the sampling radius in pixels.
	Radius float64

	// Grain is the amount of masking noise added after filtering.
	Grain float64
}

// SigmoidParams configures sigmoidization around upscaling, which reduces
// ringing by compressing the working range before the scaler runs.
type SigmoidParams struct {
	// Center is the luminance the curve is centered on, (0, 1).
	Center float64

	// Slope is the curve steepness, [1, 20].
	Slope float64
}

// PeakDetectParams configures HDR peak detection.
type PeakDetectParams struct {
	// SmoothingPeriod is the exponential averaging period in frames.
	SmoothingPeriod float64

	// SceneThreshold is the relative brightness change treated as a
	// scene cut, resetting the smoothing. Zero disables cut detection.
	SceneThreshold float64

	// Percentile selects the brightness percentile regarded as the true
	// peak; zero means the absolute maximum.
	Percentile float64
}

// ColorBlindMode selects a color vision deficiency simulation.
type ColorBlindMode int

const (
	ColorBlindNone ColorBlindMode = iota
	ColorBlindProtanopia
	ColorBlindDeuteranopia
	ColorBlindTritanopia
)

// BackgroundMode selects what shows behind transparent output.
type BackgroundMode int

const (
	// BackgroundColor fills with a solid color.
	BackgroundColor BackgroundMode = iota

	// BackgroundCheckerboard fills with two-color tiles.
	BackgroundCheckerboard
)

// BackgroundParams configures background compositing, used when the
// target cannot carry alpha or blending is requested explicitly.
type BackgroundParams struct {
	Mode BackgroundMode

	// Color is the fill (and first tile) color, linear RGB.
	Color [3]float64

	// TileColor is the second checkerboard color.
	TileColor [3]float64

	// TileSize is the checkerboard pitch in pixels.
	TileSize int
}

// RenderParams configures one render call. The zero value of most fields
// means "renderer default"; DefaultRenderParams returns a fully populated
// baseline.
type RenderParams struct {
	// Upscaler and Downscaler pick the main scaling filters. Nil selects
	// built-in bilinear (up) and hermite (down).
	Upscaler, Downscaler *FilterConfig

	// PlaneUpscaler and PlaneDownscaler override scaling of individual
	// (chroma/alpha) planes; nil inherits the main scalers.
	PlaneUpscaler, PlaneDownscaler *FilterConfig

	// FrameMixer enables temporal frame mixing. Nil means zero-order
	// hold (nearest frame only).
	FrameMixer *FilterConfig

	// FrameMixThreshold culls oversample-mixer contributions below this
	// fraction of a vsync, [0, 1).
	FrameMixThreshold float64

	// Antiringing attenuates scaler overshoot, [0, 1].
	Antiringing float64

	// CorrectSubpixelOffsets forces a real scaler for fractional
	// source/target misalignment even at 1:1 scale.
	CorrectSubpixelOffsets bool

	// Deband enables debanding when non-nil.
	Deband *DebandParams

	// Sigmoid enables sigmoidization for upscaling when non-nil;
	// ignored for HDR content and low-depth outputs.
	Sigmoid *SigmoidParams

	// PeakDetect enables HDR peak detection when non-nil.
	PeakDetect *PeakDetectParams

	// ToneMapping selects the tone mapping curve and constants. The
	// renderer fills the range fields per frame. Nil uses defaults.
	ToneMapping *tonemap.Params

	// ToneLUTSize overrides the tone mapping LUT resolution.
	ToneLUTSize int

	// ContrastRecovery blends detail from a feature map back in after
	// tone mapping, [0, 2]. Zero disables.
	ContrastRecovery float64

	// ColorBlind applies a color vision deficiency simulation.
	ColorBlind ColorBlindMode

	// LUT applies a custom conversion LUT on top of (or instead of,
	// for LUTConversion) the color pipeline.
	LUT *CustomLUT

	// Dither configures output dithering. Nil auto-selects by target
	// depth.
	Dither *DitherParams

	// Background configures compositing behind transparent content.
	Background BackgroundParams

	// CornerRadius rounds the output corners, in fractions of the
	// smaller output dimension, [0, 1].
	CornerRadius float64

	// BlendAgainstTiles forces background compositing even when the
	// target could store alpha.
	BlendAgainstTiles bool

	// Deinterlace enables deinterlacing when frames carry triptychs.
	Deinterlace bool

	// Hooks are user shader-injection callbacks, run at their declared
	// stages in order.
	Hooks []Hook

	// SkipCaching opts the frame mixing cache out of strict reuse
	// validation (size, crop, params, color space).
	SkipCaching bool

	// DisableBuiltinSampling forbids the fast built-in sampling paths,
	// forcing custom convolution (mainly for testing filters).
	DisableBuiltinSampling bool

	// DisableFBOs forbids intermediate textures, degrading everything
	// to single-pass direct rendering.
	DisableFBOs bool

	// DisableLinearScaling skips linearization before scaling.
	DisableLinearScaling bool
}

// DefaultRenderParams returns the baseline parameter set: bilinear/hermite
// scaling, ordered-or-error-diffusion dithering by depth, no optional
// filters.
func DefaultRenderParams() *RenderParams {
	return &RenderParams{
		Antiringing:       0,
		FrameMixThreshold: 0,
	}
}

// Hash digests every parameter that affects cached frame renders. Frame
// mixing uses it to decide whether a cached frame is still valid under the
// current parameters.
func (p *RenderParams) Hash() uint64 {
	h := fnv.New64a()
	u64 := func(v uint64) {
		var b [8]byte
		for i := range b {
			b[i] = byte(v >> (8 * i))
		}
		h.Write(b[:])
	}
	f64 := func(v float64) { u64(math.Float64bits(v)) }
	str := func(s string) { h.Write([]byte(s)); h.Write([]byte{0}) }
	cfg := func(c *FilterConfig) {
		if c == nil {
			str("")
			return
		}
		str(c.Name)
		f64(c.Radius)
		if c.Polar {
			u64(1)
		} else {
			u64(0)
		}
	}

	cfg(p.Upscaler)
	cfg(p.Downscaler)
	cfg(p.PlaneUpscaler)
	cfg(p.PlaneDownscaler)
	f64(p.Antiringing)
	if p.CorrectSubpixelOffsets {
		u64(1)
	}
	if d := p.Deband; d != nil {
		u64(uint64(d.Iterations))
		f64(d.Threshold)
		f64(d.Radius)
		f64(d.Grain)
	}
	if s := p.Sigmoid; s != nil {
		f64(s.Center)
		f64(s.Slope)
	}
	if t := p.ToneMapping; t != nil {
		if t.Function != nil {
			str(t.Function.Name)
		}
		f64(t.Param)
		f64(t.Constants.KneeAdaptation)
		f64(t.Constants.KneeDefault)
		f64(t.Constants.KneeOffset)
		f64(t.Constants.SplineContrast)
		f64(t.Constants.ReinhardContrast)
		f64(t.Constants.LinearKnee)
		f64(t.Constants.Exposure)
	}
	u64(uint64(p.ToneLUTSize))
	f64(p.ContrastRecovery)
	u64(uint64(p.ColorBlind))
	u64(p.LUT.hash())
	if d := p.Dither; d != nil {
		u64(uint64(d.Method))
		u64(uint64(d.LUTSize))
	}
	u64(uint64(p.Background.Mode))
	f64(p.Background.Color[0])
	f64(p.Background.Color[1])
	f64(p.Background.Color[2])
	f64(p.CornerRadius)
	if p.DisableLinearScaling {
		u64(1)
	}
	if p.DisableBuiltinSampling {
		u64(1)
	}
	for _, hk := range p.Hooks {
		str(hk.Signature())
	}
	return h.Sum64()
}
