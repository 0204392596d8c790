// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"hash/fnv"
	"math"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/tonemap"
)

// lutState caches the generated tone mapping LUT between frames; the
// key digests the resolved parameters, so static content costs one
// comparison per frame.
type lutState struct {
	key uint64
	lut []float32
}

func (s *lutState) release(gpux.Device) { *s = lutState{} }

func (s *lutState) ensure(tp *tonemap.Params) []float32 {
	key := toneKey(tp)
	if s.key != key || s.lut == nil {
		s.lut = tp.Generate()
		s.key = key
	}
	return s.lut
}

func toneKey(tp *tonemap.Params) uint64 {
	h := fnv.New64a()
	put := func(v float64) {
		var b [8]byte
		bits := math.Float64bits(v)
		for i := range b {
			b[i] = byte(bits >> (8 * i))
		}
		h.Write(b[:])
	}
	if tp.Function != nil {
		h.Write([]byte(tp.Function.Name))
	}
	put(tp.Param)
	put(tp.InputMin)
	put(tp.InputMax)
	put(tp.InputAvg)
	put(tp.OutputMin)
	put(tp.OutputMax)
	put(float64(tp.LUTSize))
	put(tp.Constants.KneeAdaptation)
	put(tp.Constants.KneeDefault)
	put(tp.Constants.KneeOffset)
	put(tp.Constants.SplineContrast)
	put(tp.Constants.ReinhardContrast)
	put(tp.Constants.LinearKnee)
	put(tp.Constants.Exposure)
	put(tp.HDR.SceneAvg)
	for _, v := range tp.HDR.SceneMax {
		put(v)
	}
	for _, v := range tp.HDR.OOTF {
		put(v)
	}
	return h.Sum64()
}

// colorStage adapts the scaled image from the source color space to the
// target's: peak detection, gamut conversion, tone mapping, contrast
// recovery, color blindness simulation, normalized/conversion LUTs, and
// final delinearization into the target transfer.
func (p *pass) colorStage(im *img, f *Frame, target *Frame) {
	srcSpace := im.space
	dstSpace := target.Space
	dstTransfer := dstSpace.Transfer
	if len(target.ICC) > 0 && p.r.enabled(FeatureICC) {
		if t, ok := p.r.cachedICCTransfer(target.ICC); ok {
			dstTransfer = t
		}
	}

	lut := f.LUT
	if lut == nil {
		lut = p.params.LUT
	}
	conversionLUT := lut != nil && lut.Type == LUTConversion && p.r.enabled(FeatureLUTs)

	sameSpace := srcSpace.Primaries == dstSpace.Primaries &&
		srcSpace.Transfer == dstTransfer &&
		srcSpace.HDR.Equal(&dstSpace.HDR)
	needsColor := !sameSpace || conversionLUT ||
		p.params.ColorBlind != ColorBlindNone ||
		(lut != nil && lut.Type == LUTNormalized)
	if !needsColor && !im.linear {
		return
	}

	if !im.linear {
		emitLinearize(im.builder(p), srcSpace.Transfer)
		im.linear = true
	}

	// Effective source peak: the GPU measurement when one ran this pass,
	// signalled metadata otherwise, folded through the smoothing history.
	srcPeak := framePeak(srcSpace)
	if pd := p.params.PeakDetect; pd != nil && srcSpace.Transfer.IsHDR() && p.r.enabled(FeaturePeakDetect) {
		peak := framePeak(srcSpace)
		if p.measuredPeak > 0 {
			peak = p.measuredPeak
		}
		if pd.Percentile > 0 && pd.Percentile < 100 {
			floor := srcSpace.HDR.SceneAvg / colorspace.ReferenceWhite
			peak = math.Max(peak*pd.Percentile/100, floor)
		}
		srcPeak = p.r.peak.update(pd, peak)
	}

	if conversionLUT {
		// A conversion LUT replaces the whole color transform; its
		// output is already target encoded.
		p.tryStage(im, FeatureLUTs, func(im *img) error {
			sb := im.builder(p)
			if lut.InputTransfer != colorspace.TransferUnknown {
				emitDelinearize(sb, lut.InputTransfer)
			}
			emit3DLUT(sb, lut, p.stageFloats(lut.Data))
			return nil
		})
		im.linear = false
		im.space = dstSpace
		return
	}

	if srcSpace.Primaries != dstSpace.Primaries &&
		srcSpace.Primaries != colorspace.PrimariesUnknown &&
		dstSpace.Primaries != colorspace.PrimariesUnknown {
		m := colorspace.ConversionMatrix(srcSpace.Primaries, dstSpace.Primaries)
		emitMat3(im.builder(p), m, [3]float64{})
	}

	p.toneMapStage(im, f, srcSpace, dstSpace, dstTransfer, srcPeak)

	if lut != nil && lut.Type == LUTNormalized && p.r.enabled(FeatureLUTs) {
		p.tryStage(im, FeatureLUTs, func(im *img) error {
			sb := im.builder(p)
			// Normalize to the output peak so the cube covers [0, 1].
			dstPeak := dstTransfer.NominalPeak() / colorspace.ReferenceWhite
			inv := sb.Const("lut_norm", 1/dstPeak)
			fwd := sb.Const("lut_denorm", dstPeak)
			sb.Append("color = vec4<f32>(color.rgb * %s, color.a);", inv)
			emit3DLUT(sb, lut, p.stageFloats(lut.Data))
			sb.Append("color = vec4<f32>(color.rgb * %s, color.a);", fwd)
			return nil
		})
	}

	if p.params.ColorBlind != ColorBlindNone {
		emitColorBlind(im.builder(p), p.params.ColorBlind)
	}

	emitDelinearize(im.builder(p), dstTransfer)
	im.linear = false
	im.space = dstSpace
	im.space.Transfer = dstSpace.Transfer
}

// toneMapStage compresses the luminance range from source to target, with
// optional contrast recovery blending back high-frequency detail lost to
// the curve.
func (p *pass) toneMapStage(im *img, f *Frame, srcSpace, dstSpace colorspace.Space, dstTransfer colorspace.Transfer, srcPeak float64) {
	tp := tonemap.Params{}
	if p.params.ToneMapping != nil {
		tp = *p.params.ToneMapping
	}
	if p.params.ToneLUTSize > 0 {
		tp.LUTSize = p.params.ToneLUTSize
	}
	tp.InputScaling = colorspace.ScaleNominal
	tp.OutputScaling = colorspace.ScaleNominal
	tp.InputMax = srcPeak
	tp.InputMin = srcSpace.HDR.MinLuma / colorspace.ReferenceWhite
	if srcSpace.HDR.SceneAvg > 0 {
		tp.InputAvg = srcSpace.HDR.SceneAvg / colorspace.ReferenceWhite
	}
	tp.OutputMax = dstTransfer.NominalPeak() / colorspace.ReferenceWhite
	if dstSpace.HDR.MaxLuma > 0 {
		tp.OutputMax = dstSpace.HDR.MaxLuma / colorspace.ReferenceWhite
	}
	tp.OutputMin = dstSpace.HDR.MinLuma / colorspace.ReferenceWhite
	tp.HDR = srcSpace.HDR
	tp.Infer()
	if tp.IsNoop() {
		return
	}

	// Contrast recovery needs the pre-mapping image and its low-pass to
	// measure the detail the curve flattens.
	cr := p.params.ContrastRecovery
	var orig, low img
	if cr > 0 && p.r.enabled(FeatureContrastRecovery) {
		p.tryStage(im, FeatureContrastRecovery, func(im *img) error {
			var err error
			low, err = p.lowpass(im)
			if err == nil {
				orig = *im
			}
			return err
		})
	}

	lut := p.r.toneLUT.ensure(&tp)
	emitToneLUT(im.builder(p), &tp, lut, p.stageFloats(lut))

	if cr > 0 && orig.tex != nil && low.tex != nil {
		p.tryStage(im, FeatureContrastRecovery, func(im *img) error {
			sb := im.builder(p)
			origTex := sb.BindTexture("cr_orig", orig.tex, false)
			lowTex := sb.BindTexture("cr_low", low.tex, true)
			origPos := samplePos(sb, orig.rect, float64(im.w), float64(im.h))
			lowPos := samplePos(sb, low.rect, float64(im.w), float64(im.h))
			str := sb.Const("cr_str", math.Min(cr, 2))
			sb.Append("{\nlet fullc = textureSample(%s, %s);", origTex, origPos)
			sb.Append("let lowc = textureSample(%s, %s);", lowTex, lowPos)
			sb.Append("let detail = fullc.rgb - lowc.rgb;")
			sb.Append("color = vec4<f32>(max(color.rgb + detail * %s, vec3<f32>(0.0)), color.a);\n}", str)
			return nil
		})
	}
}

// lowpass renders a half-resolution copy of the image for the contrast
// recovery detail estimate.
func (p *pass) lowpass(im *img) (img, error) {
	if err := p.realize(im); err != nil {
		return img{}, err
	}
	low := *im
	if err := p.scaleTo(&low, max(im.w/2, 1), max(im.h/2, 1), FilterBilinear); err != nil {
		return img{}, err
	}
	if err := p.realize(&low); err != nil {
		return img{}, err
	}
	return low, nil
}
