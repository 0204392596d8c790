// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"encoding/binary"
	"math"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/shader"
)

// peakState smooths the effective source peak across frames. The per-frame
// peak comes from signalled metadata (scene maximum, MaxCLL, or mastering
// peak, in that order); smoothing evens out flickering metadata and a
// scene-cut heuristic resets history on hard brightness jumps.
type peakState struct {
	smoothed float64 // nominal units, 0 = no history
	frames   int
}

func (s *peakState) reset() { *s = peakState{} }

func (s *peakState) release(gpux.Device) { s.reset() }

// framePeak extracts the best signalled per-frame peak in nominal units.
func framePeak(sp colorspace.Space) float64 {
	hdr := &sp.HDR
	switch {
	case hdr.SceneMax[0] > 0 || hdr.SceneMax[1] > 0 || hdr.SceneMax[2] > 0:
		m := math.Max(hdr.SceneMax[0], math.Max(hdr.SceneMax[1], hdr.SceneMax[2]))
		return m / colorspace.ReferenceWhite
	case hdr.MaxCLL > 0:
		return hdr.MaxCLL / colorspace.ReferenceWhite
	case hdr.MaxLuma > 0:
		return hdr.MaxLuma / colorspace.ReferenceWhite
	default:
		return sp.Transfer.NominalPeak()
	}
}

// measurePeak reduces the realized image to its actual frame peak: one
// compute workgroup scans every pixel for the channel maximum, stores it
// into a 1x1 target and the result is read back. The image must be in
// linear light, so the value lands directly in nominal units. A zero
// return means the device produced nothing usable and the caller stays on
// signalled metadata.
func (p *pass) measurePeak(im *img) (float64, error) {
	if err := p.realize(im); err != nil {
		return 0, err
	}
	f, ok := p.r.dev.FindFormat(gpux.ClassFloat, 1, 32, gpux.CapStorable)
	if !ok {
		return 0, gpux.ErrNoFormat
	}
	dst, err := p.r.dev.CreateTexture(gpux.TextureParams{
		W: 1, H: 1,
		Format: f,
		Caps:   gpux.CapStorable,
		Label:  "vidre-peak",
	})
	if err != nil {
		return 0, err
	}
	defer p.r.dev.DestroyTexture(dst)

	sb := shader.New()
	src := sb.BindTexture("peak_src", im.tex, false)
	out := sb.BindStorage("peak_dst", dst)
	sb.Compute(1, 1, 0)
	sb.Append("var m = 0.0;")
	sb.Append("for (var y = 0; y < %d; y++) {", im.h)
	sb.Append("for (var x = 0; x < %d; x++) {", im.w)
	sb.Append("let c = textureSample(%s, vec2<f32>(f32(x) + 0.5, f32(y) + 0.5));", src)
	sb.Append("m = max(m, max(c.r, max(c.g, c.b)));")
	sb.Append("}")
	sb.Append("}")
	sb.Append("textureStore(%s, vec2<i32>(0, 0), vec4<f32>(m, 0.0, 0.0, 1.0));", out)
	prog, err := sb.Finalize()
	if err != nil {
		return 0, err
	}
	if err := p.r.dev.DispatchCompute(prog, 1, 1); err != nil {
		return 0, err
	}
	var buf [4]byte
	if err := p.r.dev.Download(dst, buf[:], 4); err != nil {
		return 0, err
	}
	m := float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[:])))
	if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
		return 0, nil
	}
	return m, nil
}

// update folds one frame's peak into the history and returns the smoothed
// effective peak.
func (s *peakState) update(pd *PeakDetectParams, peak float64) float64 {
	if peak <= 0 {
		return s.smoothed
	}
	if s.frames == 0 {
		s.smoothed = peak
		s.frames = 1
		return s.smoothed
	}
	if pd.SceneThreshold > 0 && s.smoothed > 0 {
		delta := math.Abs(peak-s.smoothed) / s.smoothed
		if delta > pd.SceneThreshold {
			s.smoothed = peak
			s.frames = 1
			return s.smoothed
		}
	}
	period := pd.SmoothingPeriod
	if period < 1 {
		period = 1
	}
	alpha := 1 / math.Min(float64(s.frames)+1, period)
	s.smoothed += alpha * (peak - s.smoothed)
	s.frames++
	return s.smoothed
}
