// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"errors"
	"math"
	"testing"

	"github.com/gogpu/vidre/backend/soft"
	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/gpux"
)

func TestFramePeakPriority(t *testing.T) {
	rw := colorspace.ReferenceWhite

	sp := colorspace.Space{Transfer: colorspace.TransferPQ}
	sp.HDR.MaxLuma = 1000
	sp.HDR.MaxCLL = 800
	sp.HDR.SceneMax = [3]float64{300, 600, 450}

	// Scene metadata wins over everything.
	if got := framePeak(sp); math.Abs(got-600/rw) > 1e-9 {
		t.Errorf("scene peak = %v, want %v", got, 600/rw)
	}

	sp.HDR.SceneMax = [3]float64{}
	if got := framePeak(sp); math.Abs(got-800/rw) > 1e-9 {
		t.Errorf("maxcll peak = %v, want %v", got, 800/rw)
	}

	sp.HDR.MaxCLL = 0
	if got := framePeak(sp); math.Abs(got-1000/rw) > 1e-9 {
		t.Errorf("mastering peak = %v, want %v", got, 1000/rw)
	}

	// No metadata: fall back to the transfer's nominal range.
	sp.HDR.MaxLuma = 0
	if got := framePeak(sp); math.Abs(got-sp.Transfer.NominalPeak()) > 1e-9 {
		t.Errorf("nominal peak = %v, want %v", got, sp.Transfer.NominalPeak())
	}
	sdr := colorspace.Space{Transfer: colorspace.TransferBT1886}
	if got := framePeak(sdr); got != 1 {
		t.Errorf("sdr peak = %v, want 1", got)
	}
}

func TestPeakSmoothing(t *testing.T) {
	var s peakState
	pd := &PeakDetectParams{SmoothingPeriod: 10}

	// First frame snaps.
	if got := s.update(pd, 4); got != 4 {
		t.Fatalf("first frame = %v", got)
	}
	// Later frames converge gradually.
	got := s.update(pd, 8)
	if got <= 4 || got >= 8 {
		t.Errorf("smoothed = %v, want between 4 and 8", got)
	}
	// A long run converges toward the input. The moving average is
	// asymptotic, so allow a small residual.
	for i := 0; i < 100; i++ {
		got = s.update(pd, 8)
	}
	if math.Abs(got-8) > 1e-3 {
		t.Errorf("converged = %v, want 8", got)
	}
}

func TestPeakSceneCut(t *testing.T) {
	var s peakState
	pd := &PeakDetectParams{SmoothingPeriod: 100, SceneThreshold: 0.5}

	s.update(pd, 2)
	s.update(pd, 2)
	// A jump beyond the threshold resets history and snaps.
	if got := s.update(pd, 10); got != 10 {
		t.Errorf("scene cut = %v, want 10", got)
	}
	if s.frames != 1 {
		t.Errorf("frames after cut = %d, want 1", s.frames)
	}

	// Without a threshold the same jump only nudges the average.
	var q peakState
	pq := &PeakDetectParams{SmoothingPeriod: 100}
	q.update(pq, 2)
	q.update(pq, 2)
	if got := q.update(pq, 10); got >= 10 {
		t.Errorf("no-threshold jump = %v, want < 10", got)
	}
}

func hdrFrame(t *testing.T, d *soft.Device, w, h int) *Frame {
	t.Helper()
	f := rgbFrame(t, d, w, h)
	f.Space = colorspace.Space{
		Primaries: colorspace.PrimariesBT2020,
		Transfer:  colorspace.TransferPQ,
	}
	f.Space.HDR.MaxCLL = 1000
	return f
}

func TestPeakMeasurementDispatch(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	src := hdrFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 16, 8)
	params := DefaultRenderParams()
	params.PeakDetect = &PeakDetectParams{SmoothingPeriod: 10}

	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	// The measurement reduction is the pipeline's only compute dispatch.
	compute := 0
	for _, rec := range d.Dispatches {
		if rec.Compute {
			compute++
		}
	}
	if compute != 1 {
		t.Errorf("compute dispatches = %d, want 1", compute)
	}

	// Without peak detection no measurement runs.
	d.Dispatches = nil
	if err := r.RenderFrame(src, target, nil); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	for _, rec := range d.Dispatches {
		if rec.Compute {
			t.Error("measurement dispatched without PeakDetect")
		}
	}
}

func TestPeakMeasurementDegrades(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	d.OnDispatch = func(p *gpux.Program) error {
		if p.Compute {
			return errors.New("injected")
		}
		return nil
	}

	src := hdrFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 16, 8)
	params := DefaultRenderParams()
	params.PeakDetect = &PeakDetectParams{SmoothingPeriod: 10}

	// A failing measurement falls back to signalled metadata and disables
	// the feature; the render itself completes.
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if r.enabled(FeaturePeakDetect) {
		t.Error("peak detection still enabled after measurement failure")
	}
}

func TestPeakIgnoresZero(t *testing.T) {
	var s peakState
	pd := &PeakDetectParams{SmoothingPeriod: 10}
	s.update(pd, 4)
	if got := s.update(pd, 0); got != 4 {
		t.Errorf("zero peak changed history: %v", got)
	}
}

func TestPeakReset(t *testing.T) {
	var s peakState
	pd := &PeakDetectParams{SmoothingPeriod: 10}
	s.update(pd, 4)
	s.reset()
	if s.smoothed != 0 || s.frames != 0 {
		t.Errorf("reset state = %+v", s)
	}
	if got := s.update(pd, 2); got != 2 {
		t.Errorf("post-reset first frame = %v", got)
	}
}
