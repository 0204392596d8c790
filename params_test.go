// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"testing"

	"github.com/gogpu/vidre/tonemap"
)

func TestParamsHashStable(t *testing.T) {
	a := DefaultRenderParams()
	b := DefaultRenderParams()
	if a.Hash() != b.Hash() {
		t.Error("identical params hash differently")
	}
}

func TestParamsHashSensitivity(t *testing.T) {
	base := DefaultRenderParams()
	baseHash := base.Hash()

	tests := []struct {
		name   string
		mutate func(*RenderParams)
	}{
		{"upscaler", func(p *RenderParams) { p.Upscaler = FilterLanczos }},
		{"downscaler", func(p *RenderParams) { p.Downscaler = FilterMitchell }},
		{"plane upscaler", func(p *RenderParams) { p.PlaneUpscaler = FilterBilinear }},
		{"antiringing", func(p *RenderParams) { p.Antiringing = 0.7 }},
		{"subpixel", func(p *RenderParams) { p.CorrectSubpixelOffsets = true }},
		{"deband", func(p *RenderParams) {
			p.Deband = &DebandParams{Iterations: 2, Threshold: 4, Radius: 16}
		}},
		{"sigmoid", func(p *RenderParams) {
			p.Sigmoid = &SigmoidParams{Center: 0.75, Slope: 6.5}
		}},
		{"tone mapping", func(p *RenderParams) {
			p.ToneMapping = &tonemap.Params{Function: tonemap.FunctionBT2390}
		}},
		{"tone lut size", func(p *RenderParams) { p.ToneLUTSize = 512 }},
		{"contrast recovery", func(p *RenderParams) { p.ContrastRecovery = 0.3 }},
		{"color blind", func(p *RenderParams) { p.ColorBlind = ColorBlindDeuteranopia }},
		{"custom lut", func(p *RenderParams) {
			p.LUT = &CustomLUT{Size: 2, Data: make([]float32, 2*2*2*3)}
		}},
		{"dither", func(p *RenderParams) {
			p.Dither = &DitherParams{Method: DitherOrdered, LUTSize: 6}
		}},
		{"background", func(p *RenderParams) { p.Background.Color = [3]float64{1, 0, 0} }},
		{"corner radius", func(p *RenderParams) { p.CornerRadius = 0.1 }},
		{"linear scaling", func(p *RenderParams) { p.DisableLinearScaling = true }},
	}
	seen := map[uint64]string{baseHash: "base"}
	for _, tt := range tests {
		p := DefaultRenderParams()
		tt.mutate(p)
		h := p.Hash()
		if prev, dup := seen[h]; dup {
			t.Errorf("%s collides with %s", tt.name, prev)
		}
		seen[h] = tt.name
	}
}

func TestParamsHashScalerIdentity(t *testing.T) {
	// Scalers hash by name, radius and polar flag, not pointer identity.
	a := DefaultRenderParams()
	a.Upscaler = FilterLanczos
	b := DefaultRenderParams()
	clone := *FilterLanczos
	b.Upscaler = &clone
	if a.Hash() != b.Hash() {
		t.Error("equal scaler configs hash differently")
	}
}

func TestLUTHash(t *testing.T) {
	var nilLUT *CustomLUT
	if nilLUT.hash() != 0 {
		t.Error("nil LUT hash should be 0")
	}
	l := &CustomLUT{Size: 2, Data: make([]float32, 24)}
	h1 := l.hash()
	l.Data[0] = 0.5
	if l.hash() == h1 {
		t.Error("data change not reflected in hash")
	}
}

func TestLUTValidate(t *testing.T) {
	bad := &CustomLUT{Size: 1}
	if err := bad.validate(); err == nil {
		t.Error("size 1 should fail")
	}
	short := &CustomLUT{Size: 2, Data: make([]float32, 3)}
	if err := short.validate(); err == nil {
		t.Error("short data should fail")
	}
	ok := &CustomLUT{Size: 2, Data: make([]float32, 24)}
	if err := ok.validate(); err != nil {
		t.Errorf("valid LUT rejected: %v", err)
	}
}
