// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"errors"
	"testing"

	"github.com/gogpu/vidre/backend/soft"
)

// testHook is a minimal hook appending a fixed transformation. A non-zero
// newW/newH makes it report those dimensions back.
type testHook struct {
	sig        string
	stages     HookStage
	err        error
	fixedSize  bool
	newW, newH int
	runs       int
	seen       []HookStage
}

func (h *testHook) Signature() string { return h.sig }
func (h *testHook) Stages() HookStage { return h.stages }
func (h *testHook) Resizable() bool   { return !h.fixedSize }

func (h *testHook) Run(img *HookImage) error {
	h.runs++
	h.seen = append(h.seen, img.Stage)
	if h.err != nil {
		return h.err
	}
	img.Builder.Append("color = vec4<f32>(color.rgb * 0.9, color.a);")
	if h.newW > 0 {
		img.W, img.H = h.newW, h.newH
	}
	return nil
}

func TestHooksRun(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	hk := &testHook{sig: "test/dim:v1", stages: HookStageRGB | HookStagePreOutput}
	params := DefaultRenderParams()
	params.Hooks = []Hook{hk}

	src := rgbFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 8, 4)
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if hk.runs != 2 {
		t.Errorf("hook ran %d times, want 2", hk.runs)
	}
	for _, st := range hk.seen {
		if st != HookStageRGB && st != HookStagePreOutput {
			t.Errorf("hook ran at undeclared stage %v", st)
		}
	}
}

func TestHookFailureDenied(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	bad := &testHook{sig: "test/bad:v1", stages: HookStageRGB, err: errors.New("broken")}
	good := &testHook{sig: "test/good:v1", stages: HookStageRGB}
	params := DefaultRenderParams()
	params.Hooks = []Hook{bad, good}

	src := rgbFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 8, 4)
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	// The failing hook is deny-listed; the good one still ran.
	sigs := r.DisabledHooks()
	if len(sigs) != 1 || sigs[0] != "test/bad:v1" {
		t.Errorf("DisabledHooks = %v", sigs)
	}
	if good.runs != 1 {
		t.Errorf("good hook ran %d times, want 1", good.runs)
	}

	// Deny-listed hooks are skipped on later frames.
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatal(err)
	}
	if bad.runs != 1 {
		t.Errorf("denied hook ran again: %d", bad.runs)
	}
	if good.runs != 2 {
		t.Errorf("good hook runs = %d, want 2", good.runs)
	}
}

func TestHookResizeDenied(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	// A hook that reports new dimensions without declaring resize support
	// is deny-listed; the render still completes at the original size.
	hk := &testHook{sig: "test/grow:v1", stages: HookStageRGB, fixedSize: true, newW: 16, newH: 8}
	params := DefaultRenderParams()
	params.Hooks = []Hook{hk}

	src := rgbFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 8, 4)
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	sigs := r.DisabledHooks()
	if len(sigs) != 1 || sigs[0] != "test/grow:v1" {
		t.Errorf("DisabledHooks = %v", sigs)
	}
}

func TestHookResizePreOutputDenied(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	// Even a resizable hook may not change the extent once the target
	// size is fixed.
	hk := &testHook{sig: "test/late:v1", stages: HookStagePreOutput, newW: 4, newH: 2}
	params := DefaultRenderParams()
	params.Hooks = []Hook{hk}

	src := rgbFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 8, 4)
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	sigs := r.DisabledHooks()
	if len(sigs) != 1 || sigs[0] != "test/late:v1" {
		t.Errorf("DisabledHooks = %v", sigs)
	}
}

func TestHookResizeHonored(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	// A resizable hook doubling the image ahead of the scaler stays off
	// the deny-list; the main scaler brings the result to target size.
	hk := &testHook{sig: "test/double:v1", stages: HookStageRGB, newW: 16, newH: 8}
	params := DefaultRenderParams()
	params.Hooks = []Hook{hk}

	src := rgbFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 8, 4)
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if sigs := r.DisabledHooks(); len(sigs) != 0 {
		t.Errorf("DisabledHooks = %v", sigs)
	}
	if hk.runs != 1 {
		t.Errorf("hook ran %d times, want 1", hk.runs)
	}
	if got := target.Planes[0].Texture.(*soft.Texture).At(7, 3); got[3] == 0 {
		t.Errorf("target texel = %v, want written", got)
	}
}

func TestHooksFeatureDisabled(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d, WithDisabledFeatures(FeatureHooks))
	defer r.Close()

	hk := &testHook{sig: "test/off:v1", stages: HookStageRGB}
	params := DefaultRenderParams()
	params.Hooks = []Hook{hk}

	src := rgbFrame(t, d, 8, 4)
	target := rgbFrame(t, d, 8, 4)
	if err := r.RenderFrame(src, target, params); err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	if hk.runs != 0 {
		t.Errorf("hook ran %d times with the feature disabled", hk.runs)
	}
}
