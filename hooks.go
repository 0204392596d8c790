// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"fmt"

	"github.com/gogpu/vidre/colorspace"
	"github.com/gogpu/vidre/internal/shader"
)

// HookStage identifies pipeline points a hook can attach to. A hook may
// declare several stages; it runs once per declared stage per pass.
type HookStage uint32

const (
	// HookStagePlane runs on each decoded source plane, before merging.
	HookStagePlane HookStage = 1 << iota

	// HookStageChroma runs on the merged image right after chroma
	// upsampling, still in the source color system.
	HookStageChroma

	// HookStageRGB runs after conversion to RGB, before linearization.
	HookStageRGB

	// HookStageLinear runs in linear light, before scaling.
	HookStageLinear

	// HookStagePreOutput runs on the scaled image in the target color
	// space, before dithering.
	HookStagePreOutput
)

// HookImage is the pipeline image a hook operates on.
type HookImage struct {
	// Builder is the in-progress shader computing the image. Hooks
	// append code transforming "color" in place.
	Builder *shader.Builder

	// W, H are the image dimensions in pixels. A resizable hook at a
	// pre-output stage may write new dimensions; the appended code then
	// runs over the new extent and must account for the geometry change.
	W, H int

	// Components is the number of meaningful components.
	Components int

	// Repr and Space describe the image's current interpretation.
	Repr  colorspace.Repr
	Space colorspace.Space

	// Stage is the stage this invocation is attached to.
	Stage HookStage
}

// Hook is a user shader transformation injected into the pipeline.
//
// A hook that returns an error, or whose generated code fails to dispatch,
// is added to the renderer's deny-list and skipped for the rest of the
// renderer's lifetime, keyed by Signature.
type Hook interface {
	// Signature identifies the hook for parameter hashing and the
	// deny-list. Two hooks with equal signatures must generate
	// identical code.
	Signature() string

	// Stages reports the stages the hook wants to run at.
	Stages() HookStage

	// Resizable reports whether the hook may change the image dimensions
	// via HookImage. A hook that reports false yet writes new dimensions
	// is deny-listed; resizing at the pre-output stage is always denied,
	// since the target extent is fixed there.
	Resizable() bool

	// Run appends the hook's transformation to img.Builder.
	Run(img *HookImage) error
}

// runHooks invokes all params hooks attached to stage on the image. Each
// hook is realized into an FBO on its own so a failure is attributable:
// the failing hook is deny-listed individually and its output discarded;
// remaining hooks still run on the prior image.
func (p *pass) runHooks(im *img, stage HookStage) {
	if len(p.params.Hooks) == 0 || !p.r.enabled(FeatureHooks) {
		return
	}
	for _, hk := range p.params.Hooks {
		if hk.Stages()&stage == 0 || p.r.disabledHooks[hk.Signature()] {
			continue
		}
		// Snapshot the image before the hook so a failure can be rolled
		// back; this requires texture-side state, and therefore FBOs.
		if err := p.realize(im); err != nil {
			p.r.disable(FeatureHooks, err)
			return
		}
		saved := *im
		hi := &HookImage{
			Builder:    im.builder(p),
			W:          im.w,
			H:          im.h,
			Components: im.comps,
			Repr:       im.repr,
			Space:      im.space,
			Stage:      stage,
		}
		if err := hk.Run(hi); err != nil {
			p.r.denyHook(hk.Signature(), err)
			*im = saved
			continue
		}
		if hi.W != im.w || hi.H != im.h {
			if hi.W < 1 || hi.H < 1 || !hk.Resizable() || stage == HookStagePreOutput {
				p.r.denyHook(hk.Signature(), fmt.Errorf(
					"unsupported resize %dx%d to %dx%d", im.w, im.h, hi.W, hi.H))
				*im = saved
				continue
			}
			im.w, im.h = hi.W, hi.H
		}
		if err := p.realize(im); err != nil {
			p.r.denyHook(hk.Signature(), err)
			*im = saved
		}
	}
}
