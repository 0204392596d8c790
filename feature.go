// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import "strings"

// Feature is a bit-set of optional renderer feature categories. When a GPU
// dispatch fails inside an optional stage, its category is disabled for the
// remaining lifetime of the Renderer and rendering continues degraded.
// Callers can inspect and selectively re-enable categories.
type Feature uint32

const (
	// FeatureDebanding is the debanding pre-filter.
	FeatureDebanding Feature = 1 << iota

	// FeatureGrain is film grain synthesis.
	FeatureGrain

	// FeatureHooks covers all user hook invocations.
	FeatureHooks

	// FeatureSampling is custom-kernel (convolution/polar) scaling.
	// When disabled, scaling falls back to direct sampling.
	FeatureSampling

	// FeatureBlending is background compositing and alpha blending.
	FeatureBlending

	// FeatureOverlays is overlay composition onto the target planes.
	FeatureOverlays

	// FeaturePeakDetect is HDR peak detection.
	FeaturePeakDetect

	// FeatureFrameMixing is temporal frame mixing; when disabled, mix
	// renders degrade to single-frame zero-order-hold.
	FeatureFrameMixing

	// FeatureErrorDiffusion is error-diffusion dithering; ordered
	// dithering remains available.
	FeatureErrorDiffusion

	// FeatureContrastRecovery is the feature-map guided tone mapping
	// refinement.
	FeatureContrastRecovery

	// FeatureDeinterlacing is GPU deinterlacing of frame triptychs.
	FeatureDeinterlacing

	// FeatureLUTs covers custom and conversion LUT application.
	FeatureLUTs

	// FeatureICC covers ICC profile decode and encode.
	FeatureICC

	// FeatureFBOs is the ability to render to intermediate textures at
	// all. Disabled only when format probing finds nothing renderable;
	// most non-trivial paths degrade hard without it.
	FeatureFBOs
)

var featureNames = []struct {
	f    Feature
	name string
}{
	{FeatureDebanding, "debanding"},
	{FeatureGrain, "grain"},
	{FeatureHooks, "hooks"},
	{FeatureSampling, "sampling"},
	{FeatureBlending, "blending"},
	{FeatureOverlays, "overlays"},
	{FeaturePeakDetect, "peak-detect"},
	{FeatureFrameMixing, "frame-mixing"},
	{FeatureErrorDiffusion, "error-diffusion"},
	{FeatureContrastRecovery, "contrast-recovery"},
	{FeatureDeinterlacing, "deinterlacing"},
	{FeatureLUTs, "luts"},
	{FeatureICC, "icc"},
	{FeatureFBOs, "fbos"},
}

// String lists the set categories, comma separated.
func (f Feature) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	for _, fn := range featureNames {
		if f&fn.f != 0 {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, ",")
}

// disable marks categories as permanently off and logs the transition
// once per category.
func (r *Renderer) disable(f Feature, cause error) {
	fresh := f &^ r.disabled
	if fresh != 0 {
		Logger().Warn("vidre: disabling feature category",
			"features", fresh.String(), "cause", cause)
	}
	r.disabled |= f
}

// enabled reports whether every given category is still enabled.
func (r *Renderer) enabled(f Feature) bool {
	return r.disabled&f == 0
}

// DisabledFeatures returns the categories currently disabled on this
// renderer.
func (r *Renderer) DisabledFeatures() Feature {
	return r.disabled
}

// EnableFeatures clears the given disabled bits, re-arming those
// categories. Typically called after the caller changed configuration to
// address the original failure.
func (r *Renderer) EnableFeatures(f Feature) {
	r.disabled &^= f
}

// DisabledHooks returns the signatures of user hooks that have been
// auto-disabled, in unspecified order.
func (r *Renderer) DisabledHooks() []string {
	sigs := make([]string, 0, len(r.disabledHooks))
	for sig := range r.disabledHooks {
		sigs = append(sigs, sig)
	}
	return sigs
}

// EnableHook removes a hook signature from the deny-list.
func (r *Renderer) EnableHook(signature string) {
	delete(r.disabledHooks, signature)
}

// denyHook adds a hook signature to the permanent deny-list.
func (r *Renderer) denyHook(signature string, cause error) {
	if !r.disabledHooks[signature] {
		Logger().Warn("vidre: disabling user hook", "signature", signature, "cause", cause)
	}
	r.disabledHooks[signature] = true
}
