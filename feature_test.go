// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"errors"
	"testing"

	"github.com/gogpu/vidre/backend/soft"
)

func TestFeatureString(t *testing.T) {
	if got := Feature(0).String(); got != "none" {
		t.Errorf("zero set = %q", got)
	}
	if got := FeatureGrain.String(); got != "grain" {
		t.Errorf("grain = %q", got)
	}
	got := (FeatureDebanding | FeatureFBOs).String()
	if got != "debanding,fbos" {
		t.Errorf("combined = %q", got)
	}
}

func TestDisableEnable(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	if r.DisabledFeatures() != 0 {
		t.Fatalf("fresh renderer disabled = %v", r.DisabledFeatures())
	}
	r.disable(FeatureGrain|FeatureHooks, errors.New("test"))
	if r.enabled(FeatureGrain) || r.enabled(FeatureHooks) {
		t.Error("disabled categories still enabled")
	}
	if !r.enabled(FeatureSampling) {
		t.Error("unrelated category disabled")
	}
	// enabled requires every named bit.
	if r.enabled(FeatureGrain | FeatureSampling) {
		t.Error("mixed set reported enabled")
	}

	r.EnableFeatures(FeatureGrain)
	if !r.enabled(FeatureGrain) {
		t.Error("re-enable failed")
	}
	if r.enabled(FeatureHooks) {
		t.Error("re-enable cleared unrelated bit")
	}
}

func TestWithDisabledFeatures(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d, WithDisabledFeatures(FeatureFrameMixing))
	defer r.Close()
	if r.enabled(FeatureFrameMixing) {
		t.Error("construction option ignored")
	}
}

func TestHookDenyList(t *testing.T) {
	d := soft.New()
	defer d.Close()
	r, _ := New(d)
	defer r.Close()

	r.denyHook("user/sharpen:v2", errors.New("test"))
	r.denyHook("user/sharpen:v2", errors.New("again")) // idempotent
	sigs := r.DisabledHooks()
	if len(sigs) != 1 || sigs[0] != "user/sharpen:v2" {
		t.Errorf("DisabledHooks = %v", sigs)
	}
	r.EnableHook("user/sharpen:v2")
	if len(r.DisabledHooks()) != 0 {
		t.Error("EnableHook did not clear the deny-list")
	}
}
