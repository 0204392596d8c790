// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package vidre is a GPU-resident, color-managed, HDR-aware video frame
// renderer.
//
// A Renderer takes decoded frames (multi-plane, multi-colorspace, with
// per-frame HDR metadata) and produces a correctly scaled, color-mapped,
// dithered output into a target frame, with optional temporal frame mixing
// for smooth motion. It consumes the GPU through the gpux.Device capability
// interface and never performs decoding, demuxing or windowing.
//
// The basic flow:
//
//	dev, _ := wgpu.New(nil)                // or any gpux.Device
//	r, _ := vidre.New(dev)
//	defer r.Close()
//
//	params := vidre.DefaultRenderParams()
//	if err := r.RenderImage(src, dst, params); err != nil {
//	    // the frame could not be produced at all
//	}
//
// Optional features (debanding, film grain, user hooks, peak detection,
// frame mixing, ...) degrade rather than fail: a GPU error in one of them
// permanently disables that feature category on the Renderer and the call
// continues. DisabledFeatures reports what has been turned off and
// EnableFeatures re-arms categories after the caller has addressed the
// cause.
//
// Renderers are not safe for concurrent use; callers must serialize all
// calls per instance.
package vidre
