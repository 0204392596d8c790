// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package backend provides device discovery and registration for vidre.
//
// Device implementations live in subpackages and register themselves on
// import:
//
//	import _ "github.com/gogpu/vidre/backend/soft" // CPU reference
//	import _ "github.com/gogpu/vidre/backend/wgpu" // GPU via gogpu/wgpu
//
// Callers then open a device explicitly or take the best available one:
//
//	dev, err := backend.Default()
package backend
