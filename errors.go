// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import "errors"

// Package errors. Render calls return these (possibly wrapped); optional
// feature failures never surface here, they flip sticky feature bits
// instead.
var (
	// ErrClosed is returned when using a Renderer after Close.
	ErrClosed = errors.New("vidre: renderer is closed")

	// ErrNilDevice is returned by New when no device is supplied.
	ErrNilDevice = errors.New("vidre: nil gpux.Device")

	// ErrInvalidFrame is returned when a frame descriptor fails
	// validation (plane count, channel mapping, overlay or LUT shape).
	ErrInvalidFrame = errors.New("vidre: invalid frame")

	// ErrAcquireFailed is returned when a frame's acquire callback fails;
	// nothing is rendered.
	ErrAcquireFailed = errors.New("vidre: frame acquire failed")

	// ErrNoFBOFormat is returned when no renderable intermediate format
	// exists and the requested render cannot complete without one.
	ErrNoFBOFormat = errors.New("vidre: no renderable FBO format")

	// ErrOutputFailed is returned when the mandatory final output
	// dispatch fails. The renderer stays usable for subsequent calls.
	ErrOutputFailed = errors.New("vidre: output dispatch failed")

	// ErrEmptyMix is returned when a frame mix contains no frames.
	ErrEmptyMix = errors.New("vidre: empty frame mix")
)
