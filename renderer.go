// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/arena"
)

// Renderer is a stateful video frame renderer bound to one gpux.Device.
// It is not safe for concurrent use; callers serialize render calls.
//
// State carried across frames: the FBO pool, the tone mapping LUT, dither
// and grain textures, HDR peak detection history, the frame mixing cache,
// and the sticky disabled-feature set.
type Renderer struct {
	dev gpux.Device

	fbos  fboPool
	arena *arena.Arena

	// fboFormats[n-1] is the probed intermediate format for n-component
	// images; zero Caps means probing failed for that slot.
	fboFormats [4]fboFormat
	fboProbed  bool

	toneLUT   lutState
	dither    ditherState
	grain     [4]grainState
	peak      peakState
	icc       iccState

	mix       map[uint64]*mixEntry
	mixFree   []gpux.Texture
	mixTick   uint64
	mixFrames int
	mixLimit  int

	disabled      Feature
	disabledHooks map[string]bool

	closed bool
}

// Option configures a Renderer at construction.
type Option func(*Renderer)

// WithMixCacheLimit caps the number of frames retained by the frame
// mixing cache. Zero or negative restores the default of 16.
func WithMixCacheLimit(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.mixLimit = n
		}
	}
}

// WithDisabledFeatures starts the renderer with the given categories
// already disabled.
func WithDisabledFeatures(f Feature) Option {
	return func(r *Renderer) { r.disabled |= f }
}

// New creates a Renderer on the given device.
func New(dev gpux.Device, opts ...Option) (*Renderer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	r := &Renderer{
		dev:           dev,
		arena:         arena.New(1 << 12),
		mix:           map[uint64]*mixEntry{},
		mixLimit:      16,
		disabledHooks: map[string]bool{},
	}
	for _, opt := range opts {
		opt(r)
	}
	Logger().Debug("vidre: renderer created", "device", dev.Name())
	return r, nil
}

// Device returns the device the renderer was created on.
func (r *Renderer) Device() gpux.Device { return r.dev }

// Close releases all GPU state held by the renderer. The device itself is
// not closed. Close is idempotent.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	r.closed = true
	r.FlushMixCache()
	r.fbos.release(r.dev)
	r.toneLUT.release(r.dev)
	r.dither.release(r.dev)
	for i := range r.grain {
		r.grain[i].release(r.dev)
	}
	r.peak.release(r.dev)
	r.icc.release(r.dev)
}

// FlushMixCache drops all cached mixed frames and recycled textures,
// releasing them. Rendering continues to work; the next mix repopulates
// the cache.
func (r *Renderer) FlushMixCache() {
	for sig, e := range r.mix {
		e.destroy(r.dev)
		delete(r.mix, sig)
	}
	for _, t := range r.mixFree {
		r.dev.DestroyTexture(t)
	}
	r.mixFree = nil
	r.mixFrames = 0
}

// FlushPeakState resets HDR peak detection history, as after a seek or an
// input switch. The next frame measures from scratch.
func (r *Renderer) FlushPeakState() {
	r.peak.reset()
}

// CacheBlob returns the device's opaque shader cache contents, for
// persisting across process restarts. May be empty.
func (r *Renderer) CacheBlob() []byte {
	return r.dev.CacheBlob()
}

// LoadCacheBlob seeds the device's shader cache from a prior CacheBlob.
// Unrecognized blobs are ignored.
func (r *Renderer) LoadCacheBlob(b []byte) {
	r.dev.LoadCacheBlob(b)
}
