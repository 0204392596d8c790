// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package gpux

import (
	"errors"

	"github.com/gogpu/gputypes"
)

// Package errors shared by all Device implementations.
var (
	// ErrNoFormat is returned when no texture format satisfies a query.
	ErrNoFormat = errors.New("gpux: no matching texture format")

	// ErrDispatchFailed is returned when a shader dispatch fails at the
	// GPU layer (compile, link or submission failure).
	ErrDispatchFailed = errors.New("gpux: shader dispatch failed")

	// ErrTextureCreate is returned when texture allocation fails.
	ErrTextureCreate = errors.New("gpux: texture creation failed")

	// ErrInvalidParams is returned for structurally invalid arguments.
	ErrInvalidParams = errors.New("gpux: invalid parameters")
)

// Caps is a bitmask of texture capability flags.
type Caps uint32

const (
	// CapSampleable means the texture can be bound and sampled.
	CapSampleable Caps = 1 << iota

	// CapRenderable means the texture can be a fragment render target.
	CapRenderable

	// CapStorable means the texture can be bound as a storage image.
	CapStorable

	// CapBlittable means the texture supports built-in blit/scale paths.
	CapBlittable

	// CapLinearFilterable means bilinear sampling is supported.
	CapLinearFilterable
)

// Has reports whether all bits of want are present.
func (c Caps) Has(want Caps) bool { return c&want == want }

// FormatClass selects a family of pixel formats for FindFormat queries.
type FormatClass int

const (
	// ClassFloat is floating-point (16- or 32-bit) components.
	ClassFloat FormatClass = iota + 1

	// ClassUnorm is unsigned normalized integer components.
	ClassUnorm

	// ClassSnorm is signed normalized integer components.
	ClassSnorm

	// ClassUint is unsigned integer components.
	ClassUint
)

// Rect is an integer pixel rectangle, end-exclusive.
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Dx returns the rectangle width.
func (r Rect) Dx() int { return r.X1 - r.X0 }

// Dy returns the rectangle height.
func (r Rect) Dy() int { return r.Y1 - r.Y0 }

// Empty reports whether the rectangle encloses no pixels.
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// TextureParams describes a texture to create or match.
type TextureParams struct {
	// W and H are the dimensions in pixels.
	W, H int

	// Format is the pixel format.
	Format gputypes.TextureFormat

	// Caps are the required capabilities.
	Caps Caps

	// Label is an optional debug name.
	Label string
}

// Texture is an opaque GPU texture owned by a Device. The renderer only
// inspects its creation parameters; everything else stays behind the
// Device boundary.
type Texture interface {
	Params() TextureParams
}

// Limits reports device limits the renderer keys decisions on.
type Limits struct {
	// MaxSharedMem is the maximum workgroup shared memory in bytes.
	MaxSharedMem int

	// MaxStorageBuf is the maximum storage buffer size in bytes.
	MaxStorageBuf int

	// MaxMappedVRAM is a heuristic budget for persistently mapped
	// memory, in bytes. Zero means unknown.
	MaxMappedVRAM int
}

// BindingType identifies the kind of a program binding.
type BindingType int

const (
	// BindUniform is a uniform value uploaded per dispatch.
	BindUniform BindingType = iota + 1

	// BindSampledTexture is a sampled texture plus its sampler.
	BindSampledTexture

	// BindStorageTexture is a read-write storage image.
	BindStorageTexture

	// BindStorageBuffer is a read-write storage buffer.
	BindStorageBuffer
)

// Binding is one resource slot of a finalized program.
type Binding struct {
	// Name is the identifier the generated source refers to.
	Name string

	// Type is the binding kind.
	Type BindingType

	// Texture is the bound texture for texture bindings, else nil.
	Texture Texture

	// Linear selects bilinear sampling for sampled texture bindings.
	Linear bool

	// Data is the payload for uniform and buffer bindings.
	Data []byte
}

// Program is a finalized, dispatchable shader description produced by the
// shader builder. Devices compile and cache programs keyed by Hash.
type Program struct {
	// Source is the generated WGSL.
	Source string

	// Bindings lists resources in binding-index order.
	Bindings []Binding

	// Compute selects compute dispatch; false means fragment.
	Compute bool

	// WorkgroupW and WorkgroupH are the compute workgroup dimensions.
	WorkgroupW, WorkgroupH int

	// SharedMem is the workgroup shared memory the program declares,
	// in bytes.
	SharedMem int

	// Hash identifies the program structure (source and binding layout,
	// not binding contents) for pipeline caching.
	Hash uint64
}

// Device is the opaque GPU capability interface the renderer consumes.
//
// Implementations need not be safe for concurrent use; the renderer
// serializes all calls per instance.
type Device interface {
	// Name identifies the backend ("wgpu", "soft", ...).
	Name() string

	// Limits reports device limits.
	Limits() Limits

	// FindFormat returns a format of the given class with at least comps
	// components of at least depth bits, supporting the wanted caps.
	// ok is false when no such format exists.
	FindFormat(class FormatClass, comps, depth int, caps Caps) (f gputypes.TextureFormat, ok bool)

	// FormatCaps reports the capabilities of a format on this device.
	FormatCaps(f gputypes.TextureFormat) Caps

	// CreateTexture allocates a texture.
	CreateTexture(p TextureParams) (Texture, error)

	// DestroyTexture releases a texture. Destroying nil is a no-op.
	DestroyTexture(t Texture)

	// Upload copies tightly packed pixel rows into a texture.
	Upload(dst Texture, pixels []byte, stride int) error

	// Download copies a texture into tightly packed pixel rows.
	Download(src Texture, pixels []byte, stride int) error

	// DispatchFragment executes a fragment program over dstRect of dst.
	DispatchFragment(p *Program, dst Texture, dstRect Rect) error

	// DispatchCompute executes a compute program with the given number
	// of workgroups.
	DispatchCompute(p *Program, groupsW, groupsH int) error

	// BlitScale copies srcRect of src onto dstRect of dst using the
	// device's built-in sampling, bilinear when linear is set. Both
	// textures must be CapBlittable.
	BlitScale(src, dst Texture, srcRect, dstRect Rect, linear bool) error

	// CacheBlob returns an opaque snapshot of the device's program
	// cache, suitable for persisting across runs. May return nil.
	CacheBlob() []byte

	// LoadCacheBlob seeds the program cache from a previous CacheBlob.
	// Unrecognized blobs are ignored.
	LoadCacheBlob(blob []byte)

	// Close releases all device resources.
	Close()
}
