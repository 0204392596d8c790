// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package soft is the CPU reference device. It implements the full
// gpux.Device contract without a GPU: textures live in host memory,
// BlitScale runs on golang.org/x/image/draw, and dispatched programs are
// interpreted by a small WGSL evaluator so tests observe real pixel
// output. Programs outside the evaluator's subset are acknowledged and
// the target filled with a sentinel, which keeps the renderer's control
// flow, caching and degradation logic exercisable regardless.
package soft

import (
	"encoding/binary"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/vidre/backend"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/texel"
)

func init() {
	backend.Register(backend.BackendSoft, func() (gpux.Device, error) {
		return New(), nil
	})
}

// formats lists the device's repertoire in FindFormat preference order
// within each (class, comps) family.
var formats = []gputypes.TextureFormat{
	gputypes.TextureFormatR8Unorm,
	gputypes.TextureFormatRG8Unorm,
	gputypes.TextureFormatRGBA8Unorm,
	gputypes.TextureFormatR16Float,
	gputypes.TextureFormatRG16Float,
	gputypes.TextureFormatRGBA16Float,
	gputypes.TextureFormatR32Float,
	gputypes.TextureFormatRGBA32Float,
}

// allCaps is what every soft texture supports.
const allCaps = gpux.CapSampleable | gpux.CapRenderable | gpux.CapStorable |
	gpux.CapBlittable | gpux.CapLinearFilterable

// Texture is a host-memory texture. Pixels are stored as float32 RGBA
// regardless of format; the format only governs Upload/Download encoding.
type Texture struct {
	params gpux.TextureParams
	layout texel.Layout
	pix    []float32 // w*h*4
}

// Params implements gpux.Texture.
func (t *Texture) Params() gpux.TextureParams { return t.params }

// At returns the RGBA value at (x, y), for test inspection.
func (t *Texture) At(x, y int) [4]float32 {
	i := (y*t.params.W + x) * 4
	return [4]float32{t.pix[i], t.pix[i+1], t.pix[i+2], t.pix[i+3]}
}

// Set writes the RGBA value at (x, y).
func (t *Texture) Set(x, y int, c [4]float32) {
	i := (y*t.params.W + x) * 4
	copy(t.pix[i:i+4], c[:])
}

// DispatchRecord captures one acknowledged shader dispatch.
type DispatchRecord struct {
	Hash    uint64
	Compute bool
}

// Device is the CPU reference device.
type Device struct {
	// OnDispatch, when set, is consulted before acknowledging each
	// dispatch; returning an error makes the dispatch fail. Tests use
	// it to drive the renderer's degradation paths.
	OnDispatch func(p *gpux.Program) error

	// Dispatches records every acknowledged dispatch in order.
	Dispatches []DispatchRecord

	textures map[*Texture]struct{}
	cache    map[uint64]struct{}
	progs    map[uint64]*shaderProg
	closed   bool
}

// New creates a soft device.
func New() *Device {
	return &Device{
		textures: make(map[*Texture]struct{}),
		cache:    make(map[uint64]struct{}),
		progs:    make(map[uint64]*shaderProg),
	}
}

// Name implements gpux.Device.
func (d *Device) Name() string { return backend.BackendSoft }

// Limits implements gpux.Device.
func (d *Device) Limits() gpux.Limits {
	return gpux.Limits{
		MaxSharedMem:  64 << 10,
		MaxStorageBuf: 128 << 20,
	}
}

// FindFormat implements gpux.Device.
func (d *Device) FindFormat(class gpux.FormatClass, comps, depth int, caps gpux.Caps) (gputypes.TextureFormat, bool) {
	for _, f := range formats {
		l, _ := texel.Lookup(f)
		if l.Class == class && l.Comps >= comps && l.Depth >= depth && allCaps.Has(caps) {
			return f, true
		}
	}
	return 0, false
}

// FormatCaps implements gpux.Device.
func (d *Device) FormatCaps(f gputypes.TextureFormat) gpux.Caps {
	if _, ok := texel.Lookup(f); ok {
		return allCaps
	}
	return 0
}

// CreateTexture implements gpux.Device.
func (d *Device) CreateTexture(p gpux.TextureParams) (gpux.Texture, error) {
	if p.W <= 0 || p.H <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", gpux.ErrInvalidParams, p.W, p.H)
	}
	layout, ok := texel.Lookup(p.Format)
	if !ok {
		return nil, fmt.Errorf("%w: format %v", gpux.ErrTextureCreate, p.Format)
	}
	t := &Texture{
		params: p,
		layout: layout,
		pix:    make([]float32, p.W*p.H*4),
	}
	d.textures[t] = struct{}{}
	return t, nil
}

// DestroyTexture implements gpux.Device.
func (d *Device) DestroyTexture(t gpux.Texture) {
	if t == nil {
		return
	}
	delete(d.textures, t.(*Texture))
}

// TextureCount reports the number of live textures, for leak tests.
func (d *Device) TextureCount() int { return len(d.textures) }

// Upload implements gpux.Device.
func (d *Device) Upload(dst gpux.Texture, pixels []byte, stride int) error {
	t := dst.(*Texture)
	bpp := t.layout.Bytes()
	if stride <= 0 {
		stride = t.params.W * bpp
	}
	if len(pixels) < stride*t.params.H {
		return fmt.Errorf("%w: short pixel buffer", gpux.ErrInvalidParams)
	}
	for y := 0; y < t.params.H; y++ {
		row := pixels[y*stride:]
		for x := 0; x < t.params.W; x++ {
			t.Set(x, y, texel.Decode(t.layout, row[x*bpp:]))
		}
	}
	return nil
}

// Download implements gpux.Device.
func (d *Device) Download(src gpux.Texture, pixels []byte, stride int) error {
	t := src.(*Texture)
	bpp := t.layout.Bytes()
	if stride <= 0 {
		stride = t.params.W * bpp
	}
	if len(pixels) < stride*t.params.H {
		return fmt.Errorf("%w: short pixel buffer", gpux.ErrInvalidParams)
	}
	for y := 0; y < t.params.H; y++ {
		row := pixels[y*stride:]
		for x := 0; x < t.params.W; x++ {
			texel.Encode(t.layout, row[x*bpp:], t.At(x, y))
		}
	}
	return nil
}

// DispatchFragment implements gpux.Device. The program is recorded, its
// hash cached, and its generated source interpreted per pixel. Programs
// outside the interpreter's subset fill the region with mid-gray instead
// so data flow stays observable.
func (d *Device) DispatchFragment(p *gpux.Program, dst gpux.Texture, dstRect gpux.Rect) error {
	if err := d.ack(p); err != nil {
		return err
	}
	t := dst.(*Texture)
	if d.runFragment(p, t, dstRect) {
		return nil
	}
	for y := dstRect.Y0; y < dstRect.Y1 && y < t.params.H; y++ {
		for x := dstRect.X0; x < dstRect.X1 && x < t.params.W; x++ {
			if x < 0 || y < 0 {
				continue
			}
			t.Set(x, y, [4]float32{0.5, 0.5, 0.5, 1})
		}
	}
	return nil
}

// DispatchCompute implements gpux.Device. Single-invocation grids are
// interpreted; wider grids are only acknowledged.
func (d *Device) DispatchCompute(p *gpux.Program, groupsW, groupsH int) error {
	if groupsW <= 0 || groupsH <= 0 {
		return fmt.Errorf("%w: %dx%d workgroups", gpux.ErrInvalidParams, groupsW, groupsH)
	}
	if err := d.ack(p); err != nil {
		return err
	}
	d.runCompute(p, groupsW, groupsH)
	return nil
}

func (d *Device) ack(p *gpux.Program) error {
	if d.OnDispatch != nil {
		if err := d.OnDispatch(p); err != nil {
			return fmt.Errorf("%w: %v", gpux.ErrDispatchFailed, err)
		}
	}
	d.cache[p.Hash] = struct{}{}
	d.Dispatches = append(d.Dispatches, DispatchRecord{
		Hash:    p.Hash,
		Compute: p.Compute,
	})
	return nil
}

// BlitScale implements gpux.Device on golang.org/x/image/draw, with
// 16-bit intermediates to keep high-depth content intact.
func (d *Device) BlitScale(src, dst gpux.Texture, srcRect, dstRect gpux.Rect, linear bool) error {
	s := src.(*Texture)
	t := dst.(*Texture)
	if srcRect.Empty() || dstRect.Empty() {
		return fmt.Errorf("%w: empty blit rect", gpux.ErrInvalidParams)
	}

	simg := image.NewRGBA64(image.Rect(0, 0, srcRect.Dx(), srcRect.Dy()))
	for y := 0; y < srcRect.Dy(); y++ {
		for x := 0; x < srcRect.Dx(); x++ {
			c := s.At(srcRect.X0+x, srcRect.Y0+y)
			i := simg.PixOffset(x, y)
			putU16(simg.Pix[i:], c[0])
			putU16(simg.Pix[i+2:], c[1])
			putU16(simg.Pix[i+4:], c[2])
			putU16(simg.Pix[i+6:], c[3])
		}
	}

	timg := image.NewRGBA64(image.Rect(0, 0, dstRect.Dx(), dstRect.Dy()))
	scaler := draw.Interpolator(draw.NearestNeighbor)
	if linear {
		scaler = draw.BiLinear
	}
	scaler.Scale(timg, timg.Bounds(), simg, simg.Bounds(), draw.Src, nil)

	for y := 0; y < dstRect.Dy(); y++ {
		for x := 0; x < dstRect.Dx(); x++ {
			i := timg.PixOffset(x, y)
			t.Set(dstRect.X0+x, dstRect.Y0+y, [4]float32{
				getU16(timg.Pix[i:]),
				getU16(timg.Pix[i+2:]),
				getU16(timg.Pix[i+4:]),
				getU16(timg.Pix[i+6:]),
			})
		}
	}
	return nil
}

// cacheBlobMagic guards CacheBlob round trips.
var cacheBlobMagic = [4]byte{'v', 's', 'f', '1'}

// CacheBlob implements gpux.Device: the set of seen program hashes.
func (d *Device) CacheBlob() []byte {
	buf := make([]byte, 4, 4+8*len(d.cache))
	copy(buf, cacheBlobMagic[:])
	for h := range d.cache {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], h)
		buf = append(buf, b[:]...)
	}
	return buf
}

// LoadCacheBlob implements gpux.Device. Unrecognized blobs are ignored.
func (d *Device) LoadCacheBlob(blob []byte) {
	if len(blob) < 4 || [4]byte(blob[:4]) != cacheBlobMagic {
		return
	}
	blob = blob[4:]
	for len(blob) >= 8 {
		d.cache[binary.LittleEndian.Uint64(blob)] = struct{}{}
		blob = blob[8:]
	}
}

// CachedPrograms reports the number of cached program hashes.
func (d *Device) CachedPrograms() int { return len(d.cache) }

// Close implements gpux.Device.
func (d *Device) Close() {
	d.textures = make(map[*Texture]struct{})
	d.closed = true
}

func putU16(b []byte, v float32) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	u := uint16(v*65535 + 0.5)
	b[0] = byte(u >> 8)
	b[1] = byte(u)
}

func getU16(b []byte) float32 {
	return float32(uint16(b[0])<<8|uint16(b[1])) / 65535
}
