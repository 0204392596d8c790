// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package wgpu implements gpux.Device on top of gogpu/wgpu/hal.
//
// Generated programs are lowered to compute shaders that move pixel
// data through storage buffers, compiled from WGSL to SPIR-V with
// gogpu/naga, and submitted through hal command encoders. The device
// can own its hal instance (New) or share one through a
// gpucontext.DeviceProvider (FromProvider).
package wgpu

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Register the Vulkan backend via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/vidre/backend"
	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/cache"
	"github.com/gogpu/vidre/internal/texel"
)

func init() {
	backend.Register(backend.BackendWGPU, func() (gpux.Device, error) {
		return New()
	})
}

// fenceTimeout bounds every submit wait.
const fenceTimeout = 5 * time.Second

// copyPitchAlignment is the BytesPerRow alignment texture-to-buffer
// copies require on DX12 and WebGPU.
const copyPitchAlignment = 256

// maxPipelines bounds the compiled pipeline cache. Generated programs
// vary with render parameters, so long sessions can accumulate variants;
// least recently used pipelines are destroyed past the limit.
const maxPipelines = 128

// Texture wraps a hal texture.
type Texture struct {
	tex    hal.Texture
	params gpux.TextureParams
	layout texel.Layout

	// usage is the last transitioned usage state, needed for explicit
	// barriers on Vulkan.
	usage gputypes.TextureUsage
}

// Params implements gpux.Texture.
func (t *Texture) Params() gpux.TextureParams { return t.params }

// Device implements gpux.Device on hal.
type Device struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
	external bool

	pipelines *cache.Cache[uint64, *pipeline]
	spirv     map[uint64][]byte
}

// newPipelineCache wires pipeline eviction to hal destruction.
func (d *Device) newPipelineCache() *cache.Cache[uint64, *pipeline] {
	return cache.New(maxPipelines, func(_ uint64, pl *pipeline) {
		pl.destroy(d.device)
	})
}

// New creates a device on its own hal instance, preferring a discrete
// GPU, then an integrated one.
func New() (*Device, error) {
	bk, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, fmt.Errorf("wgpu: vulkan backend not available")
	}
	instance, err := bk.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, fmt.Errorf("wgpu: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, fmt.Errorf("wgpu: open device: %w", err)
	}
	d := &Device{
		instance: instance,
		device:   openDev.Device,
		queue:    openDev.Queue,
		name:     selected.Info.Name,
		spirv:    make(map[uint64][]byte),
	}
	d.pipelines = d.newPipelineCache()
	return d, nil
}

// halProvider is the shape gogpu device providers expose their hal
// handles through.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// FromProvider creates a device sharing the hal device and queue of an
// application-owned gpucontext provider. Close does not destroy shared
// resources.
func FromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("wgpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("wgpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("wgpu: provider HalQueue is not hal.Queue")
	}
	d := &Device{
		device:   device,
		queue:    queue,
		name:     "shared",
		external: true,
		spirv:    make(map[uint64][]byte),
	}
	d.pipelines = d.newPipelineCache()
	return d, nil
}

// Name implements gpux.Device.
func (d *Device) Name() string { return backend.BackendWGPU }

// AdapterName reports the selected adapter, for logging.
func (d *Device) AdapterName() string { return d.name }

// Limits implements gpux.Device. The values are the Vulkan baseline
// every conformant implementation guarantees.
func (d *Device) Limits() gpux.Limits {
	return gpux.Limits{
		MaxSharedMem:  32 << 10,
		MaxStorageBuf: 128 << 20,
		MaxMappedVRAM: 256 << 20,
	}
}

// formats lists the device's repertoire in FindFormat preference order.
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

// FindFormat implements gpux.Device.
func (d *Device) FindFormat(class gpux.FormatClass, comps, depth int, caps gpux.Caps) (gputypes.TextureFormat, bool) {
	for _, f := range formats {
		l, _ := texel.Lookup(f)
		if l.Class == class && l.Comps >= comps && l.Depth >= depth && d.FormatCaps(f).Has(caps) {
			return f, true
		}
	}
	return 0, false
}

// FormatCaps implements gpux.Device. Storage image use is only
// advertised for float formats; everything else holds for the whole
// repertoire since dispatch moves pixels through storage buffers.
func (d *Device) FormatCaps(f gputypes.TextureFormat) gpux.Caps {
	l, ok := texel.Lookup(f)
	if !ok {
		return 0
	}
	caps := gpux.CapSampleable | gpux.CapRenderable | gpux.CapBlittable | gpux.CapLinearFilterable
	if l.Class == gpux.ClassFloat {
		caps |= gpux.CapStorable
	}
	return caps
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
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: p.Label,
		Size: hal.Extent3D{
			Width:              uint32(p.W),
			Height:             uint32(p.H),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        p.Format,
		Usage: gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst |
			gputypes.TextureUsageCopySrc | gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gpux.ErrTextureCreate, err)
	}
	return &Texture{
		tex:    tex,
		params: p,
		layout: layout,
		usage:  gputypes.TextureUsageCopyDst,
	}, nil
}

// DestroyTexture implements gpux.Device.
func (d *Device) DestroyTexture(t gpux.Texture) {
	if t == nil {
		return
	}
	wt := t.(*Texture)
	if wt.tex != nil {
		d.device.DestroyTexture(wt.tex)
		wt.tex = nil
	}
}

// Upload implements gpux.Device.
func (d *Device) Upload(dst gpux.Texture, pixels []byte, stride int) error {
	t := dst.(*Texture)
	bpp := t.layout.Bytes()
	tight := t.params.W * bpp
	if stride <= 0 {
		stride = tight
	}
	if len(pixels) < stride*t.params.H {
		return fmt.Errorf("%w: short pixel buffer", gpux.ErrInvalidParams)
	}
	data := pixels
	if stride != tight {
		data = make([]byte, tight*t.params.H)
		for y := 0; y < t.params.H; y++ {
			copy(data[y*tight:], pixels[y*stride:y*stride+tight])
		}
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(tight),
			RowsPerImage: uint32(t.params.H),
		},
		&hal.Extent3D{
			Width:              uint32(t.params.W),
			Height:             uint32(t.params.H),
			DepthOrArrayLayers: 1,
		},
	)
	t.usage = gputypes.TextureUsageCopyDst
	return nil
}

// Download implements gpux.Device. The texture is copied to a staging
// buffer with 256-byte aligned rows, fenced, and read back.
func (d *Device) Download(src gpux.Texture, pixels []byte, stride int) error {
	t := src.(*Texture)
	bpp := t.layout.Bytes()
	tight := t.params.W * bpp
	if stride <= 0 {
		stride = tight
	}
	if len(pixels) < stride*t.params.H {
		return fmt.Errorf("%w: short pixel buffer", gpux.ErrInvalidParams)
	}

	data, err := d.readTexture(t)
	if err != nil {
		return err
	}
	for y := 0; y < t.params.H; y++ {
		copy(pixels[y*stride:y*stride+tight], data[y*tight:])
	}
	return nil
}

// readTexture returns the tightly packed encoded contents of t.
func (d *Device) readTexture(t *Texture) ([]byte, error) {
	bpp := t.layout.Bytes()
	w, h := t.params.W, t.params.H
	tight := w * bpp
	aligned := (tight + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	stagingSize := uint64(aligned) * uint64(h)

	staging, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vidre_readback",
		Size:  stagingSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create staging buffer: %v", gpux.ErrDispatchFailed, err)
	}
	defer d.device.DestroyBuffer(staging)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "vidre_readback"})
	if err != nil {
		return nil, fmt.Errorf("%w: create encoder: %v", gpux.ErrDispatchFailed, err)
	}
	if err := encoder.BeginEncoding("vidre_readback"); err != nil {
		return nil, fmt.Errorf("%w: begin encoding: %v", gpux.ErrDispatchFailed, err)
	}

	d.transition(encoder, t, gputypes.TextureUsageCopySrc)
	encoder.CopyTextureToBuffer(t.tex, staging, []hal.BufferTextureCopy{{
		BufferLayout: hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(aligned),
			RowsPerImage: uint32(h),
		},
		TextureBase: hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		Size: hal.Extent3D{
			Width:              uint32(w),
			Height:             uint32(h),
			DepthOrArrayLayers: 1,
		},
	}})

	if err := d.submit(encoder); err != nil {
		return nil, err
	}

	readback := make([]byte, stagingSize)
	if err := d.queue.ReadBuffer(staging, 0, readback); err != nil {
		return nil, fmt.Errorf("%w: readback: %v", gpux.ErrDispatchFailed, err)
	}
	if aligned == tight {
		return readback[:tight*h], nil
	}
	out := make([]byte, tight*h)
	for y := 0; y < h; y++ {
		copy(out[y*tight:], readback[y*aligned:y*aligned+tight])
	}
	return out, nil
}

// transition records an explicit usage barrier when the tracked state
// differs. No-op on backends without manual layout transitions.
func (d *Device) transition(encoder hal.CommandEncoder, t *Texture, to gputypes.TextureUsage) {
	if t.usage == to {
		return
	}
	encoder.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: t.usage,
			NewUsage: to,
		},
	}})
	t.usage = to
}

// submit finishes encoding, submits and waits on a fence.
func (d *Device) submit(encoder hal.CommandEncoder) error {
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("%w: end encoding: %v", gpux.ErrDispatchFailed, err)
	}
	defer d.device.FreeCommandBuffer(cmdBuf)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("%w: create fence: %v", gpux.ErrDispatchFailed, err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return fmt.Errorf("%w: submit: %v", gpux.ErrDispatchFailed, err)
	}
	fenceOK, err := d.device.Wait(fence, 1, fenceTimeout)
	if err != nil || !fenceOK {
		return fmt.Errorf("%w: wait for GPU: ok=%v err=%v", gpux.ErrDispatchFailed, fenceOK, err)
	}
	return nil
}

// BlitScale implements gpux.Device with a CPU round trip: read the
// source region back, resample, upload into the destination region.
func (d *Device) BlitScale(src, dst gpux.Texture, srcRect, dstRect gpux.Rect, linear bool) error {
	s := src.(*Texture)
	t := dst.(*Texture)
	if srcRect.Empty() || dstRect.Empty() {
		return fmt.Errorf("%w: empty blit rect", gpux.ErrInvalidParams)
	}

	data, err := d.readTexture(s)
	if err != nil {
		return err
	}
	sbpp := s.layout.Bytes()
	at := func(x, y int) [4]float32 {
		if x < srcRect.X0 {
			x = srcRect.X0
		} else if x >= srcRect.X1 {
			x = srcRect.X1 - 1
		}
		if y < srcRect.Y0 {
			y = srcRect.Y0
		} else if y >= srcRect.Y1 {
			y = srcRect.Y1 - 1
		}
		return texel.Decode(s.layout, data[(y*s.params.W+x)*sbpp:])
	}

	dbpp := t.layout.Bytes()
	dw, dh := dstRect.Dx(), dstRect.Dy()
	out := make([]byte, dw*dh*dbpp)
	sx := float64(srcRect.Dx()) / float64(dw)
	sy := float64(srcRect.Dy()) / float64(dh)
	for y := 0; y < dh; y++ {
		for x := 0; x < dw; x++ {
			fx := float64(srcRect.X0) + (float64(x)+0.5)*sx - 0.5
			fy := float64(srcRect.Y0) + (float64(y)+0.5)*sy - 0.5
			var c [4]float32
			if linear {
				x0, y0 := int(fx), int(fy)
				tx := float32(fx - float64(x0))
				ty := float32(fy - float64(y0))
				c00 := at(x0, y0)
				c10 := at(x0+1, y0)
				c01 := at(x0, y0+1)
				c11 := at(x0+1, y0+1)
				for i := 0; i < 4; i++ {
					top := c00[i] + (c10[i]-c00[i])*tx
					bot := c01[i] + (c11[i]-c01[i])*tx
					c[i] = top + (bot-top)*ty
				}
			} else {
				c = at(int(fx+0.5), int(fy+0.5))
			}
			texel.Encode(t.layout, out[(y*dw+x)*dbpp:], c)
		}
	}

	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin: hal.Origin3D{
				X: uint32(dstRect.X0),
				Y: uint32(dstRect.Y0),
			},
		},
		out,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(dw * dbpp),
			RowsPerImage: uint32(dh),
		},
		&hal.Extent3D{
			Width:              uint32(dw),
			Height:             uint32(dh),
			DepthOrArrayLayers: 1,
		},
	)
	t.usage = gputypes.TextureUsageCopyDst
	return nil
}

// cacheBlobMagic guards CacheBlob round trips.
var cacheBlobMagic = [4]byte{'v', 'w', 'g', '1'}

// CacheBlob implements gpux.Device: compiled SPIR-V keyed by program
// hash, so a later run skips WGSL translation for known programs.
func (d *Device) CacheBlob() []byte {
	if len(d.spirv) == 0 {
		return nil
	}
	size := 4
	for _, code := range d.spirv {
		size += 12 + len(code)
	}
	buf := make([]byte, 4, size)
	copy(buf, cacheBlobMagic[:])
	for h, code := range d.spirv {
		var hdr [12]byte
		binary.LittleEndian.PutUint64(hdr[:], h)
		binary.LittleEndian.PutUint32(hdr[8:], uint32(len(code)))
		buf = append(buf, hdr[:]...)
		buf = append(buf, code...)
	}
	return buf
}

// LoadCacheBlob implements gpux.Device. Unrecognized blobs are ignored.
func (d *Device) LoadCacheBlob(blob []byte) {
	if len(blob) < 4 || [4]byte(blob[:4]) != cacheBlobMagic {
		return
	}
	blob = blob[4:]
	for len(blob) >= 12 {
		h := binary.LittleEndian.Uint64(blob)
		n := int(binary.LittleEndian.Uint32(blob[8:]))
		blob = blob[12:]
		if n < 0 || n > len(blob) || n%4 != 0 {
			return
		}
		code := make([]byte, n)
		copy(code, blob[:n])
		d.spirv[h] = code
		blob = blob[n:]
	}
}

// Close implements gpux.Device.
func (d *Device) Close() {
	d.pipelines.Flush()
	if d.external {
		d.device = nil
		d.queue = nil
		return
	}
	if d.device != nil {
		d.device.Destroy()
		d.device = nil
	}
	if d.instance != nil {
		d.instance.Destroy()
		d.instance = nil
	}
	d.queue = nil
}
