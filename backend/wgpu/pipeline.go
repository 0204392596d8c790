// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package wgpu

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/vidre/gpux"
	"github.com/gogpu/vidre/internal/texel"
)

// Generated programs address textures in texel coordinates and leave
// resource declarations abstract. Lowering rewrites them into strict
// WGSL compute shaders where every resource is a buffer binding:
// sampled textures become read-only storage buffers with a two-float
// dimension header, storage images become read-write buffers, and
// fragment programs become a compute grid over the destination rect
// writing into an output buffer. This sidesteps image binding entirely,
// so one pipeline layout shape covers every program.

// Wrapper strings the shader builder emits around fragment bodies.
const (
	fragPrelude = "@fragment\nfn main(@builtin(position) pos_raw: vec4<f32>) -> @location(0) vec4<f32> {\nlet pos = pos_raw.xy;\nvar color: vec4<f32>;\n"
	fragSuffix  = "return color;\n}\n"
)

// slotKind says how a lowered binding slot is materialized at dispatch.
type slotKind int

const (
	slotUniform slotKind = iota + 1
	slotTexture          // read-only pixel buffer from a sampled texture
	slotStorageTex       // read-write pixel buffer written back after dispatch
	slotRawBuffer
	slotFragRect
	slotFragOut
)

// slot is one buffer binding of a lowered program.
type slot struct {
	kind slotKind
	bind int // index into Program.Bindings, -1 for synthetic slots
}

// lowered is a compiled-ready program.
type lowered struct {
	source string
	slots  []slot
}

// pipeline is a compiled compute pipeline plus its layout objects.
type pipeline struct {
	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
	slots      []slot
}

func (pl *pipeline) destroy(device hal.Device) {
	if device == nil {
		return
	}
	if pl.pipeline != nil {
		device.DestroyComputePipeline(pl.pipeline)
	}
	if pl.pipeLayout != nil {
		device.DestroyPipelineLayout(pl.pipeLayout)
	}
	if pl.bindLayout != nil {
		device.DestroyBindGroupLayout(pl.bindLayout)
	}
	if pl.shader != nil {
		device.DestroyShaderModule(pl.shader)
	}
}

// lower rewrites a generated program into strict WGSL.
func lower(p *gpux.Program) (*lowered, error) {
	src := p.Source
	var decls strings.Builder
	var slots []slot

	for i, bind := range p.Bindings {
		switch bind.Type {
		case gpux.BindUniform:
			typ, rest, ok := cutUniformDecl(src, bind.Name)
			if !ok {
				return nil, fmt.Errorf("wgpu: uniform %q not declared in source", bind.Name)
			}
			src = rest
			fmt.Fprintf(&decls, "@group(0) @binding(%d) var<uniform> %s: %s;\n", len(slots), bind.Name, typ)
			slots = append(slots, slot{kind: slotUniform, bind: i})

		case gpux.BindSampledTexture:
			fmt.Fprintf(&decls, "@group(0) @binding(%d) var<storage, read> %s_px: array<f32>;\n", len(slots), bind.Name)
			decls.WriteString(texelFns(bind.Name, bind.Linear))
			src = strings.ReplaceAll(src, "textureSample("+bind.Name+", ", bind.Name+"_tap(")
			slots = append(slots, slot{kind: slotTexture, bind: i})

		case gpux.BindStorageTexture:
			fmt.Fprintf(&decls, "@group(0) @binding(%d) var<storage, read_write> %s_px: array<f32>;\n", len(slots), bind.Name)
			decls.WriteString(storeFn(bind.Name))
			src = strings.ReplaceAll(src, "textureStore("+bind.Name+", ", bind.Name+"_st(")
			slots = append(slots, slot{kind: slotStorageTex, bind: i})

		case gpux.BindStorageBuffer:
			fmt.Fprintf(&decls, "@group(0) @binding(%d) var<storage, read> %s: array<f32>;\n", len(slots), bind.Name)
			slots = append(slots, slot{kind: slotRawBuffer, bind: i})

		default:
			return nil, fmt.Errorf("wgpu: unknown binding type %d", bind.Type)
		}
	}

	if !p.Compute {
		if !strings.Contains(src, fragPrelude) || !strings.HasSuffix(src, fragSuffix) {
			return nil, fmt.Errorf("wgpu: unrecognized fragment wrapper")
		}
		fmt.Fprintf(&decls, "@group(0) @binding(%d) var<uniform> _frag_rect: vec4<f32>;\n", len(slots))
		slots = append(slots, slot{kind: slotFragRect, bind: -1})
		fmt.Fprintf(&decls, "@group(0) @binding(%d) var<storage, read_write> _frag_out: array<f32>;\n", len(slots))
		slots = append(slots, slot{kind: slotFragOut, bind: -1})

		src = strings.Replace(src, fragPrelude,
			"@compute @workgroup_size(8, 8)\n"+
				"fn main(@builtin(global_invocation_id) gid: vec3<u32>) {\n"+
				"if (gid.x >= u32(_frag_rect.z) || gid.y >= u32(_frag_rect.w)) { return; }\n"+
				"let pos = vec2<f32>(_frag_rect.x + f32(gid.x) + 0.5, _frag_rect.y + f32(gid.y) + 0.5);\n"+
				"var color: vec4<f32>;\n", 1)
		src = src[:len(src)-len(fragSuffix)] +
			"let _frag_i = (gid.y * u32(_frag_rect.z) + gid.x) * 4u;\n" +
			"_frag_out[_frag_i] = color.x;\n" +
			"_frag_out[_frag_i + 1u] = color.y;\n" +
			"_frag_out[_frag_i + 2u] = color.z;\n" +
			"_frag_out[_frag_i + 3u] = color.w;\n" +
			"}\n"
	}

	return &lowered{source: decls.String() + src, slots: slots}, nil
}

// cutUniformDecl removes the builder's "// uniform name: typ" comment
// and returns the declared type.
func cutUniformDecl(src, name string) (typ, rest string, ok bool) {
	marker := "// uniform " + name + ": "
	start := strings.Index(src, marker)
	if start < 0 {
		return "", "", false
	}
	end := strings.IndexByte(src[start:], '\n')
	if end < 0 {
		end = len(src) - start
	}
	typ = src[start+len(marker) : start+end]
	rest = src[:start] + src[start+end:]
	return typ, rest, true
}

// texelFns emits the load and tap helpers for one sampled texture.
func texelFns(name string, linear bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "fn %s_ld(x: i32, y: i32) -> vec4<f32> {\n", name)
	fmt.Fprintf(&b, "let w = i32(%s_px[0]);\n", name)
	fmt.Fprintf(&b, "let h = i32(%s_px[1]);\n", name)
	b.WriteString("let cx = clamp(x, 0, w - 1);\n")
	b.WriteString("let cy = clamp(y, 0, h - 1);\n")
	b.WriteString("let i = 2 + (cy * w + cx) * 4;\n")
	fmt.Fprintf(&b, "return vec4<f32>(%s_px[i], %s_px[i + 1], %s_px[i + 2], %s_px[i + 3]);\n}\n", name, name, name, name)
	if linear {
		fmt.Fprintf(&b, "fn %s_tap(p: vec2<f32>) -> vec4<f32> {\n", name)
		b.WriteString("let q = p - vec2<f32>(0.5, 0.5);\n")
		b.WriteString("let x0 = i32(floor(q.x));\n")
		b.WriteString("let y0 = i32(floor(q.y));\n")
		b.WriteString("let tx = q.x - f32(x0);\n")
		b.WriteString("let ty = q.y - f32(y0);\n")
		fmt.Fprintf(&b, "let top = mix(%s_ld(x0, y0), %s_ld(x0 + 1, y0), tx);\n", name, name)
		fmt.Fprintf(&b, "let bot = mix(%s_ld(x0, y0 + 1), %s_ld(x0 + 1, y0 + 1), tx);\n", name, name)
		b.WriteString("return mix(top, bot, ty);\n}\n")
	} else {
		fmt.Fprintf(&b, "fn %s_tap(p: vec2<f32>) -> vec4<f32> {\n", name)
		fmt.Fprintf(&b, "return %s_ld(i32(floor(p.x)), i32(floor(p.y)));\n}\n", name)
	}
	return b.String()
}

// storeFn emits the store helper for one storage image.
func storeFn(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "fn %s_st(c: vec2<i32>, v: vec4<f32>) {\n", name)
	fmt.Fprintf(&b, "let w = i32(%s_px[0]);\n", name)
	b.WriteString("let i = 2 + (c.y * w + c.x) * 4;\n")
	fmt.Fprintf(&b, "%s_px[i] = v.x;\n", name)
	fmt.Fprintf(&b, "%s_px[i + 1] = v.y;\n", name)
	fmt.Fprintf(&b, "%s_px[i + 2] = v.z;\n", name)
	fmt.Fprintf(&b, "%s_px[i + 3] = v.w;\n", name)
	b.WriteString("}\n")
	return b.String()
}

// getPipeline compiles a program (or returns the cached pipeline).
func (d *Device) getPipeline(p *gpux.Program) (*pipeline, error) {
	if pl, ok := d.pipelines.Get(p.Hash); ok {
		return pl, nil
	}

	low, err := lower(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gpux.ErrDispatchFailed, err)
	}

	spirvBytes, ok := d.spirv[p.Hash]
	if !ok {
		spirvBytes, err = naga.Compile(low.source)
		if err != nil {
			return nil, fmt.Errorf("%w: compile shader: %v", gpux.ErrDispatchFailed, err)
		}
		d.spirv[p.Hash] = spirvBytes
	}
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = binary.LittleEndian.Uint32(spirvBytes[i*4:])
	}

	shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "vidre_program",
		Source: hal.ShaderSource{SPIRV: spirvCode},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create shader module: %v", gpux.ErrDispatchFailed, err)
	}

	entries := make([]gputypes.BindGroupLayoutEntry, len(low.slots))
	for i, s := range low.slots {
		layout := &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}
		switch s.kind {
		case slotUniform, slotFragRect:
			layout.Type = gputypes.BufferBindingTypeUniform
		case slotTexture, slotRawBuffer:
			layout.Type = gputypes.BufferBindingTypeReadOnlyStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     layout,
		}
	}
	bindLayout, err := d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   "vidre_bind_layout",
		Entries: entries,
	})
	if err != nil {
		d.device.DestroyShaderModule(shader)
		return nil, fmt.Errorf("%w: create bind group layout: %v", gpux.ErrDispatchFailed, err)
	}
	pipeLayout, err := d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "vidre_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		d.device.DestroyBindGroupLayout(bindLayout)
		d.device.DestroyShaderModule(shader)
		return nil, fmt.Errorf("%w: create pipeline layout: %v", gpux.ErrDispatchFailed, err)
	}
	computePipeline, err := d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "vidre_pipeline",
		Layout:  pipeLayout,
		Compute: hal.ComputeState{Module: shader, EntryPoint: "main"},
	})
	if err != nil {
		d.device.DestroyPipelineLayout(pipeLayout)
		d.device.DestroyBindGroupLayout(bindLayout)
		d.device.DestroyShaderModule(shader)
		return nil, fmt.Errorf("%w: create compute pipeline: %v", gpux.ErrDispatchFailed, err)
	}

	pl := &pipeline{
		shader:     shader,
		bindLayout: bindLayout,
		pipeLayout: pipeLayout,
		pipeline:   computePipeline,
		slots:      low.slots,
	}
	d.pipelines.Set(p.Hash, pl)
	return pl, nil
}

// boundBuffer is one materialized buffer of a dispatch.
type boundBuffer struct {
	buf  hal.Buffer
	size uint64

	// writeback is the texture a slotStorageTex buffer flushes to
	// after the dispatch, nil otherwise.
	writeback *Texture
}

// DispatchFragment implements gpux.Device.
func (d *Device) DispatchFragment(p *gpux.Program, dst gpux.Texture, dstRect gpux.Rect) error {
	if dstRect.Empty() {
		return fmt.Errorf("%w: empty dispatch rect", gpux.ErrInvalidParams)
	}
	t := dst.(*Texture)
	pl, err := d.getPipeline(p)
	if err != nil {
		return err
	}

	w, h := dstRect.Dx(), dstRect.Dy()
	outSize := uint64(w*h) * 16
	rectData := make([]byte, 16)
	binary.LittleEndian.PutUint32(rectData[0:], math.Float32bits(float32(dstRect.X0)))
	binary.LittleEndian.PutUint32(rectData[4:], math.Float32bits(float32(dstRect.Y0)))
	binary.LittleEndian.PutUint32(rectData[8:], math.Float32bits(float32(w)))
	binary.LittleEndian.PutUint32(rectData[12:], math.Float32bits(float32(h)))

	readback, err := d.run(p, pl, (w+7)/8, (h+7)/8, rectData, outSize)
	if err != nil {
		return err
	}

	// Encode the output buffer into the destination region.
	bpp := t.layout.Bytes()
	out := make([]byte, w*h*bpp)
	for i := 0; i < w*h; i++ {
		var c [4]float32
		for j := 0; j < 4; j++ {
			c[j] = math.Float32frombits(binary.LittleEndian.Uint32(readback[(i*4+j)*4:]))
		}
		texel.Encode(t.layout, out[i*bpp:], c)
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: uint32(dstRect.X0), Y: uint32(dstRect.Y0)},
		},
		out,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(w * bpp),
			RowsPerImage: uint32(h),
		},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	t.usage = gputypes.TextureUsageCopyDst
	return nil
}

// DispatchCompute implements gpux.Device.
func (d *Device) DispatchCompute(p *gpux.Program, groupsW, groupsH int) error {
	if groupsW <= 0 || groupsH <= 0 {
		return fmt.Errorf("%w: %dx%d workgroups", gpux.ErrInvalidParams, groupsW, groupsH)
	}
	pl, err := d.getPipeline(p)
	if err != nil {
		return err
	}
	_, err = d.run(p, pl, groupsW, groupsH, nil, 0)
	return err
}

// run materializes buffers, submits one compute pass and returns the
// fragment output readback (nil for compute programs). Storage-image
// buffers are flushed back to their textures before returning.
func (d *Device) run(p *gpux.Program, pl *pipeline, groupsW, groupsH int, rectData []byte, outSize uint64) ([]byte, error) {
	bufs := make([]boundBuffer, 0, len(pl.slots))
	defer func() {
		for _, bb := range bufs {
			d.device.DestroyBuffer(bb.buf)
		}
	}()

	var outIndex = -1
	var storageTexes []int
	for _, s := range pl.slots {
		var bb boundBuffer
		var err error
		switch s.kind {
		case slotUniform:
			bb, err = d.createFilled(p.Bindings[s.bind].Data, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
		case slotRawBuffer:
			bb, err = d.createFilled(p.Bindings[s.bind].Data, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
		case slotTexture:
			bb, err = d.createPixelBuffer(p.Bindings[s.bind].Texture.(*Texture), gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
		case slotStorageTex:
			bb, err = d.createPixelBuffer(p.Bindings[s.bind].Texture.(*Texture),
				gputypes.BufferUsageStorage|gputypes.BufferUsageCopySrc|gputypes.BufferUsageCopyDst)
			bb.writeback = p.Bindings[s.bind].Texture.(*Texture)
			storageTexes = append(storageTexes, len(bufs))
		case slotFragRect:
			bb, err = d.createFilled(rectData, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
		case slotFragOut:
			outIndex = len(bufs)
			bb.size = outSize
			bb.buf, err = d.device.CreateBuffer(&hal.BufferDescriptor{
				Label: "vidre_frag_out",
				Size:  outSize,
				Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
			})
		}
		if err != nil {
			return nil, fmt.Errorf("%w: create dispatch buffer: %v", gpux.ErrDispatchFailed, err)
		}
		bufs = append(bufs, bb)
	}

	entries := make([]gputypes.BindGroupEntry, len(bufs))
	for i, bb := range bufs {
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i),
			Resource: gputypes.BufferBinding{Buffer: bb.buf.NativeHandle(), Offset: 0, Size: bb.size},
		}
	}
	bindGroup, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "vidre_bind",
		Layout:  pl.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create bind group: %v", gpux.ErrDispatchFailed, err)
	}
	defer d.device.DestroyBindGroup(bindGroup)

	// Staging buffers for everything that must be read back.
	var stagings []hal.Buffer
	stagingFor := make(map[int]hal.Buffer)
	defer func() {
		for _, sb := range stagings {
			d.device.DestroyBuffer(sb)
		}
	}()
	readbackIdx := append([]int(nil), storageTexes...)
	if outIndex >= 0 {
		readbackIdx = append(readbackIdx, outIndex)
	}
	for _, i := range readbackIdx {
		sb, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "vidre_staging",
			Size:  bufs[i].size,
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: create staging buffer: %v", gpux.ErrDispatchFailed, err)
		}
		stagings = append(stagings, sb)
		stagingFor[i] = sb
	}

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "vidre_dispatch"})
	if err != nil {
		return nil, fmt.Errorf("%w: create encoder: %v", gpux.ErrDispatchFailed, err)
	}
	if err := encoder.BeginEncoding("vidre_dispatch"); err != nil {
		return nil, fmt.Errorf("%w: begin encoding: %v", gpux.ErrDispatchFailed, err)
	}

	computePass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "vidre_pass"})
	computePass.SetPipeline(pl.pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)
	computePass.Dispatch(uint32(groupsW), uint32(groupsH), 1)
	computePass.End()

	for i, sb := range stagingFor {
		encoder.CopyBufferToBuffer(bufs[i].buf, sb, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: bufs[i].size},
		})
	}

	if err := d.submit(encoder); err != nil {
		return nil, err
	}

	// Flush storage-image buffers back to their textures.
	for _, i := range storageTexes {
		data := make([]byte, bufs[i].size)
		if err := d.queue.ReadBuffer(stagingFor[i], 0, data); err != nil {
			return nil, fmt.Errorf("%w: storage readback: %v", gpux.ErrDispatchFailed, err)
		}
		if err := d.flushPixelBuffer(bufs[i].writeback, data); err != nil {
			return nil, err
		}
	}

	if outIndex < 0 {
		return nil, nil
	}
	readback := make([]byte, bufs[outIndex].size)
	if err := d.queue.ReadBuffer(stagingFor[outIndex], 0, readback); err != nil {
		return nil, fmt.Errorf("%w: output readback: %v", gpux.ErrDispatchFailed, err)
	}
	return readback, nil
}

// createFilled creates a buffer and writes the payload into it.
func (d *Device) createFilled(data []byte, usage gputypes.BufferUsage) (boundBuffer, error) {
	size := uint64(len(data))
	if size == 0 {
		size = 4
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "vidre_binding",
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return boundBuffer{}, err
	}
	if len(data) > 0 {
		d.queue.WriteBuffer(buf, 0, data)
	}
	return boundBuffer{buf: buf, size: size}, nil
}

// createPixelBuffer reads a texture back and packs it as
// [w, h, rgba...] float32 data in a storage buffer.
func (d *Device) createPixelBuffer(t *Texture, usage gputypes.BufferUsage) (boundBuffer, error) {
	encoded, err := d.readTexture(t)
	if err != nil {
		return boundBuffer{}, err
	}
	w, h := t.params.W, t.params.H
	bpp := t.layout.Bytes()
	data := make([]byte, 8+w*h*16)
	binary.LittleEndian.PutUint32(data[0:], math.Float32bits(float32(w)))
	binary.LittleEndian.PutUint32(data[4:], math.Float32bits(float32(h)))
	for i := 0; i < w*h; i++ {
		c := texel.Decode(t.layout, encoded[i*bpp:])
		for j := 0; j < 4; j++ {
			binary.LittleEndian.PutUint32(data[8+(i*4+j)*4:], math.Float32bits(c[j]))
		}
	}
	return d.createFilled(data, usage)
}

// flushPixelBuffer writes a [w, h, rgba...] pixel buffer back into its
// texture.
func (d *Device) flushPixelBuffer(t *Texture, data []byte) error {
	w, h := t.params.W, t.params.H
	if len(data) < 8+w*h*16 {
		return fmt.Errorf("%w: short storage readback", gpux.ErrDispatchFailed)
	}
	bpp := t.layout.Bytes()
	out := make([]byte, w*h*bpp)
	for i := 0; i < w*h; i++ {
		var c [4]float32
		for j := 0; j < 4; j++ {
			c[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[8+(i*4+j)*4:]))
		}
		texel.Encode(t.layout, out[i*bpp:], c)
	}
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: t.tex, MipLevel: 0},
		out,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(w * bpp),
			RowsPerImage: uint32(h),
		},
		&hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1},
	)
	t.usage = gputypes.TextureUsageCopyDst
	return nil
}
