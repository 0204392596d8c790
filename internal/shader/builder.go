// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package shader builds GPU program fragments incrementally.
//
// A Builder accumulates one in-progress program: generated WGSL body code,
// resource bindings, compile-time constants and an
// optional compute classification. Finished builders can be merged into a
// parent as callable sub-passes, which is how the renderer fuses per-plane
// shaders into one dispatch. Finalize produces a gpux.Program.
package shader

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/gogpu/vidre/gpux"
)

// Builder accumulates one in-progress GPU program fragment.
//
// The zero value is not usable; create builders with New. Finalize does
// not consume the builder: repeated calls return the cached program, and
// adding more code rebuilds it on the next Finalize. Only merging into a
// parent via Subpass retires a builder.
type Builder struct {
	prefix   string
	nidents  int
	header   strings.Builder
	body     strings.Builder
	bindings []gpux.Binding
	consts   []string

	compute    bool
	wgW, wgH   int
	sharedMem  int
	nsubpasses int

	merged bool
	prog   *gpux.Program
	err    error
}

// New creates an empty fragment-classified builder.
func New() *Builder {
	return &Builder{prefix: "v"}
}

// Fresh returns a new identifier unique within this program, derived from
// the given hint.
func (b *Builder) Fresh(hint string) string {
	b.nidents++
	return fmt.Sprintf("_%s%d_%s", b.prefix, b.nidents, hint)
}

// failf records the first error; later calls keep accumulating code but the
// builder finalizes to that error.
func (b *Builder) failf(format string, args ...any) {
	if b.err == nil {
		b.err = fmt.Errorf("shader: "+format, args...)
	}
}

// Append adds formatted code to the program body.
func (b *Builder) Append(format string, args ...any) {
	b.prog = nil
	fmt.Fprintf(&b.body, format, args...)
	b.body.WriteByte('\n')
}

// Declare adds formatted code to the global declaration section.
func (b *Builder) Declare(format string, args ...any) {
	b.prog = nil
	fmt.Fprintf(&b.header, format, args...)
	b.header.WriteByte('\n')
}

// Const registers a compile-time scalar constant and returns its
// identifier.
func (b *Builder) Const(hint string, value float64) string {
	name := b.Fresh(hint)
	b.prog = nil
	b.consts = append(b.consts, fmt.Sprintf("const %s: f32 = %g;", name, value))
	return name
}

// Var registers a dynamic uniform value uploaded at dispatch time and
// returns its identifier. typ is the WGSL type of the payload.
func (b *Builder) Var(hint, typ string, data []byte) string {
	name := b.Fresh(hint)
	b.bindings = append(b.bindings, gpux.Binding{
		Name: name,
		Type: gpux.BindUniform,
		Data: data,
	})
	b.Declare("// uniform %s: %s", name, typ)
	return name
}

// BindTexture registers a sampled texture and returns its identifier.
// linear selects bilinear sampling.
func (b *Builder) BindTexture(hint string, tex gpux.Texture, linear bool) string {
	if tex == nil {
		b.failf("BindTexture(%q): nil texture", hint)
		return b.Fresh(hint)
	}
	name := b.Fresh(hint)
	b.prog = nil
	b.bindings = append(b.bindings, gpux.Binding{
		Name:    name,
		Type:    gpux.BindSampledTexture,
		Texture: tex,
		Linear:  linear,
	})
	return name
}

// BindStorage registers a read-write storage image and returns its
// identifier. Implies nothing about compute classification; callers
// normally pair it with Compute.
func (b *Builder) BindStorage(hint string, tex gpux.Texture) string {
	if tex == nil {
		b.failf("BindStorage(%q): nil texture", hint)
		return b.Fresh(hint)
	}
	name := b.Fresh(hint)
	b.prog = nil
	b.bindings = append(b.bindings, gpux.Binding{
		Name:    name,
		Type:    gpux.BindStorageTexture,
		Texture: tex,
	})
	return name
}

// BindBuffer registers a storage buffer binding with an initial payload.
func (b *Builder) BindBuffer(hint string, data []byte) string {
	name := b.Fresh(hint)
	b.prog = nil
	b.bindings = append(b.bindings, gpux.Binding{
		Name: name,
		Type: gpux.BindStorageBuffer,
		Data: data,
	})
	return name
}

// Compute classifies the program as a compute dispatch with the given
// workgroup size and shared memory requirement in bytes. A program merged
// from compute sub-passes inherits the largest requirements.
func (b *Builder) Compute(wgW, wgH, sharedMem int) {
	if wgW <= 0 || wgH <= 0 {
		b.failf("Compute: invalid workgroup %dx%d", wgW, wgH)
		return
	}
	b.prog = nil
	b.compute = true
	if wgW > b.wgW {
		b.wgW = wgW
	}
	if wgH > b.wgH {
		b.wgH = wgH
	}
	if sharedMem > b.sharedMem {
		b.sharedMem = sharedMem
	}
}

// IsCompute reports the current classification.
func (b *Builder) IsCompute() bool { return b.compute }

// SharedMem reports the declared shared memory requirement in bytes.
func (b *Builder) SharedMem() int { return b.sharedMem }

// Subpass merges a finished child builder into b as a callable function
// and returns the function's name. The child's bindings and declarations
// are re-homed into b; its identifiers are namespaced by the child's own
// prefix so they cannot collide. The child must not be used afterwards.
func (b *Builder) Subpass(child *Builder, hint string) string {
	name := b.Fresh(hint)
	if child.err != nil {
		b.failf("subpass %q: %v", hint, child.err)
		return name
	}
	if child.merged {
		b.failf("subpass %q: child already merged", hint)
		return name
	}
	child.merged = true
	b.prog = nil

	// Namespace the child so merged identifiers stay unique even when the
	// child was built with the default prefix.
	b.nsubpasses++
	ns := fmt.Sprintf("_s%d", b.nsubpasses)
	rehome := func(s string) string {
		return strings.ReplaceAll(s, "_"+child.prefix, ns+"_"+child.prefix)
	}

	for _, bind := range child.bindings {
		bind.Name = rehome(bind.Name)
		b.bindings = append(b.bindings, bind)
	}
	for _, c := range child.consts {
		b.consts = append(b.consts, rehome(c))
	}
	b.header.WriteString(rehome(child.header.String()))
	b.Declare("fn %s(pos: vec2<f32>) -> vec4<f32> {\nvar color: vec4<f32>;\n%s\nreturn color;\n}",
		name, rehome(child.body.String()))

	if child.compute {
		b.Compute(max(child.wgW, 1), max(child.wgH, 1), child.sharedMem)
	}
	return name
}

// Finalize assembles the accumulated program. Finalize does not consume
// the builder: repeated calls return the cached program until more code
// is added, so a caller whose dispatch failed can reuse the builder in a
// fallback path.
func (b *Builder) Finalize() (*gpux.Program, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.merged {
		return nil, fmt.Errorf("shader: builder already merged into a parent")
	}
	if b.prog != nil {
		return b.prog, nil
	}

	var src strings.Builder
	for _, c := range b.consts {
		src.WriteString(c)
		src.WriteByte('\n')
	}
	src.WriteString(b.header.String())
	if b.compute {
		fmt.Fprintf(&src, "@compute @workgroup_size(%d, %d)\nfn main(@builtin(global_invocation_id) gid: vec3<u32>) {\n", b.wgW, b.wgH)
		src.WriteString(b.body.String())
		src.WriteString("}\n")
	} else {
		src.WriteString("@fragment\nfn main(@builtin(position) pos_raw: vec4<f32>) -> @location(0) vec4<f32> {\nlet pos = pos_raw.xy;\nvar color: vec4<f32>;\n")
		src.WriteString(b.body.String())
		src.WriteString("return color;\n}\n")
	}

	p := &gpux.Program{
		Source:     src.String(),
		Bindings:   b.bindings,
		Compute:    b.compute,
		WorkgroupW: b.wgW,
		WorkgroupH: b.wgH,
		SharedMem:  b.sharedMem,
	}
	p.Hash = signature(p)
	b.prog = p
	return p, nil
}

// signature hashes the program structure: source text plus binding layout,
// but not binding contents, so a recompiled frame with new uniform values
// reuses the cached pipeline.
func signature(p *gpux.Program) uint64 {
	h := fnv.New64a()
	h.Write([]byte(p.Source))
	for _, bind := range p.Bindings {
		fmt.Fprintf(h, "|%s:%d:%t", bind.Name, bind.Type, bind.Linear)
	}
	if p.Compute {
		fmt.Fprintf(h, "|c%dx%d:%d", p.WorkgroupW, p.WorkgroupH, p.SharedMem)
	}
	return h.Sum64()
}
