// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package shader

import (
	"strings"
	"testing"

	"github.com/gogpu/vidre/gpux"
)

type fakeTex struct{ p gpux.TextureParams }

func (t *fakeTex) Params() gpux.TextureParams { return t.p }

func TestFreshIdentsUnique(t *testing.T) {
	b := New()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := b.Fresh("x")
		if seen[id] {
			t.Fatalf("duplicate identifier %q", id)
		}
		seen[id] = true
	}
}

func TestFinalizeFragment(t *testing.T) {
	b := New()
	tex := &fakeTex{}
	name := b.BindTexture("src", tex, true)
	c := b.Const("gain", 1.5)
	b.Append("color = sample(%s, pos) * %s;", name, c)
	p, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if p.Compute {
		t.Error("fragment program classified as compute")
	}
	if len(p.Bindings) != 1 || p.Bindings[0].Texture != tex || !p.Bindings[0].Linear {
		t.Errorf("bindings = %+v", p.Bindings)
	}
	if !strings.Contains(p.Source, "@fragment") {
		t.Error("missing fragment entry point")
	}
	if !strings.Contains(p.Source, name) || !strings.Contains(p.Source, c) {
		t.Error("generated source missing identifiers")
	}
	if p.Hash == 0 {
		t.Error("zero signature hash")
	}
}

func TestFinalizeCompute(t *testing.T) {
	b := New()
	b.Compute(8, 8, 2048)
	b.Compute(16, 4, 1024) // requirements merge to the max per axis
	b.Append("// work")
	p, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if !p.Compute || p.WorkgroupW != 16 || p.WorkgroupH != 8 || p.SharedMem != 2048 {
		t.Errorf("compute config = %dx%d shared %d", p.WorkgroupW, p.WorkgroupH, p.SharedMem)
	}
	if !strings.Contains(p.Source, "@workgroup_size(16, 8)") {
		t.Error("missing workgroup declaration")
	}
}

func TestSubpassMergesBindings(t *testing.T) {
	child := New()
	texName := child.BindTexture("plane", &fakeTex{}, false)
	child.Append("color = sample(%s, pos);", texName)

	parent := New()
	fn := parent.Subpass(child, "read_plane")
	parent.Append("color = %s(pos);", fn)
	p, err := parent.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if len(p.Bindings) != 1 {
		t.Fatalf("bindings = %d, want 1 merged from child", len(p.Bindings))
	}
	// The child's binding must appear, re-homed, in the merged source.
	if !strings.Contains(p.Source, p.Bindings[0].Name) {
		t.Errorf("source does not reference merged binding %q", p.Bindings[0].Name)
	}
	if !strings.Contains(p.Source, "fn "+fn+"(") {
		t.Error("subpass function declaration missing")
	}
}

func TestSubpassIdentsDoNotCollide(t *testing.T) {
	mk := func() *Builder {
		c := New()
		n := c.BindTexture("plane", &fakeTex{}, false)
		c.Append("color = sample(%s, pos);", n)
		return c
	}
	parent := New()
	f1 := parent.Subpass(mk(), "a")
	f2 := parent.Subpass(mk(), "b")
	parent.Append("color = %s(pos) + %s(pos);", f1, f2)
	p, err := parent.Finalize()
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if p.Bindings[0].Name == p.Bindings[1].Name {
		t.Errorf("merged binding names collide: %q", p.Bindings[0].Name)
	}
}

func TestSubpassComputeInfects(t *testing.T) {
	child := New()
	child.Compute(8, 8, 512)
	child.Append("// compute child")
	parent := New()
	parent.Subpass(child, "c")
	if !parent.IsCompute() {
		t.Error("parent not reclassified as compute after compute subpass")
	}
}

func TestErrorsSticky(t *testing.T) {
	b := New()
	b.BindTexture("bad", nil, false)
	b.Append("color = vec4<f32>(0.0);")
	if _, err := b.Finalize(); err == nil {
		t.Fatal("Finalize succeeded after nil texture binding")
	}
}

func TestRepeatedFinalize(t *testing.T) {
	b := New()
	b.Append("color = vec4<f32>(0.0);")
	p1, err := b.Finalize()
	if err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	p2, err := b.Finalize()
	if err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if p1 != p2 {
		t.Error("repeated Finalize rebuilt the program")
	}

	// More code invalidates the cache and rebuilds.
	b.Append("color.a = 1.0;")
	p3, err := b.Finalize()
	if err != nil {
		t.Fatalf("Finalize after append: %v", err)
	}
	if p3 == p1 || p3.Hash == p1.Hash {
		t.Error("program not rebuilt after append")
	}
}

func TestFinalizeAfterMerge(t *testing.T) {
	child := New()
	child.Append("color = vec4<f32>(0.0);")
	parent := New()
	parent.Subpass(child, "c")
	if _, err := child.Finalize(); err == nil {
		t.Fatal("Finalize succeeded on a merged child")
	}
}

func TestSignatureIgnoresUniformContents(t *testing.T) {
	mk := func(payload byte) *gpux.Program {
		b := New()
		v := b.Var("gain", "f32", []byte{payload, 0, 0, 0})
		b.Append("color = vec4<f32>(%s);", v)
		p, err := b.Finalize()
		if err != nil {
			t.Fatalf("Finalize: %v", err)
		}
		return p
	}
	if mk(1).Hash != mk(2).Hash {
		t.Error("signature varies with uniform payload")
	}

	other := New()
	other.Append("color = vec4<f32>(1.0);")
	po, _ := other.Finalize()
	if po.Hash == mk(1).Hash {
		t.Error("structurally different programs share a signature")
	}
}
