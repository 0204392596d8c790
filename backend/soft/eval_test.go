// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/vidre/gpux"
)

// fragSource wraps a body the way the shader builder assembles fragment
// programs.
func fragSource(decls, body string) string {
	return decls + "@fragment\nfn main(@builtin(position) pos_raw: vec4<f32>) -> @location(0) vec4<f32> {\n" +
		"let pos = pos_raw.xy;\nvar color: vec4<f32>;\n" + body + "return color;\n}\n"
}

func computeSource(decls, body string) string {
	return decls + "@compute @workgroup_size(1, 1)\nfn main(@builtin(global_invocation_id) gid: vec3<u32>) {\n" +
		body + "}\n"
}

func evalTexture(t *testing.T, d *Device, w, h int) *Texture {
	t.Helper()
	tex, err := d.CreateTexture(gpux.TextureParams{
		W: w, H: h, Format: gputypes.TextureFormatRGBA32Float,
	})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	return tex.(*Texture)
}

func TestEvalFragmentGradient(t *testing.T) {
	d := New()
	defer d.Close()

	dst := evalTexture(t, d, 4, 2)
	p := &gpux.Program{
		Source: fragSource("", "color = vec4<f32>(pos.x / 4.0, 0.25, floor(pos.y), 1.0);\n"),
		Hash:   1,
	}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 4, Y1: 2}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	got := dst.At(2, 1)
	want := [4]float32{2.5 / 4, 0.25, 1, 1}
	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > 1e-6 {
			t.Fatalf("texel (2,1) = %v, want %v", got, want)
		}
	}
}

func TestEvalConstsAndFunctions(t *testing.T) {
	d := New()
	defer d.Close()

	dst := evalTexture(t, d, 1, 1)
	decls := "const k: f32 = 0.5;\n" +
		"fn double(x: f32) -> f32 {\nreturn x * 2.0;\n}\n"
	p := &gpux.Program{
		Source: fragSource(decls, "color = vec4<f32>(double(k), k, 0.0, 1.0);\n"),
		Hash:   2,
	}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 1, Y1: 1}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	if got := dst.At(0, 0); got != [4]float32{1, 0.5, 0, 1} {
		t.Errorf("texel = %v", got)
	}
}

func TestEvalTextureSample(t *testing.T) {
	d := New()
	defer d.Close()

	src := evalTexture(t, d, 2, 2)
	src.Set(0, 0, [4]float32{0.1, 0.2, 0.3, 1})
	src.Set(1, 1, [4]float32{0.9, 0.8, 0.7, 1})
	dst := evalTexture(t, d, 2, 2)

	p := &gpux.Program{
		Source: fragSource("", "color = textureSample(src, pos);\n"),
		Bindings: []gpux.Binding{
			{Name: "src", Type: gpux.BindSampledTexture, Texture: src},
		},
		Hash: 3,
	}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 2, Y1: 2}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	if got := dst.At(0, 0); got != src.At(0, 0) {
		t.Errorf("texel (0,0) = %v", got)
	}
	if got := dst.At(1, 1); got != src.At(1, 1) {
		t.Errorf("texel (1,1) = %v", got)
	}
}

func TestEvalBilinearSample(t *testing.T) {
	d := New()
	defer d.Close()

	src := evalTexture(t, d, 2, 1)
	src.Set(0, 0, [4]float32{0, 0, 0, 1})
	src.Set(1, 0, [4]float32{1, 1, 1, 1})
	dst := evalTexture(t, d, 1, 1)

	// Sampling halfway between the two texel centers blends them evenly.
	p := &gpux.Program{
		Source: fragSource("", "color = textureSample(src, vec2<f32>(1.0, 0.5));\n"),
		Bindings: []gpux.Binding{
			{Name: "src", Type: gpux.BindSampledTexture, Texture: src, Linear: true},
		},
		Hash: 4,
	}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 1, Y1: 1}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	if got := dst.At(0, 0); math.Abs(float64(got[0])-0.5) > 1e-6 {
		t.Errorf("blend = %v, want 0.5", got)
	}
}

func TestEvalUniform(t *testing.T) {
	d := New()
	defer d.Close()

	dst := evalTexture(t, d, 1, 1)
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, math.Float32bits(0.375))
	p := &gpux.Program{
		Source: fragSource("// uniform w: f32\n", "color = vec4<f32>(w, w, w, 1.0);\n"),
		Bindings: []gpux.Binding{
			{Name: "w", Type: gpux.BindUniform, Data: data},
		},
		Hash: 5,
	}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 1, Y1: 1}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	if got := dst.At(0, 0); got[0] != 0.375 {
		t.Errorf("texel = %v, want 0.375", got)
	}
}

func TestEvalComputeReduction(t *testing.T) {
	d := New()
	defer d.Close()

	src := evalTexture(t, d, 2, 2)
	src.Set(0, 0, [4]float32{0.2, 0, 0, 1})
	src.Set(1, 0, [4]float32{0, 0.9, 0, 1})
	src.Set(0, 1, [4]float32{0.4, 0, 0, 1})
	src.Set(1, 1, [4]float32{0, 0, 0.1, 1})
	dst := evalTexture(t, d, 1, 1)

	body := "var m = 0.0;\n" +
		"for (var y = 0; y < 2; y++) {\n" +
		"for (var x = 0; x < 2; x++) {\n" +
		"let c = textureSample(src, vec2<f32>(f32(x) + 0.5, f32(y) + 0.5));\n" +
		"m = max(m, max(c.r, max(c.g, c.b)));\n" +
		"}\n}\n" +
		"textureStore(out, vec2<i32>(0, 0), vec4<f32>(m, 0.0, 0.0, 1.0));\n"
	p := &gpux.Program{
		Source: computeSource("", body),
		Bindings: []gpux.Binding{
			{Name: "src", Type: gpux.BindSampledTexture, Texture: src},
			{Name: "out", Type: gpux.BindStorageTexture, Texture: dst},
		},
		Compute:    true,
		WorkgroupW: 1,
		WorkgroupH: 1,
		Hash:       6,
	}
	if err := d.DispatchCompute(p, 1, 1); err != nil {
		t.Fatalf("DispatchCompute: %v", err)
	}
	if got := dst.At(0, 0); math.Abs(float64(got[0])-0.9) > 1e-6 {
		t.Errorf("reduced max = %v, want 0.9", got)
	}
}

func TestEvalIntegerOps(t *testing.T) {
	d := New()
	defer d.Close()

	dst := evalTexture(t, d, 1, 1)
	body := "var v = 0u;\n" +
		"v = (3u << 2u) | (5u & 1u) ^ 0u;\n" +
		"v = v >> 1u;\n" +
		"color = vec4<f32>(f32(v) / 16.0, f32(7 % 4), 0.0, 1.0);\n"
	p := &gpux.Program{Source: fragSource("", body), Hash: 7}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 1, Y1: 1}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	// (12 | 1) >> 1 = 6
	got := dst.At(0, 0)
	if got[0] != 6.0/16 || got[1] != 3 {
		t.Errorf("texel = %v", got)
	}
}

func TestEvalMatrixTransform(t *testing.T) {
	d := New()
	defer d.Close()

	dst := evalTexture(t, d, 1, 1)
	decls := "const m = mat3x3<f32>(\n" +
		"vec3<f32>(1.0, 0.0, 0.0),\nvec3<f32>(0.0, 2.0, 0.0),\nvec3<f32>(0.0, 0.0, 4.0));\n"
	body := "color = vec4<f32>(m * vec3<f32>(0.1, 0.1, 0.1), 1.0);\n"
	p := &gpux.Program{Source: fragSource(decls, body), Hash: 10}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 1, Y1: 1}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	got := dst.At(0, 0)
	want := [3]float64{0.1, 0.2, 0.4}
	for i, w := range want {
		if math.Abs(float64(got[i])-w) > 1e-6 {
			t.Fatalf("texel = %v, want %v", got, want)
		}
	}
}

func TestEvalFallbackOutsideSubset(t *testing.T) {
	d := New()
	defer d.Close()

	dst := evalTexture(t, d, 2, 2)
	p := &gpux.Program{
		Source: fragSource("", "color = bitcast<vec4<f32>>(pos);\n"),
		Hash:   8,
	}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 2, Y1: 2}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	// Unknown builtins drop to the sentinel fill.
	if got := dst.At(1, 1); got != [4]float32{0.5, 0.5, 0.5, 1} {
		t.Errorf("fallback texel = %v", got)
	}
}

func TestEvalPrivateState(t *testing.T) {
	d := New()
	defer d.Close()

	dst := evalTexture(t, d, 1, 1)
	decls := "var<private> st: u32;\n" +
		"fn advance() -> f32 {\nst = st + 3u;\nreturn f32(st);\n}\n"
	body := "st = 1u;\n" +
		"let a = advance();\n" +
		"let b = advance();\n" +
		"color = vec4<f32>(a / 10.0, b / 10.0, 0.0, 1.0);\n"
	p := &gpux.Program{Source: fragSource(decls, body), Hash: 9}
	if err := d.DispatchFragment(p, dst, gpux.Rect{X1: 1, Y1: 1}); err != nil {
		t.Fatalf("DispatchFragment: %v", err)
	}
	if got := dst.At(0, 0); got[0] != 0.4 || got[1] != 0.7 {
		t.Errorf("texel = %v, want state 4 then 7", got)
	}
}
