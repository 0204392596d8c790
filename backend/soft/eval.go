// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package soft

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/vidre/gpux"
)

// This file interprets the WGSL the shader builder generates, so fragment
// and single-invocation compute dispatches produce real pixels instead of
// a sentinel fill. The grammar is the subset the renderer emits; anything
// outside it bails out and the dispatch falls back to the sentinel.

// bailout aborts interpretation of one dispatch.
type bailout struct{ msg string }

func bail(format string, args ...any) {
	panic(bailout{fmt.Sprintf(format, args...)})
}

// retSignal unwinds a function body at a return statement.
type retSignal struct{ v value }

// value is a WGSL runtime value: a 1..4 component vector (float or
// integer flavored), a 3x3 matrix, a storage buffer view, or an array.
type value struct {
	n    int
	c    [4]float64
	m    *[3][3]float64 // column-major
	xs   []float64      // storage buffer contents
	a    []value
	isInt bool
	uns  bool
}

func scalar(f float64) value       { return value{n: 1, c: [4]float64{f}} }
func uintVal(u uint32) value       { return value{n: 1, c: [4]float64{float64(u)}, isInt: true, uns: true} }
func (v value) isScalar() bool     { return v.n == 1 && v.m == nil && v.a == nil && v.xs == nil }
func (v value) scalarOrBail() float64 {
	if !v.isScalar() {
		bail("scalar expected")
	}
	return v.c[0]
}

// lexer

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNum
	tokPunct
)

type token struct {
	k   tokKind
	s   string
	f   float64
	uns bool
}

var puncts = []string{
	"<<=", ">>=", "++", "--", "<<", ">>", "<=", ">=", "==", "!=",
	"&&", "||", "+=", "-=", "*=", "/=", "->",
	"+", "-", "*", "/", "%", "=", "<", ">", "(", ")", "{", "}",
	"[", "]", ",", ";", ":", ".", "&", "|", "^", "!", "@",
}

func lex(src string) []token {
	var toks []token
	i := 0
	for i < len(src) {
		ch := src[i]
		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			i++
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case ch >= '0' && ch <= '9' || ch == '.' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9':
			j := i
			for j < len(src) && (src[j] >= '0' && src[j] <= '9' || src[j] == '.') {
				j++
			}
			if j < len(src) && (src[j] == 'e' || src[j] == 'E') {
				j++
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				for j < len(src) && src[j] >= '0' && src[j] <= '9' {
					j++
				}
			}
			f, err := strconv.ParseFloat(src[i:j], 64)
			if err != nil {
				bail("bad number %q", src[i:j])
			}
			t := token{k: tokNum, f: f}
			if j < len(src) && (src[j] == 'u' || src[j] == 'i') {
				t.uns = src[j] == 'u'
				t.s = "int"
				j++
			} else if !strings.ContainsAny(src[i:j], ".eE") {
				t.s = "int"
			}
			toks = append(toks, t)
			i = j
		case ch == '_' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z':
			j := i
			for j < len(src) && (src[j] == '_' || src[j] >= 'a' && src[j] <= 'z' ||
				src[j] >= 'A' && src[j] <= 'Z' || src[j] >= '0' && src[j] <= '9') {
				j++
			}
			toks = append(toks, token{k: tokIdent, s: src[i:j]})
			i = j
		default:
			matched := false
			for _, p := range puncts {
				if strings.HasPrefix(src[i:], p) {
					toks = append(toks, token{k: tokPunct, s: p})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				bail("unexpected character %q", ch)
			}
		}
	}
	return append(toks, token{k: tokEOF})
}

// AST

type expr any
type stmt any

type numLit struct {
	f    float64
	isInt bool
	uns  bool
}
type identRef struct{ name string }
type swizzle struct {
	base expr
	idx  []int
}
type indexExpr struct{ base, i expr }
type callExpr struct {
	name string
	elem string // generic argument, "" when absent
	args []expr
}
type binExpr struct {
	op   string
	l, r expr
}
type unExpr struct {
	op string
	e  expr
}

type declStmt struct {
	name string
	typ  *typeSpec
	init expr // nil means zero value of typ
}
type assignStmt struct {
	target expr
	op     string // "=", "+=", "-=", "*=", "/=", "<<=", ">>="
	rhs    expr
}
type ifStmt struct {
	cond expr
	body []stmt
}
type forStmt struct {
	init stmt
	cond expr
	post stmt
	body []stmt
}
type blockStmt struct{ body []stmt }
type exprStmt struct{ e expr }
type returnStmt struct{ e expr }

type typeSpec struct {
	name string // f32, u32, i32, vec2..vec4, array
	elem *typeSpec
	size int
}

type fnDecl struct {
	params []string
	body   []stmt
}

type uniformDecl struct {
	name string
	typ  *typeSpec
}

type varDecl struct {
	name string
	typ  *typeSpec
}

// shaderProg is the parsed form of one generated program.
type shaderProg struct {
	uniforms []uniformDecl
	consts   []declStmt
	privs    []varDecl // var<private> and var<workgroup> declarations
	fns      map[string]*fnDecl
	main     []stmt
}

// parser

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token  { return p.toks[p.i] }
func (p *parser) next() token  { t := p.toks[p.i]; p.i++; return t }
func (p *parser) isPunct(s string) bool {
	t := p.peek()
	return t.k == tokPunct && t.s == s
}
func (p *parser) accept(s string) bool {
	if p.isPunct(s) {
		p.i++
		return true
	}
	return false
}
func (p *parser) expect(s string) {
	if !p.accept(s) {
		bail("expected %q, got %q", s, p.peek().s)
	}
}
func (p *parser) ident() string {
	t := p.next()
	if t.k != tokIdent {
		bail("identifier expected, got %q", t.s)
	}
	return t.s
}

func (p *parser) parseType() *typeSpec {
	name := p.ident()
	ts := &typeSpec{name: name}
	switch name {
	case "f32", "u32", "i32":
		return ts
	case "vec2", "vec3", "vec4", "mat3x3":
		p.expect("<")
		ts.elem = &typeSpec{name: p.ident()}
		p.expect(">")
		return ts
	case "array":
		p.expect("<")
		ts.elem = p.parseType()
		p.expect(",")
		t := p.next()
		if t.k != tokNum {
			bail("array size expected")
		}
		ts.size = int(t.f)
		p.expect(">")
		return ts
	}
	bail("unsupported type %q", name)
	return nil
}

// skipAttr consumes an @attr with an optional parenthesized argument.
func (p *parser) skipAttr() {
	p.ident()
	if p.accept("(") {
		depth := 1
		for depth > 0 {
			t := p.next()
			if t.k == tokEOF {
				bail("unterminated attribute")
			}
			if t.k == tokPunct && t.s == "(" {
				depth++
			}
			if t.k == tokPunct && t.s == ")" {
				depth--
			}
		}
	}
}

func parseProgram(src string, uniforms []uniformDecl) *shaderProg {
	sp := &shaderProg{uniforms: uniforms, fns: map[string]*fnDecl{}}
	p := &parser{toks: lex(src)}
	for p.peek().k != tokEOF {
		switch {
		case p.accept("@"):
			// @fragment or @compute [@workgroup_size(...)] fn main(...)
			p.skipAttr()
			for p.accept("@") {
				p.skipAttr()
			}
			if p.ident() != "fn" || p.ident() != "main" {
				bail("entry point expected")
			}
			p.expect("(")
			depth := 1
			for depth > 0 {
				t := p.next()
				if t.k == tokEOF {
					bail("unterminated parameter list")
				}
				if t.k == tokPunct && t.s == "(" {
					depth++
				}
				if t.k == tokPunct && t.s == ")" {
					depth--
				}
			}
			for !p.isPunct("{") {
				if p.peek().k == tokEOF {
					bail("entry body expected")
				}
				p.next()
			}
			p.expect("{")
			sp.main = p.parseBlock()
		default:
			kw := p.ident()
			switch kw {
			case "const":
				name := p.ident()
				var ts *typeSpec
				if p.accept(":") {
					ts = p.parseType()
				}
				p.expect("=")
				e := p.parseExpr(0)
				p.expect(";")
				sp.consts = append(sp.consts, declStmt{name: name, typ: ts, init: e})
			case "fn":
				name := p.ident()
				fd := &fnDecl{}
				p.expect("(")
				for !p.accept(")") {
					if len(fd.params) > 0 {
						p.expect(",")
					}
					fd.params = append(fd.params, p.ident())
					p.expect(":")
					p.parseType()
				}
				if p.accept("->") {
					p.parseType()
				}
				p.expect("{")
				fd.body = p.parseBlock()
				sp.fns[name] = fd
			case "var":
				// var<private> or var<workgroup> globals
				p.expect("<")
				p.ident()
				p.expect(">")
				name := p.ident()
				p.expect(":")
				ts := p.parseType()
				p.expect(";")
				sp.privs = append(sp.privs, varDecl{name: name, typ: ts})
			default:
				bail("unsupported declaration %q", kw)
			}
		}
	}
	if sp.main == nil {
		bail("no entry point")
	}
	return sp
}

// parseBlock parses statements up to the closing brace.
func (p *parser) parseBlock() []stmt {
	var out []stmt
	for !p.accept("}") {
		if p.peek().k == tokEOF {
			bail("unterminated block")
		}
		out = append(out, p.parseStmt())
	}
	return out
}

func (p *parser) parseStmt() stmt {
	if p.accept("{") {
		return blockStmt{p.parseBlock()}
	}
	t := p.peek()
	if t.k == tokIdent {
		switch t.s {
		case "let", "var":
			s := p.parseSimpleStmt()
			p.expect(";")
			return s
		case "if":
			p.next()
			cond := p.parseExpr(0)
			p.expect("{")
			return ifStmt{cond: cond, body: p.parseBlock()}
		case "for":
			p.next()
			p.expect("(")
			init := p.parseSimpleStmt()
			p.expect(";")
			cond := p.parseExpr(0)
			p.expect(";")
			post := p.parseSimpleStmt()
			p.expect(")")
			p.expect("{")
			return forStmt{init: init, cond: cond, post: post, body: p.parseBlock()}
		case "return":
			p.next()
			var e expr
			if !p.isPunct(";") {
				e = p.parseExpr(0)
			}
			p.expect(";")
			return returnStmt{e}
		}
	}
	s := p.parseSimpleStmt()
	p.expect(";")
	return s
}

// parseSimpleStmt parses a declaration, assignment, increment or call,
// without the trailing semicolon. Used directly for for-loop clauses.
func (p *parser) parseSimpleStmt() stmt {
	t := p.peek()
	if t.k == tokIdent && (t.s == "let" || t.s == "var") {
		p.next()
		name := p.ident()
		var ts *typeSpec
		if p.accept(":") {
			ts = p.parseType()
		}
		var init expr
		if p.accept("=") {
			init = p.parseExpr(0)
		}
		return declStmt{name: name, typ: ts, init: init}
	}
	e := p.parseExpr(0)
	if p.accept("++") {
		return assignStmt{target: e, op: "+=", rhs: numLit{f: 1, isInt: true}}
	}
	if p.accept("--") {
		return assignStmt{target: e, op: "-=", rhs: numLit{f: 1, isInt: true}}
	}
	for _, op := range []string{"=", "+=", "-=", "*=", "/=", "<<=", ">>="} {
		if p.accept(op) {
			return assignStmt{target: e, op: op, rhs: p.parseExpr(0)}
		}
	}
	return exprStmt{e}
}

// binding powers, loosest first
var binPower = map[string]int{
	"||": 1, "&&": 2,
	"==": 3, "!=": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"|": 4, "^": 5, "&": 6,
	"<<": 7, ">>": 7,
	"+": 8, "-": 8,
	"*": 9, "/": 9, "%": 9,
}

func (p *parser) parseExpr(minBP int) expr {
	var left expr
	t := p.peek()
	switch {
	case t.k == tokNum:
		p.next()
		left = numLit{f: t.f, isInt: t.s == "int", uns: t.uns}
	case t.k == tokPunct && t.s == "-":
		p.next()
		left = unExpr{op: "-", e: p.parseExpr(10)}
	case t.k == tokPunct && t.s == "!":
		p.next()
		left = unExpr{op: "!", e: p.parseExpr(10)}
	case t.k == tokPunct && t.s == "(":
		p.next()
		left = p.parseExpr(0)
		p.expect(")")
	case t.k == tokIdent:
		name := p.ident()
		elem := ""
		switch name {
		case "vec2", "vec3", "vec4", "mat3x3":
			p.expect("<")
			elem = p.ident()
			p.expect(">")
		}
		if p.accept("(") {
			c := callExpr{name: name, elem: elem}
			for !p.accept(")") {
				if len(c.args) > 0 {
					p.expect(",")
				}
				c.args = append(c.args, p.parseExpr(0))
			}
			left = c
		} else {
			left = identRef{name}
		}
	default:
		bail("expression expected, got %q", t.s)
	}

	for {
		t = p.peek()
		if t.k == tokPunct && t.s == "." {
			p.next()
			left = swizzle{base: left, idx: swizzleIdx(p.ident())}
			continue
		}
		if t.k == tokPunct && t.s == "[" {
			p.next()
			i := p.parseExpr(0)
			p.expect("]")
			left = indexExpr{base: left, i: i}
			continue
		}
		if t.k == tokPunct {
			if bp, ok := binPower[t.s]; ok {
				if bp <= minBP {
					break
				}
				p.next()
				left = binExpr{op: t.s, l: left, r: p.parseExpr(bp)}
				continue
			}
		}
		break
	}
	return left
}

func swizzleIdx(s string) []int {
	idx := make([]int, 0, 4)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'x', 'r':
			idx = append(idx, 0)
		case 'y', 'g':
			idx = append(idx, 1)
		case 'z', 'b':
			idx = append(idx, 2)
		case 'w', 'a':
			idx = append(idx, 3)
		default:
			bail("bad swizzle %q", s)
		}
	}
	return idx
}

// runtime

type scope struct {
	vars   map[string]*value
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: map[string]*value{}, parent: parent}
}

func (s *scope) lookup(name string) *value {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v
		}
	}
	bail("undefined %q", name)
	return nil
}

func (s *scope) define(name string, v value) { s.vars[name] = &v }

type storeOp struct {
	t    *Texture
	x, y int
	c    [4]float32
}

// machine evaluates one dispatch of a parsed program.
type machine struct {
	sp     *shaderProg
	binds  map[string]*gpux.Binding
	consts *scope
	stores []storeOp
}

func newMachine(sp *shaderProg, p *gpux.Program) *machine {
	m := &machine{sp: sp, binds: map[string]*gpux.Binding{}}
	for i := range p.Bindings {
		b := &p.Bindings[i]
		m.binds[b.Name] = b
	}
	m.consts = newScope(nil)
	for _, u := range sp.uniforms {
		b, ok := m.binds[u.name]
		if !ok {
			bail("unbound uniform %q", u.name)
		}
		m.consts.define(u.name, decodeFloats(b.Data, typeComps(u.typ)))
	}
	for name, b := range m.binds {
		if b.Type == gpux.BindStorageBuffer {
			v := value{xs: make([]float64, len(b.Data)/4)}
			for i := range v.xs {
				v.xs[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b.Data[i*4:])))
			}
			m.consts.define(name, v)
		}
	}
	for _, c := range sp.consts {
		m.consts.define(c.name, m.eval(c.init, m.consts))
	}
	return m
}

func typeComps(ts *typeSpec) int {
	switch ts.name {
	case "vec2":
		return 2
	case "vec3":
		return 3
	case "vec4":
		return 4
	}
	return 1
}

func decodeFloats(data []byte, n int) value {
	v := value{n: n}
	for i := 0; i < n; i++ {
		if len(data) < (i+1)*4 {
			bail("short uniform payload")
		}
		v.c[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
	}
	return v
}

func zeroValue(ts *typeSpec) value {
	if ts == nil {
		return scalar(0)
	}
	switch ts.name {
	case "f32":
		return scalar(0)
	case "u32", "i32":
		return value{n: 1, isInt: true, uns: ts.name == "u32"}
	case "vec2", "vec3", "vec4":
		n := typeComps(ts)
		return value{n: n, isInt: ts.elem.name != "f32", uns: ts.elem.name == "u32"}
	case "array":
		v := value{a: make([]value, ts.size)}
		for i := range v.a {
			v.a[i] = zeroValue(ts.elem)
		}
		return v
	}
	bail("no zero value for %q", ts.name)
	return value{}
}

// invoke runs main once. For fragment programs pos is the pixel center
// and the returned value is the output color.
func (m *machine) invoke(posX, posY float64) value {
	priv := newScope(m.consts)
	for _, pv := range m.sp.privs {
		priv.define(pv.name, zeroValue(pv.typ))
	}
	inv := newScope(priv)
	inv.define("pos_raw", value{n: 4, c: [4]float64{posX, posY, 0, 1}})
	inv.define("gid", value{n: 3, isInt: true, uns: true})
	out := value{n: 4}
	func() {
		defer func() {
			if r := recover(); r != nil {
				if rs, ok := r.(retSignal); ok {
					out = rs.v
					return
				}
				panic(r)
			}
		}()
		m.exec(m.sp.main, inv)
	}()
	return out
}

func (m *machine) exec(body []stmt, s *scope) {
	for _, st := range body {
		m.execStmt(st, s)
	}
}

func (m *machine) execStmt(st stmt, s *scope) {
	switch st := st.(type) {
	case declStmt:
		if st.init != nil {
			s.define(st.name, m.eval(st.init, s))
		} else {
			s.define(st.name, zeroValue(st.typ))
		}
	case assignStmt:
		rhs := m.eval(st.rhs, s)
		if st.op != "=" {
			cur := m.eval(st.target, s)
			rhs = binOp(strings.TrimSuffix(st.op, "="), cur, rhs)
		}
		m.assign(st.target, rhs, s)
	case ifStmt:
		if truthy(m.eval(st.cond, s)) {
			m.exec(st.body, newScope(s))
		}
	case forStmt:
		ls := newScope(s)
		m.execStmt(st.init, ls)
		for iter := 0; truthy(m.eval(st.cond, ls)); iter++ {
			if iter > 1<<22 {
				bail("runaway loop")
			}
			m.exec(st.body, newScope(ls))
			m.execStmt(st.post, ls)
		}
	case blockStmt:
		m.exec(st.body, newScope(s))
	case exprStmt:
		m.eval(st.e, s)
	case returnStmt:
		var v value
		if st.e != nil {
			v = m.eval(st.e, s)
		}
		panic(retSignal{v})
	default:
		bail("unsupported statement %T", st)
	}
}

func truthy(v value) bool {
	if v.n < 1 {
		bail("condition is not a scalar")
	}
	return v.c[0] != 0
}

// assign resolves an lvalue chain and writes v into it.
func (m *machine) assign(target expr, v value, s *scope) {
	switch t := target.(type) {
	case identRef:
		*s.lookup(t.name) = v
	case swizzle:
		p := m.resolve(t.base, s)
		if len(t.idx) == 1 {
			p.c[t.idx[0]] = v.scalarOrBail()
			return
		}
		if v.n != len(t.idx) {
			bail("swizzle store arity")
		}
		for i, d := range t.idx {
			p.c[d] = v.c[i]
		}
	case indexExpr:
		p := m.resolve(t.base, s)
		if p.a == nil {
			bail("indexed store into non-array")
		}
		i := int(m.eval(t.i, s).scalarOrBail())
		if i < 0 || i >= len(p.a) {
			bail("index %d out of range", i)
		}
		p.a[i] = v
	default:
		bail("unsupported assignment target %T", target)
	}
}

// resolve walks an lvalue chain down to a mutable value.
func (m *machine) resolve(e expr, s *scope) *value {
	switch e := e.(type) {
	case identRef:
		return s.lookup(e.name)
	case indexExpr:
		p := m.resolve(e.base, s)
		if p.a == nil {
			bail("index into non-array")
		}
		i := int(m.eval(e.i, s).scalarOrBail())
		if i < 0 || i >= len(p.a) {
			bail("index %d out of range", i)
		}
		return &p.a[i]
	default:
		bail("unsupported lvalue %T", e)
		return nil
	}
}

func (m *machine) eval(e expr, s *scope) value {
	switch e := e.(type) {
	case numLit:
		return value{n: 1, c: [4]float64{e.f}, isInt: e.isInt, uns: e.uns}
	case identRef:
		return *s.lookup(e.name)
	case swizzle:
		v := m.eval(e.base, s)
		out := value{n: len(e.idx), isInt: v.isInt, uns: v.uns}
		for i, d := range e.idx {
			if d >= v.n {
				bail("swizzle out of range")
			}
			out.c[i] = v.c[d]
		}
		return out
	case indexExpr:
		base := m.eval(e.base, s)
		i := int(m.eval(e.i, s).scalarOrBail())
		if base.xs != nil {
			if i < 0 || i >= len(base.xs) {
				bail("buffer index %d out of range", i)
			}
			return scalar(base.xs[i])
		}
		if base.a != nil {
			if i < 0 || i >= len(base.a) {
				bail("index %d out of range", i)
			}
			return base.a[i]
		}
		bail("index into non-array")
	case unExpr:
		v := m.eval(e.e, s)
		out := v
		for i := 0; i < v.n; i++ {
			if e.op == "-" {
				out.c[i] = -v.c[i]
			} else {
				out.c[i] = b2f(v.c[i] == 0)
			}
		}
		return out
	case binExpr:
		return binOp(e.op, m.eval(e.l, s), m.eval(e.r, s))
	case callExpr:
		return m.call(e, s)
	}
	bail("unsupported expression %T", e)
	return value{}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// binOp applies a binary operator with scalar broadcast. Integer values
// use 32-bit semantics for the bitwise operators and unsigned wraparound
// for arithmetic, which is what the generated hash functions rely on.
func binOp(op string, l, r value) value {
	if l.m != nil {
		if op != "*" || r.n != 3 {
			bail("unsupported matrix operation %q", op)
		}
		out := value{n: 3}
		for row := 0; row < 3; row++ {
			out.c[row] = l.m[0][row]*r.c[0] + l.m[1][row]*r.c[1] + l.m[2][row]*r.c[2]
		}
		return out
	}
	if l.n < 1 || r.n < 1 {
		bail("operator %q on non-vector", op)
	}
	n := l.n
	if r.n > n {
		n = r.n
	}
	if l.n != n && l.n != 1 || r.n != n && r.n != 1 {
		bail("operator %q arity mismatch", op)
	}
	get := func(v value, i int) float64 {
		if v.n == 1 {
			return v.c[0]
		}
		return v.c[i]
	}
	ints := l.isInt && r.isInt
	out := value{n: n, isInt: ints, uns: l.uns || r.uns}
	for i := 0; i < n; i++ {
		a, b := get(l, i), get(r, i)
		switch op {
		case "+", "-", "*":
			if ints && out.uns {
				out.c[i] = float64(wrap32(op, a, b))
				break
			}
			switch op {
			case "+":
				out.c[i] = a + b
			case "-":
				out.c[i] = a - b
			default:
				out.c[i] = a * b
			}
		case "/":
			if ints {
				if b == 0 {
					bail("integer division by zero")
				}
				out.c[i] = math.Trunc(a / b)
			} else {
				out.c[i] = a / b
			}
		case "%":
			if ints {
				if b == 0 {
					bail("integer modulo by zero")
				}
				out.c[i] = float64(int64(a) % int64(b))
			} else {
				out.c[i] = math.Mod(a, b)
			}
		case "<<":
			out.c[i] = float64(uint32(int64(a)) << (uint32(int64(b)) & 31))
			out.isInt, out.uns = true, true
		case ">>":
			out.c[i] = float64(uint32(int64(a)) >> (uint32(int64(b)) & 31))
			out.isInt, out.uns = true, true
		case "&":
			out.c[i] = float64(uint32(int64(a)) & uint32(int64(b)))
			out.isInt, out.uns = true, true
		case "|":
			out.c[i] = float64(uint32(int64(a)) | uint32(int64(b)))
			out.isInt, out.uns = true, true
		case "^":
			out.c[i] = float64(uint32(int64(a)) ^ uint32(int64(b)))
			out.isInt, out.uns = true, true
		case "<":
			out.c[i], out.isInt = b2f(a < b), false
		case "<=":
			out.c[i], out.isInt = b2f(a <= b), false
		case ">":
			out.c[i], out.isInt = b2f(a > b), false
		case ">=":
			out.c[i], out.isInt = b2f(a >= b), false
		case "==":
			out.c[i], out.isInt = b2f(a == b), false
		case "!=":
			out.c[i], out.isInt = b2f(a != b), false
		case "&&":
			out.c[i], out.isInt = b2f(a != 0 && b != 0), false
		case "||":
			out.c[i], out.isInt = b2f(a != 0 || b != 0), false
		default:
			bail("unsupported operator %q", op)
		}
	}
	return out
}

// wrap32 performs unsigned 32-bit arithmetic for +, - and *.
func wrap32(op string, a, b float64) uint32 {
	ua, ub := uint32(int64(a)), uint32(int64(b))
	switch op {
	case "+":
		return ua + ub
	case "-":
		return ua - ub
	default:
		return ua * ub
	}
}

func (m *machine) call(e callExpr, s *scope) value {
	switch e.name {
	case "vec2", "vec3", "vec4":
		n := typeComps(&typeSpec{name: e.name})
		out := value{n: n, isInt: e.elem != "f32", uns: e.elem == "u32"}
		var comps []float64
		for _, a := range e.args {
			v := m.eval(a, s)
			comps = append(comps, v.c[:v.n]...)
		}
		switch {
		case len(comps) == 1:
			for i := 0; i < n; i++ {
				out.c[i] = comps[0]
			}
		case len(comps) == n:
			copy(out.c[:], comps)
		default:
			bail("%s arity %d", e.name, len(comps))
		}
		if out.isInt {
			for i := 0; i < n; i++ {
				out.c[i] = math.Trunc(out.c[i])
			}
		}
		return out
	case "mat3x3":
		if len(e.args) != 3 {
			bail("mat3x3 arity")
		}
		var cols [3][3]float64
		for i, a := range e.args {
			v := m.eval(a, s)
			if v.n != 3 {
				bail("mat3x3 column arity")
			}
			copy(cols[i][:], v.c[:3])
		}
		return value{m: &cols}
	case "f32":
		return scalar(m.eval(e.args[0], s).scalarOrBail())
	case "u32":
		f := m.eval(e.args[0], s).scalarOrBail()
		return uintVal(uint32(int64(math.Trunc(f))))
	case "i32":
		f := m.eval(e.args[0], s).scalarOrBail()
		return value{n: 1, c: [4]float64{math.Trunc(f)}, isInt: true}
	case "textureSample":
		return m.sample(e, s)
	case "textureStore":
		m.store(e, s)
		return value{}
	case "min", "max":
		return zip2(m.eval(e.args[0], s), m.eval(e.args[1], s), func(a, b float64) float64 {
			if e.name == "min" {
				return math.Min(a, b)
			}
			return math.Max(a, b)
		})
	case "clamp":
		v := m.eval(e.args[0], s)
		lo := m.eval(e.args[1], s)
		hi := m.eval(e.args[2], s)
		return zip2(zip2(v, lo, math.Max), hi, math.Min)
	case "mix":
		a := m.eval(e.args[0], s)
		b := m.eval(e.args[1], s)
		t := m.eval(e.args[2], s)
		return binOp("+", a, binOp("*", binOp("-", b, a), t))
	case "pow":
		return zip2(m.eval(e.args[0], s), m.eval(e.args[1], s), math.Pow)
	case "select":
		f := m.eval(e.args[0], s)
		t := m.eval(e.args[1], s)
		cond := m.eval(e.args[2], s)
		n := f.n
		out := value{n: n, isInt: f.isInt, uns: f.uns}
		for i := 0; i < n; i++ {
			c := cond.c[0]
			if cond.n > 1 {
				c = cond.c[i]
			}
			if c != 0 {
				out.c[i] = t.c[i]
			} else {
				out.c[i] = f.c[i]
			}
		}
		return out
	case "floor":
		return map1(m.eval(e.args[0], s), math.Floor)
	case "ceil":
		return map1(m.eval(e.args[0], s), math.Ceil)
	case "round":
		return map1(m.eval(e.args[0], s), math.Round)
	case "abs":
		return map1(m.eval(e.args[0], s), math.Abs)
	case "sqrt":
		return map1(m.eval(e.args[0], s), math.Sqrt)
	case "exp":
		return map1(m.eval(e.args[0], s), math.Exp)
	case "log":
		return map1(m.eval(e.args[0], s), math.Log)
	case "cos":
		return map1(m.eval(e.args[0], s), math.Cos)
	case "sin":
		return map1(m.eval(e.args[0], s), math.Sin)
	case "dot":
		a := m.eval(e.args[0], s)
		b := m.eval(e.args[1], s)
		if a.n != b.n {
			bail("dot arity mismatch")
		}
		sum := 0.0
		for i := 0; i < a.n; i++ {
			sum += a.c[i] * b.c[i]
		}
		return scalar(sum)
	case "length":
		v := m.eval(e.args[0], s)
		sum := 0.0
		for i := 0; i < v.n; i++ {
			sum += v.c[i] * v.c[i]
		}
		return scalar(math.Sqrt(sum))
	}
	if fd, ok := m.sp.fns[e.name]; ok {
		return m.callUser(fd, e.args, s)
	}
	bail("unknown function %q", e.name)
	return value{}
}

func map1(v value, f func(float64) float64) value {
	out := v
	out.isInt = false
	for i := 0; i < v.n; i++ {
		out.c[i] = f(v.c[i])
	}
	return out
}

func zip2(l, r value, f func(a, b float64) float64) value {
	if l.n < 1 || r.n < 1 {
		bail("vector expected")
	}
	n := l.n
	if r.n > n {
		n = r.n
	}
	out := value{n: n, isInt: l.isInt && r.isInt, uns: l.uns || r.uns}
	for i := 0; i < n; i++ {
		a, b := l.c[0], r.c[0]
		if l.n > 1 {
			a = l.c[i]
		}
		if r.n > 1 {
			b = r.c[i]
		}
		out.c[i] = f(a, b)
	}
	return out
}

func (m *machine) callUser(fd *fnDecl, args []expr, s *scope) (out value) {
	if len(args) != len(fd.params) {
		bail("call arity mismatch")
	}
	fs := newScope(firstNonLocal(s))
	for i, p := range fd.params {
		fs.define(p, m.eval(args[i], s))
	}
	defer func() {
		if r := recover(); r != nil {
			if rs, ok := r.(retSignal); ok {
				out = rs.v
				return
			}
			panic(r)
		}
	}()
	m.exec(fd.body, fs)
	return value{}
}

// firstNonLocal finds the invocation-global scope so function bodies see
// constants and var<private> state but not the caller's locals.
func firstNonLocal(s *scope) *scope {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.vars["pos_raw"]; ok {
			return sc.parent
		}
	}
	return s
}

// sample reads a bound texture at a pixel-space coordinate.
func (m *machine) sample(e callExpr, s *scope) value {
	id, ok := e.args[0].(identRef)
	if !ok {
		bail("textureSample target must be a binding")
	}
	b, ok2 := m.binds[id.name]
	if !ok2 || b.Type != gpux.BindSampledTexture {
		bail("unbound texture %q", id.name)
	}
	t := b.Texture.(*Texture)
	co := m.eval(e.args[1], s)
	if co.n != 2 {
		bail("sample coordinate arity")
	}
	c := sampleTexture(t, b.Linear, co.c[0], co.c[1])
	return value{n: 4, c: [4]float64{float64(c[0]), float64(c[1]), float64(c[2]), float64(c[3])}}
}

func sampleTexture(t *Texture, linear bool, cx, cy float64) [4]float32 {
	w, h := t.params.W, t.params.H
	if !linear {
		return t.At(clampi(int(math.Floor(cx)), 0, w-1), clampi(int(math.Floor(cy)), 0, h-1))
	}
	fx, fy := cx-0.5, cy-0.5
	x0, y0 := int(math.Floor(fx)), int(math.Floor(fy))
	ax, ay := float32(fx-float64(x0)), float32(fy-float64(y0))
	tap := func(x, y int) [4]float32 {
		return t.At(clampi(x, 0, w-1), clampi(y, 0, h-1))
	}
	c00, c10 := tap(x0, y0), tap(x0+1, y0)
	c01, c11 := tap(x0, y0+1), tap(x0+1, y0+1)
	var out [4]float32
	for i := 0; i < 4; i++ {
		top := c00[i] + (c10[i]-c00[i])*ax
		bot := c01[i] + (c11[i]-c01[i])*ax
		out[i] = top + (bot-top)*ay
	}
	return out
}

func clampi(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// store buffers a storage-image write; writes commit only after the whole
// dispatch evaluated, so a bailout never leaves a half-written texture.
func (m *machine) store(e callExpr, s *scope) {
	id, ok := e.args[0].(identRef)
	if !ok {
		bail("textureStore target must be a binding")
	}
	b, ok2 := m.binds[id.name]
	if !ok2 || b.Type != gpux.BindStorageTexture {
		bail("unbound storage texture %q", id.name)
	}
	t := b.Texture.(*Texture)
	co := m.eval(e.args[1], s)
	v := m.eval(e.args[2], s)
	if co.n != 2 || v.n != 4 {
		bail("textureStore arity")
	}
	x, y := int(co.c[0]), int(co.c[1])
	if x < 0 || y < 0 || x >= t.params.W || y >= t.params.H {
		return
	}
	m.stores = append(m.stores, storeOp{t: t, x: x, y: y, c: [4]float32{
		float32(v.c[0]), float32(v.c[1]), float32(v.c[2]), float32(v.c[3]),
	}})
}

func (m *machine) commit() {
	for _, st := range m.stores {
		st.t.Set(st.x, st.y, st.c)
	}
	m.stores = nil
}

// extractUniforms pulls the "// uniform name: typ" markers the builder
// emits for dynamic values out of the source before lexing strips them.
func extractUniforms(src string) []uniformDecl {
	var out []uniformDecl
	for _, line := range strings.Split(src, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "// uniform ")
		if !ok {
			continue
		}
		name, typ, ok := strings.Cut(rest, ":")
		if !ok {
			continue
		}
		p := &parser{toks: lex(strings.TrimSpace(typ))}
		out = append(out, uniformDecl{
			name: strings.TrimSpace(name),
			typ:  p.parseType(),
		})
	}
	return out
}

// parse returns the cached AST for a program, or false when the source
// falls outside the interpreted subset.
func (d *Device) parse(p *gpux.Program) (*shaderProg, bool) {
	if sp, ok := d.progs[p.Hash]; ok {
		return sp, sp != nil
	}
	var sp *shaderProg
	func() {
		defer func() {
			if r := recover(); r != nil {
				if _, ok := r.(bailout); ok {
					sp = nil
					return
				}
				panic(r)
			}
		}()
		sp = parseProgram(p.Source, extractUniforms(p.Source))
	}()
	d.progs[p.Hash] = sp
	return sp, sp != nil
}

// runFragment interprets a fragment program over dstRect. It reports
// false when the program falls outside the interpreted subset, in which
// case nothing was written.
func (d *Device) runFragment(p *gpux.Program, t *Texture, dstRect gpux.Rect) (done bool) {
	sp, ok := d.parse(p)
	if !ok || p.Compute {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); ok {
				done = false
				return
			}
			panic(r)
		}
	}()
	m := newMachine(sp, p)
	type px struct {
		x, y int
		c    [4]float32
	}
	var out []px
	for y := maxInt(dstRect.Y0, 0); y < dstRect.Y1 && y < t.params.H; y++ {
		for x := maxInt(dstRect.X0, 0); x < dstRect.X1 && x < t.params.W; x++ {
			v := m.invoke(float64(x)+0.5, float64(y)+0.5)
			if v.n != 4 {
				bail("fragment returned %d components", v.n)
			}
			out = append(out, px{x, y, [4]float32{
				float32(v.c[0]), float32(v.c[1]), float32(v.c[2]), float32(v.c[3]),
			}})
		}
	}
	m.commit()
	for _, o := range out {
		t.Set(o.x, o.y, o.c)
	}
	return true
}

// runCompute interprets a single-invocation compute dispatch; wider grids
// are only acknowledged.
func (d *Device) runCompute(p *gpux.Program, groupsW, groupsH int) {
	if groupsW != 1 || groupsH != 1 || p.WorkgroupW != 1 || p.WorkgroupH != 1 {
		return
	}
	sp, ok := d.parse(p)
	if !ok || !p.Compute {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(bailout); ok {
				return
			}
			panic(r)
		}
	}()
	m := newMachine(sp, p)
	m.invoke(0, 0)
	m.commit()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
