// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package arena provides a bump allocator scoped to one render pass.
//
// Pass-temporary slices (uniform payloads, staged LUTs, kernel weights) are
// carved out of one growing buffer and released in bulk by Reset at the end
// of the pass, so per-frame rendering does not churn the garbage collector.
package arena

// Arena is a byte bump allocator. Not safe for concurrent use; each render
// pass owns exactly one.
type Arena struct {
	buf []byte
	off int
}

// New creates an arena with the given initial capacity.
func New(capacity int) *Arena {
	if capacity <= 0 {
		capacity = 1 << 12
	}
	return &Arena{buf: make([]byte, capacity)}
}

// Bytes returns a zeroed slice of n bytes valid until the next Reset.
func (a *Arena) Bytes(n int) []byte {
	if n <= 0 {
		return nil
	}
	if a.off+n > len(a.buf) {
		grow := len(a.buf) * 2
		if grow < a.off+n {
			grow = a.off + n
		}
		// Previously handed-out slices stay valid in the old buffer;
		// only the arena forgets them until Reset.
		a.buf = make([]byte, grow)
		a.off = 0
	}
	s := a.buf[a.off : a.off+n : a.off+n]
	a.off += n
	for i := range s {
		s[i] = 0
	}
	return s
}

// Used reports the bytes allocated since the last Reset in the current
// buffer.
func (a *Arena) Used() int { return a.off }

// Reset releases every allocation at once. The backing buffer is retained
// at its grown size for the next pass.
func (a *Arena) Reset() { a.off = 0 }
