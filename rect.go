// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package vidre

import (
	"math"

	"github.com/gogpu/vidre/gpux"
)

// Rect is a floating-point pixel rectangle. Crops and sampling regions are
// fractional: sub-pixel offsets matter for plane alignment.
type Rect struct {
	X0, Y0, X1, Y1 float64
}

// RectWH returns a rectangle anchored at the origin.
func RectWH(w, h float64) Rect { return Rect{X1: w, Y1: h} }

// W returns the (possibly negative, for flipped rects) width.
func (r Rect) W() float64 { return r.X1 - r.X0 }

// H returns the height.
func (r Rect) H() float64 { return r.Y1 - r.Y0 }

// Empty reports whether the rectangle spans no area.
func (r Rect) Empty() bool { return r.W() == 0 || r.H() == 0 }

// Normalized flips the rectangle so that X0 <= X1 and Y0 <= Y1.
func (r Rect) Normalized() Rect {
	if r.X0 > r.X1 {
		r.X0, r.X1 = r.X1, r.X0
	}
	if r.Y0 > r.Y1 {
		r.Y0, r.Y1 = r.Y1, r.Y0
	}
	return r
}

// Offset translates the rectangle.
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{r.X0 + dx, r.Y0 + dy, r.X1 + dx, r.Y1 + dy}
}

// Scale multiplies all coordinates, mapping between subsampled planes.
func (r Rect) Scale(sx, sy float64) Rect {
	return Rect{r.X0 * sx, r.Y0 * sy, r.X1 * sx, r.Y1 * sy}
}

// RoundInt truncates toward zero into an integer rectangle. Truncation,
// not rounding, keeps plane boundaries seam-free when the reference plane
// is aligned first.
func (r Rect) RoundInt() gpux.Rect {
	return gpux.Rect{
		X0: int(r.X0), Y0: int(r.Y0),
		X1: int(r.X1), Y1: int(r.Y1),
	}
}

// IntCeil returns the smallest integer rectangle covering r.
func (r Rect) IntCeil() gpux.Rect {
	return gpux.Rect{
		X0: int(math.Floor(r.X0)), Y0: int(math.Floor(r.Y0)),
		X1: int(math.Ceil(r.X1)), Y1: int(math.Ceil(r.Y1)),
	}
}

// ApproxEqual compares rectangles within eps per coordinate.
func (r Rect) ApproxEqual(o Rect, eps float64) bool {
	return math.Abs(r.X0-o.X0) <= eps && math.Abs(r.Y0-o.Y0) <= eps &&
		math.Abs(r.X1-o.X1) <= eps && math.Abs(r.Y1-o.Y1) <= eps
}
