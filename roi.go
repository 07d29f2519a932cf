// SPDX-License-Identifier: MIT

package cogsink

import "fmt"

// An AxisSel selects positions along one raster axis. The two variants
// are Index (a single position) and Span (a range with optional
// bounds and step).
type AxisSel interface {
	shrink2() AxisSel
}

// Index selects a single position along an axis.
type Index int

// Span selects a half-open range along an axis. A nil Start, Stop or
// Step is "unspecified": Start defaults to 0, Stop to the axis length,
// Step to 1.
type Span struct {
	Start, Stop, Step *int
}

// Range returns the span [start, stop).
func Range(start, stop int) Span {
	return Span{Start: &start, Stop: &stop}
}

// All returns the span covering a whole axis.
func All() Span {
	return Span{}
}

// Window addresses a rectangular sub-region of a raster, one selector
// per axis, rows before columns.
type Window []AxisSel

// Win builds a two-axis window from a row span and a column span.
func Win(rows, cols Span) Window {
	return Window{rows, cols}
}

// floorDiv2 halves x, rounding toward negative infinity.
func floorDiv2(x int) int {
	if x < 0 {
		return (x - 1) / 2
	}
	return x / 2
}

func (i Index) shrink2() AxisSel {
	return Index(floorDiv2(int(i)))
}

func (s Span) shrink2() AxisSel {
	half := func(p *int) *int {
		if p == nil {
			return nil
		}
		v := floorDiv2(*p)
		return &v
	}
	return Span{Start: half(s.Start), Stop: half(s.Stop), Step: half(s.Step)}
}

// Shrink2 maps a window onto the half-resolution level below: every
// bound, step and index is floor-halved, and unspecified bounds stay
// unspecified. Selectors are halved independently per axis.
func (w Window) Shrink2() Window {
	out := make(Window, len(w))
	for i, sel := range w {
		out[i] = sel.shrink2()
	}
	return out
}

// Rect is an absolute pixel window resolved against a raster extent:
// X/Y are the column/row offsets of the upper-left corner.
type Rect struct {
	X, Y, W, H int
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// resolve turns a span into concrete [lo, hi) bounds for an axis of
// the given length. Steps other than 1 are not writable.
func (s Span) resolve(dim int) (lo, hi int, err error) {
	if s.Step != nil && *s.Step != 1 {
		return 0, 0, fmt.Errorf("%w: step %d not supported for writes", ErrInvalidWindow, *s.Step)
	}
	lo, hi = 0, dim
	if s.Start != nil {
		lo = *s.Start
	}
	if s.Stop != nil {
		hi = *s.Stop
	}
	if lo < 0 || hi > dim || lo > hi {
		return 0, 0, fmt.Errorf("%w: [%d:%d) outside axis of length %d", ErrInvalidWindow, lo, hi, dim)
	}
	return lo, hi, nil
}

// resolveRect resolves a two-axis window (row span, column span)
// against the full raster extent.
func resolveRect(w Window, width, height int) (Rect, error) {
	rows, ok := w[0].(Span)
	if !ok {
		return Rect{}, fmt.Errorf("%w: row selector must be a span", ErrInvalidWindow)
	}
	cols, ok := w[1].(Span)
	if !ok {
		return Rect{}, fmt.Errorf("%w: column selector must be a span", ErrInvalidWindow)
	}
	y0, y1, err := rows.resolve(height)
	if err != nil {
		return Rect{}, err
	}
	x0, x1, err := cols.resolve(width)
	if err != nil {
		return Rect{}, err
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, nil
}
