// SPDX-License-Identifier: MIT

// Package cogsink writes large georeferenced rasters to tiled,
// compressed artifacts with embedded reduced-resolution overviews.
// Callers submit disjoint rectangular windows, possibly from many
// goroutines and in any order; every overview level is kept consistent
// with the data written above it, and a single finalization step merges
// the temporary per-level artifacts into one durable output file.
//
// The container format itself is behind the Backend interface; package
// gtiff provides the GeoTIFF implementation.
package cogsink

import (
	"fmt"
)

// DType identifies the fixed-width numeric element type of a raster.
type DType uint8

const (
	Uint8 DType = iota + 1
	Int8
	Uint16
	Int16
	Uint32
	Int32
	Float32
	Float64
)

// Size returns the width of one element in bytes.
func (d DType) Size() int {
	switch d {
	case Uint8, Int8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	case Float64:
		return 8
	}
	return 0
}

// Float reports whether d is a floating-point type.
func (d DType) Float() bool {
	return d == Float32 || d == Float64
}

// Signed reports whether d is a signed integer type.
func (d DType) Signed() bool {
	return d == Int8 || d == Int16 || d == Int32
}

func (d DType) String() string {
	switch d {
	case Uint8:
		return "uint8"
	case Int8:
		return "int8"
	case Uint16:
		return "uint16"
	case Int16:
		return "int16"
	case Uint32:
		return "uint32"
	case Int32:
		return "int32"
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	}
	return fmt.Sprintf("DType(%d)", uint8(d))
}

// Affine is a 2D affine geotransform with coefficients (a, b, c, d, e, f):
//
//	x = a*col + b*row + c
//	y = d*col + e*row + f
//
// c and f are the coordinates of the upper-left corner of the raster;
// a and e are the pixel width and (usually negative) pixel height.
type Affine [6]float64

// Scale returns a transform that scales columns by sx and rows by sy.
func Scale(sx, sy float64) Affine {
	return Affine{sx, 0, 0, 0, sy, 0}
}

// Mul composes two transforms: (t.Mul(o))(p) == t(o(p)).
func (t Affine) Mul(o Affine) Affine {
	return Affine{
		t[0]*o[0] + t[1]*o[3],
		t[0]*o[1] + t[1]*o[4],
		t[0]*o[2] + t[1]*o[5] + t[2],
		t[3]*o[0] + t[4]*o[3],
		t[3]*o[1] + t[4]*o[4],
		t[3]*o[2] + t[4]*o[5] + t[5],
	}
}

// Apply maps a (col, row) pixel position to world coordinates.
func (t Affine) Apply(col, row float64) (x, y float64) {
	return t[0]*col + t[1]*row + t[2], t[3]*col + t[4]*row + t[5]
}

// AxisAligned reports whether the transform has no rotation or shear
// terms, so it can be expressed as a pixel scale plus a tie point.
func (t Affine) AxisAligned() bool {
	return t[1] == 0 && t[3] == 0
}

// Geobox is the georeferencing of a raster grid: its pixel dimensions,
// coordinate reference system and affine geotransform.
type Geobox struct {
	Width, Height int
	CRS           string
	Transform     Affine
}

// GridSource is the minimal view of a labeled array from which a
// RasterInfo can be derived. Sources that carry a nodata marker
// additionally implement NodataSource.
type GridSource interface {
	// Shape returns the axis lengths, outermost first. Two or three
	// axes are accepted; see NewRasterInfo.
	Shape() []int
	DType() DType
	// Geobox returns the source's georeferencing, or nil if the
	// source is not georeferenced.
	Geobox() *Geobox
}

// NodataSource is implemented by grid sources with a nodata marker.
type NodataSource interface {
	Nodata() (float64, bool)
}

// RasterInfo describes one resolution level of a raster: dimensions,
// band count, element type, georeferencing and optional nodata marker.
// It is an immutable value; Shrink2 derives new levels from it.
type RasterInfo struct {
	Width, Height int
	Count         int
	DType         DType
	CRS           string
	Transform     Affine
	Nodata        *float64
}

// NewRasterInfo derives a descriptor from a labeled array. The source
// must be georeferenced. Three-axis sources must have either their
// first two or their last two axes equal to (height, width); the
// remaining axis is the band count.
func NewRasterInfo(src GridSource) (RasterInfo, error) {
	gbox := src.Geobox()
	if gbox == nil {
		return RasterInfo{}, fmt.Errorf("%w: source has no georeferencing", ErrConfig)
	}
	if src.DType().Size() == 0 {
		return RasterInfo{}, fmt.Errorf("%w: unknown element type", ErrConfig)
	}

	height, width := gbox.Height, gbox.Width
	shape := src.Shape()
	var count int
	switch len(shape) {
	case 2:
		if shape[0] != height || shape[1] != width {
			return RasterInfo{}, fmt.Errorf("%w: geobox %dx%d does not match shape %v",
				ErrConfig, height, width, shape)
		}
		count = 1
	case 3:
		if shape[0] == height && shape[1] == width {
			count = shape[2]
		} else if shape[1] == height && shape[2] == width {
			count = shape[0]
		} else {
			return RasterInfo{}, fmt.Errorf("%w: geobox %dx%d does not match shape %v",
				ErrConfig, height, width, shape)
		}
	default:
		return RasterInfo{}, fmt.Errorf("%w: need 2 or 3 axes, got %d", ErrConfig, len(shape))
	}

	info := RasterInfo{
		Width:     width,
		Height:    height,
		Count:     count,
		DType:     src.DType(),
		CRS:       gbox.CRS,
		Transform: gbox.Transform,
	}
	if ns, ok := src.(NodataSource); ok {
		if nodata, ok := ns.Nodata(); ok {
			info.Nodata = &nodata
		}
	}
	return info, nil
}

// RasterSize returns the size of the uncompressed raster in bytes.
func (info RasterInfo) RasterSize() int64 {
	return int64(info.DType.Size()) * int64(info.Width) * int64(info.Height) * int64(info.Count)
}

// Shrink2 returns the descriptor of the half-resolution level below
// this one: dimensions floor-halved, geotransform scaled by two on
// both axes, everything else unchanged.
func (info RasterInfo) Shrink2() RasterInfo {
	out := info
	out.Width = info.Width / 2
	out.Height = info.Height / 2
	out.Transform = info.Transform.Mul(Scale(2, 2))
	return out
}

func (info RasterInfo) String() string {
	return fmt.Sprintf("%dx%d..%d..%s", info.Width, info.Height, info.Count, info.DType)
}
