// SPDX-License-Identifier: MIT

package cogsink

import (
	"errors"
	"testing"
)

// gridSource is a test double for a labeled array.
type gridSource struct {
	shape  []int
	dtype  DType
	gbox   *Geobox
	nodata *float64
}

func (s gridSource) Shape() []int    { return s.shape }
func (s gridSource) DType() DType    { return s.dtype }
func (s gridSource) Geobox() *Geobox { return s.gbox }

func (s gridSource) Nodata() (float64, bool) {
	if s.nodata == nil {
		return 0, false
	}
	return *s.nodata, true
}

func webMercator() *Geobox {
	return &Geobox{
		Width:     100,
		Height:    80,
		CRS:       "EPSG:3857",
		Transform: Affine{10, 0, 500, 0, -10, 600},
	}
}

func TestNewRasterInfo(t *testing.T) {
	for _, tc := range []struct {
		name  string
		shape []int
		count int
	}{
		{"TwoAxes", []int{80, 100}, 1},
		{"BandsLast", []int{80, 100, 3}, 3},
		{"BandsFirst", []int{3, 80, 100}, 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := gridSource{shape: tc.shape, dtype: Uint16, gbox: webMercator()}
			info, err := NewRasterInfo(src)
			if err != nil {
				t.Fatal(err)
			}
			if info.Width != 100 || info.Height != 80 {
				t.Errorf("got %dx%d, want 100x80", info.Width, info.Height)
			}
			if info.Count != tc.count {
				t.Errorf("got count %d, want %d", info.Count, tc.count)
			}
			if info.CRS != "EPSG:3857" {
				t.Errorf(`got CRS %q, want "EPSG:3857"`, info.CRS)
			}
		})
	}
}

func TestNewRasterInfoErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  gridSource
	}{
		{"NoGeobox", gridSource{shape: []int{80, 100}, dtype: Uint8}},
		{"ShapeMismatch", gridSource{shape: []int{100, 80}, dtype: Uint8, gbox: webMercator()}},
		{"ThreeAxisMismatch", gridSource{shape: []int{80, 3, 100}, dtype: Uint8, gbox: webMercator()}},
		{"TooManyAxes", gridSource{shape: []int{1, 2, 80, 100}, dtype: Uint8, gbox: webMercator()}},
		{"BadDType", gridSource{shape: []int{80, 100}, dtype: DType(99), gbox: webMercator()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewRasterInfo(tc.src); !errors.Is(err, ErrConfig) {
				t.Errorf("got %v, want ErrConfig", err)
			}
		})
	}
}

func TestNewRasterInfoNodata(t *testing.T) {
	nodata := -9999.0
	src := gridSource{shape: []int{80, 100}, dtype: Float32, gbox: webMercator(), nodata: &nodata}
	info, err := NewRasterInfo(src)
	if err != nil {
		t.Fatal(err)
	}
	if info.Nodata == nil || *info.Nodata != -9999 {
		t.Errorf("got nodata %v, want -9999", info.Nodata)
	}
}

func TestRasterSize(t *testing.T) {
	info := RasterInfo{Width: 1 << 16, Height: 1 << 16, Count: 1, DType: Uint16}
	if got, want := info.RasterSize(), int64(1)<<33; got != want {
		t.Errorf("got %d, want %d", got, want)
	}
}

func TestShrink2(t *testing.T) {
	info := RasterInfo{
		Width: 101, Height: 80, Count: 1, DType: Uint8,
		Transform: Affine{10, 0, 500, 0, -10, 600},
	}
	half := info.Shrink2()
	if half.Width != 50 || half.Height != 40 {
		t.Errorf("got %dx%d, want 50x40", half.Width, half.Height)
	}
	want := Affine{20, 0, 500, 0, -20, 600}
	if half.Transform != want {
		t.Errorf("got transform %v, want %v", half.Transform, want)
	}
}

func TestAffineApply(t *testing.T) {
	tr := Affine{10, 0, 500, 0, -10, 600}
	x, y := tr.Apply(3, 2)
	if x != 530 || y != 580 {
		t.Errorf("got (%g, %g), want (530, 580)", x, y)
	}
	if !tr.AxisAligned() {
		t.Error("expected axis-aligned")
	}
	if (Affine{10, 1, 0, 0, -10, 0}).AxisAligned() {
		t.Error("sheared transform reported axis-aligned")
	}
}

func TestBigTIFFResolve(t *testing.T) {
	small := RasterInfo{Width: 1024, Height: 1024, Count: 1, DType: Uint16}
	big := RasterInfo{Width: 1 << 17, Height: 1 << 17, Count: 1, DType: Uint16}
	if BigTIFFAuto.resolve(small) {
		t.Error("small raster resolved to BigTIFF")
	}
	if !BigTIFFAuto.resolve(big) {
		t.Error("8 GiB raster resolved to classic TIFF")
	}
	if !BigTIFFOn.resolve(small) || BigTIFFOff.resolve(big) {
		t.Error("explicit modes must win over size")
	}
}
