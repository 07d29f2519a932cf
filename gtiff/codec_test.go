// SPDX-License-Identifier: MIT

package gtiff

import (
	"bytes"
	"testing"

	"github.com/geotiled/cogsink"
)

func TestCodecRoundtripDeflate(t *testing.T) {
	raw := make([]byte, 64*64*2)
	for i := range raw {
		raw[i] = byte(i * 7)
	}
	opts := cogsink.CreationOptions{Compression: cogsink.Deflate, Level: 6, Predictor: true}
	c := newCodec(opts, cogsink.Uint16, 64)

	enc, err := c.encode(raw)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := decodeTile(enc, compressionDeflate, predictorHorizontal, cogsink.Uint16, 64)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, raw) {
		t.Error("roundtrip changed the payload")
	}
}

func TestCodecRoundtripZstd(t *testing.T) {
	raw := make([]byte, 32*32*4)
	for i := range raw {
		raw[i] = byte(i % 251)
	}
	opts := cogsink.CreationOptions{Compression: cogsink.ZSTD, Level: 1}
	c := newCodec(opts, cogsink.Float32, 32)

	enc, err := c.encode(raw)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := decodeTile(enc, compressionZstd, predictorNone, cogsink.Float32, 32)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(dec, raw) {
		t.Error("roundtrip changed the payload")
	}
}

func TestCodecPredictorSkipsFloats(t *testing.T) {
	opts := cogsink.CreationOptions{Compression: cogsink.Deflate, Predictor: true}
	if newCodec(opts, cogsink.Float32, 16).predictor {
		t.Error("predictor must be disabled for floating-point samples")
	}
	if !newCodec(opts, cogsink.Int32, 16).predictor {
		t.Error("predictor must stay on for integer samples")
	}
}

func TestHorizontalDiffInverse(t *testing.T) {
	for _, dtype := range []cogsink.DType{cogsink.Uint8, cogsink.Uint16, cogsink.Uint32, cogsink.Float64} {
		data := make([]byte, 4*8*dtype.Size())
		for i := range data {
			data[i] = byte(i*13 + 5)
		}
		orig := append([]byte(nil), data...)
		horizontalDiff(data, dtype, 8)
		horizontalUndiff(data, dtype, 8)
		if !bytes.Equal(data, orig) {
			t.Errorf("%s: undiff(diff(x)) != x", dtype)
		}
	}
}

func TestHorizontalDiffRamp(t *testing.T) {
	// A linear ramp differences to a constant, which is the whole
	// point of the predictor.
	data := []byte{10, 20, 30, 40}
	horizontalDiff(data, cogsink.Uint8, 4)
	want := []byte{10, 10, 10, 10}
	if !bytes.Equal(data, want) {
		t.Errorf("got %v, want %v", data, want)
	}
}

func TestFillBytes(t *testing.T) {
	nodata := 260.0
	got := fillBytes(cogsink.Uint16, &nodata, 2)
	want := []byte{4, 1, 4, 1} // 260 little-endian, twice
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if got := fillBytes(cogsink.Int32, nil, 2); !bytes.Equal(got, make([]byte, 8)) {
		t.Errorf("nil nodata must fill with zero, got %v", got)
	}
}

func TestParseEPSG(t *testing.T) {
	for _, tc := range []struct {
		in   string
		code int
		ok   bool
	}{
		{"EPSG:3857", 3857, true},
		{"epsg:4326", 4326, true},
		{" EPSG:32633 ", 32633, true},
		{"EPSG:0", 0, false},
		{"EPSG:900913", 0, false}, // beyond the 16-bit GeoKey range
		{"+proj=longlat", 0, false},
		{"", 0, false},
	} {
		code, ok := parseEPSG(tc.in)
		if code != tc.code || ok != tc.ok {
			t.Errorf("parseEPSG(%q): got (%d, %v), want (%d, %v)", tc.in, code, ok, tc.code, tc.ok)
		}
	}
}
