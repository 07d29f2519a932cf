// SPDX-License-Identifier: MIT

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/geotiled/cogsink"
)

func TestPaintScene(t *testing.T) {
	img := paintScene(256)
	b := img.Bounds()
	if b.Dx() != 256 || b.Dy() != 256 {
		t.Fatalf("got %dx%d, want 256x256", b.Dx(), b.Dy())
	}

	// The gradient must produce different values in opposite corners.
	tl, _, _, _ := img.At(0, 0).RGBA()
	br, _, _, _ := img.At(255, 255).RGBA()
	if tl == br {
		t.Error("scene is uniform; the gradient did not paint")
	}
}

func TestLumaStrip(t *testing.T) {
	img := paintScene(256)
	b := lumaStrip(img, 0, stripRows)
	if b.Rows() != stripRows || b.Cols() != 256 {
		t.Fatalf("got %dx%d, want %dx256", b.Rows(), b.Cols(), stripRows)
	}
	if b.DType() != cogsink.Uint16 {
		t.Errorf("got dtype %s, want uint16", b.DType())
	}
}

func TestBuild(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "scene.tif")
	if err := build(dst, 256, 128, ""); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) < 8 || raw[0] != 'I' || raw[1] != 'I' {
		t.Error("output is not a little-endian TIFF")
	}
}

func TestBuildRejectsBadSize(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "scene.tif")
	if err := build(dst, 100, 128, ""); err == nil {
		t.Error("expected an error for a size that is not a strip multiple")
	}
}
