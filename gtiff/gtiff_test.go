// SPDX-License-Identifier: MIT

package gtiff

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/geotiled/cogsink"
)

func testInfo(width, height int) cogsink.RasterInfo {
	return cogsink.RasterInfo{
		Width: width, Height: height, Count: 1, DType: cogsink.Uint16,
		CRS:       "EPSG:3857",
		Transform: cogsink.Affine{10, 0, 500, 0, -10, 600},
	}
}

func TestCreateRejectsUnresolvedTransient(t *testing.T) {
	_, err := Backend{}.Create(cogsink.DestTransient(), cogsink.CreateSpec{
		Info: testInfo(64, 64), BlockX: 64, BlockY: 64,
	})
	if err == nil {
		t.Fatal("expected an error for an unresolved transient destination")
	}
}

func TestCreateRejectsBadGeometry(t *testing.T) {
	m := NewMemFile("t")
	defer m.Close()
	for _, tc := range []struct {
		name string
		spec cogsink.CreateSpec
	}{
		{"ZeroWidth", cogsink.CreateSpec{Info: cogsink.RasterInfo{Height: 64, Count: 1, DType: cogsink.Uint8}, BlockX: 64, BlockY: 64}},
		{"TileNotMultipleOf16", cogsink.CreateSpec{Info: testInfo(64, 64), BlockX: 50, BlockY: 64}},
		{"ZeroTile", cogsink.CreateSpec{Info: testInfo(64, 64), BlockX: 0, BlockY: 64}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := (Backend{}).Create(cogsink.DestHandle(m), tc.spec); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// writeArtifact serializes one in-memory artifact from the given
// window writes and returns its bytes.
func writeArtifact(t *testing.T, info cogsink.RasterInfo, opts cogsink.CreationOptions, writes []blockWrite) []byte {
	t.Helper()
	m := NewMemFile("t")
	defer m.Close()
	ds, err := Backend{}.Create(cogsink.DestHandle(m), cogsink.CreateSpec{
		Info: info, BlockX: 32, BlockY: 32, Options: opts,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range writes {
		if err := ds.WriteBlock(w.rect, 1, w.block); err != nil {
			t.Fatal(err)
		}
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}
	raw, err := m.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

type blockWrite struct {
	rect  cogsink.Rect
	block cogsink.Block
}

func gradient(rect cogsink.Rect) cogsink.Block {
	vals := make([]uint16, rect.W*rect.H)
	for y := 0; y < rect.H; y++ {
		for x := 0; x < rect.W; x++ {
			vals[y*rect.W+x] = uint16((rect.Y+y)*100 + rect.X + x)
		}
	}
	return cogsink.MakeBlock(rect.H, rect.W, vals)
}

// The serialized artifact must not depend on how the writes were
// sliced, only on the data they carried.
func TestDatasetDeterministic(t *testing.T) {
	info := testInfo(64, 48)
	opts := cogsink.DefaultCreationOptions()

	whole := writeArtifact(t, info, opts, []blockWrite{
		{cogsink.Rect{X: 0, Y: 0, W: 64, H: 48}, gradient(cogsink.Rect{X: 0, Y: 0, W: 64, H: 48})},
	})
	sliced := writeArtifact(t, info, opts, []blockWrite{
		{cogsink.Rect{X: 0, Y: 0, W: 64, H: 20}, gradient(cogsink.Rect{X: 0, Y: 0, W: 64, H: 20})},
		{cogsink.Rect{X: 0, Y: 20, W: 30, H: 28}, gradient(cogsink.Rect{X: 0, Y: 20, W: 30, H: 28})},
		{cogsink.Rect{X: 30, Y: 20, W: 34, H: 28}, gradient(cogsink.Rect{X: 30, Y: 20, W: 34, H: 28})},
	})
	if !bytes.Equal(whole, sliced) {
		t.Error("artifact bytes differ between write slicings")
	}
}

func TestDatasetReadback(t *testing.T) {
	info := testInfo(64, 48)
	full := cogsink.Rect{X: 0, Y: 0, W: 64, H: 48}
	raw := writeArtifact(t, info, cogsink.DefaultCreationOptions(), []blockWrite{
		{full, gradient(full)},
	})

	tf, err := parseTIFF(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(tf.ifds) != 1 {
		t.Fatalf("got %d IFDs, want 1", len(tf.ifds))
	}
	ifd := tf.ifds[0]
	if ifd.width != 64 || ifd.height != 48 {
		t.Errorf("got %dx%d, want 64x48", ifd.width, ifd.height)
	}

	mos, err := tf.mosaic(ifd, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	want, err := gradient(full).Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(mos, want) {
		t.Error("read-back samples differ from the written gradient")
	}
}

func TestDatasetSparse(t *testing.T) {
	info := testInfo(64, 64)
	raw := writeArtifact(t, info, cogsink.TempCreationOptions(), nil)

	tf, err := parseTIFF(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	for i, c := range tf.ifds[0].counts {
		if c != 0 {
			t.Errorf("tile %d materialized in a sparse artifact (%d bytes)", i, c)
		}
	}
}

func TestBigTIFFReadback(t *testing.T) {
	info := testInfo(64, 48)
	full := cogsink.Rect{X: 0, Y: 0, W: 64, H: 48}

	m := NewMemFile("t")
	defer m.Close()
	ds, err := Backend{}.Create(cogsink.DestHandle(m), cogsink.CreateSpec{
		Info: info, BlockX: 32, BlockY: 32, BigTIFF: true,
		Options: cogsink.DefaultCreationOptions(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.WriteBlock(full, 1, gradient(full)); err != nil {
		t.Fatal(err)
	}
	if err := ds.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := m.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	tf, err := parseTIFF(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if !tf.f.big {
		t.Error("artifact did not parse as BigTIFF")
	}
	mos, err := tf.mosaic(tf.ifds[0], 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := gradient(full).Bytes()
	if !bytes.Equal(mos, want) {
		t.Error("read-back samples differ from the written gradient")
	}
}

func TestPyramidEndToEnd(t *testing.T) {
	info := testInfo(64, 64)
	dst := filepath.Join(t.TempDir(), "out.tif")

	p, err := cogsink.NewPyramidSink(Backend{}, info, dst, cogsink.PyramidConfig{
		BlockSize:         32,
		OverviewBlockSize: 16,
	})
	if err != nil {
		t.Fatal(err)
	}

	// Two strips, split on an even row so the 2x2 neighborhoods never
	// straddle the seam.
	full := gradient(cogsink.Rect{X: 0, Y: 0, W: 64, H: 64})
	vals, _ := cogsink.Values[uint16](full)
	top := cogsink.MakeBlock(32, 64, vals[:32*64])
	bottom := cogsink.MakeBlock(32, 64, vals[32*64:])
	if err := p.Write(cogsink.Win(cogsink.Range(0, 32), cogsink.Range(0, 64)), top); err != nil {
		t.Fatal(err)
	}
	if err := p.Write(cogsink.Win(cogsink.Range(32, 64), cogsink.Range(0, 64)), bottom); err != nil {
		t.Fatal(err)
	}
	if err := p.Finalize(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}

	// The ghost area sits right behind the classic header.
	if !bytes.Contains(raw[:512], []byte("GDAL_STRUCTURAL_METADATA_SIZE=")) {
		t.Error("missing structural metadata ghost area")
	}
	if !bytes.Contains(raw[:512], []byte("KNOWN_INCOMPATIBLE_EDITION=NO \n")) {
		t.Error("missing or malformed incompatible-edition marker")
	}

	tf, err := parseTIFF(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(tf.ifds) != 4 {
		t.Fatalf("got %d IFDs, want 4 (64, 32, 16, 8)", len(tf.ifds))
	}

	// Every overview must match an iterated Downsample of the full
	// image exactly.
	w := cogsink.Win(cogsink.Range(0, 64), cogsink.Range(0, 64))
	expect := full
	for i, ifd := range tf.ifds {
		if ifd.width != 64>>i || ifd.height != 64>>i {
			t.Fatalf("IFD %d: got %dx%d, want %dx%d", i, ifd.width, ifd.height, 64>>i, 64>>i)
		}
		mos, err := tf.mosaic(ifd, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		want, err := expect.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(mos, want) {
			t.Errorf("IFD %d: samples differ from the box-filtered source", i)
		}
		w, expect = cogsink.Downsample(w, expect)
	}
}

func TestPyramidEndToEndUntouched(t *testing.T) {
	// Finalizing without a single write must still produce a valid,
	// fully materialized artifact reading back as nodata.
	nodata := 7.0
	info := testInfo(32, 32)
	info.Nodata = &nodata
	dst := filepath.Join(t.TempDir(), "empty.tif")

	p, err := cogsink.NewPyramidSink(Backend{}, info, dst, cogsink.PyramidConfig{
		BlockSize: 16,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Finalize(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	tf, err := parseTIFF(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	for i, ifd := range tf.ifds {
		for j, c := range ifd.counts {
			if c == 0 {
				t.Fatalf("IFD %d tile %d is sparse in the final artifact", i, j)
			}
		}
		mos, err := tf.mosaic(ifd, 1, nil)
		if err != nil {
			t.Fatal(err)
		}
		for j := 0; j+2 <= len(mos); j += 2 {
			if mos[j] != 7 || mos[j+1] != 0 {
				t.Fatalf("IFD %d: sample %d is not nodata", i, j/2)
			}
		}
	}
}
