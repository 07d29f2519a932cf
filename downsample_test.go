// SPDX-License-Identifier: MIT

package cogsink

import (
	"testing"
)

func TestDownsampleUniform(t *testing.T) {
	// A uniform block must stay uniform at every level, whatever the
	// element type.
	w := Win(Range(0, 4), Range(0, 4))
	check := func(t *testing.T, b Block) {
		t.Helper()
		hw, hb := Downsample(w, b)
		if hb.Rows() != 2 || hb.Cols() != 2 {
			t.Fatalf("got %dx%d, want 2x2", hb.Rows(), hb.Cols())
		}
		if lo, hi, _ := spanBounds(t, hw[0]); lo != 0 || hi != 2 {
			t.Errorf("got rows [%d:%d), want [0:2)", lo, hi)
		}
	}

	t.Run("Uint8", func(t *testing.T) {
		vals := make([]uint8, 16)
		for i := range vals {
			vals[i] = 40
		}
		b := MakeBlock(4, 4, vals)
		check(t, b)
		_, hb := Downsample(w, b)
		got, _ := Values[uint8](hb)
		for _, v := range got {
			if v != 40 {
				t.Fatalf("got %d, want 40", v)
			}
		}
	})
	t.Run("Float64", func(t *testing.T) {
		vals := make([]float64, 16)
		for i := range vals {
			vals[i] = 2.5
		}
		b := MakeBlock(4, 4, vals)
		check(t, b)
		_, hb := Downsample(w, b)
		got, _ := Values[float64](hb)
		for _, v := range got {
			if v != 2.5 {
				t.Fatalf("got %g, want 2.5", v)
			}
		}
	})
}

func TestDownsampleNoOverflow(t *testing.T) {
	// Four maximal uint16 samples sum past the 16-bit range; the
	// accumulator must not wrap.
	b := MakeBlock(2, 2, []uint16{65535, 65535, 65535, 65535})
	_, hb := Downsample(Win(Range(0, 2), Range(0, 2)), b)
	got, err := Values[uint16](hb)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != 65535 {
		t.Errorf("got %d, want 65535", got[0])
	}
}

func TestDownsampleFloorsNegative(t *testing.T) {
	// -5 / 4 must round toward negative infinity, not toward zero.
	b := MakeBlock(2, 2, []int16{-1, -1, -1, -2})
	_, hb := Downsample(Win(Range(0, 2), Range(0, 2)), b)
	got, err := Values[int16](hb)
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != -2 {
		t.Errorf("got %d, want -2", got[0])
	}
}

func TestDownsampleIntegerFloor(t *testing.T) {
	b := MakeBlock(2, 2, []uint8{0, 1, 1, 1})
	_, hb := Downsample(Win(Range(0, 2), Range(0, 2)), b)
	got, _ := Values[uint8](hb)
	if got[0] != 0 {
		t.Errorf("got %d, want 0 (floor of 3/4)", got[0])
	}
}

func TestDownsampleFloatExact(t *testing.T) {
	b := MakeBlock(2, 2, []float32{1, 2, 3, 4})
	_, hb := Downsample(Win(Range(0, 2), Range(0, 2)), b)
	got, _ := Values[float32](hb)
	if got[0] != 2.5 {
		t.Errorf("got %g, want 2.5", got[0])
	}
}

func TestDownsampleDropsTrailing(t *testing.T) {
	// The trailing odd row and column are dropped, so only the top-left
	// 2x2 neighborhood contributes.
	vals := []uint8{
		4, 8, 99,
		12, 16, 99,
		99, 99, 99,
	}
	b := MakeBlock(3, 3, vals)
	_, hb := Downsample(Win(Range(0, 3), Range(0, 3)), b)
	if hb.Rows() != 1 || hb.Cols() != 1 {
		t.Fatalf("got %dx%d, want 1x1", hb.Rows(), hb.Cols())
	}
	got, _ := Values[uint8](hb)
	if got[0] != 10 {
		t.Errorf("got %d, want 10", got[0])
	}
}

func TestDownsampleInt32OwnDomain(t *testing.T) {
	// Four-byte integers accumulate in their own type.
	b := MakeBlock(2, 2, []int32{-7, -7, -7, -7})
	_, hb := Downsample(Win(Range(0, 2), Range(0, 2)), b)
	got, _ := Values[int32](hb)
	if got[0] != -7 {
		t.Errorf("got %d, want -7", got[0])
	}
}

func TestDownsampleRowMajor(t *testing.T) {
	// Neighborhoods are 2x2 in raster space, not consecutive in the
	// flat slice.
	vals := []uint8{
		0, 0, 100, 100,
		0, 0, 100, 100,
		200, 200, 44, 44,
		200, 200, 44, 44,
	}
	b := MakeBlock(4, 4, vals)
	_, hb := Downsample(Win(Range(0, 4), Range(0, 4)), b)
	got, _ := Values[uint8](hb)
	want := []uint8{0, 100, 200, 44}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("cell %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestBlockBytes(t *testing.T) {
	b := MakeBlock(1, 2, []uint16{0x0102, 0x0304})
	raw, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x02, 0x01, 0x04, 0x03} // little-endian
	if len(raw) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(raw), len(want))
	}
	for i := range want {
		if raw[i] != want[i] {
			t.Errorf("byte %d: got %#x, want %#x", i, raw[i], want[i])
		}
	}
}

func TestValuesTypeMismatch(t *testing.T) {
	b := MakeBlock(1, 1, []uint8{1})
	if _, err := Values[uint16](b); err == nil {
		t.Error("expected an error for mismatched element type")
	}
}
