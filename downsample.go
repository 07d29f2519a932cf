// SPDX-License-Identifier: MIT

package cogsink

// Downsample derives the half-resolution equivalent of a just-written
// window and block: the window is floor-halved per axis, and the block
// is reduced by averaging non-overlapping 2x2 neighborhoods. A trailing
// odd row or column is dropped, not padded.
//
// The sum of each neighborhood is accumulated in int32 when the element
// type is two bytes or narrower, otherwise in the element's own type.
// Integer types divide by four with floor semantics; floating types
// divide exactly. This is pure and deterministic: the whole pyramid's
// cross-level consistency rests on it.
func Downsample(w Window, b Block) (Window, Block) {
	return w.Shrink2(), shrinkBlock(b)
}

func shrinkBlock(b Block) Block {
	switch vals := b.data.(type) {
	case []uint8:
		return boxNarrow(b, vals)
	case []int8:
		return boxNarrow(b, vals)
	case []uint16:
		return boxNarrow(b, vals)
	case []int16:
		return boxNarrow(b, vals)
	case []uint32:
		return boxWideUint(b, vals)
	case []int32:
		return boxWideInt(b, vals)
	case []float32:
		return boxFloat(b, vals)
	case []float64:
		return boxFloat(b, vals)
	}
	return Block{}
}

// floorDiv4 divides by four, rounding toward negative infinity.
func floorDiv4(x int32) int32 {
	q := x >> 2
	return q
}

// boxNarrow reduces elements of two bytes or narrower, summing in
// int32 so four maximal values cannot overflow.
func boxNarrow[T int8 | uint8 | int16 | uint16](b Block, src []T) Block {
	rows, cols := b.rows/2, b.cols/2
	out := make([]T, rows*cols)
	for y := 0; y < rows; y++ {
		top := src[2*y*b.cols:]
		bot := src[(2*y+1)*b.cols:]
		for x := 0; x < cols; x++ {
			sum := int32(top[2*x]) + int32(top[2*x+1]) + int32(bot[2*x]) + int32(bot[2*x+1])
			out[y*cols+x] = T(floorDiv4(sum))
		}
	}
	return MakeBlock(rows, cols, out)
}

// boxWideInt reduces int32 elements in their own domain, as the
// reference policy prescribes for four-byte integers.
func boxWideInt(b Block, src []int32) Block {
	rows, cols := b.rows/2, b.cols/2
	out := make([]int32, rows*cols)
	for y := 0; y < rows; y++ {
		top := src[2*y*b.cols:]
		bot := src[(2*y+1)*b.cols:]
		for x := 0; x < cols; x++ {
			sum := top[2*x] + top[2*x+1] + bot[2*x] + bot[2*x+1]
			out[y*cols+x] = floorDiv4(sum)
		}
	}
	return MakeBlock(rows, cols, out)
}

func boxWideUint(b Block, src []uint32) Block {
	rows, cols := b.rows/2, b.cols/2
	out := make([]uint32, rows*cols)
	for y := 0; y < rows; y++ {
		top := src[2*y*b.cols:]
		bot := src[(2*y+1)*b.cols:]
		for x := 0; x < cols; x++ {
			sum := top[2*x] + top[2*x+1] + bot[2*x] + bot[2*x+1]
			out[y*cols+x] = sum / 4
		}
	}
	return MakeBlock(rows, cols, out)
}

func boxFloat[T float32 | float64](b Block, src []T) Block {
	rows, cols := b.rows/2, b.cols/2
	out := make([]T, rows*cols)
	for y := 0; y < rows; y++ {
		top := src[2*y*b.cols:]
		bot := src[(2*y+1)*b.cols:]
		for x := 0; x < cols; x++ {
			sum := top[2*x] + top[2*x+1] + bot[2*x] + bot[2*x+1]
			out[y*cols+x] = sum / 4
		}
	}
	return MakeBlock(rows, cols, out)
}
