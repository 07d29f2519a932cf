// SPDX-License-Identifier: MIT

package cogsink

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Pixel is the set of raster element types.
type Pixel interface {
	~uint8 | ~int8 | ~uint16 | ~int16 | ~uint32 | ~int32 | ~float32 | ~float64
}

// Block is a single-band, row-major 2D pixel buffer. The zero value is
// an empty block.
type Block struct {
	dtype DType
	rows  int
	cols  int
	data  any // []uint8 | []int8 | ... matching dtype
}

// MakeBlock wraps vals, which must hold rows*cols elements in row-major
// order, into a block. It panics on a length mismatch, which is always
// a programming error.
func MakeBlock[T Pixel](rows, cols int, vals []T) Block {
	if len(vals) != rows*cols {
		panic(fmt.Sprintf("block %dx%d needs %d values, got %d", rows, cols, rows*cols, len(vals)))
	}
	return Block{dtype: dtypeOf(vals), rows: rows, cols: cols, data: vals}
}

func dtypeOf[T Pixel](vals []T) DType {
	switch any(vals).(type) {
	case []uint8:
		return Uint8
	case []int8:
		return Int8
	case []uint16:
		return Uint16
	case []int16:
		return Int16
	case []uint32:
		return Uint32
	case []int32:
		return Int32
	case []float32:
		return Float32
	case []float64:
		return Float64
	}
	// Named types with a Pixel underlying type are not accepted: the
	// element type must round-trip through the container unchanged.
	panic(fmt.Sprintf("unsupported element type %T", vals))
}

func (b Block) DType() DType { return b.dtype }
func (b Block) Rows() int    { return b.rows }
func (b Block) Cols() int    { return b.cols }

func (b Block) Empty() bool { return b.rows == 0 || b.cols == 0 }

// Values returns the backing slice of a block. The type parameter must
// match the block's element type.
func Values[T Pixel](b Block) ([]T, error) {
	vals, ok := b.data.([]T)
	if !ok {
		return nil, fmt.Errorf("block holds %s values", b.dtype)
	}
	return vals, nil
}

// Encode writes the block's samples to w in little-endian order.
func (b Block) Encode(w io.Writer) error {
	if b.Empty() {
		return nil
	}
	return binary.Write(w, binary.LittleEndian, b.data)
}

// Bytes returns the block's samples in little-endian order.
func (b Block) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(b.rows * b.cols * b.dtype.Size())
	if err := b.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
