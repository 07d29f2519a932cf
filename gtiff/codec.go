// SPDX-License-Identifier: MIT

package gtiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"runtime"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/geotiled/cogsink"
)

// codec compresses and decompresses raw little-endian tile payloads
// for one artifact's creation options and element type.
type codec struct {
	compression cogsink.Compression
	level       int
	predictor   bool
	dtype       cogsink.DType
	// tileCols is the sample count of one tile row, needed to apply
	// the predictor row by row.
	tileCols int
}

func newCodec(opts cogsink.CreationOptions, dtype cogsink.DType, tileCols int) codec {
	level := opts.Level
	if level == 0 {
		if opts.Compression == cogsink.ZSTD {
			level = 1
		} else {
			level = 6
		}
	}
	return codec{
		compression: opts.Compression,
		level:       level,
		predictor:   usePredictor(opts, dtype),
		dtype:       dtype,
		tileCols:    tileCols,
	}
}

// encode compresses one raw tile. The input is not modified.
func (c codec) encode(raw []byte) ([]byte, error) {
	if c.predictor {
		diffed := make([]byte, len(raw))
		copy(diffed, raw)
		horizontalDiff(diffed, c.dtype, c.tileCols)
		raw = diffed
	}

	switch c.compression {
	case cogsink.ZSTD:
		enc, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(c.level)),
			zstd.WithEncoderConcurrency(1))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case cogsink.Deflate:
		var buf bytes.Buffer
		zw, err := zlib.NewWriterLevel(&buf, c.level)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("gtiff: unknown compression %d", c.compression)
}

// decodeTile decompresses one tile payload back to raw little-endian
// samples, undoing the predictor. Used by the merge-copy when reading
// back temporary artifacts.
func decodeTile(data []byte, compression, predictor uint16, dtype cogsink.DType, tileCols int) ([]byte, error) {
	var raw []byte
	switch compression {
	case compressionZstd:
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		raw, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, err
		}
	case compressionDeflate:
		zr, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, err
		}
		if err := zr.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("gtiff: unknown compression code %d", compression)
	}

	if predictor == predictorHorizontal {
		horizontalUndiff(raw, dtype, tileCols)
	}
	return raw, nil
}

// horizontalDiff replaces every sample by its difference to the left
// neighbor, per row, with wrap-around arithmetic. Works in place on
// little-endian sample bytes.
func horizontalDiff(data []byte, dtype cogsink.DType, cols int) {
	esize := dtype.Size()
	rowBytes := cols * esize
	for row := 0; row+rowBytes <= len(data); row += rowBytes {
		r := data[row : row+rowBytes]
		switch esize {
		case 1:
			for i := len(r) - 1; i > 0; i-- {
				r[i] -= r[i-1]
			}
		case 2:
			for i := cols - 1; i > 0; i-- {
				v := binary.LittleEndian.Uint16(r[i*2:]) - binary.LittleEndian.Uint16(r[(i-1)*2:])
				binary.LittleEndian.PutUint16(r[i*2:], v)
			}
		case 4:
			for i := cols - 1; i > 0; i-- {
				v := binary.LittleEndian.Uint32(r[i*4:]) - binary.LittleEndian.Uint32(r[(i-1)*4:])
				binary.LittleEndian.PutUint32(r[i*4:], v)
			}
		case 8:
			for i := cols - 1; i > 0; i-- {
				v := binary.LittleEndian.Uint64(r[i*8:]) - binary.LittleEndian.Uint64(r[(i-1)*8:])
				binary.LittleEndian.PutUint64(r[i*8:], v)
			}
		}
	}
}

// horizontalUndiff reverses horizontalDiff in place.
func horizontalUndiff(data []byte, dtype cogsink.DType, cols int) {
	esize := dtype.Size()
	rowBytes := cols * esize
	for row := 0; row+rowBytes <= len(data); row += rowBytes {
		r := data[row : row+rowBytes]
		switch esize {
		case 1:
			for i := 1; i < len(r); i++ {
				r[i] += r[i-1]
			}
		case 2:
			for i := 1; i < cols; i++ {
				v := binary.LittleEndian.Uint16(r[i*2:]) + binary.LittleEndian.Uint16(r[(i-1)*2:])
				binary.LittleEndian.PutUint16(r[i*2:], v)
			}
		case 4:
			for i := 1; i < cols; i++ {
				v := binary.LittleEndian.Uint32(r[i*4:]) + binary.LittleEndian.Uint32(r[(i-1)*4:])
				binary.LittleEndian.PutUint32(r[i*4:], v)
			}
		case 8:
			for i := 1; i < cols; i++ {
				v := binary.LittleEndian.Uint64(r[i*8:]) + binary.LittleEndian.Uint64(r[(i-1)*8:])
				binary.LittleEndian.PutUint64(r[i*8:], v)
			}
		}
	}
}

// fillBytes builds n samples of the artifact's fill value in
// little-endian order: the nodata marker when one is set, zero
// otherwise.
func fillBytes(dtype cogsink.DType, nodata *float64, n int) []byte {
	esize := dtype.Size()
	out := make([]byte, n*esize)
	if nodata == nil || *nodata == 0 {
		return out
	}

	one := make([]byte, esize)
	v := *nodata
	switch dtype {
	case cogsink.Uint8:
		one[0] = uint8(v)
	case cogsink.Int8:
		one[0] = byte(int8(v))
	case cogsink.Uint16:
		binary.LittleEndian.PutUint16(one, uint16(v))
	case cogsink.Int16:
		binary.LittleEndian.PutUint16(one, uint16(int16(v)))
	case cogsink.Uint32:
		binary.LittleEndian.PutUint32(one, uint32(v))
	case cogsink.Int32:
		binary.LittleEndian.PutUint32(one, uint32(int32(v)))
	case cogsink.Float32:
		binary.LittleEndian.PutUint32(one, math.Float32bits(float32(v)))
	case cogsink.Float64:
		binary.LittleEndian.PutUint64(one, math.Float64bits(v))
	}
	for i := 0; i < n; i++ {
		copy(out[i*esize:], one)
	}
	return out
}

// workers resolves the codec parallelism of an artifact: the
// configured thread cap, or all CPUs when unset.
func workers(opts cogsink.CreationOptions) int {
	if opts.NumThreads > 0 {
		return opts.NumThreads
	}
	return runtime.GOMAXPROCS(0)
}
