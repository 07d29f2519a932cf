// SPDX-License-Identifier: MIT

package gtiff

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/geotiled/cogsink"
)

// tiffFile is a parsed artifact. The reader handles exactly what this
// package writes: little-endian classic TIFF or BigTIFF, tiled,
// deflate- or zstd-compressed, optionally horizontally differenced.
type tiffFile struct {
	r    io.ReaderAt
	f    format
	ifds []ifdData
}

// ifdData is the structural subset of one image directory that the
// merge-copy needs.
type ifdData struct {
	width, height int
	tileW, tileH  int
	samples       int
	bits          uint16
	sampleFormat  uint16
	compression   uint16
	predictor     uint16
	offsets       []uint64
	counts        []uint64
}

func (d ifdData) dtype() (cogsink.DType, error) {
	switch d.sampleFormat {
	case sampleFormatUint:
		switch d.bits {
		case 8:
			return cogsink.Uint8, nil
		case 16:
			return cogsink.Uint16, nil
		case 32:
			return cogsink.Uint32, nil
		}
	case sampleFormatInt:
		switch d.bits {
		case 8:
			return cogsink.Int8, nil
		case 16:
			return cogsink.Int16, nil
		case 32:
			return cogsink.Int32, nil
		}
	case sampleFormatFloat:
		switch d.bits {
		case 32:
			return cogsink.Float32, nil
		case 64:
			return cogsink.Float64, nil
		}
	}
	return 0, fmt.Errorf("gtiff: unsupported sample format %d/%d bits", d.sampleFormat, d.bits)
}

func parseTIFF(r io.ReaderAt) (*tiffFile, error) {
	var hdr [16]byte
	if _, err := r.ReadAt(hdr[:8], 0); err != nil {
		return nil, err
	}
	if hdr[0] != 'I' || hdr[1] != 'I' {
		return nil, fmt.Errorf("gtiff: not a little-endian TIFF")
	}

	t := &tiffFile{r: r}
	var next uint64
	switch binary.LittleEndian.Uint16(hdr[2:4]) {
	case 42:
		next = uint64(binary.LittleEndian.Uint32(hdr[4:8]))
	case 43:
		if _, err := r.ReadAt(hdr[4:16], 4); err != nil {
			return nil, err
		}
		if binary.LittleEndian.Uint16(hdr[4:6]) != 8 {
			return nil, fmt.Errorf("gtiff: unsupported BigTIFF offset size")
		}
		t.f.big = true
		next = binary.LittleEndian.Uint64(hdr[8:16])
	default:
		return nil, fmt.Errorf("gtiff: bad TIFF version")
	}

	for next != 0 {
		ifd, nextPos, err := t.readIFD(int64(next))
		if err != nil {
			return nil, err
		}
		t.ifds = append(t.ifds, ifd)
		next = nextPos
		if len(t.ifds) > 64 {
			return nil, fmt.Errorf("gtiff: runaway IFD chain")
		}
	}
	if len(t.ifds) == 0 {
		return nil, fmt.Errorf("gtiff: no image directories")
	}
	return t, nil
}

func (t *tiffFile) readIFD(pos int64) (ifdData, uint64, error) {
	f := t.f
	var n uint64
	if f.big {
		var buf [8]byte
		if _, err := t.r.ReadAt(buf[:], pos); err != nil {
			return ifdData{}, 0, err
		}
		n = binary.LittleEndian.Uint64(buf[:])
	} else {
		var buf [2]byte
		if _, err := t.r.ReadAt(buf[:], pos); err != nil {
			return ifdData{}, 0, err
		}
		n = uint64(binary.LittleEndian.Uint16(buf[:]))
	}
	if n > 4096 {
		return ifdData{}, 0, fmt.Errorf("gtiff: implausible IFD entry count %d", n)
	}

	entries := make([]byte, int(n)*f.entrySize())
	entriesPos := pos + int64(f.countFieldSize())
	if _, err := t.r.ReadAt(entries, entriesPos); err != nil {
		return ifdData{}, 0, err
	}

	ifd := ifdData{samples: 1}
	for i := 0; i < int(n); i++ {
		e := entries[i*f.entrySize() : (i+1)*f.entrySize()]
		tag := binary.LittleEndian.Uint16(e[0:2])
		typ := binary.LittleEndian.Uint16(e[2:4])
		var count uint64
		if f.big {
			count = binary.LittleEndian.Uint64(e[4:12])
		} else {
			count = uint64(binary.LittleEndian.Uint32(e[4:8]))
		}
		slot := e[f.entrySize()-f.offsetSize():]

		switch tag {
		case tagImageWidth, tagImageHeight, tagTileWidth, tagTileHeight,
			tagBitsPerSample, tagSampleFormat, tagCompression,
			tagPredictor, tagSamplesPerPixel, tagTileOffsets, tagTileByteCounts:
		default:
			continue // structural subset only
		}

		vals, err := t.readUints(slot, typ, count)
		if err != nil {
			return ifdData{}, 0, fmt.Errorf("gtiff: tag %d: %w", tag, err)
		}
		switch tag {
		case tagImageWidth:
			ifd.width = int(vals[0])
		case tagImageHeight:
			ifd.height = int(vals[0])
		case tagTileWidth:
			ifd.tileW = int(vals[0])
		case tagTileHeight:
			ifd.tileH = int(vals[0])
		case tagBitsPerSample:
			ifd.bits = uint16(vals[0])
		case tagSampleFormat:
			ifd.sampleFormat = uint16(vals[0])
		case tagCompression:
			ifd.compression = uint16(vals[0])
		case tagPredictor:
			ifd.predictor = uint16(vals[0])
		case tagSamplesPerPixel:
			ifd.samples = int(vals[0])
		case tagTileOffsets:
			ifd.offsets = vals
		case tagTileByteCounts:
			ifd.counts = vals
		}
	}

	nextPos := entriesPos + int64(n)*int64(f.entrySize())
	var next uint64
	if f.big {
		var buf [8]byte
		if _, err := t.r.ReadAt(buf[:], nextPos); err != nil {
			return ifdData{}, 0, err
		}
		next = binary.LittleEndian.Uint64(buf[:])
	} else {
		var buf [4]byte
		if _, err := t.r.ReadAt(buf[:], nextPos); err != nil {
			return ifdData{}, 0, err
		}
		next = uint64(binary.LittleEndian.Uint32(buf[:]))
	}

	if ifd.width <= 0 || ifd.height <= 0 || ifd.tileW <= 0 || ifd.tileH <= 0 {
		return ifdData{}, 0, fmt.Errorf("gtiff: IFD at %d is not a tiled image", pos)
	}
	numTiles := tilesAcross(ifd.width, ifd.tileW) * tilesDown(ifd.height, ifd.tileH) * ifd.samples
	if len(ifd.offsets) != numTiles || len(ifd.counts) != numTiles {
		return ifdData{}, 0, fmt.Errorf("gtiff: IFD at %d: %d tiles, %d offsets, %d counts",
			pos, numTiles, len(ifd.offsets), len(ifd.counts))
	}
	return ifd, next, nil
}

// readUints fetches an entry's values, inline or pointed-to, as
// unsigned integers.
func (t *tiffFile) readUints(slot []byte, typ uint16, count uint64) ([]uint64, error) {
	size := typeSize(typ)
	if size == 0 || typ == typeASCII || typ == typeDouble {
		return nil, fmt.Errorf("unexpected field type %d", typ)
	}
	if count > 1<<24 {
		return nil, fmt.Errorf("implausible value count %d", count)
	}

	total := int(count) * size
	payload := slot
	if total > t.f.inlineSize() {
		var ptr uint64
		if t.f.big {
			ptr = binary.LittleEndian.Uint64(slot)
		} else {
			ptr = uint64(binary.LittleEndian.Uint32(slot))
		}
		payload = make([]byte, total)
		if _, err := t.r.ReadAt(payload, int64(ptr)); err != nil {
			return nil, err
		}
	}

	out := make([]uint64, count)
	for i := range out {
		switch typ {
		case typeShort:
			out[i] = uint64(binary.LittleEndian.Uint16(payload[i*2:]))
		case typeLong:
			out[i] = uint64(binary.LittleEndian.Uint32(payload[i*4:]))
		case typeLong8:
			out[i] = binary.LittleEndian.Uint64(payload[i*8:])
		}
	}
	return out, nil
}

// readTile fetches and decodes one tile to raw little-endian samples.
// Sparse tiles return nil.
func (t *tiffFile) readTile(ifd ifdData, idx int) ([]byte, error) {
	if ifd.counts[idx] == 0 {
		return nil, nil
	}
	dtype, err := ifd.dtype()
	if err != nil {
		return nil, err
	}
	data := make([]byte, ifd.counts[idx])
	if _, err := t.r.ReadAt(data, int64(ifd.offsets[idx])); err != nil {
		return nil, err
	}
	raw, err := decodeTile(data, ifd.compression, ifd.predictor, dtype, ifd.tileW)
	if err != nil {
		return nil, err
	}
	if want := ifd.tileW * ifd.tileH * dtype.Size(); len(raw) != want {
		return nil, fmt.Errorf("gtiff: tile %d decodes to %d bytes, want %d", idx, len(raw), want)
	}
	return raw, nil
}

// mosaic reassembles one band of an image directory into a full
// width*height sample buffer, fill-initialized so sparse tiles read
// back as fill.
func (t *tiffFile) mosaic(ifd ifdData, band int, fill []byte) ([]byte, error) {
	dtype, err := ifd.dtype()
	if err != nil {
		return nil, err
	}
	esize := dtype.Size()
	out := make([]byte, ifd.width*ifd.height*esize)
	for i := 0; i+len(fill) <= len(out) && len(fill) > 0; i += len(fill) {
		copy(out[i:], fill)
	}

	ntx := tilesAcross(ifd.width, ifd.tileW)
	nty := tilesDown(ifd.height, ifd.tileH)
	for ty := 0; ty < nty; ty++ {
		for tx := 0; tx < ntx; tx++ {
			idx := (band-1)*ntx*nty + ty*ntx + tx
			raw, err := t.readTile(ifd, idx)
			if err != nil {
				return nil, err
			}
			if raw == nil {
				continue
			}
			y1 := min(ifd.height, (ty+1)*ifd.tileH)
			x0 := tx * ifd.tileW
			x1 := min(ifd.width, (tx+1)*ifd.tileW)
			for y := ty * ifd.tileH; y < y1; y++ {
				src := ((y-ty*ifd.tileH)*ifd.tileW) * esize
				dst := (y*ifd.width + x0) * esize
				copy(out[dst:dst+(x1-x0)*esize], raw[src:])
			}
		}
	}
	return out, nil
}
