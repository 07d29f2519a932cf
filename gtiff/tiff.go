// SPDX-License-Identifier: MIT

package gtiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/geotiled/cogsink"
)

// TIFF tags used by this writer.
const (
	tagNewSubfileType  = 254
	tagImageWidth      = 256
	tagImageHeight     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagSamplesPerPixel = 277
	tagPlanarConfig    = 284
	tagSoftware        = 305
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileHeight      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339

	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoAsciiParams      = 34737
	tagGDALNodata          = 42113
)

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
	typeLong8  = 16
)

// TIFF compression codes.
const (
	compressionDeflate = 8 // zlib/flate, "Adobe deflate"
	compressionZstd    = 50000
)

const (
	sampleFormatUint  = 1
	sampleFormatInt   = 2
	sampleFormatFloat = 3

	predictorNone       = 1
	predictorHorizontal = 2
)

// typeSize returns the byte width of one value of a TIFF field type.
func typeSize(typ uint16) int {
	switch typ {
	case typeASCII:
		return 1
	case typeShort:
		return 2
	case typeLong:
		return 4
	case typeDouble, typeLong8:
		return 8
	}
	return 0
}

// field is one IFD entry with its payload already encoded in
// little-endian order. Fields whose payload is patched after tile data
// has been written (tile offsets and byte counts) are marked deferred
// and carry a zero-filled payload of the right size.
type field struct {
	tag      uint16
	typ      uint16
	count    uint64
	data     []byte
	deferred bool
}

func shortField(tag uint16, vals ...uint16) field {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, vals)
	return field{tag: tag, typ: typeShort, count: uint64(len(vals)), data: buf.Bytes()}
}

func longField(tag uint16, vals ...uint32) field {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, vals)
	return field{tag: tag, typ: typeLong, count: uint64(len(vals)), data: buf.Bytes()}
}

func doubleField(tag uint16, vals ...float64) field {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, vals)
	return field{tag: tag, typ: typeDouble, count: uint64(len(vals)), data: buf.Bytes()}
}

// asciiField encodes a NUL-terminated string value.
func asciiField(tag uint16, s string) field {
	data := append([]byte(s), 0)
	return field{tag: tag, typ: typeASCII, count: uint64(len(data)), data: data}
}

// arrayField reserves a deferred offsets or byte-counts array. The
// value type is LONG in classic files and LONG8 in BigTIFF.
func arrayField(tag uint16, count int, big bool) field {
	typ := uint16(typeLong)
	if big {
		typ = typeLong8
	}
	return field{
		tag:      tag,
		typ:      typ,
		count:    uint64(count),
		data:     make([]byte, count*typeSize(typ)),
		deferred: true,
	}
}

// format captures the structural differences between classic TIFF and
// BigTIFF: offset widths, IFD entry layout, first-IFD pointer position.
type format struct {
	big bool
}

func (f format) headerSize() int64 {
	if f.big {
		return 16
	}
	return 8
}

func (f format) firstIFDPos() int64 {
	if f.big {
		return 8
	}
	return 4
}

func (f format) entrySize() int {
	if f.big {
		return 20
	}
	return 12
}

// countFieldSize is the width of the entry-count prefix of an IFD.
func (f format) countFieldSize() int {
	if f.big {
		return 8
	}
	return 2
}

func (f format) offsetSize() int {
	if f.big {
		return 8
	}
	return 4
}

// inlineSize is how many payload bytes fit directly in an entry's
// value slot.
func (f format) inlineSize() int {
	return f.offsetSize()
}

// writeHeader emits the file magic and a placeholder first-IFD offset.
func (f format) writeHeader(w io.Writer) error {
	if f.big {
		// 'II', version 43, offset size 8, reserved 0, first IFD.
		hdr := []byte{'I', 'I', 43, 0, 8, 0, 0, 0}
		if _, err := w.Write(hdr); err != nil {
			return err
		}
		return binary.Write(w, binary.LittleEndian, uint64(0))
	}
	hdr := []byte{'I', 'I', 42, 0}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(0))
}

// patchOffset overwrites an offset-sized slot at pos. In classic files
// any value beyond 32 bits means the caller should have chosen BigTIFF.
func (f format) patchOffset(w io.WriteSeeker, pos int64, value int64) error {
	if _, err := w.Seek(pos, io.SeekStart); err != nil {
		return err
	}
	if f.big {
		return binary.Write(w, binary.LittleEndian, uint64(value))
	}
	if value < 0 || value > 0xffffffff {
		return fmt.Errorf("gtiff: offset %d exceeds classic TIFF range, BigTIFF required", value)
	}
	return binary.Write(w, binary.LittleEndian, uint32(value))
}

// patchSlot locates a deferred entry value for later patching.
type patchSlot struct {
	pos    int64 // of the entry's value slot
	inline bool  // payload fits in the slot itself
}

// ifdLayout records where an appended IFD landed in the file.
type ifdLayout struct {
	pos        int64
	nextPtrPos int64
	slots      map[uint16]patchSlot
}

// ifdSize returns the total encoded size of an IFD including payloads
// that spill past the inline value slot.
func (f format) ifdSize(fields []field) int64 {
	size := int64(f.countFieldSize() + len(fields)*f.entrySize() + f.offsetSize())
	for _, fd := range fields {
		if len(fd.data) > f.inlineSize() {
			size += int64(even(len(fd.data)))
		}
	}
	return size
}

func even(n int) int {
	return n + n&1
}

// appendIFD writes an IFD at the current end of the file. Entries are
// sorted by tag as the specification requires; payloads larger than
// the value slot land in an extra-data area directly after the IFD.
// The next-IFD pointer is written as zero and patched by the caller
// when another IFD follows.
func (f format) appendIFD(w io.WriteSeeker, fields []field) (ifdLayout, error) {
	fileSize, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return ifdLayout{}, err
	}

	sort.Slice(fields, func(i, j int) bool { return fields[i].tag < fields[j].tag })

	layout := ifdLayout{pos: fileSize, slots: make(map[uint16]patchSlot)}
	extraPos := fileSize + int64(f.countFieldSize()+len(fields)*f.entrySize()+f.offsetSize())

	var buf, extra bytes.Buffer
	if f.big {
		binary.Write(&buf, binary.LittleEndian, uint64(len(fields)))
	} else {
		binary.Write(&buf, binary.LittleEndian, uint16(len(fields)))
	}

	for i, fd := range fields {
		entryPos := fileSize + int64(f.countFieldSize()+i*f.entrySize())
		valuePos := entryPos + int64(f.entrySize()-f.offsetSize())

		binary.Write(&buf, binary.LittleEndian, fd.tag)
		binary.Write(&buf, binary.LittleEndian, fd.typ)
		if f.big {
			binary.Write(&buf, binary.LittleEndian, fd.count)
		} else {
			binary.Write(&buf, binary.LittleEndian, uint32(fd.count))
		}

		slot := make([]byte, f.inlineSize())
		if len(fd.data) <= f.inlineSize() {
			copy(slot, fd.data)
			if fd.deferred {
				layout.slots[fd.tag] = patchSlot{pos: valuePos, inline: true}
			}
		} else {
			ptr := extraPos + int64(extra.Len())
			if f.big {
				binary.LittleEndian.PutUint64(slot, uint64(ptr))
			} else {
				if ptr > 0xffffffff {
					return ifdLayout{}, fmt.Errorf("gtiff: IFD at %d exceeds classic TIFF range", ptr)
				}
				binary.LittleEndian.PutUint32(slot, uint32(ptr))
			}
			extra.Write(fd.data)
			if len(fd.data)&1 != 0 {
				extra.WriteByte(0)
			}
			if fd.deferred {
				layout.slots[fd.tag] = patchSlot{pos: valuePos, inline: false}
			}
		}
		buf.Write(slot)
	}

	layout.nextPtrPos = fileSize + int64(buf.Len())
	buf.Write(make([]byte, f.offsetSize())) // next IFD, patched later

	if _, err := w.Write(buf.Bytes()); err != nil {
		return ifdLayout{}, err
	}
	if _, err := extra.WriteTo(w); err != nil {
		return ifdLayout{}, err
	}
	return layout, nil
}

// ghostArea is GDAL's structural metadata block, written between the
// header and the first IFD of the final artifact. The trailing space
// after NO is load-bearing: GDAL rewrites the value to "YES" in place
// when an incompatible editor touches the file.
// https://gdal.org/drivers/raster/cog.html#header-ghost-area
const ghostArea = "LAYOUT=IFDS_BEFORE_DATA\n" +
	"BLOCK_LEADER=SIZE_AS_UINT4\n" +
	"BLOCK_TRAILER=LAST_4_BYTES_REPEATED\n" +
	"KNOWN_INCOMPATIBLE_EDITION=NO \n"

func writeGhostArea(w io.Writer) error {
	if !strings.Contains(ghostArea, "=NO \n") {
		panic("missing space after NO") // as per GDAL documentation
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GDAL_STRUCTURAL_METADATA_SIZE=%06d bytes\n", len(ghostArea))
	buf.WriteString(ghostArea)
	if buf.Len()&1 != 0 {
		buf.WriteByte(0)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// baseFields builds the format-independent entries shared by every
// artifact this package writes.
func baseFields(info cogsink.RasterInfo, blockX, blockY int, opts cogsink.CreationOptions, big bool) []field {
	samples := info.Count
	bits := make([]uint16, samples)
	formats := make([]uint16, samples)
	for i := range bits {
		bits[i] = uint16(info.DType.Size() * 8)
		formats[i] = sampleFormatCode(info.DType)
	}

	compression := uint16(compressionDeflate)
	if opts.Compression == cogsink.ZSTD {
		compression = compressionZstd
	}
	predictor := uint16(predictorNone)
	if usePredictor(opts, info.DType) {
		predictor = predictorHorizontal
	}
	planar := uint16(1)
	if samples > 1 {
		planar = 2 // separate planes; bands are written independently
	}

	numTiles := tilesAcross(info.Width, blockX) * tilesDown(info.Height, blockY) * samples

	fields := []field{
		longField(tagImageWidth, uint32(info.Width)),
		longField(tagImageHeight, uint32(info.Height)),
		shortField(tagBitsPerSample, bits...),
		shortField(tagCompression, compression),
		shortField(tagPhotometric, 1), // BlackIsZero
		shortField(tagSamplesPerPixel, uint16(samples)),
		shortField(tagPlanarConfig, planar),
		shortField(tagTileWidth, uint16(blockX)),
		shortField(tagTileHeight, uint16(blockY)),
		arrayField(tagTileOffsets, numTiles, big),
		arrayField(tagTileByteCounts, numTiles, big),
		shortField(tagSampleFormat, formats...),
	}
	if predictor != predictorNone {
		fields = append(fields, shortField(tagPredictor, predictor))
	}
	return fields
}

// geoFields encodes the georeferencing of the main image: pixel scale
// plus tie point for axis-aligned transforms, the full model matrix
// otherwise, a GeoKey directory when the CRS is an EPSG code, and
// GDAL's nodata tag when a nodata marker is set.
func geoFields(info cogsink.RasterInfo) []field {
	var fields []field

	t := info.Transform
	if t.AxisAligned() {
		fields = append(fields,
			doubleField(tagModelPixelScale, t[0], -t[4], 0),
			doubleField(tagModelTiepoint, 0, 0, 0, t[2], t[5], 0),
		)
	} else {
		fields = append(fields, doubleField(tagModelTransformation,
			t[0], t[1], 0, t[2],
			t[3], t[4], 0, t[5],
			0, 0, 0, 0,
			0, 0, 0, 1,
		))
	}

	if code, ok := parseEPSG(info.CRS); ok {
		// Geographic CRS codes live in the 4xxx range; everything
		// else we emit as a projected CRS.
		geographic := code >= 4000 && code < 5000
		keys := []uint16{
			1, 1, 0, // key directory version 1.1.0
			3, // number of keys
			1024, 0, 1, 1, // GTModelType: projected
			1025, 0, 1, 1, // GTRasterType: PixelIsArea
			3072, 0, 1, uint16(code), // ProjectedCRS
		}
		if geographic {
			keys[4+0*4+3] = 2    // GTModelType: geographic
			keys[4+2*4+0] = 2048 // GeographicType instead of ProjectedCRS
		}
		fields = append(fields, shortField(tagGeoKeyDirectory, keys...))
	} else if info.CRS != "" {
		fields = append(fields, asciiField(tagGeoAsciiParams, info.CRS+"|"))
	}

	if info.Nodata != nil {
		fields = append(fields, asciiField(tagGDALNodata,
			strconv.FormatFloat(*info.Nodata, 'g', -1, 64)))
	}
	return fields
}

// parseEPSG extracts the numeric code from CRS strings like
// "EPSG:3857". GeoKey values are 16-bit, so larger codes fall back to
// the citation path.
func parseEPSG(crs string) (int, bool) {
	rest, found := strings.CutPrefix(strings.ToUpper(strings.TrimSpace(crs)), "EPSG:")
	if !found {
		return 0, false
	}
	code, err := strconv.Atoi(rest)
	if err != nil || code <= 0 || code > 0x7fff {
		return 0, false
	}
	return code, true
}

func sampleFormatCode(d cogsink.DType) uint16 {
	switch {
	case d.Float():
		return sampleFormatFloat
	case d.Signed():
		return sampleFormatInt
	default:
		return sampleFormatUint
	}
}

// usePredictor reports whether horizontal differencing applies:
// requested, and the element type is an integer. GDAL rejects
// predictor 2 on floating-point bands, so float blocks are stored
// undifferenced even when the option is on.
func usePredictor(opts cogsink.CreationOptions, d cogsink.DType) bool {
	return opts.Predictor && !d.Float()
}

func tilesAcross(width, blockX int) int {
	return (width + blockX - 1) / blockX
}

func tilesDown(height, blockY int) int {
	return (height + blockY - 1) / blockY
}

// seekEndAligned seeks to the end of the file and pads it to a
// four-byte boundary.
func seekEndAligned(w io.WriteSeeker) (int64, error) {
	pos, err := w.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if pos&3 != 0 {
		padding := []byte{0, 0, 0}[pos&3-1:]
		n, err := w.Write(padding)
		if err != nil {
			return 0, err
		}
		pos += int64(n)
	}
	return pos, nil
}

// encodeOffsets serializes an offsets or byte-counts array in the
// format's width, rejecting values a classic file cannot hold.
func (f format) encodeOffsets(vals []uint64) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range vals {
		if f.big {
			binary.Write(&buf, binary.LittleEndian, v)
		} else {
			if v > 0xffffffff {
				return nil, fmt.Errorf("gtiff: offset %d exceeds classic TIFF range, BigTIFF required", v)
			}
			binary.Write(&buf, binary.LittleEndian, uint32(v))
		}
	}
	return buf.Bytes(), nil
}

// writeTileData appends the compressed tiles of one IFD and patches
// its TileOffsets entry. A nil tile is written as a sparse entry
// (offset and byte count zero). Tiles sharing the same backing slice
// are written once and referenced from every slot, which is how fill
// tiles stay cheap. With leader enabled, each distinct tile gets
// GDAL's four-byte size leader and last-four-bytes trailer.
// The per-tile byte counts are returned for writeByteCounts.
func writeTileData(w io.WriteSeeker, f format, layout ifdLayout, tiles [][]byte, leader bool) ([]uint64, error) {
	fileSize, err := seekEndAligned(w)
	if err != nil {
		return nil, err
	}

	slot, ok := layout.slots[tagTileOffsets]
	if !ok {
		return nil, fmt.Errorf("gtiff: IFD has no TileOffsets slot")
	}

	// Reserve the offsets array ahead of the tile data, so readers
	// that fetch the head of the file get the layout early.
	arrayPos := fileSize
	if !slot.inline {
		reserve := make([]byte, len(tiles)*f.offsetSize())
		if _, err := w.Write(reserve); err != nil {
			return nil, err
		}
		fileSize += int64(len(reserve))
	}

	offsets := make([]uint64, len(tiles))
	counts := make([]uint64, len(tiles))
	written := make(map[*byte]int) // first tile index per shared payload

	for i, data := range tiles {
		if data == nil {
			continue // sparse
		}
		counts[i] = uint64(len(data))
		if first, ok := written[&data[0]]; ok {
			offsets[i] = offsets[first]
			continue
		}
		written[&data[0]] = i

		if fileSize&3 != 0 {
			padding := []byte{0, 0, 0}[fileSize&3-1:]
			n, err := w.Write(padding)
			if err != nil {
				return nil, err
			}
			fileSize += int64(n)
		}

		if leader {
			var lead [4]byte
			binary.LittleEndian.PutUint32(lead[:], uint32(len(data)))
			if _, err := w.Write(lead[:]); err != nil {
				return nil, err
			}
			fileSize += 4
		}
		offsets[i] = uint64(fileSize)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		fileSize += int64(len(data))
		if leader {
			var trail [4]byte
			copy(trail[:], data[max(0, len(data)-4):])
			if _, err := w.Write(trail[:]); err != nil {
				return nil, err
			}
			fileSize += 4
		}
	}

	if slot.inline {
		if err := f.patchOffset(w, slot.pos, int64(offsets[0])); err != nil {
			return nil, err
		}
		return counts, nil
	}

	enc, err := f.encodeOffsets(offsets)
	if err != nil {
		return nil, err
	}
	if _, err := w.Seek(arrayPos, io.SeekStart); err != nil {
		return nil, err
	}
	if _, err := w.Write(enc); err != nil {
		return nil, err
	}
	if err := f.patchOffset(w, slot.pos, arrayPos); err != nil {
		return nil, err
	}
	return counts, nil
}

// writeByteCounts stores one IFD's TileByteCounts array, appended at
// the current end of the file, and patches the entry. Single-entry
// arrays are inlined into the entry itself, as the specification
// requires.
func writeByteCounts(w io.WriteSeeker, f format, layout ifdLayout, counts []uint64) error {
	slot, ok := layout.slots[tagTileByteCounts]
	if !ok {
		return fmt.Errorf("gtiff: IFD has no TileByteCounts slot")
	}
	if slot.inline {
		return f.patchOffset(w, slot.pos, int64(counts[0]))
	}

	arrayPos, err := seekEndAligned(w)
	if err != nil {
		return err
	}
	enc, err := f.encodeOffsets(counts)
	if err != nil {
		return err
	}
	if _, err := w.Write(enc); err != nil {
		return err
	}
	return f.patchOffset(w, slot.pos, arrayPos)
}
