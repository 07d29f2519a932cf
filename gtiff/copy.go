// SPDX-License-Identifier: MIT

package gtiff

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/geotiled/cogsink"
)

// CopyWithOverviews merges a closed temporary level chain into the
// final Cloud-Optimized GeoTIFF at dstPath: every level is read back,
// retiled at the final block size, recompressed with the final codec
// profile, and written behind a chain of image directories, full
// resolution first. The file is assembled under a temporary name and
// renamed into place, so the destination appears atomically.
//
// Tile data is laid out coarsest level first, after all directories,
// with GDAL's tile leader and trailer, matching the structural
// metadata in the header ghost area.
func (Backend) CopyWithOverviews(levels []cogsink.Level, dstPath string, spec cogsink.CopySpec) error {
	if len(levels) == 0 {
		return fmt.Errorf("gtiff: empty level chain")
	}
	for i := 1; i < len(levels); i++ {
		prev, cur := levels[i-1].Info, levels[i].Info
		if cur.Width != prev.Width/2 || cur.Height != prev.Height/2 ||
			cur.Count != prev.Count || cur.DType != prev.DType {
			return fmt.Errorf("gtiff: level %d (%s) is not the halving of level %d (%s)",
				i, cur, i-1, prev)
		}
	}

	tmpPath := dstPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()

	fr := format{big: spec.BigTIFF}
	if err := fr.writeHeader(f); err != nil {
		return err
	}
	if err := writeGhostArea(f); err != nil {
		return err
	}

	// All image directories go in front of the tile data. Each
	// level's tile geometry is resolved against its own dimensions.
	type levelPlan struct {
		bx, by int
		layout ifdLayout
		counts []uint64
	}
	plans := make([]levelPlan, len(levels))
	for i, lvl := range levels {
		requested := spec.BlockSize
		if i > 0 {
			requested = spec.OverviewBlockSize
		}
		plan := levelPlan{
			bx: cogsink.AdjustBlockSize(requested, lvl.Info.Width),
			by: cogsink.AdjustBlockSize(requested, lvl.Info.Height),
		}

		fields := baseFields(lvl.Info, plan.bx, plan.by, spec.Options, fr.big)
		if i == 0 {
			fields = append(fields, geoFields(lvl.Info)...)
			fields = append(fields, asciiField(tagSoftware, "cogsink"))
		} else {
			// Reduced-resolution subfile, TIFF 6.0 page 36.
			fields = append(fields, longField(tagNewSubfileType, 1))
		}

		plan.layout, err = fr.appendIFD(f, fields)
		if err != nil {
			return err
		}
		if i == 0 {
			err = fr.patchOffset(f, fr.firstIFDPos(), plan.layout.pos)
		} else {
			err = fr.patchOffset(f, plans[i-1].layout.nextPtrPos, plan.layout.pos)
		}
		if err != nil {
			return err
		}
		plans[i] = plan
	}

	// Tile data, smallest overview first, so coarse previews sit in
	// the head of the file.
	for i := len(levels) - 1; i >= 0; i-- {
		tiles, err := recompressLevel(levels[i], plans[i].bx, plans[i].by, spec.Options)
		if err != nil {
			return err
		}
		plans[i].counts, err = writeTileData(f, fr, plans[i].layout, tiles, true)
		if err != nil {
			return err
		}
	}

	// Byte-count arrays at the very end, where readers rarely look
	// now that every tile carries its size leader.
	for i := range plans {
		if err := writeByteCounts(f, fr, plans[i].layout, plans[i].counts); err != nil {
			return err
		}
	}

	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dstPath)
}

// recompressLevel reads one temporary artifact back and produces the
// final compressed tiles for its level, plane-major. Tiles holding
// nothing but fill share a single compressed payload.
func recompressLevel(lvl cogsink.Level, bx, by int, opts cogsink.CreationOptions) ([][]byte, error) {
	info := lvl.Info
	ra, _, closeSrc, err := openDestination(lvl.Dest)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	tf, err := parseTIFF(ra)
	if err != nil {
		return nil, fmt.Errorf("gtiff: %s: %w", lvl.Dest, err)
	}
	src := tf.ifds[0]
	if src.width != info.Width || src.height != info.Height || src.samples != info.Count {
		return nil, fmt.Errorf("gtiff: %s: artifact is %dx%d..%d, descriptor says %s",
			lvl.Dest, src.width, src.height, src.samples, info)
	}

	esize := info.DType.Size()
	var fillSample []byte
	if info.Nodata != nil && *info.Nodata != 0 {
		fillSample = fillBytes(info.DType, info.Nodata, 1)
	}
	fillTile := fillBytes(info.DType, info.Nodata, bx*by)

	cdc := newCodec(opts, info.DType, bx)
	sharedFill, err := cdc.encode(fillTile)
	if err != nil {
		return nil, err
	}

	ntx := tilesAcross(info.Width, bx)
	nty := tilesDown(info.Height, by)
	tiles := make([][]byte, ntx*nty*info.Count)

	for band := 1; band <= info.Count; band++ {
		mos, err := tf.mosaic(src, band, fillSample)
		if err != nil {
			return nil, err
		}

		var g errgroup.Group
		g.SetLimit(workers(opts))
		for ty := 0; ty < nty; ty++ {
			for tx := 0; tx < ntx; tx++ {
				idx := (band-1)*ntx*nty + ty*ntx + tx
				tx, ty := tx, ty
				g.Go(func() error {
					raw := make([]byte, bx*by*esize)
					copy(raw, fillTile)
					y1 := min(info.Height, (ty+1)*by)
					x0 := tx * bx
					x1 := min(info.Width, (tx+1)*bx)
					for y := ty * by; y < y1; y++ {
						srcOff := (y*info.Width + x0) * esize
						dstOff := ((y-ty*by)*bx) * esize
						copy(raw[dstOff:dstOff+(x1-x0)*esize], mos[srcOff:])
					}
					if bytes.Equal(raw, fillTile) {
						tiles[idx] = sharedFill
						return nil
					}
					enc, err := cdc.encode(raw)
					if err != nil {
						return err
					}
					tiles[idx] = enc
					return nil
				})
			}
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	if opts.SparseOK {
		for i, t := range tiles {
			if len(t) == len(sharedFill) && &t[0] == &sharedFill[0] {
				tiles[i] = nil
			}
		}
	}
	return tiles, nil
}
