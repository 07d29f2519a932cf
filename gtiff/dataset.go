// SPDX-License-Identifier: MIT

package gtiff

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/geotiled/cogsink"
)

// dataset is one artifact under construction. Touched tiles are kept
// as raw little-endian sample buffers and compressed in one parallel
// pass when the dataset is closed; tiles never touched stay sparse or
// become shared fill tiles, depending on the creation options.
//
// Datasets are not safe for concurrent use; cogsink.TileSink holds
// the write lock.
type dataset struct {
	dst    cogsink.Destination
	spec   cogsink.CreateSpec
	ntx    int
	nty    int
	tiles  map[int][]byte
	closed bool
}

func newDataset(dst cogsink.Destination, spec cogsink.CreateSpec) (*dataset, error) {
	info := spec.Info
	if info.Width <= 0 || info.Height <= 0 || info.Count < 1 {
		return nil, fmt.Errorf("gtiff: bad raster geometry %dx%d..%d", info.Width, info.Height, info.Count)
	}
	if info.DType.Size() == 0 {
		return nil, fmt.Errorf("gtiff: unknown element type")
	}
	if spec.BlockX <= 0 || spec.BlockY <= 0 || spec.BlockX%16 != 0 || spec.BlockY%16 != 0 {
		return nil, fmt.Errorf("gtiff: tile size %dx%d must be a positive multiple of 16", spec.BlockX, spec.BlockY)
	}
	return &dataset{
		dst:   dst,
		spec:  spec,
		ntx:   tilesAcross(info.Width, spec.BlockX),
		nty:   tilesDown(info.Height, spec.BlockY),
		tiles: make(map[int][]byte),
	}, nil
}

func (d *dataset) Name() string {
	return d.dst.String()
}

// tile returns the raw buffer of one tile, allocating and
// fill-initializing it on first touch. Bands are planes: the tile
// index space is plane-major.
func (d *dataset) tile(band, tx, ty int) []byte {
	idx := (band-1)*d.ntx*d.nty + ty*d.ntx + tx
	t := d.tiles[idx]
	if t == nil {
		t = fillBytes(d.spec.Info.DType, d.spec.Info.Nodata, d.spec.BlockX*d.spec.BlockY)
		d.tiles[idx] = t
	}
	return t
}

func (d *dataset) WriteBlock(r cogsink.Rect, band int, b cogsink.Block) error {
	info := d.spec.Info
	if d.closed {
		return fmt.Errorf("gtiff: %s: write after close", d.Name())
	}
	if band < 1 || band > info.Count {
		return fmt.Errorf("gtiff: band %d outside 1..%d", band, info.Count)
	}
	if r.X < 0 || r.Y < 0 || r.X+r.W > info.Width || r.Y+r.H > info.Height {
		return fmt.Errorf("gtiff: window %+v outside raster %dx%d", r, info.Width, info.Height)
	}
	if b.Rows() != r.H || b.Cols() != r.W {
		return fmt.Errorf("gtiff: block %dx%d does not fill window %+v", b.Rows(), b.Cols(), r)
	}
	if b.DType() != info.DType {
		return fmt.Errorf("gtiff: block dtype %s, raster %s", b.DType(), info.DType)
	}
	if r.Empty() {
		return nil
	}

	raw, err := b.Bytes()
	if err != nil {
		return err
	}

	esize := info.DType.Size()
	bx, by := d.spec.BlockX, d.spec.BlockY
	for ty := r.Y / by; ty <= (r.Y+r.H-1)/by; ty++ {
		y0 := max(r.Y, ty*by)
		y1 := min(r.Y+r.H, (ty+1)*by)
		for tx := r.X / bx; tx <= (r.X+r.W-1)/bx; tx++ {
			x0 := max(r.X, tx*bx)
			x1 := min(r.X+r.W, (tx+1)*bx)
			tile := d.tile(band, tx, ty)
			for y := y0; y < y1; y++ {
				src := ((y-r.Y)*r.W + (x0 - r.X)) * esize
				dst := ((y-ty*by)*bx + (x0 - tx*bx)) * esize
				copy(tile[dst:dst+(x1-x0)*esize], raw[src:])
			}
		}
	}
	return nil
}

// Close compresses every tile and serializes the artifact to its
// destination. Tiles never written become sparse entries when the
// profile allows it; otherwise one fill tile is compressed and shared
// by every untouched slot.
func (d *dataset) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	ws, finish, err := createWriter(d.dst)
	if err != nil {
		return err
	}

	info := d.spec.Info
	opts := d.spec.Options
	f := format{big: d.spec.BigTIFF}

	if err := f.writeHeader(ws); err != nil {
		return err
	}
	fields := baseFields(info, d.spec.BlockX, d.spec.BlockY, opts, f.big)
	fields = append(fields, geoFields(info)...)
	layout, err := f.appendIFD(ws, fields)
	if err != nil {
		return err
	}
	if err := f.patchOffset(ws, f.firstIFDPos(), layout.pos); err != nil {
		return err
	}

	numTiles := d.ntx * d.nty * info.Count
	tiles := make([][]byte, numTiles)
	cdc := newCodec(opts, info.DType, d.spec.BlockX)

	var g errgroup.Group
	g.SetLimit(workers(opts))
	for idx, raw := range d.tiles {
		idx, raw := idx, raw
		g.Go(func() error {
			enc, err := cdc.encode(raw)
			if err != nil {
				return err
			}
			tiles[idx] = enc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	d.tiles = nil

	if !opts.SparseOK {
		var fill []byte
		for idx := range tiles {
			if tiles[idx] != nil {
				continue
			}
			if fill == nil {
				raw := fillBytes(info.DType, info.Nodata, d.spec.BlockX*d.spec.BlockY)
				if fill, err = cdc.encode(raw); err != nil {
					return err
				}
			}
			tiles[idx] = fill // shared; written once
		}
	}

	counts, err := writeTileData(ws, f, layout, tiles, false)
	if err != nil {
		return err
	}
	if err := writeByteCounts(ws, f, layout, counts); err != nil {
		return err
	}
	return finish()
}
