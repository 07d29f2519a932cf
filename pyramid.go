// SPDX-License-Identifier: MIT

package cogsink

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

func transientName() string {
	return uuid.New().String()
}

// maxLevels caps pyramid depth at the full image plus seven overviews.
const maxLevels = 8

// tempBlockSize is the internal tile edge of the full-resolution
// temporary level; it halves per level down to tempBlockFloor.
const (
	tempBlockSize  = 2048
	tempBlockFloor = 64
)

// PyramidConfig configures a PyramidSink.
type PyramidConfig struct {
	// BlockSize is the final artifact's tile edge; zero means
	// DefaultBlockSize.
	BlockSize int
	// OverviewBlockSize is the tile edge of the embedded overviews
	// and the lower bound of the level chain; zero means BlockSize.
	OverviewBlockSize int
	BigTIFF           BigTIFFMode
	NoLock            bool
	// TempDir holds the per-level temporary files. Empty keeps all
	// temporary levels in anonymous in-memory resources.
	TempDir string
	// Options is the final-output codec profile, overriding
	// DefaultCreationOptions; temporary levels always use
	// TempCreationOptions.
	Options *CreationOptions
}

type pyramidLevel struct {
	info RasterInfo
	sink *TileSink
	dest Destination
	// temp is the in-memory resource owned by the pyramid, nil for
	// file-backed levels.
	temp Handle
	// path is the owned temporary file, empty for in-memory levels.
	path string
}

// PyramidSink owns an ordered chain of per-level TileSinks, index 0
// full resolution, each further level the Shrink2 of the one before.
// Every write fans out through Downsample so all levels stay exactly
// consistent with the data written at full resolution. Finalize merges
// the chain into the single durable artifact; afterwards the sink is
// terminal.
type PyramidSink struct {
	backend   Backend
	levels    []pyramidLevel
	dst       string
	spec      CopySpec
	finalized bool
}

// NewPyramidSink constructs the level chain: level after level derived
// by Shrink2, each with its own uniquely named temporary destination,
// until a just-created level has an odd dimension, is smaller than the
// overview block size on its shorter side, or the depth cap of eight
// is reached.
func NewPyramidSink(b Backend, info RasterInfo, dstPath string, cfg PyramidConfig) (*PyramidSink, error) {
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	ovrBlockSize := cfg.OverviewBlockSize
	if ovrBlockSize == 0 {
		ovrBlockSize = blockSize
	}

	bigtiff := cfg.BigTIFF.resolve(info)
	bigtiffMode := BigTIFFOff
	if bigtiff {
		bigtiffMode = BigTIFFOn
	}

	tempOpts := TempCreationOptions()
	base := uuid.New().String()

	p := &PyramidSink{
		backend: b,
		dst:     dstPath,
		spec: CopySpec{
			BlockSize:         blockSize,
			OverviewBlockSize: ovrBlockSize,
			BigTIFF:           bigtiff,
			Options:           resolveOptions(DefaultCreationOptions(), cfg.Options),
		},
	}

	ii := info
	ext := ".tif"
	bsz := tempBlockSize
	for len(p.levels) < maxLevels {
		lvl := pyramidLevel{info: ii}
		if cfg.TempDir != "" {
			lvl.path = filepath.Join(cfg.TempDir, base+ext)
			lvl.dest = DestPath(lvl.path)
		} else {
			lvl.temp = b.NewTemp(base + ext)
			lvl.dest = DestHandle(lvl.temp)
		}

		sink, err := NewTileSink(b, ii, lvl.dest, SinkConfig{
			BlockSize: bsz,
			BigTIFF:   bigtiffMode,
			NoLock:    cfg.NoLock,
			Options:   &tempOpts,
		})
		if err != nil {
			if lvl.temp != nil {
				lvl.temp.Close()
			}
			p.discard()
			return nil, err
		}
		lvl.sink = sink
		p.levels = append(p.levels, lvl)

		// The stop checks run on the level just created: a level
		// with an odd width or height cannot be halved without
		// losing data beyond the box-filter policy, and a level
		// already smaller than one overview block is deep enough.
		if ii.Width%2 != 0 || ii.Height%2 != 0 {
			break
		}
		if min(ii.Width, ii.Height) < ovrBlockSize {
			break
		}

		ii = ii.Shrink2()
		// Each deeper temporary level is explicitly the overview of
		// the one before it; the chain relation also shows in the
		// artifact names.
		ext += ".ovr"
		if bsz > tempBlockFloor {
			bsz /= 2
		}
	}
	return p, nil
}

// discard closes whatever part of the chain exists, ignoring errors.
// Used only on the construction error path.
func (p *PyramidSink) discard() {
	for _, lvl := range p.levels {
		if lvl.sink != nil {
			lvl.sink.Close()
		}
		if lvl.temp != nil {
			lvl.temp.Close()
		}
	}
}

// Levels returns the descriptors of the level chain, full resolution
// first.
func (p *PyramidSink) Levels() []RasterInfo {
	out := make([]RasterInfo, len(p.levels))
	for i, lvl := range p.levels {
		out[i] = lvl.info
	}
	return out
}

// Write stores a block at full resolution and then fans it out, level
// by level, through Downsample. The derived overview writes complete
// before Write returns, on the calling goroutine, so a returned nil
// means every level is consistent with this window. Windows of
// concurrent writers must be disjoint; that contract is not checked.
func (p *PyramidSink) Write(w Window, b Block) error {
	if p.finalized {
		return ErrClosed
	}
	if err := p.levels[0].sink.Write(w, b); err != nil {
		return err
	}
	for _, lvl := range p.levels[1:] {
		w, b = Downsample(w, b)
		if err := lvl.sink.Write(w, b); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every level's sink in order, flushing buffered
// remainders. It is idempotent and keeps going past failures,
// returning the first error.
func (p *PyramidSink) Close() error {
	var first error
	for _, lvl := range p.levels {
		if err := lvl.sink.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Finalize closes the chain and merges it into the durable artifact at
// the configured destination path, recompressed with the final codec
// profile. It must be called exactly once; the sink is terminal
// afterwards. On success the temporary artifacts are released; on
// failure they are left in place for the caller to inspect or clean
// up.
func (p *PyramidSink) Finalize() error {
	if p.finalized {
		return fmt.Errorf("%w: pyramid already finalized", ErrClosed)
	}
	if err := p.Close(); err != nil {
		return err
	}

	chain := make([]Level, len(p.levels))
	for i, lvl := range p.levels {
		chain[i] = Level{Info: lvl.info, Dest: lvl.dest}
	}
	if err := p.backend.CopyWithOverviews(chain, p.dst, p.spec); err != nil {
		return err
	}
	p.finalized = true

	var first error
	for _, lvl := range p.levels {
		if lvl.path != "" {
			if err := os.Remove(lvl.path); err != nil && first == nil {
				first = err
			}
		}
		if lvl.temp != nil {
			if err := lvl.temp.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
