// SPDX-License-Identifier: MIT

package cogsink

import (
	"fmt"
	"sync"
)

// SinkConfig configures a single TileSink.
type SinkConfig struct {
	// BlockSize is the requested internal tile edge; zero means
	// DefaultBlockSize. It is adjusted per axis against the raster
	// dimensions.
	BlockSize int
	BigTIFF   BigTIFFMode
	// NoLock disables the internal write-serialization lock. Without
	// it, concurrent writers are entirely the caller's contract.
	NoLock bool
	// Options overrides DefaultCreationOptions; nil keeps the
	// defaults.
	Options *CreationOptions
}

// TileSink accepts windowed single-band writes against one fixed
// resolution level and owns exactly one destination artifact. Writes
// are serialized by an internal lock unless disabled. Close is
// idempotent and releases any transient resource the sink created
// itself; the sink must not be written to afterwards.
type TileSink struct {
	info RasterInfo
	ds   Dataset

	mu         sync.Mutex
	lockWrites bool
	closed     bool

	// owned is the transient resource this sink created for a
	// DestinationTransient request, released in Close.
	owned Handle
}

// NewTileSink opens a sink over dst. Transient destinations are
// resolved to a backend-allocated in-memory resource owned by the
// sink; path and handle destinations are used as given.
func NewTileSink(b Backend, info RasterInfo, dst Destination, cfg SinkConfig) (*TileSink, error) {
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	spec := CreateSpec{
		Info:    info,
		BlockX:  AdjustBlockSize(blockSize, info.Width),
		BlockY:  AdjustBlockSize(blockSize, info.Height),
		BigTIFF: cfg.BigTIFF.resolve(info),
		Options: resolveOptions(DefaultCreationOptions(), cfg.Options),
	}

	var owned Handle
	if dst.Kind() == DestinationTransient {
		owned = b.NewTemp(transientName())
		dst = DestHandle(owned)
	}

	ds, err := b.Create(dst, spec)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}
	return &TileSink{
		info:       info,
		ds:         ds,
		lockWrites: !cfg.NoLock,
		owned:      owned,
	}, nil
}

// Info returns the sink's fixed descriptor.
func (s *TileSink) Info() RasterInfo { return s.info }

// Name is the destination's identifier.
func (s *TileSink) Name() string { return s.ds.Name() }

func (s *TileSink) String() string {
	return fmt.Sprintf("TileSink: %s", s.info)
}

// Write stores a block at the given window. Two-axis windows write the
// single band; three-axis windows are recognized but unsupported, as
// band-axis disambiguation is out of scope. Any other axis count is
// invalid.
func (s *TileSink) Write(w Window, b Block) error {
	switch len(w) {
	case 2:
		// single band
	case 3:
		return fmt.Errorf("%w: multi-band windowed writes", ErrUnsupported)
	default:
		return fmt.Errorf("%w: need 2 or 3 axes, got %d", ErrInvalidWindow, len(w))
	}

	rect, err := resolveRect(w, s.info.Width, s.info.Height)
	if err != nil {
		return err
	}
	if b.Rows() != rect.H || b.Cols() != rect.W {
		return fmt.Errorf("%w: block %dx%d does not fill window %dx%d",
			ErrInvalidWindow, b.Rows(), b.Cols(), rect.H, rect.W)
	}
	if b.DType() != s.info.DType {
		return fmt.Errorf("%w: block dtype %s, raster %s", ErrConfig, b.DType(), s.info.DType)
	}
	if rect.Empty() {
		return nil
	}

	if s.lockWrites {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if s.closed {
		return ErrClosed
	}
	return s.ds.WriteBlock(rect, 1, b)
}

// Close flushes and releases the destination artifact and, exactly
// once, any transient resource the sink created. Safe to call
// repeatedly.
func (s *TileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.ds.Close()
	if s.owned != nil {
		if cerr := s.owned.Close(); err == nil {
			err = cerr
		}
		s.owned = nil
	}
	return err
}
