// SPDX-License-Identifier: MIT

// Package gtiff is a pure-Go raster container backend for package
// cogsink: it writes tiled, compressed GeoTIFF and BigTIFF artifacts,
// reads back the artifacts it wrote, and merges a temporary pyramid
// chain into a final Cloud-Optimized GeoTIFF with embedded overviews.
//
// Only little-endian output is produced, even on big-endian machines,
// and the reader handles exactly the structures this writer emits.
package gtiff

import (
	"fmt"
	"io"
	"os"

	"github.com/orcaman/writerseeker"

	"github.com/geotiled/cogsink"
)

// Backend implements cogsink.Backend on top of this package's native
// GeoTIFF writer.
type Backend struct{}

var _ cogsink.Backend = Backend{}

// Create opens one artifact for writing. Transient destinations must
// already have been resolved to a handle by the caller; cogsink's
// sinks do that through NewTemp.
func (Backend) Create(dst cogsink.Destination, spec cogsink.CreateSpec) (cogsink.Dataset, error) {
	switch dst.Kind() {
	case cogsink.DestinationPath, cogsink.DestinationHandle:
	case cogsink.DestinationTransient:
		return nil, fmt.Errorf("gtiff: transient destination not resolved to a handle")
	default:
		return nil, fmt.Errorf("gtiff: unknown destination kind %d", dst.Kind())
	}
	if dst.Kind() == cogsink.DestinationHandle {
		if _, ok := dst.Handle().(*MemFile); !ok {
			return nil, fmt.Errorf("gtiff: destination handle %T is not a gtiff.MemFile", dst.Handle())
		}
	}
	return newDataset(dst, spec)
}

// NewTemp allocates a named in-memory artifact owned by the caller.
func (Backend) NewTemp(name string) cogsink.Handle {
	return NewMemFile(name)
}

// MemFile is an in-memory artifact. Closing a MemFile releases its
// buffer; reads after Close fail.
type MemFile struct {
	name   string
	buf    *writerseeker.WriterSeeker
	closed bool
}

var _ cogsink.Handle = (*MemFile)(nil)

func NewMemFile(name string) *MemFile {
	return &MemFile{name: name, buf: &writerseeker.WriterSeeker{}}
}

func (m *MemFile) Name() string { return m.name }

// Close releases the buffer. Idempotent.
func (m *MemFile) Close() error {
	m.buf = nil
	m.closed = true
	return nil
}

func (m *MemFile) writer() (io.WriteSeeker, error) {
	if m.closed {
		return nil, fmt.Errorf("gtiff: %s: memory artifact is closed", m.name)
	}
	return m.buf, nil
}

// Bytes returns the serialized artifact.
func (m *MemFile) Bytes() ([]byte, error) {
	if m.closed {
		return nil, fmt.Errorf("gtiff: %s: memory artifact is closed", m.name)
	}
	r := m.buf.BytesReader()
	out := make([]byte, r.Len())
	if _, err := r.ReadAt(out, 0); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

// openDestination opens a destination's serialized artifact for
// reading. The returned closer is a no-op for memory artifacts.
func openDestination(dst cogsink.Destination) (io.ReaderAt, int64, func() error, error) {
	switch dst.Kind() {
	case cogsink.DestinationPath:
		f, err := os.Open(dst.Path())
		if err != nil {
			return nil, 0, nil, err
		}
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, nil, err
		}
		return f, st.Size(), f.Close, nil
	case cogsink.DestinationHandle:
		m, ok := dst.Handle().(*MemFile)
		if !ok {
			return nil, 0, nil, fmt.Errorf("gtiff: destination handle %T is not a gtiff.MemFile", dst.Handle())
		}
		if m.closed {
			return nil, 0, nil, fmt.Errorf("gtiff: %s: memory artifact is closed", m.name)
		}
		r := m.buf.BytesReader()
		return r, int64(r.Len()), func() error { return nil }, nil
	}
	return nil, 0, nil, fmt.Errorf("gtiff: destination %s is not readable", dst)
}

// createWriter opens a destination for serialization. The returned
// finish func syncs and closes files and is a no-op for memory
// artifacts.
func createWriter(dst cogsink.Destination) (io.WriteSeeker, func() error, error) {
	switch dst.Kind() {
	case cogsink.DestinationPath:
		f, err := os.Create(dst.Path())
		if err != nil {
			return nil, nil, err
		}
		finish := func() error {
			if err := f.Sync(); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}
		return f, finish, nil
	case cogsink.DestinationHandle:
		m := dst.Handle().(*MemFile)
		w, err := m.writer()
		if err != nil {
			return nil, nil, err
		}
		return w, func() error { return nil }, nil
	}
	return nil, nil, fmt.Errorf("gtiff: destination %s is not writable", dst)
}
