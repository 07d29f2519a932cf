// SPDX-License-Identifier: MIT

package cogsink

import "fmt"

// DestinationKind discriminates the Destination variant.
type DestinationKind uint8

const (
	// DestinationPath persists the artifact at a filesystem path.
	DestinationPath DestinationKind = iota
	// DestinationTransient requests a fully in-memory artifact that
	// the sink creates, owns and releases itself.
	DestinationTransient
	// DestinationHandle writes into a caller-owned resource; the
	// caller is responsible for releasing it.
	DestinationHandle
)

// Handle is an in-memory destination resource with an identity. The
// owner that created a handle releases it with Close, which must be
// idempotent.
type Handle interface {
	Name() string
	Close() error
}

// Destination addresses where a sink persists its artifact. It is a
// tagged variant of {path, transient, handle}; match on Kind rather
// than inspecting types.
type Destination struct {
	kind   DestinationKind
	path   string
	handle Handle
}

// DestPath persists to the filesystem.
func DestPath(path string) Destination {
	return Destination{kind: DestinationPath, path: path}
}

// DestTransient requests an anonymous in-memory artifact.
func DestTransient() Destination {
	return Destination{kind: DestinationTransient}
}

// DestHandle writes into an already-allocated, caller-owned resource.
func DestHandle(h Handle) Destination {
	return Destination{kind: DestinationHandle, handle: h}
}

func (d Destination) Kind() DestinationKind { return d.kind }
func (d Destination) Path() string          { return d.path }
func (d Destination) Handle() Handle        { return d.handle }

func (d Destination) String() string {
	switch d.kind {
	case DestinationPath:
		return d.path
	case DestinationTransient:
		return ":mem:"
	case DestinationHandle:
		return d.handle.Name()
	}
	return fmt.Sprintf("Destination(%d)", d.kind)
}

// CreateSpec fixes the geometry and codec configuration of one
// artifact at creation time.
type CreateSpec struct {
	Info RasterInfo
	// BlockX, BlockY are the resolved internal tile dimensions.
	BlockX, BlockY int
	BigTIFF        bool
	Options        CreationOptions
}

// Dataset is one open, writable artifact managed by a Backend. It is
// not safe for concurrent use; TileSink serializes access.
type Dataset interface {
	// Name is the artifact's identifier: its path, or the identity
	// of its in-memory resource.
	Name() string
	// WriteBlock stores a single-band block at an absolute pixel
	// window. Bands are 1-based.
	WriteBlock(r Rect, band int, b Block) error
	// Close flushes and releases the artifact. The written bytes
	// stay readable through the artifact's Destination.
	Close() error
}

// Level pairs a closed temporary artifact with its descriptor. A
// pyramid's level chain is an ordered []Level, index 0 full
// resolution, each subsequent entry the Shrink2 of its predecessor.
// The chain relation is carried explicitly by this slice; it is never
// inferred from artifact names.
type Level struct {
	Info RasterInfo
	Dest Destination
}

// CopySpec configures the final merge-copy.
type CopySpec struct {
	// BlockSize and OverviewBlockSize are the requested (not yet
	// dimension-adjusted) tile sizes of the main image and of the
	// embedded overviews.
	BlockSize         int
	OverviewBlockSize int
	BigTIFF           bool
	Options           CreationOptions
}

// Backend is the raster container the core sequences calls into. The
// production implementation is package gtiff.
type Backend interface {
	// Create opens one artifact for writing. Transient destinations
	// are resolved by the caller (see TileSink); backends may reject
	// them.
	Create(dst Destination, spec CreateSpec) (Dataset, error)

	// NewTemp allocates an anonymous in-memory resource with the
	// given identity. The caller owns it.
	NewTemp(name string) Handle

	// CopyWithOverviews reads a closed temporary level chain and
	// writes the single durable artifact with embedded overviews,
	// recompressed and retiled per spec. It is the only operation
	// that produces durable output.
	CopyWithOverviews(levels []Level, dstPath string, spec CopySpec) error
}

// resolveOptions applies the documented default-then-override merge:
// a nil override selects base unchanged, otherwise the override's
// named fields replace base wholesale and its Extra keys are layered
// over base's.
func resolveOptions(base CreationOptions, override *CreationOptions) CreationOptions {
	if override == nil {
		return base
	}
	out := *override
	out.Extra = mergeExtra(base.Extra, override.Extra)
	return out
}
