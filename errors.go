// SPDX-License-Identifier: MIT

package cogsink

import "errors"

// Common errors. Backend I/O failures are returned as-is (or wrapped
// with %w) and are never retried here: raster writes are not assumed
// idempotent, so retry policy belongs to the caller.
var (
	// ErrConfig reports an invalid descriptor: missing georeferencing,
	// an ambiguous band axis, or an unknown element type.
	ErrConfig = errors.New("invalid raster configuration")

	// ErrUnsupported reports an operation that is recognized but not
	// implemented, such as multi-band windowed writes.
	ErrUnsupported = errors.New("unsupported operation")

	// ErrInvalidWindow reports a window that cannot be resolved
	// against the raster extent.
	ErrInvalidWindow = errors.New("invalid window")

	// ErrClosed reports a write to a sink that has been closed or
	// finalized.
	ErrClosed = errors.New("sink is closed")
)
