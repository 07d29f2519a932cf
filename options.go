// SPDX-License-Identifier: MIT

package cogsink

// Compression selects the tile codec of an artifact.
type Compression uint8

const (
	// Deflate is zlib-framed DEFLATE, the default for final outputs.
	Deflate Compression = iota
	// ZSTD is Zstandard, used for the fast temporary level profile.
	ZSTD
)

func (c Compression) String() string {
	switch c {
	case Deflate:
		return "deflate"
	case ZSTD:
		return "zstd"
	}
	return "unknown"
}

// BigTIFFMode selects the artifact's offset width. Auto resolves to
// the large variant exactly when the uncompressed raster exceeds 4 GiB.
type BigTIFFMode uint8

const (
	BigTIFFAuto BigTIFFMode = iota
	BigTIFFOn
	BigTIFFOff
)

func (m BigTIFFMode) resolve(info RasterInfo) bool {
	switch m {
	case BigTIFFOn:
		return true
	case BigTIFFOff:
		return false
	}
	return info.RasterSize() > 1<<32
}

// CreationOptions is the codec configuration of one artifact. Every
// recognized option is a named field; Extra carries raw key/value
// options handed to the backend untouched. Start from
// DefaultCreationOptions or TempCreationOptions and override fields on
// the copy: defaults first, caller overrides win.
type CreationOptions struct {
	Compression Compression
	// Level is the codec effort level. Zero selects the codec
	// default (6 for deflate, 1 for zstd).
	Level int
	// Predictor enables horizontal differencing before compression.
	Predictor bool
	// NumThreads caps per-artifact codec parallelism. Zero uses all
	// available CPUs.
	NumThreads int
	// SparseOK permits never-written tiles to be omitted from the
	// artifact instead of materialized as fill.
	SparseOK bool
	Extra    map[string]string
}

// DefaultCreationOptions is the final-output profile: lossless deflate
// at level 6 with horizontal differencing, using all compute threads.
func DefaultCreationOptions() CreationOptions {
	return CreationOptions{
		Compression: Deflate,
		Level:       6,
		Predictor:   true,
	}
}

// TempCreationOptions is the disposable per-level profile: fast zstd,
// no predictor, sparse tiles allowed.
func TempCreationOptions() CreationOptions {
	return CreationOptions{
		Compression: ZSTD,
		Level:       1,
		SparseOK:    true,
	}
}

// mergeExtra layers override keys on top of base without mutating
// either map.
func mergeExtra(base, override map[string]string) map[string]string {
	if len(override) == 0 {
		return base
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func roundup16(x int) int {
	return (x + 15) &^ 15
}

// AdjustBlockSize resolves a requested tile size against one raster
// dimension: oversized requests shrink to the dimension, and the
// result is rounded up to the next multiple of 16.
func AdjustBlockSize(block, dim int) int {
	if block > dim {
		return roundup16(dim)
	}
	return roundup16(block)
}

// DefaultBlockSize is the tile edge length used when none is configured.
const DefaultBlockSize = 512
