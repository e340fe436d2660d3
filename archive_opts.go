package p4k

import (
	"log/slog"

	"github.com/meigma/p4k/cache"
)

// DefaultMaxMountDepth is the default nesting limit for mounted archives.
const DefaultMaxMountDepth = 8

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for archive operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithCache enables caching of decoded entries.
//
// ReadEntry serves cached content and populates the cache on a miss.
// Concurrent reads of the same entry are deduplicated.
func WithCache(c cache.Cache) Option {
	return func(a *Archive) {
		a.cache = c
	}
}

// WithMaxFileSize limits the size of entries decoded through buffered paths
// (encrypted entries and ReadEntry). Set limit to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithMaxDecoderMemory limits the maximum memory used by the zstd decoder.
// Set limit to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(a *Archive) {
		a.maxDecoderMemory = limit
	}
}

// WithDecoderConcurrency sets the zstd decoder concurrency (default: 1).
// Values < 0 are treated as 0 (use GOMAXPROCS).
func WithDecoderConcurrency(n int) Option {
	return func(a *Archive) {
		a.decoderConcurrency = max(n, 0)
		a.decoderConcurrencySet = true
	}
}

// WithDecoderLowmem sets whether the zstd decoder should use low-memory mode (default: false).
func WithDecoderLowmem(enabled bool) Option {
	return func(a *Archive) {
		a.decoderLowmem = enabled
		a.decoderLowmemSet = true
	}
}

// WithVerifyChecksum controls CRC-32 verification of decoded entries
// (default: true).
func WithVerifyChecksum(enabled bool) Option {
	return func(a *Archive) {
		a.verifyChecksum = enabled
	}
}

// WithMaxMountDepth limits how deeply nested .socpak archives are opened
// (default: 8). With zero, mounts can still be read as files but resolving
// paths inside them fails with ErrMountDepth.
func WithMaxMountDepth(n int) Option {
	return func(a *Archive) {
		a.maxMountDepth = max(n, 0)
	}
}

// withDepth records the nesting depth of a mounted archive.
func withDepth(n int) Option {
	return func(a *Archive) {
		a.depth = n
	}
}
