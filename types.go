package p4k

import (
	"io"

	"github.com/meigma/p4k/internal/p4ktype"
)

// Re-export types from internal/p4ktype for public API.
type (
	// Entry is one archive member as described by the central directory.
	Entry = p4ktype.Entry

	// Compression identifies the compression method of an entry.
	Compression = p4ktype.Compression

	// FormatError describes a violated structural expectation while parsing.
	FormatError = p4ktype.FormatError
)

// Re-export compression constants.
const (
	CompressionStored  = p4ktype.CompressionStored
	CompressionDeflate = p4ktype.CompressionDeflate
	CompressionZstd    = p4ktype.CompressionZstd
)

// ByteSource provides random access to archive bytes.
//
// Implementations exist for memory-mapped files ([OpenFile]), byte slices
// ([NewBytesSource]) and HTTP range requests (package http).
// SourceID must return a stable identifier for the underlying content; it
// keys cached entries.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}
