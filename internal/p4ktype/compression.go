package p4ktype

import "strconv"

// Compression identifies the compression method of an entry.
type Compression uint16

const (
	CompressionStored  Compression = 0
	CompressionDeflate Compression = 8
	CompressionZstd    Compression = 100
)

// String returns the human-readable name of the compression method.
func (c Compression) String() string {
	switch c {
	case CompressionStored:
		return "stored"
	case CompressionDeflate:
		return "deflate"
	case CompressionZstd:
		return "zstd"
	default:
		return "method(" + strconv.Itoa(int(c)) + ")"
	}
}

// Supported reports whether the decode pipeline can handle c.
func (c Compression) Supported() bool {
	switch c {
	case CompressionStored, CompressionDeflate, CompressionZstd:
		return true
	default:
		return false
	}
}
