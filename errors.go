package p4k

import "github.com/meigma/p4k/internal/p4ktype"

// Sentinel errors re-exported from internal/p4ktype.
var (
	// ErrFormat is returned when the input is not a valid P4K archive.
	// Parse failures are *FormatError values that unwrap to ErrFormat.
	ErrFormat = p4ktype.ErrFormat

	// ErrCrypto is returned when an encrypted entry cannot be decrypted.
	ErrCrypto = p4ktype.ErrCrypto

	// ErrDecompression is returned when decompression fails or ends early.
	ErrDecompression = p4ktype.ErrDecompression

	// ErrUnsupportedCompression is returned for unknown compression methods.
	ErrUnsupportedCompression = p4ktype.ErrUnsupportedCompression

	// ErrChecksum is returned when decoded content does not match its CRC-32.
	ErrChecksum = p4ktype.ErrChecksum

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = p4ktype.ErrSizeOverflow

	// ErrNotAFile is returned when a file operation targets a directory.
	ErrNotAFile = p4ktype.ErrNotAFile

	// ErrNotADirectory is returned when a directory operation targets a file.
	ErrNotADirectory = p4ktype.ErrNotADirectory

	// ErrMountDepth is returned when nested archives exceed the mount depth.
	ErrMountDepth = p4ktype.ErrMountDepth
)
