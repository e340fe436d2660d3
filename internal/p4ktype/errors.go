package p4ktype

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrFormat is returned when the input is not a valid P4K archive or a
	// structural expectation of the format is violated.
	ErrFormat = errors.New("p4k: invalid archive format")

	// ErrCrypto is returned when an encrypted entry cannot be decrypted.
	ErrCrypto = errors.New("p4k: decryption failed")

	// ErrDecompression is returned when decompression fails or produces
	// fewer bytes than the entry declares.
	ErrDecompression = errors.New("p4k: decompression failed")

	// ErrUnsupportedCompression is returned for compression methods other
	// than stored, deflate and zstd.
	ErrUnsupportedCompression = errors.New("p4k: unsupported compression method")

	// ErrChecksum is returned when decoded content does not match the entry CRC-32.
	ErrChecksum = errors.New("p4k: checksum mismatch")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("p4k: size overflow")

	// ErrNotAFile is returned when a file operation targets a directory node.
	ErrNotAFile = errors.New("p4k: not a file")

	// ErrNotADirectory is returned when a directory operation targets a file.
	ErrNotADirectory = errors.New("p4k: not a directory")

	// ErrMountDepth is returned when nested archives exceed the configured depth.
	ErrMountDepth = errors.New("p4k: nested archive depth exceeded")
)

// FormatError describes a violated structural expectation while parsing
// archive metadata. It names the field, what was expected and what was found
// so that new format variants can be diagnosed from the message alone.
type FormatError struct {
	// Record is the structure being decoded (e.g. "central directory entry 12").
	Record string

	// Field is the offending field (e.g. "signature", "extra field tag").
	Field string

	// Want and Got are the expected and found values, already formatted.
	Want string
	Got  string

	// Offset is the absolute byte offset of the field, or -1 if unknown.
	Offset int64

	// Err is an optional underlying cause, such as a truncated read.
	Err error
}

// Error implements error.
func (e *FormatError) Error() string {
	msg := "p4k: " + e.Record
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Want != "" || e.Got != "" {
		msg += fmt.Sprintf(": expected %s, found %s", e.Want, e.Got)
	}
	if e.Offset >= 0 {
		msg += fmt.Sprintf(" (offset %d)", e.Offset)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns ErrFormat and the underlying cause, if any.
func (e *FormatError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrFormat, e.Err}
	}
	return []error{ErrFormat}
}

// Mismatch builds a FormatError for an unexpected integer value.
func Mismatch(record, field string, offset int64, want, got uint64) *FormatError {
	return &FormatError{
		Record: record,
		Field:  field,
		Want:   fmt.Sprintf("%#x", want),
		Got:    fmt.Sprintf("%#x", got),
		Offset: offset,
	}
}

// Truncated builds a FormatError for a read past the end of a structure.
func Truncated(record, field string, offset int64, err error) *FormatError {
	return &FormatError{
		Record: record,
		Field:  field,
		Offset: offset,
		Err:    err,
	}
}
