// Package format decodes the fixed-layout records of P4K archives and walks
// the central directory into an entry table.
//
// P4K is a ZIP64 container. Every record is little-endian. Any violated
// expectation is reported as a *p4ktype.FormatError naming the record, the
// field, the expected and found values and the absolute offset.
package format

import (
	"fmt"
	"io"

	"github.com/meigma/p4k/internal/binread"
	"github.com/meigma/p4k/internal/p4ktype"
)

// Record signatures.
const (
	SigEndOfCentralDir      uint32 = 0x06054b50
	SigZip64Locator         uint32 = 0x07064b50
	SigZip64EndOfCentralDir uint32 = 0x06064b50
	SigCentralDirHeader     uint32 = 0x02014b50
	SigLocalHeader          uint32 = 0x04034b50
	// SigLocalHeaderP4K is the variant local header signature written by
	// the game's build pipeline.
	SigLocalHeaderP4K uint32 = 0x14034b50
)

// Fixed record lengths.
const (
	EndOfCentralDirLen      = 22
	Zip64LocatorLen         = 20
	Zip64EndOfCentralDirLen = 56
	CentralDirHeaderLen     = 46
	LocalHeaderLen          = 30
)

// ZIP64 sentinels stored in 16- and 32-bit fields.
const (
	sentinel16 = 0xFFFF
	sentinel32 = 0xFFFFFFFF
)

// EndOfCentralDir is the classic end of central directory record.
type EndOfCentralDir struct {
	DiskNumber       uint16
	CentralDirDisk   uint16
	EntriesOnDisk    uint16
	TotalEntries     uint16
	CentralDirSize   uint32
	CentralDirOffset uint32
	CommentLength    uint16
}

// Saturated reports whether any count, size or offset field holds the ZIP64
// sentinel, meaning the real values live in the ZIP64 end record.
func (r *EndOfCentralDir) Saturated() bool {
	return r.EntriesOnDisk == sentinel16 ||
		r.TotalEntries == sentinel16 ||
		r.CentralDirSize == sentinel32 ||
		r.CentralDirOffset == sentinel32
}

// Zip64Locator points at the ZIP64 end of central directory record.
type Zip64Locator struct {
	CentralDirDisk uint32
	EndOffset      uint64
	TotalDisks     uint32
}

// Zip64EndOfCentralDir is the 64-bit end of central directory record.
type Zip64EndOfCentralDir struct {
	RecordSize       uint64
	VersionMadeBy    uint16
	VersionNeeded    uint16
	DiskNumber       uint32
	CentralDirDisk   uint32
	EntriesOnDisk    uint64
	TotalEntries     uint64
	CentralDirSize   uint64
	CentralDirOffset uint64
}

// LocalHeader is the fixed part of a local file header.
type LocalHeader struct {
	Signature        uint32
	VersionNeeded    uint16
	Flags            uint16
	Method           uint16
	ModTime          uint16
	ModDate          uint16
	CRC32            uint32
	CompressedSize   uint32
	UncompressedSize uint32
	NameLength       uint16
	ExtraLength      uint16
}

// DataOffset returns the absolute offset of the entry data given the
// absolute offset of this header. The local name and extra lengths are used,
// not the central directory ones.
func (h *LocalHeader) DataOffset(headerOffset uint64) uint64 {
	return headerOffset + LocalHeaderLen + uint64(h.NameLength) + uint64(h.ExtraLength)
}

// readAt reads exactly n bytes at off.
func readAt(src io.ReaderAt, off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := src.ReadAt(buf, off)
	if read == n {
		return buf, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

// expect32 reads a uint32 and compares it to want.
func expect32(c *binread.Cursor, record, field string, want uint32) error {
	off := c.Offset()
	got, err := c.Uint32()
	if err != nil {
		return p4ktype.Truncated(record, field, off, err)
	}
	if got != want {
		return p4ktype.Mismatch(record, field, off, uint64(want), uint64(got))
	}
	return nil
}

// fields reads a run of fixed-width values in order, stopping at the first
// failure. Supported destinations are *uint16, *uint32 and *uint64.
func fields(c *binread.Cursor, record string, dst ...any) error {
	for _, d := range dst {
		off := c.Offset()
		var err error
		switch p := d.(type) {
		case *uint16:
			*p, err = c.Uint16()
		case *uint32:
			*p, err = c.Uint32()
		case *uint64:
			*p, err = c.Uint64()
		default:
			panic(fmt.Sprintf("format: unsupported field type %T", d))
		}
		if err != nil {
			return p4ktype.Truncated(record, "fixed fields", off, err)
		}
	}
	return nil
}

// ReadEndOfCentralDir decodes the end of central directory record at off.
func ReadEndOfCentralDir(src io.ReaderAt, off int64) (*EndOfCentralDir, error) {
	const record = "end of central directory"
	buf, err := readAt(src, off, EndOfCentralDirLen)
	if err != nil {
		return nil, p4ktype.Truncated(record, "", off, err)
	}
	c := binread.New(buf, off)
	if err := expect32(c, record, "signature", SigEndOfCentralDir); err != nil {
		return nil, err
	}
	var r EndOfCentralDir
	err = fields(c, record,
		&r.DiskNumber, &r.CentralDirDisk, &r.EntriesOnDisk, &r.TotalEntries,
		&r.CentralDirSize, &r.CentralDirOffset, &r.CommentLength)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadZip64Locator decodes the ZIP64 end of central directory locator at off.
func ReadZip64Locator(src io.ReaderAt, off int64) (*Zip64Locator, error) {
	const record = "zip64 end of central directory locator"
	buf, err := readAt(src, off, Zip64LocatorLen)
	if err != nil {
		return nil, p4ktype.Truncated(record, "", off, err)
	}
	c := binread.New(buf, off)
	if err := expect32(c, record, "signature", SigZip64Locator); err != nil {
		return nil, err
	}
	var r Zip64Locator
	if err := fields(c, record, &r.CentralDirDisk, &r.EndOffset, &r.TotalDisks); err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadZip64EndOfCentralDir decodes the ZIP64 end of central directory record at off.
func ReadZip64EndOfCentralDir(src io.ReaderAt, off int64) (*Zip64EndOfCentralDir, error) {
	const record = "zip64 end of central directory"
	buf, err := readAt(src, off, Zip64EndOfCentralDirLen)
	if err != nil {
		return nil, p4ktype.Truncated(record, "", off, err)
	}
	c := binread.New(buf, off)
	if err := expect32(c, record, "signature", SigZip64EndOfCentralDir); err != nil {
		return nil, err
	}
	var r Zip64EndOfCentralDir
	err = fields(c, record,
		&r.RecordSize, &r.VersionMadeBy, &r.VersionNeeded, &r.DiskNumber,
		&r.CentralDirDisk, &r.EntriesOnDisk, &r.TotalEntries,
		&r.CentralDirSize, &r.CentralDirOffset)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ReadLocalHeader decodes the local file header at off. Both the standard
// and the P4K signature are accepted.
func ReadLocalHeader(src io.ReaderAt, off int64) (*LocalHeader, error) {
	const record = "local file header"
	buf, err := readAt(src, off, LocalHeaderLen)
	if err != nil {
		return nil, p4ktype.Truncated(record, "", off, err)
	}
	return ParseLocalHeader(buf, off)
}

// ParseLocalHeader decodes a local file header from buf, whose first byte
// sits at absolute offset off.
func ParseLocalHeader(buf []byte, off int64) (*LocalHeader, error) {
	const record = "local file header"
	c := binread.New(buf, off)
	var h LocalHeader
	err := fields(c, record,
		&h.Signature, &h.VersionNeeded, &h.Flags, &h.Method, &h.ModTime, &h.ModDate,
		&h.CRC32, &h.CompressedSize, &h.UncompressedSize, &h.NameLength, &h.ExtraLength)
	if err != nil {
		return nil, err
	}
	if h.Signature != SigLocalHeader && h.Signature != SigLocalHeaderP4K {
		return nil, &p4ktype.FormatError{
			Record: record,
			Field:  "signature",
			Want:   fmt.Sprintf("%#x or %#x", SigLocalHeader, SigLocalHeaderP4K),
			Got:    fmt.Sprintf("%#x", h.Signature),
			Offset: off,
		}
	}
	return &h, nil
}
