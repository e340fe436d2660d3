package format

import (
	"context"
	"fmt"
	"io"

	"github.com/meigma/p4k/internal/binread"
	"github.com/meigma/p4k/internal/p4ktype"
)

// Central directory constants.
const (
	// versionBasic is the only "version needed" value written for entries
	// without ZIP64 fields.
	versionBasic = 20

	tagZip64  = 0x0001
	tagCrypto = 0x5002
	tagOpaque = 0x5003

	// cryptoFieldSize is the size of the crypto extra field, header included.
	cryptoFieldSize = 6
	// vendorHeaderLen is the tag and size prefix of a vendor extra field.
	vendorHeaderLen = 4

	// ctxCheckInterval is how many entries are decoded between context checks.
	ctxCheckInterval = 4096
)

// Directory describes where the central directory lives.
type Directory struct {
	TotalEntries uint64
	Offset       uint64
	Size         uint64
}

// ReadDirectoryInfo resolves the entry count, offset and size of the central
// directory from the records named by loc.
func ReadDirectoryInfo(src io.ReaderAt, loc Location) (Directory, error) {
	end, err := ReadEndOfCentralDir(src, loc.EndOfCentralDir)
	if err != nil {
		return Directory{}, err
	}
	if !loc.Zip64() {
		return Directory{
			TotalEntries: uint64(end.TotalEntries),
			Offset:       uint64(end.CentralDirOffset),
			Size:         uint64(end.CentralDirSize),
		}, nil
	}
	end64, err := ReadZip64EndOfCentralDir(src, loc.Zip64EndOfCentralDir)
	if err != nil {
		return Directory{}, err
	}
	return Directory{
		TotalEntries: end64.TotalEntries,
		Offset:       end64.CentralDirOffset,
		Size:         end64.CentralDirSize,
	}, nil
}

// ReadDirectory decodes every central directory entry in order. Either the
// whole table is returned or an error; there are no partial tables.
func ReadDirectory(ctx context.Context, src io.ReaderAt, size int64, loc Location) ([]*p4ktype.Entry, error) {
	dir, err := ReadDirectoryInfo(src, loc)
	if err != nil {
		return nil, err
	}
	if !binread.InBounds(dir.Offset, dir.Size, size) {
		return nil, &p4ktype.FormatError{
			Record: "central directory",
			Field:  "extent",
			Want:   fmt.Sprintf("within %d bytes", size),
			Got:    fmt.Sprintf("offset %d size %d", dir.Offset, dir.Size),
			Offset: -1,
		}
	}
	if dir.TotalEntries > dir.Size/CentralDirHeaderLen {
		return nil, &p4ktype.FormatError{
			Record: "central directory",
			Field:  "entry count",
			Want:   fmt.Sprintf("<= %d", dir.Size/CentralDirHeaderLen),
			Got:    fmt.Sprintf("%d", dir.TotalEntries),
			Offset: int64(dir.Offset),
		}
	}

	n, err := binread.ToInt(dir.Size, p4ktype.ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	buf, err := readAt(src, int64(dir.Offset), n)
	if err != nil {
		return nil, p4ktype.Truncated("central directory", "", int64(dir.Offset), err)
	}

	c := binread.New(buf, int64(dir.Offset))
	entries := make([]*p4ktype.Entry, 0, dir.TotalEntries)
	for i := range dir.TotalEntries {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e, err := decodeEntry(c, i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// centralHeader is the fixed part of a central directory file header.
type centralHeader struct {
	signature        uint32
	versionMadeBy    uint16
	versionNeeded    uint16
	flags            uint16
	method           uint16
	modTime          uint16
	modDate          uint16
	crc32            uint32
	compressedSize   uint32
	uncompressedSize uint32
	nameLength       uint16
	extraLength      uint16
	commentLength    uint16
	diskStart        uint16
	internalAttrs    uint16
	externalAttrs    uint32
	localOffset      uint32
}

func (h *centralHeader) zip64() bool {
	return h.uncompressedSize == sentinel32 ||
		h.compressedSize == sentinel32 ||
		h.localOffset == sentinel32 ||
		h.diskStart == sentinel16
}

func decodeEntry(c *binread.Cursor, index uint64) (*p4ktype.Entry, error) {
	record := fmt.Sprintf("central directory entry %d", index)
	headerOff := c.Offset()

	if err := expect32(c, record, "signature", SigCentralDirHeader); err != nil {
		return nil, err
	}
	var h centralHeader
	h.signature = SigCentralDirHeader
	err := fields(c, record,
		&h.versionMadeBy, &h.versionNeeded, &h.flags, &h.method, &h.modTime, &h.modDate,
		&h.crc32, &h.compressedSize, &h.uncompressedSize,
		&h.nameLength, &h.extraLength, &h.commentLength,
		&h.diskStart, &h.internalAttrs, &h.externalAttrs, &h.localOffset)
	if err != nil {
		return nil, err
	}

	nameOff := c.Offset()
	name, err := c.Bytes(int(h.nameLength))
	if err != nil {
		return nil, p4ktype.Truncated(record, "file name", nameOff, err)
	}

	e := &p4ktype.Entry{
		Name:             string(name),
		CompressedSize:   uint64(h.compressedSize),
		UncompressedSize: uint64(h.uncompressedSize),
		Compression:      p4ktype.Compression(h.method),
		Offset:           uint64(h.localOffset),
		DOSTime:          uint32(h.modDate)<<16 | uint32(h.modTime),
		CRC32:            h.crc32,
	}

	extraOff := c.Offset()
	extra, err := c.Sub(int(h.extraLength))
	if err != nil {
		return nil, p4ktype.Truncated(record, "extra field", extraOff, err)
	}

	if h.zip64() {
		if err := decodeZip64Extra(extra, record, &h, e); err != nil {
			return nil, err
		}
	} else if h.versionNeeded != versionBasic {
		return nil, p4ktype.Mismatch(record, "version needed to extract",
			headerOff+6, versionBasic, uint64(h.versionNeeded))
	}

	commentOff := c.Offset()
	if err := c.Skip(int(h.commentLength)); err != nil {
		return nil, p4ktype.Truncated(record, "file comment", commentOff, err)
	}
	return e, nil
}

// decodeZip64Extra reads the extra region of a ZIP64 entry: the ZIP64
// override block, the crypto field and the opaque vendor field, in that order.
func decodeZip64Extra(c *binread.Cursor, record string, h *centralHeader, e *p4ktype.Entry) error {
	var tag, size uint16
	tagOff := c.Offset()
	if err := fields(c, record, &tag, &size); err != nil {
		return err
	}
	if tag != tagZip64 {
		return p4ktype.Mismatch(record, "zip64 extra field tag", tagOff, tagZip64, uint64(tag))
	}

	blockOff := c.Offset()
	block, err := c.Sub(int(size))
	if err != nil {
		return p4ktype.Truncated(record, "zip64 extra field", blockOff, err)
	}
	if h.uncompressedSize == sentinel32 {
		if e.UncompressedSize, err = zip64Value(block, record, "zip64 uncompressed size"); err != nil {
			return err
		}
	}
	if h.compressedSize == sentinel32 {
		if e.CompressedSize, err = zip64Value(block, record, "zip64 compressed size"); err != nil {
			return err
		}
	}
	if h.localOffset == sentinel32 {
		if e.Offset, err = zip64Value(block, record, "zip64 local header offset"); err != nil {
			return err
		}
	}
	if h.diskStart == sentinel16 {
		off := block.Offset()
		if _, err := block.Uint32(); err != nil {
			return p4ktype.Truncated(record, "zip64 disk number", off, err)
		}
	}

	tagOff = c.Offset()
	if err := fields(c, record, &tag, &size); err != nil {
		return err
	}
	if tag != tagCrypto {
		return p4ktype.Mismatch(record, "crypto extra field tag", tagOff, tagCrypto, uint64(tag))
	}
	if size != cryptoFieldSize {
		return p4ktype.Mismatch(record, "crypto extra field size", tagOff+2, cryptoFieldSize, uint64(size))
	}
	flagOff := c.Offset()
	flag, err := c.Uint16()
	if err != nil {
		return p4ktype.Truncated(record, "crypto flag", flagOff, err)
	}
	e.Encrypted = flag != 0

	tagOff = c.Offset()
	if err := fields(c, record, &tag, &size); err != nil {
		return err
	}
	if tag != tagOpaque {
		return p4ktype.Mismatch(record, "vendor extra field tag", tagOff, tagOpaque, uint64(tag))
	}
	if size < vendorHeaderLen {
		return &p4ktype.FormatError{
			Record: record,
			Field:  "vendor extra field size",
			Want:   fmt.Sprintf(">= %d", vendorHeaderLen),
			Got:    fmt.Sprintf("%d", size),
			Offset: tagOff + 2,
		}
	}
	bodyOff := c.Offset()
	if err := c.Skip(int(size) - vendorHeaderLen); err != nil {
		return p4ktype.Truncated(record, "vendor extra field", bodyOff, err)
	}
	// Trailing extra bytes are ignored; the entry cursor is already past them.
	return nil
}

func zip64Value(c *binread.Cursor, record, field string) (uint64, error) {
	off := c.Offset()
	v, err := c.Uint64()
	if err != nil {
		return 0, p4ktype.Truncated(record, field, off, err)
	}
	return v, nil
}
