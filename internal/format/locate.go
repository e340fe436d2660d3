package format

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/p4k/internal/p4ktype"
)

// scanChunkSize is the read size of the backward end record scan.
const scanChunkSize = 8 << 10

// Location holds the absolute offsets of the trailing records. The ZIP64
// offsets are -1 when the archive does not use the ZIP64 extension.
type Location struct {
	EndOfCentralDir      int64
	Zip64Locator         int64
	Zip64EndOfCentralDir int64
}

// Zip64 reports whether the ZIP64 end record was located.
func (l Location) Zip64() bool {
	return l.Zip64EndOfCentralDir >= 0
}

// Locate finds the end of central directory record by scanning backward from
// the true end of src, and the ZIP64 locator and end record when the end
// record is saturated.
func Locate(ctx context.Context, src io.ReaderAt, size int64) (Location, error) {
	loc := Location{EndOfCentralDir: -1, Zip64Locator: -1, Zip64EndOfCentralDir: -1}
	if size < EndOfCentralDirLen {
		return loc, &p4ktype.FormatError{
			Record: "archive",
			Field:  "size",
			Want:   fmt.Sprintf(">= %d bytes", EndOfCentralDirLen),
			Got:    fmt.Sprintf("%d bytes", size),
			Offset: -1,
			Err:    errNotArchive,
		}
	}

	eocd, err := FindLastSignature(ctx, src, size, SigEndOfCentralDir, EndOfCentralDirLen)
	if err != nil {
		return loc, err
	}
	if eocd < 0 {
		return loc, &p4ktype.FormatError{
			Record: "end of central directory",
			Field:  "signature",
			Want:   fmt.Sprintf("%#x", SigEndOfCentralDir),
			Got:    "no match",
			Offset: -1,
			Err:    errNotArchive,
		}
	}
	loc.EndOfCentralDir = eocd

	end, err := ReadEndOfCentralDir(src, eocd)
	if err != nil {
		return loc, err
	}
	if !end.Saturated() {
		return loc, nil
	}

	locOff := eocd - Zip64LocatorLen
	if locOff < 0 {
		return loc, &p4ktype.FormatError{
			Record: "zip64 end of central directory locator",
			Field:  "offset",
			Want:   fmt.Sprintf(">= %d", Zip64LocatorLen),
			Got:    fmt.Sprintf("end record at %d", eocd),
			Offset: eocd,
		}
	}
	locator, err := ReadZip64Locator(src, locOff)
	if err != nil {
		return loc, err
	}
	loc.Zip64Locator = locOff

	if locator.EndOffset > uint64(size) || uint64(size)-locator.EndOffset < Zip64EndOfCentralDirLen {
		return loc, &p4ktype.FormatError{
			Record: "zip64 end of central directory locator",
			Field:  "end record offset",
			Want:   fmt.Sprintf("<= %d", size-Zip64EndOfCentralDirLen),
			Got:    fmt.Sprintf("%d", locator.EndOffset),
			Offset: locOff + 8,
		}
	}
	// Verify the signature of the record the locator names.
	if _, err := ReadZip64EndOfCentralDir(src, int64(locator.EndOffset)); err != nil {
		return loc, err
	}
	loc.Zip64EndOfCentralDir = int64(locator.EndOffset)
	return loc, nil
}

// FindLastSignature returns the highest offset of sig in src that leaves at
// least minLen bytes to the end of the stream, or -1 if there is none.
//
// The stream is read backward in fixed chunks. Consecutive chunks overlap by
// three bytes so a signature straddling a chunk boundary is still found.
func FindLastSignature(ctx context.Context, src io.ReaderAt, size int64, sig uint32, minLen int) (int64, error) {
	var magic [4]byte
	binary.LittleEndian.PutUint32(magic[:], sig)
	const overlap = len(magic) - 1

	buf := make([]byte, scanChunkSize)
	end := size
	for end >= int64(len(magic)) {
		if err := ctx.Err(); err != nil {
			return -1, err
		}
		start := max(end-scanChunkSize, 0)
		chunk := buf[:end-start]
		if _, err := src.ReadAt(chunk, start); err != nil && err != io.EOF {
			return -1, fmt.Errorf("read chunk at %d: %w", start, err)
		}

		window := chunk
		for {
			i := bytes.LastIndex(window, magic[:])
			if i < 0 {
				break
			}
			if size-(start+int64(i)) >= int64(minLen) {
				return start + int64(i), nil
			}
			// Too close to the end to hold the record; keep scanning below it.
			window = window[:i+overlap]
		}

		if start == 0 {
			break
		}
		end = start + int64(overlap)
	}
	return -1, nil
}
