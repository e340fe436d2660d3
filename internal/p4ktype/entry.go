package p4ktype

import "time"

// Entry is one member of an archive as described by its central directory.
//
// Entries are created once while decoding the central directory and are
// never mutated afterwards. Tree and comparison nodes hold pointers to them.
type Entry struct {
	// Name is the archive-relative path using backslash separators
	// (e.g. "Data\Libs\Foundry\Records\ship.xml").
	Name string

	// CompressedSize is the number of bytes stored in the archive,
	// including encryption padding.
	CompressedSize uint64

	// UncompressedSize is the size of the decoded content.
	UncompressedSize uint64

	// Compression is the method used to compress the content.
	Compression Compression

	// Encrypted reports whether the stored bytes are AES encrypted.
	Encrypted bool

	// Offset is the byte offset of the local file header.
	Offset uint64

	// DOSTime is the packed MS-DOS timestamp: date in the high 16 bits,
	// time in the low 16 bits.
	DOSTime uint32

	// CRC32 is the IEEE CRC-32 of the decoded content.
	CRC32 uint32
}

// ModTime decodes the packed MS-DOS timestamp. Archives store local time
// without a zone, so the result is in UTC.
func (e *Entry) ModTime() time.Time {
	date := uint16(e.DOSTime >> 16)
	clock := uint16(e.DOSTime)
	if date == 0 {
		return time.Time{}
	}
	return time.Date(
		int(date>>9)+1980,
		time.Month(date>>5&0x0f),
		int(date&0x1f),
		int(clock>>11),
		int(clock>>5&0x3f),
		int(clock&0x1f)*2,
		0,
		time.UTC,
	)
}

// IsDir reports whether the entry only names a directory.
func (e *Entry) IsDir() bool {
	n := len(e.Name)
	return n > 0 && (e.Name[n-1] == '\\' || e.Name[n-1] == '/')
}
