package testutil

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zstd"

	"github.com/meigma/p4k/internal/p4ktype"
)

// ArchiveKey is the published AES-128 key of the P4K format.
var ArchiveKey = []byte{
	0x5E, 0x7A, 0x20, 0x02, 0x30, 0x2E, 0xEB, 0x1A,
	0x3B, 0xB6, 0x17, 0xC3, 0x0F, 0xDE, 0x1E, 0x47,
}

// Record signatures written by the builder.
const (
	SigLocal        uint32 = 0x04034b50
	SigLocalP4K     uint32 = 0x14034b50
	sigCentral      uint32 = 0x02014b50
	sigEnd          uint32 = 0x06054b50
	sigZip64End     uint32 = 0x06064b50
	sigZip64Locator uint32 = 0x07064b50

	// DefaultDOSTime is 2024-05-06 12:30:10.
	DefaultDOSTime uint32 = (44<<9|5<<5|6)<<16 | (12<<11 | 30<<5 | 5)
)

// Member describes one archive member to build.
type Member struct {
	Name   string
	Data   []byte
	Method p4ktype.Compression

	// Encrypted members are zero-padded to the AES block size and
	// encrypted with ArchiveKey. They are always written as ZIP64.
	Encrypted bool

	// Zip64 writes ZIP64 sentinels and the vendor extra fields.
	Zip64 bool

	// LocalExtra is written as the local header extra field so the data
	// offset differs from what the central directory implies.
	LocalExtra []byte

	// LocalSignature overrides the local header signature.
	LocalSignature uint32

	// CentralVersion overrides "version needed to extract" in the
	// central directory.
	CentralVersion uint16

	// CRC32 overrides the computed checksum when non-zero.
	CRC32 uint32

	// Size overrides the declared uncompressed size when non-zero.
	Size uint64

	// DOSTime overrides DefaultDOSTime when non-zero.
	DOSTime uint32
}

type buildConfig struct {
	prefix      []byte
	comment     []byte
	forceZip64  bool
	vendorExtra []byte
}

// BuildOption configures BuildArchive.
type BuildOption func(*buildConfig)

// WithPrefix writes data before the first local header.
func WithPrefix(p []byte) BuildOption {
	return func(c *buildConfig) { c.prefix = p }
}

// WithComment sets the archive comment stored after the end record.
func WithComment(comment []byte) BuildOption {
	return func(c *buildConfig) { c.comment = comment }
}

// WithZip64End writes the ZIP64 end record and locator even if no member
// needs them.
func WithZip64End() BuildOption {
	return func(c *buildConfig) { c.forceZip64 = true }
}

// WithVendorExtra sets the payload of the opaque 0x5003 extra field.
func WithVendorExtra(b []byte) BuildOption {
	return func(c *buildConfig) { c.vendorExtra = b }
}

// BuiltMember records where a member was written.
type BuiltMember struct {
	Member
	Offset         uint64
	CompressedSize uint64
	Stored         []byte
}

// BuildArchive assembles a P4K archive from members.
func BuildArchive(tb testing.TB, members []Member, opts ...BuildOption) []byte {
	tb.Helper()
	data, _ := BuildArchiveLayout(tb, members, opts...)
	return data
}

// BuildArchiveLayout assembles a P4K archive and reports where each member
// landed.
func BuildArchiveLayout(tb testing.TB, members []Member, opts ...BuildOption) ([]byte, []BuiltMember) {
	tb.Helper()

	cfg := buildConfig{vendorExtra: []byte{0, 0, 0, 0}}
	for _, opt := range opts {
		opt(&cfg)
	}

	var out bytes.Buffer
	out.Write(cfg.prefix)

	built := make([]BuiltMember, 0, len(members))
	anyZip64 := cfg.forceZip64
	for _, m := range members {
		if m.Encrypted {
			m.Zip64 = true
		}
		anyZip64 = anyZip64 || m.Zip64

		stored := encode(tb, m)
		b := BuiltMember{
			Member:         m,
			Offset:         uint64(out.Len()),
			CompressedSize: uint64(len(stored)),
			Stored:         stored,
		}
		writeLocal(&out, b)
		out.Write(stored)
		built = append(built, b)
	}

	cdOffset := uint64(out.Len())
	for _, b := range built {
		writeCentral(&out, b, cfg.vendorExtra)
	}
	cdSize := uint64(out.Len()) - cdOffset
	n := uint64(len(built))

	if anyZip64 {
		end64 := uint64(out.Len())
		le32(&out, sigZip64End)
		le64(&out, 44)
		le16(&out, 45)
		le16(&out, 45)
		le32(&out, 0)
		le32(&out, 0)
		le64(&out, n)
		le64(&out, n)
		le64(&out, cdSize)
		le64(&out, cdOffset)

		le32(&out, sigZip64Locator)
		le32(&out, 0)
		le64(&out, end64)
		le32(&out, 1)

		le32(&out, sigEnd)
		le16(&out, 0)
		le16(&out, 0)
		le16(&out, 0xFFFF)
		le16(&out, 0xFFFF)
		le32(&out, 0xFFFFFFFF)
		le32(&out, 0xFFFFFFFF)
	} else {
		le32(&out, sigEnd)
		le16(&out, 0)
		le16(&out, 0)
		le16(&out, uint16(n))
		le16(&out, uint16(n))
		le32(&out, uint32(cdSize))
		le32(&out, uint32(cdOffset))
	}
	le16(&out, uint16(len(cfg.comment)))
	out.Write(cfg.comment)

	return out.Bytes(), built
}

func (b BuiltMember) crc() uint32 {
	if b.CRC32 != 0 {
		return b.CRC32
	}
	return crc32.ChecksumIEEE(b.Data)
}

func (b BuiltMember) size() uint64 {
	if b.Size != 0 {
		return b.Size
	}
	return uint64(len(b.Data))
}

func (b BuiltMember) dosTime() uint32 {
	if b.DOSTime != 0 {
		return b.DOSTime
	}
	return DefaultDOSTime
}

func writeLocal(out *bytes.Buffer, b BuiltMember) {
	sig := b.LocalSignature
	if sig == 0 {
		sig = SigLocal
	}
	le32(out, sig)
	le16(out, 20)
	le16(out, 0)
	le16(out, uint16(b.Method))
	le16(out, uint16(b.dosTime()))
	le16(out, uint16(b.dosTime()>>16))
	le32(out, b.crc())
	if b.Zip64 {
		le32(out, 0xFFFFFFFF)
		le32(out, 0xFFFFFFFF)
	} else {
		le32(out, uint32(b.CompressedSize))
		le32(out, uint32(b.size()))
	}
	le16(out, uint16(len(b.Name)))
	le16(out, uint16(len(b.LocalExtra)))
	out.WriteString(b.Name)
	out.Write(b.LocalExtra)
}

func writeCentral(out *bytes.Buffer, b BuiltMember, vendorExtra []byte) {
	version := uint16(20)
	if b.Zip64 {
		version = 45
	}
	if b.CentralVersion != 0 {
		version = b.CentralVersion
	}

	var extra bytes.Buffer
	if b.Zip64 {
		le16(&extra, 0x0001)
		le16(&extra, 28)
		le64(&extra, b.size())
		le64(&extra, b.CompressedSize)
		le64(&extra, b.Offset)
		le32(&extra, 0)

		le16(&extra, 0x5002)
		le16(&extra, 6)
		if b.Encrypted {
			le16(&extra, 1)
		} else {
			le16(&extra, 0)
		}

		le16(&extra, 0x5003)
		le16(&extra, uint16(4+len(vendorExtra)))
		extra.Write(vendorExtra)
	}

	le32(out, sigCentral)
	le16(out, 45)
	le16(out, version)
	le16(out, 0)
	le16(out, uint16(b.Method))
	le16(out, uint16(b.dosTime()))
	le16(out, uint16(b.dosTime()>>16))
	le32(out, b.crc())
	if b.Zip64 {
		le32(out, 0xFFFFFFFF)
		le32(out, 0xFFFFFFFF)
	} else {
		le32(out, uint32(b.CompressedSize))
		le32(out, uint32(b.size()))
	}
	le16(out, uint16(len(b.Name)))
	le16(out, uint16(extra.Len()))
	le16(out, 0) // comment
	if b.Zip64 {
		le16(out, 0xFFFF)
	} else {
		le16(out, 0)
	}
	le16(out, 0)
	le32(out, 0)
	if b.Zip64 {
		le32(out, 0xFFFFFFFF)
	} else {
		le32(out, uint32(b.Offset))
	}
	out.WriteString(b.Name)
	out.Write(extra.Bytes())
}

// encode compresses and optionally encrypts a member's data.
func encode(tb testing.TB, m Member) []byte {
	tb.Helper()

	var payload []byte
	switch m.Method {
	case p4ktype.CompressionStored:
		payload = bytes.Clone(m.Data)
	case p4ktype.CompressionDeflate:
		payload = Deflate(tb, m.Data)
	case p4ktype.CompressionZstd:
		payload = Zstd(tb, m.Data)
	default:
		payload = bytes.Clone(m.Data)
	}
	if !m.Encrypted {
		return payload
	}

	// Decryption trims trailing zeros; keep compressed streams intact by
	// ending them on a non-zero byte.
	if n := len(payload); n > 0 && payload[n-1] == 0 {
		switch m.Method {
		case p4ktype.CompressionZstd:
			payload = append(payload, 0x50, 0x2A, 0x4D, 0x18, 0x01, 0x00, 0x00, 0x00, 0xFF)
		case p4ktype.CompressionDeflate:
			payload = append(payload, 0xFF)
		}
	}
	return Encrypt(tb, payload)
}

// Encrypt zero-pads plain to the AES block size and encrypts it with
// ArchiveKey in CBC mode with a zero IV.
func Encrypt(tb testing.TB, plain []byte) []byte {
	tb.Helper()
	block, err := aes.NewCipher(ArchiveKey)
	if err != nil {
		tb.Fatalf("aes: %v", err)
	}
	padded := make([]byte, (len(plain)+aes.BlockSize-1)/aes.BlockSize*aes.BlockSize)
	copy(padded, plain)
	iv := make([]byte, aes.BlockSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(padded, padded)
	return padded
}

// Deflate compresses data with raw deflate.
func Deflate(tb testing.TB, data []byte) []byte {
	tb.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		tb.Fatalf("flate writer: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		tb.Fatalf("flate write: %v", err)
	}
	if err := w.Close(); err != nil {
		tb.Fatalf("flate close: %v", err)
	}
	return buf.Bytes()
}

// Zstd compresses data into a single zstd frame.
func Zstd(tb testing.TB, data []byte) []byte {
	tb.Helper()
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		tb.Fatalf("zstd writer: %v", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil)
}

func le16(b *bytes.Buffer, v uint16) {
	b.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func le32(b *bytes.Buffer, v uint32) {
	b.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func le64(b *bytes.Buffer, v uint64) {
	b.Write(binary.LittleEndian.AppendUint64(nil, v))
}
