// Package decode turns the stored bytes of an archive entry into its content:
// local header resolution, AES decryption, decompression and CRC-32
// verification.
package decode

import (
	"bytes"
	"fmt"
	"io"

	"github.com/meigma/p4k/internal/binread"
	"github.com/meigma/p4k/internal/format"
	"github.com/meigma/p4k/internal/p4ktype"
)

const (
	// DefaultMaxFileSize is the default limit for buffered reads (1 GiB).
	DefaultMaxFileSize = 1 << 30

	// DefaultMaxDecoderMemory is the default maximum zstd decoder memory (256 MiB).
	DefaultMaxDecoderMemory = 256 << 20
)

// RangeReader is implemented by sources that serve a byte range more
// efficiently as one stream than as many ReadAt calls.
type RangeReader interface {
	ReadRange(off, length int64) (io.ReadCloser, error)
}

// Decoder opens decoded content streams for entries of one archive.
//
// A Decoder holds no per-entry state and is safe for concurrent use.
type Decoder struct {
	source             io.ReaderAt
	size               int64
	maxFileSize        uint64
	maxDecoderMemory   uint64
	decoderConcurrency int
	decoderLowmem      bool
	verify             bool
	zstd               *ZstdPool
	flate              flatePool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithMaxFileSize sets the maximum size for buffered reads and encrypted
// entries. Set to 0 to disable the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(d *Decoder) {
		d.maxFileSize = limit
	}
}

// WithMaxDecoderMemory sets the maximum zstd decoder memory.
// Set to 0 to disable the limit.
func WithMaxDecoderMemory(limit uint64) Option {
	return func(d *Decoder) {
		d.maxDecoderMemory = limit
	}
}

// WithDecoderConcurrency sets the zstd decoder concurrency (default: 1).
// Values < 0 are treated as 0 (use GOMAXPROCS).
func WithDecoderConcurrency(n int) Option {
	return func(d *Decoder) {
		d.decoderConcurrency = max(n, 0)
	}
}

// WithDecoderLowmem sets whether zstd decoders use low-memory mode.
func WithDecoderLowmem(enabled bool) Option {
	return func(d *Decoder) {
		d.decoderLowmem = enabled
	}
}

// WithVerifyChecksum enables or disables CRC-32 verification (default: enabled).
func WithVerifyChecksum(enabled bool) Option {
	return func(d *Decoder) {
		d.verify = enabled
	}
}

// NewDecoder creates a Decoder reading from source, which holds size bytes.
func NewDecoder(source io.ReaderAt, size int64, opts ...Option) *Decoder {
	d := &Decoder{
		source:             source,
		size:               size,
		maxFileSize:        DefaultMaxFileSize,
		maxDecoderMemory:   DefaultMaxDecoderMemory,
		decoderConcurrency: 1,
		verify:             true,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.zstd = NewZstdPool(d.maxDecoderMemory, d.decoderConcurrency, d.decoderLowmem)
	return d
}

// MaxFileSize returns the configured maximum buffered read size.
func (d *Decoder) MaxFileSize() uint64 {
	return d.maxFileSize
}

// Open returns a stream of exactly e.UncompressedSize decoded bytes. The
// CRC-32 is checked when the last byte has been read.
func (d *Decoder) Open(e *p4ktype.Entry) (io.ReadCloser, error) {
	r, err := d.open(e)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", e.Name, err)
	}
	return r, nil
}

// ReadAll decodes the whole entry into memory.
func (d *Decoder) ReadAll(e *p4ktype.Entry) ([]byte, error) {
	if d.maxFileSize != 0 && e.UncompressedSize > d.maxFileSize {
		return nil, fmt.Errorf("read %s: %w: %d bytes exceeds limit %d",
			e.Name, p4ktype.ErrSizeOverflow, e.UncompressedSize, d.maxFileSize)
	}
	n, err := binread.ToInt(e.UncompressedSize, p4ktype.ErrSizeOverflow)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Name, err)
	}

	r, err := d.open(e)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Name, err)
	}
	defer r.Close()

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Name, err)
	}
	// Drain to EOF so the checksum runs for empty entries too.
	if _, err := r.Read(nil); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", e.Name, err)
	}
	return buf, nil
}

func (d *Decoder) open(e *p4ktype.Entry) (*entryReader, error) {
	if err := d.validate(e); err != nil {
		return nil, err
	}

	hdrOff, err := binread.ToInt64(e.Offset, p4ktype.ErrSizeOverflow)
	if err != nil {
		return nil, err
	}
	hdr, err := format.ReadLocalHeader(d.source, hdrOff)
	if err != nil {
		return nil, err
	}
	dataOff := hdr.DataOffset(e.Offset)
	if !binread.InBounds(dataOff, e.CompressedSize, d.size) {
		return nil, fmt.Errorf("%w: data [%d, +%d) exceeds source size %d",
			p4ktype.ErrSizeOverflow, dataOff, e.CompressedSize, d.size)
	}

	raw, closeRaw, err := d.rawReader(e, int64(dataOff))
	if err != nil {
		return nil, err
	}

	er := &entryReader{
		entry:     e,
		remaining: e.UncompressedSize,
		verify:    d.verify,
		closers:   []func(){closeRaw},
	}
	switch e.Compression {
	case p4ktype.CompressionStored:
		er.src = raw
		er.pad = e.Encrypted
	case p4ktype.CompressionDeflate:
		fr, release := d.flate.Get(raw)
		er.src = fr
		er.closers = append(er.closers, release)
	case p4ktype.CompressionZstd:
		dec, release, err := d.zstd.Get(raw)
		if err != nil {
			closeRaw()
			return nil, fmt.Errorf("%w: %v", p4ktype.ErrDecompression, err)
		}
		er.src = dec
		er.closers = append(er.closers, release)
	}
	return er, nil
}

func (d *Decoder) validate(e *p4ktype.Entry) error {
	if !e.Compression.Supported() {
		return fmt.Errorf("%w: %s", p4ktype.ErrUnsupportedCompression, e.Compression)
	}
	if !binread.InBounds(e.Offset, format.LocalHeaderLen, d.size) {
		return fmt.Errorf("%w: local header offset %d exceeds source size %d",
			p4ktype.ErrSizeOverflow, e.Offset, d.size)
	}
	if !e.Encrypted && e.Compression == p4ktype.CompressionStored && e.CompressedSize != e.UncompressedSize {
		return fmt.Errorf("%w: stored entry has compressed size %d and uncompressed size %d",
			p4ktype.ErrDecompression, e.CompressedSize, e.UncompressedSize)
	}
	if e.Encrypted && d.maxFileSize != 0 && e.CompressedSize > d.maxFileSize {
		return fmt.Errorf("%w: encrypted entry of %d bytes exceeds limit %d",
			p4ktype.ErrSizeOverflow, e.CompressedSize, d.maxFileSize)
	}
	return nil
}

// rawReader returns the stored bytes of an entry, decrypted if needed.
func (d *Decoder) rawReader(e *p4ktype.Entry, dataOff int64) (io.Reader, func(), error) {
	length, err := binread.ToInt64(e.CompressedSize, p4ktype.ErrSizeOverflow)
	if err != nil {
		return nil, nil, err
	}
	section := io.NewSectionReader(d.source, dataOff, length)

	if e.Encrypted {
		buf := make([]byte, length)
		if _, err := io.ReadFull(section, buf); err != nil {
			return nil, nil, fmt.Errorf("%w: read ciphertext: %v", p4ktype.ErrCrypto, err)
		}
		plain, err := Decrypt(buf)
		if err != nil {
			return nil, nil, err
		}
		return bytes.NewReader(plain), func() {}, nil
	}

	if rr, ok := d.source.(RangeReader); ok {
		rc, err := rr.ReadRange(dataOff, length)
		if err != nil {
			return nil, nil, err
		}
		return rc, func() { _ = rc.Close() }, nil
	}
	return section, func() {}, nil
}
