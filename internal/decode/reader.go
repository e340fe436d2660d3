package decode

import (
	"fmt"
	"hash/crc32"
	"io"

	"github.com/meigma/p4k/internal/p4ktype"
)

// entryReader limits a decoded stream to the entry's uncompressed size and
// verifies the CRC-32 once the last byte is delivered.
type entryReader struct {
	entry     *p4ktype.Entry
	src       io.Reader
	remaining uint64
	crc       uint32
	verify    bool
	// pad fills a stream that ends early with zeros. Used for encrypted
	// stored entries whose trailing zeros were trimmed after decryption.
	pad     bool
	err     error
	closers []func()
}

func (r *entryReader) Read(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.remaining == 0 {
		r.finish()
		return 0, r.err
	}
	if len(p) == 0 {
		return 0, nil
	}
	if uint64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}

	n, err := r.src.Read(p)
	r.crc = crc32.Update(r.crc, crc32.IEEETable, p[:n])
	r.remaining -= uint64(n)

	switch {
	case err == io.EOF && r.remaining > 0 && r.pad:
		r.src = zeros{}
		r.pad = false
	case err == io.EOF && r.remaining > 0:
		r.err = fmt.Errorf("%w: stream ended %d bytes early", p4ktype.ErrDecompression, r.remaining)
		return n, r.err
	case err != nil && err != io.EOF:
		if r.entry.Compression != p4ktype.CompressionStored {
			err = fmt.Errorf("%w: %v", p4ktype.ErrDecompression, err)
		}
		r.err = err
		return n, err
	}

	if r.remaining == 0 {
		r.finish()
		if r.err != io.EOF {
			return n, r.err
		}
	}
	return n, nil
}

func (r *entryReader) finish() {
	if r.err != nil {
		return
	}
	r.err = io.EOF
	if r.verify && r.crc != r.entry.CRC32 {
		r.err = fmt.Errorf("%w: expected %08x, got %08x", p4ktype.ErrChecksum, r.entry.CRC32, r.crc)
	}
}

func (r *entryReader) Close() error {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
	return nil
}

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
