// Package binread provides a bounds-checked little-endian cursor over a byte
// buffer and overflow-safe size conversions.
package binread

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrBackwardSeek is returned when a seek would move the cursor backwards.
var ErrBackwardSeek = errors.New("binread: backward seek")

// Cursor reads fixed-width little-endian values from a byte buffer.
//
// Slices returned by Bytes alias the buffer. The cursor only moves forward.
// Every read is bounds checked and returns an error wrapping
// io.ErrUnexpectedEOF instead of panicking.
type Cursor struct {
	buf  []byte
	pos  int
	base int64 // absolute offset of buf[0] in the backing source
}

// New returns a cursor over buf. base is the absolute offset of buf[0] in
// the backing source and is only used to report positions.
func New(buf []byte, base int64) *Cursor {
	return &Cursor{buf: buf, base: base}
}

// Offset returns the absolute offset of the next byte to be read.
func (c *Cursor) Offset() int64 {
	return c.base + int64(c.pos)
}

// Pos returns the position relative to the start of the buffer.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

func (c *Cursor) need(n int) error {
	if n < 0 || n > len(c.buf)-c.pos {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			io.ErrUnexpectedEOF, n, c.Offset(), c.Remaining())
	}
	return nil
}

// Skip advances the cursor by n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// SeekTo moves the cursor to pos, relative to the start of the buffer.
// pos must not be behind the current position.
func (c *Cursor) SeekTo(pos int) error {
	if pos < c.pos {
		return fmt.Errorf("%w: from %d to %d", ErrBackwardSeek, c.pos, pos)
	}
	return c.Skip(pos - c.pos)
}

// Uint16 reads a little-endian uint16.
func (c *Cursor) Uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.pos:])
	c.pos += 2
	return v, nil
}

// Uint32 reads a little-endian uint32.
func (c *Cursor) Uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.pos:])
	c.pos += 4
	return v, nil
}

// Uint64 reads a little-endian uint64.
func (c *Cursor) Uint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.pos:])
	c.pos += 8
	return v, nil
}

// Bytes returns the next n bytes without copying.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.need(n); err != nil {
		return nil, err
	}
	b := c.buf[c.pos : c.pos+n : c.pos+n]
	c.pos += n
	return b, nil
}

// Sub returns a cursor over the next n bytes and advances past them.
// Reads on the sub-cursor cannot run past its n bytes.
func (c *Cursor) Sub(n int) (*Cursor, error) {
	start := c.Offset()
	b, err := c.Bytes(n)
	if err != nil {
		return nil, err
	}
	return &Cursor{buf: b, base: start}, nil
}
