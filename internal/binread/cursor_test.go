package binread

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorReads(t *testing.T) {
	t.Parallel()

	buf := []byte{
		0x01, 0x02, // uint16
		0x03, 0x04, 0x05, 0x06, // uint32
		0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, // uint64
		'a', 'b', 'c',
	}
	c := New(buf, 100)

	u16, err := c.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), u16)

	u32, err := c.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x06050403), u32)

	u64, err := c.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0e0d0c0b0a090807), u64)

	assert.Equal(t, int64(114), c.Offset())
	assert.Equal(t, 3, c.Remaining())

	b, err := c.Bytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), b)
	assert.Equal(t, 0, c.Remaining())
}

func TestCursorTruncated(t *testing.T) {
	t.Parallel()

	c := New([]byte{0x01, 0x02, 0x03}, 0)
	_, err := c.Uint32()
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Equal(t, 0, c.Pos(), "failed read must not advance")

	_, err = c.Bytes(-1)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestCursorSubIsBounded(t *testing.T) {
	t.Parallel()

	c := New([]byte{1, 2, 3, 4, 5, 6}, 10)
	sub, err := c.Sub(2)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sub.Offset())
	assert.Equal(t, 2, c.Pos())

	_, err = sub.Uint32()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)

	v, err := sub.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)

	next, err := c.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0403), next)
}

func TestCursorSeek(t *testing.T) {
	t.Parallel()

	c := New(make([]byte, 8), 0)
	require.NoError(t, c.SeekTo(4))
	assert.Equal(t, 4, c.Pos())
	require.ErrorIs(t, c.SeekTo(2), ErrBackwardSeek)
	require.ErrorIs(t, c.SeekTo(9), io.ErrUnexpectedEOF)
	require.NoError(t, c.Skip(4))
	assert.Equal(t, 0, c.Remaining())
}

func TestSizing(t *testing.T) {
	t.Parallel()

	overflow := errors.New("overflow")

	_, err := ToInt64(math.MaxUint64, overflow)
	require.ErrorIs(t, err, overflow)
	v, err := ToInt64(42, overflow)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	_, ok := AddUint64(math.MaxUint64, 1)
	assert.False(t, ok)

	assert.True(t, InBounds(10, 5, 15))
	assert.False(t, InBounds(10, 6, 15))
	assert.False(t, InBounds(math.MaxUint64, 2, 15))
	assert.False(t, InBounds(0, 0, -1))
}
