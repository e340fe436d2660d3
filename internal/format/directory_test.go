package format

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/p4k/internal/p4ktype"
	"github.com/meigma/p4k/internal/testutil"
)

func readAll(t *testing.T, data []byte) ([]*p4ktype.Entry, error) {
	t.Helper()
	src := bytes.NewReader(data)
	loc, err := Locate(context.Background(), src, int64(len(data)))
	require.NoError(t, err)
	return ReadDirectory(context.Background(), src, int64(len(data)), loc)
}

func TestReadDirectory(t *testing.T) {
	t.Parallel()

	members := []testutil.Member{
		{Name: `Data\a.txt`, Data: []byte("alpha")},
		{Name: `Data\b.xml`, Data: []byte("<b/>"), Method: p4ktype.CompressionDeflate, Zip64: true},
		{Name: `Data\c.bin`, Data: bytes.Repeat([]byte{1, 2, 3}, 100), Method: p4ktype.CompressionZstd, Encrypted: true},
		{Name: `Data\Empty\`},
	}
	data, built := testutil.BuildArchiveLayout(t, members)

	entries, err := readAll(t, data)
	require.NoError(t, err)
	require.Len(t, entries, len(members))

	for i, e := range entries {
		b := built[i]
		assert.Equal(t, b.Name, e.Name)
		assert.Equal(t, uint64(len(b.Data)), e.UncompressedSize, e.Name)
		assert.Equal(t, b.CompressedSize, e.CompressedSize, e.Name)
		assert.Equal(t, b.Offset, e.Offset, e.Name)
		assert.Equal(t, b.Method, e.Compression, e.Name)
		assert.Equal(t, b.Encrypted, e.Encrypted, e.Name)
		assert.Equal(t, crc32.ChecksumIEEE(b.Data), e.CRC32, e.Name)
		assert.Equal(t, testutil.DefaultDOSTime, e.DOSTime, e.Name)
	}
	assert.True(t, entries[3].IsDir())
	assert.Equal(t, 2024, entries[0].ModTime().Year())
}

func TestReadDirectoryPreservesOrder(t *testing.T) {
	t.Parallel()

	var members []testutil.Member
	for i := range 50 {
		members = append(members, testutil.Member{
			Name:  fmt.Sprintf(`dir\%02d.dat`, 49-i),
			Data:  []byte{byte(i)},
			Zip64: i%3 == 0,
		})
	}
	entries, err := readAll(t, testutil.BuildArchive(t, members))
	require.NoError(t, err)
	require.Len(t, entries, 50)
	for i, e := range entries {
		assert.Equal(t, members[i].Name, e.Name)
	}
}

func TestReadDirectoryVendorExtra(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArchive(t,
		[]testutil.Member{{Name: "a", Data: []byte("x"), Zip64: true}, {Name: "b", Data: []byte("y"), Zip64: true}},
		testutil.WithVendorExtra(bytes.Repeat([]byte{0xAB}, 37)))
	entries, err := readAll(t, data)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[1].Name)
}

// centralOffset returns the offset of the first central directory header.
func centralOffset(t *testing.T, data []byte) int {
	t.Helper()
	i := bytes.Index(data, binary.LittleEndian.AppendUint32(nil, SigCentralDirHeader))
	require.GreaterOrEqual(t, i, 0)
	return i
}

func TestReadDirectoryErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		members []testutil.Member
		corrupt func(t *testing.T, data []byte)
		field   string
	}{
		{
			name:    "bad central signature",
			members: []testutil.Member{{Name: "a", Data: []byte("x")}},
			corrupt: func(t *testing.T, data []byte) {
				data[centralOffset(t, data)+3] = 0x99
			},
			field: "signature",
		},
		{
			name:    "unexpected version needed",
			members: []testutil.Member{{Name: "a", Data: []byte("x"), CentralVersion: 10}},
			field:   "version needed to extract",
		},
		{
			name:    "bad zip64 tag",
			members: []testutil.Member{{Name: "a", Data: []byte("x"), Zip64: true}},
			corrupt: func(t *testing.T, data []byte) {
				off := centralOffset(t, data) + CentralDirHeaderLen + 1
				binary.LittleEndian.PutUint16(data[off:], 0x0099)
			},
			field: "zip64 extra field tag",
		},
		{
			name:    "bad crypto size",
			members: []testutil.Member{{Name: "a", Data: []byte("x"), Zip64: true}},
			corrupt: func(t *testing.T, data []byte) {
				// name (1) + zip64 block (4+28) + crypto tag (2)
				off := centralOffset(t, data) + CentralDirHeaderLen + 1 + 32 + 2
				binary.LittleEndian.PutUint16(data[off:], 8)
			},
			field: "crypto extra field size",
		},
		{
			name:    "bad vendor tag",
			members: []testutil.Member{{Name: "a", Data: []byte("x"), Zip64: true}},
			corrupt: func(t *testing.T, data []byte) {
				off := centralOffset(t, data) + CentralDirHeaderLen + 1 + 32 + 6
				binary.LittleEndian.PutUint16(data[off:], 0x5004)
			},
			field: "vendor extra field tag",
		},
		{
			name:    "vendor size below header",
			members: []testutil.Member{{Name: "a", Data: []byte("x"), Zip64: true}},
			corrupt: func(t *testing.T, data []byte) {
				off := centralOffset(t, data) + CentralDirHeaderLen + 1 + 32 + 6 + 2
				binary.LittleEndian.PutUint16(data[off:], 3)
			},
			field: "vendor extra field size",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := testutil.BuildArchive(t, tt.members)
			if tt.corrupt != nil {
				tt.corrupt(t, data)
			}
			entries, err := readAll(t, data)
			require.Nil(t, entries)
			require.ErrorIs(t, err, p4ktype.ErrFormat)

			var fe *p4ktype.FormatError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tt.field, fe.Field)
			assert.Contains(t, fe.Record, "central directory entry 0")
			assert.Positive(t, fe.Offset)
		})
	}
}

func TestReadDirectoryTruncatedName(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArchive(t, []testutil.Member{{Name: "abc", Data: []byte("x")}})
	off := centralOffset(t, data)
	// Claim a name far longer than the directory.
	binary.LittleEndian.PutUint16(data[off+28:], 0x7FFF)

	_, err := readAll(t, data)
	require.ErrorIs(t, err, p4ktype.ErrFormat)
	var fe *p4ktype.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "file name", fe.Field)
}

func TestReadDirectoryOutOfBounds(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("x")}})
	// central directory offset field of the end record
	binary.LittleEndian.PutUint32(data[len(data)-6:], uint32(len(data)))

	_, err := readAll(t, data)
	require.ErrorIs(t, err, p4ktype.ErrFormat)
	assert.Contains(t, err.Error(), "extent")
}

func TestReadLocalHeader(t *testing.T) {
	t.Parallel()

	for _, sig := range []uint32{testutil.SigLocal, testutil.SigLocalP4K} {
		data, built := testutil.BuildArchiveLayout(t, []testutil.Member{{
			Name:           `x\y.txt`,
			Data:           []byte("hello"),
			LocalExtra:     []byte{1, 2, 3, 4, 5},
			LocalSignature: sig,
		}})
		h, err := ReadLocalHeader(bytes.NewReader(data), int64(built[0].Offset))
		require.NoError(t, err)
		assert.Equal(t, uint64(LocalHeaderLen+7+5), h.DataOffset(0))
		assert.Equal(t, "hello", string(data[h.DataOffset(built[0].Offset):][:5]))
	}

	bad := make([]byte, LocalHeaderLen)
	_, err := ReadLocalHeader(bytes.NewReader(bad), 0)
	var fe *p4ktype.FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "signature", fe.Field)

	_, err = ReadLocalHeader(bytes.NewReader(bad[:10]), 0)
	require.ErrorIs(t, err, p4ktype.ErrFormat)
}

func TestReadDirectoryCanceled(t *testing.T) {
	t.Parallel()

	data := testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("x")}})
	src := bytes.NewReader(data)
	loc, err := Locate(context.Background(), src, int64(len(data)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ReadDirectory(ctx, src, int64(len(data)), loc)
	require.ErrorIs(t, err, context.Canceled)
}
