package p4k

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/p4k/internal/testutil"
)

func newTestArchive(t *testing.T, members []testutil.Member, opts ...Option) *Archive {
	t.Helper()
	data := testutil.BuildArchive(t, members)
	a, err := NewFromBytes(context.Background(), data, "", opts...)
	require.NoError(t, err)
	return a
}

func sampleMembers() []testutil.Member {
	return []testutil.Member{
		{Name: `a.txt`, Data: []byte("stored content"), Method: CompressionStored},
		{Name: `Dir\b.xml`, Data: bytes.Repeat([]byte("<xml/>"), 100), Method: CompressionDeflate},
		{Name: `Dir\Sub\c.bin`, Data: bytes.Repeat([]byte{1, 2, 3, 4}, 500), Method: CompressionZstd, Encrypted: true},
	}
}

func TestArchiveEndToEnd(t *testing.T) {
	t.Parallel()

	members := sampleMembers()
	a := newTestArchive(t, members)
	require.Equal(t, 3, a.Len())
	require.Len(t, a.Entries(), 3)

	for _, m := range members {
		t.Run(m.Name, func(t *testing.T) {
			t.Parallel()

			e, ok := a.Entry(m.Name)
			require.True(t, ok)
			assert.Equal(t, m.Method, e.Compression)
			assert.Equal(t, m.Encrypted, e.Encrypted)

			got, err := a.ReadEntry(e)
			require.NoError(t, err)
			assert.Equal(t, m.Data, got)

			rc, err := a.OpenEntry(e)
			require.NoError(t, err)
			streamed, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, m.Data, streamed)
		})
	}
}

func TestArchiveEntryLookup(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, sampleMembers())

	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{`Dir\b.xml`, `Dir\b.xml`, true},
		{`dir/B.XML`, `Dir\b.xml`, true},
		{`\DIR\sub\c.bin`, `Dir\Sub\c.bin`, true},
		{`missing`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, ok := a.Entry(tt.name)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, e.Name)
			}
		})
	}
}

func TestArchiveDuplicateNamesLastWins(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, []testutil.Member{
		{Name: `dup.txt`, Data: []byte("first")},
		{Name: `DUP.txt`, Data: []byte("second")},
	})
	assert.Equal(t, 2, a.Len())
	e, ok := a.Entry("dup.txt")
	require.True(t, ok)
	got, err := a.ReadEntry(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestOpen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "Data.p4k")
	require.NoError(t, os.WriteFile(path, testutil.BuildArchive(t, sampleMembers()), 0o600))

	a, err := Open(context.Background(), path)
	require.NoError(t, err)
	defer a.Close()

	assert.NotEmpty(t, a.Source().SourceID())
	data, err := a.Tree().ReadAll(`dir\sub\C.BIN`)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{1, 2, 3, 4}, 500), data)
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "missing.p4k"))
	require.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.p4k")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x42}, 4096), 0o600))
	_, err = Open(context.Background(), path)
	require.ErrorIs(t, err, ErrFormat)
}

func TestNewFromBytesNotAnArchive(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{nil, []byte("short"), bytes.Repeat([]byte{0}, 100)} {
		_, err := NewFromBytes(context.Background(), data, "x")
		require.ErrorIs(t, err, ErrFormat)
		var fe *FormatError
		assert.ErrorAs(t, err, &fe)
	}
}

func TestArchiveChecksum(t *testing.T) {
	t.Parallel()

	members := []testutil.Member{{Name: "bad", Data: []byte("payload"), CRC32: 0x12345678}}

	a := newTestArchive(t, members)
	e, _ := a.Entry("bad")
	_, err := a.ReadEntry(e)
	require.ErrorIs(t, err, ErrChecksum)

	unchecked := newTestArchive(t, members, WithVerifyChecksum(false))
	e, _ = unchecked.Entry("bad")
	got, err := unchecked.ReadEntry(e)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestArchiveMaxFileSize(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, sampleMembers(), WithMaxFileSize(16))
	e, _ := a.Entry(`Dir\b.xml`)
	_, err := a.ReadEntry(e)
	require.ErrorIs(t, err, ErrSizeOverflow)
}

func TestArchiveCache(t *testing.T) {
	t.Parallel()

	c := testutil.NewMockCache()
	a := newTestArchive(t, sampleMembers(), WithCache(c))
	e, _ := a.Entry(`Dir\b.xml`)

	var wg sync.WaitGroup
	for range 16 {
		wg.Go(func() {
			got, err := a.ReadEntry(e)
			assert.NoError(t, err)
			assert.Len(t, got, 600)
		})
	}
	wg.Wait()
	assert.Equal(t, 1, c.Puts())
	assert.Equal(t, 1, c.Len())

	rc, err := a.OpenEntry(e)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("<xml/>"), 100), got)
}

func TestArchiveCacheSharedAcrossSources(t *testing.T) {
	t.Parallel()

	c := testutil.NewMockCache()
	data := testutil.BuildArchive(t, sampleMembers())

	first, err := NewFromBytes(context.Background(), data, "build-1", WithCache(c))
	require.NoError(t, err)
	second, err := NewFromBytes(context.Background(), data, "build-2", WithCache(c))
	require.NoError(t, err)

	for _, a := range []*Archive{first, second} {
		e, _ := a.Entry("a.txt")
		_, err := a.ReadEntry(e)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, c.Len())
}
