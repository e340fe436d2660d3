package decode_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/p4k/internal/decode"
	"github.com/meigma/p4k/internal/format"
	"github.com/meigma/p4k/internal/p4ktype"
	"github.com/meigma/p4k/internal/testutil"
)

func load(t *testing.T, data []byte, opts ...decode.Option) (*decode.Decoder, []*p4ktype.Entry) {
	t.Helper()
	src := testutil.NewMockByteSource(data)
	loc, err := format.Locate(context.Background(), src, src.Size())
	require.NoError(t, err)
	entries, err := format.ReadDirectory(context.Background(), src, src.Size(), loc)
	require.NoError(t, err)
	return decode.NewDecoder(src, src.Size(), opts...), entries
}

func TestKeyMatchesPublishedKey(t *testing.T) {
	t.Parallel()
	assert.Equal(t, testutil.ArchiveKey, decode.Key[:])
}

func TestDecodeMethods(t *testing.T) {
	t.Parallel()

	text := []byte(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 200))
	trailingZeros := append([]byte("payload"), make([]byte, 21)...)

	tests := []struct {
		name   string
		member testutil.Member
	}{
		{"stored", testutil.Member{Name: "a.txt", Data: text}},
		{"deflate", testutil.Member{Name: "b.txt", Data: text, Method: p4ktype.CompressionDeflate}},
		{"zstd", testutil.Member{Name: "c.txt", Data: text, Method: p4ktype.CompressionZstd}},
		{"stored zip64", testutil.Member{Name: "d.txt", Data: text, Zip64: true}},
		{"encrypted stored", testutil.Member{Name: "e.txt", Data: text, Encrypted: true}},
		{"encrypted deflate", testutil.Member{Name: "f.txt", Data: text, Method: p4ktype.CompressionDeflate, Encrypted: true}},
		{"encrypted zstd", testutil.Member{Name: "g.txt", Data: text, Method: p4ktype.CompressionZstd, Encrypted: true}},
		{"encrypted stored trailing zeros", testutil.Member{Name: "h.bin", Data: trailingZeros, Encrypted: true}},
		{"encrypted zstd trailing zeros", testutil.Member{Name: "i.bin", Data: trailingZeros, Method: p4ktype.CompressionZstd, Encrypted: true}},
		{"local extra", testutil.Member{Name: "j.txt", Data: text, LocalExtra: make([]byte, 33)}},
		{"p4k local signature", testutil.Member{Name: "k.txt", Data: text, LocalSignature: testutil.SigLocalP4K}},
		{"empty", testutil.Member{Name: "l.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dec, entries := load(t, testutil.BuildArchive(t, []testutil.Member{tt.member}))
			require.Len(t, entries, 1)

			got, err := dec.ReadAll(entries[0])
			require.NoError(t, err)
			assert.Equal(t, len(tt.member.Data), len(got))
			assert.True(t, bytes.Equal(tt.member.Data, got))

			rc, err := dec.Open(entries[0])
			require.NoError(t, err)
			streamed, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.True(t, bytes.Equal(tt.member.Data, streamed))
		})
	}
}

func TestStoredRoundTripMatchesRawRange(t *testing.T) {
	t.Parallel()

	payload := []byte("raw bytes on disk")
	data, built := testutil.BuildArchiveLayout(t, []testutil.Member{{Name: "raw", Data: payload}})
	dec, entries := load(t, data)
	e := entries[0]
	require.Equal(t, e.CompressedSize, e.UncompressedSize)

	got, err := dec.ReadAll(e)
	require.NoError(t, err)

	start := built[0].Offset + format.LocalHeaderLen + uint64(len("raw"))
	assert.Equal(t, data[start:start+e.CompressedSize], got)
}

// rangeSource serves data ranges as streams and counts requests.
type rangeSource struct {
	*testutil.MockByteSource
	mu     sync.Mutex
	ranges int
}

func (r *rangeSource) ReadRange(off, length int64) (io.ReadCloser, error) {
	r.mu.Lock()
	r.ranges++
	r.mu.Unlock()
	return io.NopCloser(bytes.NewReader(r.Bytes()[off : off+length])), nil
}

func TestStreamsThroughRangeReader(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("stored payload "), 10_000)
	tests := []struct {
		name   string
		method p4ktype.Compression
	}{
		{"stored", p4ktype.CompressionStored},
		{"deflate", p4ktype.CompressionDeflate},
		{"zstd", p4ktype.CompressionZstd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := testutil.BuildArchive(t, []testutil.Member{{Name: "f", Data: payload, Method: tt.method}})
			_, entries := load(t, data)
			src := &rangeSource{MockByteSource: testutil.NewMockByteSource(data)}
			dec := decode.NewDecoder(src, src.Size())
			readsBefore := src.Reads()

			rc, err := dec.Open(entries[0])
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())

			assert.Equal(t, payload, got)
			assert.Equal(t, 1, src.ranges)
			// Only the local header is read with ReadAt.
			assert.LessOrEqual(t, src.Reads()-readsBefore, 2)
		})
	}
}

func TestDecodeIsIdempotentAndConcurrent(t *testing.T) {
	t.Parallel()

	members := []testutil.Member{
		{Name: "a", Data: bytes.Repeat([]byte("a"), 5000), Method: p4ktype.CompressionZstd},
		{Name: "b", Data: bytes.Repeat([]byte("b"), 5000), Method: p4ktype.CompressionDeflate, Encrypted: true},
	}
	dec, entries := load(t, testutil.BuildArchive(t, members))

	first, err := dec.ReadAll(entries[0])
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := entries[i%2]
			got, err := dec.ReadAll(e)
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(got, members[i%2].Data) {
				errs <- errors.New("content mismatch for " + e.Name)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	second, err := dec.ReadAll(entries[0])
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	t.Run("checksum mismatch", func(t *testing.T) {
		t.Parallel()
		dec, entries := load(t, testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("abc"), CRC32: 1}}))
		_, err := dec.ReadAll(entries[0])
		require.ErrorIs(t, err, p4ktype.ErrChecksum)

		rc, err := dec.Open(entries[0])
		require.NoError(t, err)
		_, err = io.ReadAll(rc)
		require.ErrorIs(t, err, p4ktype.ErrChecksum)
	})

	t.Run("checksum disabled", func(t *testing.T) {
		t.Parallel()
		dec, entries := load(t, testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("abc"), CRC32: 1}}),
			decode.WithVerifyChecksum(false))
		got, err := dec.ReadAll(entries[0])
		require.NoError(t, err)
		assert.Equal(t, []byte("abc"), got)
	})

	t.Run("unsupported method", func(t *testing.T) {
		t.Parallel()
		dec, entries := load(t, testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("abc"), Method: 14}}))
		_, err := dec.ReadAll(entries[0])
		require.ErrorIs(t, err, p4ktype.ErrUnsupportedCompression)
	})

	t.Run("stored size mismatch", func(t *testing.T) {
		t.Parallel()
		dec, entries := load(t, testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("abc"), Size: 4}}))
		_, err := dec.Open(entries[0])
		require.ErrorIs(t, err, p4ktype.ErrDecompression)
	})

	t.Run("compressed stream ends early", func(t *testing.T) {
		t.Parallel()
		dec, entries := load(t, testutil.BuildArchive(t, []testutil.Member{
			{Name: "a", Data: []byte("hello"), Method: p4ktype.CompressionZstd, Size: 50},
		}))
		_, err := dec.ReadAll(entries[0])
		require.ErrorIs(t, err, p4ktype.ErrDecompression)
	})

	t.Run("bad local header", func(t *testing.T) {
		t.Parallel()
		data := testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("abc")}})
		data[0] = 0
		dec, entries := load(t, data)
		_, err := dec.ReadAll(entries[0])
		require.ErrorIs(t, err, p4ktype.ErrFormat)
	})

	t.Run("offset out of bounds", func(t *testing.T) {
		t.Parallel()
		dec, _ := load(t, testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: []byte("abc")}}))
		_, err := dec.Open(&p4ktype.Entry{Name: "x", Offset: 1 << 40})
		require.ErrorIs(t, err, p4ktype.ErrSizeOverflow)
	})

	t.Run("ciphertext not block aligned", func(t *testing.T) {
		t.Parallel()
		_, err := decode.Decrypt(make([]byte, 17))
		require.ErrorIs(t, err, p4ktype.ErrCrypto)
	})

	t.Run("exceeds max file size", func(t *testing.T) {
		t.Parallel()
		dec, entries := load(t, testutil.BuildArchive(t, []testutil.Member{{Name: "a", Data: make([]byte, 100)}}),
			decode.WithMaxFileSize(10))
		_, err := dec.ReadAll(entries[0])
		require.ErrorIs(t, err, p4ktype.ErrSizeOverflow)

		// Streaming unencrypted entries is not bounded by the limit.
		rc, err := dec.Open(entries[0])
		require.NoError(t, err)
		defer rc.Close()
		n, err := io.Copy(io.Discard, rc)
		require.NoError(t, err)
		assert.Equal(t, int64(100), n)
	})
}

func TestDecrypt(t *testing.T) {
	t.Parallel()

	plain := []byte("sixteen byte msg and more")
	cipherText := testutil.Encrypt(t, plain)
	require.Zero(t, len(cipherText)%16)

	got, err := decode.Decrypt(cipherText)
	require.NoError(t, err)
	assert.Equal(t, plain, got)
}
