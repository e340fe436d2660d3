package http_test

import (
	"bytes"
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/p4k"
	p4khttp "github.com/meigma/p4k/http"
	"github.com/meigma/p4k/internal/testutil"
)

func serve(t *testing.T, data []byte, etag string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := serve(t, data, "")

	src, err := p4khttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())
	assert.NotEmpty(t, src.SourceID())

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	edge := make([]byte, 10)
	n, err = src.ReadAt(edge, int64(len(data)-3))
	assert.Equal(t, io.EOF, err)
	assert.Equal(t, "rld", string(edge[:n]))

	_, err = src.ReadAt(buf, int64(len(data)))
	assert.Equal(t, io.EOF, err)
	_, err = src.ReadAt(buf, -1)
	assert.Error(t, err)
}

func TestSourceReadRange(t *testing.T) {
	t.Parallel()

	data := []byte("0123456789")
	server := serve(t, data, `"v1"`)
	src, err := p4khttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)

	tests := []struct {
		name      string
		off, size int64
		want      string
	}{
		{"middle", 2, 3, "234"},
		{"clipped", 8, 10, "89"},
		{"empty", 4, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rc, err := src.ReadRange(tt.off, tt.size)
			require.NoError(t, err)
			got, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, tt.want, string(got))
		})
	}

	_, err = src.ReadRange(10, 1)
	assert.Equal(t, io.EOF, err)
	_, err = src.ReadRange(0, -1)
	assert.Error(t, err)
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := p4khttp.NewSource(context.Background(), server.URL)
	require.ErrorIs(t, err, p4khttp.ErrRangeUnsupported)
}

func TestSourceNotFound(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.NotFoundHandler())
	t.Cleanup(server.Close)

	_, err := p4khttp.NewSource(context.Background(), server.URL)
	require.Error(t, err)
}

func TestSourceChangedRemote(t *testing.T) {
	t.Parallel()

	var etag atomic.Value
	etag.Store(`"v1"`)
	data := []byte("versioned content")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("ETag", etag.Load().(string))
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	src, err := p4khttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)

	etag.Store(`"v2"`)
	_, err = src.ReadAt(make([]byte, 4), 0)
	require.Error(t, err)
}

func TestSourceHeaders(t *testing.T) {
	t.Parallel()

	data := []byte("secret")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" {
			w.WriteHeader(nethttp.StatusUnauthorized)
			return
		}
		nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)

	_, err := p4khttp.NewSource(context.Background(), server.URL)
	require.Error(t, err)

	src, err := p4khttp.NewSource(context.Background(), server.URL,
		p4khttp.WithHeader("Authorization", "Bearer token"),
		p4khttp.WithClient(server.Client()),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())
}

func TestSourceRemoteArchive(t *testing.T) {
	t.Parallel()

	payload := bytes.Repeat([]byte("remote entry "), 64)
	data := testutil.BuildArchive(t, []testutil.Member{
		{Name: `Data\remote.txt`, Data: payload, Method: p4k.CompressionZstd},
		{Name: `Data\secret.bin`, Data: []byte("encrypted"), Method: p4k.CompressionDeflate, Encrypted: true},
	})
	server := serve(t, data, `"build-1"`)

	src, err := p4khttp.NewSource(context.Background(), server.URL)
	require.NoError(t, err)
	a, err := p4k.New(context.Background(), src)
	require.NoError(t, err)

	got, err := a.Tree().ReadAll(`data\remote.txt`)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	got, err = a.Tree().ReadAll(`data\secret.bin`)
	require.NoError(t, err)
	assert.Equal(t, []byte("encrypted"), got)
}
