// Package http provides a p4k.ByteSource backed by HTTP range requests, so
// entries of a remote archive can be decoded without downloading it.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ErrRangeUnsupported is returned when the server ignores range requests.
var ErrRangeUnsupported = errors.New("http: range requests not supported")

// Source implements random access reads via HTTP range requests.
//
// Requests after the initial probe are conditional on the probed ETag and
// Last-Modified values, so a remote file replaced mid-read fails instead of
// returning mixed content. Source is safe for concurrent use.
type Source struct {
	url          string
	client       *nethttp.Client
	headers      nethttp.Header
	logger       *slog.Logger
	size         int64
	etag         string
	lastModified string
	id           string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a header on each request, such as Authorization.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithLogger sets the logger for request tracing.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource probes url for its size and validators and returns a Source.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{url: url}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}

	if err := s.probe(ctx); err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	s.id = digest.FromString(url + "\x00" + strconv.FormatInt(s.size, 10) + "\x00" +
		s.etag + "\x00" + s.lastModified).String()
	s.logger.Debug("remote archive", "url", url, "size", s.size, "etag", s.etag)
	return s, nil
}

// Size returns the size of the remote file.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID identifies the remote content by URL, size and validators.
func (s *Source) SourceID() string {
	return s.id
}

// ReadAt reads len(p) bytes at off with one range request.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), s.size-off)

	body, err := s.get(context.Background(), off, want)
	if err != nil {
		return 0, err
	}
	defer drain(body)

	n, err := io.ReadFull(body, p[:want])
	if err != nil {
		return n, err
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// ReadRange returns a stream of length bytes starting at off. The range is
// clipped to the end of the file.
func (s *Source) ReadRange(off, length int64) (io.ReadCloser, error) {
	switch {
	case length < 0:
		return nil, fmt.Errorf("read range length %d: negative length", length)
	case off < 0:
		return nil, fmt.Errorf("read range %d: negative offset", off)
	case length == 0:
		return io.NopCloser(bytes.NewReader(nil)), nil
	case off >= s.size:
		return nil, io.EOF
	}
	length = min(length, s.size-off)

	body, err := s.get(context.Background(), off, length)
	if err != nil {
		return nil, err
	}
	return &rangeBody{Reader: io.LimitReader(body, length), body: body}, nil
}

// get issues a range request and returns the body of a 206 response.
func (s *Source) get(ctx context.Context, off, length int64) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, nethttp.MethodGet)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+length-1))
	if s.etag != "" && req.Header.Get("If-Match") == "" {
		req.Header.Set("If-Match", s.etag)
	}
	if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
		req.Header.Set("If-Unmodified-Since", s.lastModified)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("range request", "off", off, "length", length, "status", resp.StatusCode)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		return resp.Body, nil
	case nethttp.StatusRequestedRangeNotSatisfiable:
		drain(resp.Body)
		return nil, io.EOF
	case nethttp.StatusOK:
		drain(resp.Body)
		return nil, ErrRangeUnsupported
	default:
		drain(resp.Body)
		return nil, fmt.Errorf("range request: %s", resp.Status)
	}
}

// probe learns the size from a one-byte range request, cross-checked with
// HEAD when the server answers it.
func (s *Source) probe(ctx context.Context) error {
	var headSize int64 = -1
	if req, err := s.newRequest(ctx, nethttp.MethodHead); err == nil {
		if resp, err := s.client.Do(req); err == nil {
			if resp.StatusCode == nethttp.StatusOK {
				headSize = resp.ContentLength
				s.etag = resp.Header.Get("ETag")
				s.lastModified = resp.Header.Get("Last-Modified")
			}
			drain(resp.Body)
		}
	}

	req, err := s.newRequest(ctx, nethttp.MethodGet)
	if err != nil {
		return err
	}
	req.Header.Set("Range", "bytes=0-0")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("range probe: %s", resp.Status)
	}
	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	if headSize > 0 && headSize != size {
		return fmt.Errorf("content size mismatch: head=%d range=%d", headSize, size)
	}
	s.size = size
	if s.etag == "" {
		s.etag = resp.Header.Get("ETag")
	}
	if s.lastModified == "" {
		s.lastModified = resp.Header.Get("Last-Modified")
	}
	return nil
}

func (s *Source) newRequest(ctx context.Context, method string) (*nethttp.Request, error) {
	req, err := nethttp.NewRequestWithContext(ctx, method, s.url, nil)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	return req, nil
}

type rangeBody struct {
	io.Reader
	body io.ReadCloser
}

func (r *rangeBody) Close() error {
	_, _ = io.Copy(io.Discard, r.body)
	return r.body.Close()
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// parseContentRange returns the complete length from "bytes a-b/size".
func parseContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return size, nil
}
