package p4k

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/p4k/cache"
	"github.com/meigma/p4k/internal/decode"
	"github.com/meigma/p4k/internal/format"
	"github.com/meigma/p4k/internal/pathutil"
)

// Archive provides access to the entries of a P4K archive.
//
// The central directory is decoded once when the archive is created. Entry
// content is decoded on demand; all methods are safe for concurrent use.
type Archive struct {
	source  ByteSource
	closer  io.Closer
	entries []*Entry
	index   map[string]*Entry // folded, normalized name -> last entry
	decoder *decode.Decoder

	maxFileSize           uint64
	maxDecoderMemory      uint64
	decoderConcurrencySet bool
	decoderConcurrency    int
	decoderLowmemSet      bool
	decoderLowmem         bool
	verifyChecksum        bool
	maxMountDepth         int
	depth                 int

	cache     cache.Cache        // nil = no caching
	readGroup singleflight.Group // zero value is valid
	logger    *slog.Logger
	opts      []Option // propagated to mounted archives

	treeOnce sync.Once
	tree     *Tree
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open memory-maps the archive at path and decodes its central directory.
// Close releases the mapping.
func Open(ctx context.Context, path string, opts ...Option) (*Archive, error) {
	src, err := OpenFile(path)
	if err != nil {
		return nil, err
	}
	a, err := New(ctx, src, opts...)
	if err != nil {
		_ = src.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	a.closer = src
	return a, nil
}

// NewFromBytes decodes an archive held in memory. id identifies the content
// for caching; if empty, the digest of data is used.
func NewFromBytes(ctx context.Context, data []byte, id string, opts ...Option) (*Archive, error) {
	return New(ctx, NewBytesSource(data, id), opts...)
}

// New decodes the central directory of the archive in src.
//
// The caller keeps ownership of src; Close does not close it.
func New(ctx context.Context, src ByteSource, opts ...Option) (*Archive, error) {
	a := &Archive{
		source:           src,
		maxFileSize:      decode.DefaultMaxFileSize,
		maxDecoderMemory: decode.DefaultMaxDecoderMemory,
		verifyChecksum:   true,
		maxMountDepth:    DefaultMaxMountDepth,
		opts:             opts,
	}
	for _, opt := range opts {
		opt(a)
	}

	size := src.Size()
	loc, err := format.Locate(ctx, src, size)
	if err != nil {
		return nil, err
	}
	a.log().Debug("located central directory",
		"source", src.SourceID(),
		"eocd", loc.EndOfCentralDir,
		"zip64", loc.Zip64(),
	)

	entries, err := format.ReadDirectory(ctx, src, size, loc)
	if err != nil {
		return nil, err
	}
	a.entries = entries
	a.index = make(map[string]*Entry, len(entries))
	for _, e := range entries {
		a.index[entryKey(e.Name)] = e
	}
	a.log().Debug("decoded central directory",
		"source", src.SourceID(),
		"entries", len(entries),
		"depth", a.depth,
	)

	decoderOpts := []decode.Option{
		decode.WithMaxFileSize(a.maxFileSize),
		decode.WithMaxDecoderMemory(a.maxDecoderMemory),
		decode.WithVerifyChecksum(a.verifyChecksum),
	}
	if a.decoderConcurrencySet {
		decoderOpts = append(decoderOpts, decode.WithDecoderConcurrency(a.decoderConcurrency))
	}
	if a.decoderLowmemSet {
		decoderOpts = append(decoderOpts, decode.WithDecoderLowmem(a.decoderLowmem))
	}
	a.decoder = decode.NewDecoder(src, size, decoderOpts...)
	return a, nil
}

// Entries returns the entries in central directory order.
// The slice must not be modified.
func (a *Archive) Entries() []*Entry {
	return a.entries
}

// Len returns the number of entries.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Entry looks up an entry by name, ignoring case. Either separator may be
// used. When names repeat, the last entry wins.
func (a *Archive) Entry(name string) (*Entry, bool) {
	e, ok := a.index[entryKey(name)]
	return e, ok
}

// Source returns the byte source the archive reads from.
func (a *Archive) Source() ByteSource {
	return a.source
}

// OpenEntry returns a reader for the decoded content of e. Reading to EOF
// verifies the checksum unless disabled.
func (a *Archive) OpenEntry(e *Entry) (io.ReadCloser, error) {
	if a.cache != nil {
		if data, ok := a.cache.Get(cache.Key(a.source.SourceID(), e)); ok {
			a.log().Debug("entry cache hit", "entry", e.Name)
			return io.NopCloser(bytes.NewReader(data)), nil
		}
	}
	return a.decoder.Open(e)
}

// ReadEntry decodes the whole content of e.
//
// With a cache configured, content is served from and stored into the
// cache, and concurrent reads of the same entry share one decode.
func (a *Archive) ReadEntry(e *Entry) ([]byte, error) {
	if a.cache == nil {
		return a.decoder.ReadAll(e)
	}

	key := cache.Key(a.source.SourceID(), e)
	if data, ok := a.cache.Get(key); ok {
		a.log().Debug("entry cache hit", "entry", e.Name)
		return data, nil
	}
	a.log().Debug("entry cache miss", "entry", e.Name)

	v, err, _ := a.readGroup.Do(key.String(), func() (any, error) {
		if data, ok := a.cache.Get(key); ok {
			return data, nil
		}
		data, err := a.decoder.ReadAll(e)
		if err != nil {
			return nil, err
		}
		if putErr := a.cache.Put(key, data); putErr != nil {
			a.log().Debug("entry cache put failed", "entry", e.Name, "error", putErr)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, errors.New("unexpected singleflight result")
	}
	return data, nil
}

// Tree returns the virtual directory tree, building it on first use.
func (a *Archive) Tree() *Tree {
	a.treeOnce.Do(func() {
		a.tree = buildTree(a, "")
	})
	return a.tree
}

// Close releases resources owned by the archive. Sources passed to New are
// not closed.
func (a *Archive) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

// entryKey returns the lookup key of an archive path.
func entryKey(name string) string {
	return pathutil.Fold(pathutil.Normalize(name))
}
