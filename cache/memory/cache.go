// Package memory provides an in-memory cache of decoded entries backed by
// an adaptive replacement cache.
package memory

import (
	"errors"
	"sync"

	arc "github.com/hashicorp/golang-lru/arc/v2"
	"github.com/opencontainers/go-digest"
)

// DefaultMaxEntries is the default number of cached entries.
const DefaultMaxEntries = 1024

// Cache implements cache.Cache in memory.
//
// The ARC policy bounds the entry count; WithMaxBytes additionally bounds
// the total content size by evicting entries as they are added.
type Cache struct {
	arc        *arc.ARCCache[digest.Digest, []byte]
	maxEntries int
	maxBytes   int64

	mu    sync.Mutex
	bytes int64
}

// Option configures a memory cache.
type Option func(*Cache)

// WithMaxEntries sets the maximum number of cached entries.
func WithMaxEntries(n int) Option {
	return func(c *Cache) {
		c.maxEntries = n
	}
}

// WithMaxBytes bounds the total size of cached content. Content larger than
// the limit is not cached. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates an in-memory cache.
func New(opts ...Option) (*Cache, error) {
	c := &Cache{maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxEntries <= 0 {
		return nil, errors.New("max entries must be > 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	a, err := arc.NewARC[digest.Digest, []byte](c.maxEntries)
	if err != nil {
		return nil, err
	}
	c.arc = a
	return c, nil
}

// Get retrieves content by key.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	return c.arc.Get(key)
}

// Put stores content by key.
func (c *Cache) Put(key digest.Digest, content []byte) error {
	size := int64(len(content))
	if c.maxBytes > 0 && size > c.maxBytes {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.arc.Add(key, content)
	c.recount()
	for c.maxBytes > 0 && c.bytes > c.maxBytes && c.arc.Len() > 1 {
		c.evictOne(key)
	}
	return nil
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	return c.arc.Len()
}

// SizeBytes returns the total size of cached content.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recount()
	return c.bytes
}

// evictOne removes the first key other than keep. ARC evicts by count on
// its own, so byte accounting is recomputed from the live keys.
func (c *Cache) evictOne(keep digest.Digest) {
	for _, k := range c.arc.Keys() {
		if k == keep {
			continue
		}
		c.arc.Remove(k)
		break
	}
	c.recount()
}

func (c *Cache) recount() {
	var total int64
	for _, k := range c.arc.Keys() {
		if v, ok := c.arc.Peek(k); ok {
			total += int64(len(v))
		}
	}
	c.bytes = total
}
