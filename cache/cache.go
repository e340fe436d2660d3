// Package cache provides optional caching of decoded archive entries.
//
// Keys are digests of the archive source identity and the entry's central
// directory identity (name, local header offset, CRC-32 and size), so the
// same entry in the same archive always maps to the same key while edited
// archives never hit stale content.
package cache

import (
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/p4k/internal/p4ktype"
)

// Cache stores decoded entry content.
//
// Implementations handle their own size limits and eviction policies and
// must be safe for concurrent use.
type Cache interface {
	// Get retrieves content by key.
	// Returns nil, false if the content is not cached.
	Get(key digest.Digest) ([]byte, bool)

	// Put stores content by key. Callers must not modify content afterwards.
	Put(key digest.Digest, content []byte) error
}

// Key derives the cache key of an entry read from the source identified
// by sourceID.
func Key(sourceID string, e *p4ktype.Entry) digest.Digest {
	var b strings.Builder
	b.WriteString(sourceID)
	b.WriteByte(0)
	b.WriteString(e.Name)
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(e.Offset, 10))
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(uint64(e.CRC32), 16))
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(e.UncompressedSize, 10))
	return digest.FromString(b.String())
}
