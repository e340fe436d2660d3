package batch

import (
	"io"
	"time"
)

// Item is one unit of extraction work.
type Item struct {
	// Path is the archive path, backslash separated.
	Path string

	// Size is the decoded size. Items of size zero produce no output.
	Size uint64

	// ModTime is applied to the written file when times are preserved.
	ModTime time.Time

	// Open returns the decoded content.
	Open func() (io.ReadCloser, error)
}

// Sink receives decoded content during batch processing.
type Sink interface {
	// ShouldProcess returns false if this item should be skipped, for
	// example because the output already exists.
	ShouldProcess(item *Item) bool

	// Writer returns a writer for the item's content. The returned
	// Committer must have Commit called after a successful copy, or
	// Discard called on any error.
	Writer(item *Item) (Committer, error)
}

// Committer is a writer that can be committed or discarded.
//
// Implementations should stage writes until Commit is called. A file-based
// implementation writes to a temp file and renames it on Commit, or deletes
// it on Discard.
type Committer interface {
	io.Writer

	// Commit finalizes the write, making content available.
	Commit() error

	// Discard aborts the write and cleans up any temporary resources.
	Discard() error
}
