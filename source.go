package p4k

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/opencontainers/go-digest"
	"golang.org/x/exp/mmap"
)

// FileSource is a memory-mapped archive file. Reads at different offsets
// are independent and safe for concurrent use.
type FileSource struct {
	r  *mmap.ReaderAt
	id string
}

// OpenFile memory-maps the file at path.
func OpenFile(path string) (*FileSource, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	r, err := mmap.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", abs, err)
	}
	id := digest.FromString(abs + "\x00" +
		strconv.FormatInt(info.Size(), 10) + "\x00" +
		strconv.FormatInt(info.ModTime().UnixNano(), 10))
	return &FileSource{r: r, id: id.String()}, nil
}

// ReadAt implements io.ReaderAt.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.r.ReadAt(p, off)
}

// Size returns the file size.
func (s *FileSource) Size() int64 {
	return int64(s.r.Len())
}

// SourceID identifies the file by path, size and modification time.
func (s *FileSource) SourceID() string {
	return s.id
}

// Close unmaps the file.
func (s *FileSource) Close() error {
	return s.r.Close()
}

// BytesSource serves an archive held in memory, such as a nested archive
// decoded from its parent.
type BytesSource struct {
	*bytes.Reader
	id string
}

// NewBytesSource returns a source over data. If id is empty, the digest of
// data is used.
func NewBytesSource(data []byte, id string) *BytesSource {
	if id == "" {
		id = digest.FromBytes(data).String()
	}
	return &BytesSource{Reader: bytes.NewReader(data), id: id}
}

// SourceID returns the identifier given at construction.
func (s *BytesSource) SourceID() string {
	return s.id
}
