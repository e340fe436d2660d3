package batch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/meigma/p4k/internal/pathutil"
)

// FileSink writes items below a destination directory.
//
// By default, files are written to a temporary file in the same directory
// and renamed to the final path on Commit, so partially written files are
// never visible at the final path. All paths are resolved through os.Root
// and cannot escape the destination.
type FileSink struct {
	destDir       string
	overwrite     bool
	preserveTimes bool
	directWrite   bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithPreserveTimes applies entry modification times to written files.
func WithPreserveTimes(preserve bool) FileSinkOption {
	return func(s *FileSink) {
		s.preserveTimes = preserve
	}
}

// WithDirectWrites disables temp files and writes directly to the final path.
func WithDirectWrites(enabled bool) FileSinkOption {
	return func(s *FileSink) {
		s.directWrite = enabled
	}
}

// NewFileSink creates a FileSink that writes to destDir, creating it if needed.
func NewFileSink(destDir string, opts ...FileSinkOption) (*FileSink, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination %s: %w", destDir, err)
	}
	s := &FileSink{destDir: destDir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(item *Item) bool {
	if s.overwrite {
		return true
	}
	rel, err := pathutil.ToHost(item.Path)
	if err != nil {
		// Let Writer report the invalid path as a failure.
		return true
	}
	_, err = os.Stat(filepath.Join(s.destDir, rel))
	return errors.Is(err, fs.ErrNotExist)
}

// Writer returns a Committer for the item's destination file.
func (s *FileSink) Writer(item *Item) (Committer, error) {
	destRel, err := pathutil.ToHost(item.Path)
	if err != nil {
		return nil, &fs.PathError{Op: "extract", Path: item.Path, Err: err}
	}
	destPath := filepath.Join(s.destDir, destRel)

	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", s.destDir, err)
	}
	// MkdirAll treats existing directories as success, so concurrent
	// workers can race on shared parents.
	if err := root.MkdirAll(filepath.Dir(destRel), 0o750); err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create directory %s: %w", filepath.Dir(destPath), err)
	}

	c := &fileCommitter{
		item:     item,
		destPath: destPath,
		destRel:  destRel,
		root:     root,
		sink:     s,
	}
	if s.directWrite {
		c.file, err = root.OpenFile(destRel, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
		if err != nil {
			_ = root.Close() //nolint:errcheck // best-effort cleanup
			return nil, fmt.Errorf("create file %s: %w", destPath, err)
		}
		c.fileRel = destRel
		return c, nil
	}

	c.file, c.fileRel, err = createTempFile(root, filepath.Dir(destRel), ".p4k-")
	if err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return c, nil
}

// fileCommitter writes to fileRel and, unless writing directly, renames it
// to destRel on Commit.
type fileCommitter struct {
	item     *Item
	destPath string
	destRel  string
	file     *os.File
	fileRel  string
	root     *os.Root
	sink     *FileSink
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.file.Write(p)
}

// Commit closes the file, applies metadata, and moves it into place.
func (c *fileCommitter) Commit() error {
	if err := c.file.Close(); err != nil {
		return c.fail(fmt.Errorf("close file: %w", err))
	}

	if c.sink.preserveTimes && !c.item.ModTime.IsZero() {
		if err := c.root.Chtimes(c.fileRel, c.item.ModTime, c.item.ModTime); err != nil {
			return c.fail(fmt.Errorf("chtimes: %w", err))
		}
	}

	if c.fileRel != c.destRel {
		if err := c.root.Rename(c.fileRel, c.destRel); err != nil {
			return c.fail(fmt.Errorf("rename to %s: %w", c.destPath, err))
		}
	}

	_ = c.root.Close() //nolint:errcheck // best-effort cleanup
	return nil
}

// Discard closes and removes the file.
func (c *fileCommitter) Discard() error {
	_ = c.file.Close() //nolint:errcheck // we're cleaning up
	if err := c.root.Remove(c.fileRel); err != nil {
		_ = c.root.Close() //nolint:errcheck // best-effort cleanup
		return err
	}
	return c.root.Close()
}

func (c *fileCommitter) fail(err error) error {
	_ = c.root.Remove(c.fileRel) //nolint:errcheck // best-effort cleanup
	_ = c.root.Close()           //nolint:errcheck // best-effort cleanup
	return err
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
