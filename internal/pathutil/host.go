package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
)

// ErrUnsafePath is returned when an archive path cannot be mapped to a
// relative host path.
var ErrUnsafePath = errors.New("pathutil: unsafe path")

// ToHost converts an archive path to a relative host path. Segments "." and
// ".." and drive or volume names are rejected.
func ToHost(p string) (string, error) {
	segs := Split(p)
	if len(segs) == 0 {
		return "", fmt.Errorf("%w: %q names the root", ErrUnsafePath, p)
	}
	for _, s := range segs {
		if s == "." || s == ".." || filepath.VolumeName(s) != "" {
			return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
		}
	}
	rel := filepath.Join(segs...)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	return rel, nil
}
