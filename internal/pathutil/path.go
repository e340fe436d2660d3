// Package pathutil provides path manipulation for backslash-separated
// archive paths.
package pathutil

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// Separator is the archive path separator.
const Separator = '\\'

// Split breaks an archive path into its segments. Forward slashes are
// accepted as separators and empty segments are dropped, so the root ("",
// ".", "\" or "/") yields no segments.
func Split(p string) []string {
	if p == "." {
		return nil
	}
	segs := strings.FieldsFunc(p, isSeparator)
	if len(segs) == 0 {
		return nil
	}
	return segs
}

// Normalize returns p with backslash separators and no empty segments.
func Normalize(p string) string {
	return strings.Join(Split(p), string(Separator))
}

// Join joins segments with the archive separator.
func Join(segments ...string) string {
	return strings.Join(segments, string(Separator))
}

// Base returns the last segment of p, or "" for the root.
func Base(p string) string {
	segs := Split(p)
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

// IsRoot reports whether p names the root.
func IsRoot(p string) bool {
	return len(Split(p)) == 0
}

// HasTrailingSeparator reports whether p ends in a separator, which marks a
// directory-only entry.
func HasTrailingSeparator(p string) bool {
	return p != "" && isSeparator(rune(p[len(p)-1]))
}

// Fold returns the case-insensitive key for a path or segment.
func Fold(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return cases.Fold().String(s)
		}
	}
	return asciiLower(s)
}

func asciiLower(s string) string {
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			b := []byte(s)
			for j := i; j < len(b); j++ {
				if 'A' <= b[j] && b[j] <= 'Z' {
					b[j] += 'a' - 'A'
				}
			}
			return string(b)
		}
	}
	return s
}

func isSeparator(r rune) bool {
	return r == '\\' || r == '/'
}
