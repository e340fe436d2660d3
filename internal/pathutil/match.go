package pathutil

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher reports whether an archive path is selected.
type Matcher interface {
	Match(name string) bool
	String() string
}

// GlobMatcher matches names against a shell-style pattern. Matching is
// case-insensitive and anchored at both ends; "*" matches any run of
// characters including separators and "?" matches exactly one character.
type GlobMatcher struct {
	pattern string
	re      *regexp.Regexp
}

// CompileGlob compiles a glob pattern. Forward slashes in the pattern match
// backslash separators.
func CompileGlob(pattern string) (*GlobMatcher, error) {
	var b strings.Builder
	b.WriteString(`(?is)^`)
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '/', '\\':
			b.WriteString(`\\`)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", pattern, err)
	}
	return &GlobMatcher{pattern: pattern, re: re}, nil
}

// Match implements Matcher.
func (g *GlobMatcher) Match(name string) bool {
	return g.re.MatchString(name)
}

func (g *GlobMatcher) String() string {
	return "glob:" + g.pattern
}

// RegexpMatcher matches names containing a match of a regular expression.
type RegexpMatcher struct {
	re *regexp.Regexp
}

// CompileRegexp compiles an unanchored regular expression.
func CompileRegexp(expr string) (*RegexpMatcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile regexp %q: %w", expr, err)
	}
	return &RegexpMatcher{re: re}, nil
}

// Match implements Matcher.
func (m *RegexpMatcher) Match(name string) bool {
	return m.re.MatchString(name)
}

func (m *RegexpMatcher) String() string {
	return "regexp:" + m.re.String()
}
