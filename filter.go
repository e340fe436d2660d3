package p4k

import "github.com/meigma/p4k/internal/pathutil"

// Filter selects archive paths.
type Filter = pathutil.Matcher

// Glob returns a case-insensitive filter matching whole paths against a
// shell-style pattern. "*" matches any run of characters including
// separators, "?" matches one character and "/" matches "\".
func Glob(pattern string) (Filter, error) {
	return pathutil.CompileGlob(pattern)
}

// Regexp returns a filter selecting paths that contain a match of expr.
func Regexp(expr string) (Filter, error) {
	return pathutil.CompileRegexp(expr)
}
