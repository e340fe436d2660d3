package compare

import (
	"slices"
	"strings"

	"github.com/meigma/p4k/internal/p4ktype"
	"github.com/meigma/p4k/internal/pathutil"
)

// Status classifies a path in a comparison.
type Status uint8

// Comparison statuses.
const (
	Unchanged Status = iota
	Added
	Removed
	Modified
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Added:
		return "added"
	case Removed:
		return "removed"
	case Modified:
		return "modified"
	default:
		return "unknown"
	}
}

// Node is an element of a comparison tree.
type Node interface {
	Name() string
	Path() string
	Status() Status
	Directory() bool
}

var (
	_ Node = (*Directory)(nil)
	_ Node = (*File)(nil)
)

// File is a compared path. Left is nil for added files and Right is nil for
// removed files.
type File struct {
	name  string
	path  string
	Left  *p4ktype.Entry
	Right *p4ktype.Entry
}

// Name implements Node.
func (f *File) Name() string { return f.name }

// Path implements Node.
func (f *File) Path() string { return f.path }

// Directory implements Node.
func (f *File) Directory() bool { return false }

// Status derives the file status from its two sides.
func (f *File) Status() Status {
	switch {
	case f.Left == nil:
		return Added
	case f.Right == nil:
		return Removed
	case f.Left.CRC32 != f.Right.CRC32 || f.Left.UncompressedSize != f.Right.UncompressedSize:
		return Modified
	default:
		return Unchanged
	}
}

// Directory groups compared paths. Its status is Modified if any
// descendant file differs and Unchanged otherwise.
type Directory struct {
	name     string
	path     string
	children map[string]Node
	status   Status
}

func newDirectory(name, path string) *Directory {
	return &Directory{name: name, path: path, children: make(map[string]Node)}
}

// Name implements Node.
func (d *Directory) Name() string { return d.name }

// Path implements Node.
func (d *Directory) Path() string { return d.path }

// Directory implements Node.
func (d *Directory) Directory() bool { return true }

// Status implements Node.
func (d *Directory) Status() Status { return d.status }

// Child returns the direct child named name, ignoring case.
func (d *Directory) Child(name string) (Node, bool) {
	n, ok := d.children[pathutil.Fold(name)]
	return n, ok
}

// Children returns the direct children sorted by name, ignoring case.
func (d *Directory) Children() []Node {
	out := make([]Node, 0, len(d.children))
	for _, n := range d.children {
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b Node) int {
		if c := strings.Compare(pathutil.Fold(a.Name()), pathutil.Fold(b.Name())); c != 0 {
			return c
		}
		return strings.Compare(a.Name(), b.Name())
	})
	return out
}

// Lookup resolves a path below d. Either separator may be used.
func (d *Directory) Lookup(p string) (Node, bool) {
	var node Node = d
	for _, seg := range pathutil.Split(p) {
		dir, ok := node.(*Directory)
		if !ok {
			return nil, false
		}
		if node, ok = dir.Child(seg); !ok {
			return nil, false
		}
	}
	return node, true
}

// Walk visits d and its descendants depth first in name order. Returning
// false from fn skips the children of a directory.
func (d *Directory) Walk(fn func(Node) bool) {
	if !fn(d) {
		return
	}
	for _, child := range d.Children() {
		if dir, ok := child.(*Directory); ok {
			dir.Walk(fn)
			continue
		}
		fn(child)
	}
}

// Summary counts files by status.
type Summary struct {
	Unchanged int
	Added     int
	Removed   int
	Modified  int
}

// Changed returns the number of files that differ.
func (s Summary) Changed() int {
	return s.Added + s.Removed + s.Modified
}

// Summary counts the files below d by status.
func (d *Directory) Summary() Summary {
	var s Summary
	d.Walk(func(n Node) bool {
		if n.Directory() {
			return true
		}
		switch n.Status() {
		case Unchanged:
			s.Unchanged++
		case Added:
			s.Added++
		case Removed:
			s.Removed++
		case Modified:
			s.Modified++
		}
		return true
	})
	return s
}

func (d *Directory) childPath(name string) string {
	if d.path == "" {
		return name
	}
	return d.path + string(pathutil.Separator) + name
}

// finalize derives directory statuses bottom-up.
func (d *Directory) finalize() {
	d.status = Unchanged
	for _, child := range d.children {
		if dir, ok := child.(*Directory); ok {
			dir.finalize()
		}
		if child.Status() != Unchanged {
			d.status = Modified
		}
	}
}
