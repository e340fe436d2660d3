package p4k

import (
	"slices"
	"strings"
	"sync"

	"github.com/meigma/p4k/internal/pathutil"
)

// NodeKind identifies the variant of a tree node.
type NodeKind uint8

// Node kinds.
const (
	KindDirectory NodeKind = iota
	KindFile
	KindComposite
	KindMount
)

func (k NodeKind) String() string {
	switch k {
	case KindDirectory:
		return "directory"
	case KindFile:
		return "file"
	case KindComposite:
		return "composite"
	case KindMount:
		return "mount"
	default:
		return "unknown"
	}
}

// Node is an element of a Tree.
type Node interface {
	// Name is the display name: the first-seen spelling of the last segment.
	Name() string

	// Path is the backslash-separated path from the root of the outermost
	// tree, including any mount points.
	Path() string

	// Size is the decoded size in bytes. Directories report the sum of
	// their leaves; mounts report the size of the nested archive file.
	Size() uint64

	Kind() NodeKind

	// Directory reports whether the node can be listed without loading a
	// nested archive.
	Directory() bool
}

// Interface compliance.
var (
	_ Node = (*Directory)(nil)
	_ Node = (*File)(nil)
	_ Node = (*CompositeFile)(nil)
	_ Node = (*ArchiveMount)(nil)
)

// Directory is an interior node. Children are keyed case-insensitively.
type Directory struct {
	name     string
	path     string
	parent   *Directory
	children map[string]Node

	mu        sync.Mutex
	size      uint64
	sizeValid bool
}

func newDirectory(parent *Directory, name, path string) *Directory {
	return &Directory{
		name:     name,
		path:     path,
		parent:   parent,
		children: make(map[string]Node),
	}
}

// Name implements Node.
func (d *Directory) Name() string { return d.name }

// Path implements Node.
func (d *Directory) Path() string { return d.path }

// Kind implements Node.
func (d *Directory) Kind() NodeKind { return KindDirectory }

// Directory implements Node.
func (d *Directory) Directory() bool { return true }

// Size returns the total decoded size of all leaves below d. The sum is
// cached until a leaf is inserted beneath d.
func (d *Directory) Size() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.sizeValid {
		var total uint64
		for _, child := range d.children {
			total += child.Size()
		}
		d.size = total
		d.sizeValid = true
	}
	return d.size
}

// Child returns the child named name, ignoring case.
func (d *Directory) Child(name string) (Node, bool) {
	n, ok := d.children[pathutil.Fold(name)]
	return n, ok
}

// Len returns the number of direct children.
func (d *Directory) Len() int {
	return len(d.children)
}

// Children returns the direct children sorted by name, ignoring case.
func (d *Directory) Children() []Node {
	out := make([]Node, 0, len(d.children))
	for _, n := range d.children {
		out = append(out, n)
	}
	slices.SortFunc(out, compareNodes)
	return out
}

// invalidate drops the cached size of d and every ancestor.
func (d *Directory) invalidate() {
	for dir := d; dir != nil; dir = dir.parent {
		dir.mu.Lock()
		dir.sizeValid = false
		dir.mu.Unlock()
	}
}

func (d *Directory) childPath(name string) string {
	if d.path == "" {
		return name
	}
	return d.path + string(pathutil.Separator) + name
}

// File is a leaf backed by one entry.
type File struct {
	name    string
	path    string
	entry   *Entry
	archive *Archive
}

// Name implements Node.
func (f *File) Name() string { return f.name }

// Path implements Node.
func (f *File) Path() string { return f.path }

// Size implements Node.
func (f *File) Size() uint64 { return f.entry.UncompressedSize }

// Kind implements Node.
func (f *File) Kind() NodeKind { return KindFile }

// Directory implements Node.
func (f *File) Directory() bool { return false }

// Entry returns the backing entry.
func (f *File) Entry() *Entry { return f.entry }

// CompositeFile is a leaf whose content is the concatenation of shard
// entries, such as a texture split into name.dds, name.dds.1, name.dds.2.
type CompositeFile struct {
	name    string
	path    string
	shards  []*Entry
	archive *Archive
}

// Name implements Node.
func (c *CompositeFile) Name() string { return c.name }

// Path implements Node.
func (c *CompositeFile) Path() string { return c.path }

// Size returns the summed decoded size of all shards.
func (c *CompositeFile) Size() uint64 {
	var total uint64
	for _, e := range c.shards {
		total += e.UncompressedSize
	}
	return total
}

// Kind implements Node.
func (c *CompositeFile) Kind() NodeKind { return KindComposite }

// Directory implements Node.
func (c *CompositeFile) Directory() bool { return false }

// Shards returns the shard entries in archive order.
func (c *CompositeFile) Shards() []*Entry { return c.shards }

// ArchiveMount is a leaf holding a nested archive. Its content is loaded
// on first traversal and kept for the lifetime of the parent archive.
type ArchiveMount struct {
	name    string
	path    string
	entry   *Entry
	archive *Archive
	load    func() (*Tree, error)
}

// Name implements Node.
func (m *ArchiveMount) Name() string { return m.name }

// Path implements Node.
func (m *ArchiveMount) Path() string { return m.path }

// Size returns the decoded size of the nested archive file.
func (m *ArchiveMount) Size() uint64 { return m.entry.UncompressedSize }

// Kind implements Node.
func (m *ArchiveMount) Kind() NodeKind { return KindMount }

// Directory implements Node.
func (m *ArchiveMount) Directory() bool { return false }

// Entry returns the entry holding the nested archive.
func (m *ArchiveMount) Entry() *Entry { return m.entry }

// Tree loads the nested archive and returns its tree. Paths in the
// returned tree are prefixed with the mount path.
func (m *ArchiveMount) Tree() (*Tree, error) {
	return m.load()
}

// compareNodes orders nodes by folded name, then by display name.
func compareNodes(a, b Node) int {
	if c := strings.Compare(pathutil.Fold(a.Name()), pathutil.Fold(b.Name())); c != 0 {
		return c
	}
	return strings.Compare(a.Name(), b.Name())
}
