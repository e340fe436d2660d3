package p4k

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"sync"

	"github.com/meigma/p4k/internal/pathutil"
)

const (
	shardExt       = ".dds"
	mountExt       = ".socpak"
	mountSkipStart = "shadercache_"
)

// Tree is a case-insensitive directory view of an archive's entries.
//
// Paths accept either separator; "", ".", "\" and "/" name the root.
// Resolution descends into mounted .socpak archives, loading each one on
// first use. A Tree is immutable once built and safe for concurrent use.
type Tree struct {
	archive *Archive
	root    *Directory
}

// buildTree inserts every entry of a. Node paths are prefixed with prefix,
// the mount path of a nested archive.
func buildTree(a *Archive, prefix string) *Tree {
	t := &Tree{
		archive: a,
		root:    newDirectory(nil, pathutil.Base(prefix), prefix),
	}
	for _, e := range a.entries {
		t.insert(e)
	}
	a.log().Debug("built tree", "prefix", prefix, "entries", len(a.entries), "size", t.root.Size())
	return t
}

// Root returns the root directory.
func (t *Tree) Root() *Directory {
	return t.root
}

// Archive returns the archive the tree was built from.
func (t *Tree) Archive() *Archive {
	return t.archive
}

func (t *Tree) insert(e *Entry) {
	segs := pathutil.Split(e.Name)
	if len(segs) == 0 {
		return
	}
	dirSegs, leaf := segs, ""
	if !e.IsDir() {
		dirSegs, leaf = segs[:len(segs)-1], segs[len(segs)-1]
	}

	dir := t.root
	for _, seg := range dirSegs {
		next, ok := dir.ensureDirectory(seg)
		if !ok {
			t.archive.log().Debug("skipping entry under non-directory", "entry", e.Name, "segment", seg)
			return
		}
		dir = next
	}
	if leaf != "" {
		t.insertLeaf(dir, leaf, e)
	}
}

// ensureDirectory returns the child directory named seg, creating it if
// absent. It reports false if a leaf already holds the name.
func (d *Directory) ensureDirectory(seg string) (*Directory, bool) {
	key := pathutil.Fold(seg)
	switch existing := d.children[key].(type) {
	case nil:
		child := newDirectory(d, seg, d.childPath(seg))
		d.children[key] = child
		return child, true
	case *Directory:
		return existing, true
	default:
		return nil, false
	}
}

func (t *Tree) insertLeaf(dir *Directory, leaf string, e *Entry) {
	if base, ok := shardBase(leaf); ok {
		key := pathutil.Fold(base)
		switch existing := dir.children[key].(type) {
		case nil:
			dir.children[key] = &CompositeFile{
				name:    base,
				path:    dir.childPath(base),
				shards:  []*Entry{e},
				archive: t.archive,
			}
		case *CompositeFile:
			existing.shards = append(existing.shards, e)
		default:
			t.archive.log().Debug("skipping shard with conflicting name", "entry", e.Name)
			return
		}
		dir.invalidate()
		return
	}

	key := pathutil.Fold(leaf)
	name := leaf
	switch existing := dir.children[key].(type) {
	case nil:
	case *File, *ArchiveMount:
		// Duplicate names: the later entry replaces the earlier one.
		name = existing.Name()
	default:
		t.archive.log().Debug("skipping file with conflicting name", "entry", e.Name)
		return
	}
	if isMount(leaf) {
		dir.children[key] = t.newMount(name, dir.childPath(name), e)
	} else {
		dir.children[key] = &File{name: name, path: dir.childPath(name), entry: e, archive: t.archive}
	}
	dir.invalidate()
}

func (t *Tree) newMount(name, path string, e *Entry) *ArchiveMount {
	a := t.archive
	m := &ArchiveMount{name: name, path: path, entry: e, archive: a}
	m.load = sync.OnceValues(func() (*Tree, error) {
		if a.depth >= a.maxMountDepth {
			return nil, fmt.Errorf("mount %s: %w (limit %d)", path, ErrMountDepth, a.maxMountDepth)
		}
		data, err := a.ReadEntry(e)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", path, err)
		}
		opts := append(slices.Clone(a.opts), withDepth(a.depth+1))
		id := a.source.SourceID() + "!" + e.Name
		nested, err := NewFromBytes(context.Background(), data, id, opts...)
		if err != nil {
			return nil, fmt.Errorf("mount %s: %w", path, err)
		}
		a.log().Debug("mounted nested archive", "path", path, "entries", nested.Len(), "depth", nested.depth)
		return buildTree(nested, path), nil
	})
	return m
}

// shardBase reports whether name is a texture shard ("x.dds" or "x.dds.N")
// and returns the name of the composite it belongs to.
func shardBase(name string) (string, bool) {
	for i := len(name) - len(shardExt); i >= 0; i-- {
		if !strings.EqualFold(name[i:i+len(shardExt)], shardExt) {
			continue
		}
		end := i + len(shardExt)
		rest := name[end:]
		if rest == "" || isShardSuffix(rest) {
			return name[:end], true
		}
		return "", false
	}
	return "", false
}

func isShardSuffix(s string) bool {
	if len(s) < 2 || s[0] != '.' {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isMount(name string) bool {
	folded := pathutil.Fold(name)
	return strings.HasSuffix(folded, mountExt) && !strings.HasPrefix(folded, mountSkipStart)
}

// Lookup resolves p to a node.
func (t *Tree) Lookup(p string) (Node, error) {
	return t.resolve("lookup", p)
}

// Exists reports whether p resolves to a node.
func (t *Tree) Exists(p string) bool {
	_, err := t.resolve("lookup", p)
	return err == nil
}

// List returns the children of the directory or mount at p, sorted by name.
func (t *Tree) List(p string) ([]Node, error) {
	node, err := t.resolve("list", p)
	if err != nil {
		return nil, err
	}
	dir, err := enter(node)
	if err != nil {
		return nil, &fs.PathError{Op: "list", Path: p, Err: err}
	}
	return dir.Children(), nil
}

// ListDirectories returns the directories and mounts directly below p.
func (t *Tree) ListDirectories(p string) ([]Node, error) {
	return t.listFiltered(p, func(n Node) bool {
		k := n.Kind()
		return k == KindDirectory || k == KindMount
	})
}

// ListFiles returns the files and composite files directly below p.
func (t *Tree) ListFiles(p string) ([]Node, error) {
	return t.listFiltered(p, func(n Node) bool {
		k := n.Kind()
		return k == KindFile || k == KindComposite
	})
}

func (t *Tree) listFiltered(p string, keep func(Node) bool) ([]Node, error) {
	nodes, err := t.List(p)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(nodes, func(n Node) bool { return !keep(n) }), nil
}

// Files returns every leaf at or below p in depth-first name order.
// Mounts are returned as leaves; their contents are not visited.
func (t *Tree) Files(p string) ([]Node, error) {
	node, err := t.resolve("files", p)
	if err != nil {
		return nil, err
	}
	var out []Node
	collectLeaves(node, &out)
	return out, nil
}

func collectLeaves(node Node, out *[]Node) {
	dir, ok := node.(*Directory)
	if !ok {
		*out = append(*out, node)
		return
	}
	for _, child := range dir.Children() {
		collectLeaves(child, out)
	}
}

// Find returns the leaves of the tree whose path matches filter. A nil
// filter matches everything.
func (t *Tree) Find(filter Filter) []Node {
	var leaves []Node
	collectLeaves(t.root, &leaves)
	if filter == nil {
		return leaves
	}
	return slices.DeleteFunc(leaves, func(n Node) bool { return !filter.Match(n.Path()) })
}

// Open returns a reader for the leaf at p. Composite files stream their
// shards in order; mounts stream the nested archive file itself.
func (t *Tree) Open(p string) (io.ReadCloser, error) {
	node, err := t.resolve("open", p)
	if err != nil {
		return nil, err
	}
	rc, err := openNode(node)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: p, Err: err}
	}
	return rc, nil
}

// ReadAll decodes the whole leaf at p.
func (t *Tree) ReadAll(p string) ([]byte, error) {
	node, err := t.resolve("read", p)
	if err != nil {
		return nil, err
	}
	data, err := readNode(node)
	if err != nil {
		return nil, &fs.PathError{Op: "read", Path: p, Err: err}
	}
	return data, nil
}

func (t *Tree) resolve(op, p string) (Node, error) {
	var node Node = t.root
	for _, seg := range pathutil.Split(p) {
		dir, err := enter(node)
		if errors.Is(err, ErrNotADirectory) {
			return nil, &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
		}
		if err != nil {
			return nil, &fs.PathError{Op: op, Path: p, Err: err}
		}
		child, ok := dir.Child(seg)
		if !ok {
			return nil, &fs.PathError{Op: op, Path: p, Err: fs.ErrNotExist}
		}
		node = child
	}
	return node, nil
}

// enter returns the directory to descend into from node, loading nested
// archives as needed.
func enter(node Node) (*Directory, error) {
	switch n := node.(type) {
	case *Directory:
		return n, nil
	case *ArchiveMount:
		nested, err := n.Tree()
		if err != nil {
			return nil, err
		}
		return nested.root, nil
	default:
		return nil, ErrNotADirectory
	}
}

func openNode(node Node) (io.ReadCloser, error) {
	switch n := node.(type) {
	case *File:
		return n.archive.OpenEntry(n.entry)
	case *ArchiveMount:
		return n.archive.OpenEntry(n.entry)
	case *CompositeFile:
		return &shardReader{archive: n.archive, shards: n.shards}, nil
	default:
		return nil, ErrNotAFile
	}
}

func readNode(node Node) ([]byte, error) {
	switch n := node.(type) {
	case *File:
		return n.archive.ReadEntry(n.entry)
	case *ArchiveMount:
		return n.archive.ReadEntry(n.entry)
	case *CompositeFile:
		var buf bytes.Buffer
		buf.Grow(int(min(n.Size(), n.archive.maxFileSize))) //nolint:gosec // bounded by max file size
		for _, e := range n.shards {
			data, err := n.archive.ReadEntry(e)
			if err != nil {
				return nil, err
			}
			buf.Write(data)
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrNotAFile
	}
}

// shardReader streams the shards of a composite file one after another,
// opening each shard when the previous one is exhausted.
type shardReader struct {
	archive *Archive
	shards  []*Entry
	cur     io.ReadCloser
}

func (r *shardReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if len(r.shards) == 0 {
				return 0, io.EOF
			}
			rc, err := r.archive.OpenEntry(r.shards[0])
			if err != nil {
				return 0, err
			}
			r.cur, r.shards = rc, r.shards[1:]
		}
		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			closeErr := r.cur.Close()
			r.cur = nil
			if closeErr != nil {
				return n, closeErr
			}
			if n == 0 {
				continue
			}
			return n, nil
		}
		return n, err
	}
}

func (r *shardReader) Close() error {
	r.shards = nil
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}
