// Package compare classifies every path across two entry tables as added,
// removed, modified or unchanged and arranges the result as a tree.
package compare

import (
	"context"
	"log/slog"
	"slices"

	"github.com/meigma/p4k/internal/p4ktype"
	"github.com/meigma/p4k/internal/pathutil"
)

// ctxCheckInterval is how many paths are classified between context checks.
const ctxCheckInterval = 256

// Option configures a comparison.
type Option func(*config)

type config struct {
	progress p4ktype.ProgressFunc
	logger   *slog.Logger
}

// WithProgress sets a callback for progress updates.
func WithProgress(fn p4ktype.ProgressFunc) Option {
	return func(c *config) {
		c.progress = fn
	}
}

// WithLogger sets the logger. If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

func (c *config) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// pair holds both sides of one path.
type pair struct {
	name        string // first-seen spelling
	left, right *p4ktype.Entry
}

// Entries compares two entry tables.
//
// Paths match case-insensitively; when a table repeats a name the last
// entry wins. Files are Modified when their CRC-32 or decoded size differ.
// On cancellation the partially built tree is returned, with directory
// statuses derived from what was inserted, together with ctx.Err().
func Entries(ctx context.Context, left, right []*p4ktype.Entry, opts ...Option) (*Directory, error) {
	cfg := config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	log := cfg.log()

	pairs := make(map[string]*pair, max(len(left), len(right)))
	add := func(side string, entries []*p4ktype.Entry, set func(*pair, *p4ktype.Entry) bool) {
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := pathutil.Normalize(e.Name)
			if name == "" {
				continue
			}
			key := pathutil.Fold(name)
			p, ok := pairs[key]
			if !ok {
				p = &pair{name: name}
				pairs[key] = p
			}
			if set(p, e) {
				log.Debug("duplicate entry, keeping last", "side", side, "entry", e.Name)
			}
		}
	}
	add("left", left, func(p *pair, e *p4ktype.Entry) bool {
		dup := p.left != nil
		p.left = e
		return dup
	})
	add("right", right, func(p *pair, e *p4ktype.Entry) bool {
		dup := p.right != nil
		p.right = e
		return dup
	})

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	log.Debug("comparing entry tables", "left", len(left), "right", len(right), "paths", len(keys))

	root := newDirectory("", "")
	tracker := p4ktype.NewProgressTracker(p4ktype.StageComparing, len(keys), cfg.progress)
	var err error
	for i, k := range keys {
		if i%ctxCheckInterval == 0 {
			if err = ctx.Err(); err != nil {
				break
			}
		}
		if p := pairs[k]; !root.insert(p) {
			log.Debug("skipping path with conflicting name", "path", p.name)
		}
		tracker.Advance()
	}
	root.finalize()
	return root, err
}

// insert places one path, creating directories as needed. It reports false
// if the path conflicts with an existing node.
func (d *Directory) insert(p *pair) bool {
	segs := pathutil.Split(p.name)
	dir := d
	for _, seg := range segs[:len(segs)-1] {
		key := pathutil.Fold(seg)
		switch existing := dir.children[key].(type) {
		case nil:
			child := newDirectory(seg, dir.childPath(seg))
			dir.children[key] = child
			dir = child
		case *Directory:
			dir = existing
		default:
			return false
		}
	}
	leaf := segs[len(segs)-1]
	key := pathutil.Fold(leaf)
	if _, ok := dir.children[key]; ok {
		return false
	}
	dir.children[key] = &File{
		name:  leaf,
		path:  dir.childPath(leaf),
		Left:  p.left,
		Right: p.right,
	}
	return true
}
