package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/meigma/p4k"
	"github.com/meigma/p4k/cache"
	"github.com/meigma/p4k/cache/disk"
	"github.com/meigma/p4k/cache/memory"
	p4khttp "github.com/meigma/p4k/http"
	"github.com/meigma/p4k/internal/p4ktype"
	"github.com/meigma/p4k/snapshot"
)

// openArchive opens a local archive or an http(s) URL.
func openArchive(ctx context.Context, e *env, target string) (*p4k.Archive, error) {
	opts := []p4k.Option{p4k.WithLogger(e.logger)}
	c, err := e.newCache()
	if err != nil {
		return nil, err
	}
	if c != nil {
		opts = append(opts, p4k.WithCache(c))
	}

	if !isURL(target) {
		return p4k.Open(ctx, target, opts...)
	}
	src, err := p4khttp.NewSource(ctx, target, p4khttp.WithLogger(e.logger))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	a, err := p4k.New(ctx, src, opts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	return a, nil
}

// newCache builds the cache selected by the global flags, or nil.
func (e *env) newCache() (cache.Cache, error) {
	switch {
	case e.cacheDir != "":
		c, err := disk.New(e.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		return c, nil
	case e.cacheMem > 0:
		c, err := memory.New(memory.WithMaxEntries(e.cacheMem))
		if err != nil {
			return nil, fmt.Errorf("cache: %w", err)
		}
		return c, nil
	default:
		return nil, nil
	}
}

// loadEntries returns the entry table of an archive or a snapshot file.
// Targets ending in ".snap" are read as snapshots.
func loadEntries(ctx context.Context, e *env, target string) ([]*p4ktype.Entry, error) {
	if strings.HasSuffix(strings.ToLower(target), snapshotExt) {
		s, err := snapshot.ReadFile(target)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("loaded snapshot", "path", target, "source", s.Source, "entries", len(s.Entries))
		return s.Entries, nil
	}
	a, err := openArchive(ctx, e, target)
	if err != nil {
		return nil, err
	}
	defer a.Close()
	return a.Entries(), nil
}

const snapshotExt = ".snap"

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
