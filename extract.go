package p4k

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/meigma/p4k/internal/batch"
	"github.com/meigma/p4k/internal/pathutil"
)

type (
	// ExtractReport summarizes an extraction run.
	ExtractReport = batch.Report

	// ExtractFailure records an entry that could not be extracted.
	ExtractFailure = batch.Failure
)

// Extractable is a source of entries for Extract: an *Archive or a *Tree.
type Extractable interface {
	extractItems(prefix string, filter Filter) ([]*batch.Item, error)
	log() *slog.Logger
}

var (
	_ Extractable = (*Archive)(nil)
	_ Extractable = (*Tree)(nil)
)

// Extract decodes the entries of src into destDir.
//
// Output paths mirror archive paths below destDir; paths that would escape
// destDir fail. Empty entries produce no file. Failures are collected in the
// report unless ExtractWithFailFast is set. The report is returned even when
// err is non-nil.
func Extract(ctx context.Context, src Extractable, destDir string, opts ...ExtractOption) (*ExtractReport, error) {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	items, err := src.extractItems(cfg.prefix, cfg.filter)
	if err != nil {
		return nil, err
	}

	sink, err := batch.NewFileSink(destDir,
		batch.WithOverwrite(cfg.overwrite),
		batch.WithPreserveTimes(cfg.preserveTimes),
		batch.WithDirectWrites(cfg.directWrites),
	)
	if err != nil {
		return nil, fmt.Errorf("extract to %s: %w", destDir, err)
	}

	proc := batch.NewProcessor(
		batch.WithWorkers(cfg.workers),
		batch.WithFailFast(cfg.failFast),
		batch.WithProgress(cfg.progress),
		batch.WithProcessorLogger(src.log()),
	)
	report, err := proc.Process(ctx, items, sink)
	src.log().Debug("extract complete",
		"dest", destDir,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"failed", len(report.Failed),
		"canceled", report.Canceled,
	)
	return report, err
}

// extractItems returns one item per distinct entry name; when names repeat
// only the last entry is extracted.
func (a *Archive) extractItems(prefix string, filter Filter) ([]*batch.Item, error) {
	prefixKey := entryKey(prefix)
	items := make([]*batch.Item, 0, len(a.entries))
	for _, e := range a.entries {
		if e.IsDir() {
			continue
		}
		key := entryKey(e.Name)
		if a.index[key] != e || !underPrefix(key, prefixKey) {
			continue
		}
		name := pathutil.Normalize(e.Name)
		if filter != nil && !filter.Match(name) {
			continue
		}
		items = append(items, &batch.Item{
			Path:    name,
			Size:    e.UncompressedSize,
			ModTime: e.ModTime(),
			Open: func() (io.ReadCloser, error) {
				return a.OpenEntry(e)
			},
		})
	}
	return items, nil
}

func (t *Tree) log() *slog.Logger {
	return t.archive.log()
}

// extractItems returns the leaves below prefix. Composite files are written
// as one concatenated file and mounts as the nested archive file.
func (t *Tree) extractItems(prefix string, filter Filter) ([]*batch.Item, error) {
	leaves, err := t.Files(prefix)
	if err != nil {
		return nil, err
	}
	items := make([]*batch.Item, 0, len(leaves))
	for _, n := range leaves {
		if filter != nil && !filter.Match(n.Path()) {
			continue
		}
		items = append(items, &batch.Item{
			Path:    n.Path(),
			Size:    n.Size(),
			ModTime: nodeModTime(n),
			Open: func() (io.ReadCloser, error) {
				return openNode(n)
			},
		})
	}
	return items, nil
}

func underPrefix(key, prefixKey string) bool {
	if prefixKey == "" || key == prefixKey {
		return true
	}
	return strings.HasPrefix(key, prefixKey+string(pathutil.Separator))
}

func nodeModTime(n Node) time.Time {
	switch n := n.(type) {
	case *File:
		return n.entry.ModTime()
	case *ArchiveMount:
		return n.entry.ModTime()
	case *CompositeFile:
		return n.shards[0].ModTime()
	default:
		return time.Time{}
	}
}

