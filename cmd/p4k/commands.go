package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/p4k"
	"github.com/meigma/p4k/compare"
	"github.com/meigma/p4k/snapshot"
)

func runLs(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "ls", "[flags] <archive> [path]")
	long := fs.Bool("l", false, "show sizes and modification times")
	recursive := fs.Bool("r", false, "list every file below path")
	if err := parseArgs(fs, args, 1, 2); err != nil {
		return err
	}

	a, err := openArchive(ctx, e, fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	t := a.Tree()
	var nodes []p4k.Node
	if *recursive {
		nodes, err = t.Files(fs.Arg(1))
	} else {
		nodes, err = t.List(fs.Arg(1))
	}
	if err != nil {
		return err
	}
	for _, n := range nodes {
		name := n.Name()
		if *recursive {
			name = n.Path()
		}
		if n.Kind() != p4k.KindFile && n.Kind() != p4k.KindComposite {
			name += "/"
		}
		if !*long {
			fmt.Fprintln(e.stdout, name)
			continue
		}
		fmt.Fprintf(e.stdout, "%-9s %10s  %s  %s\n", n.Kind(), humanize.Bytes(n.Size()), modTime(n), name)
	}
	return nil
}

// modTime formats the timestamp of leaf nodes.
func modTime(n p4k.Node) string {
	var ts time.Time
	switch n := n.(type) {
	case *p4k.File:
		ts = n.Entry().ModTime()
	case *p4k.ArchiveMount:
		ts = n.Entry().ModTime()
	case *p4k.CompositeFile:
		if shards := n.Shards(); len(shards) > 0 {
			ts = shards[0].ModTime()
		}
	}
	if ts.IsZero() {
		return "                "
	}
	return ts.Format("2006-01-02 15:04")
}

func runCat(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "cat", "<archive> <path>")
	if err := parseArgs(fs, args, 2, 2); err != nil {
		return err
	}

	a, err := openArchive(ctx, e, fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	rc, err := a.Tree().Open(fs.Arg(1))
	if err != nil {
		return err
	}
	_, err = io.Copy(e.stdout, rc)
	return errors.Join(err, rc.Close())
}

func runExtract(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "extract", "[flags] <archive>")
	dest := fs.String("o", ".", "destination directory")
	prefix := fs.String("prefix", "", "only extract entries below this directory")
	glob := fs.String("glob", "", "only extract paths matching this glob")
	expr := fs.String("regexp", "", "only extract paths matching this regular expression")
	workers := fs.Int("workers", 0, "concurrent workers (0 uses GOMAXPROCS)")
	sequential := fs.Bool("seq", false, "extract one entry at a time")
	overwrite := fs.Bool("overwrite", false, "replace existing files")
	preserve := fs.Bool("preserve-times", false, "set file times from the archive")
	failFast := fs.Bool("fail-fast", false, "stop at the first failed entry")
	direct := fs.Bool("direct", false, "write files in place without temporary files")
	progress := fs.Bool("progress", false, "report progress on stderr")
	if err := parseArgs(fs, args, 1, 1); err != nil {
		return err
	}
	if *glob != "" && *expr != "" {
		fmt.Fprintln(e.stderr, "p4k extract: -glob and -regexp are mutually exclusive")
		return errUsage
	}

	opts := []p4k.ExtractOption{
		p4k.ExtractWithPrefix(*prefix),
		p4k.ExtractWithWorkers(*workers),
		p4k.ExtractWithOverwrite(*overwrite),
		p4k.ExtractWithPreserveTimes(*preserve),
		p4k.ExtractWithFailFast(*failFast),
		p4k.ExtractWithDirectWrites(*direct),
	}
	if *sequential {
		opts = append(opts, p4k.ExtractSequential())
	}
	if filter, err := buildFilter(*glob, *expr); err != nil {
		return err
	} else if filter != nil {
		opts = append(opts, p4k.ExtractWithFilter(filter))
	}
	if *progress {
		opts = append(opts, p4k.ExtractWithProgress(progressPrinter(e.stderr)))
	}

	a, err := openArchive(ctx, e, fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	start := time.Now()
	report, err := p4k.Extract(ctx, a, *dest, opts...)
	if report != nil {
		fmt.Fprintf(e.stdout, "extracted %s files (%s) to %s in %s, skipped %s, failed %d\n",
			humanize.Comma(int64(report.Processed)), humanize.Bytes(report.Bytes), *dest,
			time.Since(start).Round(time.Millisecond), humanize.Comma(int64(report.Skipped)), len(report.Failed))
		for _, f := range report.Failed {
			fmt.Fprintln(e.stderr, "failed:", f.Error())
		}
	}
	return err
}

func buildFilter(glob, expr string) (p4k.Filter, error) {
	switch {
	case glob != "":
		return p4k.Glob(glob)
	case expr != "":
		return p4k.Regexp(expr)
	default:
		return nil, nil
	}
}

// progressPrinter writes a line whenever the completed percentage changes.
func progressPrinter(w io.Writer) p4k.ProgressFunc {
	last := -1
	return func(ev p4k.ProgressEvent) {
		pct := int(ev.Fraction() * 100)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "%s: %3d%% (%d/%d)\n", ev.Stage, pct, ev.Done, ev.Total)
	}
}

func runCompare(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "compare", "[flags] <left> <right>")
	all := fs.Bool("all", false, "also print unchanged files")
	summaryOnly := fs.Bool("summary", false, "only print the summary line")
	if err := parseArgs(fs, args, 2, 2); err != nil {
		return err
	}

	left, err := loadEntries(ctx, e, fs.Arg(0))
	if err != nil {
		return err
	}
	right, err := loadEntries(ctx, e, fs.Arg(1))
	if err != nil {
		return err
	}

	root, err := compare.Entries(ctx, left, right, compare.WithLogger(e.logger))
	if err != nil {
		return err
	}
	if !*summaryOnly {
		printDiff(e.stdout, root, *all)
	}
	s := root.Summary()
	fmt.Fprintf(e.stdout, "%s added, %s removed, %s modified, %s unchanged\n",
		humanize.Comma(int64(s.Added)), humanize.Comma(int64(s.Removed)),
		humanize.Comma(int64(s.Modified)), humanize.Comma(int64(s.Unchanged)))
	return nil
}

func printDiff(w io.Writer, root *compare.Directory, all bool) {
	root.Walk(func(n compare.Node) bool {
		if n.Directory() {
			return all || n.Status() != compare.Unchanged
		}
		f := n.(*compare.File)
		switch f.Status() {
		case compare.Added:
			fmt.Fprintf(w, "A %s (%s)\n", f.Path(), humanize.Bytes(f.Right.UncompressedSize))
		case compare.Removed:
			fmt.Fprintf(w, "D %s (%s)\n", f.Path(), humanize.Bytes(f.Left.UncompressedSize))
		case compare.Modified:
			fmt.Fprintf(w, "M %s (%s -> %s)\n", f.Path(),
				humanize.Bytes(f.Left.UncompressedSize), humanize.Bytes(f.Right.UncompressedSize))
		default:
			if all {
				fmt.Fprintf(w, "  %s\n", f.Path())
			}
		}
		return true
	})
}

func runSnapshot(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "snapshot", "-o <file"+snapshotExt+"> <archive>")
	out := fs.String("o", "", "output file")
	if err := parseArgs(fs, args, 1, 1); err != nil {
		return err
	}
	if *out == "" {
		fs.Usage()
		return errUsage
	}

	a, err := openArchive(ctx, e, fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	if err := snapshot.WriteFile(*out, fs.Arg(0), a.Entries()); err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "wrote %s entries to %s\n", humanize.Comma(int64(a.Len())), *out)
	return nil
}
