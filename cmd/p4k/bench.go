package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/p4k"
)

type benchConfig struct {
	mode       string
	duration   time.Duration
	iterations int
	random     bool
	seed       uint64
	prefix     string
}

type benchStats struct {
	ops     int
	bytes   uint64
	elapsed time.Duration
}

func runBench(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "bench", "[flags] <archive>")
	var cfg benchConfig
	fs.StringVar(&cfg.mode, "mode", "read", "read, cached-read, lookup or list")
	fs.DurationVar(&cfg.duration, "duration", 5*time.Second, "run time when -iterations is 0")
	fs.IntVar(&cfg.iterations, "iterations", 0, "number of operations (overrides -duration)")
	fs.BoolVar(&cfg.random, "random", false, "pick entries at random instead of in order")
	fs.Uint64Var(&cfg.seed, "seed", 1, "seed for -random")
	fs.StringVar(&cfg.prefix, "prefix", "", "only use entries below this directory")
	if err := parseArgs(fs, args, 1, 1); err != nil {
		return err
	}
	if cfg.mode == "cached-read" && e.cacheDir == "" && e.cacheMem == 0 {
		e.cacheMem = 4096
	}

	a, err := openArchive(ctx, e, fs.Arg(0))
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := bench(ctx, a, cfg)
	if err != nil {
		return err
	}
	var rate string
	if secs := stats.elapsed.Seconds(); secs > 0 {
		rate = humanize.Bytes(uint64(float64(stats.bytes)/secs)) + "/s"
	}
	fmt.Fprintf(e.stdout, "mode=%s ops=%s bytes=%s elapsed=%s throughput=%s\n",
		cfg.mode, humanize.Comma(int64(stats.ops)), humanize.Bytes(stats.bytes),
		stats.elapsed.Round(time.Millisecond), rate)
	return nil
}

func bench(ctx context.Context, a *p4k.Archive, cfg benchConfig) (benchStats, error) {
	files, err := a.Tree().Files(cfg.prefix)
	if err != nil {
		return benchStats{}, err
	}
	if len(files) == 0 {
		return benchStats{}, fmt.Errorf("no files below %q", cfg.prefix)
	}

	rng := rand.New(rand.NewPCG(cfg.seed, cfg.seed))
	pick := func(i int) p4k.Node {
		if cfg.random {
			return files[rng.IntN(len(files))]
		}
		return files[i%len(files)]
	}

	var op func(p4k.Node) (uint64, error)
	switch cfg.mode {
	case "read", "cached-read":
		op = func(n p4k.Node) (uint64, error) {
			data, err := a.Tree().ReadAll(n.Path())
			return uint64(len(data)), err
		}
	case "lookup":
		op = func(n p4k.Node) (uint64, error) {
			_, err := a.Tree().Lookup(n.Path())
			return 0, err
		}
	case "list":
		op = func(n p4k.Node) (uint64, error) {
			_, err := a.Tree().List(parentPath(n.Path()))
			return 0, err
		}
	default:
		return benchStats{}, fmt.Errorf("unknown mode %q", cfg.mode)
	}

	// Warm the cache so only hits are measured.
	if cfg.mode == "cached-read" {
		for _, n := range files {
			if _, err := op(n); err != nil {
				return benchStats{}, err
			}
		}
	}

	var stats benchStats
	start := time.Now()
	more := func() bool {
		if cfg.iterations > 0 {
			return stats.ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}
	for more() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, err := op(pick(stats.ops))
		if err != nil {
			return stats, err
		}
		stats.bytes += n
		stats.ops++
	}
	stats.elapsed = time.Since(start)
	return stats, nil
}

// parentPath returns the directory part of a tree path.
func parentPath(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '\\' || p[i] == '/' {
			return p[:i]
		}
	}
	return ""
}
