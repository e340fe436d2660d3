// Command p4k inspects, extracts and compares P4K archives.
//
//	p4k [global flags] <command> [flags] <args>
//
// Commands:
//
//	ls        list a directory of the archive tree
//	cat       write a file to stdout
//	extract   extract files to a directory
//	compare   compare two archives or snapshots
//	snapshot  save an archive's entry table
//	bench     measure lookup and read throughput
//
// Archives may be local paths or http(s) URLs served with range support.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
)

// errUsage reports invalid arguments; usage has already been printed.
var errUsage = errors.New("usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"ls", "list a directory of the archive tree", runLs},
	{"cat", "write a file to stdout", runCat},
	{"extract", "extract files to a directory", runExtract},
	{"compare", "compare two archives or snapshots", runCompare},
	{"snapshot", "save an archive's entry table", runSnapshot},
	{"bench", "measure lookup and read throughput", runBench},
}

// env carries global settings into commands.
type env struct {
	stdout   io.Writer
	stderr   io.Writer
	logger   *slog.Logger
	cacheDir string
	cacheMem int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, "p4k:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	fs := flag.NewFlagSet("p4k", flag.ContinueOnError)
	fs.SetOutput(stderr)
	verbose := fs.Bool("v", false, "enable debug logging")
	cacheDir := fs.String("cache-dir", "", "cache decoded entries in this directory")
	cacheMem := fs.Int("cache-mem", 0, "cache up to N decoded entries in memory")
	cpuProfile := fs.String("cpuprofile", "", "write a CPU profile to file")
	memProfile := fs.String("memprofile", "", "write a heap profile to file on exit")
	traceFile := fs.String("trace", "", "write an execution trace to file")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: p4k [flags] <command> [command flags] <args>")
		fmt.Fprintln(stderr, "\ncommands:")
		for _, c := range commands {
			fmt.Fprintf(stderr, "  %-9s %s\n", c.name, c.summary)
		}
		fmt.Fprintln(stderr, "\nflags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	e := &env{
		stdout:   stdout,
		stderr:   stderr,
		logger:   slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})),
		cacheDir: *cacheDir,
		cacheMem: *cacheMem,
	}

	stopProfiles, err := startProfiles(*cpuProfile, *traceFile)
	if err != nil {
		return err
	}
	defer func() {
		if stopErr := stopProfiles(); err == nil {
			err = stopErr
		}
		if *memProfile != "" && err == nil {
			err = writeHeapProfile(*memProfile)
		}
	}()

	name := fs.Arg(0)
	for _, c := range commands {
		if c.name == name {
			return c.run(ctx, e, fs.Args()[1:])
		}
	}
	fmt.Fprintf(stderr, "p4k: unknown command %q\n", name)
	fs.Usage()
	return errUsage
}

// startProfiles starts CPU profiling and tracing as requested and returns
// a function that stops both.
func startProfiles(cpuPath, tracePath string) (func() error, error) {
	var stops []func() error
	stopAll := func() error {
		var errs []error
		for i := len(stops) - 1; i >= 0; i-- {
			errs = append(errs, stops[i]())
		}
		return errors.Join(errs...)
	}

	if cpuPath != "" {
		f, err := os.Create(cpuPath)
		if err != nil {
			return nil, err
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		stops = append(stops, func() error {
			pprof.StopCPUProfile()
			return f.Close()
		})
	}
	if tracePath != "" {
		f, err := os.Create(tracePath)
		if err != nil {
			_ = stopAll()
			return nil, err
		}
		if err := trace.Start(f); err != nil {
			_ = f.Close()
			_ = stopAll()
			return nil, err
		}
		stops = append(stops, func() error {
			trace.Stop()
			return f.Close()
		})
	}
	return stopAll, nil
}

func writeHeapProfile(path string) error {
	runtime.GC()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := pprof.WriteHeapProfile(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// newFlagSet returns a flag set for a subcommand writing errors to e.stderr.
func newFlagSet(e *env, name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.stderr)
	fs.Usage = func() {
		fmt.Fprintf(e.stderr, "usage: p4k %s %s\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

// parseArgs parses subcommand flags and checks the positional count.
func parseArgs(fs *flag.FlagSet, args []string, minArgs, maxArgs int) error {
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if n := fs.NArg(); n < minArgs || n > maxArgs {
		fs.Usage()
		return errUsage
	}
	return nil
}
