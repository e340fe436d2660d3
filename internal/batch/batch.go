// Package batch decodes many archive items into a Sink, sequentially or
// with a bounded worker pool.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/p4k/internal/p4ktype"
)

// Processor writes items to a sink.
//
// Failures are collected into the Report by default. With fail-fast
// enabled, the first failure stops scheduling and is returned.
type Processor struct {
	workers  int // 0 = GOMAXPROCS, 1 = sequential
	failFast bool
	progress p4ktype.ProgressFunc
	logger   *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of concurrent workers. Zero uses GOMAXPROCS,
// one or negative values process items sequentially.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithFailFast stops the run at the first failure.
func WithFailFast(enabled bool) ProcessorOption {
	return func(p *Processor) {
		p.failFast = enabled
	}
}

// WithProgress sets a callback for progress updates.
func WithProgress(fn p4ktype.ProgressFunc) ProcessorOption {
	return func(p *Processor) {
		p.progress = fn
	}
}

// WithProcessorLogger sets the logger for batch processing operations.
// If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a new batch processor.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process writes every item to sink.
//
// Cancellation is checked between items; items already running finish.
// The returned error is ctx.Err() on cancellation, the first failure in
// fail-fast mode, or nil. The report is returned in every case.
func (p *Processor) Process(ctx context.Context, items []*Item, sink Sink) (*Report, error) {
	r := &run{
		report:  &Report{Total: len(items)},
		tracker: p4ktype.NewProgressTracker(p4ktype.StageExtracting, len(items), p.progress),
	}
	workers := p.workerCount(len(items))
	p.log().Debug("batch plan", "items", len(items), "workers", workers, "fail_fast", p.failFast)

	var err error
	if workers < 2 {
		err = p.processSequential(ctx, items, sink, r)
	} else {
		err = p.processParallel(ctx, items, sink, r, workers)
	}

	r.report.Progress = r.tracker.Last().Fraction()
	if len(items) == 0 {
		r.report.Progress = 1
	}
	if ctxErr := ctx.Err(); ctxErr != nil && r.report.Processed+r.report.Skipped+len(r.report.Failed) < len(items) {
		r.report.Canceled = true
		if err == nil {
			err = ctxErr
		}
	}
	return r.report, err
}

// run holds the mutable state of one Process call.
type run struct {
	mu      sync.Mutex
	report  *Report
	tracker *p4ktype.ProgressTracker
}

func (r *run) record(item *Item, outcome outcome, err error) {
	r.mu.Lock()
	switch outcome {
	case outcomeProcessed:
		r.report.Processed++
		r.report.Bytes += item.Size
	case outcomeSkipped:
		r.report.Skipped++
	case outcomeFailed:
		r.report.Failed = append(r.report.Failed, Failure{Path: item.Path, Err: err})
	}
	r.mu.Unlock()
	r.tracker.Advance()
}

type outcome uint8

const (
	outcomeProcessed outcome = iota
	outcomeSkipped
	outcomeFailed
)

func (p *Processor) processSequential(ctx context.Context, items []*Item, sink Sink, r *run) error {
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processItem(item, sink, r); err != nil && p.failFast {
			return err
		}
	}
	return nil
}

func (p *Processor) processParallel(ctx context.Context, items []*Item, sink Sink, r *run, workers int) error {
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)

	for _, item := range items {
		if egctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := egctx.Err(); err != nil {
				return nil //nolint:nilerr // not started; reported through ctx
			}
			err := p.processItem(item, sink, r)
			if p.failFast {
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// processItem decodes one item into the sink and records the outcome.
func (p *Processor) processItem(item *Item, sink Sink, r *run) error {
	if item.Size == 0 || !sink.ShouldProcess(item) {
		r.record(item, outcomeSkipped, nil)
		return nil
	}
	if err := p.copyItem(item, sink); err != nil {
		p.log().Debug("item failed", "path", item.Path, "error", err)
		r.record(item, outcomeFailed, err)
		return fmt.Errorf("batch: %s: %w", item.Path, err)
	}
	r.record(item, outcomeProcessed, nil)
	return nil
}

func (p *Processor) copyItem(item *Item, sink Sink) error {
	rc, err := item.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := sink.Writer(item)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// workerCount determines the number of workers to use.
func (p *Processor) workerCount(items int) int {
	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return max(min(workers, items), 1)
}
