package batch

import (
	"errors"
	"fmt"
)

// Failure records an item that could not be processed.
type Failure struct {
	Path string
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Path, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Report summarizes a batch run.
type Report struct {
	// Total is the number of items handed to the processor.
	Total int

	// Processed is the number of items written to the sink.
	Processed int

	// Skipped counts empty items and items the sink declined.
	Skipped int

	// Bytes is the sum of Size over processed items.
	Bytes uint64

	// Failed lists items whose decode or write failed.
	Failed []Failure

	// Canceled reports whether the run stopped before every item was scheduled.
	Canceled bool

	// Progress is the last reported completed fraction.
	Progress float64
}

// Err joins all failures, or returns nil if there were none.
func (r *Report) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return errors.Join(errs...)
}
