package p4ktype

import (
	"sync"
	"sync/atomic"
)

// ProgressEvent represents a progress update during extraction or comparison.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Done is the number of items completed.
	Done int

	// Total is the total number of items.
	Total int
}

// Fraction returns the completed share in [0, 1].
func (e ProgressEvent) Fraction() float64 {
	if e.Total <= 0 {
		return 1
	}
	return float64(e.Done) / float64(e.Total)
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

const (
	// StageExtracting indicates entries are being decoded and written.
	StageExtracting ProgressStage = iota

	// StageComparing indicates paths are being classified.
	StageComparing
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageExtracting:
		return "extracting"
	case StageComparing:
		return "comparing"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates. Calls are serialized.
type ProgressFunc func(ProgressEvent)

// ProgressStep returns how many items make up one ~5% progress increment.
func ProgressStep(total int) int {
	step := total / 20
	if step < 1 {
		return 1
	}
	return step
}

// ProgressTracker counts completed items from many goroutines and reports
// every ProgressStep items plus completion. Reports are serialized and
// never go backwards.
type ProgressTracker struct {
	stage ProgressStage
	total int
	step  int
	fn    ProgressFunc

	done     atomic.Int64
	mu       sync.Mutex
	reported int
}

// NewProgressTracker returns a tracker for total items. fn may be nil.
func NewProgressTracker(stage ProgressStage, total int, fn ProgressFunc) *ProgressTracker {
	return &ProgressTracker{
		stage: stage,
		total: total,
		step:  ProgressStep(total),
		fn:    fn,
	}
}

// Advance marks one item as done.
func (t *ProgressTracker) Advance() {
	n := int(t.done.Add(1))
	if n%t.step != 0 && n != t.total {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= t.reported {
		return
	}
	t.reported = n
	if t.fn != nil {
		t.fn(ProgressEvent{Stage: t.stage, Done: n, Total: t.total})
	}
}

// Last returns the most recently reported event.
func (t *ProgressTracker) Last() ProgressEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ProgressEvent{Stage: t.stage, Done: t.reported, Total: t.total}
}
