package p4k

import "github.com/meigma/p4k/internal/p4ktype"

// Re-export progress types from internal/p4ktype.
type (
	// ProgressEvent represents a progress update during extraction or comparison.
	ProgressEvent = p4ktype.ProgressEvent

	// ProgressStage identifies the current phase of an operation.
	ProgressStage = p4ktype.ProgressStage

	// ProgressFunc receives progress updates. Calls are serialized and
	// never report less progress than a previous call.
	ProgressFunc = p4ktype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageExtracting indicates entries are being decoded and written.
	StageExtracting = p4ktype.StageExtracting

	// StageComparing indicates paths are being classified.
	StageComparing = p4ktype.StageComparing
)
