package pipeline

import "time"

// Status is the terminal outcome of one job. Exactly one is returned
// per job; no error crosses the worker boundary.
type Status string

const (
	// StatusSkipped marks non-science frames that never enter the
	// pipeline.
	StatusSkipped Status = "skipped"
	// StatusUnsolved marks the expected negative outcome: the solver
	// failed or timed out. Clouds and tracking errors make this
	// common; it is not a defect.
	StatusUnsolved Status = "unsolved"
	// StatusExtracted is full success: solved, sources and stamps
	// persisted.
	StatusExtracted Status = "sources_extracted"
	// StatusExtractedPartial is success with a failed sources-CSV
	// upload; stamps were already persisted.
	StatusExtractedPartial Status = "sources_extracted_partial"
	// StatusError covers every structural fault: malformed key,
	// download or unpack failure, extraction errors.
	StatusError Status = "error"
)

// Result is the terminal output of one job, used for reporting and
// recording; it is not a first-class persisted entity.
type Result struct {
	ObjectKey   string        `json:"object_key"`
	Status      Status        `json:"status"`
	Filename    string        `json:"filename,omitempty"`
	Solved      bool          `json:"solved"`
	SourceCount int           `json:"source_count"`
	StampCount  int           `json:"stamp_count"`
	Skipped     int           `json:"skipped_sources,omitempty"`
	Duration    time.Duration `json:"-"`
	Err         error         `json:"-"`
}
