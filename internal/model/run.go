package model

import "time"

// RunStatus represents the outcome of a pipeline run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusPartial  RunStatus = "partial" // some sources skipped or batches failed
	RunStatusFailed   RunStatus = "failed"
)

// Run is the audit summary of one pipeline run.
type Run struct {
	ID              string    `json:"id"`
	Status          RunStatus `json:"status"`
	StartedAt       time.Time `json:"started_at"`
	CompletedAt     time.Time `json:"completed_at"`
	SourcesOK       int       `json:"sources_ok"`
	SourcesFailed   int       `json:"sources_failed"`
	RecordsRead     int       `json:"records_read"`
	Excluded        int       `json:"excluded"`
	Unified         int       `json:"unified"`
	DuplicateGroups int       `json:"duplicate_groups"`
	BatchesFailed   int       `json:"batches_failed"`
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	if r.CompletedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt)
}
