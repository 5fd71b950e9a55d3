// Package jobs is the scheduling core: the
// per-job decision/execution state machine (pipeline.go), the condition-
// variable concurrency controller (controller.go), the submit-on-demand
// pending queue with its ordering modes (queue.go), deterministic output/
// error path derivation (paths.go), error-marker IO (markers.go), and the
// discovery/replenish/drain driver loop (orchestrator.go).
package jobs

import (
	"github.com/google/uuid"

	"github.com/gwlsn/transcast/internal/config"
	"github.com/gwlsn/transcast/internal/media"
)

// Status is a job's position in its lifecycle.
type Status string

const (
	StatusPending       Status = "pending"
	StatusProcessing    Status = "processing"
	StatusCompleted     Status = "completed"
	StatusKeptOriginal  Status = "kept_original"
	StatusFailed        Status = "failed"
	StatusHwCapExceeded Status = "hw_cap_exceeded"
	StatusSkipped       Status = "skipped"
	StatusInterrupted   Status = "interrupted"
)

// IsTerminal reports whether the status ends the job's lifecycle.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusKeptOriginal, StatusFailed, StatusHwCapExceeded, StatusSkipped, StatusInterrupted:
		return true
	default:
		return false
	}
}

// Job references exactly one VideoFile and owns its derived output and
// error-marker paths plus the decided quality/rotation. It is
// created when a worker begins processing and discarded after the terminal
// event publishes.
type Job struct {
	ID   string
	File media.VideoFile

	OutputPath string
	MarkerPath string

	Mode     config.TranscodeMode
	Quality  media.QualityDecision
	Rotation media.Rotation

	Status Status
}

// NewJob creates a Job in StatusProcessing for the file a worker just
// claimed. Path derivation happens in the pipeline once the container is
// known.
func NewJob(file media.VideoFile, mode config.TranscodeMode) *Job {
	return &Job{
		ID:     uuid.NewString(),
		File:   file,
		Mode:   mode,
		Status: StatusProcessing,
	}
}
