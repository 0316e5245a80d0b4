// Package adapter defines the run completion notification boundary.
//
// Adapters publish a single event per run to a downstream system after the
// report has been written. Publishing is best effort: a failed notification
// never changes the run outcome.
package adapter

import (
	"context"
	"time"
)

// EventRunCompleted is the event type of every published event.
const EventRunCompleted = "run_completed"

// Run outcomes carried by RunCompletedEvent.Outcome.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// RunCompletedEvent is the payload published when a run finishes.
type RunCompletedEvent struct {
	FormatVersion string `json:"format_version"`
	EventType     string `json:"event_type"`
	RunID         string `json:"run_id"`
	JobID         string `json:"job_id,omitempty"`
	Outcome       string `json:"outcome"`
	// ErrorKind names the failure class when Outcome is failed.
	ErrorKind  string `json:"error_kind,omitempty"`
	Mode       string `json:"mode"`
	Model      string `json:"model"`
	OutputRoot string `json:"output_root"`
	// StoragePath is where run records were published, if anywhere.
	StoragePath     string  `json:"storage_path,omitempty"`
	TotalReads      int64   `json:"total_reads"`
	Groups          int     `json:"groups"`
	UnclassifiedPct float64 `json:"unclassified_pct"`
	Timestamp       string  `json:"timestamp"`
	DurationMs      int64   `json:"duration_ms"`
}

// Adapter publishes run completion events to a downstream system.
// Implementations are single use per run.
type Adapter interface {
	// Publish sends a run completion event. Must respect ctx.
	Publish(ctx context.Context, event *RunCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// FormatTimestamp renders t the way events carry it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
