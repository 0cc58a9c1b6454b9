// Package metrics defines observability hooks for package operations and
// change watches.
package metrics

import "time"

// OutcomeLabel enumerates operation result categories for counters.
type OutcomeLabel string

const (
	OutcomeSuccess  OutcomeLabel = "success"
	OutcomeFailed   OutcomeLabel = "failed"
	OutcomeRejected OutcomeLabel = "rejected" // precondition violations
	OutcomeCanceled OutcomeLabel = "canceled"
)

// Recorder defines observability hooks for operation and change metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc. All methods
// must be safe for nil receivers when using the NoopRecorder (allowing
// optional injection).
type Recorder interface {
	ObserveOperationDuration(verb string, d time.Duration)
	IncOperationOutcome(verb string, outcome OutcomeLabel)
	IncChangeEvent(terminal bool)
	SetActiveWatches(n int)
	SetAggregateProgress(fraction float64)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperationDuration(string, time.Duration) {}
func (NoopRecorder) IncOperationOutcome(string, OutcomeLabel)       {}
func (NoopRecorder) IncChangeEvent(bool)                            {}
func (NoopRecorder) SetActiveWatches(int)                           {}
func (NoopRecorder) SetAggregateProgress(float64)                   {}
