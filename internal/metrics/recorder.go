package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// RunOutcomeLabel enumerates terminal run outcomes.
type RunOutcomeLabel string

const (
	OutcomeSuccess  RunOutcomeLabel = "success"
	OutcomeFailed   RunOutcomeLabel = "failed"
	OutcomeCanceled RunOutcomeLabel = "canceled"
	OutcomeSkipped  RunOutcomeLabel = "skipped"
)

// Recorder defines observability hooks for pipeline and stage metrics.
// Implementations may forward to Prometheus; all methods must be safe on the
// NoopRecorder so injection stays optional.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	ObserveRunDuration(d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	IncRunOutcome(outcome RunOutcomeLabel)
	IncPublishResult(success bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) ObserveRunDuration(time.Duration)           {}
func (NoopRecorder) IncStageResult(string, ResultLabel)         {}
func (NoopRecorder) IncRunOutcome(RunOutcomeLabel)              {}
func (NoopRecorder) IncPublishResult(bool)                      {}
