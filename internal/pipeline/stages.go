package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/hallvik/pagepress/internal/errors"
	"github.com/hallvik/pagepress/internal/metrics"
)

// Stage is a discrete unit of work in a pipeline run.
type Stage func(ctx context.Context, rs *RunState) error

// StageErrorKind enumerates structured stage error categories.
type StageErrorKind string

const (
	StageErrorFatal    StageErrorKind = "fatal"    // Run must abort.
	StageErrorWarning  StageErrorKind = "warning"  // Non-fatal; record and continue.
	StageErrorCanceled StageErrorKind = "canceled" // Context cancellation.
)

// StageError is a structured error carrying category and underlying cause.
type StageError struct {
	Kind  StageErrorKind
	Stage string
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s stage %s: %v", e.Kind, e.Stage, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

func newFatalStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorFatal, Stage: stage, Err: err}
}
func newWarnStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorWarning, Stage: stage, Err: err}
}
func newCanceledStageError(stage string, err error) *StageError {
	return &StageError{Kind: StageErrorCanceled, Stage: stage, Err: err}
}

// namedStage pairs a stage with its reporting name.
type namedStage struct {
	name string
	fn   Stage
}

// runStages executes stages in order, recording timing and stopping on the
// first fatal error. The strict chain is the pipeline's core invariant: a
// failed render can never reach stamp, a missing stamp can never reach
// publish.
func runStages(ctx context.Context, rs *RunState, stages []namedStage) error {
	for _, st := range stages {
		select {
		case <-ctx.Done():
			se := newCanceledStageError(st.name, ctx.Err())
			rs.Report.recordError(st.name, se)
			return se
		default:
		}

		t0 := time.Now()
		err := st.fn(ctx, rs)
		dur := time.Since(t0)
		rs.Report.StageDurations[st.name] = dur
		rs.Recorder.ObserveStageDuration(st.name, dur)

		if err == nil {
			rs.Recorder.IncStageResult(st.name, metrics.ResultSuccess)
			continue
		}

		var se *StageError
		if !errors.As(err, &se) {
			// Errors a stage did not classify are internal by definition.
			se = newFatalStageError(st.name, apperrors.InternalError("unexpected stage failure", err))
		}

		switch se.Kind {
		case StageErrorWarning:
			rs.Report.Warnings = append(rs.Report.Warnings, se)
			rs.Report.StageErrorKinds[st.name] = se.Kind
			rs.Recorder.IncStageResult(st.name, metrics.ResultWarning)
			continue
		case StageErrorCanceled:
			rs.Report.recordError(st.name, se)
			rs.Recorder.IncStageResult(st.name, metrics.ResultCanceled)
			return se
		default:
			rs.Report.recordError(st.name, se)
			rs.Recorder.IncStageResult(st.name, metrics.ResultFatal)
			return se
		}
	}
	return nil
}
