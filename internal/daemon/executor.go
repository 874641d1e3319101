package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hallvik/pagepress/internal/history"
	"github.com/hallvik/pagepress/internal/logfields"
	"github.com/hallvik/pagepress/internal/metrics"
	"github.com/hallvik/pagepress/internal/pipeline"
)

// Executor serializes pipeline runs. A single lock guards the whole
// render-and-publish cycle so two runs never share the workspace or race on
// the hosting branch.
type Executor struct {
	pipe     *pipeline.Pipeline
	hist     *history.Store
	recorder metrics.Recorder

	mu      sync.Mutex
	running bool
}

// NewExecutor wires the pipeline to the run-history store.
func NewExecutor(pipe *pipeline.Pipeline, hist *history.Store, recorder metrics.Recorder) *Executor {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Executor{pipe: pipe, hist: hist, recorder: recorder}
}

// Running reports whether a run is in flight.
func (e *Executor) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Execute runs the pipeline for one coalesced trigger. A trigger whose commit
// already published successfully is skipped: replaying the same content would
// produce an identical site and an empty commit.
func (e *Executor) Execute(ctx context.Context, c Coalesced) {
	e.mu.Lock()
	if e.running {
		// The debouncer holds triggers while a run is in flight; getting here
		// anyway means a caller bypassed it. Drop rather than queue.
		e.mu.Unlock()
		slog.Warn("Run trigger dropped: pipeline already running")
		return
	}
	e.running = true
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	if e.alreadyPublished(ctx, c.Commit) {
		slog.Info("Run skipped: commit already published",
			logfields.Commit(c.Commit),
			logfields.Branch(c.Branch))
		e.recorder.IncRunOutcome(metrics.OutcomeSkipped)
		return
	}

	slog.Info("Starting pipeline run",
		logfields.Branch(c.Branch),
		logfields.Commit(c.Commit),
		slog.String("cause", c.TriggerCause),
		slog.Int("coalesced_notices", c.NoticeCount))

	report, err := e.pipe.Run(ctx, pipeline.Trigger{
		Branch: c.Branch,
		Commit: c.Commit,
		Reason: c.Reason,
	})
	if err != nil {
		slog.Error("Pipeline run failed", logfields.Error(err))
	}
	e.record(ctx, report)
}

func (e *Executor) alreadyPublished(ctx context.Context, commit string) bool {
	if e.hist == nil || commit == "" {
		return false
	}
	last, err := e.hist.LastPublishedCommit(ctx)
	if err != nil {
		slog.Warn("Could not read run history", logfields.Error(err))
		return false
	}
	return last == commit
}

func (e *Executor) record(ctx context.Context, report *pipeline.RunReport) {
	if e.hist == nil || report == nil {
		return
	}
	run := history.Run{
		RunID:      report.RunID,
		Branch:     report.Branch,
		Commit:     report.Commit,
		Outcome:    string(report.Outcome),
		Documents:  report.Documents,
		Pages:      report.Pages,
		Published:  report.Published,
		StartedAt:  report.Start,
		FinishedAt: report.End,
	}
	if err := report.FirstError(); err != nil {
		run.Error = err.Error()
	}
	if err := e.hist.Record(ctx, run); err != nil {
		slog.Warn("Could not record run history", logfields.Error(err))
	}
}
