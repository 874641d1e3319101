// Package pipeline orchestrates the strict render-and-publish chain:
// checkout, preflight, render, inventory, stamp, verify, publish. Stages run
// strictly in order with no internal parallelism; the first fatal error
// aborts the run so a broken or partial site is never published.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/hallvik/pagepress/internal/config"
	"github.com/hallvik/pagepress/internal/content"
	apperrors "github.com/hallvik/pagepress/internal/errors"
	"github.com/hallvik/pagepress/internal/gitrepo"
	"github.com/hallvik/pagepress/internal/logfields"
	"github.com/hallvik/pagepress/internal/metrics"
	"github.com/hallvik/pagepress/internal/publisher"
	"github.com/hallvik/pagepress/internal/renderer"
	"github.com/hallvik/pagepress/internal/sitecheck"
	"github.com/hallvik/pagepress/internal/stamper"
	"github.com/hallvik/pagepress/internal/workspace"
)

// Trigger describes what started a run.
type Trigger struct {
	Branch string
	Commit string // commit from the push payload; empty for CLI runs
	Reason string // "push", "cli", ...
}

// Notifier receives run lifecycle notifications (e.g. the NATS event
// publisher). Notification failures must never affect the run.
type Notifier interface {
	RunStarted(ctx context.Context, report *RunReport)
	RunFinished(ctx context.Context, report *RunReport)
}

// NoopNotifier discards lifecycle notifications.
type NoopNotifier struct{}

func (NoopNotifier) RunStarted(context.Context, *RunReport)  {}
func (NoopNotifier) RunFinished(context.Context, *RunReport) {}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = r }
}

// WithNotifier injects a run lifecycle notifier.
func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithSkipPublish stops the chain after verify. Used by the build command to
// produce and validate an artifact without touching the hosting target.
func WithSkipPublish() Option {
	return func(p *Pipeline) { p.skipPublish = true }
}

// WithIncrementalCheckout fetches and resets an existing checkout instead of
// recloning. Used by the daemon's persistent workspace.
func WithIncrementalCheckout() Option {
	return func(p *Pipeline) { p.incremental = true }
}

// Pipeline wires the stage chain over a workspace.
type Pipeline struct {
	cfg         *config.Config
	ws          *workspace.Manager
	git         *gitrepo.Client
	runner      *renderer.Runner
	pub         *publisher.Publisher
	recorder    metrics.Recorder
	notifier    Notifier
	skipPublish bool
	incremental bool
}

// New creates a pipeline over the given configuration and workspace.
func New(cfg *config.Config, ws *workspace.Manager, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		ws:       ws,
		git:      gitrepo.NewClient(ws.Path()),
		runner:   renderer.NewRunner(cfg.Renderer),
		pub:      publisher.New(cfg.Publish),
		recorder: metrics.NoopRecorder{},
		notifier: NoopNotifier{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunState carries mutable state across stages of one run.
type RunState struct {
	Cfg       *config.Config
	Trigger   Trigger
	SourceDir string
	OutputDir string
	Docs      []content.Document
	Report    *RunReport
	Recorder  metrics.Recorder
}

// Run executes the full chain once and returns the report. The returned error
// is the fatal stage error when the run aborted, nil on success.
func (p *Pipeline) Run(ctx context.Context, trigger Trigger) (*RunReport, error) {
	runID := uuid.NewString()
	report := newRunReport(runID, trigger.Branch)
	report.Commit = trigger.Commit

	rs := &RunState{
		Cfg:      p.cfg,
		Trigger:  trigger,
		Report:   report,
		Recorder: p.recorder,
	}

	slog.Info("Pipeline run starting",
		logfields.RunID(runID),
		logfields.Branch(trigger.Branch),
		slog.String("reason", trigger.Reason))
	p.notifier.RunStarted(ctx, report)

	stages := []namedStage{
		{"checkout", p.stageCheckout},
		{"preflight", p.stagePreflight},
		{"render", p.stageRender},
		{"inventory", p.stageInventory},
		{"stamp", p.stageStamp},
		{"verify", p.stageVerify},
		{"publish", p.stagePublish},
	}

	err := runStages(ctx, rs, stages)
	report.finalize()

	p.recorder.ObserveRunDuration(report.Duration())
	p.recorder.IncRunOutcome(outcomeLabel(report.Outcome))

	slog.Info("Pipeline run finished",
		logfields.RunID(runID),
		logfields.Outcome(string(report.Outcome)),
		logfields.DurationMS(float64(report.Duration().Milliseconds())),
		slog.Int("documents", report.Documents),
		slog.Int("pages", report.Pages),
		slog.Bool("published", report.Published))
	p.notifier.RunFinished(ctx, report)

	return report, err
}

func outcomeLabel(o RunOutcome) metrics.RunOutcomeLabel {
	switch o {
	case OutcomeSuccess:
		return metrics.OutcomeSuccess
	case OutcomeCanceled:
		return metrics.OutcomeCanceled
	default:
		return metrics.OutcomeFailed
	}
}

// stageCheckout materializes the source tree at the triggering commit.
func (p *Pipeline) stageCheckout(ctx context.Context, rs *RunState) error {
	if local := p.cfg.Source.Local; local != "" {
		rs.SourceDir = local
		if commit, err := p.git.HeadCommit(local); err == nil {
			rs.Report.Commit = commit
		}
		slog.Debug("Using local source tree", logfields.Path(local))
		return nil
	}

	var commit string
	var err error
	if p.incremental {
		commit, err = p.git.UpdateSource(p.cfg.Source, p.ws.SourceDir())
	} else {
		commit, err = p.git.CloneSource(p.cfg.Source, p.ws.SourceDir())
	}
	if err != nil {
		return newFatalStageError("checkout", apperrors.CheckoutError(p.cfg.Source.URL, err))
	}

	rs.SourceDir = p.ws.SourceDir()
	rs.Report.Commit = commit
	return nil
}

// stagePreflight verifies the renderer runtime and its dependencies.
func (p *Pipeline) stagePreflight(ctx context.Context, rs *RunState) error {
	if err := p.runner.Preflight(ctx, rs.SourceDir); err != nil {
		return newFatalStageError("preflight", apperrors.PreflightError(err))
	}
	return nil
}

// stageRender invokes the external renderer.
func (p *Pipeline) stageRender(ctx context.Context, rs *RunState) error {
	outputDir, err := p.runner.Render(ctx, rs.SourceDir)
	if err != nil {
		return newFatalStageError("render", apperrors.RenderError(err))
	}
	rs.OutputDir = outputDir
	return nil
}

// stageInventory enumerates documents for the report. Never fatal: the
// pipeline does not gate on document metadata, that is the renderer's job.
func (p *Pipeline) stageInventory(ctx context.Context, rs *RunState) error {
	contentDir := filepath.Join(rs.SourceDir, p.cfg.Source.ContentDir)
	docs, err := content.Scan(contentDir)
	if err != nil {
		return newWarnStageError("inventory", fmt.Errorf("content inventory unavailable: %w", err))
	}
	rs.Docs = docs
	rs.Report.Documents = len(content.Published(docs))
	return nil
}

// stageStamp writes the domain marker into the rendered output. Runs after
// render so the renderer cannot overwrite it, before publish so the marker is
// always part of the published content set.
func (p *Pipeline) stageStamp(ctx context.Context, rs *RunState) error {
	if err := stamper.Write(rs.OutputDir, p.cfg.Publish.MarkerFile, p.cfg.Site.Domain); err != nil {
		return newFatalStageError("stamp", apperrors.StampError(err))
	}
	return nil
}

// stageVerify enforces hard publish preconditions.
func (p *Pipeline) stageVerify(ctx context.Context, rs *RunState) error {
	if err := stamper.Check(rs.OutputDir, p.cfg.Publish.MarkerFile, p.cfg.Site.Domain); err != nil {
		return newFatalStageError("verify", apperrors.VerifyError(err))
	}
	summary, err := sitecheck.Inspect(rs.OutputDir)
	if err != nil {
		return newFatalStageError("verify", apperrors.VerifyError(err))
	}
	rs.Report.Pages = len(summary.Pages)
	rs.Report.Assets = summary.Assets
	return nil
}

// stagePublish pushes the stamped output to the hosting branch.
func (p *Pipeline) stagePublish(ctx context.Context, rs *RunState) error {
	if p.skipPublish {
		slog.Info("Publish skipped by request", logfields.Path(rs.OutputDir))
		return nil
	}

	if err := p.ws.ResetPublishDir(); err != nil {
		return newFatalStageError("publish", apperrors.WorkspaceError("reset publish dir", err))
	}
	if err := p.pub.Publish(ctx, rs.OutputDir, p.ws.PublishDir(), rs.Report.Commit); err != nil {
		p.recorder.IncPublishResult(false)
		return newFatalStageError("publish", wrapPublishError(p.cfg.Publish.URL, err))
	}
	p.recorder.IncPublishResult(true)
	rs.Report.Published = true
	return nil
}

// wrapPublishError separates credential problems from other publish failures
// so the CLI can exit with the auth code and operators know which knob to
// turn.
func wrapPublishError(target string, err error) *apperrors.PipelineError {
	var authErr *gitrepo.AuthError
	if errors.As(err, &authErr) {
		return apperrors.PublishAuthError(target, err)
	}
	return apperrors.PublishError(target, err)
}
