package errors

import (
	stderrors "errors"
	"log/slog"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor determines the appropriate exit code for an error. The
// PipelineError may sit anywhere in the chain; stage failures arrive wrapped
// in the pipeline's stage error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return a.exitCodeFromPipeline(pe)
	}
	return 1
}

// exitCodeFromPipeline maps PipelineError categories to exit codes.
func (a *CLIErrorAdapter) exitCodeFromPipeline(err *PipelineError) int {
	switch err.Category {
	case CategoryValidation:
		return 2 // Invalid usage
	case CategoryAuth:
		return 5 // Auth error
	case CategoryConfig:
		return 7 // Configuration error
	case CategoryGit, CategoryPublish:
		return 8 // External system error
	case CategoryInternal:
		return 10 // Internal error
	case CategoryPreflight, CategoryRender, CategoryStamp, CategoryVerify, CategoryFileSystem:
		return 11 // Pipeline error
	case CategoryDaemon:
		return 12 // Runtime error
	default:
		return 1 // General error
	}
}

// Report logs the error with structured fields before the process exits.
func (a *CLIErrorAdapter) Report(err error) {
	if err == nil {
		return
	}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		attrs := []any{slog.String("category", string(pe.Category)), slog.String("severity", string(pe.Severity))}
		if a.verbose && pe.Cause != nil {
			attrs = append(attrs, slog.String("cause", pe.Cause.Error()))
		}
		a.logger.Error(pe.Message, attrs...)
		return
	}
	a.logger.Error(err.Error())
}
