package pipeline

import (
	"time"
)

// RunOutcome is the typed enumeration of final run result states.
type RunOutcome string

const (
	OutcomeSuccess  RunOutcome = "success"
	OutcomeFailed   RunOutcome = "failed"
	OutcomeCanceled RunOutcome = "canceled"
)

// RunReport captures high-level metrics about one pipeline run.
type RunReport struct {
	RunID     string
	Branch    string
	Commit    string
	Start     time.Time
	End       time.Time
	Outcome   RunOutcome
	Errors    []error // fatal errors causing run abortion (at most one today)
	Warnings  []error // non-fatal issues (e.g., unreadable document metadata)
	Documents int     // content documents found by the inventory stage
	Pages     int     // HTML pages in the rendered output
	Assets    int     // non-HTML files in the rendered output
	Published bool    // true once the hosting branch was updated

	StageDurations  map[string]time.Duration
	StageErrorKinds map[string]StageErrorKind
}

// newRunReport constructs an empty report for a run.
func newRunReport(runID, branch string) *RunReport {
	return &RunReport{
		RunID:           runID,
		Branch:          branch,
		Start:           time.Now(),
		StageDurations:  make(map[string]time.Duration),
		StageErrorKinds: make(map[string]StageErrorKind),
	}
}

func (r *RunReport) recordError(stage string, se *StageError) {
	r.Errors = append(r.Errors, se)
	r.StageErrorKinds[stage] = se.Kind
}

// finalize stamps the end time and derives the outcome from recorded errors.
func (r *RunReport) finalize() {
	r.End = time.Now()
	switch {
	case len(r.Errors) == 0:
		r.Outcome = OutcomeSuccess
	case r.hasCanceled():
		r.Outcome = OutcomeCanceled
	default:
		r.Outcome = OutcomeFailed
	}
}

func (r *RunReport) hasCanceled() bool {
	for _, kind := range r.StageErrorKinds {
		if kind == StageErrorCanceled {
			return true
		}
	}
	return false
}

// Duration returns the total run duration.
func (r *RunReport) Duration() time.Duration { return r.End.Sub(r.Start) }

// FirstError returns the fatal error that aborted the run, if any.
func (r *RunReport) FirstError() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}
