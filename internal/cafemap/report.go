package cafemap

import (
	"sync"
	"time"
)

// RunReport is the serializable summary of one pipeline run. Plain value
// semantics; the worker pool aggregates into a RunRecorder and snapshots
// one of these out.
type RunReport struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Finished  time.Time `json:"finished_at,omitzero"`

	PostsProcessed int `json:"posts_processed"`
	ConfirmedAuto  int `json:"confirmed_auto"`
	NeedsReview    int `json:"needs_review"`
	Unresolved     int `json:"unresolved"`
	Failed         int `json:"failed"`
}

// RunRecorder aggregates counters for one pipeline run. Safe for concurrent
// use by the worker pool.
type RunRecorder struct {
	mu      sync.Mutex
	report  RunReport
	summary ErrorSummary
}

// NewRunRecorder starts a recorder for the given run.
func NewRunRecorder(runID string, startedAt time.Time) *RunRecorder {
	return &RunRecorder{report: RunReport{RunID: runID, StartedAt: startedAt}}
}

// Observe records one candidate outcome.
func (r *RunRecorder) Observe(c Confidence) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.PostsProcessed++
	switch c {
	case ConfidenceConfirmedAuto:
		r.report.ConfirmedAuto++
	case ConfidenceNeedsReview:
		r.report.NeedsReview++
	case ConfidenceUnresolved:
		r.report.Unresolved++
	}
}

// ObserveFailure records a post that could not be processed at all.
func (r *RunRecorder) ObserveFailure(err error) {
	r.mu.Lock()
	r.report.PostsProcessed++
	r.report.Failed++
	r.mu.Unlock()
	r.summary.Add(err)
}

// Finish stamps the completion time.
func (r *RunRecorder) Finish(t time.Time) {
	r.mu.Lock()
	r.report.Finished = t
	r.mu.Unlock()
}

// Snapshot returns a copy safe to serialize while workers are running.
func (r *RunRecorder) Snapshot() RunReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// Failures returns the accumulated non-fatal errors.
func (r *RunRecorder) Failures() []error {
	return r.summary.Errors()
}
