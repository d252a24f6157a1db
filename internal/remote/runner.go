// Package remote dispatches transcode jobs to a fire-and-forget remote
// runner and supervises them from the outside. The dispatch channel gives
// no job handle back, so every job carries a correlation token that the
// runner surfaces in its run listing; discovery, monitoring, and retrieval
// all hang off that token.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/offcast/offcast/internal/storage"
)

// ErrCancelUnsupported is returned by runners that cannot cancel a
// dispatched run. Callers treat it as a tolerated no-op.
var ErrCancelUnsupported = errors.New("run cancellation not supported")

// DispatchRequest carries everything the remote job needs to execute.
type DispatchRequest struct {
	// Token is the correlation token. The runner must surface it in the
	// run's display label; it is the only link back to this dispatch.
	Token string

	// Input is the uploaded encrypted input artifact.
	Input storage.Ref

	// Output is where the remote job must publish its result.
	Output storage.Ref

	// Recipient is the key the remote job encrypts its result to.
	Recipient string

	// Args is the ffmpeg argument template the remote job applies.
	Args []string
}

// RunSummary is one entry of the remote run listing.
type RunSummary struct {
	ID        string
	Label     string
	CreatedAt time.Time
}

// StatusReport is one point-in-time observation of a run.
type StatusReport struct {
	// Status is the lifecycle phase: queued, in_progress, completed.
	Status string

	// Conclusion is set once Status is completed: success, failure,
	// cancelled, timed_out.
	Conclusion string

	// Step names the currently executing step, when known.
	Step string

	// URL links to the run for human inspection.
	URL string
}

// Finished reports whether the run reached a terminal state.
func (s StatusReport) Finished() bool {
	return s.Status == "completed"
}

// Succeeded reports whether a finished run concluded successfully.
func (s StatusReport) Succeeded() bool {
	return s.Finished() && s.Conclusion == "success"
}

// Runner is the remote execution channel. Dispatch is acknowledged-or-error
// only: a nil return means the request was accepted, nothing more.
type Runner interface {
	Dispatch(ctx context.Context, req DispatchRequest) error
	ListRecentRuns(ctx context.Context, since time.Time) ([]RunSummary, error)
	GetRunStatus(ctx context.Context, runID string) (StatusReport, error)

	// CancelRun requests best-effort cancellation. Runners without a
	// cancel channel return ErrCancelUnsupported.
	CancelRun(ctx context.Context, runID string) error
}
