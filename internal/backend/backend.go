// Package backend defines the transcode execution contract and the failure
// taxonomy shared by the local and remote execution paths.
package backend

import (
	"context"
)

// Job is one transcode request, fully resolved before execution starts.
type Job struct {
	// ID is the unique job identifier, assigned at submission.
	ID string

	InputPath  string
	OutputPath string

	// Template is the ordered ffmpeg output-argument template; Params
	// resolve its {placeholder} references.
	Template []string
	Params   map[string]string

	// Backend names the execution backend to use.
	Backend string

	// SizeLimit caps the input size a single command may process. Larger
	// inputs are cut into keyframe-aligned segments. Non-positive
	// disables splitting.
	SizeLimit int64
}

// Result is the outcome of a successfully executed job.
type Result struct {
	// ArtifactPath is the local path of the finished output artifact.
	ArtifactPath string

	// Segments reports how many pieces the input was cut into; 1 means
	// the input was processed whole.
	Segments int
}

// ProgressEvent is one unit of execution progress, suitable for display.
type ProgressEvent struct {
	Stage   string
	Message string

	// Segment and TotalSegments are set while a split job is running;
	// both are zero otherwise.
	Segment       int
	TotalSegments int
}

// ProgressFunc receives progress events during execution. Implementations
// must not block; events may be dropped but never reordered.
type ProgressFunc func(ProgressEvent)

// Backend executes a transcode job to completion.
type Backend interface {
	// Name returns the backend's registry name.
	Name() string

	// Execute runs the job and returns the finished artifact. A
	// cancelled context stops execution and returns ctx.Err wrapped in
	// a Failure. onProgress may be nil.
	Execute(ctx context.Context, job Job, onProgress ProgressFunc) (*Result, error)
}
