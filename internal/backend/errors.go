package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies a job failure by where in the pipeline it happened.
type Category string

const (
	// CategoryConfiguration covers invalid or missing configuration
	// detected before any work starts.
	CategoryConfiguration Category = "configuration_error"

	// CategoryTemplate covers command templates that fail to resolve or
	// carry unsafe parameter values.
	CategoryTemplate Category = "template_error"

	// CategoryValidation covers resolved commands rejected by the
	// program allow-list or argument validation.
	CategoryValidation Category = "validation_error"

	// CategoryPrepare covers failures staging the input for execution,
	// such as encryption or upload.
	CategoryPrepare Category = "prepare_failed"

	// CategoryDispatch covers failures submitting the remote job.
	CategoryDispatch Category = "dispatch_failed"

	// CategoryCorrelationTimeout means the dispatched run never appeared
	// in the remote listing within the correlation window. The run may
	// still be executing remotely.
	CategoryCorrelationTimeout Category = "correlation_timeout"

	// CategoryCorrelationAmbiguous means more than one run carried the
	// correlation token. Monitoring the wrong run would be worse than
	// failing, so this is terminal.
	CategoryCorrelationAmbiguous Category = "correlation_ambiguous"

	// CategoryMonitoringLost means the poll loop exhausted its failure
	// budget. The remote job's final state is unknown, not failed.
	CategoryMonitoringLost Category = "monitoring_lost"

	// CategoryRemoteJobFailed means the remote run completed with a
	// failing conclusion.
	CategoryRemoteJobFailed Category = "remote_job_failed"

	// CategoryRetrieve covers failures downloading or decrypting the
	// finished artifact after a successful remote run.
	CategoryRetrieve Category = "retrieve_failed"

	// CategoryProcess covers local ffmpeg executions that exited
	// non-zero or were killed.
	CategoryProcess Category = "process_failed"

	// CategoryEnvironment covers missing binaries, insufficient disk,
	// and other host-level preconditions.
	CategoryEnvironment Category = "environment_error"
)

// exitCodes maps each failure category to its process exit code. Exit code
// 1 is reserved for uncategorized errors and 0 for success.
var exitCodes = map[Category]int{
	CategoryConfiguration:        2,
	CategoryTemplate:             3,
	CategoryValidation:           4,
	CategoryPrepare:              5,
	CategoryDispatch:             6,
	CategoryCorrelationTimeout:   7,
	CategoryCorrelationAmbiguous: 8,
	CategoryMonitoringLost:       9,
	CategoryRemoteJobFailed:      10,
	CategoryRetrieve:             11,
	CategoryProcess:              12,
	CategoryEnvironment:          13,
}

// ExitCode returns the process exit code for a category.
func (c Category) ExitCode() int {
	if code, ok := exitCodes[c]; ok {
		return code
	}
	return 1
}

// Failure is a categorized job failure carrying enough context to act on it:
// the correlation token and run ID for remote failures, the failing step,
// and the subprocess exit code for local ones.
type Failure struct {
	Category Category

	// Token is the correlation token, set for remote failures.
	Token string

	// RunID is the remote run identifier, set once correlation found it.
	RunID string

	// Step names the pipeline step that failed.
	Step string

	// ExitCode is the subprocess exit code for process failures, -1
	// when not applicable.
	ExitCode int

	Detail string
	Err    error
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s", f.Category)
	if f.Step != "" {
		fmt.Fprintf(&b, " at %s", f.Step)
	}
	if f.Detail != "" {
		fmt.Fprintf(&b, ": %s", f.Detail)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewFailure creates a categorized failure.
func NewFailure(category Category, step string, err error) *Failure {
	return &Failure{Category: category, Step: step, ExitCode: -1, Err: err}
}

// CategoryOf extracts the failure category from an error chain. Errors that
// carry no Failure are uncategorized.
func CategoryOf(err error) (Category, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Category, true
	}
	return "", false
}

// ExitCodeFor returns the process exit code for an error: 0 for nil, the
// category's code when categorized, 1 otherwise.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if cat, ok := CategoryOf(err); ok {
		return cat.ExitCode()
	}
	return 1
}
