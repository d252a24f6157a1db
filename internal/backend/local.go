package backend

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/offcast/offcast/internal/ffmpeg"
)

// LocalName is the registry name of the local ffmpeg backend.
const LocalName = "local"

// stderrTailLines bounds the stderr tail kept for failure diagnostics.
const stderrTailLines = 5

// Local executes jobs with ffmpeg on the current host. Split inputs are
// processed one segment at a time and reassembled with a stream-copy
// concat, so a successful job always yields a single artifact.
type Local struct {
	builder *ffmpeg.Builder
	workDir string
	logger  *slog.Logger
}

// NewLocal creates the local backend. workDir holds per-job scratch
// directories for segment outputs.
func NewLocal(builder *ffmpeg.Builder, workDir string, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{builder: builder, workDir: workDir, logger: logger}
}

func (l *Local) Name() string { return LocalName }

// Execute builds the command plan for the job and runs it to completion.
func (l *Local) Execute(ctx context.Context, job Job, onProgress ProgressFunc) (*Result, error) {
	emit := func(ev ProgressEvent) {
		if onProgress != nil {
			onProgress(ev)
		}
	}

	info, err := os.Stat(job.InputPath)
	if err != nil {
		return nil, &Failure{
			Category: CategoryValidation,
			Step:     "input",
			ExitCode: -1,
			Detail:   "input file not accessible",
			Err:      err,
		}
	}

	jobDir := filepath.Join(l.workDir, job.ID)
	if err := os.MkdirAll(jobDir, 0o750); err != nil {
		return nil, NewFailure(CategoryEnvironment, "scratch directory", err)
	}
	defer os.RemoveAll(jobDir)

	plan, err := l.builder.Build(ctx, ffmpeg.BuildRequest{
		InputPath:  job.InputPath,
		OutputPath: job.OutputPath,
		Template:   job.Template,
		Params:     job.Params,
		InputSize:  info.Size(),
		SizeLimit:  job.SizeLimit,
		SegmentDir: jobDir,
	})
	if err != nil {
		return nil, classifyBuildError(err)
	}

	if !plan.Split() {
		emit(ProgressEvent{Stage: "transcode", Message: "processing " + filepath.Base(job.InputPath)})
		if err := l.runSpec(ctx, plan.Specs[0], emit, 0, 0); err != nil {
			removeIfExists(job.OutputPath)
			return nil, err
		}
		return &Result{ArtifactPath: job.OutputPath, Segments: 1}, nil
	}

	total := len(plan.Specs)
	l.logger.Info("input exceeds size limit, cutting at keyframes",
		slog.String("job_id", job.ID),
		slog.Int("segments", total),
	)

	for i, spec := range plan.Specs {
		emit(ProgressEvent{
			Stage:         "split",
			Message:       fmt.Sprintf("cutting segment %d of %d", i+1, total),
			Segment:       i + 1,
			TotalSegments: total,
		})
		if err := l.runSpec(ctx, spec, emit, i+1, total); err != nil {
			return nil, err
		}
	}

	listPath := filepath.Join(jobDir, "concat.txt")
	if err := ffmpeg.WriteConcatList(listPath, plan.SegmentOutputs); err != nil {
		return nil, NewFailure(CategoryProcess, "concat list", err)
	}

	concat, err := l.builder.ConcatSpec(listPath, job.OutputPath)
	if err != nil {
		return nil, classifyBuildError(err)
	}

	emit(ProgressEvent{Stage: "concat", Message: "reassembling segments"})
	if err := l.runSpec(ctx, concat, emit, 0, 0); err != nil {
		removeIfExists(job.OutputPath)
		return nil, err
	}

	return &Result{ArtifactPath: job.OutputPath, Segments: total}, nil
}

// runSpec executes one command, forwarding stderr lines as progress events
// and sampling the resource usage of the subprocess while it runs.
func (l *Local) runSpec(ctx context.Context, spec ffmpeg.CommandSpec, emit ProgressFunc, segment, total int) error {
	l.logger.Debug("executing", slog.String("command", spec.String()))

	cmd := exec.CommandContext(ctx, spec.Program, spec.Args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return NewFailure(CategoryProcess, "stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return &Failure{
			Category: CategoryEnvironment,
			Step:     "process start",
			ExitCode: -1,
			Detail:   spec.Program,
			Err:      err,
		}
	}

	monitor := ffmpeg.NewProcessMonitor(cmd.Process.Pid)
	monitor.Start()
	defer monitor.Stop()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var tail []string
	for scanner.Scan() {
		line := scanner.Text()
		if len(tail) == stderrTailLines {
			copy(tail, tail[1:])
			tail[len(tail)-1] = line
		} else {
			tail = append(tail, line)
		}
		emit(ProgressEvent{
			Stage:         "transcode",
			Message:       line,
			Segment:       segment,
			TotalSegments: total,
		})
	}

	if err := cmd.Wait(); err != nil {
		removeIfExists(spec.OutputPath)

		if ctx.Err() != nil {
			return &Failure{
				Category: CategoryProcess,
				Step:     "transcode",
				ExitCode: -1,
				Detail:   "cancelled",
				Err:      ctx.Err(),
			}
		}

		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		detail := strings.Join(tail, "\n")
		stats := monitor.Stats()
		l.logger.Error("process failed",
			slog.String("command", spec.Program),
			slog.Int("exit_code", exitCode),
			slog.String("stderr", detail),
			slog.Uint64("rss_bytes", stats.MemoryRSSBytes),
		)
		return &Failure{
			Category: CategoryProcess,
			Step:     "transcode",
			ExitCode: exitCode,
			Detail:   detail,
			Err:      err,
		}
	}

	return nil
}

// classifyBuildError maps command-construction errors onto the failure
// taxonomy.
func classifyBuildError(err error) error {
	var terr *ffmpeg.TemplateError
	if errors.As(err, &terr) {
		return &Failure{Category: CategoryTemplate, Step: "template", ExitCode: -1, Err: err}
	}
	var verr *ffmpeg.ValidationError
	if errors.As(err, &verr) {
		return &Failure{Category: CategoryValidation, Step: "command validation", ExitCode: -1, Err: err}
	}
	return NewFailure(CategoryProcess, "command build", err)
}

// removeIfExists deletes a possibly partial output. The artifact either
// exists complete or not at all.
func removeIfExists(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err == nil {
		os.Remove(path)
	}
}
