// Package controller assembles transcode jobs from user input and drives
// them through a backend: validation, preset resolution, preflight,
// execution, progress rendering, exit-code mapping.
package controller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/offcast/offcast/internal/backend"
	"github.com/offcast/offcast/internal/config"
	"github.com/offcast/offcast/internal/observability"
	"github.com/offcast/offcast/internal/preflight"
	"github.com/offcast/offcast/internal/storage"
)

// RunRequest is the user-facing description of one job.
type RunRequest struct {
	InputPath   string
	BackendName string

	// PresetName selects a named argument template; Args overrides it
	// with a raw template. Exactly one of the two must be set.
	PresetName string
	Args       []string

	// Params override preset placeholder defaults.
	Params map[string]string
}

// Controller turns run requests into executed jobs.
type Controller struct {
	cfg      *config.Config
	presets  config.Presets
	registry *backend.Registry
	checker  *preflight.Checker
	ws       *storage.Workspace
	logger   *slog.Logger
	progress io.Writer
}

// New creates a controller. progress receives human-readable status lines;
// pass io.Discard to silence them.
func New(
	cfg *config.Config,
	presets config.Presets,
	registry *backend.Registry,
	checker *preflight.Checker,
	ws *storage.Workspace,
	logger *slog.Logger,
	progress io.Writer,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &Controller{
		cfg:      cfg,
		presets:  presets,
		registry: registry,
		checker:  checker,
		ws:       ws,
		logger:   logger,
		progress: progress,
	}
}

// Run executes one job end to end and returns the finished artifact.
func (c *Controller) Run(ctx context.Context, req RunRequest) (*backend.Result, error) {
	job, err := c.assembleJob(req)
	if err != nil {
		return nil, err
	}
	logger := observability.WithJobID(c.logger, job.ID)

	// Backend selection and preflight both happen before any side
	// effect: a typo'd backend name must not upload or encrypt anything.
	be, err := c.registry.Select(job.Backend)
	if err != nil {
		return nil, err
	}
	if err := c.checker.Run(ctx, job.Backend); err != nil {
		return nil, err
	}

	logger.Info("job starting",
		slog.String("backend", job.Backend),
		slog.String("input", job.InputPath),
		slog.String("output", job.OutputPath),
	)

	started := time.Now()
	result, err := be.Execute(ctx, job, c.renderProgress)
	if err != nil {
		logger.Error("job failed",
			slog.Duration("elapsed", time.Since(started)),
			slog.Any("error", err),
		)
		return nil, err
	}

	logger.Info("job complete",
		slog.Duration("elapsed", time.Since(started)),
		slog.String("artifact", result.ArtifactPath),
		slog.Int("segments", result.Segments),
	)
	fmt.Fprintf(c.progress, "done: %s\n", result.ArtifactPath)
	return result, nil
}

// assembleJob validates the request and builds the immutable job.
func (c *Controller) assembleJob(req RunRequest) (backend.Job, error) {
	info, err := os.Stat(req.InputPath)
	if err != nil {
		return backend.Job{}, &backend.Failure{
			Category: backend.CategoryValidation,
			Step:     "input",
			ExitCode: -1,
			Detail:   req.InputPath,
			Err:      err,
		}
	}
	if info.IsDir() {
		return backend.Job{}, &backend.Failure{
			Category: backend.CategoryValidation,
			Step:     "input",
			ExitCode: -1,
			Detail:   req.InputPath + " is a directory",
		}
	}

	template, params, err := c.resolveTemplate(req)
	if err != nil {
		return backend.Job{}, err
	}

	backendName := req.BackendName
	if backendName == "" {
		backendName = backend.LocalName
	}

	return backend.Job{
		ID:         ulid.Make().String(),
		InputPath:  req.InputPath,
		OutputPath: filepath.Join(c.ws.OutputDir(), storage.OutputName(req.InputPath)),
		Template:   template,
		Params:     params,
		Backend:    backendName,
		SizeLimit:  c.cfg.Split.SizeLimit.Bytes(),
	}, nil
}

// resolveTemplate picks the argument template: raw args when given, a named
// preset otherwise. Preset parameter defaults merge under the request's.
func (c *Controller) resolveTemplate(req RunRequest) ([]string, map[string]string, error) {
	if len(req.Args) > 0 {
		if req.PresetName != "" {
			return nil, nil, &backend.Failure{
				Category: backend.CategoryConfiguration,
				Step:     "template",
				ExitCode: -1,
				Detail:   "preset and raw args are mutually exclusive",
			}
		}
		return req.Args, req.Params, nil
	}

	name := req.PresetName
	if name == "" {
		return nil, nil, &backend.Failure{
			Category: backend.CategoryConfiguration,
			Step:     "template",
			ExitCode: -1,
			Detail:   "no preset or args given; available presets: " + strings.Join(c.presets.Names(), ", "),
		}
	}

	preset, ok := c.presets.Get(name)
	if !ok {
		return nil, nil, &backend.Failure{
			Category: backend.CategoryConfiguration,
			Step:     "template",
			ExitCode: -1,
			Detail:   fmt.Sprintf("unknown preset %q; available: %s", name, strings.Join(c.presets.Names(), ", ")),
		}
	}

	params := make(map[string]string, len(preset.Params)+len(req.Params))
	for k, v := range preset.Params {
		params[k] = v
	}
	for k, v := range req.Params {
		params[k] = v
	}
	return preset.Args, params, nil
}

// renderProgress writes progress events as terminal lines.
func (c *Controller) renderProgress(ev backend.ProgressEvent) {
	if ev.TotalSegments > 0 {
		fmt.Fprintf(c.progress, "[%s %d/%d] %s\n", ev.Stage, ev.Segment, ev.TotalSegments, ev.Message)
		return
	}
	fmt.Fprintf(c.progress, "[%s] %s\n", ev.Stage, ev.Message)
}
