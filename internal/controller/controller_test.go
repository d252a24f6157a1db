package controller

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offcast/offcast/internal/backend"
	"github.com/offcast/offcast/internal/config"
	"github.com/offcast/offcast/internal/preflight"
	"github.com/offcast/offcast/internal/storage"
)

// recordingBackend captures the job it was handed and scripts its outcome.
type recordingBackend struct {
	name string
	job  backend.Job
	err  error
}

func (r *recordingBackend) Name() string { return r.name }

func (r *recordingBackend) Execute(_ context.Context, job backend.Job, onProgress backend.ProgressFunc) (*backend.Result, error) {
	r.job = job
	if r.err != nil {
		return nil, r.err
	}
	if onProgress != nil {
		onProgress(backend.ProgressEvent{Stage: "transcode", Message: "working"})
		onProgress(backend.ProgressEvent{Stage: "split", Message: "cutting", Segment: 2, TotalSegments: 3})
	}
	return &backend.Result{ArtifactPath: job.OutputPath, Segments: 1}, nil
}

type fixture struct {
	controller *Controller
	local      *recordingBackend
	input      string
	out        *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	// Preflight needs ffmpeg and ffprobe resolvable.
	binDir := filepath.Join(base, "bin")
	require.NoError(t, os.MkdirAll(binDir, 0o750))
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		require.NoError(t, os.WriteFile(filepath.Join(binDir, name), []byte("#!/bin/sh\n"), 0o755))
	}
	t.Setenv("PATH", binDir)

	cfg := &config.Config{
		Storage: config.StorageConfig{
			WorkDir:   filepath.Join(base, "work"),
			OutputDir: filepath.Join(base, "out"),
		},
		Split: config.SplitConfig{SizeLimit: config.ByteSize(2 << 30)},
	}

	ws, err := storage.NewWorkspace(cfg.Storage.WorkDir, cfg.Storage.OutputDir)
	require.NoError(t, err)

	local := &recordingBackend{name: backend.LocalName}
	registry := backend.NewRegistry()
	registry.Register(local)

	presets, err := config.LoadPresets("")
	require.NoError(t, err)

	input := filepath.Join(base, "movie.mkv")
	require.NoError(t, os.WriteFile(input, []byte("media"), 0o640))

	out := &bytes.Buffer{}
	controller := New(cfg, presets, registry, preflight.NewChecker(cfg, nil), ws, nil, out)

	return &fixture{controller: controller, local: local, input: input, out: out}
}

func TestRunWithPreset(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.controller.Run(context.Background(), RunRequest{
		InputPath:  fx.input,
		PresetName: "h265",
	})
	require.NoError(t, err)

	job := fx.local.job
	assert.NotEmpty(t, job.ID)
	assert.Len(t, job.ID, 26, "job IDs are ULIDs")
	assert.Equal(t, fx.input, job.InputPath)
	assert.Equal(t, "movie-processed.mkv", filepath.Base(job.OutputPath))
	assert.Equal(t, []string{"-c:v", "libx265", "-crf", "{crf}", "-preset", "medium", "-c:a", "copy"}, job.Template)
	assert.Equal(t, "28", job.Params["crf"], "preset defaults apply")
	assert.Equal(t, int64(2<<30), job.SizeLimit)
	assert.Equal(t, backend.LocalName, job.Backend)
	assert.Equal(t, job.OutputPath, result.ArtifactPath)
}

func TestRunParamOverridesPresetDefault(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.controller.Run(context.Background(), RunRequest{
		InputPath:  fx.input,
		PresetName: "h265",
		Params:     map[string]string{"crf": "20"},
	})
	require.NoError(t, err)
	assert.Equal(t, "20", fx.local.job.Params["crf"])
}

func TestRunWithRawArgs(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.controller.Run(context.Background(), RunRequest{
		InputPath: fx.input,
		Args:      []string{"-vf", "scale=1280:-2", "-c:a", "copy"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"-vf", "scale=1280:-2", "-c:a", "copy"}, fx.local.job.Template)
}

func TestRunRequestValidation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	t.Run("missing input", func(t *testing.T) {
		_, err := fx.controller.Run(ctx, RunRequest{InputPath: "/nope.mkv", PresetName: "remux"})
		cat, ok := backend.CategoryOf(err)
		require.True(t, ok)
		assert.Equal(t, backend.CategoryValidation, cat)
	})

	t.Run("directory input", func(t *testing.T) {
		_, err := fx.controller.Run(ctx, RunRequest{InputPath: t.TempDir(), PresetName: "remux"})
		cat, ok := backend.CategoryOf(err)
		require.True(t, ok)
		assert.Equal(t, backend.CategoryValidation, cat)
	})

	t.Run("unknown preset", func(t *testing.T) {
		_, err := fx.controller.Run(ctx, RunRequest{InputPath: fx.input, PresetName: "av1-dreams"})
		cat, ok := backend.CategoryOf(err)
		require.True(t, ok)
		assert.Equal(t, backend.CategoryConfiguration, cat)
		assert.Contains(t, err.Error(), "h264", "the error names the available presets")
	})

	t.Run("neither preset nor args", func(t *testing.T) {
		_, err := fx.controller.Run(ctx, RunRequest{InputPath: fx.input})
		cat, ok := backend.CategoryOf(err)
		require.True(t, ok)
		assert.Equal(t, backend.CategoryConfiguration, cat)
	})

	t.Run("preset and args together", func(t *testing.T) {
		_, err := fx.controller.Run(ctx, RunRequest{
			InputPath:  fx.input,
			PresetName: "remux",
			Args:       []string{"-c", "copy"},
		})
		cat, ok := backend.CategoryOf(err)
		require.True(t, ok)
		assert.Equal(t, backend.CategoryConfiguration, cat)
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := fx.controller.Run(ctx, RunRequest{
			InputPath:   fx.input,
			PresetName:  "remux",
			BackendName: "cloud",
		})
		cat, ok := backend.CategoryOf(err)
		require.True(t, ok)
		assert.Equal(t, backend.CategoryConfiguration, cat)
	})
}

func TestRunFailurePropagates(t *testing.T) {
	fx := newFixture(t)
	fx.local.err = backend.NewFailure(backend.CategoryProcess, "transcode", errors.New("exit status 1"))

	_, err := fx.controller.Run(context.Background(), RunRequest{
		InputPath:  fx.input,
		PresetName: "remux",
	})
	assert.Equal(t, 12, backend.ExitCodeFor(err))
}

func TestRunProgressRendering(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.controller.Run(context.Background(), RunRequest{
		InputPath:  fx.input,
		PresetName: "remux",
	})
	require.NoError(t, err)

	rendered := fx.out.String()
	assert.Contains(t, rendered, "[transcode] working")
	assert.Contains(t, rendered, "[split 2/3] cutting")
	assert.Contains(t, rendered, "done: ")
}
