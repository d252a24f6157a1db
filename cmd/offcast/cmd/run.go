package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/offcast/offcast/internal/backend"
	"github.com/offcast/offcast/internal/config"
	"github.com/offcast/offcast/internal/controller"
	"github.com/offcast/offcast/internal/crypto"
	"github.com/offcast/offcast/internal/ffmpeg"
	"github.com/offcast/offcast/internal/observability"
	"github.com/offcast/offcast/internal/preflight"
	"github.com/offcast/offcast/internal/remote"
	"github.com/offcast/offcast/internal/storage"
)

var (
	runBackend string
	runPreset  string
	runArgs    string
	runParams  []string
)

var runCmd = &cobra.Command{
	Use:   "run <input>",
	Short: "Transcode a media file",
	Long: `Run a transcode job on the given input file.

The argument template comes from a named preset (--preset) or a raw
argument string (--args). Template placeholders like {crf} resolve from
preset defaults and --param overrides; values containing shell
metacharacters are rejected outright.

Examples:
  offcast run movie.mkv --preset h265
  offcast run movie.mkv --preset h265 --param crf=20
  offcast run movie.mkv --args "-vf scale=1280:-2 -c:a copy"
  offcast run movie.mkv --backend actions --preset h265`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runJob,
}

func init() {
	runCmd.Flags().StringVar(&runBackend, "backend", backend.LocalName, "execution backend (local, actions)")
	runCmd.Flags().StringVar(&runPreset, "preset", "", "named argument preset")
	runCmd.Flags().StringVar(&runArgs, "args", "", "raw ffmpeg output arguments (overrides --preset)")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "template parameter as key=value (repeatable)")
	rootCmd.AddCommand(runCmd)
}

func runJob(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return backend.NewFailure(backend.CategoryConfiguration, "config", err)
	}
	applyStorageDefaults(cfg)

	presets, err := config.LoadPresets(cfg.Presets.File)
	if err != nil {
		return backend.NewFailure(backend.CategoryConfiguration, "presets", err)
	}

	params, err := parseParams(runParams)
	if err != nil {
		return backend.NewFailure(backend.CategoryConfiguration, "params", err)
	}

	logger := slog.Default()

	ws, err := storage.NewWorkspace(cfg.Storage.WorkDir, cfg.Storage.OutputDir)
	if err != nil {
		return backend.NewFailure(backend.CategoryEnvironment, "workspace", err)
	}

	registry, err := buildRegistry(cfg, ws, logger)
	if err != nil {
		return err
	}

	ctrl := controller.New(cfg, presets, registry,
		preflight.NewChecker(cfg, logger), ws, logger, cmd.OutOrStdout())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := controller.RunRequest{
		InputPath:   args[0],
		BackendName: runBackend,
		PresetName:  runPreset,
		Params:      params,
	}
	if runArgs != "" {
		req.Args = strings.Fields(runArgs)
		req.PresetName = ""
	}

	_, err = ctrl.Run(ctx, req)
	return err
}

// buildRegistry wires the local backend, and the remote one when a runner
// repository is configured.
func buildRegistry(cfg *config.Config, ws *storage.Workspace, logger *slog.Logger) (*backend.Registry, error) {
	prober := ffmpeg.NewProber(orDefault(cfg.FFmpeg.ProbePath, "ffprobe"))
	if cfg.FFmpeg.ProbeTimeout > 0 {
		prober = prober.WithTimeout(cfg.FFmpeg.ProbeTimeout)
	}
	builder := ffmpeg.NewBuilder(orDefault(cfg.FFmpeg.BinaryPath, "ffmpeg"), prober,
		observability.WithComponent(logger, "ffmpeg"))

	registry := backend.NewRegistry()
	registry.Register(backend.NewLocal(builder, cfg.Storage.WorkDir,
		observability.WithComponent(logger, "local")))

	if cfg.Remote.Repo == "" {
		return registry, nil
	}

	runner, err := remote.NewActionsClient(cfg.Remote, observability.WithComponent(logger, "actions"))
	if err != nil {
		return nil, backend.NewFailure(backend.CategoryConfiguration, "remote", err)
	}

	artifacts := cfg.Artifacts
	artifacts.Release.Repo = cfg.ReleaseRepo()
	store, err := storage.NewStore(artifacts, orDefault(cfg.Remote.GhPath, "gh"),
		observability.WithComponent(logger, "storage"))
	if err != nil {
		return nil, backend.NewFailure(backend.CategoryConfiguration, "storage", err)
	}

	cipher := crypto.NewGPG(
		orDefault(cfg.Crypto.GpgPath, "gpg"),
		orDefault(cfg.Crypto.ExiftoolPath, "exiftool"),
		cfg.Crypto.SanitizeMetadata,
		observability.WithComponent(logger, "crypto"),
	)

	registry.Register(remote.NewOrchestrator(runner, store, cipher, ws,
		cfg.Remote, cfg.Crypto, observability.WithComponent(logger, "remote")))
	return registry, nil
}

// applyStorageDefaults fills directory defaults that depend on the host.
func applyStorageDefaults(cfg *config.Config) {
	if cfg.Storage.WorkDir == "" {
		cfg.Storage.WorkDir = filepath.Join(os.TempDir(), "offcast")
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "."
	}
}

func parseParams(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

func orDefault(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
