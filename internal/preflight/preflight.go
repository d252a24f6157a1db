// Package preflight verifies the host environment before a job starts:
// required binaries resolvable, enough free disk in the working
// directories, and a sane view of available memory. Failing early here
// beats failing an hour into a transcode.
package preflight

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/offcast/offcast/internal/backend"
	"github.com/offcast/offcast/internal/config"
)

// Checker runs environment checks for a configured job.
type Checker struct {
	cfg    *config.Config
	logger *slog.Logger
}

// NewChecker creates a preflight checker.
func NewChecker(cfg *config.Config, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{cfg: cfg, logger: logger}
}

// Run performs all checks relevant to the selected backend. The first
// failing check aborts with an environment failure; nothing downstream can
// recover from a missing binary or a full disk.
func (c *Checker) Run(ctx context.Context, backendName string) error {
	for _, bin := range c.requiredBinaries(backendName) {
		if bin.path == "" {
			bin.path = bin.name
		}
		if _, err := exec.LookPath(bin.path); err != nil {
			return envFailure(fmt.Errorf("%s not found (looked for %q): %w", bin.name, bin.path, err))
		}
	}

	minFree := c.cfg.Storage.MinFreeDisk.Bytes()
	for _, dir := range []string{c.cfg.Storage.WorkDir, c.cfg.Storage.OutputDir} {
		if err := c.checkDisk(ctx, dir, uint64(minFree)); err != nil {
			return err
		}
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		c.logger.Debug("host memory",
			slog.Uint64("available_bytes", vm.Available),
			slog.Float64("used_percent", vm.UsedPercent),
		)
	}

	return nil
}

type binary struct {
	name string
	path string
}

func (c *Checker) requiredBinaries(backendName string) []binary {
	bins := []binary{
		{name: "ffmpeg", path: c.cfg.FFmpeg.BinaryPath},
		{name: "ffprobe", path: c.cfg.FFmpeg.ProbePath},
	}
	if backendName == "actions" {
		bins = append(bins,
			binary{name: "gh", path: c.cfg.Remote.GhPath},
			binary{name: "gpg", path: c.cfg.Crypto.GpgPath},
		)
		if c.cfg.Crypto.SanitizeMetadata {
			bins = append(bins, binary{name: "exiftool", path: c.cfg.Crypto.ExiftoolPath})
		}
	}
	return bins
}

func (c *Checker) checkDisk(ctx context.Context, dir string, minFree uint64) error {
	if dir == "" || minFree == 0 {
		return nil
	}

	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		// The directory may not exist yet; the workspace creates it.
		c.logger.Debug("disk usage unavailable", slog.String("dir", dir), slog.Any("error", err))
		return nil
	}

	if usage.Free < minFree {
		return envFailure(fmt.Errorf("%s has %d bytes free, need at least %d", dir, usage.Free, minFree))
	}

	c.logger.Debug("disk preflight",
		slog.String("dir", dir),
		slog.Uint64("free_bytes", usage.Free),
	)
	return nil
}

func envFailure(err error) error {
	return backend.NewFailure(backend.CategoryEnvironment, "preflight", err)
}
