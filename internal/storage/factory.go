package storage

import (
	"fmt"
	"log/slog"

	"github.com/offcast/offcast/internal/config"
)

// NewStore builds the artifact store selected by configuration. ghPath is
// forwarded to the release driver so it shares the remote backend's gh
// binary.
func NewStore(cfg config.ArtifactsConfig, ghPath string, logger *slog.Logger) (Store, error) {
	maxSize := cfg.MaxUploadSize.Bytes()

	switch cfg.Driver {
	case S3DriverName:
		return NewS3Store(cfg.S3, maxSize, logger)
	case ReleaseDriverName:
		return NewReleaseStore(ghPath, cfg.Release.Repo, maxSize, logger)
	default:
		return nil, fmt.Errorf("unknown artifact driver %q", cfg.Driver)
	}
}
