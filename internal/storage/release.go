package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
)

// ReleaseDriverName selects the GitHub release artifact store.
const ReleaseDriverName = "release"

// ReleaseStore exchanges artifacts through GitHub releases on a dedicated
// repository via the gh CLI. Each upload creates one release whose tag is
// the ref key; the remote job attaches its output to the same release.
type ReleaseStore struct {
	ghPath  string
	repo    string
	maxSize int64
	logger  *slog.Logger
}

// NewReleaseStore creates the release driver. repo is the owner/name of the
// exchange repository.
func NewReleaseStore(ghPath, repo string, maxSize int64, logger *slog.Logger) (*ReleaseStore, error) {
	if repo == "" {
		return nil, fmt.Errorf("release store: repository is required")
	}
	if ghPath == "" {
		ghPath = "gh"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReleaseStore{ghPath: ghPath, repo: repo, maxSize: maxSize, logger: logger}, nil
}

func (r *ReleaseStore) Name() string { return ReleaseDriverName }

// Upload creates a fresh release tagged with a ULID and attaches the file.
func (r *ReleaseStore) Upload(ctx context.Context, localPath string) (Ref, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return Ref{}, fmt.Errorf("uploading %s: %w", localPath, err)
	}
	if err := checkSize(info.Size(), r.maxSize); err != nil {
		return Ref{}, err
	}

	tag := "offcast-" + strings.ToLower(ulid.Make().String())
	name := filepath.Base(localPath)

	r.logger.Debug("creating exchange release",
		slog.String("repo", r.repo),
		slog.String("tag", tag),
		slog.Int64("size", info.Size()),
	)

	_, err = r.gh(ctx,
		"release", "create", tag, localPath,
		"--repo", r.repo,
		"--title", tag,
		"--notes", "transcode exchange artifact",
	)
	if err != nil {
		return Ref{}, fmt.Errorf("creating release %s: %w", tag, err)
	}

	return Ref{Driver: ReleaseDriverName, Key: tag, Name: name}, nil
}

// OutputRef points at the output asset the remote job attaches to the same
// release.
func (r *ReleaseStore) OutputRef(_ context.Context, in Ref) (Ref, error) {
	return Ref{Driver: ReleaseDriverName, Key: in.Key, Name: "output.gpg"}, nil
}

// Download fetches one asset of the release into destDir.
func (r *ReleaseStore) Download(ctx context.Context, ref Ref, destDir string) (string, error) {
	_, err := r.gh(ctx,
		"release", "download", ref.Key,
		"--repo", r.repo,
		"--pattern", ref.Name,
		"--dir", destDir,
		"--clobber",
	)
	if err != nil {
		return "", fmt.Errorf("downloading release asset %s: %w", ref, err)
	}

	dest := filepath.Join(destDir, ref.Name)
	if _, err := os.Stat(dest); err != nil {
		return "", fmt.Errorf("release asset %s missing after download: %w", ref, err)
	}
	return dest, nil
}

// Remove deletes the whole release and its tag. All assets of the exchange
// go with it.
func (r *ReleaseStore) Remove(ctx context.Context, ref Ref) error {
	_, err := r.gh(ctx,
		"release", "delete", ref.Key,
		"--repo", r.repo,
		"--yes",
		"--cleanup-tag",
	)
	if err != nil {
		return fmt.Errorf("deleting release %s: %w", ref.Key, err)
	}
	return nil
}

func (r *ReleaseStore) gh(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.ghPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("gh %s: %s", args[0], msg)
	}
	return stdout.Bytes(), nil
}
