package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offcast/offcast/internal/config"
)

func TestCheckSize(t *testing.T) {
	assert.NoError(t, checkSize(100, 0))
	assert.NoError(t, checkSize(100, 100))

	err := checkSize(101, 100)
	require.Error(t, err)
	var tooLarge *ErrTooLarge
	require.ErrorAs(t, err, &tooLarge)
	assert.Equal(t, int64(101), tooLarge.Size)
}

func TestRefString(t *testing.T) {
	ref := Ref{Driver: "release", Key: "offcast-01abc", Name: "input.gpg"}
	assert.Equal(t, "release:offcast-01abc/input.gpg", ref.String())
}

func TestNewStore(t *testing.T) {
	t.Run("release", func(t *testing.T) {
		store, err := NewStore(config.ArtifactsConfig{
			Driver:  ReleaseDriverName,
			Release: config.ReleaseConfig{Repo: "acme/exchange"},
		}, "gh", nil)
		require.NoError(t, err)
		assert.Equal(t, ReleaseDriverName, store.Name())
	})

	t.Run("release requires repo", func(t *testing.T) {
		_, err := NewStore(config.ArtifactsConfig{Driver: ReleaseDriverName}, "gh", nil)
		assert.Error(t, err)
	})

	t.Run("s3 requires endpoint", func(t *testing.T) {
		_, err := NewStore(config.ArtifactsConfig{Driver: S3DriverName}, "gh", nil)
		assert.Error(t, err)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := NewStore(config.ArtifactsConfig{Driver: "ftp"}, "gh", nil)
		assert.Error(t, err)
	})
}

// fakeGh records invocations and simulates release downloads by creating
// the requested asset.
const fakeGh = `echo "$@" >> "$0.log"
dir=""
name=""
prev=""
for a in "$@"; do
  case "$prev" in
    --dir) dir="$a" ;;
    --pattern) name="$a" ;;
  esac
  prev="$a"
done
if [ "$1" = "release" ] && [ "$2" = "download" ]; then
  printf artifact > "$dir/$name"
fi
`

func writeFakeGh(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+fakeGh), 0o755))
	return path
}

func TestReleaseStoreRoundTrip(t *testing.T) {
	gh := writeFakeGh(t)
	store, err := NewReleaseStore(gh, "acme/exchange", 0, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	input := filepath.Join(dir, "movie.mkv.gpg")
	require.NoError(t, os.WriteFile(input, []byte("cipher"), 0o640))

	ctx := context.Background()

	ref, err := store.Upload(ctx, input)
	require.NoError(t, err)
	assert.Equal(t, ReleaseDriverName, ref.Driver)
	assert.True(t, strings.HasPrefix(ref.Key, "offcast-"))
	assert.Equal(t, "movie.mkv.gpg", ref.Name)

	out, err := store.OutputRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, ref.Key, out.Key)
	assert.Equal(t, "output.gpg", out.Name)

	destDir := t.TempDir()
	path, err := store.Download(ctx, out, destDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "output.gpg"), path)
	assert.FileExists(t, path)

	require.NoError(t, store.Remove(ctx, ref))

	log, err := os.ReadFile(gh + ".log")
	require.NoError(t, err)
	calls := strings.TrimSpace(string(log))
	assert.Contains(t, calls, "release create "+ref.Key)
	assert.Contains(t, calls, "--repo acme/exchange")
	assert.Contains(t, calls, "release delete "+ref.Key)
	assert.Contains(t, calls, "--cleanup-tag")
}

func TestReleaseStoreSizeGuard(t *testing.T) {
	store, err := NewReleaseStore(writeFakeGh(t), "acme/exchange", 4, nil)
	require.NoError(t, err)

	input := filepath.Join(t.TempDir(), "big.gpg")
	require.NoError(t, os.WriteFile(input, []byte("too large"), 0o640))

	_, err = store.Upload(context.Background(), input)
	var tooLarge *ErrTooLarge
	require.ErrorAs(t, err, &tooLarge)
}

func TestReleaseStoreGhFailure(t *testing.T) {
	gh := filepath.Join(t.TempDir(), "gh")
	require.NoError(t, os.WriteFile(gh, []byte("#!/bin/sh\necho 'HTTP 404: Not Found' >&2\nexit 1\n"), 0o755))

	store, err := NewReleaseStore(gh, "acme/exchange", 0, nil)
	require.NoError(t, err)

	input := filepath.Join(t.TempDir(), "in.gpg")
	require.NoError(t, os.WriteFile(input, []byte("x"), 0o640))

	_, err = store.Upload(context.Background(), input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestWorkspacePublish(t *testing.T) {
	base := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(base, "work"), filepath.Join(base, "out"))
	require.NoError(t, err)

	src := filepath.Join(base, "result.mkv")
	require.NoError(t, os.WriteFile(src, []byte("artifact"), 0o640))

	final, err := ws.Publish(src, "movie-processed.mkv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "out", "movie-processed.mkv"), final)

	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "artifact", string(data))

	entries, err := os.ReadDir(ws.OutputDir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "no partial files left behind")
}

func TestWorkspaceJobDir(t *testing.T) {
	base := t.TempDir()
	ws, err := NewWorkspace(filepath.Join(base, "work"), filepath.Join(base, "out"))
	require.NoError(t, err)

	dir, err := ws.JobDir("01JOB")
	require.NoError(t, err)
	assert.DirExists(t, dir)

	require.NoError(t, ws.CleanupJob("01JOB"))
	assert.NoDirExists(t, dir)
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "movie-processed.mkv", OutputName("/data/movie.mkv"))
	assert.Equal(t, "clip-processed.mp4", OutputName("clip.mp4"))
	assert.Equal(t, "noext-processed", OutputName("/data/noext"))
}
