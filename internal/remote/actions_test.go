package remote

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offcast/offcast/internal/config"
	"github.com/offcast/offcast/internal/storage"
)

// writeFakeGh installs a gh stand-in that logs its arguments and prints the
// given stdout.
func writeFakeGh(t *testing.T, stdout string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gh")
	script := "#!/bin/sh\necho \"$@\" >> \"$0.log\"\ncat <<'STDOUT'\n" + stdout + "\nSTDOUT\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func ghLog(t *testing.T, ghPath string) string {
	t.Helper()
	data, err := os.ReadFile(ghPath + ".log")
	require.NoError(t, err)
	return string(data)
}

func actionsClient(t *testing.T, ghPath string) *ActionsClient {
	t.Helper()
	client, err := NewActionsClient(config.RemoteConfig{
		Repo:       "acme/runner",
		Workflow:   "transcode.yml",
		Branch:     "main",
		GhPath:     ghPath,
		TokenInput: "correlation_token",
	}, nil)
	require.NoError(t, err)
	return client
}

func TestNewActionsClientValidation(t *testing.T) {
	_, err := NewActionsClient(config.RemoteConfig{Workflow: "w.yml"}, nil)
	assert.Error(t, err)

	_, err = NewActionsClient(config.RemoteConfig{Repo: "a/b"}, nil)
	assert.Error(t, err)
}

func TestActionsDispatch(t *testing.T) {
	gh := writeFakeGh(t, "")
	client := actionsClient(t, gh)

	err := client.Dispatch(context.Background(), DispatchRequest{
		Token:     "tok-abc",
		Input:     storage.Ref{Driver: "s3", Key: "jobs/x/input.gpg", URL: "https://bucket/presigned-get"},
		Output:    storage.Ref{Driver: "s3", Key: "jobs/x/output.gpg", URL: "https://bucket/presigned-put"},
		Recipient: "user@example.org",
		Args:      []string{"-c:v", "libx265", "-crf", "23"},
	})
	require.NoError(t, err)

	log := ghLog(t, gh)
	assert.Contains(t, log, "workflow run transcode.yml")
	assert.Contains(t, log, "--repo acme/runner")
	assert.Contains(t, log, "--ref main")
	assert.Contains(t, log, "-f correlation_token=tok-abc")
	assert.Contains(t, log, "-f input_url=https://bucket/presigned-get")
	assert.Contains(t, log, "-f output_url=https://bucket/presigned-put")
	assert.Contains(t, log, "-f recipient=user@example.org")
	assert.Contains(t, log, "-f ffmpeg_args=-c:v libx265 -crf 23")
}

func TestActionsDispatchWithoutURL(t *testing.T) {
	gh := writeFakeGh(t, "")
	client := actionsClient(t, gh)

	err := client.Dispatch(context.Background(), DispatchRequest{
		Token:  "tok",
		Input:  storage.Ref{Driver: "release", Key: "offcast-01x", Name: "input.gpg"},
		Output: storage.Ref{Driver: "release", Key: "offcast-01x", Name: "output.gpg"},
	})
	require.NoError(t, err)

	log := ghLog(t, gh)
	assert.Contains(t, log, "-f input_url=offcast-01x/input.gpg")
	assert.Contains(t, log, "-f output_url=offcast-01x/output.gpg")
}

func TestActionsDispatchEmptyToken(t *testing.T) {
	client := actionsClient(t, writeFakeGh(t, ""))
	assert.Error(t, client.Dispatch(context.Background(), DispatchRequest{}))
}

func TestActionsListRecentRuns(t *testing.T) {
	gh := writeFakeGh(t, `[
  {"databaseId": 101, "displayTitle": "transcode tok-abc", "createdAt": "2026-08-30T12:00:00Z"},
  {"databaseId": 102, "displayTitle": "transcode tok-def", "createdAt": "2026-08-30T12:01:00Z"}
]`)
	client := actionsClient(t, gh)

	since := time.Date(2026, 8, 30, 11, 59, 0, 0, time.UTC)
	runs, err := client.ListRecentRuns(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "101", runs[0].ID)
	assert.Equal(t, "transcode tok-abc", runs[0].Label)
	assert.Equal(t, since.Add(time.Minute), runs[0].CreatedAt)

	log := ghLog(t, gh)
	assert.Contains(t, log, "run list")
	assert.Contains(t, log, "--created >=2026-08-30T11:59:00Z")
	assert.Contains(t, log, "--workflow transcode.yml")
}

func TestActionsGetRunStatus(t *testing.T) {
	gh := writeFakeGh(t, `{
  "status": "in_progress",
  "conclusion": "",
  "url": "https://github.com/acme/runner/actions/runs/101",
  "jobs": [
    {"name": "transcode", "steps": [
      {"name": "fetch input", "status": "completed"},
      {"name": "run ffmpeg", "status": "in_progress"},
      {"name": "publish output", "status": "queued"}
    ]}
  ]
}`)
	client := actionsClient(t, gh)

	report, err := client.GetRunStatus(context.Background(), "101")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", report.Status)
	assert.Equal(t, "run ffmpeg", report.Step)
	assert.False(t, report.Finished())
	assert.False(t, report.Succeeded())

	assert.Contains(t, ghLog(t, gh), "run view 101")
}

func TestStatusReportTerminal(t *testing.T) {
	done := StatusReport{Status: "completed", Conclusion: "success"}
	assert.True(t, done.Finished())
	assert.True(t, done.Succeeded())

	failed := StatusReport{Status: "completed", Conclusion: "failure"}
	assert.True(t, failed.Finished())
	assert.False(t, failed.Succeeded())
}

func TestActionsCancelRun(t *testing.T) {
	gh := writeFakeGh(t, "")
	client := actionsClient(t, gh)

	require.NoError(t, client.CancelRun(context.Background(), "101"))
	assert.Contains(t, ghLog(t, gh), "run cancel 101")
}

func TestActionsGhFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho 'HTTP 403: rate limited' >&2\nexit 1\n"), 0o755))
	client := actionsClient(t, path)

	_, err := client.ListRecentRuns(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
