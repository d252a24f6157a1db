package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, int64(2*1024*1024*1024), cfg.Split.SizeLimit.Bytes())
	assert.Equal(t, "release", cfg.Artifacts.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Remote.CorrelationTimeout)
	assert.Equal(t, 5, cfg.Remote.MonitorFailureBudget)
	assert.Equal(t, "correlation_token", cfg.Remote.TokenInput)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
logging:
  level: debug
  format: json
split:
  size_limit: 400MB
remote:
  repo: me/transcode-runner
  workflow: jobs.yml
  poll_interval: 3s
artifacts:
  driver: s3
  s3:
    endpoint: minio.local:9000
    bucket: offcast
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, int64(400*1024*1024), cfg.Split.SizeLimit.Bytes())
	assert.Equal(t, "me/transcode-runner", cfg.Remote.Repo)
	assert.Equal(t, 3*time.Second, cfg.Remote.PollInterval)
	assert.Equal(t, "s3", cfg.Artifacts.Driver)
	assert.Equal(t, "minio.local:9000", cfg.Artifacts.S3.Endpoint)

	// Presets file defaults to sit next to the config file.
	assert.Equal(t, filepath.Join(dir, "presets.yaml"), cfg.Presets.File)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"zero size limit", func(c *Config) { c.Split.SizeLimit = 0 }, "split.size_limit"},
		{"bad driver", func(c *Config) { c.Artifacts.Driver = "ftp" }, "artifacts.driver"},
		{"s3 without bucket", func(c *Config) {
			c.Artifacts.Driver = "s3"
			c.Artifacts.S3.Endpoint = "x:9000"
			c.Artifacts.S3.Bucket = ""
		}, "artifacts.s3.bucket"},
		{"zero budget", func(c *Config) { c.Remote.MonitorFailureBudget = 0 }, "monitor_failure_budget"},
		{"zero interval", func(c *Config) { c.Remote.PollInterval = 0 }, "intervals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestByteSize_UnmarshalText(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalText([]byte("1.5GB")))
	assert.Equal(t, int64(1.5*1024*1024*1024), b.Bytes())

	assert.Error(t, b.UnmarshalText([]byte("lots")))
}

func TestByteSize_UnmarshalJSON(t *testing.T) {
	var b ByteSize
	require.NoError(t, b.UnmarshalJSON([]byte(`"400MB"`)))
	assert.Equal(t, int64(400*1024*1024), b.Bytes())

	require.NoError(t, b.UnmarshalJSON([]byte(`1024`)))
	assert.Equal(t, int64(1024), b.Bytes())
}

func TestLoadPresets_Builtin(t *testing.T) {
	presets, err := LoadPresets("")
	require.NoError(t, err)
	assert.Contains(t, presets.Names(), "remux")

	// Missing file also falls back to builtins.
	presets, err = LoadPresets(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, presets)
}

func TestLoadPresets_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	content := `
presets:
  - name: tiny
    description: small and slow
    args: ["-c:v", "libx265", "-crf", "32"]
  - name: fast
    args: ["-c:v", "libx264", "-preset", "veryfast"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"fast", "tiny"}, presets.Names())

	tiny, ok := presets.Get("tiny")
	require.True(t, ok)
	assert.Equal(t, []string{"-c:v", "libx265", "-crf", "32"}, tiny.Args)
}

func TestLoadPresets_Invalid(t *testing.T) {
	dir := t.TempDir()

	for name, content := range map[string]string{
		"unnamed.yaml":   "presets:\n  - args: [\"-c\", \"copy\"]\n",
		"noargs.yaml":    "presets:\n  - name: x\n",
		"duplicate.yaml": "presets:\n  - name: x\n    args: [\"-c\", \"copy\"]\n  - name: x\n    args: [\"-an\"]\n",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
			_, err := LoadPresets(path)
			assert.Error(t, err)
		})
	}
}
