// Package config provides configuration management for offcast using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultSizeLimitBytes       = 2 * 1024 * 1024 * 1024 // 2GiB remote payload limit
	defaultMaxUploadBytes       = 4 * 1024 * 1024 * 1024 // hard ceiling, reject above
	defaultDispatchTimeout      = 30 * time.Second
	defaultCorrelationInterval  = 4 * time.Second
	defaultCorrelationTimeout   = 2 * time.Minute
	defaultCorrelationSkew      = 30 * time.Second
	defaultPollInterval         = 10 * time.Second
	defaultPollTimeout          = 20 * time.Second
	defaultMonitorTimeout       = 2 * time.Hour
	defaultMonitorFailureBudget = 5
	defaultMonitorBackoffCap    = 2 * time.Minute
	defaultProbeTimeout         = 30 * time.Second
	defaultMinFreeDiskBytes     = 512 * 1024 * 1024
)

// Config holds all configuration for the application.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	FFmpeg    FFmpegConfig    `mapstructure:"ffmpeg" yaml:"ffmpeg"`
	Split     SplitConfig     `mapstructure:"split" yaml:"split"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Crypto    CryptoConfig    `mapstructure:"crypto" yaml:"crypto"`
	Artifacts ArtifactsConfig `mapstructure:"artifacts" yaml:"artifacts"`
	Presets   PresetsConfig   `mapstructure:"presets" yaml:"presets"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format" yaml:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source" yaml:"add_source"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format"`
}

// StorageConfig holds local file storage configuration.
type StorageConfig struct {
	// WorkDir is the root for per-job temporary state (encrypted payloads,
	// segment outputs). Its contents never outlive one invocation.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`
	// OutputDir is where final artifacts are published. Empty means the
	// directory of the input file.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
	// MinFreeDisk is the free-space preflight requirement for WorkDir.
	MinFreeDisk ByteSize `mapstructure:"min_free_disk" yaml:"min_free_disk"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath   string        `mapstructure:"binary_path" yaml:"binary_path"`  // Path to ffmpeg (empty = look up on PATH)
	ProbePath    string        `mapstructure:"probe_path" yaml:"probe_path"`   // Path to ffprobe (empty = look up on PATH)
	ProbeTimeout time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
}

// SplitConfig holds the size-limit policy for lossless cutting.
type SplitConfig struct {
	// SizeLimit is the payload size above which the input is cut into
	// keyframe-aligned segments. Accepts human-readable values ("400MB").
	SizeLimit ByteSize `mapstructure:"size_limit" yaml:"size_limit"`
}

// RemoteConfig holds remote job runner configuration.
type RemoteConfig struct {
	Repo       string `mapstructure:"repo" yaml:"repo"`     // owner/name of the runner repository
	Workflow   string `mapstructure:"workflow" yaml:"workflow"` // workflow file that executes jobs
	Branch     string `mapstructure:"branch" yaml:"branch"`   // ref the workflow is dispatched on
	GhPath     string `mapstructure:"gh_path" yaml:"gh_path"`  // path to gh binary (empty = PATH)
	TokenInput string `mapstructure:"token_input" yaml:"token_input"`

	DispatchTimeout      time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`
	CorrelationInterval  time.Duration `mapstructure:"correlation_interval" yaml:"correlation_interval"`
	CorrelationTimeout   time.Duration `mapstructure:"correlation_timeout" yaml:"correlation_timeout"`
	CorrelationSkew      time.Duration `mapstructure:"correlation_skew" yaml:"correlation_skew"`
	PollInterval         time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	PollTimeout          time.Duration `mapstructure:"poll_timeout" yaml:"poll_timeout"`
	MonitorTimeout       time.Duration `mapstructure:"monitor_timeout" yaml:"monitor_timeout"`
	MonitorFailureBudget int           `mapstructure:"monitor_failure_budget" yaml:"monitor_failure_budget"`
	MonitorBackoffCap    time.Duration `mapstructure:"monitor_backoff_cap" yaml:"monitor_backoff_cap"`
}

// CryptoConfig holds GPG configuration.
type CryptoConfig struct {
	// RunnerRecipient is the key the remote runner can decrypt with.
	RunnerRecipient string `mapstructure:"runner_recipient" yaml:"runner_recipient"`
	// UserRecipient is the key result artifacts are encrypted to.
	UserRecipient string `mapstructure:"user_recipient" yaml:"user_recipient"`
	GpgPath       string `mapstructure:"gpg_path" yaml:"gpg_path"`
	ExiftoolPath  string `mapstructure:"exiftool_path" yaml:"exiftool_path"`
	// SanitizeMetadata strips metadata before encryption and restores it
	// onto the retrieved artifact.
	SanitizeMetadata bool `mapstructure:"sanitize_metadata" yaml:"sanitize_metadata"`
}

// ArtifactsConfig holds artifact transfer configuration.
type ArtifactsConfig struct {
	// Driver selects the artifact store: "s3" or "release".
	Driver string `mapstructure:"driver" yaml:"driver"`
	// MaxUploadSize rejects payloads above this size before any upload.
	MaxUploadSize ByteSize      `mapstructure:"max_upload_size" yaml:"max_upload_size"`
	S3            S3Config      `mapstructure:"s3" yaml:"s3"`
	Release       ReleaseConfig `mapstructure:"release" yaml:"release"`
}

// S3Config holds S3-compatible object store configuration.
type S3Config struct {
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKey  string        `mapstructure:"access_key" yaml:"access_key"`
	SecretKey  string        `mapstructure:"secret_key" yaml:"secret_key"`
	Bucket     string        `mapstructure:"bucket" yaml:"bucket"`
	Prefix     string        `mapstructure:"prefix" yaml:"prefix"`
	UseSSL     bool          `mapstructure:"use_ssl" yaml:"use_ssl"`
	PresignTTL time.Duration `mapstructure:"presign_ttl" yaml:"presign_ttl"`
}

// ReleaseConfig holds release-asset artifact store configuration.
type ReleaseConfig struct {
	// Repo is the repository releases are created in. Empty means the
	// remote runner repository.
	Repo string `mapstructure:"repo" yaml:"repo"`
}

// PresetsConfig locates the preset command templates.
type PresetsConfig struct {
	// File is the presets YAML path. Empty means "presets.yaml" next to
	// the main config file, falling back to built-in presets.
	File string `mapstructure:"file" yaml:"file"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration and are
// prefixed with OFFCAST_, using underscores for nesting.
// Example: OFFCAST_REMOTE_REPO=me/transcode-runner.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.offcast")
		v.AddConfigPath("/etc/offcast")
	}

	v.SetEnvPrefix("OFFCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - defaults and env vars apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if cfg.Presets.File == "" && v.ConfigFileUsed() != "" {
		cfg.Presets.File = filepath.Join(filepath.Dir(v.ConfigFileUsed()), "presets.yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Storage defaults
	v.SetDefault("storage.work_dir", "")
	v.SetDefault("storage.output_dir", "")
	v.SetDefault("storage.min_free_disk", defaultMinFreeDiskBytes)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)

	// Split defaults
	v.SetDefault("split.size_limit", defaultSizeLimitBytes)

	// Remote defaults
	v.SetDefault("remote.workflow", "transcode.yml")
	v.SetDefault("remote.branch", "main")
	v.SetDefault("remote.gh_path", "")
	v.SetDefault("remote.token_input", "correlation_token")
	v.SetDefault("remote.dispatch_timeout", defaultDispatchTimeout)
	v.SetDefault("remote.correlation_interval", defaultCorrelationInterval)
	v.SetDefault("remote.correlation_timeout", defaultCorrelationTimeout)
	v.SetDefault("remote.correlation_skew", defaultCorrelationSkew)
	v.SetDefault("remote.poll_interval", defaultPollInterval)
	v.SetDefault("remote.poll_timeout", defaultPollTimeout)
	v.SetDefault("remote.monitor_timeout", defaultMonitorTimeout)
	v.SetDefault("remote.monitor_failure_budget", defaultMonitorFailureBudget)
	v.SetDefault("remote.monitor_backoff_cap", defaultMonitorBackoffCap)

	// Crypto defaults
	v.SetDefault("crypto.gpg_path", "")
	v.SetDefault("crypto.exiftool_path", "")
	v.SetDefault("crypto.sanitize_metadata", true)

	// Artifacts defaults
	v.SetDefault("artifacts.driver", "release")
	v.SetDefault("artifacts.max_upload_size", defaultMaxUploadBytes)
	v.SetDefault("artifacts.s3.use_ssl", true)
	v.SetDefault("artifacts.s3.prefix", "offcast")
	v.SetDefault("artifacts.s3.presign_ttl", time.Hour)

	// Presets defaults
	v.SetDefault("presets.file", "")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if c.Split.SizeLimit <= 0 {
		return fmt.Errorf("split.size_limit must be positive")
	}

	validDrivers := map[string]bool{"s3": true, "release": true}
	if !validDrivers[c.Artifacts.Driver] {
		return fmt.Errorf("artifacts.driver must be one of: s3, release")
	}
	if c.Artifacts.Driver == "s3" {
		if c.Artifacts.S3.Endpoint == "" {
			return fmt.Errorf("artifacts.s3.endpoint is required for the s3 driver")
		}
		if c.Artifacts.S3.Bucket == "" {
			return fmt.Errorf("artifacts.s3.bucket is required for the s3 driver")
		}
	}

	if c.Remote.MonitorFailureBudget < 1 {
		return fmt.Errorf("remote.monitor_failure_budget must be at least 1")
	}
	if c.Remote.CorrelationInterval <= 0 || c.Remote.PollInterval <= 0 {
		return fmt.Errorf("remote polling intervals must be positive")
	}

	return nil
}

// ReleaseRepo returns the repository the release artifact store should use.
func (c *Config) ReleaseRepo() string {
	if c.Artifacts.Release.Repo != "" {
		return c.Artifacts.Release.Repo
	}
	return c.Remote.Repo
}
