// Package cmd implements the CLI commands for offcast.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/offcast/offcast/internal/config"
	"github.com/offcast/offcast/internal/observability"
	"github.com/offcast/offcast/internal/version"
)

// cfgFile holds the config file path from CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "offcast",
	Short:   "Dispatch ffmpeg transcode jobs locally or to a remote runner",
	Version: version.Short(),
	Long: `offcast runs ffmpeg transcode jobs either on the local host or on a
fire-and-forget remote runner (GitHub Actions), correlating dispatched runs
by token, monitoring them resiliently, and retrieving the finished artifact.

Inputs that exceed the configured size limit are cut into keyframe-aligned
segments with stream copy, processed piecewise, and reassembled losslessly.`,
	// PersistentPreRunE is set in init() to avoid initialization cycle
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		return initLogging()
	}

	// Global flags are NOT bound to viper; we check Changed() and only
	// then override, preserving flag > env > config > default priority.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., $HOME/.offcast, /etc/offcast)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig primes the global viper instance for logging resolution. The
// full configuration is loaded per command via config.Load.
func initConfig() {
	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.offcast")
		viper.AddConfigPath("/etc/offcast")
	}

	viper.SetEnvPrefix("OFFCAST")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// initLogging configures the default slog logger, with sensitive-value
// redaction applied by the observability package.
func initLogging() error {
	level := viper.GetString("logging.level")
	format := viper.GetString("logging.format")

	if rootCmd.PersistentFlags().Changed("log-level") {
		level, _ = rootCmd.PersistentFlags().GetString("log-level")
	}
	if rootCmd.PersistentFlags().Changed("log-format") {
		format, _ = rootCmd.PersistentFlags().GetString("log-format")
	}

	logCfg := config.LoggingConfig{
		Level:  strings.ToLower(level),
		Format: strings.ToLower(format),
	}
	if logCfg.Level == "warning" {
		logCfg.Level = "warn"
	}

	logger := observability.NewLoggerWithWriter(logCfg, os.Stderr)
	observability.SetDefault(logger)
	return nil
}
