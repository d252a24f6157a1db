package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/offcast/offcast/internal/backend"
	"github.com/offcast/offcast/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing offcast configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration in YAML format, after applying
defaults, the config file, and environment variables.

You can redirect this output to a file to create a configuration template:

  offcast config show > config.yaml

Environment variables use the OFFCAST_ prefix and underscores for nesting.
Example: split.size_limit -> OFFCAST_SPLIT_SIZE_LIMIT`,
	SilenceUsage: true,
	RunE:         runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return backend.NewFailure(backend.CategoryConfiguration, "config", err)
	}

	// Secrets never reach stdout, redacted the same way the log layer
	// redacts them.
	if cfg.Artifacts.S3.SecretKey != "" {
		cfg.Artifacts.S3.SecretKey = "[REDACTED]"
	}
	if cfg.Artifacts.S3.AccessKey != "" {
		cfg.Artifacts.S3.AccessKey = "[REDACTED]"
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}
