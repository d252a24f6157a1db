package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/offcast/offcast/internal/backend"
	"github.com/offcast/offcast/internal/config"
)

var presetsCmd = &cobra.Command{
	Use:   "presets",
	Short: "List available transcode presets",
	Long: `List the presets available to "offcast run --preset".

Presets come from the presets file next to the config file when one
exists, otherwise from the built-in set.`,
	SilenceUsage: true,
	RunE:         runPresets,
}

func init() {
	rootCmd.AddCommand(presetsCmd)
}

func runPresets(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return backend.NewFailure(backend.CategoryConfiguration, "config", err)
	}

	presets, err := config.LoadPresets(cfg.Presets.File)
	if err != nil {
		return backend.NewFailure(backend.CategoryConfiguration, "presets", err)
	}

	out := cmd.OutOrStdout()
	for _, name := range presets.Names() {
		preset, _ := presets.Get(name)
		fmt.Fprintf(out, "%-12s %s\n", name, preset.Description)
		fmt.Fprintf(out, "             %s\n", strings.Join(preset.Args, " "))
	}
	return nil
}
