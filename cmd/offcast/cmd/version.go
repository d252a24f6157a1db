package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/offcast/offcast/internal/version"
)

var versionJSON bool

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit, and build date of offcast.",
	Run: func(cmd *cobra.Command, _ []string) {
		if versionJSON {
			data, _ := json.MarshalIndent(version.GetInfo(), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return
		}
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")
	rootCmd.AddCommand(versionCmd)
}
