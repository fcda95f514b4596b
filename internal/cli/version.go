package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipefixture/internal/version"
)

// addVersionCommand adds the version command
func (app *App) addVersionCommand(rootCmd *cobra.Command) {
	var detailed bool
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version of pipefixture with build information.`,
		Args:  cobra.NoArgs,
		// Printing the version never needs settings.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			if detailed {
				fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.GetFormattedVersion())
		},
	}

	versionCmd.Flags().BoolVar(&detailed, "detailed", false, "Show detailed version information")
	rootCmd.AddCommand(versionCmd)
}
