package cli

import (
	"github.com/spf13/cobra"
)

// CreateRootCommand creates and configures the root command
func (app *App) CreateRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pipefixture",
		Short: "Ephemeral fixtures for file-based build pipelines",
		Long: `pipefixture writes a project into a throwaway workspace, runs the build
pipeline over it and reports the text artifacts it produced. Fixture files
under the fixtures directory can be recorded as golden files and verified later.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.loadSettings(cmd)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&app.ConfigFile, "config", "", "Config file (default: pipefixture.yaml in the working directory)")
	pf.StringVar(&app.WorkDir, "work-dir", "", "Directory relative settings paths are resolved against")
	pf.BoolVarP(&app.Verbose, "verbose", "v", false, "Verbose output")
	pf.BoolVar(&app.NoColor, "no-color", false, "Disable colored output")
	pf.String("temp-root", "", "Parent directory for workspaces (default: system temp dir)")
	pf.String("prefix", "pipefixture-", "Workspace directory name prefix")
	pf.Bool("keep-workspace", false, "Leave workspaces on disk after each run")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error, fatal)")
	pf.String("log-file", "", "Write logs to this file instead of stderr")
	pf.String("fixtures-dir", "testdata/fixtures", "Directory holding fixture and golden files")
	pf.String("installer", "command", "Dependency installer (command, store, none)")
	pf.String("installer-store", "", "Package store directory for the store installer")
	pf.Bool("installer-verbose", false, "Stream the package manager's output")

	app.addProjectCommands(rootCmd)
	app.addGoldenFileCommands(rootCmd)
	app.addVersionCommand(rootCmd)

	return rootCmd
}
