// Package cli provides the pipefixture command-line interface.
package cli

import (
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"pipefixture/internal/config"
	"pipefixture/internal/devpipeline"
	"pipefixture/internal/golden"
	"pipefixture/internal/harness"
	"pipefixture/internal/installer"
	"pipefixture/internal/logger"
	"pipefixture/pkg/fixturetypes"
)

// App represents the pipefixture CLI application
type App struct {
	ConfigFile string
	WorkDir    string
	Verbose    bool
	NoColor    bool

	// Settings is populated before any command other than version runs.
	Settings *config.Settings

	loader *config.Loader
	styles *styles
}

// NewApp creates a new pipefixture CLI application
func NewApp() *App {
	return &App{loader: config.NewLoader()}
}

// loadSettings resolves settings from every source, flags of cmd included,
// and configures logging from them.
func (app *App) loadSettings(cmd *cobra.Command) error {
	if err := app.loader.BindFlags(cmd.Flags()); err != nil {
		return err
	}
	settings, err := app.loader.Load(app.WorkDir, app.ConfigFile)
	if err != nil {
		return err
	}
	if err := logger.Configure(settings.LogLevel, settings.LogFile); err != nil {
		return err
	}
	app.Settings = settings
	app.styles = newStyles(cmd.OutOrStdout(), app.NoColor)
	logger.Debug("Settings loaded", "config", settings.ConfigFile, "installer", settings.Installer.Mode)
	return nil
}

// resolve makes a relative settings path relative to the working directory.
func (app *App) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || app.WorkDir == "" {
		return p
	}
	return filepath.Join(app.WorkDir, p)
}

func (app *App) newInstaller(out, errOut io.Writer) fixturetypes.Installer {
	s := app.Settings.Installer
	switch s.Mode {
	case config.InstallerStore:
		return installer.NewStore(app.resolve(s.Store))
	case config.InstallerNone:
		return installer.Noop{}
	default:
		c := installer.NewCommand(s.Command, s.Args...)
		c.Verbose = s.Verbose
		c.Stdout = out
		c.Stderr = errOut
		return c
	}
}

func (app *App) newHarness(cmd *cobra.Command) *harness.Harness {
	s := app.Settings
	pipeline := devpipeline.New(devpipeline.WithLogger(logger.NewStyledLogger("pipeline")))
	return harness.New(
		harness.Config{
			TempRoot:      app.resolve(s.TempRoot),
			Prefix:        s.Prefix,
			KeepWorkspace: s.KeepWorkspace,
		},
		pipeline,
		harness.WithInstaller(app.newInstaller(cmd.OutOrStdout(), cmd.ErrOrStderr())),
		harness.WithLogger(logger.NewStyledLogger("harness")),
	)
}

// goldenConfig returns the golden settings for cmd and an executor sharing them.
func (app *App) goldenConfig(cmd *cobra.Command) (*golden.Config, *golden.Executor) {
	cfg := &golden.Config{
		FixturesDir: app.resolve(app.Settings.FixturesDir),
		TempRoot:    app.resolve(app.Settings.TempRoot),
		Prefix:      app.Settings.Prefix,
		Verbose:     app.Verbose,
		Out:         cmd.OutOrStdout(),
	}
	return cfg, golden.NewExecutor(app.newHarness(cmd), cfg)
}
