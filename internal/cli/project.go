package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pipefixture/internal/filetree"
	"pipefixture/pkg/fixturetypes"
)

// projectFlags are the harness options shared by build and prepare.
type projectFlags struct {
	absolute  bool
	collision string
	overrides map[string]string
}

func (f *projectFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&f.absolute, "absolute", false, "Key artifacts by absolute path")
	cmd.Flags().StringVar(&f.collision, "collision", "", "Output/cache collision policy (cache-wins, output-wins, namespaced)")
	cmd.Flags().StringToStringVar(&f.overrides, "set", nil, "Pipeline configuration override, key=value (repeatable)")
}

func (f *projectFlags) options() (fixturetypes.Options, error) {
	policy, err := fixturetypes.ParseCollisionPolicy(f.collision)
	if err != nil {
		return fixturetypes.Options{}, err
	}
	var overrides map[string]any
	if len(f.overrides) > 0 {
		overrides = make(map[string]any, len(f.overrides))
		for k, v := range f.overrides {
			overrides[k] = v
		}
	}
	return fixturetypes.Options{Absolute: f.absolute, Collision: policy, Overrides: overrides}, nil
}

// addProjectCommands adds commands that run a project directory directly
func (app *App) addProjectCommands(rootCmd *cobra.Command) {
	var buildFlags projectFlags
	buildCmd := &cobra.Command{
		Use:   "build <project-dir>",
		Short: "Build a project in a throwaway workspace",
		Long: `Copy a project directory into a fresh workspace, install its dependencies
when it has a package.json, run one build and print every text artifact.
The project directory itself is never modified.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := filetree.FromDir(app.resolve(args[0]))
			if err != nil {
				return err
			}
			opts, err := buildFlags.options()
			if err != nil {
				return err
			}
			set, err := app.newHarness(cmd).Build(cmd.Context(), tree, opts)
			if err != nil {
				return err
			}
			app.printArtifacts(cmd.OutOrStdout(), set)
			return nil
		},
	}
	buildFlags.register(buildCmd)

	var prepareFlags projectFlags
	prepareCmd := &cobra.Command{
		Use:   "prepare <project-dir>",
		Short: "Stage a project's packages in a throwaway workspace",
		Long: `Copy a project directory into a fresh workspace, install its dependencies,
run only the package-preparation step and print the resolved configuration
and the staged package files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tree, err := filetree.FromDir(app.resolve(args[0]))
			if err != nil {
				return err
			}
			opts, err := prepareFlags.options()
			if err != nil {
				return err
			}
			res, err := app.newHarness(cmd).PreparePackages(cmd.Context(), tree, opts)
			if err != nil {
				return err
			}
			app.printConfig(cmd.OutOrStdout(), res.Config)
			app.printArtifacts(cmd.OutOrStdout(), res.Artifacts)
			return nil
		},
	}
	prepareFlags.register(prepareCmd)

	rootCmd.AddCommand(buildCmd, prepareCmd)
}

func (app *App) printArtifacts(w io.Writer, set fixturetypes.ArtifactSet) {
	keys := set.Keys()
	if len(keys) == 0 {
		fmt.Fprintln(w, app.styles.muted.Render("No artifacts produced"))
		return
	}
	for _, key := range keys {
		fmt.Fprintln(w, app.styles.header.Render("=== "+key+" ==="))
		fmt.Fprintln(w, set[key])
	}
}

func (app *App) printConfig(w io.Writer, cfg *fixturetypes.PipelineConfig) {
	fmt.Fprintln(w, app.styles.header.Render("=== config ==="))
	fmt.Fprintf(w, "root: %s\n", cfg.Root())
	fmt.Fprintf(w, "out: %s\n", cfg.Out())
	fmt.Fprintf(w, "mount: %s\n", cfg.Mount())
	fmt.Fprintf(w, "cache: %s\n", cfg.CacheDir())
	fmt.Fprintln(w, app.styles.header.Render("=== settings ==="))
	for _, key := range cfg.SettingKeys() {
		value, _ := cfg.Setting(key)
		fmt.Fprintf(w, "%s: %v\n", key, value)
	}
}
