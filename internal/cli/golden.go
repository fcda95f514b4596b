package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"pipefixture/internal/golden"
)

// addGoldenFileCommands adds golden file testing commands
func (app *App) addGoldenFileCommands(rootCmd *cobra.Command) {
	recordCmd := &cobra.Command{
		Use:   "record <fixture>",
		Short: "Record a fixture's golden file",
		Long: `Run a fixture from the fixtures directory and save its normalized output
as <fixture>.expected for future comparisons.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, executor := app.goldenConfig(cmd)
			return golden.NewRecorder(cfg, executor).RecordTest(cmd.Context(), args[0])
		},
	}

	runCmd := &cobra.Command{
		Use:   "run <fixture>",
		Short: "Run a fixture against its golden file",
		Long: `Run a fixture and compare its normalized output with the golden file.
Returns exit code 0 if the fixture passes, non-zero if it fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, executor := app.goldenConfig(cmd)
			start := time.Now()
			err := golden.NewRunner(cfg, executor).RunTest(cmd.Context(), args[0])
			app.printResult(cmd, golden.Result{Name: args[0], Err: err, Duration: time.Since(start)})
			return err
		},
	}

	var report, raw bool
	runAllCmd := &cobra.Command{
		Use:   "run-all",
		Short: "Run every fixture",
		Long: `Run every fixture in the fixtures directory and report the results.
Returns exit code 0 if all fixtures pass, non-zero if any fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, executor := app.goldenConfig(cmd)
			summary, err := golden.NewRunner(cfg, executor).RunAllTests(cmd.Context())
			if summary == nil {
				return err
			}
			if report {
				if rerr := app.printReport(cmd, summary, raw); rerr != nil {
					return errors.Join(err, rerr)
				}
				return err
			}
			for _, r := range summary.Results {
				app.printResult(cmd, r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d passed, %d failed\n", summary.Passed(), len(summary.Failed()))
			return err
		},
	}
	runAllCmd.Flags().BoolVar(&report, "report", false, "Print a markdown report instead of one line per fixture")
	runAllCmd.Flags().BoolVar(&raw, "raw", false, "With --report, print the markdown source without rendering it")

	acceptCmd := &cobra.Command{
		Use:   "accept <fixture>",
		Short: "Accept current output as golden",
		Long: `Update the golden file for a fixture with its current output.
Use this after verifying that the new behavior is correct.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, executor := app.goldenConfig(cmd)
			return golden.NewRecorder(cfg, executor).AcceptTest(cmd.Context(), args[0])
		},
	}

	diffCmd := &cobra.Command{
		Use:   "diff <fixture>",
		Short: "Show differences between golden and actual output",
		Long: `Run a fixture and show both outputs line by line, followed by a line diff
against the golden file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, executor := app.goldenConfig(cmd)
			_, err := golden.NewDiffer(cfg, executor).ShowDiff(cmd.Context(), args[0])
			return err
		},
	}

	rootCmd.AddCommand(recordCmd, runCmd, runAllCmd, acceptCmd, diffCmd)
}

func (app *App) printResult(cmd *cobra.Command, r golden.Result) {
	elapsed := app.styles.muted.Render(fmt.Sprintf("(%s)", r.Duration.Round(time.Millisecond)))
	if r.Passed() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", app.styles.pass.Render("PASS"), r.Name, elapsed)
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", app.styles.fail.Render("FAIL"), r.Name, elapsed)
	if app.Verbose || !errors.Is(r.Err, golden.ErrMismatch) {
		fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", r.Err)
	}
}

func (app *App) printReport(cmd *cobra.Command, summary *golden.Summary, raw bool) error {
	md := golden.Report(summary)
	if raw {
		fmt.Fprint(cmd.OutOrStdout(), md)
		return nil
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	rendered, err := renderer.Render(md)
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}
