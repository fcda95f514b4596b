package golden

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Differ shows how a fixture's current output departs from its golden file.
type Differ struct {
	config   *Config
	executor *Executor
}

// NewDiffer creates a differ.
func NewDiffer(config *Config, executor *Executor) *Differ {
	return &Differ{config: config, executor: executor}
}

// ShowDiff runs the named fixture and writes a diff against its golden file.
// It reports whether the outputs differ.
func (d *Differ) ShowDiff(ctx context.Context, name string) (bool, error) {
	fixture, err := LoadFixture(d.config.FixturesDir, name)
	if err != nil {
		return false, err
	}
	actual, err := d.executor.Execute(ctx, fixture)
	if err != nil {
		return false, err
	}

	expectedPath := ExpectedPath(d.config.FixturesDir, name)
	expectedContent, err := os.ReadFile(expectedPath)
	if err != nil {
		return false, fmt.Errorf("failed to read expected file %s: %w", expectedPath, err)
	}
	expected := strings.TrimRight(string(expectedContent), "\n")

	return ShowDetailedDiff(d.config.Out, expected, actual, name), nil
}

// ShowDetailedDiff writes both outputs with line numbers, then a line-level
// diff. It reports whether they differ.
func ShowDetailedDiff(w io.Writer, expected, actual, name string) bool {
	fmt.Fprintf(w, "=== Fixture: %s ===\n", name)

	if expected == actual {
		fmt.Fprintln(w, "No differences found - fixture passes!")
		return false
	}

	fmt.Fprintln(w, "\n--- Expected ---")
	printNumberedLines(w, expected)

	fmt.Fprintln(w, "\n--- Actual ---")
	printNumberedLines(w, actual)

	fmt.Fprintln(w, "\n--- Diff ---")
	fmt.Fprint(w, LineDiff(expected, actual))
	return true
}

// LineDiff renders a unified-style line diff: "-" for expected-only lines,
// "+" for actual-only lines, two spaces for shared lines.
func LineDiff(expected, actual string) string {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(expected+"\n", actual+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var out strings.Builder
	for _, diff := range diffs {
		prefix := "  "
		switch diff.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		}
		for _, line := range strings.SplitAfter(diff.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
		}
	}
	return out.String()
}

func printNumberedLines(w io.Writer, content string) {
	for i, line := range strings.Split(content, "\n") {
		fmt.Fprintf(w, "%4d│%s\n", i+1, line)
	}
}
