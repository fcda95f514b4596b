package golden

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"pipefixture/internal/normalize"
)

// ErrMismatch reports output that differs from the golden file.
var ErrMismatch = errors.New("output doesn't match expected")

// Result is the outcome of one fixture run.
type Result struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Passed reports whether the fixture matched its golden file.
func (r Result) Passed() bool { return r.Err == nil }

// Summary collects the results of a RunAllTests call.
type Summary struct {
	Results []Result
}

// Passed returns the number of passing fixtures.
func (s *Summary) Passed() int {
	n := 0
	for _, r := range s.Results {
		if r.Passed() {
			n++
		}
	}
	return n
}

// Failed returns the names of failing fixtures.
func (s *Summary) Failed() []string {
	var names []string
	for _, r := range s.Results {
		if !r.Passed() {
			names = append(names, r.Name)
		}
	}
	return names
}

// Runner checks fixtures against their golden files.
type Runner struct {
	config     *Config
	executor   *Executor
	normalizer *normalize.NormalizationEngine
}

// NewRunner creates a runner.
func NewRunner(config *Config, executor *Executor) *Runner {
	return &Runner{
		config:     config,
		executor:   executor,
		normalizer: executor.normalizer,
	}
}

// RunTest runs the named fixture and compares it with its golden file.
func (r *Runner) RunTest(ctx context.Context, name string) error {
	if r.config.Verbose {
		fmt.Fprintf(r.config.Out, "Running fixture: %s\n", name)
	}

	fixture, err := LoadFixture(r.config.FixturesDir, name)
	if err != nil {
		return err
	}
	actual, err := r.executor.Execute(ctx, fixture)
	if err != nil {
		return err
	}

	expectedPath := ExpectedPath(r.config.FixturesDir, name)
	expected, err := os.ReadFile(expectedPath)
	if err != nil {
		return fmt.Errorf("failed to read expected file %s: %w", expectedPath, err)
	}

	if !r.normalizer.CompareWithPlaceholders(strings.TrimRight(string(expected), "\n"), actual) {
		return fmt.Errorf("fixture %s: %w", name, ErrMismatch)
	}

	if r.config.Verbose {
		fmt.Fprintf(r.config.Out, "Fixture passed: %s\n", name)
	}
	return nil
}

// RunAllTests runs every fixture in the fixtures directory. The summary is
// returned even when fixtures fail; the error lists them.
func (r *Runner) RunAllTests(ctx context.Context) (*Summary, error) {
	names, err := FindFixtures(r.config.FixturesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to find fixtures: %w", err)
	}

	summary := &Summary{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		start := time.Now()
		err := r.RunTest(ctx, name)
		summary.Results = append(summary.Results, Result{Name: name, Err: err, Duration: time.Since(start)})
	}

	if failed := summary.Failed(); len(failed) > 0 {
		return summary, fmt.Errorf("fixtures failed: %v", failed)
	}
	return summary, nil
}
