package golden

import (
	"context"
	"fmt"
	"os"
)

// Recorder writes golden files.
type Recorder struct {
	config   *Config
	executor *Executor
}

// NewRecorder creates a recorder.
func NewRecorder(config *Config, executor *Executor) *Recorder {
	return &Recorder{config: config, executor: executor}
}

// RecordTest runs the named fixture and saves its output as the golden file.
func (r *Recorder) RecordTest(ctx context.Context, name string) error {
	if r.config.Verbose {
		fmt.Fprintf(r.config.Out, "Recording fixture: %s\n", name)
	}

	fixture, err := LoadFixture(r.config.FixturesDir, name)
	if err != nil {
		return err
	}
	output, err := r.executor.Execute(ctx, fixture)
	if err != nil {
		return err
	}

	expectedPath := ExpectedPath(r.config.FixturesDir, name)
	if err := os.WriteFile(expectedPath, []byte(output+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write expected file: %w", err)
	}

	if r.config.Verbose {
		fmt.Fprintf(r.config.Out, "Recorded expected output for fixture: %s\n", name)
	}
	return nil
}

// AcceptTest replaces the golden file with the current output.
func (r *Recorder) AcceptTest(ctx context.Context, name string) error {
	return r.RecordTest(ctx, name)
}
