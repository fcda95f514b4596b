package golden

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"pipefixture/internal/harness"
	"pipefixture/internal/normalize"
	"pipefixture/pkg/fixturetypes"
)

// Config holds the settings shared by the recorder, runner and differ.
type Config struct {
	FixturesDir string
	TempRoot    string // Must match the harness' temp root for paths to normalize
	Prefix      string // Must match the harness' workspace prefix
	Verbose     bool
	Out         io.Writer
}

// Executor runs fixtures through a harness and renders the outcome as
// normalized text.
type Executor struct {
	harness    *harness.Harness
	normalizer *normalize.NormalizationEngine
}

// NewExecutor returns an executor normalizing paths under the configured
// temp root.
func NewExecutor(h *harness.Harness, config *Config) *Executor {
	normalizer := normalize.NewNormalizationEngine()
	normalizer.AddWorkspaceRoot(config.TempRoot, config.Prefix)
	return &Executor{harness: h, normalizer: normalizer}
}

// Execute runs f and returns its rendered output. Harness failures are part
// of the output, so fixtures can pin expected errors; only an unusable
// fixture is returned as an error.
func (e *Executor) Execute(ctx context.Context, f *Fixture) (string, error) {
	opts, err := f.Options()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	switch f.Mode {
	case ModeBuild:
		set, err := e.harness.Build(ctx, f.Tree(), opts)
		if err != nil {
			writeError(&out, err)
			break
		}
		writeArtifacts(&out, set)
	case ModePrepare:
		res, err := e.harness.PreparePackages(ctx, f.Tree(), opts)
		if err != nil {
			writeError(&out, err)
			break
		}
		writeConfig(&out, res.Config)
		writeArtifacts(&out, res.Artifacts)
	case ModeRuntime:
		if err := e.executeRuntime(ctx, f, opts, &out); err != nil {
			writeError(&out, err)
		}
	default:
		return "", fmt.Errorf("fixture %s: unknown mode %q", f.Name, f.Mode)
	}
	return e.normalizer.NormalizeOutput(strings.TrimRight(out.String(), "\n")), nil
}

func (e *Executor) executeRuntime(ctx context.Context, f *Fixture, opts fixturetypes.Options, out *strings.Builder) (err error) {
	rt, err := e.harness.StartRuntime(ctx, f.Tree(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if cleanupErr := rt.Cleanup(ctx); err == nil {
			err = cleanupErr
		}
	}()

	for _, step := range f.Steps {
		if step.Write != "" {
			rebuild, err := rt.WriteFile(ctx, step.Write, step.Content)
			if err != nil {
				return err
			}
			if err := rebuild.Wait(ctx); err != nil {
				return fmt.Errorf("rebuild after writing %s: %w", step.Write, err)
			}
			continue
		}
		mod, err := rt.Runtime().Import(ctx, step.Import)
		if err != nil {
			return fmt.Errorf("import %s: %w", step.Import, err)
		}
		writeExports(out, mod)
	}

	set, err := rt.ReadFiles()
	if err != nil {
		return err
	}
	writeArtifacts(out, set)
	return nil
}

// writeArtifacts renders one "=== key ===" block per artifact, in key order.
func writeArtifacts(out *strings.Builder, set fixturetypes.ArtifactSet) {
	for _, key := range set.Keys() {
		writeBlock(out, key, set[key])
	}
}

func writeConfig(out *strings.Builder, cfg *fixturetypes.PipelineConfig) {
	var b strings.Builder
	fmt.Fprintf(&b, "root: %s\n", cfg.Root())
	fmt.Fprintf(&b, "out: %s\n", cfg.Out())
	fmt.Fprintf(&b, "mount: %s\n", cfg.Mount())
	fmt.Fprintf(&b, "cache: %s\n", cfg.CacheDir())
	writeBlock(out, "config", b.String())
}

func writeExports(out *strings.Builder, mod *fixturetypes.Module) {
	names := make([]string, 0, len(mod.Exports))
	for name := range mod.Exports {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "%s = %s\n", name, mod.Exports[name])
	}
	writeBlock(out, "import "+mod.URL, b.String())
}

func writeError(out *strings.Builder, err error) {
	stage := fixturetypes.StageOf(err)
	if stage == "" {
		stage = "error"
	}
	writeBlock(out, "error", fmt.Sprintf("%s: %v", stage, err))
}

func writeBlock(out *strings.Builder, title, body string) {
	fmt.Fprintf(out, "=== %s ===\n", title)
	out.WriteString(body)
	if body != "" && !strings.HasSuffix(body, "\n") {
		out.WriteByte('\n')
	}
}
