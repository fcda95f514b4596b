// Package devpipeline is a small static build pipeline used to exercise the
// fixture harness end to end. It copies a project's sources into an output
// directory, rewrites bare package imports to staged copies, records content
// hashes and can serve incremental rebuilds.
package devpipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"

	"pipefixture/internal/logger"
	"pipefixture/pkg/fixturetypes"
)

// ConfigName is the project configuration file name, without extension.
// Any format viper reads (json, yaml, toml, ...) is accepted.
const ConfigName = "pipeline.config"

// Setting keys understood by the pipeline.
const (
	KeyOut        = "out"
	KeyMount      = "mount"
	KeyExclude    = "exclude"
	KeyPackageURL = "packages.url"
)

// Pipeline implements fixturetypes.Pipeline.
type Pipeline struct {
	log *log.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for build progress.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// New returns a pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{log: logger.NewStyledLogger("devpipeline")}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

var _ fixturetypes.Pipeline = (*Pipeline)(nil)

// LoadConfiguration resolves defaults, then the project's pipeline.config
// file if any, then overrides. Relative paths resolve against root.
func (p *Pipeline) LoadConfiguration(_ context.Context, root string, overrides map[string]any) (*fixturetypes.PipelineConfig, error) {
	v := viper.New()
	v.SetDefault(KeyOut, "build")
	v.SetDefault(KeyMount, ".")
	v.SetDefault(KeyExclude, []string{})
	v.SetDefault(KeyPackageURL, "/_pkg")

	v.SetConfigName(ConfigName)
	v.AddConfigPath(root)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", ConfigName, err)
		}
	} else {
		p.log.Debug("Loaded project config", "path", v.ConfigFileUsed())
	}

	if len(overrides) > 0 {
		if err := v.MergeConfigMap(overrides); err != nil {
			return nil, fmt.Errorf("failed to merge overrides: %w", err)
		}
	}

	settings := make(map[string]any)
	for _, key := range v.AllKeys() {
		settings[key] = v.Get(key)
	}

	return fixturetypes.NewPipelineConfig(
		root,
		resolve(root, v.GetString(KeyOut)),
		resolve(root, v.GetString(KeyMount)),
		v.GetStringSlice(KeyExclude),
		settings,
	), nil
}

// Build runs a full one-shot build.
func (p *Pipeline) Build(ctx context.Context, req fixturetypes.BuildRequest) error {
	if req.Config == nil {
		return errors.New("build requires a configuration")
	}
	return newBuilder(req.Config, req.Lockfile, p.log).buildAll(ctx)
}

// PreparePackages stages the project's dependencies into the cache directory
// and writes an import map next to them.
func (p *Pipeline) PreparePackages(ctx context.Context, config *fixturetypes.PipelineConfig) error {
	if config == nil {
		return errors.New("prepare requires a configuration")
	}
	b := newBuilder(config, nil, p.log)
	return b.prepare(ctx)
}

// StartServer builds the project once and starts serving incremental
// rebuilds.
func (p *Pipeline) StartServer(ctx context.Context, config *fixturetypes.PipelineConfig, opts fixturetypes.WatchOptions) (fixturetypes.Server, error) {
	if config == nil {
		return nil, errors.New("server requires a configuration")
	}
	return startServer(ctx, newBuilder(config, opts.Lockfile, p.log), opts, p.log)
}

func resolve(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, filepath.FromSlash(p))
}
