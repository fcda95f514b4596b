// Package fixturetypes defines the contracts shared by the fixture harness and
// the build pipelines it drives.
//
// The harness never reaches into a pipeline's internals. Everything it needs is
// expressed by the small interfaces in this package, so any compliant
// implementation (the bundled dev pipeline, a real bundler adapter, or a test
// double) can be substituted.
package fixturetypes

import "context"

// Pipeline is the capability set the harness requires of a build pipeline.
type Pipeline interface {
	// LoadConfiguration resolves the pipeline settings for a project rooted at
	// root, with overrides merged on top of whatever the project declares.
	LoadConfiguration(ctx context.Context, root string, overrides map[string]any) (*PipelineConfig, error)

	// Build performs a full one-shot build.
	Build(ctx context.Context, req BuildRequest) error

	// PreparePackages resolves and stages dependency packages without building.
	PreparePackages(ctx context.Context, config *PipelineConfig) error

	// StartServer starts the long-lived watch/serve mode.
	StartServer(ctx context.Context, config *PipelineConfig, opts WatchOptions) (Server, error)
}

// Server is a running watch/serve session.
type Server interface {
	// Runtime returns the live execution runtime of the session.
	Runtime() Runtime

	// MarkChanged tells the session that the file at the absolute path changed.
	// The returned Rebuild resolves once the rebuild triggered by this
	// notification has finished.
	MarkChanged(path string) *Rebuild

	// Shutdown stops the session and any background watch process.
	Shutdown(ctx context.Context) error
}

// Runtime gives access to the modules a running session currently serves.
type Runtime interface {
	Import(ctx context.Context, url string) (*Module, error)
}

// Installer installs the dependencies declared by a project manifest.
type Installer interface {
	Install(ctx context.Context, root string) error
}

// BuildRequest carries the inputs of a one-shot build.
type BuildRequest struct {
	Config   *PipelineConfig
	Lockfile *Lockfile // nil means resolve packages fresh, nothing persisted
}

// WatchOptions controls how a server session starts.
type WatchOptions struct {
	IsWatch  bool      // Discover changes through a filesystem watcher
	Lockfile *Lockfile // nil means resolve packages fresh, nothing persisted
}

// Lockfile pins package names to the versions a build must stage.
type Lockfile struct {
	Packages map[string]string `yaml:"packages" json:"packages"`
}

// Module is a module served by a Runtime.
type Module struct {
	URL     string            // Request URL, e.g. "/index.js"
	Code    string            // Current output contents
	Exports map[string]string // Literal `export const` bindings, name to source text
}
