// Package harness runs a build pipeline against a throwaway project: it
// materializes a file tree in a fresh workspace, installs dependencies when
// the tree declares any, drives the pipeline and collects its text output.
// The workspace is removed on every exit path.
package harness

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"

	"pipefixture/internal/artifacts"
	"pipefixture/internal/filetree"
	"pipefixture/internal/installer"
	"pipefixture/internal/logger"
	"pipefixture/internal/workspace"
	"pipefixture/pkg/fixturetypes"
)

// Config controls where workspaces are created and whether they survive.
type Config struct {
	TempRoot      string // Parent of every workspace; empty means the OS temp dir
	Prefix        string // Workspace directory prefix; empty means workspace.DefaultPrefix
	KeepWorkspace bool   // Leave workspaces on disk for debugging
}

// Harness drives one pipeline. It holds no per-run state, so a single value
// may serve concurrent runs.
type Harness struct {
	cfg       Config
	pipeline  fixturetypes.Pipeline
	installer fixturetypes.Installer
	log       *log.Logger
	newID     func() string
}

// Option configures a Harness.
type Option func(*Harness)

// WithInstaller sets the dependency installer. The default runs yarn.
func WithInstaller(i fixturetypes.Installer) Option {
	return func(h *Harness) { h.installer = i }
}

// WithLogger sets the logger for workspace lifecycle messages.
func WithLogger(l *log.Logger) Option {
	return func(h *Harness) { h.log = l }
}

// WithIDs sets the workspace ID generator.
func WithIDs(next func() string) Option {
	return func(h *Harness) { h.newID = next }
}

// New returns a harness for pipeline.
func New(cfg Config, pipeline fixturetypes.Pipeline, opts ...Option) *Harness {
	h := &Harness{
		cfg:       cfg,
		pipeline:  pipeline,
		installer: installer.NewCommand(installer.DefaultCommand),
		log:       logger.NewStyledLogger("harness"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// PrepareResult is the outcome of PreparePackages. The configuration refers
// to a workspace that no longer exists; only its values are meaningful.
type PrepareResult struct {
	Config    *fixturetypes.PipelineConfig
	Artifacts fixturetypes.ArtifactSet
}

// Build runs a one-shot build of tree and returns its text artifacts.
func (h *Harness) Build(ctx context.Context, tree filetree.Tree, opts fixturetypes.Options) (_ fixturetypes.ArtifactSet, err error) {
	ws, err := h.createWorkspace(tree)
	if err != nil {
		return nil, err
	}
	defer func() { err = h.teardown(ws, err) }()

	cfg, err := h.setup(ctx, ws, tree, opts)
	if err != nil {
		return nil, err
	}
	if err := h.pipeline.Build(ctx, fixturetypes.BuildRequest{Config: cfg}); err != nil {
		return nil, fixturetypes.NewPipelineError("build", err)
	}
	return collect(cfg, opts)
}

// PreparePackages runs the pipeline's dependency preparation for tree. The
// artifacts, staged cache included, are collected before the workspace goes
// away.
func (h *Harness) PreparePackages(ctx context.Context, tree filetree.Tree, opts fixturetypes.Options) (_ *PrepareResult, err error) {
	ws, err := h.createWorkspace(tree)
	if err != nil {
		return nil, err
	}
	defer func() { err = h.teardown(ws, err) }()

	cfg, err := h.setup(ctx, ws, tree, opts)
	if err != nil {
		return nil, err
	}
	if err := h.pipeline.PreparePackages(ctx, cfg); err != nil {
		return nil, fixturetypes.NewPipelineError("prepare packages", err)
	}
	set, err := collect(cfg, opts)
	if err != nil {
		return nil, err
	}
	return &PrepareResult{Config: cfg, Artifacts: set}, nil
}

// StartRuntime materializes tree and starts the pipeline's server on it. The
// caller owns the returned fixture and must call Cleanup. If starting fails,
// everything acquired so far is released before returning.
func (h *Harness) StartRuntime(ctx context.Context, tree filetree.Tree, opts fixturetypes.Options) (_ *RuntimeFixture, err error) {
	ws, err := h.createWorkspace(tree)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = h.teardown(ws, err)
		}
	}()

	cfg, err := h.setup(ctx, ws, tree, opts)
	if err != nil {
		return nil, err
	}
	srv, err := h.pipeline.StartServer(ctx, cfg, fixturetypes.WatchOptions{IsWatch: false})
	if err != nil {
		return nil, fixturetypes.NewPipelineError("start server", err)
	}
	h.log.Debug("Runtime started", "workspace", ws.ID)
	return &RuntimeFixture{
		ws:      ws,
		config:  cfg,
		server:  srv,
		runtime: srv.Runtime(),
		opts:    opts,
		log:     h.log,
	}, nil
}

func (h *Harness) createWorkspace(tree filetree.Tree) (*workspace.Workspace, error) {
	if err := tree.Validate(); err != nil {
		return nil, fixturetypes.NewSetupError("validate file tree", err)
	}
	ws, err := workspace.New(workspace.Options{
		Root:   h.cfg.TempRoot,
		Prefix: h.cfg.Prefix,
		Keep:   h.cfg.KeepWorkspace,
		Logger: h.log,
		NewID:  h.newID,
	})
	if err != nil {
		return nil, fixturetypes.NewSetupError("create workspace", err)
	}
	return ws, nil
}

// setup writes the tree, installs dependencies when a manifest is present and
// loads the pipeline configuration.
func (h *Harness) setup(ctx context.Context, ws *workspace.Workspace, tree filetree.Tree, opts fixturetypes.Options) (*fixturetypes.PipelineConfig, error) {
	if err := filetree.Materialize(ws.Path(), tree); err != nil {
		return nil, fixturetypes.NewSetupError("materialize file tree", err)
	}

	if tree.HasManifest() {
		h.log.Debug("Installing dependencies", "workspace", ws.ID)
		if err := h.installer.Install(ctx, ws.Path()); err != nil {
			return nil, fixturetypes.NewInstallError("install dependencies", err)
		}
	}

	cfg, err := h.pipeline.LoadConfiguration(ctx, ws.Path(), opts.Overrides)
	if err != nil {
		return nil, fixturetypes.NewConfigError("load configuration", err)
	}
	if cfg == nil {
		return nil, fixturetypes.NewConfigError("load configuration", errors.New("pipeline returned no configuration"))
	}
	if !filepath.IsAbs(cfg.Out()) {
		return nil, fixturetypes.NewConfigError("load configuration", fmt.Errorf("%w: %q", fixturetypes.ErrOutputNotAbsolute, cfg.Out()))
	}
	return cfg, nil
}

// teardown removes ws and folds a removal failure into the run's error.
func (h *Harness) teardown(ws *workspace.Workspace, runErr error) error {
	rmErr := ws.Remove()
	if rmErr == nil {
		return runErr
	}
	h.log.Warn("Workspace teardown failed", "workspace", ws.ID, "error", rmErr)
	return errors.Join(runErr, fixturetypes.NewSetupError("remove workspace", rmErr))
}

func collect(cfg *fixturetypes.PipelineConfig, opts fixturetypes.Options) (fixturetypes.ArtifactSet, error) {
	set, err := artifacts.NewCollector(cfg).Collect(opts.Absolute, opts.Collision)
	if err != nil {
		if fixturetypes.StageOf(err) == "" {
			err = fixturetypes.NewCollectionError("collect artifacts", err)
		}
		return nil, err
	}
	return set, nil
}
