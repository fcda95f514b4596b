package harness

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"pipefixture/internal/filetree"
	"pipefixture/internal/workspace"
	"pipefixture/pkg/fixturetypes"
)

// RuntimeFixture is a running pipeline server over a live workspace.
type RuntimeFixture struct {
	ws      *workspace.Workspace
	config  *fixturetypes.PipelineConfig
	server  fixturetypes.Server
	runtime fixturetypes.Runtime
	opts    fixturetypes.Options
	log     *log.Logger

	closed     atomic.Bool
	mu         sync.Mutex // serializes Cleanup
	cleaned    bool
	cleanupErr error
}

// Runtime returns the server's module runtime.
func (f *RuntimeFixture) Runtime() fixturetypes.Runtime {
	return f.runtime
}

// Config returns the loaded pipeline configuration.
func (f *RuntimeFixture) Config() *fixturetypes.PipelineConfig {
	return f.config
}

// Root returns the workspace path.
func (f *RuntimeFixture) Root() string {
	return f.ws.Path()
}

// WriteFile writes content to the slash-separated path rel inside the
// workspace, substituting the workspace placeholder, and notifies the server.
// The returned Rebuild resolves once the server has processed the change.
func (f *RuntimeFixture) WriteFile(ctx context.Context, rel, content string) (*fixturetypes.Rebuild, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.closed.Load() {
		return nil, fixturetypes.NewPipelineError("write "+rel, fixturetypes.ErrServerClosed)
	}
	abs, err := filetree.WriteFile(f.ws.Path(), rel, content)
	if err != nil {
		return nil, fixturetypes.NewSetupError("write "+rel, err)
	}
	f.log.Debug("File changed", "workspace", f.ws.ID, "path", rel)
	return f.server.MarkChanged(abs), nil
}

// ReadFiles collects the current output. It does not wait for pending
// rebuilds.
func (f *RuntimeFixture) ReadFiles() (fixturetypes.ArtifactSet, error) {
	if f.closed.Load() {
		return nil, fixturetypes.NewCollectionError("read files", fixturetypes.ErrServerClosed)
	}
	return collect(f.config, f.opts)
}

// Cleanup shuts the server down, then removes the workspace. It is safe on a
// nil fixture, so it may be deferred before checking the StartRuntime error.
// If the server fails to stop, the workspace is left in place and Cleanup may
// be called again. Once the server has stopped, later calls return the first
// result.
func (f *RuntimeFixture) Cleanup(ctx context.Context) error {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cleaned {
		return f.cleanupErr
	}

	f.closed.Store(true)
	if err := f.server.Shutdown(ctx); err != nil {
		f.log.Warn("Server shutdown failed, keeping workspace", "workspace", f.ws.ID, "error", err)
		return fixturetypes.NewPipelineError("shut down server", err)
	}
	f.cleaned = true
	if err := f.ws.Remove(); err != nil {
		f.cleanupErr = fixturetypes.NewSetupError("remove workspace", err)
	}
	f.log.Debug("Runtime cleaned up", "workspace", f.ws.ID)
	return f.cleanupErr
}
