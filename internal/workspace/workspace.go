// Package workspace allocates isolated, uniquely named project directories and
// tears them down.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"pipefixture/internal/logger"
)

// DefaultPrefix names workspace directories when no prefix is configured.
const DefaultPrefix = "pipefixture-"

// Options controls where and how workspaces are created.
type Options struct {
	Root   string        // Parent directory; empty means os.TempDir()
	Prefix string        // Directory name prefix; empty means DefaultPrefix
	Keep   bool          // Skip deletion on Remove, for debugging
	Logger *log.Logger   // Optional; defaults to the global logger
	NewID  func() string // Optional; defaults to random UUIDs
}

// Workspace is a temporary project directory owned by a single fixture run.
type Workspace struct {
	ID   string
	path string
	keep bool
	log  *log.Logger

	once      sync.Once
	removeErr error
}

// New creates a fresh, empty workspace. The parent directory is created on
// demand so a configured temp root does not have to exist beforehand.
func New(opts Options) (*Workspace, error) {
	root := opts.Root
	if root == "" {
		root = os.TempDir()
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	l := opts.Logger
	if l == nil {
		l = logger.Logger
	}
	newID := opts.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp root %s: %w", root, err)
	}
	dir, err := os.MkdirTemp(root, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	// Pipelines compare paths they receive against paths they walk, so hand
	// out the fully resolved location (macOS /var -> /private/var).
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("failed to resolve workspace path: %w", err)
	}

	ws := &Workspace{
		ID:   newID(),
		path: abs,
		keep: opts.Keep,
		log:  l,
	}
	ws.log.Debug("Workspace created", "workspace", ws.ID, "path", ws.path)
	return ws, nil
}

// Path returns the workspace's absolute path.
func (w *Workspace) Path() string {
	return w.path
}

// Remove deletes the workspace recursively. Only the first call does any work;
// later calls return the first result. A nil workspace is a no-op.
func (w *Workspace) Remove() error {
	if w == nil {
		return nil
	}
	w.once.Do(func() {
		if w.keep {
			w.log.Info("Keeping workspace", "workspace", w.ID, "path", w.path)
			return
		}
		if err := os.RemoveAll(w.path); err != nil {
			w.removeErr = fmt.Errorf("failed to remove workspace %s: %w", w.path, err)
			return
		}
		w.log.Debug("Workspace removed", "workspace", w.ID)
	})
	return w.removeErr
}
