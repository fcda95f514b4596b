package devpipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"pipefixture/pkg/fixturetypes"
)

const changeQueueSize = 64

type change struct {
	path    string
	rebuild *fixturetypes.Rebuild
}

// server serves incremental rebuilds of one project. A single goroutine owns
// the builder after startup and applies changes in arrival order.
type server struct {
	id  string
	b   *builder
	log *log.Logger

	mu      sync.Mutex // guards closed and sends on changes
	closed  bool
	changes chan change
	done    chan struct{}
	stop    context.CancelFunc
	wg      sync.WaitGroup

	watcher *fsnotify.Watcher
	runtime *runtime
}

func startServer(ctx context.Context, b *builder, opts fixturetypes.WatchOptions, l *log.Logger) (*server, error) {
	if err := b.buildAll(ctx); err != nil {
		return nil, fmt.Errorf("initial build failed: %w", err)
	}

	id := uuid.New().String()
	s := &server{
		id:      id,
		b:       b,
		log:     l.With("session", id[:8]),
		changes: make(chan change, changeQueueSize),
		done:    make(chan struct{}),
	}
	s.runtime = &runtime{server: s}

	if opts.IsWatch {
		if err := s.watch(); err != nil {
			return nil, err
		}
	}

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	s.stop = stop
	s.wg.Add(1)
	go s.loop(loopCtx)

	s.log.Debug("Server started", "watch", opts.IsWatch, "path", b.cfg.Root())
	return s, nil
}

// Runtime returns the live module runtime.
func (s *server) Runtime() fixturetypes.Runtime {
	return s.runtime
}

// MarkChanged queues a rebuild of the file at path.
func (s *server) MarkChanged(path string) *fixturetypes.Rebuild {
	r := fixturetypes.NewRebuild()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		r.Complete(fixturetypes.ErrServerClosed)
		return r
	}
	s.changes <- change{path: path, rebuild: r}
	return r
}

// Shutdown stops the watcher and the rebuild loop. A rebuild in flight is
// cancelled and always waited for, whatever the state of ctx, so nothing
// writes to the project once Shutdown returns. Changes still queued resolve
// with ErrServerClosed. Calling it again is a no-op.
func (s *server) Shutdown(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.stop()
	var watchErr error
	if s.watcher != nil {
		watchErr = s.watcher.Close()
	}
	s.wg.Wait()

	for {
		select {
		case c := <-s.changes:
			c.rebuild.Complete(fixturetypes.ErrServerClosed)
		default:
			s.log.Debug("Server stopped")
			return watchErr
		}
	}
}

func (s *server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *server) loop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case c := <-s.changes:
			err := s.b.rebuild(ctx, c.path)
			if err != nil {
				s.log.Warn("Rebuild failed", "path", c.path, "error", err)
			}
			c.rebuild.Complete(err)
		}
	}
}

// watch feeds filesystem events into the change queue. Directories created
// later are added as they appear.
func (s *server) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	s.watcher = w
	if err := s.addDirs(s.b.cfg.Mount()); err != nil {
		_ = w.Close()
		return err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.done:
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				s.handleEvent(ev)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Warn("Watcher error", "error", err)
			}
		}
	}()
	return nil
}

func (s *server) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	if ev.Has(fsnotify.Create) {
		if err := s.addDirs(ev.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.log.Warn("Failed to watch directory", "path", ev.Name, "error", err)
		}
	}
	s.MarkChanged(ev.Name)
}

// addDirs watches root and every buildable directory below it. Plain files
// are ignored.
func (s *server) addDirs(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != s.b.cfg.Mount() {
			if s.b.skipDir(p, d.Name()) {
				return filepath.SkipDir
			}
			if rel, ok := relWithin(s.b.cfg.Mount(), p); ok && s.b.excluded(rel) {
				return filepath.SkipDir
			}
		}
		return s.watcher.Add(p)
	})
}
