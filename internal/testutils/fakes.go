package testutils

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"pipefixture/pkg/fixturetypes"
)

// FakePipeline is a scriptable fixturetypes.Pipeline. Build and StartServer
// write Outputs under the output directory, PreparePackages writes CacheFiles
// under the cache directory.
type FakePipeline struct {
	Log *CallLog

	Out         string // Output directory; relative values resolve against the root
	RelativeOut bool   // Hand out Out unresolved, violating the absolute-path contract
	NoConfig    bool   // Return neither a configuration nor an error

	Outputs    map[string]string
	CacheFiles map[string]string

	LoadErr    error
	BuildErr   error
	PrepareErr error
	StartErr   error

	// OnBuild runs after outputs are written, before Build returns.
	OnBuild func(cfg *fixturetypes.PipelineConfig) error

	mu       sync.Mutex
	roots    []string
	requests []fixturetypes.BuildRequest
	servers  []*FakeServer
}

// NewFakePipeline returns a pipeline writing to "build" with its own call log.
func NewFakePipeline() *FakePipeline {
	return &FakePipeline{Log: &CallLog{}, Out: "build"}
}

var _ fixturetypes.Pipeline = (*FakePipeline)(nil)

// LoadConfiguration records root and resolves Out, honoring an "out" override.
func (p *FakePipeline) LoadConfiguration(_ context.Context, root string, overrides map[string]any) (*fixturetypes.PipelineConfig, error) {
	p.Log.Record("load")
	p.mu.Lock()
	p.roots = append(p.roots, root)
	p.mu.Unlock()
	if p.LoadErr != nil || p.NoConfig {
		return nil, p.LoadErr
	}

	out := p.Out
	if v, ok := overrides["out"].(string); ok {
		out = v
	}
	if out == "" {
		out = "build"
	}
	if !filepath.IsAbs(out) && !p.RelativeOut {
		out = filepath.Join(root, filepath.FromSlash(out))
	}
	return fixturetypes.NewPipelineConfig(root, out, root, nil, overrides), nil
}

// Build writes Outputs.
func (p *FakePipeline) Build(_ context.Context, req fixturetypes.BuildRequest) error {
	p.Log.Record("build")
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()
	if p.BuildErr != nil {
		return p.BuildErr
	}
	if err := writeFiles(req.Config.Out(), p.Outputs); err != nil {
		return err
	}
	if p.OnBuild != nil {
		return p.OnBuild(req.Config)
	}
	return nil
}

// PreparePackages writes CacheFiles.
func (p *FakePipeline) PreparePackages(_ context.Context, cfg *fixturetypes.PipelineConfig) error {
	p.Log.Record("prepare")
	if p.PrepareErr != nil {
		return p.PrepareErr
	}
	return writeFiles(cfg.CacheDir(), p.CacheFiles)
}

// StartServer writes Outputs and returns a FakeServer.
func (p *FakePipeline) StartServer(_ context.Context, cfg *fixturetypes.PipelineConfig, _ fixturetypes.WatchOptions) (fixturetypes.Server, error) {
	p.Log.Record("start")
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	if err := writeFiles(cfg.Out(), p.Outputs); err != nil {
		return nil, err
	}
	s := &FakeServer{cfg: cfg, log: p.Log}
	p.mu.Lock()
	p.servers = append(p.servers, s)
	p.mu.Unlock()
	return s, nil
}

// Roots returns every root LoadConfiguration was called with.
func (p *FakePipeline) Roots() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.roots...)
}

// Requests returns every BuildRequest received.
func (p *FakePipeline) Requests() []fixturetypes.BuildRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]fixturetypes.BuildRequest(nil), p.requests...)
}

// LastServer returns the most recently started server, or nil.
func (p *FakePipeline) LastServer() *FakeServer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.servers) == 0 {
		return nil
	}
	return p.servers[len(p.servers)-1]
}

// FakeServer copies a changed source file to the same relative path under the
// output directory, or removes it when the source is gone. Rebuilds run one at
// a time on background goroutines.
type FakeServer struct {
	cfg *fixturetypes.PipelineConfig
	log *CallLog

	RebuildErr  error
	ShutdownErr error
	OnShutdown  func()

	rebuildMu sync.Mutex
	wg        sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	changed   []string
	shutdowns int
}

var _ fixturetypes.Server = (*FakeServer)(nil)

// Runtime returns a runtime reading the current output.
func (s *FakeServer) Runtime() fixturetypes.Runtime {
	return &FakeRuntime{server: s}
}

// MarkChanged schedules a rebuild of path.
func (s *FakeServer) MarkChanged(p string) *fixturetypes.Rebuild {
	s.log.Record("change")
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fixturetypes.CompletedRebuild(fixturetypes.ErrServerClosed)
	}
	s.changed = append(s.changed, p)

	r := fixturetypes.NewRebuild()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		r.Complete(s.rebuild(p))
	}()
	return r
}

func (s *FakeServer) rebuild(p string) error {
	s.rebuildMu.Lock()
	defer s.rebuildMu.Unlock()
	if s.RebuildErr != nil {
		return s.RebuildErr
	}
	rel, err := filepath.Rel(s.cfg.Root(), p)
	if err != nil || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%s is outside the project", p)
	}
	dst := filepath.Join(s.cfg.Out(), rel)
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return os.RemoveAll(dst)
	}
	if err != nil {
		return err
	}
	return writeFiles(s.cfg.Out(), map[string]string{filepath.ToSlash(rel): string(data)})
}

// Shutdown marks the server closed and waits for running rebuilds.
func (s *FakeServer) Shutdown(context.Context) error {
	s.log.Record("shutdown")
	s.mu.Lock()
	s.closed = true
	s.shutdowns++
	s.mu.Unlock()
	s.wg.Wait()
	if s.OnShutdown != nil {
		s.OnShutdown()
	}
	return s.ShutdownErr
}

// Changed returns every path passed to MarkChanged while open.
func (s *FakeServer) Changed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.changed...)
}

// Shutdowns returns how many times Shutdown was called.
func (s *FakeServer) Shutdowns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdowns
}

func (s *FakeServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// FakeRuntime serves the raw output files of a FakeServer.
type FakeRuntime struct {
	server *FakeServer
}

// Import reads the output file at url.
func (r *FakeRuntime) Import(ctx context.Context, url string) (*fixturetypes.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.server.isClosed() {
		return nil, fixturetypes.ErrServerClosed
	}
	clean := path.Clean("/" + url)
	data, err := os.ReadFile(filepath.Join(r.server.cfg.Out(), filepath.FromSlash(clean)))
	if err != nil {
		return nil, err
	}
	return &fixturetypes.Module{URL: clean, Code: string(data)}, nil
}

// FakeInstaller records installs and optionally writes Files into the root,
// standing in for node_modules.
type FakeInstaller struct {
	Log   *CallLog
	Err   error
	Files map[string]string

	mu        sync.Mutex
	roots     []string
	manifests []string
}

var _ fixturetypes.Installer = (*FakeInstaller)(nil)

// Install records root and the package.json it found there.
func (i *FakeInstaller) Install(_ context.Context, root string) error {
	if i.Log != nil {
		i.Log.Record("install")
	}
	manifest, _ := os.ReadFile(filepath.Join(root, "package.json"))
	i.mu.Lock()
	i.roots = append(i.roots, root)
	i.manifests = append(i.manifests, string(manifest))
	i.mu.Unlock()
	if i.Err != nil {
		return i.Err
	}
	return writeFiles(root, i.Files)
}

// Roots returns every root Install was called with.
func (i *FakeInstaller) Roots() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.roots...)
}

// Manifests returns the package.json content seen by each Install call.
func (i *FakeInstaller) Manifests() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.manifests...)
}

func writeFiles(dir string, files map[string]string) error {
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return err
		}
	}
	return nil
}
