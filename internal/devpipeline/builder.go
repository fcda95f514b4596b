package devpipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"

	"pipefixture/pkg/fixturetypes"
)

// ManifestName is written to the output directory after every build.
const ManifestName = "build-manifest.json"

// Files at the mount root that describe the project rather than belong to it.
var projectFiles = map[string]bool{
	"package.json":       true,
	"package-lock.json":  true,
	"yarn.lock":          true,
	"pipeline.lock.yaml": true,
}

// builder holds the state of one configuration's builds. After the initial
// build it is owned by a single goroutine.
type builder struct {
	cfg      *fixturetypes.PipelineConfig
	lockfile *fixturetypes.Lockfile
	log      *log.Logger

	pkgURL   string
	staged   map[string]string // package name to its staged file path
	manifest map[string]string // output-relative path to sha256
}

func newBuilder(cfg *fixturetypes.PipelineConfig, lockfile *fixturetypes.Lockfile, l *log.Logger) *builder {
	pkgURL := "/_pkg"
	if v, ok := cfg.Setting(KeyPackageURL); ok {
		if s, ok := v.(string); ok && s != "" {
			pkgURL = "/" + strings.Trim(s, "/")
		}
	}
	return &builder{
		cfg:      cfg,
		lockfile: lockfile,
		log:      l,
		pkgURL:   pkgURL,
		staged:   make(map[string]string),
		manifest: make(map[string]string),
	}
}

// buildAll cleans the output directory, stages packages and copies every
// source file.
func (b *builder) buildAll(ctx context.Context) error {
	out := b.cfg.Out()
	if err := b.cleanOut(); err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := b.stagePackages(ctx, filepath.Join(out, strings.TrimPrefix(b.pkgURL, "/"))); err != nil {
		return err
	}

	sources, err := b.sources()
	if err != nil {
		return err
	}
	for _, rel := range sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.buildFile(rel); err != nil {
			return err
		}
	}

	b.log.Debug("Build finished", "files", len(sources), "packages", len(b.staged), "path", out)
	return b.writeManifest()
}

// cleanOut removes the previous output, unless the output directory holds the
// sources or the project itself.
func (b *builder) cleanOut() error {
	out := b.cfg.Out()
	if within(b.cfg.Root(), out) || within(b.cfg.Mount(), out) {
		return nil
	}
	if err := os.RemoveAll(out); err != nil {
		return fmt.Errorf("failed to clean output directory: %w", err)
	}
	return nil
}

// sources lists the slash-separated paths of every buildable file under the
// mount directory.
func (b *builder) sources() ([]string, error) {
	mount := b.cfg.Mount()
	var files []string
	err := filepath.WalkDir(mount, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == mount {
			return nil
		}
		rel := filepath.ToSlash(mustRel(mount, p))
		if d.IsDir() {
			if b.skipDir(p, d.Name()) || b.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if b.skipFile(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan sources: %w", err)
	}
	return files, nil
}

func (b *builder) skipDir(p, name string) bool {
	if strings.HasPrefix(name, ".") || name == "node_modules" {
		return true
	}
	return p == b.cfg.Out() || p == b.cfg.CacheDir()
}

func (b *builder) skipFile(rel string) bool {
	if !strings.Contains(rel, "/") {
		if projectFiles[rel] || strings.HasPrefix(rel, ConfigName+".") {
			return true
		}
	}
	return b.excluded(rel)
}

// excluded matches rel against the exclude globs. A leading "**/" matches at
// any depth.
func (b *builder) excluded(rel string) bool {
	for _, pattern := range b.cfg.Exclude() {
		if matchGlob(pattern, rel) {
			return true
		}
	}
	return false
}

func matchGlob(pattern, rel string) bool {
	if ok, _ := path.Match(pattern, rel); ok {
		return true
	}
	if rest, ok := strings.CutPrefix(pattern, "**/"); ok {
		segments := strings.Split(rel, "/")
		for i := range segments {
			if ok, _ := path.Match(rest, strings.Join(segments[i:], "/")); ok {
				return true
			}
		}
	}
	return false
}

// buildFile copies one source to the output directory, rewriting imports in
// scripts.
func (b *builder) buildFile(rel string) error {
	src := filepath.Join(b.cfg.Mount(), filepath.FromSlash(rel))
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if isScript(rel) {
		data = []byte(rewriteImports(string(data), b.resolveImport))
	}
	return b.emit(rel, data)
}

// removeFile drops the output of a deleted source.
func (b *builder) removeFile(rel string) error {
	dst := filepath.Join(b.cfg.Out(), filepath.FromSlash(rel))
	if err := os.Remove(dst); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", rel, err)
	}
	delete(b.manifest, rel)
	return nil
}

// emit writes an output file and records its hash.
func (b *builder) emit(rel string, data []byte) error {
	dst := filepath.Join(b.cfg.Out(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(dst, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	b.recordHash(rel, data)
	return nil
}

func (b *builder) recordHash(rel string, data []byte) {
	sum := sha256.Sum256(data)
	b.manifest[rel] = hex.EncodeToString(sum[:])
}

func (b *builder) writeManifest() error {
	data, err := json.MarshalIndent(b.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(b.cfg.Out(), ManifestName), append(data, '\n'), 0644)
}

// rebuild handles one change notification for the absolute path p.
func (b *builder) rebuild(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filepath.Clean(p) == filepath.Join(b.cfg.Root(), "package.json") {
		if err := b.stagePackages(ctx, filepath.Join(b.cfg.Out(), strings.TrimPrefix(b.pkgURL, "/"))); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return b.writeManifest()
	}

	rel, ok := relWithin(b.cfg.Mount(), p)
	if !ok || b.skipFile(rel) || b.inSkippedDir(rel) {
		return nil
	}

	if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
		if err := b.removeFile(rel); err != nil {
			return err
		}
	} else if err := b.buildFile(rel); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.log.Debug("Rebuilt", "path", rel)
	return b.writeManifest()
}

func (b *builder) inSkippedDir(rel string) bool {
	dir := path.Dir(rel)
	for dir != "." && dir != "/" {
		abs := filepath.Join(b.cfg.Mount(), filepath.FromSlash(dir))
		if b.skipDir(abs, path.Base(dir)) || b.excluded(dir) {
			return true
		}
		dir = path.Dir(dir)
	}
	return false
}

func isScript(rel string) bool {
	switch path.Ext(rel) {
	case ".js", ".mjs", ".jsx", ".ts", ".tsx":
		return true
	}
	return false
}

// within reports whether child is parent or inside it.
func within(child, parent string) bool {
	_, ok := relWithin(parent, child)
	return ok || filepath.Clean(child) == filepath.Clean(parent)
}

// relWithin returns the slash-separated path of p relative to base, if p is
// strictly inside base.
func relWithin(base, p string) (string, bool) {
	rel, err := filepath.Rel(base, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func mustRel(base, p string) string {
	rel, err := filepath.Rel(base, p)
	if err != nil {
		return p
	}
	return rel
}
