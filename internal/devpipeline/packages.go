package devpipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// ImportMapName is written next to packages staged by PreparePackages.
const ImportMapName = "import-map.json"

type packageManifest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	Module       string            `json:"module"`
	Main         string            `json:"main"`
	Dependencies map[string]string `json:"dependencies"`
}

type importMap struct {
	Imports map[string]string `json:"imports"`
}

// dependencies lists the names the project manifest declares, sorted. A
// project without a manifest has none.
func (b *builder) dependencies() ([]string, error) {
	data, err := os.ReadFile(filepath.Join(b.cfg.Root(), "package.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read package.json: %w", err)
	}
	var m packageManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse package.json: %w", err)
	}
	names := make([]string, 0, len(m.Dependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// stagePackages copies the entry point of every declared, installed
// dependency into dir as <name>.js and remembers it for import rewriting.
func (b *builder) stagePackages(ctx context.Context, dir string) error {
	names, err := b.dependencies()
	if err != nil {
		return err
	}

	// Register every package before writing any, so packages importing each
	// other are rewritten regardless of order.
	codes := make(map[string]string, len(names))
	b.staged = make(map[string]string, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		code, err := b.readPackage(name)
		if err != nil {
			return err
		}
		codes[name] = code
		b.staged[name] = filepath.Join(dir, filepath.FromSlash(name)+".js")
	}

	for _, name := range names {
		target := b.staged[name]
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
		data := []byte(rewriteImports(codes[name], b.resolveImport))
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
		if rel, ok := relWithin(b.cfg.Out(), target); ok {
			b.recordHash(rel, data)
		}
	}
	return nil
}

// readPackage returns the entry point source of an installed package,
// checking it against the lockfile when one was supplied.
func (b *builder) readPackage(name string) (string, error) {
	pkgDir := filepath.Join(b.cfg.Root(), "node_modules", filepath.FromSlash(name))
	var m packageManifest
	if data, err := os.ReadFile(filepath.Join(pkgDir, "package.json")); err == nil {
		if err := json.Unmarshal(data, &m); err != nil {
			return "", fmt.Errorf("failed to parse package.json of %s: %w", name, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to read package.json of %s: %w", name, err)
	}

	if b.lockfile != nil {
		want, pinned := b.lockfile.Packages[name]
		if !pinned {
			return "", fmt.Errorf("package %s is not in the lockfile", name)
		}
		if m.Version != "" && m.Version != want {
			return "", fmt.Errorf("package %s is installed at %s, lockfile pins %s", name, m.Version, want)
		}
	}

	entry := m.Module
	if entry == "" {
		entry = m.Main
	}
	if entry == "" {
		entry = "index.js"
	}
	code, err := os.ReadFile(filepath.Join(pkgDir, filepath.FromSlash(path.Clean(entry))))
	if err != nil {
		return "", fmt.Errorf("package %s is not installed: %w", name, err)
	}
	return string(code), nil
}

// resolveImport maps a bare specifier of a staged package to its URL.
func (b *builder) resolveImport(spec string) (string, bool) {
	name := packageName(spec)
	if _, ok := b.staged[name]; !ok || spec != name {
		return "", false
	}
	return b.pkgURL + "/" + name + ".js", true
}

// prepare stages packages into the cache directory and writes the import map.
func (b *builder) prepare(ctx context.Context) error {
	dir := filepath.Join(b.cfg.CacheDir(), "pkg")
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to clear package cache: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create package cache: %w", err)
	}
	if err := b.stagePackages(ctx, dir); err != nil {
		return err
	}

	imports := importMap{Imports: make(map[string]string, len(b.staged))}
	for name := range b.staged {
		imports.Imports[name] = b.pkgURL + "/" + name + ".js"
	}
	data, err := json.MarshalIndent(imports, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode import map: %w", err)
	}
	b.log.Debug("Prepared packages", "packages", len(b.staged), "path", dir)
	return os.WriteFile(filepath.Join(dir, ImportMapName), append(data, '\n'), 0644)
}
