package installer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"pipefixture/internal/filetree"
	"pipefixture/internal/logger"
	"pipefixture/pkg/fixturetypes"
)

// ModulesDir is where installed packages land inside the project root.
const ModulesDir = "node_modules"

// LockfileName is written next to the manifest after a store install.
const LockfileName = "pipeline.lock.yaml"

// Store installs packages offline from a local package store laid out as
// <Dir>/<name>/<version>/..., resolving each declared range to the highest
// satisfying version.
type Store struct {
	Dir string
}

// NewStore returns a store installer reading from dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

type manifest struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Install resolves the manifest in root against the store, copies every
// resolved package into node_modules and writes the lockfile.
func (s *Store) Install(ctx context.Context, root string) error {
	deps, err := readManifest(root)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	lock := fixturetypes.Lockfile{Packages: make(map[string]string, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := filetree.ValidatePath(name); err != nil {
			return fmt.Errorf("invalid package name %q: %w", name, err)
		}
		version, err := s.Resolve(name, deps[name])
		if err != nil {
			return err
		}
		src := filepath.Join(s.Dir, filepath.FromSlash(name), version.Original())
		dst := filepath.Join(root, ModulesDir, filepath.FromSlash(name))
		if err := os.RemoveAll(dst); err != nil {
			return fmt.Errorf("failed to clear %s: %w", dst, err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
		}
		if err := os.CopyFS(dst, os.DirFS(src)); err != nil {
			return fmt.Errorf("failed to install %s@%s: %w", name, version, err)
		}
		lock.Packages[name] = version.String()
		logger.Debug("Installed package", "package", name, "version", version.String())
	}

	data, err := yaml.Marshal(&lock)
	if err != nil {
		return fmt.Errorf("failed to encode lockfile: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, LockfileName), data, 0644); err != nil {
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	return nil
}

// Resolve returns the highest version of name in the store satisfying rng.
// "latest" and "" are treated as any version.
func (s *Store) Resolve(name, rng string) (*semver.Version, error) {
	if rng == "" || rng == "latest" {
		rng = "*"
	}
	constraint, err := semver.NewConstraint(rng)
	if err != nil {
		return nil, fmt.Errorf("invalid version range %q for %s: %w", rng, name, err)
	}

	entries, err := os.ReadDir(filepath.Join(s.Dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("package %s not found in store: %w", name, err)
	}

	var best *semver.Version
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, err := semver.NewVersion(entry.Name())
		if err != nil {
			continue
		}
		if constraint.Check(v) && (best == nil || v.GreaterThan(best)) {
			best = v
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no version of %s satisfies %s", name, rng)
	}
	return best, nil
}

func readManifest(root string) (map[string]string, error) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	deps := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies))
	for k, v := range m.DevDependencies {
		deps[k] = v
	}
	for k, v := range m.Dependencies {
		deps[k] = v
	}
	return deps, nil
}
