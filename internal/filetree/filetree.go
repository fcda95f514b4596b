// Package filetree describes a project's initial file contents in memory and
// writes them into a workspace.
package filetree

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"pipefixture/pkg/fixturetypes"
)

// Placeholder is replaced by the workspace's absolute, slash-separated path in
// every materialized file.
const Placeholder = "%TEMP_TEST_DIRECTORY%"

// DefaultEntry is the file a single-file shorthand is stored under.
const DefaultEntry = "index.js"

// ManifestName is the dependency manifest that triggers installation.
const ManifestName = "package.json"

// Tree maps relative, slash-separated file paths to their raw text content.
type Tree map[string]string

// FromString normalizes the single-file shorthand.
func FromString(content string) Tree {
	return Tree{DefaultEntry: content}
}

// Paths returns the tree's keys in sorted order.
func (t Tree) Paths() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasManifest reports whether the tree declares a dependency manifest at its root.
func (t Tree) HasManifest() bool {
	_, ok := t[ManifestName]
	return ok
}

// Validate checks every key is a usable relative path.
func (t Tree) Validate() error {
	for _, p := range t.Paths() {
		if err := ValidatePath(p); err != nil {
			return err
		}
	}
	return nil
}

// ValidatePath rejects empty, absolute, escaping and placeholder-bearing paths.
func ValidatePath(p string) error {
	switch {
	case p == "":
		return fmt.Errorf("%w: empty path", fixturetypes.ErrInvalidPath)
	case strings.Contains(p, Placeholder):
		return fmt.Errorf("%w: %q contains %s", fixturetypes.ErrInvalidPath, p, Placeholder)
	case path.IsAbs(p) || filepath.IsAbs(p) || filepath.VolumeName(p) != "":
		return fmt.Errorf("%w: %q is absolute", fixturetypes.ErrInvalidPath, p)
	}
	clean := path.Clean(filepath.ToSlash(p))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q escapes the workspace", fixturetypes.ErrInvalidPath, p)
	}
	return nil
}

// Substitute replaces every placeholder in content with root rendered with
// forward slashes.
func Substitute(content, root string) string {
	return strings.ReplaceAll(content, Placeholder, filepath.ToSlash(root))
}

// Materialize writes every entry of t under root, in sorted path order.
func Materialize(root string, t Tree) error {
	if err := t.Validate(); err != nil {
		return err
	}
	for _, p := range t.Paths() {
		if _, err := WriteFile(root, p, t[p]); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile substitutes the placeholder in content, creates the parent
// directories of rel under root and writes the file. It returns the absolute
// path written.
func WriteFile(root, rel, content string) (string, error) {
	if err := ValidatePath(rel); err != nil {
		return "", err
	}
	target := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(target, []byte(Substitute(content, root)), 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return target, nil
}

// skippedDirs are never read by FromDir.
var skippedDirs = map[string]bool{
	".git":                    true,
	"node_modules":            true,
	fixturetypes.CacheDirName: true,
}

// FromDir reads every regular file under dir into a tree. Installed
// dependencies, the pipeline cache and VCS metadata are skipped.
func FromDir(dir string) (Tree, error) {
	t := make(Tree)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != dir && skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		t[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read project %s: %w", dir, err)
	}
	return t, nil
}
