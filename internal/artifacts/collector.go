// Package artifacts collects a pipeline's text outputs from its output
// directory and its cache directory.
package artifacts

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"unicode/utf8"

	"pipefixture/pkg/fixturetypes"
)

// TextExtensions lists the file kinds collected. Everything else (images,
// fonts, media, archives) is skipped. Matching is case-sensitive.
var TextExtensions = []string{
	"css",
	"html",
	"js",
	"map",
	"jsx",
	"ts",
	"tsx",
	"svelte",
	"svg",
	"vue",
	"json",
}

var textExtensionSet = func() map[string]bool {
	m := make(map[string]bool, len(TextExtensions))
	for _, ext := range TextExtensions {
		m[ext] = true
	}
	return m
}()

// IsText reports whether name has an allow-listed extension.
func IsText(name string) bool {
	ext := filepath.Ext(name)
	if ext == "" {
		return false
	}
	return textExtensionSet[ext[1:]]
}

// Entry is one collected file.
type Entry struct {
	Path    string // Absolute path on disk
	Content string
}

// Scan is the raw result of scanning both roots, before keys are assigned.
type Scan struct {
	Output []Entry // From the output directory, sorted by path
	Cache  []Entry // From the cache directory, sorted by path
}

// Collector scans a pipeline's output and cache directories.
type Collector struct {
	OutDir   string // Must be absolute
	CacheDir string // Must be absolute
}

// NewCollector returns a collector for the given configuration.
func NewCollector(config *fixturetypes.PipelineConfig) *Collector {
	return &Collector{OutDir: config.Out(), CacheDir: config.CacheDir()}
}

// Scan reads every text file under the output directory, then every text file
// under the cache directory. The first unreadable or non-UTF-8 file aborts the
// scan.
func (c *Collector) Scan() (*Scan, error) {
	if !filepath.IsAbs(c.OutDir) {
		return nil, fixturetypes.NewConfigError("collect", fmt.Errorf("%w: %q", fixturetypes.ErrOutputNotAbsolute, c.OutDir))
	}
	output, err := readTree(c.OutDir)
	if err != nil {
		return nil, err
	}
	cache, err := readTree(c.CacheDir)
	if err != nil {
		return nil, err
	}
	return &Scan{Output: output, Cache: cache}, nil
}

// Collect scans both roots and merges them into an ArtifactSet.
func (c *Collector) Collect(absolute bool, policy fixturetypes.CollisionPolicy) (fixturetypes.ArtifactSet, error) {
	scan, err := c.Scan()
	if err != nil {
		return nil, err
	}
	return c.Merge(scan, absolute, policy)
}

// Merge assigns keys to a scan and merges the two sources under policy.
func (c *Collector) Merge(scan *Scan, absolute bool, policy fixturetypes.CollisionPolicy) (fixturetypes.ArtifactSet, error) {
	result := make(fixturetypes.ArtifactSet, len(scan.Output)+len(scan.Cache))
	for _, e := range scan.Output {
		key, err := c.key(e.Path, absolute)
		if err != nil {
			return nil, err
		}
		result[key] = e.Content
	}
	for _, e := range scan.Cache {
		key, err := c.key(e.Path, absolute)
		if err != nil {
			return nil, err
		}
		switch policy {
		case fixturetypes.OutputWins:
			if _, exists := result[key]; exists {
				continue
			}
		case fixturetypes.Namespaced:
			key = fixturetypes.CacheKeyPrefix + key
		}
		result[key] = e.Content
	}
	return result, nil
}

// key renders p relative to the output directory, or absolute, with forward
// slashes.
func (c *Collector) key(p string, absolute bool) (string, error) {
	if absolute {
		return filepath.ToSlash(p), nil
	}
	rel, err := filepath.Rel(c.OutDir, p)
	if err != nil {
		return "", fixturetypes.NewCollectionError("relativize "+p, err)
	}
	return filepath.ToSlash(rel), nil
}

// readTree walks root recursively, dotfiles included, and reads allow-listed
// files in sorted order. A missing root yields no entries.
func readTree(root string) ([]Entry, error) {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || !IsText(d.Name()) {
			return nil
		}
		// Symlinked directories are not followed, symlinked files are read.
		if d.Type()&fs.ModeSymlink != 0 {
			info, statErr := os.Stat(p)
			if statErr != nil || info.IsDir() {
				return nil
			}
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fixturetypes.NewCollectionError("scan "+root, err)
	}

	sort.Strings(paths)

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fixturetypes.NewCollectionError("read "+p, err)
		}
		if !utf8.Valid(data) {
			return nil, fixturetypes.NewCollectionError("decode "+p, errors.New("file is not valid UTF-8 text"))
		}
		entries = append(entries, Entry{Path: p, Content: string(data)})
	}
	return entries, nil
}
