package fixturetypes

import (
	"path/filepath"
	"sort"
)

// CacheDirName is the reserved pipeline cache directory under a project root.
const CacheDirName = ".pipeline-cache"

// PipelineConfig is the resolved pipeline configuration for one project root.
// It is immutable once loaded; use the accessors to read it.
type PipelineConfig struct {
	root     string
	out      string
	mount    string
	exclude  []string
	settings map[string]any
}

// NewPipelineConfig builds a configuration value. Settings are copied so the
// caller cannot mutate the configuration afterwards.
func NewPipelineConfig(root, out, mount string, exclude []string, settings map[string]any) *PipelineConfig {
	copied := make(map[string]any, len(settings))
	for k, v := range settings {
		copied[k] = v
	}
	return &PipelineConfig{
		root:     root,
		out:      out,
		mount:    mount,
		exclude:  append([]string(nil), exclude...),
		settings: copied,
	}
}

// Root returns the project root.
func (c *PipelineConfig) Root() string { return c.root }

// Out returns the build output directory.
func (c *PipelineConfig) Out() string { return c.out }

// Mount returns the source directory the pipeline reads from.
func (c *PipelineConfig) Mount() string { return c.mount }

// Exclude returns the exclusion globs, relative to Mount.
func (c *PipelineConfig) Exclude() []string { return append([]string(nil), c.exclude...) }

// CacheDir returns the reserved cache directory under Root.
func (c *PipelineConfig) CacheDir() string { return filepath.Join(c.root, CacheDirName) }

// Setting returns a resolved setting by its flattened, dot-separated key.
func (c *PipelineConfig) Setting(key string) (any, bool) {
	v, ok := c.settings[key]
	return v, ok
}

// SettingKeys returns the resolved setting keys in sorted order.
func (c *PipelineConfig) SettingKeys() []string {
	keys := make([]string, 0, len(c.settings))
	for k := range c.settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
