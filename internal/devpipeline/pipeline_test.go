package devpipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipefixture/internal/logger"
	"pipefixture/pkg/fixturetypes"
)

func newTestPipeline() *Pipeline {
	return New(WithLogger(logger.Discard()))
}

func writeProject(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
}

func readOut(t *testing.T, cfg *fixturetypes.PipelineConfig, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Out(), filepath.FromSlash(rel)))
	require.NoError(t, err, rel)
	return string(data)
}

// leftPadProject declares and "installs" one dependency.
func leftPadProject() map[string]string {
	return map[string]string{
		"package.json":                       `{"dependencies": {"left-pad": "^1.0.0"}}`,
		"node_modules/left-pad/package.json": `{"name": "left-pad", "version": "1.3.0", "module": "esm/index.js"}`,
		"node_modules/left-pad/esm/index.js": "export default function pad(s) { return ' ' + s; }",
		"index.js":                           "import pad from 'left-pad';\nconsole.log(pad('hi'));",
	}
}

func TestLoadConfiguration_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := newTestPipeline().LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root())
	assert.Equal(t, filepath.Join(root, "build"), cfg.Out())
	assert.Equal(t, root, cfg.Mount())
	assert.Equal(t, filepath.Join(root, fixturetypes.CacheDirName), cfg.CacheDir())
	assert.Empty(t, cfg.Exclude())

	url, ok := cfg.Setting(KeyPackageURL)
	require.True(t, ok)
	assert.Equal(t, "/_pkg", url)
}

func TestLoadConfiguration_FileThenOverrides(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, map[string]string{
		"pipeline.config.json": `{"out": "dist", "mount": "src", "exclude": ["**/*.test.js"], "custom": {"flag": true}}`,
	})

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dist"), cfg.Out())
	assert.Equal(t, filepath.Join(root, "src"), cfg.Mount())
	assert.Equal(t, []string{"**/*.test.js"}, cfg.Exclude())
	flag, ok := cfg.Setting("custom.flag")
	require.True(t, ok)
	assert.Equal(t, true, flag)

	abs := filepath.Join(t.TempDir(), "elsewhere")
	cfg, err = p.LoadConfiguration(context.Background(), root, map[string]any{"out": abs})
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.Out())
	assert.Equal(t, filepath.Join(root, "src"), cfg.Mount(), "file values survive overrides")
}

func TestLoadConfiguration_BrokenFile(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, map[string]string{"pipeline.config.json": `{"out": `})

	_, err := newTestPipeline().LoadConfiguration(context.Background(), root, nil)
	assert.Error(t, err)
}

func TestBuild_CopiesSources(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, map[string]string{
		"index.js":             "console.log('hi')",
		"src/style.css":        "body {}",
		"src/app.test.js":      "test()",
		"public/logo.svg":      "<svg/>",
		".git/HEAD":            "ref",
		"pipeline.config.yaml": "exclude:\n  - '**/*.test.js'\n",
		"yarn.lock":            "",
	})

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg}))

	assert.Equal(t, "console.log('hi')", readOut(t, cfg, "index.js"))
	assert.Equal(t, "body {}", readOut(t, cfg, "src/style.css"))
	assert.Equal(t, "<svg/>", readOut(t, cfg, "public/logo.svg"))

	for _, missing := range []string{"src/app.test.js", ".git/HEAD", "pipeline.config.yaml", "yarn.lock"} {
		_, err := os.Stat(filepath.Join(cfg.Out(), filepath.FromSlash(missing)))
		assert.True(t, os.IsNotExist(err), missing)
	}

	var manifest map[string]string
	require.NoError(t, json.Unmarshal([]byte(readOut(t, cfg, ManifestName)), &manifest))
	assert.Len(t, manifest, 3)
	assert.Len(t, manifest["index.js"], 64)
}

func TestBuild_Deterministic(t *testing.T) {
	files := map[string]string{"index.js": "console.log('hi')", "a/b.js": "export const b = 1;"}
	p := newTestPipeline()

	var manifests [2]string
	for i := range manifests {
		root := t.TempDir()
		writeProject(t, root, files)
		cfg, err := p.LoadConfiguration(context.Background(), root, nil)
		require.NoError(t, err)
		require.NoError(t, p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg}))
		manifests[i] = readOut(t, cfg, ManifestName)
	}
	assert.Equal(t, manifests[0], manifests[1])
}

func TestBuild_CleansPreviousOutput(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, map[string]string{"index.js": "x", "build/stale.js": "old"})

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg}))

	_, err = os.Stat(filepath.Join(cfg.Out(), "stale.js"))
	assert.True(t, os.IsNotExist(err))
}

func TestBuild_StagesPackages(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, leftPadProject())

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)
	require.NoError(t, p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg}))

	assert.Equal(t, "import pad from '/_pkg/left-pad.js';\nconsole.log(pad('hi'));", readOut(t, cfg, "index.js"))
	assert.Contains(t, readOut(t, cfg, "_pkg/left-pad.js"), "function pad")

	_, err = os.Stat(filepath.Join(cfg.Out(), "node_modules"))
	assert.True(t, os.IsNotExist(err), "node_modules is never copied")
	_, err = os.Stat(filepath.Join(cfg.Out(), "package.json"))
	assert.True(t, os.IsNotExist(err), "manifest is never copied")
}

func TestBuild_Lockfile(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, leftPadProject())

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)

	ok := &fixturetypes.Lockfile{Packages: map[string]string{"left-pad": "1.3.0"}}
	require.NoError(t, p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg, Lockfile: ok}))

	pinned := &fixturetypes.Lockfile{Packages: map[string]string{"left-pad": "1.0.0"}}
	err = p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg, Lockfile: pinned})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lockfile pins 1.0.0")

	empty := &fixturetypes.Lockfile{Packages: map[string]string{}}
	assert.Error(t, p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg, Lockfile: empty}))
}

func TestBuild_MissingPackage(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, map[string]string{
		"package.json": `{"dependencies": {"react": "^18.0.0"}}`,
		"index.js":     "import React from 'react';",
	})

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)
	err = p.Build(context.Background(), fixturetypes.BuildRequest{Config: cfg})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "react is not installed")
}

func TestBuild_NilConfig(t *testing.T) {
	assert.Error(t, newTestPipeline().Build(context.Background(), fixturetypes.BuildRequest{}))
}

func TestBuild_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, map[string]string{"index.js": "x"})

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Build(ctx, fixturetypes.BuildRequest{Config: cfg}), context.Canceled)
}

func TestPreparePackages(t *testing.T) {
	root := t.TempDir()
	writeProject(t, root, leftPadProject())

	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)
	require.NoError(t, p.PreparePackages(context.Background(), cfg))

	staged, err := os.ReadFile(filepath.Join(cfg.CacheDir(), "pkg", "left-pad.js"))
	require.NoError(t, err)
	assert.Contains(t, string(staged), "function pad")

	data, err := os.ReadFile(filepath.Join(cfg.CacheDir(), "pkg", ImportMapName))
	require.NoError(t, err)
	var im importMap
	require.NoError(t, json.Unmarshal(data, &im))
	assert.Equal(t, map[string]string{"left-pad": "/_pkg/left-pad.js"}, im.Imports)

	_, err = os.Stat(cfg.Out())
	assert.True(t, os.IsNotExist(err), "prepare does not build")
}

func TestPreparePackages_NoManifest(t *testing.T) {
	root := t.TempDir()
	p := newTestPipeline()
	cfg, err := p.LoadConfiguration(context.Background(), root, nil)
	require.NoError(t, err)
	require.NoError(t, p.PreparePackages(context.Background(), cfg))

	data, err := os.ReadFile(filepath.Join(cfg.CacheDir(), "pkg", ImportMapName))
	require.NoError(t, err)
	assert.JSONEq(t, `{"imports": {}}`, string(data))
}
