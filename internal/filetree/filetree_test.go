package filetree

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipefixture/pkg/fixturetypes"
)

func TestFromString(t *testing.T) {
	tree := FromString("console.log('hi')")
	assert.Equal(t, Tree{"index.js": "console.log('hi')"}, tree)
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "simple file", path: "index.js"},
		{name: "nested file", path: "src/components/App.jsx"},
		{name: "dotfile", path: ".babelrc"},
		{name: "inner dot segments that stay inside", path: "src/../index.js"},
		{name: "empty", path: "", wantErr: true},
		{name: "absolute", path: "/etc/passwd", wantErr: true},
		{name: "escaping", path: "../outside.js", wantErr: true},
		{name: "escaping after clean", path: "src/../../outside.js", wantErr: true},
		{name: "current dir", path: ".", wantErr: true},
		{name: "placeholder in key", path: Placeholder + "/index.js", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, fixturetypes.ErrInvalidPath))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubstitute(t *testing.T) {
	root := filepath.Join("tmp", "fixture-1")
	out := Substitute("import x from '%TEMP_TEST_DIRECTORY%/a.js'; // %TEMP_TEST_DIRECTORY%", root)
	assert.Equal(t, "import x from 'tmp/fixture-1/a.js'; // tmp/fixture-1", out)
	assert.NotContains(t, out, Placeholder)
}

func TestMaterialize(t *testing.T) {
	root := t.TempDir()
	tree := Tree{
		"index.js":            "import './src/app.js';",
		"src/app.js":          "export const root = '%TEMP_TEST_DIRECTORY%';",
		"public/deep/a/b.css": "body {}",
	}

	require.NoError(t, Materialize(root, tree))

	for rel, content := range tree {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err, rel)
		assert.NotContains(t, string(data), Placeholder)
		assert.Equal(t, Substitute(content, root), string(data))
	}

	app, err := os.ReadFile(filepath.Join(root, "src", "app.js"))
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(app), filepath.ToSlash(root)))
}

func TestMaterialize_InvalidTreeWritesNothing(t *testing.T) {
	root := t.TempDir()
	err := Materialize(root, Tree{"a.js": "a", "../b.js": "b"})
	require.Error(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMaterialize_Idempotent(t *testing.T) {
	tree := Tree{"index.js": "x", "lib/y.js": "y"}
	first, second := t.TempDir(), t.TempDir()
	require.NoError(t, Materialize(first, tree))
	require.NoError(t, Materialize(second, tree))

	for _, rel := range tree.Paths() {
		a, err := os.ReadFile(filepath.Join(first, rel))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(second, rel))
		require.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

func TestWriteFile_Overwrites(t *testing.T) {
	root := t.TempDir()
	_, err := WriteFile(root, "index.js", "export const a = 1;")
	require.NoError(t, err)
	abs, err := WriteFile(root, "index.js", "export const a = 2;")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "index.js"), abs)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "export const a = 2;", string(data))
}

func TestHasManifest(t *testing.T) {
	assert.True(t, Tree{"package.json": "{}"}.HasManifest())
	assert.False(t, Tree{"web/package.json": "{}"}.HasManifest())
	assert.False(t, FromString("x").HasManifest())
}

func TestFromDir(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Materialize(root, Tree{
		"index.js":                        "export {};",
		"src/app.css":                     "body {}",
		"package.json":                    "{}",
		"node_modules/left-pad/index.js":  "module.exports = 1;",
		".pipeline-cache/pkg/left-pad.js": "export default 1;",
		".git/HEAD":                       "ref: refs/heads/main",
		"src/node_modules/local/index.js": "nested",
	}))

	tree, err := FromDir(root)
	require.NoError(t, err)
	assert.Equal(t, Tree{
		"index.js":     "export {};",
		"src/app.css":  "body {}",
		"package.json": "{}",
	}, tree)
	assert.True(t, tree.HasManifest())
}

func TestFromDir_Missing(t *testing.T) {
	_, err := FromDir(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
