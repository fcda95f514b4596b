package installer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"pipefixture/pkg/fixturetypes"
)

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestCommand_RunsInRoot(t *testing.T) {
	skipWithoutShell(t)
	root := t.TempDir()

	inst := NewCommand("sh", "-c", "mkdir node_modules && echo noisy")
	require.NoError(t, inst.Install(context.Background(), root))

	info, err := os.Stat(filepath.Join(root, "node_modules"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCommand_FailureReportsStderr(t *testing.T) {
	skipWithoutShell(t)

	inst := NewCommand("sh", "-c", "printf '\\033[31mresolution failed\\033[0m' >&2; exit 3")
	err := inst.Install(context.Background(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sh failed")
	assert.Contains(t, err.Error(), "resolution failed")
	assert.NotContains(t, err.Error(), "\x1b[31m", "ANSI sequences should be stripped")
}

func TestCommand_VerboseStreamsOutput(t *testing.T) {
	skipWithoutShell(t)

	var stdout, stderr bytes.Buffer
	inst := &Command{
		Name:    "sh",
		Args:    []string{"-c", "echo out; echo err >&2; echo $PIPEFIXTURE_MARK"},
		Env:     map[string]string{"PIPEFIXTURE_MARK": "marked"},
		Verbose: true,
		Stdout:  &stdout,
		Stderr:  &stderr,
	}
	require.NoError(t, inst.Install(context.Background(), t.TempDir()))
	assert.Equal(t, "out\nmarked\n", stdout.String())
	assert.Equal(t, "err\n", stderr.String())
}

func TestCommand_MissingExecutable(t *testing.T) {
	inst := NewCommand("pipefixture-no-such-package-manager")
	assert.Error(t, inst.Install(context.Background(), t.TempDir()))
}

func TestNoop(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, Noop{}.Install(context.Background(), root))
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func newStore(t *testing.T) string {
	t.Helper()
	store := t.TempDir()
	packages := map[string]string{
		"left-pad/1.0.0/index.js":         "export default 'v1.0.0';",
		"left-pad/1.3.0/index.js":         "export default 'v1.3.0';",
		"left-pad/2.0.0/index.js":         "export default 'v2.0.0';",
		"left-pad/not-a-version/index.js": "ignored",
		"@scope/util/0.1.0/index.js":      "export const util = 1;",
		"@scope/util/0.1.0/package.json":  `{"name":"@scope/util","module":"index.js"}`,
	}
	for rel, content := range packages {
		p := filepath.Join(store, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return store
}

func TestStore_Resolve(t *testing.T) {
	s := NewStore(newStore(t))

	tests := []struct {
		name    string
		pkg     string
		rng     string
		want    string
		wantErr bool
	}{
		{name: "caret picks highest minor", pkg: "left-pad", rng: "^1.0.0", want: "1.3.0"},
		{name: "exact", pkg: "left-pad", rng: "1.0.0", want: "1.0.0"},
		{name: "latest", pkg: "left-pad", rng: "latest", want: "2.0.0"},
		{name: "empty range", pkg: "left-pad", rng: "", want: "2.0.0"},
		{name: "scoped package", pkg: "@scope/util", rng: "~0.1.0", want: "0.1.0"},
		{name: "unsatisfiable", pkg: "left-pad", rng: ">=3.0.0", wantErr: true},
		{name: "bad range", pkg: "left-pad", rng: "not a range", wantErr: true},
		{name: "unknown package", pkg: "react", rng: "*", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := s.Resolve(tt.pkg, tt.rng)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.String())
		})
	}
}

func TestStore_Install(t *testing.T) {
	s := NewStore(newStore(t))
	root := t.TempDir()
	manifest := `{"dependencies": {"left-pad": "^1.0.0"}, "devDependencies": {"@scope/util": "0.1.x"}}`
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(manifest), 0644))

	require.NoError(t, s.Install(context.Background(), root))

	data, err := os.ReadFile(filepath.Join(root, ModulesDir, "left-pad", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "export default 'v1.3.0';", string(data))

	_, err = os.Stat(filepath.Join(root, ModulesDir, "@scope", "util", "package.json"))
	require.NoError(t, err)

	data, err = os.ReadFile(filepath.Join(root, LockfileName))
	require.NoError(t, err)
	var lock fixturetypes.Lockfile
	require.NoError(t, yaml.Unmarshal(data, &lock))
	assert.Equal(t, map[string]string{"left-pad": "1.3.0", "@scope/util": "0.1.0"}, lock.Packages)
}

func TestStore_InstallRejectsEscapingNames(t *testing.T) {
	s := NewStore(newStore(t))
	parent := t.TempDir()
	root := filepath.Join(parent, "project")
	require.NoError(t, os.MkdirAll(root, 0755))
	victim := filepath.Join(parent, "victim")
	require.NoError(t, os.MkdirAll(victim, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(victim, "keep.txt"), []byte("x"), 0644))

	for _, name := range []string{"../../victim", "../victim", "/abs/pkg", ".."} {
		t.Run(name, func(t *testing.T) {
			manifest := fmt.Sprintf(`{"dependencies": {%q: "*"}}`, name)
			require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(manifest), 0644))

			err := s.Install(context.Background(), root)
			assert.ErrorIs(t, err, fixturetypes.ErrInvalidPath)
			assert.FileExists(t, filepath.Join(victim, "keep.txt"))
			assert.NoFileExists(t, filepath.Join(root, LockfileName))
		})
	}
}

func TestStore_InstallMissingManifest(t *testing.T) {
	s := NewStore(newStore(t))
	assert.Error(t, s.Install(context.Background(), t.TempDir()))
}

func TestStore_InstallCancelled(t *testing.T) {
	s := NewStore(newStore(t))
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "package.json"), []byte(`{"dependencies":{"left-pad":"*"}}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Install(ctx, root), context.Canceled)
}
