package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	s, err := NewLoader().Load(t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, "", s.TempRoot)
	assert.Equal(t, "pipefixture-", s.Prefix)
	assert.False(t, s.KeepWorkspace)
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, "testdata/fixtures", s.FixturesDir)
	assert.Equal(t, InstallerCommand, s.Installer.Mode)
	assert.Equal(t, "yarn", s.Installer.Command)
	assert.Empty(t, s.ConfigFile)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "pipefixture.yaml", `
temp_root: /var/tmp/fixtures
keep_workspace: true
installer:
  mode: store
  store: ./packages
`)

	s, err := NewLoader().Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "/var/tmp/fixtures", s.TempRoot)
	assert.True(t, s.KeepWorkspace)
	assert.Equal(t, InstallerStore, s.Installer.Mode)
	assert.Equal(t, "./packages", s.Installer.Store)
	assert.Equal(t, "yarn", s.Installer.Command, "unset keys keep their defaults")
	assert.Equal(t, path, s.ConfigFile)
}

func TestLoad_ExplicitConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "custom.json", `{"prefix": "snap-"}`)

	s, err := NewLoader().Load(t.TempDir(), path)
	require.NoError(t, err)
	assert.Equal(t, "snap-", s.Prefix)

	_, err = NewLoader().Load(dir, filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_BrokenConfigFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pipefixture.yaml", "installer: [unclosed")

	_, err := NewLoader().Load(dir, "")
	assert.Error(t, err)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pipefixture.yaml", "prefix: from-file-\nlog_level: info\nfixtures_dir: file-fixtures\n")
	writeFile(t, dir, ".env", "PIPEFIXTURE_PREFIX=from-dotenv-\nPIPEFIXTURE_LOG_LEVEL=debug\nPIPEFIXTURE_INSTALLER_VERBOSE=true\nOTHER=ignored\n")
	t.Setenv("PIPEFIXTURE_LOG_LEVEL", "error")

	l := NewLoader()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("fixtures-dir", "", "")
	fs.String("prefix", "", "")
	require.NoError(t, l.BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--fixtures-dir", "flag-fixtures"}))

	s, err := l.Load(dir, "")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv-", s.Prefix, ".env beats the config file; unset flags do not count")
	assert.Equal(t, "error", s.LogLevel, "environment beats .env")
	assert.Equal(t, "flag-fixtures", s.FixturesDir, "flags beat everything")
	assert.True(t, s.Installer.Verbose)
}

func TestLoad_InvalidInstaller(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown mode", map[string]string{"PIPEFIXTURE_INSTALLER_MODE": "pnpm"}, "unknown installer mode"},
		{"store without dir", map[string]string{"PIPEFIXTURE_INSTALLER_MODE": "store"}, "installer.store"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewLoader().Load(t.TempDir(), "")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_NoneInstaller(t *testing.T) {
	t.Setenv("PIPEFIXTURE_INSTALLER_MODE", "none")
	s, err := NewLoader().Load(t.TempDir(), "")
	require.NoError(t, err)
	assert.Equal(t, InstallerNone, s.Installer.Mode)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "PIPEFIXTURE_TEMP_ROOT", EnvName(KeyTempRoot))
	assert.Equal(t, "PIPEFIXTURE_INSTALLER_STORE", EnvName(KeyInstallerStore))
}

func TestLoad_EmptyInstallerCommand(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pipefixture.yaml", "installer:\n  command: ''\n")

	_, err := NewLoader().Load(dir, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "installer.command")
}
