// Package config loads pipefixture settings. Sources, lowest priority first:
// built-in defaults, pipefixture.yaml, a .env file, PIPEFIXTURE_* environment
// variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pipefixture/internal/logger"
)

const (
	// EnvPrefix prefixes every environment variable the loader reads.
	EnvPrefix = "PIPEFIXTURE"
	// FileName is the config file name without extension.
	FileName = "pipefixture"
	// DotEnvName is the dotenv file read from the working directory.
	DotEnvName = ".env"
)

// Installer modes.
const (
	InstallerCommand = "command"
	InstallerStore   = "store"
	InstallerNone    = "none"
)

// Setting keys.
const (
	KeyTempRoot         = "temp_root"
	KeyPrefix           = "prefix"
	KeyKeepWorkspace    = "keep_workspace"
	KeyLogLevel         = "log_level"
	KeyLogFile          = "log_file"
	KeyFixturesDir      = "fixtures_dir"
	KeyInstallerMode    = "installer.mode"
	KeyInstallerCommand = "installer.command"
	KeyInstallerArgs    = "installer.args"
	KeyInstallerStore   = "installer.store"
	KeyInstallerVerbose = "installer.verbose"
)

var defaults = map[string]any{
	KeyTempRoot:         "",
	KeyPrefix:           "pipefixture-",
	KeyKeepWorkspace:    false,
	KeyLogLevel:         "warn",
	KeyLogFile:          "",
	KeyFixturesDir:      "testdata/fixtures",
	KeyInstallerMode:    InstallerCommand,
	KeyInstallerCommand: "yarn",
	KeyInstallerArgs:    []string{},
	KeyInstallerStore:   "",
	KeyInstallerVerbose: false,
}

// flagKeys maps command-line flag names to setting keys.
var flagKeys = map[string]string{
	"temp-root":         KeyTempRoot,
	"prefix":            KeyPrefix,
	"keep-workspace":    KeyKeepWorkspace,
	"log-level":         KeyLogLevel,
	"log-file":          KeyLogFile,
	"fixtures-dir":      KeyFixturesDir,
	"installer":         KeyInstallerMode,
	"installer-store":   KeyInstallerStore,
	"installer-verbose": KeyInstallerVerbose,
}

// InstallerSettings selects and configures the dependency installer.
type InstallerSettings struct {
	Mode    string   `mapstructure:"mode"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Store   string   `mapstructure:"store"`
	Verbose bool     `mapstructure:"verbose"`
}

// Settings is the resolved pipefixture configuration.
type Settings struct {
	TempRoot      string            `mapstructure:"temp_root"`
	Prefix        string            `mapstructure:"prefix"`
	KeepWorkspace bool              `mapstructure:"keep_workspace"`
	LogLevel      string            `mapstructure:"log_level"`
	LogFile       string            `mapstructure:"log_file"`
	FixturesDir   string            `mapstructure:"fixtures_dir"`
	Installer     InstallerSettings `mapstructure:"installer"`

	// ConfigFile is the config file that was read, if any.
	ConfigFile string `mapstructure:"-"`
}

// Loader resolves Settings. Flags bound with BindFlags take precedence over
// every other source.
type Loader struct {
	v *viper.Viper
}

// NewLoader returns a loader with defaults and environment lookup in place.
func NewLoader() *Loader {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlags binds every known flag present in fs.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := l.v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads settings. configFile names an explicit config file; when empty,
// pipefixture.{yaml,yml,json,toml} is looked up in workDir. A missing .env or
// config file is not an error; an explicit config file that is missing is.
func (l *Loader) Load(workDir, configFile string) (*Settings, error) {
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		workDir = wd
	}

	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(FileName)
		l.v.AddConfigPath(workDir)
	}
	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		logger.Debug("Loaded config file", "path", l.v.ConfigFileUsed())
	}

	if err := l.loadDotEnv(filepath.Join(workDir, DotEnvName)); err != nil {
		return nil, err
	}

	var s Settings
	if err := l.v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.ConfigFile = l.v.ConfigFileUsed()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// loadDotEnv merges PIPEFIXTURE_* entries of a dotenv file over the config
// file. Real environment variables still win.
func (l *Loader) loadDotEnv(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read .env file %s: %w", path, err)
	}
	envMap, err := godotenv.Unmarshal(string(data))
	if err != nil {
		return fmt.Errorf("failed to parse .env file %s: %w", path, err)
	}

	merged := make(map[string]any)
	for key := range defaults {
		value, ok := envMap[EnvName(key)]
		if !ok {
			continue
		}
		setNested(merged, strings.Split(key, "."), value)
	}
	if len(merged) == 0 {
		return nil
	}
	logger.Debug("Loaded .env file", "path", path, "keys", len(merged))
	return l.v.MergeConfigMap(merged)
}

// EnvName returns the environment variable read for a setting key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func setNested(m map[string]any, path []string, value any) {
	for _, part := range path[:len(path)-1] {
		child, ok := m[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			m[part] = child
		}
		m = child
	}
	m[path[len(path)-1]] = value
}

// Validate checks the installer selection is usable.
func (s *Settings) Validate() error {
	switch s.Installer.Mode {
	case InstallerCommand:
		if s.Installer.Command == "" {
			return errors.New("installer.command must be set when installer.mode is command")
		}
	case InstallerStore:
		if s.Installer.Store == "" {
			return errors.New("installer.store must be set when installer.mode is store")
		}
	case InstallerNone:
	default:
		return fmt.Errorf("unknown installer mode %q (want %s, %s or %s)", s.Installer.Mode, InstallerCommand, InstallerStore, InstallerNone)
	}
	return nil
}
