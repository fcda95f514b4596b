// Package golden records fixture runs as golden files and checks later runs
// against them.
package golden

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pipefixture/internal/filetree"
	"pipefixture/internal/version"
	"pipefixture/pkg/fixturetypes"
)

// File name suffixes inside the fixtures directory.
const (
	FixtureSuffix  = ".fixture.yaml"
	ExpectedSuffix = ".expected"
)

// Mode selects the harness entry point a fixture runs through.
type Mode string

// Fixture modes.
const (
	ModeBuild   Mode = "build"
	ModePrepare Mode = "prepare"
	ModeRuntime Mode = "runtime"
)

// Fixture is a project plus the way to run it.
type Fixture struct {
	Name        string            `yaml:"-"`
	Description string            `yaml:"description"`
	Requires    string            `yaml:"requires"`
	Mode        Mode              `yaml:"mode"`
	Absolute    bool              `yaml:"absolute"`
	Collision   string            `yaml:"collision"`
	Overrides   map[string]any    `yaml:"overrides"`
	Files       map[string]string `yaml:"files"`
	Steps       []Step            `yaml:"steps"`
}

// Step is one action against a running runtime fixture: either a file write
// or a module import.
type Step struct {
	Write   string `yaml:"write"`
	Content string `yaml:"content"`
	Import  string `yaml:"import"`
}

// Tree returns the fixture's files as a file tree.
func (f *Fixture) Tree() filetree.Tree {
	return filetree.Tree(f.Files)
}

// Options returns the harness options the fixture asks for.
func (f *Fixture) Options() (fixturetypes.Options, error) {
	policy, err := fixturetypes.ParseCollisionPolicy(f.Collision)
	if err != nil {
		return fixturetypes.Options{}, err
	}
	return fixturetypes.Options{
		Absolute:  f.Absolute,
		Overrides: f.Overrides,
		Collision: policy,
	}, nil
}

// Validate checks the mode and steps are consistent.
func (f *Fixture) Validate() error {
	switch f.Mode {
	case ModeBuild, ModePrepare:
		if len(f.Steps) > 0 {
			return fmt.Errorf("fixture %s: steps are only allowed in %s mode", f.Name, ModeRuntime)
		}
	case ModeRuntime:
	default:
		return fmt.Errorf("fixture %s: unknown mode %q", f.Name, f.Mode)
	}
	for i, step := range f.Steps {
		if (step.Write == "") == (step.Import == "") {
			return fmt.Errorf("fixture %s: step %d must set exactly one of write or import", f.Name, i+1)
		}
	}
	if f.Requires != "" {
		ok, err := version.Satisfies(f.Requires)
		if err != nil {
			return fmt.Errorf("fixture %s: %w", f.Name, err)
		}
		if !ok {
			return fmt.Errorf("fixture %s: requires %s %s, have %s", f.Name, version.Name, f.Requires, version.GetVersion())
		}
	}
	if _, err := f.Options(); err != nil {
		return fmt.Errorf("fixture %s: %w", f.Name, err)
	}
	return f.Tree().Validate()
}

// FixturePath returns the path of the named fixture in dir.
func FixturePath(dir, name string) string {
	return filepath.Join(dir, name+FixtureSuffix)
}

// ExpectedPath returns the path of the named fixture's golden file in dir.
func ExpectedPath(dir, name string) string {
	return filepath.Join(dir, name+ExpectedSuffix)
}

// LoadFixture reads and validates the named fixture from dir.
func LoadFixture(dir, name string) (*Fixture, error) {
	path := FixturePath(dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("fixture not found: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", path, err)
	}
	return ParseFixture(name, data)
}

// ParseFixture decodes a fixture document. The mode defaults to build.
func ParseFixture(name string, data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", name, err)
	}
	f.Name = name
	if f.Mode == "" {
		f.Mode = ModeBuild
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// FindFixtures lists the fixture names in dir, sorted.
func FindFixtures(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+FixtureSuffix))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(match), FixtureSuffix))
	}
	sort.Strings(names)
	return names, nil
}
