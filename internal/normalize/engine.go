// Package normalize replaces run-specific text in fixture output with stable
// placeholders so golden files compare equal across machines and runs.
package normalize

import (
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
)

// Placeholders written into normalized output.
const (
	WorkspacePlaceholder = "<workspace>"
	TempPlaceholder      = "<tmp>"
)

// NormalizationPattern replaces every match of Pattern with <Name>.
type NormalizationPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

// NormalizationEngine applies path patterns first, then the built-in ones.
// Paths go first because a username may appear inside them.
type NormalizationEngine struct {
	paths    []NormalizationPattern
	patterns []NormalizationPattern
}

// NewNormalizationEngine creates an engine with the built-in patterns.
func NewNormalizationEngine() *NormalizationEngine {
	engine := &NormalizationEngine{}
	engine.initBuiltinPatterns()
	return engine
}

func (ne *NormalizationEngine) initBuiltinPatterns() {
	ne.addUsernameMasking()

	ne.patterns = append(ne.patterns, NormalizationPattern{
		Name:    "memory_address",
		Pattern: regexp.MustCompile(`0x[a-fA-F0-9]{8,16}`),
	})

	// Content hashes change whenever a hashed file embeds a workspace path.
	ne.patterns = append(ne.patterns, NormalizationPattern{
		Name:    "sha256",
		Pattern: regexp.MustCompile(`\b[0-9a-f]{64}\b`),
	})

	ne.patterns = append(ne.patterns, NormalizationPattern{
		Name:    "uuid",
		Pattern: regexp.MustCompile(`\b[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\b`),
	})
}

// AddWorkspaceRoot masks workspaces created under tempRoot with the given
// directory prefix as <workspace>, and any other path under tempRoot as
// <tmp>. Both the literal and the symlink-resolved form of tempRoot match.
func (ne *NormalizationEngine) AddWorkspaceRoot(tempRoot, prefix string) {
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}
	for _, root := range rootForms(tempRoot) {
		quoted := regexp.QuoteMeta(filepath.ToSlash(root))
		ne.paths = append(ne.paths, NormalizationPattern{
			Name:    "workspace",
			Pattern: regexp.MustCompile(quoted + `/` + regexp.QuoteMeta(prefix) + `[^/\s"'<>]+`),
		})
	}
	for _, root := range rootForms(tempRoot) {
		ne.paths = append(ne.paths, NormalizationPattern{
			Name:    "tmp",
			Pattern: regexp.MustCompile(regexp.QuoteMeta(filepath.ToSlash(root)) + `\b`),
		})
	}
}

// rootForms returns the cleaned root and, when different, its resolved form,
// longest first so the more specific path is replaced before its prefix.
func rootForms(root string) []string {
	forms := []string{filepath.Clean(root)}
	if abs, err := filepath.Abs(root); err == nil {
		if resolved, err := filepath.EvalSymlinks(abs); err == nil && resolved != forms[0] {
			forms = append(forms, resolved)
		}
	}
	if len(forms) == 2 && len(forms[1]) > len(forms[0]) {
		forms[0], forms[1] = forms[1], forms[0]
	}
	return forms
}

// genericUsernames are not identifying and collide with ordinary words
// ("build", "node", "app") in pipeline output.
var genericUsernames = map[string]bool{
	"runner": true, "ci": true, "github": true, "gitlab": true, "jenkins": true,
	"build": true, "deploy": true, "admin": true, "administrator": true,
	"user": true, "test": true, "testuser": true, "guest": true, "root": true,
	"daemon": true, "nobody": true, "www-data": true, "nginx": true,
	"dev": true, "developer": true, "qa": true, "demo": true, "example": true,
	"ubuntu": true, "debian": true, "alpine": true, "node": true, "app": true,
}

// currentUsername returns the login name of the running user, or "".
func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

func (ne *NormalizationEngine) addUsernameMasking() {
	ne.addUsernamePattern(currentUsername())
}

func (ne *NormalizationEngine) addUsernamePattern(name string) {
	if len(name) < 2 || len(name) > 50 || genericUsernames[strings.ToLower(name)] {
		return
	}
	ne.patterns = append(ne.patterns, NormalizationPattern{
		Name:    "username",
		Pattern: regexp.MustCompile(`\b` + regexp.QuoteMeta(name) + `\b`),
	})
}

// NormalizeOutput replaces dynamic content with placeholders.
func (ne *NormalizationEngine) NormalizeOutput(output string) string {
	for _, set := range [][]NormalizationPattern{ne.paths, ne.patterns} {
		for _, p := range set {
			output = p.Pattern.ReplaceAllString(output, "<"+p.Name+">")
		}
	}
	return output
}

// CompareWithPlaceholders reports whether expected and actual are equal once
// both are normalized. Trailing newlines are ignored.
func (ne *NormalizationEngine) CompareWithPlaceholders(expected, actual string) bool {
	want := strings.Split(strings.TrimRight(expected, "\n"), "\n")
	got := strings.Split(strings.TrimRight(actual, "\n"), "\n")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if !ne.MatchLineWithPlaceholders(want[i], got[i]) {
			return false
		}
	}
	return true
}

// MatchLineWithPlaceholders compares one expected line with one actual line.
func (ne *NormalizationEngine) MatchLineWithPlaceholders(expected, actual string) bool {
	if !strings.Contains(expected, "<") || !strings.Contains(expected, ">") {
		return expected == actual
	}
	return ne.NormalizeOutput(expected) == ne.NormalizeOutput(actual)
}
