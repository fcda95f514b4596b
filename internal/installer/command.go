// Package installer provides the dependency installers a fixture run can use
// when its file tree declares a package manifest.
package installer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"pipefixture/internal/logger"
)

// DefaultCommand is the package manager run by Command when none is configured.
const DefaultCommand = "yarn"

// Command runs an external package manager inside the workspace root.
type Command struct {
	Name    string            // Executable; empty means DefaultCommand
	Args    []string          // Extra arguments
	Env     map[string]string // Added to the inherited environment
	Verbose bool              // Stream the package manager's output to Stdout/Stderr
	Stdout  io.Writer         // Used when Verbose; defaults to os.Stdout
	Stderr  io.Writer         // Used when Verbose; defaults to os.Stderr
}

// NewCommand returns an installer running name with args.
func NewCommand(name string, args ...string) *Command {
	return &Command{Name: name, Args: args}
}

// Install runs the package manager synchronously with root as its working
// directory. Output is discarded unless Verbose is set; stderr is always kept
// so a failure can report it.
func (c *Command) Install(ctx context.Context, root string) error {
	name := c.Name
	if name == "" {
		name = DefaultCommand
	}

	cmd := exec.CommandContext(ctx, name, c.Args...)
	cmd.Dir = root
	cmd.Env = os.Environ()
	for k, v := range c.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var stderr bytes.Buffer
	if c.Verbose {
		cmd.Stdout = writerOr(c.Stdout, os.Stdout)
		cmd.Stderr = io.MultiWriter(writerOr(c.Stderr, os.Stderr), &stderr)
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = &stderr
	}

	logger.Debug("Installing dependencies", "command", name, "args", c.Args, "path", root)
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(ansi.Strip(stderr.String()))
		if detail != "" {
			return fmt.Errorf("%s failed: %w\n%s", name, err, detail)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}

// Noop never installs anything.
type Noop struct{}

// Install does nothing.
func (Noop) Install(context.Context, string) error { return nil }
