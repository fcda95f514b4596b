package devpipeline

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"pipefixture/pkg/fixturetypes"
)

// runtime resolves module URLs against a server's current output.
type runtime struct {
	server *server
}

// Import returns the module currently served at url, e.g. "/index.js".
func (r *runtime) Import(ctx context.Context, url string) (*fixturetypes.Module, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.server.isClosed() {
		return nil, fixturetypes.ErrServerClosed
	}

	clean := path.Clean("/" + strings.TrimSpace(url))
	rel := strings.TrimPrefix(clean, "/")
	if rel == "" {
		return nil, fmt.Errorf("invalid module url %q", url)
	}
	data, err := os.ReadFile(filepath.Join(r.server.b.cfg.Out(), filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("module %s not found: %w", clean, err)
	}
	code := string(data)
	return &fixturetypes.Module{
		URL:     clean,
		Code:    code,
		Exports: parseExports(code),
	}, nil
}
