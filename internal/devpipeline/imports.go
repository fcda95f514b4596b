package devpipeline

import (
	"regexp"
	"strings"
)

// importPattern finds module specifiers in static imports, re-exports and
// dynamic imports: `from "x"`, `import "x"`, `import("x")`.
var importPattern = regexp.MustCompile(`(\bfrom\s*|\bimport\s*\(?\s*)(['"])([^'"\s]+)(['"])`)

// rewriteImports replaces every bare specifier for which resolve returns a
// URL. Relative, absolute and URL specifiers are left alone.
func rewriteImports(code string, resolve func(spec string) (string, bool)) string {
	return importPattern.ReplaceAllStringFunc(code, func(match string) string {
		parts := importPattern.FindStringSubmatch(match)
		prefix, open, spec, closing := parts[1], parts[2], parts[3], parts[4]
		if open != closing || !isBare(spec) {
			return match
		}
		url, ok := resolve(spec)
		if !ok {
			return match
		}
		return prefix + open + url + closing
	})
}

func isBare(spec string) bool {
	if strings.HasPrefix(spec, ".") || strings.HasPrefix(spec, "/") {
		return false
	}
	return !strings.Contains(spec, "://")
}

// packageName returns the package part of a bare specifier:
// "react" for "react/jsx-runtime", "@scope/pkg" for "@scope/pkg/sub".
func packageName(spec string) string {
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) > 1 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// exportPattern matches literal top-level bindings: `export const a = 1;`.
var exportPattern = regexp.MustCompile(`(?m)^\s*export\s+(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*=\s*([^;\n]+?)\s*;?\s*$`)

// parseExports returns the literal export bindings of a module.
func parseExports(code string) map[string]string {
	exports := make(map[string]string)
	for _, m := range exportPattern.FindAllStringSubmatch(code, -1) {
		exports[m[1]] = m[2]
	}
	return exports
}
