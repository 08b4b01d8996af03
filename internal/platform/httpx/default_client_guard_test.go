// SPDX-License-Identifier: MIT

package httpx

import (
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// net/http package-level helpers that bypass httpx clients or the daemon's
// own listener and mux.
var disallowedHTTPSelectors = map[string]string{
	"DefaultClient":     "use httpx.NewClient",
	"Get":               "use httpx.NewClient",
	"Head":              "use httpx.NewClient",
	"Post":              "use httpx.NewClient",
	"PostForm":          "use httpx.NewClient",
	"ListenAndServe":    "use daemon.NewManager",
	"ListenAndServeTLS": "use daemon.NewManager",
	"DefaultServeMux":   "register routes on the api router",
	"Handle":            "register routes on the api router",
	"HandleFunc":        "register routes on the api router",
}

func scanHTTPSelectors(fset *token.FileSet, path string) ([]string, error) {
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	var found []string
	ast.Inspect(file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == "http" {
			if hint, bad := disallowedHTTPSelectors[sel.Sel.Name]; bad {
				found = append(found, fset.Position(sel.Pos()).String()+": http."+sel.Sel.Name+" ("+hint+")")
			}
		}
		return true
	})
	return found, nil
}

func TestNoGlobalHTTPUsage(t *testing.T) {
	repoRoot := filepath.Clean(filepath.Join("..", "..", ".."))
	fset := token.NewFileSet()
	var violations []string

	for _, dir := range []string{"internal", "cmd"} {
		root := filepath.Join(repoRoot, dir)
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if d.Name() == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			found, err := scanHTTPSelectors(fset, path)
			violations = append(violations, found...)
			return err
		})
		require.NoError(t, err, "scan %s", root)
	}

	sort.Strings(violations)
	require.Empty(t, violations, "disallowed net/http globals:\n%s", strings.Join(violations, "\n"))
}
