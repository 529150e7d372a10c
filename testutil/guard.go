// Package testutil provides helpers for enforcing import boundaries
// across the repository.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// modulePattern covers every package in this module, tests included.
const modulePattern = "biokb/..."

// AssertOnlyImportedBy loads the whole module and fails the test if any
// package outside target itself or the allowed prefixes imports target or
// a package under it.
func AssertOnlyImportedBy(t testing.TB, target string, allowed ...string) {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, modulePattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	viols := boundaryViolations(pkgs, target, allowed)
	failIfViolations(t, target+" may only be imported by "+strings.Join(allowed, ", "), viols)
}

// AssertNoDirectImports scans the non-test .go files in dir (typically "."
// from within the package) and fails if any import path satisfies the
// forbidden predicate. It does not follow build tags.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, reason, viols)
}

// BackendImportForbidden matches imports of the concrete store backends.
// Everything except the commands must depend on store.RowStore instead.
func BackendImportForbidden(path string) bool {
	return strings.Contains(path, "/store/sqlite") || strings.Contains(path, "/store/postgres")
}

func boundaryViolations(pkgs []*packages.Package, target string, allowed []string) []string {
	seen := make(map[string]struct{})
	for _, pkg := range pkgs {
		// Test variants of the target carry its path as a prefix.
		if strings.HasPrefix(pkg.PkgPath, target) || underAny(pkg.PkgPath, allowed) {
			continue
		}
		for importPath := range pkg.Imports {
			if importPath == target || strings.HasPrefix(importPath, target+"/") {
				seen[pkg.PkgPath+": "+importPath] = struct{}{}
			}
		}
	}
	viols := make([]string, 0, len(seen))
	for v := range seen {
		viols = append(viols, v)
	}
	sort.Strings(viols)
	return viols
}

func underAny(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			ip := strings.Trim(imp.Path.Value, "\"")
			if forbidden(ip) {
				viols = append(viols, ip+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
