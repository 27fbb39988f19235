// Package loader loads one Go package with syntax and full type
// information, ready for SSA construction.
package loader

import (
	"errors"
	"fmt"
	"go/token"

	"golang.org/x/tools/go/packages"
)

// LoadMode is the minimum set of flags needed to build SSA.
const LoadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedCompiledGoFiles |
	packages.NeedImports |
	packages.NeedDeps |
	packages.NeedTypes |
	packages.NeedSyntax |
	packages.NeedTypesInfo |
	packages.NeedTypesSizes

// Result is a loaded package.
type Result struct {
	Pkg  *packages.Package
	Fset *token.FileSet
}

// Load loads the package matching pattern, resolved relative to dir
// (the working directory when empty). Only the first match is kept;
// test files are excluded. A package with syntax or type errors is
// rejected with all its errors joined.
func Load(dir, pattern string) (*Result, error) {
	cfg := &packages.Config{Mode: LoadMode, Dir: dir}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("loading package %q: %w", pattern, err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found for pattern %q", pattern)
	}

	pkg := pkgs[0]
	var errs []error
	for _, e := range pkg.Errors {
		errs = append(errs, e)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("package %q has errors: %w", pattern, errors.Join(errs...))
	}
	return &Result{Pkg: pkg, Fset: pkg.Fset}, nil
}
